package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Gateway talks to the bot gateway sidecar over its REST surface. The
// gateway owns the platform session; this adapter only translates the
// API contract onto it.
type Gateway struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGateway builds a Gateway adapter for the given base URL.
func NewGateway(baseURL, token string, timeout time.Duration) (*Gateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("channel gateway: base url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

var _ API = (*Gateway)(nil)

func (g *Gateway) CreateChannel(ctx context.Context, parentID, name string, kind Kind) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := g.do(ctx, http.MethodPost, "/channels", map[string]any{
		"parent_id": parentID,
		"name":      name,
		"kind":      string(kind),
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (g *Gateway) DeleteChannel(ctx context.Context, channelID string) error {
	return g.do(ctx, http.MethodDelete, "/channels/"+url.PathEscape(channelID), nil, nil)
}

func (g *Gateway) ArchiveAndLock(ctx context.Context, channelID string) error {
	return g.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/archive", nil, nil)
}

func (g *Gateway) RemoveSelfMembership(ctx context.Context, channelID string) error {
	return g.do(ctx, http.MethodDelete, "/channels/"+url.PathEscape(channelID)+"/members/self", nil, nil)
}

func (g *Gateway) EditPermissionOverwrite(ctx context.Context, channelID, roleID string, allow PermissionFlags) error {
	return g.do(ctx, http.MethodPut, "/channels/"+url.PathEscape(channelID)+"/permissions/"+url.PathEscape(roleID), map[string]any{
		"allow": uint64(allow),
	}, nil)
}

func (g *Gateway) HasPermissionOverwrite(ctx context.Context, channelID, roleID string, allow PermissionFlags) (bool, error) {
	var out struct {
		Allow uint64 `json:"allow"`
	}
	err := g.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID)+"/permissions/"+url.PathEscape(roleID), nil, &out)
	if err != nil {
		return false, err
	}
	return PermissionFlags(out.Allow)&allow == allow, nil
}

func (g *Gateway) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := g.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/messages", map[string]any{
		"content": content,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (g *Gateway) RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	var out []Message
	path := "/channels/" + url.PathEscape(channelID) + "/messages?limit=" + strconv.Itoa(limit)
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) SendDirectMessage(ctx context.Context, userID, content string) error {
	return g.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/messages", map[string]any{
		"content": content,
	}, nil)
}

func (g *Gateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("channel gateway: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("channel gateway: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("channel gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return &PermissionError{Op: method + " " + path, ChannelID: path, Err: readAPIError(resp.Body)}
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("channel gateway: %s %s: status %d: %w", method, path, resp.StatusCode, readAPIError(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("channel gateway: decode response: %w", err)
	}
	return nil
}

func readAPIError(body io.Reader) error {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Message == "" {
		return fmt.Errorf("no error detail")
	}
	return fmt.Errorf("%s", payload.Message)
}
