package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGatewayCreateChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/channels", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "parent-1", body["parent_id"])
		require.Equal(t, string(KindPrivateThread), body["kind"])

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "chan-9"})
	}))
	defer srv.Close()

	gw, err := NewGateway(srv.URL, "tok", time.Second)
	require.NoError(t, err)

	id, err := gw.CreateChannel(context.Background(), "parent-1", "modmail-u1", KindPrivateThread)
	require.NoError(t, err)
	require.Equal(t, "chan-9", id)
}

func TestGatewayMapsForbiddenToPermissionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "missing manage channels"})
	}))
	defer srv.Close()

	gw, err := NewGateway(srv.URL, "", time.Second)
	require.NoError(t, err)

	err = gw.DeleteChannel(context.Background(), "chan-1")
	require.Error(t, err)
	require.True(t, IsPermission(err), "expected a permission error, got %v", err)
}

func TestGatewayMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	gw, err := NewGateway(srv.URL, "", time.Second)
	require.NoError(t, err)

	err = gw.ArchiveAndLock(context.Background(), "gone")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGatewayRequiresBaseURL(t *testing.T) {
	_, err := NewGateway("  ", "", time.Second)
	require.Error(t, err)
}

func TestFakeImplementsContract(t *testing.T) {
	fake := NewFake()
	ctx := context.Background()

	id, err := fake.CreateChannel(ctx, "parent", "modmail-u1", KindPrivateThread)
	require.NoError(t, err)

	_, err = fake.SendMessage(ctx, id, "hello")
	require.NoError(t, err)

	msgs, err := fake.RecentMessages(ctx, id, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, fake.EditPermissionOverwrite(ctx, id, "role-1", PermSendMessagesInThreads))
	ok, err := fake.HasPermissionOverwrite(ctx, id, "role-1", PermSendMessagesInThreads)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, fake.DeleteChannel(ctx, id))
	require.ErrorIs(t, fake.ArchiveAndLock(ctx, id), ErrNotFound)
}
