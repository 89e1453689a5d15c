package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/gatewarden/gatewarden/internal/channel"
	"github.com/gatewarden/gatewarden/internal/models"
)

const transcriptFetchLimit = 100

// ChannelTranscriptSink flushes a ticket's recent message history into
// the guild's configured log channel.
type ChannelTranscriptSink struct {
	api      channel.API
	settings *GuildSettingsService
}

// NewChannelTranscriptSink constructs the default transcript sink.
func NewChannelTranscriptSink(api channel.API, settings *GuildSettingsService) *ChannelTranscriptSink {
	return &ChannelTranscriptSink{api: api, settings: settings}
}

var _ TranscriptSink = (*ChannelTranscriptSink)(nil)

// FlushTranscript renders the ticket's message history and posts it to
// the log channel, returning a pointer to the posted message. Returns
// nil without error when the guild has no log channel configured.
func (s *ChannelTranscriptSink) FlushTranscript(ctx context.Context, ticket *models.ModmailTicket) (*TranscriptRef, error) {
	if ticket.ThreadID == nil {
		return nil, nil
	}

	cfg, err := s.settings.Get(ctx, ticket.GuildID)
	if err != nil {
		return nil, err
	}
	if cfg.LogChannelID == "" {
		return nil, nil
	}

	messages, err := s.api.RecentMessages(ctx, *ticket.ThreadID, transcriptFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("transcript: fetch messages: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transcript for ticket %s (user %s)\n", ticket.ID, ticket.UserID)
	// RecentMessages is newest first; render oldest first.
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		fmt.Fprintf(&b, "[%s] %s: %s\n", msg.CreatedAt.UTC().Format("2006-01-02 15:04:05"), msg.AuthorID, msg.Content)
	}

	messageID, err := s.api.SendMessage(ctx, cfg.LogChannelID, b.String())
	if err != nil {
		return nil, fmt.Errorf("transcript: post transcript: %w", err)
	}

	return &TranscriptRef{
		ChannelID: cfg.LogChannelID,
		MessageID: messageID,
		Lines:     len(messages),
	}, nil
}
