package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/channel"
	"github.com/gatewarden/gatewarden/internal/models"
	apperrors "github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/logger"
	"github.com/gatewarden/gatewarden/pkg/metrics"
)

const defaultCloseNotice = "This ticket has been closed."

// CloseTicketInput describes a request to close a ticket.
type CloseTicketInput struct {
	TicketID string
	ActorID  string
	Reason   string
}

// closeState carries the working state through the close pipeline.
type closeState struct {
	ticket     *models.ModmailTicket
	cfg        *models.GuildSettings
	actorID    string
	reason     string
	notice     string
	outcome    CloseOutcome
	transcript *TranscriptRef
}

// closeStep is one phase of the close pipeline. Only mustSucceed
// failures abort the close; everything else is logged and skipped.
type closeStep struct {
	name        string
	mustSucceed bool
	run         func(ctx context.Context, st *closeState) error
}

// Close runs the multi-phase close protocol on a ticket. Phases 1-3 and
// 5 are best-effort; only the state write is fatal, and it is retried
// once before the failure is surfaced with a trace id.
func (s *TicketService) Close(ctx context.Context, input CloseTicketInput) (*CloseResult, error) {
	ctx = ensureContext(ctx)

	ticketID := strings.TrimSpace(input.TicketID)
	actorID := strings.TrimSpace(input.ActorID)
	if ticketID == "" || actorID == "" {
		return nil, apperrors.NewBadRequest("ticket id and actor id are required")
	}

	var ticket models.ModmailTicket
	err := s.db.WithContext(ctx).First(&ticket, "id = ?", ticketID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket service: load ticket: %w", err)
	}

	if !ticket.Open() {
		return &CloseResult{Status: CloseStatusAlreadyClosed, Outcome: CloseOutcomeNone}, nil
	}

	cfg, err := s.settings.Get(ctx, ticket.GuildID)
	if err != nil {
		return nil, err
	}

	st := &closeState{
		ticket:  &ticket,
		cfg:     cfg,
		actorID: actorID,
		reason:  strings.TrimSpace(input.Reason),
		notice:  closeNoticeText(input.Reason),
		outcome: CloseOutcomeNone,
	}

	steps := []closeStep{
		{name: "notice", run: s.closeNotice},
		{name: "transcript", run: s.closeTranscript},
		{name: "channel", run: s.closeChannel},
		{name: "state", mustSucceed: true, run: s.closeCommit},
		{name: "notify", run: s.closeNotify},
	}

	for _, step := range steps {
		err := step.run(ctx, st)
		if err == nil {
			continue
		}

		if !step.mustSucceed {
			s.log.Warn("close step failed",
				zap.String("step", step.name),
				zap.String("ticket_id", ticket.ID),
				zap.Error(err),
			)
			continue
		}

		// One synchronous retry for the fatal phase.
		if err = step.run(ctx, st); err == nil {
			continue
		}

		traceID := uuid.NewString()
		logger.WithTrace("tickets", traceID).Error("ticket close failed",
			zap.String("step", step.name),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err),
		)
		return nil, apperrors.ErrTicketCloseFailed.WithTrace(traceID).WithInternal(err)
	}

	metrics.TicketCloses.WithLabelValues(string(st.outcome)).Inc()
	metrics.OpenTickets.Dec()

	return &CloseResult{
		Status:     CloseStatusClosed,
		Outcome:    st.outcome,
		Transcript: st.transcript,
	}, nil
}

// CloseForUser closes the open ticket for the pair, if any. A nil
// result with a nil error means there was nothing to close.
func (s *TicketService) CloseForUser(ctx context.Context, guildID, userID, actorID, reason string) (*CloseResult, error) {
	ctx = ensureContext(ctx)

	var ticket models.ModmailTicket
	err := s.db.WithContext(ctx).
		First(&ticket, "guild_id = ? AND user_id = ? AND status = ?",
			strings.TrimSpace(guildID), strings.TrimSpace(userID), models.TicketStatusOpen).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket service: find open ticket: %w", err)
	}

	return s.Close(ctx, CloseTicketInput{TicketID: ticket.ID, ActorID: actorID, Reason: reason})
}

// closeNotice posts the closing notice unless an identical one is
// already among the channel's recent messages.
func (s *TicketService) closeNotice(ctx context.Context, st *closeState) error {
	if st.ticket.ThreadID == nil {
		return nil
	}

	recent, err := s.api.RecentMessages(ctx, *st.ticket.ThreadID, 10)
	if err == nil {
		for _, msg := range recent {
			if msg.Content == st.notice {
				return nil
			}
		}
	}

	_, err = s.api.SendMessage(ctx, *st.ticket.ThreadID, st.notice)
	return err
}

// closeTranscript flushes the message history to the audit sink and
// remembers the pointer for the state write.
func (s *TicketService) closeTranscript(ctx context.Context, st *closeState) error {
	if s.transcripts == nil || st.ticket.ThreadID == nil {
		return nil
	}

	ref, err := s.transcripts.FlushTranscript(ctx, st.ticket)
	if err != nil {
		return err
	}
	st.transcript = ref
	return nil
}

// closeChannel walks the archive-or-delete fallback chain in strict
// order: delete (when configured), archive+lock, remove own membership.
func (s *TicketService) closeChannel(ctx context.Context, st *closeState) error {
	if st.ticket.ThreadID == nil {
		return nil
	}
	threadID := *st.ticket.ThreadID

	if st.cfg.DeleteOnClose {
		err := s.api.DeleteChannel(ctx, threadID)
		if err == nil {
			st.outcome = CloseOutcomeDelete
			return nil
		}
		if errors.Is(err, channel.ErrNotFound) {
			return nil
		}
		s.log.Debug("channel delete refused, falling back to archive",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
	}

	err := s.api.ArchiveAndLock(ctx, threadID)
	if err == nil {
		st.outcome = CloseOutcomeArchive
		return nil
	}
	if errors.Is(err, channel.ErrNotFound) {
		return nil
	}
	s.log.Debug("channel archive refused, falling back to self-removal",
		zap.String("thread_id", threadID),
		zap.Error(err),
	)

	// Last resort: hide the channel from the bot's own views. The
	// ticket still closes; the outcome stays "none" so the action log
	// shows the degraded cleanup.
	if err := s.api.RemoveSelfMembership(ctx, threadID); err != nil && !errors.Is(err, channel.ErrNotFound) {
		return err
	}
	return nil
}

// closeCommit is the one phase that must succeed: mark the ticket
// closed, release the guard row and evict the cache entry. Safe to
// re-run after a crash between the earlier phases and the commit.
func (s *TicketService) closeCommit(ctx context.Context, st *closeState) error {
	closedAt := s.now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":    models.TicketStatusClosed,
			"closed_at": closedAt,
		}
		if st.transcript != nil {
			updates["log_channel_id"] = st.transcript.ChannelID
			updates["log_message_id"] = st.transcript.MessageID
		}
		if err := tx.Model(&models.ModmailTicket{}).
			Where("id = ?", st.ticket.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("ticket service: close ticket: %w", err)
		}

		if err := tx.Delete(&models.TicketGuard{},
			"guild_id = ? AND user_id = ?", st.ticket.GuildID, st.ticket.UserID).Error; err != nil {
			return fmt.Errorf("ticket service: release guard: %w", err)
		}

		meta := map[string]any{"outcome": string(st.outcome)}
		if st.ticket.ThreadID != nil {
			meta["thread_id"] = *st.ticket.ThreadID
		}
		if st.transcript != nil {
			meta["transcript_message_id"] = st.transcript.MessageID
			meta["transcript_lines"] = st.transcript.Lines
		}
		entry := ActionEntry{
			GuildID: st.ticket.GuildID,
			ActorID: st.actorID,
			Action:  models.ActionTicketClose,
			Reason:  st.reason,
			Meta:    meta,
		}
		if _, err := s.actions.AppendTx(tx, entry); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.index.remove(st.ticket.GuildID, st.ticket.UserID)
	return nil
}

// closeNotify delivers the best-effort post-close notifications.
func (s *TicketService) closeNotify(ctx context.Context, st *closeState) error {
	message := defaultCloseNotice
	if st.reason != "" {
		message = fmt.Sprintf("Your ticket has been closed: %s", st.reason)
	}
	if err := s.api.SendDirectMessage(ctx, st.ticket.UserID, message); err != nil {
		s.log.Debug("close DM failed",
			zap.String("user_id", st.ticket.UserID),
			zap.Error(err),
		)
	}

	if s.refresh != nil {
		s.refresh.RefreshReview(ctx, st.ticket.GuildID, st.ticket.UserID)
	}
	return nil
}

func closeNoticeText(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return defaultCloseNotice
	}
	return fmt.Sprintf("%s Reason: %s", defaultCloseNotice, reason)
}
