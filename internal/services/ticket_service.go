package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gatewarden/gatewarden/internal/channel"
	"github.com/gatewarden/gatewarden/internal/models"
	apperrors "github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/logger"
	"github.com/gatewarden/gatewarden/pkg/metrics"
)

// TranscriptRef points at the archived transcript of a closed ticket.
type TranscriptRef struct {
	ChannelID string
	MessageID string
	Lines     int
}

// TranscriptSink hands off a ticket's message history to the audit log.
type TranscriptSink interface {
	FlushTranscript(ctx context.Context, ticket *models.ModmailTicket) (*TranscriptRef, error)
}

// ReviewRefresher refreshes dependent review UI after lifecycle events.
// Injected at construction so the ticket and decision services stay
// decoupled from the presentation layer.
type ReviewRefresher interface {
	RefreshReview(ctx context.Context, guildID, userID string)
}

// OpenStatus tags the outcome of an open attempt.
type OpenStatus string

const (
	OpenStatusCreated OpenStatus = "created"
	OpenStatusAlready OpenStatus = "already"
	OpenStatusPending OpenStatus = "pending"
)

// OpenResult reports an open attempt. ThreadID is set for Created and
// Already outcomes.
type OpenResult struct {
	Status   OpenStatus
	Ticket   *models.ModmailTicket
	ThreadID string
}

// CloseOutcome records what happened to the external channel on close.
type CloseOutcome string

const (
	CloseOutcomeDelete  CloseOutcome = "delete"
	CloseOutcomeArchive CloseOutcome = "archive"
	CloseOutcomeNone    CloseOutcome = "none"
)

// CloseStatus tags the outcome of a close attempt.
type CloseStatus string

const (
	CloseStatusClosed        CloseStatus = "closed"
	CloseStatusAlreadyClosed CloseStatus = "already_closed"
)

// CloseResult reports a close attempt.
type CloseResult struct {
	Status     CloseStatus
	Outcome    CloseOutcome
	Transcript *TranscriptRef
}

// TicketService owns the modmail ticket lifecycle. Ticket creation is
// serialised per (guild, user) by the ticket_guards row: its composite
// primary key is the mutex, held from the moment the local transaction
// commits the "pending" sentinel until close or compensating cleanup.
type TicketService struct {
	db          *gorm.DB
	api         channel.API
	actions     *ReviewLogService
	settings    *GuildSettingsService
	transcripts TranscriptSink
	refresh     ReviewRefresher
	index       *openTicketIndex
	log         *zap.Logger
	now         func() time.Time
}

// TicketOption customises the TicketService.
type TicketOption func(*TicketService)

// WithTranscriptSink wires the transcript collaborator.
func WithTranscriptSink(sink TranscriptSink) TicketOption {
	return func(s *TicketService) {
		s.transcripts = sink
	}
}

// WithReviewRefresher wires the review UI refresh callback.
func WithReviewRefresher(refresh ReviewRefresher) TicketOption {
	return func(s *TicketService) {
		s.refresh = refresh
	}
}

// WithTicketClock overrides the clock, primarily for tests.
func WithTicketClock(now func() time.Time) TicketOption {
	return func(s *TicketService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTicketService constructs a TicketService.
func NewTicketService(db *gorm.DB, api channel.API, actions *ReviewLogService, settings *GuildSettingsService, opts ...TicketOption) (*TicketService, error) {
	if db == nil {
		return nil, errors.New("ticket service: db is required")
	}
	if api == nil {
		return nil, errors.New("ticket service: channel api is required")
	}
	if actions == nil {
		return nil, errors.New("ticket service: review log is required")
	}
	if settings == nil {
		return nil, errors.New("ticket service: guild settings are required")
	}

	s := &TicketService{
		db:       db,
		api:      api,
		actions:  actions,
		settings: settings,
		index:    newOpenTicketIndex(),
		log:      logger.WithModule("tickets"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RebuildIndex reloads the advisory open-ticket cache from the store.
// Called once at process start.
func (s *TicketService) RebuildIndex(ctx context.Context) error {
	ctx = ensureContext(ctx)
	if err := s.index.rebuild(s.db.WithContext(ctx)); err != nil {
		return fmt.Errorf("ticket service: rebuild index: %w", err)
	}
	metrics.OpenTickets.Set(float64(s.index.count()))
	return nil
}

// CachedThread reports the cached open thread for the pair, if any. The
// cache is advisory; Open and Close consult the guard table instead.
func (s *TicketService) CachedThread(guildID, userID string) (string, bool) {
	return s.index.lookup(guildID, userID)
}

// ListOpen returns the guild's open tickets, newest first.
func (s *TicketService) ListOpen(ctx context.Context, guildID string) ([]models.ModmailTicket, error) {
	return s.List(ctx, guildID, models.TicketStatusOpen)
}

// List returns the guild's tickets filtered by status, newest first. An
// empty status returns every ticket.
func (s *TicketService) List(ctx context.Context, guildID string, status models.TicketStatus) ([]models.ModmailTicket, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).
		Where("guild_id = ?", strings.TrimSpace(guildID))
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var tickets []models.ModmailTicket
	if err := query.Order("created_at DESC").Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("ticket service: list: %w", err)
	}
	return tickets, nil
}

// OpenTicketInput describes a request to open a ticket.
type OpenTicketInput struct {
	GuildID string
	UserID  string
	ActorID string
	AppCode string
}

// Open creates a ticket and its external channel for the pair, or
// reports the existing/pending one. Exactly one concurrent caller per
// (guild, user) reaches the external create; everyone else gets a
// deterministic Already or Pending result.
func (s *TicketService) Open(ctx context.Context, input OpenTicketInput) (*OpenResult, error) {
	ctx = ensureContext(ctx)

	guildID := strings.TrimSpace(input.GuildID)
	userID := strings.TrimSpace(input.UserID)
	actorID := strings.TrimSpace(input.ActorID)
	if guildID == "" || userID == "" || actorID == "" {
		return nil, apperrors.NewBadRequest("guild id, user id and actor id are required")
	}

	// Fast path: no writes when a guard row already exists.
	if guard, err := s.readGuard(ctx, guildID, userID); err != nil {
		return nil, err
	} else if guard != nil {
		result := resultFromGuard(guard)
		metrics.TicketOpens.WithLabelValues(string(result.Status)).Inc()
		return result, nil
	}

	cfg, err := s.settings.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}

	// Acquire the guard. The re-read inside the transaction is the
	// authoritative one; the primary key breaks any remaining tie.
	ticket, raced, err := s.acquireGuard(ctx, guildID, userID, input.AppCode, cfg)
	if err != nil {
		return nil, err
	}
	if raced != nil {
		metrics.TicketOpens.WithLabelValues(string(raced.Status)).Inc()
		return raced, nil
	}

	// Unsafe window: the guard is held but the channel does not exist
	// yet. Never enter this with a transaction open.
	name := ticketChannelName(userID, input.AppCode)
	threadID, err := s.api.CreateChannel(ctx, cfg.TicketParentID, name, channel.KindPrivateThread)
	if err != nil {
		s.compensateOpen(ctx, ticket)
		traceID := uuid.NewString()
		logger.WithTrace("tickets", traceID).Error("channel creation failed",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		metrics.TicketOpens.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrTicketCreateFailed.WithTrace(traceID).WithInternal(err)
	}

	if err := s.finalizeOpen(ctx, ticket, threadID, actorID); err != nil {
		// The channel exists but the store could not record it; tear
		// both down so a retry starts clean.
		if delErr := s.api.DeleteChannel(ctx, threadID); delErr != nil {
			s.log.Warn("orphaned channel cleanup failed",
				zap.String("thread_id", threadID),
				zap.Error(delErr),
			)
		}
		s.compensateOpen(ctx, ticket)
		traceID := uuid.NewString()
		logger.WithTrace("tickets", traceID).Error("ticket finalisation failed",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		metrics.TicketOpens.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrTicketCreateFailed.WithTrace(traceID).WithInternal(err)
	}

	ticket.ThreadID = &threadID
	s.index.set(guildID, userID, threadID)
	metrics.TicketOpens.WithLabelValues(string(OpenStatusCreated)).Inc()
	metrics.OpenTickets.Inc()

	return &OpenResult{Status: OpenStatusCreated, Ticket: ticket, ThreadID: threadID}, nil
}

func (s *TicketService) readGuard(ctx context.Context, guildID, userID string) (*models.TicketGuard, error) {
	var guard models.TicketGuard
	err := s.db.WithContext(ctx).First(&guard, "guild_id = ? AND user_id = ?", guildID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket service: read guard: %w", err)
	}
	return &guard, nil
}

func resultFromGuard(guard *models.TicketGuard) *OpenResult {
	if guard.Pending() {
		return &OpenResult{Status: OpenStatusPending}
	}
	return &OpenResult{Status: OpenStatusAlready, ThreadID: guard.ThreadID}
}

// acquireGuard inserts the ticket row and the pending guard row in one
// transaction. A non-nil raced result means another writer won.
func (s *TicketService) acquireGuard(ctx context.Context, guildID, userID, appCode string, cfg *models.GuildSettings) (*models.ModmailTicket, *OpenResult, error) {
	var (
		ticket models.ModmailTicket
		raced  *OpenResult
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.TicketGuard
		err := tx.First(&existing, "guild_id = ? AND user_id = ?", guildID, userID).Error
		if err == nil {
			raced = resultFromGuard(&existing)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("ticket service: read guard: %w", err)
		}

		ticket = models.ModmailTicket{
			GuildID: guildID,
			UserID:  userID,
			Status:  models.TicketStatusOpen,
		}
		if code := strings.TrimSpace(appCode); code != "" {
			ticket.AppCode = &code
		}
		if parent := strings.TrimSpace(cfg.TicketParentID); parent != "" {
			ticket.ParentID = &parent
		}
		if err := tx.Create(&ticket).Error; err != nil {
			return fmt.Errorf("ticket service: create ticket: %w", err)
		}

		guard := models.TicketGuard{
			GuildID:  guildID,
			UserID:   userID,
			ThreadID: models.GuardThreadPending,
		}
		if err := tx.Create(&guard).Error; err != nil {
			if isUniqueConstraintError(err) {
				// Lost the tie-break; the winner's guard row decides.
				if readErr := tx.First(&existing, "guild_id = ? AND user_id = ?", guildID, userID).Error; readErr == nil {
					raced = resultFromGuard(&existing)
				} else {
					raced = &OpenResult{Status: OpenStatusPending}
				}
				return errAbortOpen
			}
			return fmt.Errorf("ticket service: create guard: %w", err)
		}

		return nil
	})
	if errors.Is(err, errAbortOpen) {
		return nil, raced, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if raced != nil {
		return nil, raced, nil
	}

	return &ticket, nil, nil
}

// errAbortOpen rolls back the ticket insert after a lost guard race.
var errAbortOpen = errors.New("ticket service: open raced")

// finalizeOpen records the real channel id, replacing the guard's
// pending sentinel. Idempotent: the guard upsert converges on the same
// thread id if re-run.
func (s *TicketService) finalizeOpen(ctx context.Context, ticket *models.ModmailTicket, threadID, actorID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ModmailTicket{}).
			Where("id = ?", ticket.ID).
			Update("thread_id", threadID).Error; err != nil {
			return fmt.Errorf("ticket service: record thread: %w", err)
		}

		guard := models.TicketGuard{
			GuildID:  ticket.GuildID,
			UserID:   ticket.UserID,
			ThreadID: threadID,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"thread_id": threadID}),
		}).Create(&guard).Error; err != nil {
			return fmt.Errorf("ticket service: finalise guard: %w", err)
		}

		meta := map[string]any{"thread_id": threadID}
		if ticket.AppCode != nil {
			meta["app_code"] = *ticket.AppCode
		}
		entry := ActionEntry{
			GuildID: ticket.GuildID,
			ActorID: actorID,
			Action:  models.ActionTicketOpen,
			Meta:    meta,
		}
		if _, err := s.actions.AppendTx(tx, entry); err != nil {
			return err
		}

		return nil
	})
}

// compensateOpen removes the guard row (and, best-effort, the ticket
// row) after a failed open so the pair is not locked out forever.
func (s *TicketService) compensateOpen(ctx context.Context, ticket *models.ModmailTicket) {
	if err := s.db.WithContext(ctx).
		Delete(&models.TicketGuard{}, "guild_id = ? AND user_id = ?", ticket.GuildID, ticket.UserID).Error; err != nil {
		// A stuck guard row locks the pair out permanently; shout.
		s.log.Error("guard compensation failed",
			zap.String("guild_id", ticket.GuildID),
			zap.String("user_id", ticket.UserID),
			zap.Error(err),
		)
	}

	if err := s.db.WithContext(ctx).
		Delete(&models.ModmailTicket{}, "id = ?", ticket.ID).Error; err != nil {
		s.log.Warn("ticket row compensation failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err),
		)
	}
}

func ticketChannelName(userID, appCode string) string {
	if code := strings.TrimSpace(appCode); code != "" {
		return "modmail-" + strings.ToLower(code)
	}
	return "modmail-" + userID
}
