package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/models"
	apperrors "github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/logger"
	"github.com/gatewarden/gatewarden/pkg/metrics"
)

// DecisionStatus tags the outcome of a decision attempt.
type DecisionStatus string

const (
	DecisionStatusOK             DecisionStatus = "ok"
	DecisionStatusAlready        DecisionStatus = "already"
	DecisionStatusClaimedByOther DecisionStatus = "claimed_by_other"
	DecisionStatusNotFound       DecisionStatus = "not_found"
)

// DecisionResult reports a decision attempt. ActionID references the
// review-log entry written for a successful decision.
type DecisionResult struct {
	Status   DecisionStatus
	ActionID string
	HolderID string
	Message  string
}

// ApplyDecisionInput describes a decision to apply.
type ApplyDecisionInput struct {
	AppID    string
	ActorID  string
	Decision models.Decision
	Reason   string
}

// DecisionService applies terminal decisions to applications. The
// decision transaction is the durable fact of record; closing any open
// ticket for the applicant is an out-of-band side effect that never
// rolls the decision back.
type DecisionService struct {
	db       *gorm.DB
	claims   *ClaimService
	tickets  *TicketService
	actions  *ReviewLogService
	settings *GuildSettingsService
	refresh  ReviewRefresher
	log      *zap.Logger
	now      func() time.Time
}

// DecisionOption customises the DecisionService.
type DecisionOption func(*DecisionService)

// WithDecisionRefresher wires the review UI refresh callback.
func WithDecisionRefresher(refresh ReviewRefresher) DecisionOption {
	return func(s *DecisionService) {
		s.refresh = refresh
	}
}

// WithDecisionClock overrides the clock, primarily for tests.
func WithDecisionClock(now func() time.Time) DecisionOption {
	return func(s *DecisionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDecisionService constructs a DecisionService.
func NewDecisionService(db *gorm.DB, claims *ClaimService, tickets *TicketService, actions *ReviewLogService, settings *GuildSettingsService, opts ...DecisionOption) (*DecisionService, error) {
	if db == nil {
		return nil, errors.New("decision service: db is required")
	}
	if claims == nil {
		return nil, errors.New("decision service: claim service is required")
	}
	if tickets == nil {
		return nil, errors.New("decision service: ticket service is required")
	}
	if actions == nil {
		return nil, errors.New("decision service: review log is required")
	}
	if settings == nil {
		return nil, errors.New("decision service: guild settings are required")
	}

	s := &DecisionService{
		db:       db,
		claims:   claims,
		tickets:  tickets,
		actions:  actions,
		settings: settings,
		log:      logger.WithModule("decisions"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ApplyDecision moves an application to a terminal status and appends
// the review-log entry, then closes any open ticket for the applicant.
func (s *DecisionService) ApplyDecision(ctx context.Context, input ApplyDecisionInput) (*DecisionResult, error) {
	ctx = ensureContext(ctx)

	appID := strings.TrimSpace(input.AppID)
	actorID := strings.TrimSpace(input.ActorID)
	if appID == "" || actorID == "" {
		return nil, apperrors.NewBadRequest("application id and actor id are required")
	}
	if !input.Decision.Valid() {
		return nil, apperrors.NewBadRequest("unknown decision")
	}

	var app models.Application
	err := s.db.WithContext(ctx).First(&app, "id = ?", appID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DecisionResult{Status: DecisionStatusNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decision service: load application: %w", err)
	}

	denial, err := s.claims.RequireClaimOrBypass(ctx, appID, actorID)
	if err != nil {
		return nil, err
	}
	if denial != nil {
		return &DecisionResult{
			Status:   DecisionStatusClaimedByOther,
			HolderID: denial.HolderID,
			Message:  denial.Message,
		}, nil
	}

	var result DecisionResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Application
		if err := tx.First(&current, "id = ?", appID).Error; err != nil {
			return fmt.Errorf("decision service: reload application: %w", err)
		}
		if current.Status.Terminal() {
			result = DecisionResult{Status: DecisionStatusAlready}
			return nil
		}

		decidedAt := s.now().UTC()
		updates := map[string]any{
			"status":          input.Decision.Status(),
			"decided_at":      decidedAt,
			"decided_by":      actorID,
			"decision_reason": strings.TrimSpace(input.Reason),
		}
		if err := tx.Model(&models.Application{}).
			Where("id = ?", appID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("decision service: update status: %w", err)
		}

		// The claim, if any, dies with the decision.
		if err := tx.Delete(&models.Claim{}, "app_id = ?", appID).Error; err != nil {
			return fmt.Errorf("decision service: release claim: %w", err)
		}

		actionID, err := s.actions.AppendTx(tx, ActionEntry{
			AppID:   appID,
			GuildID: current.GuildID,
			ActorID: actorID,
			Action:  input.Decision.Action(),
			Reason:  input.Reason,
			Meta:    map[string]any{"user_id": current.UserID},
		})
		if err != nil {
			return err
		}

		result = DecisionResult{Status: DecisionStatusOK, ActionID: actionID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Status != DecisionStatusOK {
		return &result, nil
	}

	metrics.Decisions.WithLabelValues(string(input.Decision)).Inc()

	// Out of band: the decision is already durable; ticket cleanup must
	// never undo or fail it.
	s.closeTicketAfterDecision(ctx, &app, actorID, input.Reason)

	if s.refresh != nil {
		s.refresh.RefreshReview(ctx, app.GuildID, app.UserID)
	}

	return &result, nil
}

func (s *DecisionService) closeTicketAfterDecision(ctx context.Context, app *models.Application, actorID, reason string) {
	cfg, err := s.settings.Get(ctx, app.GuildID)
	if err != nil {
		s.log.Warn("settings lookup failed during post-decision cleanup",
			zap.String("guild_id", app.GuildID),
			zap.Error(err),
		)
		return
	}
	if !cfg.AutoCloseOnDecision {
		return
	}

	closed, err := s.tickets.CloseForUser(ctx, app.GuildID, app.UserID, actorID, reason)
	if err != nil {
		s.log.Error("post-decision ticket close failed",
			zap.String("guild_id", app.GuildID),
			zap.String("user_id", app.UserID),
			zap.Error(err),
		)
		return
	}
	if closed != nil {
		s.log.Info("closed ticket after decision",
			zap.String("guild_id", app.GuildID),
			zap.String("user_id", app.UserID),
			zap.String("outcome", string(closed.Outcome)),
		)
	}
}
