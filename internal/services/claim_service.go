package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/models"
	apperrors "github.com/gatewarden/gatewarden/pkg/errors"
)

// ClaimStatus tags the outcome of a claim attempt.
type ClaimStatus string

const (
	ClaimStatusOK             ClaimStatus = "ok"
	ClaimStatusAlreadyClaimed ClaimStatus = "already_claimed"
)

// ClaimResult reports a claim attempt. HolderID is set when the
// application is already claimed, including by the caller themselves.
type ClaimResult struct {
	Status    ClaimStatus
	HolderID  string
	ClaimedAt time.Time
}

// UnclaimStatus tags the outcome of an unclaim attempt.
type UnclaimStatus string

const (
	UnclaimStatusOK             UnclaimStatus = "ok"
	UnclaimStatusNotClaimed     UnclaimStatus = "not_claimed"
	UnclaimStatusClaimedByOther UnclaimStatus = "claimed_by_other"
)

// UnclaimResult reports an unclaim attempt.
type UnclaimResult struct {
	Status   UnclaimStatus
	HolderID string
}

// Denial explains why an actor may not act on a claimed application.
type Denial struct {
	HolderID string
	Message  string
}

// ClaimService hands out per-application exclusive claims so only one
// reviewer acts on a pending application at a time. The claims table's
// primary key on app_id makes concurrent claim attempts lose
// deterministically instead of racing.
type ClaimService struct {
	db      *gorm.DB
	actions *ReviewLogService
	owners  map[string]struct{}
	now     func() time.Time
}

// NewClaimService constructs a ClaimService. ownerIDs are the bot
// owners allowed to bypass another reviewer's claim.
func NewClaimService(db *gorm.DB, actions *ReviewLogService, ownerIDs []string) (*ClaimService, error) {
	if db == nil {
		return nil, errors.New("claim service: db is required")
	}
	if actions == nil {
		return nil, errors.New("claim service: review log is required")
	}

	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range normaliseIDs(ownerIDs) {
		owners[id] = struct{}{}
	}

	return &ClaimService{
		db:      db,
		actions: actions,
		owners:  owners,
		now:     time.Now,
	}, nil
}

// Claim acquires the exclusive claim on an application for the reviewer.
func (s *ClaimService) Claim(ctx context.Context, appID, reviewerID string) (*ClaimResult, error) {
	ctx = ensureContext(ctx)

	appID = strings.TrimSpace(appID)
	reviewerID = strings.TrimSpace(reviewerID)
	if appID == "" || reviewerID == "" {
		return nil, apperrors.NewBadRequest("application id and reviewer id are required")
	}

	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.Status.Terminal() {
		return nil, apperrors.NewBadRequest("application has already been decided")
	}

	var result ClaimResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Claim
		err := tx.First(&existing, "app_id = ?", appID).Error
		if err == nil {
			result = ClaimResult{
				Status:    ClaimStatusAlreadyClaimed,
				HolderID:  existing.ReviewerID,
				ClaimedAt: existing.ClaimedAt,
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("claim service: read claim: %w", err)
		}

		claim := models.Claim{
			AppID:      appID,
			ReviewerID: reviewerID,
			ClaimedAt:  s.now().UTC(),
		}
		if err := tx.Create(&claim).Error; err != nil {
			if isUniqueConstraintError(err) {
				// Lost the race between the read and the insert; the
				// winner's row is authoritative.
				if readErr := tx.First(&existing, "app_id = ?", appID).Error; readErr == nil {
					result = ClaimResult{
						Status:    ClaimStatusAlreadyClaimed,
						HolderID:  existing.ReviewerID,
						ClaimedAt: existing.ClaimedAt,
					}
					return nil
				}
			}
			return fmt.Errorf("claim service: create claim: %w", err)
		}

		if _, err := s.actions.AppendTx(tx, ActionEntry{
			AppID:   appID,
			GuildID: app.GuildID,
			ActorID: reviewerID,
			Action:  models.ActionClaim,
		}); err != nil {
			return err
		}

		result = ClaimResult{Status: ClaimStatusOK, HolderID: reviewerID, ClaimedAt: claim.ClaimedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Unclaim releases a claim. Holders and bot owners may release; a second
// release by the same actor reports NotClaimed without error.
func (s *ClaimService) Unclaim(ctx context.Context, appID, actorID string) (*UnclaimResult, error) {
	ctx = ensureContext(ctx)

	appID = strings.TrimSpace(appID)
	actorID = strings.TrimSpace(actorID)
	if appID == "" || actorID == "" {
		return nil, apperrors.NewBadRequest("application id and actor id are required")
	}

	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}

	var result UnclaimResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Claim
		err := tx.First(&existing, "app_id = ?", appID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = UnclaimResult{Status: UnclaimStatusNotClaimed}
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim service: read claim: %w", err)
		}

		if existing.ReviewerID != actorID && !s.isOwner(actorID) {
			result = UnclaimResult{Status: UnclaimStatusClaimedByOther, HolderID: existing.ReviewerID}
			return nil
		}

		if err := tx.Delete(&models.Claim{}, "app_id = ?", appID).Error; err != nil {
			return fmt.Errorf("claim service: delete claim: %w", err)
		}

		if _, err := s.actions.AppendTx(tx, ActionEntry{
			AppID:   appID,
			GuildID: app.GuildID,
			ActorID: actorID,
			Action:  models.ActionUnclaim,
			Meta:    map[string]any{"holder_id": existing.ReviewerID},
		}); err != nil {
			return err
		}

		result = UnclaimResult{Status: UnclaimStatusOK, HolderID: existing.ReviewerID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// RequireClaimOrBypass checks whether the actor may act on the
// application. A nil Denial means allowed: either no claim exists, the
// actor holds it, or the actor is a bot owner.
func (s *ClaimService) RequireClaimOrBypass(ctx context.Context, appID, actorID string) (*Denial, error) {
	ctx = ensureContext(ctx)

	appID = strings.TrimSpace(appID)
	actorID = strings.TrimSpace(actorID)
	if appID == "" || actorID == "" {
		return nil, apperrors.NewBadRequest("application id and actor id are required")
	}

	if s.isOwner(actorID) {
		return nil, nil
	}

	var existing models.Claim
	err := s.db.WithContext(ctx).First(&existing, "app_id = ?", appID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim service: read claim: %w", err)
	}

	if existing.ReviewerID == actorID {
		return nil, nil
	}

	return &Denial{
		HolderID: existing.ReviewerID,
		Message:  fmt.Sprintf("This application is claimed by <@%s>.", existing.ReviewerID),
	}, nil
}

func (s *ClaimService) isOwner(actorID string) bool {
	_, ok := s.owners[actorID]
	return ok
}

func (s *ClaimService) loadApplication(ctx context.Context, appID string) (*models.Application, error) {
	var app models.Application
	err := s.db.WithContext(ctx).First(&app, "id = ?", appID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim service: load application: %w", err)
	}
	return &app, nil
}
