package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/models"
)

// ActionEntry captures a single review action to append to the log.
type ActionEntry struct {
	AppID   string
	GuildID string
	ActorID string
	Action  string
	Reason  string
	Meta    map[string]any
}

// ActionFilters encapsulates optional filters when querying the action log.
type ActionFilters struct {
	AppID   string
	GuildID string
	ActorID string
	Action  string
	Since   *time.Time
	Until   *time.Time
}

// ActionListOptions controls pagination and filtering for log queries.
type ActionListOptions struct {
	Page     int
	PageSize int
	Filters  ActionFilters
}

// ReviewLogService appends to and reads the append-only moderation log.
// Entries are never updated or deleted.
type ReviewLogService struct {
	db *gorm.DB
}

// NewReviewLogService constructs a ReviewLogService using the provided database handle.
func NewReviewLogService(db *gorm.DB) (*ReviewLogService, error) {
	if db == nil {
		return nil, errors.New("review log service: db is required")
	}
	return &ReviewLogService{db: db}, nil
}

// Append stores a log entry and returns its id.
func (s *ReviewLogService) Append(ctx context.Context, entry ActionEntry) (string, error) {
	ctx = ensureContext(ctx)
	return appendAction(s.db.WithContext(ctx), entry)
}

// AppendTx stores a log entry inside an existing transaction so the
// entry commits atomically with the state change it records.
func (s *ReviewLogService) AppendTx(tx *gorm.DB, entry ActionEntry) (string, error) {
	return appendAction(tx, entry)
}

func appendAction(db *gorm.DB, entry ActionEntry) (string, error) {
	if strings.TrimSpace(entry.GuildID) == "" {
		return "", errors.New("review log service: guild id is required")
	}
	if strings.TrimSpace(entry.ActorID) == "" {
		return "", errors.New("review log service: actor id is required")
	}
	if strings.TrimSpace(entry.Action) == "" {
		return "", errors.New("review log service: action is required")
	}

	action := models.ReviewAction{
		GuildID: strings.TrimSpace(entry.GuildID),
		ActorID: strings.TrimSpace(entry.ActorID),
		Action:  strings.TrimSpace(entry.Action),
		Reason:  strings.TrimSpace(entry.Reason),
	}

	if appID := strings.TrimSpace(entry.AppID); appID != "" {
		action.AppID = &appID
	}

	if entry.Meta != nil {
		encoded, err := json.Marshal(entry.Meta)
		if err != nil {
			return "", fmt.Errorf("review log service: marshal meta: %w", err)
		}
		action.Meta = datatypes.JSON(encoded)
	}

	if err := db.Create(&action).Error; err != nil {
		return "", fmt.Errorf("review log service: append: %w", err)
	}

	return action.ID, nil
}

// List returns paginated log entries ordered by creation time descending.
func (s *ReviewLogService) List(ctx context.Context, opts ActionListOptions) ([]models.ReviewAction, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.ReviewAction
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.ReviewAction{})
	query = applyActionFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("review log service: count: %w", err)
	}

	if err := query.
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("review log service: list: %w", err)
	}

	return results, total, nil
}

// CleanupOlderThan removes entries older than the retention window. It
// exists for operators with a hard retention requirement; by default the
// log is kept forever.
func (s *ReviewLogService) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	ctx = ensureContext(ctx)

	if days <= 0 {
		return 0, errors.New("review log service: retention days must be positive")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.ReviewAction{})
	if res.Error != nil {
		return 0, fmt.Errorf("review log service: cleanup: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func applyActionFilters(query *gorm.DB, filters ActionFilters) *gorm.DB {
	if v := strings.TrimSpace(filters.AppID); v != "" {
		query = query.Where("app_id = ?", v)
	}
	if v := strings.TrimSpace(filters.GuildID); v != "" {
		query = query.Where("guild_id = ?", v)
	}
	if v := strings.TrimSpace(filters.ActorID); v != "" {
		query = query.Where("actor_id = ?", v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		query = query.Where("action = ?", v)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", filters.Since.UTC())
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", filters.Until.UTC())
	}
	return query
}
