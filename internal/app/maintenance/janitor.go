package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/models"
	"github.com/gatewarden/gatewarden/internal/services"
	"github.com/gatewarden/gatewarden/pkg/logger"
)

const (
	defaultStaleThreshold   = 15 * time.Minute
	defaultReconcileSpec    = "@hourly"
	defaultStalePendingSpec = "@every 10m"
	defaultRetentionSpec    = "@daily"
)

// Janitor coordinates background maintenance: repairing moderator
// permissions, sweeping stale creation sentinels, and optionally
// pruning the review log.
type Janitor struct {
	db         *gorm.DB
	reconciler *services.ReconcilerService
	actions    *services.ReviewLogService
	cron       *cron.Cron
	now        func() time.Time
	log        *zap.Logger
	enabled    bool

	staleThreshold time.Duration
	retention      int

	reconcileSchedule string
	staleSchedule     string
	retentionSchedule string
}

// Option customises the Janitor.
type Option func(*Janitor)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(j *Janitor) {
		if c != nil {
			j.cron = c
		}
	}
}

// WithNow overrides the clock used for staleness comparisons.
func WithNow(now func() time.Time) Option {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

// WithStaleThreshold adjusts how old a pending sentinel must be before
// the sweep reclaims it.
func WithStaleThreshold(d time.Duration) Option {
	return func(j *Janitor) {
		if d > 0 {
			j.staleThreshold = d
		}
	}
}

// WithRetentionDays enables review-log pruning. Zero keeps the log forever.
func WithRetentionDays(days int) Option {
	return func(j *Janitor) {
		if days > 0 {
			j.retention = days
		}
	}
}

// WithReconcileSchedule overrides the cron specification for the permission repair run.
func WithReconcileSchedule(spec string) Option {
	return func(j *Janitor) {
		if spec != "" {
			j.reconcileSchedule = spec
		}
	}
}

// WithStaleSchedule overrides the cron specification for the sentinel sweep.
func WithStaleSchedule(spec string) Option {
	return func(j *Janitor) {
		if spec != "" {
			j.staleSchedule = spec
		}
	}
}

// WithRetentionSchedule overrides the cron specification for review-log pruning.
func WithRetentionSchedule(spec string) Option {
	return func(j *Janitor) {
		if spec != "" {
			j.retentionSchedule = spec
		}
	}
}

// NewJanitor constructs a Janitor with sensible defaults. Any nil
// dependency results in the corresponding job being skipped.
func NewJanitor(db *gorm.DB, reconciler *services.ReconcilerService, actions *services.ReviewLogService, opts ...Option) *Janitor {
	j := &Janitor{
		db:                db,
		reconciler:        reconciler,
		actions:           actions,
		now:               time.Now,
		staleThreshold:    defaultStaleThreshold,
		reconcileSchedule: defaultReconcileSpec,
		staleSchedule:     defaultStalePendingSpec,
		retentionSchedule: defaultRetentionSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(j)
	}

	if j.cron == nil {
		j.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	j.enabled = j.reconciler != nil || j.db != nil || j.actions != nil

	return j
}

// Start registers the maintenance jobs with the cron scheduler and
// launches it if at least one job is enabled.
func (j *Janitor) Start() error {
	if !j.enabled {
		return nil
	}

	if j.reconciler != nil {
		if _, err := j.cron.AddFunc(j.reconcileSchedule, func() {
			ctx := context.Background()
			if _, err := j.reconciler.ReconcileAll(ctx); err != nil {
				j.log.Warn("scheduled reconcile reported failures", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if j.db != nil {
		if _, err := j.cron.AddFunc(j.staleSchedule, func() {
			ctx := context.Background()
			stats, err := SweepStalePending(ctx, j.db, j.staleThreshold, j.now())
			if err != nil {
				j.log.Warn("stale sentinel sweep failed", zap.Error(err))
				return
			}
			if stats.Guards > 0 {
				j.log.Info("reclaimed stale sentinels",
					zap.Int64("guards", stats.Guards),
					zap.Int64("tickets", stats.Tickets),
				)
			}
		}); err != nil {
			return err
		}
	}

	if j.actions != nil && j.retention > 0 {
		if _, err := j.cron.AddFunc(j.retentionSchedule, func() {
			ctx := context.Background()
			if _, err := j.actions.CleanupOlderThan(ctx, j.retention); err != nil {
				j.log.Warn("review log pruning failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	j.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (j *Janitor) Stop() context.Context {
	if j.cron == nil {
		return context.Background()
	}
	return j.cron.Stop()
}

// RunOnce executes all configured maintenance routines sequentially.
// Used at startup and during graceful shutdown.
func (j *Janitor) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if j.reconciler != nil {
		if _, err := j.reconciler.ReconcileAll(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if j.db != nil {
		if _, err := SweepStalePending(ctx, j.db, j.staleThreshold, j.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if j.actions != nil && j.retention > 0 {
		if _, err := j.actions.CleanupOlderThan(ctx, j.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// SweepStats captures what a sentinel sweep removed.
type SweepStats struct {
	Guards  int64
	Tickets int64
}

// SweepStalePending reclaims guard rows stuck at the creation sentinel.
// A sentinel older than the threshold means the process died inside the
// open protocol before finalising; the row would otherwise lock its
// pair out of ticket creation forever. The matching half-created ticket
// rows, open with no channel recorded, are closed alongside.
func SweepStalePending(ctx context.Context, db *gorm.DB, threshold time.Duration, now time.Time) (SweepStats, error) {
	if db == nil {
		return SweepStats{}, errors.New("sweep stale pending: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if threshold <= 0 {
		threshold = defaultStaleThreshold
	}

	cutoff := now.UTC().Add(-threshold)
	stats := SweepStats{}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []models.TicketGuard
		if err := tx.
			Where("thread_id = ? AND created_at < ?", models.GuardThreadPending, cutoff).
			Find(&stale).Error; err != nil {
			return fmt.Errorf("sweep stale pending: list guards: %w", err)
		}
		if len(stale) == 0 {
			return nil
		}

		for _, guard := range stale {
			res := tx.Delete(&models.TicketGuard{},
				"guild_id = ? AND user_id = ? AND thread_id = ?",
				guard.GuildID, guard.UserID, models.GuardThreadPending)
			if res.Error != nil {
				return fmt.Errorf("sweep stale pending: delete guard: %w", res.Error)
			}
			stats.Guards += res.RowsAffected

			res = tx.Model(&models.ModmailTicket{}).
				Where("guild_id = ? AND user_id = ? AND status = ? AND thread_id IS NULL",
					guard.GuildID, guard.UserID, models.TicketStatusOpen).
				Updates(map[string]any{
					"status":    models.TicketStatusClosed,
					"closed_at": now.UTC(),
				})
			if res.Error != nil {
				return fmt.Errorf("sweep stale pending: close orphan ticket: %w", res.Error)
			}
			stats.Tickets += res.RowsAffected
		}

		return nil
	})
	if err != nil {
		return SweepStats{}, err
	}

	return stats, nil
}
