package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/channel"
	"github.com/gatewarden/gatewarden/internal/models"
	"github.com/gatewarden/gatewarden/pkg/logger"
	"github.com/gatewarden/gatewarden/pkg/metrics"
)

// ReconcileCounts summarises one guild's permission repair run.
type ReconcileCounts struct {
	Parents int `json:"parents"`
	Grants  int `json:"grants"`
	Skipped int `json:"skipped"`
}

// ReconcilerService repairs channel-level permissions for moderator
// roles on the parent channels hosting open tickets. Corrective only;
// the ticket lifecycle never depends on it.
type ReconcilerService struct {
	db       *gorm.DB
	api      channel.API
	settings *GuildSettingsService
	log      *zap.Logger
}

// NewReconcilerService constructs a ReconcilerService.
func NewReconcilerService(db *gorm.DB, api channel.API, settings *GuildSettingsService) (*ReconcilerService, error) {
	if db == nil {
		return nil, errors.New("reconciler service: db is required")
	}
	if api == nil {
		return nil, errors.New("reconciler service: channel api is required")
	}
	if settings == nil {
		return nil, errors.New("reconciler service: guild settings are required")
	}
	return &ReconcilerService{
		db:       db,
		api:      api,
		settings: settings,
		log:      logger.WithModule("reconciler"),
	}, nil
}

// ReconcileGuild ensures every configured moderator role can participate
// in sub-threads of each parent channel hosting the guild's open
// tickets. Roles that already hold the permission are skipped.
func (s *ReconcilerService) ReconcileGuild(ctx context.Context, guildID string) (ReconcileCounts, error) {
	ctx = ensureContext(ctx)

	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return ReconcileCounts{}, errors.New("reconciler service: guild id is required")
	}

	cfg, err := s.settings.Get(ctx, guildID)
	if err != nil {
		return ReconcileCounts{}, err
	}

	roles := cfg.ModRoles()
	if len(roles) == 0 {
		return ReconcileCounts{}, nil
	}

	parents, err := s.openTicketParents(ctx, guildID, cfg.TicketParentID)
	if err != nil {
		return ReconcileCounts{}, err
	}

	counts := ReconcileCounts{Parents: len(parents)}
	var errs error
	for _, parent := range parents {
		for _, role := range roles {
			has, err := s.api.HasPermissionOverwrite(ctx, parent, role, channel.PermSendMessagesInThreads)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("check %s/%s: %w", parent, role, err))
				continue
			}
			if has {
				counts.Skipped++
				continue
			}

			if err := s.api.EditPermissionOverwrite(ctx, parent, role, channel.PermSendMessagesInThreads); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("grant %s/%s: %w", parent, role, err))
				continue
			}
			counts.Grants++
			metrics.ReconcilerGrants.Inc()
		}
	}

	return counts, errs
}

// ReconcileAll runs the repair across every known guild, serially. A
// failing guild is logged and skipped so it never blocks the rest; the
// aggregated error is returned for the caller's log line.
func (s *ReconcilerService) ReconcileAll(ctx context.Context) (map[string]ReconcileCounts, error) {
	ctx = ensureContext(ctx)

	guilds, err := s.settings.KnownGuilds(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]ReconcileCounts, len(guilds))
	var errs error
	for _, guildID := range guilds {
		counts, err := s.ReconcileGuild(ctx, guildID)
		if err != nil {
			s.log.Warn("guild reconcile failed",
				zap.String("guild_id", guildID),
				zap.Error(err),
			)
			errs = multierr.Append(errs, fmt.Errorf("guild %s: %w", guildID, err))
		}
		results[guildID] = counts
	}

	return results, errs
}

// openTicketParents returns the distinct parent channels hosting the
// guild's open tickets plus the configured parent, if any.
func (s *ReconcilerService) openTicketParents(ctx context.Context, guildID, configured string) ([]string, error) {
	var parents []string
	err := s.db.WithContext(ctx).
		Model(&models.ModmailTicket{}).
		Where("guild_id = ? AND status = ? AND parent_id IS NOT NULL", guildID, models.TicketStatusOpen).
		Distinct().
		Pluck("parent_id", &parents).Error
	if err != nil {
		return nil, fmt.Errorf("reconciler service: list parents: %w", err)
	}

	if configured = strings.TrimSpace(configured); configured != "" {
		parents = append(parents, configured)
	}
	return normaliseIDs(parents), nil
}
