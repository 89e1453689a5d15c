package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gatewarden/gatewarden/internal/models"
)

// GuildSettingsService reads and writes per-guild moderation settings.
// The lifecycle services only read; writes come from the ops API.
type GuildSettingsService struct {
	db *gorm.DB
}

// NewGuildSettingsService constructs a settings service.
func NewGuildSettingsService(db *gorm.DB) (*GuildSettingsService, error) {
	if db == nil {
		return nil, errors.New("guild settings service: db is required")
	}
	return &GuildSettingsService{db: db}, nil
}

// Get returns the stored settings for the guild, falling back to
// defaults when none are configured.
func (s *GuildSettingsService) Get(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	ctx = ensureContext(ctx)

	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, errors.New("guild settings service: guild id is required")
	}

	var settings models.GuildSettings
	err := s.db.WithContext(ctx).First(&settings, "guild_id = ?", guildID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultSettings(guildID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("guild settings service: get: %w", err)
	}

	return &settings, nil
}

// UpdateSettingsInput describes the writable settings fields.
type UpdateSettingsInput struct {
	ModRoleIDs          []string
	TicketParentID      string
	LogChannelID        string
	DeleteOnClose       *bool
	AutoCloseOnDecision *bool
}

// Upsert creates or updates the guild's settings row.
func (s *GuildSettingsService) Upsert(ctx context.Context, guildID string, input UpdateSettingsInput) (*models.GuildSettings, error) {
	ctx = ensureContext(ctx)

	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, errors.New("guild settings service: guild id is required")
	}

	settings := defaultSettings(guildID)
	if err := s.db.WithContext(ctx).First(settings, "guild_id = ?", guildID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("guild settings service: load: %w", err)
	}

	if input.ModRoleIDs != nil {
		if err := settings.SetModRoles(normaliseIDs(input.ModRoleIDs)); err != nil {
			return nil, fmt.Errorf("guild settings service: encode roles: %w", err)
		}
	}
	settings.TicketParentID = strings.TrimSpace(input.TicketParentID)
	settings.LogChannelID = strings.TrimSpace(input.LogChannelID)
	if input.DeleteOnClose != nil {
		settings.DeleteOnClose = *input.DeleteOnClose
	}
	if input.AutoCloseOnDecision != nil {
		settings.AutoCloseOnDecision = *input.AutoCloseOnDecision
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}},
			UpdateAll: true,
		}).
		Create(settings).Error; err != nil {
		return nil, fmt.Errorf("guild settings service: upsert: %w", err)
	}

	return settings, nil
}

// KnownGuilds lists every guild id that has settings or an open ticket.
func (s *GuildSettingsService) KnownGuilds(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)

	var fromSettings []string
	if err := s.db.WithContext(ctx).
		Model(&models.GuildSettings{}).
		Distinct().
		Pluck("guild_id", &fromSettings).Error; err != nil {
		return nil, fmt.Errorf("guild settings service: list guilds: %w", err)
	}

	var fromTickets []string
	if err := s.db.WithContext(ctx).
		Model(&models.ModmailTicket{}).
		Where("status = ?", models.TicketStatusOpen).
		Distinct().
		Pluck("guild_id", &fromTickets).Error; err != nil {
		return nil, fmt.Errorf("guild settings service: list ticket guilds: %w", err)
	}

	return normaliseIDs(append(fromSettings, fromTickets...)), nil
}

func defaultSettings(guildID string) *models.GuildSettings {
	return &models.GuildSettings{
		GuildID:             guildID,
		AutoCloseOnDecision: true,
	}
}
