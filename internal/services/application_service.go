package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/models"
	apperrors "github.com/gatewarden/gatewarden/pkg/errors"
)

// ApplicationService persists applicant records. Records are created on
// submission and retained forever; only the decision service mutates
// their status afterwards.
type ApplicationService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewApplicationService constructs an ApplicationService.
func NewApplicationService(db *gorm.DB) (*ApplicationService, error) {
	if db == nil {
		return nil, errors.New("application service: db is required")
	}
	return &ApplicationService{db: db, now: time.Now}, nil
}

// SubmitInput describes an incoming join application.
type SubmitInput struct {
	GuildID string
	UserID  string
}

// Submit records a submitted application and assigns its short code.
func (s *ApplicationService) Submit(ctx context.Context, input SubmitInput) (*models.Application, error) {
	ctx = ensureContext(ctx)

	guildID := strings.TrimSpace(input.GuildID)
	userID := strings.TrimSpace(input.UserID)
	if guildID == "" || userID == "" {
		return nil, apperrors.NewBadRequest("guild id and user id are required")
	}

	submittedAt := s.now().UTC()
	app := models.Application{
		GuildID:     guildID,
		UserID:      userID,
		Code:        newApplicationCode(),
		Status:      models.ApplicationStatusSubmitted,
		SubmittedAt: &submittedAt,
	}
	if err := s.db.WithContext(ctx).Create(&app).Error; err != nil {
		return nil, fmt.Errorf("application service: submit: %w", err)
	}

	return &app, nil
}

// Get loads an application by id.
func (s *ApplicationService) Get(ctx context.Context, appID string) (*models.Application, error) {
	ctx = ensureContext(ctx)

	var app models.Application
	err := s.db.WithContext(ctx).First(&app, "id = ?", strings.TrimSpace(appID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("application service: get: %w", err)
	}
	return &app, nil
}

// GetByCode loads an application by its short code.
func (s *ApplicationService) GetByCode(ctx context.Context, code string) (*models.Application, error) {
	ctx = ensureContext(ctx)

	var app models.Application
	err := s.db.WithContext(ctx).First(&app, "code = ?", strings.ToUpper(strings.TrimSpace(code))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("application service: get by code: %w", err)
	}
	return &app, nil
}

// Pending lists a guild's undecided applications, oldest first.
func (s *ApplicationService) Pending(ctx context.Context, guildID string) ([]models.Application, error) {
	ctx = ensureContext(ctx)

	var apps []models.Application
	err := s.db.WithContext(ctx).
		Where("guild_id = ? AND status = ?", strings.TrimSpace(guildID), models.ApplicationStatusSubmitted).
		Order("submitted_at ASC").
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("application service: pending: %w", err)
	}
	return apps, nil
}

func newApplicationCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return strings.ToUpper(hex.EncodeToString([]byte(time.Now().Format("150405"))))[:8]
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}
