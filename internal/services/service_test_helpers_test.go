package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/channel"
	"github.com/gatewarden/gatewarden/internal/database/testutil"
	"github.com/gatewarden/gatewarden/internal/models"
)

type testStack struct {
	db         *gorm.DB
	fake       *channel.Fake
	apps       *ApplicationService
	actions    *ReviewLogService
	settings   *GuildSettingsService
	claims     *ClaimService
	tickets    *TicketService
	decisions  *DecisionService
	reconciler *ReconcilerService
}

func newTestStack(t *testing.T, owners []string, ticketOpts ...TicketOption) *testStack {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	fake := channel.NewFake()

	apps, err := NewApplicationService(db)
	require.NoError(t, err)
	actions, err := NewReviewLogService(db)
	require.NoError(t, err)
	settings, err := NewGuildSettingsService(db)
	require.NoError(t, err)
	claims, err := NewClaimService(db, actions, owners)
	require.NoError(t, err)
	tickets, err := NewTicketService(db, fake, actions, settings, ticketOpts...)
	require.NoError(t, err)
	decisions, err := NewDecisionService(db, claims, tickets, actions, settings)
	require.NoError(t, err)
	reconciler, err := NewReconcilerService(db, fake, settings)
	require.NoError(t, err)

	return &testStack{
		db:         db,
		fake:       fake,
		apps:       apps,
		actions:    actions,
		settings:   settings,
		claims:     claims,
		tickets:    tickets,
		decisions:  decisions,
		reconciler: reconciler,
	}
}

func (ts *testStack) submitApplication(t *testing.T, guildID, userID string) *models.Application {
	t.Helper()

	app, err := ts.apps.Submit(context.Background(), SubmitInput{GuildID: guildID, UserID: userID})
	require.NoError(t, err)
	return app
}

func (ts *testStack) countActions(t *testing.T, appID, action string) int64 {
	t.Helper()

	var count int64
	query := ts.db.Model(&models.ReviewAction{}).Where("action = ?", action)
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}
	require.NoError(t, query.Count(&count).Error)
	return count
}
