package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/models"
)

var errTestPlatform = errors.New("platform unavailable")

func TestDecisionService_ApproveReleasesClaimAndLogs(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	app := ts.submitApplication(t, "g-dec", "u-dec")

	claim, err := ts.claims.Claim(ctx, app.ID, "mod-a")
	require.NoError(t, err)
	require.Equal(t, ClaimStatusOK, claim.Status)

	res, err := ts.decisions.ApplyDecision(ctx, ApplyDecisionInput{
		AppID:    app.ID,
		ActorID:  "mod-a",
		Decision: models.DecisionApprove,
		Reason:   "solid answers",
	})
	require.NoError(t, err)
	require.Equal(t, DecisionStatusOK, res.Status)
	require.NotEmpty(t, res.ActionID)

	var updated models.Application
	require.NoError(t, ts.db.First(&updated, "id = ?", app.ID).Error)
	require.Equal(t, models.ApplicationStatusApproved, updated.Status)
	require.NotNil(t, updated.DecidedAt)
	require.NotNil(t, updated.DecidedBy)
	require.Equal(t, "mod-a", *updated.DecidedBy)
	require.Equal(t, "solid answers", updated.DecisionReason)

	var claims int64
	require.NoError(t, ts.db.Model(&models.Claim{}).Where("app_id = ?", app.ID).Count(&claims).Error)
	require.Zero(t, claims)

	require.EqualValues(t, 1, ts.countActions(t, app.ID, models.ActionApprove))
}

func TestDecisionService_TerminalApplicationIsNotRedecided(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	app := ts.submitApplication(t, "g-dec2", "u-dec2")

	first, err := ts.decisions.ApplyDecision(ctx, ApplyDecisionInput{
		AppID: app.ID, ActorID: "mod-a", Decision: models.DecisionReject, Reason: "too new",
	})
	require.NoError(t, err)
	require.Equal(t, DecisionStatusOK, first.Status)

	second, err := ts.decisions.ApplyDecision(ctx, ApplyDecisionInput{
		AppID: app.ID, ActorID: "mod-b", Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionStatusAlready, second.Status)

	// The losing decision leaves no trace: status and log unchanged.
	var updated models.Application
	require.NoError(t, ts.db.First(&updated, "id = ?", app.ID).Error)
	require.Equal(t, models.ApplicationStatusRejected, updated.Status)
	require.EqualValues(t, 0, ts.countActions(t, app.ID, models.ActionApprove))
	require.EqualValues(t, 1, ts.countActions(t, app.ID, models.ActionReject))
}

func TestDecisionService_ClaimHeldByAnotherReviewer(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	app := ts.submitApplication(t, "g-dec3", "u-dec3")

	_, err := ts.claims.Claim(ctx, app.ID, "mod-a")
	require.NoError(t, err)

	res, err := ts.decisions.ApplyDecision(ctx, ApplyDecisionInput{
		AppID: app.ID, ActorID: "mod-b", Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionStatusClaimedByOther, res.Status)
	require.Equal(t, "mod-a", res.HolderID)
	require.NotEmpty(t, res.Message)

	var updated models.Application
	require.NoError(t, ts.db.First(&updated, "id = ?", app.ID).Error)
	require.Equal(t, models.ApplicationStatusSubmitted, updated.Status)
}

func TestDecisionService_OwnerBypassesClaim(t *testing.T) {
	ts := newTestStack(t, []string{"owner-1"})
	ctx := context.Background()

	app := ts.submitApplication(t, "g-dec4", "u-dec4")

	_, err := ts.claims.Claim(ctx, app.ID, "mod-a")
	require.NoError(t, err)

	res, err := ts.decisions.ApplyDecision(ctx, ApplyDecisionInput{
		AppID: app.ID, ActorID: "owner-1", Decision: models.DecisionKick, Reason: "spam",
	})
	require.NoError(t, err)
	require.Equal(t, DecisionStatusOK, res.Status)

	var updated models.Application
	require.NoError(t, ts.db.First(&updated, "id = ?", app.ID).Error)
	require.Equal(t, models.ApplicationStatusKicked, updated.Status)
}

func TestDecisionService_UnknownApplication(t *testing.T) {
	ts := newTestStack(t, nil)

	res, err := ts.decisions.ApplyDecision(context.Background(), ApplyDecisionInput{
		AppID: "missing", ActorID: "mod-a", Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionStatusNotFound, res.Status)
}

func TestDecisionService_AutoClosesOpenTicket(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	app := ts.submitApplication(t, "g-dec5", "u-dec5")

	open, err := ts.tickets.Open(ctx, OpenTicketInput{GuildID: "g-dec5", UserID: "u-dec5", ActorID: "mod-a"})
	require.NoError(t, err)
	require.Equal(t, OpenStatusCreated, open.Status)

	res, err := ts.decisions.ApplyDecision(ctx, ApplyDecisionInput{
		AppID: app.ID, ActorID: "mod-a", Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionStatusOK, res.Status)

	var ticket models.ModmailTicket
	require.NoError(t, ts.db.First(&ticket, "id = ?", open.Ticket.ID).Error)
	require.Equal(t, models.TicketStatusClosed, ticket.Status)

	var guards int64
	require.NoError(t, ts.db.Model(&models.TicketGuard{}).
		Where("guild_id = ? AND user_id = ?", "g-dec5", "u-dec5").Count(&guards).Error)
	require.Zero(t, guards)
}

func TestDecisionService_TicketCleanupFailureKeepsDecision(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	app := ts.submitApplication(t, "g-dec6", "u-dec6")

	_, err := ts.tickets.Open(ctx, OpenTicketInput{GuildID: "g-dec6", UserID: "u-dec6", ActorID: "mod-a"})
	require.NoError(t, err)

	// Even with the channel platform refusing everything, the decision
	// lands and the ticket close degrades instead of failing the call.
	ts.fake.DeleteErr = errTestPlatform
	ts.fake.ArchiveErr = errTestPlatform
	ts.fake.RemoveSelfErr = errTestPlatform
	ts.fake.SendErr = errTestPlatform
	ts.fake.DMErr = errTestPlatform

	res, err := ts.decisions.ApplyDecision(ctx, ApplyDecisionInput{
		AppID: app.ID, ActorID: "mod-a", Decision: models.DecisionPermReject, Reason: "ban evasion",
	})
	require.NoError(t, err)
	require.Equal(t, DecisionStatusOK, res.Status)

	var updated models.Application
	require.NoError(t, ts.db.First(&updated, "id = ?", app.ID).Error)
	require.Equal(t, models.ApplicationStatusPermRejected, updated.Status)

	var ticket models.ModmailTicket
	require.NoError(t, ts.db.First(&ticket, "guild_id = ? AND user_id = ?", "g-dec6", "u-dec6").Error)
	require.Equal(t, models.TicketStatusClosed, ticket.Status)
}

func TestDecisionService_AutoCloseDisabled(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	_, err := ts.settings.Upsert(ctx, "g-dec7", UpdateSettingsInput{AutoCloseOnDecision: boolPtr(false)})
	require.NoError(t, err)

	app := ts.submitApplication(t, "g-dec7", "u-dec7")

	open, err := ts.tickets.Open(ctx, OpenTicketInput{GuildID: "g-dec7", UserID: "u-dec7", ActorID: "mod-a"})
	require.NoError(t, err)

	res, err := ts.decisions.ApplyDecision(ctx, ApplyDecisionInput{
		AppID: app.ID, ActorID: "mod-a", Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionStatusOK, res.Status)

	var ticket models.ModmailTicket
	require.NoError(t, ts.db.First(&ticket, "id = ?", open.Ticket.ID).Error)
	require.Equal(t, models.TicketStatusOpen, ticket.Status)
}
