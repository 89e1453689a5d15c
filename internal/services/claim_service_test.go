package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/models"
	apperrors "github.com/gatewarden/gatewarden/pkg/errors"
)

func TestClaimService_ClaimAndConflict(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()
	app := ts.submitApplication(t, "g-claim", "u-claim")

	res, err := ts.claims.Claim(ctx, app.ID, "mod-a")
	require.NoError(t, err)
	require.Equal(t, ClaimStatusOK, res.Status)
	require.Equal(t, "mod-a", res.HolderID)
	require.EqualValues(t, 1, ts.countActions(t, app.ID, models.ActionClaim))

	// A second reviewer loses deterministically and learns the holder.
	res, err = ts.claims.Claim(ctx, app.ID, "mod-b")
	require.NoError(t, err)
	require.Equal(t, ClaimStatusAlreadyClaimed, res.Status)
	require.Equal(t, "mod-a", res.HolderID)
	require.EqualValues(t, 1, ts.countActions(t, app.ID, models.ActionClaim))
}

func TestClaimService_ClaimUnknownApplication(t *testing.T) {
	ts := newTestStack(t, nil)

	_, err := ts.claims.Claim(context.Background(), "missing", "mod-a")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClaimService_UnclaimIdempotent(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()
	app := ts.submitApplication(t, "g-unclaim", "u-unclaim")

	_, err := ts.claims.Claim(ctx, app.ID, "mod-a")
	require.NoError(t, err)

	res, err := ts.claims.Unclaim(ctx, app.ID, "mod-a")
	require.NoError(t, err)
	require.Equal(t, UnclaimStatusOK, res.Status)

	// Releasing again reports NotClaimed without error.
	res, err = ts.claims.Unclaim(ctx, app.ID, "mod-a")
	require.NoError(t, err)
	require.Equal(t, UnclaimStatusNotClaimed, res.Status)
}

func TestClaimService_UnclaimByNonHolder(t *testing.T) {
	ts := newTestStack(t, []string{"owner-1"})
	ctx := context.Background()
	app := ts.submitApplication(t, "g-unclaim2", "u-unclaim2")

	_, err := ts.claims.Claim(ctx, app.ID, "mod-a")
	require.NoError(t, err)

	res, err := ts.claims.Unclaim(ctx, app.ID, "mod-b")
	require.NoError(t, err)
	require.Equal(t, UnclaimStatusClaimedByOther, res.Status)
	require.Equal(t, "mod-a", res.HolderID)

	// Bot owners may force-release.
	res, err = ts.claims.Unclaim(ctx, app.ID, "owner-1")
	require.NoError(t, err)
	require.Equal(t, UnclaimStatusOK, res.Status)
}

func TestClaimService_RequireClaimOrBypass(t *testing.T) {
	ts := newTestStack(t, []string{"owner-1"})
	ctx := context.Background()
	app := ts.submitApplication(t, "g-req", "u-req")

	// No claim at all: anyone may act.
	denial, err := ts.claims.RequireClaimOrBypass(ctx, app.ID, "mod-b")
	require.NoError(t, err)
	require.Nil(t, denial)

	_, err = ts.claims.Claim(ctx, app.ID, "mod-a")
	require.NoError(t, err)

	denial, err = ts.claims.RequireClaimOrBypass(ctx, app.ID, "mod-a")
	require.NoError(t, err)
	require.Nil(t, denial)

	denial, err = ts.claims.RequireClaimOrBypass(ctx, app.ID, "mod-b")
	require.NoError(t, err)
	require.NotNil(t, denial)
	require.Equal(t, "mod-a", denial.HolderID)
	require.Contains(t, denial.Message, "mod-a")

	denial, err = ts.claims.RequireClaimOrBypass(ctx, app.ID, "owner-1")
	require.NoError(t, err)
	require.Nil(t, denial)
}

func TestClaimService_ClaimTerminalApplication(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()
	app := ts.submitApplication(t, "g-term", "u-term")

	require.NoError(t, ts.db.Model(&models.Application{}).
		Where("id = ?", app.ID).
		Update("status", models.ApplicationStatusApproved).Error)

	_, err := ts.claims.Claim(ctx, app.ID, "mod-a")
	require.Error(t, err)
}
