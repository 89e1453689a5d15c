package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuildSettingsService_DefaultsWhenUnconfigured(t *testing.T) {
	ts := newTestStack(t, nil)

	cfg, err := ts.settings.Get(context.Background(), "g-unset")
	require.NoError(t, err)
	require.Equal(t, "g-unset", cfg.GuildID)
	require.True(t, cfg.AutoCloseOnDecision)
	require.False(t, cfg.DeleteOnClose)
	require.Empty(t, cfg.ModRoles())
}

func TestGuildSettingsService_UpsertRoundTrip(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	_, err := ts.settings.Upsert(ctx, "g-set", UpdateSettingsInput{
		ModRoleIDs:     []string{"role-a", "role-b"},
		TicketParentID: "parent-1",
		LogChannelID:   "log-1",
		DeleteOnClose:  boolPtr(true),
	})
	require.NoError(t, err)

	cfg, err := ts.settings.Get(ctx, "g-set")
	require.NoError(t, err)
	require.Equal(t, []string{"role-a", "role-b"}, cfg.ModRoles())
	require.Equal(t, "parent-1", cfg.TicketParentID)
	require.Equal(t, "log-1", cfg.LogChannelID)
	require.True(t, cfg.DeleteOnClose)

	// Partial update keeps unspecified flags.
	_, err = ts.settings.Upsert(ctx, "g-set", UpdateSettingsInput{
		ModRoleIDs:          []string{"role-c"},
		TicketParentID:      "parent-1",
		LogChannelID:        "log-1",
		DeleteOnClose:       boolPtr(true),
		AutoCloseOnDecision: boolPtr(false),
	})
	require.NoError(t, err)

	cfg, err = ts.settings.Get(ctx, "g-set")
	require.NoError(t, err)
	require.Equal(t, []string{"role-c"}, cfg.ModRoles())
	require.False(t, cfg.AutoCloseOnDecision)
}

func TestGuildSettingsService_KnownGuilds(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	_, err := ts.settings.Upsert(ctx, "g-known1", UpdateSettingsInput{TicketParentID: "p"})
	require.NoError(t, err)

	_, err = ts.tickets.Open(ctx, OpenTicketInput{GuildID: "g-known2", UserID: "u-known", ActorID: "mod-a"})
	require.NoError(t, err)

	guilds, err := ts.settings.KnownGuilds(ctx)
	require.NoError(t, err)
	require.Contains(t, guilds, "g-known1")
	require.Contains(t, guilds, "g-known2")
}
