package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/models"
)

func TestReviewLogService_AppendAndList(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	app := ts.submitApplication(t, "g-log1", "u-log1")

	id, err := ts.actions.Append(ctx, ActionEntry{
		AppID:   app.ID,
		GuildID: "g-log1",
		ActorID: "mod-a",
		Action:  models.ActionClaim,
		Meta:    map[string]any{"source": "command"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = ts.actions.Append(ctx, ActionEntry{
		GuildID: "g-log1",
		ActorID: "mod-b",
		Action:  models.ActionTicketOpen,
	})
	require.NoError(t, err)

	entries, total, err := ts.actions.List(ctx, ActionListOptions{
		Filters: ActionFilters{GuildID: "g-log1"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, entries, 2)

	entries, total, err = ts.actions.List(ctx, ActionListOptions{
		Filters: ActionFilters{AppID: app.ID},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, models.ActionClaim, entries[0].Action)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Meta, &meta))
	require.Equal(t, "command", meta["source"])
}

func TestReviewLogService_AppendRequiresActor(t *testing.T) {
	ts := newTestStack(t, nil)

	_, err := ts.actions.Append(context.Background(), ActionEntry{
		GuildID: "g-log2",
		Action:  models.ActionClaim,
	})
	require.Error(t, err)
}

func TestReviewLogService_ListPagination(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := ts.actions.Append(ctx, ActionEntry{
			GuildID: "g-log3",
			ActorID: "mod-a",
			Action:  models.ActionTicketOpen,
		})
		require.NoError(t, err)
	}

	entries, total, err := ts.actions.List(ctx, ActionListOptions{
		Page:     2,
		PageSize: 2,
		Filters:  ActionFilters{GuildID: "g-log3"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, entries, 2)
}

func TestReviewLogService_CleanupRejectsZeroRetention(t *testing.T) {
	ts := newTestStack(t, nil)

	_, err := ts.actions.CleanupOlderThan(context.Background(), 0)
	require.Error(t, err)
}
