package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/channel"
)

func TestChannelTranscriptSink_FlushesToLogChannel(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	logChan, err := ts.fake.CreateChannel(ctx, "", "mod-log", channel.KindText)
	require.NoError(t, err)
	_, err = ts.settings.Upsert(ctx, "g-tr", UpdateSettingsInput{LogChannelID: logChan})
	require.NoError(t, err)

	res, err := ts.tickets.Open(ctx, OpenTicketInput{GuildID: "g-tr", UserID: "u-tr", ActorID: "mod-a"})
	require.NoError(t, err)

	_, err = ts.fake.SendMessage(ctx, res.ThreadID, "hello")
	require.NoError(t, err)
	_, err = ts.fake.SendMessage(ctx, res.ThreadID, "world")
	require.NoError(t, err)

	sink := NewChannelTranscriptSink(ts.fake, ts.settings)
	ref, err := sink.FlushTranscript(ctx, res.Ticket)
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.Equal(t, logChan, ref.ChannelID)
	require.Equal(t, 2, ref.Lines)

	log := ts.fake.MustChannel(logChan)
	require.Len(t, log.Messages, 1)
	require.Contains(t, log.Messages[0].Content, "hello")
	require.Contains(t, log.Messages[0].Content, "world")
}

func TestChannelTranscriptSink_NoLogChannelConfigured(t *testing.T) {
	ts := newTestStack(t, nil)
	ctx := context.Background()

	res, err := ts.tickets.Open(ctx, OpenTicketInput{GuildID: "g-tr2", UserID: "u-tr2", ActorID: "mod-a"})
	require.NoError(t, err)

	sink := NewChannelTranscriptSink(ts.fake, ts.settings)
	ref, err := sink.FlushTranscript(ctx, res.Ticket)
	require.NoError(t, err)
	require.Nil(t, ref)
}
