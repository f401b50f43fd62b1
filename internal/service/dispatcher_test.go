package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

func firstStep(t *testing.T, f *fixture) model.Step {
	t.Helper()
	def, ok := f.registry.Sequence("outreach")
	require.True(t, ok)
	return def.Steps[0]
}

func TestDispatchRechecksTerminalStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listed := importLead(t, f, "place-1", "outreach")

	_, err := f.entities.Transition(ctx, listed.ID, model.StatusBooked, t0)
	require.NoError(t, err)

	err = f.dispatcher().Dispatch(ctx, listed, firstStep(t, f), time.Second)
	assert.ErrorIs(t, err, appErrors.ErrEntityTerminal)
	assert.Empty(t, f.sender.messages())
}

func TestDispatchRefusesMovedCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listed := importLead(t, f, "place-1", "outreach")

	_, err := f.entities.Advance(ctx, listed.ID, 0, t0)
	require.NoError(t, err)

	err = f.dispatcher().Dispatch(ctx, listed, firstStep(t, f), time.Second)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)
	assert.Empty(t, f.sender.messages())
}

func TestDispatchRendersLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listed := importLead(t, f, "place-1", "outreach")

	require.NoError(t, f.dispatcher().Dispatch(ctx, listed, firstStep(t, f), time.Second))

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "place-1@example.com", msgs[0].To)
	assert.Equal(t, "Hello Ada", msgs[0].Subject)
	assert.NotContains(t, msgs[0].Body, "{")
	booking, optout := f.sender.links(t, listed.Address)
	assert.NotEqual(t, booking, optout)
}

func TestDispatchWithoutSenderIsChannelError(t *testing.T) {
	f := newFixture(t)
	listed := importLead(t, f, "place-1", "outreach")
	step := firstStep(t, f)
	step.Channel = "sms"

	err := f.dispatcher().Dispatch(context.Background(), listed, step, time.Second)
	assert.ErrorIs(t, err, appErrors.ErrChannel)
}
