package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-engine/internal/model"
)

func TestSweepEndingMidSendRecordsFailure(t *testing.T) {
	f := newFixture(t)
	e := importLead(t, f, "place-1", "outreach")
	f.sender.block = make(chan struct{})
	t.Cleanup(func() { close(f.sender.block) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := f.svc.RunSweep(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Failed: 1}, res)

	got, err := f.svc.GetEntity(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailureCount)
	assert.Equal(t, 0, got.Cursor)
}

// cancelAfterSend ends the sweep context as soon as the wrapped dispatch
// returns, before the scheduler commits the outcome.
type cancelAfterSend struct {
	StepDispatcher
	cancel context.CancelFunc
}

func (d *cancelAfterSend) Dispatch(ctx context.Context, listed *model.Entity, step model.Step, deadline time.Duration) error {
	err := d.StepDispatcher.Dispatch(ctx, listed, step, deadline)
	d.cancel()
	return err
}

func TestConfirmedSendIsCommittedAfterSweepCancel(t *testing.T) {
	f := newFixture(t)
	e := importLead(t, f, "place-1", "outreach")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.Scheduler.Dispatcher = &cancelAfterSend{StepDispatcher: f.dispatcher(), cancel: cancel}

	res, err := f.svc.RunSweep(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced)

	got, err := f.svc.GetEntity(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Cursor)

	res, err = f.svc.RunSweep(context.Background(), t0)
	require.NoError(t, err)
	assert.Zero(t, res.Advanced)
	assert.Len(t, f.sender.messages(), 1)
}
