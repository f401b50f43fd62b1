package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper is the operation the worker drives.
type Sweeper interface {
	RunSweep(ctx context.Context, now time.Time) (SweepResult, error)
}

// Worker runs a sweep on every tick until its context ends. Sweeps never
// overlap: a tick that arrives during a sweep is dropped by the ticker.
type Worker struct {
	Sweeper  Sweeper
	Interval time.Duration
	Timeout  time.Duration
	Now      func() time.Time
	Log      *zap.Logger
}

// NewWorker constructor
func NewWorker(sweeper Sweeper, interval, timeout time.Duration, now func() time.Time, log *zap.Logger) *Worker {
	return &Worker{
		Sweeper:  sweeper,
		Interval: interval,
		Timeout:  timeout,
		Now:      now,
		Log:      log,
	}
}

// Start sweeps once immediately, then on every tick. It returns when ctx is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		w.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			w.Log.Info("worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) sweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sweepCtx := ctx
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		sweepCtx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	if _, err := w.Sweeper.RunSweep(sweepCtx, w.Now()); err != nil {
		w.Log.Error("sweep failed", zap.Error(err))
	}
}
