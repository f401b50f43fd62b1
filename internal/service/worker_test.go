package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingSweeper struct {
	mu      sync.Mutex
	calls   int
	hadDead bool
	err     error
	onCall  func(n int)
}

func (s *countingSweeper) RunSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	_, s.hadDead = ctx.Deadline()
	s.mu.Unlock()
	if s.onCall != nil {
		s.onCall(n)
	}
	return SweepResult{}, s.err
}

func TestWorkerSweepsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := &countingSweeper{err: errors.New("store down")}
	sweeper.onCall = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	w := NewWorker(sweeper, time.Millisecond, time.Second, time.Now, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()
	if sweeper.calls != 3 {
		t.Errorf("expected 3 sweeps, got %d", sweeper.calls)
	}
	if !sweeper.hadDead {
		t.Errorf("expected each sweep to run under a deadline")
	}
}
