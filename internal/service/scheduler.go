package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

const (
	defaultWorkers = 8
	// commitTimeout bounds store writes that commit an outcome detached from
	// the caller's context.
	commitTimeout = 10 * time.Second
)

// SequenceSource resolves sequence types to their definitions.
type SequenceSource interface {
	Sequence(sequenceType string) (model.SequenceDefinition, bool)
}

// StepDispatcher executes one step; *Dispatcher is the production one.
type StepDispatcher interface {
	Dispatch(ctx context.Context, listed *model.Entity, step model.Step, deadline time.Duration) error
}

// SweepResult counts what one sweep did with the entities it listed.
type SweepResult struct {
	Advanced int `json:"advanced"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Stalled  int `json:"stalled"`
}

// Scheduler runs sweeps over due entities with a bounded worker pool.
type Scheduler struct {
	Entities   repository.EntityRepositoryInterface
	Sequences  SequenceSource
	Dispatcher StepDispatcher
	Workers    int
	Log        *zap.Logger

	locks     *keyedMutex
	locksOnce sync.Once
}

// RunSweep dispatches the next step of up to maxBatch due entities, oldest
// LastActionAt first. Per-entity failures are counted, never returned; a
// store failure stops the sweep and is returned with the partial result.
func (s *Scheduler) RunSweep(ctx context.Context, now time.Time, maxBatch int, perCallDeadline time.Duration) (SweepResult, error) {
	s.locksOnce.Do(func() { s.locks = newKeyedMutex() })

	due, err := s.Entities.ListDue(ctx, now, maxBatch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list due: %w", err)
	}

	workers := s.Workers
	if workers < 1 {
		workers = defaultWorkers
	}

	var (
		mu     sync.Mutex
		result SweepResult
	)
	count := func(fn func(*SweepResult)) {
		mu.Lock()
		fn(&result)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, e := range due {
		e := e
		g.Go(func() error {
			return s.process(gctx, e, now, perCallDeadline, count)
		})
	}
	err = g.Wait()

	s.Log.Info("sweep finished",
		zap.Time("now", now),
		zap.Int("due", len(due)),
		zap.Int("advanced", result.Advanced),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("stalled", result.Stalled),
		zap.Error(err))
	return result, err
}

func (s *Scheduler) process(ctx context.Context, e *model.Entity, now time.Time, deadline time.Duration, count func(func(*SweepResult))) error {
	unlock := s.locks.Lock(e.ID)
	defer unlock()

	skip := func() { count(func(r *SweepResult) { r.Skipped++ }) }

	if ctx.Err() != nil {
		skip()
		return nil
	}

	def, ok := s.Sequences.Sequence(e.SequenceType)
	if !ok {
		s.Log.Warn("entity has unknown sequence", zap.String("entity_id", e.ID), zap.String("sequence", e.SequenceType))
		skip()
		return nil
	}
	step, ok := def.StepAt(e.Cursor)
	if !ok {
		skip()
		return nil
	}

	err := s.Dispatcher.Dispatch(ctx, e, step, deadline)

	// The outcome of the send is final once Dispatch returns, so it is
	// committed even when the sweep context has ended in the meantime.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	switch {
	case err == nil:
		updated, err := s.Entities.Advance(commitCtx, e.ID, e.Cursor, now)
		if errors.Is(err, appErrors.ErrInvalidState) {
			skip()
			return nil
		}
		if err != nil {
			return fmt.Errorf("advance %s: %w", e.ID, err)
		}
		if updated.Cursor == e.Cursor {
			// became terminal while the send was in flight
			skip()
			return nil
		}
		count(func(r *SweepResult) { r.Advanced++ })
		return nil

	case errors.Is(err, appErrors.ErrChannel):
		s.Log.Warn("dispatch failed", zap.String("entity_id", e.ID), zap.Int("step", step.Index), zap.Error(err))
		updated, ferr := s.Entities.RecordFailure(commitCtx, e.ID, now)
		if ferr != nil {
			return fmt.Errorf("record failure %s: %w", e.ID, ferr)
		}
		count(func(r *SweepResult) {
			r.Failed++
			if updated.Stalled {
				r.Stalled++
			}
		})
		if updated.Stalled {
			s.Log.Warn("entity stalled", zap.String("entity_id", e.ID), zap.Int("failures", updated.FailureCount))
		}
		return nil

	case errors.Is(err, appErrors.ErrEntityTerminal),
		errors.Is(err, appErrors.ErrInvalidState),
		errors.Is(err, ErrRateWait),
		ctx.Err() != nil:
		skip()
		return nil
	}
	return fmt.Errorf("dispatch %s: %w", e.ID, err)
}
