// Package repotest holds the behaviour every entity store must share.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

const day = 24 * time.Hour

// Steps is a Schedule backed by a fixed table of step delays.
type Steps map[string][]time.Duration

func (s Steps) NextDelay(sequenceType string, cursor int) (time.Duration, bool) {
	delays, ok := s[sequenceType]
	if !ok || cursor < 0 || cursor >= len(delays) {
		return 0, false
	}
	return delays[cursor], true
}

// DefaultRules runs a three-step [0d, 3d, 5d] sequence and stalls after three failures.
func DefaultRules() repository.Rules {
	return repository.Rules{
		Schedule:    Steps{"outreach": {0, 3 * day, 5 * day}, "followup": {day}},
		MaxFailures: 3,
	}
}

// Epoch is the base time contract tests build on.
var Epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// NewEntity builds an unsaved entity enrolled in sequenceType at Epoch.
func NewEntity(id, sequenceType string) *model.Entity {
	return &model.Entity{
		ID:           id,
		NaturalKey:   "key-" + id,
		Category:     "cafe",
		Address:      id + "@example.com",
		Attrs:        map[string]string{"first_name": "Ada"},
		Status:       model.StatusNew,
		SequenceType: sequenceType,
		LastActionAt: Epoch,
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	}
}

// Factory returns an empty store configured with rules.
type Factory func(t *testing.T, rules repository.Rules) repository.EntityRepositoryInterface

// RunEntityContract exercises an EntityRepositoryInterface implementation.
func RunEntityContract(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("create rejects duplicate natural key", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		require.NoError(t, repo.Create(ctx, NewEntity("e1", "outreach")))

		dup := NewEntity("e2", "outreach")
		dup.NaturalKey = "key-e1"
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, appErrors.ErrConflict)

		_, err = repo.GetByID(ctx, "e2")
		assert.ErrorIs(t, err, appErrors.ErrNotFound)
	})

	t.Run("get unknown entity", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, appErrors.ErrNotFound)
	})

	t.Run("due boundary is inclusive", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		require.NoError(t, repo.Create(ctx, NewEntity("e1", "outreach")))

		due, err := repo.ListDue(ctx, Epoch, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)

		sent := Epoch.Add(time.Hour)
		_, err = repo.Advance(ctx, "e1", 0, sent)
		require.NoError(t, err)

		due, err = repo.ListDue(ctx, sent.Add(3*day-time.Second), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = repo.ListDue(ctx, sent.Add(3*day), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, 1, due[0].Cursor)
		assert.Equal(t, model.StatusContacted, due[0].Status)
	})

	t.Run("list due orders oldest first and honours limit", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		for i := 0; i < 30; i++ {
			e := NewEntity(fmt.Sprintf("e%02d", i), "outreach")
			e.LastActionAt = Epoch.Add(-time.Duration(i) * time.Minute)
			require.NoError(t, repo.Create(ctx, e))
		}
		due, err := repo.ListDue(ctx, Epoch, 10)
		require.NoError(t, err)
		require.Len(t, due, 10)
		for i, e := range due {
			assert.Equal(t, fmt.Sprintf("e%02d", 29-i), e.ID)
		}
	})

	t.Run("advance requires the dispatched cursor", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		require.NoError(t, repo.Create(ctx, NewEntity("e1", "outreach")))

		_, err := repo.Advance(ctx, "e1", 0, Epoch)
		require.NoError(t, err)
		e, err := repo.Advance(ctx, "e1", 0, Epoch)
		assert.ErrorIs(t, err, appErrors.ErrInvalidState)
		require.NotNil(t, e)
		assert.Equal(t, 1, e.Cursor)
	})

	t.Run("sequence completes after the last step", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		require.NoError(t, repo.Create(ctx, NewEntity("e1", "outreach")))
		now := Epoch
		for cursor := 0; cursor < 3; cursor++ {
			_, err := repo.Advance(ctx, "e1", cursor, now)
			require.NoError(t, err)
			now = now.Add(10 * day)
		}
		e, err := repo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, 3, e.Cursor)
		assert.Nil(t, e.NextDueAt)

		due, err := repo.ListDue(ctx, now.Add(100*day), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("terminal status freezes the entity", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		require.NoError(t, repo.Create(ctx, NewEntity("e1", "outreach")))

		e, err := repo.Transition(ctx, "e1", model.StatusOptedOut, Epoch)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOptedOut, e.Status)

		e, err = repo.Transition(ctx, "e1", model.StatusBooked, Epoch)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOptedOut, e.Status)

		e, err = repo.Advance(ctx, "e1", 0, Epoch)
		require.NoError(t, err)
		assert.Equal(t, 0, e.Cursor)

		e, err = repo.RecordFailure(ctx, "e1", Epoch)
		require.NoError(t, err)
		assert.Equal(t, 0, e.FailureCount)

		due, err := repo.ListDue(ctx, Epoch.Add(100*day), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("transition rejects non-terminal target", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		require.NoError(t, repo.Create(ctx, NewEntity("e1", "outreach")))
		_, err := repo.Transition(ctx, "e1", model.StatusContacted, Epoch)
		assert.ErrorIs(t, err, appErrors.ErrInvalidState)
	})

	t.Run("failures stall and success resets", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		require.NoError(t, repo.Create(ctx, NewEntity("e1", "outreach")))

		e, err := repo.RecordFailure(ctx, "e1", Epoch)
		require.NoError(t, err)
		assert.Equal(t, 1, e.FailureCount)
		assert.False(t, e.Stalled)

		e, err = repo.Advance(ctx, "e1", 0, Epoch)
		require.NoError(t, err)
		assert.Equal(t, 0, e.FailureCount)

		for i := 0; i < 3; i++ {
			e, err = repo.RecordFailure(ctx, "e1", Epoch)
			require.NoError(t, err)
		}
		assert.True(t, e.Stalled)
		assert.Equal(t, 3, e.FailureCount)

		due, err := repo.ListDue(ctx, Epoch.Add(100*day), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		stalled, err := repo.ListStalled(ctx, 10)
		require.NoError(t, err)
		require.Len(t, stalled, 1)

		e, err = repo.Reactivate(ctx, "e1", Epoch)
		require.NoError(t, err)
		assert.False(t, e.Stalled)
		assert.Equal(t, 3, e.FailureCount)

		due, err = repo.ListDue(ctx, Epoch.Add(100*day), 10)
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})

	t.Run("start sequence", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		require.NoError(t, repo.Create(ctx, NewEntity("e1", "")))

		due, err := repo.ListDue(ctx, Epoch.Add(100*day), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		later := Epoch.Add(day)
		e, err := repo.StartSequence(ctx, "e1", "followup", later)
		require.NoError(t, err)
		assert.Equal(t, "followup", e.SequenceType)
		require.NotNil(t, e.NextDueAt)
		assert.True(t, e.NextDueAt.Equal(later.Add(day)))

		_, err = repo.Advance(ctx, "e1", 0, later)
		require.NoError(t, err)
		_, err = repo.StartSequence(ctx, "e1", "outreach", later)
		assert.ErrorIs(t, err, appErrors.ErrInvalidState)
	})

	t.Run("stats", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		a := NewEntity("a", "outreach")
		b := NewEntity("b", "outreach")
		c := NewEntity("c", "outreach")
		c.Category = "bakery"
		for _, e := range []*model.Entity{a, b, c} {
			require.NoError(t, repo.Create(ctx, e))
		}
		_, err := repo.Advance(ctx, "a", 0, Epoch)
		require.NoError(t, err)
		_, err = repo.Transition(ctx, "b", model.StatusBooked, Epoch)
		require.NoError(t, err)
		_, err = repo.Transition(ctx, "c", model.StatusOptedOut, Epoch)
		require.NoError(t, err)

		all, err := repo.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 3, all.Total)
		assert.Equal(t, 1, all.Contacted)
		assert.Equal(t, 1, all.Booked)
		assert.Equal(t, 1, all.OptedOut)

		cafe, err := repo.Stats(ctx, "cafe")
		require.NoError(t, err)
		assert.Equal(t, 2, cafe.Total)
		assert.Equal(t, 0, cafe.OptedOut)
	})

	t.Run("concurrent advance commits once", func(t *testing.T) {
		repo := newRepo(t, DefaultRules())
		require.NoError(t, repo.Create(ctx, NewEntity("e1", "outreach")))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Advance(ctx, "e1", 0, Epoch)
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				} else if !errors.Is(err, appErrors.ErrInvalidState) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)

		e, err := repo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, 1, e.Cursor)
	})
}

// RunTokenContract exercises a TokenRepositoryInterface implementation.
// entityID must name an entity that already exists in the backing store.
func RunTokenContract(t *testing.T, repo repository.TokenRepositoryInterface, entityID string) {
	ctx := context.Background()

	tok := &model.ActionToken{Token: "hash-" + entityID, EntityID: entityID, Kind: model.ActionBooking, CreatedAt: Epoch}
	require.NoError(t, repo.Insert(ctx, tok))
	assert.ErrorIs(t, repo.Insert(ctx, tok), appErrors.ErrConflict)

	// lookup leaves the token pending
	for i := 0; i < 2; i++ {
		pending, err := repo.Lookup(ctx, tok.Token)
		require.NoError(t, err)
		assert.Equal(t, entityID, pending.EntityID)
		assert.False(t, pending.Consumed)
	}
	_, err := repo.Lookup(ctx, "never-issued")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	got, err := repo.Consume(ctx, tok.Token, Epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, entityID, got.EntityID)
	assert.Equal(t, model.ActionBooking, got.Kind)
	assert.True(t, got.Consumed)
	require.NotNil(t, got.ConsumedAt)

	_, err = repo.Consume(ctx, tok.Token, Epoch.Add(2*time.Minute))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = repo.Lookup(ctx, tok.Token)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = repo.Consume(ctx, "never-issued", Epoch)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

// RunAlertContract exercises an AlertRepositoryInterface implementation.
func RunAlertContract(t *testing.T, repo repository.AlertRepositoryInterface) {
	ctx := context.Background()

	ok, err := repo.Claim(ctx, "m1", model.PriorityHigh, Epoch)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, "m1", model.PriorityHigh, Epoch)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Release(ctx, "m1"))
	ok, err = repo.Claim(ctx, "m1", model.PriorityHigh, Epoch)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Complete(ctx, "m1"))
	require.NoError(t, repo.Release(ctx, "m1"))
	ok, err = repo.Claim(ctx, "m1", model.PriorityHigh, Epoch)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, repo.Complete(ctx, "unknown"), appErrors.ErrNotFound)
}
