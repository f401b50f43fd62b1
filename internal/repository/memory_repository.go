package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// MemoryEntityRepository keeps entities in process memory. One mutex guards
// the whole map, so every operation is linearizable.
type MemoryEntityRepository struct {
	rules Rules

	mu    sync.Mutex
	byID  map[string]*model.Entity
	byKey map[string]string
}

func NewMemoryEntityRepository(rules Rules) *MemoryEntityRepository {
	return &MemoryEntityRepository{
		rules: rules,
		byID:  make(map[string]*model.Entity),
		byKey: make(map[string]string),
	}
}

func (r *MemoryEntityRepository) Create(ctx context.Context, e *model.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[e.NaturalKey]; exists {
		return appErrors.NewDuplicateKey(e.NaturalKey)
	}
	stored := e.Clone()
	stored.NextDueAt = r.rules.NextDueAt(stored)
	r.byID[stored.ID] = stored
	r.byKey[stored.NaturalKey] = stored.ID
	if stored.NextDueAt != nil {
		due := *stored.NextDueAt
		e.NextDueAt = &due
	}
	return nil
}

func (r *MemoryEntityRepository) GetByID(ctx context.Context, id string) (*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, appErrors.NewEntityNotFound(id)
	}
	return e.Clone(), nil
}

func (r *MemoryEntityRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*model.Entity, 0)
	for _, e := range r.byID {
		if e.Due(now) {
			due = append(due, e.Clone())
		}
	}
	SortOldestFirst(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryEntityRepository) ListStalled(ctx context.Context, limit int) ([]*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stalled := make([]*model.Entity, 0)
	for _, e := range r.byID {
		if e.Stalled && !e.Status.Terminal() {
			stalled = append(stalled, e.Clone())
		}
	}
	SortOldestFirst(stalled)
	if limit > 0 && len(stalled) > limit {
		stalled = stalled[:limit]
	}
	return stalled, nil
}

func (r *MemoryEntityRepository) StartSequence(ctx context.Context, id, sequenceType string, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.rules.ApplyStartSequence(e, sequenceType, now)
	})
}

func (r *MemoryEntityRepository) Advance(ctx context.Context, id string, fromCursor int, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.rules.ApplyAdvance(e, fromCursor, now)
	})
}

func (r *MemoryEntityRepository) Transition(ctx context.Context, id string, status model.Status, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.rules.ApplyTransition(e, status, now)
	})
}

func (r *MemoryEntityRepository) RecordFailure(ctx context.Context, id string, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.rules.ApplyFailure(e, now)
	})
}

func (r *MemoryEntityRepository) Reactivate(ctx context.Context, id string, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.rules.ApplyReactivate(e, now)
	})
}

func (r *MemoryEntityRepository) Stats(ctx context.Context, category string) (*model.CampaignStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &model.CampaignStats{Category: category}
	for _, e := range r.byID {
		if category != "" && e.Category != category {
			continue
		}
		stats.Count(e)
	}
	return stats, nil
}

// mutate applies fn to a working copy and swaps it in only on success, so a
// refused mutation never leaves a partial write behind.
func (r *MemoryEntityRepository) mutate(ctx context.Context, id string, fn func(*model.Entity) (bool, error)) (*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return nil, appErrors.NewEntityNotFound(id)
	}
	working := current.Clone()
	changed, err := fn(working)
	if err != nil {
		return current.Clone(), err
	}
	if changed {
		r.byID[id] = working
	}
	return r.byID[id].Clone(), nil
}

// SortOldestFirst orders entities by LastActionAt, then ID for a stable tie-break.
func SortOldestFirst(entities []*model.Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if !a.LastActionAt.Equal(b.LastActionAt) {
			return a.LastActionAt.Before(b.LastActionAt)
		}
		return a.ID < b.ID
	})
}

// MemoryTokenRepository keeps action tokens in process memory.
type MemoryTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*model.ActionToken
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{tokens: make(map[string]*model.ActionToken)}
}

func (r *MemoryTokenRepository) Insert(ctx context.Context, t *model.ActionToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[t.Token]; exists {
		return appErrors.ErrConflict
	}
	stored := *t
	r.tokens[t.Token] = &stored
	return nil
}

func (r *MemoryTokenRepository) Lookup(ctx context.Context, token string) (*model.ActionToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok || t.Consumed {
		return nil, appErrors.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (r *MemoryTokenRepository) Consume(ctx context.Context, token string, now time.Time) (*model.ActionToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok || t.Consumed {
		return nil, appErrors.ErrNotFound
	}
	consumedAt := now
	t.Consumed = true
	t.ConsumedAt = &consumedAt
	out := *t
	return &out, nil
}

// MemoryAlertRepository keeps hot-lead claims in process memory.
type MemoryAlertRepository struct {
	mu     sync.Mutex
	claims map[string]*model.AlertClaim
}

func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{claims: make(map[string]*model.AlertClaim)}
}

func (r *MemoryAlertRepository) Claim(ctx context.Context, messageID string, priority model.Priority, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.claims[messageID]; exists {
		return false, nil
	}
	r.claims[messageID] = &model.AlertClaim{MessageID: messageID, Priority: priority, CreatedAt: now}
	return true, nil
}

func (r *MemoryAlertRepository) Complete(ctx context.Context, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[messageID]
	if !ok {
		return appErrors.ErrNotFound
	}
	c.Done = true
	return nil
}

func (r *MemoryAlertRepository) Release(ctx context.Context, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.claims[messageID]; ok && !c.Done {
		delete(r.claims, messageID)
	}
	return nil
}

var (
	_ EntityRepositoryInterface = (*MemoryEntityRepository)(nil)
	_ TokenRepositoryInterface  = (*MemoryTokenRepository)(nil)
	_ AlertRepositoryInterface  = (*MemoryAlertRepository)(nil)
)
