package repository

import (
	"context"
	"time"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// Schedule tells a store how long after the previous action the step at
// cursor becomes due.
type Schedule interface {
	NextDelay(sequenceType string, cursor int) (time.Duration, bool)
}

// EntityRepositoryInterface is the campaign state store. Every mutation is an
// atomic read-modify-write of a single entity.
type EntityRepositoryInterface interface {
	// Create inserts a new entity; a reused natural key fails with ErrConflict.
	Create(ctx context.Context, e *model.Entity) error
	GetByID(ctx context.Context, id string) (*model.Entity, error)

	// ListDue returns non-terminal, non-stalled entities whose next step is
	// due at now, oldest LastActionAt first, at most limit of them.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Entity, error)
	ListStalled(ctx context.Context, limit int) ([]*model.Entity, error)

	StartSequence(ctx context.Context, id, sequenceType string, now time.Time) (*model.Entity, error)
	Advance(ctx context.Context, id string, fromCursor int, now time.Time) (*model.Entity, error)
	Transition(ctx context.Context, id string, status model.Status, now time.Time) (*model.Entity, error)
	RecordFailure(ctx context.Context, id string, now time.Time) (*model.Entity, error)
	Reactivate(ctx context.Context, id string, now time.Time) (*model.Entity, error)

	// Stats aggregates counters for category, or globally when category is empty.
	Stats(ctx context.Context, category string) (*model.CampaignStats, error)
}

// TokenRepositoryInterface persists action tokens by their lookup key.
type TokenRepositoryInterface interface {
	Insert(ctx context.Context, t *model.ActionToken) error
	// Lookup returns a pending token without consuming it. Unknown and
	// already consumed tokens both return ErrNotFound.
	Lookup(ctx context.Context, token string) (*model.ActionToken, error)
	// Consume marks a pending token consumed and returns it. Unknown and
	// already consumed tokens both return ErrNotFound.
	Consume(ctx context.Context, token string, now time.Time) (*model.ActionToken, error)
}

// AlertRepositoryInterface records which inbound messages were already
// turned into hot-lead alerts.
type AlertRepositoryInterface interface {
	// Claim returns false when messageID was claimed before.
	Claim(ctx context.Context, messageID string, priority model.Priority, now time.Time) (bool, error)
	Complete(ctx context.Context, messageID string) error
	// Release drops an unfinished claim so the message can be retried.
	Release(ctx context.Context, messageID string) error
}
