// Package bolt provides a single-file BoltDB store for running the engine
// without Postgres.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

const (
	entityBucket = "entity"
	keyBucket    = "entity_key"
	tokenBucket  = "action_token"
	alertBucket  = "alert_claim"
)

// Store implements the entity, token and alert repositories on BoltDB.
// Bolt serialises write transactions, which makes every mutation atomic.
type Store struct {
	db    *bbolt.DB
	rules repository.Rules
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string, rules repository.Rules) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db, rules: rules}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{entityBucket, keyBucket, tokenBucket, alertBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// ====================== Entities ======================

func (s *Store) Create(ctx context.Context, e *model.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.NextDueAt = s.rules.NextDueAt(e)
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket([]byte(keyBucket))
		if keys.Get([]byte(e.NaturalKey)) != nil {
			return appErrors.NewDuplicateKey(e.NaturalKey)
		}
		entities := tx.Bucket([]byte(entityBucket))
		if entities.Get([]byte(e.ID)) != nil {
			return appErrors.ErrConflict
		}
		if err := keys.Put([]byte(e.NaturalKey), []byte(e.ID)); err != nil {
			return err
		}
		return entities.Put([]byte(e.ID), payload)
	})
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var e *model.Entity
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		e, err = getEntity(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Entity, error) {
	return s.scan(ctx, limit, func(e *model.Entity) bool { return e.Due(now) })
}

func (s *Store) ListStalled(ctx context.Context, limit int) ([]*model.Entity, error) {
	return s.scan(ctx, limit, func(e *model.Entity) bool { return e.Stalled && !e.Status.Terminal() })
}

func (s *Store) scan(ctx context.Context, limit int, keep func(*model.Entity) bool) ([]*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matched := make([]*model.Entity, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(entityBucket)).ForEach(func(_, v []byte) error {
			var e model.Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal entity: %w", err)
			}
			if keep(&e) {
				matched = append(matched, &e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	repository.SortOldestFirst(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) StartSequence(ctx context.Context, id, sequenceType string, now time.Time) (*model.Entity, error) {
	return s.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return s.rules.ApplyStartSequence(e, sequenceType, now)
	})
}

func (s *Store) Advance(ctx context.Context, id string, fromCursor int, now time.Time) (*model.Entity, error) {
	return s.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return s.rules.ApplyAdvance(e, fromCursor, now)
	})
}

func (s *Store) Transition(ctx context.Context, id string, status model.Status, now time.Time) (*model.Entity, error) {
	return s.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return s.rules.ApplyTransition(e, status, now)
	})
}

func (s *Store) RecordFailure(ctx context.Context, id string, now time.Time) (*model.Entity, error) {
	return s.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return s.rules.ApplyFailure(e, now)
	})
}

func (s *Store) Reactivate(ctx context.Context, id string, now time.Time) (*model.Entity, error) {
	return s.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return s.rules.ApplyReactivate(e, now)
	})
}

// mutate runs fn inside one write transaction. A refused mutation returns the
// stored entity together with the error and writes nothing.
func (s *Store) mutate(ctx context.Context, id string, fn func(*model.Entity) (bool, error)) (*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		result  *model.Entity
		refused error
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		e, err := getEntity(tx, id)
		if err != nil {
			return err
		}
		current := e.Clone()
		changed, err := fn(e)
		if err != nil {
			result, refused = current, err
			return nil
		}
		if !changed {
			result = current
			return nil
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entity: %w", err)
		}
		if err := tx.Bucket([]byte(entityBucket)).Put([]byte(id), payload); err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, refused
}

func (s *Store) Stats(ctx context.Context, category string) (*model.CampaignStats, error) {
	all, err := s.scan(ctx, 0, func(e *model.Entity) bool {
		return category == "" || e.Category == category
	})
	if err != nil {
		return nil, err
	}
	stats := &model.CampaignStats{Category: category}
	for _, e := range all {
		stats.Count(e)
	}
	return stats, nil
}

func getEntity(tx *bbolt.Tx, id string) (*model.Entity, error) {
	payload := tx.Bucket([]byte(entityBucket)).Get([]byte(id))
	if payload == nil {
		return nil, appErrors.NewEntityNotFound(id)
	}
	var e model.Entity
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("unmarshal entity: %w", err)
	}
	return &e, nil
}

// ====================== Tokens ======================

func (s *Store) Insert(ctx context.Context, t *model.ActionToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(storedToken{ActionToken: *t, Hash: t.Token})
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tokenBucket))
		if bucket.Get([]byte(t.Token)) != nil {
			return appErrors.ErrConflict
		}
		return bucket.Put([]byte(t.Token), payload)
	})
}

func (s *Store) Lookup(ctx context.Context, token string) (*model.ActionToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *model.ActionToken
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(tokenBucket)).Get([]byte(token))
		if payload == nil {
			return appErrors.ErrNotFound
		}
		var st storedToken
		if err := json.Unmarshal(payload, &st); err != nil {
			return fmt.Errorf("unmarshal token: %w", err)
		}
		if st.Consumed {
			return appErrors.ErrNotFound
		}
		t := st.ActionToken
		t.Token = st.Hash
		out = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Consume(ctx context.Context, token string, now time.Time) (*model.ActionToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *model.ActionToken
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tokenBucket))
		payload := bucket.Get([]byte(token))
		if payload == nil {
			return appErrors.ErrNotFound
		}
		var st storedToken
		if err := json.Unmarshal(payload, &st); err != nil {
			return fmt.Errorf("unmarshal token: %w", err)
		}
		if st.Consumed {
			return appErrors.ErrNotFound
		}
		consumedAt := now
		st.Consumed = true
		st.ConsumedAt = &consumedAt
		updated, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshal token: %w", err)
		}
		if err := bucket.Put([]byte(token), updated); err != nil {
			return err
		}
		t := st.ActionToken
		t.Token = st.Hash
		out = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// storedToken persists the lookup key, which ActionToken hides from JSON.
type storedToken struct {
	model.ActionToken
	Hash string `json:"hash"`
}

// ====================== Alert claims ======================

func (s *Store) Claim(ctx context.Context, messageID string, priority model.Priority, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	claimed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(alertBucket))
		if bucket.Get([]byte(messageID)) != nil {
			return nil
		}
		payload, err := json.Marshal(model.AlertClaim{MessageID: messageID, Priority: priority, CreatedAt: now})
		if err != nil {
			return fmt.Errorf("marshal claim: %w", err)
		}
		claimed = true
		return bucket.Put([]byte(messageID), payload)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (s *Store) Complete(ctx context.Context, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(alertBucket))
		payload := bucket.Get([]byte(messageID))
		if payload == nil {
			return appErrors.ErrNotFound
		}
		var c model.AlertClaim
		if err := json.Unmarshal(payload, &c); err != nil {
			return fmt.Errorf("unmarshal claim: %w", err)
		}
		c.Done = true
		updated, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal claim: %w", err)
		}
		return bucket.Put([]byte(messageID), updated)
	})
}

func (s *Store) Release(ctx context.Context, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(alertBucket))
		payload := bucket.Get([]byte(messageID))
		if payload == nil {
			return nil
		}
		var c model.AlertClaim
		if err := json.Unmarshal(payload, &c); err != nil {
			return fmt.Errorf("unmarshal claim: %w", err)
		}
		if c.Done {
			return nil
		}
		return bucket.Delete([]byte(messageID))
	})
}

var (
	_ repository.EntityRepositoryInterface = (*Store)(nil)
	_ repository.TokenRepositoryInterface  = (*Store)(nil)
	_ repository.AlertRepositoryInterface  = (*Store)(nil)
)
