package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

const uniqueViolation = "23505"

const entityColumns = `id, natural_key, category, address, attrs, status, sequence_type, step_cursor,
	failure_count, stalled, last_action_at, next_due_at, created_at, updated_at`

// EntityRepository is the Postgres campaign state store. Mutations lock the
// single entity row (SELECT ... FOR UPDATE) for their read-modify-write.
type EntityRepository struct {
	DB    *sql.DB
	Rules Rules
}

// ====================== Entity CRUD ======================

func (r *EntityRepository) Create(ctx context.Context, e *model.Entity) error {
	e.NextDueAt = r.Rules.NextDueAt(e)
	attrs, err := marshalAttrs(e.Attrs)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO entities (` + entityColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `
	_, err = r.DB.ExecContext(ctx, query,
		e.ID, e.NaturalKey, e.Category, e.Address, attrs, string(e.Status), e.SequenceType, e.Cursor,
		e.FailureCount, e.Stalled, e.LastActionAt, nullTime(e.NextDueAt), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.NewDuplicateKey(e.NaturalKey)
		}
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

func (r *EntityRepository) GetByID(ctx context.Context, id string) (*model.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id=$1`
	e, err := scanEntity(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewEntityNotFound(id)
		}
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

func (r *EntityRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Entity, error) {
	query := `
        SELECT ` + entityColumns + `
        FROM entities
        WHERE status NOT IN ('booked', 'opted_out')
          AND NOT stalled
          AND next_due_at IS NOT NULL
          AND next_due_at <= $1
        ORDER BY last_action_at ASC, id ASC
        LIMIT $2
    `
	return r.list(ctx, query, now, limit)
}

func (r *EntityRepository) ListStalled(ctx context.Context, limit int) ([]*model.Entity, error) {
	query := `
        SELECT ` + entityColumns + `
        FROM entities
        WHERE stalled AND status NOT IN ('booked', 'opted_out')
        ORDER BY last_action_at ASC, id ASC
        LIMIT $1
    `
	return r.list(ctx, query, limit)
}

func (r *EntityRepository) list(ctx context.Context, query string, args ...any) ([]*model.Entity, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	entities := []*model.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

// ====================== Entity mutations ======================

func (r *EntityRepository) StartSequence(ctx context.Context, id, sequenceType string, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.Rules.ApplyStartSequence(e, sequenceType, now)
	})
}

func (r *EntityRepository) Advance(ctx context.Context, id string, fromCursor int, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.Rules.ApplyAdvance(e, fromCursor, now)
	})
}

func (r *EntityRepository) Transition(ctx context.Context, id string, status model.Status, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.Rules.ApplyTransition(e, status, now)
	})
}

func (r *EntityRepository) RecordFailure(ctx context.Context, id string, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.Rules.ApplyFailure(e, now)
	})
}

func (r *EntityRepository) Reactivate(ctx context.Context, id string, now time.Time) (*model.Entity, error) {
	return r.mutate(ctx, id, func(e *model.Entity) (bool, error) {
		return r.Rules.ApplyReactivate(e, now)
	})
}

func (r *EntityRepository) mutate(ctx context.Context, id string, fn func(*model.Entity) (bool, error)) (*model.Entity, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + entityColumns + ` FROM entities WHERE id=$1 FOR UPDATE`
	e, err := scanEntity(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewEntityNotFound(id)
		}
		return nil, fmt.Errorf("lock entity: %w", err)
	}

	current := e.Clone()
	changed, err := fn(e)
	if err != nil {
		return current, err
	}
	if !changed {
		return current, nil
	}

	update := `
        UPDATE entities
        SET status=$1, sequence_type=$2, step_cursor=$3, failure_count=$4, stalled=$5,
            last_action_at=$6, next_due_at=$7, updated_at=$8
        WHERE id=$9
    `
	if _, err := tx.ExecContext(ctx, update,
		string(e.Status), e.SequenceType, e.Cursor, e.FailureCount, e.Stalled,
		e.LastActionAt, nullTime(e.NextDueAt), e.UpdatedAt, e.ID,
	); err != nil {
		return nil, fmt.Errorf("update entity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit entity: %w", err)
	}
	return e, nil
}

// ====================== Stats ======================

func (r *EntityRepository) Stats(ctx context.Context, category string) (*model.CampaignStats, error) {
	query := `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE step_cursor > 0),
            COUNT(*) FILTER (WHERE status = 'booked'),
            COUNT(*) FILTER (WHERE status = 'opted_out'),
            COUNT(*) FILTER (WHERE stalled)
        FROM entities
        WHERE ($1 = '' OR category = $1)
    `
	stats := &model.CampaignStats{Category: category}
	err := r.DB.QueryRowContext(ctx, query, category).Scan(
		&stats.Total, &stats.Contacted, &stats.Booked, &stats.OptedOut, &stats.Stalled,
	)
	if err != nil {
		return nil, fmt.Errorf("entity stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var (
		e         model.Entity
		attrs     []byte
		status    string
		nextDueAt sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.NaturalKey, &e.Category, &e.Address, &attrs, &status, &e.SequenceType, &e.Cursor,
		&e.FailureCount, &e.Stalled, &e.LastActionAt, &nextDueAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = model.Status(status)
	if nextDueAt.Valid {
		t := nextDueAt.Time
		e.NextDueAt = &t
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &e.Attrs); err != nil {
			return nil, fmt.Errorf("decode attrs: %w", err)
		}
	}
	return &e, nil
}

func marshalAttrs(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attrs: %w", err)
	}
	return b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ EntityRepositoryInterface = (*EntityRepository)(nil)
