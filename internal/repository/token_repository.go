package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// TokenRepository stores action tokens in Postgres, keyed by token hash.
type TokenRepository struct {
	DB *sql.DB
}

func (r *TokenRepository) Insert(ctx context.Context, t *model.ActionToken) error {
	query := `
        INSERT INTO action_tokens (token, entity_id, kind, created_at, consumed)
        VALUES ($1, $2, $3, $4, FALSE)
    `
	_, err := r.DB.ExecContext(ctx, query, t.Token, t.EntityID, string(t.Kind), t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.ErrConflict
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Lookup(ctx context.Context, token string) (*model.ActionToken, error) {
	query := `
        SELECT token, entity_id, kind, created_at, consumed
        FROM action_tokens
        WHERE token = $1 AND NOT consumed
    `
	var (
		t    model.ActionToken
		kind string
	)
	err := r.DB.QueryRowContext(ctx, query, token).Scan(&t.Token, &t.EntityID, &kind, &t.CreatedAt, &t.Consumed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	t.Kind = model.ActionKind(kind)
	return &t, nil
}

// Consume flips the consumed flag in one statement, so two concurrent
// callers can never both see the token as pending.
func (r *TokenRepository) Consume(ctx context.Context, token string, now time.Time) (*model.ActionToken, error) {
	query := `
        UPDATE action_tokens
        SET consumed = TRUE, consumed_at = $2
        WHERE token = $1 AND NOT consumed
        RETURNING token, entity_id, kind, created_at, consumed, consumed_at
    `
	var (
		t          model.ActionToken
		kind       string
		consumedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, token, now).Scan(
		&t.Token, &t.EntityID, &kind, &t.CreatedAt, &t.Consumed, &consumedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("consume token: %w", err)
	}
	t.Kind = model.ActionKind(kind)
	if consumedAt.Valid {
		ts := consumedAt.Time
		t.ConsumedAt = &ts
	}
	return &t, nil
}

var _ TokenRepositoryInterface = (*TokenRepository)(nil)
