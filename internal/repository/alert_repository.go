package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// AlertRepository stores hot-lead claims in Postgres.
type AlertRepository struct {
	DB *sql.DB
}

func (r *AlertRepository) Claim(ctx context.Context, messageID string, priority model.Priority, now time.Time) (bool, error) {
	query := `
        INSERT INTO alert_claims (message_id, priority, done, created_at)
        VALUES ($1, $2, FALSE, $3)
        ON CONFLICT (message_id) DO NOTHING
    `
	res, err := r.DB.ExecContext(ctx, query, messageID, string(priority), now)
	if err != nil {
		return false, fmt.Errorf("claim alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim alert: %w", err)
	}
	return n == 1, nil
}

func (r *AlertRepository) Complete(ctx context.Context, messageID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE alert_claims SET done = TRUE WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("complete alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete alert: %w", err)
	}
	if n == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

func (r *AlertRepository) Release(ctx context.Context, messageID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM alert_claims WHERE message_id = $1 AND NOT done`, messageID)
	if err != nil {
		return fmt.Errorf("release alert: %w", err)
	}
	return nil
}

var _ AlertRepositoryInterface = (*AlertRepository)(nil)
