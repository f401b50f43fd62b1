package repository_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/repository/repotest"
)

// openTestDB connects to OUTREACH_TEST_DATABASE_URL and empties every table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("OUTREACH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("OUTREACH_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.InitSchema(ctx, conn))
	_, err = conn.ExecContext(ctx, `TRUNCATE alert_claims, action_tokens, entities`)
	require.NoError(t, err)
	return conn
}

func TestPostgresEntityRepository(t *testing.T) {
	openTestDB(t)
	repotest.RunEntityContract(t, func(t *testing.T, rules repository.Rules) repository.EntityRepositoryInterface {
		return &repository.EntityRepository{DB: openTestDB(t), Rules: rules}
	})
}

func TestPostgresTokenRepository(t *testing.T) {
	conn := openTestDB(t)
	entities := &repository.EntityRepository{DB: conn, Rules: repotest.DefaultRules()}
	require.NoError(t, entities.Create(context.Background(), repotest.NewEntity("e1", "outreach")))

	repotest.RunTokenContract(t, &repository.TokenRepository{DB: conn}, "e1")
}

func TestPostgresAlertRepository(t *testing.T) {
	repotest.RunAlertContract(t, &repository.AlertRepository{DB: openTestDB(t)})
}
