package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/service"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	return &config.Config{
		Service:  config.Service{PublicBaseURL: "https://out.example.com"},
		Store:    config.Store{Driver: driver, BoltPath: filepath.Join(t.TempDir(), "outreach.db"), MaxFailures: 3},
		Sweep:    config.Sweep{MaxBatch: 10, Workers: 2, PerCallDeadline: time.Second},
		Channel:  config.Channel{Sender: "log", SessionBaseURL: "https://meet.example.com", SessionMinutes: 30},
		Scoring:  config.Scoring{Threshold: 30},
		Notifier: config.Notifier{Driver: "memory", Topic: "hot_leads"},
	}
}

func TestBuildWiresEveryLocalStore(t *testing.T) {
	for _, driver := range []string{"memory", "bolt"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			a, err := Build(ctx, testConfig(t, driver), zap.NewNop())
			require.NoError(t, err)
			defer a.Close()

			svc := a.Service
			e, err := svc.ImportEntity(ctx, service.ImportRequest{
				NaturalKey:   "place-1",
				Address:      "owner@example.com",
				SequenceType: "prospect_outreach",
			})
			require.NoError(t, err)

			res, err := svc.RunSweep(ctx, time.Now().Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 1, res.Advanced)

			got, err := svc.GetEntity(ctx, e.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.Cursor)
		})
	}
}

func TestBuildRejectsUnknownSender(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Channel.Sender = "pigeon"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "pigeon")
}

func TestCloseJoinsErrors(t *testing.T) {
	var order []int
	a := &App{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return assert.AnError },
	}}
	assert.ErrorIs(t, a.Close(), assert.AnError)
	assert.Equal(t, []int{2, 1}, order)
}
