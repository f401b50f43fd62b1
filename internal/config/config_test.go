package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OUTREACH_STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Service.Environment)
	assert.Equal(t, 5, cfg.Store.MaxFailures)
	assert.Equal(t, 100, cfg.Sweep.MaxBatch)
	assert.Equal(t, 15*time.Second, cfg.Sweep.PerCallDeadline)
	assert.GreaterOrEqual(t, cfg.Sweep.Timeout, cfg.Sweep.DrainTime(cfg.Channel.MinInterval))
	assert.Equal(t, 30, cfg.Scoring.Threshold)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Notifier.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OUTREACH_STORE_DRIVER", "bolt")
	t.Setenv("OUTREACH_STORE_MAX_FAILURES", "3")
	t.Setenv("OUTREACH_SWEEP_CALL_DEADLINE", "5s")
	t.Setenv("OUTREACH_NOTIFIER_DRIVER", "kafka")
	t.Setenv("OUTREACH_NOTIFIER_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Store.MaxFailures)
	assert.Equal(t, 5*time.Second, cfg.Sweep.PerCallDeadline)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notifier.KafkaBrokers)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("OUTREACH_STORE_DRIVER", "redis")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsSweepTimeoutBelowDrainTime(t *testing.T) {
	t.Setenv("OUTREACH_STORE_DRIVER", "memory")
	t.Setenv("OUTREACH_SWEEP_MAX_BATCH", "100")
	t.Setenv("OUTREACH_CHANNEL_MIN_INTERVAL", "2s")
	t.Setenv("OUTREACH_SWEEP_TIMEOUT", "2m")

	_, err := Load()
	assert.ErrorContains(t, err, "OUTREACH_SWEEP_TIMEOUT")
}

func TestDrainTime(t *testing.T) {
	s := Sweep{MaxBatch: 10, PerCallDeadline: 5 * time.Second}
	assert.Equal(t, 25*time.Second, s.DrainTime(2*time.Second))
}

func TestLoadRequiresSESFrom(t *testing.T) {
	t.Setenv("OUTREACH_STORE_DRIVER", "memory")
	t.Setenv("OUTREACH_CHANNEL_SENDER", "ses")

	_, err := Load()
	assert.ErrorContains(t, err, "SES_FROM_EMAIL")
}

func TestDSN(t *testing.T) {
	db := DB{User: "user", Password: "pass", Host: "db", Port: "5432", Name: "outreach", SSLMode: "disable"}
	assert.Equal(t, "postgres://user:pass@db:5432/outreach?sslmode=disable", db.DSN())

	db.URL = "postgres://other"
	assert.Equal(t, "postgres://other", db.DSN())
}
