package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

func TestTokenRegistryIssueAndResolve(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{t: t0}
	reg := NewTokenRegistry(repository.NewMemoryTokenRepository(), clock.Now)

	token, err := reg.Issue(ctx, "e1", model.ActionOptOut)
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	got, err := reg.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "e1", got.EntityID)
	assert.Equal(t, model.ActionOptOut, got.Kind)
	assert.Equal(t, HashToken(token), got.Token)

	_, err = reg.Resolve(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = reg.Resolve(ctx, "")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTokenRegistryStoresOnlyTheHash(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTokenRepository()
	reg := NewTokenRegistry(repo, (&testClock{t: t0}).Now)

	token, err := reg.Issue(ctx, "e1", model.ActionBooking)
	require.NoError(t, err)

	_, err = repo.Consume(ctx, token, t0)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = repo.Consume(ctx, HashToken(token), t0)
	assert.NoError(t, err)
}

func TestTokenRegistryRetriesCollisions(t *testing.T) {
	ctx := context.Background()
	reg := NewTokenRegistry(repository.NewMemoryTokenRepository(), (&testClock{t: t0}).Now)

	// the first two draws repeat, the third is fresh
	same := bytes.Repeat([]byte{1}, 32)
	fresh := bytes.Repeat([]byte{2}, 32)
	reg.Random = bytes.NewReader(append(append(append([]byte{}, same...), same...), fresh...))

	first, err := reg.Issue(ctx, "e1", model.ActionBooking)
	require.NoError(t, err)
	second, err := reg.Issue(ctx, "e1", model.ActionBooking)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestTokenRegistryRejectsUnknownKind(t *testing.T) {
	reg := NewTokenRegistry(repository.NewMemoryTokenRepository(), (&testClock{t: t0}).Now)
	_, err := reg.Issue(context.Background(), "e1", model.ActionKind("refund"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
