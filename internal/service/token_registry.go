package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

const (
	tokenBytes       = 32
	maxIssueAttempts = 3
)

// TokenRegistry issues single-use action tokens. Only the SHA-256 of a token
// is persisted; the raw value lives in the outbound link alone.
type TokenRegistry struct {
	Repo   repository.TokenRepositoryInterface
	Now    func() time.Time
	Random io.Reader
}

func NewTokenRegistry(repo repository.TokenRepositoryInterface, now func() time.Time) *TokenRegistry {
	return &TokenRegistry{Repo: repo, Now: now, Random: rand.Reader}
}

// Issue creates and persists a pending token for the entity.
func (r *TokenRegistry) Issue(ctx context.Context, entityID string, kind model.ActionKind) (string, error) {
	if _, ok := kind.TerminalStatus(); !ok {
		return "", appErrors.NewValidation("kind", fmt.Sprintf("unknown action %q", kind))
	}
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		raw := make([]byte, tokenBytes)
		if _, err := io.ReadFull(r.Random, raw); err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		token := base64.RawURLEncoding.EncodeToString(raw)

		err := r.Repo.Insert(ctx, &model.ActionToken{
			Token:     HashToken(token),
			EntityID:  entityID,
			Kind:      kind,
			CreatedAt: r.Now(),
		})
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, appErrors.ErrConflict) {
			return "", fmt.Errorf("store token: %w", err)
		}
	}
	return "", fmt.Errorf("generate token: %d collisions in a row", maxIssueAttempts)
}

// Lookup returns the pending record for token without consuming it.
func (r *TokenRegistry) Lookup(ctx context.Context, token string) (*model.ActionToken, error) {
	if token == "" {
		return nil, appErrors.ErrNotFound
	}
	return r.Repo.Lookup(ctx, HashToken(token))
}

// Resolve consumes token. Unknown and already used tokens both return
// ErrNotFound.
func (r *TokenRegistry) Resolve(ctx context.Context, token string) (*model.ActionToken, error) {
	if token == "" {
		return nil, appErrors.ErrNotFound
	}
	return r.Repo.Consume(ctx, HashToken(token), r.Now())
}

// HashToken is the lookup key stored for a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
