// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/alert"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

// Registry is what the service needs from the sequence registry.
type Registry interface {
	SequenceSource
	TemplateSource
}

// Scorer rates inbound text for urgency.
type Scorer interface {
	Score(text string) model.Score
}

type CampaignService struct {
	Entities  repository.EntityRepositoryInterface
	Sequences Registry
	Tokens    *TokenRegistry
	Scorer    Scorer
	Scheduler *Scheduler
	Alerts    *alert.Notifier
	Now       func() time.Time
	Log       *zap.Logger

	MaxBatch     int
	CallDeadline time.Duration
}

// ImportRequest describes one contact to track.
type ImportRequest struct {
	NaturalKey   string            `json:"natural_key"`
	Category     string            `json:"category"`
	Address      string            `json:"address"`
	Attrs        map[string]string `json:"attrs"`
	SequenceType string            `json:"sequence_type,omitempty"`
}

// TokenResolution is the outcome of a consumed action link.
type TokenResolution struct {
	EntityID string           `json:"entity_id"`
	Kind     model.ActionKind `json:"kind"`
	Status   model.Status     `json:"status"`
}

// ImportEntity starts tracking a new contact. A reused natural key returns
// ErrConflict and leaves the existing entity untouched.
func (s *CampaignService) ImportEntity(ctx context.Context, req ImportRequest) (*model.Entity, error) {
	key := strings.TrimSpace(req.NaturalKey)
	if key == "" {
		return nil, appErrors.NewValidation("natural_key", "required")
	}
	if req.SequenceType != "" {
		if _, ok := s.Sequences.Sequence(req.SequenceType); !ok {
			return nil, fmt.Errorf("sequence %q: %w", req.SequenceType, appErrors.ErrNotFound)
		}
	}

	now := s.Now()
	e := &model.Entity{
		ID:           uuid.NewString(),
		NaturalKey:   key,
		Category:     strings.TrimSpace(req.Category),
		Address:      strings.TrimSpace(req.Address),
		Attrs:        req.Attrs,
		Status:       model.StatusNew,
		SequenceType: req.SequenceType,
		LastActionAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Entities.Create(ctx, e); err != nil {
		return nil, err
	}
	s.Log.Info("entity imported",
		zap.String("entity_id", e.ID),
		zap.String("natural_key", e.NaturalKey),
		zap.String("sequence", e.SequenceType))
	return e, nil
}

func (s *CampaignService) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	return s.Entities.GetByID(ctx, id)
}

// StartSequence enrols an entity that has not been contacted yet. Restarting
// the same sequence is a no-op.
func (s *CampaignService) StartSequence(ctx context.Context, entityID, sequenceType string) (*model.Entity, error) {
	if _, ok := s.Sequences.Sequence(sequenceType); !ok {
		return nil, fmt.Errorf("sequence %q: %w", sequenceType, appErrors.ErrNotFound)
	}
	return s.Entities.StartSequence(ctx, entityID, sequenceType, s.Now())
}

// RunSweep processes entities due at now with the configured batch size and
// per-call deadline.
func (s *CampaignService) RunSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	return s.Scheduler.RunSweep(ctx, now, s.MaxBatch, s.CallDeadline)
}

// ResolveToken consumes an action link and moves its entity to the matching
// terminal status. If the entity already reached a terminal status, the
// first one stays.
//
// The transition is committed before the token is consumed, so a failed
// transition leaves the link valid for a retry. Both writes run detached
// from ctx: a client that goes away mid-request cannot split them.
func (s *CampaignService) ResolveToken(ctx context.Context, token string) (*TokenResolution, error) {
	t, err := s.Tokens.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	status, ok := t.Kind.TerminalStatus()
	if !ok {
		return nil, appErrors.NewInvalidState(t.EntityID, "token has unknown action "+string(t.Kind))
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	e, err := s.Entities.Transition(commitCtx, t.EntityID, status, s.Now())
	if err != nil {
		return nil, err
	}
	if _, err := s.Tokens.Resolve(commitCtx, token); err != nil {
		return nil, err
	}
	s.Log.Info("action token resolved",
		zap.String("entity_id", e.ID),
		zap.String("kind", string(t.Kind)),
		zap.String("status", string(e.Status)))
	return &TokenResolution{EntityID: e.ID, Kind: t.Kind, Status: e.Status}, nil
}

func (s *CampaignService) Score(text string) model.Score {
	return s.Scorer.Score(text)
}

// GetStats returns counters for category, or for every entity when category
// is empty.
func (s *CampaignService) GetStats(ctx context.Context, category string) (*model.CampaignStats, error) {
	return s.Entities.Stats(ctx, strings.TrimSpace(category))
}

func (s *CampaignService) Reactivate(ctx context.Context, entityID string) (*model.Entity, error) {
	return s.Entities.Reactivate(ctx, entityID, s.Now())
}

func (s *CampaignService) ListStalled(ctx context.Context, limit int) ([]*model.Entity, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.Entities.ListStalled(ctx, limit)
}

func (s *CampaignService) HandleInbound(ctx context.Context, msg model.InboundMessage) (*alert.Outcome, error) {
	return s.Alerts.HandleInbound(ctx, msg)
}

// Preview renders the entity's current step, or the step at cursor when
// given, with placeholder action links. Nothing is issued or sent.
func (s *CampaignService) Preview(ctx context.Context, entityID string, cursor *int) (*Rendered, error) {
	e, err := s.Entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if e.SequenceType == "" {
		return nil, appErrors.NewInvalidState(e.ID, "no sequence started")
	}
	def, ok := s.Sequences.Sequence(e.SequenceType)
	if !ok {
		return nil, fmt.Errorf("sequence %q: %w", e.SequenceType, appErrors.ErrNotFound)
	}
	at := e.Cursor
	if cursor != nil {
		at = *cursor
	}
	step, ok := def.StepAt(at)
	if !ok {
		return nil, appErrors.NewInvalidState(e.ID, fmt.Sprintf("sequence %s has no step %d", e.SequenceType, at))
	}
	tpl, ok := s.Sequences.Template(step.TemplateID)
	if !ok {
		return nil, fmt.Errorf("template %q: %w", step.TemplateID, appErrors.ErrNotFound)
	}
	msg := RenderMessage(tpl, templateData(e, map[string]string{
		"booking_url": "[booking link]",
		"optout_url":  "[opt-out link]",
	}))
	return &msg, nil
}
