package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/channel"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

// ErrRateWait means the sweep ended before the channel's rate gate opened.
// Nothing was sent.
var ErrRateWait = errors.New("rate gate wait abandoned")

// TemplateSource resolves template ids to content.
type TemplateSource interface {
	Template(id string) (model.Template, bool)
}

// Dispatcher executes one sequence step for one entity: render, issue action
// tokens, wait for the channel's rate gate and send.
type Dispatcher struct {
	Entities  repository.EntityRepositoryInterface
	Templates TemplateSource
	Tokens    *TokenRegistry
	Senders   map[string]channel.Sender
	Gates     *RateGates
	// LinkBaseURL prefixes /t/{token} in rendered action links.
	LinkBaseURL string
	Log         *zap.Logger
}

// Dispatch sends step to the entity the caller listed as due. ctx bounds the
// whole call including the rate-gate wait; deadline bounds the send alone.
//
// The entity is re-read first: a terminal entity returns ErrEntityTerminal and
// a moved cursor returns ErrInvalidState, neither of which sends anything.
func (d *Dispatcher) Dispatch(ctx context.Context, listed *model.Entity, step model.Step, deadline time.Duration) error {
	e, err := d.Entities.GetByID(ctx, listed.ID)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return appErrors.ErrEntityTerminal
	}
	if e.Cursor != listed.Cursor || e.SequenceType != listed.SequenceType {
		return appErrors.NewInvalidState(e.ID, "entity changed since it was listed")
	}

	tpl, ok := d.Templates.Template(step.TemplateID)
	if !ok {
		return fmt.Errorf("template %q: %w", step.TemplateID, appErrors.ErrNotFound)
	}
	sender, ok := d.Senders[step.Channel]
	if !ok {
		return appErrors.NewChannelError(step.Channel, fmt.Errorf("no sender configured"))
	}

	links, err := d.issueLinks(ctx, e.ID)
	if err != nil {
		return err
	}
	msg := RenderMessage(tpl, templateData(e, links))

	if err := d.Gates.Wait(ctx, step.Channel); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRateWait, step.Channel, err)
	}
	if err := sendWithDeadline(ctx, deadline, sender, e.Address, msg); err != nil {
		return appErrors.NewChannelError(step.Channel, err)
	}

	d.Log.Info("step dispatched",
		zap.String("entity_id", e.ID),
		zap.String("sequence", e.SequenceType),
		zap.Int("step", step.Index),
		zap.String("channel", step.Channel))
	return nil
}

func (d *Dispatcher) issueLinks(ctx context.Context, entityID string) (map[string]string, error) {
	booking, err := d.Tokens.Issue(ctx, entityID, model.ActionBooking)
	if err != nil {
		return nil, err
	}
	optout, err := d.Tokens.Issue(ctx, entityID, model.ActionOptOut)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(d.LinkBaseURL, "/")
	return map[string]string{
		"booking_url": base + "/t/" + booking,
		"optout_url":  base + "/t/" + optout,
	}, nil
}

// sendWithDeadline runs the send in its own goroutine so a sender that
// ignores its context still cannot hold the worker past the deadline.
func sendWithDeadline(ctx context.Context, deadline time.Duration, sender channel.Sender, to string, msg Rendered) error {
	callCtx := ctx
	if deadline > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- sender.Send(callCtx, to, msg.Subject, msg.Body)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return callCtx.Err()
	}
}
