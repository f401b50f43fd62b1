// Package alert turns urgent inbound replies into hot-lead notifications,
// at most once per source message.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/channel"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

// Scorer rates inbound text.
type Scorer interface {
	Score(text string) model.Score
}

// Outcome reports what HandleInbound did with one message.
type Outcome struct {
	Score     model.Score    `json:"score"`
	Notified  bool           `json:"notified"`
	Duplicate bool           `json:"duplicate"`
	Lead      *model.HotLead `json:"lead,omitempty"`
}

type Notifier struct {
	Claims         repository.AlertRepositoryInterface
	Scorer         Scorer
	Sessions       channel.SessionCreator
	Publisher      queue.Publisher
	Topic          string
	SessionMinutes int
	Now            func() time.Time
	Log            *zap.Logger
}

// HandleInbound scores msg and, when the priority is reported, claims the
// message id, opens a live session for CRITICAL leads and publishes one
// HotLead. A claim is released on failure only while no session exists, so a
// retry can never open a second session for the same message.
func (n *Notifier) HandleInbound(ctx context.Context, msg model.InboundMessage) (*Outcome, error) {
	if strings.TrimSpace(msg.MessageID) == "" {
		return nil, appErrors.NewValidation("message_id", "required")
	}
	score := n.Scorer.Score(msg.Subject + "\n" + msg.Text)
	out := &Outcome{Score: score}
	if !score.Priority.Reported() {
		return out, nil
	}

	now := n.Now()
	claimed, err := n.Claims.Claim(ctx, msg.MessageID, score.Priority, now)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", msg.MessageID, err)
	}
	if !claimed {
		out.Duplicate = true
		return out, nil
	}

	lead := &model.HotLead{
		MessageID:  msg.MessageID,
		From:       msg.From,
		Subject:    msg.Subject,
		Score:      score.Value,
		Priority:   score.Priority,
		DetectedAt: now,
	}

	if score.Priority == model.PriorityCritical {
		session, err := n.Sessions.CreateSession(ctx, "Hot lead: "+msg.From, n.SessionMinutes)
		if err != nil {
			n.release(ctx, msg.MessageID)
			return nil, appErrors.NewChannelError("session", err)
		}
		lead.JoinURL = session.JoinURL
		lead.HostURL = session.HostURL
	}

	payload, err := json.Marshal(lead)
	if err != nil {
		return nil, fmt.Errorf("encode hot lead: %w", err)
	}
	if err := n.Publisher.Publish(queue.WithKey(ctx, msg.MessageID), n.Topic, payload); err != nil {
		if lead.JoinURL == "" {
			n.release(ctx, msg.MessageID)
		} else {
			n.Log.Error("hot lead published nowhere, session kept",
				zap.String("message_id", msg.MessageID),
				zap.String("join_url", lead.JoinURL),
				zap.Error(err))
		}
		return nil, appErrors.NewChannelError("notifier", err)
	}

	if err := n.Claims.Complete(ctx, msg.MessageID); err != nil {
		return nil, fmt.Errorf("complete %s: %w", msg.MessageID, err)
	}

	n.Log.Info("hot lead notified",
		zap.String("message_id", msg.MessageID),
		zap.Int("score", score.Value),
		zap.String("priority", string(score.Priority)))
	out.Notified = true
	out.Lead = lead
	return out, nil
}

func (n *Notifier) release(ctx context.Context, messageID string) {
	if err := n.Claims.Release(ctx, messageID); err != nil {
		n.Log.Error("failed to release alert claim", zap.String("message_id", messageID), zap.Error(err))
	}
}
