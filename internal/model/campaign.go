// internal/model/campaign.go
package model

import "time"

// Status is the lifecycle state of a tracked entity.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusBooked    Status = "booked"
	StatusOptedOut  Status = "opted_out"
)

// Terminal reports whether no further automated step may run for the status.
func (s Status) Terminal() bool {
	return s == StatusBooked || s == StatusOptedOut
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusBooked, StatusOptedOut:
		return true
	}
	return false
}

// Entity is a contact/lead progressing through one outreach sequence.
type Entity struct {
	ID           string            `db:"id" json:"id"`
	NaturalKey   string            `db:"natural_key" json:"natural_key"`
	Category     string            `db:"category" json:"category"`
	Address      string            `db:"address" json:"address"`
	Attrs        map[string]string `db:"attrs" json:"attrs,omitempty"`
	Status       Status            `db:"status" json:"status"`
	SequenceType string            `db:"sequence_type" json:"sequence_type,omitempty"`
	Cursor       int               `db:"step_cursor" json:"cursor"`
	FailureCount int               `db:"failure_count" json:"failure_count"`
	Stalled      bool              `db:"stalled" json:"stalled"`
	LastActionAt time.Time         `db:"last_action_at" json:"last_action_at"`
	NextDueAt    *time.Time        `db:"next_due_at" json:"next_due_at,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers never share the attrs map with a store.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.Attrs != nil {
		c.Attrs = make(map[string]string, len(e.Attrs))
		for k, v := range e.Attrs {
			c.Attrs[k] = v
		}
	}
	if e.NextDueAt != nil {
		t := *e.NextDueAt
		c.NextDueAt = &t
	}
	return &c
}

// Due reports whether the entity is eligible for its next step at now.
func (e *Entity) Due(now time.Time) bool {
	if e.Status.Terminal() || e.Stalled || e.NextDueAt == nil {
		return false
	}
	return !now.Before(*e.NextDueAt)
}

// CampaignStats aggregates entity counters, globally or for one category.
type CampaignStats struct {
	Category  string `json:"category,omitempty"`
	Total     int    `json:"total"`
	Contacted int    `json:"contacted"`
	Booked    int    `json:"booked"`
	OptedOut  int    `json:"opted_out"`
	Stalled   int    `json:"stalled"`
}

// Count folds one entity into the counters.
func (s *CampaignStats) Count(e *Entity) {
	s.Total++
	if e.Cursor > 0 {
		s.Contacted++
	}
	switch e.Status {
	case StatusBooked:
		s.Booked++
	case StatusOptedOut:
		s.OptedOut++
	}
	if e.Stalled {
		s.Stalled++
	}
}
