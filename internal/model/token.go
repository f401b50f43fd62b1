// internal/model/token.go
package model

import "time"

// ActionKind is the inbound action a token authorises.
type ActionKind string

const (
	ActionBooking ActionKind = "booking"
	ActionOptOut  ActionKind = "optout"
)

// TerminalStatus maps the action to the status it moves an entity to.
func (k ActionKind) TerminalStatus() (Status, bool) {
	switch k {
	case ActionBooking:
		return StatusBooked, true
	case ActionOptOut:
		return StatusOptedOut, true
	}
	return "", false
}

// ActionToken binds one single-use inbound action to an entity.
type ActionToken struct {
	Token      string     `db:"token" json:"-"`
	EntityID   string     `db:"entity_id" json:"entity_id"`
	Kind       ActionKind `db:"kind" json:"kind"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	Consumed   bool       `db:"consumed" json:"consumed"`
	ConsumedAt *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
}
