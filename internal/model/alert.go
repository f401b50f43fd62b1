// internal/model/alert.go
package model

import "time"

// Priority classifies an urgency score.
type Priority string

const (
	PriorityNone     Priority = "NONE"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Reported reports whether the priority should reach the notifier.
func (p Priority) Reported() bool {
	return p != "" && p != PriorityNone
}

// Score is the typed result of urgency scoring.
type Score struct {
	Value    int      `json:"value"`
	Priority Priority `json:"priority"`
}

// InboundMessage is a reply or form message received from a contact.
type InboundMessage struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
}

// HotLead is the notification published for a reported inbound message.
type HotLead struct {
	MessageID  string    `json:"message_id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Score      int       `json:"score"`
	Priority   Priority  `json:"priority"`
	JoinURL    string    `json:"join_url,omitempty"`
	HostURL    string    `json:"host_url,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// AlertClaim records that one inbound message has been handled.
type AlertClaim struct {
	MessageID string    `db:"message_id" json:"message_id"`
	Priority  Priority  `db:"priority" json:"priority"`
	Done      bool      `db:"done" json:"done"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
