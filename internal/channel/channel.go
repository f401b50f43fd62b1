// Package channel holds the outbound transports the dispatcher and the
// hot-lead notifier talk to.
package channel

import "context"

// Sender delivers one rendered message to an address.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Session is a live meeting room created for a hot lead.
type Session struct {
	ID      string `json:"id"`
	JoinURL string `json:"join_url"`
	HostURL string `json:"host_url"`
}

// SessionCreator opens a live session on a meeting provider.
type SessionCreator interface {
	CreateSession(ctx context.Context, topic string, minutes int) (Session, error)
}
