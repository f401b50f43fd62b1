// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned when an import reuses a natural key.
	ErrConflict = errors.New("conflict")
	// ErrNotFound covers unknown entities, unknown sequences and unknown or consumed tokens.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned for mutations the entity's current state does not allow.
	ErrInvalidState = errors.New("invalid state")
	// ErrChannel is a transient transport failure, including deadline expiry.
	ErrChannel = errors.New("channel error")
	// ErrEntityTerminal means the entity became booked or opted out before the send.
	ErrEntityTerminal = errors.New("entity is terminal")
	// ErrValidation is returned for malformed caller input.
	ErrValidation = errors.New("validation failed")
)

// EntityNotFoundError carries the missing entity id.
type EntityNotFoundError struct {
	ID string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity with ID %s not found", e.ID)
}

func (e *EntityNotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewEntityNotFound is the helper constructor used by repositories.
func NewEntityNotFound(id string) error {
	return &EntityNotFoundError{ID: id}
}

// DuplicateKeyError is returned by imports of an already tracked natural key.
type DuplicateKeyError struct {
	NaturalKey string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("entity with natural key %q already exists", e.NaturalKey)
}

func (e *DuplicateKeyError) Is(target error) bool { return target == ErrConflict }

func NewDuplicateKey(naturalKey string) error {
	return &DuplicateKeyError{NaturalKey: naturalKey}
}

// ChannelError wraps a sender failure for one channel.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("channel %s: send failed", e.Channel)
	}
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Is(target error) bool { return target == ErrChannel }

func (e *ChannelError) Unwrap() error { return e.Err }

func NewChannelError(channel string, err error) error {
	return &ChannelError{Channel: channel, Err: err}
}

// InvalidStateError describes why a mutation was refused.
type InvalidStateError struct {
	ID     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("entity %s: %s", e.ID, e.Reason)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

func NewInvalidState(id, reason string) error {
	return &InvalidStateError{ID: id, Reason: reason}
}

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
