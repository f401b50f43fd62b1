package repository

import (
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

const defaultMaxFailures = 5

// Rules is the entity state machine shared by every store implementation.
// Each Apply* method mutates e in place and reports whether anything changed;
// stores persist e only when it did.
type Rules struct {
	Schedule    Schedule
	MaxFailures int
}

func (r Rules) maxFailures() int {
	if r.MaxFailures < 1 {
		return defaultMaxFailures
	}
	return r.MaxFailures
}

// NextDueAt derives when the step at e.Cursor becomes due.
func (r Rules) NextDueAt(e *model.Entity) *time.Time {
	if r.Schedule == nil || e.SequenceType == "" || e.Status.Terminal() {
		return nil
	}
	delay, ok := r.Schedule.NextDelay(e.SequenceType, e.Cursor)
	if !ok {
		return nil
	}
	due := e.LastActionAt.Add(delay)
	return &due
}

func (r Rules) ApplyStartSequence(e *model.Entity, sequenceType string, now time.Time) (bool, error) {
	if e.Status.Terminal() || e.SequenceType == sequenceType {
		return false, nil
	}
	if e.Cursor > 0 {
		return false, appErrors.NewInvalidState(e.ID, "sequence "+e.SequenceType+" already in progress")
	}
	e.SequenceType = sequenceType
	e.LastActionAt = now
	e.FailureCount = 0
	e.Stalled = false
	e.NextDueAt = r.NextDueAt(e)
	e.UpdatedAt = now
	return true, nil
}

// ApplyAdvance moves the cursor past the step that was just sent. fromCursor
// is the cursor the caller dispatched from; a different current cursor means
// another writer already committed that step.
func (r Rules) ApplyAdvance(e *model.Entity, fromCursor int, now time.Time) (bool, error) {
	if e.Status.Terminal() {
		return false, nil
	}
	if e.Cursor != fromCursor {
		return false, appErrors.NewInvalidState(e.ID, "cursor already moved")
	}
	if e.NextDueAt == nil {
		return false, appErrors.NewInvalidState(e.ID, "no pending step")
	}
	e.Cursor++
	e.LastActionAt = now
	if e.Status == model.StatusNew {
		e.Status = model.StatusContacted
	}
	e.FailureCount = 0
	e.Stalled = false
	e.NextDueAt = r.NextDueAt(e)
	e.UpdatedAt = now
	return true, nil
}

// ApplyTransition sets a terminal status. The first terminal transition wins.
func (r Rules) ApplyTransition(e *model.Entity, status model.Status, now time.Time) (bool, error) {
	if !status.Terminal() {
		return false, appErrors.NewInvalidState(e.ID, "transition target "+string(status)+" is not terminal")
	}
	if e.Status.Terminal() {
		return false, nil
	}
	e.Status = status
	e.NextDueAt = nil
	e.UpdatedAt = now
	return true, nil
}

func (r Rules) ApplyFailure(e *model.Entity, now time.Time) (bool, error) {
	if e.Status.Terminal() {
		return false, nil
	}
	e.FailureCount++
	if e.FailureCount >= r.maxFailures() {
		e.Stalled = true
	}
	e.UpdatedAt = now
	return true, nil
}

// ApplyReactivate clears the stalled flag after manual review. The failure
// count is kept, so one more failed dispatch stalls the entity again.
func (r Rules) ApplyReactivate(e *model.Entity, now time.Time) (bool, error) {
	if e.Status.Terminal() || !e.Stalled {
		return false, nil
	}
	e.Stalled = false
	e.UpdatedAt = now
	return true, nil
}
