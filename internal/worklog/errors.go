package worklog

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("work log not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDuplicateActiveJob = errors.New("plate already has an open job")
	ErrEmptyPlate         = errors.New("plate is empty")
)

// TransitionError reports a state change requested from the wrong source state.
type TransitionError struct {
	ID   string
	Op   string
	From Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s from %s", ErrInvalidTransition, e.ID, e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// DuplicateActiveJobError carries the open job that blocked a create.
type DuplicateActiveJobError struct {
	Existing WorkLog
}

func (e *DuplicateActiveJobError) Error() string {
	return fmt.Sprintf("%s: %s (job %s)", ErrDuplicateActiveJob, e.Existing.Plate, e.Existing.ID)
}

func (e *DuplicateActiveJobError) Unwrap() error { return ErrDuplicateActiveJob }
