package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized       = errors.New("workflow not initialized")
	ErrAlreadyInitialized   = errors.New("workflow already initialized")
	ErrInvalidState         = errors.New("invalid state")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrValidationFailed     = errors.New("validation failed")
	ErrPaused               = errors.New("workflow paused")
	ErrInvalidReference     = errors.New("invalid reference")
	ErrDuplicateState       = errors.New("duplicate state")
	ErrArrayLengthMismatch  = errors.New("array length mismatch")
)

var (
	// ErrReentrantCall is returned when TransitionTo is entered while another call is in progress.
	ErrReentrantCall = errors.New("reentrant call")

	// ErrAlreadyHandedOff is returned by a second ownership handoff.
	ErrAlreadyHandedOff = errors.New("ownership already handed off")

	ErrHookLimitReached = errors.New("hook limit reached")
	ErrHookNotFound     = errors.New("hook not found")

	// ErrHistoryNotFound is returned for a history index that was never written.
	ErrHistoryNotFound = errors.New("history record not found")
)

// TransitionError describes a rejected TransitionTo call.
// Err is one of the sentinel errors above and can be matched with errors.Is.
type TransitionError struct {
	From         StateID
	To           StateID
	TransitionID TransitionID
	Actor        Address
	Err          error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %d from '%s' to '%s' by %s: %v", e.TransitionID, e.From, e.To, e.Actor, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsTransitionError reports whether err carries a TransitionError.
func IsTransitionError(err error) bool {
	var e *TransitionError
	return errors.As(err, &e)
}
