package permits

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("permit request not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUnauthorized           = errors.New("not permitted")
	ErrConcurrentModification = errors.New("permit request modified concurrently")
	ErrTransient              = errors.New("temporary conflict, retry the operation")
	ErrBalanceAnomaly         = errors.New("balance changed between submission and approval")
	ErrNoHRApprover           = errors.New("no HR approver available")
)

// TransitionError reports an action that is not allowed from the current
// status. Cause, when set, is the lower-level reason.
type TransitionError struct {
	From   string
	Action Action
	Cause  error
}

func (e *TransitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot %s a %s request: %v", e.Action, e.From, e.Cause)
	}
	return fmt.Sprintf("cannot %s a %s request", e.Action, e.From)
}

func (e *TransitionError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidStateTransition, e.Cause}
	}
	return []error{ErrInvalidStateTransition}
}
