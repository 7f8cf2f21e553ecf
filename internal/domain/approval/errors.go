package approval

import "errors"

var (
	ErrRecordNotFound         = errors.New("approval record not found")
	ErrNotActionable          = errors.New("approval level is not awaiting a decision")
	ErrAlreadyDecided         = errors.New("approval level already decided")
	ErrUnauthorized           = errors.New("approver not assigned to this level")
	ErrNoApprover             = errors.New("approval level has no approver")
	ErrInvalidDecision        = errors.New("invalid approval decision")
	ErrConcurrentModification = errors.New("approval record modified concurrently")
)
