package rota

import "errors"

// Sentinel errors for the engine's failure taxonomy. Callers classify with
// errors.Is; nothing here is retried automatically.
var (
	// ErrPrecondition rejects malformed generation input before any write.
	ErrPrecondition = errors.New("precondition failed")

	// ErrNotFound marks an absent rota, staff member or assignment reference.
	ErrNotFound = errors.New("not found")

	// ErrImmutable rejects direct edits to published or archived documents.
	ErrImmutable = errors.New("document is immutable")

	// ErrBadTransition rejects a lifecycle move the state machine disallows.
	ErrBadTransition = errors.New("invalid status transition")
)
