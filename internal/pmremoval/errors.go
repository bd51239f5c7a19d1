package pmremoval

import "github.com/Simplici0/sowhours/internal/apperr"

var (
	// ErrNotFound is returned for unknown request ids.
	ErrNotFound = apperr.NotFound("pm hours removal request")

	// ErrNotPending guards the state machine: only pending requests can be
	// approved or rejected.
	ErrNotPending = apperr.State("pm hours removal request is not pending")

	// ErrPendingExists blocks a second open request for the same SOW.
	ErrPendingExists = apperr.State("a pending pm hours removal request already exists for this sow")

	// ErrAlreadyRemoved blocks new requests once a removal was approved.
	ErrAlreadyRemoved = apperr.State("pm hours were already removed from this sow")
)
