package followup

import "errors"

var (
	// ErrSelfTargeting is returned for a child spec that names its own
	// parent as a recipient.
	ErrSelfTargeting = errors.New("follow-up: child packet cannot target its own parent")

	// ErrTruncated is returned once, appended to the per-item error list,
	// when the caller submits more than MaxItems child specs.
	ErrTruncated = errors.New("follow-up: excess items beyond the per-dispatch limit were dropped")
)
