package packet

import "errors"

// Sentinel errors for the packet package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrNotAPacket is returned by Parse when the input does not begin with
	// a header delimiter — the sentinel for "this file is not a packet".
	ErrNotAPacket = errors.New("input does not begin with a header delimiter")

	// ErrHeaderUnterminated is returned when an opening delimiter is found
	// but no matching closing delimiter follows.
	ErrHeaderUnterminated = errors.New("header delimiter opened but never closed")

	// ErrHeaderNotJSON is returned when the header block does not parse as
	// a JSON object.
	ErrHeaderNotJSON = errors.New("header block is not a JSON object")

	// ErrMissingID is returned when the header has no id field.
	ErrMissingID = errors.New("header missing id")

	// ErrInvalidID is returned when id does not match the safe-id pattern.
	ErrInvalidID = errors.New("id does not match ^[A-Za-z0-9][A-Za-z0-9._-]{0,200}$")

	// ErrMissingFrom is returned when the header has no from field.
	ErrMissingFrom = errors.New("header missing from")

	// ErrEmptyRecipients is returned when to is empty.
	ErrEmptyRecipients = errors.New("to must be a non-empty list of recipients")

	// ErrDuplicateRecipients is returned when to contains the same agent twice.
	ErrDuplicateRecipients = errors.New("to contains duplicate recipients")

	// ErrUnknownRecipient is returned when to names an agent absent from the roster.
	ErrUnknownRecipient = errors.New("to names an unknown agent")

	// ErrMissingTitle is returned when title is empty.
	ErrMissingTitle = errors.New("header missing title")

	// ErrSignalsNotMapping is returned when signals is present but not a JSON object.
	ErrSignalsNotMapping = errors.New("signals must be a mapping when present")

	// ErrReferencesNotMapping is returned when references is present but not a JSON object.
	ErrReferencesNotMapping = errors.New("references must be a mapping when present")

	// ErrSelfTarget is returned when a follow-up targets its own dispatching agent.
	ErrSelfTarget = errors.New("packet targets the dispatching agent itself")

	// ErrSuspiciousContentBlocked is returned when the suspicious-content
	// scanner's policy is "block" and a hit was found.
	ErrSuspiciousContentBlocked = errors.New("suspicious content blocked by policy")
)
