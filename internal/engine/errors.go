package engine

import "errors"

var (
	// errSuperseded is the context-cancellation cause when the packet's
	// mtime advances past the attempt's baseline mid-flight.
	errSuperseded = errors.New("packet superseded by a mid-flight update")

	// errWatchdogTimeout is the context-cancellation cause when the hard
	// watchdog timeout elapses with no completion or supersession.
	errWatchdogTimeout = errors.New("engine watchdog timeout")

	// ErrArtifactUnreadable is returned when the engine's structured-output
	// artifact file cannot be read after the process exits cleanly.
	ErrArtifactUnreadable = errors.New("engine artifact unreadable")

	// ErrArtifactInvalid is returned when the artifact file exists but is
	// not valid JSON.
	ErrArtifactInvalid = errors.New("engine artifact is not valid JSON")
)
