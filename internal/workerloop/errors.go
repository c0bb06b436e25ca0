package workerloop

import "errors"

var (
	// ErrAttemptsExhausted is returned when the inner attempt loop runs out
	// of retries without producing a usable engine artifact.
	ErrAttemptsExhausted = errors.New("workerloop: attempt loop exhausted without a usable result")

	// ErrArtifactRejected is returned when the engine's emitted artifact
	// fails to decode into the expected shape.
	ErrArtifactRejected = errors.New("workerloop: engine artifact has invalid structure")
)
