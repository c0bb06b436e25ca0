package gate

import "errors"

var (
	// ErrReviewIncomplete covers any structural defect in a review object:
	// missing fields, wrong verdict domain, or a changes_requested verdict
	// with no corrective follow-up.
	ErrReviewIncomplete = errors.New("review gate: output is structurally incomplete")

	// ErrCommitShaMismatch is returned when the review's targetCommitSha
	// does not match the commit advertised in signals.reviewTarget.
	ErrCommitShaMismatch = errors.New("review gate: targetCommitSha mismatch")

	// ErrNestedReinvocation is returned when the assistant text shows signs
	// of a nested CLI call the review gate disallows.
	ErrNestedReinvocation = errors.New("review gate: nested CLI re-invocation detected")

	// ErrArtifactEscapesRoot is returned when a review artifact path would
	// resolve outside the bus root.
	ErrArtifactEscapesRoot = errors.New("review gate: artifact path escapes bus root")

	// ErrQualityGateFailed is returned when one or more blocking
	// code-quality checks fail.
	ErrQualityGateFailed = errors.New("quality gate: one or more blocking checks failed")
)
