package gitpreflight

import "errors"

var (
	// ErrMissingRequiredFields is returned in strict mode when baseSha or
	// workBranch is absent from references.git.
	ErrMissingRequiredFields = errors.New("git preflight: baseSha and workBranch are required in strict mode")

	// ErrDirtyWorkingTree is returned when the repo has uncommitted changes
	// before a branch switch or creation is attempted.
	ErrDirtyWorkingTree = errors.New("git preflight: working tree is dirty")

	// ErrCheckoutFailed wraps a failed checkout or branch-creation attempt.
	ErrCheckoutFailed = errors.New("git preflight: checkout failed")

	// ErrBaseNotAncestor is returned when baseSha is not reachable from HEAD
	// after checkout.
	ErrBaseNotAncestor = errors.New("git preflight: base commit is not an ancestor of HEAD")
)
