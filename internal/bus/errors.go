package bus

import "errors"

// Sentinel errors for the bus package.
var (
	// ErrTaskNotFound is returned when a task id cannot be located in any
	// of an agent's state directories.
	ErrTaskNotFound = errors.New("task not found in any state directory")

	// ErrAlreadyInProgress is returned by claimTask when the task is
	// already claimed.
	ErrAlreadyInProgress = errors.New("task already in_progress")

	// ErrAlreadyProcessed is returned by claimTask or update when the task
	// has already been closed.
	ErrAlreadyProcessed = errors.New("task already processed")

	// ErrVanished names the case of an enumerated task that no longer
	// exists in any live state directory. No function in this package
	// returns it; FindTaskPath reports that case as ErrTaskNotFound.
	ErrVanished = errors.New("task vanished from all state directories")

	// ErrCollisionRetriesExhausted is returned by deliver when every
	// collision-suffix attempt for a recipient's inbox filename failed.
	ErrCollisionRetriesExhausted = errors.New("exhausted filename collision retries")

	// ErrReceiptExists is returned by WriteReceipt when a receipt for the
	// (agent, task id) pair has already been written.
	ErrReceiptExists = errors.New("receipt already exists")
)
