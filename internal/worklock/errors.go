package worklock

import "errors"

var (
	// ErrHeldByLiveProcess is returned by Acquire when the existing lock's
	// recorded pid is still alive — the caller is a duplicate worker and
	// should exit cleanly.
	ErrHeldByLiveProcess = errors.New("worker lock held by a live process")

	// ErrAcquireRetriesExhausted is returned when every stale-lock reclaim
	// attempt still lost the race to claim the lock file.
	ErrAcquireRetriesExhausted = errors.New("exhausted worker lock acquire retries")

	// ErrTokenMismatch is returned by Release when the on-disk lock's token
	// no longer matches the token this handle was acquired with.
	ErrTokenMismatch = errors.New("worker lock token mismatch")
)
