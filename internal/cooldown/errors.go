package cooldown

import "errors"

// ErrNoSlotAvailable is returned by Semaphore.Acquire when every pass
// exhausted its retries without claiming a slot.
var ErrNoSlotAvailable = errors.New("no semaphore slot available")
