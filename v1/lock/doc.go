// Package lock provides an asynchronous mutual exclusion lock with strict
// FIFO hand-off. Release passes ownership directly to the oldest waiter, so
// the lock never looks idle while goroutines are queued on it.
//
// A lock created with WithAwaitChecking refuses to queue: Acquire on a held
// lock fails at once with ErrAlreadyHeld, turning an accidental re-acquire
// into a loud error instead of a silent deadlock.
//
// Grants and idle transitions can be published on a syncbus.Bus so that
// other processes can observe the lock.
package lock
