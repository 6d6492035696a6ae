// Package kerrors defines the kernel core's error taxonomy.
//
// Synchronous failures are returned to the caller as ordinary Go errors,
// wrapping one of the sentinels below so callers can classify with
// errors.Is. Conditions detected from interrupt context cannot unwind and
// never surface as a returned error: they are logged through klog and the
// call degrades to its documented no-op.
package kerrors

import "errors"

var (
	// ErrOutOfMemory is returned when a stack or thread record allocation
	// fails. Recoverable: the caller of thread_create gets it back.
	ErrOutOfMemory = errors.New("kernel: out of memory")

	// ErrInvalidThread means a thread id is unknown or already Dead.
	// Callers that can reasonably continue get this error; interrupt-context
	// callers log and no-op instead of returning it.
	ErrInvalidThread = errors.New("kernel: invalid thread")

	// ErrForeignUnlock means a mutex was unlocked by a thread that does not
	// own it. The lock is left held.
	ErrForeignUnlock = errors.New("kernel: unlock by non-owner")

	// ErrDeadlockSuspected means a spinlock was re-entered by the CPU that
	// already holds it. Debug builds panic on this; see spinlock package.
	ErrDeadlockSuspected = errors.New("kernel: deadlock suspected")

	// ErrTooManyThreads means the global thread table is at MAX_THREADS.
	ErrTooManyThreads = errors.New("kernel: thread table full")

	// ErrInvalidPriority means thread_create was asked for a priority
	// outside [1, PriorityLevels-1]; priority 0 is reserved for idle
	// threads and is never accepted from a caller.
	ErrInvalidPriority = errors.New("kernel: invalid priority")
)

// Unreachable panics with a diagnostic. Used for conditions that are always
// a kernel panic: control flow returning past thread_exit, or a nil
// current_thread observed after initialization.
func Unreachable(why string) {
	panic("kernel: unreachable: " + why)
}
