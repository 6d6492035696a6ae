// Package spinlock implements the kernel's test-and-set spinlock: a lock
// word that spins rather than suspending the caller, plus an owner-CPU id
// kept for diagnostics only.
//
// The lock word and the owner field each sit on their own cache line so
// contending CPUs do not false-share, and the acquire loop backs off
// exponentially through a caller-supplied pause hint between attempts.
// Holders must not block, yield, or take an interrupt that acquires the
// same lock; interrupt-context peers use TryLock only.
package spinlock

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/Whoisraeen/Scarlett-OS-sub003/internal/kerrors"
)

const (
	free       uint32 = 0
	held       uint32 = 1
	maxBackoff        = 8
)

// Pauser hints that the caller is spinning, so the CPU can relax
// (PAUSE/YIELD) instead of burning full issue bandwidth. A nil Pauser is
// legal: Lock then spins without the hint, which is correct, just less
// power-efficient.
type Pauser interface {
	Pause()
}

// Spinlock is a non-reentrant test-and-set lock. The zero value is unlocked
// and ready to use.
type Spinlock struct {
	_     cpu.CacheLinePad
	state atomic.Uint32
	_     cpu.CacheLinePad
	owner atomic.Int32 // CPU id of the holder, -1 once released (0 in a never-locked zero value); diagnostics only.
}

// New returns a ready-to-use, unlocked Spinlock. Provided for symmetry with
// the rest of the package's constructors; the zero value works too.
func New() *Spinlock {
	sl := &Spinlock{}
	sl.owner.Store(-1)
	return sl
}

// Lock blocks until the lock is acquired. cpu identifies the calling CPU,
// recorded as the owner for diagnostics and, in debug builds, to detect
// re-entrant acquisition by the same CPU — this fails with
// ErrDeadlockSuspected only in debug builds that detect re-entry.
func (s *Spinlock) Lock(cpuID int, p Pauser) {
	if debugReentrancy && s.owner.Load() == int32(cpuID) && s.state.Load() == held {
		panic(fmt.Errorf("%w: cpu %d re-entered a spinlock it already holds", kerrors.ErrDeadlockSuspected, cpuID))
	}

	backoff := 1
	for !s.state.CompareAndSwap(free, held) {
		for i := 0; i < backoff; i++ {
			if p != nil {
				p.Pause()
			}
		}
		if backoff < maxBackoff {
			backoff <<= 1
		}
	}
	// Full fence on acquisition: every write sequenced-before a peer's
	// Unlock (a release-store) becomes visible here.
	s.owner.Store(int32(cpuID))
}

// Unlock releases the lock. It does not verify ownership — this is a
// ticket-less design, and the owner field is advisory bookkeeping only.
func (s *Spinlock) Unlock() {
	s.owner.Store(-1)
	// Release-store: publishes every write made under the lock.
	s.state.Store(free)
}

// TryLock attempts to acquire the lock without spinning, returning false
// if contested. Contestation is an ordinary outcome the caller decides on,
// not an error, so nothing is allocated on the contested path — it is hot
// in work stealing, which probes one victim per call.
func (s *Spinlock) TryLock(cpuID int) bool {
	if !s.state.CompareAndSwap(free, held) {
		return false
	}
	s.owner.Store(int32(cpuID))
	return true
}

// IsLocked is advisory only: by the time the caller observes the result,
// the lock may already have changed state.
func (s *Spinlock) IsLocked() bool {
	return s.state.Load() == held
}

// Owner returns the CPU id of the current holder, or -1 once released. A
// Spinlock built with New reports -1 before its first acquisition; a
// zero-value Spinlock reports 0 until then. Diagnostics only.
func (s *Spinlock) Owner() int {
	return int(s.owner.Load())
}

// debugReentrancy gates the same-CPU re-entrancy panic (ErrDeadlockSuspected).
// It is a variable, not a build tag, so tests can exercise both policies
// without a second build; release callers simply never flip it.
var debugReentrancy = false

// SetDebugReentrancy enables or disables same-CPU re-entrancy detection.
// Intended for tests and debug builds only — never toggle this from a
// thread currently holding a lock.
func SetDebugReentrancy(on bool) { debugReentrancy = on }
