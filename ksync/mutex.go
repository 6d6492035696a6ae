// Package ksync implements the kernel's blocking synchronization
// primitives — a yield-based Mutex and counting Semaphore — layered on top
// of spinlock and the scheduler core. There is no condition variable at
// this layer: a contended waiter gives the CPU back to the scheduler with
// ThreadYield and retries on its next turn. Neither primitive is fair;
// waiter progress is guaranteed only because the scheduler eventually
// revisits every runnable thread.
package ksync

import (
	"github.com/rs/zerolog"

	"github.com/Whoisraeen/Scarlett-OS-sub003/arch"
	"github.com/Whoisraeen/Scarlett-OS-sub003/internal/kerrors"
	"github.com/Whoisraeen/Scarlett-OS-sub003/sched"
	"github.com/Whoisraeen/Scarlett-OS-sub003/spinlock"
)

// Mutex is a non-reentrant, yield-based lock with owner tracking. The zero
// value is not usable; construct with NewMutex.
type Mutex struct {
	lock    spinlock.Spinlock
	held    bool
	owner   sched.ID
	waiters int
	log     zerolog.Logger
}

// NewMutex returns an unlocked Mutex that logs foreign-unlock attempts
// through log. Pass klog.Nop() to discard diagnostics.
func NewMutex(log zerolog.Logger) *Mutex { return &Mutex{log: log} }

// Lock acquires m, yielding self's CPU on every contended attempt rather
// than blocking it. k is needed only to perform that yield.
func (m *Mutex) Lock(k *sched.Kernel, self *sched.Thread) {
	cpuID := self.HomeCPU()
	m.lock.Lock(cpuID, arch.Pause{})
	for {
		if !m.held {
			m.held = true
			m.owner = self.ID
			m.lock.Unlock()
			return
		}
		m.waiters++
		m.lock.Unlock()
		k.ThreadYield(self)
		m.lock.Lock(cpuID, arch.Pause{})
		m.waiters--
	}
}

// TryLock attempts to acquire m without yielding. Returns false if
// already held.
func (m *Mutex) TryLock(self *sched.Thread) bool {
	m.lock.Lock(self.HomeCPU(), arch.Pause{})
	defer m.lock.Unlock()
	if m.held {
		return false
	}
	m.held = true
	m.owner = self.ID
	return true
}

// Unlock releases m. Called by a thread that does not hold it, it is a
// diagnostic no-op: the lock is left held, the attempt is logged through
// m's own logger, and ErrForeignUnlock is returned besides.
func (m *Mutex) Unlock(self *sched.Thread) error {
	m.lock.Lock(self.HomeCPU(), arch.Pause{})
	defer m.lock.Unlock()
	if !m.held || m.owner != self.ID {
		m.log.Debug().
			Uint64("thread_id", uint64(self.ID)).
			Uint64("owner", uint64(m.owner)).
			Bool("held", m.held).
			Msg("mutex: unlock by non-owner, ignoring")
		return kerrors.ErrForeignUnlock
	}
	m.held = false
	m.owner = 0
	return nil
}

// IsHeld reports whether m is currently locked. cpuID identifies the
// calling CPU for the internal spinlock's diagnostics only.
func (m *Mutex) IsHeld(cpuID int) bool {
	m.lock.Lock(cpuID, arch.Pause{})
	defer m.lock.Unlock()
	return m.held
}

// Waiters returns a snapshot of the number of threads currently yielding
// while waiting for m. Diagnostic only.
func (m *Mutex) Waiters(cpuID int) int {
	m.lock.Lock(cpuID, arch.Pause{})
	defer m.lock.Unlock()
	return m.waiters
}
