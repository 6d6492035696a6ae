package ksync

import (
	"github.com/Whoisraeen/Scarlett-OS-sub003/arch"
	"github.com/Whoisraeen/Scarlett-OS-sub003/sched"
	"github.com/Whoisraeen/Scarlett-OS-sub003/spinlock"
)

// Semaphore is a counting semaphore bounded by maxCount, yield-based on
// exhaustion exactly like Mutex.
type Semaphore struct {
	lock     spinlock.Spinlock
	count    int
	maxCount int
	waiters  int
}

// NewSemaphore returns a semaphore starting at initial, never exceeding
// maxCount.
func NewSemaphore(initial, maxCount int) *Semaphore {
	if initial < 0 {
		initial = 0
	}
	if initial > maxCount {
		initial = maxCount
	}
	return &Semaphore{count: initial, maxCount: maxCount}
}

// Wait decrements the semaphore, yielding self's CPU and retrying while
// count == 0.
func (s *Semaphore) Wait(k *sched.Kernel, self *sched.Thread) {
	cpuID := self.HomeCPU()
	s.lock.Lock(cpuID, arch.Pause{})
	for {
		if s.count > 0 {
			s.count--
			s.lock.Unlock()
			return
		}
		s.waiters++
		s.lock.Unlock()
		k.ThreadYield(self)
		s.lock.Lock(cpuID, arch.Pause{})
		s.waiters--
	}
}

// TryWait attempts a single non-yielding decrement. Returns false if the
// semaphore was at zero.
func (s *Semaphore) TryWait(cpuID int) bool {
	s.lock.Lock(cpuID, arch.Pause{})
	defer s.lock.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Signal increments the semaphore, capped at maxCount: signalling a full
// semaphore drops the signal rather than overflowing count past maxCount.
func (s *Semaphore) Signal(cpuID int) {
	s.lock.Lock(cpuID, arch.Pause{})
	defer s.lock.Unlock()
	if s.count < s.maxCount {
		s.count++
	}
}

// GetCount returns a snapshot of the current count.
func (s *Semaphore) GetCount(cpuID int) int {
	s.lock.Lock(cpuID, arch.Pause{})
	defer s.lock.Unlock()
	return s.count
}
