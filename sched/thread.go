package sched

import (
	"sync/atomic"

	"github.com/Whoisraeen/Scarlett-OS-sub003/affinity"
	"github.com/Whoisraeen/Scarlett-OS-sub003/arch"
)

// ID is a thread identifier: monotonic, non-zero, unique for the lifetime
// of the kernel.
type ID uint64

// State is one of the five states a thread's lifecycle moves through.
type State int

const (
	Ready State = iota
	Running
	Blocked
	Sleeping
	Dead
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Sleeping:
		return "sleeping"
	case Dead:
		return "dead"
	default:
		return "invalid"
	}
}

// EntryFunc is a thread's body. self is the thread's own handle, passed
// so the body can call ThreadYield/ThreadSleep/ThreadBlock/CheckPreempt
// on itself without a separate current-thread lookup.
type EntryFunc func(k *Kernel, self *Thread, arg any)

// Thread is the kernel's thread-control-block. Exactly one
// intrusive "next" link is used by whichever single list currently holds
// the thread (a ready FIFO, a blocked list, or the sleeping queue); a
// thread that is some CPU's current_thread, or Dead, is on no list.
type Thread struct {
	ID       ID
	Name     string
	Priority int

	state State // mutated only under the owning runqueue's lock, or before any list membership (creation).

	affinity atomic.Int32 // affinity.Mask, accessed without a lock by the balancer/stealer.

	cpuTicks atomic.Uint64

	// wakeupTick is meaningful only while Sleeping; set before the thread
	// is pushed onto the sleeping queue, read only by the BSP's tick scan.
	wakeupTick uint64

	// next is the single intrusive link; a thread is on at most one list.
	next *Thread

	stack *arch.Stack
	entry EntryFunc
	arg   any

	ctx *arch.Context

	// homeCPU is the CPU this thread is currently queued/running/blocked
	// on. Set on every enqueue; read to find the runqueue when the thread
	// yields, blocks, sleeps or exits.
	homeCPU int

	idle bool // true only for a CPU's dedicated idle thread.
}

// State returns the thread's current lifecycle state. Safe to call from
// any goroutine; the scheduler only ever mutates it under the relevant
// lock (runqueue lock for Ready/Running/Blocked transitions, sleep-queue
// lock for Sleeping).
func (t *Thread) State() State { return t.state }

// Affinity returns the thread's current CPU-affinity constraint.
func (t *Thread) Affinity() affinity.Mask { return affinity.Mask(t.affinity.Load()) }

// CPUTicks returns the accumulated number of ticks this thread has been
// charged while Running.
func (t *Thread) CPUTicks() uint64 { return t.cpuTicks.Load() }

// IsIdle reports whether this is a per-CPU idle thread.
func (t *Thread) IsIdle() bool { return t.idle }

// HomeCPU returns the CPU this thread is currently associated with
// (queued, running, or blocked on).
func (t *Thread) HomeCPU() int { return t.homeCPU }
