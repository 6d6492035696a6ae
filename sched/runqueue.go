package sched

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/Whoisraeen/Scarlett-OS-sub003/lockfree"
	"github.com/Whoisraeen/Scarlett-OS-sub003/spinlock"
)

// fifo is an intrusive singly-linked FIFO over Thread.next. The list
// itself maintains no invariants beyond link integrity; which list a
// thread may legally be on is the scheduler's business.
type fifo struct {
	head, tail *Thread
}

func (f *fifo) empty() bool { return f.head == nil }

func (f *fifo) pushBack(t *Thread) {
	t.next = nil // always null next on enqueue; a leftover link corrupts the new list.
	if f.tail == nil {
		f.head, f.tail = t, t
		return
	}
	f.tail.next = t
	f.tail = t
}

func (f *fifo) popFront() *Thread {
	t := f.head
	if t == nil {
		return nil
	}
	f.head = t.next
	if f.head == nil {
		f.tail = nil
	}
	t.next = nil
	return t
}

// remove scans the FIFO for target and unlinks it, reporting whether found.
func (f *fifo) remove(target *Thread) bool {
	var prev *Thread
	for cur := f.head; cur != nil; cur = cur.next {
		if cur == target {
			if prev == nil {
				f.head = cur.next
			} else {
				prev.next = cur.next
			}
			if cur == f.tail {
				f.tail = prev
			}
			cur.next = nil
			return true
		}
		prev = cur
	}
	return false
}

// runqueue is the per-CPU structure holding Ready threads (partitioned by
// priority), this CPU's Blocked list, its current thread, and its idle
// thread.
type runqueue struct {
	id   int
	lock spinlock.Spinlock

	_     cpu.CacheLinePad
	ready [PriorityLevels]fifo
	// count is the sum of FIFO lengths, a lock-free counter so the load
	// balancer can take an advisory snapshot of queue depth across every
	// CPU without acquiring each CPU's lock in turn; all mutations still
	// happen under rq.lock, which only serializes them against each
	// other, not against the balancer's read.
	count lockfree.Counter

	blocked fifo

	// current is read by this CPU's own tick goroutine concurrently with
	// writes from this CPU's driver loop, so it is an atomic pointer
	// rather than a plain field guarded by rq.lock — the tick handler
	// must never block on a lock the driver loop might be holding across
	// a context switch.
	current atomic.Pointer[Thread]
	idle    *Thread // written once at boot, read-only thereafter.

	// wakeups is the handoff for sleepers woken by the tick handler but
	// pinned to this CPU: the interrupt path may only take its own
	// runqueue lock, never a peer's, so the BSP posts the woken thread
	// here and this CPU moves it onto its own ready FIFO on its next
	// pick.
	wakeups *lockfree.Queue[*Thread]

	// stealCursor is this CPU's round-robin victim pointer for work
	// stealing, advanced only by this CPU.
	stealCursor int

	zombie *Thread // outgoing Dead thread awaiting reap by the next dispatch.
}

func newRunqueue(id int) *runqueue {
	rq := &runqueue{id: id, wakeups: lockfree.NewQueue[*Thread]()}
	return rq
}

// addReadyLocked appends t to the tail of its priority's FIFO. Caller must
// hold rq.lock.
func (rq *runqueue) addReadyLocked(t *Thread) {
	t.state = Ready
	t.homeCPU = rq.id
	rq.ready[t.Priority].pushBack(t)
	rq.count.Add(1)
}

// pickReadyLocked scans priorities from 127 down to 0 and detaches the
// head of the first non-empty FIFO. Caller must hold rq.lock. Does not
// re-enqueue: the round-robin step happens when the dispatched thread gives
// the CPU back through ThreadYield (directly or via CheckPreempt), which
// appends it to the tail of its priority FIFO.
func (rq *runqueue) pickReadyLocked() *Thread {
	for p := PriorityLevels - 1; p >= 0; p-- {
		if !rq.ready[p].empty() {
			t := rq.ready[p].popFront()
			rq.count.Add(-1)
			return t
		}
	}
	return nil
}

// removeReadyLocked unlinks t from its priority FIFO if present, reporting
// whether it was found there. Caller must hold rq.lock. This is the
// explicit-unbinding path: SetAffinity uses it to evict a thread from its
// old CPU's ready FIFO the instant a new pin no longer matches where it is
// currently queued, ahead of the load balancer or work stealer ever
// getting to it.
func (rq *runqueue) removeReadyLocked(t *Thread) bool {
	if rq.ready[t.Priority].remove(t) {
		rq.count.Add(-1)
		return true
	}
	return false
}

// removeFirstMatch scans the FIFO for the first node satisfying pred and
// unlinks it, leaving non-matching nodes in place (used by the work
// stealer and load balancer to skip affinity-pinned threads without
// disturbing FIFO order of the threads they leave behind).
func (f *fifo) removeFirstMatch(pred func(*Thread) bool) *Thread {
	var prev *Thread
	for cur := f.head; cur != nil; cur = cur.next {
		if pred(cur) {
			if prev == nil {
				f.head = cur.next
			} else {
				prev.next = cur.next
			}
			if cur == f.tail {
				f.tail = prev
			}
			cur.next = nil
			return cur
		}
		prev = cur
	}
	return nil
}

// Len returns an advisory snapshot of the number of Ready threads on this
// CPU, safe to call without holding rq.lock (see the count field's doc).
func (rq *runqueue) Len() int { return int(rq.count.Load()) }
