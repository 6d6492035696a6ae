package sched

import (
	"github.com/Whoisraeen/Scarlett-OS-sub003/arch"
	"github.com/Whoisraeen/Scarlett-OS-sub003/spinlock"
)

// sleepQueue is the global singly-linked list of Sleeping threads, keyed
// by wakeup tick. Only the BSP scans it during a tick. It is deliberately
// an unordered list, not a min-heap — the only required contract is
// wake-by-deadline, not wake-in-deadline-order, and at the scale this
// kernel targets (MaxThreads=256) a full linear scan every tick is cheap
// and keeps the sleeping queue's invariants trivial to audit.
type sleepQueue struct {
	lock spinlock.Spinlock
	head *Thread
}

func newSleepQueue() *sleepQueue { return &sleepQueue{} }

// push adds t, already marked Sleeping with wakeupTick set, to the queue.
func (sq *sleepQueue) push(cpuID int, t *Thread) {
	sq.lock.Lock(cpuID, arch.Pause{})
	defer sq.lock.Unlock()
	t.next = sq.head
	sq.head = t
}

// wake removes and returns every thread whose wakeupTick <= now, as a
// plain slice. The BSP's tick handler enqueues each onto its own ready
// FIFO immediately afterward, outside this lock — the sleeping queue's
// lock is never held at the same time as a per-CPU runqueue lock. Threads
// pinned to a peer CPU are handed to that CPU's wakeup inbox instead, so
// waking sleepers never takes a foreign runqueue lock.
func (sq *sleepQueue) wake(cpuID int, now uint64) []*Thread {
	sq.lock.Lock(cpuID, arch.Pause{})
	defer sq.lock.Unlock()

	var woken []*Thread
	var prev *Thread
	cur := sq.head
	for cur != nil {
		next := cur.next
		if cur.wakeupTick <= now {
			if prev == nil {
				sq.head = next
			} else {
				prev.next = next
			}
			cur.next = nil
			woken = append(woken, cur)
			cur = next
			continue
		}
		prev = cur
		cur = next
	}
	return woken
}
