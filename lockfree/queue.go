// Package lockfree implements the MPMC structures the scheduler and its
// peers rely on where lock-induced serialization would dominate: a
// Michael-Scott queue (with an approximate size hint), a Treiber stack,
// and an atomic counter.
// The queue's head/tail pointers sit on separate cache lines so a hot
// producer and a hot consumer do not false-share.
package lockfree

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// node is a Michael-Scott queue link. next is itself atomic because
// multiple producers race to extend the tail.
type node[T any] struct {
	next atomic.Pointer[node[T]]
	data T
}

// Queue is an unbounded, linearizable, lock-free MPMC FIFO. The zero value
// is not ready to use; call NewQueue.
type Queue[T any] struct {
	_    cpu.CacheLinePad
	head atomic.Pointer[node[T]]
	_    cpu.CacheLinePad
	tail atomic.Pointer[node[T]]
	_    cpu.CacheLinePad
	// size is an approximate hint only; consumers must tolerate a
	// transient mismatch between it and the observable contents.
	size atomic.Int64
}

// NewQueue returns an empty queue with a sentinel head/tail node.
func NewQueue[T any]() *Queue[T] {
	sentinel := &node[T]{}
	q := &Queue[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Enqueue appends v. Never blocks, never fails.
func (q *Queue[T]) Enqueue(v T) {
	n := &node[T]{data: v}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue // tail moved under us; restart.
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// Try to swing tail to the new node; if this CAS loses,
				// whoever is dequeuing/enqueuing concurrently will have
				// already helped it along (see the "help advance tail"
				// branch in Dequeue and below).
				q.tail.CompareAndSwap(tail, n)
				q.size.Add(1)
				return
			}
		} else {
			// Tail has fallen behind; help it catch up before retrying.
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// Dequeue removes and returns the oldest element. ok is false if the queue
// was observed empty.
func (q *Queue[T]) Dequeue() (v T, ok bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				var zero T
				return zero, false // genuinely empty.
			}
			// Tail lags the actual last node; help it advance and retry.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		data := next.data
		if q.head.CompareAndSwap(head, next) {
			q.size.Add(-1)
			return data, true
		}
	}
}

// Len returns an approximate size hint. It is never negative but may
// transiently disagree with the number of elements actually reachable
// from head.
func (q *Queue[T]) Len() int64 {
	if n := q.size.Load(); n > 0 {
		return n
	}
	return 0
}
