package arch

import (
	"sync/atomic"

	"github.com/Whoisraeen/Scarlett-OS-sub003/internal/kerrors"
)

// KernelStackSize is the fixed per-thread kernel stack size: 64 KiB.
const KernelStackSize = 64 * 1024

// Stack is a handle to a thread's kernel stack. The physical/virtual
// memory manager lives elsewhere; this is the narrow seam the scheduler
// calls through. Since a goroutine-backed thread does not actually execute
// on this memory, Stack carries only the accounting a real allocator
// would — a byte slice sized correctly, so an out-of-memory path can be
// exercised and reclaimed just as it would be against a real page
// allocator.
type Stack struct {
	bytes []byte
}

// Len returns the stack's size in bytes.
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bytes)
}

var stacksAllocated atomic.Int64

// OutstandingStacks reports how many stacks are currently allocated and
// not yet freed, for leak tests.
func OutstandingStacks() int64 { return stacksAllocated.Load() }

// stackBudget simulates a bounded physical page pool: once exhausted,
// AllocThreadStack fails exactly like a real alloc_page running out of
// memory, which is how thread creation's out-of-memory path is exercised
// without actually exhausting host RAM.
var stackBudget atomic.Int64

// SetStackBudget bounds how many stacks may be outstanding at once. A
// non-positive budget means unlimited (the default). Tests use this to
// deterministically trigger ErrOutOfMemory.
func SetStackBudget(n int64) { stackBudget.Store(n) }

// AllocThreadStack allocates a thread's kernel stack. It returns
// kerrors.ErrOutOfMemory if the simulated page budget is exhausted.
func AllocThreadStack(size int) (*Stack, error) {
	if budget := stackBudget.Load(); budget > 0 {
		for {
			cur := stacksAllocated.Load()
			if cur >= budget {
				return nil, kerrors.ErrOutOfMemory
			}
			if stacksAllocated.CompareAndSwap(cur, cur+1) {
				break
			}
		}
	} else {
		stacksAllocated.Add(1)
	}
	return &Stack{bytes: make([]byte, size)}, nil
}

// FreeThreadStack releases a thread's kernel stack. This must never be
// called by the thread whose own stack is being freed — the scheduler
// defers the call to the next dispatch on that CPU.
func FreeThreadStack(s *Stack) {
	if s == nil {
		return
	}
	s.bytes = nil
	stacksAllocated.Add(-1)
}
