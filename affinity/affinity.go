// Package affinity implements the thread-to-CPU affinity constraint used by
// the scheduler core, the load balancer, and the work stealer. A thread is
// pinned to at most one CPU, or to none; the constraint is a signed integer
// where negative means "any". There is deliberately no multi-core bitmask:
// nothing in the kernel reserves sets of cores, only single-CPU pins.
package affinity

import (
	"math"
	"strconv"
)

// Any is the affinity value meaning "no CPU constraint".
const Any int32 = -1

// Mask is a thread's CPU-affinity constraint: Any, or a specific CPU id in
// [0, cpuCount).
type Mask int32

// Pinned reports whether m constrains its thread to a single CPU.
func (m Mask) Pinned() bool { return int32(m) >= 0 }

// CPU returns the pinned CPU id. Only meaningful if Pinned reports true.
func (m Mask) CPU() int { return int(m) }

// Allows reports whether a thread with this affinity may run on cpu.
func (m Mask) Allows(cpu int) bool {
	if !m.Pinned() {
		return true
	}
	return m.CPU() == cpu
}

// Valid reports whether m is Any or a plausible (non-negative, below
// math.MaxInt32) CPU id. It does not know the live CPU count;
// range-checking against cpu_count() is the scheduler's job since affinity
// values may be set before all CPUs are known.
func (m Mask) Valid() bool {
	return m == Mask(Any) || (int32(m) >= 0 && int32(m) < math.MaxInt32)
}

// String implements fmt.Stringer for diagnostics.
func (m Mask) String() string {
	if !m.Pinned() {
		return "any"
	}
	return strconv.Itoa(m.CPU())
}
