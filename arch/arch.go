// Package arch provides the architecture-level collaborators the scheduler
// core consumes: a context-switch primitive, a CPU pause hint, thread stack
// allocation, CPU topology queries, and a tick source installer. The memory
// manager, VFS, drivers, and boot-info parsing live elsewhere — everything
// here is a narrow seam the core calls through, never a reimplementation of
// those subsystems.
//
// A real boot image backs these with hand-written assembly and the kernel's
// own page allocator. This repository's host is a regular Go process, so
// arch backs them with the closest real equivalent the host OS offers:
// golang.org/x/sys/unix CPU affinity for the topology binding, and
// time.Ticker for the tick source. Every package above arch treats these as
// opaque collaborators.
package arch

import (
	"runtime"
	"time"
)

// Pause hints that the caller is in a spin loop. It is backed by
// runtime.Gosched, which lets the Go scheduler rebalance while a simulated
// CPU spins — without it a spinning CPU goroutine could starve the very
// thread it is waiting to see dispatched elsewhere, since these "CPUs" are
// cooperatively scheduled goroutines, not real execution units.
type Pause struct{}

// Pause implements spinlock.Pauser.
func (Pause) Pause() { runtime.Gosched() }

// TopologyQuery answers CPU-count and is-BSP queries for the fixed-size
// topology the kernel was booted with. The current-CPU id is supplied by
// whoever is driving a given CPU's loop (there is no portable way to ask
// "which hardware core is this goroutine on" — see CPUBinder for the one
// place that is approximated with a real affinity pin).
type TopologyQuery struct {
	count int
}

// NewTopology returns a topology query for n logical CPUs. n must be >= 1.
func NewTopology(n int) *TopologyQuery {
	if n < 1 {
		n = 1
	}
	return &TopologyQuery{count: n}
}

// CPUCount returns the number of logical CPUs the kernel was booted with.
func (t *TopologyQuery) CPUCount() int { return t.count }

// IsBSP reports whether cpuID is the bootstrap processor. CPU 0 is always
// the BSP.
func (t *TopologyQuery) IsBSP(cpuID int) bool { return cpuID == 0 }

// TickHandler is invoked in (simulated) interrupt context on every tick,
// once per CPU per period. It must not block, allocate, or perform I/O.
type TickHandler func(cpuID int)

// TickSource programs a periodic interrupt at hz and invokes handler on
// every bound CPU. Exactly-one-tick-per-period-per-CPU delivery is required
// for accounting.
type TickSource struct {
	hz      int
	stop    chan struct{}
	stopped chan struct{}
}

// NewTickSource builds a tick source running at hz ticks/second. It does
// not start until Install is called.
func NewTickSource(hz int) *TickSource {
	if hz <= 0 {
		hz = 100
	}
	return &TickSource{hz: hz}
}

// Install starts delivering ticks to handler on every cpuID in [0, cpuCount)
// concurrently, one ticker goroutine per CPU, matching real hardware where
// every core has its own local APIC timer. Stop halts delivery.
func (t *TickSource) Install(cpuCount int, handler TickHandler) {
	t.stop = make(chan struct{})
	t.stopped = make(chan struct{}, cpuCount)
	period := time.Second / time.Duration(t.hz)
	for cpuID := 0; cpuID < cpuCount; cpuID++ {
		go func(cpu int) {
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-t.stop:
					t.stopped <- struct{}{}
					return
				case <-ticker.C:
					handler(cpu)
					EOI()
				}
			}
		}(cpuID)
	}
}

// Stop halts tick delivery on every CPU and waits for the per-CPU ticker
// goroutines to exit.
func (t *TickSource) Stop(cpuCount int) {
	if t.stop == nil {
		return
	}
	close(t.stop)
	for i := 0; i < cpuCount; i++ {
		<-t.stopped
	}
}

// EOI acknowledges the tick interrupt. On real hardware this writes the
// local APIC's EOI register; there is nothing to acknowledge on a host OS
// timer, so this is a no-op seam kept so callers read the same as the real
// trampoline.
func EOI() {}
