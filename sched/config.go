package sched

// Compile-time kernel configuration. No wire format, no file, no flag
// reaches these; the one place a human chooses numbers for a given boot
// is this file, as package-level constants rather than runtime
// configuration.
const (
	// MaxThreads bounds the global thread table.
	MaxThreads = 256

	// TickHz is the tick source frequency: 100 Hz = 10ms per tick.
	TickHz = 100

	// PreemptQuantumTicks is how many ticks a thread may run before
	// becoming subject to preemption (10 ticks = 100ms at TickHz=100).
	PreemptQuantumTicks = 10

	// LoadBalanceIntervalTicks is how often the BSP's tick invokes the
	// load balancer (100 ticks ≈ 1s at TickHz=100).
	LoadBalanceIntervalTicks = 100

	// LoadBalanceThreshold is the minimum busiest-vs-least-loaded gap that
	// triggers a migration.
	LoadBalanceThreshold = 2

	// KernelStackSize is the per-thread kernel stack size, the same 64 KiB
	// as arch.KernelStackSize, for callers that only import sched.
	KernelStackSize = 64 * 1024

	// PriorityLevels is the number of distinct priority FIFOs per CPU.
	PriorityLevels = 128

	// IdlePriority is reserved for each CPU's idle thread; user threads
	// start at >= 1.
	IdlePriority = 0

	// MigratablePriorityMax is the highest priority the load balancer will
	// move: priorities (MigratablePriorityMax, 127] are never balanced
	// away. The work stealer is not bounded by this — an idle CPU takes
	// whatever it can find.
	MigratablePriorityMax = 63
)
