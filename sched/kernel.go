package sched

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Whoisraeen/Scarlett-OS-sub003/affinity"
	"github.com/Whoisraeen/Scarlett-OS-sub003/arch"
	"github.com/Whoisraeen/Scarlett-OS-sub003/internal/kerrors"
)

// Kernel owns every per-CPU runqueue, the global thread table and sleeping
// queue, and the tick/id counters that tie them together. A Kernel is built
// once at boot with NewKernel and started with Start; its public methods
// are the kernel's entire external interface.
type Kernel struct {
	cpus []*runqueue

	table  *threadTable
	sleepQ *sleepQueue
	topo   *arch.TopologyQuery
	tick   *arch.TickSource

	tickCount uint64 // atomic; advanced only by the BSP, see Tick.
	nextID    uint64 // atomic.

	// needResched and quantum are per-CPU, sized at NewKernel and indexed
	// by cpu id. Written by Tick (any CPU, about its own index only) and
	// consumed by CheckPreempt running on that same CPU — never touched
	// across CPUs, so no false-sharing pad is needed beyond the slice's
	// own element spacing.
	needResched []atomic.Bool
	quantum     []atomic.Uint32

	log zerolog.Logger
}

// NewKernel allocates cpuCount per-CPU runqueues and an idle thread for
// each. Each idle thread's backing goroutine is started, parked until its
// first dispatch; the CPU driver loops and the tick source are not started
// until Start is called.
func NewKernel(cpuCount int, log zerolog.Logger) *Kernel {
	if cpuCount < 1 {
		cpuCount = 1
	}
	k := &Kernel{
		cpus:        make([]*runqueue, cpuCount),
		table:       newThreadTable(),
		sleepQ:      newSleepQueue(),
		topo:        arch.NewTopology(cpuCount),
		needResched: make([]atomic.Bool, cpuCount),
		quantum:     make([]atomic.Uint32, cpuCount),
		log:         log,
	}
	for i := range k.cpus {
		k.cpus[i] = newRunqueue(i)
	}
	for i := range k.cpus {
		idle, err := k.newThread(i, idleEntry, nil, IdlePriority, fmt.Sprintf("idle%d", i))
		if err != nil {
			// Boot-time allocation failure has no recovery path: there is
			// no caller to report it to yet.
			panic(fmt.Sprintf("kernel: failed to create idle thread for cpu %d: %v", i, err))
		}
		idle.idle = true
		k.cpus[i].idle = idle
		k.cpus[i].current.Store(idle)
	}
	return k
}

// Start launches one driver goroutine per CPU and installs the tick
// source at TickHz. The first tick on each CPU arrives one tick period
// after Start.
func (k *Kernel) Start() {
	for i := range k.cpus {
		go k.cpuLoop(i)
	}
	k.tick = arch.NewTickSource(TickHz)
	k.tick.Install(len(k.cpus), k.Tick)
}

// Stop halts the tick source. It does not join the driver goroutines: each
// CPU keeps dispatching, falling back to its idle thread when it has no
// ready work, but with no further ticks no sleeper wakes and no quantum
// expires.
func (k *Kernel) Stop() {
	if k.tick != nil {
		k.tick.Stop(len(k.cpus))
	}
}

// CPUCount returns the number of CPUs this kernel was built with.
func (k *Kernel) CPUCount() int { return len(k.cpus) }

// TickCount returns the current value of the global monotonic tick
// counter, advanced only by the BSP.
func (k *Kernel) TickCount() uint64 { return atomic.LoadUint64(&k.tickCount) }

// Current returns the thread currently dispatched on cpuID, or that CPU's
// idle thread if nothing else is running. Never nil once NewKernel has
// returned; a nil observation here is unrecoverable kernel state, so it
// panics rather than handing callers a pointer they'd have to nil-check
// forever.
func (k *Kernel) Current(cpuID int) *Thread {
	t := k.cpus[cpuID].current.Load()
	if t == nil {
		kerrors.Unreachable("current thread nil on cpu after init")
	}
	return t
}

// IdleThread returns cpuID's dedicated idle thread.
func (k *Kernel) IdleThread(cpuID int) *Thread { return k.cpus[cpuID].idle }

// ReadyLen returns an advisory count of Ready threads queued on cpuID.
func (k *Kernel) ReadyLen(cpuID int) int { return k.cpus[cpuID].Len() }

// Lookup returns the thread for id, or nil if unknown or already reaped.
func (k *Kernel) Lookup(cpuID int, id ID) *Thread { return k.table.lookup(cpuID, id) }

// newThread allocates a stack, a thread-table slot, and the context
// goroutine backing a Thread, but does not enqueue it anywhere — that is
// ThreadCreate's job for ordinary threads, and NewKernel's for idle
// threads. Each Thread is backed by its own goroutine blocked on an
// unbuffered handshake pair, standing in for a saved register context.
func (k *Kernel) newThread(cpuID int, entry EntryFunc, arg any, priority int, name string) (*Thread, error) {
	stack, err := arch.AllocThreadStack(KernelStackSize)
	if err != nil {
		return nil, err
	}

	id := ID(atomic.AddUint64(&k.nextID, 1))
	t := &Thread{
		ID:       id,
		Name:     name,
		Priority: priority,
		state:    Ready,
		stack:    stack,
		entry:    entry,
		arg:      arg,
		ctx:      arch.NewContext(),
		homeCPU:  cpuID,
	}
	t.affinity.Store(int32(affinity.Any))

	if err := k.table.insert(cpuID, t); err != nil {
		arch.FreeThreadStack(stack)
		return nil, err
	}

	go func() {
		t.ctx.WaitStarted()
		entry(k, t, arg)
		k.ThreadExit(t)
	}()

	return t, nil
}

// ThreadCreate allocates a new thread and enqueues it on cpuID's ready
// FIFO at priority. cpuID is the calling CPU's own id — a
// thread creating another thread passes self.HomeCPU(); boot-time callers
// pass the BSP's id.
func (k *Kernel) ThreadCreate(cpuID int, entry EntryFunc, arg any, priority int, name string) (ID, error) {
	if priority <= IdlePriority || priority >= PriorityLevels {
		return 0, kerrors.ErrInvalidPriority
	}

	t, err := k.newThread(cpuID, entry, arg, priority, name)
	if err != nil {
		return 0, err
	}

	rq := k.cpus[cpuID]
	rq.lock.Lock(cpuID, arch.Pause{})
	rq.addReadyLocked(t)
	rq.lock.Unlock()

	return t.ID, nil
}

// ThreadExit marks self Dead, removes it from the global table, hands its
// stack to homeCPU's driver loop for reaping on the next dispatch, and
// terminates self's backing goroutine. It never returns to its caller —
// enforced here with runtime.Goexit, with kerrors.Unreachable as a
// defensive backstop in case Goexit's never-returns contract is ever
// violated by a future Go runtime.
func (k *Kernel) ThreadExit(self *Thread) {
	rq := k.cpus[self.homeCPU]
	self.state = Dead
	k.table.remove(self.homeCPU, self.ID)
	rq.zombie = self
	self.ctx.Parked()
	runtime.Goexit()
	kerrors.Unreachable("thread_exit: control flow returned past runtime.Goexit")
}

// ThreadYield voluntarily gives up self's remaining quantum. self is
// re-marked Ready and re-queued at the tail of its own priority
// FIFO (idle threads are never enqueued; pickNext's fallback already
// knows how to find them), then self suspends until redispatched.
func (k *Kernel) ThreadYield(self *Thread) {
	if !self.idle {
		rq := k.cpus[self.homeCPU]
		rq.lock.Lock(self.homeCPU, arch.Pause{})
		rq.addReadyLocked(self)
		rq.lock.Unlock()
	} else {
		self.state = Ready
	}
	self.ctx.Suspend()
}

// ThreadSleep parks self on the global sleeping queue until the global tick
// counter reaches its current value plus ms converted to ticks. ms == 0
// degenerates to ThreadYield. The ms-to-ticks conversion truncates
// (ms*TickHz)/1000, then clamps to a minimum of one tick, so a sub-tick
// sleep still suspends until the next BSP tick rather than returning at
// once.
func (k *Kernel) ThreadSleep(self *Thread, ms uint64) {
	if ms == 0 {
		k.ThreadYield(self)
		return
	}

	ticks := (ms * TickHz) / 1000
	if ticks == 0 {
		ticks = 1
	}

	self.state = Sleeping
	self.wakeupTick = k.TickCount() + ticks
	k.sleepQ.push(self.homeCPU, self)
	self.ctx.Suspend()
}

// ThreadBlock parks self on homeCPU's blocked list. This is the building
// block external synchronization layers on: waiters call this, not a busy
// loop.
func (k *Kernel) ThreadBlock(self *Thread) {
	rq := k.cpus[self.homeCPU]
	rq.lock.Lock(self.homeCPU, arch.Pause{})
	self.state = Blocked
	rq.blocked.pushBack(self)
	rq.lock.Unlock()
	self.ctx.Suspend()
}

// ThreadUnblock finds id on whichever CPU's blocked list currently holds
// it and moves it to Ready, honouring its affinity if pinned, otherwise
// enqueuing on cpuID — the unblocking CPU's own ready FIFO, so the
// unblocker's locality wins, subject to affinity. Unblocking a
// thread that is not presently blocked (already woken, dead, or never
// blocked) is a logged no-op, matching the double-unblock edge case.
func (k *Kernel) ThreadUnblock(cpuID int, id ID) error {
	t := k.table.lookup(cpuID, id)
	if t == nil {
		k.log.Debug().Uint64("thread_id", uint64(id)).Msg("unblock: unknown or dead thread id, ignoring")
		return kerrors.ErrInvalidThread
	}

	found := false
	for _, rq := range k.cpus {
		rq.lock.Lock(cpuID, arch.Pause{})
		if rq.blocked.remove(t) {
			found = true
		}
		rq.lock.Unlock()
		if found {
			break
		}
	}
	if !found {
		k.log.Debug().Uint64("thread_id", uint64(id)).Msg("unblock: thread not on any blocked list, ignoring")
		return nil
	}

	dest := cpuID
	if t.Affinity().Pinned() {
		dest = t.Affinity().CPU()
	}
	destRQ := k.cpus[dest]
	destRQ.lock.Lock(cpuID, arch.Pause{})
	destRQ.addReadyLocked(t)
	destRQ.lock.Unlock()
	return nil
}

// SetAffinity pins id to cpu, or clears the pin with affinity.Any. Beyond
// the load balancer and work stealer, which consult Affinity before
// moving any Ready thread on their own schedules, SetAffinity itself
// immediately evicts t from whichever ready FIFO it currently sits in —
// if any — and re-enqueues it on the new pin. Which
// CPU currently holds t, if any, is not tracked outside the owning
// runqueue's own lock, so this scans every CPU in id order, one lock at a
// time, exactly like ThreadUnblock's blocked-list search — never holding
// two runqueue locks at once, so there is no lock-ordering requirement to
// get right here, and no race against a concurrent load-balance/steal
// move of the same thread. If t is not presently a ready-FIFO member (it
// is Running, Blocked, Sleeping, or Dead), there is nothing to move and
// the new affinity simply takes effect for the next time it is enqueued.
func (k *Kernel) SetAffinity(cpuID int, id ID, cpu int32) error {
	t := k.table.lookup(cpuID, id)
	if t == nil {
		k.log.Debug().Uint64("thread_id", uint64(id)).Msg("set_affinity: unknown or dead thread id, ignoring")
		return kerrors.ErrInvalidThread
	}
	if cpu != affinity.Any && (cpu < 0 || int(cpu) >= len(k.cpus)) {
		return fmt.Errorf("sched: cpu %d out of range [0,%d)", cpu, len(k.cpus))
	}
	t.affinity.Store(cpu)

	if cpu == affinity.Any {
		return nil
	}
	dest := int(cpu)

	found := false
	for _, rq := range k.cpus {
		rq.lock.Lock(cpuID, arch.Pause{})
		if rq.id != dest && rq.removeReadyLocked(t) {
			found = true
		}
		rq.lock.Unlock()
		if found {
			break
		}
	}
	if found {
		destRQ := k.cpus[dest]
		destRQ.lock.Lock(cpuID, arch.Pause{})
		destRQ.addReadyLocked(t)
		destRQ.lock.Unlock()
	}
	return nil
}

// CheckPreempt is the cooperative checkpoint thread bodies call at loop
// back-edges, the post-interrupt reschedule hook that stands in for
// asynchronous preemption of an arbitrary instruction boundary. If the
// CPU's need-reschedule flag is set, it is cleared and self is preempted
// via exactly the same re-queue-and-suspend path as a voluntary yield.
func (k *Kernel) CheckPreempt(self *Thread) {
	if k.needResched[self.homeCPU].CompareAndSwap(true, false) {
		k.ThreadYield(self)
	}
}

// Tick is the timer interrupt handler, invoked once per period on every
// CPU. It charges the running thread, and — on the BSP
// only — advances the global tick counter, wakes due sleepers, and drives
// periodic load balancing. Every CPU, BSP included, independently expires
// its own quantum and may set its own need-reschedule flag.
func (k *Kernel) Tick(cpuID int) {
	rq := k.cpus[cpuID]
	if cur := rq.current.Load(); cur != nil && !cur.idle {
		cur.cpuTicks.Add(1)
	}

	if k.topo.IsBSP(cpuID) {
		now := atomic.AddUint64(&k.tickCount, 1)

		for _, t := range k.sleepQ.wake(cpuID, now) {
			// Waking a sleeper takes only this CPU's own runqueue lock. A
			// sleeper pinned to a peer CPU is posted to that CPU's lock-free
			// wakeup inbox instead, drained by the target on its next pick.
			if aff := t.Affinity(); aff.Pinned() && aff.CPU() != cpuID {
				k.cpus[aff.CPU()].wakeups.Enqueue(t)
				continue
			}
			rq.lock.Lock(cpuID, arch.Pause{})
			rq.addReadyLocked(t)
			rq.lock.Unlock()
		}

		if now%LoadBalanceIntervalTicks == 0 {
			k.loadBalance(cpuID)
		}
	}

	if k.quantum[cpuID].Add(1) >= PreemptQuantumTicks {
		k.quantum[cpuID].Store(0)
		k.needResched[cpuID].Store(true)
	}
}

// idleEntry is the body every per-CPU idle thread runs: spin, yielding
// immediately each time, so pickNext is re-consulted on every pass and
// picks up real work the instant it appears.
func idleEntry(k *Kernel, self *Thread, _ any) {
	p := arch.Pause{}
	for {
		p.Pause()
		k.ThreadYield(self)
	}
}

// pickNext selects the next thread to dispatch on cpuID. It first drains
// this CPU's wakeup inbox onto the ready FIFOs, then takes the head of the
// highest non-empty priority FIFO, falling back to a stolen thread from a
// peer CPU, falling back to cpuID's own idle thread.
func (k *Kernel) pickNext(cpuID int) *Thread {
	rq := k.cpus[cpuID]

	rq.lock.Lock(cpuID, arch.Pause{})
	for {
		woken, ok := rq.wakeups.Dequeue()
		if !ok {
			break
		}
		rq.addReadyLocked(woken)
	}
	t := rq.pickReadyLocked()
	rq.lock.Unlock()
	if t != nil {
		return t
	}

	if stolen := k.stealWork(cpuID); stolen != nil {
		return stolen
	}

	return rq.idle
}

// cpuLoop is the driver goroutine bound to logical CPU cpuID: pick a
// thread, reap the previous occupant's stack once it is safely off-CPU,
// and switch into it. Loops forever; Stop only silences the tick source,
// it does not unwind this goroutine.
func (k *Kernel) cpuLoop(cpuID int) {
	arch.CPUBinder(cpuID)
	rq := k.cpus[cpuID]

	for {
		next := k.pickNext(cpuID)

		if rq.zombie != nil {
			arch.FreeThreadStack(rq.zombie.stack)
			rq.zombie = nil
		}

		rq.current.Store(next)
		next.state = Running
		arch.ContextSwitch(nil, next.ctx)
	}
}
