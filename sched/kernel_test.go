package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whoisraeen/Scarlett-OS-sub003/affinity"
	"github.com/Whoisraeen/Scarlett-OS-sub003/internal/kerrors"
	"github.com/Whoisraeen/Scarlett-OS-sub003/internal/klog"
)

// pollUntil polls cond every 2ms until it reports true or timeout elapses.
func pollUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// TestRoundRobinAlternation: two same-priority threads on one CPU must
// strictly alternate across repeated yields.
func TestRoundRobinAlternation(t *testing.T) {
	k := NewKernel(1, klog.Nop())
	k.Start()
	defer k.Stop()

	var mu sync.Mutex
	var order []string

	makeBody := func(name string) EntryFunc {
		return func(k *Kernel, self *Thread, _ any) {
			for i := 0; i < 6; i++ {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				k.ThreadYield(self)
			}
		}
	}
	_, err := k.ThreadCreate(0, makeBody("T1"), nil, 64, "T1")
	require.NoError(t, err)
	_, err = k.ThreadCreate(0, makeBody("T2"), nil, 64, "T2")
	require.NoError(t, err)

	ok := pollUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 12
	})
	require.True(t, ok, "both threads never completed their yields")

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 12; i += 2 {
		assert.Equal(t, "T1", order[i])
		assert.Equal(t, "T2", order[i+1])
	}
}

// TestPriorityPreemption: a high-priority thread created after a
// low-priority tight loop has started must run within one preemption
// quantum.
func TestPriorityPreemption(t *testing.T) {
	k := NewKernel(1, klog.Nop())
	k.Start()
	defer k.Stop()

	var lowTicks int64
	var lowMu sync.Mutex

	low := func(k *Kernel, self *Thread, _ any) {
		for {
			lowMu.Lock()
			lowTicks++
			lowMu.Unlock()
			k.CheckPreempt(self)
		}
	}
	_, err := k.ThreadCreate(0, low, nil, 32, "low")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond) // let low accumulate a few quanta.

	highRan := make(chan struct{})
	high := func(k *Kernel, self *Thread, _ any) {
		close(highRan)
		for i := 0; i < 3; i++ {
			k.ThreadYield(self)
		}
	}
	_, err = k.ThreadCreate(0, high, nil, 96, "high")
	require.NoError(t, err)

	select {
	case <-highRan:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("high priority thread never ran")
	}
}

// TestSleepWakeup: a sleeping thread is absent from ready queues until
// its computed deadline, then reappears.
func TestSleepWakeup(t *testing.T) {
	k := NewKernel(2, klog.Nop())
	k.Start()
	defer k.Stop()

	tickAtSleepCall := make(chan uint64, 1)
	woke := make(chan uint64, 1)

	body := func(k *Kernel, self *Thread, _ any) {
		tickAtSleepCall <- k.TickCount()
		k.ThreadSleep(self, 50)
		woke <- k.TickCount()
	}
	_, err := k.ThreadCreate(0, body, nil, 64, "sleeper")
	require.NoError(t, err)

	var t0 uint64
	select {
	case t0 = <-tickAtSleepCall:
	case <-time.After(time.Second):
		t.Fatal("sleeper never started")
	}

	select {
	case wokeAt := <-woke:
		assert.GreaterOrEqual(t, wokeAt, t0+5, "must not wake before the computed deadline")
	case <-time.After(2 * time.Second):
		t.Fatal("sleeper never woke")
	}
}

// TestSleepWakeupHonorsAffinity: a sleeper pinned to a non-BSP CPU must
// resume on its pinned CPU. The BSP's tick handler may not touch a peer
// runqueue's lock, so the wakeup travels through the target CPU's inbox
// and must still land on the right CPU.
func TestSleepWakeupHonorsAffinity(t *testing.T) {
	k := NewKernel(2, klog.Nop())
	k.Start()
	defer k.Stop()

	woke := make(chan int, 1)
	body := func(k *Kernel, self *Thread, _ any) {
		k.SetAffinity(self.HomeCPU(), self.ID, 1)
		k.ThreadSleep(self, 30)
		woke <- self.HomeCPU()
	}
	_, err := k.ThreadCreate(1, body, nil, 64, "pinned-sleeper")
	require.NoError(t, err)

	select {
	case cpu := <-woke:
		assert.Equal(t, 1, cpu, "pinned sleeper resumed on the wrong CPU")
	case <-time.After(2 * time.Second):
		t.Fatal("pinned sleeper never woke")
	}
}

// TestWorkStealOnIdle: with four ready threads queued on CPU0 and
// nothing local to CPU1, CPU1 must steal work.
func TestWorkStealOnIdle(t *testing.T) {
	k := NewKernel(2, klog.Nop())
	k.Start()
	defer k.Stop()

	var ran int32
	var mu sync.Mutex
	noop := func(k *Kernel, self *Thread, _ any) {
		mu.Lock()
		ran++
		mu.Unlock()
	}
	for i := 0; i < 4; i++ {
		_, err := k.ThreadCreate(0, noop, nil, 64, "stealable")
		require.NoError(t, err)
	}

	ok := pollUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran == 4
	})
	assert.True(t, ok, "not all threads were ever dispatched across both CPUs")
}

// TestLoadBalanceMigration: an overloaded CPU sheds load toward idler
// peers until the busiest/least-loaded gap narrows.
func TestLoadBalanceMigration(t *testing.T) {
	k := NewKernel(4, klog.Nop())
	k.Start()
	defer k.Stop()

	spin := func(k *Kernel, self *Thread, _ any) {
		for {
			k.CheckPreempt(self)
		}
	}
	for i := 0; i < 10; i++ {
		_, err := k.ThreadCreate(0, spin, nil, 32, "busy")
		require.NoError(t, err)
	}

	before := k.ReadyLen(0)

	ok := pollUntil(t, 3*time.Second, func() bool {
		return k.ReadyLen(0) < before
	})
	assert.True(t, ok, "load balancer never moved any thread off the overloaded CPU")
}

// TestBlockUnblockEquivalentToYield: block then unblock leaves a thread
// dispatched again, just like yield would.
func TestBlockUnblockEquivalentToYield(t *testing.T) {
	k := NewKernel(1, klog.Nop())
	k.Start()
	defer k.Stop()

	resumed := make(chan struct{})
	var self *Thread
	var selfMu sync.Mutex

	id, err := k.ThreadCreate(0, func(k *Kernel, t *Thread, _ any) {
		selfMu.Lock()
		self = t
		selfMu.Unlock()
		k.ThreadBlock(t)
		close(resumed)
	}, nil, 64, "blocker")
	require.NoError(t, err)

	require.True(t, pollUntil(t, time.Second, func() bool {
		selfMu.Lock()
		defer selfMu.Unlock()
		return self != nil
	}), "blocker never started")

	// Give the thread time to actually reach ThreadBlock.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, k.ThreadUnblock(0, id))

	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("unblocked thread never resumed")
	}
}

// TestAffinityPreservation: a pinned thread is never dispatched on a
// non-matching CPU, even under concurrent work stealing and load
// balancing pressure.
func TestAffinityPreservation(t *testing.T) {
	k := NewKernel(4, klog.Nop())
	k.Start()
	defer k.Stop()

	var violated int32
	var mu sync.Mutex
	pinned := func(pinnedCPU int) EntryFunc {
		return func(k *Kernel, self *Thread, _ any) {
			for i := 0; i < 50; i++ {
				if self.HomeCPU() != pinnedCPU {
					mu.Lock()
					violated++
					mu.Unlock()
				}
				k.ThreadYield(self)
			}
		}
	}

	id, err := k.ThreadCreate(0, pinned(0), nil, 32, "pinned-to-0")
	require.NoError(t, err)
	require.NoError(t, k.SetAffinity(0, id, 0))

	// Pile on unrelated load so the balancer/stealer have a reason to move
	// something.
	for cpu := 1; cpu < 4; cpu++ {
		for i := 0; i < 8; i++ {
			_, err := k.ThreadCreate(cpu, func(k *Kernel, self *Thread, _ any) {
				for {
					k.CheckPreempt(self)
				}
			}, nil, 32, "filler")
			require.NoError(t, err)
		}
	}

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, violated, "a pinned thread was observed off its pinned CPU")
}

func TestSetAffinityRejectsOutOfRange(t *testing.T) {
	k := NewKernel(2, klog.Nop())
	k.Start()
	defer k.Stop()

	id, err := k.ThreadCreate(0, func(k *Kernel, self *Thread, _ any) {
		k.ThreadSleep(self, 1000)
	}, nil, 64, "t")
	require.NoError(t, err)

	assert.Error(t, k.SetAffinity(0, id, 99))
	assert.NoError(t, k.SetAffinity(0, id, affinity.Any))
}

// TestSetAffinityMigratesQueuedReadyThread: pinning a thread that is
// currently sitting in a ready FIFO on a CPU other than its new pin must
// evict and re-enqueue it immediately, not wait for the balancer or work
// stealer to notice.
func TestSetAffinityMigratesQueuedReadyThread(t *testing.T) {
	k := NewKernel(2, klog.Nop())
	k.Start()
	defer k.Stop()

	// A high-priority hog dispatched on CPU0 that never suspends: CPU0's
	// driver loop never revisits its ready FIFO again until the hog
	// eventually returns, so anything else queued there is stuck unless
	// something actively migrates it away.
	hogStarted := make(chan struct{})
	_, err := k.ThreadCreate(0, func(k *Kernel, self *Thread, _ any) {
		close(hogStarted)
		deadline := time.Now().Add(1500 * time.Millisecond)
		for time.Now().Before(deadline) {
		}
	}, nil, 100, "hog")
	require.NoError(t, err)

	select {
	case <-hogStarted:
	case <-time.After(time.Second):
		t.Fatal("hog never started")
	}

	ran := make(chan int, 1)
	id, err := k.ThreadCreate(0, func(k *Kernel, self *Thread, _ any) {
		ran <- self.HomeCPU()
	}, nil, 50, "stuck")
	require.NoError(t, err)

	require.NoError(t, k.SetAffinity(0, id, 1))

	select {
	case cpu := <-ran:
		assert.Equal(t, 1, cpu, "thread pinned away from a hogged cpu must run on its new pin")
	case <-time.After(time.Second):
		t.Fatal("thread stuck behind the hog never ran — SetAffinity did not migrate it off cpu0")
	}
}

// TestStrictPriorityDispatch: with both a low- and a high-priority
// thread Ready on the same CPU, the next dispatch after the current
// thread yields must be the high-priority one.
func TestStrictPriorityDispatch(t *testing.T) {
	k := NewKernel(1, klog.Nop())
	k.Start()
	defer k.Stop()

	order := make(chan string, 2)
	_, err := k.ThreadCreate(0, func(k *Kernel, self *Thread, _ any) {
		// Both are queued before the starter yields, so the very next
		// pick sees both and must choose the higher priority.
		k.ThreadCreate(self.HomeCPU(), func(*Kernel, *Thread, any) { order <- "low" }, nil, 10, "low")
		k.ThreadCreate(self.HomeCPU(), func(*Kernel, *Thread, any) { order <- "high" }, nil, 90, "high")
		k.ThreadYield(self)
	}, nil, 64, "starter")
	require.NoError(t, err)

	select {
	case first := <-order:
		assert.Equal(t, "high", first, "higher priority thread must be dispatched first")
	case <-time.After(2 * time.Second):
		t.Fatal("neither child thread ever ran")
	}
}

// TestUnblockUnknownIDIsNoop: unblock of an unknown or dead thread id is
// a logged no-op, never a panic or a dereference.
func TestUnblockUnknownIDIsNoop(t *testing.T) {
	k := NewKernel(1, klog.Nop())
	k.Start()
	defer k.Stop()

	assert.ErrorIs(t, k.ThreadUnblock(0, ID(9999)), kerrors.ErrInvalidThread)
	// Double-unblock of a never-blocked live thread is also a no-op.
	id, err := k.ThreadCreate(0, func(k *Kernel, self *Thread, _ any) {
		k.ThreadSleep(self, 1000)
	}, nil, 64, "never-blocked")
	require.NoError(t, err)
	assert.NoError(t, k.ThreadUnblock(0, id))
}

func TestThreadCreateRejectsIdlePriority(t *testing.T) {
	k := NewKernel(1, klog.Nop())
	_, err := k.ThreadCreate(0, func(*Kernel, *Thread, any) {}, nil, IdlePriority, "bad")
	assert.Error(t, err)
}
