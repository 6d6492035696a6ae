package spinlock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopPauser struct{}

func (noopPauser) Pause() {}

func TestLockUnlockBasic(t *testing.T) {
	sl := New()
	assert.False(t, sl.IsLocked())
	sl.Lock(0, noopPauser{})
	assert.True(t, sl.IsLocked())
	assert.Equal(t, 0, sl.Owner())
	sl.Unlock()
	assert.False(t, sl.IsLocked())
}

func TestTryLockContested(t *testing.T) {
	sl := New()
	require.True(t, sl.TryLock(1))
	assert.False(t, sl.TryLock(2), "a held lock must reject a second trylock")
	sl.Unlock()
	assert.True(t, sl.TryLock(2))
}

// TestTryLockThenUnlockLeavesFree: trylock followed by unlock on a free
// spinlock leaves it free.
func TestTryLockThenUnlockLeavesFree(t *testing.T) {
	sl := New()
	require.True(t, sl.TryLock(0))
	sl.Unlock()
	assert.False(t, sl.IsLocked())
}

// TestMutualExclusion: at any global instant, at most one CPU holds the
// lock.
func TestMutualExclusion(t *testing.T) {
	sl := New()
	var holders int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(cpu int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				sl.Lock(cpu, noopPauser{})
				n := atomic.AddInt32(&holders, 1)
				for {
					old := atomic.LoadInt32(&maxObserved)
					if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
						break
					}
				}
				atomic.AddInt32(&holders, -1)
				sl.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, maxObserved, int32(1))
}

func TestDebugReentrancyPanics(t *testing.T) {
	SetDebugReentrancy(true)
	defer SetDebugReentrancy(false)

	sl := New()
	sl.Lock(3, noopPauser{})
	defer sl.Unlock()

	assert.Panics(t, func() {
		sl.Lock(3, noopPauser{})
	})
}
