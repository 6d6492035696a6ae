package lockfree

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackLIFOSingleThreaded(t *testing.T) {
	s := NewStack[string]()
	_, ok := s.Pop()
	require.False(t, ok)

	s.Push("a")
	s.Push("b")
	s.Push("c")

	v, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, "c", v)

	v, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", v)

	v, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = s.Pop()
	require.False(t, ok)
}

// TestStackConcurrentPushPop pushes and pops from many goroutines and
// checks no value is lost or duplicated.
func TestStackConcurrentPushPop(t *testing.T) {
	const n = 2000
	s := NewStack[int]()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			s.Push(v)
		}(i)
	}
	wg.Wait()

	seen := make([]int32, n)
	var popped int64
	var pwg sync.WaitGroup
	for c := 0; c < 8; c++ {
		pwg.Add(1)
		go func() {
			defer pwg.Done()
			for {
				v, ok := s.Pop()
				if !ok {
					return
				}
				if !atomic.CompareAndSwapInt32(&seen[v], 0, 1) {
					t.Errorf("value %d popped twice", v)
				}
				atomic.AddInt64(&popped, 1)
			}
		}()
	}
	pwg.Wait()

	assert.Equal(t, int64(n), popped)
	for v, s := range seen {
		assert.Equal(t, int32(1), s, "value %d never popped", v)
	}
}
