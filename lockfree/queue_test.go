package lockfree

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOSingleThreaded(t *testing.T) {
	q := NewQueue[int]()
	_, ok := q.Dequeue()
	require.False(t, ok, "empty queue must report not-ok")

	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	require.Equal(t, int64(5), q.Len())

	for i := 0; i < 5; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok = q.Dequeue()
	require.False(t, ok)
	require.Equal(t, int64(0), q.Len())
}

// TestQueueContention: 4 producers each enqueue 1000 distinct integers,
// 4 consumers drain until the expected total is reached. Every value must
// be seen exactly once.
func TestQueueContention(t *testing.T) {
	const producers, perProducer = 4, 1000
	const total = producers * perProducer

	q := NewQueue[int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(base*perProducer + i)
			}
		}(p)
	}

	seen := make([]int32, total)
	var seenCount int64
	done := make(chan struct{})

	var cwg sync.WaitGroup
	for c := 0; c < 4; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				v, ok := q.Dequeue()
				if !ok {
					continue
				}
				assert.GreaterOrEqual(t, v, 0)
				assert.Less(t, v, total)
				if !atomic.CompareAndSwapInt32(&seen[v], 0, 1) {
					t.Errorf("value %d dequeued twice", v)
				}
				if atomic.AddInt64(&seenCount, 1) == int64(total) {
					close(done)
				}
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	for v, s := range seen {
		assert.Equal(t, int32(1), s, "value %d never dequeued", v)
	}
}
