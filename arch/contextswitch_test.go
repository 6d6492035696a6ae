package arch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestContextSwitchHandoff exercises the driver-loop/trampoline handshake
// in isolation: exactly one side runs at a time, and control returns to
// the switcher once the incoming side suspends.
func TestContextSwitchHandoff(t *testing.T) {
	ctx := NewContext()
	var ran []string

	done := make(chan struct{})
	go func() {
		ctx.WaitStarted()
		ran = append(ran, "entered")
		ctx.Suspend()
		ran = append(ran, "resumed")
		ctx.Parked()
		close(done)
	}()

	ContextSwitch(nil, ctx) // first dispatch
	require.Equal(t, []string{"entered"}, ran)

	ContextSwitch(nil, ctx) // redispatch after Suspend
	require.Equal(t, []string{"entered", "resumed"}, ran)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never parked for exit")
	}
}

func TestTopologyBSP(t *testing.T) {
	topo := NewTopology(4)
	assert.Equal(t, 4, topo.CPUCount())
	assert.True(t, topo.IsBSP(0))
	assert.False(t, topo.IsBSP(1))
	assert.False(t, topo.IsBSP(3))
}

func TestTickSourceDeliversToEveryCPU(t *testing.T) {
	const cpus = 3
	var mu sync.Mutex
	counts := make([]int, cpus)
	done := make(chan int, 1)
	total := 0

	ts := NewTickSource(1000) // 1ms period, fast enough for a short test.
	ts.Install(cpus, func(cpu int) {
		mu.Lock()
		counts[cpu]++
		total++
		n := total
		mu.Unlock()
		if n >= cpus*3 {
			select {
			case done <- n:
			default:
			}
		}
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick source never delivered enough ticks")
	}
	ts.Stop(cpus)

	mu.Lock()
	defer mu.Unlock()
	for cpu, c := range counts {
		assert.Greater(t, c, 0, "cpu %d never received a tick", cpu)
	}
}
