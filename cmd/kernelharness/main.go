// Command kernelharness boots the scheduler core standalone and runs one
// of a fixed set of end-to-end scenarios against it, printing what it
// observed. It exists to exercise sched/affinity/ksync/lockfree the same
// way a developer would from a shell: a real, flag-driven binary
// a developer runs by hand, not just a test.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Whoisraeen/Scarlett-OS-sub003/affinity"
	"github.com/Whoisraeen/Scarlett-OS-sub003/internal/klog"
	"github.com/Whoisraeen/Scarlett-OS-sub003/lockfree"
	"github.com/Whoisraeen/Scarlett-OS-sub003/sched"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "  %s -scenario=<name>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "scenarios: roundrobin, preempt, sleep, steal, balance, lockfreequeue\n")
		flag.PrintDefaults()
	}
	flagScenario := flag.String("scenario", "roundrobin", "which end-to-end scenario to run")
	flagVerbose := flag.Bool("verbose", false, "debug-level logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *flagVerbose {
		level = zerolog.DebugLevel
	}
	log := klog.Console(level)

	scenario, ok := scenarios[*flagScenario]
	if !ok {
		log.Fatal().Str("scenario", *flagScenario).Msg("unknown scenario")
	}
	log.Info().Str("scenario", *flagScenario).Msg("starting")
	scenario(log)
	log.Info().Str("scenario", *flagScenario).Msg("done")
}

var scenarios = map[string]func(zerolog.Logger){
	"roundrobin":    scenarioRoundRobin,
	"preempt":       scenarioPreemption,
	"sleep":         scenarioSleep,
	"steal":         scenarioWorkSteal,
	"balance":       scenarioLoadBalance,
	"lockfreequeue": scenarioLockFreeQueue,
}

// scenarioRoundRobin: two same-priority threads on one CPU, each
// yielding six times, must alternate strictly.
func scenarioRoundRobin(log zerolog.Logger) {
	k := sched.NewKernel(1, log)
	k.Start()
	defer k.Stop()

	var mu sync.Mutex
	var order []string

	body := func(name string) sched.EntryFunc {
		return func(k *sched.Kernel, self *sched.Thread, _ any) {
			for i := 0; i < 6; i++ {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				k.ThreadYield(self)
			}
		}
	}
	k.ThreadCreate(0, body("T1"), nil, 64, "T1")
	k.ThreadCreate(0, body("T2"), nil, 64, "T2")

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	log.Info().Strs("order", order).Msg("dispatch order")
	mu.Unlock()
}

// scenarioPreemption: a low-priority counter gets preempted by a
// higher-priority thread within one quantum.
func scenarioPreemption(log zerolog.Logger) {
	k := sched.NewKernel(1, log)
	k.Start()
	defer k.Stop()

	var ticks atomic.Uint64
	low := func(k *sched.Kernel, self *sched.Thread, _ any) {
		for {
			ticks.Add(1)
			k.CheckPreempt(self)
		}
	}
	k.ThreadCreate(0, low, nil, 32, "low")

	time.Sleep(60 * time.Millisecond)
	high := func(k *sched.Kernel, self *sched.Thread, _ any) {
		for i := 0; i < 3; i++ {
			k.ThreadYield(self)
		}
	}
	k.ThreadCreate(0, high, nil, 96, "high")

	time.Sleep(200 * time.Millisecond)
	log.Info().Uint64("low_ticks", ticks.Load()).Msg("counter observed")
}

// scenarioSleep: a thread sleeping 50ms is absent from ready queues
// until its deadline.
func scenarioSleep(log zerolog.Logger) {
	k := sched.NewKernel(2, log)
	k.Start()
	defer k.Stop()

	woke := make(chan uint64, 1)
	body := func(k *sched.Kernel, self *sched.Thread, _ any) {
		k.ThreadSleep(self, 50)
		woke <- k.TickCount()
	}
	k.ThreadCreate(0, body, nil, 64, "sleeper")

	select {
	case tick := <-woke:
		log.Info().Uint64("woke_at_tick", tick).Msg("sleeper resumed")
	case <-time.After(2 * time.Second):
		log.Error().Msg("sleeper never woke")
	}
}

// scenarioWorkSteal: an idle CPU steals from a busy peer's ready FIFO.
func scenarioWorkSteal(log zerolog.Logger) {
	k := sched.NewKernel(2, log)
	k.Start()
	defer k.Stop()

	noop := func(k *sched.Kernel, self *sched.Thread, _ any) {
		k.ThreadYield(self)
	}
	for i := 0; i < 4; i++ {
		k.ThreadCreate(0, noop, nil, 64, fmt.Sprintf("T%d", i+1))
	}

	time.Sleep(200 * time.Millisecond)
	log.Info().
		Int("cpu0_ready", k.ReadyLen(0)).
		Int("cpu1_ready", k.ReadyLen(1)).
		Msg("queue depths after steal window")
}

// scenarioLoadBalance: four CPUs, one overloaded, converge over one
// balance interval.
func scenarioLoadBalance(log zerolog.Logger) {
	k := sched.NewKernel(4, log)
	k.Start()
	defer k.Stop()

	spin := func(k *sched.Kernel, self *sched.Thread, _ any) {
		for {
			k.CheckPreempt(self)
		}
	}
	for i := 0; i < 10; i++ {
		id, _ := k.ThreadCreate(0, spin, nil, 32, fmt.Sprintf("busy%d", i))
		k.SetAffinity(0, id, affinity.Any)
	}
	for cpu := 1; cpu < 4; cpu++ {
		for i := 0; i < 2; i++ {
			k.ThreadCreate(cpu, spin, nil, 32, fmt.Sprintf("cpu%d-%d", cpu, i))
		}
	}

	before := k.ReadyLen(0) - k.ReadyLen(1)
	time.Sleep(1500 * time.Millisecond)
	after := k.ReadyLen(0) - k.ReadyLen(1)
	log.Info().Int("delta_before", before).Int("delta_after", after).Msg("load-balance convergence")
}

// scenarioLockFreeQueue: concurrent producers/consumers on the MPMC
// queue, checked for duplicate or lost values.
func scenarioLockFreeQueue(log zerolog.Logger) {
	const producers, perProducer = 4, 1000
	q := lockfree.NewQueue[int]()

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

	total := producers * perProducer
	seen := make([]bool, total)
	var seenMu sync.Mutex
	var consumed int

	var cwg sync.WaitGroup
	for c := 0; c < 4; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				seenMu.Lock()
				done := consumed >= total
				seenMu.Unlock()
				if done {
					return
				}
				if v, ok := q.Dequeue(); ok {
					seenMu.Lock()
					if seen[v] {
						log.Error().Int("value", v).Msg("duplicate dequeue")
					}
					seen[v] = true
					consumed++
					seenMu.Unlock()
				}
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	missing := 0
	for _, ok := range seen {
		if !ok {
			missing++
		}
	}
	log.Info().Int("total", total).Int("missing", missing).Msg("lock-free queue contention result")
}
