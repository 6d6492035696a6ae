package sched

import "github.com/Whoisraeen/Scarlett-OS-sub003/arch"

// loadBalance runs on the BSP every LoadBalanceIntervalTicks. It takes an advisory, lock-free snapshot of every CPU's ready-queue
// depth, and if the busiest-vs-least-loaded gap is at least
// LoadBalanceThreshold, moves exactly one migratable, unpinned thread
// from the busiest CPU to the least loaded one. Both runqueue locks are
// acquired together, always in ascending CPU-id order, to match the
// ordering the cross-CPU move invariant requires everywhere else in this
// package (see ThreadUnblock's single-lock-at-a-time scan, which needs no
// such ordering because it never holds two locks at once).
func (k *Kernel) loadBalance(cpuID int) {
	n := len(k.cpus)
	if n < 2 {
		return
	}

	busiest, least := 0, 0
	for i := 1; i < n; i++ {
		if k.cpus[i].Len() > k.cpus[busiest].Len() {
			busiest = i
		}
		if k.cpus[i].Len() < k.cpus[least].Len() {
			least = i
		}
	}
	if busiest == least {
		return
	}
	if k.cpus[busiest].Len()-k.cpus[least].Len() < LoadBalanceThreshold {
		return
	}

	lo, hi := busiest, least
	if lo > hi {
		lo, hi = hi, lo
	}
	k.cpus[lo].lock.Lock(cpuID, arch.Pause{})
	k.cpus[hi].lock.Lock(cpuID, arch.Pause{})
	defer k.cpus[hi].lock.Unlock()
	defer k.cpus[lo].lock.Unlock()

	busyRQ := k.cpus[busiest]
	var moved *Thread
	for p := 0; p <= MigratablePriorityMax; p++ {
		moved = busyRQ.ready[p].removeFirstMatch(func(t *Thread) bool {
			return !t.Affinity().Pinned()
		})
		if moved != nil {
			busyRQ.count.Add(-1)
			break
		}
	}
	if moved == nil {
		// Busiest CPU's entire backlog is high-priority or pinned; nothing
		// eligible to move this round.
		return
	}

	moved.homeCPU = least
	k.cpus[least].addReadyLocked(moved)
}
