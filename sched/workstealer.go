package sched

// stealWork is pickNext's fallback when thief's own ready FIFOs are empty.
// It visits every peer CPU in round-robin order starting
// just past thief's stealCursor, trylocking each in turn — a steal never
// blocks waiting for a peer's lock, it simply moves on to the next
// candidate — and, on a successful trylock, scans that peer's entire
// priority range from low to high, preferring the cheapest work to move,
// skipping anything pinned away from thief. Unlike the load balancer,
// stealing has no migratable-priority ceiling: "an idle CPU takes whatever
// it can find," including high-priority work the balancer would leave put.
func (k *Kernel) stealWork(thief int) *Thread {
	n := len(k.cpus)
	if n <= 1 {
		return nil
	}

	rq := k.cpus[thief]
	for i := 1; i < n; i++ {
		victimID := (rq.stealCursor + i) % n
		if victimID == thief {
			continue
		}
		victim := k.cpus[victimID]

		if !victim.lock.TryLock(thief) {
			continue
		}
		var stolen *Thread
		for p := 0; p < PriorityLevels; p++ {
			stolen = victim.ready[p].removeFirstMatch(func(t *Thread) bool {
				return t.Affinity().Allows(thief)
			})
			if stolen != nil {
				victim.count.Add(-1)
				break
			}
		}
		victim.lock.Unlock()

		if stolen != nil {
			rq.stealCursor = victimID
			stolen.homeCPU = thief
			return stolen
		}
	}
	return nil
}
