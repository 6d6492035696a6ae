package sched

import (
	"github.com/Whoisraeen/Scarlett-OS-sub003/arch"
	"github.com/Whoisraeen/Scarlett-OS-sub003/internal/kerrors"
	"github.com/Whoisraeen/Scarlett-OS-sub003/spinlock"
)

// threadTable is the global thread-id -> *Thread mapping, capped at
// MaxThreads and used only for lookups: affinity changes,
// debugging, and unblocking by id.
type threadTable struct {
	lock    spinlock.Spinlock
	threads map[ID]*Thread
}

func newThreadTable() *threadTable {
	return &threadTable{threads: make(map[ID]*Thread, MaxThreads)}
}

func (tt *threadTable) insert(cpuID int, t *Thread) error {
	tt.lock.Lock(cpuID, arch.Pause{})
	defer tt.lock.Unlock()
	if len(tt.threads) >= MaxThreads {
		return kerrors.ErrTooManyThreads
	}
	tt.threads[t.ID] = t
	return nil
}

func (tt *threadTable) remove(cpuID int, id ID) {
	tt.lock.Lock(cpuID, arch.Pause{})
	defer tt.lock.Unlock()
	delete(tt.threads, id)
}

// lookup returns the thread for id, or nil if unknown or already reaped —
// never panics or dereferences a stale pointer.
func (tt *threadTable) lookup(cpuID int, id ID) *Thread {
	tt.lock.Lock(cpuID, arch.Pause{})
	defer tt.lock.Unlock()
	return tt.threads[id]
}

func (tt *threadTable) len(cpuID int) int {
	tt.lock.Lock(cpuID, arch.Pause{})
	defer tt.lock.Unlock()
	return len(tt.threads)
}
