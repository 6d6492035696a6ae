//go:build !linux

package arch

import "runtime"

// CPUBinder is a no-op on non-Linux hosts: there is no portable
// sched_setaffinity equivalent, so the simulated CPU still runs correctly,
// just without a guaranteed 1:1 mapping to a host core.
func CPUBinder(logicalCPU int) (bound bool) {
	runtime.LockOSThread()
	return false
}

// HostCPUCount falls back to the static view of the machine.
func HostCPUCount() (int, error) {
	return runtime.NumCPU(), nil
}
