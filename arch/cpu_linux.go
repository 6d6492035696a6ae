//go:build linux

// Package arch's Linux-specific CPU binder. This is the one concrete,
// real-hardware-facing piece of the arch seam: it pins a logical CPU's
// driver goroutine to an actual host core with unix.SchedSetaffinity after
// runtime.LockOSThread, done once per simulated CPU's lifetime, which is
// which makes the kernel's logical CPU ids correspond to something real
// rather than being arbitrary indexes.
package arch

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// CPUBinder locks the calling goroutine to its own OS thread and pins that
// thread to hostCPU via runtime.LockOSThread()/unix.SchedSetaffinity. It
// must be called from the goroutine that will drive the simulated CPU's
// run loop for its entire lifetime — exactly once, before the first
// dispatch.
//
// Binding is best-effort: a sandboxed or CPU-constrained host may reject
// the affinity request, in which case the simulated CPU still runs
// correctly (just without a guaranteed 1:1 mapping to a host core), so
// errors are swallowed here and surfaced only via returned bool for
// tests that want to assert binding actually took.
func CPUBinder(logicalCPU int) (bound bool) {
	runtime.LockOSThread()

	hostCPUs := runtime.NumCPU()
	if hostCPUs == 0 {
		return false
	}
	target := logicalCPU % hostCPUs

	var set unix.CPUSet
	set.Zero()
	set.Set(target)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return false
	}
	return true
}

// HostCPUCount reports the number of CPUs the host's scheduler will let
// this process use, via the process's own affinity mask rather than
// runtime.NumCPU's static view of the machine — this distinguishes the
// system-wide CPU set from a narrower cgroup/cpuset a container may have
// been given.
func HostCPUCount() (int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, fmt.Errorf("arch: SchedGetaffinity: %w", err)
	}
	return set.Count(), nil
}
