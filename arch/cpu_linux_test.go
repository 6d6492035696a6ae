//go:build linux

package arch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostCPUCountIsPositive(t *testing.T) {
	n, err := HostCPUCount()
	assert.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestCPUBinderDoesNotPanic(t *testing.T) {
	// Binding is best-effort (see CPUBinder's doc comment); a sandboxed
	// test runner may reject the affinity request, so only the absence
	// of a panic is asserted here.
	assert.NotPanics(t, func() {
		CPUBinder(0)
	})
}
