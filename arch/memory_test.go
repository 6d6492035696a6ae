package arch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whoisraeen/Scarlett-OS-sub003/internal/kerrors"
)

func TestAllocFreeThreadStack(t *testing.T) {
	before := OutstandingStacks()

	s, err := AllocThreadStack(KernelStackSize)
	require.NoError(t, err)
	assert.Equal(t, KernelStackSize, s.Len())
	assert.Equal(t, before+1, OutstandingStacks())

	FreeThreadStack(s)
	assert.Equal(t, before, OutstandingStacks())
}

func TestAllocThreadStackRespectsBudget(t *testing.T) {
	SetStackBudget(0)
	defer SetStackBudget(0)

	before := OutstandingStacks()
	SetStackBudget(before + 1)

	s1, err := AllocThreadStack(KernelStackSize)
	require.NoError(t, err)

	_, err = AllocThreadStack(KernelStackSize)
	assert.ErrorIs(t, err, kerrors.ErrOutOfMemory)

	FreeThreadStack(s1)
}

func TestFreeNilStackIsNoop(t *testing.T) {
	before := OutstandingStacks()
	FreeThreadStack(nil)
	assert.Equal(t, before, OutstandingStacks())
}
