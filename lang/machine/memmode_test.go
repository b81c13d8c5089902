package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtstar/wt/lang/bytecode"
)

func TestCheckMemoryModeEREW(t *testing.T) {
	// Two reads of the same address: fine under CREW and CCRCW, a
	// violation under EREW (exclusive read).
	reads := []memAccess{
		{domain: domainMem, addr: 8, thread: 1},
		{domain: domainMem, addr: 8, thread: 2},
	}
	require.Error(t, checkMemoryMode(bytecode.ModeEREW, reads))
	assert.NoError(t, checkMemoryMode(bytecode.ModeCREW, reads))
	assert.NoError(t, checkMemoryMode(bytecode.ModeCCRCW, reads))

	// A single access, or accesses to distinct addresses, never conflict
	// regardless of mode.
	assert.NoError(t, checkMemoryMode(bytecode.ModeEREW, reads[:1]))
	distinct := []memAccess{
		{domain: domainMem, addr: 8, thread: 1},
		{domain: domainMem, addr: 12, thread: 2},
	}
	assert.NoError(t, checkMemoryMode(bytecode.ModeEREW, distinct))
}

func TestCheckMemoryModeCREW(t *testing.T) {
	// Concurrent writes are always a CREW violation, regardless of value.
	writes := []memAccess{
		{domain: domainMem, addr: 8, write: true, value: []byte{1, 0, 0, 0}, thread: 1},
		{domain: domainMem, addr: 8, write: true, value: []byte{1, 0, 0, 0}, thread: 2},
	}
	require.Error(t, checkMemoryMode(bytecode.ModeCREW, writes))

	// A write concurrent with a read on the same address also violates CREW.
	mixed := []memAccess{
		{domain: domainMem, addr: 8, write: true, value: []byte{1, 0, 0, 0}, thread: 1},
		{domain: domainMem, addr: 8, thread: 2},
	}
	require.Error(t, checkMemoryMode(bytecode.ModeCREW, mixed))
}

func TestCheckMemoryModeCCRCW(t *testing.T) {
	// CCRCW permits concurrent writes only when every writer agrees on the
	// value being stored.
	agree := []memAccess{
		{domain: domainMem, addr: 8, write: true, value: []byte{7, 0, 0, 0}, thread: 1},
		{domain: domainMem, addr: 8, write: true, value: []byte{7, 0, 0, 0}, thread: 2},
	}
	assert.NoError(t, checkMemoryMode(bytecode.ModeCCRCW, agree))

	disagree := []memAccess{
		{domain: domainMem, addr: 8, write: true, value: []byte{7, 0, 0, 0}, thread: 1},
		{domain: domainMem, addr: 8, write: true, value: []byte{9, 0, 0, 0}, thread: 2},
	}
	require.Error(t, checkMemoryMode(bytecode.ModeCCRCW, disagree))
}

// Heap addresses and private-memory addresses are bucketed separately even
// when they share a numeric value, so a heap access never collides with an
// unrelated private-memory access at the same address.
func TestCheckMemoryModeHeapAndMemDistinctBuckets(t *testing.T) {
	accesses := []memAccess{
		{domain: domainMem, addr: 8, thread: 1},
		{domain: domainHeap, addr: 8, thread: 2},
	}
	assert.NoError(t, checkMemoryMode(bytecode.ModeEREW, accesses))
}
