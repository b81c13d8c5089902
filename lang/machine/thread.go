// Package machine implements the virtual machine that executes WT bytecode:
// the thread-group model with private stacked memory linked to ancestors, the
// call-frame model, the instruction decoder/dispatcher, the parallel control
// state machine (FORK/SPLIT/JOIN/JOIN_JMP), Work/Time accounting, memory-mode
// enforcement, and breakpoints.
package machine

import "github.com/wtstar/wt/internal/bytestack"

// Thread is one logical PRAM processor: a private memory stack addressed
// starting at MemBase within its ancestor's address space, its own operand
// and accumulator stacks, and a link to the parent thread it was cloned
// from by FORK.
type Thread struct {
	ID       uint64
	MemBase  uint32
	OpStack  *bytestack.Stack
	AccStack *bytestack.Stack
	Mem      *bytestack.Stack
	Parent   *Thread
	RefCount int
	Returned bool
	BPHit    bool
}

func newThread(id uint64) *Thread {
	return &Thread{
		ID:       id,
		OpStack:  bytestack.New(),
		AccStack: bytestack.New(),
		Mem:      bytestack.New(),
		RefCount: 1,
	}
}

// clone creates a child thread of t: its private memory starts right above
// t's current memory (mem_base = t.MemBase + t.Mem.Top()), so reads of any
// address below that boundary walk up to t (or beyond) instead of being
// copied.
func (t *Thread) clone(id uint64) *Thread {
	c := newThread(id)
	c.Parent = t
	c.MemBase = t.MemBase + t.Mem.Top()
	return c
}

// retain increments the reference count; SPLIT may place the same thread in
// two sibling groups, and both must release it before it is truly gone.
func (t *Thread) retain() { t.RefCount++ }

// release decrements the reference count. The Go runtime reclaims the
// underlying buffers once nothing references t, so release only needs to
// track the count for refcount-sensitive invariants, not free anything.
func (t *Thread) release() { t.RefCount-- }

// resolve walks the parent chain to find the thread that owns addr, growing
// that thread's private memory (zero-filled) so that [addr, addr+length)
// is valid. It returns the owning thread and the address translated to an
// offset relative to that thread's MemBase.
func (t *Thread) resolve(addr, length uint32) (owner *Thread, offset uint32) {
	owner = t
	for addr < owner.MemBase {
		owner = owner.Parent
	}
	offset = addr - owner.MemBase
	owner.Mem.EnsureLen(offset + length)
	return owner, offset
}

// loadMem reads length bytes starting at logical address addr, walking up
// to an ancestor thread if addr belongs to already-allocated ancestor
// memory.
func (t *Thread) loadMem(addr, length uint32) []byte {
	owner, offset := t.resolve(addr, length)
	out := make([]byte, length)
	copy(out, owner.Mem.Bytes()[offset:offset+length])
	return out
}

// storeMem writes data to logical address addr, possibly into an ancestor's
// memory.
func (t *Thread) storeMem(addr uint32, data []byte) {
	owner, offset := t.resolve(addr, uint32(len(data)))
	copy(owner.Mem.Bytes()[offset:offset+uint32(len(data))], data)
}

// shares reports whether addr names memory thread t does not privately own
// (i.e. belongs to an ancestor): the condition under which the configured
// memory mode's concurrent-access rule applies.
func (t *Thread) shares(addr uint32) bool {
	return addr < t.MemBase
}
