package machine

import "github.com/wtstar/wt/internal/bytestack"

// Frame is a call-activation record: the base address shared by every
// thread in the calling group, the return address, and two per-frame
// mark-stacks that let MEM_MARK/MEM_FREE nest when a function body opens
// more than one memory region before returning.
type Frame struct {
	Base     uint32
	RetAddr  uint32
	HeapMark *bytestack.Stack
	MemMark  *bytestack.Stack
}

func newFrame(base uint32) *Frame {
	return &Frame{
		Base:     base,
		HeapMark: bytestack.New(),
		MemMark:  bytestack.New(),
	}
}

func pushU32(s *bytestack.Stack, v uint32) {
	s.Push([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func popU32(s *bytestack.Stack) uint32 {
	b := s.Pop(4)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// memMark snapshots the heap top and the active group's (uniform) private
// memory top onto frame's mark-stacks, so a later memFree against the same
// frame can reclaim everything allocated since.
func memMark(frame *Frame, heap *bytestack.Stack, group []*Thread) {
	pushU32(frame.HeapMark, heap.Top())
	pushU32(frame.MemMark, group[0].Mem.Top())
}

// memFree restores the heap top and every member of group's private memory
// top to the values pushed by the matching memMark.
func memFree(frame *Frame, heap *bytestack.Stack, group []*Thread) {
	heap.Truncate(popU32(frame.HeapMark))
	memtop := popU32(frame.MemMark)
	for _, t := range group {
		t.Mem.Truncate(memtop)
	}
}
