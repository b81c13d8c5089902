package machine

import (
	"fmt"

	"github.com/dolthub/swiss"
)

// Breakpoint is a stop condition at a code position, keyed by the position
// itself (bp_pos in the original). Entries are created only by
// AddBreakpoint, so Dynamic is always true; compile-time BREAK instructions
// are handled by Execute and never stored here. The code at Pos is not
// modified. CodePos/CodeSize hold the values passed to AddBreakpoint;
// Execute does not read them.
type Breakpoint struct {
	ID       uint32
	Pos      uint32
	CodePos  uint32
	CodeSize uint32
	Dynamic  bool
	Enabled  bool
}

func newBreakpoints() *swiss.Map[uint32, *Breakpoint] {
	return swiss.NewMap[uint32, *Breakpoint](8)
}

// AddBreakpoint inserts a dynamic breakpoint at pos, synthesizing an id.
// codePos/codeSize are stored on the breakpoint as given; no condition code
// is run, so an enabled breakpoint always stops execution at pos.
func (m *Machine) AddBreakpoint(pos, codePos, codeSize uint32) uint32 {
	m.nextBreakpointID++
	id := m.nextBreakpointID
	m.breakpoints.Put(pos, &Breakpoint{
		ID:       id,
		Pos:      pos,
		CodePos:  codePos,
		CodeSize: codeSize,
		Dynamic:  true,
		Enabled:  true,
	})
	return id
}

// RemoveBreakpoint removes the breakpoint at pos, if any.
func (m *Machine) RemoveBreakpoint(pos uint32) error {
	if _, ok := m.breakpoints.Get(pos); !ok {
		return fmt.Errorf("%w: at position %d", ErrNoSuchBreakpoint, pos)
	}
	m.breakpoints.Delete(pos)
	return nil
}

// EnableBreakpoint toggles whether the breakpoint at pos stops execution.
func (m *Machine) EnableBreakpoint(pos uint32, enabled bool) error {
	bp, ok := m.breakpoints.Get(pos)
	if !ok {
		return fmt.Errorf("%w: at position %d", ErrNoSuchBreakpoint, pos)
	}
	bp.Enabled = enabled
	return nil
}

// DynamicBreakpointID returns the id of the dynamically-inserted breakpoint
// at pos, or 0 if none is registered there (including when the stop at pos
// comes from a compile-time BREAK instruction instead).
func (m *Machine) DynamicBreakpointID(pos uint32) uint32 {
	bp, ok := m.breakpoints.Get(pos)
	if !ok || !bp.Dynamic {
		return 0
	}
	return bp.ID
}

func (m *Machine) breakpointAt(pos uint32) (*Breakpoint, bool) {
	bp, ok := m.breakpoints.Get(pos)
	if !ok || !bp.Enabled {
		return nil, false
	}
	return bp, true
}
