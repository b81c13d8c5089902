package machine

import (
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/dolthub/swiss"

	"github.com/wtstar/wt/internal/bytestack"
	"github.com/wtstar/wt/lang/bytecode"
	"github.com/wtstar/wt/lang/layout"
)

// Machine is one WT virtual machine instance: the thread-group stack, the
// frame stack, the global heap, Work/Time counters and the compiled program
// it executes.
type Machine struct {
	Code    []byte
	FnMap   []bytecode.FnMapEntry
	Input   []bytecode.Variable
	Output  []bytecode.Variable
	MemMode bytecode.MemMode
	Debug   *bytecode.DebugInfo

	Heap        *bytestack.Stack
	Groups      [][]*Thread
	VirtualGrps int
	Frames      []*Frame

	W, T uint64
	PC   uint32

	state        State
	nextThreadID uint64

	nextBreakpointID uint32
	breakpoints      *swiss.Map[uint32, *Breakpoint]

	// Trace, if non-nil, receives one line per executed instruction, in the
	// style of the original runtime's EXEC_DEBUG trace.
	Trace io.Writer
}

// NewMachine builds a ready-to-run Machine from a parsed program: global
// memory pre-allocated, one thread group with a single main thread, and one
// frame with base 0.
func NewMachine(p *bytecode.Program) (*Machine, error) {
	main := newThread(1)
	main.Mem.Alloc(p.Header.GlobalSize)

	m := &Machine{
		Code:         p.Code,
		FnMap:        p.FnMap,
		Input:        p.Input,
		Output:       p.Output,
		MemMode:      p.Header.MemMode,
		Debug:        p.Debug,
		Heap:         bytestack.New(),
		Groups:       [][]*Thread{{main}},
		Frames:       []*Frame{newFrame(0)},
		nextThreadID: 2,
		breakpoints:  newBreakpoints(),
		state:        StateReady,
	}
	return m, nil
}

// State reports the VM's overall run state.
func (m *Machine) State() State { return m.state }

func (m *Machine) activeGroup() []*Thread { return m.Groups[len(m.Groups)-1] }

func (m *Machine) pushGroup(g []*Thread) { m.Groups = append(m.Groups, g) }

func (m *Machine) popGroupStack() []*Thread {
	top := len(m.Groups) - 1
	g := m.Groups[top]
	m.Groups = m.Groups[:top]
	return g
}

func (m *Machine) activeFrame() *Frame { return m.Frames[len(m.Frames)-1] }

func threadIDs(group []*Thread) []uint64 {
	if len(group) == 0 {
		return nil
	}
	ids := make([]uint64, len(group))
	for i, t := range group {
		ids[i] = t.ID
	}
	return ids
}

// Execute runs instructions until ENDVM, a breakpoint, a fatal error, or
// limit instructions have executed (limit <= 0 means unbounded). The
// returned Result's Status distinguishes the three resumable/terminal
// outcomes; a non-nil error is always fatal and leaves the Machine no
// longer runnable.
func (m *Machine) Execute(limit int) (Result, error) {
	if m.state == StateError {
		return Result{}, fmt.Errorf("machine stopped on an earlier fatal error")
	}
	m.state = StateRunning
	steps := 0

	for {
		if limit > 0 {
			if steps >= limit {
				m.state = StateReady
				return Result{Status: StatusBudgetExhausted}, nil
			}
			steps++
		}

		if bp, ok := m.breakpointAt(m.PC); ok {
			m.state = StateReady
			return Result{Status: StatusBreakpointHit, BreakpointID: bp.ID, Threads: threadIDs(m.activeGroup())}, nil
		}

		op := bytecode.Opcode(m.Code[m.PC])
		if op == bytecode.ENDVM {
			m.state = StateOK
			return Result{Status: StatusHalted}, nil
		}

		immStart := m.PC + 1
		size := uint32(bytecode.ImmediateSize(op))
		next := immStart + size
		group := m.activeGroup()
		nThr := len(group)

		if m.Trace != nil {
			fmt.Fprintf(m.Trace, "%6d: %-10s W=%d T=%d thr=%d\n", m.PC, op, m.W, m.T, nThr)
		}

		switch op {
		case bytecode.MEM_MARK:
			if nThr > 0 {
				memMark(m.activeFrame(), m.Heap, group)
			}
			m.PC = next

		case bytecode.MEM_FREE:
			if nThr > 0 {
				memFree(m.activeFrame(), m.Heap, group)
			}
			m.PC = next

		case bytecode.FORK:
			if err := m.execFork(group); err != nil {
				m.state = StateError
				return Result{}, err
			}
			m.PC = next

		case bytecode.SPLIT:
			m.execSplit(group)
			m.PC = next

		case bytecode.JOIN:
			m.execJoin()
			m.PC = next

		case bytecode.JOIN_JMP:
			m.execJoin()
			d := readI32(m.Code, immStart)
			m.PC = uint32(int32(next) + d)

		case bytecode.JMP:
			d := readI32(m.Code, immStart)
			if nThr > 0 {
				m.W++
				m.T++
				m.PC = uint32(int32(next) + d)
			} else {
				m.PC = next
			}

		case bytecode.CALL:
			if nThr > 0 {
				m.W++
				m.T++
				memMark(m.activeFrame(), m.Heap, group)
				base := group[0].MemBase + group[0].Mem.Top()
				nf := newFrame(base)
				nf.RetAddr = next
				m.Frames = append(m.Frames, nf)
				fnIdx := readU32(m.Code, immStart)
				if int(fnIdx) >= len(m.FnMap) {
					m.state = StateError
					return Result{}, fmt.Errorf("%w: function index %d out of range", ErrRangeCheck, fnIdx)
				}
				m.PC = m.FnMap[fnIdx].CodeAddr
			} else {
				m.PC = next
			}

		case bytecode.RETURN:
			if nThr > 0 {
				m.W++
				m.T++
				of := m.activeFrame()
				m.PC = of.RetAddr
				m.Frames = m.Frames[:len(m.Frames)-1]
				memFree(m.activeFrame(), m.Heap, group)
			} else {
				m.PC = next
			}

		case bytecode.BREAK:
			id := readU32(m.Code, immStart)
			if nThr > 0 {
				m.W += uint64(nThr)
				m.T++
			}
			m.PC = next
			m.state = StateReady
			return Result{Status: StatusBreakpointHit, BreakpointID: id, Threads: threadIDs(group)}, nil

		case bytecode.BREAKOUT:
			if nThr > 0 {
				m.W += uint64(nThr)
				m.T++
			}
			m.PC = next
			m.state = StateReady
			return Result{Status: StatusBreakpointHit, Threads: threadIDs(group)}, nil

		case bytecode.BREAKSLOT:
			if nThr > 0 {
				m.W += uint64(nThr)
				m.T++
			}
			m.PC = next

		default:
			if err := m.execDefault(op, group, immStart); err != nil {
				m.state = StateError
				return Result{}, err
			}
			m.PC = next
		}
	}
}

func (m *Machine) execFork(group []*Thread) error {
	if len(group) == 0 {
		m.VirtualGrps++
		return nil
	}
	m.W++
	m.T++

	var newGroup []*Thread
	for _, t := range group {
		a := popU32(t.OpStack)
		n := popU32(t.OpStack)
		for j := uint32(0); j < n; j++ {
			child := t.clone(m.nextThreadID)
			m.nextThreadID++
			owner, off := child.resolve(a, 4)
			copy(owner.Mem.Bytes()[off:off+4], encodeU32(j))
			newGroup = append(newGroup, child)
		}
	}
	m.pushGroup(newGroup)
	return nil
}

func (m *Machine) execSplit(group []*Thread) {
	if len(group) == 0 {
		m.VirtualGrps += 2
		return
	}
	m.W++
	m.T++

	var nonzero, zero []*Thread
	for _, t := range group {
		c := popI32(t.OpStack)
		t.retain()
		if c == 0 {
			zero = append(zero, t)
		} else {
			nonzero = append(nonzero, t)
		}
	}
	// The pre-split group is left in place on the stack: two JOINs (one for
	// each half) unwind back to it, refcount-intact, exactly as before the
	// SPLIT.
	m.pushGroup(nonzero)
	m.pushGroup(zero)
}

func (m *Machine) execJoin() {
	group := m.activeGroup()
	if len(group) > 0 {
		m.W++
		m.T++
	}
	if m.VirtualGrps > 0 {
		m.VirtualGrps--
		return
	}
	for _, t := range group {
		t.release()
	}
	m.popGroupStack()
}

// execDefault runs one instruction over every thread in group, charging one
// Time unit for the step and one Work unit per thread, then validates the step's shared-memory
// accesses against the configured memory mode.
func (m *Machine) execDefault(op bytecode.Opcode, group []*Thread, immStart uint32) error {
	if len(group) > 0 {
		m.T++
		m.W += uint64(len(group))
	}
	var accesses []memAccess
	for _, t := range group {
		if err := m.step(op, t, immStart, &accesses); err != nil {
			return err
		}
	}
	return checkMemoryMode(m.MemMode, accesses)
}

func (m *Machine) step(op bytecode.Opcode, t *Thread, immStart uint32, accesses *[]memAccess) error {
	switch op {
	case bytecode.NOOP:

	case bytecode.PUSHC:
		pushU32(t.OpStack, readU32(m.Code, immStart))

	case bytecode.PUSHB:
		pushU32(t.OpStack, uint32(m.Code[immStart]))

	case bytecode.FBASE:
		pushU32(t.OpStack, m.activeFrame().Base)

	case bytecode.SIZE:
		a := popU32(t.OpStack)
		d := popU32(t.OpStack)
		maxDim := decodeU32(m.loadAndLog(t, a+4, 4, accesses))
		if d >= maxDim {
			return fmt.Errorf("%w: dimension %d out of range (array has %d dimensions)", ErrRangeCheck, d, maxDim)
		}
		sz := decodeU32(m.loadAndLog(t, a+4*(d+2), 4, accesses))
		pushU32(t.OpStack, sz)

	case bytecode.LDC:
		a := popU32(t.OpStack)
		pushU32(t.OpStack, decodeU32(m.loadAndLog(t, a, 4, accesses)))

	case bytecode.LDB:
		a := popU32(t.OpStack)
		b := m.loadAndLog(t, a, 1, accesses)
		pushU32(t.OpStack, uint32(b[0]))

	case bytecode.STC:
		a := popU32(t.OpStack)
		v := popU32(t.OpStack)
		m.storeAndLog(t, a, encodeU32(v), accesses)

	case bytecode.STB:
		a := popU32(t.OpStack)
		v := popU32(t.OpStack)
		m.storeAndLog(t, a, []byte{byte(v)}, accesses)

	case bytecode.LDCH:
		a := popU32(t.OpStack)
		pushU32(t.OpStack, decodeU32(m.loadHeapAndLog(a, 4, accesses)))

	case bytecode.LDBH:
		a := popU32(t.OpStack)
		b := m.loadHeapAndLog(a, 1, accesses)
		pushU32(t.OpStack, uint32(b[0]))

	case bytecode.STCH:
		a := popU32(t.OpStack)
		v := popU32(t.OpStack)
		m.storeHeapAndLog(a, encodeU32(v), accesses)

	case bytecode.STBH:
		a := popU32(t.OpStack)
		v := popU32(t.OpStack)
		m.storeHeapAndLog(a, []byte{byte(v)}, accesses)

	case bytecode.IDX:
		nd := int(m.Code[immStart])
		addr := popU32(t.OpStack)
		sizes := make([]uint32, nd)
		offs := make([]uint32, nd)
		for i := nd - 1; i >= 0; i-- {
			sizes[i] = decodeU32(m.loadAndLog(t, addr+4*(uint32(i)+2), 4, accesses))
			v := popU32(t.OpStack)
			offs[i] = v
			if v >= sizes[i] {
				return fmt.Errorf("%w: index %d out of range for dimension of size %d", ErrRangeCheck, v, sizes[i])
			}
		}
		var res uint32
		for i := 0; i < nd; i++ {
			res = res*sizes[i] + offs[i]
		}
		pushU32(t.OpStack, res)

	case bytecode.SWS:
		a := popU32(t.OpStack)
		b := popU32(t.OpStack)
		pushU32(t.OpStack, a)
		pushU32(t.OpStack, b)

	case bytecode.POP:
		popU32(t.OpStack)

	case bytecode.A2S:
		pushU32(t.OpStack, peekU32(t.AccStack))

	case bytecode.POPA:
		popU32(t.AccStack)

	case bytecode.S2A:
		pushU32(t.AccStack, peekU32(t.OpStack))

	case bytecode.RVA:
		reverseAcc(t.AccStack)

	case bytecode.SWA:
		swapTop2(t.AccStack)

	case bytecode.ADD_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushI32(t.OpStack, a+b)

	case bytecode.SUB_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushI32(t.OpStack, a-b)

	case bytecode.MULT_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushI32(t.OpStack, b*a)

	case bytecode.DIV_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		if b == 0 {
			return fmt.Errorf("%w: division by zero", ErrArithmetic)
		}
		pushI32(t.OpStack, a/b)

	case bytecode.MOD_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		if b == 0 {
			return fmt.Errorf("%w: modulo by zero", ErrArithmetic)
		}
		pushI32(t.OpStack, a%b)

	case bytecode.POW_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushI32(t.OpStack, ipow(a, b))

	case bytecode.ADD_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushF32(t.OpStack, a+b)

	case bytecode.SUB_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushF32(t.OpStack, a-b)

	case bytecode.MULT_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushF32(t.OpStack, a*b)

	case bytecode.DIV_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushF32(t.OpStack, a/b)

	case bytecode.POW_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushF32(t.OpStack, float32(math.Pow(float64(a), float64(b))))

	case bytecode.NOT:
		a := popI32(t.OpStack)
		pushBool(t.OpStack, a == 0)

	case bytecode.OR:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushBool(t.OpStack, a != 0 || b != 0)

	case bytecode.AND:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushBool(t.OpStack, a != 0 && b != 0)

	case bytecode.BIT_OR:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushI32(t.OpStack, a|b)

	case bytecode.BIT_AND:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushI32(t.OpStack, a&b)

	case bytecode.BIT_XOR:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushI32(t.OpStack, a^b)

	case bytecode.EQ_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushBool(t.OpStack, a == b)

	case bytecode.GT_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushBool(t.OpStack, a > b)

	case bytecode.GEQ_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushBool(t.OpStack, a >= b)

	case bytecode.LT_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushBool(t.OpStack, a < b)

	case bytecode.LEQ_INT:
		a, b := popI32(t.OpStack), popI32(t.OpStack)
		pushBool(t.OpStack, a <= b)

	case bytecode.EQ_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushBool(t.OpStack, a == b)

	case bytecode.GT_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushBool(t.OpStack, a > b)

	case bytecode.GEQ_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushBool(t.OpStack, a >= b)

	case bytecode.LT_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushBool(t.OpStack, a < b)

	case bytecode.LEQ_FLOAT:
		a, b := popF32(t.OpStack), popF32(t.OpStack)
		pushBool(t.OpStack, a <= b)

	case bytecode.INT2FLOAT:
		a := popI32(t.OpStack)
		pushF32(t.OpStack, float32(a))

	case bytecode.FLOAT2INT:
		a := popF32(t.OpStack)
		pushI32(t.OpStack, int32(a))

	case bytecode.SETR:
		t.Returned = true

	case bytecode.ALLOC:
		c := popU32(t.OpStack)
		pushU32(t.OpStack, m.Heap.Top())
		m.Heap.Alloc(c)

	case bytecode.LAST_BIT:
		a := popU32(t.OpStack)
		pushI32(t.OpStack, int32(bits.Len32(a))-1)

	case bytecode.LOG:
		a := popI32(t.OpStack)
		if a <= 0 {
			return fmt.Errorf("%w: log of non-positive value %d", ErrArithmetic, a)
		}
		pushI32(t.OpStack, int32(math.Ceil(math.Log2(float64(a)))))

	case bytecode.SQRT:
		a := popI32(t.OpStack)
		if a < 0 {
			return fmt.Errorf("%w: sqrt of negative value %d", ErrArithmetic, a)
		}
		pushI32(t.OpStack, int32(math.Ceil(math.Sqrt(float64(a)))))

	case bytecode.LOGF:
		a := popF32(t.OpStack)
		pushF32(t.OpStack, float32(math.Log2(float64(a))))

	case bytecode.SQRTF:
		a := popF32(t.OpStack)
		pushF32(t.OpStack, float32(math.Sqrt(float64(a))))

	case bytecode.SORT:
		addr := popU32(t.OpStack)
		size := popU32(t.OpStack)
		offs := popU32(t.OpStack)
		typ := layout.Tag(popU32(t.OpStack))
		base := decodeU32(m.loadAndLog(t, addr, 4, accesses))
		n := decodeU32(m.loadAndLog(t, addr+8, 4, accesses))
		if err := sortArray(m.Heap, base, n, size, offs, typ); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
	}
	return nil
}

func (m *Machine) loadAndLog(t *Thread, addr, length uint32, accesses *[]memAccess) []byte {
	data := t.loadMem(addr, length)
	if t.shares(addr) {
		*accesses = append(*accesses, memAccess{domain: domainMem, addr: addr, thread: t.ID})
	}
	return data
}

func (m *Machine) storeAndLog(t *Thread, addr uint32, data []byte, accesses *[]memAccess) {
	if t.shares(addr) {
		*accesses = append(*accesses, memAccess{domain: domainMem, addr: addr, write: true, value: data, thread: t.ID})
	}
	t.storeMem(addr, data)
}

func (m *Machine) loadHeapAndLog(addr, length uint32, accesses *[]memAccess) []byte {
	*accesses = append(*accesses, memAccess{domain: domainHeap, addr: addr})
	out := make([]byte, length)
	copy(out, m.Heap.Bytes()[addr:addr+length])
	return out
}

func (m *Machine) storeHeapAndLog(addr uint32, data []byte, accesses *[]memAccess) {
	*accesses = append(*accesses, memAccess{domain: domainHeap, addr: addr, write: true, value: data})
	copy(m.Heap.Bytes()[addr:addr+uint32(len(data))], data)
}
