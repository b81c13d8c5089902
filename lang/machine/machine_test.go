package machine_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtstar/wt/lang/bytecode"
	"github.com/wtstar/wt/lang/machine"
)

func asmProgram(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	p, err := bytecode.Asm([]byte(src))
	require.NoError(t, err)
	return p
}

func runToHalt(t *testing.T, m *machine.Machine) machine.Result {
	t.Helper()
	res, err := m.Execute(0)
	require.NoError(t, err)
	return res
}

// Scalar arithmetic with a single thread: c = a + b. Exercises the
// container/input/output path end to end with no parallel control at all.
func TestExecuteScalarArithmetic(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode EREW
		globalsize 12
	input:
		addr 0 numdim 0 layout int
		addr 4 numdim 0 layout int
	output:
		addr 8 numdim 0 layout int
	code:
		main:
			pushc 0
			ldc
			pushc 4
			ldc
			add_int
			pushc 8
			stc
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)
	require.NoError(t, m.ReadInput(strings.NewReader("19 23")))

	res := runToHalt(t, m)
	assert.Equal(t, machine.StatusHalted, res.Status)

	var out strings.Builder
	require.NoError(t, m.WriteOutput(&out))
	assert.Equal(t, "42\n", out.String())
}

// With a single thread active throughout, every control-flow instruction and
// every default-family instruction charges exactly one Work unit per Time
// unit, per the one-thread degenerate case of the Work/Time rule.
func TestExecuteWorkTimeSingleThread(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode EREW
		globalsize 4
	code:
		main:
			pushc 7
			pushc 0
			stc
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)
	runToHalt(t, m)
	assert.Equal(t, m.T, m.W)
	assert.Equal(t, uint64(3), m.T) // pushc, pushc, stc (endvm doesn't charge)
}

// FORK spawns n children tagged with their index at the forked address;
// a following default-family instruction then charges Work proportional to
// the number of threads in the active group, not the number of Time steps.
func TestExecuteForkChargesWorkPerThread(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode CREW
		globalsize 4
	code:
		main:
			pushc 4
			pushc 0
			fork
			pushc 0
			ldc
			pop
			join
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)
	res := runToHalt(t, m)
	assert.Equal(t, machine.StatusHalted, res.Status)

	// fork(W=1,T=1) + {pushc,ldc,pop}(each T=1,W=4) + join(W=1,T=1)
	assert.Equal(t, uint64(1+3+1), m.T)
	assert.Equal(t, uint64(1+3*4+1), m.W)
}

// SPLIT partitions the active group by a per-thread boolean and leaves the
// pre-split group stacked beneath both halves; two JOINs (one per half)
// restore it so execution can continue as a single group of the original
// size.
func TestExecuteSplitThenTwoJoinsRestoresGroup(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode CREW
		globalsize 4
	code:
		main:
			pushc 4
			pushc 0
			fork
			pushc 0
			ldc
			split
			join
			join
			pushc 0
			ldc
			pop
			join
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)
	res := runToHalt(t, m)
	assert.Equal(t, machine.StatusHalted, res.Status)
}

// A step budget lets Execute be resumed: StatusBudgetExhausted must stop
// exactly at the limit and a following call with no limit continues to
// completion with no lost or repeated instructions.
func TestExecuteStepBudgetResumable(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode EREW
		globalsize 4
	code:
		main:
			pushc 1
			pushc 2
			add_int
			pushc 0
			stc
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)

	res, err := m.Execute(2)
	require.NoError(t, err)
	assert.Equal(t, machine.StatusBudgetExhausted, res.Status)

	res = runToHalt(t, m)
	assert.Equal(t, machine.StatusHalted, res.Status)
}

// BREAK stops execution with the compiled-in id and leaves the PC just past
// the BREAK instruction, so resuming executes the next real instruction
// rather than re-triggering the same breakpoint.
func TestExecuteBreakInstruction(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode EREW
		globalsize 4
	code:
		main:
			pushc 5
			break 99
			pushc 0
			stc
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)

	res, err := m.Execute(0)
	require.NoError(t, err)
	require.Equal(t, machine.StatusBreakpointHit, res.Status)
	assert.Equal(t, uint32(99), res.BreakpointID)

	res = runToHalt(t, m)
	assert.Equal(t, machine.StatusHalted, res.Status)
}

// A dynamically-inserted breakpoint stops the machine at the recorded
// position without altering the underlying code, and can be removed to let
// execution pass straight through.
func TestExecuteDynamicBreakpoint(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode EREW
		globalsize 4
	code:
		main:
			pushc 1
			pushc 0
			stc
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)

	id := m.AddBreakpoint(0, 0, 0)
	res, err := m.Execute(0)
	require.NoError(t, err)
	require.Equal(t, machine.StatusBreakpointHit, res.Status)
	assert.Equal(t, id, res.BreakpointID)

	require.NoError(t, m.RemoveBreakpoint(0))
	res = runToHalt(t, m)
	assert.Equal(t, machine.StatusHalted, res.Status)
}

// Division and modulo by zero are reported as arithmetic errors, not a
// panic, leaving the machine in the error state.
func TestExecuteDivisionByZero(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode EREW
		globalsize 4
	code:
		main:
			pushc 0
			pushc 1
			div_int
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)

	_, err = m.Execute(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, machine.ErrArithmetic)
}

// CALL/RETURN push and pop a frame and charge Work/Time exactly once for
// the single thread driving the call, like any other control-flow
// instruction.
func TestExecuteCallReturn(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode EREW
		globalsize 4
	fnmap:
		addr 12 stackchange 0
	code:
		main:
			call 0
			pushc 0
			stc
			endvm
		fn:
			pushc 9
			return
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)
	res := runToHalt(t, m)
	assert.Equal(t, machine.StatusHalted, res.Status)
}
