package bytecode_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtstar/wt/lang/bytecode"
)

func TestAssembleProducesParsableContainer(t *testing.T) {
	src := `
program:
	header:
		memmode EREW
		globalsize 4
	code:
		main:
			pushc 1
			endvm
`
	bin, err := bytecode.Assemble("test.wta", []byte(src))
	require.NoError(t, err)

	got, err := bytecode.Parse(bin)
	require.NoError(t, err)
	assert.Equal(t, bytecode.ModeEREW, got.Header.MemMode)
}

func TestAssembleWrapsErrorWithSourceName(t *testing.T) {
	_, err := bytecode.Assemble("broken.wta", []byte("not a program"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.wta")
}

func TestDisassembleAnnotatesJumpTargets(t *testing.T) {
	p := sampleProgram()
	p.Code = []byte{byte(bytecode.JMP), 0, 0, 0, 0, byte(bytecode.ENDVM)}

	out := bytecode.Disassemble(p)
	assert.True(t, strings.Contains(out, "JMP"))
	assert.True(t, strings.Contains(out, "-> 5"))
}

func TestDescribeVariablesRendersLayout(t *testing.T) {
	p := sampleProgram()
	out := bytecode.DescribeVariables("input", p.Input)
	assert.Contains(t, out, "input:")
	assert.Contains(t, out, "scalar")
	assert.Contains(t, out, "array(1-d)")
}
