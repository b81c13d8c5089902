package machine_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtstar/wt/lang/bytecode"
	"github.com/wtstar/wt/lang/machine"
)

// ReadInput/WriteOutput round-trip a scalar and an array variable through
// the textual §6 format, with no code executed at all.
func TestReadInputWriteOutputRoundTrip(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode EREW
		globalsize 16
	input:
		addr 0 numdim 0 layout int
		addr 4 numdim 1 layout int
	output:
		addr 0 numdim 0 layout int
		addr 4 numdim 1 layout int
	code:
		main:
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)
	require.NoError(t, m.ReadInput(strings.NewReader("7 3 10 20 30")))

	var out strings.Builder
	require.NoError(t, m.WriteOutput(&out))
	assert.Equal(t, "7\n10 20 30\n", out.String())
}

// A float scalar round-trips through the %g-formatted textual encoding.
func TestReadInputWriteOutputFloat(t *testing.T) {
	p := asmProgram(t, `
program:
	header:
		memmode EREW
		globalsize 4
	input:
		addr 0 numdim 0 layout float
	output:
		addr 0 numdim 0 layout float
	code:
		main:
			endvm
`)
	m, err := machine.NewMachine(p)
	require.NoError(t, err)
	require.NoError(t, m.ReadInput(strings.NewReader("3.5")))

	var out strings.Builder
	require.NoError(t, m.WriteOutput(&out))
	assert.Equal(t, "3.5\n", out.String())
}
