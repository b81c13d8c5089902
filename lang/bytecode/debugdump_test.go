package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtstar/wt/lang/bytecode"
)

func TestDumpDebugInfoRendersYAML(t *testing.T) {
	d := &bytecode.DebugInfo{
		Files:     []string{"prog.wt"},
		Functions: []bytecode.DebugFunction{{Name: "main", ItemID: 0}},
		Types: []bytecode.TypeInfo{
			{Name: "point", Members: []bytecode.TypeMember{{Name: "x", TypeIndex: 0}, {Name: "y", TypeIndex: 0}}},
		},
		Scopes: []bytecode.ScopeInfo{
			{Parent: 0, Vars: []bytecode.VariableInfo{{Name: "x", Type: 0, NumDim: 0, Addr: 0}}},
		},
	}

	out, err := bytecode.DumpDebugInfo(d)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "prog.wt")
	assert.Contains(t, s, "main")
	assert.Contains(t, s, "point")
}

func TestDumpDebugInfoNil(t *testing.T) {
	out, err := bytecode.DumpDebugInfo(nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "debug")
}
