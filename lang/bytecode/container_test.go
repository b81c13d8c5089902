package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wtstar/wt/lang/bytecode"
	"github.com/wtstar/wt/lang/layout"
)

func sampleProgram() *bytecode.Program {
	return &bytecode.Program{
		Header: bytecode.Header{Version: bytecode.HeaderVersion, GlobalSize: 16, MemMode: bytecode.ModeCREW},
		Input: []bytecode.Variable{
			{Addr: 0, NumDim: 0, Layout: []layout.Tag{layout.TagInt}},
			{Addr: 4, NumDim: 1, Layout: []layout.Tag{layout.TagFloat}},
		},
		Output: []bytecode.Variable{
			{Addr: 8, NumDim: 0, Layout: []layout.Tag{layout.TagInt, layout.TagChar}},
		},
		FnMap: []bytecode.FnMapEntry{
			{CodeAddr: 0, StackChange: 0},
			{CodeAddr: 12, StackChange: -4},
		},
		Code: []byte{byte(bytecode.ENDVM)},
	}
}

func TestContainerRoundTrip(t *testing.T) {
	p := sampleProgram()
	data, err := p.Emit()
	require.NoError(t, err)

	got, err := bytecode.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, p.Header, got.Header)
	assert.Equal(t, p.Input, got.Input)
	assert.Equal(t, p.Output, got.Output)
	assert.Equal(t, p.FnMap, got.FnMap)
	assert.Equal(t, p.Code, got.Code)
	assert.Nil(t, got.Debug)
}

func TestContainerRoundTripWithDebugInfo(t *testing.T) {
	p := sampleProgram()
	p.Debug = &bytecode.DebugInfo{
		Files:     []string{"prog.wt"},
		Functions: []bytecode.DebugFunction{{Name: "main", ItemID: 0}},
		Items: []bytecode.ItemInfo{
			{FileID: 0, FirstLine: 1, FirstCol: 1, LastLine: 10, LastCol: 1},
		},
		SourceMap: []bytecode.CodeMapEntry{{Pos: 0, ID: 0}},
		Types: []bytecode.TypeInfo{
			{Name: "int", Members: nil},
			{Name: "point", Members: []bytecode.TypeMember{{Name: "x", TypeIndex: 0}, {Name: "y", TypeIndex: 0}}},
		},
		ScopeMap: []bytecode.CodeMapEntry{{Pos: 0, ID: 0}},
		Scopes: []bytecode.ScopeInfo{
			{Parent: 0, Vars: []bytecode.VariableInfo{{Name: "x", Type: 0, NumDim: 0, FromCode: 0, Addr: 0}}},
		},
	}

	data, err := p.Emit()
	require.NoError(t, err)

	got, err := bytecode.Parse(data)
	require.NoError(t, err)
	require.NotNil(t, got.Debug)
	assert.Equal(t, p.Debug, got.Debug)
}

func TestContainerMissingHeader(t *testing.T) {
	p := sampleProgram()
	data, err := p.Emit()
	require.NoError(t, err)

	// overwrite the HEADER section's leading tag byte with an unknown tag
	// value so Parse reports a clear error instead of silently misreading
	// the section.
	data[0] = 0x01
	_, err = bytecode.Parse(data)
	assert.ErrorIs(t, err, bytecode.ErrMalformedBinary)
}

func TestContainerTruncated(t *testing.T) {
	p := sampleProgram()
	data, err := p.Emit()
	require.NoError(t, err)

	_, err = bytecode.Parse(data[:3])
	assert.ErrorIs(t, err, bytecode.ErrMalformedBinary)
}

func TestContainerBadVersion(t *testing.T) {
	p := sampleProgram()
	p.Header.Version = 99
	data, err := p.Emit()
	require.NoError(t, err)

	_, err = bytecode.Parse(data)
	assert.ErrorIs(t, err, bytecode.ErrMalformedBinary)
}

func TestMemModeName(t *testing.T) {
	assert.Equal(t, "EREW", bytecode.ModeEREW.Name())
	assert.Equal(t, "CREW", bytecode.ModeCREW.Name())
	assert.Equal(t, "CCRCW", bytecode.ModeCCRCW.Name())
	assert.Equal(t, "unknown", bytecode.MemMode(0).Name())
}
