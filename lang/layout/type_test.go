package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wtstar/wt/lang/layout"
)

func point() *layout.Static {
	return layout.NewStatic("point", []layout.Member{
		{Name: "x", Type: layout.Int},
		{Name: "y", Type: layout.Int},
	})
}

func TestLayoutFlattening(t *testing.T) {
	p := point()
	assert.Equal(t, []layout.Tag{layout.TagInt, layout.TagInt}, p.Layout())
	assert.EqualValues(t, 8, p.Size)
	assert.EqualValues(t, p.Size, layout.LayoutSize(p))

	assert.EqualValues(t, 0, p.Members[0].Offset)
	assert.EqualValues(t, 4, p.Members[1].Offset)
}

func TestLayoutNested(t *testing.T) {
	segment := layout.NewStatic("segment", []layout.Member{
		{Name: "a", Type: point()},
		{Name: "b", Type: point()},
		{Name: "c", Type: layout.Char},
	})
	assert.Equal(t, []layout.Tag{
		layout.TagInt, layout.TagInt, layout.TagInt, layout.TagInt, layout.TagChar,
	}, segment.Layout())
	assert.EqualValues(t, 17, segment.Size)
}

func TestBasic(t *testing.T) {
	for _, tt := range []struct {
		t    *layout.Static
		want layout.Tag
	}{
		{layout.Int, layout.TagInt},
		{layout.Float, layout.TagFloat},
		{layout.Char, layout.TagChar},
	} {
		tag, err := layout.Basic(tt.t)
		require.NoError(t, err)
		assert.Equal(t, tt.want, tag)
	}

	_, err := layout.Basic(point())
	assert.Error(t, err)
}

func TestCompatibleReflexiveAndSymmetricShape(t *testing.T) {
	p := point()
	ok, masks, err := layout.Compatible(p, p)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, masks, 2)
	for _, m := range masks {
		assert.True(t, m&layout.FromInt != 0)
		assert.True(t, m&layout.ToInt != 0)
	}
}

func TestCompatibleNumericConversions(t *testing.T) {
	ok, masks, err := layout.Compatible(layout.Float, layout.Int)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, masks, 1)
	assert.True(t, masks[0].NeedsIntToFloat())

	ok, masks, err = layout.Compatible(layout.Int, layout.Float)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, masks[0].NeedsFloatToInt())

	ok, masks, err = layout.Compatible(layout.Char, layout.Int)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, masks[0].StoresByte())
}

func TestCompatibleFloatToCharRejected(t *testing.T) {
	_, _, err := layout.Compatible(layout.Char, layout.Float)
	assert.Error(t, err)
}

func TestCompatibleShapeMismatch(t *testing.T) {
	_, _, err := layout.Compatible(point(), layout.Int)
	assert.Error(t, err)

	other := layout.NewStatic("triple", []layout.Member{
		{Name: "x", Type: layout.Int},
		{Name: "y", Type: layout.Int},
		{Name: "z", Type: layout.Int},
	})
	_, _, err = layout.Compatible(point(), other)
	assert.Error(t, err)
}

func TestCompatibleWithInferred(t *testing.T) {
	p := point()
	inferred := layout.FromComponents(layout.FromStatic(layout.Int), layout.FromStatic(layout.Float))
	ok, masks, err := layout.Compatible(p, inferred)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, masks, 2)
	assert.True(t, masks[1].NeedsFloatToInt())
}
