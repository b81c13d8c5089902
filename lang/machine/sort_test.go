package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtstar/wt/internal/bytestack"
	"github.com/wtstar/wt/lang/layout"
)

// sortArray stably sorts fixed-size records in place by an int key found at
// a byte offset within each record, leaving the non-key bytes untouched.
func TestSortArrayIntKeyStable(t *testing.T) {
	heap := bytestack.New()
	heap.Alloc(0)
	// Three 8-byte records: [key int32, tag int32]. Two share key=1 to
	// verify the sort is stable (tag order among equal keys is preserved).
	records := []uint32{3, 100, 1, 200, 1, 300}
	for _, v := range records {
		pushU32(heap, v)
	}

	require.NoError(t, sortArray(heap, 0, 3, 8, 0, layout.TagInt))

	data := heap.Bytes()
	got := make([]uint32, 0, 6)
	for i := 0; i < 6; i++ {
		got = append(got, decodeU32(data[i*4:i*4+4]))
	}
	assert.Equal(t, []uint32{1, 200, 1, 300, 3, 100}, got)
}

// A key offset into the record lets the sort order by a non-leading field.
func TestSortArrayKeyOffset(t *testing.T) {
	heap := bytestack.New()
	heap.Alloc(0)
	// Two 8-byte records: [tag int32, key int32].
	records := []uint32{1, 30, 2, 10}
	for _, v := range records {
		pushU32(heap, v)
	}

	require.NoError(t, sortArray(heap, 0, 2, 8, 4, layout.TagInt))

	data := heap.Bytes()
	got := make([]uint32, 0, 4)
	for i := 0; i < 4; i++ {
		got = append(got, decodeU32(data[i*4:i*4+4]))
	}
	assert.Equal(t, []uint32{2, 10, 1, 30}, got)
}

// A sort range that runs past the end of the heap is a range check error,
// not a panic.
func TestSortArrayOutOfRange(t *testing.T) {
	heap := bytestack.New()
	heap.Alloc(8)

	err := sortArray(heap, 0, 10, 4, 0, layout.TagInt)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRangeCheck)
}
