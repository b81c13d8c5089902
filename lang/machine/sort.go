package machine

import (
	"cmp"
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/wtstar/wt/internal/bytestack"
	"github.com/wtstar/wt/lang/layout"
)

// sortArray implements SORT: a stable sort of the n records of size bytes
// starting at heap offset base, ordered by the key of type typ found at
// byte offset offs within each record.
func sortArray(heap *bytestack.Stack, base, n, size, offs uint32, typ layout.Tag) error {
	data := heap.Bytes()
	end := uint64(base) + uint64(n)*uint64(size)
	if end > uint64(len(data)) {
		return fmt.Errorf("%w: sort range [%d,%d) exceeds heap of size %d", ErrRangeCheck, base, end, len(data))
	}
	region := data[base:uint32(end)]

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	key := func(i int) []byte {
		off := uint32(i)*size + offs
		return region[off : off+typ.Size()]
	}
	compareKeys := func(a, b int) int {
		ka, kb := key(a), key(b)
		switch typ {
		case layout.TagInt:
			return cmp.Compare(decodeI32(ka), decodeI32(kb))
		case layout.TagFloat:
			return cmp.Compare(decodeF32(ka), decodeF32(kb))
		default:
			return cmp.Compare(ka[0], kb[0])
		}
	}
	slices.SortStableFunc(idx, compareKeys)

	sorted := make([]byte, len(region))
	for newPos, oldPos := range idx {
		copy(sorted[uint32(newPos)*size:], region[uint32(oldPos)*size:uint32(oldPos)*size+size])
	}
	copy(region, sorted)
	return nil
}

func decodeF32(b []byte) float32 {
	return math.Float32frombits(decodeU32(b))
}
