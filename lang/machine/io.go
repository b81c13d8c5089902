package machine

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/wtstar/wt/lang/layout"
)

// ReadInput parses r's whitespace-separated tokens into the declared input
// variables, in declaration order (§6). A scalar consumes one token per leaf
// of its layout; an array's first token is its element count, which
// allocates a heap block sized for that many records and writes the array
// header (heap_base, num_dim=1, dim_0=n) into the variable's private memory
// before consuming n payload records.
func (m *Machine) ReadInput(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)
	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("input exhausted")
		}
		return sc.Text(), nil
	}

	if len(m.activeGroup()) == 0 {
		return fmt.Errorf("no active thread to receive input")
	}
	thr := m.activeGroup()[0]

	for _, v := range m.Input {
		if v.NumDim == 0 {
			if err := readScalar(thr, next, v.Addr, v.Layout); err != nil {
				return err
			}
			continue
		}
		tok, err := next()
		if err != nil {
			return err
		}
		n, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid array length %q: %w", tok, err)
		}
		recSize := recordSize(v.Layout)
		base := m.Heap.Top()
		m.Heap.Alloc(uint32(n) * recSize)
		thr.storeMem(v.Addr, encodeU32(base))
		thr.storeMem(v.Addr+4, encodeU32(1))
		thr.storeMem(v.Addr+8, encodeU32(uint32(n)))
		for i := uint32(0); i < uint32(n); i++ {
			if err := m.readRecordToHeap(next, base+i*recSize, v.Layout); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteOutput writes whitespace-separated tokens for each output variable,
// one line per variable, mirroring ReadInput's layout.
func (m *Machine) WriteOutput(w io.Writer) error {
	if len(m.activeGroup()) == 0 {
		return fmt.Errorf("no active thread to produce output")
	}
	thr := m.activeGroup()[0]

	bw := bufio.NewWriter(w)
	for _, v := range m.Output {
		if v.NumDim == 0 {
			if err := writeScalar(bw, thr, v.Addr, v.Layout); err != nil {
				return err
			}
		} else {
			base := decodeU32(thr.loadMem(v.Addr, 4))
			n := decodeU32(thr.loadMem(v.Addr+8, 4))
			recSize := recordSize(v.Layout)
			for i := uint32(0); i < n; i++ {
				if i > 0 {
					bw.WriteByte(' ')
				}
				if err := writeRecordFromHeap(bw, m.Heap.Bytes(), base+i*recSize, v.Layout); err != nil {
					return err
				}
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func recordSize(tags []layout.Tag) uint32 {
	var sz uint32
	for _, t := range tags {
		sz += t.Size()
	}
	return sz
}

func readScalar(thr *Thread, next func() (string, error), addr uint32, tags []layout.Tag) error {
	off := addr
	for _, tag := range tags {
		tok, err := next()
		if err != nil {
			return err
		}
		b, err := parseToken(tag, tok)
		if err != nil {
			return err
		}
		thr.storeMem(off, b)
		off += tag.Size()
	}
	return nil
}

func (m *Machine) readRecordToHeap(next func() (string, error), addr uint32, tags []layout.Tag) error {
	off := addr
	for _, tag := range tags {
		tok, err := next()
		if err != nil {
			return err
		}
		b, err := parseToken(tag, tok)
		if err != nil {
			return err
		}
		copy(m.Heap.Bytes()[off:off+uint32(len(b))], b)
		off += tag.Size()
	}
	return nil
}

func parseToken(tag layout.Tag, tok string) ([]byte, error) {
	switch tag {
	case layout.TagInt:
		v, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid int token %q: %w", tok, err)
		}
		return encodeU32(uint32(int32(v))), nil
	case layout.TagFloat:
		v, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid float token %q: %w", tok, err)
		}
		return encodeU32(math.Float32bits(float32(v))), nil
	case layout.TagChar:
		if len(tok) != 1 {
			return nil, fmt.Errorf("invalid char token %q", tok)
		}
		return []byte{tok[0]}, nil
	default:
		return nil, fmt.Errorf("unsupported layout tag %v", tag)
	}
}

func writeScalar(w *bufio.Writer, thr *Thread, addr uint32, tags []layout.Tag) error {
	off := addr
	for i, tag := range tags {
		if i > 0 {
			w.WriteByte(' ')
		}
		if err := writeToken(w, tag, thr.loadMem(off, tag.Size())); err != nil {
			return err
		}
		off += tag.Size()
	}
	return nil
}

func writeRecordFromHeap(w *bufio.Writer, heap []byte, addr uint32, tags []layout.Tag) error {
	off := addr
	for i, tag := range tags {
		if i > 0 {
			w.WriteByte(' ')
		}
		if err := writeToken(w, tag, heap[off:off+tag.Size()]); err != nil {
			return err
		}
		off += tag.Size()
	}
	return nil
}

func writeToken(w *bufio.Writer, tag layout.Tag, b []byte) error {
	switch tag {
	case layout.TagInt:
		fmt.Fprintf(w, "%d", decodeI32(b))
	case layout.TagFloat:
		fmt.Fprintf(w, "%g", math.Float32frombits(decodeU32(b)))
	case layout.TagChar:
		w.WriteByte(b[0])
	default:
		return fmt.Errorf("unsupported layout tag %v", tag)
	}
	return nil
}
