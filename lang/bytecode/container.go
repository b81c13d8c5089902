package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wtstar/wt/lang/layout"
)

// ErrMalformedBinary is wrapped by every error produced while parsing a
// binary container: truncated sections, a bad version byte, an unknown
// section tag, or inconsistent lengths (§7).
var ErrMalformedBinary = errors.New("malformed binary")

// SectionTag identifies one section of the binary container. This is a
// distinct namespace from MemMode: SectionHeader and MemModeCCRCW happen to
// share the numeric value 0x77 in the original wtstar encoding, and this
// package keeps them as unrelated types so that confusing the two is a
// compile error, not a bug (see the REDESIGN FLAGS / open question on this
// in spec.md).
type SectionTag uint8

const (
	SectionHeader SectionTag = 0x77
	SectionInput  SectionTag = 0x88
	SectionOutput SectionTag = 0x99
	SectionFnMap  SectionTag = 0xaa
	SectionCode   SectionTag = 0xbb
	SectionDebug  SectionTag = 0xcc
)

// MemMode is the concurrent-memory-access discipline recorded in the
// binary header and enforced by the VM for heap and shared-ancestor
// accesses (§5).
type MemMode uint8

const (
	ModeEREW  MemMode = 0x75
	ModeCREW  MemMode = 0x76
	ModeCCRCW MemMode = 0x77
)

// Name returns the human-readable name of m, or "unknown" if m is not one
// of the three defined modes.
func (m MemMode) Name() string {
	switch m {
	case ModeEREW:
		return "EREW"
	case ModeCREW:
		return "CREW"
	case ModeCCRCW:
		return "CCRCW"
	default:
		return "unknown"
	}
}

// HeaderVersion is the only binary format version this package reads or
// writes.
const HeaderVersion uint8 = 1

// Header is the HEADER section: format version, total static (global)
// memory size, and memory access mode.
type Header struct {
	Version    uint8
	GlobalSize uint32
	MemMode    MemMode
}

// Variable describes one input or output variable's storage layout: its
// address in static memory, the number of array dimensions (0 for a
// scalar), and the flattened primitive layout of its base type.
type Variable struct {
	Addr   uint32
	NumDim uint8
	Layout []layout.Tag
}

// FnMapEntry maps one function to its code address and the net effect a
// call to it has on the caller's operand-stack depth
// (sizeof(return) - sum(sizeof(params))).
type FnMapEntry struct {
	CodeAddr    uint32
	StackChange int32
}

// Program is a fully parsed (or about-to-be-emitted) binary container.
type Program struct {
	Header Header
	Input  []Variable
	Output []Variable
	FnMap  []FnMapEntry
	Code   []byte
	Debug  *DebugInfo // nil if the DEBUG section was absent
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) remaining() int { return len(r.data) - r.pos }

func (r *byteReader) u8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("%w: truncated while reading u8 at offset %d", ErrMalformedBinary, r.pos)
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, fmt.Errorf("%w: truncated while reading u32 at offset %d", ErrMalformedBinary, r.pos)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated while reading %d bytes at offset %d", ErrMalformedBinary, n, r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func tagFromByte(b uint8) (layout.Tag, error) {
	switch b {
	case 0:
		return layout.TagInt, nil
	case 1:
		return layout.TagFloat, nil
	case 2:
		return layout.TagChar, nil
	default:
		return 0, fmt.Errorf("%w: invalid type descriptor byte %d", ErrMalformedBinary, b)
	}
}

func tagToByte(t layout.Tag) uint8 {
	switch t {
	case layout.TagFloat:
		return 1
	case layout.TagChar:
		return 2
	default:
		return 0
	}
}

// Parse reads a Program from a section-tagged binary image. Section order
// is not significant, except that the CODE section runs to the end of the
// image, so any section after it is read as code. A missing INPUT, OUTPUT
// or FNMAP section is
// equivalent to zero entries; a missing HEADER or CODE section is a
// malformed-binary error.
func Parse(data []byte) (*Program, error) {
	r := &byteReader{data: data}
	var p Program
	var sawHeader, sawCode bool

	for r.remaining() > 0 {
		tagByte, err := r.u8()
		if err != nil {
			return nil, err
		}
		switch SectionTag(tagByte) {
		case SectionHeader:
			if err := parseHeader(r, &p.Header); err != nil {
				return nil, err
			}
			sawHeader = true
		case SectionInput:
			vars, err := parseVariables(r)
			if err != nil {
				return nil, fmt.Errorf("input section: %w", err)
			}
			p.Input = vars
		case SectionOutput:
			vars, err := parseVariables(r)
			if err != nil {
				return nil, fmt.Errorf("output section: %w", err)
			}
			p.Output = vars
		case SectionFnMap:
			fns, err := parseFnMap(r)
			if err != nil {
				return nil, err
			}
			p.FnMap = fns
		case SectionCode:
			// the code section runs to the end of the binary image.
			p.Code = r.data[r.pos:]
			r.pos = len(r.data)
			sawCode = true
		case SectionDebug:
			dbg, err := parseDebugInfo(r)
			if err != nil {
				return nil, fmt.Errorf("debug section: %w", err)
			}
			p.Debug = dbg
		default:
			return nil, fmt.Errorf("%w: unknown section tag 0x%02x", ErrMalformedBinary, tagByte)
		}
	}

	if !sawHeader {
		return nil, fmt.Errorf("%w: missing HEADER section", ErrMalformedBinary)
	}
	if !sawCode {
		return nil, fmt.Errorf("%w: missing CODE section", ErrMalformedBinary)
	}
	return &p, nil
}

func parseHeader(r *byteReader, h *Header) error {
	version, err := r.u8()
	if err != nil {
		return err
	}
	if version != HeaderVersion {
		return fmt.Errorf("%w: unsupported version byte %d (want %d)", ErrMalformedBinary, version, HeaderVersion)
	}
	globalSize, err := r.u32()
	if err != nil {
		return err
	}
	modeByte, err := r.u8()
	if err != nil {
		return err
	}
	mode := MemMode(modeByte)
	switch mode {
	case ModeEREW, ModeCREW, ModeCCRCW:
	default:
		return fmt.Errorf("%w: invalid memory mode byte 0x%02x", ErrMalformedBinary, modeByte)
	}
	h.Version, h.GlobalSize, h.MemMode = version, globalSize, mode
	return nil
}

func parseVariables(r *byteReader) ([]Variable, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	vars := make([]Variable, n)
	for i := range vars {
		addr, err := r.u32()
		if err != nil {
			return nil, err
		}
		numDim, err := r.u8()
		if err != nil {
			return nil, err
		}
		layoutLen, err := r.u8()
		if err != nil {
			return nil, err
		}
		raw, err := r.bytes(int(layoutLen))
		if err != nil {
			return nil, err
		}
		tags := make([]layout.Tag, layoutLen)
		for j, b := range raw {
			t, err := tagFromByte(b)
			if err != nil {
				return nil, err
			}
			tags[j] = t
		}
		vars[i] = Variable{Addr: addr, NumDim: numDim, Layout: tags}
	}
	return vars, nil
}

func parseFnMap(r *byteReader) ([]FnMapEntry, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	fns := make([]FnMapEntry, n)
	for i := range fns {
		addr, err := r.u32()
		if err != nil {
			return nil, err
		}
		change, err := r.i32()
		if err != nil {
			return nil, err
		}
		fns[i] = FnMapEntry{CodeAddr: addr, StackChange: change}
	}
	return fns, nil
}

type byteWriter struct {
	buf []byte
}

func (w *byteWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *byteWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *byteWriter) i32(v int32)  { w.u32(uint32(v)) }
func (w *byteWriter) bytes(b []byte) { w.buf = append(w.buf, b...) }

// Emit serializes p to a binary container image. Sections are written in a
// fixed, canonical order (HEADER, INPUT, OUTPUT, FNMAP, DEBUG, CODE), which
// makes emitted binaries deterministic. CODE is written last because Parse
// takes it to run to the end of the image.
func (p *Program) Emit() ([]byte, error) {
	var w byteWriter

	w.u8(uint8(SectionHeader))
	w.u8(p.Header.Version)
	w.u32(p.Header.GlobalSize)
	w.u8(uint8(p.Header.MemMode))

	if err := emitVariables(&w, SectionInput, p.Input); err != nil {
		return nil, err
	}
	if err := emitVariables(&w, SectionOutput, p.Output); err != nil {
		return nil, err
	}

	w.u8(uint8(SectionFnMap))
	w.u32(uint32(len(p.FnMap)))
	for _, fn := range p.FnMap {
		w.u32(fn.CodeAddr)
		w.i32(fn.StackChange)
	}

	if p.Debug != nil {
		w.u8(uint8(SectionDebug))
		emitDebugInfo(&w, p.Debug)
	}

	w.u8(uint8(SectionCode))
	w.bytes(p.Code)

	return w.buf, nil
}

func emitVariables(w *byteWriter, tag SectionTag, vars []Variable) error {
	w.u8(uint8(tag))
	w.u32(uint32(len(vars)))
	for _, v := range vars {
		if len(v.Layout) > 255 {
			return fmt.Errorf("variable at addr %d has %d layout elements, max 255", v.Addr, len(v.Layout))
		}
		w.u32(v.Addr)
		w.u8(v.NumDim)
		w.u8(uint8(len(v.Layout)))
		for _, t := range v.Layout {
			w.u8(tagToByte(t))
		}
	}
	return nil
}
