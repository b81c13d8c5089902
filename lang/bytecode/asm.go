package bytecode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wtstar/wt/lang/layout"
)

// This file implements a human-readable/writable textual form of a Program.
// It exists so that the container and machine packages can be exercised
// without a full WT source front end. The format looks like this
// (indentation is arbitrary, but section order is fixed):
//
//	program:
//		header:
//			memmode EREW
//			globalsize 64
//		input:
//			addr 0   numdim 0   layout int
//		output:
//			addr 64  numdim 0   layout int
//		fnmap:
//			addr 0   stackchange 0
//		code:
//			main:
//				pushc 1
//				jmp   @main
//				endvm

var sections = map[string]bool{
	"program:": true,
	"header:":  true,
	"input:":   true,
	"output:":  true,
	"fnmap:":   true,
	"code:":    true,
}

// Asm assembles a Program from its textual form.
func Asm(b []byte) (*Program, error) {
	a := &asm{s: bufio.NewScanner(bytes.NewReader(b))}

	fields := a.next()
	a.program(fields)

	fields = a.next()
	fields = a.header(fields)
	fields = a.variables(fields, "input:", &a.p.Input)
	fields = a.variables(fields, "output:", &a.p.Output)
	fields = a.fnmap(fields)
	fields = a.code(fields)

	if a.err == nil && len(fields) > 0 {
		a.err = fmt.Errorf("unexpected section: %s", fields[0])
	}
	return a.p, a.err
}

type asm struct {
	s       *bufio.Scanner
	rawLine string
	p       *Program
	err     error
}

func (a *asm) program(fields []string) {
	if a.err != nil {
		return
	}
	if len(fields) == 0 || !strings.EqualFold(fields[0], "program:") {
		msg := "expected program section"
		if len(fields) > 0 {
			msg += ", found " + fields[0]
		}
		a.err = errors.New(msg)
		return
	}
	a.p = &Program{Header: Header{Version: HeaderVersion}}
}

func (a *asm) header(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "header:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		if len(fields) != 2 {
			a.err = fmt.Errorf("invalid header line: want 2 fields, got %d", len(fields))
			return fields
		}
		switch strings.ToLower(fields[0]) {
		case "memmode":
			switch strings.ToUpper(fields[1]) {
			case "EREW":
				a.p.Header.MemMode = ModeEREW
			case "CREW":
				a.p.Header.MemMode = ModeCREW
			case "CCRCW":
				a.p.Header.MemMode = ModeCCRCW
			default:
				a.err = fmt.Errorf("invalid memory mode: %s", fields[1])
				return fields
			}
		case "globalsize":
			a.p.Header.GlobalSize = uint32(a.uint(fields[1]))
		default:
			a.err = fmt.Errorf("invalid header field: %s", fields[0])
			return fields
		}
	}
	return fields
}

func (a *asm) variables(fields []string, section string, dst *[]Variable) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], section) {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		v, err := a.variable(fields)
		if err != nil {
			a.err = err
			return fields
		}
		*dst = append(*dst, v)
	}
	return fields
}

func (a *asm) variable(fields []string) (Variable, error) {
	if len(fields) < 6 || fields[0] != "addr" || fields[2] != "numdim" || fields[4] != "layout" {
		return Variable{}, fmt.Errorf("invalid variable: want 'addr N numdim N layout tag...', got %s", strings.Join(fields, " "))
	}
	addr := uint32(a.uint(fields[1]))
	numDim := uint8(a.uint(fields[3]))
	tags := make([]layout.Tag, 0, len(fields)-5)
	for _, name := range fields[5:] {
		t, ok := parseTagName(name)
		if !ok {
			return Variable{}, fmt.Errorf("invalid layout tag: %s", name)
		}
		tags = append(tags, t)
	}
	return Variable{Addr: addr, NumDim: numDim, Layout: tags}, nil
}

func parseTagName(s string) (layout.Tag, bool) {
	switch strings.ToLower(s) {
	case "int":
		return layout.TagInt, true
	case "float":
		return layout.TagFloat, true
	case "char":
		return layout.TagChar, true
	default:
		return 0, false
	}
}

func tagName(t layout.Tag) string {
	switch t {
	case layout.TagFloat:
		return "float"
	case layout.TagChar:
		return "char"
	default:
		return "int"
	}
}

func (a *asm) fnmap(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "fnmap:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		if len(fields) != 4 || fields[0] != "addr" || fields[2] != "stackchange" {
			a.err = fmt.Errorf("invalid fnmap entry: want 'addr N stackchange N', got %s", strings.Join(fields, " "))
			return fields
		}
		a.p.FnMap = append(a.p.FnMap, FnMapEntry{
			CodeAddr:    uint32(a.uint(fields[1])),
			StackChange: int32(a.int(fields[3])),
		})
	}
	return fields
}

type insn struct {
	op  Opcode
	arg uint32
}

// code parses the code: section. Lines ending in ':' (and containing no
// other token) introduce a label that the assembler resolves for JMP,
// CALL and JOIN_JMP operands written as "@label" (a relative displacement
// for JMP and JOIN_JMP; for CALL, the index of the fnmap entry whose addr
// is the label's code address); a bare decimal operand
// is taken as a literal immediate (used for BREAK ids and forward-declared
// fnmap indices).
func (a *asm) code(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "code:") {
		return fields
	}

	labels := map[string]int{}
	var insns []insn
	var pending []string // operand text per insn, "" if none

	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		if len(fields) == 1 && strings.HasSuffix(fields[0], ":") {
			name := strings.TrimSuffix(fields[0], ":")
			if _, ok := labels[name]; ok {
				a.err = fmt.Errorf("duplicate label: %s", name)
				return fields
			}
			labels[name] = len(insns)
			continue
		}

		op, ok := ParseOpcode(strings.ToUpper(fields[0]))
		if !ok {
			a.err = fmt.Errorf("invalid opcode: %s", fields[0])
			return fields
		}
		want := 0
		if ImmediateSize(op) > 0 {
			want = 1
		}
		if len(fields)-1 != want {
			a.err = fmt.Errorf("opcode %s wants %d operand(s), got %d", op, want, len(fields)-1)
			return fields
		}
		operand := ""
		if want == 1 {
			operand = fields[1]
		}
		insns = append(insns, insn{op: op})
		pending = append(pending, operand)
	}

	addrs := make([]uint32, len(insns)+1)
	for i, in := range insns {
		addrs[i+1] = addrs[i] + uint32(EncodedSize(in.op))
	}

	var code []byte
	for i, in := range insns {
		op := in.op
		var arg uint32
		if operand := pending[i]; operand != "" {
			if strings.HasPrefix(operand, "@") {
				name := operand[1:]
				target, ok := labels[name]
				if !ok {
					a.err = fmt.Errorf("undefined label: %s", name)
					return nil
				}
				switch op {
				case JMP, JOIN_JMP:
					arg = uint32(int32(addrs[target]) - int32(addrs[i+1]))
				case CALL:
					idx := -1
					for j, fn := range a.p.FnMap {
						if fn.CodeAddr == addrs[target] {
							idx = j
							break
						}
					}
					if idx < 0 {
						a.err = fmt.Errorf("label %s is not the address of any fnmap entry", name)
						return nil
					}
					arg = uint32(idx)
				default:
					arg = addrs[target]
				}
			} else {
				arg = uint32(a.int(operand))
			}
		}
		code = append(code, byte(op))
		switch ImmediateSize(op) {
		case 1:
			code = append(code, byte(arg))
		case 4:
			code = appendU32(code, arg)
		}
	}
	if a.err != nil {
		return nil
	}
	a.p.Code = code
	return fields
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (a *asm) int(s string) int64 {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		a.err = fmt.Errorf("invalid integer: %s: %w", s, err)
	}
	return i
}

func (a *asm) uint(s string) uint64 {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		a.err = fmt.Errorf("invalid unsigned integer: %s: %w", s, err)
	}
	return u
}

func (a *asm) next() []string {
	a.rawLine = ""
	if a.err != nil {
		return nil
	}
	for a.s.Scan() {
		line := a.s.Text()
		fields := strings.Fields(line)
		if len(fields) != 0 && !strings.HasPrefix(fields[0], "#") {
			for i, fld := range fields {
				if strings.HasPrefix(fld, "#") {
					fields = fields[:i]
					break
				}
			}
			a.rawLine = line
			return fields
		}
	}
	a.err = a.s.Err()
	return nil
}

// Dasm writes a Program to its textual assembler form. Jump displacements
// in JMP and JOIN_JMP are rendered as synthetic labels (L0, L1, ...) rather
// than raw byte offsets, to keep the output reviewable.
func Dasm(p *Program) ([]byte, error) {
	d := &dasm{p: p, buf: new(bytes.Buffer)}
	d.header()
	d.variables("input:", p.Input)
	d.variables("output:", p.Output)
	d.fnmap()
	d.code()
	return d.buf.Bytes(), d.err
}

type dasm struct {
	p   *Program
	buf *bytes.Buffer
	err error
}

func (d *dasm) header() {
	d.write("program:\n\theader:\n")
	d.writef("\t\tmemmode %s\n", d.p.Header.MemMode.Name())
	d.writef("\t\tglobalsize %d\n", d.p.Header.GlobalSize)
}

func (d *dasm) variables(section string, vars []Variable) {
	if d.err != nil || len(vars) == 0 {
		return
	}
	d.writef("\t%s\n", section)
	for _, v := range vars {
		names := make([]string, len(v.Layout))
		for i, t := range v.Layout {
			names[i] = tagName(t)
		}
		d.writef("\t\taddr %d numdim %d layout %s\n", v.Addr, v.NumDim, strings.Join(names, " "))
	}
}

func (d *dasm) fnmap() {
	if d.err != nil || len(d.p.FnMap) == 0 {
		return
	}
	d.write("\tfnmap:\n")
	for _, fn := range d.p.FnMap {
		d.writef("\t\taddr %d stackchange %d\n", fn.CodeAddr, fn.StackChange)
	}
}

func (d *dasm) code() {
	if d.err != nil || len(d.p.Code) == 0 {
		return
	}

	labelAt := map[uint32]string{}
	var addr uint32
	n := 0
	for addr < uint32(len(d.p.Code)) {
		op := Opcode(d.p.Code[addr])
		size := uint32(EncodedSize(op))
		if op == JMP || op == JOIN_JMP {
			disp := int32(decodeU32(d.p.Code[addr+1:]))
			target := uint32(int32(addr+size) + disp)
			if _, ok := labelAt[target]; !ok {
				labelAt[target] = fmt.Sprintf("L%d", n)
				n++
			}
		}
		addr += size
	}

	d.write("\tcode:\n")
	addr = 0
	for addr < uint32(len(d.p.Code)) {
		if name, ok := labelAt[addr]; ok {
			d.writef("\t\t%s:\n", name)
		}
		op := Opcode(d.p.Code[addr])
		size := uint32(EncodedSize(op))
		switch ImmediateSize(op) {
		case 0:
			d.writef("\t\t\t%s\n", op)
		case 1:
			d.writef("\t\t\t%s %d\n", op, d.p.Code[addr+1])
		case 4:
			raw := decodeU32(d.p.Code[addr+1:])
			if op == JMP || op == JOIN_JMP {
				disp := int32(raw)
				target := uint32(int32(addr+size) + disp)
				d.writef("\t\t\t%s @%s\n", op, labelAt[target])
			} else {
				d.writef("\t\t\t%s %d\n", op, raw)
			}
		}
		addr += size
	}
}

func decodeU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (d *dasm) writef(s string, args ...any) {
	d.write(fmt.Sprintf(s, args...))
}

func (d *dasm) write(s string) {
	if d.err != nil {
		return
	}
	_, d.err = d.buf.WriteString(s)
}
