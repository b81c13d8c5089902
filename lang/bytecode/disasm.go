package bytecode

import (
	"fmt"
	"strings"
)

// Assemble compiles WT assembly text (the textual form Asm/Dasm read and
// write) into a binary container image. It stands in for the full WT
// front end's compile(source_name, source_text) -> binary_bytes|error_log
// entry point (§6): the error return plays the role of the error log, the
// byte slice the role of binary_bytes.
func Assemble(sourceName string, src []byte) ([]byte, error) {
	p, err := Asm(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sourceName, err)
	}
	return p.Emit()
}

// Disassemble renders p as a human-readable, address-annotated instruction
// listing, for the wtvm dump command. Unlike Dasm, the
// output is not meant to be re-assembled: jump targets are shown as
// absolute addresses rather than synthetic labels.
func Disassemble(p *Program) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; memmode=%s globalsize=%d version=%d\n", p.Header.MemMode.Name(), p.Header.GlobalSize, p.Header.Version)

	var addr uint32
	for addr < uint32(len(p.Code)) {
		op := Opcode(p.Code[addr])
		size := uint32(EncodedSize(op))
		switch ImmediateSize(op) {
		case 0:
			fmt.Fprintf(&b, "%6d: %s\n", addr, op)
		case 1:
			fmt.Fprintf(&b, "%6d: %s %d\n", addr, op, p.Code[addr+1])
		case 4:
			raw := decodeU32(p.Code[addr+1:])
			if op == JMP || op == JOIN_JMP {
				disp := int32(raw)
				fmt.Fprintf(&b, "%6d: %s %d  ; -> %d\n", addr, op, disp, int32(addr+size)+disp)
			} else {
				fmt.Fprintf(&b, "%6d: %s %d\n", addr, op, raw)
			}
		}
		addr += size
	}
	return b.String()
}

// DescribeVariables renders the declared input or output variable layouts
// one per line, for the wtvm run -i equivalent: print_io_vars/
// print_var_layout in the original.
func DescribeVariables(label string, vars []Variable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", label)
	for _, v := range vars {
		names := make([]string, len(v.Layout))
		for i, t := range v.Layout {
			names[i] = tagName(t)
		}
		kind := "scalar"
		if v.NumDim > 0 {
			kind = fmt.Sprintf("array(%d-d)", v.NumDim)
		}
		fmt.Fprintf(&b, "  addr=%-6d %-12s layout=%s\n", v.Addr, kind, strings.Join(names, ","))
	}
	return b.String()
}
