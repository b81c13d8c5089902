package bytecode

import (
	"strings"
	"testing"
)

func TestOpcodeString(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		if opcodeNames[op] == "" {
			t.Errorf("missing string representation of opcode %d", op)
			continue
		}
		if s := op.String(); strings.Contains(s, "illegal") {
			t.Errorf("invalid string representation of opcode %d", op)
		}
		if got, ok := ParseOpcode(op.String()); !ok || got != op {
			t.Errorf("ParseOpcode(%q) = %v, %v, want %v, true", op.String(), got, ok, op)
		}
	}
}

func TestImmediateSize(t *testing.T) {
	cases := map[Opcode]int{
		NOOP:     0,
		PUSHB:    1,
		IDX:      1,
		PUSHC:    4,
		JMP:      4,
		CALL:     4,
		JOIN_JMP: 4,
		BREAK:    4,
		ADD_INT:  0,
	}
	for op, want := range cases {
		if got := ImmediateSize(op); got != want {
			t.Errorf("ImmediateSize(%s) = %d, want %d", op, got, want)
		}
		if got := EncodedSize(op); got != want+1 {
			t.Errorf("EncodedSize(%s) = %d, want %d", op, got, want+1)
		}
	}
}

func TestIsControlFlow(t *testing.T) {
	for _, op := range []Opcode{FORK, SPLIT, JOIN, JMP, CALL, RETURN, JOIN_JMP} {
		if !IsControlFlow(op) {
			t.Errorf("IsControlFlow(%s) = false, want true", op)
		}
	}
	for _, op := range []Opcode{ADD_INT, NOOP, PUSHC, BREAK} {
		if IsControlFlow(op) {
			t.Errorf("IsControlFlow(%s) = true, want false", op)
		}
	}
}
