// Package bytecode implements the WT instruction set, the section-tagged
// binary container that carries a compiled program, and a textual
// assembler/disassembler used to build or inspect that container without a
// full WT source front end.
package bytecode

import "fmt"

// Opcode identifies one VM instruction. The numeric values and ordering
// follow the original wtstar instruction_t enum (src/code.h) so that
// disassembly and any existing tooling built against that numbering lines
// up directly.
type Opcode uint8

const (
	NOOP Opcode = iota

	PUSHC // imm32: push c
	PUSHB // imm8: push zero-extended b
	FBASE // push current frame base

	SIZE // a,d -> s

	LDC // a -> val(a)   (private memory, 4B)
	LDB // a -> val(a)   (private memory, 1B->4B)
	STC // a,val -> -    (private memory, 4B)
	STB // a,val -> -    (private memory, 1B)

	LDCH // as LDC, heap-relative
	LDBH // as LDB, heap-relative
	STCH // as STC, heap-relative
	STBH // as STB, heap-relative

	IDX // imm8 n: addr,i(n-1)..i0 -> hoffs

	SWS  // a,b -> b,a
	POP  // a -> -
	A2S  // copy top acc to top stack
	POPA // discard top acc
	S2A  // copy top stack to top acc
	RVA  // reverse acc stack
	SWA  // swap top two acc elements

	ADD_INT
	SUB_INT
	MULT_INT
	DIV_INT
	MOD_INT
	ADD_FLOAT
	SUB_FLOAT
	MULT_FLOAT
	DIV_FLOAT
	POW_INT
	POW_FLOAT

	NOT
	OR
	AND

	BIT_OR
	BIT_AND
	BIT_XOR

	EQ_INT
	EQ_FLOAT
	GT_INT
	GT_FLOAT
	GEQ_INT
	GEQ_FLOAT
	LT_INT
	LT_FLOAT
	LEQ_INT
	LEQ_FLOAT

	JMP // imm32 (i32) relative displacement

	CALL   // imm32: fnmap index
	RETURN // -

	FLOAT2INT
	INT2FLOAT

	FORK  // a,n -> -
	SPLIT // c -> -
	JOIN  // -
	JOIN_JMP // imm32 (i32): join then pc += d
	SETR     // set returned flag on active group

	MEM_MARK
	MEM_FREE

	ALLOC // c -> addr

	ENDVM

	LAST_BIT

	SORT // addr,size,offs,type -> -

	LOGF
	LOG
	SQRT
	SQRTF

	BREAK // imm32: breakpoint id
	BREAKOUT
	BREAKSLOT

	opcodeCount
)

var opcodeNames = [...]string{
	NOOP:      "NOOP",
	PUSHC:     "PUSHC",
	PUSHB:     "PUSHB",
	FBASE:     "FBASE",
	SIZE:      "SIZE",
	LDC:       "LDC",
	LDB:       "LDB",
	STC:       "STC",
	STB:       "STB",
	LDCH:      "LDCH",
	LDBH:      "LDBH",
	STCH:      "STCH",
	STBH:      "STBH",
	IDX:       "IDX",
	SWS:       "SWS",
	POP:       "POP",
	A2S:       "A2S",
	POPA:      "POPA",
	S2A:       "S2A",
	RVA:       "RVA",
	SWA:       "SWA",
	ADD_INT:   "ADD_INT",
	SUB_INT:   "SUB_INT",
	MULT_INT:  "MULT_INT",
	DIV_INT:   "DIV_INT",
	MOD_INT:   "MOD_INT",
	ADD_FLOAT: "ADD_FLOAT",
	SUB_FLOAT: "SUB_FLOAT",
	MULT_FLOAT: "MULT_FLOAT",
	DIV_FLOAT: "DIV_FLOAT",
	POW_INT:   "POW_INT",
	POW_FLOAT: "POW_FLOAT",
	NOT:       "NOT",
	OR:        "OR",
	AND:       "AND",
	BIT_OR:    "BIT_OR",
	BIT_AND:   "BIT_AND",
	BIT_XOR:   "BIT_XOR",
	EQ_INT:    "EQ_INT",
	EQ_FLOAT:  "EQ_FLOAT",
	GT_INT:    "GT_INT",
	GT_FLOAT:  "GT_FLOAT",
	GEQ_INT:   "GEQ_INT",
	GEQ_FLOAT: "GEQ_FLOAT",
	LT_INT:    "LT_INT",
	LT_FLOAT:  "LT_FLOAT",
	LEQ_INT:   "LEQ_INT",
	LEQ_FLOAT: "LEQ_FLOAT",
	JMP:       "JMP",
	CALL:      "CALL",
	RETURN:    "RETURN",
	FLOAT2INT: "FLOAT2INT",
	INT2FLOAT: "INT2FLOAT",
	FORK:      "FORK",
	SPLIT:     "SPLIT",
	JOIN:      "JOIN",
	JOIN_JMP:  "JOIN_JMP",
	SETR:      "SETR",
	MEM_MARK:  "MEM_MARK",
	MEM_FREE:  "MEM_FREE",
	ALLOC:     "ALLOC",
	ENDVM:     "ENDVM",
	LAST_BIT:  "LAST_BIT",
	SORT:      "SORT",
	LOGF:      "LOGF",
	LOG:       "LOG",
	SQRT:      "SQRT",
	SQRTF:     "SQRTF",
	BREAK:     "BREAK",
	BREAKOUT:  "BREAKOUT",
	BREAKSLOT: "BREAKSLOT",
}

var reverseOpcodeNames = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		if name != "" {
			m[name] = Opcode(op)
		}
	}
	return m
}()

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("illegal op (%d)", uint8(op))
}

// ParseOpcode looks an opcode up by its assembly mnemonic.
func ParseOpcode(name string) (Opcode, bool) {
	op, ok := reverseOpcodeNames[name]
	return op, ok
}

// ImmediateSize returns the number of bytes of immediate operand that
// follow op in the instruction stream: 0, 1 (PUSHB, IDX) or 4 (PUSHC, JMP,
// CALL, JOIN_JMP, BREAK).
func ImmediateSize(op Opcode) int {
	switch op {
	case PUSHB, IDX:
		return 1
	case PUSHC, JMP, CALL, JOIN_JMP, BREAK:
		return 4
	default:
		return 0
	}
}

// EncodedSize returns the total number of bytes (opcode byte plus any
// immediate) that op occupies in the instruction stream.
func EncodedSize(op Opcode) int {
	return 1 + ImmediateSize(op)
}

// IsControlFlow reports whether op is one of the instructions that charge
// Work/Time once per group rather than once per thread (§4.4): FORK, SPLIT,
// JOIN, JMP, CALL, RETURN, JOIN_JMP.
func IsControlFlow(op Opcode) bool {
	switch op {
	case FORK, SPLIT, JOIN, JMP, CALL, RETURN, JOIN_JMP:
		return true
	default:
		return false
	}
}
