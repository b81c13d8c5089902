package machine

import (
	"encoding/binary"
	"math"

	"github.com/wtstar/wt/internal/bytestack"
)

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func decodeU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func decodeI32(b []byte) int32  { return int32(decodeU32(b)) }

func readU32(code []byte, pos uint32) uint32 { return binary.LittleEndian.Uint32(code[pos:]) }
func readI32(code []byte, pos uint32) int32  { return int32(readU32(code, pos)) }

func popI32(s *bytestack.Stack) int32      { return int32(popU32(s)) }
func pushI32(s *bytestack.Stack, v int32)  { pushU32(s, uint32(v)) }
func popF32(s *bytestack.Stack) float32    { return math.Float32frombits(popU32(s)) }
func pushF32(s *bytestack.Stack, v float32) { pushU32(s, math.Float32bits(v)) }

func pushBool(s *bytestack.Stack, cond bool) {
	if cond {
		pushI32(s, 1)
	} else {
		pushI32(s, 0)
	}
}

// peekU32 reads the top 4 bytes of s without popping them (A2S/S2A copy
// rather than move).
func peekU32(s *bytestack.Stack) uint32 {
	b := s.Bytes()
	return decodeU32(b[len(b)-4:])
}

// reverseAcc reverses the entire accumulator stack in place, word by word.
func reverseAcc(s *bytestack.Stack) {
	b := s.Bytes()
	n := len(b) / 4
	for i := 0; i < n/2; i++ {
		j := n - i - 1
		for k := 0; k < 4; k++ {
			b[4*i+k], b[4*j+k] = b[4*j+k], b[4*i+k]
		}
	}
}

// swapTop2 swaps the top two words of s.
func swapTop2(s *bytestack.Stack) {
	b := s.Bytes()
	n := len(b)
	for k := 0; k < 4; k++ {
		b[n-8+k], b[n-4+k] = b[n-4+k], b[n-8+k]
	}
}

func ipow(base, exp int32) int32 {
	result := int32(1)
	for exp != 0 {
		if exp&1 != 0 {
			result *= base
		}
		exp /= 2
		base *= base
	}
	return result
}
