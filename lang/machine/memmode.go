package machine

import (
	"bytes"
	"fmt"

	"github.com/wtstar/wt/lang/bytecode"
)

// accessDomain distinguishes the two globally-shared byte ranges the
// configured memory mode polices: private memory that happens to belong to
// an ancestor thread, and the heap (always shared).
type accessDomain int

const (
	domainMem accessDomain = iota
	domainHeap
)

// memAccess records one thread's touch of a shared address during a single
// instruction step, so the step can be checked against the configured
// memory mode once every thread in the active group has executed it.
type memAccess struct {
	domain accessDomain
	addr   uint32
	write  bool
	value  []byte // meaningful only when write is true
	thread uint64
}

// checkMemoryMode validates one instruction step's shared-memory accesses
// against mode, per §5: EREW forbids any concurrent read or write of the
// same byte; CREW allows concurrent reads but not concurrent writes; CCRCW
// allows concurrent writes only when every writer stores the same value.
func checkMemoryMode(mode bytecode.MemMode, accesses []memAccess) error {
	if len(accesses) < 2 {
		return nil
	}

	byAddr := map[uint32][]memAccess{}
	for _, a := range accesses {
		key := a.addr
		if a.domain == domainHeap {
			// heap and private-memory addresses share a numeric space only
			// coincidentally; keep them in distinct buckets.
			key |= 1 << 31
		}
		byAddr[key] = append(byAddr[key], a)
	}

	for _, group := range byAddr {
		if len(group) < 2 {
			continue
		}
		var reads, writes int
		for _, a := range group {
			if a.write {
				writes++
			} else {
				reads++
			}
		}

		switch mode {
		case bytecode.ModeEREW:
			if reads+writes > 1 {
				return fmt.Errorf("%w: EREW violated at address %d by %d threads", ErrConcurrencyViolation, group[0].addr, len(group))
			}
		case bytecode.ModeCREW:
			if writes > 1 || (writes == 1 && reads > 0) {
				return fmt.Errorf("%w: CREW violated at address %d (%d reads, %d writes)", ErrConcurrencyViolation, group[0].addr, reads, writes)
			}
		case bytecode.ModeCCRCW:
			if writes > 1 {
				first := valueOf(group, true)
				for _, a := range group {
					if a.write && !bytes.Equal(a.value, first) {
						return fmt.Errorf("%w: CCRCW violated at address %d: writers disagree on value", ErrConcurrencyViolation, group[0].addr)
					}
				}
			}
		}
	}
	return nil
}

func valueOf(accesses []memAccess, write bool) []byte {
	for _, a := range accesses {
		if a.write == write {
			return a.value
		}
	}
	return nil
}
