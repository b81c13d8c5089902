package machine

import "errors"

// These sentinels name the runtime error taxa the VM must be able to
// surface. Each is wrapped with %w and extra context at the call site;
// callers distinguish kinds with errors.Is.
var (
	ErrRangeCheck          = errors.New("range check error")
	ErrConcurrencyViolation = errors.New("concurrency violation")
	ErrArithmetic          = errors.New("arithmetic error")
	ErrUnknownOpcode       = errors.New("unknown instruction")
	ErrNoSuchBreakpoint    = errors.New("no such breakpoint")
)
