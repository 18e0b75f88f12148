package search

import "github.com/pkg/errors"

// Status describes how a search terminated. Limit reached is not an error,
// the others are.
type Status int

const (
	StatusOK Status = iota
	StatusTimeLimit
	StatusNodeLimit
	StatusCycleLimit
	StatusQDiffLimit
	StatusCapacityExhausted
	StatusEvaluatorFailure
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTimeLimit:
		return "TimeLimit"
	case StatusNodeLimit:
		return "NodeLimit"
	case StatusCycleLimit:
		return "CycleLimit"
	case StatusQDiffLimit:
		return "QDiffLimit"
	case StatusCapacityExhausted:
		return "CapacityExhausted"
	case StatusEvaluatorFailure:
		return "EvaluatorFailure"
	case StatusCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// Sentinel errors for the recoverable/abstract error kinds a search can
// surface. Wrapped with github.com/pkg/errors at the point of return so
// callers retain a stack trace, matching the original agent.go/agogo.go
// error style.
var (
	// ErrCapacityExhausted: arena or child-row allocator full.
	ErrCapacityExhausted = errors.New("search: node store capacity exhausted")

	// ErrEvaluatorFailure: batch evaluation returned an error or NaN output.
	ErrEvaluatorFailure = errors.New("search: evaluator failure")

	// ErrCorruptInvariant: a debug-only assertion caught a broken invariant
	// (N mismatch, virtual-loss underflow, hash collision on expansion).
	// Treated as a programmer error: callers should not attempt recovery.
	ErrCorruptInvariant = errors.New("search: corrupt invariant")

	// ErrTerminalMisclassification: PositionOps reported a position as
	// terminal while it has legal moves, or vice versa.
	ErrTerminalMisclassification = errors.New("search: terminal misclassification")
)
