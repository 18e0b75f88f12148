package search

import "time"

// LimitKind names one of the four stop conditions a search can be given.
// Bitmask-combinable, grounded on IlikeChooros-go-mcts's pkg/mcts/limits.go
// design, extended here with QDiff (not present in that design).
type LimitKind uint8

const (
	LimitTime LimitKind = 1 << iota
	LimitNodes
	LimitCycles
	LimitQDiff
)

// Limit configures one search's stop conditions. Zero-valued fields of a
// kind not present in Kinds are ignored.
type Limit struct {
	Kinds LimitKind

	TimeBudget time.Duration
	NodeTarget int
	CycleCount int

	// QDiffThreshold stops the search once the best root child's Q leads
	// the second-best by at least this much.
	QDiffThreshold float32
}

// Has reports whether kind is one of the limits in effect.
func (l Limit) Has(kind LimitKind) bool { return l.Kinds&kind != 0 }
