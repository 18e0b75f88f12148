package search

import (
	"time"
)

// Limiter evaluates a Limit against a running search's progress and
// reports whether, and why, it should stop. Grounded on
// IlikeChooros-go-mcts's pkg/mcts/limiter.go, which polls the same kind of
// bitmask-selected stop conditions; generalized to add the QDiff condition,
// which a plain UCB1 engine has no concept of.
type Limiter struct {
	limit     Limit
	deadline  time.Time
	startTime time.Time
}

// NewLimiter starts the clock for limit.
func NewLimiter(limit Limit) *Limiter {
	now := time.Now()
	l := &Limiter{limit: limit, startTime: now}
	if limit.Has(LimitTime) {
		l.deadline = now.Add(limit.TimeBudget)
	}
	return l
}

// ShouldStop inspects current progress and returns (true, status) if any
// configured limit has been reached. nodesSearched is the node store's
// current Len(); cyclesRun is the number of driver cycles completed;
// qDiff is the current best-minus-second-best root Q gap (0 when the root
// has fewer than two child-row entries; an unvisited child counts as Q 0).
func (l *Limiter) ShouldStop(nodesSearched int, cyclesRun int, qDiff float32) (bool, Status) {
	if l.limit.Has(LimitTime) && !l.deadline.IsZero() && time.Now().After(l.deadline) {
		return true, StatusTimeLimit
	}
	if l.limit.Has(LimitNodes) && nodesSearched >= l.limit.NodeTarget {
		return true, StatusNodeLimit
	}
	if l.limit.Has(LimitCycles) && cyclesRun >= l.limit.CycleCount {
		return true, StatusCycleLimit
	}
	if l.limit.Has(LimitQDiff) && qDiff >= l.limit.QDiffThreshold {
		return true, StatusQDiffLimit
	}
	return false, StatusOK
}

// DeadlinePassed reports whether the wall-clock deadline (if any) has
// already passed; the Driver uses this to reject starting a new cycle
// once a hard deadline is behind it, while letting in-flight cycles finish.
func (l *Limiter) DeadlinePassed() bool {
	return l.limit.Has(LimitTime) && !l.deadline.IsZero() && time.Now().After(l.deadline)
}

// Elapsed returns the wall-clock time since the limiter started.
func (l *Limiter) Elapsed() time.Duration { return time.Since(l.startTime) }
