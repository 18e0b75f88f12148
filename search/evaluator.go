package search

import (
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InputDtype names the numeric format a BatchedEvaluator expects its input
// planes in. Declaring it explicitly on the interface avoids needing any
// filename-suffix sniffing.
type InputDtype int

const (
	DtypeFloat32 InputDtype = iota
	DtypeByte
)

// EvalResult carries one position's evaluation: a win/loss probability
// pair, a policy over the encoded move space, a moves-left estimate, and
// uncertainty of both value and policy. Extra value heads are optional.
type EvalResult struct {
	WinProb, LossProb float32
	Policy            []float32 // indexed by EncodedMove
	MovesLeft         float32
	ValueUncertainty  float32
	PolicyUncertainty float32
	SecondaryValue    float32
	HasSecondary      bool
}

// Q returns the scalar value Q = P(win) - P(loss), the win/draw/loss
// value reduced to a single scalar.
func (r EvalResult) Q() float32 { return r.WinProb - r.LossProb }

// BatchedEvaluator is the opaque neural-network capability the search core
// consumes. Implementations are typically not safe for concurrent Evaluate
// calls; Gateway below serialises access per instance and routes across
// instances when more than one is registered.
type BatchedEvaluator interface {
	// Evaluate scores a batch of encoded positions, already padded by the
	// Gateway to MinBatchSize() if needed.
	Evaluate(planes [][]float32) ([]EvalResult, error)

	// InputLayout reports the expected numeric format of input planes.
	InputLayout() InputDtype

	// MaxBatchSize is the largest batch this evaluator accepts.
	MaxBatchSize() int

	// MinBatchSize is the smallest batch this evaluator behaves correctly
	// with; the Gateway pads shorter batches up to this size and discards
	// the padding positions' results.
	MinBatchSize() int
}

// routeStats tracks one evaluator instance's recent load, used to pick the
// least-loaded instance when several are registered: multiple evaluator
// instances are addressed by routing leaves to the least-loaded one.
type routeStats struct {
	mu         sync.Mutex
	evalMu     sync.Mutex // serialises Evaluate calls on this instance
	evaluator  BatchedEvaluator
	inFlight   int
	lastBatch  time.Duration
	totalCalls int64
	unhealthy  bool // sticky until a call on this route succeeds again
}

func (r *routeStats) markUnhealthy() {
	r.mu.Lock()
	r.unhealthy = true
	r.mu.Unlock()
}

func (r *routeStats) markHealthy() {
	r.mu.Lock()
	r.unhealthy = false
	r.mu.Unlock()
}

func (r *routeStats) isUnhealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unhealthy
}

// Gateway takes the collector's already-encoded input planes, pads/slices
// around minimum batch size, serialises access to each evaluator instance,
// routes across instances, and exposes per-batch timing. It does not
// convert planes to an evaluator's InputLayout: every evaluator receives
// the float32 values PositionOps.EncodePlanes produced. Grounded on
// datatypes.go's Inferer interface and agent.go's inferer-pool routing /
// multierror-aggregated Close().
type Gateway struct {
	routes []*routeStats
	rrNext int
	mu     sync.Mutex
}

// NewGateway wraps one or more evaluator instances behind a single
// evaluate entry point.
func NewGateway(evaluators ...BatchedEvaluator) *Gateway {
	g := &Gateway{routes: make([]*routeStats, len(evaluators))}
	for i, e := range evaluators {
		g.routes[i] = &routeStats{evaluator: e}
	}
	return g
}

// pickRoute returns the least-loaded healthy route, falling back to
// round-robin when load is tied. If every route is currently unhealthy
// (a prior call failed on each), it falls back to least-loaded regardless
// of health, since refusing to route anywhere would stall the search.
func (g *Gateway) pickRoute() *routeStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	best, bestIdx, found := g.leastLoaded(true)
	if !found {
		best, bestIdx, _ = g.leastLoaded(false)
	}
	g.rrNext = (bestIdx + 1) % len(g.routes)
	return best
}

// leastLoaded scans routes for the least-loaded one, restricting to
// healthy routes when healthyOnly is set. The scan starts at rrNext, so a
// tie goes to the first tied route at or after it. found is false if no
// route qualified.
func (g *Gateway) leastLoaded(healthyOnly bool) (best *routeStats, bestIdx int, found bool) {
	bestLoad := 0
	for k := range g.routes {
		i := (g.rrNext + k) % len(g.routes)
		r := g.routes[i]
		if healthyOnly && r.isUnhealthy() {
			continue
		}
		load := r.loadSnapshot()
		if !found || load < bestLoad {
			best, bestLoad, bestIdx, found = r, load, i, true
		}
	}
	return best, bestIdx, found
}

func (r *routeStats) loadSnapshot() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// Evaluate scores batch, padding up to the chosen route's minimum batch
// size with repeats of the last real position (discarded on return) and
// never exceeding its maximum. On failure (evaluator error or NaN output)
// the route is marked unhealthy and the batch is retried once, split into
// two smaller halves run against the same route; a second failure on
// either half aborts the whole batch and stops the search. A batch no
// larger than the route's minimum batch size is not split or retried; its
// failure is returned at once. No partial results are ever returned from a
// batch that ultimately fails.
func (g *Gateway) Evaluate(batch Batch) ([]EvalResult, error) {
	if len(batch.InputPlanes) == 0 {
		return nil, nil
	}
	route := g.pickRoute()
	if len(batch.InputPlanes) > route.evaluator.MaxBatchSize() {
		return nil, errors.Errorf("search: batch of %d exceeds evaluator max batch size %d",
			len(batch.InputPlanes), route.evaluator.MaxBatchSize())
	}

	results, err := g.runBatch(route, batch.InputPlanes)
	if err == nil {
		route.markHealthy()
		return results, nil
	}

	route.markUnhealthy()
	if len(batch.InputPlanes) <= route.evaluator.MinBatchSize() {
		return nil, err
	}
	klog.Warningf("search: evaluator failure on batch of %d, retrying once with smaller batches: %v",
		len(batch.InputPlanes), err)
	return g.retrySplit(route, batch.InputPlanes)
}

// retrySplit runs planes against route as two halves, each exactly once —
// the single retry the failure policy allows before giving up. A failure
// on either half is returned as-is, stopping the search.
func (g *Gateway) retrySplit(route *routeStats, planes [][]float32) ([]EvalResult, error) {
	mid := len(planes) / 2
	first, err := g.runBatch(route, planes[:mid])
	if err != nil {
		return nil, err
	}
	second, err := g.runBatch(route, planes[mid:])
	if err != nil {
		return nil, err
	}
	route.markHealthy()
	return append(first, second...), nil
}

// runBatch pads planes up to route's minimum batch size, calls its
// evaluator once, and checks for NaN output. It does not retry or mark
// health; callers decide that policy.
func (g *Gateway) runBatch(route *routeStats, planes [][]float32) ([]EvalResult, error) {
	realCount := len(planes)
	if min := route.evaluator.MinBatchSize(); realCount < min {
		padded := make([][]float32, min)
		copy(padded, planes)
		for i := realCount; i < min; i++ {
			padded[i] = planes[realCount-1]
		}
		planes = padded
	}

	route.mu.Lock()
	route.inFlight++
	route.mu.Unlock()

	route.evalMu.Lock()
	start := time.Now()
	results, err := route.evaluator.Evaluate(planes)
	elapsed := time.Since(start)
	route.evalMu.Unlock()

	route.mu.Lock()
	route.inFlight--
	route.lastBatch = elapsed
	route.totalCalls++
	route.mu.Unlock()

	if err != nil {
		return nil, errors.Wrap(ErrEvaluatorFailure, err.Error())
	}
	for i := range results[:realCount] {
		if isNaNResult(results[i]) {
			return nil, errors.WithStack(ErrEvaluatorFailure)
		}
	}
	return results[:realCount], nil
}

func isNaNResult(r EvalResult) bool {
	return r.WinProb != r.WinProb || r.LossProb != r.LossProb
}

// BatchStats summarizes recent per-route timing. The driver copies it into
// SearchResult.BatchStats; it does not use it to adjust the target batch
// size, which stays at Config.TargetBatchSize.
type BatchStats struct {
	Route     int
	LastBatch time.Duration
	Calls     int64
	Unhealthy bool
}

// Stats returns a snapshot of every route's timing statistics.
func (g *Gateway) Stats() []BatchStats {
	out := make([]BatchStats, len(g.routes))
	for i, r := range g.routes {
		r.mu.Lock()
		out[i] = BatchStats{Route: i, LastBatch: r.lastBatch, Calls: r.totalCalls, Unhealthy: r.unhealthy}
		r.mu.Unlock()
	}
	return out
}

// Close releases every underlying evaluator that implements io.Closer,
// aggregating failures with go-multierror exactly as agent.go's Close()
// does for its inferer pool.
func (g *Gateway) Close() error {
	type closer interface{ Close() error }
	var result *multierror.Error
	for _, r := range g.routes {
		if c, ok := r.evaluator.(closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}
