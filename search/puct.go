package search

import (
	"math/rand"
	"time"

	"github.com/chewxy/math32"
	distrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"
)

// cpuct implements the standard log-growth exploration schedule:
// cpuct = cpuct_base + cpuct_factor * log((N + cpuct_init) / cpuct_init)
func cpuct(cfg Config, parentVisits uint32) float32 {
	n := float32(parentVisits)
	return cfg.CpuctBase + cfg.CpuctFactor*math32.Log((n+cfg.CpuctInit)/cfg.CpuctInit)
}

// fpu computes the First-Play-Urgency value assigned to an unvisited
// child: the parent's own Q, reduced in proportion to the square root of
// the prior mass already explored.
func fpu(parentQ float32, reduction float32, sumVisitedPriors float32) float32 {
	return parentQ - reduction*math32.Sqrt(sumVisitedPriors)
}

// puctChild pairs a child-row slot with the score computed for it.
type puctChild struct {
	slot  int
	child NodeIdx
	score float32
}

// SelectChild runs one PUCT step over the children of parent and returns
// the winning slot index and (if already expanded) its node index. Ties
// break on lower move index, for deterministic replay.
//
// Grounded on mcts/node.go's Select(), generalized from "walk existing
// Node children" to "walk a child row that may contain unexpanded slots",
// and from a lock-guarded Q/N read to NodeRecord.EffectiveQN's atomic
// virtual-loss-aware read.
func SelectChild(store *NodeStore, parent NodeIdx, cfg Config, isRoot bool, noise []float32) (slot int, child NodeIdx) {
	p := store.Node(parent)
	row, numChildren, expanded := p.ChildRowLoc()
	if !expanded || numChildren == 0 {
		return -1, NilIdx
	}

	parentQ, parentEffN := p.EffectiveQN()
	c := cpuct(cfg, p.Visits())
	if isRoot {
		c *= cfg.CpuctAtRootMultiplier
	}
	reduction := cfg.FpuReduction
	if isRoot {
		reduction = cfg.FpuReductionAtRoot
	}

	var sumVisitedPriors float32
	for i := 0; i < numChildren; i++ {
		entry := store.ChildRow(row, i)
		if entry.Child.valid() && store.Node(entry.Child).Visits() > 0 {
			sumVisitedPriors += entry.PriorProb()
		}
	}
	fpuValue := fpu(parentQ, reduction, sumVisitedPriors)

	numerator := math32.Sqrt(float32(parentEffN))
	if numerator == 0 {
		numerator = 1 // first visit to parent: avoid a degenerate all-zero PUCT term
	}

	best := -1
	var bestChild NodeIdx = NilIdx
	bestScore := math32.Inf(-1)
	for i := 0; i < numChildren; i++ {
		entry := store.ChildRow(row, i)
		prior := entry.PriorProb()
		if isRoot && noise != nil && i < len(noise) {
			prior = (1-cfg.DirichletNoiseEpsilon)*prior + cfg.DirichletNoiseEpsilon*noise[i]
		}

		var q, effN float32
		if entry.Child.valid() {
			q, effN = store.Node(entry.Child).EffectiveQN()
			if store.Node(entry.Child).Visits() == 0 {
				q = fpuValue
			} else {
				q = -q // perspectives alternate: Q(child) = -mean_value(child)
			}
		} else {
			q, effN = fpuValue, 0
		}

		puctTerm := c * prior * numerator / (1 + effN)
		score := q + puctTerm

		if best == -1 || score > bestScore ||
			(score == bestScore && int(entry.Move) < int(store.ChildRow(row, best).Move)) {
			bestScore = score
			best = i
			bestChild = entry.Child
		}
	}
	return best, bestChild
}

// DirichletNoise draws a fresh Dirichlet(alpha, ..., alpha) sample of the
// given dimension, used to perturb root priors when noise_epsilon > 0.
// Grounded on mcts/tree.go's dirichletSample construction.
func DirichletNoise(dim int, alpha float32) []float32 {
	if dim <= 0 {
		return nil
	}
	a := make([]float64, dim)
	for i := range a {
		a[i] = float64(alpha)
	}
	dist := distmv.NewDirichlet(a, distrand.NewSource(uint64(time.Now().UnixNano())))
	sample := dist.Rand(nil)
	out := make([]float32, dim)
	for i, v := range sample {
		out[i] = float32(v)
	}
	return out
}

// tieBreakRand is a seeded source that nothing in the package draws from;
// SelectChild breaks score ties on the lower move index instead.
var tieBreakRand = rand.New(rand.NewSource(1))
