package search

// LeafKind tags how a leaf was classified by the collector.
type LeafKind int

const (
	LeafTerminal LeafKind = iota
	LeafTransposition
	LeafDedup
	LeafNN
)

// LeafEval is the tagged-variant carrier that transports a leaf from
// classification through evaluation to backup, with an explicit "policy
// released" step once a policy has been copied into a child row.
type LeafEval struct {
	Path LeafKindPath

	Kind           LeafKind
	TerminalStatus TerminalStatus // valid when Kind == LeafTerminal
	SourceIdx      NodeIdx        // valid when Kind == LeafTransposition
	BatchIndex     int            // valid when Kind == LeafNN; index into Batch

	result         EvalResult
	hasResult      bool
	policyReleased bool
}

// LeafKindPath is an alias kept distinct from LeafPath only for doc
// clarity at the collector boundary; it is the same type.
type LeafKindPath = LeafPath

// SetResult records the evaluator's output for this leaf (or the copied
// result for a transposition/dedup leaf).
func (e *LeafEval) SetResult(r EvalResult) {
	e.result = r
	e.hasResult = true
}

// Result returns the leaf's evaluation result, if any.
func (e *LeafEval) Result() (EvalResult, bool) { return e.result, e.hasResult }

// ReleasePolicy marks the policy vector as consumed (copied into child
// rows); safe to call multiple times.
func (e *LeafEval) ReleasePolicy() { e.policyReleased = true }

// PolicyReleased reports whether ReleasePolicy has been called.
func (e *LeafEval) PolicyReleased() bool { return e.policyReleased }

// Batch is the dense set of positions awaiting NN evaluation, assembled by
// the collector and consumed by the Evaluator Gateway.
type Batch struct {
	Positions   []PositionOps
	InputPlanes [][]float32
}

// LeafCollector classifies leaves produced by Selector.CollectLeaves and
// assembles an evaluation batch, grounded on mcts/search.go's
// expandAndSimulate (policy renormalization over legal moves) and the
// other_examples ZachBeta batched_mcts.go fragment's
// collectNodesToEvaluate terminal/batch split.
type LeafCollector struct {
	Store *NodeStore
	Cfg   Config
}

// ClassifyAndBatchResult is everything ClassifyAndBatch produces: the
// dense batch to send to the evaluator, one LeafEval per accepted path
// (in the same relative order, skipping deferred ones), a map from a
// dedup primary's index in Evals to the indices of leaves linked to it,
// and any leaves that didn't fit in this cycle's batch.
type ClassifyAndBatchResult struct {
	Batch      Batch
	Evals      []LeafEval
	DedupLinks map[int][]int
	Deferred   []LeafPath
}

// ClassifyAndBatch sorts collected leaf paths into terminal, transposition,
// dedup, and fresh-NN-evaluation buckets, and assembles the dense batch for
// whichever leaves need an evaluator call.
func (lc *LeafCollector) ClassifyAndBatch(paths []LeafPath) ClassifyAndBatchResult {
	res := ClassifyAndBatchResult{DedupLinks: map[int][]int{}}
	seen := map[Hash96]int{} // hash -> index in res.Evals of the primary (NN) leaf

	for _, p := range paths {
		if p.Slot == -1 {
			if status := lc.Store.Node(p.ParentIdx).Terminal(); status != NotTerminal {
				res.Evals = append(res.Evals, LeafEval{
					Path: p, Kind: LeafTerminal, TerminalStatus: status,
				})
				continue
			}
		}

		hash := p.Position.Hash()

		if srcIdx, ok := lc.Store.TranspositionLookup(hash); ok &&
			lc.Store.Node(srcIdx).Visits() >= lc.Cfg.TranspositionMinVisits {
			res.Evals = append(res.Evals, LeafEval{
				Path: p, Kind: LeafTransposition, SourceIdx: srcIdx,
			})
			continue
		}

		if primary, ok := seen[hash]; ok {
			res.Evals = append(res.Evals, LeafEval{Path: p, Kind: LeafDedup})
			idx := len(res.Evals) - 1
			res.DedupLinks[primary] = append(res.DedupLinks[primary], idx)
			continue
		}

		if len(res.Batch.Positions) >= lc.Cfg.MaxBatchSize {
			res.Deferred = append(res.Deferred, p)
			continue
		}

		batchIdx := len(res.Batch.Positions)
		res.Batch.Positions = append(res.Batch.Positions, p.Position)
		res.Batch.InputPlanes = append(res.Batch.InputPlanes, p.Position.EncodePlanes())
		res.Evals = append(res.Evals, LeafEval{Path: p, Kind: LeafNN, BatchIndex: batchIdx})
		seen[hash] = len(res.Evals) - 1
	}

	return res
}
