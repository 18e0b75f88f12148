package search

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SearchDriver orchestrates selection→evaluation→backup cycles under a
// Limit, pipelines cycles across a worker pool, and owns tree reuse between
// searches. Grounded on
// mcts/search.go's Search() entry point (context.WithCancel + time.After
// timeout, runtime.NumCPU()-sized worker pool, updateRoot/newRootState
// tree-reuse replay matching) and mcts/tree.go's cleanup/cleanChildren
// reparent pruning, now expressed over NodeStore.Reparent.
type SearchDriver struct {
	Store    *NodeStore
	Gateway  *Gateway
	Cfg      Config
	Selector *Selector
	Collector *LeafCollector
	Backup   *BackupEngine

	mu      sync.Mutex
	rootIdx NodeIdx
	rootPos PositionOps
}

// NewSearchDriver wires a NodeStore, Gateway and Config into a ready
// driver. cfg must already pass IsValid().
func NewSearchDriver(store *NodeStore, gateway *Gateway, cfg Config) *SearchDriver {
	return &SearchDriver{
		Store:     store,
		Gateway:   gateway,
		Cfg:       cfg,
		Selector:  &Selector{Store: store, Cfg: cfg},
		Collector: &LeafCollector{Store: store, Cfg: cfg},
		Backup:    &BackupEngine{Store: store, Cfg: cfg},
		rootIdx:   NilIdx,
	}
}

// SetRoot installs pos as the driver's current root position and allocates
// a fresh root node for it; an earlier root and its subtree stay allocated
// in the store. Call this once before the
// first Search, and after any out-of-band position change that tree reuse
// can't handle (e.g. an opponent move, or a takeback).
func (d *SearchDriver) SetRoot(pos PositionOps) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, err := d.Store.AllocNode(NilIdx, 0, pos.Hash())
	if err != nil {
		return err
	}
	d.rootIdx, d.rootPos = idx, pos
	return nil
}

// RootIndex returns the driver's current root node index, for debug
// snapshotting; the search itself never exposes this to PositionOps or
// BatchedEvaluator implementations.
func (d *SearchDriver) RootIndex() NodeIdx {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rootIdx
}

// PlayMove advances the driver's root by move, reusing the existing
// subtree when tree reuse is enabled and the move has already been
// explored. Otherwise it resets the store and starts a fresh root.
func (d *SearchDriver) PlayMove(move EncodedMove) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	nextPos := d.rootPos.Apply(move)

	if d.Cfg.TreeReuseEnabled {
		row, numChildren, expanded := d.Store.Node(d.rootIdx).ChildRowLoc()
		if expanded {
			for i := 0; i < numChildren; i++ {
				entry := d.Store.ChildRow(row, i)
				if entry.Move == move && entry.Child.valid() {
					freed := d.Store.Reparent(d.rootIdx, entry.Child)
					klog.V(1).Infof("search: tree reuse kept subtree at node %d, freed %d nodes", entry.Child, freed)
					d.rootIdx, d.rootPos = entry.Child, nextPos
					return nil
				}
			}
		}
	}

	d.Store.Reset()
	idx, err := d.Store.AllocNode(NilIdx, 0, nextPos.Hash())
	if err != nil {
		return err
	}
	d.rootIdx, d.rootPos = idx, nextPos
	return nil
}

// cycleOutcome holds the error of one worker's pass through
// select→classify→evaluate→backup. Search does not use it: workers append
// their errors to a shared multierror directly.
type cycleOutcome struct {
	err error
}

// Search runs cycles until limit is reached, pipelining across
// Cfg.NumWorkerThreads workers. Each worker carries its own queue of
// leaves deferred by the collector from a prior pass: excess leaves are
// deferred to the next cycle rather than dropped.
func (d *SearchDriver) Search(limit Limit) (SearchResult, error) {
	d.mu.Lock()
	rootIdx, rootPos := d.rootIdx, d.rootPos
	d.mu.Unlock()

	if !rootIdx.valid() {
		return SearchResult{}, errors.New("search: SetRoot must be called before Search")
	}

	limiter := NewLimiter(limit)
	var rootNoise []float32
	if d.Cfg.DirichletNoiseEpsilon > 0 {
		rootNoise = DirichletNoise(rootPos.ActionSpace(), d.Cfg.DirichletNoiseAlpha)
	}

	var cycles int32
	var stopStatus int32 // atomic Status of the limit that ended the search
	var workerErrs error
	var errMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once

	var wg sync.WaitGroup
	workers := d.Cfg.NumWorkerThreads
	if workers < 1 {
		workers = 1
	}
	perWorker := d.Cfg.TargetBatchSize/workers + 1

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var pending []LeafPath
			for {
				select {
				case <-stop:
					for _, p := range pending {
						d.Selector.UnwindVirtualLoss(p)
					}
					return
				default:
				}
				if limiter.DeadlinePassed() {
					atomic.CompareAndSwapInt32(&stopStatus, int32(StatusOK), int32(StatusTimeLimit))
					stopOnce.Do(func() { close(stop) })
					for _, p := range pending {
						d.Selector.UnwindVirtualLoss(p)
					}
					return
				}

				paths := d.Selector.CollectLeaves(rootIdx, rootPos, perWorker, rootNoise)
				paths = append(pending, paths...)
				pending = nil

				cr := d.Collector.ClassifyAndBatch(paths)
				pending = cr.Deferred

				if len(cr.Batch.Positions) > 0 {
					results, err := d.Gateway.Evaluate(cr.Batch)
					if err != nil {
						for i := range cr.Evals {
							d.Selector.UnwindVirtualLoss(cr.Evals[i].Path)
						}
						errMu.Lock()
						workerErrs = multierror.Append(workerErrs, err)
						errMu.Unlock()
						stopOnce.Do(func() { close(stop) })
						return
					}
					for i := range cr.Evals {
						if cr.Evals[i].Kind == LeafNN {
							cr.Evals[i].SetResult(results[cr.Evals[i].BatchIndex])
						}
					}
					for primary, followers := range cr.DedupLinks {
						r, ok := cr.Evals[primary].Result()
						if !ok {
							continue
						}
						for _, f := range followers {
							cr.Evals[f].SetResult(r)
						}
					}
				}

				for i := range cr.Evals {
					if err := d.Backup.Backup(cr.Evals[i].Path.Position, &cr.Evals[i]); err != nil {
						errMu.Lock()
						workerErrs = multierror.Append(workerErrs, err)
						errMu.Unlock()
						stopOnce.Do(func() { close(stop) })
						return
					}
				}

				n := atomic.AddInt32(&cycles, 1)
				qDiff := d.rootQDiff(rootIdx)
				if done, status := limiter.ShouldStop(int(d.Store.Len()), int(n), qDiff); done {
					atomic.CompareAndSwapInt32(&stopStatus, int32(StatusOK), int32(status))
					klog.V(1).Infof("search: stopping after %d cycles, status=%v", n, status)
					stopOnce.Do(func() { close(stop) })
					return
				}
				if d.Store.Overflowed() {
					stopOnce.Do(func() { close(stop) })
					return
				}
			}
		}()
	}
	wg.Wait()

	result := d.buildResult(rootIdx, limiter, int(cycles))
	if result.Status == StatusOK {
		result.Status = Status(atomic.LoadInt32(&stopStatus))
	}
	if workerErrs != nil {
		return result, workerErrs
	}
	return result, nil
}

// rootQDiff returns the current Q lead of the best root child over the
// second-best, used for the adaptive QDiff stop condition.
func (d *SearchDriver) rootQDiff(rootIdx NodeIdx) float32 {
	stats := d.rootChildStats(rootIdx)
	if len(stats) < 2 {
		return 0
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Q > stats[j].Q })
	return stats[0].Q - stats[1].Q
}

func (d *SearchDriver) rootChildStats(rootIdx NodeIdx) []RootChildStat {
	row, numChildren, expanded := d.Store.Node(rootIdx).ChildRowLoc()
	if !expanded {
		return nil
	}
	out := make([]RootChildStat, 0, numChildren)
	for i := 0; i < numChildren; i++ {
		entry := d.Store.ChildRow(row, i)
		stat := RootChildStat{Move: entry.Move, Prior: entry.PriorProb()}
		if entry.Child.valid() {
			n := d.Store.Node(entry.Child)
			stat.Visits = n.Visits()
			stat.Q = -n.Q() // child Q is from the child's own perspective
			stat.MovesLeft = n.MovesLeft()
		}
		out = append(out, stat)
	}
	return out
}

// buildResult computes the final move per Cfg.BestMoveSelection and
// assembles the rest of the result's output fields.
func (d *SearchDriver) buildResult(rootIdx NodeIdx, limiter *Limiter, cycles int) SearchResult {
	stats := d.rootChildStats(rootIdx)
	res := SearchResult{
		RootChildren:  stats,
		NodesSearched: int(d.Store.Len()),
		WallTime:      limiter.Elapsed(),
		BatchStats:    d.Gateway.Stats(),
		Status:        StatusOK,
	}
	if d.Store.Overflowed() {
		res.Status = StatusCapacityExhausted
	}
	if len(stats) == 0 {
		root := d.Store.Node(rootIdx)
		res.Q = root.Q()
		return res
	}

	best := bestRootChild(stats, d.Cfg.BestMoveSelection)
	res.BestMove = best.Move
	res.Q = best.Q
	res.MovesLeft = best.MovesLeft
	res.PV = d.principalVariation(rootIdx, 64)
	root := d.Store.Node(rootIdx)
	res.ValueUncertainty, _ = root.Uncertainty()
	return res
}

func bestRootChild(stats []RootChildStat, sel BestMoveSelection) RootChildStat {
	best := stats[0]
	for _, s := range stats[1:] {
		switch sel {
		case MaxQ:
			if s.Q > best.Q {
				best = s
			}
		case MaxNWithQTiebreak:
			if s.Visits > best.Visits || (s.Visits == best.Visits && s.Q > best.Q) {
				best = s
			}
		default: // MaxN
			if s.Visits > best.Visits {
				best = s
			}
		}
	}
	return best
}

// principalVariation walks the max-visit child chain from root, by index,
// never storing parent pointers outside the arena.
func (d *SearchDriver) principalVariation(rootIdx NodeIdx, maxLen int) []EncodedMove {
	pv := make([]EncodedMove, 0, maxLen)
	cur := rootIdx
	for len(pv) < maxLen {
		row, numChildren, expanded := d.Store.Node(cur).ChildRowLoc()
		if !expanded || numChildren == 0 {
			break
		}
		var bestEntry *ChildEntry
		var bestVisits uint32
		for i := 0; i < numChildren; i++ {
			entry := d.Store.ChildRow(row, i)
			if !entry.Child.valid() {
				continue
			}
			v := d.Store.Node(entry.Child).Visits()
			if bestEntry == nil || v > bestVisits {
				bestEntry, bestVisits = entry, v
			}
		}
		if bestEntry == nil {
			break
		}
		pv = append(pv, bestEntry.Move)
		cur = bestEntry.Child
	}
	return pv
}
