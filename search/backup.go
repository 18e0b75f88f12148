package search

import "github.com/pkg/errors"

// BackupEngine propagates a leaf's evaluation up its path, alternating
// sign each step because perspectives alternate, and reversing the virtual
// loss the Selector applied on the way down.
// Grounded on mcts/node.go's accumulate() and mcts/search.go's pipeline()
// backpropagation step, generalized from a per-node mutex to the atomic
// NodeRecord.accumulate used here.
type BackupEngine struct {
	Store *NodeStore
	Cfg   Config
}

// Backup applies one LeafEval's result to every node on its path, then
// materializes a new child (for a previously-unexpanded slot) or expands
// the leaf's own children, and finally publishes the expansion so other
// selectors can see it. It never runs for a partially-classified batch:
// the caller is expected to have already confirmed the whole cycle's
// evaluation succeeded before calling Backup on any leaf: no partial batch
// results are ever applied.
func (b *BackupEngine) Backup(ops PositionOps, eval *LeafEval) error {
	result, terminalValue, err := b.resolveValue(ops, eval)
	if err != nil {
		return err
	}

	leafIdx, err := b.materializeLeaf(ops, eval, result)
	if err != nil {
		return err
	}

	// When Slot == -1 the descent stopped at a node already present in
	// Path.Nodes (terminal, or a never-expanded existing node), so leafIdx
	// duplicates its last element; that node already carries the virtual
	// loss descendOnce applied to it on the way down, so propagate must
	// reverse it in addition to accumulating the value. Otherwise leafIdx
	// is a brand new (or transposition-shared) node one step past
	// Path.Nodes that never had virtual loss applied to it.
	ancestors := eval.Path.Nodes
	leafCarriesVirtualLoss := eval.Path.Slot == -1
	if leafCarriesVirtualLoss {
		ancestors = eval.Path.Nodes[:len(eval.Path.Nodes)-1]
	}
	b.propagate(ancestors, leafIdx, terminalValue, leafCarriesVirtualLoss)
	return nil
}

// resolveValue turns a classified leaf into the scalar value (from the
// leaf's own perspective) that will be alternated up the path, plus the
// full EvalResult when one exists (transposition/dedup/NN leaves).
func (b *BackupEngine) resolveValue(ops PositionOps, eval *LeafEval) (result EvalResult, value float32, err error) {
	switch eval.Kind {
	case LeafTerminal:
		return EvalResult{}, terminalValueFor(eval.TerminalStatus), nil
	case LeafTransposition:
		src := b.Store.Node(eval.SourceIdx)
		q := src.Q()
		return EvalResult{
			WinProb: (1 + q) / 2, LossProb: (1 - q) / 2, MovesLeft: src.MovesLeft(),
			Policy: b.policyFromSource(eval.SourceIdx, ops.ActionSpace()),
		}, q, nil
	case LeafDedup, LeafNN:
		r, ok := eval.Result()
		if !ok {
			return EvalResult{}, 0, errCorruptInvariantf("leaf missing evaluator result")
		}
		return r, r.Q(), nil
	}
	return EvalResult{}, 0, errCorruptInvariantf("unknown leaf kind %d", eval.Kind)
}

// terminalValueFor maps a terminal status to its fixed value from the
// side-to-move perspective at that node: +1 win, -1 loss, 0 draw. Because
// a terminal node has no mover (the side to move has no legal moves), the
// convention here is the classic "checkmate is a loss for the side to
// move" reading.
func terminalValueFor(status TerminalStatus) float32 {
	switch status {
	case Checkmate, TablebaseLoss:
		return -1
	case TablebaseWin:
		return 1
	default:
		return 0
	}
}

// materializeLeaf returns the node index this leaf's value is backed up
// into, so propagate can start from it. When the descent stopped at an
// existing node (Slot == -1) that node is returned, expanded first unless
// the leaf is terminal. For a child-row slot a new node is allocated,
// recorded in the parent's row and the transposition index, and then
// marked terminal or expanded; if an earlier leaf already placed a node in
// that slot (a dedup-linked leaf of the same cycle), that node is returned
// instead. A transposition hit gets a node of its own.
func (b *BackupEngine) materializeLeaf(ops PositionOps, eval *LeafEval, result EvalResult) (NodeIdx, error) {
	if eval.Path.Slot == -1 {
		// descent stopped at an existing node (terminal, or never
		// expanded); nothing new to allocate, but a non-terminal node is
		// expanded here.
		if eval.Kind != LeafTerminal {
			if err := b.expand(ops, eval.Path.ParentIdx, result, eval); err != nil {
				return NilIdx, err
			}
		}
		return eval.Path.ParentIdx, nil
	}

	row := b.rowOf(eval.Path.ParentIdx)
	if existing := b.Store.ChildRow(row, eval.Path.Slot).Child; existing.valid() {
		return existing, nil
	}

	hash := ops.Hash()
	leafIdx, err := b.Store.AllocNode(eval.Path.ParentIdx, eval.Move(), hash)
	if err != nil {
		return NilIdx, err
	}
	b.Store.SetChild(row, eval.Path.Slot, leafIdx)
	b.Store.TranspositionInsert(hash, leafIdx)

	if status, ok := ops.Terminal(); ok {
		b.Store.Node(leafIdx).SetTerminal(status)
		return leafIdx, nil
	}

	if err := b.expand(ops, leafIdx, result, eval); err != nil {
		return NilIdx, err
	}
	return leafIdx, nil
}

// policyFromSource builds a dense, action-space-indexed policy array from
// an already-expanded transposition source node's child-row priors, so a
// fresh node reached via a different path to the same position expands
// with the same priors instead of paying for another NN call. Two entries
// referring to the same hash share value/policy but maintain independent N
// in their respective subtrees — that independence of N is what
// distinguishes this from simply re-pointing the child slot at the source
// node.
func (b *BackupEngine) policyFromSource(src NodeIdx, actionSpace int) []float32 {
	dense := make([]float32, actionSpace)
	row, numChildren, expanded := b.Store.Node(src).ChildRowLoc()
	if !expanded {
		return dense
	}
	for i := 0; i < numChildren; i++ {
		entry := b.Store.ChildRow(row, i)
		if int(entry.Move) < len(dense) {
			dense[entry.Move] = entry.PriorProb()
		}
	}
	return dense
}

// rowOf looks up the already-published child row of parent; valid because
// a node is only ever the ParentIdx of a LeafPath with Slot >= 0 after it
// has itself been expanded.
func (b *BackupEngine) rowOf(parent NodeIdx) RowIdx {
	row, _, _ := b.Store.Node(parent).ChildRowLoc()
	return row
}

// expand allocates the leaf's child row from its legal moves and result
// policy, then publishes it, marking eval's policy released once it has
// been copied into the child row. Races between two selectors reaching the
// same never-before-expanded node are resolved by NodeRecord's
// tryClaimExpansion CAS; the losing caller simply skips expansion and
// still backs up its own value (and leaves the policy unreleased, since it
// was never copied anywhere by this call).
func (b *BackupEngine) expand(ops PositionOps, idx NodeIdx, result EvalResult, eval *LeafEval) error {
	node := b.Store.Node(idx)
	if !node.tryClaimExpansion() {
		return nil
	}

	moves := ops.LegalMoves()
	if len(moves) == 0 {
		return errTerminalMisclassification("node has no legal moves but was not flagged terminal")
	}

	probs := make([]float32, len(moves))
	if len(result.Policy) > 0 {
		for i, m := range moves {
			if int(m) < len(result.Policy) {
				probs[i] = result.Policy[m]
			}
		}
	} else {
		for i := range probs {
			probs[i] = 1.0 / float32(len(moves))
		}
	}
	policy := CompressPolicy(moves, probs)

	row := b.Store.AllocChildRow(len(moves))
	for i, m := range moves {
		entry := b.Store.ChildRow(row, i)
		entry.Move = m
		entry.Prior = encodePrior(policy.Prior(m))
	}
	eval.ReleasePolicy()
	node.setUncertainty(result.ValueUncertainty, result.PolicyUncertainty)
	if result.HasSecondary {
		node.setSecondaryValue(result.SecondaryValue)
	}
	node.publishExpansion(row, len(moves))
	return nil
}

// propagate walks path from leaf to root applying value with alternating
// sign and reversing virtual loss. leafIdx is the innermost node (appended
// after path) so its own statistics are updated too. reverseLeafVloss is
// true when leafIdx is the same node descendOnce applied virtual loss to
// on the way down (the Slot == -1 case): a freshly allocated leaf never
// had virtual loss applied to it, so that case must not decrement it.
func (b *BackupEngine) propagate(path []NodeIdx, leafIdx NodeIdx, leafValue float32, reverseLeafVloss bool) {
	v := leafValue
	movesLeft := float32(0)

	leaf := b.Store.Node(leafIdx)
	leaf.accumulate(v, movesLeft)
	if reverseLeafVloss {
		leaf.AddVirtualLoss(-b.Cfg.VirtualLossPerVisit)
	}

	v = -v
	movesLeft++
	for i := len(path) - 1; i >= 0; i-- {
		node := b.Store.Node(path[i])
		node.accumulate(v, movesLeft)
		node.AddVirtualLoss(-b.Cfg.VirtualLossPerVisit)
		v = -v
		movesLeft++
	}
}

func errCorruptInvariantf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorruptInvariant, format, args...)
}

func errTerminalMisclassification(msg string) error {
	return errors.Wrap(ErrTerminalMisclassification, msg)
}

// Move returns the move leading to this leaf; valid whenever Slot >= 0.
func (e *LeafEval) Move() EncodedMove { return e.Path.Move }
