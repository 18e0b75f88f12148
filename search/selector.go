package search

import "k8s.io/klog/v2"

// LeafPath is the result of one PUCT descent: the chain of existing node
// indices from root to the parent of the leaf, plus the child-row slot
// selected for the leaf (which may not be expanded yet) and the position
// reached by playing that slot's move. Grounded on mcts/search.go's
// pipeline(), which threads a game.State alongside the recursive descent
// rather than recomputing positions from scratch at each node.
type LeafPath struct {
	Nodes     []NodeIdx // root ... parent, virtual loss applied to each
	ParentIdx NodeIdx
	Slot      int // child-row slot chosen at ParentIdx
	Move      EncodedMove
	Position  PositionOps // position after playing Move
	Depth     int
}

// Selector runs PUCT descents from a shared root, applying and later
// reversing virtual loss. One Selector is typically driven by many
// concurrent worker goroutines, each calling CollectLeaves independently;
// the node store's atomic fields make concurrent descents safe without a
// shared lock.
type Selector struct {
	Store *NodeStore
	Cfg   Config
}

// CollectLeaves walks from rootIdx/rootPos k times, returning one LeafPath
// per walk. Each walk reserves virtual loss on every node it passes
// through; a walk that exceeds the depth guard is dropped and its virtual
// loss reversed.
func (sel *Selector) CollectLeaves(rootIdx NodeIdx, rootPos PositionOps, k int, rootNoise []float32) []LeafPath {
	paths := make([]LeafPath, 0, k)
	for i := 0; i < k; i++ {
		path, ok := sel.descendOnce(rootIdx, rootPos, rootNoise)
		if ok {
			paths = append(paths, path)
		}
	}
	return paths
}

func (sel *Selector) descendOnce(rootIdx NodeIdx, rootPos PositionOps, rootNoise []float32) (LeafPath, bool) {
	nodes := make([]NodeIdx, 0, 64)
	cur := rootIdx
	pos := rootPos
	depth := 0

	for {
		nodes = append(nodes, cur)
		sel.Store.Node(cur).AddVirtualLoss(sel.Cfg.VirtualLossPerVisit)

		if status, ok := pos.Terminal(); ok {
			sel.Store.Node(cur).SetTerminal(status)
			return LeafPath{Nodes: nodes, ParentIdx: cur, Slot: -1, Position: pos, Depth: depth}, true
		}

		isRoot := cur == rootIdx
		var noise []float32
		if isRoot && sel.Cfg.DirichletNoiseEpsilon > 0 {
			noise = rootNoise
		}
		slot, child := SelectChild(sel.Store, cur, sel.Cfg, isRoot, noise)
		if slot == -1 {
			// node has never been expanded: this is the leaf itself.
			return LeafPath{Nodes: nodes, ParentIdx: cur, Slot: -1, Position: pos, Depth: depth}, true
		}

		row, _, _ := sel.Store.Node(cur).ChildRowLoc()
		entry := sel.Store.ChildRow(row, slot)
		nextPos := pos.Apply(entry.Move)

		if !child.valid() {
			// unexpanded slot: this is the leaf to expand.
			return LeafPath{
				Nodes: nodes, ParentIdx: cur, Slot: slot, Move: entry.Move,
				Position: nextPos, Depth: depth + 1,
			}, true
		}

		cur = child
		pos = nextPos
		depth++
		if depth > 4096 {
			klog.Warningf("search: selector descent exceeded depth guard at node %d", cur)
			sel.UnwindVirtualLoss(LeafPath{Nodes: nodes})
			return LeafPath{}, false
		}
	}
}

// UnwindVirtualLoss reverses virtual loss applied along path without
// performing a backup; used when a cycle is aborted before evaluation
// completes, so workers unwind cleanly, reversing any virtual loss they
// applied to partial paths.
func (sel *Selector) UnwindVirtualLoss(path LeafPath) {
	for _, idx := range path.Nodes {
		sel.Store.Node(idx).AddVirtualLoss(-sel.Cfg.VirtualLossPerVisit)
	}
}
