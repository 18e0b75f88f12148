package search

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
	"github.com/google/uuid"
)

// Snapshot is a compact, on-demand game-tree export: node indices, hashes,
// N and mean Q per node, for debugging only — never consulted by the search
// itself. It does not carry the raw value sums or a win/loss split.
type Snapshot struct {
	ID    string
	Nodes []SnapshotNode
}

// SnapshotNode is one exported node record.
type SnapshotNode struct {
	Idx      NodeIdx
	Parent   NodeIdx
	Move     EncodedMove
	HashLo   uint64
	HashHi   uint32
	Visits   uint32
	Q        float32
	Terminal TerminalStatus
}

// BuildSnapshot walks the subtree rooted at root up to maxNodes nodes and
// captures their state. It never mutates the store and may be called
// while a search is paused between cycles.
func BuildSnapshot(store *NodeStore, root NodeIdx, maxNodes int) Snapshot {
	snap := Snapshot{ID: uuid.NewString()}
	if maxNodes <= 0 {
		maxNodes = 1 << 20
	}
	var walk func(idx NodeIdx)
	walk = func(idx NodeIdx) {
		if len(snap.Nodes) >= maxNodes || !idx.valid() {
			return
		}
		n := store.Node(idx)
		snap.Nodes = append(snap.Nodes, SnapshotNode{
			Idx: idx, Parent: n.parent, Move: n.move,
			HashLo: n.hashLo, HashHi: n.hashHi,
			Visits: n.Visits(), Q: n.Q(), Terminal: n.Terminal(),
		})
		row, numChildren, expanded := n.ChildRowLoc()
		if !expanded {
			return
		}
		for i := 0; i < numChildren; i++ {
			entry := store.ChildRow(row, i)
			if entry.Child.valid() {
				walk(entry.Child)
			}
		}
	}
	walk(root)
	return snap
}

// DOT renders the snapshot as a Graphviz document, using the
// github.com/awalterschulze/gographviz dependency.
func (s Snapshot) DOT() (string, error) {
	graph := gographviz.NewGraph()
	graphName := "ceres_" + s.ID
	if err := graph.SetName(graphName); err != nil {
		return "", err
	}
	if err := graph.SetDir(true); err != nil {
		return "", err
	}

	for _, n := range s.Nodes {
		name := fmt.Sprintf("n%d", n.Idx)
		label := fmt.Sprintf("\"#%d N=%d Q=%.3f %s\"", n.Idx, n.Visits, n.Q, n.Terminal)
		if err := graph.AddNode(graphName, name, map[string]string{"label": label}); err != nil {
			return "", err
		}
	}
	for _, n := range s.Nodes {
		if !n.Parent.valid() {
			continue
		}
		src := fmt.Sprintf("n%d", n.Parent)
		dst := fmt.Sprintf("n%d", n.Idx)
		if err := graph.AddEdge(src, dst, true, map[string]string{"label": fmt.Sprintf("%d", n.Move)}); err != nil {
			return "", err
		}
	}
	return graph.String(), nil
}
