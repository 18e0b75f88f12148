package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupTerminalLeafPropagatesAlternatingSign(t *testing.T) {
	store := NewNodeStore(64, 8, 1)
	root, err := store.AllocNode(NilIdx, 0, Hash96{Lo: 1})
	require.NoError(t, err)
	buildExpandedNode(store, root, []EncodedMove{0}, []float32{1})
	row, _, _ := store.Node(root).ChildRowLoc()
	child, err := store.AllocNode(root, 0, Hash96{Lo: 2})
	require.NoError(t, err)
	store.SetChild(row, 0, child)
	store.Node(child).SetTerminal(Checkmate)

	be := &BackupEngine{Store: store, Cfg: testConfig()}
	// Simulate descendOnce's virtual loss reservation on every node in the
	// path, including the terminal leaf itself, before Backup runs.
	store.Node(root).AddVirtualLoss(be.Cfg.VirtualLossPerVisit)
	store.Node(child).AddVirtualLoss(be.Cfg.VirtualLossPerVisit)

	eval := LeafEval{
		Path: LeafPath{Nodes: []NodeIdx{root, child}, ParentIdx: child, Slot: -1},
		Kind: LeafTerminal, TerminalStatus: Checkmate,
	}
	require.NoError(t, be.Backup(fakePos{id: 2, depth: 1, maxDepth: 5, space: 8}, &eval))

	// Checkmate is a loss (-1) for the side to move at the terminal node,
	// and a win (+1) one ply up at root.
	assert.InDelta(t, float32(-1), store.Node(child).Q(), 1e-6)
	assert.InDelta(t, float32(1), store.Node(root).Q(), 1e-6)
	assert.Equal(t, uint32(1), store.Node(root).Visits())
	assert.Equal(t, uint32(1), store.Node(child).Visits())

	// Every node on the path, including the terminal leaf, must have its
	// virtual loss fully reversed once Backup completes.
	assert.Equal(t, int32(0), store.Node(root).VirtualLoss())
	assert.Equal(t, int32(0), store.Node(child).VirtualLoss())
}

// TestBackupRevisitedTerminalLeafReversesVirtualLossEachTime covers a
// terminal node being re-selected across multiple cycles (Slot == -1 every
// time since it's never expanded): each Backup must leave its virtual loss
// back at zero rather than leaking +1 per revisit.
func TestBackupRevisitedTerminalLeafReversesVirtualLossEachTime(t *testing.T) {
	store := NewNodeStore(64, 8, 1)
	root, err := store.AllocNode(NilIdx, 0, Hash96{Lo: 1})
	require.NoError(t, err)
	buildExpandedNode(store, root, []EncodedMove{0}, []float32{1})
	row, _, _ := store.Node(root).ChildRowLoc()
	child, err := store.AllocNode(root, 0, Hash96{Lo: 2})
	require.NoError(t, err)
	store.SetChild(row, 0, child)
	store.Node(child).SetTerminal(Checkmate)

	be := &BackupEngine{Store: store, Cfg: testConfig()}
	pos := fakePos{id: 2, depth: 1, maxDepth: 5, space: 8}

	for i := 0; i < 3; i++ {
		store.Node(root).AddVirtualLoss(be.Cfg.VirtualLossPerVisit)
		store.Node(child).AddVirtualLoss(be.Cfg.VirtualLossPerVisit)

		eval := LeafEval{
			Path: LeafPath{Nodes: []NodeIdx{root, child}, ParentIdx: child, Slot: -1},
			Kind: LeafTerminal, TerminalStatus: Checkmate,
		}
		require.NoError(t, be.Backup(pos, &eval))

		assert.Equal(t, int32(0), store.Node(root).VirtualLoss())
		assert.Equal(t, int32(0), store.Node(child).VirtualLoss())
	}
}

func TestBackupNNLeafAllocatesAndExpands(t *testing.T) {
	store := NewNodeStore(64, 8, 1)
	root, err := store.AllocNode(NilIdx, 0, Hash96{Lo: 1})
	require.NoError(t, err)
	buildExpandedNode(store, root, []EncodedMove{0, 1}, []float32{0.5, 0.5})

	be := &BackupEngine{Store: store, Cfg: testConfig()}
	leafPos := fakePos{id: 77, depth: 1, maxDepth: 5, space: 8}
	eval := LeafEval{
		Path: LeafPath{Nodes: []NodeIdx{root}, ParentIdx: root, Slot: 0, Move: 0, Position: leafPos},
		Kind: LeafNN,
	}
	eval.SetResult(EvalResult{WinProb: 0.7, LossProb: 0.3, Policy: make([]float32, 8)})

	require.NoError(t, be.Backup(leafPos, &eval))

	row, _, _ := store.Node(root).ChildRowLoc()
	leafIdx := store.ChildRow(row, 0).Child
	require.True(t, leafIdx.valid())
	assert.True(t, store.Node(leafIdx).IsExpanded())
	assert.InDelta(t, float32(0.4), store.Node(leafIdx).Q(), 1e-6) // 0.7-0.3
	assert.InDelta(t, float32(-0.4), store.Node(root).Q(), 1e-6)
	assert.True(t, eval.PolicyReleased(), "policy must be released once copied into the new child row")

	idxInTable, ok := store.TranspositionLookup(leafPos.Hash())
	require.True(t, ok)
	assert.Equal(t, leafIdx, idxInTable)
}

// TestBackupSkippedExpansionLeavesPolicyUnreleased covers the CAS-loser
// path in expand(): when the node has already been claimed for expansion,
// this call never copies a policy into any child row, so PolicyReleased
// must stay false.
func TestBackupSkippedExpansionLeavesPolicyUnreleased(t *testing.T) {
	store := NewNodeStore(64, 8, 1)
	idx, err := store.AllocNode(NilIdx, 0, Hash96{Lo: 1})
	require.NoError(t, err)
	require.True(t, store.Node(idx).tryClaimExpansion(), "precondition: node starts unclaimed")

	be := &BackupEngine{Store: store, Cfg: testConfig()}
	eval := LeafEval{Kind: LeafNN}
	pos := fakePos{id: 1, depth: 0, maxDepth: 5, space: 8}

	require.NoError(t, be.expand(pos, idx, EvalResult{Policy: make([]float32, 8)}, &eval))
	assert.False(t, eval.PolicyReleased(), "losing the expansion race must not mark the policy released")
	assert.False(t, store.Node(idx).IsExpanded(), "a skipped expansion must not publish a child row")
}

func TestBackupTranspositionHitKeepsIndependentVisitCounts(t *testing.T) {
	store := NewNodeStore(64, 8, 1)
	src, err := store.AllocNode(NilIdx, 0, Hash96{Lo: 99})
	require.NoError(t, err)
	buildExpandedNode(store, src, []EncodedMove{3}, []float32{1})
	store.Node(src).accumulate(0.5, 0)
	store.TranspositionInsert(Hash96{Lo: 99}, src)

	root, err := store.AllocNode(NilIdx, 0, Hash96{Lo: 1})
	require.NoError(t, err)
	buildExpandedNode(store, root, []EncodedMove{0}, []float32{1})

	be := &BackupEngine{Store: store, Cfg: testConfig()}
	hitPos := fakePos{id: 99, depth: 1, maxDepth: 5, space: 8}
	eval := LeafEval{
		Path: LeafPath{Nodes: []NodeIdx{root}, ParentIdx: root, Slot: 0, Move: 0, Position: hitPos},
		Kind: LeafTransposition, SourceIdx: src,
	}

	require.NoError(t, be.Backup(hitPos, &eval))

	row, _, _ := store.Node(root).ChildRowLoc()
	newLeaf := store.ChildRow(row, 0).Child
	require.True(t, newLeaf.valid())
	assert.NotEqual(t, src, newLeaf, "transposition hit must allocate its own node, not share src's")
	assert.Equal(t, uint32(1), store.Node(src).Visits(), "src's own visit count must not change")
	assert.Equal(t, uint32(1), store.Node(newLeaf).Visits())
	assert.True(t, store.Node(newLeaf).IsExpanded())
}
