package search

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NodeStore combines the fixed-capacity arena of packed node records, the
// variable-length child-row arena, and the transposition index. Grounded on
// mcts/tree.go's alloc()/free()/freelist/cleanup() machinery, generalized
// from a growable slice to a pre-sized arena that surfaces a hard
// CapacityExhausted error instead of growing mid-search: growth is not
// supported mid-search, exceeding capacity is always a hard error.
type NodeStore struct {
	nodes []NodeRecord // length == capacity, pre-allocated

	allocCounter int32 // atomic, next free slot
	overflow     int32 // atomic bool, sticky once set
	capacity     int32

	childRows     *ChildRowArena
	transposition *TranspositionTable

	// freelist is rebuilt only between searches (reparent pruning), never
	// mid-search.
	mu       sync.Mutex
	freelist []NodeIdx
}

// NewNodeStore allocates a store with room for maxNodes nodes.
func NewNodeStore(maxNodes int, actionSpaceHint int, workerHint int) *NodeStore {
	s := &NodeStore{
		nodes:         make([]NodeRecord, maxNodes),
		capacity:      int32(maxNodes),
		childRows:     newChildRowArena(workerHint, maxNodes*actionSpaceHint/4+actionSpaceHint),
		transposition: NewTranspositionTable(maxNodes),
	}
	for i := range s.nodes {
		s.nodes[i].idx = NodeIdx(i)
		s.nodes[i].parent = NilIdx
	}
	return s
}

// AllocNode reserves the next free node slot and initializes it as a leaf
// of parent, reached by move, at the given hash. The move's prior lives in
// the parent's child-row entry, not on the node.
// Returns ErrCapacityExhausted once the arena (or the freelist, between
// searches) is empty.
func (s *NodeStore) AllocNode(parent NodeIdx, move EncodedMove, hash Hash96) (NodeIdx, error) {
	if atomic.LoadInt32(&s.overflow) != 0 {
		return NilIdx, errors.WithStack(ErrCapacityExhausted)
	}

	var idx NodeIdx
	s.mu.Lock()
	if n := len(s.freelist); n > 0 {
		idx = s.freelist[n-1]
		s.freelist = s.freelist[:n-1]
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		next := atomic.AddInt32(&s.allocCounter, 1) - 1
		if next >= s.capacity {
			atomic.StoreInt32(&s.overflow, 1)
			atomic.AddInt32(&s.allocCounter, -1)
			klog.V(1).Infof("search: node store overflow at capacity %d", s.capacity)
			return NilIdx, errors.WithStack(ErrCapacityExhausted)
		}
		idx = NodeIdx(next)
	}

	n := &s.nodes[idx]
	n.reset(idx)
	n.parent = parent
	n.move = move
	n.hashLo, n.hashHi = hash.Lo, hash.Hi
	return idx, nil
}

// AllocChildRow reserves n contiguous child-row slots.
func (s *NodeStore) AllocChildRow(n int) RowIdx {
	return s.childRows.Alloc(n)
}

// Node returns the node record at idx.
func (s *NodeStore) Node(idx NodeIdx) *NodeRecord { return &s.nodes[idx] }

// ChildRow returns child i of row.
func (s *NodeStore) ChildRow(row RowIdx, i int) *ChildEntry { return s.childRows.Entry(row, i) }

// SetChild publishes the node allocated for child i of row.
func (s *NodeStore) SetChild(row RowIdx, i int, child NodeIdx) { s.childRows.SetChild(row, i, child) }

// TranspositionLookup looks up hash in the transposition index.
func (s *NodeStore) TranspositionLookup(hash Hash96) (NodeIdx, bool) {
	return s.transposition.Lookup(hash)
}

// TranspositionInsert inserts hash -> idx; the caller must already have
// verified node(idx).hash == hash.
func (s *NodeStore) TranspositionInsert(hash Hash96, idx NodeIdx) bool {
	return s.transposition.Insert(hash, idx)
}

// Len returns the number of nodes allocated so far.
func (s *NodeStore) Len() int32 { return atomic.LoadInt32(&s.allocCounter) }

// Capacity returns the arena's fixed node capacity.
func (s *NodeStore) Capacity() int32 { return s.capacity }

// Overflowed reports whether the arena hit capacity.
func (s *NodeStore) Overflowed() bool { return atomic.LoadInt32(&s.overflow) != 0 }

// Reparent keeps the subtree rooted at newRoot (a direct child of
// oldRoot), invalidates and frees every other node reachable from
// oldRoot, reclaims oldRoot itself onto the freelist, and rebuilds the
// freelist. Only called between searches, never concurrently with an
// in-flight cycle. Grounded on mcts/tree.go's cleanup()/cleanChildren().
func (s *NodeStore) Reparent(oldRoot, newRoot NodeIdx) int {
	freed := 0
	row, numChildren, expanded := s.Node(oldRoot).ChildRowLoc()
	if expanded {
		for i := 0; i < numChildren; i++ {
			entry := s.ChildRow(row, i)
			if entry.Child.valid() && entry.Child != newRoot {
				freed += s.invalidateSubtree(entry.Child)
			}
		}
	}
	s.mu.Lock()
	s.freelist = append(s.freelist, oldRoot)
	s.mu.Unlock()
	return freed + 1
}

func (s *NodeStore) invalidateSubtree(root NodeIdx) int {
	freed := 1
	row, numChildren, expanded := s.Node(root).ChildRowLoc()
	if expanded {
		for i := 0; i < numChildren; i++ {
			entry := s.ChildRow(row, i)
			if entry.Child.valid() {
				freed += s.invalidateSubtree(entry.Child)
			}
		}
	}
	s.mu.Lock()
	s.freelist = append(s.freelist, root)
	s.mu.Unlock()
	return freed
}

// Reset discards the whole arena, child rows and transposition index for a
// brand new search unrelated to any previous one.
func (s *NodeStore) Reset() {
	s.mu.Lock()
	s.freelist = s.freelist[:0]
	s.mu.Unlock()
	atomic.StoreInt32(&s.allocCounter, 0)
	atomic.StoreInt32(&s.overflow, 0)
	s.childRows.reset()
	s.transposition.reset()
	for i := range s.nodes {
		s.nodes[i].reset(NodeIdx(i))
	}
}
