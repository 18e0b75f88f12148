package search

import (
	"sync"
	"sync/atomic"
)

// ChildEntry is one row of a child-row block: the encoded move, its prior
// probability packed as a 16-bit fixed-point fraction, and the slot index
// of the child node, or NilIdx meaning "not yet expanded".
type ChildEntry struct {
	Move  EncodedMove
	Prior uint16 // fixed-point, 0..65535 maps to 0.0..1.0
	Child NodeIdx
}

// PriorProb decodes the fixed-point prior back to a float32 probability.
func (c *ChildEntry) PriorProb() float32 {
	return float32(c.Prior) / 65535.0
}

// encodePrior packs a probability into the fixed-point representation.
func encodePrior(p float32) uint16 {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return uint16(p*65535.0 + 0.5)
}

// childRowShard is a per-shard bump arena for child rows. Sharding spreads
// allocation contention across concurrent expanders ("a per-thread bump
// region reduces cross-thread contention") without requiring goroutine-local
// storage: callers round-robin across shards instead of binding to a
// specific thread.
type childRowShard struct {
	mu      sync.Mutex
	entries []ChildEntry
}

// ChildRowArena is the variable-length sibling of NodeStore's fixed node
// arena: a contiguous per-parent child-row block, grounded on mcts/tree.go's
// children [][]naughty slice-of-slices.
type ChildRowArena struct {
	shards []*childRowShard
	rr     uint32 // atomic round-robin counter
}

func newChildRowArena(shardCount int, capacityHint int) *ChildRowArena {
	if shardCount < 1 {
		shardCount = 1
	}
	a := &ChildRowArena{shards: make([]*childRowShard, shardCount)}
	perShard := capacityHint/shardCount + 1
	for i := range a.shards {
		a.shards[i] = &childRowShard{entries: make([]ChildEntry, 0, perShard)}
	}
	return a
}

// Alloc reserves n contiguous child-row slots and returns their location.
func (a *ChildRowArena) Alloc(n int) RowIdx {
	shardIdx := int(atomic.AddUint32(&a.rr, 1)-1) % len(a.shards)
	shard := a.shards[shardIdx]
	shard.mu.Lock()
	offset := int32(len(shard.entries))
	for i := 0; i < n; i++ {
		shard.entries = append(shard.entries, ChildEntry{Child: NilIdx})
	}
	shard.mu.Unlock()
	return RowIdx{shard: int32(shardIdx), offset: offset}
}

// Entry returns a pointer to child i of the row at loc.
func (a *ChildRowArena) Entry(loc RowIdx, i int) *ChildEntry {
	shard := a.shards[loc.shard]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return &shard.entries[int(loc.offset)+i]
}

// SetChild publishes the newly allocated node index for child i of loc.
// Called once, after the child node itself has been allocated, so other
// selectors reading the row see either NilIdx or the fully-formed index.
func (a *ChildRowArena) SetChild(loc RowIdx, i int, child NodeIdx) {
	shard := a.shards[loc.shard]
	shard.mu.Lock()
	shard.entries[int(loc.offset)+i].Child = child
	shard.mu.Unlock()
}

// reset clears all shards for reuse by a new search.
func (a *ChildRowArena) reset() {
	for _, s := range a.shards {
		s.mu.Lock()
		s.entries = s.entries[:0]
		s.mu.Unlock()
	}
	atomic.StoreUint32(&a.rr, 0)
}
