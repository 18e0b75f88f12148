package search

import (
	"runtime"
	"sync/atomic"
)

// transposition slot states.
const (
	slotEmpty   int32 = 0
	slotClaimed int32 = 1 // CAS winner is writing fields
	slotReady   int32 = 2 // fields published, safe to read
)

type tSlot struct {
	state   int32
	hashLo  uint64
	hashHi  uint32
	nodeIdx int32
}

// TranspositionTable is a power-of-two, open-addressed hash table mapping
// a 96-bit position hash to the authoritative node index, with lock-free
// reads and CAS-based inserts.
type TranspositionTable struct {
	slots []tSlot
	mask  uint64
	count int32 // atomic, approximate entry count
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// NewTranspositionTable builds a table sized to capacityHint entries
// (rounded up to the next power of two).
func NewTranspositionTable(capacityHint int) *TranspositionTable {
	if capacityHint < 16 {
		capacityHint = 16
	}
	n := nextPow2(capacityHint)
	return &TranspositionTable{
		slots: make([]tSlot, n),
		mask:  uint64(n - 1),
	}
}

func (t *TranspositionTable) probe(h Hash96) uint64 {
	return h.Lo & t.mask
}

// Lookup returns the node index stored for hash, if any.
func (t *TranspositionTable) Lookup(h Hash96) (NodeIdx, bool) {
	i := t.probe(h)
	for probed := uint64(0); probed <= t.mask; probed++ {
		idx := (i + probed) & t.mask
		slot := &t.slots[idx]
		state := atomic.LoadInt32(&slot.state)
		if state == slotEmpty {
			return NilIdx, false
		}
		if state == slotClaimed {
			// another thread is mid-publish for this slot; the hash it's
			// writing may or may not be ours. Spin briefly, then treat a
			// still-claimed slot as a (rare) miss rather than blocking
			// forever — the inserting thread will have it ready for the
			// next lookup.
			for spins := 0; spins < 64 && atomic.LoadInt32(&slot.state) == slotClaimed; spins++ {
				runtime.Gosched()
			}
			state = atomic.LoadInt32(&slot.state)
			if state != slotReady {
				continue
			}
		}
		if atomic.LoadUint64(&slot.hashLo) == h.Lo && atomic.LoadUint32(&slot.hashHi) == h.Hi {
			return NodeIdx(atomic.LoadInt32(&slot.nodeIdx)), true
		}
	}
	return NilIdx, false
}

// Insert records hash -> idx if the hash is not already present. Returns
// false if the table is full (no empty slot found along the probe chain)
// or if the hash was already present (the existing entry wins; of two
// threads racing to insert the same hash, the one that loses the claim on
// a slot waits for the other to publish it and then finds its hash there).
func (t *TranspositionTable) Insert(h Hash96, idx NodeIdx) bool {
	i := t.probe(h)
	for probed := uint64(0); probed <= t.mask; probed++ {
		slotIdx := (i + probed) & t.mask
		slot := &t.slots[slotIdx]
		state := atomic.LoadInt32(&slot.state)
		if state == slotReady {
			if atomic.LoadUint64(&slot.hashLo) == h.Lo && atomic.LoadUint32(&slot.hashHi) == h.Hi {
				return false // already present
			}
			continue
		}
		if atomic.CompareAndSwapInt32(&slot.state, slotEmpty, slotClaimed) {
			atomic.StoreUint64(&slot.hashLo, h.Lo)
			atomic.StoreUint32(&slot.hashHi, h.Hi)
			atomic.StoreInt32(&slot.nodeIdx, int32(idx))
			atomic.StoreInt32(&slot.state, slotReady) // publish: release
			atomic.AddInt32(&t.count, 1)
			return true
		}
		// lost the CAS race (another thread claimed it first): wait for
		// the winner to publish this slot and re-read it; if it holds the
		// same hash the existing entry wins, otherwise probing moves on.
		for atomic.LoadInt32(&slot.state) == slotClaimed {
			runtime.Gosched()
		}
		if atomic.LoadUint64(&slot.hashLo) == h.Lo && atomic.LoadUint32(&slot.hashHi) == h.Hi {
			return false // already present
		}
	}
	return false
}

// Len returns the approximate number of entries present.
func (t *TranspositionTable) Len() int32 { return atomic.LoadInt32(&t.count) }

// reset clears the table for a new search.
func (t *TranspositionTable) reset() {
	for i := range t.slots {
		t.slots[i] = tSlot{}
	}
	atomic.StoreInt32(&t.count, 0)
}
