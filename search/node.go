package search

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/chewxy/math32"
)

// NodeIdx indexes NodeStore's node arena. NilIdx marks "no node"/"not yet
// expanded".
type NodeIdx int32

const NilIdx NodeIdx = -1

func (n NodeIdx) valid() bool { return n != NilIdx }

// RowIdx addresses a child row allocated from the child-row arena.
type RowIdx struct {
	shard  int32
	offset int32
}

var NilRow = RowIdx{shard: -1, offset: -1}

func (r RowIdx) valid() bool { return r.shard >= 0 }

// spinlock is the per-node lightweight lock guarding the fields that must
// be updated together (value sum, sum-of-squares, moves-left sum). Design
// note 9/§5 permits this as long as contention stays rare, which it does
// here: only Backup ever writes these fields, and only one path touches a
// given node per in-flight backup.
type spinlock struct{ state int32 }

func (s *spinlock) Lock() {
	for !atomic.CompareAndSwapInt32(&s.state, 0, 1) {
		runtime.Gosched()
	}
}

func (s *spinlock) Unlock() { atomic.StoreInt32(&s.state, 0) }

// NodeRecord is one packed MCTS node. Fields mutated during search are
// updated via atomic RMW or under the node's spinlock; fields set once at
// allocation (parent, move, hash) are never written again and need no
// synchronization to read.
type NodeRecord struct {
	idx    NodeIdx
	parent NodeIdx
	move   EncodedMove // move from parent that produced this node
	hashLo uint64
	hashHi uint32

	firstRow    RowIdx // set once at expansion
	numChildren int32  // set once at expansion

	expanded int32 // 0 = not expanded, 1 = claimed, 2 = published (CAS gate)

	visits      uint32 // atomic
	vloss       int32  // atomic
	terminal    int32  // atomic TerminalStatus
	secondaryOK int32  // atomic bool: secondary value estimate present

	mu            spinlock
	valueSum      float32
	valueSqSum    float32
	movesLeftSum  float32
	valueUncert   float32
	policyUncert  float32
	secondaryVal  float32
}

func (n *NodeRecord) Format(s fmt.State, c rune) {
	fmt.Fprintf(s, "{Node %d parent=%d move=%v N=%d Q=%v status=%v}",
		n.idx, n.parent, n.move, n.Visits(), n.Q(), n.Terminal())
}

// Visits returns N(s,a) for this node.
func (n *NodeRecord) Visits() uint32 { return atomic.LoadUint32(&n.visits) }

// VirtualLoss returns the outstanding virtual-loss count on this node.
func (n *NodeRecord) VirtualLoss() int32 { return atomic.LoadInt32(&n.vloss) }

// AddVirtualLoss applies delta (positive on descent, negative on unwind) to
// the virtual-loss counter.
func (n *NodeRecord) AddVirtualLoss(delta int32) {
	atomic.AddInt32(&n.vloss, delta)
}

// Q returns the mean backed-up value, ignoring virtual loss.
func (n *NodeRecord) Q() float32 {
	n.mu.Lock()
	v := n.valueSum
	visits := n.visits
	n.mu.Unlock()
	if visits == 0 {
		return 0
	}
	return v / float32(visits)
}

// EffectiveQN returns the PUCT-effective (Q, N) pair with virtual loss
// folded in: each outstanding virtual loss adds one phantom visit valued
// at -1 for the node's own perspective.
func (n *NodeRecord) EffectiveQN() (q float32, effN float32) {
	n.mu.Lock()
	sum := n.valueSum
	visits := n.visits
	n.mu.Unlock()
	vl := float32(n.VirtualLoss())
	effN = float32(visits) + vl
	if effN == 0 {
		return 0, 0
	}
	return (sum - vl) / effN, effN
}

// Terminal returns the node's terminal status.
func (n *NodeRecord) Terminal() TerminalStatus {
	return TerminalStatus(atomic.LoadInt32(&n.terminal))
}

// SetTerminal sets the terminal status once; returns false if a terminal
// status was already set (the same one or another), so terminal status only
// ever moves from
// NotTerminal to a fixed value, never flips.
func (n *NodeRecord) SetTerminal(status TerminalStatus) bool {
	return atomic.CompareAndSwapInt32(&n.terminal, int32(NotTerminal), int32(status))
}

// IsExpanded reports whether the child row has been published.
func (n *NodeRecord) IsExpanded() bool {
	return atomic.LoadInt32(&n.expanded) == 2
}

// tryClaimExpansion attempts to become the sole expander of this node;
// returns true exactly once per node. A CAS race loser gets false;
// BackupEngine.expand then returns at once, without waiting for the winner
// to publish the child row.
func (n *NodeRecord) tryClaimExpansion() bool {
	return atomic.CompareAndSwapInt32(&n.expanded, 0, 1)
}

// publishExpansion records the child row and releases waiting selectors.
func (n *NodeRecord) publishExpansion(row RowIdx, numChildren int) {
	n.firstRow = row
	atomic.StoreInt32(&n.numChildren, int32(numChildren))
	atomic.StoreInt32(&n.expanded, 2)
}

// ChildRowLoc returns the published child row and its child count, or
// (NilRow, 0, false) if the node has not been expanded (or is a leaf
// awaiting expansion).
func (n *NodeRecord) ChildRowLoc() (RowIdx, int, bool) {
	if !n.IsExpanded() {
		return NilRow, 0, false
	}
	return n.firstRow, int(atomic.LoadInt32(&n.numChildren)), true
}

// accumulate folds one backed-up value into the running sum/sum-of-squares
// and increments N as a single atomic-together update.
func (n *NodeRecord) accumulate(v float32, movesLeft float32) {
	n.mu.Lock()
	n.valueSum += v
	n.valueSqSum += v * v
	n.movesLeftSum += movesLeft
	atomic.AddUint32(&n.visits, 1)
	n.mu.Unlock()
}

// setUncertainty records value/policy uncertainty produced by the
// evaluator for a freshly expanded node.
func (n *NodeRecord) setUncertainty(valueU, policyU float32) {
	n.mu.Lock()
	n.valueUncert = valueU
	n.policyUncert = policyU
	n.mu.Unlock()
}

// setSecondaryValue records the optional secondary value head.
func (n *NodeRecord) setSecondaryValue(v float32) {
	n.mu.Lock()
	n.secondaryVal = v
	n.mu.Unlock()
	atomic.StoreInt32(&n.secondaryOK, 1)
}

// SecondaryValue returns the optional secondary value estimate, if any.
func (n *NodeRecord) SecondaryValue() (float32, bool) {
	if atomic.LoadInt32(&n.secondaryOK) == 0 {
		return 0, false
	}
	n.mu.Lock()
	v := n.secondaryVal
	n.mu.Unlock()
	return v, true
}

// Uncertainty returns the value and policy uncertainty recorded at
// expansion time.
func (n *NodeRecord) Uncertainty() (valueU, policyU float32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.valueUncert, n.policyUncert
}

// MovesLeft returns the mean moves-left estimate backed up through this
// node.
func (n *NodeRecord) MovesLeft() float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.visits == 0 {
		return 0
	}
	return n.movesLeftSum / float32(n.visits)
}

// reset clears a node's fields. AllocNode calls it on the slot it hands
// out, before the index is visible to any other caller, and
// NodeStore.Reset calls it for every slot.
func (n *NodeRecord) reset(idx NodeIdx) {
	n.idx = idx
	n.parent = NilIdx
	n.move = 0
	n.hashLo, n.hashHi = 0, 0
	n.firstRow = NilRow
	n.numChildren = 0
	n.expanded = 0
	n.visits = 0
	n.vloss = 0
	n.terminal = int32(NotTerminal)
	n.secondaryOK = 0
	n.valueSum, n.valueSqSum, n.movesLeftSum = 0, 0, 0
	n.valueUncert, n.policyUncert, n.secondaryVal = 0, 0, 0
}

// stdev returns the sample standard deviation of backed-up value, a cheap
// proxy for value uncertainty distinct from the evaluator-reported one.
func (n *NodeRecord) stdev() float32 {
	n.mu.Lock()
	sum, sq, visits := n.valueSum, n.valueSqSum, n.visits
	n.mu.Unlock()
	if visits < 2 {
		return 0
	}
	mean := sum / float32(visits)
	variance := sq/float32(visits) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math32.Sqrt(variance)
}
