package search

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeRecordAccumulateAndQ(t *testing.T) {
	var n NodeRecord
	n.reset(0)

	n.accumulate(1, 5)
	n.accumulate(-1, 3)
	n.accumulate(1, 4)

	assert.Equal(t, uint32(3), n.Visits())
	assert.InDelta(t, float32(1.0/3.0), n.Q(), 1e-6)
	assert.InDelta(t, float32(4.0), n.MovesLeft(), 1e-6)
}

func TestNodeRecordVirtualLoss(t *testing.T) {
	var n NodeRecord
	n.reset(0)
	n.accumulate(1, 0)

	n.AddVirtualLoss(1)
	q, effN := n.EffectiveQN()
	assert.Equal(t, float32(2), effN)
	assert.InDelta(t, float32(0), q, 1e-6) // (1 - 1) / 2

	n.AddVirtualLoss(-1)
	q, effN = n.EffectiveQN()
	assert.Equal(t, float32(1), effN)
	assert.InDelta(t, float32(1), q, 1e-6)
}

func TestNodeRecordTerminalMonotonic(t *testing.T) {
	var n NodeRecord
	n.reset(0)

	assert.True(t, n.SetTerminal(Checkmate))
	assert.False(t, n.SetTerminal(DrawStalemate))
	assert.Equal(t, Checkmate, n.Terminal())
}

func TestNodeRecordExpansionCAS(t *testing.T) {
	var n NodeRecord
	n.reset(0)

	assert.False(t, n.IsExpanded())

	const workers = 16
	var wg sync.WaitGroup
	wins := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wins[i] = n.tryClaimExpansion()
		}(i)
	}
	wg.Wait()

	winCount := 0
	for _, w := range wins {
		if w {
			winCount++
		}
	}
	require.Equal(t, 1, winCount, "exactly one goroutine should win the expansion CAS")

	n.publishExpansion(RowIdx{shard: 0, offset: 0}, 3)
	assert.True(t, n.IsExpanded())
	row, num, ok := n.ChildRowLoc()
	assert.True(t, ok)
	assert.Equal(t, 3, num)
	assert.Equal(t, RowIdx{shard: 0, offset: 0}, row)
}

func TestNodeRecordReset(t *testing.T) {
	var n NodeRecord
	n.reset(0)
	n.accumulate(1, 2)
	n.AddVirtualLoss(2)
	n.SetTerminal(Checkmate)
	n.tryClaimExpansion()
	n.publishExpansion(RowIdx{shard: 1, offset: 2}, 5)

	n.reset(7)

	assert.Equal(t, NodeIdx(7), n.idx)
	assert.Equal(t, uint32(0), n.Visits())
	assert.Equal(t, int32(0), n.VirtualLoss())
	assert.Equal(t, NotTerminal, n.Terminal())
	assert.False(t, n.IsExpanded())
	assert.Equal(t, float32(0), n.Q())
}
