package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompressPolicyTopKAndResidual(t *testing.T) {
	moves := make([]EncodedMove, 20)
	probs := make([]float32, 20)
	for i := range moves {
		moves[i] = EncodedMove(i)
		probs[i] = 0 // filled below
	}
	// Concentrate mass on the first 4 moves, spread a small remainder
	// across the rest.
	probs[0], probs[1], probs[2], probs[3] = 0.4, 0.3, 0.2, 0.05
	for i := 4; i < 20; i++ {
		probs[i] = 0.05 / 16
	}

	cp := CompressPolicy(moves, probs)

	assert.InDelta(t, float32(0.4), cp.Prior(EncodedMove(0)), 1e-3)
	assert.InDelta(t, float32(0.3), cp.Prior(EncodedMove(1)), 1e-3)

	// A move outside the top-16 falls back to the uniform residual.
	residual := cp.Prior(EncodedMove(19))
	assert.Greater(t, residual, float32(0))
	assert.Equal(t, residual, cp.ResidualPrior())
}

func TestCompressPolicyFewerThanTopK(t *testing.T) {
	moves := []EncodedMove{0, 1, 2}
	probs := []float32{0.5, 0.3, 0.2}

	cp := CompressPolicy(moves, probs)
	assert.Equal(t, float32(0), cp.ResidualPrior())
	assert.InDelta(t, float32(0.5), cp.Prior(0), 1e-3)
	assert.InDelta(t, float32(0.2), cp.Prior(2), 1e-3)
}

func TestCompressPolicyNormalizesUnnormalizedInput(t *testing.T) {
	moves := []EncodedMove{0, 1}
	probs := []float32{2, 2} // sums to 4, not 1
	cp := CompressPolicy(moves, probs)
	assert.InDelta(t, float32(0.5), cp.Prior(0), 1e-3)
	assert.InDelta(t, float32(0.5), cp.Prior(1), 1e-3)
}
