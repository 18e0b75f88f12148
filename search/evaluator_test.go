package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvaluator struct {
	minBatch, maxBatch int
	callFn             func(planes [][]float32) ([]EvalResult, error)
	calls              int
}

func (s *stubEvaluator) Evaluate(planes [][]float32) ([]EvalResult, error) {
	s.calls++
	return s.callFn(planes)
}
func (s *stubEvaluator) InputLayout() InputDtype { return DtypeFloat32 }
func (s *stubEvaluator) MaxBatchSize() int       { return s.maxBatch }
func (s *stubEvaluator) MinBatchSize() int       { return s.minBatch }

func uniformResults(n int) []EvalResult {
	out := make([]EvalResult, n)
	for i := range out {
		out[i] = EvalResult{WinProb: 0.6, LossProb: 0.4}
	}
	return out
}

func TestGatewayEvaluatePadsToMinBatchSize(t *testing.T) {
	var gotLen int
	ev := &stubEvaluator{
		minBatch: 8, maxBatch: 64,
		callFn: func(planes [][]float32) ([]EvalResult, error) {
			gotLen = len(planes)
			return uniformResults(len(planes)), nil
		},
	}
	gw := NewGateway(ev)

	batch := Batch{
		Positions:   []PositionOps{fakePos{id: 1}},
		InputPlanes: [][]float32{{1, 2, 3}},
	}
	results, err := gw.Evaluate(batch)
	require.NoError(t, err)
	assert.Equal(t, 8, gotLen, "evaluator should see a padded batch")
	assert.Len(t, results, 1, "caller should only see the real results")
}

func TestGatewayEvaluateRejectsOversizedBatch(t *testing.T) {
	ev := &stubEvaluator{minBatch: 1, maxBatch: 2, callFn: func(p [][]float32) ([]EvalResult, error) {
		return uniformResults(len(p)), nil
	}}
	gw := NewGateway(ev)

	batch := Batch{InputPlanes: [][]float32{{1}, {2}, {3}}}
	_, err := gw.Evaluate(batch)
	require.Error(t, err)
}

func TestGatewayEvaluatePropagatesEvaluatorError(t *testing.T) {
	ev := &stubEvaluator{minBatch: 1, maxBatch: 8, callFn: func(p [][]float32) ([]EvalResult, error) {
		return nil, errors.New("boom")
	}}
	gw := NewGateway(ev)

	batch := Batch{InputPlanes: [][]float32{{1}}}
	_, err := gw.Evaluate(batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEvaluatorFailure)
}

func TestGatewayEvaluateRejectsNaNResult(t *testing.T) {
	ev := &stubEvaluator{minBatch: 1, maxBatch: 8, callFn: func(p [][]float32) ([]EvalResult, error) {
		nan := float32(0)
		nan = nan / nan
		return []EvalResult{{WinProb: nan, LossProb: 0.1}}, nil
	}}
	gw := NewGateway(ev)

	batch := Batch{InputPlanes: [][]float32{{1}}}
	_, err := gw.Evaluate(batch)
	require.Error(t, err)
}

func TestGatewayPicksLeastLoadedRoute(t *testing.T) {
	busy := &stubEvaluator{minBatch: 1, maxBatch: 8, callFn: func(p [][]float32) ([]EvalResult, error) {
		return uniformResults(len(p)), nil
	}}
	idle := &stubEvaluator{minBatch: 1, maxBatch: 8, callFn: func(p [][]float32) ([]EvalResult, error) {
		return uniformResults(len(p)), nil
	}}
	gw := NewGateway(busy, idle)
	gw.routes[0].inFlight = 5 // simulate route 0 being busy

	route := gw.pickRoute()
	assert.Same(t, idle, route.evaluator)
}

func TestGatewayEvaluateRetriesSplitOnFailure(t *testing.T) {
	var callSizes []int
	ev := &stubEvaluator{
		minBatch: 1, maxBatch: 8,
		callFn: func(p [][]float32) ([]EvalResult, error) {
			callSizes = append(callSizes, len(p))
			if len(p) == 4 {
				return nil, errors.New("boom")
			}
			return uniformResults(len(p)), nil
		},
	}
	gw := NewGateway(ev)

	batch := Batch{InputPlanes: [][]float32{{1}, {2}, {3}, {4}}}
	results, err := gw.Evaluate(batch)
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.Equal(t, []int{4, 2, 2}, callSizes, "first call fails whole, retry splits into two halves")
	assert.False(t, gw.routes[0].isUnhealthy(), "a route recovers once the retry succeeds")
}

func TestGatewayEvaluateSecondFailureStopsSearch(t *testing.T) {
	ev := &stubEvaluator{
		minBatch: 1, maxBatch: 8,
		callFn: func(p [][]float32) ([]EvalResult, error) {
			return nil, errors.New("boom")
		},
	}
	gw := NewGateway(ev)

	batch := Batch{InputPlanes: [][]float32{{1}, {2}, {3}, {4}}}
	_, err := gw.Evaluate(batch)
	require.Error(t, err, "a failure on the retried halves must propagate rather than retry again")
	assert.True(t, gw.routes[0].isUnhealthy())
}

func TestGatewayPickRouteFallsBackToUnhealthyWhenAllUnhealthy(t *testing.T) {
	ev := &stubEvaluator{minBatch: 1, maxBatch: 8}
	gw := NewGateway(ev)
	gw.routes[0].markUnhealthy()

	route := gw.pickRoute()
	assert.Same(t, ev, route.evaluator, "must still return a route rather than stall when every route is unhealthy")
}

func TestGatewayStatsReportsPerRouteCalls(t *testing.T) {
	ev := &stubEvaluator{minBatch: 1, maxBatch: 8, callFn: func(p [][]float32) ([]EvalResult, error) {
		return uniformResults(len(p)), nil
	}}
	gw := NewGateway(ev)
	_, err := gw.Evaluate(Batch{InputPlanes: [][]float32{{1}}})
	require.NoError(t, err)

	stats := gw.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Calls)
}
