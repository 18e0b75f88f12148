package main

import "github.com/ceres-search/ceres/search"

// pieceValue mirrors notnil/chess's Piece encoding order (NoPiece, then
// White/Black pawn, bishop, knight, rook, queen, king) closely enough for
// a material heuristic; the exact mapping doesn't matter for a demo since
// no real network is ever substituted in this binary's scope.
var pieceValue = [13]float32{0, 1, 3, 3, 5, 9, 0, -1, -3, -3, -5, -9, 0}

// materialEvaluator is a placeholder search.BatchedEvaluator standing in
// for a real neural network (explicitly out of scope per the engine's own
// design): it scores a position by material count and returns a uniform
// policy, just enough to drive the search loop end to end in this demo.
type materialEvaluator struct{}

func (materialEvaluator) Evaluate(planes [][]float32) ([]search.EvalResult, error) {
	out := make([]search.EvalResult, len(planes))
	for i, p := range planes {
		var material float32
		for sq := 0; sq < 64 && sq < len(p); sq++ {
			idx := int(p[sq])
			if idx >= 0 && idx < len(pieceValue) {
				material += pieceValue[idx]
			}
		}
		q := clamp(material/16, -0.95, 0.95)
		out[i] = search.EvalResult{
			WinProb:  (1 + q) / 2,
			LossProb: (1 - q) / 2,
			Policy:   nil, // uniform fallback inside search.expand
		}
	}
	return out, nil
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (materialEvaluator) InputLayout() search.InputDtype { return search.DtypeFloat32 }
func (materialEvaluator) MaxBatchSize() int              { return 1024 }
func (materialEvaluator) MinBatchSize() int              { return 1 }
