package search

// fakePos is a small synthetic PositionOps used to exercise the tree
// machinery (PUCT, selector, collector, backup, driver) without needing a
// real chess engine. Each position is identified by an integer id; Apply
// derives a new id deterministically so two paths reaching "the same"
// position produce equal hashes, letting tests exercise transposition and
// dedup behavior.
type fakePos struct {
	id       int64
	depth    int
	maxDepth int
	space    int
}

func newFakeRoot(space, maxDepth int) fakePos {
	return fakePos{id: 1, depth: 0, maxDepth: maxDepth, space: space}
}

func (p fakePos) ActionSpace() int { return p.space }

func (p fakePos) Hash() Hash96 { return Hash96{Lo: uint64(p.id), Hi: 0} }

func (p fakePos) LegalMoves() []EncodedMove {
	if p.depth >= p.maxDepth {
		return nil
	}
	moves := make([]EncodedMove, 0, p.space)
	for i := 0; i < p.space; i++ {
		moves = append(moves, EncodedMove(i))
	}
	return moves
}

func (p fakePos) Terminal() (TerminalStatus, bool) {
	if p.depth >= p.maxDepth {
		return DrawRepetition, true
	}
	return NotTerminal, false
}

func (p fakePos) Apply(m EncodedMove) PositionOps {
	return fakePos{
		id:       p.id*int64(p.space+1) + int64(m) + 1,
		depth:    p.depth + 1,
		maxDepth: p.maxDepth,
		space:    p.space,
	}
}

func (p fakePos) EncodePlanes() []float32 {
	planes := make([]float32, 8)
	planes[0] = float32(p.id % 7)
	return planes
}

func (p fakePos) Perspective() int8 { return 1 }

// transposingPos forces every Apply to land on the same child id regardless
// of which move produced it, so tests can exercise the transposition table
// deliberately.
type transposingPos struct {
	fakePos
	sharedChildID int64
}

func (p transposingPos) Apply(m EncodedMove) PositionOps {
	return transposingPos{
		fakePos: fakePos{
			id: p.sharedChildID, depth: p.depth + 1,
			maxDepth: p.maxDepth, space: p.space,
		},
		sharedChildID: p.sharedChildID,
	}
}

// testConfig returns a Config tuned small and deterministic for unit tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxNodes = 4096
	cfg.NumWorkerThreads = 1
	cfg.MaxBatchSize = 64
	cfg.TargetBatchSize = 8
	cfg.DirichletNoiseEpsilon = 0
	return cfg
}
