// Package chessfixture adapts github.com/notnil/chess to search.PositionOps,
// giving the core engine a real, rules-correct chess position to search
// against in tests and the ceres-demo binary. Grounded on game/chess.go's
// Chess struct (clone-on-Apply, Position().Hash() equality) and
// game/encoding.go's InputEncoder (piece-plane + side-to-move plane
// board encoding).
package chessfixture

import (
	"encoding/binary"

	"github.com/notnil/chess"

	"github.com/ceres-search/ceres/search"
)

// boardSquares is the number of squares on a chess board.
const boardSquares = 64

// actionSpace encodes a move as (from*64 + to); promotions beyond queen
// are not separately distinguished, which is an acceptable simplification
// for a test/demo fixture (real engines use a richer action-space
// encoding owned by the evaluator's network architecture, explicitly out
// of scope here).
const actionSpace = boardSquares * boardSquares

// Position implements search.PositionOps over a *chess.Game snapshot.
type Position struct {
	game *chess.Game
}

// FromFEN builds a Position from a FEN string.
func FromFEN(fen string) (*Position, error) {
	fn, err := chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return &Position{game: chess.NewGame(fn)}, nil
}

// NewGame builds a Position at the standard starting position.
func NewGame() *Position {
	return &Position{game: chess.NewGame()}
}

func encodeMove(m *chess.Move) search.EncodedMove {
	return search.EncodedMove(uint16(m.S1())*boardSquares + uint16(m.S2()))
}

// ActionSpace implements search.PositionOps.
func (p *Position) ActionSpace() int { return actionSpace }

// Hash implements search.PositionOps, splitting notnil/chess's 16-byte
// position hash into the 96-bit (64-low + 32-high) form the node store's
// transposition index expects.
func (p *Position) Hash() search.Hash96 {
	h := p.game.Position().Hash()
	return search.Hash96{
		Lo: binary.LittleEndian.Uint64(h[0:8]),
		Hi: binary.LittleEndian.Uint32(h[8:12]),
	}
}

// LegalMoves implements search.PositionOps.
func (p *Position) LegalMoves() []search.EncodedMove {
	valid := p.game.ValidMoves()
	out := make([]search.EncodedMove, len(valid))
	for i, m := range valid {
		out[i] = encodeMove(m)
	}
	return out
}

// Terminal implements search.PositionOps, mapping notnil/chess's Method
// enum onto search.TerminalStatus's tag set.
func (p *Position) Terminal() (search.TerminalStatus, bool) {
	outcome := p.game.Outcome()
	if outcome == chess.NoOutcome {
		return search.NotTerminal, false
	}
	switch p.game.Method() {
	case chess.Checkmate:
		return search.Checkmate, true
	case chess.Stalemate:
		return search.DrawStalemate, true
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return search.DrawRepetition, true
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return search.Draw50Move, true
	case chess.InsufficientMaterial:
		return search.DrawInsufficientMaterial, true
	default:
		if outcome == chess.Draw {
			return search.DrawRepetition, true
		}
		return search.Checkmate, true
	}
}

// Apply implements search.PositionOps. The receiver is left unmodified;
// the returned Position wraps a cloned game, matching game/chess.go's
// Clone-then-MoveStr convention.
func (p *Position) Apply(m search.EncodedMove) search.PositionOps {
	from := chess.Square(m / boardSquares)
	to := chess.Square(m % boardSquares)

	var chosen *chess.Move
	for _, cand := range p.game.ValidMoves() {
		if cand.S1() == from && cand.S2() == to {
			chosen = cand
			break
		}
	}
	if chosen == nil {
		panic("chessfixture: encoded move is not legal in this position")
	}

	next := p.game.Clone()
	if err := next.Move(chosen); err != nil {
		panic(err)
	}
	return &Position{game: next}
}

// EncodePlanes implements search.PositionOps: one 64-square plane holding
// each square's piece code (0 for NoPiece) followed by one 64-square
// side-to-move plane (1 when Black is to move), 128 values in all.
func (p *Position) EncodePlanes() []float32 {
	board := p.game.Position().Board().SquareMap()
	planes := make([]float32, boardSquares)
	for sq, piece := range board {
		if piece == chess.NoPiece {
			planes[int8(sq)] = 0
		} else {
			planes[int8(sq)] = float32(piece)
		}
	}
	turnPlane := make([]float32, boardSquares)
	turn := float32(0)
	if p.game.Position().Turn() == chess.Black {
		turn = 1
	}
	for i := range turnPlane {
		turnPlane[i] = turn
	}
	return append(planes, turnPlane...)
}

// Perspective implements search.PositionOps.
func (p *Position) Perspective() int8 {
	if p.game.Position().Turn() == chess.White {
		return 1
	}
	return -1
}

// FEN returns the position's FEN string, useful for debug snapshots and
// test assertions.
func (p *Position) FEN() string { return p.game.FEN() }

// String renders the board for debugging, mirroring game/chess.go's
// ShowBoard.
func (p *Position) String() string { return p.game.Position().Board().Draw() }
