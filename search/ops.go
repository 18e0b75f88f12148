package search

// EncodedMove is a move encoded into the evaluator's action space, the same
// representation used for policy vector indices and child-row entries.
type EncodedMove uint16

// Hash96 is a 96-bit position hash: 64 low bits plus 32 high bits, used to
// key the transposition index. Splitting the hash this way keeps node
// records and transposition slots fixed-width while cutting collision odds
// far below what a bare 64-bit hash gives.
type Hash96 struct {
	Lo uint64
	Hi uint32
}

// TerminalStatus tags why a position has no further play.
type TerminalStatus int32

const (
	NotTerminal TerminalStatus = iota
	Checkmate
	Draw50Move
	DrawRepetition
	DrawInsufficientMaterial
	DrawStalemate
	TablebaseWin
	TablebaseLoss
	TablebaseDraw
)

func (s TerminalStatus) String() string {
	switch s {
	case NotTerminal:
		return "NotTerminal"
	case Checkmate:
		return "Checkmate"
	case Draw50Move:
		return "Draw50Move"
	case DrawRepetition:
		return "DrawRepetition"
	case DrawInsufficientMaterial:
		return "DrawInsufficientMaterial"
	case DrawStalemate:
		return "DrawStalemate"
	case TablebaseWin:
		return "TablebaseWin"
	case TablebaseLoss:
		return "TablebaseLoss"
	case TablebaseDraw:
		return "TablebaseDraw"
	}
	return "UNKNOWN"
}

// IsDecisive reports whether the status has a fixed value of +1/-1 rather
// than a draw value of 0.
func (s TerminalStatus) IsDecisive() bool {
	return s == Checkmate || s == TablebaseWin || s == TablebaseLoss
}

// PositionOps is the external collaborator supplying chess rules, position
// representation and encoding. The search core never inspects a board
// directly; everything it needs comes through this interface.
type PositionOps interface {
	// ActionSpace returns the size of the encoded-move space.
	ActionSpace() int

	// Hash returns the Zobrist-like hash of the current position.
	Hash() Hash96

	// LegalMoves enumerates legal moves from the current position, encoded.
	LegalMoves() []EncodedMove

	// Terminal reports whether the position has no legal continuation, and
	// why. ok is false when the position is not terminal.
	Terminal() (status TerminalStatus, ok bool)

	// Apply returns the position resulting from playing m. The receiver is
	// left unmodified; PositionOps values are treated as immutable once
	// produced, via clone-on-Apply.
	Apply(m EncodedMove) PositionOps

	// EncodePlanes encodes the position into the evaluator's input layout.
	EncodePlanes() []float32

	// Perspective returns +1 or -1 for the side to move. The search core
	// does not call it; it always treats Q from the side-to-move perspective.
	Perspective() int8
}
