// Package rules decides move legality for the standard chess rules. All
// functions are pure: they read a Position and never mutate it.
package rules

import (
	"github.com/park285/netchess/internal/board"
)

// Position is everything legality depends on besides the side to move.
type Position struct {
	Board     *board.Board
	Rights    board.CastlingRights
	EnPassant *board.Square
}

// Move is a from/to pair.
type Move struct {
	From board.Square `json:"from"`
	To   board.Square `json:"to"`
}

// IsLegal reports whether mover may play from->to, including check safety.
func IsLegal(pos Position, from, to board.Square, mover board.Color) bool {
	return isLegal(pos, from, to, mover, false)
}

// IsShapeValid reports whether the move is geometrically permitted, ignoring
// whether it leaves the mover's king attacked.
func IsShapeValid(pos Position, from, to board.Square, mover board.Color) bool {
	return isLegal(pos, from, to, mover, true)
}

func isLegal(pos Position, from, to board.Square, mover board.Color, ignoreCheckSafety bool) bool {
	if !from.InBounds() || !to.InBounds() || from == to {
		return false
	}
	piece := pos.Board.At(from)
	if piece == nil || piece.Color != mover {
		return false
	}
	if target := pos.Board.At(to); target != nil {
		if target.Color == piece.Color {
			return false
		}
		// kings are never captured
		if target.Type == board.King {
			return false
		}
	}
	if !shapeValid(pos, from, to, piece) {
		return false
	}
	if ignoreCheckSafety {
		return true
	}
	scratch := Simulate(pos, from, to)
	return !InCheck(scratch, mover)
}

func shapeValid(pos Position, from, to board.Square, p *board.Piece) bool {
	dr, dc := to.Row-from.Row, to.Col-from.Col
	switch p.Type {
	case board.Pawn:
		return pawnValid(pos, from, to, p.Color)
	case board.Knight:
		return (abs(dr) == 1 && abs(dc) == 2) || (abs(dr) == 2 && abs(dc) == 1)
	case board.Bishop:
		return abs(dr) == abs(dc) && pathClear(pos.Board, from, to)
	case board.Rook:
		return (dr == 0 || dc == 0) && pathClear(pos.Board, from, to)
	case board.Queen:
		return (dr == 0 || dc == 0 || abs(dr) == abs(dc)) && pathClear(pos.Board, from, to)
	case board.King:
		if abs(dr) <= 1 && abs(dc) <= 1 {
			return true
		}
		if dr == 0 && abs(dc) == 2 {
			return canCastle(pos, from, to, p)
		}
		return false
	default:
		return false
	}
}

func pawnValid(pos Position, from, to board.Square, color board.Color) bool {
	dir := board.PawnDirection(color)
	dr, dc := to.Row-from.Row, to.Col-from.Col
	target := pos.Board.At(to)

	if dc == 0 {
		if dr == dir {
			return target == nil
		}
		if dr == 2*dir && from.Row == board.PawnStartRow(color) {
			mid := board.Square{Row: from.Row + dir, Col: from.Col}
			return target == nil && pos.Board.At(mid) == nil
		}
		return false
	}
	if abs(dc) != 1 || dr != dir {
		return false
	}
	if target != nil {
		return target.Color != color
	}
	if pos.EnPassant == nil || *pos.EnPassant != to {
		return false
	}
	victim := pos.Board.At(board.Square{Row: from.Row, Col: to.Col})
	return victim != nil && victim.Type == board.Pawn && victim.Color != color
}

func canCastle(pos Position, from, to board.Square, king *board.Piece) bool {
	home := board.HomeRow(king.Color)
	if king.HasMoved || from.Row != home || from.Col != 4 {
		return false
	}
	kingside := to.Col > from.Col
	rights := pos.Rights.For(king.Color)
	rookCol := 0
	if kingside {
		if !rights.Kingside {
			return false
		}
		rookCol = board.Size - 1
	} else if !rights.Queenside {
		return false
	}

	rook := pos.Board.At(board.Square{Row: home, Col: rookCol})
	if rook == nil || rook.Type != board.Rook || rook.Color != king.Color || rook.HasMoved {
		return false
	}
	lo, hi := min(from.Col, rookCol), max(from.Col, rookCol)
	for c := lo + 1; c < hi; c++ {
		if pos.Board.At(board.Square{Row: home, Col: c}) != nil {
			return false
		}
	}

	enemy := king.Color.Opponent()
	if IsSquareAttacked(pos.Board, from, enemy) {
		return false
	}
	step := 1
	if !kingside {
		step = -1
	}
	for c := from.Col + step; c != to.Col+step; c += step {
		if IsSquareAttacked(pos.Board, board.Square{Row: home, Col: c}, enemy) {
			return false
		}
	}
	return true
}

// pathClear reports whether every square strictly between from and to is empty.
// from and to must share a rank, file or diagonal.
func pathClear(b *board.Board, from, to board.Square) bool {
	sr, sc := sign(to.Row-from.Row), sign(to.Col-from.Col)
	r, c := from.Row+sr, from.Col+sc
	for r != to.Row || c != to.Col {
		if b[r][c] != nil {
			return false
		}
		r += sr
		c += sc
	}
	return true
}

// Simulate returns a scratch board with from->to applied, including the rook
// hop of castling and the removal of an en-passant victim.
func Simulate(pos Position, from, to board.Square) *board.Board {
	b := pos.Board.Clone()
	p := b.At(from)
	if p == nil {
		return b
	}
	if p.Type == board.Pawn && from.Col != to.Col && b.At(to) == nil {
		b.Set(board.Square{Row: from.Row, Col: to.Col}, nil)
	}
	if p.Type == board.King && abs(to.Col-from.Col) == 2 {
		rf, rt := CastleRookSquares(from, to)
		b.Set(rt, b.At(rf))
		b.Set(rf, nil)
	}
	b.Set(to, p)
	b.Set(from, nil)
	return b
}

// CastleRookSquares returns where the rook starts and lands for a castling king move.
func CastleRookSquares(from, to board.Square) (rookFrom, rookTo board.Square) {
	if to.Col > from.Col {
		return board.Square{Row: from.Row, Col: board.Size - 1}, board.Square{Row: from.Row, Col: to.Col - 1}
	}
	return board.Square{Row: from.Row, Col: 0}, board.Square{Row: from.Row, Col: to.Col + 1}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}
