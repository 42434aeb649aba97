package rules

import "github.com/park285/netchess/internal/board"

// Attacks reports whether the piece on from attacks target. Pawns attack
// diagonally forward whether or not target is occupied; kings attack one
// step only, so castling never counts as an attack.
func Attacks(b *board.Board, from, target board.Square) bool {
	p := b.At(from)
	if p == nil || from == target || !target.InBounds() {
		return false
	}
	dr, dc := target.Row-from.Row, target.Col-from.Col
	switch p.Type {
	case board.Pawn:
		return dr == board.PawnDirection(p.Color) && abs(dc) == 1
	case board.Knight:
		return (abs(dr) == 1 && abs(dc) == 2) || (abs(dr) == 2 && abs(dc) == 1)
	case board.Bishop:
		return abs(dr) == abs(dc) && pathClear(b, from, target)
	case board.Rook:
		return (dr == 0 || dc == 0) && pathClear(b, from, target)
	case board.Queen:
		return (dr == 0 || dc == 0 || abs(dr) == abs(dc)) && pathClear(b, from, target)
	case board.King:
		return abs(dr) <= 1 && abs(dc) <= 1
	default:
		return false
	}
}

// IsSquareAttacked reports whether any piece of color by attacks sq.
func IsSquareAttacked(b *board.Board, sq board.Square, by board.Color) bool {
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			p := b[r][c]
			if p == nil || p.Color != by {
				continue
			}
			if Attacks(b, board.Square{Row: r, Col: c}, sq) {
				return true
			}
		}
	}
	return false
}

// Checkers lists the enemy pieces attacking color's king.
func Checkers(b *board.Board, color board.Color) []board.Square {
	king, ok := b.FindKing(color)
	if !ok {
		return nil
	}
	var out []board.Square
	enemy := color.Opponent()
	b.Each(func(sq board.Square, p *board.Piece) {
		if p.Color == enemy && Attacks(b, sq, king) {
			out = append(out, sq)
		}
	})
	return out
}

// InCheck reports whether color's king is attacked.
func InCheck(b *board.Board, color board.Color) bool {
	king, ok := b.FindKing(color)
	if !ok {
		return false
	}
	return IsSquareAttacked(b, king, color.Opponent())
}
