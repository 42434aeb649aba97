package rules

import (
	"strings"

	"github.com/park285/netchess/internal/board"
)

// LegalMovesFrom lists every legal destination for the piece on from.
func LegalMovesFrom(pos Position, from board.Square, mover board.Color) []board.Square {
	var out []board.Square
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			to := board.Square{Row: r, Col: c}
			if IsLegal(pos, from, to, mover) {
				out = append(out, to)
			}
		}
	}
	return out
}

// LegalMoves lists every legal move for mover.
func LegalMoves(pos Position, mover board.Color) []Move {
	var out []Move
	pos.Board.Each(func(from board.Square, p *board.Piece) {
		if p.Color != mover {
			return
		}
		for _, to := range LegalMovesFrom(pos, from, mover) {
			out = append(out, Move{From: from, To: to})
		}
	})
	return out
}

// HasLegalMove reports whether mover has at least one legal move.
func HasLegalMove(pos Position, mover board.Color) bool {
	return hasLegalMove(pos, mover, false)
}

func hasLegalMove(pos Position, mover board.Color, kingOnly bool) bool {
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			from := board.Square{Row: r, Col: c}
			p := pos.Board.At(from)
			if p == nil || p.Color != mover || (kingOnly && p.Type != board.King) {
				continue
			}
			for tr := 0; tr < board.Size; tr++ {
				for tc := 0; tc < board.Size; tc++ {
					if IsLegal(pos, from, board.Square{Row: tr, Col: tc}, mover) {
						return true
					}
				}
			}
		}
	}
	return false
}

// IsCheckmate reports whether color is in check with no move that relieves it.
// Against a double check only king moves are considered.
func IsCheckmate(pos Position, color board.Color) bool {
	checkers := Checkers(pos.Board, color)
	if len(checkers) == 0 {
		return false
	}
	if hasLegalMove(pos, color, true) {
		return false
	}
	if len(checkers) > 1 {
		return true
	}
	return !hasLegalMove(pos, color, false)
}

// IsStalemate reports whether color is not in check and has no legal move.
func IsStalemate(pos Position, color board.Color) bool {
	return !InCheck(pos.Board, color) && !HasLegalMove(pos, color)
}

// InsufficientMaterial reports positions where neither side can mate:
// bare kings, a single minor piece, or bishops all on one square colour.
func InsufficientMaterial(b *board.Board) bool {
	var minors []board.Square
	bishopsOnly := true
	blocked := false
	b.Each(func(sq board.Square, p *board.Piece) {
		switch p.Type {
		case board.King:
		case board.Bishop:
			minors = append(minors, sq)
		case board.Knight:
			minors = append(minors, sq)
			bishopsOnly = false
		default:
			blocked = true
		}
	})
	if blocked {
		return false
	}
	if len(minors) <= 1 {
		return true
	}
	if !bishopsOnly {
		return false
	}
	shade := (minors[0].Row + minors[0].Col) % 2
	for _, sq := range minors[1:] {
		if (sq.Row+sq.Col)%2 != shade {
			return false
		}
	}
	return true
}

// PositionKey identifies a position for repetition counting: placement, side
// to move, castling rights and a capturable en-passant square.
func PositionKey(pos Position, toMove board.Color) string {
	var sb strings.Builder
	sb.WriteString(pos.Board.Placement())
	sb.WriteByte(' ')
	if toMove == board.White {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}
	sb.WriteByte(' ')
	sb.WriteString(pos.Rights.FEN())
	sb.WriteByte(' ')
	if ep := capturableEnPassant(pos, toMove); ep != nil {
		sb.WriteString(ep.String())
	} else {
		sb.WriteByte('-')
	}
	return sb.String()
}

func capturableEnPassant(pos Position, toMove board.Color) *board.Square {
	if pos.EnPassant == nil {
		return nil
	}
	ep := *pos.EnPassant
	from := ep.Row - board.PawnDirection(toMove)
	for _, dc := range []int{-1, 1} {
		sq := board.Square{Row: from, Col: ep.Col + dc}
		if p := pos.Board.At(sq); p != nil && p.Type == board.Pawn && p.Color == toMove && IsLegal(pos, sq, ep, toMove) {
			return &ep
		}
	}
	return nil
}
