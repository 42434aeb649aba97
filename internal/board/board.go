// Package board holds the 8x8 chess board model. It is pure data: the rules
// live in package rules and every mutation goes through package match.
package board

import (
	"fmt"
	"strings"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool { return c == White || c == Black }

// ParseColor accepts "white"/"w" and "black"/"b" in any case.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return "", false
	}
}

// PieceType names a chess piece kind.
type PieceType string

const (
	Pawn   PieceType = "pawn"
	Knight PieceType = "knight"
	Bishop PieceType = "bishop"
	Rook   PieceType = "rook"
	Queen  PieceType = "queen"
	King   PieceType = "king"
)

// ParsePromotion maps a promotion choice ("q", "queen", "N", ...) to a piece type.
// Only queen, rook, bishop and knight are accepted.
func ParsePromotion(s string) (PieceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "q", "queen":
		return Queen, true
	case "r", "rook":
		return Rook, true
	case "b", "bishop":
		return Bishop, true
	case "n", "knight":
		return Knight, true
	default:
		return "", false
	}
}

// Letter returns the SAN letter of the piece type; pawns have none.
func (t PieceType) Letter() string {
	switch t {
	case Knight:
		return "N"
	case Bishop:
		return "B"
	case Rook:
		return "R"
	case Queen:
		return "Q"
	case King:
		return "K"
	default:
		return ""
	}
}

// Piece is a single piece on the board.
type Piece struct {
	Type     PieceType `json:"type"`
	Color    Color     `json:"color"`
	HasMoved bool      `json:"hasMoved"`
}

// Copy returns a detached copy, or nil for nil.
func (p *Piece) Copy() *Piece {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Square addresses a board cell. Row 0 is black's back rank.
type Square struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (s Square) InBounds() bool {
	return s.Row >= 0 && s.Row < Size && s.Col >= 0 && s.Col < Size
}

// String renders the algebraic name, e.g. {6,4} -> "e2".
func (s Square) String() string {
	if !s.InBounds() {
		return fmt.Sprintf("(%d,%d)", s.Row, s.Col)
	}
	return fmt.Sprintf("%c%d", 'a'+s.Col, Size-s.Row)
}

// File returns the file letter of the square.
func (s Square) File() string { return string(rune('a' + s.Col)) }

// Rank returns the rank digit of the square.
func (s Square) Rank() string { return fmt.Sprintf("%d", Size-s.Row) }

// ParseSquare parses an algebraic square such as "e4".
func ParseSquare(s string) (Square, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if len(v) != 2 || v[0] < 'a' || v[0] > 'h' || v[1] < '1' || v[1] > '8' {
		return Square{}, fmt.Errorf("invalid square %q", s)
	}
	return Square{Row: Size - int(v[1]-'0'), Col: int(v[0] - 'a')}, nil
}

// Size is the board edge length.
const Size = 8

// Board is an 8x8 grid of optional pieces.
type Board [Size][Size]*Piece

var backRank = [Size]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// New returns the standard starting position.
func New() *Board {
	var b Board
	for c := 0; c < Size; c++ {
		b[0][c] = &Piece{Type: backRank[c], Color: Black}
		b[1][c] = &Piece{Type: Pawn, Color: Black}
		b[6][c] = &Piece{Type: Pawn, Color: White}
		b[7][c] = &Piece{Type: backRank[c], Color: White}
	}
	return &b
}

// Empty returns a board with no pieces.
func Empty() *Board { return &Board{} }

// At returns the piece on sq, or nil when empty or out of bounds.
func (b *Board) At(sq Square) *Piece {
	if !sq.InBounds() {
		return nil
	}
	return b[sq.Row][sq.Col]
}

// Set places p (possibly nil) on sq.
func (b *Board) Set(sq Square, p *Piece) {
	if sq.InBounds() {
		b[sq.Row][sq.Col] = p
	}
}

// Clone deep-copies the board; pieces are not shared.
func (b *Board) Clone() *Board {
	var cp Board
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			cp[r][c] = b[r][c].Copy()
		}
	}
	return &cp
}

// FindKing returns the square of color's king.
func (b *Board) FindKing(color Color) (Square, bool) {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if p := b[r][c]; p != nil && p.Type == King && p.Color == color {
				return Square{Row: r, Col: c}, true
			}
		}
	}
	return Square{}, false
}

// Count returns how many pieces of the given color are on the board.
func (b *Board) Count(color Color) int {
	n := 0
	b.Each(func(_ Square, p *Piece) {
		if p.Color == color {
			n++
		}
	})
	return n
}

// Each calls fn for every occupied square in row-major order.
func (b *Board) Each(fn func(sq Square, p *Piece)) {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if p := b[r][c]; p != nil {
				fn(Square{Row: r, Col: c}, p)
			}
		}
	}
}

// Equal compares placement and hasMoved flags.
func (b *Board) Equal(o *Board) bool {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			x, y := b[r][c], o[r][c]
			if (x == nil) != (y == nil) {
				return false
			}
			if x != nil && *x != *y {
				return false
			}
		}
	}
	return true
}

// HomeRow is the back rank of color.
func HomeRow(color Color) int {
	if color == White {
		return 7
	}
	return 0
}

// PawnDirection is the row delta of a forward pawn step.
func PawnDirection(color Color) int {
	if color == White {
		return -1
	}
	return 1
}

// PawnStartRow is the rank pawns of color start on.
func PawnStartRow(color Color) int {
	if color == White {
		return 6
	}
	return 1
}

// Placement renders the piece placement field of a FEN string.
func (b *Board) Placement() string {
	var sb strings.Builder
	for r := 0; r < Size; r++ {
		empty := 0
		for c := 0; c < Size; c++ {
			p := b[r][c]
			if p == nil {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteString(p.fenLetter())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r < Size-1 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

func (p *Piece) fenLetter() string {
	l := p.Type.Letter()
	if p.Type == Pawn {
		l = "P"
	}
	if p.Color == Black {
		return strings.ToLower(l)
	}
	return l
}

// ParsePlacement builds a board from the placement field of a FEN string.
// Pieces off their starting squares are marked as moved.
func ParsePlacement(s string) (*Board, error) {
	rows := strings.Split(strings.TrimSpace(s), "/")
	if len(rows) != Size {
		return nil, fmt.Errorf("placement %q: want %d ranks, got %d", s, Size, len(rows))
	}
	b := Empty()
	for r, row := range rows {
		c := 0
		for _, ch := range row {
			if ch >= '1' && ch <= '8' {
				c += int(ch - '0')
				continue
			}
			if c >= Size {
				return nil, fmt.Errorf("placement %q: rank %d overflows", s, Size-r)
			}
			p, ok := pieceFromLetter(ch)
			if !ok {
				return nil, fmt.Errorf("placement %q: unknown piece %q", s, ch)
			}
			p.HasMoved = !onStartSquare(p, Square{Row: r, Col: c})
			b[r][c] = p
			c++
		}
		if c != Size {
			return nil, fmt.Errorf("placement %q: rank %d has %d files", s, Size-r, c)
		}
	}
	return b, nil
}

func pieceFromLetter(ch rune) (*Piece, bool) {
	color := White
	if ch >= 'a' && ch <= 'z' {
		color = Black
		ch -= 'a' - 'A'
	}
	var t PieceType
	switch ch {
	case 'P':
		t = Pawn
	case 'N':
		t = Knight
	case 'B':
		t = Bishop
	case 'R':
		t = Rook
	case 'Q':
		t = Queen
	case 'K':
		t = King
	default:
		return nil, false
	}
	return &Piece{Type: t, Color: color}, true
}

func onStartSquare(p *Piece, sq Square) bool {
	if p.Type == Pawn {
		return sq.Row == PawnStartRow(p.Color)
	}
	return sq.Row == HomeRow(p.Color) && backRank[sq.Col] == p.Type
}
