package presenter

import (
	"strings"

	"github.com/fatih/color"

	"github.com/park285/netchess/pkg/matchdto"
)

var unicodeGlyphs = map[string]map[string]string{
	"white": {"king": "♔", "queen": "♕", "rook": "♖", "bishop": "♗", "knight": "♘", "pawn": "♙"},
	"black": {"king": "♚", "queen": "♛", "rook": "♜", "bishop": "♝", "knight": "♞", "pawn": "♟"},
}

var letters = map[string]string{"king": "k", "queen": "q", "rook": "r", "bishop": "b", "knight": "n", "pawn": "p"}

// glyph returns the symbol for p: unicode when colored, otherwise a FEN
// letter (upper case for white).
func (f *Formatter) glyph(p *matchdto.Piece) string {
	if p == nil {
		if f.colored {
			return " "
		}
		return "."
	}
	if f.colored {
		if g, ok := unicodeGlyphs[p.Color][p.Type]; ok {
			return g
		}
	}
	l := letters[p.Type]
	if l == "" {
		l = "?"
	}
	if p.Color == "white" {
		return strings.ToUpper(l)
	}
	return l
}

// Board draws st as an 8x8 grid with rank and file labels. flip puts
// black at the bottom.
func (f *Formatter) Board(st *matchdto.State, flip bool) string {
	if st == nil {
		return ""
	}
	var from, to *matchdto.Square
	if n := len(st.MoveHistory); n > 0 {
		from, to = &st.MoveHistory[n-1].From, &st.MoveHistory[n-1].To
	}

	files := "  a  b  c  d  e  f  g  h"
	if flip {
		files = "  h  g  f  e  d  c  b  a"
	}
	var sb strings.Builder
	sb.WriteString(" " + files + "\n")
	for i := 0; i < 8; i++ {
		row := i
		if flip {
			row = 7 - i
		}
		rank := string(rune('8' - row))
		sb.WriteString(rank + " ")
		for j := 0; j < 8; j++ {
			col := j
			if flip {
				col = 7 - j
			}
			sb.WriteString(f.cell(st.Board[row][col], row, col, sameSquare(from, row, col) || sameSquare(to, row, col)))
		}
		sb.WriteString(" " + rank + "\n")
	}
	sb.WriteString(" " + files)
	return sb.String()
}

func (f *Formatter) cell(p *matchdto.Piece, row, col int, highlight bool) string {
	text := " " + f.glyph(p) + " "
	bg := f.dark
	switch {
	case highlight:
		bg = f.lastMove
	case (row+col)%2 == 0:
		bg = f.light
	}
	return bg.Sprint(text)
}

func sameSquare(sq *matchdto.Square, row, col int) bool {
	return sq != nil && sq.Row == row && sq.Col == col
}

func newColor(colored bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if colored {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}
