// Package notation keeps a corentings/chess game in step with a match so every
// applied move gets its SAN text, and renders finished games as PGN.
package notation

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/netchess/internal/board"
)

var ErrUnknownMove = errors.New("notation: move not recognised")

// UCI renders a move in long algebraic form, e.g. "e7e8q".
func UCI(from, to board.Square, promotion board.PieceType) string {
	s := from.String() + to.String()
	if promotion != "" {
		s += strings.ToLower(promotion.Letter())
	}
	return s
}

// Line mirrors the moves of one match.
type Line struct {
	game  *nchess.Game
	moves []string
}

func NewLine() *Line {
	return &Line{game: nchess.NewGame()}
}

// Push applies a UCI move and returns its SAN.
func (l *Line) Push(uci string) (string, error) {
	pos := l.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", uci, err)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := l.game.Move(mv, nil); err != nil {
		return "", fmt.Errorf("apply %s: %w", uci, err)
	}
	l.moves = append(l.moves, uci)
	return san, nil
}

// Pop drops the last move by replaying the rest from the start position.
func (l *Line) Pop() error {
	if len(l.moves) == 0 {
		return nil
	}
	rest := l.moves[:len(l.moves)-1]
	game, err := reconstruct(rest)
	if err != nil {
		return err
	}
	l.game = game
	l.moves = append([]string(nil), rest...)
	return nil
}

func (l *Line) Reset() {
	l.game = nchess.NewGame()
	l.moves = nil
}

func (l *Line) Len() int { return len(l.moves) }

// FEN of the current position.
func (l *Line) FEN() string { return l.game.FEN() }

// Resolve interprets s as SAN ("Nf3", "exd6", "O-O", "e8=Q") in the current
// position and returns the squares it names.
func (l *Line) Resolve(s string) (from, to board.Square, promotion board.PieceType, err error) {
	mv, derr := nchess.AlgebraicNotation{}.Decode(l.game.Position(), strings.TrimSpace(s))
	if derr != nil {
		return board.Square{}, board.Square{}, "", fmt.Errorf("%w: %s", ErrUnknownMove, s)
	}
	return fromSquare(mv.S1()), fromSquare(mv.S2()), fromPieceType(mv.Promo()), nil
}

func reconstruct(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay %s: %w", mv, err)
		}
	}
	return game, nil
}

func fromSquare(sq nchess.Square) board.Square {
	n := int(sq)
	return board.Square{Row: board.Size - 1 - n/board.Size, Col: n % board.Size}
}

func fromPieceType(t nchess.PieceType) board.PieceType {
	switch t {
	case nchess.Queen:
		return board.Queen
	case nchess.Rook:
		return board.Rook
	case nchess.Bishop:
		return board.Bishop
	case nchess.Knight:
		return board.Knight
	default:
		return ""
	}
}
