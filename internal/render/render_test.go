package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/netchess/internal/board"
	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/pkg/matchdto"
)

func startState(t *testing.T) *matchdto.State {
	t.Helper()
	m := match.New("R1", 0)
	_, err := m.AddPlayer("w", "alice", board.White)
	require.NoError(t, err)
	_, err = m.AddPlayer("b", "bob", board.Black)
	require.NoError(t, err)
	return m.Snapshot()
}

func sameRGB(a color.Color, b color.Color) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	return ar == br && ag == bg && ab == bb
}

func foreignPixels(img *image.RGBA, rect image.Rectangle, base color.Color) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if !sameRGB(img.At(x, y), base) {
				n++
			}
		}
	}
	return n
}

func center(r image.Rectangle) image.Point {
	return image.Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

func TestPNGDecodes(t *testing.T) {
	data, err := PNG(context.Background(), startState(t), Options{})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Size(), img.Bounds().Size())
}

func TestEmptyAndOccupiedSquares(t *testing.T) {
	img, err := Image(context.Background(), startState(t), Options{})
	require.NoError(t, err)
	l := layout{origin: image.Point{X: margin, Y: headerHeight + margin}}

	e4 := l.rect(4, 4)
	c := center(e4)
	assert.True(t, sameRGB(img.At(c.X, c.Y), lightSquare))
	assert.Zero(t, foreignPixels(img, e4, squareColor(4, 4)))

	e1 := l.rect(7, 4)
	assert.Greater(t, foreignPixels(img, e1, squareColor(7, 4)), 100)
}

func TestFlipMovesPieces(t *testing.T) {
	st := startState(t)
	img, err := Image(context.Background(), st, Options{Flip: true})
	require.NoError(t, err)
	unflipped := layout{origin: image.Point{X: margin, Y: headerHeight + margin}}

	// with the board flipped the top-left square holds white's h1 rook
	topLeft := unflipped.rect(0, 0)
	assert.Greater(t, foreignPixels(img, topLeft, lightSquare), 100)
	flipped := layout{origin: unflipped.origin, flip: true}
	assert.Equal(t, topLeft, flipped.rect(7, 7))
}

func TestLastMoveAndCheckHighlight(t *testing.T) {
	m := match.New("R2", 0)
	_, err := m.AddPlayer("w", "", board.White)
	require.NoError(t, err)
	_, err = m.AddPlayer("b", "", board.Black)
	require.NoError(t, err)
	for _, mv := range [][2]string{{"f2", "f3"}, {"e7", "e5"}, {"g2", "g4"}, {"d8", "h4"}} {
		from, _ := board.ParseSquare(mv[0])
		to, _ := board.ParseSquare(mv[1])
		id := "w"
		if m.Snapshot().CurrentPlayer == "black" {
			id = "b"
		}
		_, err := m.Move(id, from, to, "")
		require.NoError(t, err)
	}
	st := m.Snapshot()
	require.Equal(t, "checkmate", st.Status)

	img, err := Image(context.Background(), st, Options{})
	require.NoError(t, err)
	l := layout{origin: image.Point{X: margin, Y: headerHeight + margin}}

	d8 := l.rect(0, 3)
	corner := img.At(d8.Min.X+1, d8.Min.Y+1)
	assert.False(t, sameRGB(corner, squareColor(0, 3)), "last-move origin is highlighted")

	e1 := l.rect(7, 4)
	corner = img.At(e1.Min.X+1, e1.Min.Y+1)
	assert.False(t, sameRGB(corner, squareColor(7, 4)), "checked king square is highlighted")

	plain, err := Image(context.Background(), st, Options{NoHighlight: true})
	require.NoError(t, err)
	assert.True(t, sameRGB(plain.At(d8.Min.X+1, d8.Min.Y+1), squareColor(0, 3)))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := PNG(ctx, startState(t), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEveryGlyphRasterizes(t *testing.T) {
	for _, pt := range []board.PieceType{board.Pawn, board.Knight, board.Bishop, board.Rook, board.Queen, board.King} {
		for _, c := range []board.Color{board.White, board.Black} {
			img, err := pieceImage(board.Piece{Type: pt, Color: c}, 32)
			require.NoError(t, err, "%s %s", c, pt)
			assert.Equal(t, 32, img.Bounds().Dx())
		}
	}
	_, err := pieceSVG(board.Piece{Type: "dragon", Color: board.White})
	assert.Error(t, err)
}

func TestHeadline(t *testing.T) {
	st := startState(t)
	assert.Equal(t, "alice vs bob  |  white to move", headline(st))
	st.GameOver = true
	st.TerminationReason = "draw"
	st.DrawKind = "threefold_repetition"
	assert.Equal(t, "alice vs bob  |  threefold repetition", headline(st))
}
