// Package render draws a match snapshot as a PNG board image.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/netchess/internal/board"
	"github.com/park285/netchess/pkg/matchdto"
)

const (
	SquareSize   = 64
	margin       = 24
	headerHeight = 28
	boardPixels  = SquareSize * board.Size
)

type Options struct {
	// Flip draws the board from black's side.
	Flip bool
	// NoHighlight suppresses the last-move overlay.
	NoHighlight bool
}

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	backgroundFill = color.RGBA{28, 31, 46, 255}
	lastMoveFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	checkFill      = color.NRGBA{R: 230, G: 40, B: 40, A: 150}
	labelColor     = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	headerColor    = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
)

// Size reports the dimensions of every rendered image.
func Size() image.Point {
	return image.Point{X: boardPixels + 2*margin, Y: headerHeight + boardPixels + 2*margin}
}

// PNG renders st.
func PNG(ctx context.Context, st *matchdto.State, opts Options) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	img, err := Image(ctx, st, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Image renders st without encoding it.
func Image(ctx context.Context, st *matchdto.State, opts Options) (*image.RGBA, error) {
	sz := Size()
	img := image.NewRGBA(image.Rect(0, 0, sz.X, sz.Y))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundFill), image.Point{}, imagedraw.Src)

	origin := image.Point{X: margin, Y: headerHeight + margin}
	l := layout{origin: origin, flip: opts.Flip}

	drawSquares(img, l)
	if !opts.NoHighlight && len(st.MoveHistory) > 0 {
		last := st.MoveHistory[len(st.MoveHistory)-1]
		drawSquareOverlay(img, l.rect(last.From.Row, last.From.Col), lastMoveFill)
		drawSquareOverlay(img, l.rect(last.To.Row, last.To.Col), lastMoveFill)
	}
	if st.Status == "check" || st.Status == "checkmate" {
		if sq, ok := findKing(st, st.CurrentPlayer); ok {
			drawSquareOverlay(img, l.rect(sq.Row, sq.Col), checkFill)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := drawPieces(img, st, l); err != nil {
		return nil, err
	}
	drawCoordinates(img, l)
	drawHeader(img, headline(st))
	return img, nil
}

type layout struct {
	origin image.Point
	flip   bool
}

// rect maps a board row/col to its pixel rectangle.
func (l layout) rect(row, col int) image.Rectangle {
	if l.flip {
		row, col = board.Size-1-row, board.Size-1-col
	}
	x := l.origin.X + col*SquareSize
	y := l.origin.Y + row*SquareSize
	return image.Rect(x, y, x+SquareSize, y+SquareSize)
}

func squareColor(row, col int) color.Color {
	if (row+col)%2 == 0 {
		return lightSquare
	}
	return darkSquare
}

func drawSquares(dst *image.RGBA, l layout) {
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			imagedraw.Draw(dst, l.rect(r, c), image.NewUniform(squareColor(r, c)), image.Point{}, imagedraw.Src)
		}
	}
}

func drawSquareOverlay(dst *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(dst, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawPieces(dst *image.RGBA, st *matchdto.State, l layout) error {
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			p := st.Board[r][c]
			if p == nil {
				continue
			}
			img, err := pieceImage(board.Piece{Type: board.PieceType(p.Type), Color: board.Color(p.Color)}, SquareSize)
			if err != nil {
				return err
			}
			rect := l.rect(r, c)
			imagedraw.Draw(dst, rect, img, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

func drawCoordinates(dst *image.RGBA, l layout) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(labelColor), Face: face}
	ascent := face.Metrics().Ascent.Ceil()

	for i := 0; i < board.Size; i++ {
		rank := l.rect(i, 0)
		label := board.Square{Row: i, Col: 0}.Rank()
		drawCenteredText(drawer, label, l.origin.X-margin/2, (rank.Min.Y+rank.Max.Y)/2+ascent/2)

		file := l.rect(board.Size-1, i)
		if l.flip {
			file = l.rect(0, i)
		}
		flabel := board.Square{Row: 0, Col: i}.File()
		drawCenteredText(drawer, flabel, (file.Min.X+file.Max.X)/2, l.origin.Y+boardPixels+ascent+4)
	}
}

func drawHeader(dst *image.RGBA, text string) {
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(headerColor), Face: basicfont.Face7x13}
	drawCenteredText(drawer, text, dst.Bounds().Dx()/2, margin/2+headerHeight/2+4)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func headline(st *matchdto.State) string {
	names := fmt.Sprintf("%s vs %s", playerName(st.Players.White), playerName(st.Players.Black))
	if st.GameOver {
		if st.Winner != "" {
			return fmt.Sprintf("%s  |  %s wins by %s", names, st.Winner, st.TerminationReason)
		}
		return fmt.Sprintf("%s  |  %s", names, strings.ReplaceAll(firstNonEmpty(st.DrawKind, st.TerminationReason), "_", " "))
	}
	return fmt.Sprintf("%s  |  %s to move", names, st.CurrentPlayer)
}

func playerName(p *matchdto.PlayerInfo) string {
	if p == nil || p.Name == "" {
		return "?"
	}
	return p.Name
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func findKing(st *matchdto.State, side string) (board.Square, bool) {
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			if p := st.Board[r][c]; p != nil && p.Type == string(board.King) && p.Color == side {
				return board.Square{Row: r, Col: c}, true
			}
		}
	}
	return board.Square{}, false
}
