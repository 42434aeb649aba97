package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/park285/netchess/internal/board"
)

// Glyph bodies on a 45x45 view box; {fill} and {stroke} are substituted
// per color.
var glyphs = map[board.PieceType]string{
	board.Pawn: `<circle cx="22.5" cy="13" r="4.5"/>
<circle cx="22.5" cy="21" r="5.5"/>
<polygon points="14,37 31,37 28,25 17,25"/>`,
	board.Rook: `<rect x="11" y="8" width="23" height="6"/>
<rect x="14" y="14" width="17" height="17"/>
<rect x="10" y="31" width="25" height="6"/>`,
	board.Knight: `<polygon points="13,37 34,37 33,25 30,14 25,9 21,9 12,19 13,25 19,22 16,30"/>
<circle cx="21" cy="15" r="1.5" fill="{stroke}"/>`,
	board.Bishop: `<circle cx="22.5" cy="9" r="2.5"/>
<polygon points="22.5,12 15,23 18,31 27,31 30,23"/>
<rect x="12" y="32" width="21" height="5"/>`,
	board.Queen: `<polygon points="9,25 12,12 17,22 22.5,9 28,22 33,12 36,25 32,32 13,32"/>
<circle cx="12" cy="11" r="2"/>
<circle cx="22.5" cy="8" r="2"/>
<circle cx="33" cy="11" r="2"/>
<rect x="11" y="33" width="23" height="5"/>`,
	board.King: `<rect x="21" y="4" width="3" height="10"/>
<rect x="18" y="7" width="9" height="3"/>
<polygon points="12,30 10,20 22.5,15 35,20 33,30"/>
<rect x="11" y="31" width="23" height="6"/>`,
}

func pieceSVG(p board.Piece) ([]byte, error) {
	body, ok := glyphs[p.Type]
	if !ok {
		return nil, fmt.Errorf("no glyph for %q", p.Type)
	}
	fill, stroke := "#ffffff", "#1b1b1b"
	if p.Color == board.Black {
		fill, stroke = "#2a2a2a", "#0a0a0a"
	}
	body = strings.NewReplacer("{fill}", fill, "{stroke}", stroke).Replace(body)
	var b bytes.Buffer
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">`)
	fmt.Fprintf(&b, `<g fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round">`, fill, stroke)
	b.WriteString(body)
	b.WriteString(`</g></svg>`)
	return b.Bytes(), nil
}

type pieceCacheKey struct {
	piece board.PieceType
	color board.Color
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

// pieceImage rasterizes p at size×size pixels; results are cached.
func pieceImage(p board.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: p.Type, color: p.Color, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	data, err := pieceSVG(p)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}
