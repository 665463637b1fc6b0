package boardpng

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/Layr-Labs/zugzwang/internal/engine"
)

// Stylized piece silhouettes in a 64x64 viewBox, polygon-only path data.
var piecePaths = map[engine.PieceType]string{
	engine.Pawn:   "M32 10 L40 22 L36 34 L28 34 L24 22 Z M20 52 L44 52 L37 36 L27 36 Z",
	engine.Rook:   "M18 52 L46 52 L46 44 L40 44 L40 20 L44 20 L44 10 L38 10 L38 16 L34 16 L34 10 L30 10 L30 16 L26 16 L26 10 L20 10 L20 20 L24 20 L24 44 L18 44 Z",
	engine.Knight: "M20 52 L46 52 L46 44 L38 40 L42 26 L34 10 L22 18 L28 24 L22 34 L26 44 L20 44 Z",
	engine.Bishop: "M32 8 L40 24 L36 40 L28 40 L24 24 Z M20 52 L44 52 L38 42 L26 42 Z",
	engine.Queen:  "M18 42 L46 42 L50 18 L40 30 L32 12 L24 30 L14 18 Z M16 52 L48 52 L48 44 L16 44 Z",
	engine.King:   "M29 8 L35 8 L35 14 L41 14 L41 20 L35 20 L35 26 L29 26 L29 20 L23 20 L23 14 L29 14 Z M20 52 L44 52 L40 28 L24 28 Z",
}

type pieceCacheKey struct {
	piece engine.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceSVG(p engine.Piece) string {
	fill, stroke := "#1f1f1f", "#ececec"
	if p.Color == engine.White {
		fill, stroke = "#ececec", "#1f1f1f"
	}
	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64"><path d="%s" fill="%s" stroke="%s" stroke-width="2"/></svg>`,
		piecePaths[p.Type], fill, stroke,
	)
}

// renderPieceImage rasterizes one piece glyph at the requested square size,
// memoized per piece and size.
func renderPieceImage(p engine.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: p, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	icon, err := oksvg.ReadIconStream(bytes.NewReader([]byte(pieceSVG(p))))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s%s: %w", p.Color, p.Type, err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}
