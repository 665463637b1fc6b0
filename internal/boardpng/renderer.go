package boardpng

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Layr-Labs/zugzwang/internal/engine"
)

const (
	squareSize = 64
	margin     = 24
	boardSize  = squareSize * 8
)

var (
	lightSquare = color.RGBA{R: 0xee, G: 0xe3, B: 0xc9, A: 0xff}
	darkSquare  = color.RGBA{R: 0x8d, G: 0x6e, B: 0x4d, A: 0xff}
	background  = color.RGBA{R: 0x2b, G: 0x2b, B: 0x2b, A: 0xff}
	labelColor  = color.RGBA{R: 0xd8, G: 0xd8, B: 0xd8, A: 0xff}
	lastFrom    = color.RGBA{R: 0xd9, G: 0xc3, B: 0x4a, A: 0x78}
)

// Renderer draws a chess position as a PNG, White at the bottom. The
// last move's squares are tinted.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// RenderPNG renders the board of s.
func (r *Renderer) RenderPNG(s *engine.State) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("chess state is nil")
	}

	total := boardSize + 2*margin
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	origin := image.Point{X: margin, Y: margin}
	drawSquares(img, origin)
	drawLastMove(img, origin, s)
	if err := drawPieces(img, origin, s); err != nil {
		return nil, err
	}
	drawCoordinates(img, origin)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func squareRect(origin image.Point, row, col int) image.Rectangle {
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawSquares(img *image.RGBA, origin image.Point) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			c := lightSquare
			if (row+col)%2 == 1 {
				c = darkSquare
			}
			draw.Draw(img, squareRect(origin, row, col), image.NewUniform(c), image.Point{}, draw.Src)
		}
	}
}

func drawLastMove(img *image.RGBA, origin image.Point, s *engine.State) {
	if len(s.MoveHistory) == 0 {
		return
	}
	mv := s.MoveHistory[len(s.MoveHistory)-1]
	for _, sq := range []engine.Square{mv.From, mv.To} {
		draw.Draw(img, squareRect(origin, sq.Row, sq.Col), image.NewUniform(lastFrom), image.Point{}, draw.Over)
	}
}

func drawPieces(img *image.RGBA, origin image.Point, s *engine.State) error {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			p := s.Board[row][col]
			if p == nil {
				continue
			}
			glyph, err := renderPieceImage(*p, squareSize)
			if err != nil {
				return err
			}
			draw.Draw(img, squareRect(origin, row, col), glyph, image.Point{}, draw.Over)
		}
	}
	return nil
}

// drawCoordinates labels files a-h and ranks 8-1 around the board. Row 0
// holds Black's back rank, so it is rank 8.
func drawCoordinates(img *image.RGBA, origin image.Point) {
	face := basicfont.Face7x13
	for col := 0; col < 8; col++ {
		label := string(rune('a' + col))
		x := origin.X + col*squareSize + squareSize/2 - 3
		y := origin.Y + boardSize + margin/2 + 4
		drawText(img, face, label, x, y)
	}
	for row := 0; row < 8; row++ {
		label := string(rune('8' - row))
		x := origin.X - margin/2 - 3
		y := origin.Y + row*squareSize + squareSize/2 + 4
		drawText(img, face, label, x, y)
	}
}

func drawText(img *image.RGBA, face font.Face, text string, x, y int) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
