package boardpng

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/Layr-Labs/zugzwang/internal/engine"
)

func TestRenderInitialPosition(t *testing.T) {
	r := NewRenderer()
	data, err := r.RenderPNG(engine.Initial())
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	want := boardSize + 2*margin
	if b := img.Bounds(); b.Dx() != want || b.Dy() != want {
		t.Fatalf("bounds = %v, want %dx%d", b, want, want)
	}
}

func TestRenderNilState(t *testing.T) {
	if _, err := NewRenderer().RenderPNG(nil); err == nil {
		t.Fatalf("expected error for nil state")
	}
}

func TestRenderAfterMove(t *testing.T) {
	s := engine.Initial()
	ns, _, err := engine.MakeMove(s, engine.Square{Row: 6, Col: 4}, engine.Square{Row: 4, Col: 4}, nil)
	if err != nil {
		t.Fatalf("MakeMove: %v", err)
	}
	if _, err := NewRenderer().RenderPNG(ns); err != nil {
		t.Fatalf("RenderPNG after move: %v", err)
	}
}

func TestEveryPieceGlyphParses(t *testing.T) {
	for _, pt := range []engine.PieceType{engine.King, engine.Queen, engine.Rook, engine.Bishop, engine.Knight, engine.Pawn} {
		for _, c := range []engine.Color{engine.White, engine.Black} {
			if _, err := renderPieceImage(engine.Piece{Type: pt, Color: c}, squareSize); err != nil {
				t.Fatalf("glyph %s%s: %v", c, pt, err)
			}
		}
	}
}
