package text

import (
	"testing"

	"golang.org/x/image/font/gofont/goregular"
)

func newTestAtlas(t *testing.T, size int) *Atlas {
	t.Helper()
	face, err := ParseFace(goregular.TTF)
	if err != nil {
		t.Fatalf("ParseFace: %v", err)
	}
	return NewAtlas(face, size)
}

func TestParseFaceRejectsGarbage(t *testing.T) {
	if _, err := ParseFace([]byte("not a font")); err == nil {
		t.Fatal("ParseFace accepted garbage")
	}
}

func TestGlyphQuadAdvancesBaseline(t *testing.T) {
	a := newTestAtlas(t, 256)
	src, dst, next, ok := a.GetGlyphQuad('H', 32, 10)
	if !ok {
		t.Fatal("no quad for 'H'")
	}
	if next <= 10 {
		t.Errorf("next = %v, want > 10", next)
	}
	if src.W != dst.W || src.H != dst.H {
		t.Errorf("src %v and dst %v differ in size", src, dst)
	}
	if dst.Y >= 0 || dst.Y+dst.H > 1 {
		t.Errorf("'H' quad %v should sit on the baseline", dst)
	}
	if dst.X < 10 {
		t.Errorf("dst.X = %v, want at or right of the pen", dst.X)
	}
	if !a.Dirty() {
		t.Error("atlas not dirty after rasterizing")
	}

	// Covered pixels carry coverage in every channel.
	var covered bool
	img := a.Image()
	for y := int(src.Y); y < int(src.Y+src.H); y++ {
		for x := int(src.X); x < int(src.X+src.W); x++ {
			c := img.RGBAAt(x, y)
			if c.A > 0 {
				covered = true
				if c.R != c.A || c.G != c.A || c.B != c.A {
					t.Fatalf("pixel %d,%d = %v, want premultiplied white", x, y, c)
				}
			}
		}
	}
	if !covered {
		t.Error("glyph region is empty")
	}
}

func TestGlyphCache(t *testing.T) {
	a := newTestAtlas(t, 256)
	src1, _, _, _ := a.GetGlyphQuad('a', 20, 0)
	a.MarkClean()
	src2, _, _, _ := a.GetGlyphQuad('a', 20.1, 0)
	if src1 != src2 {
		t.Errorf("same quantized size rasterized twice: %v, %v", src1, src2)
	}
	if a.Dirty() {
		t.Error("cache hit dirtied the atlas")
	}
	src3, _, _, _ := a.GetGlyphQuad('a', 40, 0)
	if src3 == src1 {
		t.Error("different sizes share a region")
	}
}

func TestBlankGlyphAdvances(t *testing.T) {
	a := newTestAtlas(t, 256)
	_, _, next, ok := a.GetGlyphQuad(' ', 16, 5)
	if ok {
		t.Error("space produced a quad")
	}
	if next <= 5 {
		t.Errorf("space next = %v, want > 5", next)
	}
	if _, _, next, ok := a.GetGlyphQuad('x', 0, 5); ok || next != 5 {
		t.Errorf("zero size: next = %v, ok = %v", next, ok)
	}
}

func TestAtlasFullAndReset(t *testing.T) {
	a := newTestAtlas(t, 64)
	if _, _, _, ok := a.GetGlyphQuad('W', 200, 0); ok {
		t.Fatal("oversized glyph fit in a 64px atlas")
	}
	if !a.Full() {
		t.Error("Full not set")
	}
	v := a.Version()
	a.Reset()
	if a.Full() || a.Version() == v {
		t.Errorf("Reset: full = %v, version %d -> %d", a.Full(), v, a.Version())
	}
	if _, _, _, ok := a.GetGlyphQuad('W', 12, 0); !ok {
		t.Error("small glyph does not fit after Reset")
	}
}

func TestOutlinesSurviveReset(t *testing.T) {
	a := newTestAtlas(t, 128)
	a.GetGlyphQuad('g', 20, 0)
	a.Reset()
	a.GetGlyphQuad('g', 20, 0)
	entries, hits, misses := a.Face().OutlineCacheStats()
	if entries != 1 || misses != 1 || hits != 1 {
		t.Errorf("outline cache = %d entries, %d hits, %d misses; want 1, 1, 1", entries, hits, misses)
	}
}

func TestPacker(t *testing.T) {
	p := newPacker(10, 10, 0)
	tests := []struct {
		w, h int
		want string
		ok   bool
	}{
		{4, 3, "(0,0)-(4,3)", true},
		{4, 2, "(4,0)-(8,2)", true},
		{3, 3, "(0,3)-(3,6)", true},
		{11, 1, "(0,0)-(0,0)", false},
		{5, 5, "(0,0)-(0,0)", false},
		{0, 2, "(0,0)-(0,0)", false},
	}
	for _, tt := range tests {
		r, ok := p.alloc(tt.w, tt.h)
		if ok != tt.ok || r.String() != tt.want {
			t.Errorf("alloc(%d, %d) = %v, %v; want %s, %v", tt.w, tt.h, r, ok, tt.want, tt.ok)
		}
	}
	if got := p.utilization(); got != float64(12+8+9)/100 {
		t.Errorf("utilization = %v", got)
	}
	p.reset()
	if r, _ := p.alloc(2, 2); r.Min.Y != 0 {
		t.Errorf("alloc after reset at %v", r)
	}
}
