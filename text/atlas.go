package text

import (
	"image"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/font/opentype"
	"golang.org/x/image/vector"

	"github.com/gogpu/canvas/geom"
)

// DefaultAtlasSize is the atlas edge length in pixels.
const DefaultAtlasSize = 1024

// sizeSteps quantizes glyph sizes to a quarter pixel.
const sizeSteps = 4

type glyphKey struct {
	r    rune
	size int
}

// glyph is a rasterized glyph. offset is the top-left of its bitmap
// relative to the pen position on the baseline, y down.
type glyph struct {
	src     image.Rectangle
	offset  geom.Vec2
	advance float32
	empty   bool
}

// Atlas caches rasterized glyphs of one Face in an RGBA image. Pixels are
// premultiplied white with the glyph coverage in every channel, so the
// textured effect tints them by the vertex color.
//
// Atlas is not safe for concurrent use.
type Atlas struct {
	face    *Face
	img     *image.RGBA
	packer  *packer
	glyphs  map[glyphKey]glyph
	ras     *vector.Rasterizer
	dirty   bool
	full    bool
	version int
}

// NewAtlas returns an empty size x size atlas for face.
func NewAtlas(face *Face, size int) *Atlas {
	if size <= 0 {
		size = DefaultAtlasSize
	}
	return &Atlas{
		face:   face,
		img:    image.NewRGBA(image.Rect(0, 0, size, size)),
		packer: newPacker(size, size, 1),
		glyphs: make(map[glyphKey]glyph),
		ras:    &vector.Rasterizer{},
	}
}

// Face returns the face the atlas rasterizes.
func (a *Atlas) Face() *Face { return a.face }

// Image returns the atlas pixels.
func (a *Atlas) Image() *image.RGBA { return a.img }

// Size returns the atlas edge length.
func (a *Atlas) Size() int { return a.img.Rect.Dx() }

// Dirty reports whether glyphs were added since MarkClean.
func (a *Atlas) Dirty() bool { return a.dirty }

// MarkClean records that the image has been uploaded.
func (a *Atlas) MarkClean() { a.dirty = false }

// Full reports whether a glyph failed to fit since the last Reset.
func (a *Atlas) Full() bool { return a.full }

// Version changes on every Reset. Quads from an older version are stale.
func (a *Atlas) Version() int { return a.version }

// Utilization returns the fraction of the atlas covered by glyphs.
func (a *Atlas) Utilization() float64 { return a.packer.utilization() }

// Reset drops every glyph and clears the image.
func (a *Atlas) Reset() {
	clear(a.glyphs)
	clear(a.img.Pix)
	a.packer.reset()
	a.dirty = true
	a.full = false
	a.version++
}

// GetGlyphQuad returns the atlas rectangle src holding r at size pixels
// per em and the rectangle dst it covers when the pen is at x = baseline
// on a baseline at y = 0. next is the pen position after r. ok is false
// when there is nothing to draw: r is blank, or the atlas is full. Blank
// glyphs still advance the pen.
func (a *Atlas) GetGlyphQuad(r rune, size, baseline float32) (src, dst geom.Rect, next float32, ok bool) {
	if size <= 0 {
		return geom.Rect{}, geom.Rect{}, baseline, false
	}
	g, err := a.glyph(r, size)
	if err != nil {
		return geom.Rect{}, geom.Rect{}, baseline, false
	}
	next = baseline + g.advance
	if g.empty {
		return geom.Rect{}, geom.Rect{}, next, false
	}
	src = geom.Rect{
		X: float32(g.src.Min.X),
		Y: float32(g.src.Min.Y),
		W: float32(g.src.Dx()),
		H: float32(g.src.Dy()),
	}
	dst = geom.Rect{X: baseline + g.offset.X, Y: g.offset.Y, W: src.W, H: src.H}
	return src, dst, next, true
}

func (a *Atlas) glyph(r rune, size float32) (glyph, error) {
	key := glyphKey{r: r, size: int(math32.Round(size * sizeSteps))}
	if g, ok := a.glyphs[key]; ok {
		return g, nil
	}
	size = float32(key.size) / sizeSteps
	gid, _ := a.face.Glyph(r)
	g, err := a.rasterize(gid, size)
	if err != nil {
		return glyph{}, err
	}
	a.glyphs[key] = g
	return g, nil
}

// rasterize renders gid into a free atlas region.
func (a *Atlas) rasterize(gid font.GID, size float32) (glyph, error) {
	g := glyph{advance: a.face.Advance(gid, size)}
	segs, err := a.face.outline(gid)
	if err != nil {
		return glyph{}, err
	}
	scale := size / a.face.upem
	bounds, ok := outlineBounds(segs, scale)
	if !ok {
		g.empty = true
		return g, nil
	}
	x0, y0 := math32.Floor(bounds.X), math32.Floor(bounds.Y)
	w := int(math32.Ceil(bounds.X+bounds.W) - x0)
	h := int(math32.Ceil(bounds.Y+bounds.H) - y0)
	region, ok := a.packer.alloc(w, h)
	if !ok {
		a.full = true
		return glyph{}, ErrAtlasFull
	}

	a.ras.Reset(w, h)
	a.ras.DrawOp = draw.Src
	pt := func(p opentype.SegmentPoint) (float32, float32) {
		return p.X*scale - x0, -p.Y*scale - y0
	}
	for _, s := range segs {
		switch s.Op {
		case opentype.SegmentOpMoveTo:
			a.ras.MoveTo(pt(s.Args[0]))
		case opentype.SegmentOpLineTo:
			a.ras.LineTo(pt(s.Args[0]))
		case opentype.SegmentOpQuadTo:
			cx, cy := pt(s.Args[0])
			x, y := pt(s.Args[1])
			a.ras.QuadTo(cx, cy, x, y)
		case opentype.SegmentOpCubeTo:
			c0x, c0y := pt(s.Args[0])
			c1x, c1y := pt(s.Args[1])
			x, y := pt(s.Args[2])
			a.ras.CubeTo(c0x, c0y, c1x, c1y, x, y)
		}
	}
	a.ras.ClosePath()
	a.ras.Draw(a.img, region, image.White, image.Point{})
	a.dirty = true

	g.src = region
	g.offset = geom.Vec2{X: x0, Y: y0}
	return g, nil
}

// outlineBounds returns the pixel bounds of segs, y down.
func outlineBounds(segs []opentype.Segment, scale float32) (geom.Rect, bool) {
	if len(segs) == 0 {
		return geom.Rect{}, false
	}
	minX, minY := math32.Inf(1), math32.Inf(1)
	maxX, maxY := math32.Inf(-1), math32.Inf(-1)
	for _, s := range segs {
		n := 1
		switch s.Op {
		case opentype.SegmentOpQuadTo:
			n = 2
		case opentype.SegmentOpCubeTo:
			n = 3
		}
		for _, p := range s.Args[:n] {
			x, y := p.X*scale, -p.Y*scale
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX <= minX || maxY <= minY {
		return geom.Rect{}, false
	}
	return geom.Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, true
}
