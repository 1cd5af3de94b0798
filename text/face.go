// Package text rasterizes glyphs into a texture atlas for the canvas.
//
// A Face wraps a parsed OpenType font. An Atlas renders glyph outlines of
// one Face at the sizes requested, packs them into a single RGBA image and
// answers GetGlyphQuad with the atlas rectangle to sample and the screen
// rectangle to cover. Text shaping is not done: runes map to glyphs
// through the font's cmap and are placed by their horizontal advance.
package text

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/font/opentype"

	"github.com/gogpu/canvas/internal/cache"
)

// outlineCacheSize bounds the parsed outlines a Face keeps.
const outlineCacheSize = 512

var (
	// ErrAtlasFull is returned when a glyph does not fit in the atlas.
	ErrAtlasFull = errors.New("text: glyph atlas is full")

	// ErrNoOutline is returned for glyphs stored as bitmaps or SVG.
	ErrNoOutline = errors.New("text: glyph has no outline")
)

// Face is a parsed font. Face is not safe for concurrent use.
type Face struct {
	face     *font.Face
	upem     float32
	outlines *cache.LRU[font.GID, []opentype.Segment]
}

// ParseFace parses TrueType or OpenType font data.
func ParseFace(data []byte) (*Face, error) {
	f, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("text: parse font: %w", err)
	}
	upem := float32(f.Upem())
	if upem == 0 {
		upem = 1000
	}
	return &Face{face: f, upem: upem, outlines: cache.New[font.GID, []opentype.Segment](outlineCacheSize)}, nil
}

// Glyph returns the glyph of r, or the .notdef glyph and false if the
// font does not map r.
func (f *Face) Glyph(r rune) (font.GID, bool) {
	return f.face.NominalGlyph(r)
}

// Advance returns the horizontal advance of gid at size pixels per em.
func (f *Face) Advance(gid font.GID, size float32) float32 {
	return f.face.HorizontalAdvance(gid) * size / f.upem
}

// Metrics returns the ascent and descent at size pixels per em, both
// positive distances from the baseline.
func (f *Face) Metrics(size float32) (ascent, descent float32) {
	ext, ok := f.face.FontHExtents()
	if !ok {
		return 0.8 * size, 0.2 * size
	}
	scale := size / f.upem
	return ext.Ascender * scale, -ext.Descender * scale
}

// OutlineCacheStats reports how many parsed outlines the face holds and
// how often lookups found one.
func (f *Face) OutlineCacheStats() (entries int, hits, misses uint64) {
	s := f.outlines.Stats()
	return s.Len, s.Hits, s.Misses
}

// outline returns the segments of gid in font units, y up.
func (f *Face) outline(gid font.GID) ([]opentype.Segment, error) {
	if segs, ok := f.outlines.Get(gid); ok {
		return segs, nil
	}
	var segs []opentype.Segment
	switch g := f.face.GlyphData(gid).(type) {
	case font.GlyphOutline:
		segs = g.Segments
	case nil:
	default:
		return nil, fmt.Errorf("%w: glyph %d is %T", ErrNoOutline, gid, g)
	}
	f.outlines.Set(gid, segs)
	return segs, nil
}
