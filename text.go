package canvas

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/internal/geometry"
	"github.com/gogpu/canvas/text"
)

func (c *Canvas) initText() error {
	face, err := text.ParseFace(c.opts.font)
	if err != nil {
		return fmt.Errorf("canvas: %w", err)
	}
	c.atlas = text.NewAtlas(face, c.opts.atlasSize)
	c.atlasTex, err = c.NewTexture(c.atlas.Image())
	if err != nil {
		return err
	}
	c.atlas.MarkClean()
	return nil
}

// uploadAtlas copies the glyph atlas to its texture if glyphs were added.
func (c *Canvas) uploadAtlas() {
	if c.atlas == nil || !c.atlas.Dirty() {
		return
	}
	c.dev.WriteTexture(c.atlasTex.id, c.atlas.Image())
	c.atlas.MarkClean()
}

// DrawText draws s with the current color, its baseline starting at
// (x, y), size canvas units per em. Glyphs are placed by their advance
// without shaping. It returns the x position after the last glyph.
func (c *Canvas) DrawText(s string, x, y, size float32) (float32, error) {
	if c.closed {
		return x, ErrClosed
	}
	if c.atlas == nil {
		return x, ErrNoFont
	}
	if size <= 0 || s == "" {
		return x, nil
	}
	s = norm.NFC.String(s)

	// Glyphs are rasterized at device resolution and drawn back at
	// canvas scale.
	scale := c.matrix().ScaleFactor()
	if scale <= 0 {
		return x, nil
	}
	px := size * scale

	st := c.textured
	st.SetTransform(c.matrix())
	var qsrc, qdst geom.Rect
	inv := 1 / float32(c.atlas.Size())
	tint := c.paint
	st.SetVertex(func(local, world geom.Vec2) geometry.TexVertex {
		u := qsrc.X + (local.X-qdst.X)/qdst.W*qsrc.W
		v := qsrc.Y + (local.Y-qdst.Y)/qdst.H*qsrc.H
		return geometry.TexVertex{Pos: world, UV: geom.V2(u*inv, v*inv), Color: tint}
	})
	fx := c.texture.bind(texturedUniforms{Tex: c.atlasTex}, c.ortho)
	first := st.Len()
	queue := func() {
		c.submit(st.Layout(), c.fill.Topology(), st.Bytes(first), st.Len()-first, fx)
		first = st.Len()
	}

	var pen float32
	for _, r := range s {
		src, dst, next, ok := c.atlas.GetGlyphQuad(r, px, pen)
		if !ok && c.atlas.Full() {
			// Draw everything that samples the current atlas, then
			// start over with an empty one.
			queue()
			if err := c.flush(); err != nil {
				c.fail(err)
			}
			c.atlas.Reset()
			first = st.Len()
			entries, hits, misses := c.atlas.Face().OutlineCacheStats()
			c.log().Debug("canvas: glyph atlas reset",
				"size", c.atlas.Size(),
				"outlines", entries, "outlineHits", hits, "outlineMisses", misses)
			src, dst, next, ok = c.atlas.GetGlyphQuad(r, px, pen)
			if !ok && c.atlas.Full() {
				c.log().Warn("canvas: glyph does not fit the atlas", "rune", string(r), "size", px)
				c.atlas.Reset()
			}
		}
		if ok {
			qsrc = src
			qdst = geom.R(x+dst.X/scale, y+dst.Y/scale, dst.W/scale, dst.H/scale)
			c.fill.PushRect(st, qdst)
		}
		pen = next
	}
	queue()
	c.uploadAtlas()
	return x + pen/scale, nil
}

// MeasureText returns the advance width of s at size canvas units per em
// and the ascent and descent of the font.
func (c *Canvas) MeasureText(s string, size float32) (width, ascent, descent float32, err error) {
	if c.atlas == nil {
		return 0, 0, 0, ErrNoFont
	}
	face := c.atlas.Face()
	for _, r := range norm.NFC.String(s) {
		gid, _ := face.Glyph(r)
		width += face.Advance(gid, size)
	}
	ascent, descent = face.Metrics(size)
	return width, ascent, descent, nil
}
