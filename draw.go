package canvas

import (
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/internal/geometry"
)

// shape tessellates one shape with the current writer into the color
// stream and queues it with the solid effect.
func (c *Canvas) shape(push func(w geometry.Writer, s geometry.Sink)) {
	if c.closed {
		c.fail(ErrClosed)
		return
	}
	w := c.writer()
	s := c.colors
	s.SetTransform(c.matrix())
	first := s.Len()
	push(w, s)
	c.submit(s.Layout(), w.Topology(), s.Bytes(first), s.Len()-first, c.solid.bind(nil, c.ortho))
}

// DrawRect draws r.
func (c *Canvas) DrawRect(r geom.Rect) {
	c.shape(func(w geometry.Writer, s geometry.Sink) { w.PushRect(s, r) })
}

// DrawLine draws the segment from a to b. ModeFill and ModeHairline draw
// it one pixel wide, ModeStroke StrokeWidth wide.
func (c *Canvas) DrawLine(a, b geom.Vec2) {
	c.shape(func(w geometry.Writer, s geometry.Sink) { w.PushLine(s, a, b) })
}

// DrawArc draws the part of the ellipse inscribed in bounds from angle
// begin to end, in radians clockwise from the positive x axis. With
// includeCenter a partial arc is a pie slice, otherwise its chord closes
// it.
func (c *Canvas) DrawArc(bounds geom.Rect, begin, end float32, includeCenter bool) {
	c.shape(func(w geometry.Writer, s geometry.Sink) { w.PushArc(s, bounds, begin, end, includeCenter) })
}

// DrawEllipse draws the ellipse inscribed in bounds.
func (c *Canvas) DrawEllipse(bounds geom.Rect) {
	c.shape(func(w geometry.Writer, s geometry.Sink) { w.PushEllipse(s, bounds) })
}

// DrawCircle draws the circle of radius r around (x, y).
func (c *Canvas) DrawCircle(x, y, r float32) {
	c.DrawEllipse(geom.R(x-r, y-r, 2*r, 2*r))
}

// DrawRoundedRect draws r with elliptical corners of radii rx and ry.
// Radii are clamped to half the size of r.
func (c *Canvas) DrawRoundedRect(r geom.Rect, rx, ry float32) {
	c.shape(func(w geometry.Writer, s geometry.Sink) { w.PushRoundedRect(s, r, rx, ry) })
}

// DrawPolygon draws the closed convex polygon through pts.
func (c *Canvas) DrawPolygon(pts []geom.Vec2) {
	if len(pts) < 2 {
		return
	}
	c.shape(func(w geometry.Writer, s geometry.Sink) { w.PushPolygon(s, pts) })
}

// DrawTriangles draws independent triangles, three points each.
func (c *Canvas) DrawTriangles(pts []geom.Vec2) {
	if len(pts) < 3 {
		return
	}
	c.shape(func(w geometry.Writer, s geometry.Sink) { w.PushTriangles(s, pts) })
}

// DrawImage draws the src rectangle of tex, in texture pixels, into dst.
// A zero src selects the whole texture.
func (c *Canvas) DrawImage(tex *Texture, src, dst geom.Rect) error {
	if c.closed {
		return ErrClosed
	}
	if tex == nil || tex.Released() {
		return ErrReleased
	}
	if src == (geom.Rect{}) {
		src = geom.R(0, 0, float32(tex.width), float32(tex.height))
	}
	if dst.Empty() || src.Empty() {
		return nil
	}
	c.quads(tex, geom.White, func(quad func(src, dst geom.Rect)) { quad(src, dst) })
	return nil
}

// quads queues textured rectangles sampling tex, tinted by the
// premultiplied color tint. emit calls quad once per rectangle.
func (c *Canvas) quads(tex *Texture, tint geom.Color, emit func(quad func(src, dst geom.Rect))) {
	s := c.textured
	s.SetTransform(c.matrix())
	var qsrc, qdst geom.Rect
	sx, sy := 1/float32(tex.width), 1/float32(tex.height)
	s.SetVertex(func(local, world geom.Vec2) geometry.TexVertex {
		u := qsrc.X + (local.X-qdst.X)/qdst.W*qsrc.W
		v := qsrc.Y + (local.Y-qdst.Y)/qdst.H*qsrc.H
		return geometry.TexVertex{Pos: world, UV: geom.V2(u*sx, v*sy), Color: tint}
	})
	first := s.Len()
	emit(func(src, dst geom.Rect) {
		qsrc, qdst = src, dst
		c.fill.PushRect(s, dst)
	})
	c.submit(s.Layout(), c.fill.Topology(), s.Bytes(first), s.Len()-first, c.texture.bind(texturedUniforms{Tex: tex}, c.ortho))
}
