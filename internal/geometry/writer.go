package geometry

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/geom"
)

// Writer tessellates shapes into a Sink in untransformed space.
//
// Polygons are assumed convex: Fill triangulates them as fans.
type Writer interface {
	// Topology is the primitive topology of the vertices the writer emits.
	Topology() gputypes.PrimitiveTopology

	PushRect(s Sink, r geom.Rect)
	PushLine(s Sink, a, b geom.Vec2)
	// PushArc draws the part of the ellipse inscribed in bounds between
	// angles begin and end, in radians. With includeCenter and a sweep
	// short of a full turn the shape is a pie slice, otherwise the chord
	// closes it.
	PushArc(s Sink, bounds geom.Rect, begin, end float32, includeCenter bool)
	PushEllipse(s Sink, bounds geom.Rect)
	PushPolygon(s Sink, pts []geom.Vec2)
	// PushTriangles draws independent triangles, three points each.
	// Trailing points that do not form a triangle are ignored.
	PushTriangles(s Sink, pts []geom.Vec2)
	PushRoundedRect(s Sink, r geom.Rect, rx, ry float32)
}

var (
	_ Writer = (*Fill)(nil)
	_ Writer = (*Hairline)(nil)
	_ Writer = (*Path)(nil)
)

// Fill emits filled triangles.
type Fill struct {
	Quality Quality

	scratch []geom.Vec2
}

func (*Fill) Topology() gputypes.PrimitiveTopology { return gputypes.PrimitiveTopologyTriangleList }

// PushRect emits two triangles: six vertices covering the four corners.
func (f *Fill) PushRect(s Sink, r geom.Rect) {
	c := rectOutline(r)
	s.Emit(c[0])
	s.Emit(c[1])
	s.Emit(c[2])
	s.Emit(c[0])
	s.Emit(c[2])
	s.Emit(c[3])
}

// PushLine emits a quad one screen pixel wide.
func (f *Fill) PushLine(s Sink, a, b geom.Vec2) {
	half := float32(0.5)
	if sc := s.Scale(); sc > 0 {
		half /= sc
	}
	emitSegmentQuad(s, a, b, half)
}

func (f *Fill) PushArc(s Sink, bounds geom.Rect, begin, end float32, includeCenter bool) {
	sweep := end - begin
	if isFullTurn(sweep) {
		f.PushEllipse(s, bounds)
		return
	}
	n := f.Quality.Segments(sweep, max(bounds.W, bounds.H)/2, s.Scale())
	pts := arcPoints(f.scratch[:0], bounds, begin, end, n)
	f.scratch = pts
	if includeCenter {
		c := bounds.Center()
		for i := 1; i < len(pts); i++ {
			s.Emit(c)
			s.Emit(pts[i-1])
			s.Emit(pts[i])
		}
		return
	}
	emitFan(s, pts)
}

func (f *Fill) PushEllipse(s Sink, bounds geom.Rect) {
	f.scratch = ellipseOutline(f.scratch[:0], bounds, f.Quality, s.Scale())
	emitFan(s, f.scratch)
}

func (f *Fill) PushPolygon(s Sink, pts []geom.Vec2) { emitFan(s, pts) }

func (f *Fill) PushTriangles(s Sink, pts []geom.Vec2) {
	for i := 0; i+2 < len(pts); i += 3 {
		s.Emit(pts[i])
		s.Emit(pts[i+1])
		s.Emit(pts[i+2])
	}
}

func (f *Fill) PushRoundedRect(s Sink, r geom.Rect, rx, ry float32) {
	f.scratch = roundedOutline(f.scratch[:0], r, rx, ry, f.Quality, s.Scale())
	emitFan(s, f.scratch)
}

// emitFan triangulates a convex outline around its first point.
func emitFan(s Sink, pts []geom.Vec2) {
	for i := 2; i < len(pts); i++ {
		s.Emit(pts[0])
		s.Emit(pts[i-1])
		s.Emit(pts[i])
	}
}

// emitSegmentQuad emits the rectangle of half-width half around a-b as
// two triangles.
func emitSegmentQuad(s Sink, a, b geom.Vec2, half float32) {
	n := b.Sub(a).Normalize().Perp().Mul(half)
	a0, a1 := a.Add(n), a.Sub(n)
	b0, b1 := b.Add(n), b.Sub(n)
	s.Emit(a0)
	s.Emit(a1)
	s.Emit(b0)
	s.Emit(a1)
	s.Emit(b1)
	s.Emit(b0)
}
