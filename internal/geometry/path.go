package geometry

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/geom"
)

// MiterLimit bounds the corner offset of a stroke, in half widths.
const MiterLimit = 4

// Path strokes shape outlines with a ribbon of triangles Width units
// wide, joined with miters. Lines get butt ends.
type Path struct {
	Width   float32
	Quality Quality

	scratch []geom.Vec2
	offsets []geom.Vec2
}

func (*Path) Topology() gputypes.PrimitiveTopology { return gputypes.PrimitiveTopologyTriangleList }

func (p *Path) PushRect(s Sink, r geom.Rect) {
	c := rectOutline(r)
	p.stroke(s, c[:])
}

func (p *Path) PushLine(s Sink, a, b geom.Vec2) {
	emitSegmentQuad(s, a, b, p.Width/2)
}

func (p *Path) PushArc(s Sink, bounds geom.Rect, begin, end float32, includeCenter bool) {
	p.scratch = arcOutline(p.scratch[:0], bounds, begin, end, includeCenter, p.Quality, s.Scale())
	p.stroke(s, p.scratch)
}

func (p *Path) PushEllipse(s Sink, bounds geom.Rect) {
	p.scratch = ellipseOutline(p.scratch[:0], bounds, p.Quality, s.Scale())
	p.stroke(s, p.scratch)
}

func (p *Path) PushPolygon(s Sink, pts []geom.Vec2) { p.stroke(s, pts) }

func (p *Path) PushTriangles(s Sink, pts []geom.Vec2) {
	for i := 0; i+2 < len(pts); i += 3 {
		p.stroke(s, pts[i:i+3])
	}
}

func (p *Path) PushRoundedRect(s Sink, r geom.Rect, rx, ry float32) {
	p.scratch = roundedOutline(p.scratch[:0], r, rx, ry, p.Quality, s.Scale())
	p.stroke(s, p.scratch)
}

// stroke emits the ribbon around a closed outline.
func (p *Path) stroke(s Sink, pts []geom.Vec2) {
	n := len(pts)
	if n < 2 {
		return
	}
	p.offsets = p.offsets[:0]
	for i := range pts {
		prev, next := pts[(i+n-1)%n], pts[(i+1)%n]
		p.offsets = append(p.offsets, MiterOffset(prev, pts[i], next, p.Width/2))
	}
	for i := range pts {
		j := (i + 1) % n
		outI, inI := pts[i].Add(p.offsets[i]), pts[i].Sub(p.offsets[i])
		outJ, inJ := pts[j].Add(p.offsets[j]), pts[j].Sub(p.offsets[j])
		s.Emit(outI)
		s.Emit(inI)
		s.Emit(outJ)
		s.Emit(inI)
		s.Emit(inJ)
		s.Emit(outJ)
	}
}

// MiterOffset returns the offset from corner cur to the outer edge of a
// stroke of half-width half, for the path prev, cur, next. It points
// along the bisector of the edge normals and has length half divided by
// the sine of half the corner angle, capped at MiterLimit*half.
func MiterOffset(prev, cur, next geom.Vec2, half float32) geom.Vec2 {
	nIn := cur.Sub(prev).Normalize().Perp()
	nOut := next.Sub(cur).Normalize().Perp()
	if nIn == (geom.Vec2{}) {
		nIn = nOut
	}
	if nOut == (geom.Vec2{}) {
		nOut = nIn
	}
	bisector := nIn.Add(nOut).Normalize()
	if bisector == (geom.Vec2{}) {
		return nIn.Mul(half * MiterLimit)
	}
	sin := bisector.Dot(nIn)
	length := half * MiterLimit
	if sin > 1/float32(MiterLimit) {
		length = half / sin
	}
	return bisector.Mul(length)
}
