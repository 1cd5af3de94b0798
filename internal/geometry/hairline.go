package geometry

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/geom"
)

// Hairline emits one-pixel line pairs.
type Hairline struct {
	Quality Quality

	scratch []geom.Vec2
}

func (*Hairline) Topology() gputypes.PrimitiveTopology { return gputypes.PrimitiveTopologyLineList }

func (h *Hairline) PushRect(s Sink, r geom.Rect) {
	c := rectOutline(r)
	emitLoop(s, c[:])
}

func (h *Hairline) PushLine(s Sink, a, b geom.Vec2) {
	s.Emit(a)
	s.Emit(b)
}

func (h *Hairline) PushArc(s Sink, bounds geom.Rect, begin, end float32, includeCenter bool) {
	h.scratch = arcOutline(h.scratch[:0], bounds, begin, end, includeCenter, h.Quality, s.Scale())
	emitLoop(s, h.scratch)
}

func (h *Hairline) PushEllipse(s Sink, bounds geom.Rect) {
	h.scratch = ellipseOutline(h.scratch[:0], bounds, h.Quality, s.Scale())
	emitLoop(s, h.scratch)
}

func (h *Hairline) PushPolygon(s Sink, pts []geom.Vec2) { emitLoop(s, pts) }

func (h *Hairline) PushTriangles(s Sink, pts []geom.Vec2) {
	for i := 0; i+2 < len(pts); i += 3 {
		emitLoop(s, pts[i:i+3])
	}
}

func (h *Hairline) PushRoundedRect(s Sink, r geom.Rect, rx, ry float32) {
	h.scratch = roundedOutline(h.scratch[:0], r, rx, ry, h.Quality, s.Scale())
	emitLoop(s, h.scratch)
}

// emitLoop emits the edges of a closed outline as line pairs.
func emitLoop(s Sink, pts []geom.Vec2) {
	if len(pts) < 2 {
		return
	}
	for i := range pts {
		s.Emit(pts[i])
		s.Emit(pts[(i+1)%len(pts)])
	}
}
