package geometry

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/canvas/geom"
)

const fullTurn = 2 * math32.Pi

// isFullTurn reports whether a sweep closes on itself.
func isFullTurn(sweep float32) bool {
	return math32.Abs(sweep) >= fullTurn-1e-5
}

func ellipsePoint(c geom.Vec2, rx, ry, theta float32) geom.Vec2 {
	s, co := math32.Sincos(theta)
	return geom.Vec2{X: c.X + rx*co, Y: c.Y + ry*s}
}

// arcPoints returns n+1 points on the ellipse inscribed in bounds from
// angle begin to end, both included.
func arcPoints(dst []geom.Vec2, bounds geom.Rect, begin, end float32, n int) []geom.Vec2 {
	c := bounds.Center()
	rx, ry := bounds.W/2, bounds.H/2
	step := (end - begin) / float32(n)
	for i := range n + 1 {
		dst = append(dst, ellipsePoint(c, rx, ry, begin+step*float32(i)))
	}
	return dst
}

// roundedOutline returns the closed outline of r with elliptical corners
// of radii rx, ry, clockwise on screen starting at the bottom-right
// corner. Radii are clamped to half the rectangle. Points repeated
// because a straight edge has zero length are dropped, so a rectangle
// clamped in both directions yields exactly the inscribed ellipse.
func roundedOutline(dst []geom.Vec2, r geom.Rect, rx, ry float32, q Quality, scale float32) []geom.Vec2 {
	rx = min(math32.Abs(rx), r.W/2)
	ry = min(math32.Abs(ry), r.H/2)
	if rx <= 0 || ry <= 0 {
		return append(dst,
			geom.V2(r.X+r.W, r.Y+r.H), geom.V2(r.X, r.Y+r.H),
			geom.V2(r.X, r.Y), geom.V2(r.X+r.W, r.Y))
	}
	n := q.Segments(fullTurn/4, max(rx, ry), scale)
	corners := [4]geom.Vec2{
		{X: r.X + r.W - rx, Y: r.Y + r.H - ry},
		{X: r.X + rx, Y: r.Y + r.H - ry},
		{X: r.X + rx, Y: r.Y + ry},
		{X: r.X + r.W - rx, Y: r.Y + ry},
	}
	start := len(dst)
	step := fullTurn / 4 / float32(n)
	// Angles come from one global index so that where two corner
	// centers coincide the shared point is bit-identical.
	for ci, c := range corners {
		last := n
		if ci == len(corners)-1 && c == corners[0] {
			last = n - 1
		}
		for i := 0; i <= last; i++ {
			p := ellipsePoint(c, rx, ry, step*float32(ci*n+i))
			if len(dst) > start && dst[len(dst)-1] == p {
				continue
			}
			dst = append(dst, p)
		}
	}
	return dst
}

// ellipseOutline returns the closed outline of the ellipse inscribed in
// bounds.
func ellipseOutline(dst []geom.Vec2, bounds geom.Rect, q Quality, scale float32) []geom.Vec2 {
	return roundedOutline(dst, bounds, bounds.W/2, bounds.H/2, q, scale)
}

// arcOutline returns the closed outline of an arc: the arc points, then
// the center when a pie slice is requested. A full turn yields the
// ellipse outline.
func arcOutline(dst []geom.Vec2, bounds geom.Rect, begin, end float32, includeCenter bool, q Quality, scale float32) []geom.Vec2 {
	sweep := end - begin
	if isFullTurn(sweep) {
		return ellipseOutline(dst, bounds, q, scale)
	}
	n := q.Segments(sweep, max(bounds.W, bounds.H)/2, scale)
	dst = arcPoints(dst, bounds, begin, end, n)
	if includeCenter {
		dst = append(dst, bounds.Center())
	}
	return dst
}

func rectOutline(r geom.Rect) [4]geom.Vec2 {
	return [4]geom.Vec2{
		{X: r.X, Y: r.Y},
		{X: r.X + r.W, Y: r.Y},
		{X: r.X + r.W, Y: r.Y + r.H},
		{X: r.X, Y: r.Y + r.H},
	}
}
