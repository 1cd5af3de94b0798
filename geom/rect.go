package geom

import "github.com/chewxy/math32"

// Rect is an axis-aligned rectangle given by its origin and size.
type Rect struct {
	X, Y, W, H float32
}

// R is a convenience function to create a Rect.
func R(x, y, w, h float32) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// Min returns the top-left corner.
func (r Rect) Min() Vec2 { return Vec2{X: r.X, Y: r.Y} }

// Max returns the bottom-right corner.
func (r Rect) Max() Vec2 { return Vec2{X: r.X + r.W, Y: r.Y + r.H} }

// Center returns the center point.
func (r Rect) Center() Vec2 { return Vec2{X: r.X + r.W/2, Y: r.Y + r.H/2} }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Intersect returns the overlap of r and s. The result is empty
// (zero size) when they do not overlap.
func (r Rect) Intersect(s Rect) Rect {
	x0 := math32.Max(r.X, s.X)
	y0 := math32.Max(r.Y, s.Y)
	x1 := math32.Min(r.X+r.W, s.X+s.W)
	y1 := math32.Min(r.Y+r.H, s.Y+s.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{X: x0, Y: y0}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Transform returns the bounding box of r under m.
func (r Rect) Transform(m Matrix) Rect {
	p := [4]Vec2{
		m.Apply(Vec2{r.X, r.Y}),
		m.Apply(Vec2{r.X + r.W, r.Y}),
		m.Apply(Vec2{r.X, r.Y + r.H}),
		m.Apply(Vec2{r.X + r.W, r.Y + r.H}),
	}
	minX, minY := p[0].X, p[0].Y
	maxX, maxY := minX, minY
	for _, q := range p[1:] {
		minX = math32.Min(minX, q.X)
		minY = math32.Min(minY, q.Y)
		maxX = math32.Max(maxX, q.X)
		maxY = math32.Max(maxY, q.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
