package geometry

import "github.com/chewxy/math32"

// Default curve quality.
const (
	DefaultMinSegments = 4
	DefaultMaxSegments = 256
	DefaultQuality     = 0.5
)

// Quality controls how finely curved edges are split.
type Quality struct {
	// K scales segments per radian per square root of screen pixels.
	K        float32
	Min, Max int
}

// DefaultSegments is the quality used by the zero Quality value.
var DefaultSegments = Quality{K: DefaultQuality, Min: DefaultMinSegments, Max: DefaultMaxSegments}

func (q Quality) orDefault() Quality {
	if q.K <= 0 {
		q.K = DefaultSegments.K
	}
	if q.Min <= 0 {
		q.Min = DefaultSegments.Min
	}
	if q.Max <= 0 {
		q.Max = DefaultSegments.Max
	}
	if q.Max < q.Min {
		q.Max = q.Min
	}
	return q
}

// Segments returns the number of straight segments for a curve sweeping
// sweep radians at radius units, drawn at the given transform scale.
func (q Quality) Segments(sweep, radius, scale float32) int {
	q = q.orDefault()
	screen := math32.Abs(radius * scale)
	n := int(math32.Ceil(math32.Abs(sweep) * math32.Sqrt(screen) * q.K))
	return min(max(n, q.Min), q.Max)
}
