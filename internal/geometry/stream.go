// Package geometry turns shape requests into vertices.
//
// A Stream accumulates vertices of one layout and applies its affine
// transform to every position written. A Writer tessellates shapes in
// untransformed space into a Sink, consulting the sink's scale only to
// pick the number of curve segments.
package geometry

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
)

// Sink receives tessellated positions in untransformed space.
type Sink interface {
	// Emit appends one vertex at p.
	Emit(p geom.Vec2)
	// Scale is the factor from untransformed to screen units.
	Scale() float32
}

// VertexFunc builds a vertex from its untransformed and transformed
// positions.
type VertexFunc[V any] func(local, world geom.Vec2) V

// Stream is an append-only vertex list for one layout and transform.
// The backing array is kept across Reset so steady-state frames do not
// allocate.
type Stream[V any] struct {
	layout    *device.VertexLayout
	transform geom.Matrix
	scale     float32
	vertex    VertexFunc[V]
	vertices  []V
}

// NewStream returns an empty stream with the identity transform. It
// panics if the layout stride does not match the size of V.
func NewStream[V any](layout *device.VertexLayout, vertex VertexFunc[V]) *Stream[V] {
	var zero V
	if size := int(unsafe.Sizeof(zero)); layout.Stride != size {
		panic(fmt.Sprintf("geometry: layout %s has stride %d, vertex type %T has size %d", layout.Name, layout.Stride, zero, size))
	}
	return &Stream[V]{
		layout:    layout,
		transform: geom.Identity(),
		scale:     1,
		vertex:    vertex,
		vertices:  make([]V, 0, 256),
	}
}

// Layout returns the vertex layout of the stream.
func (s *Stream[V]) Layout() *device.VertexLayout { return s.layout }

// SetTransform sets the transform applied to subsequent vertices.
func (s *Stream[V]) SetTransform(m geom.Matrix) {
	s.transform = m
	s.scale = m.ScaleFactor()
}

// Transform returns the current transform.
func (s *Stream[V]) Transform() geom.Matrix { return s.transform }

// SetVertex replaces the function that builds vertices from positions.
func (s *Stream[V]) SetVertex(fn VertexFunc[V]) { s.vertex = fn }

// Emit implements Sink.
func (s *Stream[V]) Emit(p geom.Vec2) {
	s.vertices = append(s.vertices, s.vertex(p, s.transform.Apply(p)))
}

// Scale implements Sink.
func (s *Stream[V]) Scale() float32 { return s.scale }

// Append adds prebuilt vertices without transforming them.
func (s *Stream[V]) Append(vs ...V) { s.vertices = append(s.vertices, vs...) }

// Len returns the number of vertices written since the last Reset.
func (s *Stream[V]) Len() int { return len(s.vertices) }

// Vertices returns the vertices written since the last Reset. The slice
// is only valid until the next write.
func (s *Stream[V]) Vertices() []V { return s.vertices }

// Bytes returns the vertices from index first on as raw bytes.
func (s *Stream[V]) Bytes(first int) []byte {
	return Bytes(s.vertices[first:])
}

// Reset empties the stream, keeping its transform and capacity.
func (s *Stream[V]) Reset() { s.vertices = s.vertices[:0] }

// Bytes reinterprets a vertex slice as bytes.
func Bytes[V any](vs []V) []byte {
	if len(vs) == 0 {
		return nil
	}
	var zero V
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(vs))), len(vs)*int(unsafe.Sizeof(zero)))
}
