package canvas

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/internal/geometry"
)

// DrawMesh draws vertices, three per triangle, with effect e. V must be
// a struct of float32, int32 and geom vector or color fields; its layout
// feeds the vertex input of the effect in field order. uniforms is the
// host value backing the effect's uniforms and may be nil for effects
// without any.
//
// Vertices are not transformed on the host. The effect's "projection"
// uniform carries the current transform instead.
//
// Draws whose uniforms are equal and comparable merge like built-in
// draws. Other draws are flushed at once.
func DrawMesh[V any](c *Canvas, e *Effect, vertices []V, uniforms any) error {
	if c.closed {
		return ErrClosed
	}
	if e == nil || e.released {
		return ErrReleased
	}
	if len(vertices) == 0 {
		return nil
	}
	l := geometry.LayoutOf[V]()
	fx := e.bind(uniforms, c.projection(c.matrix()))
	c.submit(l, gputypes.PrimitiveTopologyTriangleList, geometry.Bytes(vertices), len(vertices), fx)
	return nil
}
