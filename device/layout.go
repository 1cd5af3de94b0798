package device

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// VertexLayout describes how one vertex buffer feeds attribute locations.
// Layouts are compared by pointer: callers create one per vertex type and
// reuse it.
type VertexLayout struct {
	Name       string
	Stride     int
	Attributes []gputypes.VertexAttribute
}

// Buffer returns the layout as a gputypes buffer layout with the given
// step mode.
func (l *VertexLayout) Buffer(step gputypes.VertexStepMode) gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: uint64(l.Stride),
		StepMode:    step,
		Attributes:  l.Attributes,
	}
}

// String returns a short description of the layout.
func (l *VertexLayout) String() string {
	return fmt.Sprintf("%s(stride %d, %d attributes)", l.Name, l.Stride, len(l.Attributes))
}

// FormatSize returns the byte size of one attribute of format f, or 0 for
// formats the canvas does not produce.
func FormatSize(f gputypes.VertexFormat) int {
	switch f {
	case gputypes.VertexFormatFloat32, gputypes.VertexFormatSint32:
		return 4
	case gputypes.VertexFormatFloat32x2, gputypes.VertexFormatSint32x2:
		return 8
	case gputypes.VertexFormatFloat32x3, gputypes.VertexFormatSint32x3:
		return 12
	case gputypes.VertexFormatFloat32x4, gputypes.VertexFormatSint32x4:
		return 16
	}
	return 0
}
