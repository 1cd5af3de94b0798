package canvas

import (
	"fmt"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/internal/batch"
	"github.com/gogpu/canvas/internal/geometry"
)

// Mode selects how shapes are tessellated.
type Mode uint8

const (
	// ModeFill fills shapes with triangles.
	ModeFill Mode = iota
	// ModeHairline outlines shapes with one pixel lines.
	ModeHairline
	// ModeStroke outlines shapes with a mitered ribbon StrokeWidth wide.
	ModeStroke
)

func (m Mode) String() string {
	switch m {
	case ModeFill:
		return "Fill"
	case ModeHairline:
		return "Hairline"
	case ModeStroke:
		return "Stroke"
	}
	return fmt.Sprintf("Mode(%d)", m)
}

// state is everything Save pushes and Restore pops.
type state struct {
	transform geom.Matrix
	// clip is in device pixels.
	clip    geom.Rect
	clipped bool
	stencil device.Stencil
	color   geom.Color
	width   float32
	mode    Mode
}

func defaultState() state {
	return state{
		transform: geom.Identity(),
		color:     geom.Black,
		width:     1,
		mode:      ModeFill,
	}
}

// Save pushes a copy of the current state.
func (c *Canvas) Save() {
	c.stack = append(c.stack, c.st)
}

// Restore pops the state saved by the matching Save. Restore without a
// matching Save does nothing.
func (c *Canvas) Restore() {
	n := len(c.stack)
	if n == 0 {
		return
	}
	c.st = c.stack[n-1]
	c.stack = c.stack[:n-1]
	c.paint = c.st.color.Premultiplied()
}

// Depth returns the number of saved states.
func (c *Canvas) Depth() int { return len(c.stack) }

// Identity resets the transform.
func (c *Canvas) Identity() {
	c.st.transform = geom.Identity()
}

// Translate moves the origin by (x, y).
func (c *Canvas) Translate(x, y float32) {
	c.st.transform = c.st.transform.Multiply(geom.Translate(x, y))
}

// Scale scales subsequent drawing by (x, y).
func (c *Canvas) Scale(x, y float32) {
	c.st.transform = c.st.transform.Multiply(geom.Scale(x, y))
}

// Rotate rotates subsequent drawing by angle radians.
func (c *Canvas) Rotate(angle float32) {
	c.st.transform = c.st.transform.Multiply(geom.Rotate(angle))
}

// SetTransform replaces the transform.
func (c *Canvas) SetTransform(m geom.Matrix) {
	c.st.transform = m
}

// Transform returns the current transform.
func (c *Canvas) Transform() geom.Matrix { return c.st.transform }

// matrix maps canvas units to device pixels.
func (c *Canvas) matrix() geom.Matrix {
	return c.base.Multiply(c.st.transform)
}

// ClipRect restricts drawing to r, in current user space, intersected
// with the current clip. A rotated r clips to its bounding box.
func (c *Canvas) ClipRect(r geom.Rect) {
	dr := r.Transform(c.matrix())
	if c.st.clipped {
		dr = c.st.clip.Intersect(dr)
	}
	c.st.clip, c.st.clipped = dr, true
}

// ResetClip removes the clip.
func (c *Canvas) ResetClip() {
	c.st.clip, c.st.clipped = geom.Rect{}, false
}

// ClipBounds returns the clip in device pixels and whether one is set.
func (c *Canvas) ClipBounds() (geom.Rect, bool) { return c.st.clip, c.st.clipped }

// SetStencil sets the stencil test of subsequent draws.
func (c *Canvas) SetStencil(s device.Stencil) {
	c.st.stencil = s
}

// SetColor sets the color of subsequent shapes and text.
func (c *Canvas) SetColor(col geom.Color) {
	c.st.color = col
	c.paint = col.Premultiplied()
}

// SetRGBA sets the color from straight alpha components in [0, 1].
func (c *Canvas) SetRGBA(r, g, b, a float32) {
	c.SetColor(geom.RGBA(r, g, b, a))
}

// Color returns the current color.
func (c *Canvas) Color() geom.Color { return c.st.color }

// SetStrokeWidth sets the ribbon width of ModeStroke in canvas units.
func (c *Canvas) SetStrokeWidth(w float32) {
	if w > 0 {
		c.st.width = w
	}
}

// StrokeWidth returns the stroke width.
func (c *Canvas) StrokeWidth() float32 { return c.st.width }

// SetMode sets how subsequent shapes are tessellated.
func (c *Canvas) SetMode(m Mode) {
	c.st.mode = m
}

// Mode returns the draw mode.
func (c *Canvas) Mode() Mode { return c.st.mode }

// writer returns the tessellator of the current mode.
func (c *Canvas) writer() geometry.Writer {
	switch c.st.mode {
	case ModeHairline:
		return &c.hairline
	case ModeStroke:
		c.path.Width = c.st.width
		return &c.path
	}
	return &c.fill
}

func (c *Canvas) batchState() batch.State {
	return batch.State{Clip: c.st.clip, Clipped: c.st.clipped, Stencil: c.st.stencil}
}
