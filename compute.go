package canvas

import (
	"fmt"

	"github.com/gogpu/canvas/shader"
)

// Dispatch runs the compute shader cs over an x * y * z grid of
// workgroups. host backs the shader's uniforms: slices become storage
// arrays, and arrays marked readback are copied back into host's slices
// when the dispatch completes. Draws queued before Dispatch are flushed
// first.
func (c *Canvas) Dispatch(cs *shader.Shader, host any, x, y, z int) error {
	if c.closed {
		return ErrClosed
	}
	if cs == nil || cs.Stage != shader.Compute {
		return fmt.Errorf("%w: Dispatch needs a compute shader", ErrStage)
	}
	if x <= 0 || y <= 0 || z <= 0 {
		return nil
	}
	e, err := c.effect(effectKey{vs: cs})
	if err != nil {
		return err
	}
	if err := c.flush(); err != nil {
		return err
	}
	if len(e.vars) > 0 {
		if err := c.binder.Bind(e.program, e.vars, host); err != nil {
			return fmt.Errorf("canvas: compute %q: %w", e.name, err)
		}
	} else {
		c.dev.UseProgram(e.program)
	}
	c.dev.Dispatch(x, y, z)
	if err := c.dev.Submit(); err != nil {
		return fmt.Errorf("canvas: compute %q: %w", e.name, err)
	}
	if err := c.binder.ReadBack(e.program, e.vars, host); err != nil {
		return fmt.Errorf("canvas: compute %q: %w", e.name, err)
	}
	c.log().Debug("canvas: dispatch", "name", e.name, "groups", [3]int{x, y, z})
	return nil
}
