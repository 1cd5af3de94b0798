// Package canvas is an immediate-mode 2D drawing surface rendered by a
// GPU device.
//
// # Overview
//
// Draw calls tessellate shapes into vertex streams, copy the vertices into
// pooled device buffers and queue one draw command per call. Commands that
// continue the previous one with the same effect and state are merged, so
// a frame of a few thousand rectangles becomes a handful of device draws.
// Flush uploads the frame's vertices, issues the draws and recycles every
// buffer for the next frame.
//
// # Quick Start
//
//	dev, err := halgpu.NewFromProvider(provider, 800, 600)
//	if err != nil {
//	    return err
//	}
//	c, err := canvas.New(dev, 800, 600, canvas.WithFont(goregular.TTF))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	c.SetColor(geom.RGB(1, 0, 0))
//	c.DrawRect(geom.R(10, 10, 100, 50))
//	c.DrawText("hello", 10, 100, 24)
//	if err := c.Flush(); err != nil {
//	    return err
//	}
//
// # State
//
// The transform, clip rectangle, stencil test, color, stroke width and
// draw mode form the canvas state. Save pushes it and Restore pops it.
// The draw mode picks how shapes are tessellated: ModeFill fills them,
// ModeHairline outlines them with one pixel lines and ModeStroke
// outlines them with a mitered ribbon StrokeWidth units wide.
//
// # Effects
//
// Every draw runs an Effect, a linked vertex and fragment program. The
// canvas ships a solid color effect and a textured effect. NewEffect
// compiles custom effects from shader IR (package shader) into the
// shading language of the device, and DrawMesh draws host vertex types
// with them. Dispatch runs compute shaders over storage arrays.
//
// # Devices
//
// The canvas talks to the GPU only through the device.Device interface.
// Package device/halgpu implements it on a WebGPU HAL device and package
// device/recording records calls for tests.
//
// # Logging
//
// The canvas logs through log/slog and is silent by default. See SetLogger.
package canvas
