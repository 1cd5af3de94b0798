package canvas

import "errors"

// Sentinel errors returned by the canvas.
var (
	// ErrClosed is returned by operations on a closed canvas.
	ErrClosed = errors.New("canvas: canvas is closed")

	// ErrInvalidSize is returned by New for a non-positive size.
	ErrInvalidSize = errors.New("canvas: invalid size")

	// ErrNoFont is returned by DrawText when the canvas has no font.
	ErrNoFont = errors.New("canvas: no font configured")

	// ErrReleased is returned when drawing with a released texture or
	// effect.
	ErrReleased = errors.New("canvas: resource already released")

	// ErrStage is returned by NewEffect and Dispatch for a shader of the
	// wrong stage.
	ErrStage = errors.New("canvas: shader has the wrong stage")
)
