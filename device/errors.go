package device

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by device implementations.
var (
	// ErrUnknownBuffer is returned for a BufferID the device does not own.
	ErrUnknownBuffer = errors.New("device: unknown buffer")

	// ErrUnknownTexture is returned for a TextureID the device does not own.
	ErrUnknownTexture = errors.New("device: unknown texture")

	// ErrUnknownProgram is returned for a ProgramID the device does not own.
	ErrUnknownProgram = errors.New("device: unknown program")

	// ErrOutOfRange is returned when a read or write exceeds a buffer.
	ErrOutOfRange = errors.New("device: access out of range")
)

// LinkError reports a program that failed to compile or link. Log holds
// the diagnostic output of the shader compiler.
type LinkError struct {
	Program string
	Log     string
	Err     error
}

func (e *LinkError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("device: link %q failed", e.Program)
	}
	return fmt.Sprintf("device: link %q failed: %s", e.Program, e.Log)
}

func (e *LinkError) Unwrap() error { return e.Err }
