// Package device defines the contract between the canvas core and the
// graphics API that executes its draws.
//
// The core never looks inside device objects. It holds opaque IDs and
// calls the Device methods at flush and bind time only. Two
// implementations ship with the module: device/recording, which logs
// every call as a typed command, and device/halgpu, which drives a
// WebGPU HAL device.
package device

import (
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/shader"
)

// Resource IDs. Each implementation maps them to its own objects.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a device buffer.
type BufferID uint64

// TextureID is an opaque handle to a device texture.
type TextureID uint64

// ProgramID is an opaque handle to a linked shader program.
type ProgramID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Location addresses one uniform of the program in use. A negative
// Location is inactive and SetUniform ignores it.
type Location int32

// Language is the shading language a device consumes.
type Language uint8

const (
	GLSL Language = iota
	WGSL
)

func (l Language) String() string {
	switch l {
	case GLSL:
		return "GLSL"
	case WGSL:
		return "WGSL"
	}
	return "Unknown"
}

// StageSource is one compiled stage of a program. Shader is kept so a
// device can reflect bindings that the text alone does not carry.
type StageSource struct {
	Stage  shader.Stage
	Source string
	Shader *shader.Shader
}

// ProgramSource is everything CreateProgram needs: a vertex and fragment
// pair, or a single compute stage.
type ProgramSource struct {
	Name     string
	Language Language
	Stages   []StageSource
}

// Stage returns the source of stage st, if present.
func (p ProgramSource) Stage(st shader.Stage) (StageSource, bool) {
	for _, s := range p.Stages {
		if s.Stage == st {
			return s, true
		}
	}
	return StageSource{}, false
}

// Stencil configures the stencil test of subsequent draws. A zero Read
// mask disables the test, a zero Write mask leaves the buffer untouched.
type Stencil struct {
	Read  uint8
	Write uint8
	Ref   uint8
}

// Enabled reports whether the stencil buffer is consulted or written.
func (s Stencil) Enabled() bool { return s.Read != 0 || s.Write != 0 }

// Device is the graphics API binding used by the canvas.
//
// Methods that only record state do not return errors. Implementations
// that fail while recording report the first failure from Submit.
type Device interface {
	Language() Language

	CreateBuffer(usage gputypes.BufferUsage, size int) (BufferID, error)
	// WriteBuffer copies data into buf starting at offset.
	WriteBuffer(buf BufferID, offset int, data []byte)
	// ReadBuffer copies len(dst) bytes from buf at offset into dst. It
	// waits for submitted work that writes buf.
	ReadBuffer(buf BufferID, offset int, dst []byte) error
	DestroyBuffer(buf BufferID)

	CreateTexture(width, height int) (TextureID, error)
	WriteTexture(tex TextureID, img *image.RGBA)
	DestroyTexture(tex TextureID)

	// CreateProgram compiles and links src. Link failures are returned
	// as *LinkError.
	CreateProgram(src ProgramSource) (ProgramID, error)
	DestroyProgram(p ProgramID)
	UniformLocation(p ProgramID, name string) Location
	UseProgram(p ProgramID)
	// SetUniform stores a uniform of the program in use. words holds the
	// value as 32-bit words: bools as 0 or 1, matrices column-major.
	SetUniform(loc Location, kind shader.Kind, words []uint32)
	BindTexture(unit int, tex TextureID)
	// BindStorageBuffer binds buf to the slot-th storage array of the
	// program in use, counted in declaration order.
	BindStorageBuffer(slot int, buf BufferID)

	BindVertexBuffer(buf BufferID, offset int, layout *VertexLayout)
	// BindInstanceBuffer binds per-instance attributes. A nil layout
	// unbinds them.
	BindInstanceBuffer(buf BufferID, offset int, layout *VertexLayout)
	BindIndexBuffer(buf BufferID, format gputypes.IndexFormat)
	// SetScissor restricts drawing to r. A nil r disables the scissor.
	SetScissor(r *geom.Rect)
	SetStencil(s Stencil)
	Draw(topology gputypes.PrimitiveTopology, first, count, instances int)
	DrawIndexed(topology gputypes.PrimitiveTopology, first, count, instances int)
	Dispatch(x, y, z int)

	// Submit executes everything recorded since the previous Submit.
	Submit() error
}
