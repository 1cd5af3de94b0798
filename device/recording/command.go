package recording

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/shader"
)

// CommandType identifies the type of a recorded device call.
type CommandType uint8

const (
	// Resource commands
	CmdCreateBuffer CommandType = iota
	CmdWriteBuffer
	CmdDestroyBuffer
	CmdCreateTexture
	CmdWriteTexture
	CmdDestroyTexture
	CmdCreateProgram
	CmdDestroyProgram

	// Binding commands
	CmdUseProgram
	CmdSetUniform
	CmdBindTexture
	CmdBindStorageBuffer
	CmdBindVertexBuffer
	CmdBindInstanceBuffer
	CmdBindIndexBuffer
	CmdSetScissor
	CmdSetStencil

	// Execution commands
	CmdDraw
	CmdDrawIndexed
	CmdDispatch
	CmdSubmit
)

var commandTypeNames = [...]string{
	CmdCreateBuffer:       "CreateBuffer",
	CmdWriteBuffer:        "WriteBuffer",
	CmdDestroyBuffer:      "DestroyBuffer",
	CmdCreateTexture:      "CreateTexture",
	CmdWriteTexture:       "WriteTexture",
	CmdDestroyTexture:     "DestroyTexture",
	CmdCreateProgram:      "CreateProgram",
	CmdDestroyProgram:     "DestroyProgram",
	CmdUseProgram:         "UseProgram",
	CmdSetUniform:         "SetUniform",
	CmdBindTexture:        "BindTexture",
	CmdBindStorageBuffer:  "BindStorageBuffer",
	CmdBindVertexBuffer:   "BindVertexBuffer",
	CmdBindInstanceBuffer: "BindInstanceBuffer",
	CmdBindIndexBuffer:    "BindIndexBuffer",
	CmdSetScissor:         "SetScissor",
	CmdSetStencil:         "SetStencil",
	CmdDraw:               "Draw",
	CmdDrawIndexed:        "DrawIndexed",
	CmdDispatch:           "Dispatch",
	CmdSubmit:             "Submit",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is the interface implemented by all recorded calls.
type Command interface {
	Type() CommandType
}

type CreateBufferCommand struct {
	Buffer device.BufferID
	Usage  gputypes.BufferUsage
	Size   int
}

func (CreateBufferCommand) Type() CommandType { return CmdCreateBuffer }

// WriteBufferCommand records a buffer upload. Data is a copy.
type WriteBufferCommand struct {
	Buffer device.BufferID
	Offset int
	Data   []byte
}

func (WriteBufferCommand) Type() CommandType { return CmdWriteBuffer }

type DestroyBufferCommand struct{ Buffer device.BufferID }

func (DestroyBufferCommand) Type() CommandType { return CmdDestroyBuffer }

type CreateTextureCommand struct {
	Texture       device.TextureID
	Width, Height int
}

func (CreateTextureCommand) Type() CommandType { return CmdCreateTexture }

type WriteTextureCommand struct {
	Texture device.TextureID
	Bytes   int
}

func (WriteTextureCommand) Type() CommandType { return CmdWriteTexture }

type DestroyTextureCommand struct{ Texture device.TextureID }

func (DestroyTextureCommand) Type() CommandType { return CmdDestroyTexture }

type CreateProgramCommand struct {
	Program device.ProgramID
	Name    string
}

func (CreateProgramCommand) Type() CommandType { return CmdCreateProgram }

type DestroyProgramCommand struct{ Program device.ProgramID }

func (DestroyProgramCommand) Type() CommandType { return CmdDestroyProgram }

type UseProgramCommand struct{ Program device.ProgramID }

func (UseProgramCommand) Type() CommandType { return CmdUseProgram }

// SetUniformCommand records a uniform store. Name is resolved from the
// location for readability.
type SetUniformCommand struct {
	Program  device.ProgramID
	Location device.Location
	Name     string
	Kind     shader.Kind
	Words    []uint32
}

func (SetUniformCommand) Type() CommandType { return CmdSetUniform }

type BindTextureCommand struct {
	Unit    int
	Texture device.TextureID
}

func (BindTextureCommand) Type() CommandType { return CmdBindTexture }

type BindStorageBufferCommand struct {
	Slot   int
	Buffer device.BufferID
}

func (BindStorageBufferCommand) Type() CommandType { return CmdBindStorageBuffer }

type BindVertexBufferCommand struct {
	Buffer device.BufferID
	Offset int
	Layout *device.VertexLayout
}

func (BindVertexBufferCommand) Type() CommandType { return CmdBindVertexBuffer }

type BindInstanceBufferCommand struct {
	Buffer device.BufferID
	Offset int
	Layout *device.VertexLayout
}

func (BindInstanceBufferCommand) Type() CommandType { return CmdBindInstanceBuffer }

type BindIndexBufferCommand struct {
	Buffer device.BufferID
	Format gputypes.IndexFormat
}

func (BindIndexBufferCommand) Type() CommandType { return CmdBindIndexBuffer }

// SetScissorCommand records a scissor change. Rect is nil when the
// scissor was disabled.
type SetScissorCommand struct{ Rect *geom.Rect }

func (SetScissorCommand) Type() CommandType { return CmdSetScissor }

type SetStencilCommand struct{ Stencil device.Stencil }

func (SetStencilCommand) Type() CommandType { return CmdSetStencil }

// DrawCommand records a non-indexed or indexed draw.
type DrawCommand struct {
	Indexed   bool
	Topology  gputypes.PrimitiveTopology
	First     int
	Count     int
	Instances int
}

func (c DrawCommand) Type() CommandType {
	if c.Indexed {
		return CmdDrawIndexed
	}
	return CmdDraw
}

func (c DrawCommand) String() string {
	return fmt.Sprintf("%s(first=%d count=%d instances=%d)", c.Type(), c.First, c.Count, c.Instances)
}

type DispatchCommand struct{ X, Y, Z int }

func (DispatchCommand) Type() CommandType { return CmdDispatch }

type SubmitCommand struct{}

func (SubmitCommand) Type() CommandType { return CmdSubmit }
