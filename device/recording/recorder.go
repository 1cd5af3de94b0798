// Package recording provides a device.Device that executes nothing and
// records every call as a typed command.
//
// Buffers keep their bytes, so uploads can be inspected and storage
// buffers read back. Programs resolve uniform locations from the shader
// IR they were created from. A Recorder is what the canvas tests run
// against, and it can dump a frame for debugging:
//
//	rec := recording.New(device.GLSL)
//	c, _ := canvas.New(rec, 800, 600)
//	c.DrawRect(geom.R(0, 0, 10, 10))
//	c.Flush()
//	for _, cmd := range rec.Commands() {
//	    fmt.Println(cmd.Type())
//	}
package recording

import (
	"fmt"
	"image"
	"slices"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/shader"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithLinkFailure makes CreateProgram fail for the program named name,
// returning a *device.LinkError carrying log.
func WithLinkFailure(name, log string) Option {
	return func(r *Recorder) {
		r.linkFailures[name] = log
	}
}

// WithDispatchHook installs fn to run on every Dispatch, standing in for
// a compute shader. fn may modify buffers through Buffer.
func WithDispatchHook(fn func(r *Recorder, x, y, z int)) Option {
	return func(r *Recorder) {
		r.onDispatch = fn
	}
}

type program struct {
	name      string
	locations map[string]device.Location
	names     []string
	storage   int
}

func (p *program) add(name string) {
	if _, dup := p.locations[name]; dup {
		return
	}
	p.locations[name] = device.Location(len(p.names))
	p.names = append(p.names, name)
}

// Recorder implements device.Device by recording calls.
//
// Recorder is not safe for concurrent use.
type Recorder struct {
	lang     device.Language
	commands []Command

	nextID   uint64
	buffers  map[device.BufferID][]byte
	textures map[device.TextureID]image.Point
	programs map[device.ProgramID]*program
	current  device.ProgramID

	uniforms map[device.ProgramID]map[device.Location][]uint32
	storage  map[int]device.BufferID

	linkFailures map[string]string
	onDispatch   func(r *Recorder, x, y, z int)
	err          error
}

var _ device.Device = (*Recorder)(nil)

// New returns a Recorder reporting the given shading language.
func New(lang device.Language, opts ...Option) *Recorder {
	r := &Recorder{
		lang:         lang,
		buffers:      make(map[device.BufferID][]byte),
		textures:     make(map[device.TextureID]image.Point),
		programs:     make(map[device.ProgramID]*program),
		uniforms:     make(map[device.ProgramID]map[device.Location][]uint32),
		storage:      make(map[int]device.BufferID),
		linkFailures: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) record(c Command) { r.commands = append(r.commands, c) }

func (r *Recorder) id() uint64 {
	r.nextID++
	return r.nextID
}

// fail keeps the first error for Submit.
func (r *Recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Commands returns the recorded commands in call order.
func (r *Recorder) Commands() []Command { return r.commands }

// CommandsOf returns the recorded commands of type t.
func (r *Recorder) CommandsOf(t CommandType) []Command {
	var out []Command
	for _, c := range r.commands {
		if c.Type() == t {
			out = append(out, c)
		}
	}
	return out
}

// Draws returns the recorded draw commands, indexed or not.
func (r *Recorder) Draws() []DrawCommand {
	var out []DrawCommand
	for _, c := range r.commands {
		if d, ok := c.(DrawCommand); ok {
			out = append(out, d)
		}
	}
	return out
}

// Reset clears the command log. Resources are kept.
func (r *Recorder) Reset() { r.commands = r.commands[:0] }

// Buffer returns the live contents of buf, or nil if buf is unknown.
func (r *Recorder) Buffer(buf device.BufferID) []byte { return r.buffers[buf] }

// StorageBuffer returns the buffer bound to storage slot.
func (r *Recorder) StorageBuffer(slot int) (device.BufferID, bool) {
	b, ok := r.storage[slot]
	return b, ok
}

// Live returns the number of buffers, textures and programs not destroyed.
func (r *Recorder) Live() int { return len(r.buffers) + len(r.textures) + len(r.programs) }

// Uniform returns the last value stored for the named uniform of p.
func (r *Recorder) Uniform(p device.ProgramID, name string) ([]uint32, bool) {
	prog, ok := r.programs[p]
	if !ok {
		return nil, false
	}
	loc, ok := prog.locations[name]
	if !ok {
		return nil, false
	}
	v, ok := r.uniforms[p][loc]
	return v, ok
}

func (r *Recorder) Language() device.Language { return r.lang }

func (r *Recorder) CreateBuffer(usage gputypes.BufferUsage, size int) (device.BufferID, error) {
	if size < 0 {
		return device.InvalidID, fmt.Errorf("recording: negative buffer size %d", size)
	}
	id := device.BufferID(r.id())
	r.buffers[id] = make([]byte, size)
	r.record(CreateBufferCommand{Buffer: id, Usage: usage, Size: size})
	return id, nil
}

func (r *Recorder) WriteBuffer(buf device.BufferID, offset int, data []byte) {
	b, ok := r.buffers[buf]
	if !ok {
		r.fail(fmt.Errorf("recording: write %d: %w", buf, device.ErrUnknownBuffer))
		return
	}
	if offset < 0 || offset+len(data) > len(b) {
		r.fail(fmt.Errorf("recording: write %d bytes at %d into %d-byte buffer: %w", len(data), offset, len(b), device.ErrOutOfRange))
		return
	}
	copy(b[offset:], data)
	r.record(WriteBufferCommand{Buffer: buf, Offset: offset, Data: slices.Clone(data)})
}

func (r *Recorder) ReadBuffer(buf device.BufferID, offset int, dst []byte) error {
	b, ok := r.buffers[buf]
	if !ok {
		return fmt.Errorf("recording: read %d: %w", buf, device.ErrUnknownBuffer)
	}
	if offset < 0 || offset+len(dst) > len(b) {
		return fmt.Errorf("recording: read %d bytes at %d from %d-byte buffer: %w", len(dst), offset, len(b), device.ErrOutOfRange)
	}
	copy(dst, b[offset:])
	return nil
}

func (r *Recorder) DestroyBuffer(buf device.BufferID) {
	delete(r.buffers, buf)
	r.record(DestroyBufferCommand{Buffer: buf})
}

func (r *Recorder) CreateTexture(width, height int) (device.TextureID, error) {
	if width <= 0 || height <= 0 {
		return device.InvalidID, fmt.Errorf("recording: invalid texture size %dx%d", width, height)
	}
	id := device.TextureID(r.id())
	r.textures[id] = image.Pt(width, height)
	r.record(CreateTextureCommand{Texture: id, Width: width, Height: height})
	return id, nil
}

func (r *Recorder) WriteTexture(tex device.TextureID, img *image.RGBA) {
	if _, ok := r.textures[tex]; !ok {
		r.fail(fmt.Errorf("recording: write texture %d: %w", tex, device.ErrUnknownTexture))
		return
	}
	r.record(WriteTextureCommand{Texture: tex, Bytes: len(img.Pix)})
}

func (r *Recorder) DestroyTexture(tex device.TextureID) {
	delete(r.textures, tex)
	r.record(DestroyTextureCommand{Texture: tex})
}

func (r *Recorder) CreateProgram(src device.ProgramSource) (device.ProgramID, error) {
	if log, ok := r.linkFailures[src.Name]; ok {
		return device.InvalidID, &device.LinkError{Program: src.Name, Log: log}
	}
	p := &program{name: src.Name, locations: make(map[string]device.Location)}
	for _, st := range src.Stages {
		if st.Source == "" {
			return device.InvalidID, &device.LinkError{Program: src.Name, Log: st.Stage.String() + " stage has no source"}
		}
		if st.Shader == nil {
			continue
		}
		for _, v := range st.Shader.VariablesOfKind(shader.Uniform) {
			if _, ok := v.Type.(shader.Array); ok {
				p.storage++
				continue
			}
			if _, ok := v.Type.(shader.Primitive); ok {
				p.add(v.Name)
				continue
			}
			leaves, err := shader.Leaves(v.Type, shader.Std430)
			if err != nil {
				return device.InvalidID, &device.LinkError{Program: src.Name, Log: err.Error(), Err: err}
			}
			for _, l := range leaves {
				p.add(strings.Join(append([]string{v.Name}, l.Path...), "."))
			}
		}
	}
	id := device.ProgramID(r.id())
	r.programs[id] = p
	r.uniforms[id] = make(map[device.Location][]uint32)
	r.record(CreateProgramCommand{Program: id, Name: src.Name})
	return id, nil
}

func (r *Recorder) DestroyProgram(p device.ProgramID) {
	delete(r.programs, p)
	delete(r.uniforms, p)
	if r.current == p {
		r.current = device.InvalidID
	}
	r.record(DestroyProgramCommand{Program: p})
}

func (r *Recorder) UniformLocation(p device.ProgramID, name string) device.Location {
	prog, ok := r.programs[p]
	if !ok {
		return -1
	}
	if loc, ok := prog.locations[name]; ok {
		return loc
	}
	return -1
}

func (r *Recorder) UseProgram(p device.ProgramID) {
	if _, ok := r.programs[p]; !ok {
		r.fail(fmt.Errorf("recording: use %d: %w", p, device.ErrUnknownProgram))
		return
	}
	r.current = p
	r.record(UseProgramCommand{Program: p})
}

func (r *Recorder) SetUniform(loc device.Location, kind shader.Kind, words []uint32) {
	prog, ok := r.programs[r.current]
	if !ok {
		r.fail(fmt.Errorf("recording: set uniform without a program: %w", device.ErrUnknownProgram))
		return
	}
	if loc < 0 || int(loc) >= len(prog.names) {
		return
	}
	v := slices.Clone(words)
	r.uniforms[r.current][loc] = v
	r.record(SetUniformCommand{Program: r.current, Location: loc, Name: prog.names[loc], Kind: kind, Words: v})
}

func (r *Recorder) BindTexture(unit int, tex device.TextureID) {
	r.record(BindTextureCommand{Unit: unit, Texture: tex})
}

func (r *Recorder) BindStorageBuffer(slot int, buf device.BufferID) {
	if prog, ok := r.programs[r.current]; ok && slot >= prog.storage {
		r.fail(fmt.Errorf("recording: storage slot %d of program %q with %d storage arrays", slot, prog.name, prog.storage))
	}
	r.storage[slot] = buf
	r.record(BindStorageBufferCommand{Slot: slot, Buffer: buf})
}

func (r *Recorder) BindVertexBuffer(buf device.BufferID, offset int, layout *device.VertexLayout) {
	r.record(BindVertexBufferCommand{Buffer: buf, Offset: offset, Layout: layout})
}

func (r *Recorder) BindInstanceBuffer(buf device.BufferID, offset int, layout *device.VertexLayout) {
	r.record(BindInstanceBufferCommand{Buffer: buf, Offset: offset, Layout: layout})
}

func (r *Recorder) BindIndexBuffer(buf device.BufferID, format gputypes.IndexFormat) {
	r.record(BindIndexBufferCommand{Buffer: buf, Format: format})
}

func (r *Recorder) SetScissor(rect *geom.Rect) {
	var c SetScissorCommand
	if rect != nil {
		cp := *rect
		c.Rect = &cp
	}
	r.record(c)
}

func (r *Recorder) SetStencil(s device.Stencil) { r.record(SetStencilCommand{Stencil: s}) }

func (r *Recorder) Draw(topology gputypes.PrimitiveTopology, first, count, instances int) {
	r.record(DrawCommand{Topology: topology, First: first, Count: count, Instances: instances})
}

func (r *Recorder) DrawIndexed(topology gputypes.PrimitiveTopology, first, count, instances int) {
	r.record(DrawCommand{Indexed: true, Topology: topology, First: first, Count: count, Instances: instances})
}

func (r *Recorder) Dispatch(x, y, z int) {
	r.record(DispatchCommand{X: x, Y: y, Z: z})
	if r.onDispatch != nil {
		r.onDispatch(r, x, y, z)
	}
}

// Submit records the submission and returns the first error recorded
// since the previous Submit.
func (r *Recorder) Submit() error {
	r.record(SubmitCommand{})
	err := r.err
	r.err = nil
	return err
}
