package canvas

import (
	"fmt"
	"reflect"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/shader"
	"github.com/gogpu/canvas/shader/glsl"
	"github.com/gogpu/canvas/shader/wgsl"
)

// projectionUniform is the uniform the canvas fills with the matrix from
// vertex positions to clip space. Effects declare it as a 4x4 matrix.
const projectionUniform = "projection"

type effectKey struct {
	vs, fs *shader.Shader
}

// Effect is a linked shader program together with the uniforms it reads
// from host values.
type Effect struct {
	c       *Canvas
	name    string
	program device.ProgramID
	// vars are the uniforms bound from host values, both stages merged.
	vars       []*shader.Variable
	projection bool
	perDraw    bool
	released   bool
}

// EffectOption configures NewEffect.
type EffectOption func(*Effect)

// WithEffectName names the program in logs and errors.
func WithEffectName(name string) EffectOption {
	return func(e *Effect) {
		e.name = name
	}
}

// WithPerDrawUniforms marks an effect whose draws must never merge,
// because its uniforms change between draws in ways the canvas cannot
// compare.
func WithPerDrawUniforms() EffectOption {
	return func(e *Effect) {
		e.perDraw = true
	}
}

// NewEffect compiles vs and fs into the shading language of the device
// and links them. Effects are cached by shader pair: compiling the same
// pair again returns the first Effect.
//
// A uniform named "projection" of type Matrix4x4 is set by the canvas to
// the current transform followed by the projection to clip space. Every
// other uniform is read from the host value given to DrawMesh.
func (c *Canvas) NewEffect(vs, fs *shader.Shader, opts ...EffectOption) (*Effect, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if vs == nil || fs == nil || vs.Stage != shader.Vertex || fs.Stage != shader.Fragment {
		return nil, fmt.Errorf("%w: NewEffect needs a vertex and a fragment shader", ErrStage)
	}
	return c.effect(effectKey{vs, fs}, opts...)
}

func (c *Canvas) effect(key effectKey, opts ...EffectOption) (*Effect, error) {
	if e, ok := c.effects[key]; ok {
		return e, nil
	}
	e := &Effect{c: c, name: key.vs.Name}
	if key.fs != nil && key.fs.Name != "" && key.fs.Name != key.vs.Name {
		e.name += "+" + key.fs.Name
	}
	for _, opt := range opts {
		opt(e)
	}
	stages := []*shader.Shader{key.vs}
	if key.fs != nil {
		stages = append(stages, key.fs)
	}
	program, err := c.compile(e.name, stages...)
	if err != nil {
		return nil, err
	}
	e.program = program
	seen := make(map[string]bool)
	for _, s := range stages {
		for _, v := range s.VariablesOfKind(shader.Uniform) {
			if seen[v.Name] {
				continue
			}
			seen[v.Name] = true
			if v.Name == projectionUniform && shader.KindOf(v.Type) == shader.Matrix4x4 {
				e.projection = true
				continue
			}
			e.vars = append(e.vars, v)
		}
	}
	c.effects[key] = e
	c.log().Debug("canvas: effect linked", "name", e.name, "uniforms", len(e.vars), "language", c.dev.Language())
	return e, nil
}

// compile emits every stage in the device language and links them.
func (c *Canvas) compile(name string, stages ...*shader.Shader) (device.ProgramID, error) {
	lang := c.dev.Language()
	src := device.ProgramSource{Name: name, Language: lang}
	for _, s := range stages {
		if err := s.Validate(); err != nil {
			return device.InvalidID, fmt.Errorf("canvas: effect %q: %w", name, err)
		}
		text, err := emit(lang, s)
		if err != nil {
			return device.InvalidID, fmt.Errorf("canvas: effect %q: %w", name, err)
		}
		src.Stages = append(src.Stages, device.StageSource{Stage: s.Stage, Source: text, Shader: s})
	}
	id, err := c.dev.CreateProgram(src)
	if err != nil {
		return device.InvalidID, fmt.Errorf("canvas: effect %q: %w", name, err)
	}
	return id, nil
}

func emit(lang device.Language, s *shader.Shader) (string, error) {
	switch lang {
	case device.GLSL:
		return glsl.Emit(s)
	case device.WGSL:
		m, err := wgsl.Emit(s)
		if err != nil {
			return "", err
		}
		return m.Source, nil
	}
	return "", fmt.Errorf("canvas: unknown shading language %s", lang)
}

// Name returns the program name of the effect.
func (e *Effect) Name() string { return e.name }

// Release destroys the program. Pending draws with the effect fail at
// the next Flush.
func (e *Effect) Release() {
	if e.released {
		return
	}
	e.released = true
	for k, v := range e.c.effects {
		if v == e {
			delete(e.c.effects, k)
		}
	}
	e.c.binder.Forget(e.program)
	e.c.deletions.Program(e.program)
}

// hostBox holds host values that cannot be compared, so bindings stay
// comparable by pointer.
type hostBox struct{ v any }

// binding is an effect with the values of one draw. It implements
// batch.Effect: equal bindings set identical device state.
type binding struct {
	effect     *Effect
	host       any
	projection geom.Mat4
	perDraw    bool
}

// bind returns the binding of e for a draw reading uniforms from host
// with the given projection. The host value is copied at submission:
// a pointer is replaced by the struct it points to, so later writes
// through it do not reach queued draws. Values that cannot be copied
// and compared are kept boxed and flushed with the draw.
func (e *Effect) bind(host any, projection geom.Mat4) binding {
	b := binding{effect: e, host: host, projection: projection, perDraw: e.perDraw}
	if host == nil {
		return b
	}
	v := reflect.ValueOf(host)
	if v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Comparable() {
		b.host = v.Elem().Interface()
		return b
	}
	if v.Kind() == reflect.Pointer || !v.Comparable() {
		b.host = &hostBox{host}
		b.perDraw = true
	}
	return b
}

func (b binding) Batchable() bool { return !b.perDraw }

func (b binding) Apply(dev device.Device) error {
	e := b.effect
	if e.released {
		return fmt.Errorf("canvas: effect %q: %w", e.name, ErrReleased)
	}
	host := b.host
	if box, ok := host.(*hostBox); ok {
		host = box.v
	}
	if len(e.vars) > 0 {
		if host == nil {
			return fmt.Errorf("canvas: effect %q has %d uniforms and no host value", e.name, len(e.vars))
		}
		if err := e.c.binder.Bind(e.program, e.vars, host); err != nil {
			return fmt.Errorf("canvas: effect %q: %w", e.name, err)
		}
	} else {
		dev.UseProgram(e.program)
	}
	if e.projection {
		dev.SetUniform(e.c.binder.Location(e.program, projectionUniform), shader.Matrix4x4, words(b.projection))
	}
	return nil
}
