// Package wgsl emits WGSL modules from a shader.Shader, together with the
// binding reflection a WebGPU device needs to feed them.
//
// Uniforms other than textures and storage arrays are packed into one
// uniform block at binding 0. Textures take two bindings, the texture and
// its sampler. Storage arrays follow in declaration order. Vertex inputs
// and stage varyings become private globals filled by a generated entry
// point, so method bodies read them by name exactly as in GLSL.
package wgsl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/canvas/shader"
)

// ErrUnsupported is returned for constructs WGSL cannot express.
var ErrUnsupported = errors.New("wgsl: unsupported construct")

// Generated entry point names.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
	ComputeEntry  = "cs_main"
)

const (
	uniformsVar   = "_uniforms"
	uniformsType  = "_Uniforms"
	samplerSuffix = "_sampler"
)

// Module is an emitted WGSL module and its binding layout. All bindings
// live in one bind group.
type Module struct {
	Source     string
	Stage      shader.Stage
	EntryPoint string
	Group      int

	// UniformBinding is the binding of the uniform block, or -1 if the
	// shader has no plain uniforms.
	UniformBinding int
	// UniformSize is the byte size of the uniform block.
	UniformSize int
	Uniforms    []UniformSlot
	Textures    []TextureSlot
	Storage     []StorageSlot
	// Attributes lists the flattened vertex inputs in location order.
	Attributes []Attribute
}

// UniformSlot locates one primitive uniform, or one primitive field of a
// structure uniform, inside the uniform block. Name is the dotted path.
type UniformSlot struct {
	Name   string
	Kind   shader.Kind
	Offset int
}

// TextureSlot is a texture uniform with its sampler.
type TextureSlot struct {
	Name           string
	Binding        int
	SamplerBinding int
}

// StorageSlot is a storage array uniform.
type StorageSlot struct {
	Name     string
	Binding  int
	Elem     shader.Type
	ReadBack bool
}

// Attribute is one flattened vertex input.
type Attribute struct {
	Name     string
	Location int
	Kind     shader.Kind
}

// UniformSlot returns the slot with the given dotted name.
func (m *Module) UniformSlot(name string) (UniformSlot, bool) {
	for _, u := range m.Uniforms {
		if u.Name == name {
			return u, true
		}
	}
	return UniformSlot{}, false
}

// Emit returns the WGSL module for s. Like glsl.Emit, it keeps no state
// between calls and its output depends only on s.
func Emit(s *shader.Shader) (*Module, error) {
	return EmitGroup(s, 0)
}

// EmitGroup is Emit with every binding placed in bind group group. A
// render pipeline puts its vertex and fragment modules in different
// groups so their binding numbers do not collide.
func EmitGroup(s *shader.Shader, group int) (*Module, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if group < 0 {
		return nil, fmt.Errorf("wgsl: negative bind group %d", group)
	}
	e := &emitter{
		shader: s,
		mod:    &Module{Stage: s.Stage, Group: group, UniformBinding: -1},
	}
	if err := e.emitShader(); err != nil {
		return nil, fmt.Errorf("wgsl: shader %q: %w", s.Name, err)
	}
	return e.mod, nil
}

type emitter struct {
	shader *shader.Shader
	mod    *Module

	out    *strings.Builder
	indent int

	binding  int
	location int
	// nonFinite is set when an expression needs the infinity/NaN helpers.
	nonFinite bool
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

func (e *emitter) writeLine(format string, args ...any) {
	for range e.indent {
		e.out.WriteString("    ")
	}
	if len(args) == 0 {
		e.out.WriteString(format)
	} else {
		fmt.Fprintf(e.out, format, args...)
	}
	e.out.WriteByte('\n')
}

func (e *emitter) emitShader() error {
	var decls, funcs strings.Builder

	e.out = &decls
	for _, st := range e.shader.SortedStructures() {
		if err := e.emitStruct(st); err != nil {
			return err
		}
	}
	if err := e.emitBindings(); err != nil {
		return err
	}
	if err := e.emitPrivates(); err != nil {
		return err
	}

	e.out = &funcs
	for _, m := range e.shader.Methods {
		if err := e.emitMethod(m); err != nil {
			return fmt.Errorf("method %s: %w", m.Name, err)
		}
	}
	if err := e.emitEntry(); err != nil {
		return err
	}

	var src strings.Builder
	src.WriteString(decls.String())
	if e.nonFinite {
		src.WriteString(nonFiniteHelpers)
	}
	src.WriteString(funcs.String())
	e.mod.Source = src.String()
	return nil
}

const nonFiniteHelpers = `fn _positive_infinity() -> f32 {
    let bits = 0x7f800000u;
    return bitcast<f32>(bits);
}

fn _negative_infinity() -> f32 {
    return -_positive_infinity();
}

fn _nan() -> f32 {
    return 0.0 * _positive_infinity();
}

`

func (e *emitter) emitStruct(st *shader.Structure) error {
	e.writeLine("struct %s {", Escape(st.Name))
	e.indent++
	for _, f := range st.Fields {
		if _, ok := f.Type.(shader.Array); ok {
			return unsupported("structure %s: nested array field %s", st.Name, f.Name)
		}
		if shader.KindOf(f.Type) == shader.Texture {
			return unsupported("structure %s: texture field %s", st.Name, f.Name)
		}
		tn, err := typeName(f.Type)
		if err != nil {
			return fmt.Errorf("structure %s field %s: %w", st.Name, f.Name, err)
		}
		e.writeLine("%s: %s,", Escape(f.Name), tn)
	}
	e.indent--
	e.writeLine("}")
	e.writeLine("")
	return nil
}

// hostShareable rejects bools nested in buffer-backed structures.
func hostShareable(t shader.Type, std shader.Standard) error {
	leaves, err := shader.Leaves(t, std)
	if err != nil {
		return unsupported("%v", err)
	}
	for _, l := range leaves {
		if l.Kind == shader.Bool && len(l.Path) > 0 {
			return unsupported("bool field %s in buffer type %s", strings.Join(l.Path, "."), t)
		}
		if l.Kind == shader.Texture {
			return unsupported("texture in buffer type %s", t)
		}
	}
	return nil
}

func (e *emitter) emitBindings() error {
	uniforms := e.shader.VariablesOfKind(shader.Uniform)

	block := &shader.Structure{Name: uniformsType}
	for _, v := range uniforms {
		if _, ok := v.Type.(shader.Array); ok || shader.KindOf(v.Type) == shader.Texture {
			continue
		}
		if _, ok := v.Type.(*shader.Structure); ok {
			if err := hostShareable(v.Type, shader.WGSLUniform); err != nil {
				return fmt.Errorf("uniform %s: %w", v.Name, err)
			}
		}
		block.Fields = append(block.Fields, shader.Field{Name: v.Name, Type: v.Type})
	}
	if len(block.Fields) > 0 {
		leaves, err := shader.Leaves(block, shader.WGSLUniform)
		if err != nil {
			return unsupported("uniform block: %v", err)
		}
		_, size, err := shader.Offsets(block, shader.WGSLUniform)
		if err != nil {
			return unsupported("uniform block: %v", err)
		}
		for _, l := range leaves {
			e.mod.Uniforms = append(e.mod.Uniforms, UniformSlot{
				Name:   strings.Join(l.Path, "."),
				Kind:   l.Kind,
				Offset: l.Offset,
			})
		}
		e.mod.UniformSize = size
		e.mod.UniformBinding = e.binding

		e.writeLine("struct %s {", uniformsType)
		e.indent++
		for _, f := range block.Fields {
			tn := "u32"
			if shader.KindOf(f.Type) != shader.Bool {
				tn, err = typeName(f.Type)
				if err != nil {
					return fmt.Errorf("uniform %s: %w", f.Name, err)
				}
			}
			e.writeLine("%s: %s,", Escape(f.Name), tn)
		}
		e.indent--
		e.writeLine("}")
		e.writeLine("")
		e.writeLine("@group(%d) @binding(%d) var<uniform> %s: %s;", e.mod.Group, e.binding, uniformsVar, uniformsType)
		e.binding++
	}

	access := "read"
	if e.shader.Stage == shader.Compute {
		access = "read_write"
	}
	for _, v := range uniforms {
		name := Escape(v.Name)
		switch t := v.Type.(type) {
		case shader.Array:
			if err := hostShareable(t.Elem, shader.Std430); err != nil {
				return fmt.Errorf("storage buffer %s: %w", v.Name, err)
			}
			if shader.KindOf(t.Elem) == shader.Bool {
				return unsupported("storage buffer %s of bool", v.Name)
			}
			tn, err := typeName(t.Elem)
			if err != nil {
				return fmt.Errorf("storage buffer %s: %w", v.Name, err)
			}
			e.writeLine("@group(%d) @binding(%d) var<storage, %s> %s: array<%s>;", e.mod.Group, e.binding, access, name, tn)
			e.mod.Storage = append(e.mod.Storage, StorageSlot{Name: v.Name, Binding: e.binding, Elem: t.Elem, ReadBack: v.ReadBack})
			e.binding++
		default:
			if shader.KindOf(v.Type) != shader.Texture {
				continue
			}
			e.writeLine("@group(%d) @binding(%d) var %s: texture_2d<f32>;", e.mod.Group, e.binding, name)
			e.writeLine("@group(%d) @binding(%d) var %s%s: sampler;", e.mod.Group, e.binding+1, name, samplerSuffix)
			e.mod.Textures = append(e.mod.Textures, TextureSlot{Name: v.Name, Binding: e.binding, SamplerBinding: e.binding + 1})
			e.binding += 2
		}
	}
	if e.binding > 0 {
		e.writeLine("")
	}
	return nil
}

// emitPrivates declares the stage inputs and outputs as private globals.
func (e *emitter) emitPrivates() error {
	s := e.shader
	inputs := s.VariablesOfKind(shader.VertexInput)
	outputs := s.VariablesOfKind(shader.VertexOutput)
	if s.Stage != shader.Vertex && len(inputs) > 0 {
		return unsupported("vertex input %s in %s shader", inputs[0].Name, s.Stage)
	}
	if s.Stage == shader.Compute && len(outputs) > 0 {
		return unsupported("vertex output %s in compute shader", outputs[0].Name)
	}
	wrote := false
	for _, v := range inputs {
		if err := e.flatten(Escape(v.Name), v.Type); err != nil {
			return fmt.Errorf("vertex input %s: %w", v.Name, err)
		}
		wrote = true
	}
	for _, v := range outputs {
		p, ok := v.Type.(shader.Primitive)
		if !ok || p.Kind == shader.Void || p.Kind == shader.Texture || p.Kind == shader.Bool {
			return unsupported("vertex output %s of type %s", v.Name, v.Type)
		}
		tn, err := typeName(p)
		if err != nil {
			return err
		}
		e.writeLine("var<private> %s: %s;", Escape(v.Name), tn)
		wrote = true
	}
	if wrote {
		e.writeLine("")
	}
	return nil
}

func (e *emitter) flatten(name string, t shader.Type) error {
	switch t := t.(type) {
	case shader.Primitive:
		switch t.Kind {
		case shader.Void, shader.Bool, shader.Texture, shader.Matrix3x2, shader.Matrix4x4:
			return unsupported("attribute %s of type %s", name, t)
		}
		tn, err := typeName(t)
		if err != nil {
			return err
		}
		e.writeLine("var<private> %s: %s;", name, tn)
		e.mod.Attributes = append(e.mod.Attributes, Attribute{Name: name, Location: e.location, Kind: t.Kind})
		e.location++
		return nil
	case *shader.Structure:
		for _, f := range t.Fields {
			if err := e.flatten(name+"_"+f.Name, f.Type); err != nil {
				return err
			}
		}
		return nil
	}
	return unsupported("attribute %s of type %s", name, t)
}

func (e *emitter) emitMethod(m *shader.Method) error {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		if _, ok := p.Type.(shader.Reference); ok {
			return unsupported("reference parameter %s", p.Name)
		}
		tn, err := typeName(p.Type)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		params[i] = Escape(p.Name) + ": " + tn
	}
	ret := ""
	if shader.KindOf(m.Return) != shader.Void || !isPrimitive(m.Return) {
		tn, err := typeName(m.Return)
		if err != nil {
			return err
		}
		ret = " -> " + tn
	}
	e.writeLine("fn %s(%s)%s {", Escape(m.Name), strings.Join(params, ", "), ret)
	e.indent++
	for _, l := range m.Locals {
		tn, err := typeName(l.Type)
		if err != nil {
			return fmt.Errorf("local %s: %w", l.Name, err)
		}
		if shader.KindOf(l.Type) == shader.Texture {
			return unsupported("texture local %s", l.Name)
		}
		e.writeLine("var %s: %s = %s();", Escape(l.Name), tn, tn)
	}
	if m.Body != nil {
		for _, st := range m.Body.Stmts {
			if err := e.stmt(st); err != nil {
				return err
			}
		}
	}
	e.indent--
	e.writeLine("}")
	e.writeLine("")
	return nil
}

func isPrimitive(t shader.Type) bool {
	_, ok := t.(shader.Primitive)
	return ok
}

func (e *emitter) emitEntry() error {
	s := e.shader
	entry := Escape(s.Entry.Name)
	outputs := s.VariablesOfKind(shader.VertexOutput)

	varying := func(i int, v *shader.Variable) string {
		tn, _ := typeName(v.Type)
		interp := ""
		if shader.KindOf(v.Type).Scalar() == shader.Int {
			interp = " @interpolate(flat)"
		}
		return fmt.Sprintf("@location(%d)%s %s: %s,", i, interp, Escape(v.Name), tn)
	}

	switch s.Stage {
	case shader.Vertex:
		e.mod.EntryPoint = VertexEntry
		param := ""
		if len(e.mod.Attributes) > 0 {
			e.writeLine("struct _VertexInput {")
			e.indent++
			for _, a := range e.mod.Attributes {
				tn, _ := typeName(shader.Primitive{Kind: a.Kind})
				e.writeLine("@location(%d) %s: %s,", a.Location, a.Name, tn)
			}
			e.indent--
			e.writeLine("}")
			e.writeLine("")
			param = "_input: _VertexInput"
		}
		e.writeLine("struct _VertexOutput {")
		e.indent++
		e.writeLine("@builtin(position) _position: vec4<f32>,")
		for i, v := range outputs {
			e.writeLine("%s", varying(i, v))
		}
		e.indent--
		e.writeLine("}")
		e.writeLine("")
		e.writeLine("@vertex")
		e.writeLine("fn %s(%s) -> _VertexOutput {", VertexEntry, param)
		e.indent++
		for _, a := range e.mod.Attributes {
			e.writeLine("%s = _input.%s;", a.Name, a.Name)
		}
		e.writeLine("var _output: _VertexOutput;")
		e.writeLine("_output._position = %s();", entry)
		for _, v := range outputs {
			name := Escape(v.Name)
			e.writeLine("_output.%s = %s;", name, name)
		}
		e.writeLine("return _output;")
		e.indent--
		e.writeLine("}")

	case shader.Fragment:
		e.mod.EntryPoint = FragmentEntry
		param := ""
		if len(outputs) > 0 {
			e.writeLine("struct _FragmentInput {")
			e.indent++
			for i, v := range outputs {
				e.writeLine("%s", varying(i, v))
			}
			e.indent--
			e.writeLine("}")
			e.writeLine("")
			param = "_input: _FragmentInput"
		}
		e.writeLine("@fragment")
		e.writeLine("fn %s(%s) -> @location(0) vec4<f32> {", FragmentEntry, param)
		e.indent++
		for _, v := range outputs {
			name := Escape(v.Name)
			e.writeLine("%s = _input.%s;", name, name)
		}
		e.writeLine("return %s();", entry)
		e.indent--
		e.writeLine("}")

	case shader.Compute:
		e.mod.EntryPoint = ComputeEntry
		w := s.Workgroup()
		e.writeLine("@compute @workgroup_size(%d, %d, %d)", w[0], w[1], w[2])
		e.writeLine("fn %s(@builtin(global_invocation_id) _gid: vec3<u32>) {", ComputeEntry)
		e.indent++
		switch params := s.Entry.Params; {
		case len(params) == 0:
			e.writeLine("%s();", entry)
		case shader.KindOf(params[0].Type) == shader.Int3:
			e.writeLine("%s(vec3<i32>(_gid));", entry)
		default:
			e.writeLine("%s(i32(_gid.x));", entry)
		}
		e.indent--
		e.writeLine("}")
	}
	return nil
}

var primitiveNames = map[shader.Kind]string{
	shader.Bool:      "bool",
	shader.Int:       "i32",
	shader.Int2:      "vec2<i32>",
	shader.Int3:      "vec3<i32>",
	shader.Int4:      "vec4<i32>",
	shader.Float:     "f32",
	shader.Float2:    "vec2<f32>",
	shader.Float3:    "vec3<f32>",
	shader.Float4:    "vec4<f32>",
	shader.Matrix3x2: "mat3x2<f32>",
	shader.Matrix4x4: "mat4x4<f32>",
	shader.Texture:   "texture_2d<f32>",
}

// typeName returns the WGSL spelling of t.
func typeName(t shader.Type) (string, error) {
	switch t := t.(type) {
	case shader.Primitive:
		if name, ok := primitiveNames[t.Kind]; ok {
			return name, nil
		}
		return "", unsupported("primitive kind %s", t.Kind)
	case *shader.Structure:
		return Escape(t.Name), nil
	case shader.Array:
		elem, err := typeName(t.Elem)
		if err != nil {
			return "", err
		}
		return "array<" + elem + ">", nil
	case shader.Reference:
		return "", unsupported("reference type %s", t)
	}
	return "", unsupported("type %v", t)
}
