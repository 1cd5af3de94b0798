// Package glsl emits GLSL 4.30 core source from a shader.Shader.
package glsl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/canvas/shader"
)

// Version is the #version line of every emitted shader.
const Version = "#version 430 core"

// ErrUnsupported is returned for types, expressions and intrinsics the
// emitter cannot express in GLSL.
var ErrUnsupported = errors.New("glsl: unsupported construct")

// Names of the module-level constants standing in for non-finite floats.
const (
	posInfName = "_positive_infinity"
	negInfName = "_negative_infinity"
	nanName    = "_nan"
	fragColor  = "_fragColor"
)

// Emit returns the GLSL source for s. The output depends only on s, so
// emitting the same shader twice yields identical text, and Emit may be
// called from several goroutines at once.
func Emit(s *shader.Shader) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	e := &emitter{shader: s}
	if err := e.emitShader(); err != nil {
		return "", fmt.Errorf("glsl: shader %q: %w", s.Name, err)
	}
	return e.out.String(), nil
}

// emitter holds the state of one Emit call.
type emitter struct {
	shader *shader.Shader
	out    strings.Builder
	indent int

	// location is the next vertex attribute location.
	location int
	// binding is the next storage buffer binding slot.
	binding int
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
		fmt.Fprintf(&e.out, format, args...)
	}
	e.out.WriteByte('\n')
}

func (e *emitter) emitShader() error {
	e.writeLine(Version)
	e.writeLine("")

	for _, st := range e.shader.SortedStructures() {
		if err := e.emitStruct(st); err != nil {
			return err
		}
	}

	e.writeLine("const float %s = uintBitsToFloat(0x7F800000u);", posInfName)
	e.writeLine("const float %s = -%s;", negInfName, posInfName)
	e.writeLine("const float %s = 0.0 * %s;", nanName, posInfName)
	e.writeLine("")

	if err := e.emitUniforms(); err != nil {
		return err
	}
	if err := e.emitStageIO(); err != nil {
		return err
	}

	for _, m := range e.shader.Methods {
		sig, err := e.signature(m)
		if err != nil {
			return err
		}
		e.writeLine("%s;", sig)
	}
	e.writeLine("")

	for _, m := range e.shader.Methods {
		if err := e.emitMethod(m); err != nil {
			return fmt.Errorf("method %s: %w", m.Name, err)
		}
	}
	return e.emitMain()
}

func (e *emitter) emitStruct(st *shader.Structure) error {
	e.writeLine("struct %s {", Escape(st.Name))
	e.indent++
	for _, f := range st.Fields {
		if _, ok := f.Type.(shader.Array); ok {
			return unsupported("structure %s: nested array field %s", st.Name, f.Name)
		}
		tn, err := typeName(f.Type)
		if err != nil {
			return fmt.Errorf("structure %s field %s: %w", st.Name, f.Name, err)
		}
		e.writeLine("%s %s;", tn, Escape(f.Name))
	}
	e.indent--
	e.writeLine("};")
	e.writeLine("")
	return nil
}

func (e *emitter) emitUniforms() error {
	wrote := false
	for _, v := range e.shader.VariablesOfKind(shader.Uniform) {
		wrote = true
		name := Escape(v.Name)
		if arr, ok := v.Type.(shader.Array); ok {
			tn, err := typeName(arr.Elem)
			if err != nil {
				return fmt.Errorf("storage buffer %s: %w", v.Name, err)
			}
			if shader.KindOf(arr.Elem) == shader.Texture {
				return unsupported("storage buffer %s: array of textures", v.Name)
			}
			e.writeLine("layout(std430, binding = %d) buffer _buffer_%s {", e.binding, v.Name)
			e.writeLine("    %s %s[];", tn, name)
			e.writeLine("};")
			e.binding++
			continue
		}
		tn, err := typeName(v.Type)
		if err != nil {
			return fmt.Errorf("uniform %s: %w", v.Name, err)
		}
		e.writeLine("uniform %s %s;", tn, name)
	}
	if wrote {
		e.writeLine("")
	}
	return nil
}

func (e *emitter) emitStageIO() error {
	s := e.shader
	inputs := s.VariablesOfKind(shader.VertexInput)
	outputs := s.VariablesOfKind(shader.VertexOutput)
	if s.Stage != shader.Vertex && len(inputs) > 0 {
		return unsupported("vertex input %s in %s shader", inputs[0].Name, s.Stage)
	}
	if s.Stage == shader.Compute && len(outputs) > 0 {
		return unsupported("vertex output %s in compute shader", outputs[0].Name)
	}

	for _, v := range inputs {
		if err := e.flatten(Escape(v.Name), v.Type); err != nil {
			return fmt.Errorf("vertex input %s: %w", v.Name, err)
		}
	}
	qualifier := "out"
	if s.Stage == shader.Fragment {
		qualifier = "in"
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
		interp := ""
		if p.Kind.Scalar() == shader.Int {
			interp = "flat "
		}
		e.writeLine("%s%s %s %s;", interp, qualifier, tn, Escape(v.Name))
	}

	switch s.Stage {
	case shader.Fragment:
		e.writeLine("out vec4 %s;", fragColor)
	case shader.Compute:
		w := s.Workgroup()
		e.writeLine("layout(local_size_x = %d, local_size_y = %d, local_size_z = %d) in;", w[0], w[1], w[2])
	}
	e.writeLine("")
	return nil
}

// flatten declares one attribute per primitive leaf of t. Structure steps
// join names with an underscore; matrices take one location per column.
func (e *emitter) flatten(name string, t shader.Type) error {
	switch t := t.(type) {
	case shader.Primitive:
		switch t.Kind {
		case shader.Void, shader.Bool, shader.Texture:
			return unsupported("attribute %s of type %s", name, t)
		}
		tn, err := typeName(t)
		if err != nil {
			return err
		}
		e.writeLine("layout(location = %d) in %s %s;", e.location, tn, name)
		if t.Kind.IsMatrix() {
			e.location += t.Kind.Components()
		} else {
			e.location++
		}
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

func (e *emitter) signature(m *shader.Method) (string, error) {
	ret, err := typeName(m.Return)
	if err != nil {
		return "", fmt.Errorf("method %s: %w", m.Name, err)
	}
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		tn, err := typeName(p.Type)
		if err != nil {
			return "", fmt.Errorf("method %s parameter %s: %w", m.Name, p.Name, err)
		}
		if _, ok := p.Type.(shader.Reference); ok {
			tn = "inout " + tn
		}
		params[i] = tn + " " + Escape(p.Name)
	}
	return fmt.Sprintf("%s %s(%s)", ret, Escape(m.Name), strings.Join(params, ", ")), nil
}

func (e *emitter) emitMethod(m *shader.Method) error {
	sig, err := e.signature(m)
	if err != nil {
		return err
	}
	e.writeLine("%s {", sig)
	e.indent++
	for _, l := range m.Locals {
		tn, err := typeName(l.Type)
		if err != nil {
			return fmt.Errorf("local %s: %w", l.Name, err)
		}
		zero, err := defaultValue(l.Type)
		if err != nil {
			return fmt.Errorf("local %s: %w", l.Name, err)
		}
		e.writeLine("%s %s = %s;", tn, Escape(l.Name), zero)
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

func (e *emitter) emitMain() error {
	entry := Escape(e.shader.Entry.Name)
	e.writeLine("void main() {")
	e.indent++
	switch e.shader.Stage {
	case shader.Vertex:
		e.writeLine("gl_Position = %s();", entry)
	case shader.Fragment:
		e.writeLine("%s = %s();", fragColor, entry)
	case shader.Compute:
		switch params := e.shader.Entry.Params; {
		case len(params) == 0:
			e.writeLine("%s();", entry)
		case shader.KindOf(params[0].Type) == shader.Int3:
			e.writeLine("%s(ivec3(gl_GlobalInvocationID));", entry)
		default:
			e.writeLine("%s(int(gl_GlobalInvocationID.x));", entry)
		}
	}
	e.indent--
	e.writeLine("}")
	return nil
}

var primitiveNames = map[shader.Kind]string{
	shader.Void:      "void",
	shader.Bool:      "bool",
	shader.Int:       "int",
	shader.Int2:      "ivec2",
	shader.Int3:      "ivec3",
	shader.Int4:      "ivec4",
	shader.Float:     "float",
	shader.Float2:    "vec2",
	shader.Float3:    "vec3",
	shader.Float4:    "vec4",
	shader.Matrix3x2: "mat3x2",
	shader.Matrix4x4: "mat4",
	shader.Texture:   "sampler2D",
}

// typeName returns the GLSL spelling of t. Arrays have no spelling of
// their own; they only appear as storage buffer members.
func typeName(t shader.Type) (string, error) {
	switch t := t.(type) {
	case shader.Primitive:
		if name, ok := primitiveNames[t.Kind]; ok {
			return name, nil
		}
		return "", unsupported("unknown primitive kind %d", t.Kind)
	case *shader.Structure:
		return Escape(t.Name), nil
	case shader.Reference:
		return typeName(t.Elem)
	case shader.Array:
		return "", unsupported("array type %s outside a storage buffer", t)
	}
	return "", unsupported("type %v", t)
}

// defaultValue returns the zero-initialized literal of t.
func defaultValue(t shader.Type) (string, error) {
	switch t := shader.Deref(t).(type) {
	case shader.Primitive:
		switch t.Kind {
		case shader.Bool:
			return "false", nil
		case shader.Int:
			return "0", nil
		case shader.Float:
			return "0.0", nil
		case shader.Int2, shader.Int3, shader.Int4:
			return primitiveNames[t.Kind] + "(0)", nil
		case shader.Float2, shader.Float3, shader.Float4, shader.Matrix3x2, shader.Matrix4x4:
			return primitiveNames[t.Kind] + "(0.0)", nil
		}
		return "", unsupported("default value of %s", t)
	case *shader.Structure:
		fields := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			v, err := defaultValue(f.Type)
			if err != nil {
				return "", fmt.Errorf("structure %s field %s: %w", t.Name, f.Name, err)
			}
			fields[i] = v
		}
		return Escape(t.Name) + "(" + strings.Join(fields, ", ") + ")", nil
	}
	return "", unsupported("default value of %v", t)
}
