package shader

import (
	"errors"
	"fmt"
)

// Stage is the pipeline stage a shader runs in.
type Stage uint8

// Shader stages.
const (
	Vertex Stage = iota
	Fragment
	Compute
)

func (s Stage) String() string {
	switch s {
	case Vertex:
		return "vertex"
	case Fragment:
		return "fragment"
	case Compute:
		return "compute"
	}
	return fmt.Sprintf("Stage(%d)", s)
}

// VarKind is the storage class of a variable.
type VarKind uint8

// Variable kinds.
const (
	// Uniform is set from the host before a draw. Array-typed uniforms
	// are storage buffers.
	Uniform VarKind = iota
	// VertexInput is a per-vertex attribute.
	VertexInput
	// VertexOutput is written by the vertex stage and read, interpolated,
	// by the fragment stage.
	VertexOutput
	// Parameter is a method parameter.
	Parameter
	// Local is a method-local variable.
	Local
)

func (k VarKind) String() string {
	switch k {
	case Uniform:
		return "uniform"
	case VertexInput:
		return "vertex input"
	case VertexOutput:
		return "vertex output"
	case Parameter:
		return "parameter"
	case Local:
		return "local"
	}
	return fmt.Sprintf("VarKind(%d)", k)
}

// Variable is a named, typed storage location.
type Variable struct {
	Name string
	Type Type
	Kind VarKind
	// Field is the host struct field that supplies a uniform's value.
	// It is a lookup key only; the shader never holds host values.
	Field string
	// ReadBack marks a storage array to be copied back to the host after
	// a compute dispatch.
	ReadBack bool
}

// Var creates a variable.
func Var(name string, t Type, kind VarKind) *Variable {
	return &Variable{Name: name, Type: t, Kind: kind}
}

// Method is a function of a shader.
type Method struct {
	Name   string
	Return Type
	Params []*Variable
	Locals []*Variable
	Body   *Block
}

// Shader is a complete single-stage program.
type Shader struct {
	Name  string
	Stage Stage
	// Structures lists structure types to declare. Structures reachable
	// from variables and methods are declared even when not listed.
	Structures []*Structure
	Variables  []*Variable
	Methods    []*Method
	// Entry is the method the stage wrapper calls. It must be one of Methods.
	Entry *Method
	// WorkgroupSize is the compute local size; zero components count as 1.
	WorkgroupSize [3]int
}

// Shader validation errors.
var (
	ErrNoEntry        = errors.New("shader: entry point not set")
	ErrEntryNotMethod = errors.New("shader: entry point is not a method of the shader")
	ErrEntrySignature = errors.New("shader: entry point has the wrong signature for its stage")
)

// Validate checks the stage contract of the entry point: vertex and
// fragment entries take no parameters and return float4; compute entries
// return void and take either nothing or one int/int3 invocation id.
func (s *Shader) Validate() error {
	if s.Entry == nil {
		return ErrNoEntry
	}
	found := false
	for _, m := range s.Methods {
		if m == s.Entry {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrEntryNotMethod, s.Entry.Name)
	}
	e := s.Entry
	switch s.Stage {
	case Vertex, Fragment:
		if len(e.Params) != 0 || KindOf(e.Return) != Float4 {
			return fmt.Errorf("%w: %s %s must be float4 %s()", ErrEntrySignature, s.Stage, e.Name, e.Name)
		}
	case Compute:
		if KindOf(e.Return) != Void || len(e.Params) > 1 {
			return fmt.Errorf("%w: compute %s must return void", ErrEntrySignature, e.Name)
		}
		if len(e.Params) == 1 {
			if k := KindOf(e.Params[0].Type); k != Int && k != Int3 {
				return fmt.Errorf("%w: compute %s parameter must be int or int3", ErrEntrySignature, e.Name)
			}
		}
	default:
		return fmt.Errorf("%w: unknown stage %s", ErrEntrySignature, s.Stage)
	}
	return nil
}

// Workgroup returns WorkgroupSize with zero components replaced by 1.
func (s *Shader) Workgroup() [3]int {
	w := s.WorkgroupSize
	for i := range w {
		if w[i] <= 0 {
			w[i] = 1
		}
	}
	return w
}

// VariablesOfKind returns the shader variables of kind k in declaration order.
func (s *Shader) VariablesOfKind(k VarKind) []*Variable {
	var out []*Variable
	for _, v := range s.Variables {
		if v.Kind == k {
			out = append(out, v)
		}
	}
	return out
}

// SortedStructures returns every structure the shader needs, each after
// the structures its fields depend on. The order is deterministic: listed
// structures first, then those reached from variables, then from method
// signatures and locals, each in declaration order.
func (s *Shader) SortedStructures() []*Structure {
	var out []*Structure
	seen := make(map[*Structure]bool)
	var visit func(t Type)
	visit = func(t Type) {
		switch t := t.(type) {
		case *Structure:
			if seen[t] {
				return
			}
			seen[t] = true
			for _, f := range t.Fields {
				visit(f.Type)
			}
			out = append(out, t)
		case Array:
			visit(t.Elem)
		case Reference:
			visit(t.Elem)
		}
	}
	for _, st := range s.Structures {
		visit(st)
	}
	for _, v := range s.Variables {
		visit(v.Type)
	}
	for _, m := range s.Methods {
		visit(m.Return)
		for _, p := range m.Params {
			visit(p.Type)
		}
		for _, l := range m.Locals {
			visit(l.Type)
		}
	}
	return out
}
