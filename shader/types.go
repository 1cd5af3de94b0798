package shader

import (
	"fmt"
	"strings"
)

// Type is the resolved type of a variable, field or expression.
// The implementations are Primitive, *Structure, Array and Reference.
type Type interface {
	String() string
	isType()
}

// Kind identifies a primitive type.
type Kind uint8

// Primitive kinds.
const (
	Void Kind = iota
	Bool
	Int
	Int2
	Int3
	Int4
	Float
	Float2
	Float3
	Float4
	Matrix3x2
	Matrix4x4
	Texture

	numKinds
)

var kindNames = [numKinds]string{
	Void:      "void",
	Bool:      "bool",
	Int:       "int",
	Int2:      "int2",
	Int3:      "int3",
	Int4:      "int4",
	Float:     "float",
	Float2:    "float2",
	Float3:    "float3",
	Float4:    "float4",
	Matrix3x2: "float3x2",
	Matrix4x4: "float4x4",
	Texture:   "texture",
}

// String returns the IR name of the kind.
func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Valid reports whether k is a known primitive kind.
func (k Kind) Valid() bool { return k < numKinds }

// Components returns the number of scalar components of a vector or
// scalar kind, the column count of a matrix, and 0 otherwise.
func (k Kind) Components() int {
	switch k {
	case Bool, Int, Float:
		return 1
	case Int2, Float2:
		return 2
	case Int3, Float3, Matrix3x2:
		return 3
	case Int4, Float4, Matrix4x4:
		return 4
	}
	return 0
}

// Scalar returns the scalar kind of a vector (Int for Int3, Float for
// Float2 and for matrices). Scalars return themselves.
func (k Kind) Scalar() Kind {
	switch k {
	case Int2, Int3, Int4:
		return Int
	case Float2, Float3, Float4, Matrix3x2, Matrix4x4:
		return Float
	}
	return k
}

// IsMatrix reports whether k is a matrix kind.
func (k Kind) IsMatrix() bool { return k == Matrix3x2 || k == Matrix4x4 }

// Vector returns the vector kind with the given scalar kind and
// component count, or Void when no such kind exists.
func Vector(scalar Kind, n int) Kind {
	switch {
	case scalar == Float && n >= 1 && n <= 4:
		return Float + Kind(n-1)
	case scalar == Int && n >= 1 && n <= 4:
		return Int + Kind(n-1)
	case scalar == Bool && n == 1:
		return Bool
	}
	return Void
}

// Primitive is a scalar, vector, matrix or texture type.
type Primitive struct {
	Kind Kind
}

func (Primitive) isType() {}

func (p Primitive) String() string { return p.Kind.String() }

// Common primitive types.
var (
	VoidType    Type = Primitive{Void}
	BoolType    Type = Primitive{Bool}
	IntType     Type = Primitive{Int}
	Int2Type    Type = Primitive{Int2}
	Int3Type    Type = Primitive{Int3}
	Int4Type    Type = Primitive{Int4}
	FloatType   Type = Primitive{Float}
	Float2Type  Type = Primitive{Float2}
	Float3Type  Type = Primitive{Float3}
	Float4Type  Type = Primitive{Float4}
	Mat3x2Type  Type = Primitive{Matrix3x2}
	Mat4Type    Type = Primitive{Matrix4x4}
	TextureType Type = Primitive{Texture}
)

// Field is one member of a Structure.
type Field struct {
	// Name is the field name in shader source.
	Name string
	Type Type
	// Host is the Go struct field name backing this field, if any.
	Host string
}

// Structure is a named aggregate. Field order is fixed at creation and
// determines both declaration order and layout order.
type Structure struct {
	Name   string
	Fields []Field
}

// NewStructure creates a structure with the given fields.
func NewStructure(name string, fields ...Field) *Structure {
	return &Structure{Name: name, Fields: fields}
}

func (*Structure) isType() {}

func (s *Structure) String() string { return s.Name }

// Field returns the field with the given name.
func (s *Structure) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Array is an unsized array. It backs a storage buffer and is only valid
// as the type of a uniform variable.
type Array struct {
	Elem Type
}

func (Array) isType() {}

func (a Array) String() string { return a.Elem.String() + "[]" }

// Reference marks an in/out method parameter.
type Reference struct {
	Elem Type
}

func (Reference) isType() {}

func (r Reference) String() string { return "ref " + r.Elem.String() }

// KindOf returns the primitive kind of t, or Void when t is not a
// primitive. References are looked through.
func KindOf(t Type) Kind {
	switch t := t.(type) {
	case Primitive:
		return t.Kind
	case Reference:
		return KindOf(t.Elem)
	}
	return Void
}

// Deref strips a Reference wrapper.
func Deref(t Type) Type {
	if r, ok := t.(Reference); ok {
		return r.Elem
	}
	return t
}

// Equal reports whether two types are identical. Structures compare by
// identity.
func Equal(a, b Type) bool {
	switch a := a.(type) {
	case Primitive:
		b, ok := b.(Primitive)
		return ok && a == b
	case *Structure:
		b, ok := b.(*Structure)
		return ok && a == b
	case Array:
		b, ok := b.(Array)
		return ok && Equal(a.Elem, b.Elem)
	case Reference:
		b, ok := b.(Reference)
		return ok && Equal(a.Elem, b.Elem)
	}
	return false
}

// swizzleType resolves a vector swizzle such as "xy" or "W" on kind k.
func swizzleType(k Kind, sel string) (Type, bool) {
	n := k.Components()
	if k.IsMatrix() || k == Texture || n == 0 || len(sel) == 0 || len(sel) > 4 {
		return nil, false
	}
	for _, c := range strings.ToLower(sel) {
		idx := strings.IndexRune("xyzw", c)
		if idx < 0 {
			idx = strings.IndexRune("rgba", c)
		}
		if idx < 0 || idx >= n {
			return nil, false
		}
	}
	v := Vector(k.Scalar(), len(sel))
	if v == Void {
		return nil, false
	}
	return Primitive{v}, true
}
