package shader

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gogpu/canvas/geom"
)

// ErrHostType is returned when a Go type has no shader equivalent.
var ErrHostType = errors.New("shader: unsupported host type")

// Sampler is implemented by host texture handles. Fields whose type
// implements it map to the Texture kind.
type Sampler interface {
	SamplerID() uint64
}

var (
	samplerType = reflect.TypeFor[Sampler]()

	hostKinds = map[reflect.Type]Kind{
		reflect.TypeFor[bool]():        Bool,
		reflect.TypeFor[int32]():       Int,
		reflect.TypeFor[float32]():     Float,
		reflect.TypeFor[[2]int32]():    Int2,
		reflect.TypeFor[[3]int32]():    Int3,
		reflect.TypeFor[[4]int32]():    Int4,
		reflect.TypeFor[[2]float32]():  Float2,
		reflect.TypeFor[[3]float32]():  Float3,
		reflect.TypeFor[[4]float32]():  Float4,
		reflect.TypeFor[geom.Vec2]():   Float2,
		reflect.TypeFor[geom.Vec3]():   Float3,
		reflect.TypeFor[geom.Vec4]():   Float4,
		reflect.TypeFor[geom.Color]():  Float4,
		reflect.TypeFor[geom.Matrix](): Matrix3x2,
		reflect.TypeFor[geom.Mat4]():   Matrix4x4,
	}

	// structCache maps reflect.Type to *Structure so that one host type
	// always yields the same structure.
	structCache sync.Map
)

// TypeOf returns the shader type of a Go type: bool, int32, float32,
// fixed arrays of 2 to 4 int32/float32, the geom vector, color and matrix
// types, Sampler implementations, structs of those, and slices (Array).
func TypeOf(t reflect.Type) (Type, error) {
	if k, ok := hostKinds[t]; ok {
		return Primitive{k}, nil
	}
	if t.Implements(samplerType) {
		return TextureType, nil
	}
	switch t.Kind() {
	case reflect.Slice:
		elem, err := TypeOf(t.Elem())
		if err != nil {
			return nil, err
		}
		if _, ok := elem.(Array); ok {
			return nil, fmt.Errorf("%w: nested slice %s", ErrHostType, t)
		}
		return Array{Elem: elem}, nil
	case reflect.Struct:
		return structOf(t)
	}
	return nil, fmt.Errorf("%w: %s", ErrHostType, t)
}

func structOf(t reflect.Type) (*Structure, error) {
	if s, ok := structCache.Load(t); ok {
		return s.(*Structure), nil
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("%w: anonymous struct %s", ErrHostType, t)
	}
	s := &Structure{Name: t.Name()}
	for f := range exportedFields(t) {
		ft, err := TypeOf(f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		s.Fields = append(s.Fields, Field{Name: shaderName(f), Type: ft, Host: f.Name})
	}
	actual, _ := structCache.LoadOrStore(t, s)
	return actual.(*Structure), nil
}

// VariablesOf returns one variable of the given kind for every exported
// field of the host struct type t. The shader name comes from the
// `shader:"name"` tag, or the field name with a lowercased first letter.
// The tag option `readback` marks storage arrays for readback.
func VariablesOf(t reflect.Type, kind VarKind) ([]*Variable, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrHostType, t)
	}
	var vars []*Variable
	for f := range exportedFields(t) {
		ft, err := TypeOf(f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		_, opts, _ := strings.Cut(f.Tag.Get("shader"), ",")
		vars = append(vars, &Variable{
			Name:     shaderName(f),
			Type:     ft,
			Kind:     kind,
			Field:    f.Name,
			ReadBack: opts == "readback",
		})
	}
	return vars, nil
}

func exportedFields(t reflect.Type) func(yield func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("shader") == "-" {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

func shaderName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("shader"), ","); name != "" {
		return name
	}
	r := []rune(f.Name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
