package geometry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
)

// Point is a bare position.
type Point struct {
	Pos geom.Vec2
}

// ColorVertex is a position with a straight-alpha color.
type ColorVertex struct {
	Pos   geom.Vec2
	Color geom.Color
}

// TexVertex is a position with a texture coordinate and a tint color.
type TexVertex struct {
	Pos   geom.Vec2
	UV    geom.Vec2 `shader:"uv"`
	Color geom.Color
}

// Built-in layouts.
var (
	PositionOnly     = LayoutOf[Point]()
	PositionColor    = LayoutOf[ColorVertex]()
	PositionTexcoord = LayoutOf[TexVertex]()
)

var (
	attrFormats = map[reflect.Type]gputypes.VertexFormat{
		reflect.TypeFor[float32]():    gputypes.VertexFormatFloat32,
		reflect.TypeFor[[2]float32](): gputypes.VertexFormatFloat32x2,
		reflect.TypeFor[[3]float32](): gputypes.VertexFormatFloat32x3,
		reflect.TypeFor[[4]float32](): gputypes.VertexFormatFloat32x4,
		reflect.TypeFor[geom.Vec2]():  gputypes.VertexFormatFloat32x2,
		reflect.TypeFor[geom.Vec3]():  gputypes.VertexFormatFloat32x3,
		reflect.TypeFor[geom.Vec4]():  gputypes.VertexFormatFloat32x4,
		reflect.TypeFor[geom.Color](): gputypes.VertexFormatFloat32x4,
		reflect.TypeFor[int32]():      gputypes.VertexFormatSint32,
		reflect.TypeFor[[2]int32]():   gputypes.VertexFormatSint32x2,
		reflect.TypeFor[[3]int32]():   gputypes.VertexFormatSint32x3,
		reflect.TypeFor[[4]int32]():   gputypes.VertexFormatSint32x4,
	}

	layoutCache sync.Map
)

// LayoutOf returns the vertex layout of the struct type V: one attribute
// per field, nested structs flattened depth first, locations in field
// order. Equal types yield the same pointer. It panics for types that
// cannot be vertex data.
func LayoutOf[V any]() *device.VertexLayout {
	t := reflect.TypeFor[V]()
	if l, ok := layoutCache.Load(t); ok {
		return l.(*device.VertexLayout)
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("geometry: vertex type %s is not a struct", t))
	}
	l := &device.VertexLayout{Name: t.Name(), Stride: int(t.Size())}
	if err := appendAttributes(l, t, 0); err != nil {
		panic("geometry: " + err.Error())
	}
	actual, _ := layoutCache.LoadOrStore(t, l)
	return actual.(*device.VertexLayout)
}

func appendAttributes(l *device.VertexLayout, t reflect.Type, base uintptr) error {
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Name == "_" {
			continue
		}
		if format, ok := attrFormats[f.Type]; ok {
			l.Attributes = append(l.Attributes, gputypes.VertexAttribute{
				Format:         format,
				Offset:         uint64(base + f.Offset),
				ShaderLocation: uint32(len(l.Attributes)),
			})
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			if err := appendAttributes(l, f.Type, base+f.Offset); err != nil {
				return err
			}
			continue
		}
		return fmt.Errorf("vertex field %s.%s has unsupported type %s", t.Name(), f.Name, f.Type)
	}
	return nil
}
