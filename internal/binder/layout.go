package binder

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"unsafe"

	"github.com/gogpu/canvas/shader"
)

// FieldCopy moves one primitive field between a host element and a
// device element.
type FieldCopy struct {
	HostOffset   int
	DeviceOffset int
	// Size is the device size in bytes.
	Size int
	Kind shader.Kind
}

// FieldLayout maps a dense host slice onto the padded std430 layout of a
// storage array and back.
type FieldLayout struct {
	Fields       []FieldCopy
	HostStride   int
	DeviceStride int
}

type layoutKey struct {
	elem shader.Type
	host reflect.Type
}

// mat3x2Columns maps the column-major device floats of a mat3x2 to the
// row-major fields of geom.Matrix.
var mat3x2Columns = [6]int{0, 3, 1, 4, 2, 5}

// Layout returns the cached field layout for storage arrays of elem
// backed by host elements of type host.
func (b *Binder) Layout(elem shader.Type, host reflect.Type) (*FieldLayout, error) {
	k := layoutKey{elem, host}
	if l, ok := b.layouts[k]; ok {
		return l, nil
	}
	l, err := NewFieldLayout(elem, host)
	if err != nil {
		return nil, err
	}
	b.layouts[k] = l
	return l, nil
}

// NewFieldLayout computes the layout of elem against host.
func NewFieldLayout(elem shader.Type, host reflect.Type) (*FieldLayout, error) {
	stride, err := shader.Stride(elem, shader.Std430)
	if err != nil {
		return nil, err
	}
	leaves, err := shader.Leaves(elem, shader.Std430)
	if err != nil {
		return nil, err
	}
	l := &FieldLayout{HostStride: int(host.Size()), DeviceStride: stride}
	for _, leaf := range leaves {
		ft, off := host, uintptr(0)
		for _, name := range leaf.Host {
			sf, ok := ft.FieldByName(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no field %s (%s)", ErrMissingField, ft, name, joinPath(leaf.Path))
			}
			ft, off = sf.Type, off+sf.Offset
		}
		size, _, err := shader.Layout(shader.Primitive{Kind: leaf.Kind}, shader.Std430)
		if err != nil {
			return nil, err
		}
		if want := hostSize(leaf.Kind, size); int(ft.Size()) != want {
			return nil, fmt.Errorf("%w: %s is %d bytes, %s needs %d", ErrHostMismatch, ft, ft.Size(), leaf.Kind, want)
		}
		if got, want := hostScalar(ft), scalarKinds[leaf.Kind.Scalar()]; got != want {
			return nil, fmt.Errorf("%w: %s holds %s, %s needs %s", ErrHostMismatch, ft, got, leaf.Kind, want)
		}
		l.Fields = append(l.Fields, FieldCopy{
			HostOffset:   int(off),
			DeviceOffset: leaf.Offset,
			Size:         size,
			Kind:         leaf.Kind,
		})
	}
	return l, nil
}

var scalarKinds = map[shader.Kind]reflect.Kind{
	shader.Bool:  reflect.Bool,
	shader.Int:   reflect.Int32,
	shader.Float: reflect.Float32,
}

// hostScalar returns the one scalar kind every component of t is made
// of, or reflect.Invalid if t mixes kinds.
func hostScalar(t reflect.Type) reflect.Kind {
	switch t.Kind() {
	case reflect.Array:
		return hostScalar(t.Elem())
	case reflect.Struct:
		k := reflect.Invalid
		for i := range t.NumField() {
			fk := hostScalar(t.Field(i).Type)
			if i > 0 && fk != k {
				return reflect.Invalid
			}
			k = fk
		}
		return k
	}
	return t.Kind()
}

func hostSize(k shader.Kind, device int) int {
	if k == shader.Bool {
		return 1
	}
	return device
}

func hostBytes(slice reflect.Value, stride int) []byte {
	n := slice.Len()
	if n == 0 || stride == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(slice.UnsafePointer()), n*stride)
}

// WriteData copies the host slice into a new buffer in device layout.
func (l *FieldLayout) WriteData(slice reflect.Value) []byte {
	host := hostBytes(slice, l.HostStride)
	n := slice.Len()
	out := make([]byte, n*l.DeviceStride)
	for i := range n {
		h := host[i*l.HostStride:]
		d := out[i*l.DeviceStride:]
		for _, f := range l.Fields {
			toDevice(d[f.DeviceOffset:f.DeviceOffset+f.Size], h[f.HostOffset:], f.Kind)
		}
	}
	return out
}

// Read copies device-layout data back into the host slice. Elements
// beyond the shorter of the two are left untouched.
func (l *FieldLayout) Read(data []byte, slice reflect.Value) {
	host := hostBytes(slice, l.HostStride)
	n := slice.Len()
	if l.DeviceStride > 0 {
		n = min(n, len(data)/l.DeviceStride)
	}
	for i := range n {
		h := host[i*l.HostStride:]
		d := data[i*l.DeviceStride:]
		for _, f := range l.Fields {
			toHost(h[f.HostOffset:], d[f.DeviceOffset:f.DeviceOffset+f.Size], f.Kind)
		}
	}
}

func toDevice(d, h []byte, k shader.Kind) {
	switch k {
	case shader.Bool:
		v := uint32(0)
		if h[0] != 0 {
			v = 1
		}
		binary.LittleEndian.PutUint32(d, v)
	case shader.Matrix3x2:
		for j, src := range mat3x2Columns {
			copy(d[j*4:j*4+4], h[src*4:src*4+4])
		}
	default:
		copy(d, h[:len(d)])
	}
}

func toHost(h, d []byte, k shader.Kind) {
	switch k {
	case shader.Bool:
		h[0] = 0
		if binary.LittleEndian.Uint32(d) != 0 {
			h[0] = 1
		}
	case shader.Matrix3x2:
		for j, dst := range mat3x2Columns {
			copy(h[dst*4:dst*4+4], d[j*4:j*4+4])
		}
	default:
		copy(h[:len(d)], d)
	}
}
