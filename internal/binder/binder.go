// Package binder pushes host values into shader uniforms and storage
// buffers.
//
// Host values are structs whose fields back the shader's uniform
// variables by name (Variable.Field). Scalars, vectors and matrices are
// stored through device uniform locations, textures are bound to
// sequential units, structures recurse with dotted names, and slices
// are copied field by field into storage buffers.
package binder

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/shader"
)

// Sentinel errors.
var (
	// ErrMissingField is returned when the host value has no field backing
	// a uniform.
	ErrMissingField = errors.New("binder: host value has no field for uniform")

	// ErrHostMismatch is returned when a host field does not hold a value
	// of the uniform's type.
	ErrHostMismatch = errors.New("binder: host field does not match uniform type")
)

type locationKey struct {
	program device.ProgramID
	name    string
}

type storageKey struct {
	program device.ProgramID
	slot    int
}

type storageBuffer struct {
	id     device.BufferID
	size   int
	used   int
	layout *FieldLayout
}

// Binder binds host values for one device. It memoizes uniform
// locations per program and keeps one storage buffer per program slot.
//
// Binder is not safe for concurrent use.
type Binder struct {
	dev       device.Device
	locations map[locationKey]device.Location
	layouts   map[layoutKey]*FieldLayout
	storage   map[storageKey]*storageBuffer
	words     []uint32
}

// New returns a Binder for dev.
func New(dev device.Device) *Binder {
	return &Binder{
		dev:       dev,
		locations: make(map[locationKey]device.Location),
		layouts:   make(map[layoutKey]*FieldLayout),
		storage:   make(map[storageKey]*storageBuffer),
	}
}

// Location returns the memoized location of the named uniform of p.
func (b *Binder) Location(p device.ProgramID, name string) device.Location {
	k := locationKey{p, name}
	if loc, ok := b.locations[k]; ok {
		return loc
	}
	loc := b.dev.UniformLocation(p, name)
	b.locations[k] = loc
	return loc
}

// Bind makes p current and stores every uniform of vars from host, a
// struct or pointer to struct. Texture units are assigned from 0 in
// declaration order. Storage arrays are numbered the same way from slot 0.
func (b *Binder) Bind(p device.ProgramID, vars []*shader.Variable, host any) error {
	hv, err := structValue(host)
	if err != nil {
		return err
	}
	b.dev.UseProgram(p)
	unit, slot := 0, 0
	for _, v := range vars {
		if v.Kind != shader.Uniform {
			continue
		}
		f, err := field(hv, v)
		if err != nil {
			return err
		}
		switch t := v.Type.(type) {
		case shader.Array:
			if err := b.bindStorage(p, slot, t.Elem, f, v.Name); err != nil {
				return err
			}
			slot++
		default:
			if err := b.bindValue(p, v.Name, t, f, &unit); err != nil {
				return err
			}
		}
	}
	return nil
}

func structValue(host any) (reflect.Value, error) {
	hv := reflect.ValueOf(host)
	for hv.Kind() == reflect.Pointer {
		if hv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil host", ErrHostMismatch)
		}
		hv = hv.Elem()
	}
	if hv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: host %s is not a struct", ErrHostMismatch, hv.Type())
	}
	return hv, nil
}

func field(hv reflect.Value, v *shader.Variable) (reflect.Value, error) {
	name := v.Field
	if name == "" {
		name = v.Name
	}
	f := hv.FieldByName(name)
	if !f.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: %s (field %s of %s)", ErrMissingField, v.Name, name, hv.Type())
	}
	return f, nil
}

func (b *Binder) bindValue(p device.ProgramID, name string, t shader.Type, f reflect.Value, unit *int) error {
	switch t := t.(type) {
	case *shader.Structure:
		if f.Kind() != reflect.Struct {
			return fmt.Errorf("%w: %s is %s, want struct %s", ErrHostMismatch, name, f.Type(), t.Name)
		}
		for _, sf := range t.Fields {
			host := sf.Host
			if host == "" {
				host = sf.Name
			}
			child := f.FieldByName(host)
			if !child.IsValid() {
				return fmt.Errorf("%w: %s.%s (field %s of %s)", ErrMissingField, name, sf.Name, host, f.Type())
			}
			if err := b.bindValue(p, name+"."+sf.Name, sf.Type, child, unit); err != nil {
				return err
			}
		}
		return nil
	case shader.Primitive:
		loc := b.Location(p, name)
		if t.Kind == shader.Texture {
			tex, err := textureOf(f)
			if err != nil {
				return fmt.Errorf("uniform %s: %w", name, err)
			}
			b.dev.BindTexture(*unit, tex)
			b.dev.SetUniform(loc, shader.Texture, []uint32{uint32(*unit)})
			*unit++
			return nil
		}
		words, err := appendWords(b.words[:0], t.Kind, f)
		if err != nil {
			return fmt.Errorf("uniform %s: %w", name, err)
		}
		b.words = words
		b.dev.SetUniform(loc, t.Kind, words)
		return nil
	}
	return fmt.Errorf("%w: uniform %s of type %s", ErrHostMismatch, name, t)
}

func textureOf(f reflect.Value) (device.TextureID, error) {
	switch f.Kind() {
	case reflect.Pointer, reflect.Interface:
		if f.IsNil() {
			return device.InvalidID, nil
		}
	}
	s, ok := f.Interface().(shader.Sampler)
	if !ok {
		return device.InvalidID, fmt.Errorf("%w: %s is not a shader.Sampler", ErrHostMismatch, f.Type())
	}
	return device.TextureID(s.SamplerID()), nil
}

// appendWords appends the 32-bit words of a primitive host value:
// bools as 0 or 1, matrices column-major.
func appendWords(dst []uint32, k shader.Kind, f reflect.Value) ([]uint32, error) {
	switch k {
	case shader.Bool:
		if f.Kind() != reflect.Bool {
			break
		}
		if f.Bool() {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case shader.Int:
		if f.Kind() != reflect.Int32 {
			break
		}
		return append(dst, uint32(int32(f.Int()))), nil
	case shader.Float:
		if f.Kind() != reflect.Float32 {
			break
		}
		return append(dst, math.Float32bits(float32(f.Float()))), nil
	case shader.Matrix3x2:
		m, ok := f.Interface().(geom.Matrix)
		if !ok {
			break
		}
		for _, c := range m.Columns() {
			dst = append(dst, math.Float32bits(c))
		}
		return dst, nil
	default:
		n := k.Components()
		if k == shader.Matrix4x4 {
			n = 16
		}
		if components(f) != n {
			break
		}
		for i := range n {
			c := component(f, i)
			switch c.Kind() {
			case reflect.Float32:
				dst = append(dst, math.Float32bits(float32(c.Float())))
			case reflect.Int32:
				dst = append(dst, uint32(int32(c.Int())))
			default:
				return dst, fmt.Errorf("%w: component %s of %s", ErrHostMismatch, c.Type(), f.Type())
			}
		}
		return dst, nil
	}
	return dst, fmt.Errorf("%w: %s for %s", ErrHostMismatch, f.Type(), k)
}

func components(f reflect.Value) int {
	switch f.Kind() {
	case reflect.Array:
		return f.Len()
	case reflect.Struct:
		return f.NumField()
	}
	return 0
}

func component(f reflect.Value, i int) reflect.Value {
	if f.Kind() == reflect.Array {
		return f.Index(i)
	}
	return f.Field(i)
}

func (b *Binder) bindStorage(p device.ProgramID, slot int, elem shader.Type, f reflect.Value, name string) error {
	if f.Kind() != reflect.Slice {
		return fmt.Errorf("%w: storage %s is %s, want slice", ErrHostMismatch, name, f.Type())
	}
	layout, err := b.Layout(elem, f.Type().Elem())
	if err != nil {
		return fmt.Errorf("storage %s: %w", name, err)
	}
	data := layout.WriteData(f)

	k := storageKey{p, slot}
	sb := b.storage[k]
	size := max(len(data), layout.DeviceStride)
	if sb == nil || sb.size < size {
		if sb != nil {
			b.dev.DestroyBuffer(sb.id)
		}
		id, err := b.dev.CreateBuffer(gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst|gputypes.BufferUsageCopySrc, size)
		if err != nil {
			delete(b.storage, k)
			return fmt.Errorf("storage %s: %w", name, err)
		}
		sb = &storageBuffer{id: id, size: size}
		b.storage[k] = sb
	}
	sb.layout = layout
	sb.used = len(data)
	if len(data) > 0 {
		b.dev.WriteBuffer(sb.id, 0, data)
	}
	b.dev.BindStorageBuffer(slot, sb.id)
	return nil
}

// ReadBack copies the storage arrays of vars marked ReadBack from the
// device into the slices of host, which must be the value passed to the
// last Bind of p. Call it after the dispatch that wrote them.
func (b *Binder) ReadBack(p device.ProgramID, vars []*shader.Variable, host any) error {
	hv, err := structValue(host)
	if err != nil {
		return err
	}
	slot := 0
	for _, v := range vars {
		if v.Kind != shader.Uniform {
			continue
		}
		if _, ok := v.Type.(shader.Array); !ok {
			continue
		}
		s := slot
		slot++
		if !v.ReadBack {
			continue
		}
		sb := b.storage[storageKey{p, s}]
		if sb == nil {
			return fmt.Errorf("binder: read back %s before Bind", v.Name)
		}
		f, err := field(hv, v)
		if err != nil {
			return err
		}
		data := make([]byte, sb.used)
		if err := b.dev.ReadBuffer(sb.id, 0, data); err != nil {
			return fmt.Errorf("read back %s: %w", v.Name, err)
		}
		sb.layout.Read(data, f)
	}
	return nil
}

// Forget drops the memoized state of p and destroys its storage buffers.
func (b *Binder) Forget(p device.ProgramID) {
	for k := range b.locations {
		if k.program == p {
			delete(b.locations, k)
		}
	}
	for k, sb := range b.storage {
		if k.program == p {
			b.dev.DestroyBuffer(sb.id)
			delete(b.storage, k)
		}
	}
}

// Close destroys every storage buffer.
func (b *Binder) Close() {
	for k, sb := range b.storage {
		b.dev.DestroyBuffer(sb.id)
		delete(b.storage, k)
	}
}

func joinPath(path []string) string { return strings.Join(path, ".") }
