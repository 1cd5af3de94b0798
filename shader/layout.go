package shader

import (
	"errors"
	"fmt"
)

// ErrLayout is returned when a type has no buffer layout.
var ErrLayout = errors.New("shader: type has no buffer layout")

// Standard selects the buffer layout rules.
type Standard uint8

const (
	// Std430 is the storage buffer layout: vec3 aligns to 16, everything
	// else aligns to its own size, and structures align to their widest member.
	Std430 Standard = iota
	// Std140 is the uniform block layout: like Std430, but structures and
	// matrix columns are additionally rounded up to 16 bytes.
	Std140
	// WGSLUniform is the WGSL uniform address space: like Std430, but
	// structures align and pad to 16 bytes.
	WGSLUniform
)

func (s Standard) String() string {
	switch s {
	case Std140:
		return "std140"
	case WGSLUniform:
		return "wgsl-uniform"
	}
	return "std430"
}

// Layout returns the size and alignment of t in bytes.
func Layout(t Type, std Standard) (size, align int, err error) {
	switch t := t.(type) {
	case Primitive:
		return primitiveLayout(t.Kind, std)
	case *Structure:
		_, size, align, err = structLayout(t, std)
		return size, align, err
	case Reference:
		return Layout(t.Elem, std)
	case Array:
		return 0, 0, fmt.Errorf("%w: nested array %s", ErrLayout, t)
	}
	return 0, 0, fmt.Errorf("%w: %v", ErrLayout, t)
}

// Offsets returns the byte offset of every field of s, and the padded
// size of the structure.
func Offsets(s *Structure, std Standard) (offsets []int, size int, err error) {
	offsets, size, _, err = structLayout(s, std)
	return offsets, size, err
}

// Stride returns the array stride of elements of type t.
func Stride(t Type, std Standard) (int, error) {
	size, align, err := Layout(t, std)
	if err != nil {
		return 0, err
	}
	return alignUp(size, align), nil
}

func primitiveLayout(k Kind, std Standard) (int, int, error) {
	switch k {
	case Bool, Int, Float:
		return 4, 4, nil
	case Int2, Float2:
		return 8, 8, nil
	case Int3, Float3:
		return 12, 16, nil
	case Int4, Float4:
		return 16, 16, nil
	case Matrix3x2:
		if std == Std140 {
			return 48, 16, nil
		}
		return 24, 8, nil
	case Matrix4x4:
		return 64, 16, nil
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrLayout, k)
}

func structLayout(s *Structure, std Standard) (offsets []int, size, align int, err error) {
	align = 1
	offsets = make([]int, len(s.Fields))
	for i, f := range s.Fields {
		if _, ok := f.Type.(Array); ok {
			return nil, 0, 0, fmt.Errorf("%w: structure %s contains array field %s", ErrLayout, s.Name, f.Name)
		}
		fsize, falign, err := Layout(f.Type, std)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("structure %s field %s: %w", s.Name, f.Name, err)
		}
		if _, nested := f.Type.(*Structure); nested && std != Std430 {
			falign = alignUp(falign, 16)
		}
		size = alignUp(size, falign)
		offsets[i] = size
		size += fsize
		align = max(align, falign)
	}
	if std != Std430 {
		align = alignUp(align, 16)
	}
	return offsets, alignUp(size, align), align, nil
}

// Leaf is one primitive field reached by walking a structure
// recursively.
type Leaf struct {
	// Path holds the shader field names from the root.
	Path []string
	// Host holds the host field names from the root.
	Host []string
	Kind Kind
	// Offset is the device byte offset from the start of the root.
	Offset int
}

// Leaves flattens t into its primitive fields in declaration order.
// A primitive type yields a single leaf with an empty path.
func Leaves(t Type, std Standard) ([]Leaf, error) {
	var out []Leaf
	err := collectLeaves(t, std, nil, nil, 0, &out)
	return out, err
}

func collectLeaves(t Type, std Standard, path, host []string, base int, out *[]Leaf) error {
	switch t := t.(type) {
	case Primitive:
		if _, _, err := primitiveLayout(t.Kind, std); err != nil {
			return err
		}
		*out = append(*out, Leaf{Path: path, Host: host, Kind: t.Kind, Offset: base})
		return nil
	case *Structure:
		offsets, _, _, err := structLayout(t, std)
		if err != nil {
			return err
		}
		for i, f := range t.Fields {
			h := f.Host
			if h == "" {
				h = f.Name
			}
			p := append(append([]string(nil), path...), f.Name)
			hp := append(append([]string(nil), host...), h)
			if err := collectLeaves(f.Type, std, p, hp, base+offsets[i], out); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrLayout, t)
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}
