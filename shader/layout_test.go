package shader

import (
	"errors"
	"testing"
)

func TestPrimitiveLayout(t *testing.T) {
	tests := []struct {
		kind        Kind
		std         Standard
		size, align int
	}{
		{Float, Std430, 4, 4},
		{Int2, Std430, 8, 8},
		{Float3, Std430, 12, 16},
		{Float4, Std140, 16, 16},
		{Matrix3x2, Std430, 24, 8},
		{Matrix3x2, Std140, 48, 16},
		{Matrix4x4, Std430, 64, 16},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.std.String(), func(t *testing.T) {
			size, align, err := Layout(Primitive{tt.kind}, tt.std)
			if err != nil {
				t.Fatalf("Layout: %v", err)
			}
			if size != tt.size || align != tt.align {
				t.Errorf("Layout = (%d, %d), want (%d, %d)", size, align, tt.size, tt.align)
			}
		})
	}
}

func TestStructOffsets(t *testing.T) {
	inner := NewStructure("Inner",
		Field{Name: "a", Type: FloatType},
		Field{Name: "b", Type: Float3Type},
	)
	outer := NewStructure("Outer",
		Field{Name: "flag", Type: BoolType},
		Field{Name: "uv", Type: Float2Type},
		Field{Name: "inner", Type: inner},
		Field{Name: "n", Type: IntType},
	)

	offsets, size, err := Offsets(inner, Std430)
	if err != nil {
		t.Fatal(err)
	}
	if offsets[0] != 0 || offsets[1] != 16 || size != 32 {
		t.Errorf("Inner std430 offsets %v size %d, want [0 16] 32", offsets, size)
	}

	offsets, size, err = Offsets(outer, Std430)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 8, 16, 48}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("Outer std430 offset[%d] = %d, want %d", i, offsets[i], want[i])
		}
	}
	if size != 64 {
		t.Errorf("Outer std430 size = %d, want 64", size)
	}

	stride, err := Stride(NewStructure("P", Field{Name: "x", Type: FloatType}), Std140)
	if err != nil {
		t.Fatal(err)
	}
	if stride != 16 {
		t.Errorf("std140 stride of single float struct = %d, want 16", stride)
	}
}

func TestLayoutErrors(t *testing.T) {
	bad := NewStructure("Bad", Field{Name: "xs", Type: Array{Elem: FloatType}})
	if _, _, err := Layout(bad, Std430); !errors.Is(err, ErrLayout) {
		t.Errorf("struct with array: err = %v, want ErrLayout", err)
	}
	if _, _, err := Layout(TextureType, Std430); !errors.Is(err, ErrLayout) {
		t.Errorf("texture: err = %v, want ErrLayout", err)
	}
}

func TestLeaves(t *testing.T) {
	inner := NewStructure("Pair", Field{Name: "lo", Type: FloatType, Host: "Lo"}, Field{Name: "hi", Type: Float2Type, Host: "Hi"})
	s := NewStructure("Item", Field{Name: "id", Type: IntType, Host: "ID"}, Field{Name: "pair", Type: inner, Host: "Pair"})
	leaves, err := Leaves(s, Std430)
	if err != nil {
		t.Fatal(err)
	}
	if len(leaves) != 3 {
		t.Fatalf("got %d leaves, want 3", len(leaves))
	}
	last := leaves[2]
	if last.Kind != Float2 || last.Offset != 16 || last.Host[0] != "Pair" || last.Host[1] != "Hi" {
		t.Errorf("last leaf = %+v, want Pair.Hi float2 at 16", last)
	}
}
