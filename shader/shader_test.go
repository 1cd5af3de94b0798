package shader

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gogpu/canvas/geom"
)

type testTexture struct{ id uint64 }

func (t *testTexture) SamplerID() uint64 { return t.id }

type Particle struct {
	Pos   geom.Vec2
	Speed float32
	Alive bool
}

type computeHost struct {
	Particles []Particle `shader:"particles,readback"`
	Gravity   geom.Vec2
	Image     *testTexture `shader:"img"`
	Transform geom.Matrix
	Count     int32
	skipped   int
	Ignored   float32 `shader:"-"`
}

func TestVariablesOf(t *testing.T) {
	vars, err := VariablesOf(reflect.TypeFor[computeHost](), Uniform)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		name string
		typ  string
	}{
		{"particles", "Particle[]"},
		{"gravity", "float2"},
		{"img", "texture"},
		{"transform", "float3x2"},
		{"count", "int"},
	}
	if len(vars) != len(want) {
		t.Fatalf("got %d variables, want %d", len(vars), len(want))
	}
	for i, w := range want {
		if vars[i].Name != w.name || vars[i].Type.String() != w.typ {
			t.Errorf("var %d = %s %s, want %s %s", i, vars[i].Name, vars[i].Type, w.name, w.typ)
		}
	}
	if !vars[0].ReadBack {
		t.Error("particles should be marked readback")
	}
	if vars[1].Field != "Gravity" {
		t.Errorf("Field = %q, want Gravity", vars[1].Field)
	}
}

func TestTypeOfStructIdentity(t *testing.T) {
	a, err := TypeOf(reflect.TypeFor[Particle]())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := TypeOf(reflect.TypeFor[Particle]())
	if a != b {
		t.Error("TypeOf returned distinct structures for the same host type")
	}
	if _, err := TypeOf(reflect.TypeFor[map[string]int]()); !errors.Is(err, ErrHostType) {
		t.Errorf("map: err = %v, want ErrHostType", err)
	}
}

func TestSortedStructuresDependencyOrder(t *testing.T) {
	leaf := NewStructure("Leaf", Field{Name: "v", Type: FloatType})
	mid := NewStructure("Mid", Field{Name: "leaf", Type: leaf})
	top := NewStructure("Top", Field{Name: "mid", Type: mid}, Field{Name: "leaf", Type: leaf})
	s := &Shader{
		Variables: []*Variable{Var("t", top, Uniform), Var("items", Array{Elem: mid}, Uniform)},
	}
	got := s.SortedStructures()
	names := make([]string, len(got))
	for i, st := range got {
		names[i] = st.Name
	}
	want := []string{"Leaf", "Mid", "Top"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("SortedStructures = %v, want %v", names, want)
	}
}

func TestValidate(t *testing.T) {
	vsMain := &Method{Name: "vs", Return: Float4Type, Body: Blk(Ret(Zero(Float4Type)))}
	csMain := &Method{Name: "cs", Return: VoidType, Params: []*Variable{Var("id", Int3Type, Parameter)}, Body: Blk()}
	bad := &Method{Name: "bad", Return: FloatType, Body: Blk()}
	tests := []struct {
		name string
		s    *Shader
		want error
	}{
		{"vertex ok", &Shader{Stage: Vertex, Methods: []*Method{vsMain}, Entry: vsMain}, nil},
		{"compute ok", &Shader{Stage: Compute, Methods: []*Method{csMain}, Entry: csMain}, nil},
		{"missing entry", &Shader{Stage: Vertex}, ErrNoEntry},
		{"entry not listed", &Shader{Stage: Vertex, Entry: vsMain}, ErrEntryNotMethod},
		{"bad fragment return", &Shader{Stage: Fragment, Methods: []*Method{bad}, Entry: bad}, ErrEntrySignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMemberTypes(t *testing.T) {
	v := Var("c", Float4Type, Local)
	if got := Member(Ref(v), "xy").Type(); KindOf(got) != Float2 {
		t.Errorf("c.xy type = %s, want float2", got)
	}
	if got := Member(Ref(v), "A").Type(); KindOf(got) != Float {
		t.Errorf("c.A type = %s, want float", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("Member on missing field did not panic")
		}
	}()
	Member(Ref(Var("f", Float2Type, Local)), "z")
}

func TestBinResultType(t *testing.T) {
	s := Var("s", FloatType, Local)
	v := Var("v", Float3Type, Local)
	if got := Bin(OpMul, Ref(s), Ref(v)).Type(); KindOf(got) != Float3 {
		t.Errorf("float * float3 = %s, want float3", got)
	}
	if got := Bin(OpLt, Ref(s), ConstFloat(1)).Type(); KindOf(got) != Bool {
		t.Errorf("comparison type = %s, want bool", got)
	}
}
