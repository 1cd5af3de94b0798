package glsl

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/canvas/shader"
)

func solidVertexShader() *shader.Shader {
	vertex := shader.NewStructure("Vertex",
		shader.Field{Name: "pos", Type: shader.Float2Type},
		shader.Field{Name: "color", Type: shader.Float4Type},
	)
	in := shader.Var("in", vertex, shader.VertexInput)
	proj := shader.Var("projection", shader.Mat4Type, shader.Uniform)
	color := shader.Var("vColor", shader.Float4Type, shader.VertexOutput)
	entry := &shader.Method{
		Name:   "main",
		Return: shader.Float4Type,
		Body: shader.Blk(
			shader.Assign(shader.Ref(color), shader.Member(shader.Ref(in), "color")),
			shader.Ret(shader.Intrinsic("Transform", shader.Float4Type, shader.Ref(proj), shader.Member(shader.Ref(in), "pos"))),
		),
	}
	return &shader.Shader{
		Name:      "solid",
		Stage:     shader.Vertex,
		Variables: []*shader.Variable{proj, in, color},
		Methods:   []*shader.Method{entry},
		Entry:     entry,
	}
}

func TestEmitVertexGolden(t *testing.T) {
	got, err := Emit(solidVertexShader())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	want := `#version 430 core

struct Vertex {
    vec2 pos;
    vec4 color;
};

const float _positive_infinity = uintBitsToFloat(0x7F800000u);
const float _negative_infinity = -_positive_infinity;
const float _nan = 0.0 * _positive_infinity;

uniform mat4 projection;

layout(location = 0) in vec2 _in_pos;
layout(location = 1) in vec4 _in_color;
out vec4 vColor;

vec4 _main();

vec4 _main() {
    vColor = _in_color;
    return (projection * vec4(_in_pos, 0.0, 1.0));
}

void main() {
    gl_Position = _main();
}
`
	if got != want {
		t.Errorf("Emit mismatch\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestEmitDeterministic(t *testing.T) {
	s := solidVertexShader()
	first, err := Emit(s)
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		again, err := Emit(s)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatal("second Emit produced different source")
		}
	}
}

func TestEmitFragment(t *testing.T) {
	tex := shader.Var("image", shader.TextureType, shader.Uniform)
	uv := shader.Var("vUV", shader.Float2Type, shader.VertexOutput)
	layer := shader.Var("vLayer", shader.IntType, shader.VertexOutput)
	entry := &shader.Method{
		Name:   "shade",
		Return: shader.Float4Type,
		Body: shader.Blk(
			shader.Ret(shader.Intrinsic("Sample", shader.Float4Type, shader.Ref(tex), shader.Ref(uv))),
		),
	}
	s := &shader.Shader{
		Name:      "textured",
		Stage:     shader.Fragment,
		Variables: []*shader.Variable{tex, uv, layer},
		Methods:   []*shader.Method{entry},
		Entry:     entry,
	}
	got, err := Emit(s)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{
		"uniform sampler2D image;",
		"in vec2 vUV;",
		"flat in int vLayer;",
		"out vec4 _fragColor;",
		"    return texture(image, vUV);",
		"    _fragColor = shade();",
	} {
		if !strings.Contains(got, line+"\n") {
			t.Errorf("missing line %q in\n%s", line, got)
		}
	}
}

func TestEmitComputeStorageBuffers(t *testing.T) {
	particle := shader.NewStructure("Particle",
		shader.Field{Name: "pos", Type: shader.Float2Type},
		shader.Field{Name: "speed", Type: shader.FloatType},
	)
	particles := shader.Var("particles", shader.Array{Elem: particle}, shader.Uniform)
	dt := shader.Var("dt", shader.FloatType, shader.Uniform)
	weights := shader.Var("weights", shader.Array{Elem: shader.FloatType}, shader.Uniform)
	id := shader.Var("id", shader.IntType, shader.Parameter)

	item := shader.Intrinsic("Index", particle, shader.Ref(particles), shader.Ref(id))
	entry := &shader.Method{
		Name:   "advance",
		Return: shader.VoidType,
		Params: []*shader.Variable{id},
		Body: shader.Blk(
			shader.If(
				shader.Bin(shader.OpGe, shader.Ref(id), shader.Intrinsic("Length", shader.IntType, shader.Ref(particles))),
				shader.Ret(nil),
			),
			shader.Bin(shader.OpAddAssign,
				shader.Member(shader.Member(item, "pos"), "y"),
				shader.Bin(shader.OpMul, shader.Member(item, "speed"), shader.Ref(dt)),
			),
		),
	}
	s := &shader.Shader{
		Name:          "physics",
		Stage:         shader.Compute,
		Variables:     []*shader.Variable{particles, dt, weights},
		Methods:       []*shader.Method{entry},
		Entry:         entry,
		WorkgroupSize: [3]int{64},
	}
	got, err := Emit(s)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{
		"layout(std430, binding = 0) buffer _buffer_particles {",
		"    Particle particles[];",
		"uniform float dt;",
		"layout(std430, binding = 1) buffer _buffer_weights {",
		"    float weights[];",
		"layout(local_size_x = 64, local_size_y = 1, local_size_z = 1) in;",
		"    if (id >= particles.length()) {",
		"        return;",
		"    particles[id].pos.y += (particles[id].speed * dt);",
		"    advance(int(gl_GlobalInvocationID.x));",
	} {
		if !strings.Contains(got, line+"\n") {
			t.Errorf("missing line %q in\n%s", line, got)
		}
	}
}

func TestEmitFlattenNestedVertexInput(t *testing.T) {
	corner := shader.NewStructure("Corner", shader.Field{Name: "pos", Type: shader.Float2Type})
	quad := shader.NewStructure("Quad",
		shader.Field{Name: "corner", Type: corner},
		shader.Field{Name: "xform", Type: shader.Mat3x2Type},
		shader.Field{Name: "uv", Type: shader.Float2Type},
	)
	in := shader.Var("v", quad, shader.VertexInput)
	copyOut := shader.Var("whole", quad, shader.Local)
	x := shader.Member(shader.Member(shader.Member(shader.Ref(in), "corner"), "pos"), "X")
	entry := &shader.Method{
		Name:   "vs",
		Return: shader.Float4Type,
		Locals: []*shader.Variable{copyOut},
		Body: shader.Blk(
			shader.Assign(shader.Ref(copyOut), shader.Ref(in)),
			shader.Ret(shader.Intrinsic("Float4", shader.Float4Type, x, shader.ConstFloat(0), shader.ConstFloat(0), shader.ConstFloat(1))),
		),
	}
	s := &shader.Shader{Stage: shader.Vertex, Variables: []*shader.Variable{in}, Methods: []*shader.Method{entry}, Entry: entry}
	got, err := Emit(s)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{
		"layout(location = 0) in vec2 v_corner_pos;",
		"layout(location = 1) in mat3x2 v_xform;",
		"layout(location = 4) in vec2 v_uv;",
		"    Quad whole = Quad(Corner(vec2(0.0)), mat3x2(0.0), vec2(0.0));",
		"    whole = Quad(Corner(v_corner_pos), v_xform, v_uv);",
		"    return vec4(v_corner_pos.x, 0.0, 0.0, 1.0);",
	} {
		if !strings.Contains(got, line+"\n") {
			t.Errorf("missing line %q in\n%s", line, got)
		}
	}
}

func methodBody(t *testing.T, body ...shader.Expr) string {
	t.Helper()
	entry := &shader.Method{Name: "fs", Return: shader.Float4Type, Body: shader.Blk(body...)}
	s := &shader.Shader{Stage: shader.Fragment, Methods: []*shader.Method{entry}, Entry: entry}
	for _, st := range body {
		collectLocals(entry, st)
	}
	src, err := Emit(s)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	start := strings.Index(src, "vec4 fs() {\n")
	end := strings.Index(src, "void main()")
	return src[start:end]
}

// collectLocals declares every Local referenced in x on m.
func collectLocals(m *shader.Method, x shader.Expr) {
	var walk func(shader.Expr)
	walk = func(x shader.Expr) {
		switch x := x.(type) {
		case *shader.VariableRef:
			if x.Var.Kind == shader.Local {
				for _, l := range m.Locals {
					if l == x.Var {
						return
					}
				}
				m.Locals = append(m.Locals, x.Var)
			}
		case *shader.Binary:
			walk(x.X)
			walk(x.Y)
		case *shader.Unary:
			walk(x.X)
		case *shader.Block:
			for _, s := range x.Stmts {
				walk(s)
			}
		case *shader.Loop:
			walk(x.Body)
		case *shader.Conditional:
			walk(x.Cond)
			walk(x.Then)
			if x.Else != nil {
				walk(x.Else)
			}
		case *shader.MemberAccess:
			walk(x.X)
		case *shader.Return:
			if x.Value != nil {
				walk(x.Value)
			}
		case *shader.Call:
			for _, a := range x.Args {
				walk(a)
			}
		}
	}
	walk(x)
}

func TestWhileLoopLowering(t *testing.T) {
	i := shader.Var("i", shader.IntType, shader.Local)
	cond := shader.Bin(shader.OpLt, shader.Ref(i), shader.ConstInt(10))

	got := methodBody(t,
		&shader.Loop{Body: shader.Blk(
			shader.If(shader.Not(cond), &shader.Break{}),
			shader.Bin(shader.OpAddAssign, shader.Ref(i), shader.ConstInt(1)),
		)},
		shader.Ret(shader.Zero(shader.Float4Type)),
	)
	want := `vec4 fs() {
    int i = 0;
    while (i < 10) {
        i += 1;
    }
    return vec4(0.0);
}

`
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
	if strings.Count(got, "i < 10") != 1 {
		t.Error("loop guard duplicated in body")
	}
}

func TestLoopWithoutGuard(t *testing.T) {
	i := shader.Var("i", shader.IntType, shader.Local)
	got := methodBody(t,
		&shader.Loop{Body: shader.Blk(
			shader.Bin(shader.OpAddAssign, shader.Ref(i), shader.ConstInt(1)),
			shader.If(shader.Bin(shader.OpGt, shader.Ref(i), shader.ConstInt(3)), &shader.Break{}),
		)},
		shader.Ret(shader.Zero(shader.Float4Type)),
	)
	if !strings.Contains(got, "    while (true) {\n        i += 1;\n        if (i > 3) {\n            break;\n        }\n    }\n") {
		t.Errorf("unexpected loop:\n%s", got)
	}

	guardNotNegated := methodBody(t,
		shader.While(shader.Ref(shader.Var("done", shader.BoolType, shader.Local))),
		shader.Ret(shader.Zero(shader.Float4Type)),
	)
	if !strings.Contains(guardNotNegated, "while (done) {") {
		t.Errorf("While(done) lowered to:\n%s", guardNotNegated)
	}

	plainGuard := methodBody(t,
		&shader.Loop{Body: shader.Blk(shader.If(shader.Ref(shader.Var("stop", shader.BoolType, shader.Local)), shader.Blk(&shader.Break{})))},
		shader.Ret(shader.Zero(shader.Float4Type)),
	)
	if !strings.Contains(plainGuard, "while (!(stop)) {\n    }") {
		t.Errorf("guard without Not lowered to:\n%s", plainGuard)
	}
}

func TestBinaryParenthesization(t *testing.T) {
	a := shader.Var("a", shader.FloatType, shader.Local)
	b := shader.Var("b", shader.FloatType, shader.Local)
	c := shader.Var("c", shader.FloatType, shader.Local)
	sum := shader.Bin(shader.OpAdd, shader.Ref(a), shader.Ref(b))
	got := methodBody(t,
		shader.Assign(shader.Ref(c), shader.Bin(shader.OpMul, sum, shader.Ref(c))),
		shader.Assign(shader.Ref(c), shader.Bin(shader.OpAdd, shader.Ref(a), shader.Bin(shader.OpMul, shader.Ref(b), shader.Ref(c)))),
		shader.Assign(shader.Ref(c), shader.Neg(sum)),
		shader.Assign(shader.Ref(c), shader.Intrinsic("Multiply", shader.FloatType, sum, shader.Ref(c))),
		shader.Ret(shader.Zero(shader.Float4Type)),
	)
	for _, line := range []string{
		"c = ((a + b) * c);",
		"c = (a + (b * c));",
		"c = -(a + b);",
		"c = ((a + b) * c);",
	} {
		if !strings.Contains(got, line) {
			t.Errorf("missing %q in\n%s", line, got)
		}
	}
}

func TestIfElseChain(t *testing.T) {
	x := shader.Var("x", shader.FloatType, shader.Local)
	got := methodBody(t,
		shader.IfElse(shader.Bin(shader.OpLt, shader.Ref(x), shader.ConstFloat(0)),
			shader.Assign(shader.Ref(x), shader.ConstFloat(0)),
			shader.IfElse(shader.Bin(shader.OpGt, shader.Ref(x), shader.ConstFloat(1)),
				shader.Assign(shader.Ref(x), shader.ConstFloat(1)),
				shader.Assign(shader.Ref(x), shader.Intrinsic("Saturate", shader.FloatType, shader.Ref(x))),
			),
		),
		shader.Ret(shader.Zero(shader.Float4Type)),
	)
	want := "    if (x < 0.0) {\n        x = 0.0;\n    } else if (x > 1.0) {\n        x = 1.0;\n    } else {\n        x = clamp(x, 0.0, 1.0);\n    }\n"
	if !strings.Contains(got, want) {
		t.Errorf("got\n%s\nwant fragment\n%s", got, want)
	}
}

func TestIntrinsicLowering(t *testing.T) {
	tex := shader.Var("tex", shader.TextureType, shader.Local)
	uv := shader.Var("uv", shader.Float2Type, shader.Local)
	m := shader.Var("m", shader.Mat3x2Type, shader.Local)
	f := shader.Var("f", shader.FloatType, shader.Local)
	tests := []struct {
		name string
		call *shader.Call
		want string
	}{
		{"lowercase fallback", shader.Intrinsic("SmoothStep", shader.FloatType, shader.ConstFloat(0), shader.ConstFloat(1), shader.Ref(f)), "smoothstep(0.0, 1.0, f)"},
		{"rename", shader.Intrinsic("Lerp", shader.FloatType, shader.Ref(f), shader.ConstFloat(1), shader.ConstFloat(0.5)), "mix(f, 1.0, 0.5)"},
		{"atan2", shader.Intrinsic("Atan2", shader.FloatType, shader.Ref(f), shader.Ref(f)), "atan(f, f)"},
		{"unnormalized sample", shader.Intrinsic("SampleUnnormalized", shader.Float4Type, shader.Ref(tex), shader.Ref(uv)), "texture(tex, uv / vec2(textureSize(tex, 0)))"},
		{"affine transform", shader.Intrinsic("Transform", shader.Float2Type, shader.Ref(m), shader.Ref(uv)), "(m * vec3(uv, 1.0))"},
		{"vector length", shader.Intrinsic("Length", shader.FloatType, shader.Ref(uv)), "length(uv)"},
		{"infix add", shader.Intrinsic("Add", shader.FloatType, shader.Ref(f), shader.ConstFloat(2)), "(f + 2.0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &emitter{}
			got, err := e.expr(tt.call)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float32
		want string
	}{
		{1, "1.0"},
		{0.5, "0.5"},
		{-2.25, "-2.25"},
		{0.1, "0.100000001"},
		{100000, "100000.0"},
		{1e10, "1e+10"},
		{float32(math.NaN()), "_nan"},
		{float32(math.Inf(1)), "_positive_infinity"},
		{float32(math.Inf(-1)), "_negative_infinity"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatFloat(tt.in); got != tt.want {
				t.Errorf("FormatFloat(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDefaultValues(t *testing.T) {
	light := shader.NewStructure("Light",
		shader.Field{Name: "dir", Type: shader.Float3Type},
		shader.Field{Name: "power", Type: shader.FloatType},
		shader.Field{Name: "on", Type: shader.BoolType},
		shader.Field{Name: "index", Type: shader.Int2Type},
	)
	got, err := defaultValue(light)
	if err != nil {
		t.Fatal(err)
	}
	if want := "Light(vec3(0.0), 0.0, false, ivec2(0))"; got != want {
		t.Errorf("default = %q, want %q", got, want)
	}
	if _, err := defaultValue(shader.TextureType); !errors.Is(err, ErrUnsupported) {
		t.Errorf("texture default err = %v, want ErrUnsupported", err)
	}
}

func TestEscape(t *testing.T) {
	tests := []struct{ in, want string }{
		{"color", "color"},
		{"texture", "_texture"},
		{"main", "_main"},
		{"in", "_in"},
		{"gl_Position", "_gl_Position"},
		{"gl_custom", "_gl_custom"},
		{"", "_unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			once := Escape(tt.in)
			if once != tt.want {
				t.Errorf("Escape(%q) = %q, want %q", tt.in, once, tt.want)
			}
			if twice := Escape(once); twice != once {
				t.Errorf("Escape not idempotent: %q -> %q", once, twice)
			}
		})
	}
}

func TestEmitErrors(t *testing.T) {
	ret := func() *shader.Method {
		return &shader.Method{Name: "fs", Return: shader.Float4Type, Body: shader.Blk(shader.Ret(shader.Zero(shader.Float4Type)))}
	}
	nested := shader.NewStructure("Bag", shader.Field{Name: "xs", Type: shader.Array{Elem: shader.FloatType}})

	tests := []struct {
		name  string
		build func() *shader.Shader
	}{
		{"nested array in structure", func() *shader.Shader {
			m := ret()
			return &shader.Shader{Stage: shader.Fragment, Structures: []*shader.Structure{nested}, Methods: []*shader.Method{m}, Entry: m}
		}},
		{"unknown primitive kind", func() *shader.Shader {
			m := ret()
			v := shader.Var("odd", shader.Primitive{Kind: shader.Kind(200)}, shader.Uniform)
			return &shader.Shader{Stage: shader.Fragment, Variables: []*shader.Variable{v}, Methods: []*shader.Method{m}, Entry: m}
		}},
		{"unknown intrinsic", func() *shader.Shader {
			m := &shader.Method{Name: "fs", Return: shader.Float4Type, Body: shader.Blk(
				shader.Ret(shader.Intrinsic("do_thing", shader.Float4Type)),
			)}
			return &shader.Shader{Stage: shader.Fragment, Methods: []*shader.Method{m}, Entry: m}
		}},
		{"array vertex input", func() *shader.Shader {
			m := ret()
			v := shader.Var("pts", shader.Array{Elem: shader.Float2Type}, shader.VertexInput)
			return &shader.Shader{Stage: shader.Vertex, Variables: []*shader.Variable{v}, Methods: []*shader.Method{m}, Entry: m}
		}},
		{"vertex input in fragment stage", func() *shader.Shader {
			m := ret()
			v := shader.Var("pos", shader.Float2Type, shader.VertexInput)
			return &shader.Shader{Stage: shader.Fragment, Variables: []*shader.Variable{v}, Methods: []*shader.Method{m}, Entry: m}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Emit(tt.build())
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("Emit err = %v, want ErrUnsupported", err)
			}
		})
	}
}
