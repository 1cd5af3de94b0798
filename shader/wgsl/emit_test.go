package wgsl

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/naga"

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

func texturedFragmentShader() *shader.Shader {
	tex := shader.Var("image", shader.TextureType, shader.Uniform)
	tint := shader.Var("tint", shader.Float4Type, shader.Uniform)
	uv := shader.Var("vUV", shader.Float2Type, shader.VertexOutput)
	entry := &shader.Method{
		Name:   "shade",
		Return: shader.Float4Type,
		Body: shader.Blk(
			shader.Ret(shader.Bin(shader.OpMul,
				shader.Intrinsic("Sample", shader.Float4Type, shader.Ref(tex), shader.Ref(uv)),
				shader.Ref(tint),
			)),
		),
	}
	return &shader.Shader{
		Name:      "textured",
		Stage:     shader.Fragment,
		Variables: []*shader.Variable{tex, tint, uv},
		Methods:   []*shader.Method{entry},
		Entry:     entry,
	}
}

func TestEmitVertexGolden(t *testing.T) {
	mod, err := Emit(solidVertexShader())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	want := `struct Vertex {
    pos: vec2<f32>,
    color: vec4<f32>,
}

struct _Uniforms {
    projection: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> _uniforms: _Uniforms;

var<private> in_pos: vec2<f32>;
var<private> in_color: vec4<f32>;
var<private> vColor: vec4<f32>;

fn _main() -> vec4<f32> {
    vColor = in_color;
    return (_uniforms.projection * vec4<f32>(in_pos, 0.0, 1.0));
}

struct _VertexInput {
    @location(0) in_pos: vec2<f32>,
    @location(1) in_color: vec4<f32>,
}

struct _VertexOutput {
    @builtin(position) _position: vec4<f32>,
    @location(0) vColor: vec4<f32>,
}

@vertex
fn vs_main(_input: _VertexInput) -> _VertexOutput {
    in_pos = _input.in_pos;
    in_color = _input.in_color;
    var _output: _VertexOutput;
    _output._position = _main();
    _output.vColor = vColor;
    return _output;
}
`
	if mod.Source != want {
		t.Errorf("Emit mismatch\n--- got ---\n%s\n--- want ---\n%s", mod.Source, want)
	}
	if mod.EntryPoint != VertexEntry || mod.UniformBinding != 0 || mod.UniformSize != 64 {
		t.Errorf("module = entry %q binding %d size %d", mod.EntryPoint, mod.UniformBinding, mod.UniformSize)
	}
	if len(mod.Attributes) != 2 || mod.Attributes[1].Name != "in_color" || mod.Attributes[1].Location != 1 {
		t.Errorf("attributes = %+v", mod.Attributes)
	}
}

func TestEmitFragmentBindings(t *testing.T) {
	mod, err := Emit(texturedFragmentShader())
	if err != nil {
		t.Fatal(err)
	}
	if len(mod.Textures) != 1 {
		t.Fatalf("textures = %+v", mod.Textures)
	}
	tex := mod.Textures[0]
	if tex.Binding != 1 || tex.SamplerBinding != 2 {
		t.Errorf("texture bindings = %d/%d, want 1/2", tex.Binding, tex.SamplerBinding)
	}
	slot, ok := mod.UniformSlot("tint")
	if !ok || slot.Offset != 0 || slot.Kind != shader.Float4 {
		t.Errorf("tint slot = %+v, %v", slot, ok)
	}
	for _, line := range []string{
		"@group(0) @binding(1) var image: texture_2d<f32>;",
		"@group(0) @binding(2) var image_sampler: sampler;",
		"    return textureSample(image, image_sampler, vUV) * _uniforms.tint;",
		"fn fs_main(_input: _FragmentInput) -> @location(0) vec4<f32> {",
	} {
		if !strings.Contains(mod.Source, line+"\n") {
			t.Errorf("missing line %q in\n%s", line, mod.Source)
		}
	}
}

func TestEmitGroup(t *testing.T) {
	mod, err := EmitGroup(texturedFragmentShader(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if mod.Group != 1 {
		t.Errorf("Group = %d, want 1", mod.Group)
	}
	if !strings.Contains(mod.Source, "@group(1) @binding(0) var<uniform> _uniforms: _Uniforms;\n") {
		t.Errorf("uniform block not in group 1:\n%s", mod.Source)
	}
	if strings.Contains(mod.Source, "@group(0)") {
		t.Errorf("group 0 binding left in\n%s", mod.Source)
	}
	if _, err := EmitGroup(texturedFragmentShader(), -1); err == nil {
		t.Error("negative group accepted")
	}
}

func TestEmitComputeStorage(t *testing.T) {
	particle := shader.NewStructure("Particle",
		shader.Field{Name: "pos", Type: shader.Float2Type},
		shader.Field{Name: "speed", Type: shader.FloatType},
	)
	particles := &shader.Variable{Name: "particles", Type: shader.Array{Elem: particle}, Kind: shader.Uniform, ReadBack: true}
	dt := shader.Var("dt", shader.FloatType, shader.Uniform)
	paused := shader.Var("paused", shader.BoolType, shader.Uniform)
	id := shader.Var("id", shader.IntType, shader.Parameter)
	entry := &shader.Method{
		Name:   "advance",
		Return: shader.VoidType,
		Params: []*shader.Variable{id},
		Body: shader.Blk(
			shader.If(
				shader.Bin(shader.OpOr, shader.Ref(paused),
					shader.Bin(shader.OpGe, shader.Ref(id), shader.Intrinsic("Length", shader.IntType, shader.Ref(particles)))),
				shader.Ret(nil),
			),
			shader.Intrinsic("Store", shader.VoidType, shader.Ref(particles), shader.Ref(id), shader.Zero(particle)),
		),
	}
	s := &shader.Shader{
		Name:          "physics",
		Stage:         shader.Compute,
		Variables:     []*shader.Variable{particles, dt, paused},
		Methods:       []*shader.Method{entry},
		Entry:         entry,
		WorkgroupSize: [3]int{64},
	}
	mod, err := Emit(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(mod.Storage) != 1 || mod.Storage[0].Binding != 1 || !mod.Storage[0].ReadBack {
		t.Errorf("storage = %+v", mod.Storage)
	}
	if slot, _ := mod.UniformSlot("paused"); slot.Kind != shader.Bool || slot.Offset != 4 {
		t.Errorf("paused slot = %+v", slot)
	}
	for _, line := range []string{
		"    paused: u32,",
		"@group(0) @binding(1) var<storage, read_write> particles: array<Particle>;",
		"    if ((_uniforms.paused != 0u) || (id >= i32(arrayLength(&particles)))) {",
		"    particles[id] = Particle();",
		"@compute @workgroup_size(64, 1, 1)",
		"    advance(i32(_gid.x));",
	} {
		if !strings.Contains(mod.Source, line+"\n") {
			t.Errorf("missing line %q in\n%s", line, mod.Source)
		}
	}
}

func TestNonFiniteHelpersOnlyWhenUsed(t *testing.T) {
	mod, err := Emit(solidVertexShader())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(mod.Source, "_positive_infinity") {
		t.Error("helpers emitted for a shader without non-finite constants")
	}

	entry := &shader.Method{Name: "fs", Return: shader.Float4Type, Body: shader.Blk(
		shader.Ret(shader.Intrinsic("Float4", shader.Float4Type, shader.Inf(1), shader.Inf(-1), shader.NaN(), shader.ConstFloat(1))),
	)}
	mod, err = Emit(&shader.Shader{Stage: shader.Fragment, Methods: []*shader.Method{entry}, Entry: entry})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(mod.Source, "return vec4<f32>(_positive_infinity(), _negative_infinity(), _nan(), 1.0);") {
		t.Errorf("non-finite constants not lowered:\n%s", mod.Source)
	}
	if strings.Count(mod.Source, "fn _nan()") != 1 {
		t.Errorf("helpers missing or duplicated:\n%s", mod.Source)
	}
}

func TestLoopLowering(t *testing.T) {
	i := shader.Var("i", shader.IntType, shader.Local)
	entry := &shader.Method{
		Name:   "fs",
		Return: shader.Float4Type,
		Locals: []*shader.Variable{i},
		Body: shader.Blk(
			shader.While(shader.Bin(shader.OpLt, shader.Ref(i), shader.ConstInt(4)),
				shader.Bin(shader.OpAddAssign, shader.Ref(i), shader.ConstInt(1)),
			),
			&shader.Loop{Body: shader.Blk(shader.Ret(shader.Zero(shader.Float4Type)))},
		),
	}
	mod, err := Emit(&shader.Shader{Stage: shader.Fragment, Methods: []*shader.Method{entry}, Entry: entry})
	if err != nil {
		t.Fatal(err)
	}
	want := `fn fs() -> vec4<f32> {
    var i: i32 = i32();
    while (i < 4) {
        i += 1;
    }
    loop {
        return vec4<f32>();
    }
}
`
	if !strings.Contains(mod.Source, want) {
		t.Errorf("got\n%s\nwant fragment\n%s", mod.Source, want)
	}
}

func TestEmitErrors(t *testing.T) {
	ret := &shader.Method{Name: "fs", Return: shader.Float4Type, Body: shader.Blk(shader.Ret(shader.Zero(shader.Float4Type)))}
	flagged := shader.NewStructure("Flagged", shader.Field{Name: "on", Type: shader.BoolType})
	tests := []struct {
		name string
		vars []*shader.Variable
	}{
		{"bool inside uniform structure", []*shader.Variable{shader.Var("f", flagged, shader.Uniform)}},
		{"bool inside storage element", []*shader.Variable{shader.Var("fs", shader.Array{Elem: flagged}, shader.Uniform)}},
		{"vertex input in fragment shader", []*shader.Variable{shader.Var("p", shader.Float2Type, shader.VertexInput)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &shader.Shader{Stage: shader.Fragment, Variables: tt.vars, Methods: []*shader.Method{ret}, Entry: ret}
			if _, err := Emit(s); !errors.Is(err, ErrUnsupported) {
				t.Errorf("Emit err = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestEscapeIdempotent(t *testing.T) {
	for _, name := range []string{"loop", "texture_2d", "select", "position", ""} {
		once := Escape(name)
		if Escape(once) != once {
			t.Errorf("Escape(%q) = %q is not stable", name, once)
		}
	}
	if Escape("loop") != "_loop" {
		t.Errorf("Escape(loop) = %q", Escape("loop"))
	}
}

func TestEmittedSourceCompiles(t *testing.T) {
	for _, s := range []*shader.Shader{solidVertexShader(), texturedFragmentShader()} {
		t.Run(s.Name, func(t *testing.T) {
			mod, err := Emit(s)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := naga.Compile(mod.Source); err != nil {
				t.Fatalf("naga.Compile: %v\n%s", err, mod.Source)
			}
		})
	}
}
