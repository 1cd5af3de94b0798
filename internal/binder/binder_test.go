package binder

import (
	"errors"
	"math"
	"reflect"
	"slices"
	"testing"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/device/recording"
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/shader"
)

type texture struct{ id uint64 }

func (t *texture) SamplerID() uint64 { return t.id }

type light struct {
	Pos   geom.Vec2
	Power float32
}

type uniforms struct {
	Tint      geom.Color
	Transform geom.Matrix
	Enabled   bool
	Count     int32
	Light     light
	Image     *texture
	Mask      *texture
	Ignored   float32 `shader:"-"`
}

type inner struct {
	Weight float32
	Dir    [2]float32
}

type particle struct {
	Pos   geom.Vec2
	Vel   geom.Vec3
	Alive bool
	ID    int32
	Inner inner
	Xform geom.Matrix
}

type physics struct {
	Particles []particle `shader:"particles,readback"`
	Weights   []float32
	Dt        float32
}

func program(t *testing.T, rec *recording.Recorder, host any) (device.ProgramID, []*shader.Variable) {
	t.Helper()
	vars, err := shader.VariablesOf(reflect.TypeOf(host), shader.Uniform)
	if err != nil {
		t.Fatal(err)
	}
	entry := &shader.Method{Name: "run", Return: shader.VoidType}
	s := &shader.Shader{Name: "test", Stage: shader.Compute, Variables: vars, Methods: []*shader.Method{entry}, Entry: entry}
	p, err := rec.CreateProgram(device.ProgramSource{
		Name:   "test",
		Stages: []device.StageSource{{Stage: shader.Compute, Source: "src", Shader: s}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return p, vars
}

func f32(v float32) uint32 { return math.Float32bits(v) }

func TestBindUniforms(t *testing.T) {
	rec := recording.New(device.GLSL)
	host := &uniforms{
		Tint:      geom.RGBA(0.5, 0.25, 1, 1),
		Transform: geom.Matrix{A: 1, B: 2, C: 3, D: 4, E: 5, F: 6},
		Enabled:   true,
		Count:     -3,
		Light:     light{Pos: geom.V2(7, 8), Power: 9},
		Image:     &texture{id: 42},
	}
	p, vars := program(t, rec, host)
	b := New(rec)
	if err := b.Bind(p, vars, host); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want []uint32
	}{
		{"tint", []uint32{f32(0.5), f32(0.25), f32(1), f32(1)}},
		{"transform", []uint32{f32(1), f32(4), f32(2), f32(5), f32(3), f32(6)}},
		{"enabled", []uint32{1}},
		{"count", []uint32{uint32(0xfffffffd)}},
		{"light.pos", []uint32{f32(7), f32(8)}},
		{"light.power", []uint32{f32(9)}},
		{"image", []uint32{0}},
		{"mask", []uint32{1}},
	}
	for _, tt := range tests {
		got, ok := rec.Uniform(p, tt.name)
		if !ok || !slices.Equal(got, tt.want) {
			t.Errorf("uniform %s = %v (%v), want %v", tt.name, got, ok, tt.want)
		}
	}
	binds := rec.CommandsOf(recording.CmdBindTexture)
	if len(binds) != 2 {
		t.Fatalf("got %d texture binds, want 2", len(binds))
	}
	if bt := binds[0].(recording.BindTextureCommand); bt.Unit != 0 || bt.Texture != 42 {
		t.Errorf("first texture bind = %+v", bt)
	}
	if bt := binds[1].(recording.BindTextureCommand); bt.Unit != 1 || bt.Texture != device.InvalidID {
		t.Errorf("nil texture bind = %+v", bt)
	}
}

func TestLocationsMemoized(t *testing.T) {
	rec := recording.New(device.GLSL)
	host := &uniforms{}
	p, vars := program(t, rec, host)
	b := New(rec)
	b.Bind(p, vars, host)
	b.Bind(p, vars, host)
	if n := len(b.locations); n != 8 {
		t.Errorf("memoized %d locations, want 8", n)
	}
	b.Forget(p)
	if len(b.locations) != 0 {
		t.Error("Forget kept locations")
	}
}

func TestStorageRoundTrip(t *testing.T) {
	rec := recording.New(device.GLSL)
	want := []particle{
		{Pos: geom.V2(1, 2), Vel: geom.Vec3{X: 3, Y: 4, Z: 5}, Alive: true, ID: 7, Inner: inner{Weight: 0.5, Dir: [2]float32{-1, 1}}, Xform: geom.Translate(3, 4)},
		{Pos: geom.V2(-1, -2), Alive: false, ID: -9, Inner: inner{Weight: 2}, Xform: geom.Scale(2, 3)},
		{Alive: true, ID: 1 << 20},
	}
	host := &physics{Particles: slices.Clone(want), Weights: []float32{1, 2, 3}, Dt: 0.016}
	p, vars := program(t, rec, host)
	b := New(rec)
	if err := b.Bind(p, vars, host); err != nil {
		t.Fatal(err)
	}

	clear(host.Particles)
	if err := b.ReadBack(p, vars, host); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(host.Particles, want) {
		t.Errorf("read back %+v\nwant %+v", host.Particles, want)
	}
	if host.Weights[2] != 3 {
		t.Error("array without readback changed")
	}
}

func TestStorageLayout(t *testing.T) {
	elem, err := shader.TypeOf(reflect.TypeFor[particle]())
	if err != nil {
		t.Fatal(err)
	}
	l, err := NewFieldLayout(elem, reflect.TypeFor[particle]())
	if err != nil {
		t.Fatal(err)
	}
	// pos 0, vel 16, alive 28, id 32, inner 40 (weight 40, dir 48), xform 56 (align 8), size 80
	want := []FieldCopy{
		{HostOffset: 0, DeviceOffset: 0, Size: 8, Kind: shader.Float2},
		{HostOffset: 8, DeviceOffset: 16, Size: 12, Kind: shader.Float3},
		{HostOffset: 20, DeviceOffset: 28, Size: 4, Kind: shader.Bool},
		{HostOffset: 24, DeviceOffset: 32, Size: 4, Kind: shader.Int},
		{HostOffset: 28, DeviceOffset: 40, Size: 4, Kind: shader.Float},
		{HostOffset: 32, DeviceOffset: 48, Size: 8, Kind: shader.Float2},
		{HostOffset: 40, DeviceOffset: 56, Size: 24, Kind: shader.Matrix3x2},
	}
	if !slices.Equal(l.Fields, want) {
		t.Errorf("fields = %+v\nwant %+v", l.Fields, want)
	}
	if l.HostStride != 64 || l.DeviceStride != 80 {
		t.Errorf("strides = host %d device %d, want 64 and 80", l.HostStride, l.DeviceStride)
	}
}

func TestReadBackSeesDispatch(t *testing.T) {
	rec := recording.New(device.GLSL, recording.WithDispatchHook(func(r *recording.Recorder, _, _, _ int) {
		buf, _ := r.StorageBuffer(0)
		data := r.Buffer(buf)
		data[28] = 0 // particles[0].alive
	}))
	host := &physics{Particles: []particle{{Alive: true}}}
	p, vars := program(t, rec, host)
	b := New(rec)
	if err := b.Bind(p, vars, host); err != nil {
		t.Fatal(err)
	}
	rec.Dispatch(1, 1, 1)
	if err := b.ReadBack(p, vars, host); err != nil {
		t.Fatal(err)
	}
	if host.Particles[0].Alive {
		t.Error("dispatch result not read back")
	}
}

func TestBindErrors(t *testing.T) {
	rec := recording.New(device.GLSL)
	host := &uniforms{}
	p, vars := program(t, rec, host)
	b := New(rec)

	type other struct{ Tint geom.Color }
	if err := b.Bind(p, vars, &other{}); !errors.Is(err, ErrMissingField) {
		t.Errorf("Bind with missing fields = %v, want ErrMissingField", err)
	}
	if err := b.Bind(p, vars, 3); !errors.Is(err, ErrHostMismatch) {
		t.Errorf("Bind of a non-struct = %v, want ErrHostMismatch", err)
	}
	type wrongKind struct {
		Pos   geom.Vec2
		Vel   geom.Vec3
		Alive bool
		ID    float32
		Inner inner
		Xform geom.Matrix
	}
	elem, err := shader.TypeOf(reflect.TypeFor[particle]())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewFieldLayout(elem, reflect.TypeFor[wrongKind]()); !errors.Is(err, ErrHostMismatch) {
		t.Errorf("float32 host field behind an int leaf = %v, want ErrHostMismatch", err)
	}
	bad := []*shader.Variable{{Name: "tint", Type: shader.FloatType, Kind: shader.Uniform, Field: "Tint"}}
	if err := b.Bind(p, bad, host); !errors.Is(err, ErrHostMismatch) {
		t.Errorf("Bind with mismatched type = %v, want ErrHostMismatch", err)
	}
}
