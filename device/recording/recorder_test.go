package recording

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/shader"
)

func TestCommandTypeString(t *testing.T) {
	tests := []struct {
		typ  CommandType
		want string
	}{
		{CmdCreateBuffer, "CreateBuffer"},
		{CmdDrawIndexed, "DrawIndexed"},
		{CmdSubmit, "Submit"},
		{CommandType(200), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("CommandType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestBufferWriteRead(t *testing.T) {
	rec := New(device.GLSL)
	buf, err := rec.CreateBuffer(gputypes.BufferUsageVertex, 8)
	if err != nil {
		t.Fatal(err)
	}
	rec.WriteBuffer(buf, 2, []byte{1, 2, 3})

	got := make([]byte, 4)
	if err := rec.ReadBuffer(buf, 1, got); err != nil {
		t.Fatal(err)
	}
	if want := []byte{0, 1, 2, 3}; string(got) != string(want) {
		t.Errorf("ReadBuffer = %v, want %v", got, want)
	}

	rec.WriteBuffer(buf, 6, []byte{1, 2, 3})
	if err := rec.Submit(); !errors.Is(err, device.ErrOutOfRange) {
		t.Errorf("Submit after overflow = %v, want ErrOutOfRange", err)
	}
	if err := rec.Submit(); err != nil {
		t.Errorf("second Submit = %v, want nil", err)
	}
	if err := rec.ReadBuffer(device.BufferID(999), 0, got); !errors.Is(err, device.ErrUnknownBuffer) {
		t.Errorf("ReadBuffer(unknown) = %v", err)
	}
}

func TestProgramUniforms(t *testing.T) {
	light := shader.NewStructure("Light",
		shader.Field{Name: "pos", Type: shader.Float2Type},
		shader.Field{Name: "power", Type: shader.FloatType},
	)
	entry := &shader.Method{Name: "fs", Return: shader.Float4Type, Body: shader.Blk(shader.Ret(shader.Zero(shader.Float4Type)))}
	s := &shader.Shader{
		Stage: shader.Fragment,
		Variables: []*shader.Variable{
			shader.Var("light", light, shader.Uniform),
			shader.Var("tint", shader.Float4Type, shader.Uniform),
			shader.Var("items", shader.Array{Elem: shader.FloatType}, shader.Uniform),
		},
		Methods: []*shader.Method{entry},
		Entry:   entry,
	}
	rec := New(device.GLSL)
	p, err := rec.CreateProgram(device.ProgramSource{
		Name:   "lit",
		Stages: []device.StageSource{{Stage: shader.Fragment, Source: "void main() {}", Shader: s}},
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"light.pos", "light.power", "tint"} {
		if loc := rec.UniformLocation(p, name); loc < 0 {
			t.Errorf("UniformLocation(%q) = %d, want active", name, loc)
		}
	}
	for _, name := range []string{"light", "items", "missing"} {
		if loc := rec.UniformLocation(p, name); loc >= 0 {
			t.Errorf("UniformLocation(%q) = %d, want inactive", name, loc)
		}
	}

	rec.UseProgram(p)
	rec.SetUniform(rec.UniformLocation(p, "tint"), shader.Float4, []uint32{1, 2, 3, 4})
	rec.SetUniform(-1, shader.Float, []uint32{9})
	got, ok := rec.Uniform(p, "tint")
	if !ok || len(got) != 4 || got[3] != 4 {
		t.Errorf("Uniform(tint) = %v, %v", got, ok)
	}
	if n := len(rec.CommandsOf(CmdSetUniform)); n != 1 {
		t.Errorf("recorded %d SetUniform commands, want 1", n)
	}
}

func TestLinkFailure(t *testing.T) {
	rec := New(device.WGSL, WithLinkFailure("broken", "error: undeclared identifier"))
	_, err := rec.CreateProgram(device.ProgramSource{Name: "broken"})
	var le *device.LinkError
	if !errors.As(err, &le) {
		t.Fatalf("CreateProgram err = %v, want *LinkError", err)
	}
	if le.Program != "broken" || le.Log != "error: undeclared identifier" {
		t.Errorf("LinkError = %+v", le)
	}
}

func TestDrawsAndDispatchHook(t *testing.T) {
	dispatched := 0
	rec := New(device.GLSL, WithDispatchHook(func(r *Recorder, x, y, z int) {
		dispatched += x * y * z
	}))
	rec.Draw(gputypes.PrimitiveTopologyTriangleList, 0, 6, 1)
	rec.DrawIndexed(gputypes.PrimitiveTopologyTriangleList, 3, 9, 2)
	rec.Dispatch(4, 2, 1)

	draws := rec.Draws()
	if len(draws) != 2 {
		t.Fatalf("Draws() = %d, want 2", len(draws))
	}
	if draws[0].Type() != CmdDraw || draws[1].Type() != CmdDrawIndexed || draws[1].Instances != 2 {
		t.Errorf("draws = %v", draws)
	}
	if dispatched != 8 {
		t.Errorf("dispatch hook saw %d invocations, want 8", dispatched)
	}

	rec.Reset()
	if len(rec.Commands()) != 0 {
		t.Errorf("Commands() after Reset = %d", len(rec.Commands()))
	}
}
