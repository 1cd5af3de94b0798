package batch

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/device/recording"
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/internal/bufpool"
)

type testEffect struct {
	name    string
	perDraw bool
}

func (e testEffect) Apply(device.Device) error { return nil }
func (e testEffect) Batchable() bool           { return !e.perDraw }

var (
	solid   = testEffect{name: "solid"}
	texture = testEffect{name: "texture"}
	custom  = testEffect{name: "custom", perDraw: true}
	layout  = &device.VertexLayout{Name: "test", Stride: 8}
)

type counter struct{ resets int }

func (c *counter) Reset() { c.resets++ }

func newBatcher() (*Batcher, *recording.Recorder, *bufpool.Pool) {
	rec := recording.New(device.GLSL)
	pool := bufpool.New(rec, gputypes.BufferUsageVertex, 64)
	return New(rec, pool), rec, pool
}

func chunk(buf device.BufferID, first, count int) Chunk {
	return Chunk{Buffer: buf, Layout: layout, First: first, Count: count, Topology: gputypes.PrimitiveTopologyTriangleList}
}

func TestMergeCorrectness(t *testing.T) {
	individually, _, _ := newBatcher()
	for _, c := range []Chunk{chunk(1, 0, 6), chunk(1, 6, 3), chunk(1, 9, 12)} {
		if err := individually.Submit(c, solid, State{}); err != nil {
			t.Fatal(err)
		}
	}
	merged, _, _ := newBatcher()
	if err := merged.Submit(chunk(1, 0, 21), solid, State{}); err != nil {
		t.Fatal(err)
	}

	a, b := individually.Commands(), merged.Commands()
	if len(a) != 1 || len(b) != 1 || a[0] != b[0] {
		t.Errorf("individual submits = %+v, merged submit = %+v", a, b)
	}
}

func TestMergeNonInterference(t *testing.T) {
	clipped := State{Clip: geom.R(0, 0, 5, 5), Clipped: true}
	tests := []struct {
		name   string
		middle Chunk
		effect Effect
		state  State
	}{
		{"different effect", chunk(1, 6, 3), texture, State{}},
		{"different clip", chunk(1, 6, 3), solid, clipped},
		{"different stencil", chunk(1, 6, 3), solid, State{Stencil: device.Stencil{Read: 0xff, Ref: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, _ := newBatcher()
			b.Submit(chunk(1, 0, 6), solid, State{})
			b.Submit(tt.middle, tt.effect, tt.state)
			b.Submit(chunk(1, 9, 6), solid, State{})
			if n := len(b.Commands()); n != 3 {
				t.Errorf("got %d commands, want 3", n)
			}
		})
	}
}

func TestMergeRequiresContinuation(t *testing.T) {
	tests := []struct {
		name string
		next Chunk
		want int
	}{
		{"contiguous", chunk(1, 6, 6), 1},
		{"gap", chunk(1, 7, 6), 2},
		{"other buffer", chunk(2, 6, 6), 2},
		{"lines", Chunk{Buffer: 1, Layout: layout, First: 6, Count: 2, Topology: gputypes.PrimitiveTopologyLineList}, 2},
		{"indexed", Chunk{Buffer: 1, Layout: layout, First: 6, Count: 6, Topology: gputypes.PrimitiveTopologyTriangleList, Index: &Index{Buffer: 3, Count: 6}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, _ := newBatcher()
			b.Submit(chunk(1, 0, 6), solid, State{})
			b.Submit(tt.next, solid, State{})
			if n := len(b.Commands()); n != tt.want {
				t.Errorf("got %d commands, want %d", n, tt.want)
			}
		})
	}
}

func TestFlushOneDrawPerCommand(t *testing.T) {
	b, rec, pool := newBatcher()
	streams := &counter{}
	b.Register(streams)

	h := pool.Take()
	pool.Write(h, make([]byte, 8*12))
	b.Submit(chunk(1, 0, 6), solid, State{})
	b.Submit(chunk(1, 6, 3), solid, State{})
	b.Submit(chunk(1, 9, 3), texture, State{})

	stats, err := b.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Submitted != 3 || stats.Commands != 2 || stats.Bytes != 96 {
		t.Errorf("stats = %+v", stats)
	}
	draws := rec.Draws()
	if len(draws) != 2 {
		t.Fatalf("got %d draws, want 2", len(draws))
	}
	if draws[0].First != 0 || draws[0].Count != 9 || draws[1].First != 9 || draws[1].Count != 3 {
		t.Errorf("draws = %v", draws)
	}
	if n := len(rec.CommandsOf(recording.CmdBindVertexBuffer)); n != 1 {
		t.Errorf("vertex buffer bound %d times, want 1", n)
	}
	if n := len(rec.CommandsOf(recording.CmdSubmit)); n != 1 {
		t.Errorf("submitted %d times, want 1", n)
	}
	if len(b.Commands()) != 0 || pool.Used() != 0 || streams.resets != 1 {
		t.Errorf("after flush: %d commands, %d pool buffers, %d stream resets", len(b.Commands()), pool.Used(), streams.resets)
	}
}

func TestUnbatchableFlushesImmediately(t *testing.T) {
	b, rec, _ := newBatcher()
	b.Submit(chunk(1, 0, 6), solid, State{})
	if err := b.Submit(chunk(1, 6, 6), custom, State{}); err != nil {
		t.Fatal(err)
	}
	if len(b.Commands()) != 0 {
		t.Errorf("%d commands pending after an unbatchable submit", len(b.Commands()))
	}
	if n := len(rec.Draws()); n != 2 {
		t.Errorf("got %d draws, want 2", n)
	}
}

func TestStateApplied(t *testing.T) {
	b, rec, _ := newBatcher()
	clip := State{Clip: geom.R(1, 2, 3, 4), Clipped: true}
	b.Submit(chunk(1, 0, 6), solid, clip)
	b.Submit(chunk(1, 6, 6), solid, State{})
	if _, err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	scissors := rec.CommandsOf(recording.CmdSetScissor)
	if len(scissors) != 2 {
		t.Fatalf("got %d scissor changes, want 2", len(scissors))
	}
	if r := scissors[0].(recording.SetScissorCommand).Rect; r == nil || *r != clip.Clip {
		t.Errorf("first scissor = %v, want %v", r, clip.Clip)
	}
	if r := scissors[1].(recording.SetScissorCommand).Rect; r != nil {
		t.Errorf("second scissor = %v, want disabled", r)
	}
}

func TestZeroVertexChunkPanics(t *testing.T) {
	b, _, _ := newBatcher()
	defer func() {
		if recover() == nil {
			t.Error("Submit of an empty chunk did not panic")
		}
	}()
	b.Submit(chunk(1, 0, 0), solid, State{})
}

func TestFlushResolvesPoolHandles(t *testing.T) {
	b, rec, pool := newBatcher()
	h := pool.Take()
	pool.Write(h, make([]byte, 8*6))
	c := Chunk{Handle: h, Layout: layout, Count: 6, Topology: gputypes.PrimitiveTopologyTriangleList}
	b.Submit(c, solid, State{})
	if _, err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	binds := rec.CommandsOf(recording.CmdBindVertexBuffer)
	if len(binds) != 1 {
		t.Fatalf("got %d vertex buffer binds, want 1", len(binds))
	}
	bind := binds[0].(recording.BindVertexBufferCommand)
	if bind.Buffer == device.InvalidID || rec.Buffer(bind.Buffer) == nil {
		t.Errorf("bound buffer %d, want the uploaded pool buffer", bind.Buffer)
	}
}
