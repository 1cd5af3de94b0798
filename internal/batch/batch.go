// Package batch coalesces draw commands and executes them on a device.
//
// Submit appends a command or, when it continues the previous one,
// grows that command in place. Flush uploads the frame's vertex bytes,
// issues one device draw per remaining command in submission order, and
// recycles the buffer pool and the registered streams.
package batch

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/internal/bufpool"
)

// Index describes index data for a chunk.
type Index struct {
	Buffer device.BufferID
	Format gputypes.IndexFormat
	// First and Count select the indices to draw.
	First, Count int
}

// Instance describes per-instance data for a chunk.
type Instance struct {
	Buffer device.BufferID
	Layout *device.VertexLayout
	Count  int
}

// Chunk is one drawable vertex range.
type Chunk struct {
	// Buffer holds the vertices. When it is device.InvalidID they live
	// in the pool buffer Handle, whose ID is known only after upload.
	Buffer   device.BufferID
	Handle   bufpool.Handle
	Layout   *device.VertexLayout
	First    int
	Count    int
	Topology gputypes.PrimitiveTopology
	Index    *Index
	Instance *Instance
}

// Effect is the program and resource bindings a command draws with.
// Effects are compared with ==, so implementations should be comparable
// values whose equality means identical device state.
type Effect interface {
	// Apply makes the effect current on dev.
	Apply(dev device.Device) error
	// Batchable reports whether runs of the effect may be merged. An
	// effect whose uniforms change per draw is not.
	Batchable() bool
}

// State is the visibility state of a command.
type State struct {
	Clip    geom.Rect
	Clipped bool
	Stencil device.Stencil
}

// Command is a chunk with the effect and state it is drawn with.
type Command struct {
	Chunk  Chunk
	Effect Effect
	State  State
}

// canMerge reports whether next continues c: same effect and state,
// same buffer and topology, no index or instance data, and next starts
// where c ends.
func (c *Command) canMerge(next *Command) bool {
	a, b := &c.Chunk, &next.Chunk
	return c.Effect.Batchable() &&
		c.Effect == next.Effect &&
		c.State == next.State &&
		a.Buffer == b.Buffer &&
		a.Handle == b.Handle &&
		a.Layout == b.Layout &&
		a.Topology == b.Topology &&
		a.Index == nil && b.Index == nil &&
		a.Instance == nil && b.Instance == nil &&
		b.First == a.First+a.Count
}

// Resetter is implemented by streams that are emptied after each flush.
type Resetter interface {
	Reset()
}

// Stats describes one flush.
type Stats struct {
	Submitted int
	Commands  int
	Bytes     int
}

// Batcher accumulates commands for one device.
//
// Batcher is not safe for concurrent use.
type Batcher struct {
	dev       device.Device
	pool      *bufpool.Pool
	commands  []Command
	streams   []Resetter
	submitted int
}

// New returns a Batcher drawing on dev with vertex bytes from pool.
func New(dev device.Device, pool *bufpool.Pool) *Batcher {
	return &Batcher{dev: dev, pool: pool}
}

// Register adds a stream to reset after each flush.
func (b *Batcher) Register(s Resetter) { b.streams = append(b.streams, s) }

// Commands returns the pending commands.
func (b *Batcher) Commands() []Command { return b.commands }

// Submit queues a chunk. It merges into the previous command when
// possible and flushes at once for effects that cannot be batched. It
// panics on an empty chunk.
func (b *Batcher) Submit(chunk Chunk, effect Effect, state State) error {
	if chunk.Count <= 0 {
		panic(fmt.Sprintf("batch: submitted chunk with %d vertices", chunk.Count))
	}
	if effect == nil {
		panic("batch: submitted chunk without an effect")
	}
	b.submitted++
	cmd := Command{Chunk: chunk, Effect: effect, State: state}
	if n := len(b.commands); n > 0 && b.commands[n-1].canMerge(&cmd) {
		b.commands[n-1].Chunk.Count += chunk.Count
		return nil
	}
	b.commands = append(b.commands, cmd)
	if !effect.Batchable() {
		_, err := b.Flush()
		return err
	}
	return nil
}

// Flush draws every pending command and starts a new frame. The pool
// and the registered streams are reset even when drawing fails.
func (b *Batcher) Flush() (Stats, error) {
	stats := Stats{Submitted: b.submitted, Commands: len(b.commands)}
	defer b.reset()
	if len(b.commands) == 0 {
		return stats, nil
	}

	n, err := b.pool.Upload()
	stats.Bytes = n
	if err != nil {
		return stats, err
	}

	var (
		effect   Effect
		state    State
		first    = true
		buffer   device.BufferID
		layout   *device.VertexLayout
		instance *Instance
	)
	for i := range b.commands {
		cmd := &b.commands[i]
		if first || cmd.Effect != effect {
			if err := cmd.Effect.Apply(b.dev); err != nil {
				return stats, fmt.Errorf("batch: command %d: %w", i, err)
			}
			effect = cmd.Effect
		}
		if first || cmd.State != state {
			applyState(b.dev, cmd.State)
			state = cmd.State
		}
		first = false

		c := &cmd.Chunk
		vb := c.Buffer
		if vb == device.InvalidID {
			vb = b.pool.Buffer(c.Handle).ID
		}
		if vb != buffer || c.Layout != layout {
			b.dev.BindVertexBuffer(vb, 0, c.Layout)
			buffer, layout = vb, c.Layout
		}
		instances := 1
		if c.Instance != nil {
			b.dev.BindInstanceBuffer(c.Instance.Buffer, 0, c.Instance.Layout)
			instances = c.Instance.Count
		} else if instance != nil {
			b.dev.BindInstanceBuffer(device.InvalidID, 0, nil)
		}
		instance = c.Instance

		if c.Index != nil {
			b.dev.BindIndexBuffer(c.Index.Buffer, c.Index.Format)
			b.dev.DrawIndexed(c.Topology, c.Index.First, c.Index.Count, instances)
			continue
		}
		b.dev.Draw(c.Topology, c.First, c.Count, instances)
	}
	if err := b.dev.Submit(); err != nil {
		return stats, fmt.Errorf("batch: submit: %w", err)
	}
	return stats, nil
}

func applyState(dev device.Device, s State) {
	if s.Clipped {
		r := s.Clip
		dev.SetScissor(&r)
	} else {
		dev.SetScissor(nil)
	}
	dev.SetStencil(s.Stencil)
}

func (b *Batcher) reset() {
	b.commands = b.commands[:0]
	b.submitted = 0
	b.pool.Reset()
	for _, s := range b.streams {
		s.Reset()
	}
}
