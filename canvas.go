package canvas

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/device/halgpu"
	"github.com/gogpu/canvas/geom"
	"github.com/gogpu/canvas/internal/batch"
	"github.com/gogpu/canvas/internal/binder"
	"github.com/gogpu/canvas/internal/bufpool"
	"github.com/gogpu/canvas/internal/geometry"
	"github.com/gogpu/canvas/shader"
	"github.com/gogpu/canvas/text"
)

// Canvas is a 2D drawing surface on a device.
//
// Canvas is not safe for concurrent use. Textures may be released from
// any goroutine.
type Canvas struct {
	dev    device.Device
	owned  *halgpu.Device
	opts   options
	width  int
	height int
	ortho  geom.Mat4
	base   geom.Matrix

	st    state
	stack []state
	paint geom.Color

	pool      *bufpool.Pool
	batcher   *batch.Batcher
	binder    *binder.Binder
	deletions *device.DeletionQueue
	handles   map[*device.VertexLayout]bufpool.Handle

	fill     geometry.Fill
	hairline geometry.Hairline
	path     geometry.Path
	colors   *geometry.Stream[geometry.ColorVertex]
	textured *geometry.Stream[geometry.TexVertex]

	effects  map[effectKey]*Effect
	solid    *Effect
	texture  *Effect
	atlas    *text.Atlas
	atlasTex *Texture

	err    error
	closed bool
}

// Ensure Canvas implements io.Closer.
var _ io.Closer = (*Canvas)(nil)

// frameReset clears per-frame canvas state when the batcher starts a
// new frame.
type frameReset struct{ c *Canvas }

func (f frameReset) Reset() { clear(f.c.handles) }

// New creates a canvas drawing on dev, whose render target is width x
// height pixels.
func New(dev device.Device, width, height int, opts ...Option) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Canvas{
		dev:       dev,
		opts:      o,
		width:     width,
		height:    height,
		ortho:     geom.Ortho(float32(width), float32(height)),
		base:      geom.Scale(o.pixelRatio, o.pixelRatio),
		st:        defaultState(),
		stack:     make([]state, 0, 8),
		deletions: &device.DeletionQueue{},
		handles:   make(map[*device.VertexLayout]bufpool.Handle),
		effects:   make(map[effectKey]*Effect),
	}
	c.paint = c.st.color.Premultiplied()
	q := geometry.Quality{Max: o.maxSegments}
	c.fill.Quality, c.hairline.Quality, c.path.Quality = q, q, q

	c.pool = bufpool.New(dev, gputypes.BufferUsageVertex, 0)
	c.batcher = batch.New(dev, c.pool)
	c.binder = binder.New(dev)
	c.colors = geometry.NewStream(geometry.PositionColor, func(_, world geom.Vec2) geometry.ColorVertex {
		return geometry.ColorVertex{Pos: world, Color: c.paint}
	})
	c.textured = geometry.NewStream(geometry.PositionTexcoord, func(_, world geom.Vec2) geometry.TexVertex {
		return geometry.TexVertex{Pos: world, Color: c.paint}
	})
	c.batcher.Register(c.colors)
	c.batcher.Register(c.textured)
	c.batcher.Register(frameReset{c})

	if err := c.initEffects(); err != nil {
		c.release()
		return nil, err
	}
	if o.font != nil {
		if err := c.initText(); err != nil {
			c.release()
			return nil, err
		}
	}
	c.log().Debug("canvas: created",
		"width", width, "height", height,
		"language", dev.Language(),
		"pixelRatio", o.pixelRatio)
	return c, nil
}

// NewFromProvider creates a canvas on the GPU device of provider, drawing
// into an offscreen target of width x height pixels. The canvas owns the
// device and closes it with Close.
func NewFromProvider(provider gpucontext.DeviceProvider, width, height int, opts ...Option) (*Canvas, error) {
	dev, err := halgpu.NewFromProvider(provider, width, height)
	if err != nil {
		return nil, fmt.Errorf("canvas: %w", err)
	}
	c, err := New(dev, width, height, opts...)
	if err != nil {
		dev.Close()
		return nil, err
	}
	c.owned = dev
	c.log().Info("canvas: using GPU device", "width", width, "height", height)
	return c, nil
}

// Device returns the device the canvas draws on.
func (c *Canvas) Device() device.Device { return c.dev }

// Size returns the size of the render target in pixels.
func (c *Canvas) Size() (width, height int) { return c.width, c.height }

// PixelRatio returns the number of device pixels per canvas unit.
func (c *Canvas) PixelRatio() float32 { return c.opts.pixelRatio }

// fail records the first error of the frame for Flush to report.
func (c *Canvas) fail(err error) {
	if err == nil {
		return
	}
	if c.err == nil {
		c.err = err
	}
	c.log().Warn("canvas: draw failed", "err", err)
}

// handle returns the pool buffer receiving vertices of layout this frame.
func (c *Canvas) handle(l *device.VertexLayout) bufpool.Handle {
	h, ok := c.handles[l]
	if !ok {
		h = c.pool.Take()
		c.handles[l] = h
	}
	return h
}

// submit copies count vertices of layout l into the frame's pool buffer
// and queues them as one command.
func (c *Canvas) submit(l *device.VertexLayout, topology gputypes.PrimitiveTopology, data []byte, count int, fx batch.Effect) {
	if count <= 0 {
		return
	}
	h := c.handle(l)
	off, _ := c.pool.Write(h, data)
	chunk := batch.Chunk{
		Handle:   h,
		Layout:   l,
		First:    off / l.Stride,
		Count:    count,
		Topology: topology,
	}
	c.fail(c.batcher.Submit(chunk, fx, c.batchState()))
}

// Flush draws everything queued since the previous Flush, then destroys
// resources released since. It returns the first error of the frame.
func (c *Canvas) Flush() error {
	if c.closed {
		return ErrClosed
	}
	err := c.flush()
	if n := c.deletions.Drain(c.dev); n > 0 {
		c.log().Debug("canvas: released resources", "count", n)
	}
	if c.err != nil {
		err = errors.Join(c.err, err)
		c.err = nil
	}
	return err
}

// flush runs the batch flush protocol without draining the deletion
// queue.
func (c *Canvas) flush() error {
	c.uploadAtlas()
	stats, err := c.batcher.Flush()
	if stats.Commands > 0 {
		c.log().Debug("canvas: flush",
			"submitted", stats.Submitted,
			"commands", stats.Commands,
			"bytes", stats.Bytes)
	}
	if err != nil {
		return fmt.Errorf("canvas: flush: %w", err)
	}
	return nil
}

// Close flushes pending draws and releases every device resource the
// canvas created. Close is idempotent.
func (c *Canvas) Close() error {
	if c.closed {
		return nil
	}
	err := c.Flush()
	c.release()
	c.closed = true
	return err
}

func (c *Canvas) release() {
	for k, e := range c.effects {
		c.binder.Forget(e.program)
		c.dev.DestroyProgram(e.program)
		e.released = true
		delete(c.effects, k)
	}
	if c.atlasTex != nil {
		c.atlasTex.Release()
	}
	c.deletions.Drain(c.dev)
	c.binder.Close()
	c.pool.Close()
	if c.owned != nil {
		c.owned.Close()
	}
}

// words returns m as column-major uniform words.
func words(m geom.Mat4) []uint32 {
	w := make([]uint32, len(m))
	for i, f := range m {
		w[i] = math.Float32bits(f)
	}
	return w
}

// projection returns the matrix mapping vertices transformed by m to
// clip space.
func (c *Canvas) projection(m geom.Matrix) geom.Mat4 {
	if m.IsIdentity() {
		return c.ortho
	}
	return c.ortho.Mul(geom.Affine(m))
}

var _ shader.Sampler = (*Texture)(nil)
