// Package halgpu implements device.Device on a WebGPU HAL device.
//
// Draws render into an offscreen RGBA8 target with a stencil attachment.
// Programs are WGSL: each stage is re-emitted from its shader IR so the
// device knows the binding layout, validated and compiled by naga, and
// turned into HAL pipelines on first use. Pipelines are cached per
// program, vertex layout, topology and stencil mode.
//
// Recording calls open a command encoder lazily. Submit ends it, waits
// on a fence and releases the per-frame uniform buffers and bind groups.
package halgpu

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
)

var (
	// ErrNotHAL is returned by NewFromProvider when the provider does not
	// expose its HAL device and queue.
	ErrNotHAL = errors.New("halgpu: provider does not expose a HAL device and queue")

	// ErrLanguage is returned for programs that are not WGSL.
	ErrLanguage = errors.New("halgpu: only WGSL programs are supported")

	// ErrTimeout is returned when the GPU does not signal a fence in time.
	ErrTimeout = errors.New("halgpu: timed out waiting for the GPU")
)

const (
	targetFormat  = gputypes.TextureFormatRGBA8Unorm
	stencilFormat = gputypes.TextureFormatDepth24PlusStencil8
)

type buffer struct {
	buf  hal.Buffer
	size int
}

type texture struct {
	tex  hal.Texture
	view hal.TextureView
	w, h int
}

// Device is a device.Device backed by hal.Device and hal.Queue.
//
// Device is not safe for concurrent use.
type Device struct {
	dev   hal.Device
	queue hal.Queue
	opts  options

	width, height int

	nextID    uint64
	buffers   map[device.BufferID]*buffer
	textures  map[device.TextureID]*texture
	programs  map[device.ProgramID]*program
	pipelines map[pipelineKey]hal.RenderPipeline

	sampler hal.Sampler
	blank   *texture
	color   *texture
	stencil *texture
	// cleared is false until the first render pass has cleared the target.
	cleared bool

	st    bindState
	frame *frame
	err   error
}

var _ device.Device = (*Device)(nil)

// New creates a Device drawing into a width x height target.
func New(dev hal.Device, queue hal.Queue, width, height int, opts ...Option) (*Device, error) {
	if dev == nil || queue == nil {
		return nil, ErrNotHAL
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("halgpu: invalid target size %dx%d", width, height)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		dev:       dev,
		queue:     queue,
		opts:      o,
		width:     width,
		height:    height,
		buffers:   make(map[device.BufferID]*buffer),
		textures:  make(map[device.TextureID]*texture),
		programs:  make(map[device.ProgramID]*program),
		pipelines: make(map[pipelineKey]hal.RenderPipeline),
	}
	d.st.reset()
	if err := d.init(); err != nil {
		d.Close()
		return nil, err
	}
	slogger().Debug("halgpu: device ready", "width", width, "height", height, "spirv", o.spirv)
	return d, nil
}

// NewFromProvider creates a Device on the HAL device shared by provider,
// which must also implement HalDevice() any and HalQueue() any.
func NewFromProvider(provider gpucontext.DeviceProvider, width, height int, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNotHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNotHAL, hp.HalQueue())
	}
	return New(dev, queue, width, height, opts...)
}

func (d *Device) init() error {
	sampler, err := d.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        d.label("sampler"),
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return fmt.Errorf("halgpu: create sampler: %w", err)
	}
	d.sampler = sampler

	d.color, err = d.newTexture("target", d.width, d.height, targetFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc|gputypes.TextureUsageTextureBinding)
	if err != nil {
		return err
	}
	d.stencil, err = d.newTexture("stencil", d.width, d.height, stencilFormat,
		gputypes.TextureUsageRenderAttachment)
	if err != nil {
		return err
	}
	d.blank, err = d.newTexture("blank", 1, 1, gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)
	if err != nil {
		return err
	}
	d.writeTexture(d.blank, []byte{0xff, 0xff, 0xff, 0xff}, 1, 1)
	return nil
}

// Close releases every GPU object the device created. Work recorded
// since the last Submit is discarded.
func (d *Device) Close() {
	if f := d.frame; f != nil {
		d.frame = nil
		f.discard()
		d.releaseFrame(f)
	}
	for key, p := range d.pipelines {
		d.dev.DestroyRenderPipeline(p)
		delete(d.pipelines, key)
	}
	for id := range d.programs {
		d.DestroyProgram(id)
	}
	for id, b := range d.buffers {
		d.dev.DestroyBuffer(b.buf)
		delete(d.buffers, id)
	}
	for id, t := range d.textures {
		d.destroyTexture(t)
		delete(d.textures, id)
	}
	for _, t := range []*texture{d.blank, d.stencil, d.color} {
		if t != nil {
			d.destroyTexture(t)
		}
	}
	d.blank, d.stencil, d.color = nil, nil, nil
	if d.sampler != nil {
		d.dev.DestroySampler(d.sampler)
		d.sampler = nil
	}
}

// Size returns the target dimensions.
func (d *Device) Size() (width, height int) { return d.width, d.height }

func (d *Device) Language() device.Language { return device.WGSL }

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

func (d *Device) label(name string) string { return d.opts.label + "_" + name }

// fail keeps the first recording error for Submit.
func (d *Device) fail(err error) {
	slogger().Warn("halgpu: recording error", "err", err)
	if d.err == nil {
		d.err = err
	}
}

func align4(n int) int { return (n + 3) &^ 3 }

func (d *Device) CreateBuffer(usage gputypes.BufferUsage, size int) (device.BufferID, error) {
	if size <= 0 {
		return device.InvalidID, fmt.Errorf("halgpu: buffer size %d", size)
	}
	id := device.BufferID(d.id())
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: d.label(fmt.Sprintf("buffer_%d", id)),
		Size:  uint64(align4(size)),
		Usage: usage,
	})
	if err != nil {
		return device.InvalidID, fmt.Errorf("halgpu: create buffer: %w", err)
	}
	d.buffers[id] = &buffer{buf: buf, size: align4(size)}
	return id, nil
}

func (d *Device) WriteBuffer(id device.BufferID, offset int, data []byte) {
	b, ok := d.buffers[id]
	if !ok {
		d.fail(fmt.Errorf("%w: %d", device.ErrUnknownBuffer, id))
		return
	}
	if offset < 0 || offset%4 != 0 || offset+align4(len(data)) > b.size {
		d.fail(fmt.Errorf("%w: write of %d bytes at %d into buffer %d of %d bytes",
			device.ErrOutOfRange, len(data), offset, id, b.size))
		return
	}
	if len(data)%4 != 0 {
		padded := make([]byte, align4(len(data)))
		copy(padded, data)
		data = padded
	}
	d.queue.WriteBuffer(b.buf, uint64(offset), data)
}

func (d *Device) ReadBuffer(id device.BufferID, offset int, dst []byte) error {
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("%w: %d", device.ErrUnknownBuffer, id)
	}
	if offset < 0 || offset%4 != 0 || offset+len(dst) > b.size {
		return fmt.Errorf("%w: read of %d bytes at %d from buffer %d of %d bytes",
			device.ErrOutOfRange, len(dst), offset, id, b.size)
	}
	if len(dst) == 0 {
		return nil
	}
	if d.frame != nil {
		if err := d.Submit(); err != nil {
			return err
		}
	}
	size := uint64(align4(len(dst)))
	staging, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: d.label("readback"),
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("halgpu: create staging buffer: %w", err)
	}
	defer d.dev.DestroyBuffer(staging)

	err = d.run("readback", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
			{SrcOffset: uint64(offset), DstOffset: 0, Size: size},
		})
	})
	if err != nil {
		return err
	}
	tmp := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, tmp); err != nil {
		return fmt.Errorf("halgpu: read buffer: %w", err)
	}
	copy(dst, tmp)
	return nil
}

func (d *Device) DestroyBuffer(id device.BufferID) {
	b, ok := d.buffers[id]
	if !ok {
		return
	}
	delete(d.buffers, id)
	d.st.version++
	if d.frame != nil {
		d.frame.buffers = append(d.frame.buffers, b.buf)
		return
	}
	d.dev.DestroyBuffer(b.buf)
}

func (d *Device) newTexture(name string, w, h int, format gputypes.TextureFormat, usage gputypes.TextureUsage) (*texture, error) {
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         d.label(name),
		Size:          hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create texture %s: %w", name, err)
	}
	view, err := d.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         d.label(name + "_view"),
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.dev.DestroyTexture(tex)
		return nil, fmt.Errorf("halgpu: create view %s: %w", name, err)
	}
	return &texture{tex: tex, view: view, w: w, h: h}, nil
}

func (d *Device) destroyTexture(t *texture) {
	d.dev.DestroyTextureView(t.view)
	d.dev.DestroyTexture(t.tex)
}

func (d *Device) writeTexture(t *texture, pix []byte, w, h int) {
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		pix,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(w * 4), RowsPerImage: uint32(h)},
		&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
}

func (d *Device) CreateTexture(width, height int) (device.TextureID, error) {
	if width <= 0 || height <= 0 {
		return device.InvalidID, fmt.Errorf("halgpu: invalid texture size %dx%d", width, height)
	}
	id := device.TextureID(d.id())
	t, err := d.newTexture(fmt.Sprintf("texture_%d", id), width, height, gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)
	if err != nil {
		return device.InvalidID, err
	}
	d.textures[id] = t
	return id, nil
}

func (d *Device) WriteTexture(id device.TextureID, img *image.RGBA) {
	t, ok := d.textures[id]
	if !ok {
		d.fail(fmt.Errorf("%w: %d", device.ErrUnknownTexture, id))
		return
	}
	b := img.Bounds()
	if b.Dx() != t.w || b.Dy() != t.h {
		d.fail(fmt.Errorf("%w: %dx%d image into %dx%d texture %d",
			device.ErrOutOfRange, b.Dx(), b.Dy(), t.w, t.h, id))
		return
	}
	pix := img.Pix
	if img.Stride != t.w*4 || img.Rect.Min != (image.Point{}) {
		pix = make([]byte, 0, t.w*t.h*4)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := img.PixOffset(b.Min.X, y)
			pix = append(pix, img.Pix[off:off+t.w*4]...)
		}
	}
	d.writeTexture(t, pix, t.w, t.h)
}

func (d *Device) DestroyTexture(id device.TextureID) {
	t, ok := d.textures[id]
	if !ok {
		return
	}
	delete(d.textures, id)
	d.st.version++
	if d.frame != nil {
		d.frame.textures = append(d.frame.textures, t)
		return
	}
	d.destroyTexture(t)
}

func (d *Device) SetScissor(r *geom.Rect) {
	if r == nil {
		d.st.scissor = nil
		return
	}
	s := *r
	d.st.scissor = &s
}

func (d *Device) SetStencil(s device.Stencil) { d.st.stencil = s }

// scissorRect converts r to whole target pixels.
func (d *Device) scissorRect(r *geom.Rect) (x, y, w, h uint32) {
	if r == nil {
		return 0, 0, uint32(d.width), uint32(d.height)
	}
	c := r.Intersect(geom.Rect{W: float32(d.width), H: float32(d.height)})
	if c.Empty() {
		return 0, 0, 0, 0
	}
	x0, y0 := int(c.X), int(c.Y)
	x1, y1 := int(c.X+c.W+0.5), int(c.Y+c.H+0.5)
	x1, y1 = min(x1, d.width), min(y1, d.height)
	return uint32(x0), uint32(y0), uint32(x1 - x0), uint32(y1 - y0)
}

// ReadPixels copies the render target into a new image. Work recorded
// since the last Submit is submitted first.
func (d *Device) ReadPixels() (*image.RGBA, error) {
	if d.frame != nil {
		if err := d.Submit(); err != nil {
			return nil, err
		}
	}
	w, h := uint32(d.width), uint32(d.height)
	// Copy rows must be 256-byte aligned.
	stride := (w*4 + 255) &^ 255
	size := uint64(stride) * uint64(h)
	staging, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: d.label("pixels"),
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create staging buffer: %w", err)
	}
	defer d.dev.DestroyBuffer(staging)

	err = d.run("pixels", func(enc hal.CommandEncoder) {
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: d.color.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
		enc.CopyTextureToBuffer(d.color.tex, staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: stride, RowsPerImage: h},
			TextureBase:  hal.ImageCopyTexture{Texture: d.color.tex, MipLevel: 0},
			Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}})
	})
	if err != nil {
		return nil, err
	}
	raw := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, raw); err != nil {
		return nil, fmt.Errorf("halgpu: read pixels: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	for y := 0; y < d.height; y++ {
		copy(img.Pix[y*img.Stride:(y+1)*img.Stride], raw[y*int(stride):])
	}
	return img, nil
}
