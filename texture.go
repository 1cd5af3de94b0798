package canvas

import (
	"fmt"
	"image"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/canvas/codec"
	"github.com/gogpu/canvas/device"
)

// Texture is an image on the device.
//
// A Texture that becomes unreachable is released automatically at a
// later Flush. Release frees it earlier and may be called from any
// goroutine.
type Texture struct {
	id       device.TextureID
	width    int
	height   int
	queue    *device.DeletionQueue
	cleanup  runtime.Cleanup
	released atomic.Bool
}

// NewTexture uploads img to a new texture.
func (c *Canvas) NewTexture(img *image.RGBA) (*Texture, error) {
	if c.closed {
		return nil, ErrClosed
	}
	b := img.Bounds()
	id, err := c.dev.CreateTexture(b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("canvas: create %dx%d texture: %w", b.Dx(), b.Dy(), err)
	}
	c.dev.WriteTexture(id, img)
	t := &Texture{id: id, width: b.Dx(), height: b.Dy(), queue: c.deletions}
	q := c.deletions
	t.cleanup = runtime.AddCleanup(t, func(id device.TextureID) { q.Texture(id) }, id)
	return t, nil
}

// LoadImage decodes an encoded image and uploads it to a new texture.
func (c *Canvas) LoadImage(data []byte) (*Texture, error) {
	img, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("canvas: load image: %w", err)
	}
	return c.NewTexture(img)
}

// SamplerID implements shader.Sampler, so textures can back shader
// uniforms of host values.
func (t *Texture) SamplerID() uint64 { return uint64(t.id) }

// Size returns the texture size in pixels.
func (t *Texture) Size() (width, height int) { return t.width, t.height }

// Released reports whether Release has been called.
func (t *Texture) Released() bool { return t.released.Load() }

// Release frees the texture at the next Flush. Draws queued before the
// Flush still see it. Release is idempotent.
func (t *Texture) Release() {
	if t.released.Swap(true) {
		return
	}
	t.cleanup.Stop()
	t.queue.Texture(t.id)
}
