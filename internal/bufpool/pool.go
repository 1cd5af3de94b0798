// Package bufpool is the per-frame arena of device vertex buffers.
//
// Buffers are taken from the pool, appended to during a frame, uploaded
// once before the frame's draws, and all returned by Reset after the
// frame is submitted. Bytes written at a returned offset stay there until
// Reset, even when the buffer grows.
package bufpool

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/canvas/device"
)

// DefaultSize is the initial capacity of a pooled buffer in bytes.
const DefaultSize = 64 << 10

// Handle identifies a buffer of one pool.
type Handle int

// Buffer is a pooled buffer. The pool owns it. A Buffer is in either the
// used set or the free set, never both.
type Buffer struct {
	// ID is the device buffer, or device.InvalidID before the first upload.
	ID device.BufferID
	// Capacity is the size of the device buffer in bytes.
	Capacity int
	// Offset is the write cursor. It only grows until Reset.
	Offset int

	data     []byte
	uploaded int
	inUse    bool
}

// Pending returns the number of bytes not yet uploaded.
func (b *Buffer) Pending() int { return b.Offset - b.uploaded }

// Pool hands out append-only device buffers for one frame at a time.
//
// Pool is not safe for concurrent use.
type Pool struct {
	dev     device.Device
	usage   gputypes.BufferUsage
	minSize int

	buffers []*Buffer
	used    []Handle
	free    []Handle
	// sealed is set by Upload; only Reset clears it.
	sealed bool
}

// New returns an empty pool creating buffers with the given usage on dev.
// Buffers start at minSize bytes, or DefaultSize if minSize <= 0.
func New(dev device.Device, usage gputypes.BufferUsage, minSize int) *Pool {
	if minSize <= 0 {
		minSize = DefaultSize
	}
	return &Pool{dev: dev, usage: usage | gputypes.BufferUsageCopyDst, minSize: minSize}
}

func (p *Pool) checkOpen(op string) {
	if p.sealed {
		panic(fmt.Sprintf("bufpool: %s after Upload without Reset", op))
	}
}

// Take returns a buffer with its write cursor at zero, recycling a free
// one when possible.
func (p *Pool) Take() Handle {
	p.checkOpen("Take")
	var h Handle
	if n := len(p.free); n > 0 {
		h = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		h = Handle(len(p.buffers))
		p.buffers = append(p.buffers, &Buffer{data: make([]byte, 0, p.minSize)})
	}
	b := p.buffers[h]
	b.inUse = true
	p.used = append(p.used, h)
	return h
}

// Buffer returns the buffer behind h.
func (p *Pool) Buffer(h Handle) *Buffer {
	b := p.buffers[h]
	if !b.inUse {
		panic(fmt.Sprintf("bufpool: handle %d is not in use", h))
	}
	return b
}

// Write appends data to the buffer and returns where it landed. The
// host copy grows geometrically. The device buffer is resized at Upload.
func (p *Pool) Write(h Handle, data []byte) (offset, n int) {
	p.checkOpen("Write")
	b := p.Buffer(h)
	offset = b.Offset
	if need := offset + len(data); need > cap(b.data) {
		size := max(cap(b.data), p.minSize)
		for size < need {
			size *= 2
		}
		grown := make([]byte, offset, size)
		copy(grown, b.data)
		b.data = grown
	}
	b.data = append(b.data, data...)
	b.Offset = len(b.data)
	return offset, len(data)
}

// Upload pushes all pending bytes to the device, replacing device
// buffers that are too small. After Upload the pool accepts no writes
// until Reset.
func (p *Pool) Upload() (bytes int, err error) {
	p.sealed = true
	for _, h := range p.used {
		b := p.buffers[h]
		if b.Offset == 0 {
			continue
		}
		if b.ID == device.InvalidID || b.Capacity < cap(b.data) {
			if b.ID != device.InvalidID {
				p.dev.DestroyBuffer(b.ID)
				b.ID = device.InvalidID
			}
			id, err := p.dev.CreateBuffer(p.usage, cap(b.data))
			if err != nil {
				return bytes, fmt.Errorf("bufpool: create %d-byte buffer: %w", cap(b.data), err)
			}
			b.ID, b.Capacity, b.uploaded = id, cap(b.data), 0
		}
		if b.uploaded < b.Offset {
			p.dev.WriteBuffer(b.ID, b.uploaded, b.data[b.uploaded:b.Offset])
			bytes += b.Offset - b.uploaded
			b.uploaded = b.Offset
		}
	}
	return bytes, nil
}

// Reset returns every used buffer to the free set with its cursor at
// zero. Call it once per frame after submission.
func (p *Pool) Reset() {
	for _, h := range p.used {
		b := p.buffers[h]
		b.data = b.data[:0]
		b.Offset, b.uploaded, b.inUse = 0, 0, false
		p.free = append(p.free, h)
	}
	p.used = p.used[:0]
	p.sealed = false
}

// Used returns the number of buffers taken since the last Reset.
func (p *Pool) Used() int { return len(p.used) }

// Close destroys every device buffer. The pool must not be used after.
func (p *Pool) Close() {
	for _, b := range p.buffers {
		if b.ID != device.InvalidID {
			p.dev.DestroyBuffer(b.ID)
			b.ID = device.InvalidID
		}
	}
	p.buffers, p.used, p.free = nil, nil, nil
}
