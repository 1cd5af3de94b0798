package device

import "sync"

// DeletionQueue collects resources released from goroutines that do not
// own the device. The owner destroys them with Drain. It is the only
// synchronized structure of the canvas.
type DeletionQueue struct {
	mu       sync.Mutex
	buffers  []BufferID
	textures []TextureID
	programs []ProgramID
}

// Buffer queues buf for destruction.
func (q *DeletionQueue) Buffer(buf BufferID) {
	q.mu.Lock()
	q.buffers = append(q.buffers, buf)
	q.mu.Unlock()
}

// Texture queues tex for destruction.
func (q *DeletionQueue) Texture(tex TextureID) {
	q.mu.Lock()
	q.textures = append(q.textures, tex)
	q.mu.Unlock()
}

// Program queues p for destruction.
func (q *DeletionQueue) Program(p ProgramID) {
	q.mu.Lock()
	q.programs = append(q.programs, p)
	q.mu.Unlock()
}

// Len returns the number of queued resources.
func (q *DeletionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffers) + len(q.textures) + len(q.programs)
}

// Drain destroys every queued resource on d and returns how many were
// destroyed. Resources queued while Drain runs are left for the next call.
func (q *DeletionQueue) Drain(d Device) int {
	q.mu.Lock()
	buffers, textures, programs := q.buffers, q.textures, q.programs
	q.buffers, q.textures, q.programs = nil, nil, nil
	q.mu.Unlock()

	for _, b := range buffers {
		d.DestroyBuffer(b)
	}
	for _, t := range textures {
		d.DestroyTexture(t)
	}
	for _, p := range programs {
		d.DestroyProgram(p)
	}
	return len(buffers) + len(textures) + len(programs)
}
