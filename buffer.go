// Recyclable byte buffers.
package mediakit

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferCapacity is the buffer size a zero-configured pool hands
// out.
const DefaultBufferCapacity = 1024

// Buffer is a fixed-capacity byte buffer with an adjustable visible
// length, recycled through its owning pool.
type Buffer struct {
	data []byte
	n    int
	pool *BufferPool
}

func (b *Buffer) Cap() int { return len(b.data) }

func (b *Buffer) Len() int { return b.n }

func (b *Buffer) Empty() bool { return b.n == 0 }

// Data returns the visible portion of the buffer.
func (b *Buffer) Data() []byte { return b.data[:b.n] }

// Resize sets the visible length, clamped to the capacity.
func (b *Buffer) Resize(n int) {
	if n > len(b.data) {
		n = len(b.data)
	}
	if n < 0 {
		n = 0
	}
	b.n = n
}

// Release returns the buffer to its pool. The buffer must not be used
// afterwards.
func (b *Buffer) Release() {
	if b.pool != nil {
		b.pool.recycle(b)
	}
}

// BufferPool hands out zero-filled buffers of a uniform capacity.
// Buffers whose capacity no longer matches the pool are dropped on
// recycle, so raising the capacity retires old buffers naturally.
type BufferPool struct {
	capacity atomic.Int64
	pool     sync.Pool
}

// NewBufferPool creates a pool of buffers with the given capacity, or
// DefaultBufferCapacity when zero.
func NewBufferPool(capacity int) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	p := &BufferPool{}
	p.capacity.Store(int64(capacity))
	return p
}

// Capacity returns the capacity of buffers the pool currently hands
// out.
func (p *BufferPool) Capacity() int {
	return int(p.capacity.Load())
}

// SetCapacity changes the buffer capacity. Outstanding buffers of the
// old capacity are dropped when released.
func (p *BufferPool) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	p.capacity.Store(int64(capacity))
}

// Get returns a zero-filled buffer at full capacity.
func (p *BufferPool) Get() *Buffer {
	capacity := p.Capacity()
	return p.get(capacity, capacity)
}

// GetWithLength returns a zero-filled buffer with the visible length
// set to n, raising the pool capacity first when n exceeds it.
func (p *BufferPool) GetWithLength(n int) *Buffer {
	capacity := p.Capacity()
	if n > capacity {
		p.SetCapacity(n)
		capacity = n
	}
	return p.get(capacity, n)
}

func (p *BufferPool) get(capacity, n int) *Buffer {
	if v := p.pool.Get(); v != nil {
		b := v.(*Buffer)
		if b.Cap() == capacity {
			b.n = n
			clear(b.data[:n])
			return b
		}
	}
	return &Buffer{data: make([]byte, capacity), n: n, pool: p}
}

func (p *BufferPool) recycle(b *Buffer) {
	if b.Cap() == p.Capacity() {
		p.pool.Put(b)
	}
}
