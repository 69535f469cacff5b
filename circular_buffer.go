// Byte and audio sample ring buffers.
package mediakit

import "fmt"

// CircularBuffer is a growable byte ring. Writes never drop data; the
// ring doubles its capacity when full.
type CircularBuffer struct {
	buf      []byte
	readPos  int
	writePos int
	length   int
}

// NewCircularBuffer creates a ring with the given initial capacity.
func NewCircularBuffer(capacity int) *CircularBuffer {
	return &CircularBuffer{buf: make([]byte, capacity)}
}

func (b *CircularBuffer) Len() int { return b.length }

func (b *CircularBuffer) Cap() int { return len(b.buf) }

func (b *CircularBuffer) Available() int { return len(b.buf) - b.length }

func (b *CircularBuffer) Empty() bool { return b.length == 0 }

// Grow raises the capacity to at least the given value, at minimum
// doubling. Buffered data and read order are preserved.
func (b *CircularBuffer) Grow(capacity int) {
	if len(b.buf) >= capacity {
		return
	}
	newCap := capacity
	if c := len(b.buf) * 2; c > newCap {
		newCap = c
	}

	nb := make([]byte, newCap)
	if b.readPos+b.length <= len(b.buf) {
		// Content is contiguous; keep it in place. A full ring with
		// the write cursor wrapped to zero moves it past the old end.
		copy(nb, b.buf)
		if b.writePos == 0 && b.length > 0 {
			b.writePos = len(b.buf)
		}
	} else {
		b.copyOut(nb[:b.length])
		b.readPos = 0
		b.writePos = b.length
	}
	b.buf = nb
}

// Write appends p, growing the ring when needed. It always consumes all
// of p.
func (b *CircularBuffer) Write(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	if b.Available() < len(p) {
		b.Grow(b.length + len(p))
	}

	end := b.writePos + len(p)
	if end <= len(b.buf) {
		copy(b.buf[b.writePos:end], p)
		b.writePos = end % len(b.buf)
	} else {
		chunk := len(b.buf) - b.writePos
		copy(b.buf[b.writePos:], p[:chunk])
		copy(b.buf, p[chunk:])
		b.writePos = len(p) - chunk
	}
	b.length += len(p)
	return len(p)
}

// Read copies up to len(p) bytes into p and consumes them. It returns
// the number of bytes read, zero when the ring is empty.
func (b *CircularBuffer) Read(p []byte) int {
	n := len(p)
	if n > b.length {
		n = b.length
	}
	if n == 0 {
		return 0
	}
	b.copyOut(p[:n])
	b.readPos = (b.readPos + n) % len(b.buf)
	b.length -= n
	return n
}

// Peek copies up to len(p) bytes into p without consuming them.
func (b *CircularBuffer) Peek(p []byte) int {
	n := len(p)
	if n > b.length {
		n = b.length
	}
	if n == 0 {
		return 0
	}
	b.copyOut(p[:n])
	return n
}

// Consume drops up to n buffered bytes and returns how many were
// dropped.
func (b *CircularBuffer) Consume(n int) int {
	if n > b.length {
		n = b.length
	}
	if n == 0 {
		return 0
	}
	b.readPos = (b.readPos + n) % len(b.buf)
	b.length -= n
	return n
}

// Clear resets the ring without releasing its storage.
func (b *CircularBuffer) Clear() {
	b.readPos = 0
	b.writePos = 0
	b.length = 0
}

// copyOut copies len(p) buffered bytes starting at the read position
// without moving it. The caller guarantees len(p) <= b.length.
func (b *CircularBuffer) copyOut(p []byte) {
	end := b.readPos + len(p)
	if end <= len(b.buf) {
		copy(p, b.buf[b.readPos:end])
		return
	}
	chunk := len(b.buf) - b.readPos
	copy(p[:chunk], b.buf[b.readPos:])
	copy(p[chunk:], b.buf[:len(p)-chunk])
}

// AudioRing buffers raw audio across frame boundaries, one byte ring
// per plane. Planar formats carry one ring per channel, interleaved
// formats a single ring.
type AudioRing struct {
	rings    []*CircularBuffer
	format   SampleFormat
	channels int
	length   int
	capacity int
}

// NewAudioRing creates a ring holding the given number of samples per
// channel.
func NewAudioRing(format SampleFormat, channels, samples int) *AudioRing {
	n := 1
	if format.IsPlanar() {
		n = channels
	}
	size := format.PlaneBytes(channels, samples)
	rings := make([]*CircularBuffer, n)
	for i := range rings {
		rings[i] = NewCircularBuffer(size)
	}
	return &AudioRing{
		rings:    rings,
		format:   format,
		channels: channels,
		capacity: samples,
	}
}

// Len returns the number of buffered samples per channel.
func (r *AudioRing) Len() int { return r.length }

func (r *AudioRing) Cap() int { return r.capacity }

func (r *AudioRing) Available() int { return r.capacity - r.length }

func (r *AudioRing) Empty() bool { return r.length == 0 }

// Grow raises the capacity to at least the given sample count.
func (r *AudioRing) Grow(samples int) {
	if r.capacity >= samples {
		return
	}
	size := r.format.PlaneBytes(r.channels, samples)
	for _, ring := range r.rings {
		ring.Grow(size)
	}
	r.capacity = samples
}

func (r *AudioRing) validate(f *AudioFrame) error {
	if f == nil {
		return fmt.Errorf("nil frame: %w", ErrInvalidParameter)
	}
	if f.Desc.Format != r.format {
		return fmt.Errorf("sample format %s vs %s: %w", f.Desc.Format, r.format, ErrInvalidParameter)
	}
	if f.Channels() != r.channels {
		return fmt.Errorf("channels %d vs %d: %w", f.Channels(), r.channels, ErrInvalidParameter)
	}
	if len(f.Data) != len(r.rings) {
		return fmt.Errorf("plane count %d vs %d: %w", len(f.Data), len(r.rings), ErrInvalidParameter)
	}
	return nil
}

// WriteFrame appends all samples of f, growing the ring when needed.
func (r *AudioRing) WriteFrame(f *AudioFrame) (int, error) {
	if err := r.validate(f); err != nil {
		return 0, err
	}
	samples := f.Desc.Samples
	if r.Available() < samples {
		r.Grow(r.length + samples)
	}
	for i, plane := range f.Data {
		r.rings[i].Write(plane)
	}
	r.length += samples
	return samples, nil
}

// ReadFrame fills f with buffered samples and returns how many were
// read, at most min(f.Desc.Samples, Len()). Plane bytes past the read
// samples are left untouched.
func (r *AudioRing) ReadFrame(f *AudioFrame) (int, error) {
	if err := r.validate(f); err != nil {
		return 0, err
	}
	samples := f.Desc.Samples
	if samples > r.length {
		samples = r.length
	}
	if samples == 0 {
		return 0, nil
	}
	unit := r.format.BytesPerSample()
	if !r.format.IsPlanar() {
		unit *= r.channels
	}
	for i := range f.Data {
		r.rings[i].Read(f.Data[i][:samples*unit])
	}
	r.length -= samples
	return samples, nil
}

// Clear drops all buffered samples.
func (r *AudioRing) Clear() {
	for _, ring := range r.rings {
		ring.Clear()
	}
	r.length = 0
}
