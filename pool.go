// Descriptor-keyed frame recycling.
package mediakit

import "sync"

// VideoFramePool recycles video frames of a single descriptor. Frames
// put back with a stale descriptor are dropped.
type VideoFramePool struct {
	mu     sync.Mutex
	desc   VideoDescriptor
	frames []*VideoFrame
}

// NewVideoFramePool creates a pool producing frames with the given
// descriptor.
func NewVideoFramePool(desc VideoDescriptor) *VideoFramePool {
	return &VideoFramePool{desc: desc}
}

// Configure changes the pool descriptor, dropping all pooled frames
// when it differs from the current one.
func (p *VideoFramePool) Configure(desc VideoDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.desc != desc {
		p.desc = desc
		p.frames = nil
	}
}

// Get returns a pooled frame matching the descriptor, allocating a new
// one when the pool is empty. Recycled frames keep their plane data but
// come out with cleared timing and metadata.
func (p *VideoFramePool) Get() (*VideoFrame, error) {
	p.mu.Lock()
	desc := p.desc
	if n := len(p.frames); n > 0 {
		f := p.frames[n-1]
		p.frames = p.frames[:n-1]
		p.mu.Unlock()
		f.PTS = NoTimestamp
		f.DTS = NoTimestamp
		f.Duration = 0
		f.TimeBase = Rational{}
		f.Source = ""
		f.Metadata = nil
		return f, nil
	}
	p.mu.Unlock()
	return NewVideoFrameWithDescriptor(desc)
}

// Put recycles a frame for reuse. Frames whose descriptor no longer
// matches the pool are discarded.
func (p *VideoFramePool) Put(f *VideoFrame) {
	if f == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if f.Desc == p.desc {
		p.frames = append(p.frames, f)
	}
}

// Available returns the number of pooled frames.
func (p *VideoFramePool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

// AudioFramePool recycles audio frames of a single descriptor.
type AudioFramePool struct {
	mu     sync.Mutex
	desc   AudioDescriptor
	frames []*AudioFrame
}

// NewAudioFramePool creates a pool producing frames with the given
// descriptor.
func NewAudioFramePool(desc AudioDescriptor) *AudioFramePool {
	return &AudioFramePool{desc: desc}
}

// Configure changes the pool descriptor, dropping all pooled frames
// when it differs from the current one.
func (p *AudioFramePool) Configure(desc AudioDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.desc != desc {
		p.desc = desc
		p.frames = nil
	}
}

// Get returns a pooled frame matching the descriptor, allocating a new
// one when the pool is empty. Recycled frames keep their plane data but
// come out with cleared timing and metadata.
func (p *AudioFramePool) Get() (*AudioFrame, error) {
	p.mu.Lock()
	desc := p.desc
	if n := len(p.frames); n > 0 {
		f := p.frames[n-1]
		p.frames = p.frames[:n-1]
		p.mu.Unlock()
		f.PTS = NoTimestamp
		f.Duration = 0
		f.TimeBase = Rational{}
		f.Source = ""
		f.Metadata = nil
		return f, nil
	}
	p.mu.Unlock()
	return NewAudioFrameWithDescriptor(desc)
}

// Put recycles a frame for reuse. Frames whose descriptor no longer
// matches the pool are discarded.
func (p *AudioFramePool) Put(f *AudioFrame) {
	if f == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if f.Desc == p.desc {
		p.frames = append(p.frames, f)
	}
}

// Available returns the number of pooled frames.
func (p *AudioFramePool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

// allocVideoFrame serves a frame from pool when one is present,
// retargeting it to desc, and allocates otherwise.
func allocVideoFrame(pool *VideoFramePool, desc VideoDescriptor) (*VideoFrame, error) {
	if pool != nil {
		pool.Configure(desc)
		return pool.Get()
	}
	return NewVideoFrameWithDescriptor(desc)
}

// allocAudioFrame serves a frame from pool when one is present,
// retargeting it to desc, and allocates otherwise.
func allocAudioFrame(pool *AudioFramePool, desc AudioDescriptor) (*AudioFrame, error) {
	if pool != nil {
		pool.Configure(desc)
		return pool.Get()
	}
	return NewAudioFrameWithDescriptor(desc)
}
