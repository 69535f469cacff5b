// Frame containers for raw video, audio and side data.
package mediakit

import "fmt"

// VideoFrame is a raw video frame. Data holds one slice per plane; the
// slices may share a backing buffer (owned frames) or point at external
// memory such as a mapped capture buffer.
type VideoFrame struct {
	Desc     VideoDescriptor
	Data     [][]byte // plane data
	Stride   []int    // bytes per row of each plane
	PTS      int64
	DTS      int64
	Duration int64
	TimeBase Rational
	Source   string
	Metadata map[string]string
}

// NewVideoFrame allocates an owned frame with rows padded to
// DefaultAlignment.
func NewVideoFrame(format PixelFormat, width, height int) (*VideoFrame, error) {
	desc, err := NewVideoDescriptor(format, width, height)
	if err != nil {
		return nil, err
	}
	return NewVideoFrameWithDescriptor(desc)
}

// NewVideoFrameWithDescriptor allocates an owned frame for desc.
func NewVideoFrameWithDescriptor(desc VideoDescriptor) (*VideoFrame, error) {
	if !desc.Format.Valid() || desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("descriptor %v: %w", desc, ErrInvalidParameter)
	}
	size, layouts := desc.Format.PlaneSizes(desc.Width, desc.Height, DefaultAlignment)
	return newVideoFrame(desc, make([]byte, size), layouts), nil
}

// VideoFrameFromBuffer wraps a tightly packed buffer. The buffer length
// must match the frame size exactly; its memory is referenced, not
// copied.
func VideoFrameFromBuffer(format PixelFormat, width, height int, buf []byte) (*VideoFrame, error) {
	desc, err := NewVideoDescriptor(format, width, height)
	if err != nil {
		return nil, err
	}
	size, layouts := format.PlaneSizes(width, height, 1)
	if len(buf) != size {
		return nil, fmt.Errorf("buffer %d bytes, frame needs %d: %w", len(buf), size, ErrInvalidParameter)
	}
	return newVideoFrame(desc, buf, layouts), nil
}

// VideoFrameWithStride wraps a buffer whose rows carry the given luma
// stride. Chroma strides are derived from the format's subsampling.
func VideoFrameWithStride(format PixelFormat, width, height, stride int, buf []byte) (*VideoFrame, error) {
	desc, err := NewVideoDescriptor(format, width, height)
	if err != nil {
		return nil, err
	}
	if stride <= 0 || stride < format.PlaneRowBytes(0, width) {
		return nil, fmt.Errorf("stride %d: %w", stride, ErrInvalidParameter)
	}

	info := &pixelFormatInfo[format]
	layouts := make([]PlaneLayout, 0, info.planes)
	layouts = append(layouts, PlaneLayout{stride, height})
	size := stride * height
	for i := 1; i < info.planes; i++ {
		pl := PlaneLayout{
			Stride: ceilRshift(stride, info.chromaShiftX) * info.planeBytes[i],
			Height: ceilRshift(height, info.chromaShiftY),
		}
		layouts = append(layouts, pl)
		size += pl.Size()
	}
	if len(buf) != size {
		return nil, fmt.Errorf("buffer %d bytes, frame needs %d: %w", len(buf), size, ErrInvalidParameter)
	}
	return newVideoFrame(desc, buf, layouts), nil
}

// VideoFrameFromPlanes wraps separate per-plane buffers. Each plane is
// validated against its stride and the format's plane height.
func VideoFrameFromPlanes(format PixelFormat, width, height int, planes [][]byte, strides []int) (*VideoFrame, error) {
	desc, err := NewVideoDescriptor(format, width, height)
	if err != nil {
		return nil, err
	}
	if len(planes) != format.PlaneCount() || len(strides) != len(planes) {
		return nil, fmt.Errorf("%d planes for %s: %w", len(planes), format, ErrInvalidParameter)
	}
	f := &VideoFrame{
		Desc:   desc,
		Data:   make([][]byte, len(planes)),
		Stride: make([]int, len(planes)),
		PTS:    NoTimestamp,
		DTS:    NoTimestamp,
	}
	for i, plane := range planes {
		h := format.PlaneHeight(i, height)
		if strides[i] <= 0 || len(plane) != strides[i]*h {
			return nil, fmt.Errorf("plane %d: %d bytes with stride %d: %w", i, len(plane), strides[i], ErrInvalidParameter)
		}
		f.Data[i] = plane
		f.Stride[i] = strides[i]
	}
	return f, nil
}

func newVideoFrame(desc VideoDescriptor, buf []byte, layouts []PlaneLayout) *VideoFrame {
	f := &VideoFrame{
		Desc:   desc,
		Data:   make([][]byte, len(layouts)),
		Stride: make([]int, len(layouts)),
		PTS:    NoTimestamp,
		DTS:    NoTimestamp,
	}
	offset := 0
	for i, pl := range layouts {
		f.Data[i] = buf[offset : offset+pl.Size() : offset+pl.Size()]
		f.Stride[i] = pl.Stride
		offset += pl.Size()
	}
	return f
}

// Width returns the frame width in pixels.
func (f *VideoFrame) Width() int { return f.Desc.Width }

// Height returns the frame height in pixels.
func (f *VideoFrame) Height() int { return f.Desc.Height }

// Format returns the pixel format.
func (f *VideoFrame) Format() PixelFormat { return f.Desc.Format }

// PlaneCount returns the number of planes.
func (f *VideoFrame) PlaneCount() int { return len(f.Data) }

// PlaneHeight returns the number of rows in the given plane.
func (f *VideoFrame) PlaneHeight(i int) int {
	return f.Desc.Format.PlaneHeight(i, f.Desc.Height)
}

// Clone creates a deep copy of the frame. Use this to keep frame data
// beyond its original lifetime, e.g. past a capture callback.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := *f
	clone.Data = make([][]byte, len(f.Data))
	clone.Stride = make([]int, len(f.Stride))
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	if f.Metadata != nil {
		clone.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// AudioFrame is a block of raw audio samples. Packed formats use one
// interleaved plane, planar formats one plane per channel.
type AudioFrame struct {
	Desc     AudioDescriptor
	Data     [][]byte
	PTS      int64
	Duration int64
	TimeBase Rational
	Source   string
	Metadata map[string]string
}

// NewAudioFrame allocates an owned frame using the default channel
// layout for the channel count.
func NewAudioFrame(format SampleFormat, channels, samples, sampleRate int) (*AudioFrame, error) {
	desc, err := NewAudioDescriptor(format, channels, samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return NewAudioFrameWithDescriptor(desc)
}

// NewAudioFrameWithDescriptor allocates an owned frame for desc.
func NewAudioFrameWithDescriptor(desc AudioDescriptor) (*AudioFrame, error) {
	if !desc.Format.Valid() || desc.Samples <= 0 || desc.SampleRate <= 0 || desc.Channels() <= 0 {
		return nil, fmt.Errorf("descriptor %v: %w", desc, ErrInvalidParameter)
	}
	total, planeSize, used := desc.Format.PlaneSizes(desc.Channels(), desc.Samples, DefaultAlignment)
	buf := make([]byte, total)
	f := &AudioFrame{
		Desc: desc,
		Data: make([][]byte, desc.PlaneCount()),
		PTS:  NoTimestamp,
	}
	for i := range f.Data {
		offset := i * planeSize
		f.Data[i] = buf[offset : offset+used : offset+planeSize]
	}
	return f, nil
}

// AudioFrameFromBuffer wraps a packed buffer holding all channels. The
// buffer length must match the frame size exactly.
func AudioFrameFromBuffer(format SampleFormat, channels, samples, sampleRate int, buf []byte) (*AudioFrame, error) {
	desc, err := NewAudioDescriptor(format, channels, samples, sampleRate)
	if err != nil {
		return nil, err
	}
	used := format.PlaneBytes(channels, samples)
	count := format.PlaneCount(channels)
	if len(buf) != used*count {
		return nil, fmt.Errorf("buffer %d bytes, frame needs %d: %w", len(buf), used*count, ErrInvalidParameter)
	}
	f := &AudioFrame{
		Desc: desc,
		Data: make([][]byte, count),
		PTS:  NoTimestamp,
	}
	for i := range f.Data {
		f.Data[i] = buf[i*used : (i+1)*used : (i+1)*used]
	}
	return f, nil
}

// AudioFrameFromPlanes wraps separate per-plane buffers.
func AudioFrameFromPlanes(desc AudioDescriptor, planes [][]byte) (*AudioFrame, error) {
	if !desc.Format.Valid() || desc.Samples <= 0 || desc.SampleRate <= 0 {
		return nil, fmt.Errorf("descriptor %v: %w", desc, ErrInvalidParameter)
	}
	if len(planes) != desc.PlaneCount() {
		return nil, fmt.Errorf("%d planes for %s: %w", len(planes), desc.Format, ErrInvalidParameter)
	}
	used := desc.Format.PlaneBytes(desc.Channels(), desc.Samples)
	f := &AudioFrame{
		Desc: desc,
		Data: make([][]byte, len(planes)),
		PTS:  NoTimestamp,
	}
	for i, plane := range planes {
		if len(plane) != used {
			return nil, fmt.Errorf("plane %d: %d bytes, need %d: %w", i, len(plane), used, ErrInvalidParameter)
		}
		f.Data[i] = plane
	}
	return f, nil
}

// Samples returns the sample count per channel.
func (f *AudioFrame) Samples() int { return f.Desc.Samples }

// Channels returns the channel count.
func (f *AudioFrame) Channels() int { return f.Desc.Channels() }

// Format returns the sample format.
func (f *AudioFrame) Format() SampleFormat { return f.Desc.Format }

// PlaneCount returns the number of planes.
func (f *AudioFrame) PlaneCount() int { return len(f.Data) }

// Clone creates a deep copy of the frame.
func (f *AudioFrame) Clone() *AudioFrame {
	clone := *f
	clone.Data = make([][]byte, len(f.Data))
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	if f.Metadata != nil {
		clone.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// DataFormat identifies the payload type of a DataFrame.
type DataFormat int

const (
	DataFormatBytes  DataFormat = iota // opaque binary payload
	DataFormatString                   // UTF-8 text payload
)

func (d DataFormat) String() string {
	if d == DataFormatString {
		return "String"
	}
	return "Bytes"
}

// DataFrame carries timed side data alongside audio and video, such as
// captions or onMetaData records.
type DataFrame struct {
	Format   DataFormat
	Bytes    []byte
	Text     string
	PTS      int64
	Duration int64
	TimeBase Rational
	Source   string
}

// NewDataFrame returns a binary data frame.
func NewDataFrame(payload []byte) *DataFrame {
	return &DataFrame{Format: DataFormatBytes, Bytes: payload, PTS: NoTimestamp}
}

// NewStringDataFrame returns a text data frame.
func NewStringDataFrame(text string) *DataFrame {
	return &DataFrame{Format: DataFormatString, Text: text, PTS: NoTimestamp}
}

// Clone creates a deep copy of the frame.
func (f *DataFrame) Clone() *DataFrame {
	clone := *f
	if f.Bytes != nil {
		clone.Bytes = make([]byte, len(f.Bytes))
		copy(clone.Bytes, f.Bytes)
	}
	return &clone
}
