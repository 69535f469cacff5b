// Motion JPEG codec over the standard library JPEG implementation.
// Every packet is one self-contained JPEG image, so the stream is all
// keyframes and decoding is stateless.
package mediakit

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
)

const mjpegDefaultQuality = 85

func init() {
	RegisterVideoDecoder(&mjpegBuilder{}, true)
	RegisterVideoEncoder(&mjpegBuilder{}, true)
}

type mjpegBuilder struct{}

func (mjpegBuilder) ID() CodecID  { return CodecIDMJPEG }
func (mjpegBuilder) Name() string { return "mjpeg" }

func (b *mjpegBuilder) NewDecoder(params *CodecParameters) (VideoDecoder, error) {
	return &mjpegDecoder{}, nil
}

func (b *mjpegBuilder) NewEncoder(params *CodecParameters) (VideoEncoder, error) {
	return &mjpegEncoder{quality: mjpegDefaultQuality}, nil
}

type mjpegDecoder struct {
	closed  bool
	eos     bool
	pending *VideoFrame
}

func (*mjpegDecoder) ID() CodecID  { return CodecIDMJPEG }
func (*mjpegDecoder) Name() string { return "mjpeg" }

func (d *mjpegDecoder) Init(config *VideoDecoderConfig) error { return nil }

func (d *mjpegDecoder) SendPacket(config *VideoDecoderConfig, pool *VideoFramePool, pkt *Packet) error {
	switch {
	case d.closed:
		return ErrClosed
	case d.eos:
		return io.EOF
	case pkt == nil || pkt.Empty():
		return fmt.Errorf("empty packet: %w", ErrInvalidParameter)
	case d.pending != nil:
		return ErrAgain
	}

	img, err := jpeg.Decode(bytes.NewReader(pkt.Data))
	if err != nil {
		return fmt.Errorf("jpeg decode: %w", err)
	}
	frame, err := mjpegFrameFromImage(img, pool)
	if err != nil {
		return err
	}

	frame.PTS = pkt.PTS
	frame.DTS = pkt.DTS
	frame.TimeBase = pkt.TimeBase
	frame.Duration = pkt.Duration
	d.pending = frame
	return nil
}

func (d *mjpegDecoder) ReceiveFrame(config *VideoDecoderConfig, pool *VideoFramePool) (*VideoFrame, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if f := d.pending; f != nil {
		d.pending = nil
		return f, nil
	}
	if d.eos {
		return nil, io.EOF
	}
	return nil, ErrAgain
}

func (d *mjpegDecoder) Flush(config *VideoDecoderConfig) error {
	if d.closed {
		return ErrClosed
	}
	d.eos = true
	return nil
}

func (d *mjpegDecoder) Close() error {
	d.closed = true
	d.pending = nil
	return nil
}

// mjpegFrameFromImage copies a decoded image into a frame. YCbCr and
// grayscale images map directly onto planar formats; everything else
// goes through an RGBA repaint.
func mjpegFrameFromImage(img image.Image, pool *VideoFramePool) (*VideoFrame, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	switch src := img.(type) {
	case *image.YCbCr:
		var format PixelFormat
		switch src.SubsampleRatio {
		case image.YCbCrSubsampleRatio420:
			format = PixelFormatI420
		case image.YCbCrSubsampleRatio422:
			format = PixelFormatI422
		case image.YCbCrSubsampleRatio444:
			format = PixelFormatI444
		default:
			// 4:4:0 and 4:1:x scans take the slow path.
			return mjpegFrameFromRGBA(img, pool)
		}
		frame, err := mjpegAllocFrame(format, width, height, pool)
		if err != nil {
			return nil, err
		}
		copyImagePlane(frame, 0, src.Y[src.YOffset(bounds.Min.X, bounds.Min.Y):], src.YStride)
		copyImagePlane(frame, 1, src.Cb[src.COffset(bounds.Min.X, bounds.Min.Y):], src.CStride)
		copyImagePlane(frame, 2, src.Cr[src.COffset(bounds.Min.X, bounds.Min.Y):], src.CStride)
		return frame, nil

	case *image.Gray:
		frame, err := mjpegAllocFrame(PixelFormatY8, width, height, pool)
		if err != nil {
			return nil, err
		}
		copyImagePlane(frame, 0, src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y):], src.Stride)
		return frame, nil

	default:
		return mjpegFrameFromRGBA(img, pool)
	}
}

func mjpegFrameFromRGBA(img image.Image, pool *VideoFramePool) (*VideoFrame, error) {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	frame, err := mjpegAllocFrame(PixelFormatRGBA32, bounds.Dx(), bounds.Dy(), pool)
	if err != nil {
		return nil, err
	}
	frame.Desc.ColorMatrix = ColorMatrixIdentity
	copyImagePlane(frame, 0, rgba.Pix, rgba.Stride)
	return frame, nil
}

func mjpegAllocFrame(format PixelFormat, width, height int, pool *VideoFramePool) (*VideoFrame, error) {
	desc, err := NewVideoDescriptor(format, width, height)
	if err != nil {
		return nil, err
	}
	// JFIF: full range BT.601.
	desc.ColorRange = ColorRangeFull
	desc.ColorMatrix = ColorMatrixSMPTE170M
	return allocVideoFrame(pool, desc)
}

func copyImagePlane(f *VideoFrame, plane int, src []byte, srcStride int) {
	rowBytes := f.Desc.Format.PlaneRowBytes(plane, f.Desc.Width)
	rows := f.PlaneHeight(plane)
	dst := f.Data[plane]
	for y := 0; y < rows; y++ {
		copy(dst[y*f.Stride[plane]:y*f.Stride[plane]+rowBytes], src[y*srcStride:])
	}
}

type mjpegEncoder struct {
	closed  bool
	eos     bool
	quality int
	pending *Packet
}

func (*mjpegEncoder) ID() CodecID  { return CodecIDMJPEG }
func (*mjpegEncoder) Name() string { return "mjpeg" }

func (e *mjpegEncoder) Init(config *VideoEncoderConfig) error { return nil }

// SetOption handles "quality" (1-100) beyond the common option keys.
func (e *mjpegEncoder) SetOption(key string, value any) error {
	if key != "quality" {
		return nil
	}
	v, ok := optionInt(value)
	if !ok || v < 1 || v > 100 {
		return fmt.Errorf("quality %v: %w", value, ErrInvalidParameter)
	}
	e.quality = int(v)
	return nil
}

func (e *mjpegEncoder) SendFrame(config *VideoEncoderConfig, pool *BufferPool, frame *VideoFrame) error {
	switch {
	case e.closed:
		return ErrClosed
	case e.eos:
		return io.EOF
	case frame == nil || len(frame.Data) == 0:
		return fmt.Errorf("empty frame: %w", ErrInvalidParameter)
	case e.pending != nil:
		return ErrAgain
	}

	img, err := mjpegImageFromFrame(frame)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("jpeg encode: %w", err)
	}

	pkt := encoderPacket(pool, buf.Len())
	copy(pkt.Data, buf.Bytes())
	pkt.PTS = frame.PTS
	pkt.DTS = frame.PTS
	pkt.TimeBase = frame.TimeBase
	pkt.Duration = frame.Duration
	pkt.Flags |= PacketFlagKey
	e.pending = pkt
	return nil
}

// mjpegImageFromFrame wraps frame planes as a standard library image
// without copying. Formats outside the JPEG color models need a pixel
// format conversion first.
func mjpegImageFromFrame(f *VideoFrame) (image.Image, error) {
	rect := image.Rect(0, 0, f.Width(), f.Height())

	switch f.Format() {
	case PixelFormatI420, PixelFormatI422, PixelFormatI444:
		if f.Stride[1] != f.Stride[2] {
			return nil, fmt.Errorf("uneven chroma strides %d/%d: %w", f.Stride[1], f.Stride[2], ErrUnsupported)
		}
		ratio := image.YCbCrSubsampleRatio420
		switch f.Format() {
		case PixelFormatI422:
			ratio = image.YCbCrSubsampleRatio422
		case PixelFormatI444:
			ratio = image.YCbCrSubsampleRatio444
		}
		return &image.YCbCr{
			Y:              f.Data[0],
			Cb:             f.Data[1],
			Cr:             f.Data[2],
			YStride:        f.Stride[0],
			CStride:        f.Stride[1],
			SubsampleRatio: ratio,
			Rect:           rect,
		}, nil

	case PixelFormatY8:
		return &image.Gray{Pix: f.Data[0], Stride: f.Stride[0], Rect: rect}, nil

	case PixelFormatRGBA32:
		return &image.RGBA{Pix: f.Data[0], Stride: f.Stride[0], Rect: rect}, nil

	default:
		return nil, fmt.Errorf("mjpeg source %s: %w", f.Format(), ErrUnsupported)
	}
}

func (e *mjpegEncoder) ReceivePacket(config *VideoEncoderConfig, pool *BufferPool) (*Packet, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if p := e.pending; p != nil {
		e.pending = nil
		return p, nil
	}
	if e.eos {
		return nil, io.EOF
	}
	return nil, ErrAgain
}

func (e *mjpegEncoder) Flush(config *VideoEncoderConfig) error {
	if e.closed {
		return ErrClosed
	}
	e.eos = true
	return nil
}

func (e *mjpegEncoder) Close() error {
	e.closed = true
	if e.pending != nil {
		e.pending.Release()
		e.pending = nil
	}
	return nil
}
