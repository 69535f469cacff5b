package mediakit

import (
	"errors"
	"testing"
)

func mjpegVideoParams(format PixelFormat, w, h int) *CodecParameters {
	return NewVideoEncoderParameters(VideoParameters{Format: format, Width: w, Height: h}, EncoderParameters{})
}

func TestMJPEGEncodeDecodeRoundTrip(t *testing.T) {
	enc, err := NewVideoEncoderContext(CodecIDMJPEG, mjpegVideoParams(PixelFormatY8, 32, 32))
	if err != nil {
		t.Fatalf("NewVideoEncoderContext: %v", err)
	}
	defer enc.Close()

	src := uniformY8Frame(t, 32, 32, 128)
	src.PTS = 40
	src.TimeBase = Rational{1, 1000}

	if err := enc.SendFrame(src); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	pkt, err := enc.ReceivePacket()
	if err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}
	if pkt.Len() < 2 || pkt.Data[0] != 0xFF || pkt.Data[1] != 0xD8 {
		t.Fatalf("packet does not start with a JPEG SOI marker: % x", pkt.Data[:min(4, pkt.Len())])
	}
	if !pkt.Keyframe() {
		t.Error("mjpeg packet not marked as keyframe")
	}
	if pkt.PTS != 40 {
		t.Errorf("PTS = %d, want 40", pkt.PTS)
	}

	dec, err := NewVideoDecoderContext(CodecIDMJPEG,
		NewVideoDecoderParameters(VideoParameters{}, DecoderParameters{}))
	if err != nil {
		t.Fatalf("NewVideoDecoderContext: %v", err)
	}
	defer dec.Close()

	if err := dec.SendPacket(pkt); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	out, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if out.Width() != 32 || out.Height() != 32 {
		t.Errorf("decoded size = %dx%d, want 32x32", out.Width(), out.Height())
	}
	if out.Format() != PixelFormatY8 {
		t.Errorf("decoded format = %v, want Y8", out.Format())
	}
	if out.PTS != 40 {
		t.Errorf("decoded PTS = %d, want 40", out.PTS)
	}
	if out.Desc.ColorRange != ColorRangeFull {
		t.Errorf("decoded range = %v, want full", out.Desc.ColorRange)
	}
	if v := out.Data[0][0]; v < 124 || v > 132 {
		t.Errorf("decoded pixel = %d, want near 128", v)
	}
}

func TestMJPEGEncodeI420(t *testing.T) {
	enc, err := NewVideoEncoderContext(CodecIDMJPEG, mjpegVideoParams(PixelFormatI420, 16, 16))
	if err != nil {
		t.Fatalf("NewVideoEncoderContext: %v", err)
	}
	defer enc.Close()

	src, err := NewVideoFrame(PixelFormatI420, 16, 16)
	if err != nil {
		t.Fatalf("src: %v", err)
	}
	for i := range src.Data[0] {
		src.Data[0][i] = 90
	}
	for i := range src.Data[1] {
		src.Data[1][i] = 128
		src.Data[2][i] = 128
	}

	if err := enc.SendFrame(src); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	pkt, err := enc.ReceivePacket()
	if err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}

	dec, _ := NewVideoDecoderContext(CodecIDMJPEG,
		NewVideoDecoderParameters(VideoParameters{}, DecoderParameters{}))
	defer dec.Close()
	if err := dec.SendPacket(pkt); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	out, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if out.Format() != PixelFormatI420 {
		t.Errorf("decoded format = %v, want I420", out.Format())
	}
	if v := out.Data[0][0]; v < 86 || v > 94 {
		t.Errorf("decoded luma = %d, want near 90", v)
	}
}

func TestMJPEGQualityOption(t *testing.T) {
	// A checkerboard stresses the quantizer enough for quality to
	// show up in the output size.
	checker := func(t *testing.T) *VideoFrame {
		f := uniformY8Frame(t, 64, 64, 0)
		for y := 0; y < 64; y++ {
			row := f.Data[0][y*f.Stride[0]:]
			for x := 0; x < 64; x++ {
				if (x+y)%2 == 0 {
					row[x] = 255
				}
			}
		}
		return f
	}

	encodeAt := func(t *testing.T, quality int) int {
		enc, err := NewVideoEncoderContext(CodecIDMJPEG, mjpegVideoParams(PixelFormatY8, 64, 64))
		if err != nil {
			t.Fatalf("NewVideoEncoderContext: %v", err)
		}
		defer enc.Close()
		if err := enc.SetOption("quality", quality); err != nil {
			t.Fatalf("SetOption: %v", err)
		}
		if err := enc.SendFrame(checker(t)); err != nil {
			t.Fatalf("SendFrame: %v", err)
		}
		pkt, err := enc.ReceivePacket()
		if err != nil {
			t.Fatalf("ReceivePacket: %v", err)
		}
		return pkt.Len()
	}

	low := encodeAt(t, 10)
	high := encodeAt(t, 95)
	if low >= high {
		t.Errorf("quality 10 produced %d bytes, quality 95 produced %d", low, high)
	}
}

func TestMJPEGQualityValidation(t *testing.T) {
	enc, err := NewVideoEncoderContext(CodecIDMJPEG, mjpegVideoParams(PixelFormatY8, 8, 8))
	if err != nil {
		t.Fatalf("NewVideoEncoderContext: %v", err)
	}
	defer enc.Close()

	if err := enc.SetOption("quality", 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("quality 0: err = %v, want ErrInvalidParameter", err)
	}
	if err := enc.SetOption("quality", 101); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("quality 101: err = %v, want ErrInvalidParameter", err)
	}
	if err := enc.SetOption("quality", 50); err != nil {
		t.Errorf("quality 50: %v", err)
	}
}

func TestMJPEGUnsupportedSource(t *testing.T) {
	enc, err := NewVideoEncoderContext(CodecIDMJPEG, mjpegVideoParams(PixelFormatNV12, 16, 16))
	if err != nil {
		t.Fatalf("NewVideoEncoderContext: %v", err)
	}
	defer enc.Close()

	nv12, _ := NewVideoFrame(PixelFormatNV12, 16, 16)
	if err := enc.SendFrame(nv12); !errors.Is(err, ErrUnsupported) {
		t.Errorf("NV12 frame: err = %v, want ErrUnsupported", err)
	}
}

func TestMJPEGDecoderRejectsGarbage(t *testing.T) {
	dec, err := NewVideoDecoderContext(CodecIDMJPEG,
		NewVideoDecoderParameters(VideoParameters{}, DecoderParameters{}))
	if err != nil {
		t.Fatalf("NewVideoDecoderContext: %v", err)
	}
	defer dec.Close()

	if err := dec.SendPacket(PacketFromSlice([]byte{1, 2, 3, 4})); err == nil {
		t.Error("garbage packet decoded without error")
	}
}
