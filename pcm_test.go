package mediakit

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func pcmTestParams(channels, rate int) AudioParameters {
	layout, _ := DefaultChannelLayout(channels)
	return AudioParameters{Format: SampleFormatS16, SampleRate: rate, Layout: layout}
}

func TestPCMEncodeDecodeRoundTrip(t *testing.T) {
	enc, err := NewAudioEncoderContext(CodecIDPCMS16,
		NewAudioEncoderParameters(pcmTestParams(1, 8000), EncoderParameters{}))
	if err != nil {
		t.Fatalf("NewAudioEncoderContext: %v", err)
	}
	defer enc.Close()

	raw := s16Bytes(100, -100, 200, -200)
	frame, err := AudioFrameFromBuffer(SampleFormatS16, 1, 4, 8000, raw)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	frame.PTS = 1600
	frame.TimeBase = Rational{1, 8000}

	if err := enc.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	pkt, err := enc.ReceivePacket()
	if err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}
	if !bytes.Equal(pkt.Data, raw) {
		t.Errorf("packet data = %v, want %v", pkt.Data, raw)
	}
	if pkt.PTS != 1600 || pkt.DTS != 1600 {
		t.Errorf("PTS/DTS = %d/%d, want 1600/1600", pkt.PTS, pkt.DTS)
	}
	if pkt.Duration != 4 {
		t.Errorf("Duration = %d, want 4", pkt.Duration)
	}
	if !pkt.Keyframe() {
		t.Error("pcm packet not marked as keyframe")
	}

	dec, err := NewAudioDecoderContext(CodecIDPCMS16,
		NewAudioDecoderParameters(pcmTestParams(1, 8000), DecoderParameters{}))
	if err != nil {
		t.Fatalf("NewAudioDecoderContext: %v", err)
	}
	defer dec.Close()

	if err := dec.SendPacket(pkt); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	out, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if !bytes.Equal(out.Data[0], raw) {
		t.Errorf("decoded samples = %v, want %v", out.Data[0], raw)
	}
	if out.PTS != 1600 || out.Samples() != 4 {
		t.Errorf("decoded PTS/samples = %d/%d, want 1600/4", out.PTS, out.Samples())
	}
}

func TestPCMEncoderStateMachine(t *testing.T) {
	enc, err := NewAudioEncoderContext(CodecIDPCMS16,
		NewAudioEncoderParameters(pcmTestParams(1, 8000), EncoderParameters{}))
	if err != nil {
		t.Fatalf("NewAudioEncoderContext: %v", err)
	}

	if _, err := enc.ReceivePacket(); !errors.Is(err, ErrAgain) {
		t.Errorf("ReceivePacket before input: err = %v, want ErrAgain", err)
	}

	frame, _ := AudioFrameFromBuffer(SampleFormatS16, 1, 2, 8000, s16Bytes(1, 2))
	if err := enc.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	if err := enc.SendFrame(frame); !errors.Is(err, ErrAgain) {
		t.Errorf("SendFrame with pending output: err = %v, want ErrAgain", err)
	}

	if err := enc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := enc.ReceivePacket(); err != nil {
		t.Fatalf("draining after Flush: %v", err)
	}
	if _, err := enc.ReceivePacket(); !errors.Is(err, io.EOF) {
		t.Errorf("drained after Flush: err = %v, want io.EOF", err)
	}
	if err := enc.SendFrame(frame); !errors.Is(err, io.EOF) {
		t.Errorf("SendFrame after Flush: err = %v, want io.EOF", err)
	}

	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := enc.SendFrame(frame); !errors.Is(err, ErrClosed) {
		t.Errorf("SendFrame after Close: err = %v, want ErrClosed", err)
	}
	if _, err := enc.ReceivePacket(); !errors.Is(err, ErrClosed) {
		t.Errorf("ReceivePacket after Close: err = %v, want ErrClosed", err)
	}
}

func TestPCMDecoderStateMachine(t *testing.T) {
	dec, err := NewAudioDecoderContext(CodecIDPCMS16,
		NewAudioDecoderParameters(pcmTestParams(2, 48000), DecoderParameters{}))
	if err != nil {
		t.Fatalf("NewAudioDecoderContext: %v", err)
	}

	if _, err := dec.ReceiveFrame(); !errors.Is(err, ErrAgain) {
		t.Errorf("ReceiveFrame before input: err = %v, want ErrAgain", err)
	}

	pkt := PacketFromSlice(s16Bytes(1, 2, 3, 4))
	if err := dec.SendPacket(pkt); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	if err := dec.SendPacket(pkt); !errors.Is(err, ErrAgain) {
		t.Errorf("SendPacket with pending frame: err = %v, want ErrAgain", err)
	}

	out, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if out.Samples() != 2 || out.Channels() != 2 {
		t.Errorf("frame = %d samples, %d channels, want 2/2", out.Samples(), out.Channels())
	}

	if err := dec.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := dec.ReceiveFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReceiveFrame after Flush: err = %v, want io.EOF", err)
	}
}

func TestPCMDecoderRejectsRaggedPacket(t *testing.T) {
	dec, err := NewAudioDecoderContext(CodecIDPCMS16,
		NewAudioDecoderParameters(pcmTestParams(2, 48000), DecoderParameters{}))
	if err != nil {
		t.Fatalf("NewAudioDecoderContext: %v", err)
	}
	defer dec.Close()

	// Stereo S16 packets must be a multiple of 4 bytes.
	if err := dec.SendPacket(PacketFromSlice(make([]byte, 5))); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("ragged packet: err = %v, want ErrInvalidParameter", err)
	}
	if err := dec.SendPacket(PacketFromSlice(nil)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("empty packet: err = %v, want ErrInvalidParameter", err)
	}
}

func TestPCMEncoderRejectsWrongFormat(t *testing.T) {
	enc, err := NewAudioEncoderContext(CodecIDPCMS16,
		NewAudioEncoderParameters(pcmTestParams(1, 48000), EncoderParameters{}))
	if err != nil {
		t.Fatalf("NewAudioEncoderContext: %v", err)
	}
	defer enc.Close()

	f32, _ := NewAudioFrame(SampleFormatF32, 1, 16, 48000)
	if err := enc.SendFrame(f32); !errors.Is(err, ErrUnsupported) {
		t.Errorf("F32 frame: err = %v, want ErrUnsupported", err)
	}
}

func TestPCMInitValidation(t *testing.T) {
	// No sample rate.
	_, err := NewAudioEncoderContext(CodecIDPCMS16,
		NewAudioEncoderParameters(AudioParameters{Format: SampleFormatS16}, EncoderParameters{}))
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("missing stream shape: err = %v, want ErrInvalidParameter", err)
	}

	// Wrong sample format.
	bad := pcmTestParams(1, 8000)
	bad.Format = SampleFormatF32
	_, err = NewAudioEncoderContext(CodecIDPCMS16,
		NewAudioEncoderParameters(bad, EncoderParameters{}))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("F32 config: err = %v, want ErrUnsupported", err)
	}

	// Missing parameter halves.
	if _, err := NewAudioEncoderContext(CodecIDPCMS16, &CodecParameters{}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("empty params: err = %v, want ErrInvalidParameter", err)
	}
}

func TestEncoderContextTimeBaseStamp(t *testing.T) {
	enc, err := NewAudioEncoderContext(CodecIDPCMS16,
		NewAudioEncoderParameters(pcmTestParams(1, 8000), EncoderParameters{}))
	if err != nil {
		t.Fatalf("NewAudioEncoderContext: %v", err)
	}
	defer enc.Close()
	enc.TimeBase = Rational{1, 8000}

	frame, _ := AudioFrameFromBuffer(SampleFormatS16, 1, 2, 8000, s16Bytes(1, 2))
	if err := enc.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	pkt, err := enc.ReceivePacket()
	if err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}
	if pkt.TimeBase != (Rational{1, 8000}) {
		t.Errorf("TimeBase = %v, want 1/8000", pkt.TimeBase)
	}
}

func TestEncoderContextPool(t *testing.T) {
	enc, err := NewAudioEncoderContext(CodecIDPCMS16,
		NewAudioEncoderParameters(pcmTestParams(1, 8000), EncoderParameters{UsePool: true}))
	if err != nil {
		t.Fatalf("NewAudioEncoderContext: %v", err)
	}
	defer enc.Close()

	if enc.BufferPool() == nil {
		t.Fatal("UsePool context has no buffer pool")
	}

	frame, _ := AudioFrameFromBuffer(SampleFormatS16, 1, 2, 8000, s16Bytes(5, 6))
	if err := enc.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	pkt, err := enc.ReceivePacket()
	if err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}
	if pkt.buf == nil {
		t.Error("pooled context produced an unpooled packet")
	}
	pkt.Release()
}

func TestEncoderContextLookup(t *testing.T) {
	enc, err := NewAudioEncoderContextByName("pcm_s16le",
		NewAudioEncoderParameters(pcmTestParams(1, 8000), EncoderParameters{}))
	if err != nil {
		t.Fatalf("NewAudioEncoderContextByName: %v", err)
	}
	defer enc.Close()

	if enc.CodecID() != CodecIDPCMS16 {
		t.Errorf("CodecID() = %v, want PCMS16", enc.CodecID())
	}
	if enc.CodecName() != "pcm_s16le" {
		t.Errorf("CodecName() = %q, want pcm_s16le", enc.CodecName())
	}

	if _, err := NewAudioEncoderContextByName("no_such_codec", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown name: err = %v, want ErrNotFound", err)
	}
}
