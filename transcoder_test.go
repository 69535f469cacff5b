package mediakit

import (
	"bytes"
	"errors"
	"testing"
)

func transcodeAudioPacket(t *testing.T, samples []int16, pts int64) *Packet {
	t.Helper()
	pkt := PacketFromSlice(s16Bytes(samples...))
	pkt.PTS = pts
	pkt.DTS = pts
	pkt.TimeBase = Rational{1, 8000}
	return pkt
}

// alawOf encodes samples through a standalone G711 encoder for
// comparison against transcoder output.
func alawOf(t *testing.T, samples []int16) []byte {
	t.Helper()
	f, err := AudioFrameFromBuffer(SampleFormatS16, 1, len(samples), 8000, s16Bytes(samples...))
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	return g711Encode(t, CodecIDG711A, f).Data
}

func TestNewTranscoderValidation(t *testing.T) {
	if _, err := NewTranscoder(TranscoderConfig{}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("empty config: err = %v, want ErrInvalidParameter", err)
	}

	_, err := NewTranscoder(TranscoderConfig{
		InputCodec:  CodecIDPCMS16,
		OutputCodec: CodecIDMJPEG,
	})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("mixed media types: err = %v, want ErrInvalidParameter", err)
	}

	_, err = NewTranscoder(TranscoderConfig{
		InputCodec:   CodecIDAAC,
		InputParams:  NewAudioDecoderParameters(pcmTestParams(1, 8000), DecoderParameters{}),
		OutputCodec:  CodecIDG711A,
		OutputParams: NewAudioEncoderParameters(pcmTestParams(1, 8000), EncoderParameters{}),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unregistered decoder: err = %v, want ErrNotFound", err)
	}
}

func TestTranscoderAudio(t *testing.T) {
	tr, err := NewTranscoder(TranscoderConfig{
		InputCodec:   CodecIDPCMS16,
		InputParams:  NewAudioDecoderParameters(pcmTestParams(1, 8000), DecoderParameters{}),
		OutputCodec:  CodecIDG711U,
		OutputParams: NewAudioEncoderParameters(pcmTestParams(1, 8000), EncoderParameters{}),
	})
	if err != nil {
		t.Fatalf("NewTranscoder: %v", err)
	}
	defer tr.Close()

	if tr.InputCodec() != CodecIDPCMS16 || tr.OutputCodec() != CodecIDG711U {
		t.Fatalf("codecs = %s to %s", tr.InputCodec(), tr.OutputCodec())
	}
	tr.RequestKeyframe() // no video stage, must not panic

	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = int16(i*41 - 3000)
	}
	out, err := tr.Process(transcodeAudioPacket(t, samples, 800))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	pkt := out[0]
	f, err := AudioFrameFromBuffer(SampleFormatS16, 1, len(samples), 8000, s16Bytes(samples...))
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if want := g711Encode(t, CodecIDG711U, f).Data; !bytes.Equal(pkt.Data, want) {
		t.Errorf("transcoded bytes differ from direct encode")
	}
	if pkt.PTS != 800 || pkt.Duration != 160 {
		t.Errorf("PTS/Duration = %d/%d, want 800/160", pkt.PTS, pkt.Duration)
	}
	if pkt.TimeBase != (Rational{1, 8000}) {
		t.Errorf("TimeBase = %v", pkt.TimeBase)
	}
	if !pkt.Keyframe() {
		t.Error("key flag missing")
	}

	tail, err := tr.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(tail) != 0 {
		t.Errorf("Flush returned %d packets", len(tail))
	}
}

func TestTranscoderAudioRepack(t *testing.T) {
	tr, err := NewTranscoder(TranscoderConfig{
		InputCodec:   CodecIDPCMS16,
		InputParams:  NewAudioDecoderParameters(pcmTestParams(1, 8000), DecoderParameters{}),
		OutputCodec:  CodecIDG711A,
		OutputParams: NewAudioEncoderParameters(pcmTestParams(1, 8000), EncoderParameters{}),
	})
	if err != nil {
		t.Fatalf("NewTranscoder: %v", err)
	}
	defer tr.Close()
	tr.audioEncoder.SetOption("frame_size", 80)

	samples := make([]int16, 290)
	for i := range samples {
		samples[i] = int16(i*3 - 400)
	}

	// 120 buffered samples fill one 80 sample frame and leave 40 over.
	out, err := tr.Process(transcodeAudioPacket(t, samples[:120], 0))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if !bytes.Equal(out[0].Data, alawOf(t, samples[:80])) {
		t.Errorf("frame 0 bytes differ")
	}
	if out[0].PTS != 0 || out[0].Duration != 80 {
		t.Errorf("frame 0 PTS/Duration = %d/%d", out[0].PTS, out[0].Duration)
	}

	out, err = tr.Process(transcodeAudioPacket(t, samples[120:240], 120))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if !bytes.Equal(out[0].Data, alawOf(t, samples[80:160])) || out[0].PTS != 80 {
		t.Errorf("frame 1 = %d samples at %d", len(out[0].Data), out[0].PTS)
	}
	if !bytes.Equal(out[1].Data, alawOf(t, samples[160:240])) || out[1].PTS != 160 {
		t.Errorf("frame 2 = %d samples at %d", len(out[1].Data), out[1].PTS)
	}

	// 50 samples stay below the frame size until the flush pads them.
	out, err = tr.Process(transcodeAudioPacket(t, samples[240:], 240))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("len(out) = %d, want 0", len(out))
	}

	out, err = tr.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("flush packets = %d, want 1", len(out))
	}
	padded := make([]int16, 80)
	copy(padded, samples[240:])
	if !bytes.Equal(out[0].Data, alawOf(t, padded)) {
		t.Errorf("padded tail bytes differ")
	}
	if out[0].PTS != 240 || out[0].Duration != 50 {
		t.Errorf("tail PTS/Duration = %d/%d, want 240/50", out[0].PTS, out[0].Duration)
	}
}

func TestTranscoderAudioRejectsRateChange(t *testing.T) {
	tr, err := NewTranscoder(TranscoderConfig{
		InputCodec:   CodecIDPCMS16,
		InputParams:  NewAudioDecoderParameters(pcmTestParams(1, 8000), DecoderParameters{}),
		OutputCodec:  CodecIDPCMS16,
		OutputParams: NewAudioEncoderParameters(pcmTestParams(1, 16000), EncoderParameters{}),
	})
	if err != nil {
		t.Fatalf("NewTranscoder: %v", err)
	}
	defer tr.Close()

	_, err = tr.Process(transcodeAudioPacket(t, make([]int16, 160), 0))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestTranscoderVideoScale(t *testing.T) {
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
	jpeg, err := enc.ReceivePacket()
	if err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}

	tr, err := NewTranscoder(TranscoderConfig{
		InputCodec:   CodecIDMJPEG,
		InputParams:  NewVideoDecoderParameters(VideoParameters{}, DecoderParameters{}),
		OutputCodec:  CodecIDMJPEG,
		OutputParams: mjpegVideoParams(PixelFormatY8, 16, 16),
	})
	if err != nil {
		t.Fatalf("NewTranscoder: %v", err)
	}
	defer tr.Close()
	tr.RequestKeyframe()

	out, err := tr.Process(jpeg)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	pkt := out[0]
	if pkt.Len() < 2 || pkt.Data[0] != 0xFF || pkt.Data[1] != 0xD8 {
		t.Fatalf("output is not a JPEG: % x", pkt.Data[:min(4, pkt.Len())])
	}
	if pkt.PTS != 40 || !pkt.Keyframe() {
		t.Errorf("PTS/key = %d/%v", pkt.PTS, pkt.Keyframe())
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
	frame, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if frame.Desc.Width != 16 || frame.Desc.Height != 16 {
		t.Fatalf("scaled size = %dx%d, want 16x16", frame.Desc.Width, frame.Desc.Height)
	}
	if frame.Desc.Format != PixelFormatY8 {
		t.Fatalf("format = %s, want y8", frame.Desc.Format)
	}
	luma := frame.Data[0][0]
	if luma < 116 || luma > 140 {
		t.Errorf("luma = %d, want near 128", luma)
	}

	tail, err := tr.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(tail) != 0 {
		t.Errorf("Flush returned %d packets", len(tail))
	}
}
