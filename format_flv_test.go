package mediakit

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

var (
	testSPS = []byte{0x67, 0x42, 0xC0, 0x1E, 0xA6}
	testPPS = []byte{0x68, 0xCE, 0x3C, 0x80}
	testIDR = []byte{0x65, 0x88, 0x84, 0x00}
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, nalu := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, nalu...)
	}
	return out
}

func flvVideoTrack(extraData []byte) *Track {
	return NewTrack(CodecIDH264, &CodecParameters{
		Video:   &VideoParameters{Width: 320, Height: 240, FrameRate: NewRational(30, 1)},
		Decoder: &DecoderParameters{ExtraData: extraData},
	})
}

func flvAudioTrack(t *testing.T) *Track {
	layout, err := DefaultChannelLayout(2)
	if err != nil {
		t.Fatalf("DefaultChannelLayout: %v", err)
	}
	return NewTrack(CodecIDAAC, &CodecParameters{
		Audio:   &AudioParameters{SampleRate: 44100, Layout: layout},
		Decoder: &DecoderParameters{},
	})
}

func flvPacket(track int, dtsMs, ptsMs int64, payload []byte, key bool) *Packet {
	pkt := PacketFromSlice(payload)
	pkt.TrackIndex = track
	pkt.DTS = dtsMs
	pkt.PTS = ptsMs
	pkt.TimeBase = flvTimeBase
	if key {
		pkt.Flags |= PacketFlagKey
	}
	return pkt
}

func TestFLVMuxDemuxRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	mc, err := OpenMuxer("flv", &buf)
	if err != nil {
		t.Fatalf("OpenMuxer: %v", err)
	}
	mc.AddTrack(flvVideoTrack(annexB(testSPS, testPPS)))
	mc.AddTrack(flvAudioTrack(t))
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	keyframe := annexB(testIDR)
	interframe := annexB([]byte{0x41, 0x9A, 0x02})
	aac0 := []byte{0x21, 0x1B, 0x95}
	aac1 := []byte{0x21, 0x2C, 0x44}

	if err := mc.WritePacket(flvPacket(0, 0, 0, keyframe, true)); err != nil {
		t.Fatalf("video keyframe: %v", err)
	}
	if err := mc.WritePacket(flvPacket(1, 0, 0, aac0, true)); err != nil {
		t.Fatalf("audio 0: %v", err)
	}
	if err := mc.WritePacket(flvPacket(0, 40, 40, interframe, false)); err != nil {
		t.Fatalf("video interframe: %v", err)
	}
	if err := mc.WritePacket(flvPacket(1, 23, 23, aac1, true)); err != nil {
		t.Fatalf("audio 1: %v", err)
	}
	if err := mc.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}

	dc, err := OpenDemuxer("flv", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenDemuxer: %v", err)
	}
	if err := dc.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if dc.Tracks.Len() != 2 {
		t.Fatalf("tracks = %d, want 2", dc.Tracks.Len())
	}

	var audioTrack, videoTrack *Track
	for _, track := range dc.Tracks.Tracks() {
		switch track.CodecID {
		case CodecIDAAC:
			audioTrack = track
		case CodecIDH264:
			videoTrack = track
		}
	}
	if audioTrack == nil || videoTrack == nil {
		t.Fatal("demuxer did not find both tracks")
	}
	if videoTrack.Params.Video.Width != 320 || videoTrack.Params.Video.Height != 240 {
		t.Errorf("video geometry = %dx%d", videoTrack.Params.Video.Width, videoTrack.Params.Video.Height)
	}
	if audioTrack.Params.Audio.SampleRate != 44100 || audioTrack.Params.Audio.Channels() != 2 {
		t.Errorf("audio params = %dHz %dch", audioTrack.Params.Audio.SampleRate, audioTrack.Params.Audio.Channels())
	}
	if w, ok := dc.Metadata["width"].(float64); !ok || w != 320 {
		t.Errorf("metadata width = %v", dc.Metadata["width"])
	}

	type wantPacket struct {
		track   *Track
		payload []byte
		dts     int64
		key     bool
	}
	wants := []wantPacket{
		{videoTrack, keyframe, 0, true},
		{audioTrack, aac0, 0, true},
		{audioTrack, aac1, 23, true},
		{videoTrack, interframe, 40, false},
	}
	for i, want := range wants {
		pkt, err := dc.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
		if pkt.TrackIndex != want.track.Index {
			t.Errorf("packet %d track = %d, want %d", i, pkt.TrackIndex, want.track.Index)
		}
		if !bytes.Equal(pkt.Data, want.payload) {
			t.Errorf("packet %d payload = % x, want % x", i, pkt.Data, want.payload)
		}
		if pkt.DTS != want.dts {
			t.Errorf("packet %d dts = %d, want %d", i, pkt.DTS, want.dts)
		}
		if pkt.Keyframe() != want.key {
			t.Errorf("packet %d keyframe = %v, want %v", i, pkt.Keyframe(), want.key)
		}
	}
	if _, err := dc.ReadPacket(); err != io.EOF {
		t.Errorf("end of stream: err = %v, want io.EOF", err)
	}

	// Out of band configs land on the decoder parameters.
	if asc := videoTrack.Params.Decoder.ExtraData; len(asc) == 0 || asc[0] != 1 {
		t.Errorf("video track config = % x, want an AVC record", asc)
	}
	if asc := audioTrack.Params.Decoder.ExtraData; !bytes.Equal(asc, []byte{0x12, 0x10}) {
		t.Errorf("audio track config = % x, want 12 10", asc)
	}
}

func TestFLVVideoConfigFromFirstPacket(t *testing.T) {
	var buf bytes.Buffer
	mc, _ := OpenMuxer("flv", &buf)
	mc.AddTrack(flvVideoTrack(nil))
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	// Parameter sets ride in band with the first keyframe.
	payload := annexB(testSPS, testPPS, testIDR)
	if err := mc.WritePacket(flvPacket(0, 0, 0, payload, true)); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	if err := mc.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}

	dc, _ := OpenDemuxer("flv", bytes.NewReader(buf.Bytes()))
	if err := dc.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	pkt, err := dc.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if !bytes.Equal(pkt.Data, payload) {
		t.Errorf("payload = % x, want % x", pkt.Data, payload)
	}
	if cfg := dc.Tracks.Get(0).Params.Decoder.ExtraData; len(cfg) == 0 || cfg[0] != 1 {
		t.Errorf("stashed config = % x, want an AVC record", cfg)
	}
}

func TestFLVMuxerValidation(t *testing.T) {
	t.Run("unsupported codec", func(t *testing.T) {
		mc, _ := OpenMuxer("flv", &bytes.Buffer{})
		mc.AddTrack(NewTrack(CodecIDVP8, NewVideoEncoderParameters(VideoParameters{Width: 64, Height: 64}, EncoderParameters{})))
		if err := mc.WriteHeader(); !errors.Is(err, ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})
	t.Run("no tracks", func(t *testing.T) {
		mc, _ := OpenMuxer("flv", &bytes.Buffer{})
		if err := mc.WriteHeader(); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("err = %v, want ErrInvalidParameter", err)
		}
	})
	t.Run("two video tracks", func(t *testing.T) {
		mc, _ := OpenMuxer("flv", &bytes.Buffer{})
		mc.AddTrack(flvVideoTrack(annexB(testSPS, testPPS)))
		mc.AddTrack(flvVideoTrack(annexB(testSPS, testPPS)))
		if err := mc.WriteHeader(); !errors.Is(err, ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})
	t.Run("keyframe without parameter sets", func(t *testing.T) {
		mc, _ := OpenMuxer("flv", &bytes.Buffer{})
		mc.AddTrack(flvVideoTrack(nil))
		if err := mc.WriteHeader(); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		err := mc.WritePacket(flvPacket(0, 0, 0, annexB(testIDR), true))
		if !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("err = %v, want ErrInvalidParameter", err)
		}
	})
}

func TestFLVDemuxerRejectsGarbage(t *testing.T) {
	dc, _ := OpenDemuxer("flv", bytes.NewReader([]byte("MPEG-TS? certainly not flv")))
	if err := dc.ReadHeader(); err == nil {
		t.Error("garbage accepted as flv")
	}
}
