package mediakit

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestOggMuxDemuxRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	mc, err := OpenMuxer("ogg", &buf)
	if err != nil {
		t.Fatalf("OpenMuxer: %v", err)
	}
	layout, err := DefaultChannelLayout(2)
	if err != nil {
		t.Fatalf("DefaultChannelLayout: %v", err)
	}
	track := NewTrack(CodecIDOpus, NewAudioEncoderParameters(AudioParameters{
		SampleRate: 48000,
		Layout:     layout,
	}, EncoderParameters{}))
	track.TimeBase = NewRational(1, 48000)
	if _, err := mc.AddTrack(track); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	// 20 ms opus packets on the 48 kHz granule clock.
	payloads := [][]byte{
		{0xFC, 0x01, 0x02, 0x03},
		{0xFC, 0x11, 0x12},
		{0xFC, 0x21},
	}
	for i, payload := range payloads {
		pkt := PacketFromSlice(payload)
		pkt.TrackIndex = 0
		pkt.PTS = int64(i * 960)
		pkt.DTS = pkt.PTS
		pkt.TimeBase = NewRational(1, 48000)
		if err := mc.WritePacket(pkt); err != nil {
			t.Fatalf("WritePacket %d: %v", i, err)
		}
	}
	if err := mc.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}

	dc, err := OpenDemuxer("ogg", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenDemuxer: %v", err)
	}
	if err := dc.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	got := dc.Tracks.Get(0)
	if got.CodecID != CodecIDOpus {
		t.Errorf("codec = %v, want opus", got.CodecID)
	}
	if got.Params.Audio.SampleRate != 48000 || got.Params.Audio.Channels() != 2 {
		t.Errorf("params = %dHz %dch", got.Params.Audio.SampleRate, got.Params.Audio.Channels())
	}

	var lastPTS int64 = -1
	for i, want := range payloads {
		pkt, err := dc.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
		if !bytes.Equal(pkt.Data, want) {
			t.Errorf("packet %d payload = % x, want % x", i, pkt.Data, want)
		}
		if !pkt.Keyframe() {
			t.Errorf("packet %d not marked as keyframe", i)
		}
		if pkt.TimeBase != NewRational(1, 48000) {
			t.Errorf("packet %d time base = %v", i, pkt.TimeBase)
		}
		if i == 0 && pkt.PTS != 0 {
			t.Errorf("first packet PTS = %d, want 0", pkt.PTS)
		}
		if pkt.PTS < lastPTS {
			t.Errorf("packet %d PTS %d below previous %d", i, pkt.PTS, lastPTS)
		}
		lastPTS = pkt.PTS
	}
	if _, err := dc.ReadPacket(); err != io.EOF {
		t.Errorf("end of stream: err = %v, want io.EOF", err)
	}
	if err := dc.Seek(0, 0, SeekBackward); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("Seek: err = %v, want ErrNotImplemented", err)
	}
}

func TestOggMuxerValidation(t *testing.T) {
	t.Run("wrong codec", func(t *testing.T) {
		mc, _ := OpenMuxer("ogg", &bytes.Buffer{})
		mc.AddTrack(NewTrack(CodecIDPCMS16, NewAudioEncoderParameters(pcmTestParams(2, 48000), EncoderParameters{})))
		if err := mc.WriteHeader(); !errors.Is(err, ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})
	t.Run("two tracks", func(t *testing.T) {
		mc, _ := OpenMuxer("ogg", &bytes.Buffer{})
		mc.AddTrack(NewTrack(CodecIDOpus, nil))
		mc.AddTrack(NewTrack(CodecIDOpus, nil))
		if err := mc.WriteHeader(); !errors.Is(err, ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})
}

func TestOggDemuxerRejectsGarbage(t *testing.T) {
	dc, _ := OpenDemuxer("ogg", bytes.NewReader([]byte("DKIF but not ogg")))
	if err := dc.ReadHeader(); err == nil {
		t.Error("garbage accepted as ogg")
	}
}
