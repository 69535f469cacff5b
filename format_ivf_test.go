package mediakit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func ivfVideoTrack(id CodecID, w, h int) *Track {
	track := NewTrack(id, NewVideoEncoderParameters(VideoParameters{Width: w, Height: h}, EncoderParameters{}))
	track.TimeBase = NewRational(1, ivfTimebaseDen)
	return track
}

func TestIVFMuxDemuxRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	mc, err := OpenMuxer("ivf", &buf)
	if err != nil {
		t.Fatalf("OpenMuxer: %v", err)
	}
	if _, err := mc.AddTrack(ivfVideoTrack(CodecIDVP8, 320, 240)); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	// A VP8 frame tag with a clear low bit is a keyframe.
	frames := []struct {
		payload []byte
		pts     int64
		key     bool
	}{
		{[]byte{0x50, 0xAA, 0xBB, 0xCC}, 0, true},
		{[]byte{0x51, 0x11, 0x22}, 3000, false},
		{[]byte{0x52, 0x33}, 6000, true},
	}
	for _, f := range frames {
		pkt := PacketFromSlice(f.payload)
		pkt.TrackIndex = 0
		pkt.PTS = f.pts
		pkt.DTS = f.pts
		pkt.TimeBase = NewRational(1, ivfTimebaseDen)
		if err := mc.WritePacket(pkt); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	if err := mc.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}

	dc, err := OpenDemuxer("ivf", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenDemuxer: %v", err)
	}
	if err := dc.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	track := dc.Tracks.Get(0)
	if track.CodecID != CodecIDVP8 {
		t.Errorf("codec = %v, want VP8", track.CodecID)
	}
	if track.Params.Video.Width != 320 || track.Params.Video.Height != 240 {
		t.Errorf("geometry = %dx%d", track.Params.Video.Width, track.Params.Video.Height)
	}
	if track.TimeBase != NewRational(1, ivfTimebaseDen) {
		t.Errorf("time base = %v", track.TimeBase)
	}

	for i, want := range frames {
		pkt, err := dc.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
		if !bytes.Equal(pkt.Data, want.payload) {
			t.Errorf("frame %d payload = % x, want % x", i, pkt.Data, want.payload)
		}
		if pkt.PTS != want.pts {
			t.Errorf("frame %d PTS = %d, want %d", i, pkt.PTS, want.pts)
		}
		if pkt.Keyframe() != want.key {
			t.Errorf("frame %d keyframe = %v, want %v", i, pkt.Keyframe(), want.key)
		}
	}
	if _, err := dc.ReadPacket(); err != io.EOF {
		t.Errorf("end of stream: err = %v, want io.EOF", err)
	}
	if err := dc.Seek(0, 0, SeekBackward); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("Seek: err = %v, want ErrNotImplemented", err)
	}
}

func TestIVFTimestampRescale(t *testing.T) {
	var buf bytes.Buffer
	mc, _ := OpenMuxer("ivf", &buf)
	mc.AddTrack(ivfVideoTrack(CodecIDVP9, 64, 64))
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	// Frame 2 of a 30 fps stream lands at 6000 on the 90 kHz clock.
	pkt := PacketFromSlice([]byte{0x80})
	pkt.TrackIndex = 0
	pkt.PTS = 2
	pkt.TimeBase = NewRational(1, 30)
	if err := mc.WritePacket(pkt); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	mc.WriteTrailer()

	dc, _ := OpenDemuxer("ivf", bytes.NewReader(buf.Bytes()))
	if err := dc.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	out, err := dc.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if out.PTS != 6000 {
		t.Errorf("PTS = %d, want 6000", out.PTS)
	}
}

func TestIVFTrailerPatchesFrameCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.ivf")
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mc, _ := OpenMuxer("ivf", out)
	mc.AddTrack(ivfVideoTrack(CodecIDVP8, 160, 120))
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	for i := int64(0); i < 2; i++ {
		pkt := PacketFromSlice([]byte{0x50, byte(i)})
		pkt.TrackIndex = 0
		pkt.PTS = i * 3000
		pkt.TimeBase = NewRational(1, ivfTimebaseDen)
		if err := mc.WritePacket(pkt); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	if err := mc.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}
	out.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(raw[0:4]) != "DKIF" {
		t.Fatalf("magic = %q", raw[0:4])
	}
	if string(raw[8:12]) != "VP80" {
		t.Errorf("fourcc = %q", raw[8:12])
	}
	if w := binary.LittleEndian.Uint16(raw[12:14]); w != 160 {
		t.Errorf("width = %d", w)
	}
	if count := binary.LittleEndian.Uint32(raw[24:28]); count != 2 {
		t.Errorf("frame count = %d, want 2", count)
	}
}

func TestIVFMuxerValidation(t *testing.T) {
	t.Run("wrong codec", func(t *testing.T) {
		mc, _ := OpenMuxer("ivf", &bytes.Buffer{})
		mc.AddTrack(NewTrack(CodecIDH264, NewVideoEncoderParameters(VideoParameters{Width: 64, Height: 64}, EncoderParameters{})))
		if err := mc.WriteHeader(); !errors.Is(err, ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})
	t.Run("missing geometry", func(t *testing.T) {
		mc, _ := OpenMuxer("ivf", &bytes.Buffer{})
		mc.AddTrack(NewTrack(CodecIDVP8, NewVideoEncoderParameters(VideoParameters{}, EncoderParameters{})))
		if err := mc.WriteHeader(); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("err = %v, want ErrInvalidParameter", err)
		}
	})
}

func TestIVFDemuxerRejectsUnknownFourCC(t *testing.T) {
	header := make([]byte, ivfHeaderSize)
	copy(header[0:], "DKIF")
	binary.LittleEndian.PutUint16(header[6:], ivfHeaderSize)
	copy(header[8:], "H264")
	binary.LittleEndian.PutUint16(header[12:], 64)
	binary.LittleEndian.PutUint16(header[14:], 64)
	binary.LittleEndian.PutUint32(header[16:], 90000)
	binary.LittleEndian.PutUint32(header[20:], 1)

	dc, _ := OpenDemuxer("ivf", bytes.NewReader(header))
	if err := dc.ReadHeader(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestIVFDemuxerRejectsGarbage(t *testing.T) {
	dc, _ := OpenDemuxer("ivf", bytes.NewReader([]byte("RIFFnope")))
	if err := dc.ReadHeader(); err == nil {
		t.Error("garbage accepted as ivf")
	}
}
