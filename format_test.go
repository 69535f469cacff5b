package mediakit

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// recordingMuxer captures the packet order the context hands down.
type recordingMuxer struct {
	header  bool
	trailer bool
	packets []*Packet
}

func (m *recordingMuxer) WriteHeader(mc *MuxContext) error { m.header = true; return nil }
func (m *recordingMuxer) WritePacket(mc *MuxContext, pkt *Packet) error {
	m.packets = append(m.packets, pkt)
	return nil
}
func (m *recordingMuxer) WriteTrailer(mc *MuxContext) error { m.trailer = true; return nil }

type stubDemuxer struct {
	packets []*Packet
	pos     int
}

func (d *stubDemuxer) ReadHeader(dc *DemuxContext) error {
	dc.Tracks.Add(NewTrack(CodecIDPCMS16, nil))
	return nil
}

func (d *stubDemuxer) ReadPacket(dc *DemuxContext) (*Packet, error) {
	if d.pos >= len(d.packets) {
		return nil, io.EOF
	}
	pkt := d.packets[d.pos]
	d.pos++
	return pkt, nil
}

func (d *stubDemuxer) Seek(dc *DemuxContext, trackIndex int, timestampUsec int64, flags SeekFlags) error {
	d.pos = 0
	return nil
}

func muxTestPacket(track int, dts int64) *Packet {
	pkt := NewPacket(4)
	pkt.TrackIndex = track
	pkt.DTS = dts
	pkt.PTS = dts
	pkt.TimeBase = DefaultTimeBase
	return pkt
}

func TestNewTrack(t *testing.T) {
	a := NewTrack(CodecIDPCMS16, nil)
	b := NewTrack(CodecIDVP8, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("track IDs not unique: %q %q", a.ID, b.ID)
	}
	if a.StartTime != NoTimestamp || a.Duration != NoTimestamp {
		t.Error("new track has timing set")
	}
	if a.MediaType() != MediaTypeAudio || b.MediaType() != MediaTypeVideo {
		t.Errorf("media types = %v, %v", a.MediaType(), b.MediaType())
	}
}

func TestTrackCollection(t *testing.T) {
	var c TrackCollection
	t0 := NewTrack(CodecIDPCMS16, nil)
	t1 := NewTrack(CodecIDVP8, nil)
	if idx := c.Add(t0); idx != 0 {
		t.Errorf("first index = %d", idx)
	}
	if idx := c.Add(t1); idx != 1 {
		t.Errorf("second index = %d", idx)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
	if c.Find(t1.ID) != t1 {
		t.Error("Find by ID failed")
	}
	if c.Find("missing") != nil {
		t.Error("Find of unknown ID returned a track")
	}
	if c.Get(0) != t0 || c.Get(1) != t1 {
		t.Error("Get by index failed")
	}
	if c.Get(-1) != nil || c.Get(2) != nil {
		t.Error("Get out of range returned a track")
	}
}

func TestStreamCollection(t *testing.T) {
	var c StreamCollection
	s := NewStream()
	if s.ID == "" {
		t.Error("stream has no ID")
	}
	s.AddTrack(0)
	s.AddTrack(2)
	if idx := c.Add(s); idx != 0 {
		t.Errorf("stream index = %d", idx)
	}
	got := c.Get(0)
	if got == nil || len(got.TrackIndexes) != 2 || got.TrackIndexes[1] != 2 {
		t.Errorf("stream tracks = %+v", got)
	}
	if c.Get(1) != nil {
		t.Error("Get out of range returned a stream")
	}
}

func TestProbeFormat(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"capture.wav", "wav"},
		{"capture.WAVE", "wav"},
		{"clip.ivf", "ivf"},
		{"movie.flv", "flv"},
		{"voice.opus", "ogg"},
		{"song.oga", "ogg"},
		{"unknown.bin", ""},
		{"noextension", ""},
	}
	for _, tt := range tests {
		if got := ProbeFormat(tt.path); got != tt.want {
			t.Errorf("ProbeFormat(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestSupportedFormats(t *testing.T) {
	muxers := SupportedMuxers()
	for _, want := range []string{"wav", "ivf", "flv", "ogg", "rtmp"} {
		found := false
		for _, name := range muxers {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("muxer %q not registered", want)
		}
	}
	demuxers := SupportedDemuxers()
	for _, want := range []string{"wav", "ivf", "flv", "ogg"} {
		found := false
		for _, name := range demuxers {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("demuxer %q not registered", want)
		}
	}
}

func TestOpenMuxerUnknown(t *testing.T) {
	if _, err := OpenMuxer("mkv", &bytes.Buffer{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := OpenDemuxer("mkv", &bytes.Buffer{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMuxContextStateMachine(t *testing.T) {
	rec := &recordingMuxer{}
	mc := NewMuxContext(rec, &bytes.Buffer{})

	if _, err := mc.AddTrack(NewTrack(CodecIDPCMS16, nil)); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := mc.WritePacket(muxTestPacket(0, 0)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("packet before header: err = %v, want ErrInvalidParameter", err)
	}
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if !rec.header {
		t.Error("muxer never saw the header")
	}
	if err := mc.WriteHeader(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double header: err = %v, want ErrInvalidState", err)
	}
	if _, err := mc.AddTrack(NewTrack(CodecIDVP8, nil)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("track after header: err = %v, want ErrInvalidState", err)
	}
	if err := mc.WritePacket(muxTestPacket(5, 0)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("unknown track: err = %v, want ErrInvalidParameter", err)
	}
	if err := mc.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}
	if !rec.trailer {
		t.Error("muxer never saw the trailer")
	}
	if err := mc.WritePacket(muxTestPacket(0, 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("packet after trailer: err = %v, want ErrClosed", err)
	}
	if err := mc.WriteTrailer(); !errors.Is(err, ErrClosed) {
		t.Errorf("double trailer: err = %v, want ErrClosed", err)
	}
}

func TestMuxContextInterleaving(t *testing.T) {
	rec := &recordingMuxer{}
	mc := NewMuxContext(rec, &bytes.Buffer{})
	mc.AddTrack(NewTrack(CodecIDVP8, nil))
	mc.AddTrack(NewTrack(CodecIDPCMS16, nil))
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	// Video runs ahead; the late audio packet must still come out in
	// DTS order.
	for _, dts := range []int64{0, 100, 200} {
		if err := mc.WritePacket(muxTestPacket(0, dts)); err != nil {
			t.Fatalf("WritePacket video@%d: %v", dts, err)
		}
	}
	if len(rec.packets) != 0 {
		t.Fatalf("context released %d packets before both tracks had data", len(rec.packets))
	}
	if err := mc.WritePacket(muxTestPacket(1, 50)); err != nil {
		t.Fatalf("WritePacket audio@50: %v", err)
	}
	if err := mc.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}

	wantTracks := []int{0, 1, 0, 0}
	wantDTS := []int64{0, 50, 100, 200}
	if len(rec.packets) != len(wantDTS) {
		t.Fatalf("muxer saw %d packets, want %d", len(rec.packets), len(wantDTS))
	}
	for i, pkt := range rec.packets {
		if pkt.TrackIndex != wantTracks[i] || pkt.DTS != wantDTS[i] {
			t.Errorf("packet %d: track %d dts %d, want track %d dts %d",
				i, pkt.TrackIndex, pkt.DTS, wantTracks[i], wantDTS[i])
		}
	}
}

func TestMuxContextInterleaveWindow(t *testing.T) {
	rec := &recordingMuxer{}
	mc := NewMuxContext(rec, &bytes.Buffer{})
	mc.AddTrack(NewTrack(CodecIDVP8, nil))
	mc.AddTrack(NewTrack(CodecIDPCMS16, nil))
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := mc.SetOption("max_interleave_delay", 0); err != nil {
		t.Fatalf("SetOption: %v", err)
	}
	if err := mc.SetOption("max_interleave_delay", -1); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("negative delay: err = %v, want ErrInvalidParameter", err)
	}

	// With a zero window the head packet flushes as soon as a newer one
	// arrives, without waiting for the silent audio track.
	mc.WritePacket(muxTestPacket(0, 0))
	if len(rec.packets) != 0 {
		t.Fatal("single packet flushed with nothing newer queued")
	}
	mc.WritePacket(muxTestPacket(0, 100))
	if len(rec.packets) != 1 || rec.packets[0].DTS != 0 {
		t.Fatalf("aged packet not flushed: %d written", len(rec.packets))
	}
}

func TestMuxContextNormalizesDTS(t *testing.T) {
	rec := &recordingMuxer{}
	mc := NewMuxContext(rec, &bytes.Buffer{})
	mc.AddTrack(NewTrack(CodecIDPCMS16, nil))
	if err := mc.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	// PTS-only packet in milliseconds lands in the queue in
	// microseconds.
	pkt := NewPacket(4)
	pkt.TrackIndex = 0
	pkt.PTS = 500
	pkt.TimeBase = Rational{Num: 1, Den: 1000}
	if err := mc.WritePacket(pkt); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	if len(mc.pending) != 1 {
		t.Fatalf("pending = %d packets", len(mc.pending))
	}
	if got := mc.pending[0].dts; got != 500000 {
		t.Errorf("normalized dts = %d, want 500000", got)
	}
}

func TestDemuxContextStateMachine(t *testing.T) {
	stub := &stubDemuxer{packets: []*Packet{PacketFromSlice([]byte{1})}}
	dc := NewDemuxContext(stub, &bytes.Buffer{})

	if _, err := dc.ReadPacket(); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("packet before header: err = %v, want ErrInvalidParameter", err)
	}
	if err := dc.Seek(-1, 0, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("seek before header: err = %v, want ErrInvalidParameter", err)
	}
	if err := dc.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if err := dc.ReadHeader(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double header: err = %v, want ErrInvalidState", err)
	}
	if dc.Tracks.Len() != 1 {
		t.Fatalf("tracks = %d", dc.Tracks.Len())
	}
	if tb := dc.Tracks.Get(0).TimeBase; tb != DefaultTimeBase {
		t.Errorf("track time base = %v, want default", tb)
	}

	if _, err := dc.ReadPacket(); err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if _, err := dc.ReadPacket(); err != io.EOF {
		t.Errorf("end of stream: err = %v, want io.EOF", err)
	}
	if err := dc.Seek(-1, 0, SeekBackward); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := dc.ReadPacket(); err != nil {
		t.Errorf("ReadPacket after seek: %v", err)
	}
}
