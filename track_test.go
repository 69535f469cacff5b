package mediakit

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/rtp"
)

func TestTrackStateString(t *testing.T) {
	tests := []struct {
		state TrackState
		want  string
	}{
		{TrackStateLive, "live"},
		{TrackStateEnded, "ended"},
		{TrackStateMuted, "muted"},
		{TrackState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestRTPMimeType(t *testing.T) {
	tests := []struct {
		id   CodecID
		want string
	}{
		{CodecIDH264, "video/H264"},
		{CodecIDVP8, "video/VP8"},
		{CodecIDVP9, "video/VP9"},
		{CodecIDAV1, "video/AV1"},
		{CodecIDOpus, "audio/opus"},
		{CodecIDG711A, "audio/PCMA"},
		{CodecIDG711U, "audio/PCMU"},
		{CodecIDPCMS16, ""},
		{CodecIDMJPEG, ""},
	}
	for _, tt := range tests {
		if got := RTPMimeType(tt.id); got != tt.want {
			t.Errorf("RTPMimeType(%s) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestNewLocalTrack(t *testing.T) {
	track, err := NewLocalTrack(CodecIDOpus, "mic", "stream-1")
	if err != nil {
		t.Fatalf("NewLocalTrack: %v", err)
	}
	if track.ID() != "mic" || track.StreamID() != "stream-1" || track.RID() != "" {
		t.Errorf("identity = %q/%q/%q", track.ID(), track.StreamID(), track.RID())
	}
	if track.CodecID() != CodecIDOpus {
		t.Errorf("CodecID() = %s", track.CodecID())
	}
	if track.Kind() != RTPCodecTypeAudio {
		t.Errorf("Kind() = %v, want audio", track.Kind())
	}
	if track.State() != TrackStateLive {
		t.Errorf("State() = %v, want live", track.State())
	}
	if track.Muted() {
		t.Error("new track muted")
	}

	video, err := NewLocalTrack(CodecIDVP8, "", "stream-1")
	if err != nil {
		t.Fatalf("NewLocalTrack: %v", err)
	}
	if video.Kind() != RTPCodecTypeVideo {
		t.Errorf("Kind() = %v, want video", video.Kind())
	}
	if len(video.ID()) != 36 {
		t.Errorf("generated ID = %q", video.ID())
	}

	if _, err := NewLocalTrack(CodecIDPCMS16, "", ""); !errors.Is(err, ErrUnsupported) {
		t.Errorf("raw pcm track: err = %v, want ErrUnsupported", err)
	}
}

func TestLocalTrackMute(t *testing.T) {
	track, err := NewLocalTrack(CodecIDVP8, "cam", "s")
	if err != nil {
		t.Fatalf("NewLocalTrack: %v", err)
	}
	track.SetMuted(true)
	if !track.Muted() {
		t.Fatal("Muted() = false after SetMuted(true)")
	}

	pkt := PacketFromSlice([]byte{0x50, 1, 2})
	if err := track.WritePacket(pkt); err != nil {
		t.Errorf("muted WritePacket: %v", err)
	}

	track.SetMuted(false)
	if track.Muted() {
		t.Error("Muted() = true after SetMuted(false)")
	}
}

func TestLocalTrackUnboundWrites(t *testing.T) {
	track, err := NewLocalTrack(CodecIDOpus, "mic", "s")
	if err != nil {
		t.Fatalf("NewLocalTrack: %v", err)
	}
	if err := track.WritePacket(PacketFromSlice([]byte{0xFC})); err != nil {
		t.Errorf("WritePacket: %v", err)
	}
	if err := track.WriteRTP(&rtp.Packet{}); err != nil {
		t.Errorf("WriteRTP: %v", err)
	}
}

func TestLocalTrackClose(t *testing.T) {
	track, err := NewLocalTrack(CodecIDOpus, "mic", "s")
	if err != nil {
		t.Fatalf("NewLocalTrack: %v", err)
	}
	ended := make(chan struct{}, 2)
	track.OnEnded(func() { ended <- struct{}{} })

	if err := track.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if track.State() != TrackStateEnded {
		t.Errorf("State() = %v, want ended", track.State())
	}
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("ended callback not invoked")
	}

	// A second close must not fire the callback again.
	if err := track.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	select {
	case <-ended:
		t.Error("ended callback invoked twice")
	case <-time.After(50 * time.Millisecond):
	}

	if err := track.WritePacket(PacketFromSlice([]byte{0xFC})); err != nil {
		t.Errorf("WritePacket after Close: %v", err)
	}
}
