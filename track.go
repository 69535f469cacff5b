package mediakit

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Re-export pion's RTPCodecType for convenience
type RTPCodecType = webrtc.RTPCodecType

const (
	RTPCodecTypeUnknown = webrtc.RTPCodecTypeUnknown
	RTPCodecTypeAudio   = webrtc.RTPCodecTypeAudio
	RTPCodecTypeVideo   = webrtc.RTPCodecTypeVideo
)

// TrackState represents the state of a track.
type TrackState int

const (
	TrackStateLive  TrackState = iota // Track is active and producing media
	TrackStateEnded                   // Track has ended
	TrackStateMuted                   // Track is muted (still active but not producing)
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	case TrackStateMuted:
		return "muted"
	default:
		return "unknown"
	}
}

// RTPMimeType returns the IANA mime type used in SDP negotiation, or ""
// when the codec has none.
func RTPMimeType(id CodecID) string {
	switch id {
	case CodecIDH264:
		return webrtc.MimeTypeH264
	case CodecIDVP8:
		return webrtc.MimeTypeVP8
	case CodecIDVP9:
		return webrtc.MimeTypeVP9
	case CodecIDAV1:
		return webrtc.MimeTypeAV1
	case CodecIDOpus:
		return webrtc.MimeTypeOpus
	case CodecIDG711A:
		return webrtc.MimeTypePCMA
	case CodecIDG711U:
		return webrtc.MimeTypePCMU
	default:
		return ""
	}
}

// trackBinding is one peer connection the track is attached to. Each
// binding packetizes with its own negotiated SSRC and payload type.
type trackBinding struct {
	id         string
	writer     webrtc.TrackLocalWriter
	packetizer *Packetizer
}

// LocalTrack implements pion's webrtc.TrackLocal interface. Encoded
// packets written to it are split into RTP packets and fanned out to
// every bound peer connection, each on its negotiated parameters.
type LocalTrack struct {
	id       string
	streamID string
	rid      string
	codecID  CodecID
	state    atomic.Int32
	muted    atomic.Bool
	endedCb  func()
	mu       sync.RWMutex
	bindings []trackBinding
}

// NewLocalTrack creates a track carrying the given codec. An empty
// trackID gets a generated UUID.
func NewLocalTrack(id CodecID, trackID, streamID string) (*LocalTrack, error) {
	if RTPMimeType(id) == "" {
		return nil, fmt.Errorf("rtp track for %s: %w", id, ErrUnsupported)
	}
	if trackID == "" {
		trackID = uuid.NewString()
	}
	t := &LocalTrack{
		id:       trackID,
		streamID: streamID,
		codecID:  id,
	}
	t.state.Store(int32(TrackStateLive))
	return t, nil
}

func (t *LocalTrack) ID() string       { return t.id }
func (t *LocalTrack) StreamID() string { return t.streamID }
func (t *LocalTrack) RID() string      { return t.rid }

// CodecID returns the codec the track carries.
func (t *LocalTrack) CodecID() CodecID { return t.codecID }

// Kind implements webrtc.TrackLocal.
func (t *LocalTrack) Kind() RTPCodecType {
	if t.codecID.MediaType() == MediaTypeAudio {
		return RTPCodecTypeAudio
	}
	return RTPCodecTypeVideo
}

func (t *LocalTrack) State() TrackState {
	return TrackState(t.state.Load())
}

func (t *LocalTrack) Muted() bool     { return t.muted.Load() }
func (t *LocalTrack) SetMuted(m bool) { t.muted.Store(m) }

// OnEnded sets a callback invoked once when the track ends.
func (t *LocalTrack) OnEnded(callback func()) {
	t.mu.Lock()
	t.endedCb = callback
	t.mu.Unlock()
}

// Bind implements webrtc.TrackLocal. It picks the negotiated codec
// parameters matching the track's mime type and sets up a packetizer
// on the connection's SSRC.
func (t *LocalTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	mime := RTPMimeType(t.codecID)
	for _, p := range ctx.CodecParameters() {
		if !strings.EqualFold(p.MimeType, mime) {
			continue
		}
		packetizer, err := NewPacketizer(t.codecID, uint32(ctx.SSRC()), uint8(p.PayloadType), DefaultMTU)
		if err != nil {
			return webrtc.RTPCodecParameters{}, err
		}
		t.mu.Lock()
		t.bindings = append(t.bindings, trackBinding{
			id:         ctx.ID(),
			writer:     ctx.WriteStream(),
			packetizer: packetizer,
		})
		t.mu.Unlock()
		return p, nil
	}
	return webrtc.RTPCodecParameters{}, fmt.Errorf("codec %s not negotiated: %w", t.codecID, ErrUnsupported)
}

// Unbind implements webrtc.TrackLocal.
func (t *LocalTrack) Unbind(ctx webrtc.TrackLocalContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, b := range t.bindings {
		if b.id == ctx.ID() {
			t.bindings = append(t.bindings[:i], t.bindings[i+1:]...)
			return nil
		}
	}
	return nil
}

// WritePacket packetizes one encoded packet and writes the RTP packets
// to every bound connection. Muted tracks drop packets silently.
func (t *LocalTrack) WritePacket(pkt *Packet) error {
	if t.muted.Load() || t.State() == TrackStateEnded {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, b := range t.bindings {
		packets, err := b.packetizer.Packetize(pkt)
		if err != nil {
			return err
		}
		for _, p := range packets {
			if _, err := b.writer.WriteRTP(&p.Header, p.Payload); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteRTP forwards an already packetized RTP packet to every bound
// connection, for sources that carry their own RTP stream.
func (t *LocalTrack) WriteRTP(p *rtp.Packet) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, b := range t.bindings {
		if _, err := b.writer.WriteRTP(&p.Header, p.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Close ends the track. Bound connections stay attached until pion
// unbinds them; writes after Close are dropped.
func (t *LocalTrack) Close() error {
	old := TrackState(t.state.Swap(int32(TrackStateEnded)))
	if old != TrackStateEnded {
		t.mu.RLock()
		cb := t.endedCb
		t.mu.RUnlock()
		if cb != nil {
			go cb()
		}
	}
	return nil
}

// Verify LocalTrack implements webrtc.TrackLocal
var _ webrtc.TrackLocal = (*LocalTrack)(nil)
