package mediakit

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

// Re-export pion/rtp types for convenience
type (
	// RTPPacket is an alias to pion's rtp.Packet
	RTPPacket = rtp.Packet

	// RTPHeader is an alias to pion's rtp.Header
	RTPHeader = rtp.Header

	// RTPExtension is an alias to pion's rtp.Extension
	RTPExtension = rtp.Extension
)

// Re-export pion's header extension types
type (
	AbsSendTimeExtension  = rtp.AbsSendTimeExtension
	AudioLevelExtension   = rtp.AudioLevelExtension
	PlayoutDelayExtension = rtp.PlayoutDelayExtension
	TransportCCExtension  = rtp.TransportCCExtension
)

// RTP Header Extension IDs (commonly used) - kept for convenience
const (
	// One-byte header extension IDs
	ExtensionIDAbsSendTime      = 3  // abs-send-time (3 bytes: 24-bit NTP timestamp)
	ExtensionIDTransportWideCC  = 5  // transport-wide-cc (2 bytes: sequence number)
	ExtensionIDVideoOrientation = 4  // video-orientation (1 byte)
	ExtensionIDPlayoutDelay     = 6  // playout-delay (3 bytes: min/max delay)
	ExtensionIDMid              = 10 // mid extension (variable)
	ExtensionIDRid              = 11 // rid extension (variable)
	ExtensionIDRepairedRid      = 12 // repaired-rid extension (variable)
	ExtensionIDDependencyDesc   = 8  // dependency-descriptor (variable)
	ExtensionIDAudioLevel       = 1  // audio-level (1 byte: level + voice activity)
)

// Default MTU for RTP packets (UDP safe)
const DefaultMTU = 1200

// rtpHeaderSize is the fixed RTP header the MTU budget reserves.
const rtpHeaderSize = 12

// rtpPayloaderFor pairs a codec with its pion payloader and RTP clock.
func rtpPayloaderFor(id CodecID) (rtp.Payloader, uint32, error) {
	switch id {
	case CodecIDH264:
		return &codecs.H264Payloader{}, 90000, nil
	case CodecIDVP8:
		return &codecs.VP8Payloader{}, 90000, nil
	case CodecIDVP9:
		return &codecs.VP9Payloader{}, 90000, nil
	case CodecIDAV1:
		return &codecs.AV1Payloader{}, 90000, nil
	case CodecIDOpus:
		return &codecs.OpusPayloader{}, 48000, nil
	case CodecIDG711A, CodecIDG711U:
		return &codecs.G711Payloader{}, 8000, nil
	}
	return nil, 0, fmt.Errorf("rtp packetizing of %s: %w", id, ErrUnsupported)
}

// rtpDepacketizerFor pairs a codec with its pion depacketizer and RTP
// clock.
func rtpDepacketizerFor(id CodecID) (rtp.Depacketizer, uint32, error) {
	switch id {
	case CodecIDH264:
		return &codecs.H264Packet{}, 90000, nil
	case CodecIDVP8:
		return &codecs.VP8Packet{}, 90000, nil
	case CodecIDVP9:
		return &codecs.VP9Packet{}, 90000, nil
	case CodecIDAV1:
		return &codecs.AV1Packet{}, 90000, nil
	case CodecIDOpus:
		return &codecs.OpusPacket{}, 48000, nil
	case CodecIDG711A, CodecIDG711U:
		return &codecs.G711Packet{}, 8000, nil
	}
	return nil, 0, fmt.Errorf("rtp depacketizing of %s: %w", id, ErrUnsupported)
}

// DefaultPayloadType returns the conventional payload type for a codec:
// the static assignment where one exists, the usual dynamic pick
// otherwise.
func DefaultPayloadType(id CodecID) uint8 {
	switch id {
	case CodecIDG711U:
		return 0
	case CodecIDG711A:
		return 8
	case CodecIDVP8:
		return 96
	case CodecIDVP9:
		return 98
	case CodecIDAV1:
		return 45
	case CodecIDH264:
		return 102
	case CodecIDOpus:
		return 111
	}
	return 96
}

// Packetizer segments encoded packets into RTP packets. Payload
// splitting is pion's per-codec payloader; headers carry the packet's
// own presentation time rescaled to the codec's RTP clock.
type Packetizer struct {
	codecID     CodecID
	clockRate   uint32
	ssrc        uint32
	payloadType uint8
	mtu         int
	audio       bool

	mu        sync.Mutex
	sequencer rtp.Sequencer
	payloader rtp.Payloader
}

// NewPacketizer creates a packetizer for the codec. An mtu of 0 picks
// DefaultMTU and a payloadType of 0 picks the codec's conventional one,
// which for G711U is the static type 0 itself.
func NewPacketizer(id CodecID, ssrc uint32, payloadType uint8, mtu int) (*Packetizer, error) {
	payloader, clockRate, err := rtpPayloaderFor(id)
	if err != nil {
		return nil, err
	}
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	if payloadType == 0 {
		payloadType = DefaultPayloadType(id)
	}
	return &Packetizer{
		codecID:     id,
		clockRate:   clockRate,
		ssrc:        ssrc,
		payloadType: payloadType,
		mtu:         mtu,
		audio:       id.MediaType() == MediaTypeAudio,
		sequencer:   rtp.NewRandomSequencer(),
		payloader:   payloader,
	}, nil
}

func (p *Packetizer) CodecID() CodecID   { return p.codecID }
func (p *Packetizer) ClockRate() uint32  { return p.clockRate }
func (p *Packetizer) SSRC() uint32       { return p.ssrc }
func (p *Packetizer) PayloadType() uint8 { return p.payloadType }
func (p *Packetizer) MTU() int           { return p.mtu }

// Packetize converts one encoded packet to RTP packets. Audio packets
// set the marker on every packet, video on the last packet of the
// frame.
func (p *Packetizer) Packetize(pkt *Packet) ([]*rtp.Packet, error) {
	if pkt == nil || len(pkt.Data) == 0 {
		return nil, nil
	}
	ts := p.rtpTimestamp(pkt)

	p.mu.Lock()
	defer p.mu.Unlock()

	payloads := p.payloader.Payload(uint16(p.mtu-rtpHeaderSize), pkt.Data)
	if len(payloads) == 0 {
		return nil, nil
	}
	packets := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         p.audio || i == len(payloads)-1,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      ts,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		}
	}
	return packets, nil
}

// PacketizeToBytes converts one encoded packet to marshaled RTP packet
// bytes.
func (p *Packetizer) PacketizeToBytes(pkt *Packet) ([][]byte, error) {
	packets, err := p.Packetize(pkt)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(packets))
	for i, rp := range packets {
		out[i], err = rp.Marshal()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Packetizer) rtpTimestamp(pkt *Packet) uint32 {
	ts := pkt.PTS
	if ts == NoTimestamp {
		ts = pkt.DTS
	}
	if ts == NoTimestamp {
		return 0
	}
	tb := pkt.TimeBase
	if tb.IsZero() {
		tb = DefaultTimeBase
	}
	return uint32(Rescale(ts, tb, Rational{Num: 1, Den: int64(p.clockRate)}))
}

// Depacketizer reassembles RTP packets into encoded packets. Ordering,
// loss handling and frame boundaries come from pion's sample builder.
type Depacketizer struct {
	codecID   CodecID
	clockRate uint32

	mu      sync.Mutex
	builder *samplebuilder.SampleBuilder
}

const (
	depacketizerMaxLateVideo = 64
	depacketizerMaxLateAudio = 32
)

// NewDepacketizer creates a depacketizer for the codec.
func NewDepacketizer(id CodecID) (*Depacketizer, error) {
	depacketizer, clockRate, err := rtpDepacketizerFor(id)
	if err != nil {
		return nil, err
	}
	maxLate := uint16(depacketizerMaxLateVideo)
	if id.MediaType() == MediaTypeAudio {
		maxLate = depacketizerMaxLateAudio
	}
	return &Depacketizer{
		codecID:   id,
		clockRate: clockRate,
		builder:   samplebuilder.New(maxLate, depacketizer, clockRate),
	}, nil
}

func (d *Depacketizer) CodecID() CodecID  { return d.codecID }
func (d *Depacketizer) ClockRate() uint32 { return d.clockRate }

// Push feeds one RTP packet into the reassembly buffer.
func (d *Depacketizer) Push(p *rtp.Packet) {
	if p == nil {
		return
	}
	d.mu.Lock()
	d.builder.Push(p)
	d.mu.Unlock()
}

// PushBytes unmarshals raw RTP packet bytes and feeds them in.
func (d *Depacketizer) PushBytes(data []byte) error {
	var p rtp.Packet
	if err := p.Unmarshal(data); err != nil {
		return err
	}
	d.Push(&p)
	return nil
}

// Pop returns the next complete encoded packet, nil when none is ready.
// Timestamps are in RTP clock ticks.
func (d *Depacketizer) Pop() *Packet {
	d.mu.Lock()
	sample := d.builder.Pop()
	d.mu.Unlock()
	if sample == nil {
		return nil
	}
	pkt := PacketFromSlice(sample.Data)
	pkt.TimeBase = Rational{Num: 1, Den: int64(d.clockRate)}
	pkt.PTS = int64(sample.PacketTimestamp)
	pkt.DTS = pkt.PTS
	pkt.Duration = Rescale(int64(sample.Duration), Rational{Num: 1, Den: NsecPerSec}, pkt.TimeBase)
	if d.codecID.MediaType() == MediaTypeAudio || DetectKeyframe(d.codecID, sample.Data) {
		pkt.Flags |= PacketFlagKey
	}
	return pkt
}

// RTPSenderStats counts outbound RTP traffic. BytesSent is payload
// bytes, matching the RTCP octet count.
type RTPSenderStats struct {
	PacketsSent uint64
	BytesSent   uint64
}

// RTPReceiverStats counts inbound RTP traffic for receiver reports.
type RTPReceiverStats struct {
	PacketsReceived            uint64
	PacketsLost                uint64
	LastSequenceNumber         uint32 // extended highest sequence number
	Jitter                     uint32 // in RTP clock ticks
	LastSenderReport           uint32 // middle 32 bits of the last SR NTP time
	DelaySinceLastSenderReport uint32 // in 1/65536 seconds
}

// NewSenderReport builds the RTCP sender report for an outbound stream.
// rtpTime is the RTP clock value corresponding to now.
func NewSenderReport(ssrc uint32, now time.Time, rtpTime uint32, stats RTPSenderStats) *rtcp.SenderReport {
	return &rtcp.SenderReport{
		SSRC:        ssrc,
		NTPTime:     ntpTime(now),
		RTPTime:     rtpTime,
		PacketCount: uint32(stats.PacketsSent),
		OctetCount:  uint32(stats.BytesSent),
	}
}

// NewReceiverReport builds the RTCP receiver report for an inbound
// stream. The loss fraction is computed over the stream's life; callers
// tracking report intervals can overwrite it.
func NewReceiverReport(ssrc, mediaSSRC uint32, stats RTPReceiverStats) *rtcp.ReceiverReport {
	var fraction uint8
	if total := stats.PacketsReceived + stats.PacketsLost; total > 0 {
		fraction = uint8(stats.PacketsLost * 256 / total)
	}
	return &rtcp.ReceiverReport{
		SSRC: ssrc,
		Reports: []rtcp.ReceptionReport{{
			SSRC:               mediaSSRC,
			FractionLost:       fraction,
			TotalLost:          uint32(stats.PacketsLost),
			LastSequenceNumber: stats.LastSequenceNumber,
			Jitter:             stats.Jitter,
			LastSenderReport:   stats.LastSenderReport,
			Delay:              stats.DelaySinceLastSenderReport,
		}},
	}
}

// ntpTime converts wall time to the 32.32 fixed point NTP format RTCP
// carries.
func ntpTime(t time.Time) uint64 {
	const ntpEpochOffset = 2208988800 // seconds between 1900 and 1970
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return secs<<32 | frac
}

// VideoOrientation represents the CVO (Coordination of Video Orientation) extension.
// This is not provided by pion/rtp, so we keep our own implementation.
type VideoOrientation struct {
	CameraBackFacing bool // true = back camera, false = front camera
	FlipHorizontal   bool // Flip horizontally
	Rotation         int  // 0, 90, 180, 270 degrees clockwise
}

// Marshal returns the extension payload bytes.
func (v VideoOrientation) Marshal() []byte {
	var val uint8
	if v.CameraBackFacing {
		val |= 0x08
	}
	if v.FlipHorizontal {
		val |= 0x04
	}
	switch v.Rotation {
	case 90:
		val |= 0x01
	case 180:
		val |= 0x02
	case 270:
		val |= 0x03
	}
	return []byte{val}
}

// Unmarshal parses a video orientation extension.
func (v *VideoOrientation) Unmarshal(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty video orientation data")
	}
	b := data[0]
	v.CameraBackFacing = (b & 0x08) != 0
	v.FlipHorizontal = (b & 0x04) != 0
	switch b & 0x03 {
	case 1:
		v.Rotation = 90
	case 2:
		v.Rotation = 180
	case 3:
		v.Rotation = 270
	default:
		v.Rotation = 0
	}
	return nil
}

// IsRTPTimestampOlder returns true if ts1 is older than or equal to ts2,
// handling 32-bit wraparound correctly per RTP timestamp comparison rules.
// This is used by depacketizers to discard late-arriving packets.
func IsRTPTimestampOlder(ts1, ts2 uint32) bool {
	if ts1 == ts2 {
		return true
	}
	// Standard RTP timestamp comparison with wraparound handling:
	// ts1 is older if (ts2 - ts1) < 2^31
	diff := ts2 - ts1
	return diff < 0x80000000
}
