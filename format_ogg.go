// Ogg/Opus container backend over the pion page writer and reader.
package mediakit

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Opus granule positions always run at 48 kHz regardless of the
// stream's input rate.
const oggOpusClockRate = 48000

func init() {
	RegisterMuxer("ogg", func() Muxer { return &oggMuxer{} }, "ogg", "oga", "opus")
	RegisterDemuxer("ogg", func() Demuxer { return &oggDemuxer{} }, "ogg", "oga", "opus")
}

// oggMuxer drives the pion page writer, which takes RTP packets; each
// Opus packet is wrapped with its timestamp rescaled to the 48 kHz
// granule clock the writer accumulates.
type oggMuxer struct {
	writer *oggwriter.OggWriter
}

func (m *oggMuxer) WriteHeader(mc *MuxContext) error {
	if mc.Tracks.Len() != 1 {
		return fmt.Errorf("ogg holds one opus track, got %d: %w", mc.Tracks.Len(), ErrUnsupported)
	}
	track := mc.Tracks.Get(0)
	if track.CodecID != CodecIDOpus {
		return fmt.Errorf("ogg muxing of %s: %w", track.CodecID, ErrUnsupported)
	}
	channels := 2
	if track.Params != nil && track.Params.Audio != nil && track.Params.Audio.Channels() > 0 {
		channels = track.Params.Audio.Channels()
	}

	writer, err := oggwriter.NewWith(mc.Writer(), oggOpusClockRate, uint16(channels))
	if err != nil {
		return fmt.Errorf("open ogg writer: %w", err)
	}
	m.writer = writer
	return nil
}

func (m *oggMuxer) WritePacket(mc *MuxContext, pkt *Packet) error {
	if len(pkt.Data) == 0 {
		return nil
	}
	ts := pkt.PTS
	if ts == NoTimestamp {
		ts = pkt.DTS
	}
	if ts == NoTimestamp {
		ts = 0
	}
	tb := pkt.TimeBase
	if tb.IsZero() {
		tb = mc.Tracks.Get(0).TimeBase
	}
	ts = Rescale(ts, tb, Rational{Num: 1, Den: oggOpusClockRate})

	wrapped := &rtp.Packet{
		Header:  rtp.Header{Timestamp: uint32(ts)},
		Payload: pkt.Data,
	}
	if err := m.writer.WriteRTP(wrapped); err != nil {
		return fmt.Errorf("write ogg page: %w", err)
	}
	return nil
}

func (m *oggMuxer) WriteTrailer(mc *MuxContext) error {
	if err := m.writer.Close(); err != nil {
		return fmt.Errorf("finalize ogg: %w", err)
	}
	return nil
}

// oggDemuxer reads one Opus packet per page, which is how the pion
// writer and most live encoders lay pages out.
type oggDemuxer struct {
	reader   *oggreader.OggReader
	position int64
}

func (d *oggDemuxer) ReadHeader(dc *DemuxContext) error {
	reader, header, err := oggreader.NewWith(dc.Reader())
	if err != nil {
		return fmt.Errorf("parse ogg header: %w", err)
	}
	d.reader = reader

	channels := int(header.Channels)
	if channels == 0 {
		channels = 2
	}
	layout, err := DefaultChannelLayout(channels)
	if err != nil {
		return err
	}
	params := AudioParameters{SampleRate: oggOpusClockRate, Layout: layout}
	track := NewTrack(CodecIDOpus, NewAudioDecoderParameters(params, DecoderParameters{}))
	track.TimeBase = NewRational(1, oggOpusClockRate)
	track.StartTime = 0
	index := dc.Tracks.Add(track)

	stream := NewStream()
	stream.AddTrack(index)
	dc.Streams.Add(stream)
	dc.StartTime = 0
	return nil
}

func (d *oggDemuxer) ReadPacket(dc *DemuxContext) (*Packet, error) {
	for {
		payload, pageHeader, err := d.reader.ParseNextPage()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("parse ogg page: %w", err)
		}
		if len(payload) == 0 ||
			bytes.HasPrefix(payload, []byte("OpusHead")) ||
			bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}

		pkt := PacketFromSlice(payload)
		pkt.TrackIndex = 0
		pkt.PTS = d.position
		pkt.DTS = d.position
		pkt.TimeBase = NewRational(1, oggOpusClockRate)
		pkt.Flags |= PacketFlagKey
		if granule := int64(pageHeader.GranulePosition); granule > d.position {
			pkt.Duration = granule - d.position
			d.position = granule
		}
		return pkt, nil
	}
}

// Seek is not available: the pion reader is forward-only.
func (d *oggDemuxer) Seek(dc *DemuxContext, trackIndex int, timestampUsec int64, flags SeekFlags) error {
	return fmt.Errorf("ogg seek: %w", ErrNotImplemented)
}
