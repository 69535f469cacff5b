// IVF container backend for VP8, VP9 and AV1 elementary streams.
package mediakit

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

const (
	ivfHeaderSize      = 32
	ivfFrameHeaderSize = 12
	ivfTimebaseDen     = 90000
)

func init() {
	RegisterMuxer("ivf", func() Muxer { return &ivfMuxer{} }, "ivf")
	RegisterDemuxer("ivf", func() Demuxer { return &ivfDemuxer{} }, "ivf")
}

func ivfFourCC(id CodecID) string {
	switch id {
	case CodecIDVP8:
		return "VP80"
	case CodecIDVP9:
		return "VP90"
	case CodecIDAV1:
		return "AV01"
	default:
		return ""
	}
}

func ivfCodec(fourCC string) CodecID {
	switch fourCC {
	case "VP80":
		return CodecIDVP8
	case "VP90":
		return CodecIDVP9
	case "AV01":
		return CodecIDAV1
	default:
		return CodecIDNone
	}
}

// ivfMuxer writes the fixed 32 byte file header and 12 byte frame
// headers. Frame timestamps run on a 90 kHz clock. The pion reader
// parses the same layout back.
type ivfMuxer struct {
	frameCount uint32
}

func (m *ivfMuxer) WriteHeader(mc *MuxContext) error {
	if mc.Tracks.Len() != 1 {
		return fmt.Errorf("ivf holds one video track, got %d: %w", mc.Tracks.Len(), ErrUnsupported)
	}
	track := mc.Tracks.Get(0)
	fourCC := ivfFourCC(track.CodecID)
	if fourCC == "" {
		return fmt.Errorf("ivf muxing of %s: %w", track.CodecID, ErrUnsupported)
	}
	if track.Params == nil || track.Params.Video == nil ||
		track.Params.Video.Width <= 0 || track.Params.Video.Height <= 0 {
		return fmt.Errorf("ivf track needs frame geometry: %w", ErrInvalidParameter)
	}

	header := make([]byte, ivfHeaderSize)
	copy(header[0:], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0) // version
	binary.LittleEndian.PutUint16(header[6:], ivfHeaderSize)
	copy(header[8:], fourCC)
	binary.LittleEndian.PutUint16(header[12:], uint16(track.Params.Video.Width))
	binary.LittleEndian.PutUint16(header[14:], uint16(track.Params.Video.Height))
	binary.LittleEndian.PutUint32(header[16:], ivfTimebaseDen)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], 0) // frame count, fixed up in the trailer

	if _, err := mc.Writer().Write(header); err != nil {
		return fmt.Errorf("write ivf header: %w", err)
	}
	return nil
}

func (m *ivfMuxer) WritePacket(mc *MuxContext, pkt *Packet) error {
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
	ts = Rescale(ts, tb, Rational{Num: 1, Den: ivfTimebaseDen})

	header := make([]byte, ivfFrameHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], uint32(len(pkt.Data)))
	binary.LittleEndian.PutUint64(header[4:], uint64(ts))
	if _, err := mc.Writer().Write(header); err != nil {
		return fmt.Errorf("write ivf frame header: %w", err)
	}
	if _, err := mc.Writer().Write(pkt.Data); err != nil {
		return fmt.Errorf("write ivf frame: %w", err)
	}
	m.frameCount++
	return nil
}

// WriteTrailer patches the frame count when the output can seek.
func (m *ivfMuxer) WriteTrailer(mc *MuxContext) error {
	ws, ok := mc.Writer().(io.WriteSeeker)
	if !ok {
		return nil
	}
	if _, err := ws.Seek(24, io.SeekStart); err != nil {
		return fmt.Errorf("seek to frame count: %w", err)
	}
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], m.frameCount)
	if _, err := ws.Write(count[:]); err != nil {
		return fmt.Errorf("write frame count: %w", err)
	}
	if _, err := ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek back: %w", err)
	}
	return nil
}

type ivfDemuxer struct {
	reader *ivfreader.IVFReader
	codec  CodecID
	tb     Rational
}

func (d *ivfDemuxer) ReadHeader(dc *DemuxContext) error {
	reader, header, err := ivfreader.NewWith(dc.Reader())
	if err != nil {
		return fmt.Errorf("parse ivf header: %w", err)
	}
	codec := ivfCodec(header.FourCC)
	if codec == CodecIDNone {
		return fmt.Errorf("ivf fourcc %q: %w", header.FourCC, ErrUnsupported)
	}
	d.reader = reader
	d.codec = codec
	d.tb = NewRational(int64(header.TimebaseNumerator), int64(header.TimebaseDenominator))
	if d.tb.IsZero() {
		d.tb = NewRational(1, ivfTimebaseDen)
	}

	params := VideoParameters{Width: int(header.Width), Height: int(header.Height)}
	track := NewTrack(codec, NewVideoDecoderParameters(params, DecoderParameters{}))
	track.TimeBase = d.tb
	track.StartTime = 0
	index := dc.Tracks.Add(track)

	stream := NewStream()
	stream.AddTrack(index)
	dc.Streams.Add(stream)
	dc.StartTime = 0
	return nil
}

func (d *ivfDemuxer) ReadPacket(dc *DemuxContext) (*Packet, error) {
	payload, frameHeader, err := d.reader.ParseNextFrame()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("parse ivf frame: %w", err)
	}

	pkt := PacketFromSlice(payload)
	pkt.TrackIndex = 0
	pkt.PTS = int64(frameHeader.Timestamp)
	pkt.DTS = pkt.PTS
	pkt.TimeBase = d.tb
	if DetectKeyframe(d.codec, payload) {
		pkt.Flags |= PacketFlagKey
	}
	return pkt, nil
}

// Seek is not available: the pion reader is forward-only.
func (d *ivfDemuxer) Seek(dc *DemuxContext, trackIndex int, timestampUsec int64, flags SeekFlags) error {
	return fmt.Errorf("ivf seek: %w", ErrNotImplemented)
}
