// WAV container backend: PCM muxing through the go-audio encoder and
// a streaming RIFF demux.
package mediakit

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

// WAVE format tags.
const (
	wavFormatPCM  = 1
	wavFormatALaw = 6
	wavFormatULaw = 7
)

func init() {
	RegisterMuxer("wav", func() Muxer { return &wavMuxer{} }, "wav", "wave")
	RegisterDemuxer("wav", func() Demuxer { return &wavDemuxer{} }, "wav", "wave")
}

type wavMuxer struct {
	enc      *wav.Encoder
	rate     int
	channels int
	scratch  []int
}

// WriteHeader validates the single S16 track and prepares the encoder.
// The RIFF sizes are sealed by WriteTrailer.
func (m *wavMuxer) WriteHeader(mc *MuxContext) error {
	if mc.Tracks.Len() != 1 {
		return fmt.Errorf("wav holds one audio track, got %d: %w", mc.Tracks.Len(), ErrUnsupported)
	}
	track := mc.Tracks.Get(0)
	if track.CodecID != CodecIDPCMS16 {
		return fmt.Errorf("wav muxing of %s: %w", track.CodecID, ErrUnsupported)
	}
	if track.Params == nil || track.Params.Audio == nil {
		return fmt.Errorf("wav track parameters: %w", ErrInvalidParameter)
	}
	rate := track.Params.Audio.SampleRate
	channels := track.Params.Audio.Channels()
	if rate <= 0 || channels <= 0 {
		return fmt.Errorf("wav track needs sample rate and channels: %w", ErrInvalidParameter)
	}

	ws, ok := mc.Writer().(io.WriteSeeker)
	if !ok {
		return fmt.Errorf("wav output needs seeking: %w", ErrUnsupported)
	}
	m.rate, m.channels = rate, channels
	m.enc = wav.NewEncoder(ws, rate, 16, channels, wavFormatPCM)
	return nil
}

func (m *wavMuxer) WritePacket(mc *MuxContext, pkt *Packet) error {
	if len(pkt.Data)%2 != 0 {
		return fmt.Errorf("odd S16 payload of %d bytes: %w", len(pkt.Data), ErrInvalidParameter)
	}
	n := len(pkt.Data) / 2
	if cap(m.scratch) < n {
		m.scratch = make([]int, n)
	}
	samples := m.scratch[:n]
	for i := 0; i < n; i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pkt.Data[2*i:])))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: m.channels, SampleRate: m.rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := m.enc.Write(buf); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

func (m *wavMuxer) WriteTrailer(mc *MuxContext) error {
	if err := m.enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

type wavDemuxer struct {
	parser       *riff.Parser
	data         *riff.Chunk
	codec        CodecID
	rate         int
	channels     int
	blockAlign   int
	frameSamples int
	samplePos    int64
}

// ReadHeader walks the RIFF chunks up to the data chunk. The fmt chunk
// decides the track codec: 16-bit PCM plus the two G.711 companding
// tags telephony recordings use.
func (d *wavDemuxer) ReadHeader(dc *DemuxContext) error {
	d.parser = riff.New(dc.Reader())
	if err := d.parser.ParseHeaders(); err != nil {
		return fmt.Errorf("parse riff header: %w", err)
	}

	sawFmt := false
	for {
		chunk, err := d.parser.NextChunk()
		if err != nil {
			return fmt.Errorf("walk riff chunks: %w", err)
		}
		if chunk.ID == riff.FmtID {
			if err := chunk.DecodeWavHeader(d.parser); err != nil {
				return fmt.Errorf("decode fmt chunk: %w", err)
			}
			sawFmt = true
			continue
		}
		if chunk.ID == riff.DataFormatID {
			if !sawFmt {
				return fmt.Errorf("data chunk before fmt: %w", ErrInvalidParameter)
			}
			d.data = chunk
			break
		}
		chunk.Drain()
	}

	switch {
	case d.parser.WavAudioFormat == wavFormatPCM && d.parser.BitsPerSample == 16:
		d.codec = CodecIDPCMS16
	case d.parser.WavAudioFormat == wavFormatALaw && d.parser.BitsPerSample == 8:
		d.codec = CodecIDG711A
	case d.parser.WavAudioFormat == wavFormatULaw && d.parser.BitsPerSample == 8:
		d.codec = CodecIDG711U
	default:
		return fmt.Errorf("wav format tag %d at %d bits: %w",
			d.parser.WavAudioFormat, d.parser.BitsPerSample, ErrUnsupported)
	}

	d.rate = int(d.parser.SampleRate)
	d.channels = int(d.parser.NumChannels)
	if d.rate <= 0 || d.channels <= 0 {
		return fmt.Errorf("wav header rate %d channels %d: %w", d.rate, d.channels, ErrInvalidParameter)
	}
	d.blockAlign = d.channels * int(d.parser.BitsPerSample) / 8
	// 20 ms per packet.
	d.frameSamples = d.rate / 50
	if d.frameSamples == 0 {
		d.frameSamples = 1
	}

	layout, err := DefaultChannelLayout(d.channels)
	if err != nil {
		return err
	}
	params := AudioParameters{SampleRate: d.rate, Layout: layout}
	if d.codec == CodecIDPCMS16 {
		params.Format = SampleFormatS16
	}
	track := NewTrack(d.codec, NewAudioDecoderParameters(params, DecoderParameters{}))
	track.TimeBase = NewRational(1, int64(d.rate))
	track.StartTime = 0
	if d.data.Size > 0 && d.blockAlign > 0 {
		samples := int64(d.data.Size) / int64(d.blockAlign)
		track.Duration = samples
		dc.Duration = Rescale(samples, track.TimeBase, DefaultTimeBase)
	}
	dc.StartTime = 0
	index := dc.Tracks.Add(track)

	stream := NewStream()
	stream.AddTrack(index)
	dc.Streams.Add(stream)
	return nil
}

// ReadPacket slices the data chunk into 20 ms packets timed in sample
// units.
func (d *wavDemuxer) ReadPacket(dc *DemuxContext) (*Packet, error) {
	if d.data == nil {
		return nil, io.EOF
	}

	payload := make([]byte, d.frameSamples*d.blockAlign)
	total := 0
	var readErr error
	for total < len(payload) {
		n, err := d.data.Read(payload[total:])
		total += n
		if err != nil {
			readErr = err
			break
		}
	}
	if readErr == io.EOF {
		d.data = nil
	} else if readErr != nil {
		return nil, fmt.Errorf("read wav data: %w", readErr)
	}

	total -= total % d.blockAlign
	if total == 0 {
		return nil, io.EOF
	}

	samples := int64(total / d.blockAlign)
	pkt := PacketFromSlice(payload[:total])
	pkt.TrackIndex = 0
	pkt.PTS = d.samplePos
	pkt.DTS = d.samplePos
	pkt.Duration = samples
	pkt.TimeBase = NewRational(1, int64(d.rate))
	pkt.Flags |= PacketFlagKey
	d.samplePos += samples
	return pkt, nil
}

// Seek is not available: the RIFF parser is forward-only.
func (d *wavDemuxer) Seek(dc *DemuxContext, trackIndex int, timestampUsec int64, flags SeekFlags) error {
	return fmt.Errorf("wav seek: %w", ErrNotImplemented)
}
