package mediakit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	flv "github.com/yutopp/go-flv"
	flvtag "github.com/yutopp/go-flv/tag"
)

func init() {
	RegisterMuxer("flv", func() Muxer { return &flvMuxer{videoIndex: -1, audioIndex: -1} }, "flv")
	RegisterDemuxer("flv", func() Demuxer { return &flvDemuxer{videoIndex: -1, audioIndex: -1} }, "flv")
}

// flvTimeBase is the millisecond clock FLV tags run on.
var flvTimeBase = Rational{Num: 1, Den: 1000}

// flvMuxer writes H264 and AAC packets as an FLV file. The tag layout
// matches what the RTMP muxer publishes, so a captured stream and a
// local recording stay interchangeable.
type flvMuxer struct {
	enc *flv.Encoder

	videoIndex int
	audioIndex int

	videoConfig     []byte
	videoConfigSent bool
	soundType       flvtag.SoundType
}

func (m *flvMuxer) WriteHeader(mc *MuxContext) error {
	var flags flv.Flags
	for i, track := range mc.Tracks.Tracks() {
		switch track.CodecID {
		case CodecIDH264:
			if m.videoIndex >= 0 {
				return fmt.Errorf("flv carries one video track: %w", ErrUnsupported)
			}
			m.videoIndex = i
			flags |= flv.FlagsVideo
		case CodecIDAAC:
			if m.audioIndex >= 0 {
				return fmt.Errorf("flv carries one audio track: %w", ErrUnsupported)
			}
			m.audioIndex = i
			flags |= flv.FlagsAudio
		default:
			return fmt.Errorf("flv muxing of %s: %w", track.CodecID, ErrUnsupported)
		}
	}
	if m.videoIndex < 0 && m.audioIndex < 0 {
		return fmt.Errorf("flv muxer needs a track: %w", ErrInvalidParameter)
	}

	enc, err := flv.NewEncoder(mc.Writer(), flags)
	if err != nil {
		return fmt.Errorf("flv header: %w", err)
	}
	m.enc = enc

	if err := m.writeMetadata(mc); err != nil {
		return err
	}
	if m.videoIndex >= 0 {
		if extra := trackExtraData(mc.Tracks.Get(m.videoIndex)); len(extra) > 0 {
			m.videoConfig = avcConfigRecord(extra)
		}
	}
	if m.audioIndex >= 0 {
		if err := m.writeAudioConfig(mc.Tracks.Get(m.audioIndex)); err != nil {
			return err
		}
	}
	return nil
}

// aacTrackConfig resolves the AudioSpecificConfig and FLV channel
// marker for an AAC track, synthesizing the config from the track
// parameters when none is attached.
func aacTrackConfig(track *Track) ([]byte, flvtag.SoundType, error) {
	asc := trackExtraData(track)
	if len(asc) == 0 {
		if track.Params == nil || track.Params.Audio == nil {
			return nil, 0, fmt.Errorf("aac track needs an AudioSpecificConfig or audio parameters: %w", ErrInvalidParameter)
		}
		var err error
		asc, err = aacAudioSpecificConfig(track.Params.Audio.SampleRate, track.Params.Audio.Channels())
		if err != nil {
			return nil, 0, err
		}
	}
	soundType := flvtag.SoundTypeMono
	switch {
	case track.Params != nil && track.Params.Audio != nil:
		if track.Params.Audio.Channels() >= 2 {
			soundType = flvtag.SoundTypeStereo
		}
	case len(asc) >= 2 && (asc[1]>>3)&0x0F >= 2:
		// Channel configuration straight from the config bits.
		soundType = flvtag.SoundTypeStereo
	}
	return asc, soundType, nil
}

func (m *flvMuxer) writeMetadata(mc *MuxContext) error {
	return m.enc.Encode(&flvtag.FlvTag{
		TagType: flvtag.TagTypeScriptData,
		Data: &flvtag.ScriptData{
			Objects: map[string]any{"onMetaData": flvMetadata(mc, m.videoIndex, m.audioIndex)},
		},
	})
}

// flvMetadata assembles the onMetaData properties players and ingest
// servers key stream dimensions from. AMF0 numbers are float64.
func flvMetadata(mc *MuxContext, videoIndex, audioIndex int) map[string]any {
	meta := map[string]any{"duration": float64(0)}
	if videoIndex >= 0 {
		meta["videocodecid"] = float64(flvtag.CodecIDAVC)
		if p := mc.Tracks.Get(videoIndex).Params; p != nil && p.Video != nil {
			meta["width"] = float64(p.Video.Width)
			meta["height"] = float64(p.Video.Height)
			if !p.Video.FrameRate.IsZero() {
				meta["framerate"] = p.Video.FrameRate.Float()
			}
		}
	}
	if audioIndex >= 0 {
		meta["audiocodecid"] = float64(flvtag.SoundFormatAAC)
		if p := mc.Tracks.Get(audioIndex).Params; p != nil && p.Audio != nil {
			meta["audiosamplerate"] = float64(p.Audio.SampleRate)
			meta["stereo"] = p.Audio.Channels() == 2
		}
	}
	return meta
}

func (m *flvMuxer) writeAudioConfig(track *Track) error {
	asc, soundType, err := aacTrackConfig(track)
	if err != nil {
		return err
	}
	m.soundType = soundType
	return m.enc.Encode(&flvtag.FlvTag{
		TagType: flvtag.TagTypeAudio,
		Data: &flvtag.AudioData{
			SoundFormat:   flvtag.SoundFormatAAC,
			SoundRate:     flvtag.SoundRate44kHz,
			SoundSize:     flvtag.SoundSize16Bit,
			SoundType:     m.soundType,
			AACPacketType: flvtag.AACPacketTypeSequenceHeader,
			Data:          bytes.NewReader(asc),
		},
	})
}

func (m *flvMuxer) WritePacket(mc *MuxContext, pkt *Packet) error {
	track := mc.Tracks.Get(pkt.TrackIndex)
	tb := pkt.TimeBase
	if tb.IsZero() {
		tb = track.TimeBase
	}
	dts := pkt.DTS
	if dts == NoTimestamp {
		dts = pkt.PTS
	}
	if dts == NoTimestamp {
		dts = 0
	}
	dtsMs := Rescale(dts, tb, flvTimeBase)
	ptsMs := dtsMs
	if pkt.PTS != NoTimestamp {
		ptsMs = Rescale(pkt.PTS, tb, flvTimeBase)
	}

	switch pkt.TrackIndex {
	case m.videoIndex:
		return m.writeVideo(pkt, dtsMs, ptsMs)
	case m.audioIndex:
		return m.enc.Encode(&flvtag.FlvTag{
			TagType:   flvtag.TagTypeAudio,
			Timestamp: uint32(dtsMs),
			Data: &flvtag.AudioData{
				SoundFormat:   flvtag.SoundFormatAAC,
				SoundRate:     flvtag.SoundRate44kHz,
				SoundSize:     flvtag.SoundSize16Bit,
				SoundType:     m.soundType,
				AACPacketType: flvtag.AACPacketTypeRaw,
				Data:          bytes.NewReader(pkt.Data),
			},
		})
	}
	return nil
}

func (m *flvMuxer) writeVideo(pkt *Packet, dtsMs, ptsMs int64) error {
	if !m.videoConfigSent {
		cfg := m.videoConfig
		if cfg == nil {
			cfg = avcConfigRecord(pkt.Data)
		}
		if cfg == nil {
			return fmt.Errorf("h264 stream carries no SPS and PPS: %w", ErrInvalidParameter)
		}
		if err := m.enc.Encode(&flvtag.FlvTag{
			TagType:   flvtag.TagTypeVideo,
			Timestamp: uint32(dtsMs),
			Data: &flvtag.VideoData{
				FrameType:     flvtag.FrameTypeKeyFrame,
				CodecID:       flvtag.CodecIDAVC,
				AVCPacketType: flvtag.AVCPacketTypeSequenceHeader,
				Data:          bytes.NewReader(cfg),
			},
		}); err != nil {
			return err
		}
		m.videoConfigSent = true
	}
	frameType := flvtag.FrameTypeInterFrame
	if pkt.Keyframe() {
		frameType = flvtag.FrameTypeKeyFrame
	}
	return m.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeVideo,
		Timestamp: uint32(dtsMs),
		Data: &flvtag.VideoData{
			FrameType:       frameType,
			CodecID:         flvtag.CodecIDAVC,
			AVCPacketType:   flvtag.AVCPacketTypeNALU,
			CompositionTime: int32(ptsMs - dtsMs),
			Data:            bytes.NewReader(annexBToAVCC(pkt.Data)),
		},
	})
}

// FLV files end with their last tag.
func (m *flvMuxer) WriteTrailer(mc *MuxContext) error { return nil }

// flvDemuxer reads an FLV file back into H264 and AAC packets. Video
// payloads come out as Annex B NALUs.
type flvDemuxer struct {
	dec *flv.Decoder

	videoIndex int
	audioIndex int

	// Tags decoded while probing for tracks, replayed before the
	// decoder is read again.
	queued []*flvtag.FlvTag
}

// flvProbeTagLimit bounds how far track discovery reads into a file
// whose leading tags are one sided.
const flvProbeTagLimit = 64

func (d *flvDemuxer) ReadHeader(dc *DemuxContext) error {
	dec, err := flv.NewDecoder(dc.Reader())
	if err != nil {
		return fmt.Errorf("flv header: %w", err)
	}
	d.dec = dec

	var meta map[string]any
	for len(d.queued) < flvProbeTagLimit {
		var tag flvtag.FlvTag
		if err := dec.Decode(&tag); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("flv probe: %w", err)
		}
		switch data := tag.Data.(type) {
		case *flvtag.ScriptData:
			if m, ok := data.Objects["onMetaData"].(map[string]any); ok {
				meta = m
			}
			continue
		case *flvtag.AudioData:
			if d.audioIndex < 0 {
				if err := d.addAudioTrack(dc, data, meta); err != nil {
					return err
				}
			}
		case *flvtag.VideoData:
			if d.videoIndex < 0 {
				if err := d.addVideoTrack(dc, data, meta); err != nil {
					return err
				}
			}
		}
		d.queued = append(d.queued, &tag)
		if d.videoIndex >= 0 && d.audioIndex >= 0 {
			break
		}
	}
	if d.videoIndex < 0 && d.audioIndex < 0 {
		return fmt.Errorf("flv file carries no audio or video tags: %w", ErrInvalidParameter)
	}
	if meta != nil {
		for k, v := range meta {
			dc.Metadata[k] = v
		}
		if dur, ok := meta["duration"].(float64); ok && dur > 0 {
			dc.Duration = int64(dur * float64(DefaultTimeBase.Den))
		}
	}
	return nil
}

func (d *flvDemuxer) addAudioTrack(dc *DemuxContext, data *flvtag.AudioData, meta map[string]any) error {
	if data.SoundFormat != flvtag.SoundFormatAAC {
		return fmt.Errorf("flv sound format %d: %w", data.SoundFormat, ErrUnsupported)
	}
	audio := &AudioParameters{Format: SampleFormatS16}
	if rate, ok := meta["audiosamplerate"].(float64); ok {
		audio.SampleRate = int(rate)
	}
	channels := 1
	if data.SoundType == flvtag.SoundTypeStereo {
		channels = 2
	}
	if layout, err := DefaultChannelLayout(channels); err == nil {
		audio.Layout = layout
	}
	track := NewTrack(CodecIDAAC, &CodecParameters{Audio: audio, Decoder: &DecoderParameters{}})
	track.TimeBase = flvTimeBase
	d.audioIndex = dc.Tracks.Add(track)
	return nil
}

func (d *flvDemuxer) addVideoTrack(dc *DemuxContext, data *flvtag.VideoData, meta map[string]any) error {
	if data.CodecID != flvtag.CodecIDAVC {
		return fmt.Errorf("flv video codec %d: %w", data.CodecID, ErrUnsupported)
	}
	video := &VideoParameters{Format: PixelFormatI420}
	if w, ok := meta["width"].(float64); ok {
		video.Width = int(w)
	}
	if h, ok := meta["height"].(float64); ok {
		video.Height = int(h)
	}
	track := NewTrack(CodecIDH264, &CodecParameters{Video: video, Decoder: &DecoderParameters{}})
	track.TimeBase = flvTimeBase
	d.videoIndex = dc.Tracks.Add(track)
	return nil
}

func (d *flvDemuxer) ReadPacket(dc *DemuxContext) (*Packet, error) {
	for {
		var tag *flvtag.FlvTag
		if len(d.queued) > 0 {
			tag = d.queued[0]
			d.queued = d.queued[1:]
		} else {
			tag = &flvtag.FlvTag{}
			if err := d.dec.Decode(tag); err != nil {
				if errors.Is(err, io.EOF) {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("flv tag: %w", err)
			}
		}

		switch data := tag.Data.(type) {
		case *flvtag.AudioData:
			if d.audioIndex < 0 || data.AACPacketType == flvtag.AACPacketTypeSequenceHeader {
				d.stashAudioConfig(dc, data)
				continue
			}
			return d.audioPacket(tag, data)
		case *flvtag.VideoData:
			if d.videoIndex < 0 {
				continue
			}
			if data.AVCPacketType == flvtag.AVCPacketTypeSequenceHeader {
				d.stashVideoConfig(dc, data)
				continue
			}
			return d.videoPacket(tag, data)
		default:
			continue
		}
	}
}

func (d *flvDemuxer) stashAudioConfig(dc *DemuxContext, data *flvtag.AudioData) {
	if d.audioIndex < 0 {
		return
	}
	asc, err := io.ReadAll(data.Data)
	if err != nil || len(asc) == 0 {
		return
	}
	dc.Tracks.Get(d.audioIndex).Params.Decoder.ExtraData = asc
}

func (d *flvDemuxer) stashVideoConfig(dc *DemuxContext, data *flvtag.VideoData) {
	cfg, err := io.ReadAll(data.Data)
	if err != nil || len(cfg) == 0 {
		return
	}
	dc.Tracks.Get(d.videoIndex).Params.Decoder.ExtraData = cfg
}

func (d *flvDemuxer) audioPacket(tag *flvtag.FlvTag, data *flvtag.AudioData) (*Packet, error) {
	payload, err := io.ReadAll(data.Data)
	if err != nil {
		return nil, fmt.Errorf("flv audio tag: %w", err)
	}
	pkt := PacketFromSlice(payload)
	pkt.TrackIndex = d.audioIndex
	pkt.PTS = int64(tag.Timestamp)
	pkt.DTS = pkt.PTS
	pkt.TimeBase = flvTimeBase
	pkt.Flags |= PacketFlagKey
	return pkt, nil
}

func (d *flvDemuxer) videoPacket(tag *flvtag.FlvTag, data *flvtag.VideoData) (*Packet, error) {
	payload, err := io.ReadAll(data.Data)
	if err != nil {
		return nil, fmt.Errorf("flv video tag: %w", err)
	}
	pkt := PacketFromSlice(avccToAnnexB(payload))
	pkt.TrackIndex = d.videoIndex
	pkt.DTS = int64(tag.Timestamp)
	pkt.PTS = pkt.DTS + int64(data.CompositionTime)
	pkt.TimeBase = flvTimeBase
	if data.FrameType == flvtag.FrameTypeKeyFrame {
		pkt.Flags |= PacketFlagKey
	}
	return pkt, nil
}

// The go-flv decoder is forward only.
func (d *flvDemuxer) Seek(dc *DemuxContext, trackIndex int, timestampUsec int64, flags SeekFlags) error {
	return fmt.Errorf("flv seek: %w", ErrNotImplemented)
}

// avccToAnnexB rewrites length prefixed NALUs into start code delimited
// ones. Payloads that do not parse as length prefixed pass through.
func avccToAnnexB(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	for offset := 0; offset < len(data); {
		if offset+4 > len(data) {
			return data
		}
		length := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if length <= 0 || offset+length > len(data) {
			return data
		}
		out = append(out, 0, 0, 0, 1)
		out = append(out, data[offset:offset+length]...)
		offset += length
	}
	return out
}
