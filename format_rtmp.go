package mediakit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"strings"

	flvtag "github.com/yutopp/go-flv/tag"
	rtmp "github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

func init() {
	RegisterMuxer("rtmp", func() Muxer { return newRTMPMuxer() })
}

const (
	rtmpDefaultPort = "1935"
	rtmpChunkSize   = 4096

	// Chunk stream assignment follows the usual publisher layout.
	rtmpDataChunkStreamID  = 4
	rtmpAudioChunkStreamID = 5
	rtmpVideoChunkStreamID = 6
)

// rtmpTimeBase is the millisecond clock RTMP messages run on.
var rtmpTimeBase = Rational{Num: 1, Den: 1000}

// rtmpMuxer publishes H264 and AAC packets to an RTMP server as FLV
// tags. It is write only; the destination comes from the "url" option
// (rtmp://host[:port]/app/stream) rather than the context writer, and
// the connection is dialed when the header is written.
type rtmpMuxer struct {
	url    string
	client *rtmp.ClientConn
	stream *rtmp.Stream

	videoIndex int
	audioIndex int

	videoConfig     []byte
	videoConfigSent bool
	soundType       flvtag.SoundType
}

func newRTMPMuxer() *rtmpMuxer {
	return &rtmpMuxer{videoIndex: -1, audioIndex: -1}
}

func (m *rtmpMuxer) SetOption(key string, value any) error {
	if key != "url" {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("rtmp url %v: %w", value, ErrInvalidParameter)
	}
	m.url = s
	return nil
}

func (m *rtmpMuxer) WriteHeader(mc *MuxContext) error {
	if m.url == "" {
		return fmt.Errorf("rtmp muxer needs a \"url\" option: %w", ErrInvalidParameter)
	}
	for i, track := range mc.Tracks.Tracks() {
		switch track.CodecID {
		case CodecIDH264:
			if m.videoIndex >= 0 {
				return fmt.Errorf("rtmp carries one video track: %w", ErrUnsupported)
			}
			m.videoIndex = i
		case CodecIDAAC:
			if m.audioIndex >= 0 {
				return fmt.Errorf("rtmp carries one audio track: %w", ErrUnsupported)
			}
			m.audioIndex = i
		default:
			return fmt.Errorf("rtmp muxing of %s: %w", track.CodecID, ErrUnsupported)
		}
	}
	if m.videoIndex < 0 && m.audioIndex < 0 {
		return fmt.Errorf("rtmp muxer needs a track: %w", ErrInvalidParameter)
	}

	addr, app, name, tcURL, err := splitRTMPURL(m.url)
	if err != nil {
		return err
	}
	client, err := rtmp.Dial("rtmp", addr, &rtmp.ConnConfig{})
	if err != nil {
		return fmt.Errorf("rtmp dial %s: %w", addr, err)
	}
	if err := client.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:      app,
			Type:     "nonprivate",
			FlashVer: "FMLE/3.0 (compatible)",
			TCURL:    tcURL,
		},
	}); err != nil {
		client.Close()
		return fmt.Errorf("rtmp connect %s: %w", app, err)
	}
	stream, err := client.CreateStream(nil, rtmpChunkSize)
	if err != nil {
		client.Close()
		return fmt.Errorf("rtmp create stream: %w", err)
	}
	if err := stream.Publish(&rtmpmsg.NetStreamPublish{
		PublishingName: name,
		PublishingType: "live",
	}); err != nil {
		client.Close()
		return fmt.Errorf("rtmp publish %s: %w", name, err)
	}
	m.client = client
	m.stream = stream
	Logger.Debug().Str("addr", addr).Str("app", app).Str("stream", name).Msg("rtmp publish started")

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

// trackExtraData returns the track's out of band codec configuration,
// nil when the parameters do not carry one.
func trackExtraData(track *Track) []byte {
	if track.Params == nil || track.Params.Decoder == nil {
		return nil
	}
	return track.Params.Decoder.ExtraData
}

// writeMetadata publishes the onMetaData script tag most servers and
// players key stream properties from.
func (m *rtmpMuxer) writeMetadata(mc *MuxContext) error {
	meta := flvMetadata(mc, m.videoIndex, m.audioIndex)
	buf := new(bytes.Buffer)
	enc := rtmpmsg.NewAMFEncoder(buf, rtmpmsg.EncodingTypeAMF0)
	if err := rtmpmsg.EncodeBodyAnyValues(enc, "@setDataFrame", "onMetaData", meta); err != nil {
		return fmt.Errorf("rtmp metadata: %w", err)
	}
	return m.stream.Write(rtmpDataChunkStreamID, 0, &rtmpmsg.DataMessage{
		Name:     "@setDataFrame",
		Encoding: rtmpmsg.EncodingTypeAMF0,
		Body:     buf,
	})
}

func (m *rtmpMuxer) writeAudioConfig(track *Track) error {
	asc, soundType, err := aacTrackConfig(track)
	if err != nil {
		return err
	}
	m.soundType = soundType
	return m.writeAudioTag(&flvtag.AudioData{
		SoundFormat:   flvtag.SoundFormatAAC,
		SoundRate:     flvtag.SoundRate44kHz,
		SoundSize:     flvtag.SoundSize16Bit,
		SoundType:     m.soundType,
		AACPacketType: flvtag.AACPacketTypeSequenceHeader,
		Data:          bytes.NewReader(asc),
	}, 0)
}

func (m *rtmpMuxer) WritePacket(mc *MuxContext, pkt *Packet) error {
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
	dtsMs := Rescale(dts, tb, rtmpTimeBase)
	ptsMs := dtsMs
	if pkt.PTS != NoTimestamp {
		ptsMs = Rescale(pkt.PTS, tb, rtmpTimeBase)
	}

	switch pkt.TrackIndex {
	case m.videoIndex:
		return m.writeVideo(pkt, dtsMs, ptsMs)
	case m.audioIndex:
		return m.writeAudioTag(&flvtag.AudioData{
			SoundFormat:   flvtag.SoundFormatAAC,
			SoundRate:     flvtag.SoundRate44kHz,
			SoundSize:     flvtag.SoundSize16Bit,
			SoundType:     m.soundType,
			AACPacketType: flvtag.AACPacketTypeRaw,
			Data:          bytes.NewReader(pkt.Data),
		}, dtsMs)
	}
	return nil
}

func (m *rtmpMuxer) writeVideo(pkt *Packet, dtsMs, ptsMs int64) error {
	if !m.videoConfigSent {
		cfg := m.videoConfig
		if cfg == nil {
			// No out of band parameter sets. Lift them from the
			// stream itself, which in-band encoders put in front
			// of the first keyframe.
			cfg = avcConfigRecord(pkt.Data)
		}
		if cfg == nil {
			return fmt.Errorf("h264 stream carries no SPS and PPS: %w", ErrInvalidParameter)
		}
		if err := m.writeVideoTag(&flvtag.VideoData{
			FrameType:     flvtag.FrameTypeKeyFrame,
			CodecID:       flvtag.CodecIDAVC,
			AVCPacketType: flvtag.AVCPacketTypeSequenceHeader,
			Data:          bytes.NewReader(cfg),
		}, dtsMs); err != nil {
			return err
		}
		m.videoConfigSent = true
	}
	frameType := flvtag.FrameTypeInterFrame
	if pkt.Keyframe() {
		frameType = flvtag.FrameTypeKeyFrame
	}
	return m.writeVideoTag(&flvtag.VideoData{
		FrameType:       frameType,
		CodecID:         flvtag.CodecIDAVC,
		AVCPacketType:   flvtag.AVCPacketTypeNALU,
		CompositionTime: int32(ptsMs - dtsMs),
		Data:            bytes.NewReader(annexBToAVCC(pkt.Data)),
	}, dtsMs)
}

func (m *rtmpMuxer) writeVideoTag(data *flvtag.VideoData, dtsMs int64) error {
	buf := new(bytes.Buffer)
	if err := flvtag.EncodeVideoData(buf, data); err != nil {
		return err
	}
	return m.stream.Write(rtmpVideoChunkStreamID, uint32(dtsMs), &rtmpmsg.VideoMessage{Payload: buf})
}

func (m *rtmpMuxer) writeAudioTag(data *flvtag.AudioData, dtsMs int64) error {
	buf := new(bytes.Buffer)
	if err := flvtag.EncodeAudioData(buf, data); err != nil {
		return err
	}
	return m.stream.Write(rtmpAudioChunkStreamID, uint32(dtsMs), &rtmpmsg.AudioMessage{Payload: buf})
}

func (m *rtmpMuxer) WriteTrailer(mc *MuxContext) error {
	var first error
	if m.stream != nil {
		if err := m.stream.Close(); err != nil {
			first = err
		}
		m.stream = nil
	}
	if m.client != nil {
		if err := m.client.Close(); err != nil && first == nil {
			first = err
		}
		m.client = nil
	}
	return first
}

// splitRTMPURL breaks rtmp://host[:port]/app/stream into the dial
// address, application name, stream key and the tcUrl sent on connect.
func splitRTMPURL(raw string) (addr, app, name, tcURL string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", "", fmt.Errorf("rtmp url %q: %w", raw, err)
	}
	if u.Scheme != "rtmp" {
		return "", "", "", "", fmt.Errorf("rtmp url scheme %q: %w", u.Scheme, ErrInvalidParameter)
	}
	addr = u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), rtmpDefaultPort)
	}
	path := strings.Trim(u.Path, "/")
	slash := strings.LastIndex(path, "/")
	if slash <= 0 {
		return "", "", "", "", fmt.Errorf("rtmp url %q needs an /app/stream path: %w", raw, ErrInvalidParameter)
	}
	return addr, path[:slash], path[slash+1:], u.Scheme + "://" + u.Host + "/" + path[:slash], nil
}

// startCodeLen reports the length of the Annex B start code at the
// front of data, 0 when there is none.
func startCodeLen(data []byte) int {
	if len(data) >= 3 && data[0] == 0 && data[1] == 0 {
		if data[2] == 1 {
			return 3
		}
		if len(data) >= 4 && data[2] == 0 && data[3] == 1 {
			return 4
		}
	}
	return 0
}

// splitAnnexB returns the NALUs between start codes, nil when data
// does not begin with one.
func splitAnnexB(data []byte) [][]byte {
	if startCodeLen(data) == 0 {
		return nil
	}
	var nalus [][]byte
	begin := -1
	for i := 0; i < len(data); {
		n := startCodeLen(data[i:])
		if n == 0 {
			i++
			continue
		}
		if begin >= 0 && i > begin {
			nalus = append(nalus, data[begin:i])
		}
		i += n
		begin = i
	}
	if begin >= 0 && begin < len(data) {
		nalus = append(nalus, data[begin:])
	}
	return nalus
}

// annexBToAVCC rewrites start code delimited NALUs into the length
// prefixed layout FLV tags carry. Payloads that do not open with a
// start code pass through untouched.
func annexBToAVCC(data []byte) []byte {
	nalus := splitAnnexB(data)
	if nalus == nil {
		return data
	}
	size := 0
	for _, nalu := range nalus {
		size += 4 + len(nalu)
	}
	out := make([]byte, 0, size)
	var length [4]byte
	for _, nalu := range nalus {
		binary.BigEndian.PutUint32(length[:], uint32(len(nalu)))
		out = append(out, length[:]...)
		out = append(out, nalu...)
	}
	return out
}

// avcConfigRecord builds an AVCDecoderConfigurationRecord from
// extradata. A record passes through as is; Annex B parameter sets are
// wrapped into one. Nil when either set is missing.
func avcConfigRecord(extra []byte) []byte {
	if len(extra) > 0 && extra[0] == 1 {
		return extra
	}
	var sps, pps []byte
	for _, nalu := range splitAnnexB(extra) {
		if len(nalu) == 0 {
			continue
		}
		switch nalu[0] & 0x1F {
		case 7:
			sps = nalu
		case 8:
			pps = nalu
		}
	}
	if len(sps) < 4 || len(pps) == 0 {
		return nil
	}
	cfg := make([]byte, 0, 11+len(sps)+len(pps))
	// Version, profile, compatibility and level from the SPS, four
	// byte NALU lengths, one set of each parameter type.
	cfg = append(cfg, 1, sps[1], sps[2], sps[3], 0xFF, 0xE1)
	cfg = append(cfg, byte(len(sps)>>8), byte(len(sps)))
	cfg = append(cfg, sps...)
	cfg = append(cfg, 1)
	cfg = append(cfg, byte(len(pps)>>8), byte(len(pps)))
	cfg = append(cfg, pps...)
	return cfg
}

var aacSampleRateIndexes = map[int]int{
	96000: 0, 88200: 1, 64000: 2, 48000: 3, 44100: 4, 32000: 5,
	24000: 6, 22050: 7, 16000: 8, 12000: 9, 11025: 10, 8000: 11, 7350: 12,
}

// aacAudioSpecificConfig builds a two byte AAC-LC config for tracks
// whose parameters carry no out of band one.
func aacAudioSpecificConfig(sampleRate, channels int) ([]byte, error) {
	idx, ok := aacSampleRateIndexes[sampleRate]
	if !ok {
		return nil, fmt.Errorf("aac sample rate %d: %w", sampleRate, ErrUnsupported)
	}
	const objectTypeLC = 2
	return []byte{
		objectTypeLC<<3 | byte(idx>>1),
		byte(idx&1)<<7 | byte(channels&0x0F)<<3,
	}, nil
}
