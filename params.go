// Codec parameters shared by decoder and encoder contexts.
package mediakit

// Parameters follow a zero-is-unset convention: a field left at its
// zero value carries no information and keeps the current setting when
// merged into an existing configuration.

// AudioParameters describes the sample layout of a coded audio stream.
type AudioParameters struct {
	Format     SampleFormat
	Samples    int // frame size in samples per channel
	SampleRate int
	Layout     ChannelLayout
}

// Channels returns the configured channel count, 0 when unset.
func (p *AudioParameters) Channels() int { return p.Layout.Channels }

func (p *AudioParameters) update(other *AudioParameters) {
	if other.Format != SampleFormatNone {
		p.Format = other.Format
	}
	if other.Samples > 0 {
		p.Samples = other.Samples
	}
	if other.SampleRate > 0 {
		p.SampleRate = other.SampleRate
	}
	if other.Layout.Channels > 0 {
		p.Layout = other.Layout
	}
}

func (p *AudioParameters) setOption(key string, value any) {
	switch key {
	case "sample_format":
		if v, ok := optionInt(value); ok && SampleFormat(v).Valid() {
			p.Format = SampleFormat(v)
		}
	case "samples":
		if v, ok := optionInt(value); ok && v > 0 {
			p.Samples = int(v)
		}
	case "sample_rate":
		if v, ok := optionInt(value); ok && v > 0 {
			p.SampleRate = int(v)
		}
	case "channels":
		if v, ok := optionInt(value); ok {
			if layout, err := DefaultChannelLayout(int(v)); err == nil {
				p.Layout = layout
			}
		}
	}
}

// VideoParameters describes the geometry and color interpretation of a
// coded video stream.
type VideoParameters struct {
	Format         PixelFormat
	Width          int
	Height         int
	ColorRange     ColorRange
	ColorMatrix    ColorMatrix
	ColorPrimaries ColorPrimaries
	ColorTransfer  ColorTransfer
	ChromaLocation ChromaLocation
	FrameRate      Rational
}

func (p *VideoParameters) update(other *VideoParameters) {
	if other.Format != PixelFormatNone {
		p.Format = other.Format
	}
	if other.Width > 0 {
		p.Width = other.Width
	}
	if other.Height > 0 {
		p.Height = other.Height
	}
	// The zero color values (identity matrix, reserved primaries and
	// transfer) double as unset here.
	if other.ColorRange != ColorRangeUnspecified {
		p.ColorRange = other.ColorRange
	}
	if other.ColorMatrix != ColorMatrixIdentity {
		p.ColorMatrix = other.ColorMatrix
	}
	if other.ColorPrimaries != ColorPrimariesReserved {
		p.ColorPrimaries = other.ColorPrimaries
	}
	if other.ColorTransfer != ColorTransferReserved {
		p.ColorTransfer = other.ColorTransfer
	}
	if other.ChromaLocation != ChromaLocationUnspecified {
		p.ChromaLocation = other.ChromaLocation
	}
	if !other.FrameRate.IsZero() {
		p.FrameRate = other.FrameRate
	}
}

func (p *VideoParameters) setOption(key string, value any) {
	switch key {
	case "pixel_format":
		if v, ok := optionInt(value); ok && PixelFormat(v).Valid() {
			p.Format = PixelFormat(v)
		}
	case "width":
		if v, ok := optionInt(value); ok && v > 0 {
			p.Width = int(v)
		}
	case "height":
		if v, ok := optionInt(value); ok && v > 0 {
			p.Height = int(v)
		}
	case "color_range":
		if v, ok := optionInt(value); ok {
			p.ColorRange = ColorRange(v)
		}
	case "color_matrix":
		if v, ok := optionInt(value); ok {
			p.ColorMatrix = ColorMatrix(v)
		}
	case "color_primaries":
		if v, ok := optionInt(value); ok {
			p.ColorPrimaries = ColorPrimaries(v)
		}
	case "color_transfer":
		if v, ok := optionInt(value); ok {
			p.ColorTransfer = ColorTransfer(v)
		}
	case "chroma_location":
		if v, ok := optionInt(value); ok {
			p.ChromaLocation = ChromaLocation(v)
		}
	}
}

// DecoderParameters configures the decoder side of a codec context.
type DecoderParameters struct {
	// ExtraData carries out-of-band codec configuration, such as an
	// AudioSpecificConfig or an AVC decoder configuration record.
	ExtraData []byte
	// UsePool serves decoded frames from a frame pool owned by the
	// context instead of allocating each one.
	UsePool bool
}

func (p *DecoderParameters) clone() DecoderParameters {
	c := *p
	if p.ExtraData != nil {
		c.ExtraData = append([]byte(nil), p.ExtraData...)
	}
	return c
}

// Pooling is fixed at context creation, so update does not touch it.
func (p *DecoderParameters) update(other *DecoderParameters) {
	if other.ExtraData != nil {
		p.ExtraData = append([]byte(nil), other.ExtraData...)
	}
}

func (p *DecoderParameters) setOption(key string, value any) {
	switch key {
	case "extra_data":
		if v, ok := optionBytes(value); ok {
			p.ExtraData = v
		}
	case "use_pool":
		if v, ok := optionBool(value); ok {
			p.UsePool = v
		}
	}
}

// EncoderParameters configures the encoder side of a codec context.
type EncoderParameters struct {
	BitRate int64 // target bit rate in bits per second
	Profile int   // codec specific profile, 0 picks the codec default
	Level   int   // codec specific level, 0 picks the codec default
	// UsePool serves packet payloads from a buffer pool owned by the
	// context instead of allocating each one.
	UsePool bool
}

func (p *EncoderParameters) update(other *EncoderParameters) {
	if other.BitRate > 0 {
		p.BitRate = other.BitRate
	}
	if other.Profile != 0 {
		p.Profile = other.Profile
	}
	if other.Level != 0 {
		p.Level = other.Level
	}
}

func (p *EncoderParameters) setOption(key string, value any) {
	switch key {
	case "bit_rate":
		if v, ok := optionInt(value); ok && v > 0 {
			p.BitRate = v
		}
	case "profile":
		if v, ok := optionInt(value); ok {
			p.Profile = int(v)
		}
	case "level":
		if v, ok := optionInt(value); ok {
			p.Level = int(v)
		}
	}
}

// CodecParameters carries the configuration for opening a codec
// context. Exactly one of Audio or Video is set, matching the codec's
// media type, and exactly one of Decoder or Encoder, matching its
// direction.
type CodecParameters struct {
	Audio   *AudioParameters
	Video   *VideoParameters
	Decoder *DecoderParameters
	Encoder *EncoderParameters
}

// NewAudioDecoderParameters pairs stream and decoder parameters for an
// audio decoder context.
func NewAudioDecoderParameters(audio AudioParameters, decoder DecoderParameters) *CodecParameters {
	return &CodecParameters{Audio: &audio, Decoder: &decoder}
}

// NewVideoDecoderParameters pairs stream and decoder parameters for a
// video decoder context.
func NewVideoDecoderParameters(video VideoParameters, decoder DecoderParameters) *CodecParameters {
	return &CodecParameters{Video: &video, Decoder: &decoder}
}

// NewAudioEncoderParameters pairs stream and encoder parameters for an
// audio encoder context.
func NewAudioEncoderParameters(audio AudioParameters, encoder EncoderParameters) *CodecParameters {
	return &CodecParameters{Audio: &audio, Encoder: &encoder}
}

// NewVideoEncoderParameters pairs stream and encoder parameters for a
// video encoder context.
func NewVideoEncoderParameters(video VideoParameters, encoder EncoderParameters) *CodecParameters {
	return &CodecParameters{Video: &video, Encoder: &encoder}
}

// MediaType returns the media type the parameters describe.
func (p *CodecParameters) MediaType() MediaType {
	switch {
	case p == nil:
		return MediaTypeUnknown
	case p.Audio != nil:
		return MediaTypeAudio
	case p.Video != nil:
		return MediaTypeVideo
	default:
		return MediaTypeUnknown
	}
}

// OptionHandler is implemented by codecs that act on options at
// runtime, such as a live bit rate change. Context SetOption forwards
// to it after updating the context configuration.
type OptionHandler interface {
	SetOption(key string, value any) error
}

func optionInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > 1<<63-1 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func optionBool(value any) (bool, bool) {
	v, ok := value.(bool)
	return v, ok
}

func optionFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		if n, ok := optionInt(value); ok {
			return float64(n), true
		}
		return 0, false
	}
}

func optionBytes(value any) ([]byte, bool) {
	v, ok := value.([]byte)
	return v, ok
}
