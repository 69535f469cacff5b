// Decoder interfaces and contexts. Decoding follows a send/receive
// model: feed packets with SendPacket, drain frames with ReceiveFrame.
// Either side returns ErrAgain when the other must run first.
package mediakit

import "fmt"

// AudioDecoder turns coded packets into raw audio frames. The config
// is owned by the context and passed on every call, so reconfiguration
// through the context is visible immediately. When pool is non-nil the
// decoder should serve output frames from it. After Flush, ReceiveFrame
// reports io.EOF once all buffered frames are drained.
type AudioDecoder interface {
	CodecInfo
	Init(config *AudioDecoderConfig) error
	SendPacket(config *AudioDecoderConfig, pool *AudioFramePool, pkt *Packet) error
	ReceiveFrame(config *AudioDecoderConfig, pool *AudioFramePool) (*AudioFrame, error)
	Flush(config *AudioDecoderConfig) error
	Close() error
}

// VideoDecoder turns coded packets into raw video frames.
type VideoDecoder interface {
	CodecInfo
	Init(config *VideoDecoderConfig) error
	SendPacket(config *VideoDecoderConfig, pool *VideoFramePool, pkt *Packet) error
	ReceiveFrame(config *VideoDecoderConfig, pool *VideoFramePool) (*VideoFrame, error)
	Flush(config *VideoDecoderConfig) error
	Close() error
}

// AudioDecoderConfig is the merged configuration of an audio decoder
// context.
type AudioDecoderConfig struct {
	Audio   AudioParameters
	Decoder DecoderParameters
}

func newAudioDecoderConfig(params *CodecParameters) (AudioDecoderConfig, error) {
	if params == nil || params.Audio == nil || params.Decoder == nil {
		return AudioDecoderConfig{}, fmt.Errorf("audio decoder parameters: %w", ErrInvalidParameter)
	}
	return AudioDecoderConfig{Audio: *params.Audio, Decoder: params.Decoder.clone()}, nil
}

func (c *AudioDecoderConfig) update(params *CodecParameters) error {
	if params == nil {
		return nil
	}
	if params.Video != nil || params.Encoder != nil {
		return fmt.Errorf("audio decoder parameters: %w", ErrInvalidParameter)
	}
	if params.Audio != nil {
		c.Audio.update(params.Audio)
	}
	if params.Decoder != nil {
		c.Decoder.update(params.Decoder)
	}
	return nil
}

func (c *AudioDecoderConfig) setOption(key string, value any) {
	c.Audio.setOption(key, value)
	c.Decoder.setOption(key, value)
}

// VideoDecoderConfig is the merged configuration of a video decoder
// context.
type VideoDecoderConfig struct {
	Video   VideoParameters
	Decoder DecoderParameters
}

func newVideoDecoderConfig(params *CodecParameters) (VideoDecoderConfig, error) {
	if params == nil || params.Video == nil || params.Decoder == nil {
		return VideoDecoderConfig{}, fmt.Errorf("video decoder parameters: %w", ErrInvalidParameter)
	}
	return VideoDecoderConfig{Video: *params.Video, Decoder: params.Decoder.clone()}, nil
}

func (c *VideoDecoderConfig) update(params *CodecParameters) error {
	if params == nil {
		return nil
	}
	if params.Audio != nil || params.Encoder != nil {
		return fmt.Errorf("video decoder parameters: %w", ErrInvalidParameter)
	}
	if params.Video != nil {
		c.Video.update(params.Video)
	}
	if params.Decoder != nil {
		c.Decoder.update(params.Decoder)
	}
	return nil
}

func (c *VideoDecoderConfig) setOption(key string, value any) {
	c.Video.setOption(key, value)
	c.Decoder.setOption(key, value)
}

// AudioDecoderContext drives a registered audio decoder.
type AudioDecoderContext struct {
	Config  AudioDecoderConfig
	decoder AudioDecoder
	pool    *AudioFramePool
}

// NewAudioDecoderContext opens the default decoder registered for id.
func NewAudioDecoderContext(id CodecID, params *CodecParameters) (*AudioDecoderContext, error) {
	b, err := findAudioDecoder(id)
	if err != nil {
		return nil, err
	}
	return newAudioDecoderContext(b, params)
}

// NewAudioDecoderContextByName opens a decoder by its registered name,
// bypassing the default selection.
func NewAudioDecoderContextByName(name string, params *CodecParameters) (*AudioDecoderContext, error) {
	b, err := findAudioDecoderByName(name)
	if err != nil {
		return nil, err
	}
	return newAudioDecoderContext(b, params)
}

func newAudioDecoderContext(b AudioDecoderBuilder, params *CodecParameters) (*AudioDecoderContext, error) {
	config, err := newAudioDecoderConfig(params)
	if err != nil {
		return nil, err
	}
	dec, err := b.NewDecoder(params)
	if err != nil {
		return nil, err
	}
	ctx := &AudioDecoderContext{Config: config, decoder: dec}
	if config.Decoder.UsePool {
		ctx.pool = NewAudioFramePool(AudioDescriptor{})
	}
	if err := dec.Init(&ctx.Config); err != nil {
		dec.Close()
		return nil, err
	}
	return ctx, nil
}

// CodecID returns the ID of the opened decoder.
func (c *AudioDecoderContext) CodecID() CodecID { return c.decoder.ID() }

// CodecName returns the registered name of the opened decoder.
func (c *AudioDecoderContext) CodecName() string { return c.decoder.Name() }

// FramePool returns the context frame pool, nil unless the context was
// opened with UsePool.
func (c *AudioDecoderContext) FramePool() *AudioFramePool { return c.pool }

// Configure merges the set fields of params into the context
// configuration.
func (c *AudioDecoderContext) Configure(params *CodecParameters) error {
	return c.Config.update(params)
}

// SetOption updates a single named option. The option also reaches the
// decoder when it handles options itself.
func (c *AudioDecoderContext) SetOption(key string, value any) error {
	c.Config.setOption(key, value)
	if h, ok := c.decoder.(OptionHandler); ok {
		return h.SetOption(key, value)
	}
	return nil
}

// SendPacket feeds one packet to the decoder. ErrAgain means decoded
// frames must be drained with ReceiveFrame first.
func (c *AudioDecoderContext) SendPacket(pkt *Packet) error {
	return c.decoder.SendPacket(&c.Config, c.pool, pkt)
}

// ReceiveFrame returns the next decoded frame. ErrAgain means the
// decoder needs more input.
func (c *AudioDecoderContext) ReceiveFrame() (*AudioFrame, error) {
	return c.decoder.ReceiveFrame(&c.Config, c.pool)
}

// Flush signals end of stream. Buffered frames remain available
// through ReceiveFrame.
func (c *AudioDecoderContext) Flush() error {
	return c.decoder.Flush(&c.Config)
}

// Close releases the decoder.
func (c *AudioDecoderContext) Close() error {
	return c.decoder.Close()
}

// VideoDecoderContext drives a registered video decoder.
type VideoDecoderContext struct {
	Config  VideoDecoderConfig
	decoder VideoDecoder
	pool    *VideoFramePool
}

// NewVideoDecoderContext opens the default decoder registered for id.
func NewVideoDecoderContext(id CodecID, params *CodecParameters) (*VideoDecoderContext, error) {
	b, err := findVideoDecoder(id)
	if err != nil {
		return nil, err
	}
	return newVideoDecoderContext(b, params)
}

// NewVideoDecoderContextByName opens a decoder by its registered name,
// bypassing the default selection.
func NewVideoDecoderContextByName(name string, params *CodecParameters) (*VideoDecoderContext, error) {
	b, err := findVideoDecoderByName(name)
	if err != nil {
		return nil, err
	}
	return newVideoDecoderContext(b, params)
}

func newVideoDecoderContext(b VideoDecoderBuilder, params *CodecParameters) (*VideoDecoderContext, error) {
	config, err := newVideoDecoderConfig(params)
	if err != nil {
		return nil, err
	}
	dec, err := b.NewDecoder(params)
	if err != nil {
		return nil, err
	}
	ctx := &VideoDecoderContext{Config: config, decoder: dec}
	if config.Decoder.UsePool {
		ctx.pool = NewVideoFramePool(VideoDescriptor{})
	}
	if err := dec.Init(&ctx.Config); err != nil {
		dec.Close()
		return nil, err
	}
	return ctx, nil
}

// CodecID returns the ID of the opened decoder.
func (c *VideoDecoderContext) CodecID() CodecID { return c.decoder.ID() }

// CodecName returns the registered name of the opened decoder.
func (c *VideoDecoderContext) CodecName() string { return c.decoder.Name() }

// FramePool returns the context frame pool, nil unless the context was
// opened with UsePool.
func (c *VideoDecoderContext) FramePool() *VideoFramePool { return c.pool }

// Configure merges the set fields of params into the context
// configuration.
func (c *VideoDecoderContext) Configure(params *CodecParameters) error {
	return c.Config.update(params)
}

// SetOption updates a single named option. The option also reaches the
// decoder when it handles options itself.
func (c *VideoDecoderContext) SetOption(key string, value any) error {
	c.Config.setOption(key, value)
	if h, ok := c.decoder.(OptionHandler); ok {
		return h.SetOption(key, value)
	}
	return nil
}

// SendPacket feeds one packet to the decoder. ErrAgain means decoded
// frames must be drained with ReceiveFrame first.
func (c *VideoDecoderContext) SendPacket(pkt *Packet) error {
	return c.decoder.SendPacket(&c.Config, c.pool, pkt)
}

// ReceiveFrame returns the next decoded frame. ErrAgain means the
// decoder needs more input.
func (c *VideoDecoderContext) ReceiveFrame() (*VideoFrame, error) {
	return c.decoder.ReceiveFrame(&c.Config, c.pool)
}

// Flush signals end of stream. Buffered frames remain available
// through ReceiveFrame.
func (c *VideoDecoderContext) Flush() error {
	return c.decoder.Flush(&c.Config)
}

// Close releases the decoder.
func (c *VideoDecoderContext) Close() error {
	return c.decoder.Close()
}
