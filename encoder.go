// Encoder interfaces and contexts, mirroring the decoder side: feed
// frames with SendFrame, drain packets with ReceivePacket.
package mediakit

import "fmt"

// AudioEncoder turns raw audio frames into coded packets. When pool is
// non-nil the encoder should serve packet payloads from it. After
// Flush, ReceivePacket reports io.EOF once all buffered packets are
// drained.
type AudioEncoder interface {
	CodecInfo
	Init(config *AudioEncoderConfig) error
	SendFrame(config *AudioEncoderConfig, pool *BufferPool, frame *AudioFrame) error
	ReceivePacket(config *AudioEncoderConfig, pool *BufferPool) (*Packet, error)
	Flush(config *AudioEncoderConfig) error
	Close() error
}

// VideoEncoder turns raw video frames into coded packets.
type VideoEncoder interface {
	CodecInfo
	Init(config *VideoEncoderConfig) error
	SendFrame(config *VideoEncoderConfig, pool *BufferPool, frame *VideoFrame) error
	ReceivePacket(config *VideoEncoderConfig, pool *BufferPool) (*Packet, error)
	Flush(config *VideoEncoderConfig) error
	Close() error
}

// AudioEncoderConfig is the merged configuration of an audio encoder
// context. FrameSize and Delay are reported by the encoder during Init.
type AudioEncoderConfig struct {
	Audio   AudioParameters
	Encoder EncoderParameters

	FrameSize int // fixed samples per frame the encoder expects, 0 for any
	Delay     int // codec lookahead in samples
}

func newAudioEncoderConfig(params *CodecParameters) (AudioEncoderConfig, error) {
	if params == nil || params.Audio == nil || params.Encoder == nil {
		return AudioEncoderConfig{}, fmt.Errorf("audio encoder parameters: %w", ErrInvalidParameter)
	}
	return AudioEncoderConfig{Audio: *params.Audio, Encoder: *params.Encoder}, nil
}

func (c *AudioEncoderConfig) update(params *CodecParameters) error {
	if params == nil {
		return nil
	}
	if params.Video != nil || params.Decoder != nil {
		return fmt.Errorf("audio encoder parameters: %w", ErrInvalidParameter)
	}
	if params.Audio != nil {
		c.Audio.update(params.Audio)
	}
	if params.Encoder != nil {
		c.Encoder.update(params.Encoder)
	}
	return nil
}

func (c *AudioEncoderConfig) setOption(key string, value any) {
	c.Audio.setOption(key, value)
	c.Encoder.setOption(key, value)
	switch key {
	case "frame_size":
		if v, ok := optionInt(value); ok && v >= 0 {
			c.FrameSize = int(v)
		}
	case "delay":
		if v, ok := optionInt(value); ok && v >= 0 {
			c.Delay = int(v)
		}
	}
}

// VideoEncoderConfig is the merged configuration of a video encoder
// context.
type VideoEncoderConfig struct {
	Video   VideoParameters
	Encoder EncoderParameters
}

func newVideoEncoderConfig(params *CodecParameters) (VideoEncoderConfig, error) {
	if params == nil || params.Video == nil || params.Encoder == nil {
		return VideoEncoderConfig{}, fmt.Errorf("video encoder parameters: %w", ErrInvalidParameter)
	}
	return VideoEncoderConfig{Video: *params.Video, Encoder: *params.Encoder}, nil
}

func (c *VideoEncoderConfig) update(params *CodecParameters) error {
	if params == nil {
		return nil
	}
	if params.Audio != nil || params.Decoder != nil {
		return fmt.Errorf("video encoder parameters: %w", ErrInvalidParameter)
	}
	if params.Video != nil {
		c.Video.update(params.Video)
	}
	if params.Encoder != nil {
		c.Encoder.update(params.Encoder)
	}
	return nil
}

func (c *VideoEncoderConfig) setOption(key string, value any) {
	c.Video.setOption(key, value)
	c.Encoder.setOption(key, value)
}

// AudioEncoderContext drives a registered audio encoder. TimeBase, when
// set, is stamped onto packets the encoder leaves without one.
type AudioEncoderContext struct {
	Config   AudioEncoderConfig
	TimeBase Rational
	encoder  AudioEncoder
	pool     *BufferPool
}

// NewAudioEncoderContext opens the default encoder registered for id.
func NewAudioEncoderContext(id CodecID, params *CodecParameters) (*AudioEncoderContext, error) {
	b, err := findAudioEncoder(id)
	if err != nil {
		return nil, err
	}
	enc, err := b.NewEncoder(params)
	if err != nil {
		return nil, err
	}
	return NewAudioEncoderContextWithEncoder(enc, params)
}

// NewAudioEncoderContextByName opens an encoder by its registered name,
// bypassing the default selection.
func NewAudioEncoderContextByName(name string, params *CodecParameters) (*AudioEncoderContext, error) {
	b, err := findAudioEncoderByName(name)
	if err != nil {
		return nil, err
	}
	enc, err := b.NewEncoder(params)
	if err != nil {
		return nil, err
	}
	return NewAudioEncoderContextWithEncoder(enc, params)
}

// NewAudioEncoderContextWithEncoder wraps an encoder instance that was
// not obtained from the registry.
func NewAudioEncoderContextWithEncoder(enc AudioEncoder, params *CodecParameters) (*AudioEncoderContext, error) {
	config, err := newAudioEncoderConfig(params)
	if err != nil {
		return nil, err
	}
	ctx := &AudioEncoderContext{Config: config, encoder: enc}
	if config.Encoder.UsePool {
		ctx.pool = NewBufferPool(0)
	}
	if err := enc.Init(&ctx.Config); err != nil {
		enc.Close()
		return nil, err
	}
	return ctx, nil
}

// CodecID returns the ID of the opened encoder.
func (c *AudioEncoderContext) CodecID() CodecID { return c.encoder.ID() }

// CodecName returns the registered name of the opened encoder.
func (c *AudioEncoderContext) CodecName() string { return c.encoder.Name() }

// BufferPool returns the context buffer pool, nil unless the context
// was opened with UsePool.
func (c *AudioEncoderContext) BufferPool() *BufferPool { return c.pool }

// Configure merges the set fields of params into the context
// configuration.
func (c *AudioEncoderContext) Configure(params *CodecParameters) error {
	return c.Config.update(params)
}

// SetOption updates a single named option. The option also reaches the
// encoder when it handles options itself.
func (c *AudioEncoderContext) SetOption(key string, value any) error {
	c.Config.setOption(key, value)
	if h, ok := c.encoder.(OptionHandler); ok {
		return h.SetOption(key, value)
	}
	return nil
}

// SendFrame feeds one frame to the encoder. ErrAgain means coded
// packets must be drained with ReceivePacket first.
func (c *AudioEncoderContext) SendFrame(frame *AudioFrame) error {
	return c.encoder.SendFrame(&c.Config, c.pool, frame)
}

// ReceivePacket returns the next coded packet. ErrAgain means the
// encoder needs more input.
func (c *AudioEncoderContext) ReceivePacket() (*Packet, error) {
	pkt, err := c.encoder.ReceivePacket(&c.Config, c.pool)
	if err != nil {
		return nil, err
	}
	if pkt.TimeBase.IsZero() {
		pkt.TimeBase = c.TimeBase
	}
	return pkt, nil
}

// Flush signals end of stream. Buffered packets remain available
// through ReceivePacket.
func (c *AudioEncoderContext) Flush() error {
	return c.encoder.Flush(&c.Config)
}

// Close releases the encoder.
func (c *AudioEncoderContext) Close() error {
	return c.encoder.Close()
}

// VideoEncoderContext drives a registered video encoder. TimeBase, when
// set, is stamped onto packets the encoder leaves without one.
type VideoEncoderContext struct {
	Config   VideoEncoderConfig
	TimeBase Rational
	encoder  VideoEncoder
	pool     *BufferPool
}

// NewVideoEncoderContext opens the default encoder registered for id.
func NewVideoEncoderContext(id CodecID, params *CodecParameters) (*VideoEncoderContext, error) {
	b, err := findVideoEncoder(id)
	if err != nil {
		return nil, err
	}
	enc, err := b.NewEncoder(params)
	if err != nil {
		return nil, err
	}
	return NewVideoEncoderContextWithEncoder(enc, params)
}

// NewVideoEncoderContextByName opens an encoder by its registered name,
// bypassing the default selection.
func NewVideoEncoderContextByName(name string, params *CodecParameters) (*VideoEncoderContext, error) {
	b, err := findVideoEncoderByName(name)
	if err != nil {
		return nil, err
	}
	enc, err := b.NewEncoder(params)
	if err != nil {
		return nil, err
	}
	return NewVideoEncoderContextWithEncoder(enc, params)
}

// NewVideoEncoderContextWithEncoder wraps an encoder instance that was
// not obtained from the registry.
func NewVideoEncoderContextWithEncoder(enc VideoEncoder, params *CodecParameters) (*VideoEncoderContext, error) {
	config, err := newVideoEncoderConfig(params)
	if err != nil {
		return nil, err
	}
	ctx := &VideoEncoderContext{Config: config, encoder: enc}
	if config.Encoder.UsePool {
		ctx.pool = NewBufferPool(0)
	}
	if err := enc.Init(&ctx.Config); err != nil {
		enc.Close()
		return nil, err
	}
	return ctx, nil
}

// CodecID returns the ID of the opened encoder.
func (c *VideoEncoderContext) CodecID() CodecID { return c.encoder.ID() }

// CodecName returns the registered name of the opened encoder.
func (c *VideoEncoderContext) CodecName() string { return c.encoder.Name() }

// BufferPool returns the context buffer pool, nil unless the context
// was opened with UsePool.
func (c *VideoEncoderContext) BufferPool() *BufferPool { return c.pool }

// Configure merges the set fields of params into the context
// configuration.
func (c *VideoEncoderContext) Configure(params *CodecParameters) error {
	return c.Config.update(params)
}

// SetOption updates a single named option. The option also reaches the
// encoder when it handles options itself.
func (c *VideoEncoderContext) SetOption(key string, value any) error {
	c.Config.setOption(key, value)
	if h, ok := c.encoder.(OptionHandler); ok {
		return h.SetOption(key, value)
	}
	return nil
}

// SendFrame feeds one frame to the encoder. ErrAgain means coded
// packets must be drained with ReceivePacket first.
func (c *VideoEncoderContext) SendFrame(frame *VideoFrame) error {
	return c.encoder.SendFrame(&c.Config, c.pool, frame)
}

// ReceivePacket returns the next coded packet. ErrAgain means the
// encoder needs more input.
func (c *VideoEncoderContext) ReceivePacket() (*Packet, error) {
	pkt, err := c.encoder.ReceivePacket(&c.Config, c.pool)
	if err != nil {
		return nil, err
	}
	if pkt.TimeBase.IsZero() {
		pkt.TimeBase = c.TimeBase
	}
	return pkt, nil
}

// Flush signals end of stream. Buffered packets remain available
// through ReceivePacket.
func (c *VideoEncoderContext) Flush() error {
	return c.encoder.Flush(&c.Config)
}

// Close releases the encoder.
func (c *VideoEncoderContext) Close() error {
	return c.encoder.Close()
}
