// G.711 A-law and µ-law audio codecs backed by github.com/zaf/g711.
// One byte per sample on the wire, signed 16-bit little-endian in
// frames, conventionally 8 kHz mono.
package mediakit

import (
	"fmt"
	"io"

	"github.com/zaf/g711"
)

const g711SampleRate = 8000

func init() {
	RegisterAudioDecoder(&g711Builder{id: CodecIDG711A, name: "g711a"}, true)
	RegisterAudioDecoder(&g711Builder{id: CodecIDG711U, name: "g711u", mulaw: true}, true)
	RegisterAudioEncoder(&g711Builder{id: CodecIDG711A, name: "g711a"}, true)
	RegisterAudioEncoder(&g711Builder{id: CodecIDG711U, name: "g711u", mulaw: true}, true)
}

type g711Builder struct {
	id    CodecID
	name  string
	mulaw bool
}

func (b *g711Builder) ID() CodecID  { return b.id }
func (b *g711Builder) Name() string { return b.name }

func (b *g711Builder) NewDecoder(params *CodecParameters) (AudioDecoder, error) {
	return &g711Decoder{g711Codec: g711Codec{id: b.id, name: b.name, mulaw: b.mulaw}}, nil
}

func (b *g711Builder) NewEncoder(params *CodecParameters) (AudioEncoder, error) {
	return &g711Encoder{g711Codec: g711Codec{id: b.id, name: b.name, mulaw: b.mulaw}}, nil
}

type g711Codec struct {
	id     CodecID
	name   string
	mulaw  bool
	closed bool
	eos    bool
}

func (c *g711Codec) ID() CodecID  { return c.id }
func (c *g711Codec) Name() string { return c.name }

// g711StreamShape resolves channel count and sample rate from the
// configured audio parameters, defaulting to 8 kHz mono.
func g711StreamShape(audio *AudioParameters) (channels, rate int) {
	channels = audio.Channels()
	if channels <= 0 {
		channels = 1
	}
	rate = audio.SampleRate
	if rate <= 0 {
		rate = g711SampleRate
	}
	return channels, rate
}

type g711Decoder struct {
	g711Codec
	pending *AudioFrame
}

func (d *g711Decoder) Init(config *AudioDecoderConfig) error {
	if f := config.Audio.Format; f != SampleFormatNone && f != SampleFormatS16 {
		return fmt.Errorf("g711 decodes to S16, not %s: %w", f, ErrUnsupported)
	}
	return nil
}

func (d *g711Decoder) SendPacket(config *AudioDecoderConfig, pool *AudioFramePool, pkt *Packet) error {
	switch {
	case d.closed:
		return ErrClosed
	case d.eos:
		return io.EOF
	case pkt == nil || pkt.Empty():
		return fmt.Errorf("empty packet: %w", ErrInvalidParameter)
	case d.pending != nil:
		return ErrAgain
	}

	channels, rate := g711StreamShape(&config.Audio)
	samples := len(pkt.Data) / channels
	if samples == 0 || len(pkt.Data)%channels != 0 {
		return fmt.Errorf("%d byte packet for %d channels: %w", len(pkt.Data), channels, ErrInvalidParameter)
	}

	desc, err := NewAudioDescriptor(SampleFormatS16, channels, samples, rate)
	if err != nil {
		return err
	}
	frame, err := allocAudioFrame(pool, desc)
	if err != nil {
		return err
	}

	decode := g711.DecodeAlawFrame
	if d.mulaw {
		decode = g711.DecodeUlawFrame
	}
	out := frame.Data[0]
	for i, b := range pkt.Data {
		v := decode(b)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}

	frame.PTS = pkt.PTS
	frame.TimeBase = pkt.TimeBase
	frame.Duration = audioDuration(pkt.Duration, samples, rate, pkt.TimeBase)
	d.pending = frame
	return nil
}

func (d *g711Decoder) ReceiveFrame(config *AudioDecoderConfig, pool *AudioFramePool) (*AudioFrame, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if f := d.pending; f != nil {
		d.pending = nil
		return f, nil
	}
	if d.eos {
		return nil, io.EOF
	}
	return nil, ErrAgain
}

func (d *g711Decoder) Flush(config *AudioDecoderConfig) error {
	if d.closed {
		return ErrClosed
	}
	d.eos = true
	return nil
}

func (d *g711Decoder) Close() error {
	d.closed = true
	d.pending = nil
	return nil
}

type g711Encoder struct {
	g711Codec
	pending *Packet
}

func (e *g711Encoder) Init(config *AudioEncoderConfig) error {
	if f := config.Audio.Format; f != SampleFormatNone && f != SampleFormatS16 {
		return fmt.Errorf("g711 encodes from S16, not %s: %w", f, ErrUnsupported)
	}
	return nil
}

func (e *g711Encoder) SendFrame(config *AudioEncoderConfig, pool *BufferPool, frame *AudioFrame) error {
	switch {
	case e.closed:
		return ErrClosed
	case e.eos:
		return io.EOF
	case frame == nil || len(frame.Data) == 0:
		return fmt.Errorf("empty frame: %w", ErrInvalidParameter)
	case e.pending != nil:
		return ErrAgain
	}
	if frame.Format() != SampleFormatS16 {
		return fmt.Errorf("g711 encodes from S16, not %s: %w", frame.Format(), ErrUnsupported)
	}

	in := frame.Data[0]
	n := len(in) / 2
	pkt := encoderPacket(pool, n)

	encode := g711.EncodeAlawFrame
	if e.mulaw {
		encode = g711.EncodeUlawFrame
	}
	for i := 0; i < n; i++ {
		pkt.Data[i] = encode(int16(in[2*i]) | int16(in[2*i+1])<<8)
	}

	rate := frame.Desc.SampleRate
	pkt.PTS = frame.PTS
	pkt.DTS = frame.PTS
	pkt.TimeBase = frame.TimeBase
	pkt.Duration = audioDuration(frame.Duration, frame.Samples(), rate, frame.TimeBase)
	pkt.Flags |= PacketFlagKey
	e.pending = pkt
	return nil
}

func (e *g711Encoder) ReceivePacket(config *AudioEncoderConfig, pool *BufferPool) (*Packet, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if p := e.pending; p != nil {
		e.pending = nil
		return p, nil
	}
	if e.eos {
		return nil, io.EOF
	}
	return nil, ErrAgain
}

func (e *g711Encoder) Flush(config *AudioEncoderConfig) error {
	if e.closed {
		return ErrClosed
	}
	e.eos = true
	return nil
}

func (e *g711Encoder) Close() error {
	e.closed = true
	if e.pending != nil {
		e.pending.Release()
		e.pending = nil
	}
	return nil
}
