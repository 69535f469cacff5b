// Raw signed 16-bit little-endian PCM, packetized as-is. Raw PCM is
// not self describing, so the stream shape must be configured up
// front.
package mediakit

import (
	"fmt"
	"io"
)

func init() {
	RegisterAudioDecoder(&pcmBuilder{}, true)
	RegisterAudioEncoder(&pcmBuilder{}, true)
}

type pcmBuilder struct{}

func (pcmBuilder) ID() CodecID  { return CodecIDPCMS16 }
func (pcmBuilder) Name() string { return "pcm_s16le" }

func (b *pcmBuilder) NewDecoder(params *CodecParameters) (AudioDecoder, error) {
	return &pcmDecoder{}, nil
}

func (b *pcmBuilder) NewEncoder(params *CodecParameters) (AudioEncoder, error) {
	return &pcmEncoder{}, nil
}

func pcmValidate(audio *AudioParameters) error {
	if f := audio.Format; f != SampleFormatNone && f != SampleFormatS16 {
		return fmt.Errorf("pcm_s16le carries S16, not %s: %w", f, ErrUnsupported)
	}
	if audio.Channels() <= 0 || audio.SampleRate <= 0 {
		return fmt.Errorf("pcm stream needs channels and sample_rate: %w", ErrInvalidParameter)
	}
	return nil
}

type pcmDecoder struct {
	closed  bool
	eos     bool
	pending *AudioFrame
}

func (*pcmDecoder) ID() CodecID  { return CodecIDPCMS16 }
func (*pcmDecoder) Name() string { return "pcm_s16le" }

func (d *pcmDecoder) Init(config *AudioDecoderConfig) error {
	return pcmValidate(&config.Audio)
}

func (d *pcmDecoder) SendPacket(config *AudioDecoderConfig, pool *AudioFramePool, pkt *Packet) error {
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

	channels := config.Audio.Channels()
	rate := config.Audio.SampleRate
	stride := 2 * channels
	samples := len(pkt.Data) / stride
	if samples == 0 || len(pkt.Data)%stride != 0 {
		return fmt.Errorf("%d byte packet for %d channel S16: %w", len(pkt.Data), channels, ErrInvalidParameter)
	}

	desc, err := NewAudioDescriptor(SampleFormatS16, channels, samples, rate)
	if err != nil {
		return err
	}
	frame, err := allocAudioFrame(pool, desc)
	if err != nil {
		return err
	}
	copy(frame.Data[0], pkt.Data)

	frame.PTS = pkt.PTS
	frame.TimeBase = pkt.TimeBase
	frame.Duration = audioDuration(pkt.Duration, samples, rate, pkt.TimeBase)
	d.pending = frame
	return nil
}

func (d *pcmDecoder) ReceiveFrame(config *AudioDecoderConfig, pool *AudioFramePool) (*AudioFrame, error) {
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

func (d *pcmDecoder) Flush(config *AudioDecoderConfig) error {
	if d.closed {
		return ErrClosed
	}
	d.eos = true
	return nil
}

func (d *pcmDecoder) Close() error {
	d.closed = true
	d.pending = nil
	return nil
}

type pcmEncoder struct {
	closed  bool
	eos     bool
	pending *Packet
}

func (*pcmEncoder) ID() CodecID  { return CodecIDPCMS16 }
func (*pcmEncoder) Name() string { return "pcm_s16le" }

func (e *pcmEncoder) Init(config *AudioEncoderConfig) error {
	return pcmValidate(&config.Audio)
}

func (e *pcmEncoder) SendFrame(config *AudioEncoderConfig, pool *BufferPool, frame *AudioFrame) error {
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
		return fmt.Errorf("pcm_s16le carries S16, not %s: %w", frame.Format(), ErrUnsupported)
	}

	in := frame.Data[0]
	pkt := encoderPacket(pool, len(in))
	copy(pkt.Data, in)

	pkt.PTS = frame.PTS
	pkt.DTS = frame.PTS
	pkt.TimeBase = frame.TimeBase
	pkt.Duration = audioDuration(frame.Duration, frame.Samples(), frame.Desc.SampleRate, frame.TimeBase)
	pkt.Flags |= PacketFlagKey
	e.pending = pkt
	return nil
}

func (e *pcmEncoder) ReceivePacket(config *AudioEncoderConfig, pool *BufferPool) (*Packet, error) {
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

func (e *pcmEncoder) Flush(config *AudioEncoderConfig) error {
	if e.closed {
		return ErrClosed
	}
	e.eos = true
	return nil
}

func (e *pcmEncoder) Close() error {
	e.closed = true
	if e.pending != nil {
		e.pending.Release()
		e.pending = nil
	}
	return nil
}
