package mediakit

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// TranscoderConfig configures a transcoder.
type TranscoderConfig struct {
	// Input settings. InputParams carries the decoder side, including
	// any extradata the demuxer found.
	InputCodec  CodecID
	InputParams *CodecParameters

	// Output settings. OutputParams carries the target frame shape and
	// the encoder settings.
	OutputCodec  CodecID
	OutputParams *CodecParameters

	// Video resize behavior when input and output dimensions differ.
	ScaleMode   ScaleMode
	ScaleFilter ScaleFilter
}

// Transcoder re-encodes coded packets from one codec to another: decode,
// convert and scale to the target shape, encode. It handles one audio or
// one video stream; the input and output codecs must carry the same
// media type.
type Transcoder struct {
	mediaType MediaType

	audioDecoder *AudioDecoderContext
	videoDecoder *VideoDecoderContext
	audioEncoder *AudioEncoderContext
	videoEncoder *VideoEncoderContext

	scaler *Scaler

	// Audio repacking to the encoder's fixed frame size. The ring
	// timestamps run in samples since ringBase.
	ring         *AudioRing
	ringFrame    *AudioFrame
	ringBase     int64
	ringConsumed int64

	convertedVideo *VideoFrame
	convertedAudio *AudioFrame

	mu sync.Mutex
}

// NewTranscoder creates a transcoder.
func NewTranscoder(config TranscoderConfig) (*Transcoder, error) {
	if config.InputCodec == CodecIDNone || config.OutputCodec == CodecIDNone {
		return nil, fmt.Errorf("transcoder codecs: %w", ErrInvalidParameter)
	}
	mediaType := config.InputCodec.MediaType()
	if mediaType != config.OutputCodec.MediaType() {
		return nil, fmt.Errorf("transcode %s to %s: %w",
			config.InputCodec, config.OutputCodec, ErrInvalidParameter)
	}

	t := &Transcoder{mediaType: mediaType}
	var err error
	switch mediaType {
	case MediaTypeAudio:
		t.audioDecoder, err = NewAudioDecoderContext(config.InputCodec, config.InputParams)
		if err != nil {
			return nil, err
		}
		t.audioEncoder, err = NewAudioEncoderContext(config.OutputCodec, config.OutputParams)
		if err != nil {
			t.audioDecoder.Close()
			return nil, err
		}
	case MediaTypeVideo:
		t.videoDecoder, err = NewVideoDecoderContext(config.InputCodec, config.InputParams)
		if err != nil {
			return nil, err
		}
		t.videoEncoder, err = NewVideoEncoderContext(config.OutputCodec, config.OutputParams)
		if err != nil {
			t.videoDecoder.Close()
			return nil, err
		}
		video := t.videoEncoder.Config.Video
		if video.Width > 0 && video.Height > 0 {
			t.scaler, err = NewScaler(video.Width, video.Height, config.ScaleMode, config.ScaleFilter)
			if err != nil {
				t.Close()
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("transcode %s: %w", mediaType, ErrUnsupported)
	}
	return t, nil
}

// InputCodec returns the input codec.
func (t *Transcoder) InputCodec() CodecID {
	if t.mediaType == MediaTypeAudio {
		return t.audioDecoder.CodecID()
	}
	return t.videoDecoder.CodecID()
}

// OutputCodec returns the output codec.
func (t *Transcoder) OutputCodec() CodecID {
	if t.mediaType == MediaTypeAudio {
		return t.audioEncoder.CodecID()
	}
	return t.videoEncoder.CodecID()
}

// RequestKeyframe asks the video encoder to code the next frame as a
// keyframe.
func (t *Transcoder) RequestKeyframe() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.videoEncoder != nil {
		t.videoEncoder.SetOption("request_keyframe", true)
	}
}

// Process transcodes one coded packet. The returned slice holds zero or
// more output packets; both the decoder and the encoder are free to
// buffer across calls.
func (t *Transcoder) Process(pkt *Packet) ([]*Packet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mediaType == MediaTypeAudio {
		if err := t.audioDecoder.SendPacket(pkt); err != nil {
			return nil, err
		}
		return t.drainAudioDecoder(nil)
	}
	if err := t.videoDecoder.SendPacket(pkt); err != nil {
		return nil, err
	}
	return t.drainVideoDecoder(nil)
}

// Flush drains both codec stages and returns the remaining packets. A
// final partial audio frame is padded with silence so the stream keeps
// its full duration.
func (t *Transcoder) Flush() ([]*Packet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Packet
	var err error
	switch t.mediaType {
	case MediaTypeAudio:
		if err = t.audioDecoder.Flush(); err != nil {
			return nil, err
		}
		if out, err = t.drainAudioDecoder(out); err != nil {
			return out, err
		}
		if out, err = t.flushRing(out); err != nil {
			return out, err
		}
		if err = t.audioEncoder.Flush(); err != nil {
			return out, err
		}
		return t.drainAudioEncoder(out)
	case MediaTypeVideo:
		if err = t.videoDecoder.Flush(); err != nil {
			return nil, err
		}
		if out, err = t.drainVideoDecoder(out); err != nil {
			return out, err
		}
		if err = t.videoEncoder.Flush(); err != nil {
			return out, err
		}
		return t.drainVideoEncoder(out)
	}
	return nil, nil
}

// Close releases both codec contexts.
func (t *Transcoder) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.audioDecoder != nil {
		errs = append(errs, t.audioDecoder.Close())
	}
	if t.videoDecoder != nil {
		errs = append(errs, t.videoDecoder.Close())
	}
	if t.audioEncoder != nil {
		errs = append(errs, t.audioEncoder.Close())
	}
	if t.videoEncoder != nil {
		errs = append(errs, t.videoEncoder.Close())
	}
	return errors.Join(errs...)
}

func (t *Transcoder) drainVideoDecoder(out []*Packet) ([]*Packet, error) {
	for {
		frame, err := t.videoDecoder.ReceiveFrame()
		if err != nil {
			if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		if out, err = t.encodeVideo(out, frame); err != nil {
			return out, err
		}
	}
}

func (t *Transcoder) encodeVideo(out []*Packet, frame *VideoFrame) ([]*Packet, error) {
	target := t.videoEncoder.Config.Video.Format
	if frame.Desc.Format != target {
		converted, err := t.convertVideoFrame(frame, target)
		if err != nil {
			return out, err
		}
		frame = converted
	}
	if t.scaler != nil {
		scaled, err := t.scaler.Scale(frame)
		if err != nil {
			return out, err
		}
		frame = scaled
	}
	if err := t.videoEncoder.SendFrame(frame); err != nil {
		return out, err
	}
	return t.drainVideoEncoder(out)
}

func (t *Transcoder) drainVideoEncoder(out []*Packet) ([]*Packet, error) {
	for {
		pkt, err := t.videoEncoder.ReceivePacket()
		if err != nil {
			if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, pkt)
	}
}

func (t *Transcoder) drainAudioDecoder(out []*Packet) ([]*Packet, error) {
	for {
		frame, err := t.audioDecoder.ReceiveFrame()
		if err != nil {
			if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		if out, err = t.encodeAudio(out, frame); err != nil {
			return out, err
		}
	}
}

func (t *Transcoder) encodeAudio(out []*Packet, frame *AudioFrame) ([]*Packet, error) {
	config := t.audioEncoder.Config.Audio
	if frame.Desc.SampleRate != config.SampleRate && config.SampleRate > 0 {
		return out, fmt.Errorf("sample rate %d to %d needs a resampler: %w",
			frame.Desc.SampleRate, config.SampleRate, ErrUnsupported)
	}
	if frame.Channels() != config.Channels() && config.Channels() > 0 {
		return out, fmt.Errorf("channels %d to %d needs a mixer: %w",
			frame.Channels(), config.Channels(), ErrUnsupported)
	}
	if frame.Desc.Format != config.Format {
		converted, err := t.convertAudioFrame(frame, config.Format)
		if err != nil {
			return out, err
		}
		frame = converted
	}

	frameSize := t.audioEncoder.Config.FrameSize
	if frameSize <= 0 || frame.Desc.Samples == frameSize {
		if err := t.audioEncoder.SendFrame(frame); err != nil {
			return out, err
		}
		return t.drainAudioEncoder(out)
	}
	return t.repackAudio(out, frame, frameSize)
}

// repackAudio rechops decoder output into the encoder's fixed frame
// size through the sample ring.
func (t *Transcoder) repackAudio(out []*Packet, frame *AudioFrame, frameSize int) ([]*Packet, error) {
	if t.ring == nil {
		t.ring = NewAudioRing(frame.Desc.Format, frame.Channels(), frameSize*4)
		fixed, err := NewAudioFrame(frame.Desc.Format, frame.Channels(), frameSize, frame.Desc.SampleRate)
		if err != nil {
			return out, err
		}
		t.ringFrame = fixed
	}
	if t.ring.Empty() {
		base := frame.PTS
		if base != NoTimestamp && !frame.TimeBase.IsZero() {
			base = Rescale(base, frame.TimeBase, Rational{Num: 1, Den: int64(frame.Desc.SampleRate)})
		} else {
			base = t.ringBase + t.ringConsumed
		}
		t.ringBase = base
		t.ringConsumed = 0
	}
	if _, err := t.ring.WriteFrame(frame); err != nil {
		return out, err
	}

	rate := int64(frame.Desc.SampleRate)
	for t.ring.Len() >= frameSize {
		if _, err := t.ring.ReadFrame(t.ringFrame); err != nil {
			return out, err
		}
		t.ringFrame.PTS = t.ringBase + t.ringConsumed
		t.ringFrame.TimeBase = Rational{Num: 1, Den: rate}
		t.ringFrame.Duration = int64(frameSize)
		t.ringConsumed += int64(frameSize)

		if err := t.audioEncoder.SendFrame(t.ringFrame); err != nil {
			return out, err
		}
		var err error
		if out, err = t.drainAudioEncoder(out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// flushRing pushes the buffered tail through the encoder, padded to the
// frame size with silence.
func (t *Transcoder) flushRing(out []*Packet) ([]*Packet, error) {
	if t.ring == nil || t.ring.Empty() {
		return out, nil
	}
	remaining := t.ring.Len()
	desc := t.ringFrame.Desc
	padded, err := NewAudioFrameWithDescriptor(desc)
	if err != nil {
		return out, err
	}
	if _, err := t.ring.ReadFrame(padded); err != nil {
		return out, err
	}
	padded.PTS = t.ringBase + t.ringConsumed
	padded.TimeBase = Rational{Num: 1, Den: int64(desc.SampleRate)}
	padded.Duration = int64(remaining)
	t.ringConsumed += int64(remaining)

	if err := t.audioEncoder.SendFrame(padded); err != nil {
		return out, err
	}
	return t.drainAudioEncoder(out)
}

func (t *Transcoder) drainAudioEncoder(out []*Packet) ([]*Packet, error) {
	for {
		pkt, err := t.audioEncoder.ReceivePacket()
		if err != nil {
			if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, pkt)
	}
}

func (t *Transcoder) convertVideoFrame(src *VideoFrame, target PixelFormat) (*VideoFrame, error) {
	dst := t.convertedVideo
	if dst == nil || dst.Desc.Format != target ||
		dst.Desc.Width != src.Desc.Width || dst.Desc.Height != src.Desc.Height {
		var err error
		dst, err = NewVideoFrame(target, src.Desc.Width, src.Desc.Height)
		if err != nil {
			return nil, err
		}
		t.convertedVideo = dst
	}
	if err := ConvertVideo(dst, src); err != nil {
		return nil, err
	}
	dst.PTS = src.PTS
	dst.DTS = src.DTS
	dst.Duration = src.Duration
	dst.TimeBase = src.TimeBase
	return dst, nil
}

func (t *Transcoder) convertAudioFrame(src *AudioFrame, target SampleFormat) (*AudioFrame, error) {
	dst := t.convertedAudio
	if dst == nil || dst.Desc.Format != target ||
		dst.Desc.Samples != src.Desc.Samples || dst.Desc.SampleRate != src.Desc.SampleRate ||
		dst.Channels() != src.Channels() {
		var err error
		dst, err = NewAudioFrame(target, src.Channels(), src.Desc.Samples, src.Desc.SampleRate)
		if err != nil {
			return nil, err
		}
		t.convertedAudio = dst
	}
	if err := ConvertAudio(dst, src); err != nil {
		return nil, err
	}
	dst.PTS = src.PTS
	dst.Duration = src.Duration
	dst.TimeBase = src.TimeBase
	return dst, nil
}
