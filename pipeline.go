package mediakit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// PipelineState represents the state of a media pipeline.
type PipelineState int

const (
	PipelineStateIdle    PipelineState = iota // Not started
	PipelineStateRunning                      // Processing media
	PipelineStateStopped                      // Stopped
	PipelineStateError                        // Stopped after a fatal error
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStateIdle:
		return "idle"
	case PipelineStateRunning:
		return "running"
	case PipelineStateStopped:
		return "stopped"
	case PipelineStateError:
		return "error"
	default:
		return "unknown"
	}
}

// PacketWriter receives the pipeline's coded packets. *MuxContext and
// *LocalTrack both satisfy it.
type PacketWriter interface {
	WritePacket(pkt *Packet) error
}

// CapturePipelineStats provides pipeline statistics.
type CapturePipelineStats struct {
	FramesCaptured uint64
	FramesEncoded  uint64
	FramesDropped  uint64
	PacketsWritten uint64
	BytesWritten   uint64
	Errors         uint64
}

// CapturePipelineConfig configures a capture pipeline.
type CapturePipelineConfig struct {
	Device CaptureDevice // Frame source, configured and ready to start

	// Exactly one encoder matching the device's media type, or neither
	// when the device delivers already coded frames (an MJPEG camera).
	VideoEncoder *VideoEncoderContext
	AudioEncoder *AudioEncoderContext

	Scaler *Scaler // Optional resize in front of the video encoder

	Sink       PacketWriter // Output
	TrackIndex int          // Stamped on packets for muxer sinks
	OnError    func(error)  // Error callback
}

// CapturePipeline pulls frames from a capture device, converts and
// scales them to the encoder's shape, and writes the coded packets to a
// sink. One goroutine drives the whole path.
type CapturePipeline struct {
	device       CaptureDevice
	videoEncoder *VideoEncoderContext
	audioEncoder *AudioEncoderContext
	scaler       *Scaler
	sink         PacketWriter
	trackIndex   int

	state    atomic.Int32
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	stats   CapturePipelineStats
	statsMu sync.Mutex

	keyframeRequested atomic.Bool
	onError           func(error)
	mu                sync.Mutex

	convertedVideo *VideoFrame
	convertedAudio *AudioFrame
}

// NewCapturePipeline creates a capture pipeline.
func NewCapturePipeline(config CapturePipelineConfig) (*CapturePipeline, error) {
	if config.Device == nil {
		return nil, fmt.Errorf("capture pipeline needs a device: %w", ErrInvalidParameter)
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("capture pipeline needs a sink: %w", ErrInvalidParameter)
	}
	if config.VideoEncoder != nil && config.AudioEncoder != nil {
		return nil, fmt.Errorf("capture pipeline takes one encoder: %w", ErrInvalidParameter)
	}

	p := &CapturePipeline{
		device:       config.Device,
		videoEncoder: config.VideoEncoder,
		audioEncoder: config.AudioEncoder,
		scaler:       config.Scaler,
		sink:         config.Sink,
		trackIndex:   config.TrackIndex,
		onError:      config.OnError,
	}
	p.state.Store(int32(PipelineStateIdle))
	return p, nil
}

// Start starts the device and the processing goroutine.
func (p *CapturePipeline) Start() error {
	if PipelineState(p.state.Load()) == PipelineStateRunning {
		return fmt.Errorf("pipeline already running: %w", ErrInvalidState)
	}

	if err := p.device.Start(); err != nil {
		return fmt.Errorf("start device %s: %w", p.device.Name(), err)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.stopOnce = sync.Once{}
	p.state.Store(int32(PipelineStateRunning))

	p.wg.Add(1)
	go p.processLoop()

	Logger.Debug().Str("device", p.device.Name()).Msg("capture pipeline started")
	return nil
}

// Stop stops the pipeline, flushes the encoder and writes the remaining
// packets to the sink. The sink itself stays open. Stop also completes
// the teardown when the loop already ended on its own, after stream end
// or a sink failure.
func (p *CapturePipeline) Stop() error {
	if PipelineState(p.state.Load()) == PipelineStateIdle {
		return nil
	}

	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.device.Stop()

		p.flushEncoder()

		// An error hit inside the loop keeps the error state.
		p.state.CompareAndSwap(int32(PipelineStateRunning), int32(PipelineStateStopped))
		Logger.Debug().Str("device", p.device.Name()).Msg("capture pipeline stopped")
	})
	return nil
}

// Close stops the pipeline and releases the device and encoder.
func (p *CapturePipeline) Close() error {
	p.Stop()

	var errs []error
	if err := p.device.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.videoEncoder != nil {
		if err := p.videoEncoder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.audioEncoder != nil {
		if err := p.audioEncoder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequestKeyframe asks the video encoder for a keyframe on the next
// frame.
func (p *CapturePipeline) RequestKeyframe() {
	p.keyframeRequested.Store(true)
}

// State returns the current pipeline state.
func (p *CapturePipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Stats returns pipeline statistics.
func (p *CapturePipeline) Stats() CapturePipelineStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *CapturePipeline) processLoop() {
	defer p.wg.Done()

	for {
		frame, err := p.device.ReadFrame(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				// Finite sources such as WAV playback end this way.
				p.state.CompareAndSwap(int32(PipelineStateRunning), int32(PipelineStateStopped))
				return
			}
			p.handleError(err)
			continue
		}

		p.statsMu.Lock()
		p.stats.FramesCaptured++
		p.statsMu.Unlock()

		switch {
		case frame.Video != nil && p.videoEncoder != nil:
			err = p.processVideo(frame.Video)
		case frame.Audio != nil && p.audioEncoder != nil:
			err = p.processAudio(frame.Audio)
		case frame.Data != nil && p.videoEncoder == nil && p.audioEncoder == nil:
			err = p.writeCoded(frame.Data)
		default:
			p.statsMu.Lock()
			p.stats.FramesDropped++
			p.statsMu.Unlock()
			continue
		}
		if err != nil {
			if p.fatal(err) {
				p.handleError(err)
				p.state.Store(int32(PipelineStateError))
				return
			}
			p.handleError(err)
			p.statsMu.Lock()
			p.stats.FramesDropped++
			p.statsMu.Unlock()
		}
	}
}

func (p *CapturePipeline) processVideo(frame *VideoFrame) error {
	if p.keyframeRequested.Swap(false) {
		p.videoEncoder.SetOption("request_keyframe", true)
	}

	target := p.videoEncoder.Config.Video.Format
	if frame.Desc.Format != target {
		converted, err := p.convertVideo(frame, target)
		if err != nil {
			return err
		}
		frame = converted
	}
	if p.scaler != nil {
		scaled, err := p.scaler.Scale(frame)
		if err != nil {
			return err
		}
		frame = scaled
	}

	if err := p.videoEncoder.SendFrame(frame); err != nil {
		return err
	}
	p.statsMu.Lock()
	p.stats.FramesEncoded++
	p.statsMu.Unlock()
	return p.drain(func() (*Packet, error) { return p.videoEncoder.ReceivePacket() })
}

func (p *CapturePipeline) processAudio(frame *AudioFrame) error {
	target := p.audioEncoder.Config.Audio.Format
	if frame.Desc.Format != target {
		converted, err := p.convertAudio(frame, target)
		if err != nil {
			return err
		}
		frame = converted
	}

	if err := p.audioEncoder.SendFrame(frame); err != nil {
		return err
	}
	p.statsMu.Lock()
	p.stats.FramesEncoded++
	p.statsMu.Unlock()
	return p.drain(func() (*Packet, error) { return p.audioEncoder.ReceivePacket() })
}

// writeCoded passes a coded device frame straight through to the sink.
func (p *CapturePipeline) writeCoded(frame *DataFrame) error {
	pkt := PacketFromSlice(frame.Bytes)
	pkt.TrackIndex = p.trackIndex
	pkt.PTS = frame.PTS
	pkt.DTS = frame.PTS
	pkt.Duration = frame.Duration
	pkt.TimeBase = frame.TimeBase
	pkt.Flags |= PacketFlagKey
	return p.writePacket(pkt)
}

// drain moves every pending packet from the encoder to the sink.
func (p *CapturePipeline) drain(receive func() (*Packet, error)) error {
	for {
		pkt, err := receive()
		if err != nil {
			if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := p.writePacket(pkt); err != nil {
			return err
		}
	}
}

func (p *CapturePipeline) writePacket(pkt *Packet) error {
	pkt.TrackIndex = p.trackIndex
	if err := p.sink.WritePacket(pkt); err != nil {
		return &sinkError{err}
	}
	p.statsMu.Lock()
	p.stats.PacketsWritten++
	p.stats.BytesWritten += uint64(len(pkt.Data))
	p.statsMu.Unlock()
	return nil
}

// flushEncoder runs after the loop goroutine has exited.
func (p *CapturePipeline) flushEncoder() {
	var err error
	switch {
	case p.videoEncoder != nil:
		if err = p.videoEncoder.Flush(); err == nil {
			err = p.drain(func() (*Packet, error) { return p.videoEncoder.ReceivePacket() })
		}
	case p.audioEncoder != nil:
		if err = p.audioEncoder.Flush(); err == nil {
			err = p.drain(func() (*Packet, error) { return p.audioEncoder.ReceivePacket() })
		}
	}
	if err != nil {
		p.handleError(err)
	}
}

func (p *CapturePipeline) convertVideo(src *VideoFrame, target PixelFormat) (*VideoFrame, error) {
	dst := p.convertedVideo
	if dst == nil || dst.Desc.Format != target ||
		dst.Desc.Width != src.Desc.Width || dst.Desc.Height != src.Desc.Height {
		var err error
		dst, err = NewVideoFrame(target, src.Desc.Width, src.Desc.Height)
		if err != nil {
			return nil, err
		}
		p.convertedVideo = dst
	}
	if err := ConvertVideo(dst, src); err != nil {
		return nil, err
	}
	dst.PTS = src.PTS
	dst.DTS = src.DTS
	dst.Duration = src.Duration
	dst.TimeBase = src.TimeBase
	dst.Source = src.Source
	return dst, nil
}

func (p *CapturePipeline) convertAudio(src *AudioFrame, target SampleFormat) (*AudioFrame, error) {
	dst := p.convertedAudio
	if dst == nil || dst.Desc.Format != target ||
		dst.Desc.Samples != src.Desc.Samples || dst.Desc.SampleRate != src.Desc.SampleRate ||
		dst.Channels() != src.Channels() {
		var err error
		dst, err = NewAudioFrame(target, src.Channels(), src.Desc.Samples, src.Desc.SampleRate)
		if err != nil {
			return nil, err
		}
		p.convertedAudio = dst
	}
	if err := ConvertAudio(dst, src); err != nil {
		return nil, err
	}
	dst.PTS = src.PTS
	dst.Duration = src.Duration
	dst.TimeBase = src.TimeBase
	dst.Source = src.Source
	return dst, nil
}

// sinkError marks a failed sink write. The pipeline cannot continue
// past a broken sink, unlike a dropped frame.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return "pipeline sink: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

func (p *CapturePipeline) fatal(err error) bool {
	var se *sinkError
	return errors.As(err, &se)
}

func (p *CapturePipeline) handleError(err error) {
	p.statsMu.Lock()
	p.stats.Errors++
	p.statsMu.Unlock()

	Logger.Warn().Err(err).Msg("capture pipeline")

	p.mu.Lock()
	cb := p.onError
	p.mu.Unlock()
	if cb != nil {
		go cb(err)
	}
}
