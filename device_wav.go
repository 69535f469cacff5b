// WAV file recorder: a virtual playback device that writes incoming
// audio frames to a RIFF/WAVE file.
package mediakit

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func init() {
	registerDeviceBackend(func() []Device {
		return []Device{NewWavRecorder("")}
	})
}

// WavRecorder is an OutputDevice sink for interleaved S16 audio. The
// target path comes from the constructor or the "path" configure
// option. The RIFF header is finalized on Stop.
type WavRecorder struct {
	mu         sync.Mutex
	path       string
	sampleRate int
	channels   int

	running atomic.Bool
	file    *os.File
	enc     *wav.Encoder
	scratch []int
	frames  uint64
}

func NewWavRecorder(path string) *WavRecorder {
	return &WavRecorder{path: path}
}

func (r *WavRecorder) ID() string       { return "wav-recorder" }
func (r *WavRecorder) Name() string     { return "WAV File Recorder" }
func (r *WavRecorder) Kind() DeviceKind { return DeviceKindAudioOutput }

func (r *WavRecorder) Running() bool { return r.running.Load() }

// Configure sets the target path and, optionally, a fixed stream
// shape. Without an explicit rate the first written frame decides.
func (r *WavRecorder) Configure(config DeviceConfig) error {
	if r.running.Load() {
		return errDeviceState(r.ID(), "configure while running")
	}
	if config.SampleFormat != SampleFormatNone && config.SampleFormat != SampleFormatS16 {
		return fmt.Errorf("wav recorder takes S16, not %s: %w", config.SampleFormat, ErrUnsupported)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if config.SampleRate > 0 {
		r.sampleRate = config.SampleRate
	}
	if config.Channels > 0 {
		r.channels = config.Channels
	}
	if v, ok := config.Options["path"]; ok {
		path, ok := v.(string)
		if !ok {
			return fmt.Errorf("path %v: %w", v, ErrInvalidParameter)
		}
		r.path = path
	}
	return nil
}

func (r *WavRecorder) Control(req ControlRequest) error {
	return fmt.Errorf("control %q: %w", req.Name, ErrUnsupported)
}

func (r *WavRecorder) Formats() ([]DeviceFormat, error) {
	return []DeviceFormat{
		{
			MediaType:    MediaTypeAudio,
			SampleFormat: SampleFormatS16,
			SampleRates:  []int{8000, 16000, 24000, 44100, 48000},
			Channels:     1,
		},
		{
			MediaType:    MediaTypeAudio,
			SampleFormat: SampleFormatS16,
			SampleRates:  []int{8000, 16000, 24000, 44100, 48000},
			Channels:     2,
		},
	}, nil
}

func (r *WavRecorder) Start() error {
	if !r.running.CompareAndSwap(false, true) {
		return errDeviceState(r.ID(), "already running")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == "" {
		r.running.Store(false)
		return fmt.Errorf("wav recorder: no path configured: %w", ErrInvalidParameter)
	}
	file, err := os.Create(r.path)
	if err != nil {
		r.running.Store(false)
		return fmt.Errorf("create %s: %w", r.path, err)
	}
	r.file = file
	r.frames = 0
	return nil
}

// WriteFrame appends one frame to the file. The encoder is created on
// the first frame when Configure left the shape open.
func (r *WavRecorder) WriteFrame(frame Frame) error {
	if !r.running.Load() {
		return ErrNotRunning
	}
	af := frame.Audio
	if af == nil {
		return fmt.Errorf("wav recorder takes audio frames: %w", ErrInvalidParameter)
	}
	if af.Desc.Format != SampleFormatS16 {
		return fmt.Errorf("wav recorder takes S16, not %s: %w", af.Desc.Format, ErrUnsupported)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		rate, channels := r.sampleRate, r.channels
		if rate == 0 {
			rate = af.Desc.SampleRate
		}
		if channels == 0 {
			channels = af.Channels()
		}
		r.sampleRate, r.channels = rate, channels
		r.enc = wav.NewEncoder(r.file, rate, 16, channels, 1)
	}
	if af.Desc.SampleRate != r.sampleRate || af.Channels() != r.channels {
		return fmt.Errorf("frame is %d Hz %dch, recorder is %d Hz %dch: %w",
			af.Desc.SampleRate, af.Channels(), r.sampleRate, r.channels, ErrInvalidParameter)
	}

	data := af.Data[0]
	n := af.Samples() * r.channels
	if cap(r.scratch) < n {
		r.scratch = make([]int, n)
	}
	samples := r.scratch[:n]
	for i := 0; i < n; i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: r.channels, SampleRate: r.sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := r.enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	r.frames++
	return nil
}

func (r *WavRecorder) Stop() error {
	if !r.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	if r.enc != nil {
		if err := r.enc.Close(); err != nil {
			firstErr = fmt.Errorf("finalize wav: %w", err)
		}
		r.enc = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.file = nil
	}
	Logger.Debug().Str("path", r.path).Uint64("frames", r.frames).Msg("wav recording finished")
	return firstErr
}

func (r *WavRecorder) Close() error {
	if r.running.Load() {
		return r.Stop()
	}
	return nil
}
