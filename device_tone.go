// Tone generator microphone: a virtual audio capture device producing
// S16 interleaved test signals.
package mediakit

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ToneType selects the generated signal.
type ToneType int

const (
	ToneSilence ToneType = iota
	ToneSine
	ToneSquare
	ToneNoise
	ToneSweep // Logarithmic sweep 200 Hz to 2 kHz over two seconds
)

func (t ToneType) String() string {
	switch t {
	case ToneSilence:
		return "silence"
	case ToneSine:
		return "sine"
	case ToneSquare:
		return "square"
	case ToneNoise:
		return "noise"
	case ToneSweep:
		return "sweep"
	default:
		return "unknown"
	}
}

func toneTypeByName(name string) (ToneType, bool) {
	for t := ToneSilence; t <= ToneSweep; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

func init() {
	registerDeviceBackend(func() []Device {
		return []Device{NewToneMicrophone()}
	})
}

// ToneMicrophone generates audio frames at a configurable rate and
// shape. Output is interleaved S16 or F32.
type ToneMicrophone struct {
	mu         sync.Mutex
	format     SampleFormat
	sampleRate int
	channels   int
	frameSize  int
	tone       ToneType
	frequency  float64
	amplitude  float64

	running  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	frames   chan Frame
	handler  FrameHandler
	phase    float64
	elapsed  float64
	rngState uint64
}

// NewToneMicrophone returns a microphone producing a 440 Hz sine at
// 48 kHz stereo in 20 ms frames until configured otherwise.
func NewToneMicrophone() *ToneMicrophone {
	return &ToneMicrophone{
		format:     SampleFormatS16,
		sampleRate: 48000,
		channels:   2,
		frameSize:  960,
		tone:       ToneSine,
		frequency:  440,
		amplitude:  0.5,
		frames:     make(chan Frame, 4),
		rngState:   uint64(time.Now().UnixNano()),
	}
}

func (m *ToneMicrophone) ID() string       { return "tone-microphone" }
func (m *ToneMicrophone) Name() string     { return "Tone Generator Microphone" }
func (m *ToneMicrophone) Kind() DeviceKind { return DeviceKindAudioInput }

func (m *ToneMicrophone) Running() bool { return m.running.Load() }

// Configure adjusts the stream shape. The microphone must be stopped.
func (m *ToneMicrophone) Configure(config DeviceConfig) error {
	if m.running.Load() {
		return errDeviceState(m.ID(), "configure while running")
	}
	switch config.SampleFormat {
	case SampleFormatNone, SampleFormatS16, SampleFormatF32:
	default:
		return fmt.Errorf("tone microphone emits S16 or F32, not %s: %w", config.SampleFormat, ErrUnsupported)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if config.SampleFormat != SampleFormatNone {
		m.format = config.SampleFormat
	}
	if config.SampleRate > 0 {
		m.sampleRate = config.SampleRate
	}
	if config.Channels > 0 {
		m.channels = config.Channels
	}
	if config.FrameSize > 0 {
		m.frameSize = config.FrameSize
	}
	return m.applyOptions(config.Options)
}

func (m *ToneMicrophone) applyOptions(options map[string]any) error {
	for key, value := range options {
		switch key {
		case "tone":
			name, ok := value.(string)
			if !ok {
				return fmt.Errorf("tone %v: %w", value, ErrInvalidParameter)
			}
			t, ok := toneTypeByName(name)
			if !ok {
				return fmt.Errorf("tone %q: %w", name, ErrInvalidParameter)
			}
			m.tone = t
		case "frequency":
			if v, ok := optionFloat(value); ok && v > 0 {
				m.frequency = v
			}
		case "amplitude":
			if v, ok := optionFloat(value); ok && v >= 0 && v <= 1 {
				m.amplitude = v
			}
		}
	}
	return nil
}

// Control handles live adjustments to "tone", "frequency" and
// "amplitude".
func (m *ToneMicrophone) Control(req ControlRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyOptions(map[string]any{req.Name: req.Value})
}

func (m *ToneMicrophone) Formats() ([]DeviceFormat, error) {
	rates := []int{8000, 16000, 24000, 44100, 48000}
	var formats []DeviceFormat
	for _, format := range []SampleFormat{SampleFormatS16, SampleFormatF32} {
		for _, channels := range []int{1, 2} {
			formats = append(formats, DeviceFormat{
				MediaType:    MediaTypeAudio,
				SampleFormat: format,
				SampleRates:  rates,
				Channels:     channels,
			})
		}
	}
	return formats, nil
}

func (m *ToneMicrophone) SetFrameHandler(handler FrameHandler) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

func (m *ToneMicrophone) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-m.frames:
		if !ok {
			return Frame{}, ErrClosed
		}
		return f, nil
	}
}

func (m *ToneMicrophone) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return errDeviceState(m.ID(), "already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.phase = 0
	m.elapsed = 0
	go m.generateLoop(ctx)
	return nil
}

func (m *ToneMicrophone) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	m.cancel()
	<-m.done
	return nil
}

func (m *ToneMicrophone) Close() error {
	if m.running.Load() {
		m.Stop()
	}
	m.mu.Lock()
	if m.frames != nil {
		close(m.frames)
		m.frames = nil
	}
	m.mu.Unlock()
	return nil
}

func (m *ToneMicrophone) generateLoop(ctx context.Context) {
	defer close(m.done)

	m.mu.Lock()
	format, rate, channels, frameSize := m.format, m.sampleRate, m.channels, m.frameSize
	m.mu.Unlock()

	frameDur := time.Duration(frameSize) * time.Second / time.Duration(rate)
	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := NewAudioFrame(format, channels, frameSize, rate)
		if err != nil {
			Logger.Warn().Err(err).Msg("tone frame allocation failed")
			return
		}

		m.mu.Lock()
		m.renderTone(frame)
		handler := m.handler
		frames := m.frames
		m.mu.Unlock()

		frame.PTS = time.Since(start).Nanoseconds()
		frame.TimeBase = NewRational(1, NsecPerSec)
		frame.Duration = frameDur.Nanoseconds()
		frame.Source = m.ID()

		out := AudioFrameOf(frame)
		if handler != nil {
			if err := handler(out); err != nil {
				Logger.Warn().Err(err).Msg("tone frame handler failed")
			}
			continue
		}
		if frames == nil {
			return
		}
		select {
		case frames <- out:
		default:
			// Reader is behind, drop.
		}
	}
}

func (m *ToneMicrophone) renderTone(f *AudioFrame) {
	const (
		sweepLow  = 200.0
		sweepHigh = 2000.0
		sweepLen  = 2.0
	)

	data := f.Data[0]
	rate := float64(f.Desc.SampleRate)
	channels := f.Channels()

	for i := 0; i < f.Samples(); i++ {
		var sample float64
		switch m.tone {
		case ToneSine:
			sample = m.amplitude * math.Sin(m.phase)
			m.phase += 2 * math.Pi * m.frequency / rate
		case ToneSquare:
			if math.Sin(m.phase) >= 0 {
				sample = m.amplitude
			} else {
				sample = -m.amplitude
			}
			m.phase += 2 * math.Pi * m.frequency / rate
		case ToneNoise:
			m.rngState ^= m.rngState << 13
			m.rngState ^= m.rngState >> 7
			m.rngState ^= m.rngState << 17
			sample = m.amplitude * float64(int64(m.rngState)) / float64(math.MaxInt64)
		case ToneSweep:
			progress := math.Mod(m.elapsed, sweepLen) / sweepLen
			freq := math.Exp(math.Log(sweepLow) + progress*(math.Log(sweepHigh)-math.Log(sweepLow)))
			sample = m.amplitude * math.Sin(m.phase)
			m.phase += 2 * math.Pi * freq / rate
			m.elapsed += 1 / rate
		default:
			sample = 0
		}
		if m.phase >= 2*math.Pi {
			m.phase -= 2 * math.Pi
		}

		switch f.Desc.Format {
		case SampleFormatF32:
			bits := math.Float32bits(float32(sample))
			for ch := 0; ch < channels; ch++ {
				binary.LittleEndian.PutUint32(data[4*(i*channels+ch):], bits)
			}
		default:
			v := uint16(int16(sample * 32767))
			for ch := 0; ch < channels; ch++ {
				binary.LittleEndian.PutUint16(data[2*(i*channels+ch):], v)
			}
		}
	}
}
