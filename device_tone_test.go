package mediakit

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestToneTypeNames(t *testing.T) {
	for tt := ToneSilence; tt <= ToneSweep; tt++ {
		name := tt.String()
		if name == "unknown" {
			t.Fatalf("tone %d has no name", tt)
		}
		got, ok := toneTypeByName(name)
		if !ok || got != tt {
			t.Errorf("toneTypeByName(%q) = %v, %v; want %v, true", name, got, ok, tt)
		}
	}
	if _, ok := toneTypeByName("triangle"); ok {
		t.Error("toneTypeByName accepted an unknown name")
	}
}

func TestToneMicrophoneIdentity(t *testing.T) {
	mic := NewToneMicrophone()
	defer mic.Close()

	if mic.ID() != "tone-microphone" {
		t.Errorf("ID = %q", mic.ID())
	}
	if mic.Kind() != DeviceKindAudioInput {
		t.Errorf("Kind = %v, want audio input", mic.Kind())
	}

	formats, err := mic.Formats()
	if err != nil {
		t.Fatalf("Formats: %v", err)
	}
	if len(formats) != 4 {
		t.Fatalf("len(formats) = %d, want 4", len(formats))
	}
	for _, f := range formats {
		if f.MediaType != MediaTypeAudio {
			t.Errorf("format %+v is not audio", f)
		}
		if f.SampleFormat != SampleFormatS16 && f.SampleFormat != SampleFormatF32 {
			t.Errorf("unexpected sample format %v", f.SampleFormat)
		}
	}
}

func TestToneMicrophoneConfigure(t *testing.T) {
	mic := NewToneMicrophone()
	defer mic.Close()

	err := mic.Configure(DeviceConfig{SampleFormat: SampleFormatS16P})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("planar config: err = %v, want ErrUnsupported", err)
	}

	err = mic.Configure(DeviceConfig{Options: map[string]any{"tone": "triangle"}})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("bad tone name: err = %v, want ErrInvalidParameter", err)
	}

	if err := mic.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mic.Stop()
	if err := mic.Configure(DeviceConfig{SampleRate: 16000}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("configure while running: err = %v, want ErrInvalidState", err)
	}
}

func TestToneMicrophoneCaptureSilence(t *testing.T) {
	mic := NewToneMicrophone()
	defer mic.Close()

	err := mic.Configure(DeviceConfig{
		SampleFormat: SampleFormatS16,
		SampleRate:   8000,
		Channels:     1,
		FrameSize:    80,
		Options:      map[string]any{"tone": "silence"},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := mic.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mic.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := mic.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	af := frame.Audio
	if af == nil {
		t.Fatal("frame has no audio arm")
	}
	if af.Desc.Format != SampleFormatS16 || af.Channels() != 1 || af.Desc.SampleRate != 8000 {
		t.Fatalf("frame shape = %v %dch %dHz", af.Desc.Format, af.Channels(), af.Desc.SampleRate)
	}
	if af.Samples() != 80 {
		t.Fatalf("Samples = %d, want 80", af.Samples())
	}
	if af.Source != "tone-microphone" {
		t.Errorf("Source = %q", af.Source)
	}
	if af.Duration != 10_000_000 {
		t.Errorf("Duration = %d ns, want 10ms", af.Duration)
	}
	for i, b := range af.Data[0] {
		if b != 0 {
			t.Fatalf("silence has non-zero byte %d at %d", b, i)
		}
	}
}

func TestToneMicrophoneCaptureSine(t *testing.T) {
	mic := NewToneMicrophone()
	defer mic.Close()

	// 1 kHz at 8 kHz puts a full-scale peak on sample 2.
	err := mic.Configure(DeviceConfig{
		SampleFormat: SampleFormatS16,
		SampleRate:   8000,
		Channels:     1,
		FrameSize:    80,
		Options:      map[string]any{"tone": "sine", "frequency": 1000.0, "amplitude": 1.0},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := mic.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mic.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := mic.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	data := frame.Audio.Data[0]

	if got := s16At(data, 0); got != 0 {
		t.Errorf("sample 0 = %d, want 0", got)
	}
	if got := s16At(data, 2); got < 32700 {
		t.Errorf("sample 2 = %d, want near full scale", got)
	}
	var peak int16
	for i := 0; i < frame.Audio.Samples(); i++ {
		if v := s16At(data, i); v > peak {
			peak = v
		}
	}
	if peak < 32700 {
		t.Errorf("peak = %d, want near 32767", peak)
	}
}

func TestToneMicrophoneCaptureF32(t *testing.T) {
	mic := NewToneMicrophone()
	defer mic.Close()

	err := mic.Configure(DeviceConfig{
		SampleFormat: SampleFormatF32,
		SampleRate:   8000,
		Channels:     2,
		FrameSize:    80,
		Options:      map[string]any{"tone": "sine", "frequency": 1000.0, "amplitude": 0.25},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := mic.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mic.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := mic.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	af := frame.Audio
	if af.Desc.Format != SampleFormatF32 {
		t.Fatalf("format = %v, want F32", af.Desc.Format)
	}

	// Interleaved stereo: sample 2 sits at slots 4 and 5.
	left := f32At(af.Data[0], 4)
	right := f32At(af.Data[0], 5)
	if math.Abs(float64(left)-0.25) > 1e-3 {
		t.Errorf("left peak = %v, want 0.25", left)
	}
	if left != right {
		t.Errorf("channels differ: %v vs %v", left, right)
	}
}

func TestToneMicrophoneControl(t *testing.T) {
	mic := NewToneMicrophone()
	defer mic.Close()

	if err := mic.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mic.Stop()

	if err := mic.Control(ControlRequest{Name: "frequency", Value: 880.0}); err != nil {
		t.Errorf("Control(frequency): %v", err)
	}
	if err := mic.Control(ControlRequest{Name: "tone", Value: "sweep"}); err != nil {
		t.Errorf("Control(tone=sweep): %v", err)
	}
	err := mic.Control(ControlRequest{Name: "tone", Value: "triangle"})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Control(bad tone): err = %v, want ErrInvalidParameter", err)
	}
}

func TestToneMicrophoneStartStop(t *testing.T) {
	mic := NewToneMicrophone()
	defer mic.Close()

	if err := mic.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop while stopped: err = %v, want ErrNotRunning", err)
	}
	if err := mic.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mic.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double Start: err = %v, want ErrInvalidState", err)
	}
	if err := mic.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := mic.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := mic.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
