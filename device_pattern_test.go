package mediakit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPatternTypeNames(t *testing.T) {
	for p := PatternColorBars; p <= PatternMovingBox; p++ {
		name := p.String()
		if name == "unknown" {
			t.Fatalf("pattern %d has no name", p)
		}
		got, ok := patternTypeByName(name)
		if !ok || got != p {
			t.Errorf("patternTypeByName(%q) = %v, %v; want %v, true", name, got, ok, p)
		}
	}
	if _, ok := patternTypeByName("plasma"); ok {
		t.Error("patternTypeByName accepted an unknown name")
	}
}

func TestPatternCameraIdentity(t *testing.T) {
	cam := NewPatternCamera()
	defer cam.Close()

	if cam.ID() != "pattern-camera" {
		t.Errorf("ID = %q", cam.ID())
	}
	if cam.Kind() != DeviceKindVideoInput {
		t.Errorf("Kind = %v, want video input", cam.Kind())
	}
	if cam.Running() {
		t.Error("camera reports running before Start")
	}

	formats, err := cam.Formats()
	if err != nil {
		t.Fatalf("Formats: %v", err)
	}
	if len(formats) == 0 {
		t.Fatal("no formats advertised")
	}
	for _, f := range formats {
		if f.MediaType != MediaTypeVideo || f.PixelFormat != PixelFormatI420 {
			t.Errorf("format %+v: want I420 video", f)
		}
		if len(f.FrameRates) == 0 {
			t.Errorf("format %dx%d advertises no frame rates", f.Width, f.Height)
		}
	}
}

func TestPatternCameraConfigure(t *testing.T) {
	cam := NewPatternCamera()
	defer cam.Close()

	err := cam.Configure(DeviceConfig{Format: PixelFormatRGB24})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("RGB24 config: err = %v, want ErrUnsupported", err)
	}

	err = cam.Configure(DeviceConfig{Options: map[string]any{"pattern": "plasma"}})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("bad pattern name: err = %v, want ErrInvalidParameter", err)
	}

	err = cam.Configure(DeviceConfig{
		Width:     64,
		Height:    48,
		FrameRate: NewRational(60, 1),
		Options:   map[string]any{"pattern": "gradient"},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cam.Stop()

	if err := cam.Configure(DeviceConfig{Width: 320}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("configure while running: err = %v, want ErrInvalidState", err)
	}
}

func TestPatternCameraCaptureGradient(t *testing.T) {
	cam := NewPatternCamera()
	defer cam.Close()

	err := cam.Configure(DeviceConfig{
		Width:     64,
		Height:    48,
		FrameRate: NewRational(60, 1),
		Options:   map[string]any{"pattern": "gradient"},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cam.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := cam.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	vf := frame.Video
	if vf == nil {
		t.Fatal("frame has no video arm")
	}
	if vf.Format() != PixelFormatI420 || vf.Width() != 64 || vf.Height() != 48 {
		t.Fatalf("frame = %v %dx%d, want I420 64x48", vf.Format(), vf.Width(), vf.Height())
	}
	if vf.Source != "pattern-camera" {
		t.Errorf("Source = %q", vf.Source)
	}
	if vf.TimeBase != NewRational(1, NsecPerSec) {
		t.Errorf("TimeBase = %v", vf.TimeBase)
	}
	if vf.Duration <= 0 {
		t.Errorf("Duration = %d, want > 0", vf.Duration)
	}

	// Gradient luma is x*255/width with neutral chroma.
	row := vf.Data[0]
	if row[0] != 0 {
		t.Errorf("luma[0] = %d, want 0", row[0])
	}
	if got, want := row[63], uint8(63*255/64); got != want {
		t.Errorf("luma[63] = %d, want %d", got, want)
	}
	if vf.Data[1][0] != 128 || vf.Data[2][0] != 128 {
		t.Errorf("chroma = %d,%d, want 128,128", vf.Data[1][0], vf.Data[2][0])
	}
}

func TestPatternCameraSolidBlack(t *testing.T) {
	cam := NewPatternCamera()
	defer cam.Close()

	err := cam.Configure(DeviceConfig{
		Width:     32,
		Height:    32,
		FrameRate: NewRational(60, 1),
		Options:   map[string]any{"pattern": "solid", "solid_rgb": 0x000000},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cam.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := cam.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	vf := frame.Video
	if vf.Data[0][0] != 16 {
		t.Errorf("black luma = %d, want 16", vf.Data[0][0])
	}
	if vf.Data[1][0] != 128 || vf.Data[2][0] != 128 {
		t.Errorf("black chroma = %d,%d, want 128,128", vf.Data[1][0], vf.Data[2][0])
	}
}

func TestPatternCameraFrameHandler(t *testing.T) {
	cam := NewPatternCamera()
	defer cam.Close()

	err := cam.Configure(DeviceConfig{Width: 32, Height: 32, FrameRate: NewRational(60, 1)})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	got := make(chan int64, 16)
	cam.SetFrameHandler(func(f Frame) error {
		if f.Video == nil {
			t.Error("handler frame has no video arm")
			return nil
		}
		select {
		case got <- f.Video.PTS:
		default:
		}
		return nil
	})

	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var pts []int64
	deadline := time.After(2 * time.Second)
	for len(pts) < 3 {
		select {
		case v := <-got:
			pts = append(pts, v)
		case <-deadline:
			t.Fatalf("got %d frames before deadline", len(pts))
		}
	}
	if err := cam.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for i := 1; i < len(pts); i++ {
		if pts[i] <= pts[i-1] {
			t.Errorf("PTS not increasing: %v", pts)
		}
	}
}

func TestPatternCameraStartStop(t *testing.T) {
	cam := NewPatternCamera()
	defer cam.Close()

	if err := cam.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop while stopped: err = %v, want ErrNotRunning", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !cam.Running() {
		t.Error("Running() = false after Start")
	}
	if err := cam.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double Start: err = %v, want ErrInvalidState", err)
	}
	if err := cam.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if cam.Running() {
		t.Error("Running() = true after Stop")
	}

	// Restart after a stop.
	if err := cam.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := cam.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestPatternCameraControl(t *testing.T) {
	cam := NewPatternCamera()
	defer cam.Close()

	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cam.Stop()

	if err := cam.Control(ControlRequest{Name: "pattern", Value: "noise"}); err != nil {
		t.Errorf("Control(pattern=noise): %v", err)
	}
	err := cam.Control(ControlRequest{Name: "pattern", Value: "plasma"})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Control(bad pattern): err = %v, want ErrInvalidParameter", err)
	}
}

func TestPatternCameraReadFrameCancel(t *testing.T) {
	cam := NewPatternCamera()
	defer cam.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cam.ReadFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadFrame on cancelled context: err = %v", err)
	}
}

func BenchmarkPatternColorBars(b *testing.B) {
	cam := NewPatternCamera()
	frame, err := NewVideoFrame(PixelFormatI420, 1280, 720)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		cam.renderPattern(frame, uint64(i))
	}
}

func BenchmarkPatternNoise(b *testing.B) {
	cam := NewPatternCamera()
	if err := cam.Configure(DeviceConfig{Options: map[string]any{"pattern": "noise"}}); err != nil {
		b.Fatal(err)
	}
	frame, err := NewVideoFrame(PixelFormatI420, 1280, 720)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		cam.renderPattern(frame, uint64(i))
	}
}
