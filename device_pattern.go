// Test pattern camera: a virtual video capture device generating
// synthetic I420 frames. Always available, which keeps capture
// pipelines runnable on machines without hardware.
package mediakit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// PatternType defines the kind of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal luma gradient
	PatternCheckerboard                    // Checkerboard
	PatternSolidColor                      // Solid color
	PatternNoise                           // Random noise
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "colorbars"
	case PatternGradient:
		return "gradient"
	case PatternCheckerboard:
		return "checkerboard"
	case PatternSolidColor:
		return "solid"
	case PatternNoise:
		return "noise"
	case PatternMovingBox:
		return "movingbox"
	default:
		return "unknown"
	}
}

func patternTypeByName(name string) (PatternType, bool) {
	for p := PatternColorBars; p <= PatternMovingBox; p++ {
		if p.String() == name {
			return p, true
		}
	}
	return 0, false
}

func init() {
	registerDeviceBackend(func() []Device {
		return []Device{NewPatternCamera()}
	})
}

// PatternCamera generates test pattern video frames at a fixed rate.
type PatternCamera struct {
	mu      sync.Mutex
	width   int
	height  int
	rate    Rational
	pattern PatternType
	animate bool

	checkerSize            int
	solidR, solidG, solidB uint8

	running  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	frames   chan Frame
	handler  FrameHandler
	rngState uint64
}

// NewPatternCamera returns a camera producing 1280x720 color bars at
// 30 fps until configured otherwise.
func NewPatternCamera() *PatternCamera {
	return &PatternCamera{
		width:       1280,
		height:      720,
		rate:        NewRational(30, 1),
		pattern:     PatternColorBars,
		checkerSize: 32,
		frames:      make(chan Frame, 2),
		rngState:    uint64(time.Now().UnixNano()),
	}
}

func (c *PatternCamera) ID() string       { return "pattern-camera" }
func (c *PatternCamera) Name() string     { return "Test Pattern Camera" }
func (c *PatternCamera) Kind() DeviceKind { return DeviceKindVideoInput }

func (c *PatternCamera) Running() bool { return c.running.Load() }

// Configure adjusts the stream shape. The camera must be stopped.
func (c *PatternCamera) Configure(config DeviceConfig) error {
	if c.running.Load() {
		return errDeviceState(c.ID(), "configure while running")
	}
	if config.Format != PixelFormatNone && config.Format != PixelFormatI420 {
		return fmt.Errorf("pattern camera emits I420, not %s: %w", config.Format, ErrUnsupported)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if config.Width > 0 {
		c.width = config.Width
	}
	if config.Height > 0 {
		c.height = config.Height
	}
	if !config.FrameRate.IsZero() {
		c.rate = config.FrameRate
	}
	return c.applyOptions(config.Options)
}

func (c *PatternCamera) applyOptions(options map[string]any) error {
	for key, value := range options {
		switch key {
		case "pattern":
			name, ok := value.(string)
			if !ok {
				return fmt.Errorf("pattern %v: %w", value, ErrInvalidParameter)
			}
			p, ok := patternTypeByName(name)
			if !ok {
				return fmt.Errorf("pattern %q: %w", name, ErrInvalidParameter)
			}
			c.pattern = p
		case "animated":
			if v, ok := optionBool(value); ok {
				c.animate = v
			}
		case "checker_size":
			if v, ok := optionInt(value); ok && v > 0 {
				c.checkerSize = int(v)
			}
		case "solid_rgb":
			if v, ok := optionInt(value); ok {
				c.solidR = uint8(v >> 16)
				c.solidG = uint8(v >> 8)
				c.solidB = uint8(v)
			}
		}
	}
	return nil
}

// Control handles live adjustments: "pattern" and "animated" may change
// while frames are flowing.
func (c *PatternCamera) Control(req ControlRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyOptions(map[string]any{req.Name: req.Value})
}

func (c *PatternCamera) Formats() ([]DeviceFormat, error) {
	rates := []Rational{NewRational(15, 1), NewRational(24, 1), NewRational(30, 1), NewRational(60, 1)}
	var formats []DeviceFormat
	for _, size := range [][2]int{{640, 480}, {1280, 720}, {1920, 1080}} {
		formats = append(formats, DeviceFormat{
			MediaType:   MediaTypeVideo,
			PixelFormat: PixelFormatI420,
			Width:       size[0],
			Height:      size[1],
			FrameRates:  rates,
		})
	}
	return formats, nil
}

func (c *PatternCamera) SetFrameHandler(handler FrameHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// ReadFrame returns the next generated frame. Frames are dropped when
// neither a handler nor a reader keeps up.
func (c *PatternCamera) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-c.frames:
		if !ok {
			return Frame{}, ErrClosed
		}
		return f, nil
	}
}

func (c *PatternCamera) Start() error {
	if !c.running.CompareAndSwap(false, true) {
		return errDeviceState(c.ID(), "already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.generateLoop(ctx)
	return nil
}

func (c *PatternCamera) Stop() error {
	if !c.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	c.cancel()
	<-c.done
	return nil
}

func (c *PatternCamera) Close() error {
	if c.running.Load() {
		c.Stop()
	}
	c.mu.Lock()
	if c.frames != nil {
		close(c.frames)
		c.frames = nil
	}
	c.mu.Unlock()
	return nil
}

func (c *PatternCamera) generateLoop(ctx context.Context) {
	defer close(c.done)

	c.mu.Lock()
	width, height, rate := c.width, c.height, c.rate
	c.mu.Unlock()

	frameDur := time.Duration(float64(time.Second) / rate.Float())
	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	start := time.Now()
	var frameNum uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := NewVideoFrame(PixelFormatI420, width, height)
		if err != nil {
			Logger.Warn().Err(err).Msg("pattern frame allocation failed")
			return
		}

		c.mu.Lock()
		c.renderPattern(frame, frameNum)
		handler := c.handler
		frames := c.frames
		c.mu.Unlock()
		frameNum++

		frame.PTS = time.Since(start).Nanoseconds()
		frame.TimeBase = NewRational(1, NsecPerSec)
		frame.Duration = frameDur.Nanoseconds()
		frame.Source = c.ID()

		out := VideoFrameOf(frame)
		if handler != nil {
			if err := handler(out); err != nil {
				Logger.Warn().Err(err).Msg("pattern frame handler failed")
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

func (c *PatternCamera) renderPattern(f *VideoFrame, frameNum uint64) {
	switch c.pattern {
	case PatternGradient:
		c.renderGradient(f)
	case PatternCheckerboard:
		c.renderCheckerboard(f)
	case PatternSolidColor:
		c.renderSolid(f, c.solidR, c.solidG, c.solidB)
	case PatternNoise:
		c.renderNoise(f)
	case PatternMovingBox:
		c.renderMovingBox(f, frameNum)
	default:
		c.renderColorBars(f)
	}
}

// 75% SMPTE bars.
var colorBarsRGB = [8][3]uint8{
	{192, 192, 192}, // white
	{192, 192, 0},   // yellow
	{0, 192, 192},   // cyan
	{0, 192, 0},     // green
	{192, 0, 192},   // magenta
	{192, 0, 0},     // red
	{0, 0, 192},     // blue
	{16, 16, 16},    // black
}

func (c *PatternCamera) renderColorBars(f *VideoFrame) {
	w, h := f.Width(), f.Height()
	barWidth := w / 8
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bar := x / barWidth
			if bar > 7 {
				bar = 7
			}
			rgb := colorBarsRGB[bar]
			yv, u, v := rgbToYUV601(rgb[0], rgb[1], rgb[2])
			f.Data[0][y*f.Stride[0]+x] = yv
			if x%2 == 0 && y%2 == 0 {
				f.Data[1][(y/2)*f.Stride[1]+x/2] = u
				f.Data[2][(y/2)*f.Stride[2]+x/2] = v
			}
		}
	}
}

func (c *PatternCamera) renderGradient(f *VideoFrame) {
	w, h := f.Width(), f.Height()
	for y := 0; y < h; y++ {
		row := f.Data[0][y*f.Stride[0]:]
		for x := 0; x < w; x++ {
			row[x] = uint8(x * 255 / w)
		}
	}
	fillChroma(f, 128, 128)
}

func (c *PatternCamera) renderCheckerboard(f *VideoFrame) {
	w, h := f.Width(), f.Height()
	size := c.checkerSize
	for y := 0; y < h; y++ {
		row := f.Data[0][y*f.Stride[0]:]
		for x := 0; x < w; x++ {
			if ((x/size)+(y/size))%2 == 0 {
				row[x] = 235
			} else {
				row[x] = 16
			}
		}
	}
	fillChroma(f, 128, 128)
}

func (c *PatternCamera) renderSolid(f *VideoFrame, r, g, b uint8) {
	yv, u, v := rgbToYUV601(r, g, b)
	fillPlane(f, 0, yv)
	fillChroma(f, u, v)
}

func (c *PatternCamera) renderNoise(f *VideoFrame) {
	w, h := f.Width(), f.Height()
	for y := 0; y < h; y++ {
		row := f.Data[0][y*f.Stride[0]:]
		for x := 0; x < w; x++ {
			// xorshift64
			c.rngState ^= c.rngState << 13
			c.rngState ^= c.rngState >> 7
			c.rngState ^= c.rngState << 17
			row[x] = uint8(c.rngState)
		}
	}
	fillChroma(f, 128, 128)
}

func (c *PatternCamera) renderMovingBox(f *VideoFrame, frameNum uint64) {
	w, h := f.Width(), f.Height()
	fillPlane(f, 0, 16)
	fillChroma(f, 128, 128)

	boxSize := 100
	radius := float64(min(w, h)) / 4
	angle := float64(frameNum) * 0.05
	boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2

	for y := boxY; y < boxY+boxSize && y < h; y++ {
		if y < 0 {
			continue
		}
		row := f.Data[0][y*f.Stride[0]:]
		for x := boxX; x < boxX+boxSize && x < w; x++ {
			if x < 0 {
				continue
			}
			row[x] = 235
		}
	}
}

func fillPlane(f *VideoFrame, plane int, value byte) {
	rows := f.PlaneHeight(plane)
	rowBytes := f.Desc.Format.PlaneRowBytes(plane, f.Desc.Width)
	for y := 0; y < rows; y++ {
		row := f.Data[plane][y*f.Stride[plane] : y*f.Stride[plane]+rowBytes]
		for i := range row {
			row[i] = value
		}
	}
}

func fillChroma(f *VideoFrame, u, v byte) {
	fillPlane(f, 1, u)
	fillPlane(f, 2, v)
}

// rgbToYUV601 converts one RGB pixel to limited range BT.601.
func rgbToYUV601(r, g, b uint8) (y, u, v uint8) {
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0
	return clampU8(yf, 16, 235), clampU8(uf, 16, 240), clampU8(vf, 16, 240)
}

func clampU8(v, lo, hi float64) uint8 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint8(v)
}
