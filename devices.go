// Device model: capture and playback endpoints with a common
// configure/control surface, enumerated and watched by DeviceManager.
package mediakit

import (
	"context"
	"fmt"
	"sync"
)

// Frame carries one media frame of any type. Exactly one arm is set.
type Frame struct {
	Audio *AudioFrame
	Video *VideoFrame
	Data  *DataFrame
}

// MediaType reports which arm is set.
func (f Frame) MediaType() MediaType {
	switch {
	case f.Audio != nil:
		return MediaTypeAudio
	case f.Video != nil:
		return MediaTypeVideo
	case f.Data != nil:
		return MediaTypeData
	default:
		return MediaTypeUnknown
	}
}

// AudioFrameOf wraps an audio frame in the union.
func AudioFrameOf(f *AudioFrame) Frame { return Frame{Audio: f} }

// VideoFrameOf wraps a video frame in the union.
func VideoFrameOf(f *VideoFrame) Frame { return Frame{Video: f} }

// DeviceKind represents the type of media device.
type DeviceKind int

const (
	DeviceKindVideoInput  DeviceKind = iota // Camera
	DeviceKindAudioInput                    // Microphone
	DeviceKindAudioOutput                   // Speaker or sink
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindVideoInput:
		return "videoinput"
	case DeviceKindAudioInput:
		return "audioinput"
	case DeviceKindAudioOutput:
		return "audiooutput"
	default:
		return "unknown"
	}
}

// DeviceInfo identifies a device. ID is stable across refreshes for as
// long as the device stays connected.
type DeviceInfo struct {
	ID   string
	Name string
	Kind DeviceKind
}

// DeviceEventKind enumerates device change notifications.
type DeviceEventKind int

const (
	DeviceAdded      DeviceEventKind = iota // new device appeared, Info set
	DeviceRemoved                           // device went away, ID set
	DevicesRefreshed                        // enumeration finished, Count set
)

// DeviceEvent is published on the manager's event bus.
type DeviceEvent struct {
	Kind  DeviceEventKind
	Info  DeviceInfo
	ID    string
	Count int
}

// Type implements the event bus Event interface.
func (DeviceEvent) Type() uint32 { return 1 }

// DeviceConfig carries the negotiated stream shape. Zero fields keep
// the device's current setting. Options holds backend specific keys.
type DeviceConfig struct {
	// Video capture. Codec selects a compressed capture format such as
	// MJPEG; such frames arrive as DataFrame payloads.
	Format    PixelFormat
	Codec     CodecID
	Width     int
	Height    int
	FrameRate Rational

	// Audio capture and playback.
	SampleFormat SampleFormat
	SampleRate   int
	Channels     int
	FrameSize    int // samples per delivered frame

	Options map[string]any
}

// ControlRequest asks a running device to adjust one named control,
// e.g. "brightness" on a camera or "frequency" on the tone generator.
type ControlRequest struct {
	Name  string
	Value any
}

// DeviceFormat describes one capture or playback mode a device offers.
type DeviceFormat struct {
	MediaType MediaType

	// Video modes. CodecID is set for compressed capture formats such
	// as MJPEG cameras, PixelFormat for raw ones.
	PixelFormat PixelFormat
	CodecID     CodecID
	Width       int
	Height      int
	FrameRates  []Rational

	// Audio modes.
	SampleFormat SampleFormat
	SampleRates  []int
	Channels     int
}

// Device is the common surface of every media endpoint.
type Device interface {
	ID() string
	Name() string
	Kind() DeviceKind

	Start() error
	Stop() error
	Running() bool

	Configure(config DeviceConfig) error
	Control(req ControlRequest) error
	Formats() ([]DeviceFormat, error)

	Close() error
}

// FrameHandler receives frames pushed by a running capture device. The
// device stops delivering and reports the error if a handler fails.
type FrameHandler func(frame Frame) error

// CaptureDevice produces frames, delivered either by push through
// SetFrameHandler or by pull through ReadFrame.
type CaptureDevice interface {
	Device
	SetFrameHandler(handler FrameHandler)
	ReadFrame(ctx context.Context) (Frame, error)
}

// OutputDevice consumes frames.
type OutputDevice interface {
	Device
	WriteFrame(frame Frame) error
}

// deviceEnumerator lists the devices a backend can currently see.
// Instances are fresh on every call; the manager keeps the first
// instance it saw for each ID.
type deviceEnumerator func() []Device

var deviceBackends struct {
	mu  sync.Mutex
	fns []deviceEnumerator
}

func registerDeviceBackend(fn deviceEnumerator) {
	deviceBackends.mu.Lock()
	defer deviceBackends.mu.Unlock()
	deviceBackends.fns = append(deviceBackends.fns, fn)
}

func enumerateBackendDevices() []Device {
	deviceBackends.mu.Lock()
	fns := make([]deviceEnumerator, len(deviceBackends.fns))
	copy(fns, deviceBackends.fns)
	deviceBackends.mu.Unlock()

	var devices []Device
	for _, fn := range fns {
		devices = append(devices, fn()...)
	}
	return devices
}

// errDeviceState builds the uniform error for operations that need the
// device started or stopped.
func errDeviceState(name, op string) error {
	return fmt.Errorf("device %s: %s: %w", name, op, ErrInvalidState)
}
