package mediakit

import (
	"errors"
	"testing"
	"time"
)

func TestDeviceManagerEnumeratesVirtualDevices(t *testing.T) {
	m, err := NewDeviceManager()
	if err != nil {
		t.Fatalf("NewDeviceManager: %v", err)
	}
	defer m.Close()

	for _, id := range []string{"pattern-camera", "tone-microphone", "wav-recorder"} {
		if m.Lookup(id) == nil {
			t.Errorf("Lookup(%q) = nil, want device", id)
		}
	}
	if m.Lookup("no-such-device") != nil {
		t.Error("Lookup of unknown ID returned a device")
	}

	devices := m.Devices()
	if len(devices) < 3 {
		t.Fatalf("len(Devices()) = %d, want >= 3", len(devices))
	}
	if m.Device(0) == nil {
		t.Error("Device(0) = nil")
	}
	if m.Device(-1) != nil || m.Device(len(devices)) != nil {
		t.Error("out of range index returned a device")
	}
}

func TestDeviceManagerCaptures(t *testing.T) {
	m, err := NewDeviceManager()
	if err != nil {
		t.Fatalf("NewDeviceManager: %v", err)
	}
	defer m.Close()

	video := m.Captures(DeviceKindVideoInput)
	foundCamera := false
	for _, c := range video {
		if c.ID() == "pattern-camera" {
			foundCamera = true
		}
	}
	if !foundCamera {
		t.Error("video captures missing pattern-camera")
	}

	audio := m.Captures(DeviceKindAudioInput)
	foundMic := false
	for _, c := range audio {
		if c.ID() == "tone-microphone" {
			foundMic = true
		}
	}
	if !foundMic {
		t.Error("audio captures missing tone-microphone")
	}

	// The WAV recorder is an output device, not a capture.
	for _, c := range m.Captures(DeviceKindAudioOutput) {
		if c.ID() == "wav-recorder" {
			t.Error("wav-recorder listed as a capture device")
		}
	}
}

func TestDeviceManagerRefreshKeepsInstances(t *testing.T) {
	m, err := NewDeviceManager()
	if err != nil {
		t.Fatalf("NewDeviceManager: %v", err)
	}
	defer m.Close()

	before := m.Lookup("pattern-camera")
	if err := m.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	after := m.Lookup("pattern-camera")
	if before != after {
		t.Error("Refresh replaced a connected device instance")
	}
}

func TestDeviceManagerEvents(t *testing.T) {
	m, err := NewDeviceManager()
	if err != nil {
		t.Fatalf("NewDeviceManager: %v", err)
	}
	defer m.Close()

	events := make(chan DeviceEvent, 16)
	cancel := m.OnEvent(func(e DeviceEvent) {
		select {
		case events <- e:
		default:
		}
	})

	if err := m.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind != DevicesRefreshed {
				// Virtual devices are stable, so a plain refresh
				// should not add or remove anything.
				t.Errorf("unexpected event kind %v", e.Kind)
				continue
			}
			if e.Count < 3 {
				t.Errorf("refresh Count = %d, want >= 3", e.Count)
			}
			cancel()
			return
		case <-deadline:
			t.Fatal("no refresh event delivered")
		}
	}
}

func TestDeviceManagerClose(t *testing.T) {
	m, err := NewDeviceManager()
	if err != nil {
		t.Fatalf("NewDeviceManager: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := m.Devices(); len(got) != 0 {
		t.Errorf("Devices() after Close = %d entries", len(got))
	}
	if err := m.Refresh(); !errors.Is(err, ErrClosed) {
		t.Errorf("Refresh after Close: err = %v, want ErrClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
