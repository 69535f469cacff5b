package mediakit

import (
	"io"
	"sort"
	"sync"

	"github.com/kelindar/event"
)

// DeviceManager enumerates the devices every registered backend can
// see and publishes change events. Virtual devices (test pattern
// camera, tone generator, WAV sink) are always present; platform
// backends contribute real hardware. On Linux a watcher on /dev
// triggers a refresh when capture nodes come and go.
type DeviceManager struct {
	mu      sync.RWMutex
	devices []Device
	byID    map[string]Device
	closed  bool

	bus     *event.Dispatcher
	hotplug io.Closer
}

// NewDeviceManager enumerates devices and starts hotplug monitoring
// where the platform supports it.
func NewDeviceManager() (*DeviceManager, error) {
	m := &DeviceManager{
		byID: make(map[string]Device),
		bus:  event.NewDispatcher(),
	}
	if err := m.Refresh(); err != nil {
		return nil, err
	}

	watcher, err := newHotplugWatcher(func() {
		if err := m.Refresh(); err != nil {
			Logger.Warn().Err(err).Msg("device refresh after hotplug failed")
		}
	})
	if err != nil {
		// Hotplug is best effort; enumeration still works via Refresh.
		Logger.Warn().Err(err).Msg("device hotplug monitoring unavailable")
	} else {
		m.hotplug = watcher
	}
	return m, nil
}

// Refresh re-enumerates all backends, diffs against the known set and
// publishes Added/Removed events followed by one Refreshed event.
func (m *DeviceManager) Refresh() error {
	fresh := enumerateBackendDevices()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	seen := make(map[string]bool, len(fresh))
	next := make([]Device, 0, len(fresh))
	var added []Device
	for _, d := range fresh {
		id := d.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		if old, ok := m.byID[id]; ok {
			// Keep the instance callers may already hold.
			next = append(next, old)
			continue
		}
		next = append(next, d)
		added = append(added, d)
	}

	var removed []Device
	for id, old := range m.byID {
		if !seen[id] {
			removed = append(removed, old)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID() < removed[j].ID() })

	m.devices = next
	m.byID = make(map[string]Device, len(next))
	for _, d := range next {
		m.byID[d.ID()] = d
	}
	m.mu.Unlock()

	for _, d := range removed {
		if d.Running() {
			if err := d.Stop(); err != nil {
				Logger.Warn().Str("device", d.ID()).Err(err).Msg("stopping removed device")
			}
		}
		d.Close()
		event.Publish(m.bus, DeviceEvent{Kind: DeviceRemoved, ID: d.ID()})
		Logger.Debug().Str("device", d.ID()).Msg("device removed")
	}
	for _, d := range added {
		info := DeviceInfo{ID: d.ID(), Name: d.Name(), Kind: d.Kind()}
		event.Publish(m.bus, DeviceEvent{Kind: DeviceAdded, Info: info})
		Logger.Debug().Str("device", info.ID).Str("name", info.Name).Msg("device added")
	}
	event.Publish(m.bus, DeviceEvent{Kind: DevicesRefreshed, Count: len(fresh)})
	return nil
}

// Devices returns a snapshot of the current device list.
func (m *DeviceManager) Devices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Device, len(m.devices))
	copy(out, m.devices)
	return out
}

// Device returns the device at index, or nil when out of range.
func (m *DeviceManager) Device(index int) Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.devices) {
		return nil
	}
	return m.devices[index]
}

// Lookup returns the device with the given ID, or nil.
func (m *DeviceManager) Lookup(id string) Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

// Captures returns the capture devices of one kind.
func (m *DeviceManager) Captures(kind DeviceKind) []CaptureDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []CaptureDevice
	for _, d := range m.devices {
		if c, ok := d.(CaptureDevice); ok && d.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}

// OnEvent subscribes to device change events. The returned function
// cancels the subscription.
func (m *DeviceManager) OnEvent(handler func(DeviceEvent)) func() {
	return event.Subscribe(m.bus, handler)
}

// Close stops hotplug monitoring and every managed device.
func (m *DeviceManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	devices := m.devices
	m.devices = nil
	m.byID = make(map[string]Device)
	m.mu.Unlock()

	if m.hotplug != nil {
		m.hotplug.Close()
	}
	var firstErr error
	for _, d := range devices {
		if d.Running() {
			if err := d.Stop(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
