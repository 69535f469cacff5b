//go:build !linux || nodevices

package mediakit

import "io"

// Hotplug monitoring is Linux only. Enumeration still works through
// explicit DeviceManager.Refresh calls.
func newHotplugWatcher(onChange func()) (io.Closer, error) {
	return nil, nil
}
