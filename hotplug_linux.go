//go:build linux && !nodevices

package mediakit

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// hotplugDebounce coalesces the burst of /dev events a single plug or
// unplug produces into one refresh.
const hotplugDebounce = 500 * time.Millisecond

// hotplugWatcher watches /dev for video and sound node churn and
// invokes onChange after the burst settles.
type hotplugWatcher struct {
	watcher  *fsnotify.Watcher
	done     chan struct{}
	mu       sync.Mutex
	debounce *time.Timer
}

func newHotplugWatcher(onChange func()) (*hotplugWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add("/dev"); err != nil {
		watcher.Close()
		return nil, err
	}
	// Sound card nodes live one level down. Best effort: the directory
	// is absent on machines without ALSA.
	watcher.Add("/dev/snd")

	w := &hotplugWatcher{
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go w.run(onChange)
	return w, nil
}

func (w *hotplugWatcher) run(onChange func()) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if !isMediaDevNode(event.Name) {
				continue
			}
			Logger.Debug().Str("node", event.Name).Str("op", event.Op.String()).Msg("device node changed")
			w.mu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.debounce = time.AfterFunc(hotplugDebounce, onChange)
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			Logger.Warn().Err(err).Msg("device watch error")
		}
	}
}

func isMediaDevNode(path string) bool {
	if strings.HasPrefix(path, "/dev/snd/") {
		return true
	}
	base := filepath.Base(path)
	return strings.HasPrefix(base, "video") || strings.HasPrefix(base, "media")
}

func (w *hotplugWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()
	return err
}
