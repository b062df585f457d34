package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events per path into a single callback
// invocation. Each path has its own quiet period, so a burst on one file
// never delays another.
type Debouncer struct {
	interval time.Duration
	callback func(path string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer that waits for interval of quiet on a
// path before firing callback with that path.
func NewDebouncer(interval time.Duration, callback func(path string)) *Debouncer {
	return &Debouncer{
		interval: interval,
		callback: callback,
		timers:   make(map[string]*time.Timer),
	}
}

// Trigger records an event for path. If no further events for the same
// path arrive within the debounce interval, the callback fires once.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if t, ok := d.timers[path]; ok {
		t.Stop()
	}

	var t *time.Timer

	t = time.AfterFunc(d.interval, func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("debouncer callback panicked", slog.String("path", path), slog.Any("error", r))
			}
		}()

		d.mu.Lock()
		if d.timers[path] == t {
			delete(d.timers, path)
		}
		stopped := d.stopped
		d.mu.Unlock()

		if !stopped {
			d.callback(path)
		}
	})
	d.timers[path] = t
}

// Pending returns the number of paths with a callback still scheduled.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.timers)
}

// Stop cancels all pending callbacks. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}
