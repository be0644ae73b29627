// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package orchestrator

import (
	"sync"
	"time"
)

// debouncer coalesces repeated events for the same path into one callback
// invocation per quiet window (spec.md §4.O point 2). Adapted verbatim from
// the teacher's internal/drone/watcher/debouncer.go, which already had no
// domain-specific logic to generalise.
type debouncer struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	callback func(string)
	delay    time.Duration
}

func newDebouncer(delay time.Duration, callback func(string)) *debouncer {
	return &debouncer{timers: make(map[string]*time.Timer), callback: callback, delay: delay}
}

// trigger (re)schedules callback(path) after the debounce delay, cancelling
// any pending timer already running for the same path.
func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.timers[path]; exists {
		timer.Stop()
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, path)
		cb := d.callback
		d.mu.Unlock()
		if cb != nil {
			cb(path)
		}
	})
}

// stop cancels every pending timer.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, timer := range d.timers {
		timer.Stop()
	}
	d.timers = make(map[string]*time.Timer)
}
