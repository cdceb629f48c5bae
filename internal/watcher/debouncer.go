package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid events for one file into a single event
// emitted after the window passes without new events.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending *FileEvent
	firstOp Operation
	output  chan FileEvent
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		output: make(chan FileEvent, 1),
	}
}

// Add records an event and restarts the window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.pending == nil {
		e := event
		d.pending = &e
		d.firstOp = event.Operation
	} else {
		d.pending = coalesce(d.firstOp, *d.pending, event)
		if d.pending == nil {
			// Created then deleted within the window.
			if d.timer != nil {
				d.timer.Stop()
			}
			return
		}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func coalesce(firstOp Operation, existing, next FileEvent) *FileEvent {
	switch firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return &existing
		case OpDelete, OpRename:
			return nil
		}
	case OpDelete, OpRename:
		if next.Operation == OpCreate || next.Operation == OpModify {
			replaced := next
			replaced.Operation = OpModify
			return &replaced
		}
	}
	return &next
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.pending == nil {
		return
	}
	event := *d.pending
	d.pending = nil

	select {
	case d.output <- event:
	default:
		// A change is already queued; replace it with the newer one.
		select {
		case <-d.output:
		default:
		}
		d.output <- event
	}
}

// Output returns the channel of debounced events.
func (d *Debouncer) Output() <-chan FileEvent {
	return d.output
}

// Stop discards pending events and closes the output channel. Safe to
// call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	close(d.output)
}
