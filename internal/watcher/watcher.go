package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates the file appeared.
	OpCreate Operation = iota
	// OpModify indicates the file's content changed.
	OpModify
	// OpDelete indicates the file was removed.
	OpDelete
	// OpRename indicates the file was moved away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Gone reports whether the file no longer exists at its path after op.
func (op Operation) Gone() bool {
	return op == OpDelete || op == OpRename
}

// FileEvent represents a change to the watched file.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is the quiet time before a coalesced event is emitted.
	DebounceWindow time.Duration

	// PollInterval is the stat interval in polling mode.
	PollInterval time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 500 * time.Millisecond,
		PollInterval:   2 * time.Second,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	return o
}

// Watcher watches one file.
type Watcher struct {
	path      string
	opts      Options
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	errors    chan error
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a watcher for path. The file does not need to exist yet,
// but its directory does.
func New(path string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	dir := filepath.Dir(abs)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("watch directory %s: not accessible", dir)
	}

	opts = opts.WithDefaults()
	w := &Watcher{
		path:      abs,
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fsw.Add(dir)
			if err != nil {
				_ = fsw.Close()
			}
		}
		if err != nil {
			slog.Warn("fsnotify unavailable, falling back to polling",
				slog.String("path", abs),
				slog.String("error", err.Error()))
		} else {
			w.fsw = fsw
		}
	}
	return w, nil
}

// Path returns the absolute watched path.
func (w *Watcher) Path() string {
	return w.path
}

// Polling reports whether the watcher is polling instead of using fsnotify.
func (w *Watcher) Polling() bool {
	return w.fsw == nil
}

// Events returns debounced events. The channel is closed by Stop.
func (w *Watcher) Events() <-chan FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watcher errors. It is never closed.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Run watches until ctx is cancelled or Stop is called, then stops.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.Stop() }()
	if w.fsw != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

// Stop releases resources. Safe to call multiple times.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			err = w.fsw.Close()
		}
		w.debouncer.Stop()
	})
	return err
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if op, ok := translate(event.Op); ok {
				w.debouncer.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func translate(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove):
		return OpDelete, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	default:
		// Chmod only.
		return 0, false
	}
}

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (w *Watcher) runPolling(ctx context.Context) error {
	prev := w.snapshot()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			cur := w.snapshot()
			if op, changed := diffSnapshots(prev, cur); changed {
				w.debouncer.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
			}
			prev = cur
		}
	}
}

func (w *Watcher) snapshot() fileSnapshot {
	info, err := os.Stat(w.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.emitError(fmt.Errorf("stat %s: %w", w.path, err))
		}
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

func diffSnapshots(prev, cur fileSnapshot) (Operation, bool) {
	switch {
	case !prev.exists && cur.exists:
		return OpCreate, true
	case prev.exists && !cur.exists:
		return OpDelete, true
	case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
		return OpModify, true
	default:
		return 0, false
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Warn("watcher error dropped", slog.String("error", err.Error()))
	}
}
