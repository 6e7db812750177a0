// Package watcher turns a drop folder into a source of upload files.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Operation is the kind of change observed
type Operation int

const (
	FileCreated Operation = iota
	FileModified
)

func (o Operation) String() string {
	if o == FileCreated {
		return "created"
	}
	return "modified"
}

// Event reports a recognized file that appeared or changed
type Event struct {
	Path      string
	Operation Operation
}

// Options configures a Watcher
type Options struct {
	// Accept filters file names; nil accepts everything
	Accept func(name string) bool
	// Settle is how long a file must be quiet before it is reported.
	// Copies into the folder produce a burst of writes.
	Settle time.Duration
	Logger *zap.Logger
}

// Watcher monitors one directory with fsnotify
type Watcher struct {
	watcher *fsnotify.Watcher
	accept  func(string) bool
	settle  time.Duration
	logger  *zap.Logger

	emitters sync.WaitGroup
	mu       sync.Mutex
	pending  map[string]*pendingEvent
	stopped  bool
}

type pendingEvent struct {
	timer *time.Timer
	op    Operation
}

// New creates a new file watcher
func New(opts Options) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if opts.Accept == nil {
		opts.Accept = func(string) bool { return true }
	}
	if opts.Settle <= 0 {
		opts.Settle = 300 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Watcher{
		watcher: w,
		accept:  opts.Accept,
		settle:  opts.Settle,
		logger:  opts.Logger.Named("watcher"),
		pending: make(map[string]*pendingEvent),
	}, nil
}

// Watch starts monitoring dir and emits an event once each accepted file
// has settled. The channel is closed when ctx is done or Stop is called.
// A Watcher serves a single Watch call.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan Event, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan Event, 100)

	go func() {
		defer func() {
			w.cancelPending()
			w.emitters.Wait()
			close(events)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.accept(filepath.Base(event.Name)) {
					continue
				}

				var op Operation
				switch {
				case event.Op&fsnotify.Create == fsnotify.Create:
					op = FileCreated
				case event.Op&fsnotify.Write == fsnotify.Write:
					op = FileModified
				default:
					continue
				}
				w.schedule(ctx, events, event.Name, op)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.String("dir", dir), zap.Error(err))
			}
		}
	}()

	return events, nil
}

// schedule (re)starts the settle timer for a path. A create followed by
// writes is reported once, as a create.
func (w *Watcher) schedule(ctx context.Context, events chan<- Event, path string, op Operation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		w.emitters.Done()
		if p.op == FileCreated {
			op = FileCreated
		}
	}

	p := &pendingEvent{op: op}
	w.emitters.Add(1)
	p.timer = time.AfterFunc(w.settle, func() {
		defer w.emitters.Done()
		w.mu.Lock()
		if w.pending[path] == p {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		select {
		case events <- Event{Path: path, Operation: op}:
		case <-ctx.Done():
		}
	})
	w.pending[path] = p
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for path, p := range w.pending {
		// a stopped timer never runs its callback
		if p.timer.Stop() {
			w.emitters.Done()
		}
		delete(w.pending, path)
	}
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
