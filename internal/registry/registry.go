// Package registry keeps the client's view of the documents known to the
// ingestion service. The view is only ever replaced wholesale by the
// result of the most recently dispatched fetch.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"kb-assistant/internal/api"
)

// FailedText is the transient status set when a fetch fails
const FailedText = "Failed to load documents."

var (
	// ErrClosed is returned once the registry has been torn down
	ErrClosed = errors.New("registry closed")
	// ErrStale is returned when a newer refresh finished first; the
	// returned snapshot is the newer one
	ErrStale = errors.New("refresh superseded by a newer one")
)

// Lister fetches the full document list
type Lister interface {
	ListDocuments(ctx context.Context) ([]api.Document, error)
}

// Snapshot is one fetched copy of the document list, in service order
type Snapshot struct {
	Documents []api.Document
	FetchedAt time.Time
	Seq       uint64
}

// Options configures a Registry
type Options struct {
	Logger *zap.Logger
	// OnChange is called, outside the lock, whenever the snapshot or
	// status changes
	OnChange func()
}

// Registry holds the latest document snapshot
type Registry struct {
	lister   Lister
	logger   *zap.Logger
	onChange func()

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	snapshot   Snapshot
	status     string
	dispatched uint64
	applied    uint64
	closed     bool
}

// New creates an empty registry
func New(lister Lister, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		lister:   lister,
		logger:   logger.Named("registry"),
		onChange: opts.OnChange,
		ctx:      ctx,
		cancel:   cancel,
		snapshot: Snapshot{Documents: []api.Document{}},
	}
}

// Refresh fetches the document list. The result is applied only if no
// later-dispatched refresh has been applied already; otherwise ErrStale
// is returned along with the current snapshot. On failure the previous
// snapshot is kept and Status reports FailedText.
func (r *Registry) Refresh(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	r.dispatched++
	seq := r.dispatched
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	docs, err := r.lister.ListDocuments(ctx)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if seq <= r.applied {
		current := r.copySnapshot()
		r.mu.Unlock()
		r.logger.Debug("dropping stale refresh",
			zap.Uint64("seq", seq),
			zap.Uint64("applied", current.Seq),
			zap.Bool("failed", err != nil),
		)
		return current, ErrStale
	}
	r.applied = seq

	if err != nil {
		r.status = FailedText
		current := r.copySnapshot()
		r.mu.Unlock()
		r.logger.Warn("failed to load documents", zap.Uint64("seq", seq), zap.Error(err))
		r.notify()
		return current, err
	}

	if docs == nil {
		docs = []api.Document{}
	}
	r.snapshot = Snapshot{Documents: docs, FetchedAt: time.Now(), Seq: seq}
	r.status = ""
	current := r.copySnapshot()
	r.mu.Unlock()

	r.logger.Debug("documents loaded", zap.Uint64("seq", seq), zap.Int("count", len(docs)))
	r.notify()
	return current, nil
}

// Snapshot returns a copy of the current document list
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copySnapshot()
}

// Status returns the transient status text, empty when the last applied
// refresh succeeded
func (r *Registry) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Close cancels in-flight fetches; their results are discarded
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
}

// must hold r.mu
func (r *Registry) copySnapshot() Snapshot {
	s := r.snapshot
	s.Documents = make([]api.Document, len(r.snapshot.Documents))
	copy(s.Documents, r.snapshot.Documents)
	return s
}

func (r *Registry) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}
