// Package ingest coordinates picking documents and submitting them as
// one batch to the ingestion service.
package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kb-assistant/internal/api"
	"kb-assistant/internal/registry"
)

// Status texts shown to the administrator
const (
	EmptySelectionText = "Please select one or more PDF files."
	UploadingText      = "Uploading..."
	FinishedText       = "Upload finished."
	FailedText         = "Upload failed. Check server logs."
)

var (
	// ErrEmptySelection is returned by Submit when nothing is selected
	ErrEmptySelection = errors.New("no files selected")
	// ErrBusy is returned by Submit while a submission is in flight
	ErrBusy = errors.New("upload already in progress")
	// ErrClosed is returned once the coordinator has been torn down
	ErrClosed = errors.New("coordinator closed")
)

// DefaultExtensions lists the file types accepted when none are configured
var DefaultExtensions = []string{".pdf"}

// Uploader submits a batch of files
type Uploader interface {
	Upload(ctx context.Context, files []api.FileRef) ([]api.UploadResult, error)
}

// Refresher reloads the document registry
type Refresher interface {
	Refresh(ctx context.Context) (registry.Snapshot, error)
}

// Options configures a Coordinator
type Options struct {
	Logger     *zap.Logger
	Extensions []string
	// OnChange is called, outside the lock, after any state change
	OnChange func()
}

// Coordinator owns the upload selection, the last outcome and the
// status line
type Coordinator struct {
	uploader  Uploader
	refresher Refresher
	logger    *zap.Logger
	onChange  func()
	allowed   map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	selection  []api.FileRef
	generation uint64
	outcome    []api.UploadResult
	status     string
	busy       bool
	closed     bool
}

// NewCoordinator creates a coordinator with an empty selection.
// refresher may be nil.
func NewCoordinator(uploader Uploader, refresher Refresher, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[NormalizeExtension(ext)] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		uploader:  uploader,
		refresher: refresher,
		logger:    logger.Named("ingest"),
		onChange:  opts.OnChange,
		allowed:   allowed,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// NormalizeExtension lowercases ext and adds a leading dot if missing
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Accepts reports whether name has one of the recognized extensions
func (c *Coordinator) Accepts(name string) bool {
	return c.allowed[strings.ToLower(filepath.Ext(name))]
}

func (c *Coordinator) filter(refs []api.FileRef) []api.FileRef {
	kept := make([]api.FileRef, 0, len(refs))
	for _, ref := range refs {
		if c.Accepts(ref.Name) {
			kept = append(kept, ref)
		}
	}
	return kept
}

// Select replaces the selection with the recognized files in refs and
// returns how many were kept. The previous outcome and status are
// cleared.
func (c *Coordinator) Select(refs []api.FileRef) int {
	kept := c.filter(refs)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.selection = kept
	c.generation++
	c.outcome = nil
	c.status = ""
	c.mu.Unlock()

	c.logger.Debug("selection replaced", zap.Int("offered", len(refs)), zap.Int("kept", len(kept)))
	c.notify()
	return len(kept)
}

// Add appends the recognized files in refs to the selection, replacing
// any file with the same name. It returns the number of selection
// entries added or replaced; a name repeated within refs counts once
// and the last copy wins.
func (c *Coordinator) Add(refs []api.FileRef) int {
	kept := c.filter(refs)
	if len(kept) == 0 {
		return 0
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	selection := append([]api.FileRef(nil), c.selection...)
	touched := make(map[string]bool, len(kept))
	for _, ref := range kept {
		touched[ref.Name] = true
		replaced := false
		for i := range selection {
			if selection[i].Name == ref.Name {
				selection[i] = ref
				replaced = true
				break
			}
		}
		if !replaced {
			selection = append(selection, ref)
		}
	}
	c.selection = selection
	c.generation++
	c.outcome = nil
	c.status = ""
	c.mu.Unlock()

	c.logger.Debug("files added to selection", zap.Int("offered", len(refs)), zap.Int("added", len(touched)))
	c.notify()
	return len(touched)
}

// Submit starts uploading the current selection in the background
func (c *Coordinator) Submit() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if len(c.selection) == 0 {
		c.status = EmptySelectionText
		c.mu.Unlock()
		c.notify()
		return ErrEmptySelection
	}
	c.busy = true
	c.status = UploadingText
	files := append([]api.FileRef(nil), c.selection...)
	generation := c.generation
	c.wg.Add(1)
	c.mu.Unlock()

	c.notify()
	go c.upload(files, generation)
	return nil
}

func (c *Coordinator) upload(files []api.FileRef, generation uint64) {
	defer c.wg.Done()

	start := time.Now()
	results, err := c.uploader.Upload(c.ctx, files)

	c.mu.Lock()
	c.busy = false
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.status = FailedText
		c.mu.Unlock()
		c.logger.Warn("upload failed",
			zap.Int("files", len(files)),
			zap.Bool("network", api.IsNetwork(err)),
			zap.Error(err),
		)
		c.notify()
		return
	}

	if results == nil {
		results = []api.UploadResult{}
	}
	c.outcome = results
	c.status = FinishedText
	if c.generation == generation {
		c.selection = nil
	}
	c.mu.Unlock()

	failed := 0
	for _, r := range results {
		if !r.Processed {
			failed++
		}
	}
	c.logger.Info("upload finished",
		zap.Int("files", len(files)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	c.notify()

	if c.refresher == nil {
		return
	}
	if _, err := c.refresher.Refresh(c.ctx); err != nil && !errors.Is(err, registry.ErrStale) {
		c.logger.Warn("registry refresh after upload failed", zap.Error(err))
	}
}

// Selection returns a copy of the files currently selected
func (c *Coordinator) Selection() []api.FileRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.FileRef(nil), c.selection...)
}

// Outcome returns the per-file results of the last completed upload,
// or nil if there is none
func (c *Coordinator) Outcome() []api.UploadResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return nil
	}
	return append([]api.UploadResult{}, c.outcome...)
}

// Status returns the status line
func (c *Coordinator) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Busy reports whether an upload is in flight
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Wait blocks until the in-flight upload, and the refresh that follows
// it, have finished
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels any in-flight upload and discards its result
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
