package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func TestWatch_ReportsNewFile(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{Accept: isPDF, Settle: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	events, err := w.Watch(ctx, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "Circular.PDF")
	go func() {
		time.Sleep(100 * time.Millisecond)
		f, _ := os.Create(path)
		f.Write([]byte("%PDF-1.4"))
		f.Write([]byte(" more"))
		f.Close()
	}()

	select {
	case ev := <-events:
		assert.Equal(t, path, ev.Path)
		assert.Equal(t, FileCreated, ev.Operation)
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}

	// the burst of writes is folded into the one event
	select {
	case ev := <-events:
		t.Fatalf("unexpected second event %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatch_FiltersByName(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{Accept: isPDF, Settle: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events, err := w.Watch(ctx, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	select {
	case ev := <-events:
		t.Errorf("should not receive event for %s", ev.Path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_ClosesOnCancel(t *testing.T) {
	w, err := New(Options{})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := w.Watch(ctx, t.TempDir())
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWatch_RejectsMissingDir(t *testing.T) {
	w, err := New(Options{})
	require.NoError(t, err)
	defer w.Stop()

	_, err = w.Watch(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.pdf")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = w.Watch(context.Background(), file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "created", FileCreated.String())
	assert.Equal(t, "modified", FileModified.String())
}
