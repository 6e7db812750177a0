package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kb-assistant/internal/chat"
	"kb-assistant/internal/config"
	"kb-assistant/internal/ingest"
	"kb-assistant/internal/stub"
	"kb-assistant/internal/terminal"
	"kb-assistant/internal/ui"
)

func newTestApp(t *testing.T) (*app, *stub.Backend, *bytes.Buffer) {
	t.Helper()
	backend := stub.New()
	server := backend.Start()
	t.Cleanup(server.Close)

	home := t.TempDir()
	cfg := config.NewConfig(env(map[string]string{"HOME": home}))
	cfg.APIURL = server.URL
	require.NoError(t, cfg.Validate())

	var out bytes.Buffer
	display := ui.NewDisplay(ui.Options{Out: &out})
	a := newApp(cfg, zap.NewNop(), display, home)
	t.Cleanup(a.shutdown)
	return a, backend, &out
}

func runLine(t *testing.T, a *app, line string) {
	t.Helper()
	cmd, args, ok := terminal.ParseCommand(line)
	require.True(t, ok, line)
	a.handleCommand(context.Background(), cmd, args)
}

func TestRun_PipedInputWaitsForAnswers(t *testing.T) {
	a, backend, out := newTestApp(t)
	backend.Delay("/ask_bot", 50*time.Millisecond)

	a.run(context.Background(), terminal.NewReader(strings.NewReader("first question\nsecond question")))

	msgs := a.chat.Messages()
	require.Len(t, msgs, 4)
	for _, m := range msgs {
		if m.Sender == chat.SenderBot {
			assert.NotEqual(t, chat.FallbackText, m.Text)
		}
	}
	assert.Zero(t, a.chat.Pending())
	assert.Len(t, backend.Asks(), 2)
	assert.Contains(t, out.String(), "second question")
}

func TestHandleCommand(t *testing.T) {
	a, backend, out := newTestApp(t)
	backend.AddDocument("Fee Circular", "ready", time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))

	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "circular.pdf"), stub.PDF(2), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "notes.txt"), []byte("x"), 0o644))
	exportPath := filepath.Join(t.TempDir(), "session.json")

	steps := []struct {
		line string
		want []string
	}{
		{"/help", []string{"/harvest <url>", "/exit, /quit"}},
		{"/lang", []string{"Auto-detect"}},
		{"/lang hi", []string{"Answer language: Hindi (hi)"}},
		{"/lang xx", []string{"unsupported language"}},
		{"/history", []string{"No messages yet."}},
		{"/selection", []string{"No files selected."}},
		{"/upload", []string{ingest.EmptySelectionText}},
		{"/files " + docs, []string{"circular.pdf"}},
		{"/pick " + filepath.Join(docs, "*"), []string{"Ignored 1 file(s)", "1 file(s) selected"}},
		{"/selection", []string{"circular.pdf", "2 page(s)"}},
		{"/docs", []string{"Fee Circular - ready"}},
		{"/export " + exportPath, []string{"Conversation saved to " + exportPath}},
		{"/unwatch", []string{"Not watching any folder."}},
		{"/watch", []string{"Usage: /watch <dir>"}},
		{"/watch " + docs, []string{"Watching " + docs}},
		{"/unwatch", []string{"Stopped watching " + docs}},
		{"/harvest", []string{"Usage: /harvest <url>"}},
		{"/bogus", []string{"Unknown command /bogus"}},
	}
	for _, step := range steps {
		out.Reset()
		runLine(t, a, step.line)
		for _, want := range step.want {
			assert.Contains(t, out.String(), want, step.line)
		}
	}
	assert.Equal(t, "hi", a.chat.Language())
	assert.FileExists(t, exportPath)

	out.Reset()
	runLine(t, a, "/upload")
	a.ingest.Wait()
	assert.Contains(t, out.String(), ingest.FinishedText)
	assert.Contains(t, out.String(), "circular.pdf - Processed")
	require.Len(t, backend.Uploads(), 1)
	assert.Empty(t, a.ingest.Selection())

	out.Reset()
	runLine(t, a, "/refresh")
	assert.Contains(t, out.String(), "Fee Circular")
	assert.Contains(t, out.String(), "circular.pdf - ")
}

func TestHandleCommand_HarvestKeepsSameNamedDocuments(t *testing.T) {
	a, _, out := newTestApp(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/notices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/dept-a/notice.pdf">A</a><a href="/dept-b/notice.pdf">B</a>`))
	})
	for _, p := range []string{"/dept-a/notice.pdf", "/dept-b/notice.pdf"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(stub.PDF(1))
		})
	}
	site := httptest.NewServer(mux)
	defer site.Close()

	runLine(t, a, "/harvest "+site.URL+"/notices")

	assert.Contains(t, out.String(), "Added 2 file(s) to the selection")
	var selected []string
	for _, ref := range a.ingest.Selection() {
		selected = append(selected, ref.Name)
	}
	assert.Equal(t, []string{"notice.pdf", "notice-2.pdf"}, selected)
}
