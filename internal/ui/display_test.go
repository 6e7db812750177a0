package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kb-assistant/internal/api"
	"kb-assistant/internal/chat"
	"kb-assistant/internal/harvest"
	"kb-assistant/internal/registry"
)

func newTestDisplay(markdown bool) (*Display, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewDisplay(Options{Out: &buf, Markdown: markdown}), &buf
}

func TestOutcomeLine(t *testing.T) {
	assert.Equal(t, "a.pdf - Processed", OutcomeLine(api.UploadResult{Filename: "a.pdf", Processed: true}))
	assert.Equal(t, "b.pdf - Failed (corrupt)", OutcomeLine(api.UploadResult{Filename: "b.pdf", Error: "corrupt"}))
	assert.Equal(t, "c.pdf - Failed (unknown)", OutcomeLine(api.UploadResult{Filename: "c.pdf"}))
}

func TestDocumentLine(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	doc := api.Document{Title: "Fee Circular", Status: api.StatusReady, CreatedAt: api.Timestamp{Time: created}}

	want := "Fee Circular - ready - " + created.Local().Format("2006-01-02 15:04:05")
	assert.Equal(t, want, DocumentLine(doc))

	assert.Equal(t, "X - pending - unknown", DocumentLine(api.Document{Title: "X", Status: api.StatusPending}))
}

func TestPrintMessage_Citation(t *testing.T) {
	d, buf := newTestDisplay(false)

	d.PrintMessage(chat.Message{Sender: chat.SenderUser, Text: "When is the fee deadline?"})
	d.PrintMessage(chat.Message{Sender: chat.SenderBot, Text: "Dec 31\n\nSource: Circular 12", SourceTitle: "Circular 12"})

	out := buf.String()
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "When is the fee deadline?")
	assert.Contains(t, out, "Dec 31")
	assert.Contains(t, out, "Source: Circular 12")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Source: Circular 12")))
	assert.NotContains(t, out, "\x1b[", "colors are off when not writing to a terminal")
}

func TestPrintMessage_Markdown(t *testing.T) {
	d, buf := newTestDisplay(true)

	d.PrintMessage(chat.Message{Sender: chat.SenderBot, Text: "Documents needed:\n\n* **Marksheet**\n* ID proof"})

	out := buf.String()
	assert.Contains(t, out, "Marksheet")
	assert.Contains(t, out, "ID proof")
}

func TestPrintDocuments(t *testing.T) {
	d, buf := newTestDisplay(false)

	d.PrintDocuments(registry.Snapshot{}, registry.FailedText)
	assert.Contains(t, buf.String(), "Failed to load documents.")
	assert.Contains(t, buf.String(), "No documents yet.")

	buf.Reset()
	d.PrintDocuments(registry.Snapshot{Documents: []api.Document{
		{Title: "New", Status: api.StatusProcessing},
		{Title: "Old", Status: api.StatusReady},
	}}, "")
	out := buf.String()
	assert.Contains(t, out, "Documents (2)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("New")), bytes.Index(buf.Bytes(), []byte("Old")))
}

func TestPrintOutcome(t *testing.T) {
	d, buf := newTestDisplay(false)

	d.PrintOutcome([]api.UploadResult{
		{Filename: "a.pdf", Processed: true},
		{Filename: "b.pdf", Error: "Invalid file format"},
	})
	assert.Contains(t, buf.String(), "a.pdf - Processed")
	assert.Contains(t, buf.String(), "b.pdf - Failed (Invalid file format)")
}

func TestPrintSelectionAndHarvest(t *testing.T) {
	d, buf := newTestDisplay(false)

	d.PrintSelection([]SelectionEntry{
		{Name: "a.pdf", Size: 2048, Pages: 3},
		{Name: "b.pdf", Size: 10, Err: errors.New("malformed PDF")},
	})
	assert.Contains(t, buf.String(), "a.pdf (2.0 KB, 3 page(s))")
	assert.Contains(t, buf.String(), "malformed PDF")

	buf.Reset()
	d.PrintHarvest([]harvest.Result{
		{URL: "https://x.org/a.pdf", Name: "a.pdf", Data: make([]byte, 10), Pages: 1, Duration: 20 * time.Millisecond},
		{URL: "https://x.org/b.pdf", Err: errors.New("HTTP 404")},
	})
	assert.Contains(t, buf.String(), "a.pdf (1 page(s), 10 B, 20ms)")
	assert.Contains(t, buf.String(), "https://x.org/b.pdf - HTTP 404")
}

func TestPrintLanguages(t *testing.T) {
	d, buf := newTestDisplay(false)
	d.PrintLanguages("hi")
	assert.Contains(t, buf.String(), "* hi    Hindi")
	assert.Contains(t, buf.String(), "  auto  Auto-detect")
}

func TestSpinner_SilentWhenNotTerminal(t *testing.T) {
	d, buf := newTestDisplay(false)
	s := d.StartSpinner("Harvesting")
	s.Stop()
	s.Stop()
	assert.Empty(t, buf.String())
}
