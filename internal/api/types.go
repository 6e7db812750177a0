package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AskRequest is the body of POST /ask_bot
type AskRequest struct {
	Query    string `json:"query"`
	Language string `json:"language,omitempty"`
}

// Answer is a successful reply from the answering service
type Answer struct {
	Response string  `json:"response"`
	Source   *Source `json:"source,omitempty"`
}

// Source identifies the document an answer was drawn from
type Source struct {
	Title string `json:"title"`
}

// FileRef is a file picked for upload
type FileRef struct {
	Name string
	Data []byte
}

// UploadResult is the per-file outcome reported by the ingestion service
type UploadResult struct {
	Filename  string `json:"filename"`
	Processed bool   `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// UploadResponse is the body returned by POST /admin/upload
type UploadResponse struct {
	Results []UploadResult `json:"results"`
}

// DocumentStatus is the ingestion state of a document
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Known reports whether s is one of the documented statuses.
// Servers may send other values; those are kept verbatim.
func (s DocumentStatus) Known() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

// Document is one entry of GET /admin/docs
type Document struct {
	ID        DocumentID     `json:"id"`
	Title     string         `json:"title"`
	Status    DocumentStatus `json:"status"`
	CreatedAt Timestamp      `json:"created_at"`
}

// DocumentsResponse is the body returned by GET /admin/docs
type DocumentsResponse struct {
	Documents []Document `json:"documents"`
}

// DocumentID accepts either a JSON number or a JSON string.
type DocumentID string

func (id *DocumentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = DocumentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("document id: %w", err)
	}
	*id = DocumentID(n.String())
	return nil
}

// Timestamp parses the created_at field. The backend stores SQLite
// CURRENT_TIMESTAMP values, so both RFC 3339 and "YYYY-MM-DD HH:MM:SS"
// are accepted.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("created_at: unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}
