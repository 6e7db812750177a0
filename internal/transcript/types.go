package transcript

import (
	"time"

	"kb-assistant/internal/chat"
)

// Archive represents every finished session kept on disk
type Archive struct {
	Sessions []Entry `json:"sessions"`
}

// Entry is one archived conversation
type Entry struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Language  string         `json:"language"`
	APIURL    string         `json:"api_url,omitempty"`
	Messages  []chat.Message `json:"messages"`
}
