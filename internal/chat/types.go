package chat

import (
	"time"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one entry of the conversation log. Messages are never
// modified after they are appended.
type Message struct {
	Sender      Sender    `json:"sender"`
	Text        string    `json:"text"`
	SourceTitle string    `json:"source_title,omitempty"`
	Sequence    int64     `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session is a point-in-time copy of the conversation state
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Messages  []Message `json:"messages"`
	Pending   int       `json:"-"`
	Language  string    `json:"language"`
}
