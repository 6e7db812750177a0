// Package transcript archives finished conversations to a JSON file.
// Archived sessions are never loaded back into a live conversation.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"kb-assistant/internal/chat"
)

// Manager handles transcript persistence
type Manager struct {
	filePath    string
	maxSessions int
	apiURL      string
	mu          sync.Mutex
}

// NewManager creates a new transcript manager
func NewManager(filePath string, maxSessions int, apiURL string) *Manager {
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Manager{
		filePath:    filePath,
		maxSessions: maxSessions,
		apiURL:      apiURL,
	}
}

// Load reads the archive from disk. A missing file is an empty archive.
func (m *Manager) Load() (*Archive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadUnlocked()
}

// loadUnlocked reads the archive (must be called with lock held)
func (m *Manager) loadUnlocked() (*Archive, error) {
	archive := &Archive{Sessions: []Entry{}}

	data, err := os.ReadFile(m.filePath)
	if os.IsNotExist(err) {
		return archive, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}

	if err := json.Unmarshal(data, archive); err != nil {
		// Corrupted file - backup and start fresh
		os.Rename(m.filePath, m.filePath+".backup")
		return &Archive{Sessions: []Entry{}}, nil
	}
	return archive, nil
}

// Append archives a finished session. Sessions without messages are
// skipped. The oldest sessions are pruned beyond the configured maximum.
func (m *Manager) Append(session chat.Session) error {
	if len(session.Messages) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}

	archive, err := m.loadUnlocked()
	if err != nil {
		return err
	}

	archive.Sessions = append(archive.Sessions, m.entry(session))
	if len(archive.Sessions) > m.maxSessions {
		archive.Sessions = archive.Sessions[len(archive.Sessions)-m.maxSessions:]
	}

	return writeJSON(m.filePath, archive)
}

func (m *Manager) entry(session chat.Session) Entry {
	return Entry{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		StartedAt: session.StartedAt,
		EndedAt:   time.Now(),
		Language:  session.Language,
		APIURL:    m.apiURL,
		Messages:  session.Messages,
	}
}

// Export writes a single session to path
func (m *Manager) Export(path string, session chat.Session) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	return writeJSON(path, m.entry(session))
}

// writeJSON marshals v and atomically replaces path with it
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	// Write to temp file
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
