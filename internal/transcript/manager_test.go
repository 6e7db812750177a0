package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-assistant/internal/chat"
)

func session(id string, texts ...string) chat.Session {
	s := chat.Session{ID: id, StartedAt: time.Now().Add(-time.Minute), Language: "en"}
	for i, text := range texts {
		sender := chat.SenderUser
		if i%2 == 1 {
			sender = chat.SenderBot
		}
		s.Messages = append(s.Messages, chat.Message{Sender: sender, Text: text, Sequence: int64(i + 1)})
	}
	return s
}

func TestAppend_CreatesArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "transcripts.json")
	m := NewManager(path, 5, "http://kb.local")

	require.NoError(t, m.Append(session("s1", "When is the fee deadline?", "Dec 31\n\nSource: Circular 12")))

	archive, err := m.Load()
	require.NoError(t, err)
	require.Len(t, archive.Sessions, 1)
	entry := archive.Sessions[0]
	assert.Equal(t, "s1", entry.SessionID)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "http://kb.local", entry.APIURL)
	assert.Len(t, entry.Messages, 2)
	assert.Equal(t, chat.SenderBot, entry.Messages[1].Sender)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestAppend_SkipsEmptySession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.json")
	m := NewManager(path, 5, "")

	require.NoError(t, m.Append(session("empty")))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAppend_PrunesOldest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.json")
	m := NewManager(path, 2, "")

	for i := 1; i <= 4; i++ {
		require.NoError(t, m.Append(session(fmt.Sprintf("s%d", i), "q", "a")))
	}

	archive, err := m.Load()
	require.NoError(t, err)
	require.Len(t, archive.Sessions, 2)
	assert.Equal(t, "s3", archive.Sessions[0].SessionID)
	assert.Equal(t, "s4", archive.Sessions[1].SessionID)
}

func TestLoad_CorruptFileIsBackedUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	m := NewManager(path, 5, "")

	archive, err := m.Load()
	require.NoError(t, err)
	assert.Empty(t, archive.Sessions)

	backup, err := os.ReadFile(path + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(backup))
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "transcripts.json"), 5, "")
	out := filepath.Join(dir, "exports", "today.json")

	require.NoError(t, m.Export(out, session("s9", "hello", "hi")))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var entry Entry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "s9", entry.SessionID)
	assert.Equal(t, "en", entry.Language)
	assert.Len(t, entry.Messages, 2)
}
