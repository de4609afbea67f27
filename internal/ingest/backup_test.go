package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermeslab/hermes/internal/chat"
)

func TestBackupWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBackupWriter(dir, "video123")
	require.NoError(t, err)

	msgs := []*chat.Message{
		{
			MessageID:   "m1",
			Message:     "hello",
			MessageType: chat.TypeTextMessage,
			RawData:     json.RawMessage(`{"snippet":{"type":"textMessageEvent"}}`),
		},
		{MessageID: "m2", Message: "world", MessageType: chat.TypeTextMessage},
	}
	path, err := w.Write(msgs)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backup", "video123"), filepath.Dir(path))
	assert.Contains(t, filepath.Base(path), "chat_buffer_backup_")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var restored []*chat.Message
	require.NoError(t, json.Unmarshal(data, &restored))
	require.Len(t, restored, 2)
	assert.Equal(t, "m1", restored[0].MessageID)
	assert.Equal(t, "world", restored[1].Message)
	// The preserved source payload must survive the crash-replay path.
	assert.JSONEq(t, `{"snippet":{"type":"textMessageEvent"}}`, string(restored[0].RawData))
}

func TestBackupWriterSameSecondWritesKeepBothFiles(t *testing.T) {
	w, err := NewBackupWriter(t.TempDir(), "v")
	require.NoError(t, err)

	// Both writes land within one second; neither may clobber the other.
	p1, err := w.Write([]*chat.Message{{MessageID: "m1"}})
	require.NoError(t, err)
	p2, err := w.Write([]*chat.Message{{MessageID: "m2"}})
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	assert.FileExists(t, p1)
	assert.FileExists(t, p2)
}

func TestBackupWriterRewriteAndRemove(t *testing.T) {
	w, err := NewBackupWriter(t.TempDir(), "v")
	require.NoError(t, err)

	path, err := w.Write([]*chat.Message{{MessageID: "m1"}, {MessageID: "m2"}})
	require.NoError(t, err)

	require.NoError(t, w.Rewrite(path, []*chat.Message{{MessageID: "m2"}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var restored []*chat.Message
	require.NoError(t, json.Unmarshal(data, &restored))
	require.Len(t, restored, 1)
	assert.Equal(t, "m2", restored[0].MessageID)

	require.NoError(t, w.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	require.NoError(t, w.Remove(path))
}
