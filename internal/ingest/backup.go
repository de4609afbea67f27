package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hermeslab/hermes/internal/chat"
)

// backupSeq disambiguates files written within the same second.
var backupSeq atomic.Int64

// BackupWriter persists buffered chat messages to disk before every batch
// upsert, so a crash between flush and commit loses nothing.
type BackupWriter struct {
	dir string
}

// NewBackupWriter creates the per-stream backup directory
// <dataDir>/backup/<videoID> if needed.
func NewBackupWriter(dataDir, videoID string) (*BackupWriter, error) {
	dir := filepath.Join(dataDir, "backup", videoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}
	return &BackupWriter{dir: dir}, nil
}

// Write dumps the messages as a JSON array and returns the file path. The
// interval flusher and a size-triggered flush can both land within the same
// second, so the counter is always part of the name.
func (w *BackupWriter) Write(msgs []*chat.Message) (string, error) {
	name := fmt.Sprintf("chat_buffer_backup_%d_%d.json", time.Now().Unix(), backupSeq.Add(1))
	path := filepath.Join(w.dir, name)
	if err := writeMessages(path, msgs); err != nil {
		return "", err
	}
	return path, nil
}

// Rewrite replaces the file contents with only the still-failed messages so
// the next attempt retries exactly those.
func (w *BackupWriter) Rewrite(path string, failed []*chat.Message) error {
	return writeMessages(path, failed)
}

// Remove deletes a backup file after an error-free batch upsert.
func (w *BackupWriter) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove backup file %s: %w", path, err)
	}
	return nil
}

func writeMessages(path string, msgs []*chat.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal backup messages: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup file %s: %w", path, err)
	}
	return nil
}
