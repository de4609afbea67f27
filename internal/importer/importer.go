package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hermeslab/hermes/internal/chat"
	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
)

// ChatStore is the slice of the store the importer needs.
type ChatStore interface {
	BatchUpsertChat(ctx context.Context, msgs []*pg.ChatMessage) (pg.BatchResult, error)
}

// Options controls one import run.
type Options struct {
	// StreamID overrides the video id inferred from the directory layout.
	StreamID string
	// Delete removes each backup file after an error-free import.
	Delete bool
}

// Summary aggregates the results over all imported files.
type Summary struct {
	Files      int
	Inserted   int
	Duplicates int
	Failed     int
}

// Importer replays crash-backup files into the store. It accepts a single
// backup file, a per-stream backup directory, or the backup root holding one
// subdirectory per stream.
type Importer struct {
	store ChatStore
	log   *logger.Logger
}

func New(store ChatStore, log *logger.Logger) *Importer {
	return &Importer{store: store, log: log.WithComponent("backup_importer")}
}

// Import dispatches on what path points at.
func (im *Importer) Import(ctx context.Context, path string, opts Options) (*Summary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", path, err)
	}

	summary := &Summary{}
	if !info.IsDir() {
		videoID := opts.StreamID
		if videoID == "" {
			// Files live under .../backup/<video_id>/, so the parent names the stream.
			videoID = filepath.Base(filepath.Dir(path))
		}
		if err := im.importFile(ctx, path, videoID, opts, summary); err != nil {
			return summary, err
		}
		return summary, nil
	}

	if err := im.importDir(ctx, path, opts, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// importDir handles both layouts: a stream directory containing backup files
// directly, or a root whose subdirectories are streams.
func (im *Importer) importDir(ctx context.Context, dir string, opts Options, summary *Summary) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cannot read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			subOpts := opts
			if subOpts.StreamID == "" {
				subOpts.StreamID = entry.Name()
			}
			if err := im.importDir(ctx, full, subOpts, summary); err != nil {
				return err
			}
			continue
		}
		if !isBackupFile(entry.Name()) {
			continue
		}
		videoID := opts.StreamID
		if videoID == "" {
			videoID = filepath.Base(dir)
		}
		if err := im.importFile(ctx, full, videoID, opts, summary); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) importFile(ctx context.Context, path, videoID string, opts Options, summary *Summary) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read backup file %s: %w", path, err)
	}

	var msgs []*chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("malformed backup file %s: %w", path, err)
	}

	summary.Files++
	if len(msgs) == 0 {
		im.log.Info("empty backup file", slog.String("file", path))
		if opts.Delete {
			return os.Remove(path)
		}
		return nil
	}

	rows := make([]*pg.ChatMessage, 0, len(msgs))
	byID := make(map[string]*chat.Message, len(msgs))
	for _, msg := range msgs {
		row, convErr := pg.FromChatMessage(msg, videoID)
		if convErr != nil {
			summary.Failed++
			im.log.Warn("skipping malformed message",
				slog.String("file", path), slog.String("error", convErr.Error()))
			continue
		}
		rows = append(rows, row)
		byID[row.MessageID] = msg
	}

	result, err := im.store.BatchUpsertChat(ctx, rows)
	if err != nil {
		summary.Failed += len(rows)
		return fmt.Errorf("import of %s failed: %w", path, err)
	}

	summary.Inserted += result.Inserted
	summary.Duplicates += result.Duplicates
	summary.Failed += len(result.Errors)

	im.log.Info("imported backup file",
		slog.String("file", path),
		slog.String("video_id", videoID),
		slog.Int("inserted", result.Inserted),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("failed", len(result.Errors)))

	if len(result.Errors) > 0 {
		// Keep only the failed subset so a later retry targets exactly those.
		failed := make([]*chat.Message, 0, len(result.Errors))
		for _, be := range result.Errors {
			if msg, ok := byID[be.Message.MessageID]; ok {
				failed = append(failed, msg)
			}
		}
		remaining, marshalErr := json.Marshal(failed)
		if marshalErr != nil {
			return fmt.Errorf("failed to rewrite %s: %w", path, marshalErr)
		}
		if err := os.WriteFile(path, remaining, 0o644); err != nil {
			return fmt.Errorf("failed to rewrite %s: %w", path, err)
		}
		return nil
	}

	if opts.Delete {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

func isBackupFile(name string) bool {
	return strings.HasPrefix(name, "chat_buffer_backup_") && strings.HasSuffix(name, ".json")
}
