package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hermeslab/hermes/internal/chat"
	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
)

// ChatStore is the slice of the store the collector needs.
type ChatStore interface {
	BatchUpsertChat(ctx context.Context, msgs []*pg.ChatMessage) (pg.BatchResult, error)
}

// Options tunes the collector buffer.
type Options struct {
	FlushSize     int
	FlushInterval time.Duration
	DataDir       string
}

// Collector consumes a chat source for one video id, buffers messages and
// batch-persists them with a crash backup per flush. It reports liveness via
// LastActivity so the supervisor's watchdog can restart a silently stalled
// stream.
type Collector struct {
	videoID string
	factory chat.SourceFactory
	store   ChatStore
	backup  *BackupWriter
	log     *logger.Logger
	opts    Options

	mu     sync.Mutex
	buffer []*chat.Message

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	running      atomic.Bool
	lastActivity atomic.Int64 // unix nanoseconds

	saved      atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

// NewCollector builds a collector bound to one video id.
func NewCollector(videoID string, factory chat.SourceFactory, store ChatStore, log *logger.Logger, opts Options) (*Collector, error) {
	if opts.FlushSize <= 0 {
		opts.FlushSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	backup, err := NewBackupWriter(opts.DataDir, videoID)
	if err != nil {
		return nil, err
	}
	c := &Collector{
		videoID: videoID,
		factory: factory,
		store:   store,
		backup:  backup,
		log:     log.WithComponent("chat_collector"),
		opts:    opts,
	}
	c.lastActivity.Store(time.Now().UnixNano())
	return c, nil
}

// VideoID returns the bound video id.
func (c *Collector) VideoID() string { return c.videoID }

// LastActivity returns the time of the most recently received message.
func (c *Collector) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Stop requests collection to cease. Idempotent. Cancels the in-flight
// source context, so a Next blocked on a quiet stream returns immediately
// instead of waiting for the next message.
func (c *Collector) Stop() {
	c.running.Store(false)
	c.cancelMu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancelMu.Unlock()
}

// CollectWithRetry runs Collect with exponential backoff for transient
// source errors before giving up and surfacing the failure.
func (c *Collector) CollectWithRetry(ctx context.Context, url string, maxAttempts, backoffSeconds int) error {
	c.running.Store(true)
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = c.Collect(ctx, url)
		if lastErr == nil || !c.running.Load() {
			return nil
		}
		if attempt < maxAttempts-1 {
			wait := time.Duration(backoffSeconds<<attempt) * time.Second
			c.log.Warn("collection attempt failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait),
				slog.String("error", lastErr.Error()))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			if !c.running.Load() {
				return nil
			}
		}
	}
	c.log.Error("all collection attempts failed", slog.Int("attempts", maxAttempts))
	return lastErr
}

// Collect opens the source and blocks until the stream ends, Stop is called
// or an unrecoverable error occurs. The buffer is always flushed on exit.
func (c *Collector) Collect(ctx context.Context, url string) error {
	c.log.Info("starting chat collection",
		slog.String("video_id", c.videoID), slog.String("url", url))

	// Stop cancels runCtx, which is the only way out of a Next that is
	// blocked on a stream that has gone quiet.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()

	source, err := c.factory(runCtx, url)
	if err != nil {
		return err
	}
	defer source.Close()

	c.running.Store(true)
	c.lastActivity.Store(time.Now().UnixNano())

	// Interval flush runs beside the consume loop because the iterator may
	// block for longer than the flush interval on a quiet stream.
	flushCtx, cancelFlush := context.WithCancel(runCtx)
	var flusher sync.WaitGroup
	flusher.Add(1)
	go func() {
		defer flusher.Done()
		ticker := time.NewTicker(c.opts.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(flushCtx)
			case <-flushCtx.Done():
				return
			}
		}
	}()
	defer func() {
		cancelFlush()
		flusher.Wait()
		// Final flush with a fresh context so shutdown does not drop the buffer.
		flushTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.flush(flushTimeout)
	}()

	for c.running.Load() {
		msg, err := source.Next(runCtx)
		if err != nil {
			if errors.Is(err, chat.ErrStreamEnded) {
				c.log.Info("chat stream ended", slog.String("video_id", c.videoID))
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		c.lastActivity.Store(time.Now().UnixNano())

		c.mu.Lock()
		c.buffer = append(c.buffer, msg)
		full := len(c.buffer) >= c.opts.FlushSize
		c.mu.Unlock()

		if full {
			c.flush(ctx)
		}
	}

	c.log.Info("chat collection stopped", slog.String("video_id", c.videoID))
	return nil
}

// flush atomically takes the buffer, writes the backup file, batch-upserts
// and reconciles the backup: removed when clean, rewritten with only the
// failed messages on partial failure, left intact on total failure.
func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	backupPath, err := c.backup.Write(batch)
	if err != nil {
		c.log.Error("failed to write backup file", slog.String("error", err.Error()))
		// Persisting is still attempted; the store is the primary copy.
	}

	rows := make([]*pg.ChatMessage, 0, len(batch))
	byID := make(map[string]*chat.Message, len(batch))
	for _, msg := range batch {
		row, convErr := pg.FromChatMessage(msg, c.videoID)
		if convErr != nil {
			c.failed.Add(1)
			c.log.Warn("skipping malformed chat message", slog.String("error", convErr.Error()))
			continue
		}
		rows = append(rows, row)
		byID[row.MessageID] = msg
	}

	result, err := c.store.BatchUpsertChat(ctx, rows)
	if err != nil {
		c.log.Error("batch upsert failed, backup retained",
			slog.Int("messages", len(batch)),
			slog.String("backup", backupPath),
			slog.String("error", err.Error()))
		c.failed.Add(int64(len(rows)))
		return
	}

	c.saved.Add(int64(result.Inserted))
	c.duplicates.Add(int64(result.Duplicates))
	c.failed.Add(int64(len(result.Errors)))

	if backupPath == "" {
		return
	}
	if len(result.Errors) == 0 {
		if err := c.backup.Remove(backupPath); err != nil {
			c.log.Warn("failed to remove backup file", slog.String("error", err.Error()))
		}
	} else {
		failedMsgs := make([]*chat.Message, 0, len(result.Errors))
		for _, be := range result.Errors {
			if msg, ok := byID[be.Message.MessageID]; ok {
				failedMsgs = append(failedMsgs, msg)
			}
		}
		if err := c.backup.Rewrite(backupPath, failedMsgs); err != nil {
			c.log.Error("failed to rewrite backup file", slog.String("error", err.Error()))
		}
		c.log.Warn("batch upsert partially failed",
			slog.Int("inserted", result.Inserted),
			slog.Int("duplicates", result.Duplicates),
			slog.Int("failed", len(result.Errors)),
			slog.String("backup", backupPath))
	}

	c.log.Debug("flushed chat buffer",
		slog.Int("inserted", result.Inserted),
		slog.Int("duplicates", result.Duplicates))
}

// Counters returns the running totals (saved, duplicates, failed).
func (c *Collector) Counters() (int64, int64, int64) {
	return c.saved.Load(), c.duplicates.Load(), c.failed.Load()
}
