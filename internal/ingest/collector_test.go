package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermeslab/hermes/internal/chat"
	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError, Format: "json"})
}

// scriptedSource yields a fixed message sequence, then ends the stream.
type scriptedSource struct {
	msgs []*chat.Message
	idx  int
}

func (s *scriptedSource) Next(ctx context.Context) (*chat.Message, error) {
	if s.idx >= len(s.msgs) {
		return nil, chat.ErrStreamEnded
	}
	msg := s.msgs[s.idx]
	s.idx++
	return msg, nil
}

func (s *scriptedSource) Close() error { return nil }

func scriptedFactory(msgs []*chat.Message) chat.SourceFactory {
	return func(ctx context.Context, url string) (chat.Source, error) {
		return &scriptedSource{msgs: msgs}, nil
	}
}

// recordingStore captures every batch and can inject per-message failures.
type recordingStore struct {
	mu      sync.Mutex
	batches [][]*pg.ChatMessage
	failIDs map[string]bool
	err     error
}

func (s *recordingStore) BatchUpsertChat(ctx context.Context, msgs []*pg.ChatMessage) (pg.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return pg.BatchResult{}, s.err
	}
	s.batches = append(s.batches, msgs)

	var result pg.BatchResult
	for _, m := range msgs {
		if s.failIDs[m.MessageID] {
			result.Errors = append(result.Errors, pg.BatchError{Message: m, Err: errors.New("boom")})
		} else {
			result.Inserted++
		}
	}
	return result, nil
}

func (s *recordingStore) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func makeMessages(n int) []*chat.Message {
	msgs := make([]*chat.Message, n)
	for i := range msgs {
		msgs[i] = &chat.Message{
			MessageID:   string(rune('a' + i)),
			Message:     "msg",
			Timestamp:   time.Now().UnixMicro(),
			MessageType: chat.TypeTextMessage,
		}
	}
	return msgs
}

func backupFiles(t *testing.T, dataDir, videoID string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dataDir, "backup", videoID))
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestCollectorFlushesOnSize(t *testing.T) {
	store := &recordingStore{}
	dataDir := t.TempDir()

	c, err := NewCollector("vid", scriptedFactory(makeMessages(4)), store, testLogger(), Options{
		FlushSize:     3,
		FlushInterval: time.Hour, // size-triggered flush only
		DataDir:       dataDir,
	})
	require.NoError(t, err)

	require.NoError(t, c.Collect(context.Background(), "url"))

	assert.Equal(t, []int{3, 1}, store.batchSizes())

	saved, duplicates, failed := c.Counters()
	assert.Equal(t, int64(4), saved)
	assert.Zero(t, duplicates)
	assert.Zero(t, failed)
}

func TestCollectorRemovesBackupOnCleanFlush(t *testing.T) {
	store := &recordingStore{}
	dataDir := t.TempDir()

	c, err := NewCollector("vid", scriptedFactory(makeMessages(2)), store, testLogger(), Options{
		FlushSize:     100,
		FlushInterval: time.Hour,
		DataDir:       dataDir,
	})
	require.NoError(t, err)

	require.NoError(t, c.Collect(context.Background(), "url"))
	assert.Empty(t, backupFiles(t, dataDir, "vid"))
}

func TestCollectorKeepsBackupOnTotalFailure(t *testing.T) {
	store := &recordingStore{err: errors.New("db down")}
	dataDir := t.TempDir()

	c, err := NewCollector("vid", scriptedFactory(makeMessages(2)), store, testLogger(), Options{
		FlushSize:     100,
		FlushInterval: time.Hour,
		DataDir:       dataDir,
	})
	require.NoError(t, err)

	require.NoError(t, c.Collect(context.Background(), "url"))
	assert.Len(t, backupFiles(t, dataDir, "vid"), 1)

	_, _, failed := c.Counters()
	assert.Equal(t, int64(2), failed)
}

func TestCollectorRewritesBackupOnPartialFailure(t *testing.T) {
	store := &recordingStore{failIDs: map[string]bool{"b": true}}
	dataDir := t.TempDir()

	c, err := NewCollector("vid", scriptedFactory(makeMessages(3)), store, testLogger(), Options{
		FlushSize:     100,
		FlushInterval: time.Hour,
		DataDir:       dataDir,
	})
	require.NoError(t, err)

	require.NoError(t, c.Collect(context.Background(), "url"))

	files := backupFiles(t, dataDir, "vid")
	require.Len(t, files, 1)

	data, err := os.ReadFile(filepath.Join(dataDir, "backup", "vid", files[0]))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"b"`)
	assert.NotContains(t, string(data), `"message_id":"a"`)
}

func TestCollectorHeartbeatAdvances(t *testing.T) {
	store := &recordingStore{}
	c, err := NewCollector("vid", scriptedFactory(makeMessages(1)), store, testLogger(), Options{
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)

	before := c.LastActivity()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Collect(context.Background(), "url"))
	assert.True(t, c.LastActivity().After(before))
}

// blockedSource waits for context cancellation before yielding anything,
// like a live chat that has gone quiet.
type blockedSource struct{}

func (blockedSource) Next(ctx context.Context) (*chat.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockedSource) Close() error { return nil }

func TestCollectorStopInterruptsBlockedNext(t *testing.T) {
	factory := func(ctx context.Context, url string) (chat.Source, error) {
		return blockedSource{}, nil
	}
	c, err := NewCollector("vid", factory, &recordingStore{}, testLogger(), Options{
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Collect(context.Background(), "url") }()

	time.Sleep(50 * time.Millisecond)
	c.Stop()

	select {
	case err := <-done:
		require.NoError(t, err, "a stop-canceled run is not a failure")
	case <-time.After(5 * time.Second):
		t.Fatal("Collect did not return after Stop")
	}
}

func TestCollectWithRetrySurfacesFactoryFailure(t *testing.T) {
	failing := func(ctx context.Context, url string) (chat.Source, error) {
		return nil, errors.New("no live chat")
	}
	c, err := NewCollector("vid", failing, &recordingStore{}, testLogger(), Options{
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)

	err = c.CollectWithRetry(context.Background(), "url", 2, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no live chat")
}
