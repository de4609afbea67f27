package etl

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermeslab/hermes/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError, Format: "json"})
}

type fakeDictStore struct {
	ensured     bool
	meaningless []string
	replace     map[string]string
	special     []string
}

func newFakeDictStore() *fakeDictStore {
	return &fakeDictStore{replace: make(map[string]string)}
}

func (s *fakeDictStore) EnsureDictTables(ctx context.Context) error {
	s.ensured = true
	return nil
}

func (s *fakeDictStore) InsertMeaninglessWord(ctx context.Context, word string) error {
	s.meaningless = append(s.meaningless, word)
	return nil
}

func (s *fakeDictStore) UpsertReplaceWord(ctx context.Context, source, target string) error {
	s.replace[source] = target
	return nil
}

func (s *fakeDictStore) InsertSpecialWord(ctx context.Context, word string) error {
	s.special = append(s.special, word)
	return nil
}

func writeDictFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestImportJobLoadsAllThreeFiles(t *testing.T) {
	dir := t.TempDir()
	writeDictFile(t, dir, "meaningless_words.json", `{"meaningless_words": ["哈", "喔"]}`)
	writeDictFile(t, dir, "replace_words.json", `{"replace_words": {"眉姊姊": "眉姐姐"}}`)
	writeDictFile(t, dir, "special_words.json", `{"special_words": ["甄嬛", "華妃"]}`)

	store := newFakeDictStore()
	job := NewImportJob(store, dir, testLogger())

	records, _, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, store.ensured)
	assert.Equal(t, 5, records)
	assert.ElementsMatch(t, []string{"哈", "喔"}, store.meaningless)
	assert.Equal(t, map[string]string{"眉姊姊": "眉姐姐"}, store.replace)
	assert.ElementsMatch(t, []string{"甄嬛", "華妃"}, store.special)
}

func TestImportJobSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	writeDictFile(t, dir, "special_words.json", `{"special_words": ["甄嬛"]}`)

	store := newFakeDictStore()
	job := NewImportJob(store, dir, testLogger())

	records, _, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, records)
	assert.Empty(t, store.meaningless)
	assert.Empty(t, store.replace)
}

func TestImportJobRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeDictFile(t, dir, "meaningless_words.json", `not json`)

	job := NewImportJob(newFakeDictStore(), dir, testLogger())
	_, _, err := job.Run(context.Background())
	assert.Error(t, err)
}
