package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hermeslab/hermes/internal/logger"
)

// DictStore is the slice of the store the import job needs.
type DictStore interface {
	EnsureDictTables(ctx context.Context) error
	InsertMeaninglessWord(ctx context.Context, word string) error
	UpsertReplaceWord(ctx context.Context, source, target string) error
	InsertSpecialWord(ctx context.Context, word string) error
}

// ImportJob loads the three dictionary JSON files into the active tables.
// Manual job; file shapes follow the curated exports:
//
//	meaningless_words.json  {"meaningless_words": ["word", ...]}
//	replace_words.json      {"replace_words": {"source": "target", ...}}
//	special_words.json      {"special_words": ["word", ...]}
//
// Missing files are skipped with a warning so partial imports work.
type ImportJob struct {
	store   DictStore
	dictDir string
	log     *logger.Logger
}

func NewImportJob(store DictStore, dictDir string, log *logger.Logger) *ImportJob {
	return &ImportJob{
		store:   store,
		dictDir: dictDir,
		log:     log.WithComponent("import_job"),
	}
}

func (j *ImportJob) ID() string   { return JobImportDicts }
func (j *ImportJob) Name() string { return "Dictionary import" }

func (j *ImportJob) Run(ctx context.Context) (int, map[string]any, error) {
	if err := j.store.EnsureDictTables(ctx); err != nil {
		return 0, nil, err
	}

	total := 0

	meaningless, found, err := readWordList(filepath.Join(j.dictDir, "meaningless_words.json"), "meaningless_words")
	if err != nil {
		return total, nil, err
	}
	if !found {
		j.log.Warn("meaningless_words.json not found, skipping")
	}
	for _, w := range meaningless {
		if err := j.store.InsertMeaninglessWord(ctx, w); err != nil {
			return total, nil, err
		}
		total++
	}

	replace, found, err := readWordMap(filepath.Join(j.dictDir, "replace_words.json"), "replace_words")
	if err != nil {
		return total, nil, err
	}
	if !found {
		j.log.Warn("replace_words.json not found, skipping")
	}
	for source, target := range replace {
		if err := j.store.UpsertReplaceWord(ctx, source, target); err != nil {
			return total, nil, err
		}
		total++
	}

	special, found, err := readWordList(filepath.Join(j.dictDir, "special_words.json"), "special_words")
	if err != nil {
		return total, nil, err
	}
	if !found {
		j.log.Warn("special_words.json not found, skipping")
	}
	for _, w := range special {
		if err := j.store.InsertSpecialWord(ctx, w); err != nil {
			return total, nil, err
		}
		total++
	}

	j.log.Info("dictionary import done",
		slog.Int("meaningless", len(meaningless)),
		slog.Int("replace", len(replace)),
		slog.Int("special", len(special)))
	return total, map[string]any{"dict_dir": j.dictDir}, nil
}

func readWordList(path, key string) ([]string, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc map[string][]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc[key], true, nil
}

func readWordMap(path, key string) (map[string]string, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc[key], true, nil
}
