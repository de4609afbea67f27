package pg

import (
	"context"
	"fmt"
)

// EnsureDictTables creates the dictionary tables and indexes when they are
// missing. The import job calls this so it works against a fresh database
// even before migrations have run.
func (s *Store) EnsureDictTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS meaningless_words (
			id SERIAL PRIMARY KEY,
			word VARCHAR(255) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS replace_words (
			id SERIAL PRIMARY KEY,
			source_word VARCHAR(255) NOT NULL UNIQUE,
			target_word VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS special_words (
			id SERIAL PRIMARY KEY,
			word VARCHAR(255) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_meaningless_words_word ON meaningless_words(word);
		CREATE INDEX IF NOT EXISTS idx_replace_words_source ON replace_words(source_word);
		CREATE INDEX IF NOT EXISTS idx_replace_words_target ON replace_words(target_word);
		CREATE INDEX IF NOT EXISTS idx_special_words_word ON special_words(word);`)
	if err != nil {
		return fmt.Errorf("failed to ensure dictionary tables: %w", err)
	}
	return nil
}

// InsertMeaninglessWord adds one stop-list entry; existing words are kept.
func (s *Store) InsertMeaninglessWord(ctx context.Context, word string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meaningless_words (word) VALUES ($1)
		ON CONFLICT (word) DO NOTHING`, word)
	if err != nil {
		return fmt.Errorf("failed to insert meaningless word %q: %w", word, err)
	}
	return nil
}

// UpsertReplaceWord adds or refreshes one substitution mapping.
func (s *Store) UpsertReplaceWord(ctx context.Context, source, target string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replace_words (source_word, target_word)
		VALUES ($1, $2)
		ON CONFLICT (source_word) DO UPDATE SET
			target_word = EXCLUDED.target_word,
			updated_at = NOW()`, source, target)
	if err != nil {
		return fmt.Errorf("failed to upsert replace word %q: %w", source, err)
	}
	return nil
}

// InsertSpecialWord adds one user-dictionary entry; existing words are kept.
func (s *Store) InsertSpecialWord(ctx context.Context, word string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO special_words (word) VALUES ($1)
		ON CONFLICT (word) DO NOTHING`, word)
	if err != nil {
		return fmt.Errorf("failed to insert special word %q: %w", word, err)
	}
	return nil
}
