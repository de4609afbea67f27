package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// UpsertResult classifies the outcome of a single chat insert.
type UpsertResult int

const (
	Inserted UpsertResult = iota
	Duplicate
)

// BatchError pairs a failed message with its error.
type BatchError struct {
	Message *ChatMessage
	Err     error
}

// BatchResult summarizes a batch_upsert_chat call.
type BatchResult struct {
	Inserted   int
	Duplicates int
	Errors     []BatchError
}

// ReplacePair is one active substitution, ordered by insertion.
type ReplacePair struct {
	Source string
	Target string
}

// Dictionaries is a snapshot of the active dictionary triple.
type Dictionaries struct {
	Replace     []ReplacePair
	Special     []string
	Meaningless []string
}

// ProcessedMessage is the slice of a chat row the discovery job consumes.
type ProcessedMessage struct {
	MessageID     string
	ProcessedText string
	Tokens        []string
}

// Store owns all persistence. Callers hold only transient handles.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const insertChatSQL = `
	INSERT INTO chat_messages
		(message_id, live_stream_id, author_id, author_name, message_type,
		 message, timestamp, published_at, emotes, raw_data)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (message_id) DO NOTHING`

// UpsertChat inserts one chat message. A duplicate message_id is not an
// error; the existing row (including any processed_text/tokens) is left
// untouched.
func (s *Store) UpsertChat(ctx context.Context, msg *ChatMessage) (UpsertResult, error) {
	res, err := s.db.ExecContext(ctx, insertChatSQL, chatInsertArgs(msg)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chat message %s: %w", msg.MessageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return Duplicate, nil
	}
	return Inserted, nil
}

// BatchUpsertChat persists a batch inside one transaction with a savepoint
// per message, so a poison-pill row does not roll back its siblings.
func (s *Store) BatchUpsertChat(ctx context.Context, msgs []*ChatMessage) (BatchResult, error) {
	var result BatchResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT chat_msg"); err != nil {
			return result, fmt.Errorf("failed to create savepoint: %w", err)
		}

		res, err := tx.ExecContext(ctx, insertChatSQL, chatInsertArgs(msg)...)
		if err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT chat_msg"); rbErr != nil {
				return result, fmt.Errorf("failed to roll back savepoint: %w", rbErr)
			}
			result.Errors = append(result.Errors, BatchError{Message: msg, Err: err})
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT chat_msg"); err != nil {
			return result, fmt.Errorf("failed to release savepoint: %w", err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			result.Duplicates++
		} else {
			result.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{Errors: allFailed(msgs, err)}, fmt.Errorf("failed to commit batch: %w", err)
	}
	return result, nil
}

func allFailed(msgs []*ChatMessage, err error) []BatchError {
	out := make([]BatchError, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, BatchError{Message: m, Err: err})
	}
	return out
}

func chatInsertArgs(msg *ChatMessage) []any {
	return []any{
		msg.MessageID,
		msg.LiveStreamID,
		nullStr(msg.AuthorID),
		nullStr(msg.AuthorName),
		msg.MessageType,
		msg.Message,
		msg.Timestamp,
		msg.PublishedAt,
		marshalJSON(msg.Emotes),
		[]byte(msg.RawData),
	}
}

// AppendStats always inserts a new snapshot row.
func (s *Store) AppendStats(ctx context.Context, stats *StreamStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_stats
			(live_stream_id, collected_at, concurrent_viewers, view_count, like_count)
		VALUES ($1, $2, $3, $4, $5)`,
		stats.LiveStreamID, stats.CollectedAt,
		nullInt64(stats.ConcurrentViewers), nullInt64(stats.ViewCount), nullInt64(stats.LikeCount))
	if err != nil {
		return fmt.Errorf("failed to append stream stats: %w", err)
	}
	return nil
}

// UpsertLiveStream refreshes the broadcast metadata row.
func (s *Store) UpsertLiveStream(ctx context.Context, stream *LiveStream) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO live_streams
			(video_id, title, channel_id, channel_title, description, thumbnail_url,
			 tags, category_id, published_at, scheduled_start_time, actual_start_time,
			 live_broadcast_content, default_language, topic_categories, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (video_id) DO UPDATE SET
			title = EXCLUDED.title,
			channel_id = EXCLUDED.channel_id,
			channel_title = EXCLUDED.channel_title,
			description = EXCLUDED.description,
			thumbnail_url = EXCLUDED.thumbnail_url,
			tags = EXCLUDED.tags,
			category_id = EXCLUDED.category_id,
			published_at = EXCLUDED.published_at,
			scheduled_start_time = EXCLUDED.scheduled_start_time,
			actual_start_time = EXCLUDED.actual_start_time,
			live_broadcast_content = EXCLUDED.live_broadcast_content,
			default_language = EXCLUDED.default_language,
			topic_categories = EXCLUDED.topic_categories,
			fetched_at = EXCLUDED.fetched_at`,
		stream.VideoID, nullStr(stream.Title), nullStr(stream.ChannelID),
		nullStr(stream.ChannelTitle), nullStr(stream.Description), nullStr(stream.ThumbnailURL),
		marshalJSON(stream.Tags), nullStr(stream.CategoryID),
		stream.PublishedAt, stream.ScheduledStartTime, stream.ActualStartTime,
		nullStr(stream.LiveBroadcastContent), nullStr(stream.DefaultLanguage),
		marshalJSON(stream.TopicCategories), stream.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert live stream %s: %w", stream.VideoID, err)
	}
	return nil
}

// GetSetting reads one system setting. ErrNotFound when the key is absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// PutSetting upserts one system setting.
func (s *Store) PutSetting(ctx context.Context, key, value, description string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, description, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			description = COALESCE(EXCLUDED.description, system_settings.description),
			updated_at = NOW()`,
		key, value, description)
	if err != nil {
		return fmt.Errorf("failed to put setting %s: %w", key, err)
	}
	return nil
}

// UnprocessedMessages returns up to limit messages with processed_at IS NULL
// in published order. videoID and maxAge are optional narrowing filters.
func (s *Store) UnprocessedMessages(ctx context.Context, limit int, maxAge time.Duration, videoID string) ([]*ChatMessage, error) {
	query := `
		SELECT message_id, live_stream_id, COALESCE(author_id, ''), COALESCE(author_name, ''),
		       message_type, COALESCE(message, ''), COALESCE(timestamp, 0), published_at, emotes
		FROM chat_messages
		WHERE processed_at IS NULL`
	args := []any{}
	if maxAge > 0 {
		args = append(args, time.Now().UTC().Add(-maxAge))
		query += fmt.Sprintf(" AND published_at >= $%d", len(args))
	}
	if videoID != "" {
		args = append(args, videoID)
		query += fmt.Sprintf(" AND live_stream_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY published_at LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed messages: %w", err)
	}
	defer rows.Close()

	var out []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		var emotes []byte
		if err := rows.Scan(&m.MessageID, &m.LiveStreamID, &m.AuthorID, &m.AuthorName,
			&m.MessageType, &m.Message, &m.Timestamp, &m.PublishedAt, &emotes); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		if len(emotes) > 0 {
			if err := json.Unmarshal(emotes, &m.Emotes); err != nil {
				m.Emotes = nil
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MarkProcessed writes back the stage-A outputs. The processed_at IS NULL
// predicate keeps overlapping runs idempotent: the loser is a no-op.
func (s *Store) MarkProcessed(ctx context.Context, messageID, processedText string, tokens, unicodeEmojis []string) error {
	// tokens must be non-null whenever processed_at is set
	if tokens == nil {
		tokens = []string{}
	}
	if unicodeEmojis == nil {
		unicodeEmojis = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_messages
		SET processed_text = $2, tokens = $3, unicode_emojis = $4, processed_at = NOW()
		WHERE message_id = $1 AND processed_at IS NULL`,
		messageID, processedText, marshalJSON(tokens), marshalJSON(unicodeEmojis))
	if err != nil {
		return fmt.Errorf("failed to mark message %s processed: %w", messageID, err)
	}
	return nil
}

// ActiveDictionaries snapshots the dictionary triple. Replace pairs keep
// insertion order so longest-match ties resolve deterministically.
func (s *Store) ActiveDictionaries(ctx context.Context) (*Dictionaries, error) {
	dicts := &Dictionaries{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_word, target_word FROM replace_words ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load replace words: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ReplacePair
		if err := rows.Scan(&p.Source, &p.Target); err != nil {
			return nil, err
		}
		dicts.Replace = append(dicts.Replace, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if dicts.Special, err = s.wordList(ctx, `SELECT word FROM special_words ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to load special words: %w", err)
	}
	if dicts.Meaningless, err = s.wordList(ctx, `SELECT word FROM meaningless_words ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to load meaningless words: %w", err)
	}
	return dicts, nil
}

func (s *Store) wordList(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

// RecentProcessedMessages streams processed rows newer than since, oldest
// first, for the discovery job.
func (s *Store) RecentProcessedMessages(ctx context.Context, since time.Time, limit int) ([]ProcessedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, COALESCE(processed_text, ''), tokens
		FROM chat_messages
		WHERE processed_at IS NOT NULL AND published_at >= $1
		ORDER BY published_at
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed messages: %w", err)
	}
	defer rows.Close()

	var out []ProcessedMessage
	for rows.Next() {
		var m ProcessedMessage
		var tokens []byte
		if err := rows.Scan(&m.MessageID, &m.ProcessedText, &tokens); err != nil {
			return nil, err
		}
		if len(tokens) > 0 {
			if err := json.Unmarshal(tokens, &m.Tokens); err != nil {
				m.Tokens = nil
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// StagePendingReplace stages one replace proposal for human review.
func (s *Store) StagePendingReplace(ctx context.Context, p *PendingReplaceWord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_replace_words
			(source_word, target_word, status, confidence_score, occurrence_count,
			 example_messages, transformation, discovered_at)
		VALUES ($1, $2, 'pending', $3, $4, $5, NULLIF($6, ''), NOW())`,
		p.SourceWord, p.TargetWord, p.Confidence, p.OccurrenceCount,
		marshalJSON(p.ExampleMessages), p.Transformation)
	if err != nil {
		return fmt.Errorf("failed to stage pending replace word: %w", err)
	}
	return nil
}

// StagePendingSpecial stages one special-word proposal for human review.
func (s *Store) StagePendingSpecial(ctx context.Context, p *PendingSpecialWord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_special_words
			(word, word_type, status, confidence_score, occurrence_count,
			 example_messages, auto_added, discovered_at)
		VALUES ($1, NULLIF($2, ''), 'pending', $3, $4, $5, $6, NOW())`,
		p.Word, p.WordType, p.Confidence, p.OccurrenceCount,
		marshalJSON(p.ExampleMessages), p.AutoAdded)
	if err != nil {
		return fmt.Errorf("failed to stage pending special word: %w", err)
	}
	return nil
}

// maxErrorMessageLen caps execution-log error messages.
const maxErrorMessageLen = 500

// truncateErrorMessage cuts on a rune boundary; slicing a multi-byte
// character in half would make Postgres reject the whole row as invalid
// UTF-8.
func truncateErrorMessage(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	cut := maxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// LogExecution appends one ETL execution record. Error messages are
// truncated to 500 bytes.
func (s *Store) LogExecution(ctx context.Context, entry *ExecutionLog) error {
	errMsg := truncateErrorMessage(entry.ErrorMessage)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO etl_execution_log
			(job_id, job_name, status, started_at, completed_at,
			 duration_seconds, records_processed, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`,
		entry.JobID, entry.JobName, entry.Status, entry.StartedAt, entry.CompletedAt,
		entry.DurationSeconds, entry.RecordsProcessed, errMsg, marshalJSON(entry.Metadata))
	if err != nil {
		return fmt.Errorf("failed to log execution: %w", err)
	}
	return nil
}

// UpsertCurrencyRate refreshes one currency conversion row.
func (s *Store) UpsertCurrencyRate(ctx context.Context, currency string, rateToTWD float64, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO currency_rates (currency, rate_to_twd, notes, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NOW())
		ON CONFLICT (currency) DO UPDATE SET
			rate_to_twd = EXCLUDED.rate_to_twd,
			notes = COALESCE(EXCLUDED.notes, currency_rates.notes),
			updated_at = NOW()`,
		currency, rateToTWD, notes)
	if err != nil {
		return fmt.Errorf("failed to upsert currency rate %s: %w", currency, err)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func marshalJSON(v any) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
