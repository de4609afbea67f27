package etl

import (
	"context"
	"log/slog"
	"time"

	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
	"github.com/hermeslab/hermes/internal/textproc"
)

// NormalizeStore is the slice of the store the normalization job needs.
type NormalizeStore interface {
	ActiveDictionaries(ctx context.Context) (*pg.Dictionaries, error)
	UnprocessedMessages(ctx context.Context, limit int, maxAge time.Duration, videoID string) ([]*pg.ChatMessage, error)
	MarkProcessed(ctx context.Context, messageID, processedText string, tokens, unicodeEmojis []string) error
}

// NormalizeJob processes unprocessed chat rows in batches: normalize, apply
// the replace dictionary, tokenize and write the results back onto the row.
// Reprocessing is prevented by the processed_at predicate in the store.
type NormalizeJob struct {
	store     NormalizeStore
	batchSize int
	log       *logger.Logger
}

func NewNormalizeJob(store NormalizeStore, batchSize int, log *logger.Logger) *NormalizeJob {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &NormalizeJob{
		store:     store,
		batchSize: batchSize,
		log:       log.WithComponent("normalize_job"),
	}
}

func (j *NormalizeJob) ID() string   { return JobProcessChatMessages }
func (j *NormalizeJob) Name() string { return "Chat message normalization" }

func (j *NormalizeJob) Run(ctx context.Context) (int, map[string]any, error) {
	dicts, err := j.store.ActiveDictionaries(ctx)
	if err != nil {
		return 0, nil, err
	}

	replace := make([]textproc.ReplacePair, len(dicts.Replace))
	for i, p := range dicts.Replace {
		replace[i] = textproc.ReplacePair{Source: p.Source, Target: p.Target}
	}
	processor, err := textproc.NewProcessor(replace, dicts.Special, dicts.Meaningless)
	if err != nil {
		return 0, nil, err
	}

	msgs, err := j.store.UnprocessedMessages(ctx, j.batchSize, 0, "")
	if err != nil {
		return 0, nil, err
	}
	if len(msgs) == 0 {
		j.log.Info("no unprocessed messages")
		return 0, nil, nil
	}

	processed := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return processed, nil, ctx.Err()
		}

		emoteNames := make([]string, 0, len(msg.Emotes))
		for _, e := range msg.Emotes {
			emoteNames = append(emoteNames, e.Name)
		}

		result := processor.Process(msg.Message, emoteNames)
		if err := j.store.MarkProcessed(ctx, msg.MessageID,
			result.ProcessedText, result.Tokens, result.UnicodeEmojis); err != nil {
			j.log.Warn("failed to mark message processed",
				slog.String("message_id", msg.MessageID),
				slog.String("error", err.Error()))
			continue
		}
		processed++
	}

	j.log.Info("normalization batch done",
		slog.Int("fetched", len(msgs)), slog.Int("processed", processed))
	return processed, map[string]any{"batch_size": j.batchSize}, nil
}
