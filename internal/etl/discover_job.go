package etl

import (
	"context"
	"log/slog"
	"time"

	"github.com/hermeslab/hermes/internal/discovery"
	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
)

// discoveryMessageLimit caps the window scan; three hours of a busy chat can
// run to six figures otherwise.
const discoveryMessageLimit = 20000

// DiscoverStore is the slice of the store the discovery job needs.
type DiscoverStore interface {
	ActiveDictionaries(ctx context.Context) (*pg.Dictionaries, error)
	RecentProcessedMessages(ctx context.Context, since time.Time, limit int) ([]pg.ProcessedMessage, error)
	StagePendingReplace(ctx context.Context, p *pg.PendingReplaceWord) error
	StagePendingSpecial(ctx context.Context, p *pg.PendingSpecialWord) error
}

// Proposer asks the external endpoint for dictionary proposals.
type Proposer interface {
	Propose(ctx context.Context, req *discovery.ProposalRequest) (*discovery.ProposalResponse, error)
}

// DiscoverJob sends a window of recently processed messages to the proposal
// endpoint, reconciles the answer against the active dictionaries and stages
// accepted items for review.
type DiscoverJob struct {
	store       DiscoverStore
	proposer    Proposer
	windowHours int
	minCount    int
	log         *logger.Logger
}

func NewDiscoverJob(store DiscoverStore, proposer Proposer, windowHours, minCount int, log *logger.Logger) *DiscoverJob {
	if windowHours <= 0 {
		windowHours = 3
	}
	if minCount <= 0 {
		minCount = 3
	}
	return &DiscoverJob{
		store:       store,
		proposer:    proposer,
		windowHours: windowHours,
		minCount:    minCount,
		log:         log.WithComponent("discover_job"),
	}
}

func (j *DiscoverJob) ID() string   { return JobDiscoverNewWords }
func (j *DiscoverJob) Name() string { return "Word discovery" }

func (j *DiscoverJob) Run(ctx context.Context) (int, map[string]any, error) {
	dicts, err := j.store.ActiveDictionaries(ctx)
	if err != nil {
		return 0, nil, err
	}

	since := time.Now().UTC().Add(-time.Duration(j.windowHours) * time.Hour)
	msgs, err := j.store.RecentProcessedMessages(ctx, since, discoveryMessageLimit)
	if err != nil {
		return 0, nil, err
	}
	if len(msgs) == 0 {
		j.log.Info("no processed messages in window")
		return 0, nil, nil
	}

	known := knownWords(dicts)
	tokenCounts := make(map[string]int)
	for _, m := range msgs {
		for _, tok := range m.Tokens {
			if _, seen := known[tok]; seen {
				continue
			}
			tokenCounts[tok]++
		}
	}

	// Only messages carrying at least one unknown token that clears the
	// occurrence threshold are worth the endpoint's attention.
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.ProcessedText == "" {
			continue
		}
		for _, tok := range m.Tokens {
			if tokenCounts[tok] >= j.minCount {
				texts = append(texts, m.ProcessedText)
				break
			}
		}
	}
	if len(texts) == 0 {
		j.log.Info("no candidate messages above occurrence threshold",
			slog.Int("window_messages", len(msgs)))
		return 0, nil, nil
	}

	resp, err := j.proposer.Propose(ctx, &discovery.ProposalRequest{
		Messages:            texts,
		ProtectedVocabulary: protectedWords(dicts),
	})
	if err != nil {
		return 0, nil, err
	}

	existingReplace := make(map[string]string, len(dicts.Replace))
	for _, p := range dicts.Replace {
		existingReplace[p.Source] = p.Target
	}
	existingSpecial := make(map[string]struct{}, len(dicts.Special))
	for _, w := range dicts.Special {
		existingSpecial[w] = struct{}{}
	}

	acceptedReplace, acceptedSpecial := discovery.Reconcile(
		resp.ProposedReplace, resp.ProposedSpecial, existingReplace, existingSpecial)

	staged := 0
	for _, p := range acceptedReplace {
		count := p.OccurrenceCount
		if count == 0 {
			count = tokenCounts[p.Source]
		}
		err := j.store.StagePendingReplace(ctx, &pg.PendingReplaceWord{
			SourceWord:      p.Source,
			TargetWord:      p.Target,
			Confidence:      p.Confidence,
			OccurrenceCount: count,
			ExampleMessages: p.Examples,
			Transformation:  p.Transformation,
		})
		if err != nil {
			j.log.Warn("failed to stage replace proposal",
				slog.String("source", p.Source), slog.String("error", err.Error()))
			continue
		}
		staged++
	}
	for _, p := range acceptedSpecial {
		count := p.OccurrenceCount
		if count == 0 {
			count = tokenCounts[p.Word]
		}
		err := j.store.StagePendingSpecial(ctx, &pg.PendingSpecialWord{
			Word:            p.Word,
			WordType:        p.Type,
			Confidence:      p.Confidence,
			OccurrenceCount: count,
			ExampleMessages: p.Examples,
			AutoAdded:       p.AutoAdded,
		})
		if err != nil {
			j.log.Warn("failed to stage special proposal",
				slog.String("word", p.Word), slog.String("error", err.Error()))
			continue
		}
		staged++
	}

	j.log.Info("discovery done",
		slog.Int("window_messages", len(msgs)),
		slog.Int("sent", len(texts)),
		slog.Int("staged", staged))
	return staged, map[string]any{
		"window_hours":  j.windowHours,
		"sent_messages": len(texts),
	}, nil
}

// knownWords is every word any dictionary already covers.
func knownWords(dicts *pg.Dictionaries) map[string]struct{} {
	known := make(map[string]struct{})
	for _, p := range dicts.Replace {
		known[p.Source] = struct{}{}
		known[p.Target] = struct{}{}
	}
	for _, w := range dicts.Special {
		known[w] = struct{}{}
	}
	for _, w := range dicts.Meaningless {
		known[w] = struct{}{}
	}
	return known
}

// protectedWords is the advisory vocabulary sent to the endpoint: replace
// targets plus special words.
func protectedWords(dicts *pg.Dictionaries) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, p := range dicts.Replace {
		if _, ok := seen[p.Target]; !ok {
			seen[p.Target] = struct{}{}
			words = append(words, p.Target)
		}
	}
	for _, w := range dicts.Special {
		if _, ok := seen[w]; !ok {
			seen[w] = struct{}{}
			words = append(words, w)
		}
	}
	return words
}
