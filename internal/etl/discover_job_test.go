package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermeslab/hermes/internal/discovery"
	"github.com/hermeslab/hermes/internal/storage/pg"
)

type fakeDiscoverStore struct {
	dicts   *pg.Dictionaries
	recent  []pg.ProcessedMessage
	replace []*pg.PendingReplaceWord
	special []*pg.PendingSpecialWord
}

func (s *fakeDiscoverStore) ActiveDictionaries(ctx context.Context) (*pg.Dictionaries, error) {
	return s.dicts, nil
}

func (s *fakeDiscoverStore) RecentProcessedMessages(ctx context.Context, since time.Time, limit int) ([]pg.ProcessedMessage, error) {
	return s.recent, nil
}

func (s *fakeDiscoverStore) StagePendingReplace(ctx context.Context, p *pg.PendingReplaceWord) error {
	s.replace = append(s.replace, p)
	return nil
}

func (s *fakeDiscoverStore) StagePendingSpecial(ctx context.Context, p *pg.PendingSpecialWord) error {
	s.special = append(s.special, p)
	return nil
}

type fakeProposer struct {
	req  *discovery.ProposalRequest
	resp *discovery.ProposalResponse
	err  error
}

func (p *fakeProposer) Propose(ctx context.Context, req *discovery.ProposalRequest) (*discovery.ProposalResponse, error) {
	p.req = req
	return p.resp, p.err
}

func repeatedMessages(text, token string, n int) []pg.ProcessedMessage {
	msgs := make([]pg.ProcessedMessage, n)
	for i := range msgs {
		msgs[i] = pg.ProcessedMessage{
			MessageID:     "m",
			ProcessedText: text,
			Tokens:        []string{token},
		}
	}
	return msgs
}

func TestDiscoverJobStagesReconciled(t *testing.T) {
	store := &fakeDiscoverStore{
		dicts: &pg.Dictionaries{
			Special: []string{"甄嬛"},
		},
		recent: repeatedMessages("甄環好美", "甄環", 3),
	}
	proposer := &fakeProposer{
		resp: &discovery.ProposalResponse{
			ProposedReplace: []discovery.ReplaceProposal{
				{Source: "甄嬛", Target: "甄環", Confidence: 0.9},
			},
		},
	}

	job := NewDiscoverJob(store, proposer, 3, 3, testLogger())
	records, _, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, records)
	require.Len(t, store.replace, 1)
	// Protected swap: the canonical term stays the target.
	assert.Equal(t, "甄環", store.replace[0].SourceWord)
	assert.Equal(t, "甄嬛", store.replace[0].TargetWord)
	assert.Equal(t, 3, store.replace[0].OccurrenceCount)
	assert.Empty(t, store.special)

	require.NotNil(t, proposer.req)
	assert.Contains(t, proposer.req.ProtectedVocabulary, "甄嬛")
}

func TestDiscoverJobNoMessagesSkipsEndpoint(t *testing.T) {
	store := &fakeDiscoverStore{dicts: &pg.Dictionaries{}}
	proposer := &fakeProposer{}

	job := NewDiscoverJob(store, proposer, 3, 3, testLogger())
	records, _, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, records)
	assert.Nil(t, proposer.req, "endpoint must not be called for an empty window")
}

func TestDiscoverJobBelowThresholdSkipsEndpoint(t *testing.T) {
	store := &fakeDiscoverStore{
		dicts:  &pg.Dictionaries{},
		recent: repeatedMessages("text", "rare", 2),
	}
	proposer := &fakeProposer{}

	job := NewDiscoverJob(store, proposer, 3, 3, testLogger())
	records, _, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, records)
	assert.Nil(t, proposer.req)
}

func TestDiscoverJobEndpointFailure(t *testing.T) {
	store := &fakeDiscoverStore{
		dicts:  &pg.Dictionaries{},
		recent: repeatedMessages("text", "slang", 5),
	}
	proposer := &fakeProposer{err: errors.New("endpoint down")}

	job := NewDiscoverJob(store, proposer, 3, 3, testLogger())
	_, _, err := job.Run(context.Background())
	assert.Error(t, err)
}
