package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermeslab/hermes/internal/storage/pg"
)

type fakeExecutionStore struct {
	entries []*pg.ExecutionLog
}

func (s *fakeExecutionStore) LogExecution(ctx context.Context, entry *pg.ExecutionLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

type stubJob struct {
	id      string
	records int
	err     error
	runs    int
}

func (j *stubJob) ID() string   { return j.id }
func (j *stubJob) Name() string { return j.id }
func (j *stubJob) Run(ctx context.Context) (int, map[string]any, error) {
	j.runs++
	return j.records, map[string]any{"note": "x"}, j.err
}

func TestRunnerLogsCompletedRun(t *testing.T) {
	store := &fakeExecutionStore{}
	runner := NewRunner(store, testLogger())
	job := &stubJob{id: "stub", records: 7}
	require.NoError(t, runner.Register(job, ""))

	require.NoError(t, runner.RunJob(context.Background(), "stub"))

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, "completed", entry.Status)
	assert.Equal(t, 7, entry.RecordsProcessed)
	assert.Equal(t, "stub", entry.JobID)
	assert.NotEmpty(t, entry.Metadata["run_id"])
	assert.Equal(t, "x", entry.Metadata["note"])
	assert.False(t, entry.CompletedAt.Before(entry.StartedAt))
}

func TestRunnerLogsFailedRun(t *testing.T) {
	store := &fakeExecutionStore{}
	runner := NewRunner(store, testLogger())
	job := &stubJob{id: "stub", err: errors.New("job blew up")}
	require.NoError(t, runner.Register(job, ""))

	err := runner.RunJob(context.Background(), "stub")
	require.Error(t, err)

	require.Len(t, store.entries, 1)
	assert.Equal(t, "failed", store.entries[0].Status)
	assert.Equal(t, "job blew up", store.entries[0].ErrorMessage)
}

func TestRunnerUnknownJob(t *testing.T) {
	runner := NewRunner(&fakeExecutionStore{}, testLogger())
	assert.Error(t, runner.RunJob(context.Background(), "nope"))
}

func TestRunnerRejectsBadSchedule(t *testing.T) {
	runner := NewRunner(&fakeExecutionStore{}, testLogger())
	assert.Error(t, runner.Register(&stubJob{id: "stub"}, "not a schedule"))
}
