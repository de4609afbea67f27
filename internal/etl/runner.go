package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
)

// Job identifiers; each maps to one row per run in etl_execution_log.
const (
	JobProcessChatMessages = "process_chat_messages"
	JobDiscoverNewWords    = "discover_new_words"
	JobImportDicts         = "import_dicts"
)

// Job is one schedulable unit of ETL work. Run returns the number of records
// it handled plus optional metadata for the execution log.
type Job interface {
	ID() string
	Name() string
	Run(ctx context.Context) (records int, metadata map[string]any, err error)
}

// ExecutionStore persists one log row per job run.
type ExecutionStore interface {
	LogExecution(ctx context.Context, entry *pg.ExecutionLog) error
}

// Runner schedules the recurring jobs and executes manual ones. Overlapping
// runs of the same job are coalesced: a tick that fires while the previous
// run is still going is skipped.
type Runner struct {
	store ExecutionStore
	log   *logger.Logger
	cron  *cron.Cron
	jobs  map[string]Job
}

// Schedules, standard five-field cron.
const (
	ScheduleNormalize = "0 * * * *"   // hourly
	ScheduleDiscover  = "0 */3 * * *" // every 3 hours
)

func NewRunner(store ExecutionStore, log *logger.Logger) *Runner {
	r := &Runner{
		store: store,
		log:   log.WithComponent("etl_runner"),
		jobs:  make(map[string]Job),
	}
	r.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(&cronLogAdapter{log: r.log}),
	))
	return r
}

// Register adds a job. An empty schedule registers it for manual runs only.
func (r *Runner) Register(job Job, schedule string) error {
	r.jobs[job.ID()] = job
	if schedule == "" {
		return nil
	}
	_, err := r.cron.AddFunc(schedule, func() {
		r.execute(context.Background(), job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.ID(), err)
	}
	return nil
}

// Start begins the schedule; jobs run on their own goroutines.
func (r *Runner) Start() {
	r.cron.Start()
	r.log.Info("ETL scheduler started", slog.Int("jobs", len(r.jobs)))
}

// Stop halts the schedule and waits for in-flight jobs.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("ETL scheduler stopped")
}

// RunJob executes one job immediately by id, outside the schedule.
func (r *Runner) RunJob(ctx context.Context, jobID string) error {
	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("unknown job %q", jobID)
	}
	return r.execute(ctx, job)
}

// execute runs the job and writes exactly one execution-log row, whatever
// the outcome.
func (r *Runner) execute(ctx context.Context, job Job) error {
	runID := uuid.NewString()
	startedAt := time.Now().UTC()
	log := r.log.WithFields(map[string]any{
		"job_id": job.ID(),
		"run_id": runID,
	})
	log.Info("job started")

	records, metadata, err := job.Run(ctx)

	completedAt := time.Now().UTC()
	entry := &pg.ExecutionLog{
		JobID:            job.ID(),
		JobName:          job.Name(),
		Status:           "completed",
		StartedAt:        startedAt,
		CompletedAt:      completedAt,
		DurationSeconds:  completedAt.Sub(startedAt).Seconds(),
		RecordsProcessed: records,
		Metadata:         metadata,
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	entry.Metadata["run_id"] = runID

	if err != nil {
		entry.Status = "failed"
		entry.ErrorMessage = err.Error()
		log.Error("job failed",
			slog.Duration("duration", completedAt.Sub(startedAt)),
			slog.String("error", err.Error()))
	} else {
		log.Info("job completed",
			slog.Duration("duration", completedAt.Sub(startedAt)),
			slog.Int("records", records))
	}

	if logErr := r.store.LogExecution(ctx, entry); logErr != nil {
		log.Error("failed to write execution log", slog.String("error", logErr.Error()))
	}
	return err
}

// cronLogAdapter bridges the cron logger interface onto slog.
type cronLogAdapter struct {
	log *logger.Logger
}

func (a *cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.log.Debug(msg, slog.Any("details", keysAndValues))
}

func (a *cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.log.Error(msg, slog.String("error", err.Error()), slog.Any("details", keysAndValues))
}
