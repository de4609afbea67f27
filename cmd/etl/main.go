package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hermeslab/hermes/internal/config"
	"github.com/hermeslab/hermes/internal/discovery"
	"github.com/hermeslab/hermes/internal/etl"
	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
)

func main() {
	jobID := flag.String("job", "", "run one job immediately and exit (process_chat_messages, discover_new_words, import_dicts)")
	flag.Parse()

	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := pg.InitDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	runner := etl.NewRunner(db.Store, log)

	if err := runner.Register(etl.NewNormalizeJob(db.Store, cfg.ETLBatchSize, log), etl.ScheduleNormalize); err != nil {
		log.Error("failed to register normalize job", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.DiscoveryEndpoint != "" {
		proposer := discovery.NewClient(cfg.DiscoveryEndpoint, cfg.DiscoveryAPIKey, cfg.HTTPTimeout, log)
		job := etl.NewDiscoverJob(db.Store, proposer, cfg.DiscoveryWindowHours, cfg.DiscoveryMinCount, log)
		if err := runner.Register(job, etl.ScheduleDiscover); err != nil {
			log.Error("failed to register discovery job", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		log.Warn("DISCOVERY_ENDPOINT not set, word discovery disabled")
	}

	// Manual only; promoted dictionaries arrive via files, not a schedule.
	if err := runner.Register(etl.NewImportJob(db.Store, cfg.DictDir, log), ""); err != nil {
		log.Error("failed to register import job", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *jobID != "" {
		if err := runner.RunJob(ctx, *jobID); err != nil {
			log.Error("job run failed", slog.String("job_id", *jobID), slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	runner.Start()
	<-ctx.Done()
	runner.Stop()
}
