package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hermeslab/hermes/internal/config"
	"github.com/hermeslab/hermes/internal/importer"
	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
	"github.com/hermeslab/hermes/internal/worker"
	"github.com/hermeslab/hermes/internal/youtube"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := pg.InitDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// Signal handling stays here; workers must never register their own.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EnableBackfill {
		backfillBackups(ctx, db.Store, cfg.DataDir, log)
	}

	client, err := youtube.NewClient(ctx, cfg.YouTubeAPIKey, cfg.HTTPTimeout)
	if err != nil {
		log.Error("failed to initialize YouTube client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sup, err := worker.NewSupervisor(ctx, cfg, db.Store, client, youtube.NewSourceFactory(client), log)
	if err != nil {
		log.Error("failed to initialize supervisor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := sup.Run(ctx); err != nil {
		log.Error("worker exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// backfillBackups replays any crash-backup files left by a previous run.
// Failures are logged, not fatal; the import tool can pick up the rest.
func backfillBackups(ctx context.Context, store *pg.Store, dataDir string, log *logger.Logger) {
	root := filepath.Join(dataDir, "backup")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return
	}

	summary, err := importer.New(store, log).Import(ctx, root, importer.Options{Delete: true})
	if err != nil {
		log.Warn("backup backfill incomplete", slog.String("error", err.Error()))
	}
	if summary != nil && summary.Files > 0 {
		log.Info("backup backfill finished",
			slog.Int("files", summary.Files),
			slog.Int("inserted", summary.Inserted),
			slog.Int("duplicates", summary.Duplicates),
			slog.Int("failed", summary.Failed))
	}
}
