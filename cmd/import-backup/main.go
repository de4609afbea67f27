package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/hermeslab/hermes/internal/config"
	"github.com/hermeslab/hermes/internal/importer"
	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
)

func main() {
	streamID := flag.String("stream-id", "", "override the video id inferred from the directory layout")
	deleteAfter := flag.Bool("delete", false, "remove backup files after an error-free import")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <backup-file-or-directory>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := pg.InitDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	im := importer.New(db.Store, log)
	summary, err := im.Import(context.Background(), path, importer.Options{
		StreamID: *streamID,
		Delete:   *deleteAfter,
	})
	if err != nil {
		log.Error("import failed", slog.String("path", path), slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("import finished",
		slog.Int("files", summary.Files),
		slog.Int("inserted", summary.Inserted),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("failed", summary.Failed))
}
