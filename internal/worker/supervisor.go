package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hermeslab/hermes/internal/chat"
	"github.com/hermeslab/hermes/internal/config"
	"github.com/hermeslab/hermes/internal/ingest"
	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/stats"
	"github.com/hermeslab/hermes/internal/storage/pg"
	"github.com/hermeslab/hermes/internal/youtube"
)

// SettingKeyYouTubeURL is the system_settings row observed for hot-swaps.
const SettingKeyYouTubeURL = "youtube_url"

const (
	restartAfterCompletion = 30 * time.Second
	restartAfterFailure    = 60 * time.Second
	watchdogRestartPause   = 2 * time.Second
	shutdownJoinTimeout    = 10 * time.Second
)

// Store is the slice of persistence the supervisor and its workers need.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value, description string) error
	BatchUpsertChat(ctx context.Context, msgs []*pg.ChatMessage) (pg.BatchResult, error)
	UpsertLiveStream(ctx context.Context, stream *pg.LiveStream) error
	AppendStats(ctx context.Context, stats *pg.StreamStats) error
}

// Supervisor owns the chat collector and the stats poller, plus the two
// monitors that restart them: a URL-change monitor and a chat watchdog.
// The restart lock serializes replacement of the worker pair so the two
// monitors cannot interleave a stop/start sequence.
type Supervisor struct {
	cfg     *config.Config
	store   Store
	client  stats.VideoAPI
	factory chat.SourceFactory
	log     *logger.Logger
	baseLog *logger.Logger

	restartMu sync.Mutex
	url       string
	videoID   string
	collector *ingest.Collector
	poller    *stats.Poller

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewSupervisor resolves the initial URL (the database setting wins over the
// environment when both are present) and builds the first worker pair.
func NewSupervisor(ctx context.Context, cfg *config.Config, store Store, client stats.VideoAPI, factory chat.SourceFactory, log *logger.Logger) (*Supervisor, error) {
	s := &Supervisor{
		cfg:     cfg,
		store:   store,
		client:  client,
		factory: factory,
		log:     log.WithComponent("supervisor"),
		baseLog: log,
	}

	url, err := s.resolveStartURL(ctx)
	if err != nil {
		return nil, err
	}
	videoID, err := youtube.ExtractVideoID(url)
	if err != nil {
		return nil, fmt.Errorf("invalid YouTube URL %q: %w", url, err)
	}
	s.url = url
	s.videoID = videoID

	if err := s.buildWorkers(); err != nil {
		return nil, err
	}
	return s, nil
}

// resolveStartURL prefers the system_settings row; the YOUTUBE_URL env seeds
// the setting on first boot so later hot-swaps have a row to update.
func (s *Supervisor) resolveStartURL(ctx context.Context) (string, error) {
	dbURL, err := s.store.GetSetting(ctx, SettingKeyYouTubeURL)
	if err == nil && dbURL != "" {
		return dbURL, nil
	}
	if s.cfg.YouTubeURL == "" {
		return "", fmt.Errorf("YouTube URL must be provided (YOUTUBE_URL env or %s setting)", SettingKeyYouTubeURL)
	}
	if putErr := s.store.PutSetting(ctx, SettingKeyYouTubeURL, s.cfg.YouTubeURL, "watched broadcast URL"); putErr != nil {
		s.log.Warn("failed to seed youtube_url setting", slog.String("error", putErr.Error()))
	}
	return s.cfg.YouTubeURL, nil
}

func (s *Supervisor) buildWorkers() error {
	collector, err := ingest.NewCollector(s.videoID, s.factory, s.store, s.baseLog, ingest.Options{
		FlushSize:     s.cfg.FlushSize,
		FlushInterval: s.cfg.FlushInterval,
		DataDir:       s.cfg.DataDir,
	})
	if err != nil {
		return err
	}
	s.collector = collector
	s.poller = stats.NewPoller(s.videoID, s.client, s.store, s.baseLog,
		time.Duration(s.cfg.PollInterval)*time.Second)
	return nil
}

// Run starts all four workers and blocks until ctx is canceled, then shuts
// down with a bounded join.
func (s *Supervisor) Run(ctx context.Context) error {
	s.running.Store(true)
	s.log.Info("worker started", slog.String("video_id", s.videoID))

	s.wg.Add(4)
	go s.runChatLoop(ctx)
	go s.runStatsLoop(ctx)
	go s.monitorURLChanges(ctx)
	go s.runWatchdog(ctx)

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop clears the running flag, stops both workers and joins the loops with
// a timeout. Safe to call more than once.
func (s *Supervisor) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.log.Info("stopping worker")

	s.restartMu.Lock()
	s.collector.Stop()
	s.poller.Stop()
	s.restartMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("worker stopped")
	case <-time.After(shutdownJoinTimeout):
		s.log.Warn("shutdown timed out, abandoning worker goroutines")
	}
}

// runChatLoop supervises the chat collector: wait 30s after a normal end,
// 60s after a failure, then restart with whatever collector handle is
// current (the monitors may have swapped it in the meantime).
func (s *Supervisor) runChatLoop(ctx context.Context) {
	defer s.wg.Done()
	for s.running.Load() {
		s.restartMu.Lock()
		collector, url := s.collector, s.url
		s.restartMu.Unlock()

		err := collector.CollectWithRetry(ctx, url, s.cfg.RetryMaxAttempts, s.cfg.RetryBackoffSeconds)
		if !s.running.Load() {
			return
		}

		// A monitor replaced the collector while this one ran; start the
		// replacement right away instead of waiting out the restart policy.
		s.restartMu.Lock()
		swapped := s.collector != collector
		s.restartMu.Unlock()
		if swapped {
			continue
		}

		wait := restartAfterCompletion
		if err != nil {
			s.log.Error("chat collection failed", slog.String("error", err.Error()))
			wait = restartAfterFailure
		} else {
			s.log.Info("chat collection ended, restarting", slog.Duration("wait", wait))
		}
		if !s.sleep(ctx, wait) {
			return
		}
	}
}

// runStatsLoop supervises the stats poller with the same restart policy.
func (s *Supervisor) runStatsLoop(ctx context.Context) {
	defer s.wg.Done()
	for s.running.Load() {
		s.restartMu.Lock()
		poller := s.poller
		s.restartMu.Unlock()

		err := poller.Run(ctx)
		if !s.running.Load() {
			return
		}

		s.restartMu.Lock()
		swapped := s.poller != poller
		s.restartMu.Unlock()
		if swapped {
			continue
		}

		wait := restartAfterCompletion
		if err != nil {
			s.log.Error("stats polling failed", slog.String("error", err.Error()))
			wait = restartAfterFailure
		}
		if !s.sleep(ctx, wait) {
			return
		}
	}
}

// monitorURLChanges polls the youtube_url setting and hot-swaps both workers
// when the configured broadcast changes.
func (s *Supervisor) monitorURLChanges(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.URLCheckInterval) * time.Second
	s.log.Info("URL monitor started", slog.Duration("interval", interval))

	for s.running.Load() {
		if !s.sleep(ctx, interval) {
			return
		}
		newURL, err := s.store.GetSetting(ctx, SettingKeyYouTubeURL)
		if err != nil {
			if err != pg.ErrNotFound {
				s.log.Warn("failed to read youtube_url setting", slog.String("error", err.Error()))
			}
			continue
		}
		s.restartMu.Lock()
		changed := newURL != "" && newURL != s.url
		s.restartMu.Unlock()
		if !changed {
			continue
		}

		// A bad URL at runtime is ignored; the old one stays in effect.
		newVideoID, err := youtube.ExtractVideoID(newURL)
		if err != nil {
			s.log.Warn("ignoring invalid youtube_url setting",
				slog.String("url", newURL), slog.String("error", err.Error()))
			continue
		}
		s.handleURLChange(newURL, newVideoID)
	}
}

// handleURLChange stops both workers and rebinds them to the new video id
// under the restart lock. The old collector flushes its buffer on stop, so
// no message for the old broadcast is dropped.
func (s *Supervisor) handleURLChange(newURL, newVideoID string) {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	s.log.Info("URL change detected",
		slog.String("old", s.url), slog.String("new", newURL))

	s.collector.Stop()
	s.poller.Stop()

	s.url = newURL
	s.videoID = newVideoID
	if err := s.buildWorkers(); err != nil {
		s.log.Error("failed to rebuild workers after URL change", slog.String("error", err.Error()))
		return
	}
	s.log.Info("collectors restarted for new video", slog.String("video_id", newVideoID))
}

// runWatchdog restarts the chat collector when its heartbeat goes stale. It
// never touches the stats poller.
func (s *Supervisor) runWatchdog(ctx context.Context) {
	defer s.wg.Done()
	timeout := time.Duration(s.cfg.ChatWatchdogTimeout) * time.Second
	interval := time.Duration(s.cfg.ChatWatchdogCheckInterval) * time.Second
	s.log.Info("chat watchdog started",
		slog.Duration("timeout", timeout), slog.Duration("interval", interval))

	for s.running.Load() {
		if !s.sleep(ctx, interval) {
			return
		}

		s.restartMu.Lock()
		collector := s.collector
		s.restartMu.Unlock()

		idle := time.Since(collector.LastActivity())
		if idle <= timeout {
			continue
		}

		s.log.Warn("chat collector appears hung, restarting",
			slog.Duration("idle", idle.Round(time.Second)))

		s.restartMu.Lock()
		if s.collector != collector {
			// Someone else already swapped it; this stall is resolved.
			s.restartMu.Unlock()
			continue
		}
		s.collector.Stop()
		time.Sleep(watchdogRestartPause)

		newCollector, err := ingest.NewCollector(s.videoID, s.factory, s.store, s.baseLog, ingest.Options{
			FlushSize:     s.cfg.FlushSize,
			FlushInterval: s.cfg.FlushInterval,
			DataDir:       s.cfg.DataDir,
		})
		if err != nil {
			s.restartMu.Unlock()
			s.log.Error("failed to rebuild chat collector", slog.String("error", err.Error()))
			continue
		}
		s.collector = newCollector
		s.restartMu.Unlock()

		s.log.Info("chat collector restarted by watchdog")
	}
}

// sleep waits for d; returns false when the supervisor should exit instead.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return s.running.Load()
	case <-ctx.Done():
		return false
	}
}
