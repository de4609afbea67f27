package stats

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/hermeslab/hermes/internal/logger"
	"github.com/hermeslab/hermes/internal/storage/pg"
	"github.com/hermeslab/hermes/internal/youtube"
)

// StatsStore is the slice of the store the poller needs.
type StatsStore interface {
	UpsertLiveStream(ctx context.Context, stream *pg.LiveStream) error
	AppendStats(ctx context.Context, stats *pg.StreamStats) error
}

// VideoAPI fetches one video's metadata and counters.
type VideoAPI interface {
	FetchVideo(ctx context.Context, videoID string) (*yt.Video, error)
}

// Poller fetches the broadcast's metadata and counters on a fixed cadence.
// Each tick upserts the live_streams row and appends one stream_stats row.
// A failed tick is logged and skipped; the series just gets a gap.
type Poller struct {
	videoID  string
	client   VideoAPI
	store    StatsStore
	log      *logger.Logger
	interval time.Duration
	running  atomic.Bool
}

func NewPoller(videoID string, client VideoAPI, store StatsStore, log *logger.Logger, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Poller{
		videoID:  videoID,
		client:   client,
		store:    store,
		log:      log.WithComponent("stats_poller"),
		interval: interval,
	}
}

// VideoID returns the bound video id.
func (p *Poller) VideoID() string { return p.videoID }

// Stop requests polling to cease; observed between ticks.
func (p *Poller) Stop() {
	p.running.Store(false)
}

// Run polls until Stop is called or ctx is canceled. The first tick fires
// immediately.
func (p *Poller) Run(ctx context.Context) error {
	p.running.Store(true)
	p.log.Info("stats polling started",
		slog.String("video_id", p.videoID),
		slog.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for p.running.Load() {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-ctx.Done():
			return nil
		}
	}
	p.log.Info("stats polling stopped", slog.String("video_id", p.videoID))
	return nil
}

func (p *Poller) tick(ctx context.Context) {
	video, err := p.client.FetchVideo(ctx, p.videoID)
	if err != nil {
		if errors.Is(err, youtube.ErrVideoNotFound) {
			p.log.Warn("no items returned for video, skipping tick",
				slog.String("video_id", p.videoID))
		} else {
			p.log.Warn("stats fetch failed, skipping tick",
				slog.String("video_id", p.videoID),
				slog.String("error", err.Error()))
		}
		return
	}

	if err := p.store.UpsertLiveStream(ctx, youtube.BuildLiveStream(p.videoID, video)); err != nil {
		p.log.Error("failed to upsert live stream", slog.String("error", err.Error()))
		return
	}

	snapshot := youtube.BuildStats(p.videoID, video)
	if err := p.store.AppendStats(ctx, snapshot); err != nil {
		p.log.Error("failed to append stream stats", slog.String("error", err.Error()))
		return
	}

	p.log.Debug("collected stream stats",
		slog.String("video_id", p.videoID),
		slog.Any("concurrent_viewers", snapshot.ConcurrentViewers))
}
