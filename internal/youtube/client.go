package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/hermeslab/hermes/internal/storage/pg"
)

// ErrVideoNotFound is returned when the API responds without items, which
// happens for deleted or private videos.
var ErrVideoNotFound = errors.New("youtube: video not found")

// Client wraps the YouTube Data API v3 for the parts the pipeline needs:
// video metadata, live counters and live chat paging.
type Client struct {
	svc *yt.Service
}

// NewClient builds an API-key client. All calls share one HTTP timeout.
func NewClient(ctx context.Context, apiKey string, timeout time.Duration) (*Client, error) {
	svc, err := yt.NewService(ctx,
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// FetchVideo fetches one video with snippet, liveStreamingDetails,
// statistics and topicDetails parts.
func (c *Client) FetchVideo(ctx context.Context, videoID string) (*yt.Video, error) {
	resp, err := c.svc.Videos.
		List([]string{"snippet", "liveStreamingDetails", "statistics", "topicDetails"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("videos.list failed for %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrVideoNotFound
	}
	return resp.Items[0], nil
}

// BuildLiveStream converts an API video item into the persisted metadata row.
func BuildLiveStream(videoID string, item *yt.Video) *pg.LiveStream {
	stream := &pg.LiveStream{
		VideoID:   videoID,
		FetchedAt: time.Now().UTC(),
	}
	if sn := item.Snippet; sn != nil {
		stream.Title = sn.Title
		stream.ChannelID = sn.ChannelId
		stream.ChannelTitle = sn.ChannelTitle
		stream.Description = sn.Description
		stream.ThumbnailURL = bestThumbnail(sn.Thumbnails)
		stream.Tags = sn.Tags
		stream.CategoryID = sn.CategoryId
		stream.PublishedAt = parseTimestamp(sn.PublishedAt)
		stream.LiveBroadcastContent = sn.LiveBroadcastContent
		stream.DefaultLanguage = sn.DefaultLanguage
	}
	if ld := item.LiveStreamingDetails; ld != nil {
		stream.ScheduledStartTime = parseTimestamp(ld.ScheduledStartTime)
		stream.ActualStartTime = parseTimestamp(ld.ActualStartTime)
	}
	if td := item.TopicDetails; td != nil {
		stream.TopicCategories = td.TopicCategories
	}
	return stream
}

// BuildStats converts an API video item into one counters snapshot.
func BuildStats(videoID string, item *yt.Video) *pg.StreamStats {
	stats := &pg.StreamStats{
		LiveStreamID: videoID,
		CollectedAt:  time.Now().UTC(),
	}
	if ld := item.LiveStreamingDetails; ld != nil && ld.ConcurrentViewers > 0 {
		v := int64(ld.ConcurrentViewers)
		stats.ConcurrentViewers = &v
	}
	if st := item.Statistics; st != nil {
		if st.ViewCount > 0 {
			v := int64(st.ViewCount)
			stats.ViewCount = &v
		}
		if st.LikeCount > 0 {
			v := int64(st.LikeCount)
			stats.LikeCount = &v
		}
	}
	return stats
}

// bestThumbnail selects the highest resolution thumbnail available.
func bestThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, thumb := range []*yt.Thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if thumb != nil && thumb.Url != "" {
			return thumb.Url
		}
	}
	return ""
}

func parseTimestamp(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
