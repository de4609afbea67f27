package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/hermeslab/hermes/internal/chat"
)

// liveChatSource streams messages for one broadcast by paging
// liveChatMessages.list, honoring the server-provided polling interval.
// Next yields buffered items one at a time and refills between pages.
type liveChatSource struct {
	client     *Client
	liveChatID string
	pageToken  string
	queue      []*chat.Message
	nextPoll   time.Time
	closed     bool
}

// NewLiveChatSource opens the live chat of the given watch URL. Fails when
// the video has no active live chat (not live, or chat disabled).
func NewLiveChatSource(ctx context.Context, client *Client, url string) (chat.Source, error) {
	videoID, err := ExtractVideoID(url)
	if err != nil {
		return nil, err
	}
	video, err := client.FetchVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.LiveStreamingDetails == nil || video.LiveStreamingDetails.ActiveLiveChatId == "" {
		return nil, fmt.Errorf("video %s has no active live chat", videoID)
	}
	return &liveChatSource{
		client:     client,
		liveChatID: video.LiveStreamingDetails.ActiveLiveChatId,
	}, nil
}

// NewSourceFactory returns a chat.SourceFactory bound to one API client.
func NewSourceFactory(client *Client) chat.SourceFactory {
	return func(ctx context.Context, url string) (chat.Source, error) {
		return NewLiveChatSource(ctx, client, url)
	}
}

func (s *liveChatSource) Next(ctx context.Context) (*chat.Message, error) {
	for {
		if s.closed {
			return nil, chat.ErrStreamEnded
		}
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue = s.queue[1:]
			return msg, nil
		}
		if err := s.fetchPage(ctx); err != nil {
			return nil, err
		}
	}
}

func (s *liveChatSource) fetchPage(ctx context.Context) error {
	if wait := time.Until(s.nextPoll); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	call := s.client.svc.LiveChatMessages.
		List(s.liveChatID, []string{"snippet", "authorDetails"}).
		Context(ctx)
	if s.pageToken != "" {
		call = call.PageToken(s.pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return fmt.Errorf("liveChatMessages.list failed: %w", err)
	}

	s.pageToken = resp.NextPageToken
	s.nextPoll = time.Now().Add(time.Duration(resp.PollingIntervalMillis) * time.Millisecond)

	if resp.OfflineAt != "" && len(resp.Items) == 0 {
		s.closed = true
		return chat.ErrStreamEnded
	}

	for _, item := range resp.Items {
		if msg := mapLiveChatMessage(item); msg != nil {
			s.queue = append(s.queue, msg)
		}
	}
	return nil
}

func (s *liveChatSource) Close() error {
	s.closed = true
	return nil
}

// Event types as reported by liveChatMessages.list.
var messageTypeByEvent = map[string]string{
	"textMessageEvent":            chat.TypeTextMessage,
	"superChatEvent":              chat.TypePaidMessage,
	"superStickerEvent":           chat.TypeTickerPaidMessageItem,
	"newSponsorEvent":             chat.TypeMembershipItem,
	"memberMilestoneChatEvent":    chat.TypeMembershipItem,
	"membershipGiftingEvent":      chat.TypeSponsorshipsGift,
	"giftMembershipReceivedEvent": chat.TypeSponsorshipsGift,
}

func mapLiveChatMessage(item *yt.LiveChatMessage) *chat.Message {
	sn := item.Snippet
	if sn == nil {
		return nil
	}

	msgType, ok := messageTypeByEvent[sn.Type]
	if !ok {
		// Deletions, bans and tombstones carry no text worth keeping.
		return nil
	}

	msg := &chat.Message{
		MessageID:   item.Id,
		Message:     sn.DisplayMessage,
		MessageType: msgType,
	}

	if t, err := time.Parse(time.RFC3339Nano, sn.PublishedAt); err == nil {
		msg.Timestamp = t.UTC().UnixMicro()
		msg.TimeText = t.UTC().Format("15:04:05")
	}

	if ad := item.AuthorDetails; ad != nil {
		msg.Author = chat.Author{
			ID:     ad.ChannelId,
			Name:   ad.DisplayName,
			Badges: authorBadges(ad),
		}
	}

	if sc := sn.SuperChatDetails; sc != nil {
		msg.Money = &chat.Money{
			Currency: sc.Currency,
			Amount:   microsToAmount(sc.AmountMicros),
		}
		if msg.Message == "" {
			msg.Message = sc.UserComment
		}
	}
	if ss := sn.SuperStickerDetails; ss != nil {
		msg.Money = &chat.Money{
			Currency: ss.Currency,
			Amount:   microsToAmount(ss.AmountMicros),
		}
	}

	if raw, err := json.Marshal(item); err == nil {
		msg.RawData = raw
	}
	return msg
}

func authorBadges(ad *yt.LiveChatMessageAuthorDetails) []chat.Badge {
	var badges []chat.Badge
	if ad.IsChatOwner {
		badges = append(badges, chat.Badge{Title: "Owner"})
	}
	if ad.IsChatModerator {
		badges = append(badges, chat.Badge{Title: "Moderator"})
	}
	if ad.IsChatSponsor {
		badges = append(badges, chat.Badge{Title: "Member", Icons: []chat.BadgeIcon{{URL: ad.ProfileImageUrl}}})
	}
	if ad.IsVerified {
		badges = append(badges, chat.Badge{Title: "Verified"})
	}
	return badges
}

func microsToAmount(micros uint64) string {
	return strconv.FormatFloat(float64(micros)/1e6, 'f', -1, 64)
}
