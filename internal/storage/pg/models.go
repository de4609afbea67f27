package pg

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hermeslab/hermes/internal/chat"
)

// ChatMessage is one persisted chat row. Processed* fields stay nil until the
// normalization job fills them in.
type ChatMessage struct {
	MessageID     string
	LiveStreamID  string
	AuthorID      string
	AuthorName    string
	MessageType   string
	Message       string
	Timestamp     int64 // microseconds, source-provided
	PublishedAt   time.Time
	Emotes        []chat.Emote
	RawData       json.RawMessage
	ProcessedText *string
	Tokens        []string
	UnicodeEmojis []string
	ProcessedAt   *time.Time
}

// rawEnvelope is what goes into the raw_data column: the typed fields the
// pipeline consumes plus the original payload for forward compatibility.
type rawEnvelope struct {
	Money    *chat.Money     `json:"money,omitempty"`
	Badges   []chat.Badge    `json:"badges,omitempty"`
	Original json.RawMessage `json:"original,omitempty"`
}

// FromChatMessage converts a wire message into a persistable row.
func FromChatMessage(m *chat.Message, liveStreamID string) (*ChatMessage, error) {
	if m.MessageID == "" {
		return nil, fmt.Errorf("message has no message_id")
	}

	publishedAt := time.Now().UTC()
	if m.Timestamp > 0 {
		publishedAt = time.UnixMicro(m.Timestamp).UTC()
	}

	messageType := m.MessageType
	if messageType == "" {
		messageType = chat.TypeTextMessage
	}

	return &ChatMessage{
		MessageID:    m.MessageID,
		LiveStreamID: liveStreamID,
		AuthorID:     m.Author.ID,
		AuthorName:   m.Author.Name,
		MessageType:  messageType,
		Message:      m.Message,
		Timestamp:    m.Timestamp,
		PublishedAt:  publishedAt,
		Emotes:       m.Emotes,
		RawData:      marshalRawEnvelope(m, messageType),
	}, nil
}

func marshalRawEnvelope(m *chat.Message, messageType string) json.RawMessage {
	env := rawEnvelope{
		Badges:   m.Author.Badges,
		Original: m.RawData,
	}
	// Money is persisted only for paid message types; anything else carrying
	// an amount is noise from the wire.
	if chat.IsPaid(messageType) {
		env.Money = m.Money
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	return data
}

// LiveStream is the upserted broadcast metadata row.
type LiveStream struct {
	VideoID              string
	Title                string
	ChannelID            string
	ChannelTitle         string
	Description          string
	ThumbnailURL         string
	Tags                 []string
	CategoryID           string
	PublishedAt          *time.Time
	ScheduledStartTime   *time.Time
	ActualStartTime      *time.Time
	LiveBroadcastContent string
	DefaultLanguage      string
	TopicCategories      []string
	FetchedAt            time.Time
}

// StreamStats is one appended counters snapshot.
type StreamStats struct {
	LiveStreamID      string
	CollectedAt       time.Time
	ConcurrentViewers *int64
	ViewCount         *int64
	LikeCount         *int64
}

// ExecutionLog is one ETL job run record.
type ExecutionLog struct {
	JobID            string
	JobName          string
	Status           string
	StartedAt        time.Time
	CompletedAt      time.Time
	DurationSeconds  float64
	RecordsProcessed int
	ErrorMessage     string
	Metadata         map[string]any
}

// PendingReplaceWord is a staged replace-dictionary proposal.
type PendingReplaceWord struct {
	SourceWord      string
	TargetWord      string
	Confidence      float64
	OccurrenceCount int
	ExampleMessages []string
	Transformation  string
}

// PendingSpecialWord is a staged special-word proposal.
type PendingSpecialWord struct {
	Word            string
	WordType        string
	Confidence      float64
	OccurrenceCount int
	ExampleMessages []string
	AutoAdded       bool
}
