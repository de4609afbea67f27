package chat

import "encoding/json"

// Message is one chat item as yielded by a Source. The field set mirrors the
// upstream chat payload; RawData preserves the original object verbatim so
// nothing is lost when new fields show up.
type Message struct {
	MessageID   string  `json:"message_id"`
	Message     string  `json:"message"`
	Timestamp   int64   `json:"timestamp"` // microseconds, source-provided
	TimeText    string  `json:"time_text,omitempty"`
	MessageType string  `json:"message_type"`
	Author      Author  `json:"author"`
	Money       *Money  `json:"money,omitempty"`
	Emotes      []Emote `json:"emotes,omitempty"`

	// RawData rides along in backup files so a crash-replayed row keeps
	// the same envelope a live-ingested one gets.
	RawData json.RawMessage `json:"raw_data,omitempty"`
}

// Author identifies the message sender.
type Author struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Badges []Badge `json:"badges,omitempty"`
}

// Badge is a channel badge attached to an author (member, moderator, ...).
type Badge struct {
	Title string      `json:"title"`
	Icons []BadgeIcon `json:"icons,omitempty"`
}

type BadgeIcon struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// Money carries the paid amount of a super chat / super sticker.
type Money struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// Emote is a channel emote referenced by the message text.
type Emote struct {
	Name   string       `json:"name"`
	ID     string       `json:"id,omitempty"`
	Images []EmoteImage `json:"images,omitempty"`
}

type EmoteImage struct {
	URL string `json:"url"`
}

// Message types as they appear on the wire.
const (
	TypeTextMessage           = "text_message"
	TypePaidMessage           = "paid_message"
	TypeTickerPaidMessageItem = "ticker_paid_message_item"
	TypeMembershipItem        = "membership_item"
	TypeSponsorshipsGift      = "sponsorships_gift_purchase_announcement"
)

// IsPaid reports whether a message type carries money. Ticker items duplicate
// the super-chat amount, membership gifts do not.
func IsPaid(messageType string) bool {
	switch messageType {
	case TypePaidMessage, TypeTickerPaidMessageItem:
		return true
	}
	return false
}
