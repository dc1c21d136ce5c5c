package domain

import "time"

// InboundMessage is the normalised projection of one webhook message entry.
type InboundMessage struct {
	From             string
	MessageID        string
	Timestamp        time.Time
	Type             string // text | interactive | button | image | document | video | audio | ...
	Text             string
	InteractiveID    string // button_reply / list_reply id, or quick-reply payload
	InteractiveTitle string
	MediaID          string
	MediaType        string
	MediaCaption     string
	ContactName      string
}

// HasMedia reports whether the message carries a media reference.
func (m InboundMessage) HasMedia() bool {
	return m.MediaID != ""
}

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "INBOUND"
	DirectionOutbound MessageDirection = "OUTBOUND"
)

// Message is one entry of the append-only conversation log.
type Message struct {
	ID         int64            `json:"id,omitempty"`
	Phone      string           `json:"phone"`
	ProviderID string           `json:"provider_id"`
	Direction  MessageDirection `json:"direction"`
	Type       string           `json:"type"`
	Content    string           `json:"content"`
	MediaID    string           `json:"media_id,omitempty"`
	MediaType  string           `json:"media_type,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
