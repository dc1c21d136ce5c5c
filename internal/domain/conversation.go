package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateMessage = errors.New("duplicate provider message id")
	ErrDuplicateQuote   = errors.New("quote already exists")
	ErrInvalidStatus    = errors.New("invalid status")
)

// ConversationStatus is the lifecycle marker of a conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "ACTIVE"
	ConversationCompleted ConversationStatus = "COMPLETED"
	ConversationHandedOff ConversationStatus = "HANDED_OFF"
)

// Valid reports whether s is a known conversation status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationActive, ConversationCompleted, ConversationHandedOff:
		return true
	}
	return false
}

// Conversation is the persistent chat session with one phone number.
type Conversation struct {
	Phone         string             `json:"phone"`
	Name          string             `json:"name,omitempty"`
	Status        ConversationStatus `json:"status"`
	LastMessageAt time.Time          `json:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ConversationPatch carries the fields to change on upsert. Zero values are
// left untouched; a new conversation starts ACTIVE unless Status is set.
type ConversationPatch struct {
	Name          string
	Status        ConversationStatus
	LastMessageAt time.Time
}

// Step is the question the bot is currently waiting on an answer for.
type Step string

const (
	StepWelcome          Step = "WELCOME"
	StepMainMenu         Step = "MAIN_MENU"
	StepQuoteProjectType Step = "QUOTE_PROJECT_TYPE"
	StepQuoteRoomSize    Step = "QUOTE_ROOM_SIZE"
	StepQuoteTimeline    Step = "QUOTE_TIMELINE"
	StepQuoteBudget      Step = "QUOTE_BUDGET"
	StepQuotePhotos      Step = "QUOTE_PHOTOS"
	StepQuoteContact     Step = "QUOTE_CONTACT"
	StepServiceInfo      Step = "SERVICE_INFO"
	StepPortfolio        Step = "PORTFOLIO"
	StepFAQ              Step = "FAQ"
	StepHumanHandoff     Step = "HUMAN_HANDOFF"
)

// AllSteps lists every step in declaration order.
var AllSteps = []Step{
	StepWelcome,
	StepMainMenu,
	StepQuoteProjectType,
	StepQuoteRoomSize,
	StepQuoteTimeline,
	StepQuoteBudget,
	StepQuotePhotos,
	StepQuoteContact,
	StepServiceInfo,
	StepPortfolio,
	StepFAQ,
	StepHumanHandoff,
}

// CollectedData holds the answers gathered across one quote-intake pass.
// QuoteID is assigned when the pass starts and becomes the quote's id, so a
// retried final answer cannot create a second quote.
type CollectedData struct {
	QuoteID     string      `json:"quoteId,omitempty"`
	ProjectType ProjectType `json:"projectType,omitempty"`
	RoomSize    string      `json:"roomSize,omitempty"`
	Timeline    Timeline    `json:"timeline,omitempty"`
	Budget      Budget      `json:"budget,omitempty"`
	Photos      []string    `json:"photos,omitempty"`
	Name        string      `json:"name,omitempty"`
	Email       string      `json:"email,omitempty"`
}

// IsEmpty reports whether no answer has been collected yet. The pass id is
// not an answer.
func (d CollectedData) IsEmpty() bool {
	return d.ProjectType == "" && d.RoomSize == "" && d.Timeline == "" &&
		d.Budget == "" && len(d.Photos) == 0 && d.Name == "" && d.Email == ""
}

// Clone returns a deep copy so callers can mutate the photo list freely.
func (d CollectedData) Clone() CollectedData {
	c := d
	if d.Photos != nil {
		c.Photos = append([]string(nil), d.Photos...)
	}
	return c
}

// ConversationState is the persisted position of a conversation in the flow.
type ConversationState struct {
	Step      Step          `json:"step"`
	Data      CollectedData `json:"data"`
	UpdatedAt time.Time     `json:"updated_at"`
}
