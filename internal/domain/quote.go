package domain

import "time"

// QuoteStatus tracks a quote request through the sales team's review.
type QuoteStatus string

const (
	QuotePending  QuoteStatus = "PENDING"
	QuoteReviewed QuoteStatus = "REVIEWED"
	QuoteSent     QuoteStatus = "SENT"
	QuoteAccepted QuoteStatus = "ACCEPTED"
	QuoteRejected QuoteStatus = "REJECTED"
)

func (s QuoteStatus) Valid() bool {
	switch s {
	case QuotePending, QuoteReviewed, QuoteSent, QuoteAccepted, QuoteRejected:
		return true
	}
	return false
}

// Quote is the record produced when an intake pass completes.
type Quote struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	Description string      `json:"description"`
	ProjectType ProjectType `json:"project_type,omitempty"`
	RoomSize    string      `json:"room_size,omitempty"`
	Timeline    Timeline    `json:"timeline,omitempty"`
	Budget      Budget      `json:"budget,omitempty"`
	Photos      []string    `json:"photos,omitempty"`
	Status      QuoteStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// QuoteFilter narrows ListQuotes. Zero values mean "any".
type QuoteFilter struct {
	Status QuoteStatus
	Limit  int
}

// Stats is the aggregate view served to the admin dashboard.
type Stats struct {
	ConversationsByStatus map[ConversationStatus]int `json:"conversations_by_status"`
	QuotesByStatus        map[QuoteStatus]int        `json:"quotes_by_status"`
	QuotesByProjectType   map[ProjectType]int        `json:"quotes_by_project_type"`
}
