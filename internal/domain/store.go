package domain

import "context"

// ConversationStore is the persistence capability consumed by the state machine.
// Every call is atomic at the single-record level only.
type ConversationStore interface {
	UpsertConversation(ctx context.Context, phone string, patch ConversationPatch) (*Conversation, error)

	// GetState returns nil, nil when no state has been persisted yet.
	GetState(ctx context.Context, phone string) (*ConversationState, error)
	PutState(ctx context.Context, phone string, state ConversationState) error

	// AppendMessage returns ErrDuplicateMessage when the provider id was already logged.
	AppendMessage(ctx context.Context, phone string, msg Message) error

	CreateQuote(ctx context.Context, q Quote) error
}

// AdminStore adds the read side used by the admin API and the CLI.
type AdminStore interface {
	ConversationStore

	GetConversation(ctx context.Context, phone string) (*Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)
	ListMessages(ctx context.Context, phone string, limit int) ([]Message, error)

	GetQuote(ctx context.Context, id string) (*Quote, error)
	ListQuotes(ctx context.Context, filter QuoteFilter) ([]Quote, error)
	UpdateQuoteStatus(ctx context.Context, id string, status QuoteStatus) error

	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
