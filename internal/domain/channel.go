package domain

import "context"

// Sender delivers an outbound payload and returns the provider-assigned message id.
type Sender interface {
	Send(ctx context.Context, to string, payload Payload) (string, error)
}

// Notifier alerts the human operators (handoff requests, new quotes).
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) error { return nil }
