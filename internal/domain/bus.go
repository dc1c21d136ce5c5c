package domain

// MessageBus hands normalised inbound messages from the webhook to the workers.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Close()
}
