package notify

import "context"

// NoopPublisher drops all events. Used when notifications are disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish discards the event.
func (*NoopPublisher) Publish(ctx context.Context, event string, payload any, attributes map[string]string) error {
	return nil
}
