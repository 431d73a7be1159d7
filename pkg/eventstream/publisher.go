package eventstream

import "context"

// Publisher publishes completed message events to an event stream backend.
type Publisher interface {
	PublishMessage(ctx context.Context, event *MessageCompletedEvent) error
	Close() error
}
