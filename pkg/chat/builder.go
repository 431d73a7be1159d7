package chat

import (
	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/llm"
)

// messageBuilder publishes successive snapshots of one request's in-flight
// message. The first publish appends it to the Store unless the request
// continues an existing message; later publishes replace it at the same
// index.
type messageBuilder struct {
	store      *Store
	index      int
	generation int
	last       *llm.Message
	logger     *zap.Logger
}

func newMessageBuilder(store *Store, index int, logger *zap.Logger) *messageBuilder {
	return &messageBuilder{store: store, index: index, logger: logger}
}

// publish stores an immutable snapshot of msg.
func (b *messageBuilder) publish(msg *llm.Message) {
	snapshot := msg.Clone()
	b.generation++
	b.last = snapshot

	if b.index < 0 {
		b.index = b.store.push(snapshot)
	} else {
		b.store.replace(b.index, snapshot)
	}

	b.logger.Debug("message published",
		zap.String("message_id", snapshot.ID),
		zap.Int("index", b.index),
		zap.Int("generation", b.generation),
	)
}
