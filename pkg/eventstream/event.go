package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/uistream/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessageCompleted is emitted after an assistant message finished
	// streaming.
	EventTypeMessageCompleted = "uistream.message.completed"
)

// MessageCompletedEvent is a transport-neutral event payload for a
// reconstructed assistant message.
type MessageCompletedEvent struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Source        EventSource    `json:"source"`
	RequestMeta   RequestMeta    `json:"request_meta"`
	Message       *llm.Message   `json:"message"`
	Summary       MessageSummary `json:"summary"`
}

// EventSource identifies the conversation the message belongs to.
type EventSource struct {
	ChatID      string `json:"chat_id"`
	AssistantID string `json:"assistant_id,omitempty"`
	IndexName   string `json:"index_name,omitempty"`
}

// RequestMeta captures request lifecycle metadata for the event.
type RequestMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
}

// MessageSummary counts the parts of the message by kind.
type MessageSummary struct {
	TextParts      int `json:"text_parts"`
	ReasoningParts int `json:"reasoning_parts"`
	ToolCalls      int `json:"tool_calls"`
	TextLength     int `json:"text_length"`
}

// NewMessageCompletedEvent builds the event for msg with a fresh event id.
func NewMessageCompletedEvent(source EventSource, started, completed time.Time, msg *llm.Message, err error) *MessageCompletedEvent {
	event := &MessageCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMessageCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     completed.UTC(),
		Source:        source,
		RequestMeta: RequestMeta{
			StartedAt:   started.UTC(),
			CompletedAt: completed.UTC(),
			DurationMs:  completed.Sub(started).Milliseconds(),
		},
		Message: msg,
	}

	if err != nil {
		event.RequestMeta.Error = err.Error()
	}

	if msg != nil {
		for _, part := range msg.Parts {
			switch part.Type {
			case llm.PartText:
				event.Summary.TextParts++
				event.Summary.TextLength += len(part.Text)
			case llm.PartReasoning:
				event.Summary.ReasoningParts++
			case llm.PartTool:
				event.Summary.ToolCalls++
			}
		}
	}

	return event
}
