package eventstream_test

import (
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/uistream/pkg/eventstream"
	"github.com/papercomputeco/uistream/pkg/llm"
)

var _ = Describe("Event", func() {
	now := time.Unix(1735689600, 0).UTC()

	msg := &llm.Message{
		ID:   "assistant-1",
		Role: llm.RoleAssistant,
		Parts: []llm.Part{
			{Type: llm.PartReasoning, Text: "thinking"},
			{Type: llm.PartTool, ToolCallID: "call_1", ToolName: "searchIndex", State: llm.ToolOutputAvailable},
			{Type: llm.PartText, Text: "Certainly"},
		},
	}

	It("summarizes the message parts", func() {
		event := eventstream.NewMessageCompletedEvent(
			eventstream.EventSource{ChatID: "chat-1"},
			now.Add(-2*time.Second), now, msg, nil,
		)

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal(eventstream.EventTypeMessageCompleted))
		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.RequestMeta.DurationMs).To(Equal(int64(2000)))
		Expect(event.Summary).To(Equal(eventstream.MessageSummary{
			TextParts:      1,
			ReasoningParts: 1,
			ToolCalls:      1,
			TextLength:     len("Certainly"),
		}))
	})

	It("records the request error", func() {
		event := eventstream.NewMessageCompletedEvent(eventstream.EventSource{}, now, now, nil, errors.New("upstream error: overloaded"))
		Expect(event.RequestMeta.Error).To(Equal("upstream error: overloaded"))
		Expect(event.Summary).To(Equal(eventstream.MessageSummary{}))
	})

	It("marshals with expected top-level keys", func() {
		event := eventstream.NewMessageCompletedEvent(
			eventstream.EventSource{ChatID: "chat-1", AssistantID: "a1"},
			now, now, msg, nil,
		)

		data, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var parsed map[string]any
		Expect(json.Unmarshal(data, &parsed)).To(Succeed())
		Expect(parsed).To(HaveKey("schema_version"))
		Expect(parsed).To(HaveKeyWithValue("event_type", "uistream.message.completed"))
		Expect(parsed).To(HaveKey("event_id"))
		Expect(parsed).To(HaveKey("emitted_at"))
		Expect(parsed).To(HaveKey("source"))
		Expect(parsed).To(HaveKey("request_meta"))
		Expect(parsed).To(HaveKey("summary"))

		message, ok := parsed["message"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(message).To(HaveKeyWithValue("id", "assistant-1"))
		Expect(message["parts"]).To(HaveLen(3))
	})
})
