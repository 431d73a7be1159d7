// Package llm defines the UI message model reconstructed from an AI-SDK UI
// message stream, and the protocol chunks that stream carries.
package llm

import "strings"

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType discriminates the segments of a message.
type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartTool      PartType = "tool"
)

// ToolState is the lifecycle of a tool part. Transitions only move forward:
// input-start, then input-available, then output-available.
type ToolState string

const (
	ToolInputStart      ToolState = "input-start"
	ToolInputAvailable  ToolState = "input-available"
	ToolOutputAvailable ToolState = "output-available"
)

// Rank orders tool states so transitions can be checked for monotonicity.
func (s ToolState) Rank() int {
	switch s {
	case ToolInputStart:
		return 1
	case ToolInputAvailable:
		return 2
	case ToolOutputAvailable:
		return 3
	default:
		return 0
	}
}

// Message is a conversation message made of ordered parts.
type Message struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a single segment of a message. The Type field determines which
// other fields are populated.
type Part struct {
	Type PartType `json:"type"`

	// Text content (type="text" or type="reasoning")
	Text string `json:"text,omitempty"`

	// Tool invocation (type="tool"). ToolName tags which schema Input and
	// Output follow; see the tools package.
	ToolCallID string    `json:"toolCallId,omitempty"`
	ToolName   string    `json:"toolName,omitempty"`
	State      ToolState `json:"state,omitempty"`
	Input      any       `json:"input,omitempty"`
	Output     any       `json:"output,omitempty"`
}

// NewTextMessage creates a single text part message with the given role.
func NewTextMessage(id string, role Role, text string) Message {
	return Message{
		ID:   id,
		Role: role,
		Parts: []Part{
			{Type: PartText, Text: text},
		},
	}
}

// GetText returns the concatenated content of all text parts.
func (m *Message) GetText() string {
	var sb strings.Builder
	for _, part := range m.Parts {
		if part.Type == PartText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ToolPart returns the index of the tool part with the given call id, or -1.
func (m *Message) ToolPart(toolCallID string) int {
	for i, part := range m.Parts {
		if part.Type == PartTool && part.ToolCallID == toolCallID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the message. Generic JSON values held in tool
// inputs and outputs (maps and slices) are copied; typed tool payloads are
// treated as immutable values and shared.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	out := &Message{
		ID:   m.ID,
		Role: m.Role,
	}

	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		for i, part := range m.Parts {
			part.Input = cloneValue(part.Input)
			part.Output = cloneValue(part.Output)
			out.Parts[i] = part
		}
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
