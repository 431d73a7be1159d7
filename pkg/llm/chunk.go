package llm

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// ChunkType discriminates the protocol chunks of a UI message stream.
type ChunkType string

const (
	ChunkStart      ChunkType = "start"
	ChunkStartStep  ChunkType = "start-step"
	ChunkFinishStep ChunkType = "finish-step"
	ChunkFinish     ChunkType = "finish"
	ChunkDone       ChunkType = "done"
	ChunkError      ChunkType = "error"

	ChunkTextStart ChunkType = "text-start"
	ChunkTextDelta ChunkType = "text-delta"
	ChunkTextEnd   ChunkType = "text-end"

	ChunkReasoningStart ChunkType = "reasoning-start"
	ChunkReasoningDelta ChunkType = "reasoning-delta"
	ChunkReasoningEnd   ChunkType = "reasoning-end"

	ChunkToolInputStart      ChunkType = "tool-input-start"
	ChunkToolInputDelta      ChunkType = "tool-input-delta"
	ChunkToolInputAvailable  ChunkType = "tool-input-available"
	ChunkToolOutputAvailable ChunkType = "tool-output-available"
)

var (
	// ErrNotChunk is returned when a decoded payload is not a JSON object.
	ErrNotChunk = errors.New("payload is not a chunk object")

	// ErrMissingType is returned when a chunk object has no string "type".
	ErrMissingType = errors.New("chunk has no type")
)

// Chunk is a single protocol event decoded from an SSE data payload. Which
// fields are populated depends on Type.
type Chunk struct {
	Type ChunkType `json:"type"`

	// start
	MessageID *string `json:"messageId,omitempty"`

	// text-* and reasoning-*
	ID    string `json:"id,omitempty"`
	Delta string `json:"delta,omitempty"`

	// tool-*
	ToolCallID     string `json:"toolCallId,omitempty"`
	ToolName       string `json:"toolName,omitempty"`
	InputTextDelta string `json:"inputTextDelta,omitempty"`
	Input          any    `json:"input,omitempty"`
	Output         any    `json:"output,omitempty"`

	// error
	ErrorText string `json:"errorText,omitempty"`

	ProviderMetadata map[string]any `json:"providerMetadata,omitempty"`
}

// DecodeChunk converts a generic decoded JSON value into a Chunk.
// Unknown keys are ignored; a value of the wrong JSON type for a known key is
// an error.
func DecodeChunk(value any) (*Chunk, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, ErrNotChunk
	}

	if t, ok := obj["type"].(string); !ok || t == "" {
		return nil, ErrMissingType
	}

	chunk := &Chunk{}
	if err := DecodeJSONTagged(chunk, obj); err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}

	return chunk, nil
}

// DecodeJSONTagged decodes a generic JSON value into out, matching struct
// fields by their json tags.
func DecodeJSONTagged(out any, input any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "json",
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
