// Package stream reconstructs a UI message from a UI message stream: the
// Reducer applies protocol chunks to one in-flight message, and Consume drives
// an SSE body through decoding and an ordered executor into the Reducer.
package stream

import (
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/llm"
	"github.com/papercomputeco/uistream/pkg/partjson"
	"github.com/papercomputeco/uistream/pkg/tools"
)

// Writer is notified after every mutation of the in-flight message. The
// message passed is live: implementations must copy what they keep.
type Writer interface {
	Write(msg *llm.Message)
}

// WriterFunc adapts a plain function to the Writer interface.
type WriterFunc func(msg *llm.Message)

func (f WriterFunc) Write(msg *llm.Message) {
	f(msg)
}

// ReducerConfig is the configuration for a Reducer.
type ReducerConfig struct {
	// Message is an existing assistant message to continue. It is copied.
	// When nil a new message is started with MessageID and Role.
	Message *llm.Message

	MessageID string

	// Role defaults to llm.RoleAssistant.
	Role llm.Role

	// Tools decodes tool payloads into typed values. Defaults to
	// tools.Default().
	Tools *tools.Registry

	// Repairer completes truncated tool arguments. Defaults to
	// partjson.DefaultRepairer.
	Repairer partjson.Repairer

	// Logger is the provided zap logger
	Logger *zap.Logger
}

type partialToolCall struct {
	text     strings.Builder
	toolName string
}

// Reducer is the state machine applying protocol chunks to one in-flight
// message. It is not safe for concurrent use; Consume only calls it from the
// executor's worker.
type Reducer struct {
	message *llm.Message

	// open accumulators, keyed by part id or tool call id
	activeText       map[string]int
	activeReasoning  map[string]int
	partialToolCalls map[string]*partialToolCall

	finished bool

	tools  *tools.Registry
	parser *partjson.Parser
	logger *zap.Logger
}

// NewReducer creates a Reducer for a single request.
func NewReducer(c *ReducerConfig) *Reducer {
	r := &Reducer{
		activeText:       map[string]int{},
		activeReasoning:  map[string]int{},
		partialToolCalls: map[string]*partialToolCall{},
		tools:            c.Tools,
		parser:           partjson.NewParser(c.Repairer),
		logger:           c.Logger,
	}

	if r.tools == nil {
		r.tools = tools.Default()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	if c.Message != nil {
		r.message = c.Message.Clone()
	} else {
		role := c.Role
		if role == "" {
			role = llm.RoleAssistant
		}
		r.message = &llm.Message{ID: c.MessageID, Role: role, Parts: []llm.Part{}}
	}

	return r
}

// Message returns a copy of the in-flight message.
func (r *Reducer) Message() *llm.Message {
	return r.message.Clone()
}

// Finished reports whether a finish or done chunk has been applied.
func (r *Reducer) Finished() bool {
	return r.finished
}

// Apply applies one chunk, notifying w after every mutation. A returned
// *ProtocolError or *UpstreamError is fatal for the stream; on a protocol
// violation the message is left unmodified.
func (r *Reducer) Apply(chunk *llm.Chunk, w Writer) error {
	if r.finished {
		r.logger.Debug("chunk after finish ignored", zap.String("type", string(chunk.Type)))
		return nil
	}

	switch chunk.Type {
	case llm.ChunkStart:
		if chunk.MessageID != nil && *chunk.MessageID != "" {
			r.message.ID = *chunk.MessageID
			r.write(w)
		}

	case llm.ChunkToolInputStart:
		return r.toolInputStart(chunk, w)
	case llm.ChunkToolInputDelta:
		return r.toolInputDelta(chunk, w)
	case llm.ChunkToolInputAvailable:
		return r.toolInputAvailable(chunk, w)
	case llm.ChunkToolOutputAvailable:
		return r.toolOutputAvailable(chunk, w)

	case llm.ChunkTextStart:
		r.startPart(r.activeText, llm.PartText, chunk.ID, w)
	case llm.ChunkTextDelta:
		return r.appendDelta(r.activeText, chunk, w)
	case llm.ChunkTextEnd:
		delete(r.activeText, chunk.ID)

	case llm.ChunkReasoningStart:
		r.startPart(r.activeReasoning, llm.PartReasoning, chunk.ID, w)
	case llm.ChunkReasoningDelta:
		return r.appendDelta(r.activeReasoning, chunk, w)
	case llm.ChunkReasoningEnd:
		delete(r.activeReasoning, chunk.ID)

	case llm.ChunkStartStep:
	case llm.ChunkFinishStep:
		clear(r.activeText)
		clear(r.activeReasoning)
		clear(r.partialToolCalls)

	case llm.ChunkFinish, llm.ChunkDone:
		r.finished = true

	case llm.ChunkError:
		return &UpstreamError{Text: chunk.ErrorText}

	default:
		r.logger.Debug("unhandled chunk", zap.String("type", string(chunk.Type)))
	}

	return nil
}

func (r *Reducer) toolInputStart(chunk *llm.Chunk, w Writer) error {
	if chunk.ToolCallID == "" {
		return violation(chunk, "missing toolCallId")
	}

	if err := r.checkTransition(chunk, llm.ToolInputStart); err != nil {
		return err
	}

	r.partialToolCalls[chunk.ToolCallID] = &partialToolCall{toolName: chunk.ToolName}
	r.upsertTool(chunk.ToolCallID, chunk.ToolName, llm.ToolInputStart, nil)
	r.write(w)
	return nil
}

func (r *Reducer) toolInputDelta(chunk *llm.Chunk, w Writer) error {
	partial, ok := r.partialToolCalls[chunk.ToolCallID]
	if !ok {
		return violation(chunk, "tool-input-delta for a tool call that is not accumulating input")
	}

	partial.text.WriteString(chunk.InputTextDelta)

	var input any
	if res := r.parser.Parse(partial.text.String()); res.State != partjson.StateFailed {
		input = r.decodeInput(partial.toolName, res.Value, false)
	}

	r.upsertTool(chunk.ToolCallID, partial.toolName, llm.ToolInputStart, input)
	r.write(w)
	return nil
}

func (r *Reducer) toolInputAvailable(chunk *llm.Chunk, w Writer) error {
	if err := r.checkTransition(chunk, llm.ToolInputAvailable); err != nil {
		return err
	}

	toolName := chunk.ToolName
	if idx := r.message.ToolPart(chunk.ToolCallID); idx >= 0 && toolName == "" {
		toolName = r.message.Parts[idx].ToolName
	}

	input := r.decodeInput(toolName, chunk.Input, true)

	delete(r.partialToolCalls, chunk.ToolCallID)
	r.upsertTool(chunk.ToolCallID, toolName, llm.ToolInputAvailable, input)
	r.write(w)
	return nil
}

func (r *Reducer) toolOutputAvailable(chunk *llm.Chunk, w Writer) error {
	if err := r.checkTransition(chunk, llm.ToolOutputAvailable); err != nil {
		return err
	}

	part := &r.message.Parts[r.message.ToolPart(chunk.ToolCallID)]

	output, err := r.tools.DecodeOutput(part.ToolName, chunk.Output)
	if err != nil {
		r.logger.Warn("tool output does not match its schema",
			zap.String("tool_name", part.ToolName),
			zap.String("tool_call_id", chunk.ToolCallID),
			zap.Error(err),
		)
		output = chunk.Output
	}

	part.State = llm.ToolOutputAvailable
	part.Output = output
	r.write(w)
	return nil
}

// checkTransition rejects a tool state change that would move a tool part
// backwards. Output additionally needs a finalized input to attach to.
func (r *Reducer) checkTransition(chunk *llm.Chunk, next llm.ToolState) error {
	idx := r.message.ToolPart(chunk.ToolCallID)
	if idx < 0 {
		if next == llm.ToolOutputAvailable {
			return violation(chunk, "tool-output-available must be preceded by tool input")
		}
		return nil
	}

	current := r.message.Parts[idx].State
	if next.Rank() < current.Rank() {
		return violation(chunk, "tool state cannot move from "+string(current)+" to "+string(next))
	}
	if next == llm.ToolOutputAvailable && current != llm.ToolInputAvailable {
		return violation(chunk, "tool output requires input-available, found "+string(current))
	}
	return nil
}

// decodeInput converts a generic input into the tool's typed input, keeping
// the generic value when it does not fit the schema.
func (r *Reducer) decodeInput(toolName string, raw any, final bool) any {
	input, err := r.tools.DecodeInput(toolName, raw, final)
	if err != nil {
		level := zap.DebugLevel
		if final {
			level = zap.WarnLevel
		}
		r.logger.Log(level, "tool input does not match its schema",
			zap.String("tool_name", toolName),
			zap.Bool("final", final),
			zap.Error(err),
		)
		return raw
	}
	return input
}

// upsertTool sets the state and input of the tool part for toolCallID,
// appending the part if it does not exist yet.
func (r *Reducer) upsertTool(toolCallID, toolName string, state llm.ToolState, input any) {
	if idx := r.message.ToolPart(toolCallID); idx >= 0 {
		part := &r.message.Parts[idx]
		part.State = state
		part.Input = input
		part.Output = nil
		if toolName != "" {
			part.ToolName = toolName
		}
		return
	}

	r.message.Parts = append(r.message.Parts, llm.Part{
		Type:       llm.PartTool,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		State:      state,
		Input:      input,
	})
}

func (r *Reducer) startPart(active map[string]int, partType llm.PartType, id string, w Writer) {
	r.message.Parts = append(r.message.Parts, llm.Part{Type: partType})
	active[id] = len(r.message.Parts) - 1
	r.write(w)
}

func (r *Reducer) appendDelta(active map[string]int, chunk *llm.Chunk, w Writer) error {
	idx, ok := active[chunk.ID]
	if !ok {
		return violation(chunk, string(chunk.Type)+" for a part that was never started")
	}

	r.message.Parts[idx].Text += chunk.Delta
	r.write(w)
	return nil
}

func (r *Reducer) write(w Writer) {
	if w != nil {
		w.Write(r.message)
	}
}

func violation(chunk *llm.Chunk, reason string) *ProtocolError {
	id := chunk.ToolCallID
	if id == "" {
		id = chunk.ID
	}
	return &ProtocolError{Chunk: chunk.Type, ID: id, Reason: reason}
}
