package stream

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/uistream/pkg/llm"
)

var (
	// ErrProtocolViolation matches every *ProtocolError.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrAborted is the cancellation cause for a stream stopped on request.
	ErrAborted = errors.New("stream aborted")

	// ErrNetworkDisconnect wraps low-level failures reading the stream.
	ErrNetworkDisconnect = errors.New("network disconnect")
)

// ProtocolError reports a chunk that is invalid given the chunks before it,
// such as output for a tool call that never received input. It terminates
// the stream.
type ProtocolError struct {
	Chunk  llm.ChunkType
	ID     string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: %s %q: %s", e.Chunk, e.ID, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}

// UpstreamError carries the text of an explicit error chunk.
type UpstreamError struct {
	Text string
}

func (e *UpstreamError) Error() string {
	return "upstream error: " + e.Text
}
