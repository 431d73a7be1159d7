// Package sse provides a streaming, chunk-boundary tolerant SSE (Server-Sent
// Events) decoder for consuming AI-SDK UI message streams.
//
// Decoder accepts arbitrary text fragments as they arrive off the wire and
// yields complete events once a blank line dispatches them. Reader wraps a
// Decoder around an io.Reader and can tee the raw bytes verbatim to a
// destination writer (e.g. a recording file).
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single dispatched SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present. IDs containing
	// a NUL character are discarded.
	ID string
}
