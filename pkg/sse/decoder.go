package sse

import (
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/utils"
)

const (
	// byteOrderMark is the UTF-8 encoded BOM. It is only stripped from the
	// very first chunk fed to a Decoder.
	byteOrderMark = "\xEF\xBB\xBF"

	// maxLoggedFieldLen bounds how much of an unknown field name is logged.
	maxLoggedFieldLen = 20
)

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithLogger sets the logger used to report unknown fields.
func WithLogger(logger *zap.Logger) DecoderOption {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Decoder is a stateful, streaming SSE decoder. Text is pushed into it with
// Feed as it arrives; chunk boundaries carry no meaning and may split lines,
// fields, line terminators, or multi-byte characters anywhere.
//
// A Decoder is not safe for concurrent use and cannot be restarted
// mid-stream: create a new one per stream.
type Decoder struct {
	logger *zap.Logger

	// incomplete carries the unterminated tail of the previous chunk.
	incomplete string
	started    bool

	// accumulators for the event being built, reset after every dispatch.
	eventType string
	id        string
	data      strings.Builder
}

// NewDecoder returns a Decoder ready for the first chunk of a stream.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Feed pushes the next chunk of stream text into the decoder and returns the
// events dispatched by it, if any.
func (d *Decoder) Feed(chunk string) []Event {
	if !d.started {
		// A BOM split across chunks is held until it is complete.
		chunk = d.incomplete + chunk
		d.incomplete = ""
		if len(chunk) < len(byteOrderMark) && strings.HasPrefix(byteOrderMark, chunk) {
			d.incomplete = chunk
			return nil
		}
		d.started = true
		chunk = strings.TrimPrefix(chunk, byteOrderMark)
	}

	lines, incomplete := splitLines(d.incomplete + chunk)
	d.incomplete = incomplete

	var events []Event
	for _, line := range lines {
		if ev, ok := d.parseLine(line); ok {
			events = append(events, ev)
		}
	}

	return events
}

// Close signals the end of the stream. A final line whose lone "\r"
// terminator was held back waiting for a possible "\n" is processed.
// An event that was never terminated by a blank line is not dispatched.
func (d *Decoder) Close() []Event {
	tail := d.incomplete
	d.incomplete = ""

	if !strings.HasSuffix(tail, "\r") {
		return nil
	}

	if ev, ok := d.parseLine(strings.TrimSuffix(tail, "\r")); ok {
		return []Event{ev}
	}

	return nil
}

// parseLine processes a single complete line. It returns a dispatched event
// when the line is the blank dispatch trigger and data was accumulated.
func (d *Decoder) parseLine(line string) (Event, bool) {
	if line == "" {
		return d.dispatch()
	}

	// Lines starting with ':' are comments.
	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		// Exactly one leading space after the colon is dropped.
		value = strings.TrimPrefix(value, " ")
	}

	d.processField(field, value)
	return Event{}, false
}

func (d *Decoder) processField(field, value string) {
	switch field {
	case "event":
		d.eventType = value
	case "data":
		d.data.WriteString(value)
		d.data.WriteByte('\n')
	case "id":
		if strings.ContainsRune(value, 0) {
			d.id = ""
		} else {
			d.id = value
		}
	default:
		// "retry" and every other field are not meaningful for a single
		// response body; they are skipped.
		d.logger.Debug("unknown SSE field",
			zap.String("field", utils.Truncate(field, maxLoggedFieldLen)),
		)
	}
}

// dispatch emits the accumulated event if it carries data and resets the
// accumulators either way.
func (d *Decoder) dispatch() (Event, bool) {
	data := d.data.String()
	ev := Event{
		Type: d.eventType,
		ID:   d.id,
		Data: strings.TrimSuffix(data, "\n"),
	}

	d.eventType = ""
	d.id = ""
	d.data.Reset()

	return ev, data != ""
}

// splitLines splits text into complete lines, treating "\r\n", "\n" and a
// lone "\r" as terminators. The unterminated remainder is returned as
// incomplete. A "\r" that is the very last byte is held back, since the "\n"
// completing a "\r\n" pair may arrive with the next chunk.
func splitLines(text string) ([]string, string) {
	var lines []string
	start := 0

	for start < len(text) {
		end := strings.IndexAny(text[start:], "\r\n")
		if end == -1 {
			break
		}
		end += start

		if text[end] == '\r' && end == len(text)-1 {
			break
		}

		lines = append(lines, text[start:end])

		start = end + 1
		if text[end] == '\r' && text[start] == '\n' {
			start++
		}
	}

	return lines, text[start:]
}
