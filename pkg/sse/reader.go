package sse

import (
	"errors"
	"io"

	"go.uber.org/zap"
)

const defaultReadSize = 32 * 1024

// Reader pulls chunks from a source io.Reader, decodes them with a Decoder,
// and optionally writes all raw bytes verbatim to a destination io.Writer.
// This enables "tee" shaped reading where Reader.Next returns the Event for
// consumption while a separate destination records the exact stream.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌──────────────────────────┐
// │  Reader.Next()   │──▶│ tee io.Writer (optional) │
// └──────────────────┘   └──────────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Event       │
// └──────────────────┘
type Reader struct {
	src     io.Reader
	tee     io.Writer
	decoder *Decoder
	buf     []byte

	pending []Event
	eof     bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	tee      io.Writer
	readSize int
	logger   *zap.Logger
}

// WithTee writes every raw byte read from the source to w.
func WithTee(w io.Writer) ReaderOption {
	return func(o *readerOptions) {
		o.tee = w
	}
}

// WithReadSize bounds how many bytes a single read from the source may
// return, i.e. the largest chunk handed to the Decoder.
func WithReadSize(n int) ReaderOption {
	return func(o *readerOptions) {
		if n > 0 {
			o.readSize = n
		}
	}
}

// WithReaderLogger sets the logger passed to the underlying Decoder.
func WithReaderLogger(logger *zap.Logger) ReaderOption {
	return func(o *readerOptions) {
		o.logger = logger
	}
}

// NewReader returns a Reader that decodes SSE events from src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	o := &readerOptions{
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Reader{
		src:     src,
		tee:     o.tee,
		decoder: NewDecoder(WithLogger(o.logger)),
		buf:     make([]byte, o.readSize),
	}
}

// Next returns the next dispatched SSE event. It blocks until a complete
// event is available (terminated by a blank line in the stream).
// Next returns nil, nil when the source is exhausted.
func (r *Reader) Next() (*Event, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return nil, nil
		}

		if err := r.fill(); err != nil {
			return nil, err
		}
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	return &ev, nil
}

// fill performs a single read from the source and queues whatever events
// the chunk completes.
func (r *Reader) fill() error {
	n, err := r.src.Read(r.buf)
	if n > 0 {
		chunk := r.buf[:n]
		if r.tee != nil {
			if _, werr := r.tee.Write(chunk); werr != nil {
				return werr
			}
		}
		r.pending = append(r.pending, r.decoder.Feed(string(chunk))...)
	}

	if errors.Is(err, io.EOF) {
		r.eof = true
		r.pending = append(r.pending, r.decoder.Close()...)
		return nil
	}

	return err
}
