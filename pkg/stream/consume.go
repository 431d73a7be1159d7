package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/llm"
	"github.com/papercomputeco/uistream/pkg/safejson"
	"github.com/papercomputeco/uistream/pkg/sse"
	"github.com/papercomputeco/uistream/pkg/utils"
	"github.com/papercomputeco/uistream/pkg/worker"
)

// ConsumeConfig wires a stream body to a Reducer.
type ConsumeConfig struct {
	// Reducer owns the in-flight message. Required.
	Reducer *Reducer

	// Executor runs every Reducer mutation in arrival order. Required.
	Executor *worker.Executor

	// Writer is notified after each mutation. Writes stop as soon as the
	// stream is cancelled or has failed.
	Writer Writer

	// OnError receives a terminal failure. It is not called when the caller
	// cancels ctx.
	OnError func(err error)

	// OnParseError receives SSE payloads that were skipped because they are
	// not valid chunks. It is called from the reading goroutine.
	OnParseError func(data string, err error)

	// Tee receives every raw byte of the stream.
	Tee io.Writer

	// ReadSize bounds a single read from the body.
	ReadSize int

	// Logger is the provided zap logger
	Logger *zap.Logger
}

type item struct {
	chunk *llm.Chunk
	err   error
}

// Consume reads src to completion, applying each decoded chunk through the
// executor. It returns nil once the stream ends and every applied chunk has
// settled, the first fatal error otherwise, or the cancellation cause of ctx.
// src is always closed before Consume returns.
func Consume(parent context.Context, src io.ReadCloser, c *ConsumeConfig) error {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	defer src.Close()

	writer := WriterFunc(func(msg *llm.Message) {
		if ctx.Err() != nil || c.Writer == nil {
			return
		}
		c.Writer.Write(msg)
	})

	fail := func(err error) error {
		if parent.Err() != nil {
			logger.Debug("stream cancelled", zap.Error(context.Cause(parent)))
			return context.Cause(parent)
		}

		logger.Error("stream failed", zap.Error(err))
		if c.OnError != nil {
			c.OnError(err)
		}
		return err
	}

	items := make(chan item)
	go readChunks(ctx, src, c, logger, items)

	var last *worker.Future
	for {
		select {
		case <-ctx.Done():
			return fail(context.Cause(ctx))

		case it, ok := <-items:
			if !ok {
				if last != nil {
					if err := last.Wait(ctx); err != nil {
						return fail(err)
					}
				}
				if err := context.Cause(ctx); err != nil {
					return fail(err)
				}
				logger.Debug("stream completed")
				return nil
			}

			if it.err != nil {
				cancel(it.err)
				return fail(it.err)
			}

			chunk := it.chunk
			last = c.Executor.Run(func() error {
				if err := c.Reducer.Apply(chunk, writer); err != nil {
					cancel(err)
					return err
				}
				return nil
			})
		}
	}
}

// readChunks decodes src into chunks on out until EOF, a read failure, or ctx
// is done. Payloads that are not valid chunks are logged and skipped.
func readChunks(ctx context.Context, src io.Reader, c *ConsumeConfig, logger *zap.Logger, out chan<- item) {
	defer close(out)

	opts := []sse.ReaderOption{
		sse.WithReaderLogger(logger),
		sse.WithReadSize(c.ReadSize),
	}
	if c.Tee != nil {
		opts = append(opts, sse.WithTee(c.Tee))
	}
	reader := sse.NewReader(src, opts...)

	send := func(it item) bool {
		select {
		case out <- it:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		ev, err := reader.Next()
		if err != nil {
			send(item{err: classifyReadError(err)})
			return
		}
		if ev == nil {
			return
		}

		if ev.Data == safejson.Done {
			continue
		}

		chunk, err := decodeEvent(ev)
		if err != nil {
			logger.Warn("skipping invalid stream payload",
				zap.String("data", utils.Truncate(ev.Data, 120)),
				zap.Error(err),
			)
			if c.OnParseError != nil {
				c.OnParseError(ev.Data, err)
			}
			continue
		}

		if !send(item{chunk: chunk}) {
			return
		}
	}
}

func decodeEvent(ev *sse.Event) (*llm.Chunk, error) {
	res := safejson.Parse(ev.Data)
	if !res.OK() {
		return nil, res.Err
	}

	return llm.DecodeChunk(res.Value)
}

// classifyReadError marks transport level read failures as network
// disconnects.
func classifyReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: %w", ErrNetworkDisconnect, err)
	}

	return fmt.Errorf("reading stream: %w", err)
}
