// Package chat is the session controller of a conversation with a streaming
// assistant. It appends user messages, opens a stream for each request, and
// keeps a Store updated as the assistant reply is reconstructed.
package chat

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/llm"
	"github.com/papercomputeco/uistream/pkg/partjson"
	"github.com/papercomputeco/uistream/pkg/stream"
	"github.com/papercomputeco/uistream/pkg/tools"
	"github.com/papercomputeco/uistream/pkg/transport"
	"github.com/papercomputeco/uistream/pkg/worker"
)

var (
	// ErrBusy is returned when a request is started while another one is
	// still active.
	ErrBusy = errors.New("a request is already in progress")

	// ErrAborted is the cancellation cause of a request stopped with Stop.
	ErrAborted = stream.ErrAborted
)

// Config is the configuration for a Chat.
type Config struct {
	// Transport opens the response stream. Required.
	Transport transport.Transport

	// Store defaults to an empty Store.
	Store *Store

	// Executor serializes message mutations. When nil the Chat creates one
	// and closes it in Close.
	Executor *worker.Executor

	Tools    *tools.Registry
	Repairer partjson.Repairer

	// OnFinish runs after every request with the last published snapshot of
	// the assistant message, nil when nothing was published, and the
	// surfaced error, which is nil on success and on abort.
	OnFinish func(msg *llm.Message, err error)

	// Tee receives the raw bytes of every response stream.
	Tee io.Writer

	// Logger is the provided zap logger
	Logger *zap.Logger
}

type request struct {
	cancel context.CancelCauseFunc

	// aborted is set by Stop, finished once the request has settled. Both
	// suppress further writes.
	aborted  bool
	finished bool
}

// Chat drives one conversation. At most one request is active at a time.
type Chat struct {
	id        string
	store     *Store
	executor  *worker.Executor
	ownsExec  bool
	tools     *tools.Registry
	repairer  partjson.Repairer
	onFinish  func(*llm.Message, error)
	tee       io.Writer
	logger    *zap.Logger
	transport transport.Transport

	mu     sync.Mutex
	active *request

	// orders request flag changes against in-flight writes
	writeMu sync.Mutex
}

// New creates a Chat.
func New(c *Config) *Chat {
	ch := &Chat{
		id:        uuid.NewString(),
		store:     c.Store,
		executor:  c.Executor,
		tools:     c.Tools,
		repairer:  c.Repairer,
		onFinish:  c.OnFinish,
		tee:       c.Tee,
		logger:    c.Logger,
		transport: c.Transport,
	}

	if ch.logger == nil {
		ch.logger = zap.NewNop()
	}
	if ch.store == nil {
		ch.store = NewStore()
	}
	if ch.executor == nil {
		ch.executor = worker.NewExecutor(&worker.Config{Name: "chat", Logger: ch.logger})
		ch.ownsExec = true
	}

	return ch
}

// ID is the conversation id sent with every request.
func (c *Chat) ID() string { return c.id }

// Store returns the Store backing the conversation.
func (c *Chat) Store() *Store { return c.store }

// Messages returns the current conversation.
func (c *Chat) Messages() []*llm.Message { return c.store.Messages() }

// Status returns the session status.
func (c *Chat) Status() Status { return c.store.Status() }

// Err returns the last surfaced error.
func (c *Chat) Err() error { return c.store.Err() }

// SendMessage appends a user message with text and streams the assistant
// reply into the Store. It returns once the reply is complete, the request
// failed, or the request was stopped. A stopped request returns nil.
func (c *Chat) SendMessage(ctx context.Context, text string) error {
	req, ctx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer c.end(req)

	userMsg := llm.NewTextMessage(uuid.NewString(), llm.RoleUser, text)
	c.store.push(&userMsg)

	return c.run(ctx, req, userMsg.ID)
}

// Resume requests a reply to the current conversation without adding a user
// message. A trailing assistant message is continued in place.
func (c *Chat) Resume(ctx context.Context) error {
	req, ctx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer c.end(req)

	return c.run(ctx, req, "")
}

// Stop aborts the active request. It has no effect unless the status is
// preparing or streaming. No write reaches the Store after Stop returns.
// Stop must not be called from a Store observer.
func (c *Chat) Stop() {
	status := c.store.Status()
	if status != StatusPreparing && status != StatusStreaming {
		return
	}

	c.mu.Lock()
	req := c.active
	c.mu.Unlock()
	if req == nil {
		return
	}

	c.writeMu.Lock()
	req.aborted = true
	c.writeMu.Unlock()

	req.cancel(ErrAborted)
	c.logger.Debug("request stopped",
		zap.String("chat_id", c.id),
		zap.Int("pending_jobs", c.executor.Pending()),
	)
}

// UpdateTransport switches to another assistant backend and clears the
// conversation.
func (c *Chat) UpdateTransport(t transport.Transport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return ErrBusy
	}

	c.transport = t
	c.store.SetMessages(nil)
	return nil
}

// Close releases the executor when the Chat created it.
func (c *Chat) Close() {
	if c.ownsExec {
		c.executor.Close()
	}
}

func (c *Chat) begin(parent context.Context) (*request, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, nil, ErrBusy
	}

	ctx, cancel := context.WithCancelCause(parent)
	req := &request{cancel: cancel}
	c.active = req
	return req, ctx, nil
}

// end releases req. It runs before the final status change so observers
// that see ready can start the next request, and again when the request
// returns.
func (c *Chat) end(req *request) {
	req.cancel(nil)

	c.mu.Lock()
	if c.active == req {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Chat) run(ctx context.Context, req *request, messageID string) error {
	c.store.setError(nil)
	c.store.setStatus(StatusPreparing)

	messages := c.store.Messages()

	reducerConfig := &stream.ReducerConfig{
		Tools:    c.tools,
		Repairer: c.repairer,
		Logger:   c.logger,
	}
	index := -1
	if n := len(messages); n > 0 && messages[n-1].Role == llm.RoleAssistant {
		reducerConfig.Message = messages[n-1]
		index = n - 1
	} else {
		reducerConfig.MessageID = uuid.NewString()
	}

	reducer := stream.NewReducer(reducerConfig)
	builder := newMessageBuilder(c.store, index, c.logger)

	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()

	body, err := t.SendMessages(ctx, &transport.Request{
		ChatID:    c.id,
		Messages:  messages,
		MessageID: messageID,
		Trigger:   transport.TriggerSubmitMessage,
	})
	if err == nil {
		err = stream.Consume(ctx, body, &stream.ConsumeConfig{
			Reducer:  reducer,
			Executor: c.executor,
			Writer:   stream.WriterFunc(func(msg *llm.Message) { c.write(req, builder, msg) }),
			Tee:      c.tee,
			Logger:   c.logger,
		})
	}

	return c.finish(ctx, req, builder, err)
}

// write publishes a mutation of the in-flight message unless the request
// was stopped.
func (c *Chat) write(req *request, builder *messageBuilder, msg *llm.Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if req.aborted || req.finished {
		return
	}

	c.store.setStatus(StatusStreaming)
	builder.publish(msg)
}

func (c *Chat) finish(ctx context.Context, req *request, builder *messageBuilder, err error) error {
	c.writeMu.Lock()
	aborted := req.aborted
	req.finished = true
	final := builder.last
	c.writeMu.Unlock()

	switch {
	case err == nil:
		c.logger.Debug("request completed", zap.String("chat_id", c.id))

	case aborted || errors.Is(err, ErrAborted) || errors.Is(context.Cause(ctx), context.Canceled):
		c.logger.Debug("request aborted", zap.String("chat_id", c.id), zap.Error(err))
		err = nil

	default:
		if errors.Is(err, stream.ErrNetworkDisconnect) {
			c.logger.Warn("network disconnect", zap.String("chat_id", c.id), zap.Error(err))
		} else {
			c.logger.Error("request failed", zap.String("chat_id", c.id), zap.Error(err))
		}
		c.store.setError(err)
	}

	c.end(req)
	c.store.setStatus(StatusReady)

	if c.onFinish != nil {
		c.onFinish(final, err)
	}

	return err
}
