// Package worker provides an ordered job executor: a single-consumer mailbox
// that runs submitted jobs strictly one at a time in submission order.
//
// The executor decouples the stream reader from message mutation so that a
// slow mutation never reorders the ones submitted after it.
package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"go.uber.org/zap"
)

// ErrClosed is the outcome of jobs submitted after Close.
var ErrClosed = errors.New("executor closed")

// Job is a unit of work. Its returned error settles the job's Future and
// nothing else: later jobs still run.
type Job func() error

// Config is the configuration options for the executor.
type Config struct {
	// Name identifies the executor in log lines.
	Name string

	// Logger is the provided zap logger
	Logger *zap.Logger
}

type entry struct {
	job    Job
	future *Future
}

// Executor drains an unbounded FIFO queue with exactly one worker goroutine.
type Executor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  *linkedlistqueue.Queue
	closed bool

	wg     sync.WaitGroup
	logger *zap.Logger
	name   string
}

// NewExecutor creates an Executor and starts its worker goroutine.
func NewExecutor(c *Config) *Executor {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		queue:  linkedlistqueue.New(),
		logger: logger,
		name:   c.Name,
	}
	e.cond = sync.NewCond(&e.mu)

	e.wg.Add(1)
	go e.worker()

	return e
}

// Run enqueues job and returns a Future settling with the job's own outcome.
// Run never blocks on the queue.
func (e *Executor) Run(job Job) *Future {
	f := newFuture()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		f.settle(ErrClosed)
		return f
	}

	e.queue.Enqueue(entry{job: job, future: f})
	depth := e.queue.Size()
	e.cond.Signal()
	e.mu.Unlock()

	e.logger.Debug("job queued",
		zap.String("executor", e.name),
		zap.Int("queue_depth", depth),
	)

	return f
}

// Pending returns the number of jobs waiting behind the running one.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Size()
}

// Close stops accepting jobs and waits for every queued job to drain.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()

	e.wg.Wait()
}

// worker is the single consumer, continuously pulling jobs off the queue.
func (e *Executor) worker() {
	defer e.wg.Done()
	e.logger.Debug("executor started", zap.String("executor", e.name))

	for {
		next, ok := e.next()
		if !ok {
			break
		}

		err := e.runJob(next.job)
		if err != nil {
			e.logger.Debug("job failed",
				zap.String("executor", e.name),
				zap.Error(err),
			)
		}
		next.future.settle(err)
	}

	e.logger.Debug("executor stopped", zap.String("executor", e.name))
}

// next blocks until a job is available, or returns false once the executor is
// closed and drained.
func (e *Executor) next() (entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.queue.Empty() && !e.closed {
		e.cond.Wait()
	}

	v, ok := e.queue.Dequeue()
	if !ok {
		return entry{}, false
	}

	return v.(entry), true
}

// runJob executes job, converting a panic into the job's error so the worker
// survives it.
func (e *Executor) runJob(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return job()
}
