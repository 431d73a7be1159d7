package chat

import (
	"slices"
	"sync"

	"github.com/papercomputeco/uistream/pkg/llm"
)

// Status is the lifecycle state of a chat session.
type Status string

const (
	// StatusReady means no request is active.
	StatusReady Status = "ready"

	// StatusPreparing means a request was sent and nothing was received yet.
	StatusPreparing Status = "preparing"

	// StatusStreaming means the in-flight message has been mutated at least
	// once.
	StatusStreaming Status = "streaming"
)

// Store holds the conversation, the session status and the last surfaced
// error, notifying observers after each change. The message slice is
// replaced on every change, so a slice returned by Messages is never
// modified afterwards.
//
// Observers are invoked synchronously, in subscription order, by the
// goroutine making the change. They may read the Store but must not change
// it.
type Store struct {
	mu       sync.RWMutex
	messages []*llm.Message
	status   Status
	err      error
	version  uint64

	// serializes changes together with their notifications
	changeMu sync.Mutex

	observersMu      sync.Mutex
	nextObserver     int
	messageObservers map[int]func()
	statusObservers  map[int]func()
	errorObservers   map[int]func()
}

// NewStore creates a Store holding copies of the initial messages.
func NewStore(initial ...*llm.Message) *Store {
	messages := make([]*llm.Message, 0, len(initial))
	for _, m := range initial {
		messages = append(messages, m.Clone())
	}

	return &Store{
		messages:         messages,
		status:           StatusReady,
		messageObservers: map[int]func(){},
		statusObservers:  map[int]func(){},
		errorObservers:   map[int]func(){},
	}
}

// Messages returns the current conversation. Callers must not modify it.
func (s *Store) Messages() []*llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages
}

// Status returns the current session status.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err returns the last surfaced error, or nil.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Version increases by one for every change to the message list.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// OnMessages registers fn to run after every change to the message list.
// The returned function unsubscribes it.
func (s *Store) OnMessages(fn func()) func() {
	return s.subscribe(s.messageObservers, fn)
}

// OnStatus registers fn to run after every status change. Observers run
// while the change is held, so follow-up requests belong on another
// goroutine.
func (s *Store) OnStatus(fn func()) func() {
	return s.subscribe(s.statusObservers, fn)
}

// OnError registers fn to run after the surfaced error changes.
func (s *Store) OnError(fn func()) func() {
	return s.subscribe(s.errorObservers, fn)
}

// SetMessages replaces the whole conversation with copies of messages.
func (s *Store) SetMessages(messages []*llm.Message) {
	next := make([]*llm.Message, 0, len(messages))
	for _, m := range messages {
		next = append(next, m.Clone())
	}

	s.changeMessages(func([]*llm.Message) []*llm.Message { return next })
}

// push appends msg and returns its index. msg must not be modified after.
func (s *Store) push(msg *llm.Message) int {
	var index int
	s.changeMessages(func(current []*llm.Message) []*llm.Message {
		index = len(current)
		return append(slices.Clip(current), msg)
	})
	return index
}

// replace swaps the message at index for msg. msg must not be modified after.
func (s *Store) replace(index int, msg *llm.Message) {
	s.changeMessages(func(current []*llm.Message) []*llm.Message {
		next := slices.Clone(current)
		next[index] = msg
		return next
	})
}

func (s *Store) changeMessages(change func(current []*llm.Message) []*llm.Message) {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()

	s.mu.Lock()
	s.messages = change(s.messages)
	s.version++
	s.mu.Unlock()

	s.notify(s.messageObservers)
}

func (s *Store) setStatus(status Status) {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()

	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	s.notify(s.statusObservers)
}

func (s *Store) setError(err error) {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()

	s.mu.Lock()
	if s.err == nil && err == nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.mu.Unlock()

	s.notify(s.errorObservers)
}

func (s *Store) subscribe(observers map[int]func(), fn func()) func() {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	id := s.nextObserver
	s.nextObserver++
	observers[id] = fn

	return func() {
		s.observersMu.Lock()
		defer s.observersMu.Unlock()
		delete(observers, id)
	}
}

func (s *Store) notify(observers map[int]func()) {
	s.observersMu.Lock()
	ids := make([]int, 0, len(observers))
	for id := range observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, observers[id])
	}
	s.observersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
