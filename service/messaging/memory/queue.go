package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/pausor/internal/idgen"
	"github.com/viant/pausor/service/messaging"
)

// Config for memory queue implementation
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		QueueBuffer: 100,
	}
}

// Message implements messaging.Message for the in-memory queue
type Message[T any] struct {
	id         string
	payload    T
	queue      *Queue[T]
	retryCount int
	mu         sync.Mutex
	processed  bool
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	return nil
}

// Nack indicates a failure in processing the message; the payload is requeued
// after the retry delay until the retry limit is exhausted.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.retryCount++
	if m.retryCount > m.queue.config.MaxRetries {
		return nil
	}
	go func() {
		time.Sleep(m.queue.config.RetryDelay)
		retry := &Message[T]{
			id:         m.id,
			payload:    m.payload,
			queue:      m.queue,
			retryCount: m.retryCount,
		}
		select {
		case m.queue.messages <- retry:
		case <-m.queue.closed:
		}
	}()
	return nil
}

// Queue implements an in-memory messaging.Queue
type Queue[T any] struct {
	messages  chan *Message[T]
	closed    chan struct{}
	closeOnce sync.Once
	config    Config
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		closed:   make(chan struct{}),
		config:   config,
	}
}

// Publish adds a new item to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	msg := &Message[T]{
		id:      idgen.New(),
		payload: *t,
		queue:   q,
	}
	select {
	case q.messages <- msg:
		return nil
	case <-q.closed:
		return fmt.Errorf("queue closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume retrieves a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-q.closed:
		return nil, fmt.Errorf("queue closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases consumers blocked on an empty queue.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
