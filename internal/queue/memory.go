package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue implements Queue with a buffered channel
type MemoryQueue struct {
	items     chan interface{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue creates a queue buffering ten batches
func NewMemoryQueue(config *Config) *MemoryQueue {
	if config == nil {
		config = DefaultConfig("memory")
	}
	size := config.BatchSize * 10
	if size <= 0 {
		size = 1000
	}

	return &MemoryQueue{
		items: make(chan interface{}, size),
		done:  make(chan struct{}),
	}
}

// Enqueue adds an item, blocking while the buffer is full
func (q *MemoryQueue) Enqueue(ctx context.Context, item interface{}) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- item:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue retrieves items, blocking until at least one is available.
// Buffered items are still handed out after Close so the queue can drain.
func (q *MemoryQueue) Dequeue(ctx context.Context, maxItems int) ([]interface{}, error) {
	select {
	case item := <-q.items:
		return q.fill([]interface{}{item}, maxItems), nil
	default:
	}

	select {
	case item := <-q.items:
		return q.fill([]interface{}{item}, maxItems), nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DequeueWithTimeout retrieves items, waiting at most timeout for the first one
func (q *MemoryQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error) {
	select {
	case item := <-q.items:
		return q.fill([]interface{}{item}, maxItems), nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-q.items:
		return q.fill([]interface{}{item}, maxItems), nil
	case <-timer.C:
		return []interface{}{}, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fill tops up items with whatever is buffered, without blocking
func (q *MemoryQueue) fill(items []interface{}, maxItems int) []interface{} {
	for len(items) < maxItems {
		select {
		case item := <-q.items:
			items = append(items, item)
		default:
			return items
		}
	}
	return items
}

// Length returns the number of buffered items
func (q *MemoryQueue) Length(ctx context.Context) (int, error) {
	return len(q.items), nil
}

// Close stops accepting new items
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// MemoryDeadLetterQueue implements DeadLetterQueue in process memory
type MemoryDeadLetterQueue struct {
	mu     sync.Mutex
	items  []DeadLetterItem
	closed bool
}

// NewMemoryDeadLetterQueue creates an empty dead letter queue
func NewMemoryDeadLetterQueue() *MemoryDeadLetterQueue {
	return &MemoryDeadLetterQueue{}
}

// Add records a failed item
func (q *MemoryDeadLetterQueue) Add(ctx context.Context, item interface{}, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, newDeadLetterItem(item, err))
	return nil
}

// List returns up to maxItems entries, oldest first
func (q *MemoryDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	n := len(q.items)
	if maxItems > 0 && maxItems < n {
		n = maxItems
	}
	out := make([]DeadLetterItem, n)
	copy(out, q.items[:n])
	return out, nil
}

// Remove deletes the entry with the given id
func (q *MemoryDeadLetterQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// Close discards all entries
func (q *MemoryDeadLetterQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
	return nil
}

func newDeadLetterItem(item interface{}, err error) DeadLetterItem {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return DeadLetterItem{
		ID:        uuid.NewString(),
		Item:      item,
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}
}
