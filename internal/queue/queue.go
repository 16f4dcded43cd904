// Package queue provides the buffered hand-off between request handling and
// ledger persistence. Two backends exist:
//
//   - Memory: channel-based, lost on restart, for single-instance deployments.
//   - Redis: list-based, survives restarts and can be drained by any instance.
//
// Items that exhaust their retries land in a DeadLetterQueue for inspection.
package queue

import (
	"context"
	"time"
)

// Queue defines the interface for message queuing
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item interface{}) error

	// Dequeue retrieves up to maxItems, blocking until at least one is available
	Dequeue(ctx context.Context, maxItems int) ([]interface{}, error)

	// DequeueWithTimeout is Dequeue bounded by timeout; it returns an empty
	// slice when nothing arrived in time
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close stops accepting items
	Close() error
}

// DeadLetterQueue holds items whose processing failed permanently
type DeadLetterQueue interface {
	Add(ctx context.Context, item interface{}, err error) error

	// List returns up to maxItems entries, oldest first; maxItems <= 0 means all
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem is one failed item together with the error that sank it
type DeadLetterItem struct {
	ID        string      `json:"id"`
	Item      interface{} `json:"item"`
	Error     string      `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// Config holds queue configuration
type Config struct {
	// QueueName is the suffix of the Redis keys (queue:<name>, dlq:<name>)
	QueueName string

	// BatchSize is the maximum number of items processed together
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the number of per-item retries after a failed batch
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled on every retry
	RetryBackoff time.Duration
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		QueueName:    queueName,
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}
