package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on a Redis list.
// Items come back as json.RawMessage; the consumer decodes them.
type RedisQueue struct {
	client *redis.Client
	qKey   string
}

// NewRedisQueue creates a queue on an existing client. The client is shared
// and is not closed by the queue.
func NewRedisQueue(client *redis.Client, config *Config) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config == nil {
		return nil, errors.New("config is required")
	}

	return &RedisQueue{
		client: client,
		qKey:   fmt.Sprintf("queue:%s", config.QueueName),
	}, nil
}

// Enqueue appends an item as JSON
func (q *RedisQueue) Enqueue(ctx context.Context, item interface{}) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

// Dequeue blocks until at least one item is available
func (q *RedisQueue) Dequeue(ctx context.Context, maxItems int) ([]interface{}, error) {
	return q.pop(ctx, maxItems, 0)
}

// DequeueWithTimeout waits at most timeout for the first item
func (q *RedisQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error) {
	return q.pop(ctx, maxItems, timeout)
}

func (q *RedisQueue) pop(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error) {
	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if errors.Is(err, redis.Nil) {
		return []interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	// result[0] is the key, result[1] the value
	items := []interface{}{json.RawMessage(result[1])}

	for len(items) < maxItems {
		value, err := q.client.LPop(ctx, q.qKey).Result()
		if err != nil {
			// redis.Nil means drained; anything else, return what we have
			break
		}
		items = append(items, json.RawMessage(value))
	}
	return items, nil
}

// Length returns the list length
func (q *RedisQueue) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

// Close is a no-op; the shared client is closed by its owner
func (q *RedisQueue) Close() error {
	return nil
}

// RedisDeadLetterQueue implements DeadLetterQueue on a Redis hash keyed by item id
type RedisDeadLetterQueue struct {
	client *redis.Client
	dlKey  string
}

// NewRedisDeadLetterQueue creates a dead letter queue on an existing client
func NewRedisDeadLetterQueue(client *redis.Client, config *Config) (*RedisDeadLetterQueue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config == nil {
		return nil, errors.New("config is required")
	}

	return &RedisDeadLetterQueue{
		client: client,
		dlKey:  fmt.Sprintf("dlq:%s", config.QueueName),
	}, nil
}

// Add records a failed item
func (q *RedisDeadLetterQueue) Add(ctx context.Context, item interface{}, err error) error {
	dlItem := newDeadLetterItem(item, err)

	data, marshalErr := json.Marshal(dlItem)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", marshalErr)
	}

	if err := q.client.HSet(ctx, q.dlKey, dlItem.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}
	return nil
}

// List returns up to maxItems entries, oldest first. Malformed entries are skipped.
func (q *RedisDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem, 0, len(results))
	for _, data := range results {
		var dlItem DeadLetterItem
		if err := json.Unmarshal([]byte(data), &dlItem); err != nil {
			continue
		}
		items = append(items, dlItem)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

// Remove deletes the entry with the given id
func (q *RedisDeadLetterQueue) Remove(ctx context.Context, id string) error {
	n, err := q.client.HDel(ctx, q.dlKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Close is a no-op; the shared client is closed by its owner
func (q *RedisDeadLetterQueue) Close() error {
	return nil
}
