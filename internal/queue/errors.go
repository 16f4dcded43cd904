package queue

import "errors"

var (
	// ErrQueueClosed is returned by every operation after Close
	ErrQueueClosed = errors.New("queue is closed")

	// ErrItemNotFound is returned when a dead letter id is unknown
	ErrItemNotFound = errors.New("item not found")

	// ErrMaxRetriesExceeded wraps the last error of an item sent to the dead letter queue
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
