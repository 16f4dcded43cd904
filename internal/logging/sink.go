// Package logging archives persisted usage ledger entries outside the
// database: as JSON Lines objects in S3 or as rotated local files.
package logging

import (
	"context"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

// Sink receives ledger entries after they were persisted
type Sink interface {
	ConsumeUsage(ctx context.Context, entries []*models.UsageLogEntry) error

	// Shutdown flushes buffered entries and releases resources
	Shutdown(ctx context.Context) error
}

// NoopSink discards everything
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) ConsumeUsage(ctx context.Context, entries []*models.UsageLogEntry) error {
	return nil
}

func (s *NoopSink) Shutdown(ctx context.Context) error {
	return nil
}
