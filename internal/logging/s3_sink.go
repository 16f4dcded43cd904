package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// S3SinkConfig holds configuration for the S3 ledger archive
type S3SinkConfig struct {
	BufferSize    int           // entries held in memory before new ones are dropped
	FlushSize     int           // upload once this many entries are buffered
	FlushInterval time.Duration // upload at least this often when anything is buffered
	S3Bucket      string
	S3Region      string
	S3Prefix      string // key prefix, e.g. "ledger/"
	PodName       string // distinguishes objects written by different instances
}

// batchWriter uploads one batch
type batchWriter interface {
	WriteBatch(ctx context.Context, entries []*models.UsageLogEntry) (string, error)
}

// S3Sink buffers ledger entries and uploads them in batches.
// A failed upload keeps its entries for the next flush as long as the
// buffer has room.
type S3Sink struct {
	cfg    S3SinkConfig
	writer batchWriter
	logger *utils.Logger

	mu      sync.Mutex
	pending []*models.UsageLogEntry
	dropped int64

	flushCh  chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewS3Sink creates the sink and its S3 writer, and starts the flush loop
func NewS3Sink(ctx context.Context, cfg S3SinkConfig) (*S3Sink, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	writer, err := NewS3Writer(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix, cfg.PodName)
	if err != nil {
		return nil, err
	}
	return newS3Sink(cfg, writer), nil
}

func newS3Sink(cfg S3SinkConfig, writer batchWriter) *S3Sink {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 1000
	}
	if cfg.BufferSize < cfg.FlushSize {
		cfg.BufferSize = cfg.FlushSize * 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Minute
	}

	s := &S3Sink{
		cfg:     cfg,
		writer:  writer,
		logger:  utils.NewLogger("s3-sink"),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.run()
	return s
}

// ConsumeUsage buffers entries, triggering an upload once FlushSize is reached
func (s *S3Sink) ConsumeUsage(ctx context.Context, entries []*models.UsageLogEntry) error {
	s.mu.Lock()
	room := s.cfg.BufferSize - len(s.pending)
	accepted := entries
	if len(accepted) > room {
		if room < 0 {
			room = 0
		}
		accepted = entries[:room]
		s.dropped += int64(len(entries) - room)
	}
	s.pending = append(s.pending, accepted...)
	full := len(s.pending) >= s.cfg.FlushSize
	s.mu.Unlock()

	if len(accepted) < len(entries) {
		s.logger.Warn("Ledger archive buffer full, dropping entries", "dropped", len(entries)-len(accepted))
	}
	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *S3Sink) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.flush(context.Background())
		case <-s.flushCh:
			s.flush(context.Background())
		}
	}
}

// flush uploads everything buffered, FlushSize entries per object
func (s *S3Sink) flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		n := len(s.pending)
		if n == 0 {
			s.mu.Unlock()
			return nil
		}
		if n > s.cfg.FlushSize {
			n = s.cfg.FlushSize
		}
		batch := make([]*models.UsageLogEntry, n)
		copy(batch, s.pending[:n])
		s.pending = s.pending[n:]
		s.mu.Unlock()

		if _, err := s.writer.WriteBatch(ctx, batch); err != nil {
			s.logger.Error("Failed to archive ledger batch", "count", len(batch), "error", err)
			s.requeue(batch)
			return err
		}
	}
}

// requeue puts a failed batch back at the front, within buffer bounds
func (s *S3Sink) requeue(batch []*models.UsageLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.cfg.BufferSize - len(s.pending)
	if room <= 0 {
		s.dropped += int64(len(batch))
		return
	}
	if len(batch) > room {
		s.dropped += int64(len(batch) - room)
		batch = batch[:room]
	}
	s.pending = append(append([]*models.UsageLogEntry{}, batch...), s.pending...)
}

// Pending returns the number of buffered entries
func (s *S3Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Dropped returns how many entries were discarded because the buffer was full
func (s *S3Sink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Shutdown stops the flush loop and uploads what is left
func (s *S3Sink) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	return s.flush(ctx)
}
