package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/queue"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

const (
	// persistTimeout bounds one ledger write, independent of any request
	persistTimeout = 30 * time.Second

	// enqueueTimeout bounds how long Record waits on a full queue
	enqueueTimeout = time.Second
)

// UsageWriter persists ledger entries
type UsageWriter interface {
	Create(ctx context.Context, entry *models.UsageLogEntry) error
	CreateBatch(ctx context.Context, entries []*models.UsageLogEntry) error
}

// UsageConsumer receives ledger entries after they were persisted
type UsageConsumer interface {
	ConsumeUsage(ctx context.Context, entries []*models.UsageLogEntry) error
}

// UsageQueueWorker records ledger entries asynchronously: entries are
// queued, inserted in transactional batches, retried one by one with
// exponential backoff when a batch fails, and dead-lettered after the
// last retry.
type UsageQueueWorker struct {
	queue     queue.Queue
	dlq       queue.DeadLetterQueue
	writer    UsageWriter
	consumers []UsageConsumer
	config    *queue.Config
	logger    *utils.Logger

	startOnce   sync.Once
	stopOnce    sync.Once
	cancel      context.CancelFunc
	stoppedChan chan struct{}

	// direct writes for entries the queue refused
	fallbacks sync.WaitGroup
}

// NewUsageQueueWorker creates a new usage queue worker
func NewUsageQueueWorker(q queue.Queue, dlq queue.DeadLetterQueue, writer UsageWriter, config *queue.Config, consumers ...UsageConsumer) *UsageQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}

	return &UsageQueueWorker{
		queue:       q,
		dlq:         dlq,
		writer:      writer,
		consumers:   consumers,
		config:      config,
		logger:      utils.NewLogger("usage-worker"),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *UsageQueueWorker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		w.cancel = cancel
		go w.run(runCtx)
	})
}

// Stop stops dequeuing, drains what is left in the queue and waits for
// pending direct writes
func (w *UsageQueueWorker) Stop() error {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.stoppedChan
		} else {
			close(w.stoppedChan)
		}
		w.fallbacks.Wait()
	})
	return nil
}

// Record queues an entry without blocking the caller for long. When the
// queue refuses it within enqueueTimeout the entry is written directly in
// the background, with the usual retries and dead-lettering.
func (w *UsageQueueWorker) Record(ctx context.Context, entry *models.UsageLogEntry) {
	prepareEntry(entry)

	enqueueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	err := w.queue.Enqueue(enqueueCtx, entry)
	cancel()
	if err == nil {
		return
	}

	w.logger.Warn("Failed to enqueue usage log, writing directly", "id", entry.ID, "error", err)
	w.fallbacks.Add(1)
	go func() {
		defer w.fallbacks.Done()
		if err := w.processItem(entry); err == nil {
			w.notify([]*models.UsageLogEntry{entry})
		}
	}()
}

// run is the main worker loop
func (w *UsageQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for ctx.Err() == nil {
		w.processBatch(ctx)
	}

	w.logger.Info("Usage worker stopping, draining queue")
	w.drain()
}

// drain flushes buffered entries after the loop ended
func (w *UsageQueueWorker) drain() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, 10*time.Millisecond)
		cancel()
		if err != nil || len(items) == 0 {
			return
		}
		w.handleItems(items)
	}
}

// processBatch waits for one batch and persists it
func (w *UsageQueueWorker) processBatch(ctx context.Context) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Failed to dequeue usage logs", "error", err)
		w.sleep(ctx, time.Second)
		return
	}
	w.handleItems(items)
}

func (w *UsageQueueWorker) handleItems(items []interface{}) {
	if len(items) == 0 {
		return
	}

	entries := make([]*models.UsageLogEntry, 0, len(items))
	for _, item := range items {
		entry, err := w.unmarshalItem(item)
		if err != nil {
			w.logger.Error("Failed to decode usage log", "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return
	}

	w.logger.Debug("Processing usage batch", "count", len(entries))

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	err := w.writer.CreateBatch(ctx, entries)
	cancel()
	if err == nil {
		w.notify(entries)
		return
	}

	w.logger.Error("Failed to insert batch, falling back to individual inserts", "error", err)
	persisted := make([]*models.UsageLogEntry, 0, len(entries))
	for _, entry := range entries {
		if err := w.processItem(entry); err != nil {
			w.logger.Error("Failed to persist usage log", "id", entry.ID, "error", err)
			continue
		}
		persisted = append(persisted, entry)
	}
	w.notify(persisted)
}

// processItem inserts one entry with retries, dead-lettering it at the end
func (w *UsageQueueWorker) processItem(entry *models.UsageLogEntry) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying usage log", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := w.writer.Create(ctx, entry)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		w.logger.Warn("Failed to insert usage log", "attempt", attempt, "error", err)
	}

	if w.dlq != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := w.dlq.Add(ctx, entry, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Usage log moved to DLQ", "id", entry.ID, "error", lastErr)
		}
	}

	return fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
}

// notify hands persisted entries to every consumer; failures are logged only
func (w *UsageQueueWorker) notify(entries []*models.UsageLogEntry) {
	notifyConsumers(w.consumers, entries, w.logger)
}

func notifyConsumers(consumers []UsageConsumer, entries []*models.UsageLogEntry, logger *utils.Logger) {
	if len(entries) == 0 {
		return
	}
	for _, c := range consumers {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := c.ConsumeUsage(ctx, entries); err != nil {
			logger.Error("Usage consumer failed", "consumer", fmt.Sprintf("%T", c), "error", err)
		}
		cancel()
	}
}

func (w *UsageQueueWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// unmarshalItem turns a queue item back into an entry
func (w *UsageQueueWorker) unmarshalItem(item interface{}) (*models.UsageLogEntry, error) {
	switch v := item.(type) {
	case *models.UsageLogEntry:
		return v, nil
	case models.UsageLogEntry:
		return &v, nil
	case json.RawMessage:
		var entry models.UsageLogEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil, err
		}
		return &entry, nil
	case []byte:
		var entry models.UsageLogEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil, err
		}
		return &entry, nil
	case string:
		var entry models.UsageLogEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, err
		}
		return &entry, nil
	case map[string]interface{}:
		// dead letters read back from Redis
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var entry models.UsageLogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, err
		}
		return &entry, nil
	default:
		return nil, fmt.Errorf("unexpected queue item type %T", item)
	}
}

// QueueLength returns the number of entries waiting to be persisted
func (w *UsageQueueWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetters returns entries that exhausted their retries
func (w *UsageQueueWorker) DeadLetters(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return []queue.DeadLetterItem{}, nil
	}
	return w.dlq.List(ctx, maxItems)
}

// ReplayDeadLetter moves a dead-lettered entry back onto the queue
func (w *UsageQueueWorker) ReplayDeadLetter(ctx context.Context, id string) error {
	if w.dlq == nil {
		return queue.ErrItemNotFound
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ID != id {
			continue
		}
		entry, err := w.unmarshalItem(item.Item)
		if err != nil {
			return fmt.Errorf("failed to decode dead letter %s: %w", id, err)
		}
		if err := w.queue.Enqueue(ctx, entry); err != nil {
			return fmt.Errorf("failed to requeue dead letter %s: %w", id, err)
		}
		w.logger.Info("Dead letter requeued", "dead_letter_id", id, "id", entry.ID)
		return w.dlq.Remove(ctx, id)
	}
	return queue.ErrItemNotFound
}

// SyncUsageRecorder writes every entry inline. It suits single-instance
// deployments and tests that read the ledger right after a dispatch.
type SyncUsageRecorder struct {
	writer    UsageWriter
	consumers []UsageConsumer
	logger    *utils.Logger
}

// NewSyncUsageRecorder creates a synchronous recorder
func NewSyncUsageRecorder(writer UsageWriter, consumers ...UsageConsumer) *SyncUsageRecorder {
	return &SyncUsageRecorder{
		writer:    writer,
		consumers: consumers,
		logger:    utils.NewLogger("usage-recorder"),
	}
}

// Record inserts entry; failures are logged, never returned
func (r *SyncUsageRecorder) Record(ctx context.Context, entry *models.UsageLogEntry) {
	writeCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	err := r.writer.Create(writeCtx, entry)
	cancel()
	if err != nil {
		r.logger.Error("Failed to record usage log", "user_id", entry.UserID, "error", err)
		return
	}
	notifyConsumers(r.consumers, []*models.UsageLogEntry{entry}, r.logger)
}

// DeadLetters is always empty: synchronous writes are never dead-lettered
func (r *SyncUsageRecorder) DeadLetters(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	return []queue.DeadLetterItem{}, nil
}

// ReplayDeadLetter always fails with queue.ErrItemNotFound
func (r *SyncUsageRecorder) ReplayDeadLetter(ctx context.Context, id string) error {
	return queue.ErrItemNotFound
}
