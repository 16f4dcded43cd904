package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

type fakePutter struct {
	mu      sync.Mutex
	inputs  []*s3.PutObjectInput
	bodies  [][]byte
	failErr error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

type fakeBatchWriter struct {
	mu      sync.Mutex
	batches [][]*models.UsageLogEntry
	fail    bool
}

func (f *fakeBatchWriter) WriteBatch(ctx context.Context, entries []*models.UsageLogEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("upload failed")
	}
	f.batches = append(f.batches, entries)
	return "key", nil
}

func (f *fakeBatchWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func (f *fakeBatchWriter) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func ledgerEntries(n int) []*models.UsageLogEntry {
	out := make([]*models.UsageLogEntry, n)
	for i := range out {
		out[i] = &models.UsageLogEntry{
			ID:           uuid.New(),
			UserID:       "user-1",
			ServiceName:  "storefront",
			ProviderName: "openai",
			Model:        "gpt-4o-mini",
			InputTokens:  10,
			OutputTokens: 20,
			CostUSD:      0.001,
			CreatedAt:    time.Now().UTC(),
		}
	}
	return out
}

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()

	assert.NoError(t, sink.ConsumeUsage(context.Background(), ledgerEntries(3)))
	assert.NoError(t, sink.Shutdown(context.Background()))
}

func TestS3Writer_WriteBatch(t *testing.T) {
	putter := &fakePutter{}
	w := newS3Writer(putter, "ledger-bucket", "ledger/", "gateway-0")
	w.now = func() time.Time { return time.Date(2025, 11, 30, 14, 30, 22, 123456789, time.UTC) }

	entries := ledgerEntries(3)
	key, err := w.WriteBatch(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, "ledger/2025/11/30/gateway-0-20251130-143022-123456789.jsonl", key)
	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "ledger-bucket", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, "application/x-ndjson", aws.ToString(putter.inputs[0].ContentType))

	lines := strings.Split(strings.TrimSpace(string(putter.bodies[0])), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		var decoded models.UsageLogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
		assert.Equal(t, entries[i].ID, decoded.ID)
	}
}

func TestS3Writer_EmptyBatch(t *testing.T) {
	putter := &fakePutter{}
	w := newS3Writer(putter, "b", "", "pod")

	key, err := w.WriteBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Empty(t, putter.inputs)
}

func TestS3Writer_UploadError(t *testing.T) {
	w := newS3Writer(&fakePutter{failErr: errors.New("access denied")}, "b", "", "pod")

	_, err := w.WriteBatch(context.Background(), ledgerEntries(1))
	assert.ErrorContains(t, err, "access denied")
}

func TestS3Sink_FlushesAtFlushSize(t *testing.T) {
	writer := &fakeBatchWriter{}
	sink := newS3Sink(S3SinkConfig{BufferSize: 100, FlushSize: 5, FlushInterval: time.Hour}, writer)
	defer sink.Shutdown(context.Background())

	require.NoError(t, sink.ConsumeUsage(context.Background(), ledgerEntries(5)))

	assert.Eventually(t, func() bool { return writer.count() == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, sink.Pending())
}

func TestS3Sink_FlushesOnInterval(t *testing.T) {
	writer := &fakeBatchWriter{}
	sink := newS3Sink(S3SinkConfig{BufferSize: 100, FlushSize: 50, FlushInterval: 20 * time.Millisecond}, writer)
	defer sink.Shutdown(context.Background())

	require.NoError(t, sink.ConsumeUsage(context.Background(), ledgerEntries(2)))

	assert.Eventually(t, func() bool { return writer.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestS3Sink_ShutdownFlushesRemainder(t *testing.T) {
	writer := &fakeBatchWriter{}
	sink := newS3Sink(S3SinkConfig{BufferSize: 100, FlushSize: 4, FlushInterval: time.Hour}, writer)

	require.NoError(t, sink.ConsumeUsage(context.Background(), ledgerEntries(3)))
	require.NoError(t, sink.Shutdown(context.Background()))

	assert.Equal(t, 3, writer.count())
	assert.Equal(t, 0, sink.Pending())
}

func TestS3Sink_DropsWhenBufferFull(t *testing.T) {
	writer := &fakeBatchWriter{}
	writer.setFail(true)
	sink := newS3Sink(S3SinkConfig{BufferSize: 10, FlushSize: 10, FlushInterval: time.Hour}, writer)

	require.NoError(t, sink.ConsumeUsage(context.Background(), ledgerEntries(4)))
	require.NoError(t, sink.ConsumeUsage(context.Background(), ledgerEntries(8)))

	assert.Equal(t, int64(2), sink.Dropped())

	err := sink.Shutdown(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 10, sink.Pending(), "failed batch is kept")
}

func TestS3Sink_RetriesFailedBatch(t *testing.T) {
	writer := &fakeBatchWriter{}
	writer.setFail(true)
	sink := newS3Sink(S3SinkConfig{BufferSize: 100, FlushSize: 50, FlushInterval: time.Hour}, writer)

	require.NoError(t, sink.ConsumeUsage(context.Background(), ledgerEntries(3)))
	assert.Error(t, sink.flush(context.Background()))
	assert.Equal(t, 3, sink.Pending())

	writer.setFail(false)
	require.NoError(t, sink.Shutdown(context.Background()))
	assert.Equal(t, 3, writer.count())
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), S3SinkConfig{})
	assert.Error(t, err)
}

func readLines(t *testing.T, data []byte) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}
