package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// objectPutter is the slice of the S3 client the writer needs
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer uploads batches of ledger entries to S3 as JSON Lines objects
type S3Writer struct {
	client  objectPutter
	bucket  string
	prefix  string
	podName string
	now     func() time.Time
	logger  *utils.Logger
}

// NewS3Writer creates a writer using the default AWS credential chain
func NewS3Writer(ctx context.Context, bucket, region, prefix, podName string) (*S3Writer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newS3Writer(s3.NewFromConfig(cfg), bucket, prefix, podName), nil
}

func newS3Writer(client objectPutter, bucket, prefix, podName string) *S3Writer {
	return &S3Writer{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		podName: podName,
		now:     time.Now,
		logger:  utils.NewLogger("s3-writer"),
	}
}

// objectKey names one upload, e.g.
// ledger/2025/11/30/gateway-0-20251130-143022-123456789.jsonl
func (w *S3Writer) objectKey(now time.Time) string {
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%09d.jsonl",
		w.prefix,
		now.Year(), now.Month(), now.Day(),
		w.podName,
		now.Format("20060102-150405"),
		now.Nanosecond(),
	)
}

// WriteBatch uploads entries as one object and returns its key
func (w *S3Writer) WriteBatch(ctx context.Context, entries []*models.UsageLogEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	key := w.objectKey(w.now().UTC())

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			w.logger.Error("Failed to encode ledger entry", "id", entry.ID, "error", err)
		}
	}

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("Wrote ledger batch to S3", "key", key, "count", len(entries), "bytes", buf.Len())
	return key, nil
}
