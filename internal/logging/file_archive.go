package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// FileArchiveConfig holds the settings of the local ledger archive
type FileArchiveConfig struct {
	FilePathTemplate string        // e.g. "/var/log/gateway/usage-%s.jsonl"; %s receives the rotation timestamp
	MaxSize          int64         // bytes before rotation
	MaxFiles         int           // rotated files to keep
	BufferSize       int           // entries queued before new ones are dropped
	FlushInterval    time.Duration // flush the write buffer this often
}

// FileArchive writes ledger entries as JSON Lines to size-rotated local files
type FileArchive struct {
	cfg    FileArchiveConfig
	logger *utils.Logger

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	entryCh  chan *models.UsageLogEntry
	doneCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFileArchive opens the first file and starts the writer goroutine
func NewFileArchive(cfg FileArchiveConfig) (*FileArchive, error) {
	if cfg.FilePathTemplate == "" {
		return nil, fmt.Errorf("file path template is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100 * 1024 * 1024
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	a := &FileArchive{
		cfg:     cfg,
		logger:  utils.NewLogger("file-archive"),
		entryCh: make(chan *models.UsageLogEntry, cfg.BufferSize),
		doneCh:  make(chan struct{}),
	}

	if err := a.openFile(); err != nil {
		return nil, err
	}

	a.wg.Add(1)
	go a.run()

	return a, nil
}

// newFileName stamps the template with the current time. Nanoseconds keep
// names unique across rotations within one second and make them sort by age.
func (a *FileArchive) newFileName() string {
	return fmt.Sprintf(a.cfg.FilePathTemplate, time.Now().UTC().Format("20060102T150405.000000000"))
}

// openFile must be called with mu held or before the writer goroutine starts
func (a *FileArchive) openFile() error {
	a.currentFile = a.newFileName()

	dir := filepath.Dir(a.currentFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(a.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	a.currentSize = fi.Size()
	a.file = file
	a.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded switches to a new file when n more bytes would exceed MaxSize.
// An empty file is never rotated, so oversized lines still get written.
func (a *FileArchive) rotateIfNeeded(n int) (bool, error) {
	if a.currentSize == 0 || a.currentSize+int64(n) <= a.cfg.MaxSize {
		return false, nil
	}

	if err := a.writer.Flush(); err != nil {
		return false, err
	}
	if err := a.file.Close(); err != nil {
		return false, err
	}
	return true, a.openFile()
}

// cleanupOldFiles removes the oldest archives beyond MaxFiles
func (a *FileArchive) cleanupOldFiles() error {
	matches, err := filepath.Glob(fmt.Sprintf(a.cfg.FilePathTemplate, "*"))
	if err != nil {
		return err
	}
	sort.Strings(matches)

	excess := len(matches) - a.cfg.MaxFiles
	for i := 0; i < excess; i++ {
		if matches[i] == a.currentFile {
			continue
		}
		if err := os.Remove(matches[i]); err != nil {
			a.logger.Warn("Failed to remove old archive", "file", matches[i], "error", err)
		}
	}
	return nil
}

func (a *FileArchive) run() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-a.entryCh:
			a.writeEntry(entry)
		case <-ticker.C:
			a.mu.Lock()
			if err := a.writer.Flush(); err != nil {
				a.logger.Error("Failed to flush archive", "file", a.currentFile, "error", err)
			}
			a.mu.Unlock()
		case <-a.doneCh:
			for {
				select {
				case entry := <-a.entryCh:
					a.writeEntry(entry)
				default:
					a.mu.Lock()
					_ = a.writer.Flush()
					_ = a.file.Close()
					a.mu.Unlock()
					return
				}
			}
		}
	}
}

func (a *FileArchive) writeEntry(entry *models.UsageLogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		a.logger.Error("Failed to encode ledger entry", "id", entry.ID, "error", err)
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	rotated, err := a.rotateIfNeeded(len(data))
	if err != nil {
		a.mu.Unlock()
		a.logger.Error("Failed to rotate archive", "file", a.currentFile, "error", err)
		return
	}
	_, _ = a.writer.Write(data)
	a.currentSize += int64(len(data))
	a.mu.Unlock()

	if rotated {
		_ = a.cleanupOldFiles()
	}
}

// ConsumeUsage queues entries for writing; entries beyond the buffer are dropped
func (a *FileArchive) ConsumeUsage(ctx context.Context, entries []*models.UsageLogEntry) error {
	dropped := 0
	for _, entry := range entries {
		select {
		case <-a.doneCh:
			return fmt.Errorf("file archive is shut down")
		default:
		}
		select {
		case a.entryCh <- entry:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		a.logger.Warn("Archive queue full, dropping entries", "dropped", dropped)
	}
	return nil
}

// CurrentFile returns the path being written to
func (a *FileArchive) CurrentFile() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentFile
}

// Shutdown drains queued entries, flushes and closes the file
func (a *FileArchive) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.doneCh) })

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
