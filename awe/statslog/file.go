package statslog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileStatsLogger appends one gzip-compressed JSON line per event to a
// log file, grounded on the original AWE stats.StatsLogger writing to
// debug/task_stats.log.gz.
type FileStatsLogger struct {
	mu   sync.Mutex
	file *os.File
	gz   *gzip.Writer
}

// NewFileStatsLogger opens (creating parent directories as needed) a
// gzip writer appending to path.
func NewFileStatsLogger(path string) (*FileStatsLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("statslog: mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("statslog: open: %w", err)
	}
	return &FileStatsLogger{file: f, gz: gzip.NewWriter(f)}, nil
}

// Log implements StatsLogger.
func (f *FileStatsLogger) Log(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("statslog: marshal: %w", err)
	}
	if _, err := f.gz.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("statslog: write: %w", err)
	}
	return f.gz.Flush()
}

// Close implements StatsLogger.
func (f *FileStatsLogger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gz.Close(); err != nil {
		f.file.Close()
		return err
	}
	return f.file.Close()
}

var _ io.Closer = (*FileStatsLogger)(nil)
