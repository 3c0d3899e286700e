package stats

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// CSVSink writes snapshots as "timestamp,count,size" rows, the timestamp
// in Unix nanoseconds.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVSink creates (or truncates) path and writes the header row.
func NewCSVSink(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create stats directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats file: %w", err)
	}

	s := &CSVSink{file: f, w: csv.NewWriter(f)}
	if err := s.writeRow("timestamp", "count", "size"); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// WriteSnapshot appends one row and flushes it.
func (s *CSVSink) WriteSnapshot(_ context.Context, snap Snapshot) error {
	return s.writeRow(
		strconv.FormatInt(snap.Timestamp.UnixNano(), 10),
		strconv.FormatUint(snap.Count, 10),
		strconv.FormatUint(snap.Size, 10),
	)
}

func (s *CSVSink) writeRow(fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Write(fields); err != nil {
		return fmt.Errorf("failed to write stats row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush stats row: %w", err)
	}
	return nil
}

// Close closes the file
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
