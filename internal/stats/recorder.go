package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultEvery is the number of frames between two snapshots.
const DefaultEvery = 10_000

// Snapshot is one row of throughput statistics: frames seen so far and
// their total size in bytes.
type Snapshot struct {
	Timestamp time.Time
	Count     uint64
	Size      uint64
}

// Sink persists snapshots.
type Sink interface {
	WriteSnapshot(ctx context.Context, s Snapshot) error
	Close() error
}

// Recorder counts text frames and writes a snapshot to every sink at
// start, after every Every frames, and at close.
type Recorder struct {
	every  uint64
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time

	count atomic.Uint64
	size  atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a recorder. every of zero means DefaultEvery.
func NewRecorder(every uint64, logger *zap.Logger, sinks ...Sink) *Recorder {
	if every == 0 {
		every = DefaultEvery
	}
	return &Recorder{
		every:  every,
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
	}
}

// Start writes the initial zero row.
func (r *Recorder) Start(ctx context.Context) error {
	return r.write(ctx, r.Snapshot())
}

// Observe counts one frame of size bytes.
func (r *Recorder) Observe(ctx context.Context, size int) error {
	count := r.count.Add(1)
	total := r.size.Add(uint64(size))
	if count%r.every != 0 {
		return nil
	}
	return r.write(ctx, Snapshot{Timestamp: r.now(), Count: count, Size: total})
}

// Snapshot returns the current totals.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Timestamp: r.now(),
		Count:     r.count.Load(),
		Size:      r.size.Load(),
	}
}

// Close writes the final row and closes every sink. It is safe to call
// more than once.
func (r *Recorder) Close(ctx context.Context) error {
	final := r.Snapshot()
	werr := r.write(ctx, final)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	errs := []error{werr}
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stats sink: %w", err))
		}
	}

	r.logger.Info("stats closed",
		zap.Uint64("count", final.Count),
		zap.Uint64("size", final.Size),
	)
	return errors.Join(errs...)
}

func (r *Recorder) write(ctx context.Context, s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.WriteSnapshot(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Debug("stats snapshot",
		zap.Uint64("count", s.Count),
		zap.Uint64("size", s.Size),
	)
	return errors.Join(errs...)
}
