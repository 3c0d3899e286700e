package stats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// JSONProducer is the part of the Kafka producer the relay needs
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, v any) error
}

// RejectRelay publishes journaled rejects to a topic, marking each one
// once the broker has acknowledged it.
type RejectRelay struct {
	store     *Store
	producer  JSONProducer
	topic     string
	logger    *zap.Logger
	interval  time.Duration
	batchSize int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRejectRelay creates a new reject relay
func NewRejectRelay(store *Store, producer JSONProducer, topic string, logger *zap.Logger) *RejectRelay {
	return &RejectRelay{
		store:     store,
		producer:  producer,
		topic:     topic,
		logger:    logger,
		interval:  250 * time.Millisecond,
		batchSize: 100,
	}
}

// Run starts the relay loop. A batch in flight when ctx ends is finished
// first, so no reject is produced without being marked.
func (r *RejectRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.PublishBatch(context.WithoutCancel(ctx)); err != nil {
				r.logger.Error("failed to publish reject batch", zap.Error(err))
			}
		}
	}
}

// Start runs the relay loop in the background until Stop
func (r *RejectRelay) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		r.Run(runCtx)
	}()
}

// Stop ends the background loop, waits for it to exit and then publishes
// the rejects journaled since its last batch.
func (r *RejectRelay) Stop(ctx context.Context) (int, error) {
	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel = nil
	}
	return r.PublishBatch(ctx)
}

// PublishBatch relays one batch of unpublished rejects and returns how many
// were published. Failed rejects stay unpublished for the next batch.
func (r *RejectRelay) PublishBatch(ctx context.Context) (int, error) {
	rejects, err := r.store.ListUnpublishedRejects(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unpublished rejects: %w", err)
	}

	if len(rejects) == 0 {
		return 0, nil
	}

	now := time.Now().UnixMilli()
	published := 0

	for _, reject := range rejects {
		if err := r.producer.ProduceJSON(ctx, r.topic, reject.Kind, reject); err != nil {
			r.logger.Error("failed to produce reject",
				zap.String("reject_id", reject.ID),
				zap.String("kind", reject.Kind),
				zap.Error(err),
			)
			continue
		}

		if err := r.store.MarkRejectPublished(ctx, reject.ID, now); err != nil {
			r.logger.Error("failed to mark reject as published",
				zap.String("reject_id", reject.ID),
				zap.Error(err),
			)
			continue
		}

		published++
	}

	if published > 0 {
		r.logger.Info("published reject batch",
			zap.Int("published", published),
			zap.Int("total", len(rejects)),
		)
	}

	return published, nil
}
