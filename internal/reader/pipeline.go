// Package reader turns raw feed frames into counted, decoded and
// published messages.
package reader

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ismaiel54/fullfeed/internal/chaos"
	"github.com/ismaiel54/fullfeed/internal/feed"
	"github.com/ismaiel54/fullfeed/internal/msg"
	"github.com/ismaiel54/fullfeed/internal/stats"
)

// FrameProducer publishes raw frames to Kafka
type FrameProducer interface {
	ProduceFrame(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error
}

// Fanout publishes decoded frames to live subscribers
type Fanout interface {
	Publish(ctx context.Context, m feed.Message, payload []byte) (int64, error)
}

// Journal records frames that failed to decode
type Journal interface {
	RecordReject(ctx context.Context, r stats.Reject) error
}

// Options holds the optional sinks of a pipeline. Nil fields are skipped.
type Options struct {
	Journal  Journal
	Producer FrameProducer
	Topic    string
	Fanout   Fanout
	Chaos    *chaos.Chaos
}

// Counters summarises what a pipeline did with its frames
type Counters struct {
	Frames    int64
	Decoded   int64
	Rejected  int64
	Dropped   int64
	SinkFails int64
}

// Pipeline handles the frames of one session. Every text frame is counted
// before decoding; frames that fail to decode are logged and journaled and
// never end the session.
type Pipeline struct {
	sessionID string
	recorder  *stats.Recorder
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	frames    atomic.Int64
	decoded   atomic.Int64
	rejected  atomic.Int64
	dropped   atomic.Int64
	sinkFails atomic.Int64
}

// NewPipeline creates a pipeline for the given session
func NewPipeline(sessionID string, recorder *stats.Recorder, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Topic == "" {
		opts.Topic = msg.TopicFull
	}
	return &Pipeline{
		sessionID: sessionID,
		recorder:  recorder,
		opts:      opts,
		logger:    logger.With(zap.String("session_id", sessionID)),
		now:       time.Now,
	}
}

// Handle processes one text frame. Its signature matches
// session.FrameHandler.
func (p *Pipeline) Handle(ctx context.Context, frame []byte) error {
	p.frames.Add(1)
	if err := p.recorder.Observe(ctx, len(frame)); err != nil {
		p.logger.Warn("failed to write stats snapshot", zap.Error(err))
	}

	m, err := feed.Decode(frame)
	if err != nil {
		p.reject(ctx, frame, err)
		return nil
	}
	p.decoded.Add(1)

	key := msg.PartitionKey(m)
	if p.opts.Chaos != nil {
		if p.opts.Chaos.MaybeDrop(key, string(m.Type())) {
			p.dropped.Add(1)
			return nil
		}
		if err := p.opts.Chaos.MaybeDelay(ctx, key, string(m.Type())); err != nil {
			return nil
		}
	}

	p.logger.Debug("frame decoded",
		zap.String("type", string(m.Type())),
		zap.String("key", key),
		zap.Int("size", len(frame)),
	)

	if p.opts.Producer != nil {
		headers := msg.FrameHeaders(p.sessionID, m)
		if err := p.opts.Producer.ProduceFrame(ctx, p.opts.Topic, key, frame, headers); err != nil {
			p.sinkFails.Add(1)
			p.logger.Error("failed to produce frame",
				zap.String("type", string(m.Type())),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	if p.opts.Fanout != nil {
		if _, err := p.opts.Fanout.Publish(ctx, m, frame); err != nil {
			p.sinkFails.Add(1)
			p.logger.Warn("failed to fan out frame",
				zap.String("type", string(m.Type())),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (p *Pipeline) reject(ctx context.Context, frame []byte, err error) {
	p.rejected.Add(1)
	p.logger.Warn("failed to decode frame",
		zap.String("kind", feed.ErrorKind(err)),
		zap.ByteString("frame", frame),
		zap.Error(err),
	)

	if p.opts.Journal == nil {
		return
	}
	r := stats.RejectFromError(p.sessionID, frame, err, p.now())
	if jerr := p.opts.Journal.RecordReject(ctx, r); jerr != nil {
		p.logger.Error("failed to journal rejected frame",
			zap.String("reject_id", r.ID),
			zap.Error(jerr),
		)
	}
}

// Counters returns the pipeline's running totals
func (p *Pipeline) Counters() Counters {
	return Counters{
		Frames:    p.frames.Load(),
		Decoded:   p.decoded.Load(),
		Rejected:  p.rejected.Load(),
		Dropped:   p.dropped.Load(),
		SinkFails: p.sinkFails.Load(),
	}
}
