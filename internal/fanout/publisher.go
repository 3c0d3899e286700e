package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ismaiel54/fullfeed/internal/feed"
	"github.com/ismaiel54/fullfeed/internal/msg"
)

const channelPrefix = "feed"

// Channel returns the pub/sub channel for a frame:
// "feed:<product or kind>:<type>", e.g. "feed:BTC-USD:match" or
// "feed:subscriptions:subscriptions".
func Channel(m feed.Message) string {
	return strings.Join([]string{channelPrefix, msg.PartitionKey(m), string(m.Type())}, ":")
}

// Pattern returns the PSUBSCRIBE pattern matching every frame of one
// product.
func Pattern(productID string) string {
	return channelPrefix + ":" + productID + ":*"
}

// NewClient returns a Redis client after checking the connection
func NewClient(addr, password string, db int) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rc, nil
}

// Publisher fans decoded frames out over Redis pub/sub
type Publisher struct {
	rdb       *redis.Client
	logger    *zap.Logger
	published int64
	failed    int64
}

// NewPublisher creates a new Redis publisher
func NewPublisher(rdb *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

// Publish sends the frame's payload on its channel and returns how many
// subscribers received it.
func (p *Publisher) Publish(ctx context.Context, m feed.Message, payload []byte) (int64, error) {
	if m == nil {
		return 0, errors.New("fanout: nil message")
	}
	channel := Channel(m)

	receivers, err := p.rdb.Publish(ctx, channel, string(payload)).Result()
	if err != nil {
		atomic.AddInt64(&p.failed, 1)
		return 0, fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	atomic.AddInt64(&p.published, 1)
	return receivers, nil
}

// Stats returns the number of published and failed frames
func (p *Publisher) Stats() (published, failed int64) {
	return atomic.LoadInt64(&p.published), atomic.LoadInt64(&p.failed)
}

// Close closes the Redis client
func (p *Publisher) Close() error {
	p.logger.Info("fanout closed",
		zap.Int64("published", atomic.LoadInt64(&p.published)),
		zap.Int64("failed", atomic.LoadInt64(&p.failed)),
	)
	return p.rdb.Close()
}
