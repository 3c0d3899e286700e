package fanout

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ismaiel54/fullfeed/internal/feed"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "feed:BTC-USD:match", Channel(feed.Match{ProductID: "BTC-USD"}))
	assert.Equal(t, "feed:ETH-USD:received", Channel(feed.Received{ProductID: "ETH-USD"}))
	assert.Equal(t, "feed:subscriptions:subscriptions", Channel(feed.Subscriptions{}))
	assert.Equal(t, "feed:compact:compact", Channel(feed.Compact{"x"}))
	assert.Equal(t, "feed:BTC-USD:*", Pattern("BTC-USD"))
}

func TestPublisher_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := NewPublisher(db, zap.NewNop())
	ctx := context.Background()

	frame := `{"type":"open","product_id":"BTC-USD"}`
	mock.ExpectPublish("feed:BTC-USD:open", frame).SetVal(2)

	receivers, err := p.Publish(ctx, feed.Open{ProductID: "BTC-USD"}, []byte(frame))
	require.NoError(t, err)
	assert.Equal(t, int64(2), receivers)

	published, failed := p.Stats()
	assert.Equal(t, int64(1), published)
	assert.Equal(t, int64(0), failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublisher_PublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := NewPublisher(db, zap.NewNop())

	mock.ExpectPublish("feed:error:error", "{}").SetErr(errors.New("connection reset"))

	_, err := p.Publish(context.Background(), feed.ErrorMessage{}, []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed:error:error")

	_, failed := p.Stats()
	assert.Equal(t, int64(1), failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublisher_NilMessage(t *testing.T) {
	db, _ := redismock.NewClientMock()
	p := NewPublisher(db, zap.NewNop())
	_, err := p.Publish(context.Background(), nil, nil)
	assert.Error(t, err)
}
