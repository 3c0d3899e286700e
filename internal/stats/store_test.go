package stats

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ismaiel54/fullfeed/internal/feed"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "stats_store_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := Open(filepath.Join(tmpDir, "feed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Snapshots(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := NewRecorder(2, zap.NewNop(), store.SnapshotSink("sess-a"))
	require.NoError(t, rec.Start(ctx))
	require.NoError(t, rec.Observe(ctx, 10))
	require.NoError(t, rec.Observe(ctx, 20))
	require.NoError(t, rec.Close(ctx))

	require.NoError(t, store.WriteSnapshot(ctx, "sess-b", Snapshot{Timestamp: time.Now(), Count: 9}))

	snaps, err := store.ListSnapshots(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, uint64(0), snaps[0].Count)
	assert.Equal(t, uint64(2), snaps[1].Count)
	assert.Equal(t, uint64(30), snaps[1].Size)

	// The store stays usable after the recorder closed its sink
	other, err := store.ListSnapshots(ctx, "sess-b")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, uint64(9), other[0].Count)
}

func TestRejectFromError(t *testing.T) {
	frame := []byte(`{"type":"received","order_type":"stop"}`)
	_, err := feed.Decode(frame)
	require.Error(t, err)

	now := time.UnixMilli(1700000000000)
	r := RejectFromError("sess-1", frame, err, now)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "sess-1", r.SessionID)
	assert.Equal(t, "unknown_order_type", r.Kind)
	assert.Equal(t, "received", r.FrameType)
	assert.Equal(t, "order_type", r.Field)
	assert.Equal(t, "stop", r.Token)
	assert.Equal(t, string(frame), r.Frame)
	assert.Equal(t, int64(1700000000000), r.CreatedUnixMillis)

	foreign := RejectFromError("sess-1", frame, errors.New("boom"), now)
	assert.Equal(t, "unknown", foreign.Kind)
	assert.Empty(t, foreign.Field)
}

func TestStore_RejectJournal(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	frames := []string{
		`{"type":"frobnicate"}`,
		`{"type":"frobnicate","x":1}`,
		`{"product_id":"BTC-USD"}`,
	}
	var first Reject
	for i, f := range frames {
		_, err := feed.DecodeString(f)
		require.Error(t, err)
		r := RejectFromError("sess-1", []byte(f), err, now)
		if i == 0 {
			first = r
		}
		require.NoError(t, store.RecordReject(ctx, r))
	}
	require.NoError(t, store.RecordReject(ctx, first), "recording the same reject twice is ignored")

	counts, err := store.CountRejectsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"unknown_message_kind": 2, "missing_discriminator": 1}, counts)

	latest, err := store.ListRejects(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, frames[2], latest[0].Frame)

	unpublished, err := store.ListUnpublishedRejects(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unpublished, 3)
	assert.Equal(t, first.ID, unpublished[0].ID)
	assert.False(t, unpublished[0].PublishedUnixMillis.Valid)

	require.NoError(t, store.MarkRejectPublished(ctx, first.ID, now.UnixMilli()))
	unpublished, err = store.ListUnpublishedRejects(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unpublished, 2)
}

type fakeProducer struct {
	fail     map[string]bool
	produced []Reject
}

func (f *fakeProducer) ProduceJSON(_ context.Context, topic, key string, v any) error {
	r := v.(Reject)
	if f.fail[r.ID] {
		return errors.New("broker unavailable")
	}
	f.produced = append(f.produced, r)
	return nil
}

func TestRejectRelay_PublishBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, f := range []string{`{"type":"nope"}`, `[1]`} {
		_, err := feed.DecodeString(f)
		require.Error(t, err)
		r := RejectFromError("sess-1", []byte(f), err, time.Now())
		ids = append(ids, r.ID)
		require.NoError(t, store.RecordReject(ctx, r))
	}

	producer := &fakeProducer{fail: map[string]bool{ids[1]: true}}
	relay := NewRejectRelay(store, producer, "coinbase.rejects", zap.NewNop())

	published, err := relay.PublishBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	require.Len(t, producer.produced, 1)
	assert.Equal(t, ids[0], producer.produced[0].ID)

	// The failed reject is retried on the next batch
	producer.fail = nil
	published, err = relay.PublishBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	published, err = relay.PublishBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, published)
}

type countingProducer struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingProducer) ProduceJSON(_ context.Context, _, _ string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[v.(Reject).ID]++
	return nil
}

func TestRejectRelay_StopPublishesEachRejectOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	producer := &countingProducer{counts: make(map[string]int)}
	relay := NewRejectRelay(store, producer, "coinbase.rejects", zap.NewNop())
	relay.interval = time.Millisecond
	relay.Start(ctx)

	var ids []string
	for i := 0; i < 50; i++ {
		frame := []byte(`{"type":"nope"}`)
		_, err := feed.Decode(frame)
		r := RejectFromError("sess-1", frame, err, time.Now())
		ids = append(ids, r.ID)
		require.NoError(t, store.RecordReject(ctx, r))
	}

	_, err := relay.Stop(ctx)
	require.NoError(t, err)

	for _, id := range ids {
		assert.Equal(t, 1, producer.counts[id], "reject %s", id)
	}
	unpublished, err := store.ListUnpublishedRejects(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, unpublished)

	_, err = relay.Stop(ctx)
	require.NoError(t, err, "stopping twice only publishes again")
}
