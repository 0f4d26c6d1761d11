package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"reservations/internal/notify"
	"reservations/models"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func sampleEvent() models.RankEvent {
	by := int64(3)
	return models.RankEvent{
		Kind:           models.EventSuperseded,
		ItemID:         7,
		OfferID:        1,
		BidderID:       10,
		Amount:         decimal.RequireFromString("150"),
		OldRank:        models.IntPtr(1),
		NewRank:        2,
		SupersededByID: &by,
		OccurredAt:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

type fakeStream struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func TestLogDispatcher(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	d := notify.NewLog(logger)

	require.NoError(t, d.Emit(context.Background(), sampleEvent()))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "rank event", entry.Message)
	require.Equal(t, models.EventSuperseded, entry.Data["kind"])
	require.Equal(t, int64(3), entry.Data["superseded_by_id"])
	require.Equal(t, 1, entry.Data["old_rank"])
}

func TestRedisStreamDispatcher(t *testing.T) {
	stream := &fakeStream{}
	d := notify.NewRedisStream(stream, "ranking:events", 1000)

	require.NoError(t, d.Emit(context.Background(), sampleEvent()))
	require.Len(t, stream.args, 1)
	args := stream.args[0]
	require.Equal(t, "ranking:events", args.Stream)
	require.Equal(t, int64(1000), args.MaxLen)
	require.True(t, args.Approx)

	values := args.Values.(map[string]interface{})
	require.Equal(t, "superseded", values["kind"])

	var ev models.RankEvent
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &ev))
	require.Equal(t, int64(1), ev.OfferID)
	require.Equal(t, int64(3), *ev.SupersededByID)
}

func TestRedisStreamDispatcherError(t *testing.T) {
	stream := &fakeStream{err: errors.New("connection refused")}
	d := notify.NewRedisStream(stream, "ranking:events", 0)

	err := d.Emit(context.Background(), sampleEvent())
	require.ErrorContains(t, err, "connection refused")
	require.Zero(t, stream.args[0].MaxLen)
}

type countingDispatcher struct {
	calls int
	err   error
}

func (c *countingDispatcher) Emit(ctx context.Context, ev models.RankEvent) error {
	c.calls++
	return c.err
}

func TestRateLimitedHonoursContext(t *testing.T) {
	next := &countingDispatcher{}
	d := notify.NewRateLimited(next, 0.001, 1)

	require.NoError(t, d.Emit(context.Background(), sampleEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, d.Emit(ctx, sampleEvent()))
	require.Equal(t, 1, next.calls)
}

func TestFanoutTriesAll(t *testing.T) {
	failing := &countingDispatcher{err: errors.New("down")}
	ok := &countingDispatcher{}
	f := notify.Fanout{failing, ok}

	err := f.Emit(context.Background(), sampleEvent())
	require.ErrorContains(t, err, "down")
	require.Equal(t, 1, failing.calls)
	require.Equal(t, 1, ok.calls)
}
