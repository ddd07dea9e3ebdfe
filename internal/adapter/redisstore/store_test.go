package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/trade-gateway/internal/port"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore_HashRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.HSet(ctx, "order:1", map[string]string{"orderId": "1", "price": "50000"}))

	got, err := s.HGetAll(ctx, "order:1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"orderId": "1", "price": "50000"}, got)

	missing, err := s.HGetAll(ctx, "order:2")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestStore_SortedSetRanges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.ZAdd(ctx, "orderbook:BTC_USD:bids", -40000, "a"))
	require.NoError(t, s.ZAdd(ctx, "orderbook:BTC_USD:bids", -50000, "b"))

	asc, err := s.ZRange(ctx, "orderbook:BTC_USD:bids", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []port.Z{{Member: "b", Score: -50000}}, asc)

	desc, err := s.ZRevRange(ctx, "orderbook:BTC_USD:bids", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []port.Z{{Member: "a", Score: -40000}, {Member: "b", Score: -50000}}, desc)

	n, err := s.ZCard(ctx, "orderbook:BTC_USD:bids")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, s.ZRem(ctx, "orderbook:BTC_USD:bids", "a"))
	require.NoError(t, s.ZRem(ctx, "orderbook:BTC_USD:bids", "a"))
	n, err = s.ZCard(ctx, "orderbook:BTC_USD:bids")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStore_AtomicBatch(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	err := s.Atomic(ctx, func(b port.Batch) {
		b.HSet("trade:t1", map[string]string{"tradeId": "t1"})
		b.ZAdd("trades:BTC_USD", 1700000000000, "t1")
	})
	require.NoError(t, err)

	assert.Equal(t, "t1", mr.HGet("trade:t1", "tradeId"))
	members, err := mr.ZMembers("trades:BTC_USD")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, members)
}

func TestStore_ErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	mr.Close()

	err := s.HSet(ctx, "order:1", map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: hset order:1")
	assert.Error(t, s.Ping(ctx))
}
