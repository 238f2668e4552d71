package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*Writer, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func f(v float64) *float64 { return &v }

func TestWriter_PutAndGet(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	tick := domain.Tick{Symbol: "BTCUSD", Exchange: "binance", Price: 42000, Bid: f(41999), Ask: f(42001)}
	require.NoError(t, w.Put(ctx, tick))

	got, ok, err := w.Get(ctx, "binance", "BTCUSD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tick.Symbol, got.Symbol)
	assert.Equal(t, tick.Price, got.Price)
	assert.Equal(t, *tick.Bid, *got.Bid)
}

func TestWriter_GetMissingReturnsNotFound(t *testing.T) {
	w, _ := newTestWriter(t)
	_, ok, err := w.Get(context.Background(), "binance", "DOESNOTEXIST")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriter_PutBatchAndGetTickers(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	ticks := []domain.Tick{
		{Symbol: "BTCUSD", Exchange: "binance", Price: 42000},
		{Symbol: "ETHUSD", Exchange: "binance", Price: 2500},
		{Symbol: "BTCUSD", Exchange: "bybit", Price: 42010},
	}
	require.NoError(t, w.PutBatch(ctx, ticks))

	binanceTicks, err := w.GetTickers(ctx, "binance")
	require.NoError(t, err)
	assert.Len(t, binanceTicks, 2)

	all, err := w.GetAllTickers(ctx, []string{"binance", "bybit"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWriter_PutOverwritesPreviousValue(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	require.NoError(t, w.Put(ctx, domain.Tick{Symbol: "BTCUSD", Exchange: "binance", Price: 42000}))
	require.NoError(t, w.Put(ctx, domain.Tick{Symbol: "BTCUSD", Exchange: "binance", Price: 42500}))

	got, ok, err := w.Get(ctx, "binance", "BTCUSD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42500.0, got.Price)
}

func TestWriter_PutBatchEmptyIsNoop(t *testing.T) {
	w, _ := newTestWriter(t)
	assert.NoError(t, w.PutBatch(context.Background(), nil))
}
