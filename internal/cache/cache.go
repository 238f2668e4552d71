// Package cache implements the Cache Writer (spec §4.4): a Redis-backed
// store of the most recent tick per symbol, keyed by exchange, written
// on every normalized tick and read by external consumers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key this writer owns in the shared Redis
// instance.
const keyPrefix = "ticker:"

// DefaultTTL bounds how long a cached tick stays readable; the Ticker
// Manager's get_fresh_tickers filters by its own caller-supplied max age,
// but the cache itself also expires entries so a crashed exchange does
// not leave stale data readable forever.
const DefaultTTL = 5 * time.Minute

// Writer is a Redis-backed implementation of the Cache Writer component.
type Writer struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Writer over an already-connected Redis client (spec
// assumes connection management is the caller's responsibility, same as
// the teacher's infrastructure.NewRedisClient).
func New(client *redis.Client) *Writer {
	return &Writer{client: client, ttl: DefaultTTL}
}

func key(tick domain.Tick) string {
	return keyPrefix + tick.Key()
}

func tickersKey(exchange string) string {
	return keyPrefix + "exchange:" + exchange
}

// Put writes a single tick, overwriting whatever was previously cached
// for its (exchange, symbol) pair (spec §4.4).
func (w *Writer) Put(ctx context.Context, tick domain.Tick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("marshaling tick: %w", err)
	}

	pipe := w.client.TxPipeline()
	pipe.Set(ctx, key(tick), data, w.ttl)
	pipe.HSet(ctx, tickersKey(tick.Exchange), tick.Symbol, data)
	pipe.Expire(ctx, tickersKey(tick.Exchange), w.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// PutBatch writes many ticks in a single round trip, used by the Ticker
// Manager's batch ingestion path (spec §4.5).
func (w *Writer) PutBatch(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	pipe := w.client.TxPipeline()
	touched := make(map[string]struct{}, len(ticks))
	for _, tick := range ticks {
		data, err := json.Marshal(tick)
		if err != nil {
			return fmt.Errorf("marshaling tick %s: %w", tick.Key(), err)
		}
		pipe.Set(ctx, key(tick), data, w.ttl)
		pipe.HSet(ctx, tickersKey(tick.Exchange), tick.Symbol, data)
		touched[tick.Exchange] = struct{}{}
	}
	for exchange := range touched {
		pipe.Expire(ctx, tickersKey(exchange), w.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// Get returns the cached tick for (exchange, symbol), if present and
// not expired.
func (w *Writer) Get(ctx context.Context, exchange, symbol string) (domain.Tick, bool, error) {
	data, err := w.client.Get(ctx, keyPrefix+exchange+":"+symbol).Bytes()
	if err == redis.Nil {
		return domain.Tick{}, false, nil
	}
	if err != nil {
		return domain.Tick{}, false, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	var tick domain.Tick
	if err := json.Unmarshal(data, &tick); err != nil {
		return domain.Tick{}, false, fmt.Errorf("unmarshaling cached tick: %w", err)
	}
	return tick, true, nil
}

// GetTickers returns every cached tick for the given exchange.
func (w *Writer) GetTickers(ctx context.Context, exchange string) ([]domain.Tick, error) {
	raw, err := w.client.HGetAll(ctx, tickersKey(exchange)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	ticks := make([]domain.Tick, 0, len(raw))
	for _, data := range raw {
		var tick domain.Tick
		if err := json.Unmarshal([]byte(data), &tick); err != nil {
			continue
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

// GetAllTickers returns every cached tick of the given exchanges;
// exchanges not named in the list are not read.
func (w *Writer) GetAllTickers(ctx context.Context, exchanges []string) ([]domain.Tick, error) {
	all := make([]domain.Tick, 0)
	for _, exchange := range exchanges {
		ticks, err := w.GetTickers(ctx, exchange)
		if err != nil {
			return nil, err
		}
		all = append(all, ticks...)
	}
	return all, nil
}
