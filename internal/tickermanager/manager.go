// Package tickermanager implements the Ticker Manager (spec §4.6): the
// single in-process fan-in point for normalized ticks from every
// Exchange Handler, responsible for writing through to the cache
// backend and maintaining per-exchange counters and latency samples.
package tickermanager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/ayankousky/ticker-collector/internal/infrastructure/telemetry"
	utils "github.com/ayankousky/ticker-collector/pkg/utils"
	"github.com/ayankousky/ticker-collector/pkg/utils/mathutils"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// latencyWindowCap bounds each exchange's rolling latency sample window
// (spec §3, Counters).
const latencyWindowCap = 1000

// healthUpdateInterval is the minimum spacing between per-subscription
// health updates issued from the tick path (spec §4.6).
const healthUpdateInterval = 30 * time.Second

// CacheWriter is the subset of the Cache Writer component the Ticker
// Manager depends on.
type CacheWriter interface {
	Put(ctx context.Context, tick domain.Tick) error
	PutBatch(ctx context.Context, ticks []domain.Tick) error
	Get(ctx context.Context, exchange, symbol string) (domain.Tick, bool, error)
	GetTickers(ctx context.Context, exchange string) ([]domain.Tick, error)
	GetAllTickers(ctx context.Context, exchanges []string) ([]domain.Tick, error)
}

// HealthUpdater is the subset of the Health Reporter the Ticker Manager
// depends on for per-subscription updates.
type HealthUpdater interface {
	UpdateProcess(ctx context.Context, health domain.ProcessHealth) (bool, error)
}

// BatchItemError describes one failed item from on_tick_batch_with_validation.
type BatchItemError struct {
	Symbol string
	Err    error
}

// BatchResult is the structured outcome of on_tick_batch_with_validation.
type BatchResult struct {
	Processed int
	Failed    []BatchItemError
}

type exchangeStats struct {
	mu              sync.Mutex
	tickCount       int64
	errorCount      int64
	recoveryCount   int64
	lastSeen        time.Time
	latencies       *utils.RingBuffer[time.Duration]
	activeSymbols   map[string]struct{}
	lastHealthWrite map[string]time.Time
	prevAvgMs       float64
}

func newExchangeStats() *exchangeStats {
	return &exchangeStats{
		latencies:       utils.NewRingBuffer[time.Duration](latencyWindowCap),
		activeSymbols:   make(map[string]struct{}),
		lastHealthWrite: make(map[string]time.Time),
	}
}

// Manager is the Ticker Manager: a single in-process coordinator shared
// by every Exchange Handler's delivery callback.
type Manager struct {
	cache   CacheWriter
	health  HealthUpdater
	logger  *zap.Logger
	tel     telemetry.Provider
	knownEx []string

	mu        sync.Mutex
	exchanges map[string]*exchangeStats
}

// New creates a Ticker Manager fanning in to cache and reporting
// per-subscription health via health.
func New(cache CacheWriter, health HealthUpdater, logger *zap.Logger, tel telemetry.Provider) *Manager {
	return &Manager{
		cache:     cache,
		health:    health,
		logger:    logger,
		tel:       tel,
		exchanges: make(map[string]*exchangeStats),
	}
}

func (m *Manager) statsFor(exchange string) *exchangeStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.exchanges[exchange]
	if !ok {
		st = newExchangeStats()
		m.exchanges[exchange] = st
		m.knownEx = append(m.knownEx, exchange)
	}
	return st
}

// validate applies on_tick's entry validation (spec §4.6): non-empty
// symbol, non-empty exchange and a finite price, by delegating to
// domain.Tick.Validate, so a malformed tick never even reaches a
// counter mutation.
func validate(tick domain.Tick) error {
	return tick.Validate()
}

// OnTick is the Exchange Handler delivery callback target (spec §4.6).
func (m *Manager) OnTick(ctx context.Context, exchange string, tick domain.Tick) error {
	if err := validate(tick); err != nil {
		m.tel.IncrementCounter(telemetryTicksRejected, 1, "exchange", exchange)
		m.logger.Warn("rejecting invalid tick", zap.String("exchange", exchange), zap.Error(err))
		return nil
	}

	span, ctx := m.tel.StartSpan(ctx, telemetrySpanOnTick)
	defer span.Finish()

	start := time.Now()
	st := m.statsFor(exchange)

	if err := m.cache.Put(ctx, tick); err != nil {
		st.mu.Lock()
		st.errorCount++
		st.mu.Unlock()
		m.tel.IncrementCounter(telemetryCacheErrors, 1, "exchange", exchange)
		span.SetTag("error", true)
		return fmt.Errorf("%w", err)
	}

	elapsed := time.Since(start)
	m.tel.Timing(telemetryProcessingLatency, elapsed, "exchange", exchange)
	m.tel.IncrementCounter(telemetryTicksProcessed, 1, "exchange", exchange)

	st.mu.Lock()
	st.tickCount++
	st.lastSeen = time.Now()
	st.latencies.Push(elapsed)
	st.activeSymbols[tick.Symbol] = struct{}{}
	st.mu.Unlock()

	m.updateSubscriptionHealth(ctx, st, exchange, tick)

	return nil
}

// updateSubscriptionHealth applies spec §4.6 step 5: if the last update
// for (exchange, tick.symbol) is older than healthUpdateInterval,
// transition its Health Reporter entry to Running. Shared by OnTick and
// OnTickBatch so both paths apply identical per-element semantics.
func (m *Manager) updateSubscriptionHealth(ctx context.Context, st *exchangeStats, exchange string, tick domain.Tick) {
	if m.health == nil {
		return
	}

	st.mu.Lock()
	lastHealth, healthSeen := st.lastHealthWrite[tick.Symbol]
	shouldUpdateHealth := !healthSeen || time.Since(lastHealth) >= healthUpdateInterval
	if shouldUpdateHealth {
		st.lastHealthWrite[tick.Symbol] = time.Now()
	}
	st.mu.Unlock()

	if !shouldUpdateHealth {
		return
	}

	_, _ = m.health.UpdateProcess(ctx, domain.ProcessHealth{
		Component: exchange + ":" + tick.Symbol,
		Type:      "subscription",
		Status:    domain.StatusRunning,
		Message:   fmt.Sprintf("received tick at %v", tick.Time),
	})
}

// OnTickBatch applies OnTick to every item, coalescing the cache write
// into a single batch call (spec §4.6).
func (m *Manager) OnTickBatch(ctx context.Context, exchange string, ticks []domain.Tick) error {
	span, ctx := m.tel.StartSpan(ctx, telemetrySpanOnTickBatch)
	defer span.Finish()

	valid := make([]domain.Tick, 0, len(ticks))
	for _, tick := range ticks {
		if err := validate(tick); err != nil {
			m.tel.IncrementCounter(telemetryTicksRejected, 1, "exchange", exchange)
			continue
		}
		valid = append(valid, tick)
	}

	start := time.Now()
	st := m.statsFor(exchange)

	if err := m.cache.PutBatch(ctx, valid); err != nil {
		st.mu.Lock()
		st.errorCount++
		st.mu.Unlock()
		m.tel.IncrementCounter(telemetryCacheErrors, 1, "exchange", exchange)
		span.SetTag("error", true)
		return fmt.Errorf("%w", err)
	}

	elapsed := time.Since(start)
	st.mu.Lock()
	st.tickCount += int64(len(valid))
	st.lastSeen = time.Now()
	for _, tick := range valid {
		st.latencies.Push(elapsed / time.Duration(max(len(valid), 1)))
		st.activeSymbols[tick.Symbol] = struct{}{}
	}
	st.mu.Unlock()

	for _, tick := range valid {
		m.updateSubscriptionHealth(ctx, st, exchange, tick)
	}

	m.tel.IncrementCounter(telemetryTicksProcessed, int64(len(valid)), "exchange", exchange)
	return nil
}

// OnTickBatchWithValidation is OnTickBatch's structured-result variant
// (spec §4.6): every item's validation error is reported individually
// and a single item's rejection does not fail the call.
func (m *Manager) OnTickBatchWithValidation(ctx context.Context, exchange string, ticks []domain.Tick) BatchResult {
	result := BatchResult{}
	valid := make([]domain.Tick, 0, len(ticks))

	for _, tick := range ticks {
		if err := validate(tick); err != nil {
			result.Failed = append(result.Failed, BatchItemError{Symbol: tick.Symbol, Err: err})
			continue
		}
		valid = append(valid, tick)
	}

	if len(valid) > 0 {
		if err := m.OnTickBatch(ctx, exchange, valid); err != nil {
			for _, tick := range valid {
				result.Failed = append(result.Failed, BatchItemError{Symbol: tick.Symbol, Err: err})
			}
			return result
		}
	}

	result.Processed = len(valid)
	return result
}

// OnTickWithRetry retries OnTick up to maxAttempts times with
// exponential backoff on domain.ErrCacheUnavailable (spec §4.6).
func (m *Manager) OnTickWithRetry(ctx context.Context, exchange string, tick domain.Tick, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := m.OnTick(ctx, exchange, tick)
		if err == nil {
			if attempt > 0 {
				st := m.statsFor(exchange)
				st.mu.Lock()
				st.recoveryCount++
				st.mu.Unlock()
				m.tel.IncrementCounter(telemetryCacheRecoveries, 1, "exchange", exchange)
			}
			return nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrCacheUnavailable) {
			return err
		}
	}
	return lastErr
}

// GetTicker reads through to the cache backend.
func (m *Manager) GetTicker(ctx context.Context, exchange, symbol string) (domain.Tick, bool, error) {
	return m.cache.Get(ctx, exchange, symbol)
}

// GetTickers reads through to the cache backend for one exchange.
func (m *Manager) GetTickers(ctx context.Context, exchange string) ([]domain.Tick, error) {
	return m.cache.GetTickers(ctx, exchange)
}

// GetSymbolTickers is a full-scan filter over every known exchange's
// cached ticks for a single symbol (spec §4.6): intended for
// low-frequency observability use, not a hot path.
func (m *Manager) GetSymbolTickers(ctx context.Context, symbol string) ([]domain.Tick, error) {
	all, err := m.cache.GetAllTickers(ctx, m.exchangeNames())
	if err != nil {
		return nil, err
	}
	out := make([]domain.Tick, 0)
	for _, tick := range all {
		if tick.Symbol == symbol {
			out = append(out, tick)
		}
	}
	return out, nil
}

// GetFreshTickers is a full-scan filter over every known exchange's
// cached ticks, keeping only those newer than maxAge (spec §4.6).
func (m *Manager) GetFreshTickers(ctx context.Context, maxAge time.Duration) ([]domain.Tick, error) {
	all, err := m.cache.GetAllTickers(ctx, m.exchangeNames())
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	out := make([]domain.Tick, 0)
	for _, tick := range all {
		if tick.TimeAsTime().After(cutoff) {
			out = append(out, tick)
		}
	}
	return out, nil
}

func (m *Manager) exchangeNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.knownEx))
	copy(out, m.knownEx)
	return out
}

// ExchangeStats is a snapshot of one exchange's counters, returned by
// Stats.
type ExchangeStats struct {
	TickCount      int64
	ErrorCount     int64
	RecoveryCount  int64
	LastSeen       time.Time
	ActiveSymbols  int
	LatencyP50Ms   float64
	LatencyP99Ms   float64
}

// Stats is the Ticker Manager's aggregate status (spec §4.6).
type Stats struct {
	PerExchange map[string]ExchangeStats
	TotalCount  int64
}

// Stats snapshots every exchange's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	names := make([]string, len(m.knownEx))
	copy(names, m.knownEx)
	m.mu.Unlock()

	sort.Strings(names)
	result := Stats{PerExchange: make(map[string]ExchangeStats, len(names))}

	for _, name := range names {
		st := m.statsFor(name)
		st.mu.Lock()
		p50, p99 := percentiles(st.latencies.Values())
		result.PerExchange[name] = ExchangeStats{
			TickCount:     st.tickCount,
			ErrorCount:    st.errorCount,
			RecoveryCount: st.recoveryCount,
			LastSeen:      st.lastSeen,
			ActiveSymbols: len(st.activeSymbols),
			LatencyP50Ms:  p50,
			LatencyP99Ms:  p99,
		}
		result.TotalCount += st.tickCount
		st.mu.Unlock()
	}

	return result
}

// PerformanceMetrics is the per-exchange latency/throughput summary
// returned by PerformanceMetrics (spec §4.6).
type PerformanceMetrics struct {
	AvgMs              float64
	MinMs              float64
	MaxMs              float64
	P50Ms              float64
	P99Ms              float64
	// AvgLatencyTrendPercent is the percent change of AvgMs against the
	// previous PerformanceMetrics call for this exchange, clamped to
	// +/-1000% so one outlier sample window cannot blow up a dashboard.
	AvgLatencyTrendPercent float64
	TotalProcessed         int64
	ErrorCount             int64
	RecoveryCount          int64
}

// PerformanceMetrics computes latency statistics over each exchange's
// current bounded sample window (spec §4.6).
func (m *Manager) PerformanceMetrics() map[string]PerformanceMetrics {
	m.mu.Lock()
	names := make([]string, len(m.knownEx))
	copy(names, m.knownEx)
	m.mu.Unlock()

	result := make(map[string]PerformanceMetrics, len(names))
	for _, name := range names {
		st := m.statsFor(name)
		st.mu.Lock()
		samples := st.latencies.Values()
		tickCount := st.tickCount
		errCount := st.errorCount
		recCount := st.recoveryCount
		st.mu.Unlock()

		ms := make([]float64, len(samples))
		for i, d := range samples {
			ms[i] = float64(d) / float64(time.Millisecond)
		}

		var avg, mn, mx float64
		if len(ms) > 0 {
			avg, _ = stats.Mean(ms)
			mn, _ = stats.Min(ms)
			mx, _ = stats.Max(ms)
		}
		p50, p99 := percentiles(samples)

		st.mu.Lock()
		trend := mathutils.Clamp(mathutils.PercDiff(avg, st.prevAvgMs, 2), -1000, 1000)
		st.prevAvgMs = avg
		st.mu.Unlock()

		result[name] = PerformanceMetrics{
			AvgMs:                  mathutils.Round(avg, 2),
			MinMs:                  mathutils.Round(mn, 2),
			MaxMs:                  mathutils.Round(mx, 2),
			P50Ms:                  mathutils.Round(p50, 2),
			P99Ms:                  mathutils.Round(p99, 2),
			AvgLatencyTrendPercent: trend,
			TotalProcessed:         tickCount,
			ErrorCount:             errCount,
			RecoveryCount:          recCount,
		}
	}
	return result
}

func percentiles(samples []time.Duration) (p50, p99 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	ms := make([]float64, len(samples))
	for i, d := range samples {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	p50, err50 := stats.Percentile(ms, 50)
	p99v, err99 := stats.Percentile(ms, 99)
	if err50 != nil {
		p50 = 0
	}
	if err99 != nil {
		p99v = 0
	}
	return p50, p99v
}
