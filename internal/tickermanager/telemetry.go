package tickermanager

// Telemetry constants for counters.
const (
	// telemetryTicksProcessed counts successful on_tick calls per exchange.
	telemetryTicksProcessed = "tickermanager.ticks.processed"

	// telemetryTicksRejected counts on_tick calls dropped by validation.
	telemetryTicksRejected = "tickermanager.ticks.rejected"

	// telemetryCacheErrors counts Cache Writer failures surfaced to callers.
	telemetryCacheErrors = "tickermanager.cache.errors"

	// telemetryCacheRecoveries counts on_tick_with_retry calls that
	// succeeded only after at least one retry.
	telemetryCacheRecoveries = "tickermanager.cache.recoveries"
)

// Telemetry constants for timings.
const (
	// telemetryProcessingLatency records the put-through-cache latency of
	// a single tick.
	telemetryProcessingLatency = "tickermanager.tick.latency"
)

// Telemetry constants for spans.
const (
	telemetrySpanOnTick      = "tickermanager.on_tick"
	telemetrySpanOnTickBatch = "tickermanager.on_tick_batch"
)
