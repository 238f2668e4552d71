package handler

// Telemetry constants for counters.
const (
	// telemetryReconnects counts reconnect attempts started for an exchange.
	telemetryReconnects = "handler.reconnects"

	// telemetrySubscribeErrors counts per-symbol subscribe failures.
	telemetrySubscribeErrors = "handler.subscribe.errors"

	// telemetryUnsubscribeErrors counts per-symbol unsubscribe failures.
	telemetryUnsubscribeErrors = "handler.unsubscribe.errors"

	// telemetryMalformedEvents counts events dropped by the normalizer.
	telemetryMalformedEvents = "handler.events.malformed"

	// telemetryCallbackPanics counts recovered panics from the delivery callback.
	telemetryCallbackPanics = "handler.callback.panics"
)

// Telemetry constants for gauges.
const (
	// telemetryActiveSubscriptions tracks the handler's active subscription count.
	telemetryActiveSubscriptions = "handler.subscriptions.active"
)

// Telemetry constants for spans.
const (
	// telemetrySpanStart covers the connect+subscribe sequence of start().
	telemetrySpanStart = "handler.start"

	// telemetrySpanReconnectAttempt covers a single reconnect attempt.
	telemetrySpanReconnectAttempt = "handler.reconnect_attempt"
)
