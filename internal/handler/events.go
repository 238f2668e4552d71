package handler

import (
	"time"

	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/ayankousky/ticker-collector/internal/normalizer"
	"github.com/ayankousky/ticker-collector/internal/wsclient"
	"go.uber.org/zap"
)

// makeEventCallback returns the wsclient.EventCallback bound to symbol,
// used as the per-subscription delivery path (spec §4.2.3): normalize,
// drop malformed events without affecting connection state, and invoke
// the delivery callback with panic recovery.
func (h *Handler) makeEventCallback(symbol string) wsclient.EventCallback {
	return func(raw map[string]any) {
		h.handleRawEvent(symbol, raw)
	}
}

func (h *Handler) handleRawEvent(symbol string, raw normalizer.RawEvent) {
	tick, err := normalizer.Normalize(raw, h.exchangeName)
	if err != nil {
		h.telemetry.IncrementCounter(telemetryMalformedEvents, 1)
		h.logger.Warn("dropping malformed event", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	h.deliver(tick)
}

func (h *Handler) deliver(tick domain.Tick) {
	h.mu.Lock()
	cb := h.callback
	now := time.Now()
	h.lastEventTime = &now
	h.mu.Unlock()

	if cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			h.telemetry.IncrementCounter(telemetryCallbackPanics, 1)
			h.logger.Error("recovered panic in tick delivery callback", zap.Any("panic", r), zap.String("symbol", tick.Symbol))
		}
	}()

	cb(tick)
}
