package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// reconnectBackoff returns the delay before reconnect attempt n
// (1-indexed): min(2^n, 60) seconds (spec §4.2.2).
func reconnectBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := 1 << uint(attempt)
	if seconds > 60 || seconds < 1 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// scheduleReconnect launches the reconnect loop in a goroutine. It is a
// no-op if a reconnect is already in flight.
func (h *Handler) scheduleReconnect() {
	h.mu.Lock()
	if h.reconnectCancel != nil {
		h.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.reconnectCancel = cancel
	h.reconnectDone = done
	h.mu.Unlock()

	go h.reconnectLoop(ctx, done)
}

// reconnectLoop retries connectAndSubscribeAll with increasing backoff
// until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled by stop() (spec §4.2.2).
func (h *Handler) reconnectLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		h.mu.Lock()
		h.reconnectCancel = nil
		h.reconnectDone = nil
		h.mu.Unlock()
	}()

	for {
		h.mu.Lock()
		attempt := h.reconnectCount
		h.mu.Unlock()

		if attempt > MaxReconnectAttempts {
			h.mu.Lock()
			h.state = Error
			h.mu.Unlock()
			h.logger.Error("reconnect attempts exhausted, handing off to supervisor")
			return
		}

		delay := reconnectBackoff(attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		span, spanCtx := h.telemetry.StartSpan(ctx, telemetrySpanReconnectAttempt)

		h.mu.Lock()
		h.state = Reconnecting
		h.reconnectCount++
		symbols := h.desiredSlice()
		h.mu.Unlock()

		err := h.connectAndSubscribeAll(spanCtx, symbols)
		if err != nil {
			span.SetTag("error", true)
			span.Finish()
			h.telemetry.IncrementCounter(telemetryReconnects, 1)
			h.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}

		span.Finish()
		h.mu.Lock()
		h.state = Connected
		h.reconnectCount = 0
		h.mu.Unlock()
		h.logger.Info("reconnected", zap.Int("attempts", attempt+1))
		return
	}
}

// onConnectionStatus is the wsclient.ConnectionStatusCallback installed
// on the underlying client. A failure-caused disconnect (non-nil err)
// while Connected triggers the reconnect loop, counting it as attempt 1;
// a deliberate Disconnect (nil err) is ignored.
func (h *Handler) onConnectionStatus(connected bool, err error) {
	if connected || err == nil {
		return
	}

	h.mu.Lock()
	if h.state != Connected {
		h.mu.Unlock()
		return
	}
	h.state = Reconnecting
	h.reconnectCount++
	h.mu.Unlock()

	h.logger.Warn("connection lost", zap.Error(err))
	h.scheduleReconnect()
}
