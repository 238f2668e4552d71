// Package handler implements the Exchange Handler (spec §4.2): it owns
// one live WebSocket connection to one exchange, owns the set of active
// symbol subscriptions on it, and emits normalized ticks to a delivery
// callback.
package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayankousky/ticker-collector/internal/credentials"
	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/ayankousky/ticker-collector/internal/infrastructure/telemetry"
	"github.com/ayankousky/ticker-collector/internal/wsclient"
	"go.uber.org/zap"
)

// MaxReconnectAttempts bounds consecutive reconnect attempts for a
// single disconnection before the handler gives up and transitions to
// Error (spec §4.2.2).
const MaxReconnectAttempts = 10

// TickCallback receives one normalized tick from the handler's delivery
// path.
type TickCallback func(domain.Tick)

// HealthWriter is the subset of the Health Reporter the Exchange
// Handler depends on to create and delete per-subscription health
// entries as it subscribes and unsubscribes (spec §4.5). May be nil, in
// which case per-subscription health tracking is skipped entirely.
type HealthWriter interface {
	RegisterProcess(ctx context.Context, health domain.ProcessHealth) error
	DeleteByComponent(ctx context.Context, component string) error
}

// subscriptionComponent names the per-subscription health entry for
// (exchange, symbol), matching the key tickermanager.Manager uses when
// it later updates the same entry to Running on first tick (spec §4.5).
func subscriptionComponent(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// Handler owns a single exchange's WebSocket connection and active
// symbol subscriptions.
type Handler struct {
	exchangeName string
	ws           wsclient.Client
	exchangeCfg  domain.ExchangeConfig
	credResolver credentials.Resolver
	health       HealthWriter
	logger       *zap.Logger
	telemetry    telemetry.Provider

	// mu serializes start/stop/update_symbols and all state mutation, per
	// spec §5. Event delivery only takes it briefly, to update
	// lastEventTime and read the callback/state.
	mu             sync.Mutex
	state          ConnectionState
	registry       *subscriptionRegistry
	desired        map[string]struct{}
	callback       TickCallback
	reconnectCount int
	lastEventTime  *time.Time

	// reconnectCancel, when non-nil, cancels the in-flight backoff sleep
	// so that stop() can return promptly (spec §5).
	reconnectCancel context.CancelFunc
	reconnectDone   chan struct{}
}

// New creates a Handler for one exchange. It does not connect until
// Start is called. health may be nil to skip per-subscription health
// tracking entirely.
func New(exchangeName string, ws wsclient.Client, exchangeCfg domain.ExchangeConfig, credResolver credentials.Resolver, health HealthWriter, logger *zap.Logger, tel telemetry.Provider) *Handler {
	return &Handler{
		exchangeName: exchangeName,
		ws:           ws,
		exchangeCfg:  exchangeCfg,
		credResolver: credResolver,
		health:       health,
		logger:       logger.With(zap.String("exchange", exchangeName)),
		telemetry:    tel,
		state:        Disconnected,
		registry:     newSubscriptionRegistry(),
		desired:      make(map[string]struct{}),
	}
}

// SetCallback installs the per-tick delivery callback. Must be called
// before Start for ticks to be delivered; re-installing mid-run takes
// effect on the next event (spec §4.2).
func (h *Handler) SetCallback(cb TickCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callback = cb
}

// Status returns the handler's current connection state.
func (h *Handler) Status() ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ReconnectCount returns the number of reconnect attempts made for the
// current disconnection (reset to zero on a successful reconnect).
func (h *Handler) ReconnectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reconnectCount
}

// LastEventTime returns the time of the last successfully delivered
// event, if any has arrived yet.
func (h *Handler) LastEventTime() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastEventTime == nil {
		return time.Time{}, false
	}
	return *h.lastEventTime, true
}

// ActiveSymbols returns a snapshot of the handler's active subscription set.
func (h *Handler) ActiveSymbols() map[string]struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.snapshot()
}

// DesiredSymbols returns a snapshot of the handler's intended symbol
// set, which may be ahead of ActiveSymbols when subscriptions are still
// pending or the handler never finished connecting (e.g. it reached
// Error from its initial Start call, before any subscription existed).
func (h *Handler) DesiredSymbols() map[string]struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copySet(h.desired)
}

// ExchangeName returns the exchange this handler owns.
func (h *Handler) ExchangeName() string {
	return h.exchangeName
}

// Start transitions Disconnected->Connecting->Connected, resolving
// credentials, connecting, and subscribing to every symbol in initial.
// It is idempotent: calling Start while already Connected is a no-op
// (spec §4.2).
func (h *Handler) Start(ctx context.Context, initial []string) error {
	h.mu.Lock()
	if h.state == Connected {
		h.mu.Unlock()
		return nil
	}
	h.state = Connecting
	// Subscribe in the order given by initial, then any symbol that was
	// already desired before this call.
	desired := make([]string, 0, len(initial)+len(h.desired))
	seen := make(map[string]struct{}, len(initial))
	for _, s := range initial {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		desired = append(desired, s)
	}
	for s := range h.desired {
		if _, ok := seen[s]; !ok {
			desired = append(desired, s)
		}
	}
	for _, s := range initial {
		h.desired[s] = struct{}{}
	}
	h.mu.Unlock()

	span, ctx := h.telemetry.StartSpan(ctx, telemetrySpanStart)
	defer span.Finish()

	if err := h.connectAndSubscribeAll(ctx, desired); err != nil {
		span.SetTag("error", true)
		h.mu.Lock()
		h.state = Error
		h.reconnectCount++
		h.mu.Unlock()
		h.telemetry.IncrementCounter(telemetryReconnects, 1)
		h.logger.Error("start failed, scheduling reconnect", zap.Error(err))
		h.scheduleReconnect()
		return fmt.Errorf("start: %w", err)
	}

	h.mu.Lock()
	h.state = Connected
	h.mu.Unlock()
	return nil
}

// connectAndSubscribeAll performs the all-or-nothing connect+subscribe
// sequence used by Start and by each reconnect attempt: any subscribe
// failure aborts the sequence, cleans up partial subscriptions, and
// disconnects (spec §4.2).
func (h *Handler) connectAndSubscribeAll(ctx context.Context, symbols []string) error {
	if _, err := h.credResolver.Resolve(h.exchangeCfg); err != nil {
		return &domain.ConnectFailedError{Exchange: h.exchangeName, Err: fmt.Errorf("resolving credentials: %w", err)}
	}

	h.ws.SetConnectionStatusCallback(h.onConnectionStatus)

	if err := h.ws.Connect(ctx); err != nil {
		return &domain.ConnectFailedError{Exchange: h.exchangeName, Err: err}
	}

	subscribed := make(map[string]wsclient.Handle, len(symbols))
	for _, symbol := range symbols {
		handle, err := h.ws.SubscribeTicker(ctx, symbol, h.makeEventCallback(symbol))
		if err != nil {
			for s, hd := range subscribed {
				if unsubErr := h.ws.Unsubscribe(hd); unsubErr != nil {
					h.logger.Warn("cleanup unsubscribe failed", zap.String("symbol", s), zap.Error(unsubErr))
				}
				h.deleteSubscriptionHealth(ctx, s)
			}
			if discErr := h.ws.Disconnect(); discErr != nil {
				h.logger.Warn("cleanup disconnect failed", zap.Error(discErr))
			}
			return &domain.SubscribeFailedError{Symbol: symbol, Err: err}
		}
		subscribed[symbol] = handle
		h.registerSubscriptionHealth(ctx, symbol)
	}

	h.mu.Lock()
	h.registry = newSubscriptionRegistry()
	for symbol, hd := range subscribed {
		h.registry.add(symbol, hd)
	}
	h.mu.Unlock()
	h.telemetry.Gauge(telemetryActiveSubscriptions, float64(len(subscribed)))

	return nil
}

// Stop transitions the current state to Disconnected, best-effort
// unsubscribing every active handle before disconnecting. After Stop
// the handler may be started again (spec §4.2).
func (h *Handler) Stop() error {
	h.mu.Lock()
	if h.state == Disconnected {
		h.mu.Unlock()
		return nil
	}
	cancel := h.reconnectCancel
	done := h.reconnectDone
	symbols := h.registry.snapshot()
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	h.mu.Lock()
	for symbol := range symbols {
		handle, ok := h.registry.remove(symbol)
		if !ok {
			continue
		}
		h.mu.Unlock()
		if err := h.ws.Unsubscribe(handle); err != nil {
			h.logger.Warn("unsubscribe during stop failed", zap.String("symbol", symbol), zap.Error(err))
			h.telemetry.IncrementCounter(telemetryUnsubscribeErrors, 1)
		}
		h.deleteSubscriptionHealth(context.Background(), symbol)
		h.mu.Lock()
	}
	h.mu.Unlock()

	if err := h.ws.Disconnect(); err != nil {
		h.logger.Warn("disconnect during stop failed", zap.Error(err))
	}

	h.mu.Lock()
	h.state = Disconnected
	h.desired = make(map[string]struct{})
	h.mu.Unlock()

	return nil
}

// UpdateSymbols reconciles the handler's active subscriptions to match
// desired, issuing subscribe/unsubscribe calls for the diff. Partial
// failures do not abort the operation (spec §4.2). If the handler is
// Disconnected, only the intended symbol set is updated internally.
func (h *Handler) UpdateSymbols(ctx context.Context, desired map[string]struct{}) {
	h.mu.Lock()
	h.desired = copySet(desired)
	if h.state != Connected {
		h.mu.Unlock()
		return
	}
	current := h.registry.snapshot()
	h.mu.Unlock()

	added, removed := diffSets(current, desired)

	for symbol := range removed {
		h.mu.Lock()
		handle, ok := h.registry.remove(symbol)
		h.mu.Unlock()
		if !ok {
			continue
		}
		if err := h.ws.Unsubscribe(handle); err != nil {
			h.logger.Warn("unsubscribe failed", zap.String("symbol", symbol), zap.Error(err))
			h.telemetry.IncrementCounter(telemetryUnsubscribeErrors, 1)
			// Re-record: unsubscribe did not succeed, so the symbol is
			// still actually subscribed at the client.
			h.mu.Lock()
			h.registry.add(symbol, handle)
			h.mu.Unlock()
			continue
		}
		h.deleteSubscriptionHealth(ctx, symbol)
	}

	for symbol := range added {
		handle, err := h.ws.SubscribeTicker(ctx, symbol, h.makeEventCallback(symbol))
		if err != nil {
			h.logger.Warn("subscribe failed", zap.String("symbol", symbol), zap.Error(err))
			h.telemetry.IncrementCounter(telemetrySubscribeErrors, 1)
			continue
		}
		h.mu.Lock()
		h.registry.add(symbol, handle)
		h.mu.Unlock()
		h.registerSubscriptionHealth(ctx, symbol)
	}

	h.mu.Lock()
	count := h.registry.len()
	h.mu.Unlock()
	h.telemetry.Gauge(telemetryActiveSubscriptions, float64(count))
}

// registerSubscriptionHealth creates the per-subscription health entry
// for symbol, best-effort (spec §4.5: "created on successful
// subscribe"). tickermanager.Manager later transitions it to Running on
// the first delivered tick.
func (h *Handler) registerSubscriptionHealth(ctx context.Context, symbol string) {
	if h.health == nil {
		return
	}
	component := subscriptionComponent(h.exchangeName, symbol)
	if err := h.health.RegisterProcess(ctx, domain.ProcessHealth{
		Component: component,
		Type:      "subscription",
		Status:    domain.StatusStarting,
		Message:   "subscribed",
	}); err != nil {
		h.logger.Warn("registering subscription health failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// deleteSubscriptionHealth removes the per-subscription health entry
// for symbol, best-effort (spec §4.5: "deleted on unsubscribe").
func (h *Handler) deleteSubscriptionHealth(ctx context.Context, symbol string) {
	if h.health == nil {
		return
	}
	component := subscriptionComponent(h.exchangeName, symbol)
	if err := h.health.DeleteByComponent(ctx, component); err != nil {
		h.logger.Warn("deleting subscription health failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (h *Handler) desiredSlice() []string {
	out := make([]string, 0, len(h.desired))
	for s := range h.desired {
		out = append(out, s)
	}
	return out
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func diffSets(current, desired map[string]struct{}) (added, removed map[string]struct{}) {
	added = make(map[string]struct{})
	removed = make(map[string]struct{})
	for s := range desired {
		if _, ok := current[s]; !ok {
			added[s] = struct{}{}
		}
	}
	for s := range current {
		if _, ok := desired[s]; !ok {
			removed[s] = struct{}{}
		}
	}
	return added, removed
}
