// Package refresh implements the Symbol Refresh Loop (spec §4.7): a
// periodic task that reconciles each running Exchange Handler's active
// subscription set against the configuration store.
package refresh

import (
	"context"
	"time"

	"github.com/ayankousky/ticker-collector/internal/domain"
	"go.uber.org/zap"
)

// DefaultInterval is the default period between refresh iterations
// (spec §4.7, TICKER_SYMBOL_REFRESH_INTERVAL).
const DefaultInterval = 300 * time.Second

// InitialDelay is how long the loop waits after Start before its first
// iteration (spec §4.7).
const InitialDelay = 10 * time.Second

// ConfigSource is the subset of the configuration store the refresh
// loop depends on.
type ConfigSource interface {
	Invalidate()
	GetSymbols(ctx context.Context) ([]domain.SymbolDescriptor, error)
}

// Handler is the subset of an Exchange Handler the refresh loop
// reconciles against.
type Handler interface {
	ExchangeName() string
	ActiveSymbols() map[string]struct{}
	UpdateSymbols(ctx context.Context, desired map[string]struct{})
}

// HandlerSource returns the currently running handlers, keyed by
// exchange id, at the moment a refresh iteration starts.
type HandlerSource func() map[string]Handler

// Loop is the Symbol Refresh Loop.
type Loop struct {
	config   ConfigSource
	handlers HandlerSource
	logger   *zap.Logger
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Loop with the given refresh interval. A non-positive
// interval falls back to DefaultInterval.
func New(config ConfigSource, handlers HandlerSource, logger *zap.Logger, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{config: config, handlers: handlers, logger: logger, interval: interval}
}

// Start launches the loop in a goroutine. It is a no-op if already running.
func (l *Loop) Start(ctx context.Context) {
	if l.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(loopCtx)
}

// Stop cancels the loop and waits for its current iteration to finish.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	select {
	case <-ctx.Done():
		return
	case <-time.After(InitialDelay):
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.runIteration(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.runIteration(ctx)
		}
	}
}

// runIteration performs one refresh pass. Per spec §4.7, an error
// reconciling one exchange never aborts the others, and the loop
// itself never terminates the daemon.
func (l *Loop) runIteration(ctx context.Context) {
	l.config.Invalidate()

	all, err := l.config.GetSymbols(ctx)
	if err != nil {
		l.logger.Warn("refresh: could not load configuration, skipping this cycle", zap.Error(err))
		return
	}

	byExchange := make(map[string][]string)
	for _, sd := range all {
		byExchange[sd.ExchangeID] = append(byExchange[sd.ExchangeID], sd.Symbol)
	}

	running := l.handlers()
	for exchangeID, handler := range running {
		desiredSymbols, configured := byExchange[exchangeID]
		if !configured {
			continue
		}
		desired := make(map[string]struct{}, len(desiredSymbols))
		for _, symbol := range desiredSymbols {
			desired[symbol] = struct{}{}
		}

		current := handler.ActiveSymbols()
		added, removed := diff(current, desired)
		if added > 0 || removed > 0 {
			l.logger.Info("refresh: reconciling symbols",
				zap.String("exchange", handler.ExchangeName()),
				zap.Int("added", added),
				zap.Int("removed", removed))
		}

		handler.UpdateSymbols(ctx, desired)
	}

	for exchangeID := range byExchange {
		if _, running := running[exchangeID]; !running {
			l.logger.Info("refresh: new exchange in configuration is not auto-spawned", zap.String("exchange_id", exchangeID))
		}
	}
}

func diff(current, desired map[string]struct{}) (added, removed int) {
	for s := range desired {
		if _, ok := current[s]; !ok {
			added++
		}
	}
	for s := range current {
		if _, ok := desired[s]; !ok {
			removed++
		}
	}
	return added, removed
}
