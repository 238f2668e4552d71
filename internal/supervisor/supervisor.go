// Package supervisor implements the Supervisor/Daemon (spec §4.8): the
// top-level orchestrator that loads configuration, spawns one Exchange
// Handler per configured exchange, runs the Symbol Refresh Loop, and
// restarts handlers that land in Error.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayankousky/ticker-collector/internal/credentials"
	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/ayankousky/ticker-collector/internal/handler"
	"github.com/ayankousky/ticker-collector/internal/infrastructure/telemetry"
	"github.com/ayankousky/ticker-collector/internal/refresh"
	"github.com/ayankousky/ticker-collector/internal/tickermanager"
	"github.com/ayankousky/ticker-collector/internal/wsclient"
	"go.uber.org/zap"
)

// supervisorLoopInterval is how often the supervisor loop checks for
// handlers in Error state (spec §4.8.1).
const supervisorLoopInterval = 10 * time.Second

// ConfigSource is the subset of the configuration store the Supervisor
// depends on.
type ConfigSource interface {
	refresh.ConfigSource
	GetUserID(ctx context.Context, email string) (string, bool, error)
	GetUserExchanges(ctx context.Context, uid string) ([]domain.UserExchange, error)
	GetExchangeConfig(ctx context.Context, exchangeID string) (domain.ExchangeConfig, error)
}

// HealthStore is the subset of the Health Reporter the Supervisor
// depends on for the daemon-level health entry.
type HealthStore interface {
	RegisterProcess(ctx context.Context, health domain.ProcessHealth) error
	UpdateProcess(ctx context.Context, health domain.ProcessHealth) (bool, error)
	DeleteByComponent(ctx context.Context, component string) error
}

// WSClientFactory creates a fresh WebSocket client for one exchange
// configuration, e.g. backed by internal/wsclient/genericws.
type WSClientFactory func(cfg domain.ExchangeConfig) wsclient.Client

// DaemonComponent names the daemon-level health entry (spec §4.5).
const DaemonComponent = "daemon"

// HandlerHealth is a snapshot of one running handler, returned by Health.
type HandlerHealth struct {
	ExchangeName   string
	Connected      bool
	LastEventTime  *time.Time
	ReconnectCount int
	State          string
}

// Health is the Supervisor's aggregate status (spec §4.8).
type Health struct {
	Status   domain.ProcessStatus
	Handlers []HandlerHealth
	Stats    tickermanager.Stats
}

// Supervisor is the top-level daemon orchestrator.
type Supervisor struct {
	config       ConfigSource
	credResolver credentials.Resolver
	wsFactory    WSClientFactory
	manager      *tickermanager.Manager
	health       HealthStore
	logger       *zap.Logger
	tel          telemetry.Provider
	adminEmail   string
	refreshEvery time.Duration

	// startMu serializes start/stop/restart so concurrent invocations are
	// safe (spec §5).
	startMu sync.Mutex

	mu       sync.Mutex
	status   domain.ProcessStatus
	handlers map[string]*handler.Handler
	cfgs     map[string]domain.ExchangeConfig

	refreshLoop *refresh.Loop

	supervisorCancel context.CancelFunc
	supervisorDone   chan struct{}
}

// New creates a Supervisor. adminEmail and refreshEvery correspond to
// the ADMIN_MAIL and TICKER_SYMBOL_REFRESH_INTERVAL environment
// variables (spec §6).
func New(
	config ConfigSource,
	credResolver credentials.Resolver,
	wsFactory WSClientFactory,
	manager *tickermanager.Manager,
	health HealthStore,
	logger *zap.Logger,
	tel telemetry.Provider,
	adminEmail string,
	refreshEvery time.Duration,
) *Supervisor {
	if adminEmail == "" {
		adminEmail = "admin@fullon"
	}
	return &Supervisor{
		config:       config,
		credResolver: credResolver,
		wsFactory:    wsFactory,
		manager:      manager,
		health:       health,
		logger:       logger,
		tel:          tel,
		adminEmail:   adminEmail,
		refreshEvery: refreshEvery,
		status:       domain.StatusStopped,
		handlers:     make(map[string]*handler.Handler),
		cfgs:         make(map[string]domain.ExchangeConfig),
	}
}

func (s *Supervisor) setStatus(status domain.ProcessStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Status returns the daemon's current lifecycle status.
func (s *Supervisor) Status() domain.ProcessStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsRunning reports whether the daemon is in the Running state.
func (s *Supervisor) IsRunning() bool {
	return s.Status() == domain.StatusRunning
}

// Start implements spec §4.8's start() sequence.
func (s *Supervisor) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.IsRunning() {
		return nil
	}
	s.setStatus(domain.StatusStarting)

	uid, ok, err := s.config.GetUserID(ctx, s.adminEmail)
	if err != nil || !ok {
		s.setStatus(domain.StatusError)
		if err != nil {
			return fmt.Errorf("resolving admin identity: %w", err)
		}
		return fmt.Errorf("resolving admin identity: no user for %q", s.adminEmail)
	}

	userExchanges, err := s.config.GetUserExchanges(ctx, uid)
	if err != nil {
		s.setStatus(domain.StatusError)
		return fmt.Errorf("loading configured exchanges: %w", err)
	}

	s.config.Invalidate()
	allSymbols, err := s.config.GetSymbols(ctx)
	if err != nil {
		s.setStatus(domain.StatusError)
		return fmt.Errorf("bulk-loading symbols: %w", err)
	}

	started := 0
	for _, ue := range userExchanges {
		symbols := symbolsFor(allSymbols, ue.ExchangeID)
		if len(symbols) == 0 {
			continue
		}

		cfg, err := s.config.GetExchangeConfig(ctx, ue.ExchangeID)
		if err != nil {
			s.logger.Warn("skipping exchange, could not load its configuration", zap.String("exchange_id", ue.ExchangeID), zap.Error(err))
			continue
		}

		h := s.newHandlerLocked(cfg)
		if err := h.Start(ctx, symbols); err != nil {
			s.logger.Warn("exchange handler failed to start", zap.String("exchange", cfg.Name), zap.Error(err))
			continue
		}
		started++
	}

	if started == 0 {
		s.setStatus(domain.StatusError)
		return domain.ErrNoExchangesConfigured
	}

	if err := s.health.RegisterProcess(ctx, domain.ProcessHealth{
		Component: DaemonComponent,
		Type:      "daemon",
		Status:    domain.StatusRunning,
		Message:   fmt.Sprintf("started with %d exchange(s)", started),
	}); err != nil {
		s.logger.Warn("failed to register daemon health entry", zap.Error(err))
	}

	s.startBackgroundLoops(ctx)
	s.setStatus(domain.StatusRunning)
	return nil
}

// newHandlerLocked constructs, registers, and returns a new handler for
// cfg, wired to deliver ticks into the Ticker Manager.
func (s *Supervisor) newHandlerLocked(cfg domain.ExchangeConfig) *handler.Handler {
	ws := s.wsFactory(cfg)
	h := handler.New(cfg.Name, ws, cfg, s.credResolver, s.health, s.logger, s.tel)
	h.SetCallback(func(tick domain.Tick) {
		if err := s.manager.OnTick(context.Background(), cfg.Name, tick); err != nil {
			s.logger.Warn("ticker manager rejected tick", zap.String("exchange", cfg.Name), zap.Error(err))
		}
	})

	s.mu.Lock()
	s.handlers[cfg.ExchangeID] = h
	s.cfgs[cfg.ExchangeID] = cfg
	s.mu.Unlock()

	return h
}

func symbolsFor(all []domain.SymbolDescriptor, exchangeID string) []string {
	out := make([]string, 0)
	for _, sd := range all {
		if sd.ExchangeID == exchangeID {
			out = append(out, sd.Symbol)
		}
	}
	return out
}

func (s *Supervisor) startBackgroundLoops(ctx context.Context) {
	s.refreshLoop = refresh.New(s.config, s.handlerSnapshot, s.logger, s.refreshEvery)
	s.refreshLoop.Start(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	s.supervisorCancel = cancel
	s.supervisorDone = make(chan struct{})
	go s.runSupervisorLoop(loopCtx)
}

// handlerSnapshot adapts the Supervisor's handler map to
// refresh.HandlerSource.
func (s *Supervisor) handlerSnapshot() map[string]refresh.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]refresh.Handler, len(s.handlers))
	for id, h := range s.handlers {
		out[id] = h
	}
	return out
}

// Stop implements spec §4.8's stop() sequence.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.Status() == domain.StatusStopped {
		return nil
	}
	s.setStatus(domain.StatusStopping)

	if s.refreshLoop != nil {
		s.refreshLoop.Stop()
	}
	if s.supervisorCancel != nil {
		s.supervisorCancel()
		<-s.supervisorDone
	}

	s.mu.Lock()
	handlers := make([]*handler.Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.handlers = make(map[string]*handler.Handler)
	s.cfgs = make(map[string]domain.ExchangeConfig)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h *handler.Handler) {
			defer wg.Done()
			if err := h.Stop(); err != nil {
				s.logger.Warn("handler stop failed", zap.String("exchange", h.ExchangeName()), zap.Error(err))
			}
		}(h)
	}
	wg.Wait()

	if err := s.health.DeleteByComponent(ctx, DaemonComponent); err != nil {
		s.logger.Warn("failed to deregister daemon health entry", zap.Error(err))
	}

	s.setStatus(domain.StatusStopped)
	return nil
}

// TriggerRefresh forces one Symbol Refresh Loop iteration on demand
// (spec §3's "refresh-symbols" CLI subcommand), independent of the
// loop's own timer. It is a no-op if the daemon has no running
// handlers to reconcile.
func (s *Supervisor) TriggerRefresh(ctx context.Context) error {
	s.config.Invalidate()

	all, err := s.config.GetSymbols(ctx)
	if err != nil {
		return fmt.Errorf("loading symbols: %w", err)
	}

	byExchange := make(map[string][]string)
	for _, sd := range all {
		byExchange[sd.ExchangeID] = append(byExchange[sd.ExchangeID], sd.Symbol)
	}

	for exchangeID, h := range s.handlerSnapshot() {
		symbols, configured := byExchange[exchangeID]
		if !configured {
			continue
		}
		desired := make(map[string]struct{}, len(symbols))
		for _, symbol := range symbols {
			desired[symbol] = struct{}{}
		}
		h.UpdateSymbols(ctx, desired)
	}

	return nil
}

// Restart stops then starts the daemon with a brief pause between.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return s.Start(ctx)
}

// Health aggregates daemon status, per-handler status, and Ticker
// Manager stats (spec §4.8).
func (s *Supervisor) Health() Health {
	s.mu.Lock()
	handlers := make([]*handler.Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	result := Health{Status: s.Status(), Stats: s.manager.Stats()}
	for _, h := range handlers {
		lastEvent, ok := h.LastEventTime()
		hh := HandlerHealth{
			ExchangeName:   h.ExchangeName(),
			Connected:      h.Status() == handler.Connected,
			ReconnectCount: h.ReconnectCount(),
			State:          h.Status().String(),
		}
		if ok {
			hh.LastEventTime = &lastEvent
		}
		result.Handlers = append(result.Handlers, hh)
	}
	return result
}

// ProcessTicker implements spec §4.8's process_ticker convenience
// entry point for single-symbol workflows.
func (s *Supervisor) ProcessTicker(ctx context.Context, sd domain.SymbolDescriptor) error {
	status := s.Status()

	if status == domain.StatusRunning {
		s.mu.Lock()
		h, exists := s.handlers[sd.ExchangeID]
		cfg, cfgExists := s.cfgs[sd.ExchangeID]
		s.mu.Unlock()

		if !exists {
			if !cfgExists {
				resolved, err := s.config.GetExchangeConfig(ctx, sd.ExchangeID)
				if err != nil {
					return fmt.Errorf("loading exchange configuration for %s: %w", sd.ExchangeID, err)
				}
				cfg = resolved
			}
			h = s.newHandlerLocked(cfg)
			return h.Start(ctx, []string{sd.Symbol})
		}

		desired := h.ActiveSymbols()
		desired[sd.Symbol] = struct{}{}
		h.UpdateSymbols(ctx, desired)
		return nil
	}

	if status == domain.StatusStopped {
		cfg, err := s.config.GetExchangeConfig(ctx, sd.ExchangeID)
		if err != nil {
			return fmt.Errorf("loading exchange configuration for %s: %w", sd.ExchangeID, err)
		}
		h := s.newHandlerLocked(cfg)
		s.setStatus(domain.StatusRunning)
		return h.Start(ctx, []string{sd.Symbol})
	}

	return domain.ErrInconsistentState
}
