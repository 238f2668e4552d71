package bootstrap

import (
	"context"
	"fmt"

	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/ayankousky/ticker-collector/internal/infrastructure/telemetry"
	"github.com/ayankousky/ticker-collector/internal/supervisor"
	"github.com/ayankousky/ticker-collector/internal/tickermanager"
	"go.uber.org/zap"
)

// App represents the bootstrapped application: a Supervisor and its
// dependencies, ready to Start.
type App struct {
	logger     *zap.Logger
	supervisor *supervisor.Supervisor
	manager    *tickermanager.Manager
	telemetry  telemetry.Provider
	options    *Options
}

// Start starts the Supervisor (spec §4.8).
func (a *App) Start(ctx context.Context) error {
	if err := a.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	return nil
}

// Stop stops the Supervisor.
func (a *App) Stop(ctx context.Context) error {
	return a.supervisor.Stop(ctx)
}

// Health returns the Supervisor's aggregate health snapshot.
func (a *App) Health() supervisor.Health {
	return a.supervisor.Health()
}

// ProcessTicker feeds a single ad hoc symbol into the Supervisor.
func (a *App) ProcessTicker(ctx context.Context, sd domain.SymbolDescriptor) error {
	return a.supervisor.ProcessTicker(ctx, sd)
}

// TriggerRefresh forces one Symbol Refresh Loop iteration on demand.
func (a *App) TriggerRefresh(ctx context.Context) error {
	return a.supervisor.TriggerRefresh(ctx)
}

// Logger exposes the built logger for the CLI entrypoint.
func (a *App) Logger() *zap.Logger {
	return a.logger
}
