// Command collector is the Ticker Collection Engine's process
// entrypoint: it wires the Supervisor and its dependencies from
// environment/CLI options and runs until signaled to stop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayankousky/ticker-collector/internal/bootstrap"
	"github.com/joho/godotenv"
)

// shutdownGrace bounds how long Stop is given to drain handlers and
// deregister the daemon's health entry before the process exits anyway.
const shutdownGrace = 10 * time.Second

func main() {
	// Best-effort local dev convenience; a missing .env is not an error.
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"start"}
	}

	app, err := bootstrap.NewBuilder().
		WithLogger(context.Background()).
		WithTelemetry(context.Background(), "dev").
		WithConfigStore(context.Background()).
		WithCache(context.Background()).
		WithHealth(context.Background()).
		WithSupervisor(context.Background()).
		Build()
	if err != nil {
		return fmt.Errorf("bootstrapping collector: %w", err)
	}

	switch args[0] {
	case "start":
		return runStart(app)
	case "health":
		return runHealth(app)
	case "refresh-symbols":
		return runRefreshSymbols(app)
	default:
		return fmt.Errorf("unknown subcommand %q (expected start|health|refresh-symbols)", args[0])
	}
}

func runStart(app *bootstrap.App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	app.Logger().Info("collector started")

	<-ctx.Done()
	app.Logger().Info("shutdown signal received, stopping")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping collector: %w", err)
	}
	return nil
}

func runHealth(app *bootstrap.App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()

	health := app.Health()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(health)
}

func runRefreshSymbols(app *bootstrap.App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()

	if err := app.TriggerRefresh(ctx); err != nil {
		return fmt.Errorf("triggering refresh: %w", err)
	}
	app.Logger().Info("symbol refresh triggered")
	return nil
}
