package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayankousky/ticker-collector/internal/cache"
	"github.com/ayankousky/ticker-collector/internal/configstore"
	"github.com/ayankousky/ticker-collector/internal/credentials"
	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/ayankousky/ticker-collector/internal/infrastructure"
	"github.com/ayankousky/ticker-collector/internal/infrastructure/telemetry"
	"github.com/ayankousky/ticker-collector/internal/supervisor"
	"github.com/ayankousky/ticker-collector/internal/tickermanager"
	"github.com/ayankousky/ticker-collector/internal/wsclient"
	"github.com/ayankousky/ticker-collector/internal/wsclient/genericws"
)

// Builder builds the App instance.
type Builder struct {
	app *App
	err error

	cacheWriter  *cache.Writer
	healthReport *cache.HealthReporter
	configStore  *configstore.Store
}

// NewBuilder creates a new Builder instance with sane zero-config
// defaults (development logger, noop telemetry), then parses
// environment/CLI options.
func NewBuilder() *Builder {
	app := &App{}

	app.logger, _ = infrastructure.NewLogger("development", "ticker-collector")
	app.telemetry = &telemetry.NoopProvider{}

	builder := &Builder{app: app}
	builder.fetchOptions()
	return builder
}

// fetchOptions automatically fetches options from env/flags.
func (b *Builder) fetchOptions() *Builder {
	if b.err != nil {
		return b
	}

	opts, err := ParseOptions()
	if err != nil {
		b.err = fmt.Errorf("parsing options: %w", err)
		return b
	}

	b.app.options = opts
	return b
}

// WithLogger replaces the default development logger with one built
// from the parsed Env/ServiceName options.
func (b *Builder) WithLogger(_ context.Context) *Builder {
	if b.err != nil {
		return b
	}

	logger, err := infrastructure.NewLogger(b.app.options.Env, b.app.options.ServiceName)
	if err != nil {
		b.err = fmt.Errorf("creating logger: %w", err)
		return b
	}

	b.app.logger = logger
	return b
}

// WithTelemetry initializes the Datadog telemetry provider when enabled,
// otherwise leaves the default NoopProvider in place.
func (b *Builder) WithTelemetry(ctx context.Context, revision string) *Builder {
	if b.err != nil {
		return b
	}

	if !b.app.options.Telemetry.Datadog.Enabled {
		return b
	}

	datadogConfig := &telemetry.DatadogConfig{
		AgentHost:       b.app.options.Telemetry.Datadog.AgentHost,
		AgentPort:       b.app.options.Telemetry.Datadog.AgentPort,
		ServiceName:     b.app.options.ServiceName,
		ServiceEnv:      b.app.options.Env,
		EnableTracing:   b.app.options.Telemetry.Datadog.EnabledTracing,
		EnableMetrics:   b.app.options.Telemetry.Datadog.EnabledMetrics,
		EnableProfiling: b.app.options.Telemetry.Datadog.EnabledProfiling,
		Tags:            []string{fmt.Sprintf("revision:%s", revision)},
	}

	provider := telemetry.NewDatadogProvider(datadogConfig)
	if err := provider.Initialize(ctx); err != nil {
		b.err = fmt.Errorf("initializing telemetry provider: %w", err)
		return b
	}
	b.app.telemetry = provider
	return b
}

// WithConfigStore opens the sqlite-backed configuration store.
func (b *Builder) WithConfigStore(_ context.Context) *Builder {
	if b.err != nil {
		return b
	}

	store, err := configstore.Open(b.app.options.ConfigStore.Sqlite.DSN)
	if err != nil {
		b.err = fmt.Errorf("opening configuration store: %w", err)
		return b
	}
	b.configStore = store
	return b
}

// WithCache connects the Redis-backed Cache Writer.
func (b *Builder) WithCache(ctx context.Context) *Builder {
	if b.err != nil {
		return b
	}

	redisClient, err := infrastructure.NewRedisClient(ctx, b.app.options.Cache.Redis.URL, b.app.options.Cache.Redis.MaxConns)
	if err != nil {
		b.err = fmt.Errorf("creating redis client: %w", err)
		return b
	}
	b.cacheWriter = cache.New(redisClient)
	return b
}

// WithHealth connects the MongoDB-backed Health Reporter.
func (b *Builder) WithHealth(_ context.Context) *Builder {
	if b.err != nil {
		return b
	}

	mongoClient, err := infrastructure.NewMongoClient(b.app.options.Health.Mongo.URL)
	if err != nil {
		b.err = fmt.Errorf("creating mongo client: %w", err)
		return b
	}

	reporter, err := cache.NewHealthReporter(mongoClient, b.app.options.Health.Mongo.Database)
	if err != nil {
		b.err = fmt.Errorf("creating health reporter: %w", err)
		return b
	}
	b.healthReport = reporter
	return b
}

// parseWSUrls parses the Exchange.WSUrls option into exchange_id ->
// websocket URL, since exchanges are enumerated dynamically from the
// configuration store rather than being static named option groups.
func parseWSUrls(raw string) map[string]string {
	urls := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		urls[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return urls
}

// WithSupervisor assembles the Ticker Manager and Supervisor from every
// previously built dependency. Must run after WithConfigStore, WithCache,
// and WithHealth.
func (b *Builder) WithSupervisor(_ context.Context) *Builder {
	if b.err != nil {
		return b
	}
	if b.configStore == nil || b.cacheWriter == nil || b.healthReport == nil {
		b.err = fmt.Errorf("supervisor requires config store, cache, and health to be built first")
		return b
	}

	manager := tickermanager.New(b.cacheWriter, b.healthReport, b.app.logger, b.app.telemetry)
	credResolver := credentials.NewEnvResolver(b.app.options.Credentials.EnvPrefix)
	wsURLs := parseWSUrls(b.app.options.Exchange.WSUrls)

	wsFactory := func(cfg domain.ExchangeConfig) wsclient.Client {
		return genericws.New(genericws.Config{
			Name:  cfg.Name,
			WSUrl: wsURLs[cfg.ExchangeID],
		})
	}

	b.app.supervisor = supervisor.New(
		b.configStore,
		credResolver,
		wsFactory,
		manager,
		b.healthReport,
		b.app.logger,
		b.app.telemetry,
		b.app.options.AdminMail,
		secondsToDuration(b.app.options.Ticker.SymbolRefreshInterval),
	)
	b.app.manager = manager
	return b
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// Build returns the built App instance.
func (b *Builder) Build() (*App, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.app.supervisor == nil {
		return nil, fmt.Errorf("missing required dependencies: supervisor was never built")
	}
	return b.app, nil
}
