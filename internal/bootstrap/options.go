// Package bootstrap wires the daemon's dependencies from CLI flags and
// environment variables, the way the teacher's internal/bootstrap does:
// an Options struct parsed by go-flags, a fluent Builder assembling an
// App around a Supervisor.
package bootstrap

import "github.com/jessevdk/go-flags"

// Options holds all configuration options for the collector daemon.
type Options struct {
	Env         string `long:"env" env:"ENV" description:"Environment (development|production)"`
	ServiceName string `long:"service-name" env:"SERVICE_NAME" default:"ticker-collector" description:"Service name"`

	// AdminMail is the identity the Supervisor resolves at start to
	// enumerate configured exchanges (spec §4.8, §6).
	AdminMail string `long:"admin-mail" env:"ADMIN_MAIL" default:"admin@fullon" description:"Admin identity used to load configured exchanges"`

	Ticker struct {
		SymbolRefreshInterval int `long:"symbol-refresh-interval" env:"SYMBOL_REFRESH_INTERVAL" default:"300" description:"Seconds between Symbol Refresh Loop iterations"`
	} `group:"ticker" namespace:"ticker" env-namespace:"TICKER"`

	Cache struct {
		Redis struct {
			URL      string `long:"url" env:"URL" description:"Redis URL for the Cache Writer"`
			MaxConns int    `long:"max-conns" env:"MAX_CONNS" default:"10" description:"Redis connection pool size"`
		} `group:"redis" namespace:"redis" env-namespace:"REDIS"`
	} `group:"cache" namespace:"cache" env-namespace:"CACHE"`

	Health struct {
		Mongo struct {
			URL      string `long:"url" env:"URL" description:"MongoDB URL for the Health Reporter"`
			Database string `long:"database" env:"DATABASE" default:"ticker_collector" description:"MongoDB database name"`
		} `group:"mongo" namespace:"mongo" env-namespace:"MONGO"`
	} `group:"health" namespace:"health" env-namespace:"HEALTH"`

	ConfigStore struct {
		Sqlite struct {
			DSN string `long:"dsn" env:"DSN" default:"file:ticker-collector-config.db?cache=shared" description:"sqlite DSN for the configuration store"`
		} `group:"sqlite" namespace:"sqlite" env-namespace:"SQLITE"`
	} `group:"config-store" namespace:"config-store" env-namespace:"CONFIG_STORE"`

	Credentials struct {
		EnvPrefix string `long:"env-prefix" env:"ENV_PREFIX" default:"TICKER" description:"Prefix for <PREFIX>_<REF>_API_KEY/_API_SECRET lookups"`
	} `group:"credentials" namespace:"credentials" env-namespace:"CREDENTIALS"`

	Exchange struct {
		// WSUrls is a comma-separated exchange_id=wss://... list. Exchanges
		// are enumerated dynamically from the configuration store rather
		// than as static named fields (unlike the teacher's
		// Binance/Bybit/OKX groups), so their WebSocket endpoints can't be
		// nested go-flags groups and are parsed from this string instead
		// (see Builder.WithSupervisor).
		WSUrls string `long:"ws-urls" env:"WS_URLS" description:"Comma-separated exchange_id=wss://host list"`
	} `group:"exchange" namespace:"exchange" env-namespace:"EXCHANGE"`

	Telemetry struct {
		Datadog struct {
			Enabled          bool   `long:"enabled" env:"ENABLED" description:"Enable Datadog telemetry"`
			AgentHost        string `long:"agent-host" env:"AGENT_HOST" default:"localhost" description:"Datadog agent host"`
			AgentPort        string `long:"agent-port" env:"AGENT_PORT" default:"8126" description:"Datadog agent trace port"`
			EnabledTracing   bool   `long:"enabled-tracing" env:"ENABLED_TRACING" description:"Enable Datadog APM tracing"`
			EnabledMetrics   bool   `long:"enabled-metrics" env:"ENABLED_METRICS" description:"Enable Datadog statsd metrics"`
			EnabledProfiling bool   `long:"enabled-profiling" env:"ENABLED_PROFILING" description:"Enable Datadog continuous profiling"`
		} `group:"datadog" namespace:"datadog" env-namespace:"DATADOG"`
	} `group:"telemetry" namespace:"telemetry" env-namespace:"TELEMETRY"`
}

// ParseOptions parses command line arguments and environment variables.
func ParseOptions() (*Options, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	return &opts, nil
}
