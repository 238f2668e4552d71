// Package credentials resolves API credentials for an exchange
// configuration. Absence of credentials is expected for public-data
// exchanges (spec §6) and is not an error.
package credentials

import (
	"fmt"
	"os"
	"strings"

	"github.com/ayankousky/ticker-collector/internal/domain"
)

// Credentials holds a resolved API key/secret pair. Both fields may be
// empty when the exchange only needs public data.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Resolver maps an exchange configuration to credentials.
type Resolver interface {
	Resolve(cfg domain.ExchangeConfig) (Credentials, error)
}

// EnvResolver resolves credentials from environment variables named
// <PREFIX>_<CredentialRefKey>_API_KEY / _API_SECRET. It never errors on
// a missing credential — it returns an empty Credentials instead, since
// public-only exchanges are expected to have none configured.
type EnvResolver struct {
	Prefix string
}

// NewEnvResolver creates an EnvResolver with the given variable prefix
// (e.g. "TICKER").
func NewEnvResolver(prefix string) *EnvResolver {
	return &EnvResolver{Prefix: prefix}
}

// Resolve looks up the key/secret pair for cfg.CredentialRefKey.
func (r *EnvResolver) Resolve(cfg domain.ExchangeConfig) (Credentials, error) {
	ref := strings.ToUpper(cfg.CredentialRefKey)
	if ref == "" {
		ref = strings.ToUpper(cfg.Name)
	}
	if ref == "" {
		return Credentials{}, fmt.Errorf("no credential reference for exchange %q", cfg.ExchangeID)
	}

	keyVar := fmt.Sprintf("%s_%s_API_KEY", r.Prefix, ref)
	secretVar := fmt.Sprintf("%s_%s_API_SECRET", r.Prefix, ref)

	return Credentials{
		APIKey:    os.Getenv(keyVar),
		APISecret: os.Getenv(secretVar),
	}, nil
}
