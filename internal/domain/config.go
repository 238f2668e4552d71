package domain

// SymbolDescriptor is a read-only record loaded from the configuration
// store: a single symbol that should be streamed for a given exchange.
type SymbolDescriptor struct {
	Symbol         string
	ExchangeID     string
	ExchangeName   string
	ExchangeCatID  string
}

// ExchangeConfig is a read-only record describing an exchange a user has
// configured: who owns it, and which credential to resolve for it.
type ExchangeConfig struct {
	ExchangeID       string
	ExchangeCatID    string
	Name             string
	OwnerUserID      string
	CredentialRefKey string
}

// UserExchange is the shape returned by the configuration store's
// get_user_exchanges call.
type UserExchange struct {
	ExchangeID      string
	ExchangeCatID   string
	UserFacingName  string
}

// ExchangeCategory is the shape returned by get_exchange_categories:
// the canonical identity of an exchange independent of which user
// configured it.
type ExchangeCategory struct {
	CategoryID    string
	CanonicalName string
}
