// Package configstore implements the configuration store consumed by
// the Supervisor and Symbol Refresh Loop (spec §6): read-only lookups
// of the admin identity's exchanges, exchange categories, and symbols,
// backed by sqlite the way the teacher's repository/sqlite package is.
//
// The store caches its bulk reads and must be explicitly invalidated
// before a refresh cycle (spec §4.7, §9): per-exchange lookups
// interleaved with invalidation is exactly the bug this package's
// Invalidate/Symbols split is designed to make impossible to reproduce
// — callers invalidate once, then take a single bulk read and filter
// it in memory.
package configstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/ayankousky/ticker-collector/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a sqlite-backed, read-only configuration store.
type Store struct {
	db *sql.DB

	mu           sync.Mutex
	symbolsValid bool
	symbolsCache []domain.SymbolDescriptor
}

// Open opens (or creates) the sqlite database at dsn and ensures the
// expected read-only schema exists, grounded on the teacher's
// repository/sqlite Factory's init-table-if-missing pattern.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening configuration store: %w", err)
	}

	store := &Store{db: db}
	if err := store.init(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			uid TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS exchange_categories (
			category_id TEXT PRIMARY KEY,
			canonical_name TEXT UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS exchanges (
			exchange_id TEXT PRIMARY KEY,
			category_id TEXT NOT NULL,
			owner_uid TEXT NOT NULL,
			user_facing_name TEXT NOT NULL,
			credential_ref_key TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS symbols (
			symbol TEXT NOT NULL,
			category_id TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing configuration schema: %w", err)
		}
	}
	return nil
}

// Invalidate drops the in-memory bulk-symbols cache. Callers must call
// this before GetSymbols when starting a fresh refresh cycle, and must
// not interleave it with per-exchange reads (spec §9).
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.symbolsValid = false
	s.symbolsCache = nil
	s.mu.Unlock()
}

// GetUserID resolves an admin email to its user id, or domain errors
// with ErrConfigUnavailable wrapped if the query itself fails. A
// missing user returns ("", false, nil).
func (s *Store) GetUserID(ctx context.Context, email string) (string, bool, error) {
	var uid string
	err := s.db.QueryRowContext(ctx, `SELECT uid FROM users WHERE email = ?`, email).Scan(&uid)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
	}
	return uid, true, nil
}

// GetUserExchanges returns every exchange owned by uid.
func (s *Store) GetUserExchanges(ctx context.Context, uid string) ([]domain.UserExchange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT exchange_id, category_id, user_facing_name FROM exchanges WHERE owner_uid = ?`, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
	}
	defer rows.Close()

	var out []domain.UserExchange
	for rows.Next() {
		var ue domain.UserExchange
		if err := rows.Scan(&ue.ExchangeID, &ue.ExchangeCatID, &ue.UserFacingName); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
		}
		out = append(out, ue)
	}
	return out, nil
}

// GetExchangeConfig loads the full configuration record for one
// exchange, including its credential reference.
func (s *Store) GetExchangeConfig(ctx context.Context, exchangeID string) (domain.ExchangeConfig, error) {
	var cfg domain.ExchangeConfig
	var credRef sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT exchange_id, category_id, owner_uid, user_facing_name, credential_ref_key FROM exchanges WHERE exchange_id = ?`, exchangeID)
	if err := row.Scan(&cfg.ExchangeID, &cfg.ExchangeCatID, &cfg.OwnerUserID, &cfg.Name, &credRef); err != nil {
		return domain.ExchangeConfig{}, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
	}
	cfg.CredentialRefKey = credRef.String
	return cfg, nil
}

// GetExchangeCategories returns exchange categories. If all is false,
// only categories with at least one exchange owned by a user are
// returned; if true, every known category is returned.
func (s *Store) GetExchangeCategories(ctx context.Context, all bool) ([]domain.ExchangeCategory, error) {
	query := `SELECT category_id, canonical_name FROM exchange_categories`
	if !all {
		query = `SELECT DISTINCT ec.category_id, ec.canonical_name FROM exchange_categories ec
			INNER JOIN exchanges e ON e.category_id = ec.category_id`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
	}
	defer rows.Close()

	var out []domain.ExchangeCategory
	for rows.Next() {
		var cat domain.ExchangeCategory
		if err := rows.Scan(&cat.CategoryID, &cat.CanonicalName); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
		}
		out = append(out, cat)
	}
	return out, nil
}

// GetSymbols performs the single bulk read mandated by spec §4.8 step 3
// and §9: one query for every symbol across every category, cached
// in-process until the next Invalidate. Callers filter the result in
// memory per exchange rather than issuing one query per exchange.
func (s *Store) GetSymbols(ctx context.Context) ([]domain.SymbolDescriptor, error) {
	s.mu.Lock()
	if s.symbolsValid {
		cached := make([]domain.SymbolDescriptor, len(s.symbolsCache))
		copy(cached, s.symbolsCache)
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.symbol, e.exchange_id, e.user_facing_name, e.category_id
		FROM symbols s
		INNER JOIN exchanges e ON e.category_id = s.category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
	}
	defer rows.Close()

	var all []domain.SymbolDescriptor
	for rows.Next() {
		var sd domain.SymbolDescriptor
		if err := rows.Scan(&sd.Symbol, &sd.ExchangeID, &sd.ExchangeName, &sd.ExchangeCatID); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
		}
		all = append(all, sd)
	}

	s.mu.Lock()
	s.symbolsCache = all
	s.symbolsValid = true
	cached := make([]domain.SymbolDescriptor, len(all))
	copy(cached, all)
	s.mu.Unlock()

	return cached, nil
}

// SymbolsForExchange filters a bulk GetSymbols read in memory, per the
// stale-cache mitigation in spec §9: this never issues its own query.
func SymbolsForExchange(all []domain.SymbolDescriptor, exchangeID string) []string {
	out := make([]string, 0)
	for _, sd := range all {
		if sd.ExchangeID == exchangeID {
			out = append(out, sd.Symbol)
		}
	}
	return out
}
