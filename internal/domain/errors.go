package domain

import (
	"errors"
	"fmt"
)

// MalformedTickerError is returned by the normalizer when a raw event is
// missing required fields or carries numeric fields that cannot be parsed.
type MalformedTickerError struct {
	Field string
	Err   error
}

func (e *MalformedTickerError) Error() string {
	return fmt.Sprintf("malformed ticker event: field %s: %v", e.Field, e.Err)
}

// Unwrap allows errors.Is/errors.As to reach the underlying cause.
func (e *MalformedTickerError) Unwrap() error {
	return e.Err
}

// SubscribeFailedError wraps a per-symbol subscribe failure from the
// underlying WebSocket client.
type SubscribeFailedError struct {
	Symbol string
	Err    error
}

func (e *SubscribeFailedError) Error() string {
	return fmt.Sprintf("subscribe failed for %s: %v", e.Symbol, e.Err)
}

func (e *SubscribeFailedError) Unwrap() error { return e.Err }

// UnsubscribeFailedError wraps a per-symbol unsubscribe failure from the
// underlying WebSocket client.
type UnsubscribeFailedError struct {
	Symbol string
	Err    error
}

func (e *UnsubscribeFailedError) Error() string {
	return fmt.Sprintf("unsubscribe failed for %s: %v", e.Symbol, e.Err)
}

func (e *UnsubscribeFailedError) Unwrap() error { return e.Err }

// ConnectFailedError wraps a connect (or post-disconnect reconnect) failure.
type ConnectFailedError struct {
	Exchange string
	Err      error
}

func (e *ConnectFailedError) Error() string {
	return fmt.Sprintf("connect failed for exchange %s: %v", e.Exchange, e.Err)
}

func (e *ConnectFailedError) Unwrap() error { return e.Err }

// ErrCacheUnavailable is returned by Cache Writer / Health Reporter
// operations when the backing store could not be reached.
var ErrCacheUnavailable = errors.New("cache backend unavailable")

// ErrConfigUnavailable is returned by the configuration store when it
// cannot be queried.
var ErrConfigUnavailable = errors.New("configuration store unavailable")

// ErrInconsistentState is returned by Supervisor.ProcessTicker when the
// daemon exists but is not in the Running state.
var ErrInconsistentState = errors.New("collector exists but is not running")

// ErrNoExchangesConfigured is returned at startup when the admin identity
// has no exchanges, or no exchange yields any symbols.
var ErrNoExchangesConfigured = errors.New("no exchanges yielded any symbols")
