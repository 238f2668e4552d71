// Package wsclient defines the WebSocket client capability that the
// Exchange Handler consumes (spec §6): connect, subscribe/unsubscribe a
// single symbol's ticker stream, disconnect, and be notified of
// connection-status changes. Exchange wire-protocol specifics are an
// external collaborator's concern; this package only fixes the shape of
// that collaborator.
package wsclient

import "context"

// Handle is the opaque subscription handle returned by SubscribeTicker.
// Callers must treat it as opaque and pass it back unmodified to
// Unsubscribe.
type Handle any

// EventCallback receives one already-parsed raw event for a symbol. It
// may be invoked on any scheduling context the client chooses, and must
// not block for long.
type EventCallback func(raw map[string]any)

// ConnectionStatusCallback is invoked whenever the underlying connection
// transitions up or down. err is non-nil only when connected is false
// and the transition was caused by a failure rather than a deliberate
// Disconnect.
type ConnectionStatusCallback func(connected bool, err error)

// Client is the capability an Exchange Handler depends on to maintain a
// live connection to one exchange and manage per-symbol ticker
// subscriptions on it.
type Client interface {
	// Connect establishes the underlying connection. Calling Connect on
	// an already-connected client is implementation-defined; the
	// Exchange Handler never relies on it being a no-op.
	Connect(ctx context.Context) error

	// Disconnect tears down the underlying connection and cancels all
	// subscriptions on it. After Disconnect, Connect may be called again.
	Disconnect() error

	// SubscribeTicker subscribes to a single symbol's ticker stream and
	// registers the callback to receive its events. It returns an opaque
	// handle identifying the subscription.
	SubscribeTicker(ctx context.Context, symbol string, cb EventCallback) (Handle, error)

	// Unsubscribe cancels a subscription previously returned by
	// SubscribeTicker.
	Unsubscribe(handle Handle) error

	// SetConnectionStatusCallback installs a callback invoked on
	// connect/disconnect transitions. Optional: a client may ignore this
	// call if it has no way to detect disconnects out-of-band.
	SetConnectionStatusCallback(cb ConnectionStatusCallback)
}
