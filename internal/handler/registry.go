package handler

import "github.com/ayankousky/ticker-collector/internal/wsclient"

// subscriptionRegistry is the per-handler map from symbol to the opaque
// subscription handle returned by the WebSocket client (spec §4.3). It
// is not safe for concurrent mutation from outside the owning handler;
// the handler's own mutex is what makes access safe.
type subscriptionRegistry struct {
	handles map[string]wsclient.Handle
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{handles: make(map[string]wsclient.Handle)}
}

// add records a symbol's subscription handle.
func (r *subscriptionRegistry) add(symbol string, handle wsclient.Handle) {
	r.handles[symbol] = handle
}

// remove deletes a symbol's entry, returning its handle if present.
func (r *subscriptionRegistry) remove(symbol string) (wsclient.Handle, bool) {
	handle, ok := r.handles[symbol]
	if ok {
		delete(r.handles, symbol)
	}
	return handle, ok
}

// contains reports whether symbol currently has a recorded subscription.
func (r *subscriptionRegistry) contains(symbol string) bool {
	_, ok := r.handles[symbol]
	return ok
}

// snapshot returns the current set of subscribed symbols.
func (r *subscriptionRegistry) snapshot() map[string]struct{} {
	out := make(map[string]struct{}, len(r.handles))
	for symbol := range r.handles {
		out[symbol] = struct{}{}
	}
	return out
}

// len returns the number of active subscriptions.
func (r *subscriptionRegistry) len() int {
	return len(r.handles)
}
