// Package genericws is a reference wsclient.Client implementation built
// on gorilla/websocket. It speaks a minimal subscribe/unsubscribe
// control protocol ({"op": "subscribe"|"unsubscribe", "args": [symbol]})
// and dispatches inbound frames to the callback registered for the
// frame's "symbol" field. Real exchange adapters speak their own wire
// protocol and are expected to satisfy wsclient.Client directly; this
// implementation exists to make the Exchange Handler runnable end-to-end
// against any exchange whose gateway (or a translating proxy in front of
// it) accepts this shape.
package genericws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ayankousky/ticker-collector/internal/wsclient"
	"github.com/gorilla/websocket"
)

// DefaultWebsocketTimeout is the read deadline applied to the
// connection; a silent connection this long is treated as dead.
const DefaultWebsocketTimeout = 60 * time.Second

// Config configures a Client.
type Config struct {
	// Name identifies the exchange this client talks to, for logging.
	Name string
	// WSUrl is the websocket endpoint to dial.
	WSUrl string
}

type subscription struct {
	symbol string
	cb     wsclient.EventCallback
}

// Client is a generic subscribe/unsubscribe-over-JSON WebSocket client.
type Client struct {
	name  string
	wsURL string

	mu       sync.Mutex
	conn     *websocket.Conn
	subs     map[string]subscription
	statusCB wsclient.ConnectionStatusCallback

	readDone chan struct{}
}

// New creates a new Client. It does not dial until Connect is called.
func New(cfg Config) *Client {
	return &Client{
		name:  cfg.Name,
		wsURL: cfg.WSUrl,
		subs:  make(map[string]subscription),
	}
}

// Connect dials the websocket endpoint and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("%s: dial %s: %w", c.name, c.wsURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.readDone = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn, c.readDone)

	return nil
}

// Disconnect closes the underlying connection and stops the read loop.
// It does not clear registered subscriptions — the Exchange Handler is
// responsible for re-establishing them on the next Connect, per spec
// §4.2.2.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// SubscribeTicker sends a subscribe control frame and registers cb to
// receive events whose "symbol" field matches.
func (c *Client) SubscribeTicker(_ context.Context, symbol string, cb wsclient.EventCallback) (wsclient.Handle, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("%s: not connected", c.name)
	}

	msg := map[string]any{"op": "subscribe", "args": []string{symbol}}
	if err := conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("%s: subscribe %s: %w", c.name, symbol, err)
	}

	c.mu.Lock()
	c.subs[symbol] = subscription{symbol: symbol, cb: cb}
	c.mu.Unlock()

	return symbol, nil
}

// Unsubscribe sends an unsubscribe control frame for the handle's symbol.
func (c *Client) Unsubscribe(handle wsclient.Handle) error {
	symbol, ok := handle.(string)
	if !ok {
		return fmt.Errorf("%s: invalid handle %v", c.name, handle)
	}

	c.mu.Lock()
	conn := c.conn
	delete(c.subs, symbol)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	msg := map[string]any{"op": "unsubscribe", "args": []string{symbol}}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%s: unsubscribe %s: %w", c.name, symbol, err)
	}
	return nil
}

// SetConnectionStatusCallback installs the connection-status callback.
func (c *Client) SetConnectionStatusCallback(cb wsclient.ConnectionStatusCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCB = cb
}

// readLoop reads frames until the connection dies, dispatching each to
// its subscribed symbol's callback.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(DefaultWebsocketTimeout)); err != nil {
			c.notifyDisconnected(conn, err)
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.notifyDisconnected(conn, err)
			return
		}

		var event map[string]any
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		symbol, _ := event["symbol"].(string)
		c.mu.Lock()
		sub, ok := c.subs[symbol]
		c.mu.Unlock()
		if !ok {
			continue
		}

		sub.cb(event)
	}
}

// notifyDisconnected reports conn going down. If Disconnect already
// detached conn, the close was deliberate and err is reported as nil.
func (c *Client) notifyDisconnected(conn *websocket.Conn, err error) {
	c.mu.Lock()
	cb := c.statusCB
	if c.conn != conn {
		err = nil
	}
	c.mu.Unlock()
	if cb != nil {
		cb(false, err)
	}
}
