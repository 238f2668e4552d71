package handler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayankousky/ticker-collector/internal/credentials"
	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/ayankousky/ticker-collector/internal/infrastructure/telemetry"
	"github.com/ayankousky/ticker-collector/internal/wsclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockWSClient struct {
	mock.Mock
	mu           sync.Mutex
	statusCB     wsclient.ConnectionStatusCallback
	cbs          map[string]wsclient.EventCallback
	connectCount int
}

func newMockWSClient() *MockWSClient {
	return &MockWSClient{cbs: make(map[string]wsclient.EventCallback)}
}

func (m *MockWSClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connectCount++
	m.mu.Unlock()
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockWSClient) connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCount
}

func (m *MockWSClient) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockWSClient) SubscribeTicker(ctx context.Context, symbol string, cb wsclient.EventCallback) (wsclient.Handle, error) {
	args := m.Called(ctx, symbol)
	if args.Error(1) == nil {
		m.mu.Lock()
		m.cbs[symbol] = cb
		m.mu.Unlock()
	}
	return args.Get(0), args.Error(1)
}

func (m *MockWSClient) Unsubscribe(handle wsclient.Handle) error {
	args := m.Called(handle)
	return args.Error(0)
}

func (m *MockWSClient) SetConnectionStatusCallback(cb wsclient.ConnectionStatusCallback) {
	m.mu.Lock()
	m.statusCB = cb
	m.mu.Unlock()
}

func (m *MockWSClient) deliver(symbol string, raw map[string]any) {
	m.mu.Lock()
	cb := m.cbs[symbol]
	m.mu.Unlock()
	if cb != nil {
		cb(raw)
	}
}

// credStub is a minimal credentials.Resolver, so tests can force
// resolution failures without touching the environment.
type credStub struct {
	err error
}

func (c credStub) Resolve(domain.ExchangeConfig) (credentials.Credentials, error) {
	return credentials.Credentials{}, c.err
}

// fakeHealthWriter is a minimal HealthWriter recording register/delete
// calls by component, so tests can assert subscribe/unsubscribe health
// lifecycle without a real Health Reporter.
type fakeHealthWriter struct {
	mu         sync.Mutex
	registered map[string]domain.ProcessHealth
}

func newFakeHealthWriter() *fakeHealthWriter {
	return &fakeHealthWriter{registered: make(map[string]domain.ProcessHealth)}
}

func (f *fakeHealthWriter) RegisterProcess(_ context.Context, health domain.ProcessHealth) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[health.Component] = health
	return nil
}

func (f *fakeHealthWriter) DeleteByComponent(_ context.Context, component string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, component)
	return nil
}

func (f *fakeHealthWriter) has(component string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.registered[component]
	return ok
}

func newTestHandler(ws wsclient.Client) *Handler {
	return newTestHandlerWithHealth(ws, nil)
}

func newTestHandlerWithHealth(ws wsclient.Client, health HealthWriter) *Handler {
	logger := zap.NewNop()
	return New("testex", ws, domain.ExchangeConfig{ExchangeID: "ex1", Name: "testex"}, credStub{}, health, logger, &telemetry.NoopProvider{})
}

func TestHandler_StartSubscribesAllAndTransitionsConnected(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "BTCUSD").Return(wsclient.Handle("h1"), nil)
	ws.On("SubscribeTicker", mock.Anything, "ETHUSD").Return(wsclient.Handle("h2"), nil)

	h := newTestHandler(ws)
	err := h.Start(context.Background(), []string{"BTCUSD", "ETHUSD"})

	require.NoError(t, err)
	assert.Equal(t, Connected, h.Status())
	assert.Len(t, h.ActiveSymbols(), 2)
	ws.AssertExpectations(t)
}

func TestHandler_StartCleansUpOnPartialSubscribeFailure(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "BTCUSD").Return(wsclient.Handle("h1"), nil)
	ws.On("SubscribeTicker", mock.Anything, "ETHUSD").Return(wsclient.Handle(nil), errors.New("rejected"))
	ws.On("Unsubscribe", wsclient.Handle("h1")).Return(nil)
	ws.On("Disconnect").Return(nil)

	h := newTestHandler(ws)
	err := h.Start(context.Background(), []string{"BTCUSD", "ETHUSD"})

	require.Error(t, err)
	assert.Equal(t, Error, h.Status())
	assert.Empty(t, h.ActiveSymbols())
	ws.AssertExpectations(t)
}

func TestHandler_UpdateSymbolsToleratesPartialFailure(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "BTCUSD").Return(wsclient.Handle("h1"), nil)

	h := newTestHandler(ws)
	require.NoError(t, h.Start(context.Background(), []string{"BTCUSD"}))

	ws.On("SubscribeTicker", mock.Anything, "ETHUSD").Return(wsclient.Handle(nil), errors.New("rejected"))
	ws.On("SubscribeTicker", mock.Anything, "XRPUSD").Return(wsclient.Handle("h3"), nil)

	h.UpdateSymbols(context.Background(), map[string]struct{}{
		"BTCUSD": {},
		"ETHUSD": {},
		"XRPUSD": {},
	})

	active := h.ActiveSymbols()
	assert.Contains(t, active, "BTCUSD")
	assert.Contains(t, active, "XRPUSD")
	assert.NotContains(t, active, "ETHUSD")
}

func TestHandler_StopUnsubscribesAllAndDisconnects(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "BTCUSD").Return(wsclient.Handle("h1"), nil)
	ws.On("Unsubscribe", wsclient.Handle("h1")).Return(nil)
	ws.On("Disconnect").Return(nil)

	h := newTestHandler(ws)
	require.NoError(t, h.Start(context.Background(), []string{"BTCUSD"}))
	require.NoError(t, h.Stop())

	assert.Equal(t, Disconnected, h.Status())
	ws.AssertExpectations(t)
}

func TestHandler_MalformedEventDroppedWithoutAffectingState(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "BTCUSD").Return(wsclient.Handle("h1"), nil)

	h := newTestHandler(ws)
	require.NoError(t, h.Start(context.Background(), []string{"BTCUSD"}))

	var delivered []domain.Tick
	h.SetCallback(func(tick domain.Tick) {
		delivered = append(delivered, tick)
	})

	ws.deliver("BTCUSD", map[string]any{"symbol": "BTCUSD"}) // no price/last

	assert.Equal(t, Connected, h.Status())
	assert.Empty(t, delivered)
}

func TestHandler_EventDeliveredUpdatesLastEventTime(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "BTCUSD").Return(wsclient.Handle("h1"), nil)

	h := newTestHandler(ws)
	require.NoError(t, h.Start(context.Background(), []string{"BTCUSD"}))

	var delivered domain.Tick
	h.SetCallback(func(tick domain.Tick) {
		delivered = tick
	})

	_, ok := h.LastEventTime()
	assert.False(t, ok)

	ws.deliver("BTCUSD", map[string]any{"symbol": "BTCUSD", "price": 42000.5})

	assert.Equal(t, "BTCUSD", delivered.Symbol)
	assert.Equal(t, "testex", delivered.Exchange)
	_, ok = h.LastEventTime()
	assert.True(t, ok)
}

func TestHandler_CallbackPanicIsRecovered(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "BTCUSD").Return(wsclient.Handle("h1"), nil)

	h := newTestHandler(ws)
	require.NoError(t, h.Start(context.Background(), []string{"BTCUSD"}))

	h.SetCallback(func(tick domain.Tick) {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		ws.deliver("BTCUSD", map[string]any{"symbol": "BTCUSD", "price": 1.0})
	})
	assert.Equal(t, Connected, h.Status())
}

func TestHandler_SubscriptionHealthCreatedAndDeleted(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "BTCUSD").Return(wsclient.Handle("h1"), nil)
	ws.On("Unsubscribe", wsclient.Handle("h1")).Return(nil)
	ws.On("Disconnect").Return(nil)

	health := newFakeHealthWriter()
	h := newTestHandlerWithHealth(ws, health)
	require.NoError(t, h.Start(context.Background(), []string{"BTCUSD"}))

	assert.True(t, health.has("testex:BTCUSD"))

	require.NoError(t, h.Stop())
	assert.False(t, health.has("testex:BTCUSD"))
}

func TestHandler_UpdateSymbolsCreatesAndDeletesSubscriptionHealth(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "BTCUSD").Return(wsclient.Handle("h1"), nil)

	health := newFakeHealthWriter()
	h := newTestHandlerWithHealth(ws, health)
	require.NoError(t, h.Start(context.Background(), []string{"BTCUSD"}))
	assert.True(t, health.has("testex:BTCUSD"))

	ws.On("Unsubscribe", wsclient.Handle("h1")).Return(nil)
	ws.On("SubscribeTicker", mock.Anything, "ETHUSD").Return(wsclient.Handle("h2"), nil)

	h.UpdateSymbols(context.Background(), map[string]struct{}{"ETHUSD": {}})

	assert.False(t, health.has("testex:BTCUSD"))
	assert.True(t, health.has("testex:ETHUSD"))
}

func TestHandler_FirstReconnectWaitsTwoSeconds(t *testing.T) {
	ws := newMockWSClient()
	ws.On("Connect", mock.Anything).Return(errors.New("refused"))
	ws.On("Disconnect").Return(nil)

	h := newTestHandler(ws)
	err := h.Start(context.Background(), []string{"BTCUSD"})
	require.Error(t, err)
	assert.Equal(t, 1, h.ReconnectCount())

	// The first retry must wait reconnectBackoff(1) == 2s, not 4s: it
	// must not have happened yet shortly before 2s elapse.
	assert.Never(t, func() bool {
		return ws.connects() >= 2
	}, 1500*time.Millisecond, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		return ws.connects() >= 2
	}, 1*time.Second, 50*time.Millisecond)

	require.NoError(t, h.Stop())
}

func TestReconnectBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, reconnectBackoff(1))
	assert.Equal(t, 4*time.Second, reconnectBackoff(2))
	assert.Equal(t, 8*time.Second, reconnectBackoff(3))
	assert.Equal(t, 60*time.Second, reconnectBackoff(6))
	assert.Equal(t, 60*time.Second, reconnectBackoff(10))
}
