package refresh

import (
	"context"
	"sync"
	"testing"

	"github.com/ayankousky/ticker-collector/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConfig struct {
	mu           sync.Mutex
	symbols      []domain.SymbolDescriptor
	invalidated  int
	getSymbolErr error
}

func (f *fakeConfig) Invalidate() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

func (f *fakeConfig) GetSymbols(context.Context) ([]domain.SymbolDescriptor, error) {
	if f.getSymbolErr != nil {
		return nil, f.getSymbolErr
	}
	return f.symbols, nil
}

type fakeHandler struct {
	mu       sync.Mutex
	name     string
	active   map[string]struct{}
	lastDesired map[string]struct{}
}

func (h *fakeHandler) ExchangeName() string { return h.name }

func (h *fakeHandler) ActiveSymbols() map[string]struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]struct{}, len(h.active))
	for k := range h.active {
		out[k] = struct{}{}
	}
	return out
}

func (h *fakeHandler) UpdateSymbols(_ context.Context, desired map[string]struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastDesired = desired
	h.active = desired
}

func TestLoop_RunIterationReconcilesRunningHandlers(t *testing.T) {
	config := &fakeConfig{symbols: []domain.SymbolDescriptor{
		{Symbol: "BTCUSD", ExchangeID: "e1", ExchangeName: "binance"},
		{Symbol: "ETHUSD", ExchangeID: "e1", ExchangeName: "binance"},
	}}
	handler := &fakeHandler{name: "binance", active: map[string]struct{}{"BTCUSD": {}}}

	loop := New(config, func() map[string]Handler {
		return map[string]Handler{"e1": handler}
	}, zap.NewNop(), 0)

	loop.runIteration(context.Background())

	assert.Equal(t, 1, config.invalidated)
	require.Contains(t, handler.lastDesired, "BTCUSD")
	require.Contains(t, handler.lastDesired, "ETHUSD")
}

func TestLoop_ConfigErrorSkipsIterationWithoutPanicking(t *testing.T) {
	config := &fakeConfig{getSymbolErr: assert.AnError}
	handler := &fakeHandler{name: "binance", active: map[string]struct{}{}}

	loop := New(config, func() map[string]Handler {
		return map[string]Handler{"e1": handler}
	}, zap.NewNop(), 0)

	assert.NotPanics(t, func() {
		loop.runIteration(context.Background())
	})
	assert.Nil(t, handler.lastDesired)
}

func TestLoop_UnconfiguredExchangeIsUntouched(t *testing.T) {
	config := &fakeConfig{symbols: []domain.SymbolDescriptor{
		{Symbol: "BTCUSD", ExchangeID: "e2", ExchangeName: "bybit"},
	}}
	handler := &fakeHandler{name: "binance", active: map[string]struct{}{"BTCUSD": {}}}

	loop := New(config, func() map[string]Handler {
		return map[string]Handler{"e1": handler}
	}, zap.NewNop(), 0)

	loop.runIteration(context.Background())
	assert.Nil(t, handler.lastDesired)
}

func TestLoop_StartAndStop(t *testing.T) {
	config := &fakeConfig{}
	loop := New(config, func() map[string]Handler { return nil }, zap.NewNop(), 0)

	loop.Start(context.Background())
	loop.Stop()
}
