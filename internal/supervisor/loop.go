package supervisor

import (
	"context"
	"time"

	"github.com/ayankousky/ticker-collector/internal/handler"
	"go.uber.org/zap"
)

// runSupervisorLoop implements spec §4.8.1: every supervisorLoopInterval,
// any handler found in the Error state is destroyed, recreated from its
// last known configuration, and restarted with its last desired symbol
// set.
func (s *Supervisor) runSupervisorLoop(ctx context.Context) {
	defer close(s.supervisorDone)

	ticker := time.NewTicker(supervisorLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recoverErroredHandlers(ctx)
		}
	}
}

func (s *Supervisor) recoverErroredHandlers(ctx context.Context) {
	s.mu.Lock()
	toRecover := make(map[string]*handler.Handler)
	for id, h := range s.handlers {
		if h.Status() == handler.Error {
			toRecover[id] = h
		}
	}
	s.mu.Unlock()

	for exchangeID, old := range toRecover {
		s.mu.Lock()
		cfg, ok := s.cfgs[exchangeID]
		s.mu.Unlock()
		if !ok {
			continue
		}

		symbols := old.DesiredSymbols()

		if err := old.Stop(); err != nil {
			s.logger.Warn("supervisor loop: failed to stop errored handler", zap.String("exchange", cfg.Name), zap.Error(err))
		}

		fresh := s.newHandlerLocked(cfg)
		desiredSlice := make([]string, 0, len(symbols))
		for symbol := range symbols {
			desiredSlice = append(desiredSlice, symbol)
		}

		if err := fresh.Start(ctx, desiredSlice); err != nil {
			s.logger.Warn("supervisor loop: recreated handler failed to start", zap.String("exchange", cfg.Name), zap.Error(err))
			continue
		}
		s.logger.Info("supervisor loop: recovered errored handler", zap.String("exchange", cfg.Name), zap.Int("symbols", len(desiredSlice)))
	}
}
