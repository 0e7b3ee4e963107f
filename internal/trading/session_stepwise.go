package trading

import (
	"context"
	"fmt"
	"time"

	"rudder/internal/market"
	"rudder/internal/store"
)

// runStepwise walks the intrabar open/low/high touches of the trading
// window one tick at a time. The decision is recomputed once per bar
// boundary; order execution and portfolio accounting happen on every
// tick.
func (s *Session) runStepwise(ctx context.Context) error {
	candles, err := s.fetchWindow(ctx, s.tradingWin)
	if err != nil {
		return fmt.Errorf("fetch trading window: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("trading window is empty")
	}
	s.portfolio.Reset(candles[0].DT(), candles[0].Open)

	// shifted[i-1] carries bar i-1's values under bar i's timestamp,
	// so a slice of it is exactly the closed-bar view at any boundary.
	shifted := market.ShiftOne(candles)
	barIdx := make(map[int64]int, len(candles))
	for i, c := range candles {
		barIdx[c.OpenTime] = i
	}
	lookback := s.model.Lookback()

	ticks := market.Flatten(candles)
	snaps := newSnapshotSet()
	var lastBar int64 = -1
	for i, tick := range ticks {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := time.UnixMilli(tick.OpenTime)
		if tick.OpenTime != lastBar {
			lastBar = tick.OpenTime
			if idx := barIdx[tick.OpenTime]; idx >= 1 {
				window := market.Tail(shifted[:idx], lookback+1)
				if sigs := s.model.Predict(window); len(sigs) > 0 {
					if err := s.applySignal(ctx, sigs[len(sigs)-1], now); err != nil {
						return err
					}
				}
			}
		}
		if err := s.updateOrders(ctx, now, tick.Quote); err != nil {
			return err
		}
		s.portfolio.Update(now, tick.Quote)
		snaps.push(s.portfolio.Snapshot())
		s.progress = float64(i+1) / float64(len(ticks))

		// Periodic full snapshot for crash recovery.
		if (i+1)%s.snapshotEvery == 0 {
			s.persistBot(ctx)
			if err := s.store.Put(ctx, store.EndpointPortfolio, snaps.records()); err != nil {
				return fmt.Errorf("persist portfolio snapshots: %w", err)
			}
			snaps = newSnapshotSet()
		}
	}
	if err := s.store.Put(ctx, store.EndpointPortfolio, snaps.records()); err != nil {
		return fmt.Errorf("persist portfolio snapshots: %w", err)
	}
	s.publish("portfolio", s.portfolio.Snapshot())
	return nil
}
