package trading

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rudder/internal/decision"
	"rudder/internal/market"
	"rudder/internal/store"
)

// tradeEvent is one dated order intent produced by the vectorized
// signal pipeline.
type tradeEvent struct {
	dt   time.Time
	side Side
}

// runVectorized predicts once over the whole trading window and
// replays the collapsed decision change points in a single pass.
func (s *Session) runVectorized(ctx context.Context) error {
	candles, err := s.fetchWindow(ctx, s.tradingWin)
	if err != nil {
		return fmt.Errorf("fetch trading window: %w", err)
	}
	if len(candles) < 2 {
		return fmt.Errorf("trading window too short: %d candles", len(candles))
	}
	byOpenTime := make(map[int64]market.Candle, len(candles))
	for _, c := range candles {
		byOpenTime[c.OpenTime] = c
	}

	first := candles[0]
	s.portfolio.Reset(first.DT(), first.Price(s.sellOn))

	// The model may predict over a wider decision-data window, giving
	// it history before the first tradable bar. Signals outside the
	// trading window are clamped away before replay.
	signalSource := candles
	if !s.decisionWin.empty() {
		signalSource, err = s.fetchWindow(ctx, s.decisionWin)
		if err != nil {
			return fmt.Errorf("fetch decision data window: %w", err)
		}
	}

	// Each bar is shifted to carry its predecessor's values, so the
	// decision at bar t never sees bar t itself.
	signals := s.model.Predict(market.ShiftOne(signalSource))
	signals = clampSignals(signals, s.tradingWin)
	events := buildTradeEvents(changePoints(signals))

	snaps := newSnapshotSet()
	for i, ev := range events {
		bar, ok := byOpenTime[ev.dt.UnixMilli()]
		if !ok {
			return fmt.Errorf("no bar at decision timestamp %s", ev.dt.Format(time.RFC3339))
		}
		priceOn := s.buyOn
		sig := decision.Signal{DT: ev.dt, Action: decision.ActionBuy}
		if ev.side == SideSell {
			priceOn = s.sellOn
			sig.Action = decision.ActionSell
		}
		if err := s.applySignal(ctx, sig, ev.dt); err != nil {
			return err
		}
		price := bar.Price(priceOn)
		if err := s.updateOrders(ctx, ev.dt, price); err != nil {
			return err
		}
		s.portfolio.Update(ev.dt, price)
		snaps.push(s.portfolio.Snapshot())
		s.progress = float64(i+1) / float64(len(events)+1)
	}

	// The performance curve must always end at the window boundary,
	// priced on the sell hypothesis.
	last := candles[len(candles)-1]
	s.portfolio.Update(last.DT(), last.Price(s.sellOn))
	snaps.push(s.portfolio.Snapshot())

	if err := s.store.Put(ctx, store.EndpointPortfolio, snaps.records()); err != nil {
		return fmt.Errorf("persist portfolio snapshots: %w", err)
	}
	s.publish("portfolio", s.portfolio.Snapshot())
	return nil
}

// clampSignals keeps only the signals dated inside the window.
func clampSignals(signals []decision.Signal, w timeWindow) []decision.Signal {
	out := make([]decision.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.DT.Before(w.start) || sig.DT.After(w.end) {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// changePoints collapses a signal stream to the points where the
// decision differs from the previous non-pass decision.
func changePoints(signals []decision.Signal) []decision.Signal {
	var out []decision.Signal
	last := decision.ActionPass
	for _, sig := range signals {
		if sig.Action == decision.ActionPass || sig.Action == last {
			continue
		}
		out = append(out, sig)
		last = sig.Action
	}
	return out
}

// buildTradeEvents splits change points into buys and sells, drops
// sells dated before the first buy (no position exists yet to close),
// and merges them sorted by (timestamp, buy before sell).
func buildTradeEvents(points []decision.Signal) []tradeEvent {
	var buys, sells []time.Time
	for _, sig := range points {
		switch sig.Action {
		case decision.ActionBuy:
			buys = append(buys, sig.DT)
		case decision.ActionSell:
			sells = append(sells, sig.DT)
		}
	}
	events := make([]tradeEvent, 0, len(buys)+len(sells))
	for _, dt := range buys {
		events = append(events, tradeEvent{dt: dt, side: SideBuy})
	}
	if len(buys) > 0 {
		firstBuy := buys[0]
		for _, dt := range sells {
			if !dt.Before(firstBuy) {
				events = append(events, tradeEvent{dt: dt, side: SideSell})
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].dt.Equal(events[j].dt) {
			return events[i].dt.Before(events[j].dt)
		}
		return events[i].side == SideBuy && events[j].side == SideSell
	})
	return events
}

// snapshotSet keeps portfolio snapshots deduplicated on their dt,
// last write wins, insertion order preserved.
type snapshotSet struct {
	recs  []store.PortfolioRecord
	index map[int64]int
}

func newSnapshotSet() *snapshotSet {
	return &snapshotSet{index: make(map[int64]int)}
}

func (s *snapshotSet) push(rec store.PortfolioRecord) {
	key := rec.DT.UnixMilli()
	if i, ok := s.index[key]; ok {
		s.recs[i] = rec
		return
	}
	s.index[key] = len(s.recs)
	s.recs = append(s.recs, rec)
}

func (s *snapshotSet) records() []any {
	out := make([]any, len(s.recs))
	for i, rec := range s.recs {
		out[i] = rec
	}
	return out
}
