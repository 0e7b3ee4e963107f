package trading

import (
	"context"
	"fmt"
	"time"

	"rudder/internal/logger"
	"rudder/internal/market"
	"rudder/internal/store"
)

// runLive polls the latest bar, reacts once per newly closed bar and
// sleeps until the next expected bar close. Every network call runs
// under its own timeout so a stuck venue cannot stall the loop
// forever.
func (s *Session) runLive(ctx context.Context) error {
	var lastClosed int64 = -1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		current, err := s.pollLatest(ctx)
		if err != nil {
			return fmt.Errorf("poll latest bar: %w", err)
		}
		if s.portfolio.QuotePriceInit == 0 {
			s.portfolio.Reset(current.DT(), current.Close)
		}

		if current.OpenTime != lastClosed {
			now := current.DT()
			quote := current.Close
			if err := s.decideLive(ctx, now); err != nil {
				return err
			}
			if err := s.updateOrders(ctx, now, quote); err != nil {
				return err
			}
			s.portfolio.Update(now, quote)
			if err := s.store.Update(ctx, store.EndpointPortfolio, s.portfolio.Snapshot()); err != nil {
				return fmt.Errorf("persist portfolio snapshot: %w", err)
			}
			s.publish("portfolio", s.portfolio.Snapshot())
			s.persistBot(ctx)
			lastClosed = current.OpenTime
			logger.Infof("session %s: bar %s quote=%.8f %s",
				s.uid, now.Format(time.RFC3339), quote, s.portfolio.Report())
		}

		if err := s.liveSleep(ctx, current.OpenTime); err != nil {
			return err
		}
	}
}

// pollLatest fetches the still-forming bar under the poll timeout.
func (s *Session) pollLatest(ctx context.Context) (bar market.Candle, err error) {
	callCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()
	candles, err := s.data.LastOHLCV(callCtx, s.symbol, s.tf, 1, false)
	if err != nil {
		return bar, err
	}
	if len(candles) == 0 {
		return bar, fmt.Errorf("no bar returned for %s@%s", s.symbol, s.tf.Key)
	}
	return candles[len(candles)-1], nil
}

// decideLive recomputes the decision on the model's lookback window of
// closed bars and applies it at now.
func (s *Session) decideLive(ctx context.Context, now time.Time) error {
	callCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()
	window, err := s.data.LastOHLCV(callCtx, s.symbol, s.tf, s.model.Lookback()+1, true)
	if err != nil {
		return fmt.Errorf("fetch closed lookback window: %w", err)
	}
	if len(window) == 0 {
		return nil
	}
	sigs := s.model.Predict(window)
	if len(sigs) == 0 {
		return nil
	}
	return s.applySignal(ctx, sigs[len(sigs)-1], now)
}

// liveSleep waits until the current bar's expected close. The target
// is recomputed from the bar timestamp every pass, so drift never
// accumulates; a target already in the past means the loop continues
// immediately.
func (s *Session) liveSleep(ctx context.Context, barOpenTime int64) error {
	wait := time.Until(s.tf.NextClose(barOpenTime))
	if wait <= 0 {
		return nil
	}
	logger.Debugf("session %s: sleeping %s until next bar close", s.uid, wait.Round(time.Second))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
