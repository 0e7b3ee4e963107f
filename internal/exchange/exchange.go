package exchange

import (
	"context"
	"fmt"
	"time"

	"rudder/internal/market"
)

// Fees holds the maker/taker commission rates of one market, as
// fractions (0.001 = 0.1%).
type Fees struct {
	Maker float64
	Taker float64
}

// Fill reports the outcome of a placed order.
type Fill struct {
	DT          time.Time
	Price       float64
	BaseAmount  float64
	QuoteAmount float64
}

// MarketData serves OHLCV history and trading fees.
type MarketData interface {
	// HistoricOHLCV returns all closed bars with open times in
	// [start, end], ascending.
	HistoricOHLCV(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error)
	// LastOHLCV returns the latest n bars, ascending. With closedOnly
	// the still-open bar is dropped, otherwise it is the last element.
	LastOHLCV(ctx context.Context, symbol string, tf market.Timeframe, n int, closedOnly bool) ([]market.Candle, error)
	TradingFees(ctx context.Context, symbol string) (Fees, error)
}

// Trader places real market orders.
type Trader interface {
	MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (Fill, error)
	MarketSell(ctx context.Context, symbol string, baseAmount float64) (Fill, error)
}

// ErrorTracker tolerates a bounded run of consecutive failures before
// turning them fatal. Live sell placement uses one so a transient
// exchange hiccup does not abort a session that is holding a position.
type ErrorTracker struct {
	scope     string
	tolerance int
	count     int
}

func NewErrorTracker(scope string, tolerance int) *ErrorTracker {
	if tolerance < 0 {
		tolerance = 0
	}
	return &ErrorTracker{scope: scope, tolerance: tolerance}
}

// Failure records one failure. It returns nil while the run stays
// within tolerance and a fatal wrapped error once it is exceeded.
func (t *ErrorTracker) Failure(err error) error {
	t.count++
	if t.count > t.tolerance {
		return fmt.Errorf("%s failed %d times (tolerance %d): %w", t.scope, t.count, t.tolerance, err)
	}
	return nil
}

// Success resets the failure run.
func (t *ErrorTracker) Success() {
	t.count = 0
}

// Count returns the current consecutive failure count.
func (t *ErrorTracker) Count() int {
	return t.count
}
