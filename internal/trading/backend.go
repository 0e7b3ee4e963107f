package trading

import (
	"context"
	"fmt"

	"rudder/internal/exchange"
)

// ExecutionBackend fills an order. Simulated computes the fill from
// the fee-adjusted formula, Live delegates to the venue and reports
// what actually filled.
type ExecutionBackend interface {
	Fill(ctx context.Context, o *Order, quotePrice float64) (exchange.Fill, error)
}

// Simulated fills at exactly the given price.
type Simulated struct{}

func (Simulated) Fill(_ context.Context, o *Order, quotePrice float64) (exchange.Fill, error) {
	fill := exchange.Fill{
		Price:       quotePrice,
		BaseAmount:  o.BaseAmount,
		QuoteAmount: o.QuoteAmount,
	}
	switch o.Side {
	case SideBuy:
		fill.BaseAmount = o.QuoteAmount / quotePrice * (1 - o.Fees)
	case SideSell:
		fill.QuoteAmount = o.BaseAmount * quotePrice * (1 - o.Fees)
	default:
		return exchange.Fill{}, fmt.Errorf("%w: %q", ErrUnsupportedSide, o.Side)
	}
	return fill, nil
}

// Live places real market orders. Sell failures are tolerated up to
// the tracker's threshold; a session holding a position should survive
// a transient venue error rather than abort with the position open.
type Live struct {
	trader     exchange.Trader
	sellErrors *exchange.ErrorTracker
}

func NewLive(trader exchange.Trader, sellErrors *exchange.ErrorTracker) *Live {
	if sellErrors == nil {
		sellErrors = exchange.NewErrorTracker("sell placement", 0)
	}
	return &Live{trader: trader, sellErrors: sellErrors}
}

func (l *Live) Fill(ctx context.Context, o *Order, _ float64) (exchange.Fill, error) {
	switch o.Side {
	case SideBuy:
		fill, err := l.trader.MarketBuy(ctx, o.Symbol, o.QuoteAmount)
		if err != nil {
			return exchange.Fill{}, &ExecError{OrderUID: o.UID, Side: o.Side, Fatal: true, Err: err}
		}
		return fill, nil
	case SideSell:
		fill, err := l.trader.MarketSell(ctx, o.Symbol, o.BaseAmount)
		if err != nil {
			fatal := l.sellErrors.Failure(err) != nil
			return exchange.Fill{}, &ExecError{OrderUID: o.UID, Side: o.Side, Fatal: fatal, Err: err}
		}
		l.sellErrors.Success()
		return fill, nil
	default:
		return exchange.Fill{}, fmt.Errorf("%w: %q", ErrUnsupportedSide, o.Side)
	}
}
