package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"rudder/internal/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrader scripts venue responses for the live backend.
type fakeTrader struct {
	buyErr  error
	sellErr error
	fill    exchange.Fill
}

func (f *fakeTrader) MarketBuy(context.Context, string, float64) (exchange.Fill, error) {
	if f.buyErr != nil {
		return exchange.Fill{}, f.buyErr
	}
	return f.fill, nil
}

func (f *fakeTrader) MarketSell(context.Context, string, float64) (exchange.Fill, error) {
	if f.sellErr != nil {
		return exchange.Fill{}, f.sellErr
	}
	return f.fill, nil
}

func liveOrder(t *testing.T, side Side) *Order {
	t.Helper()
	spec := OrderSpec{
		BotUID:    "bot",
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Side:      side,
		DTOpen:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if side == SideBuy {
		spec.QuoteAmount = 100
	} else {
		spec.BaseAmount = 0.01
	}
	o, err := NewOrder(KindMarket, spec)
	require.NoError(t, err)
	return o
}

func TestLiveBuyFailureIsFatal(t *testing.T) {
	venue := errors.New("insufficient balance")
	backend := NewLive(&fakeTrader{buyErr: venue}, exchange.NewErrorTracker("sell placement", 5))

	_, err := backend.Fill(context.Background(), liveOrder(t, SideBuy), 42000)
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, execErr.Fatal)
	assert.ErrorIs(t, err, venue)
}

func TestLiveSellFailureToleratedThenFatal(t *testing.T) {
	venue := errors.New("dial tcp: timeout")
	trader := &fakeTrader{sellErr: venue}
	backend := NewLive(trader, exchange.NewErrorTracker("sell placement", 2))
	order := liveOrder(t, SideSell)

	for i := 0; i < 2; i++ {
		_, err := backend.Fill(context.Background(), order, 42000)
		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.False(t, execErr.Fatal, "failure %d should stay transient", i+1)
	}
	_, err := backend.Fill(context.Background(), order, 42000)
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, execErr.Fatal)
}

func TestLiveSellSuccessResetsFailureRun(t *testing.T) {
	venue := errors.New("dial tcp: timeout")
	trader := &fakeTrader{sellErr: venue}
	tracker := exchange.NewErrorTracker("sell placement", 1)
	backend := NewLive(trader, tracker)
	order := liveOrder(t, SideSell)

	_, err := backend.Fill(context.Background(), order, 42000)
	require.Error(t, err)
	assert.Equal(t, 1, tracker.Count())

	trader.sellErr = nil
	trader.fill = exchange.Fill{Price: 42000, BaseAmount: 0.01, QuoteAmount: 420}
	_, err = backend.Fill(context.Background(), order, 42000)
	require.NoError(t, err)
	assert.Equal(t, 0, tracker.Count())
}

func TestLiveFillUsesVenueAmounts(t *testing.T) {
	trader := &fakeTrader{fill: exchange.Fill{Price: 41990.5, BaseAmount: 0.00238, QuoteAmount: 99.93}}
	backend := NewLive(trader, nil)

	fill, err := backend.Fill(context.Background(), liveOrder(t, SideBuy), 42000)
	require.NoError(t, err)
	assert.Equal(t, 41990.5, fill.Price)
	assert.Equal(t, 0.00238, fill.BaseAmount)
}
