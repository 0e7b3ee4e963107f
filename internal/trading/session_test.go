package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"rudder/internal/config"
	"rudder/internal/decision"
	"rudder/internal/exchange"
	"rudder/internal/market"
	"rudder/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// makeCandles builds n hourly bars starting at t0 with rising prices.
func makeCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		open := 100.0 + 10*float64(i)
		out[i] = market.Candle{
			OpenTime:  t0.Add(time.Duration(i) * time.Hour).UnixMilli(),
			CloseTime: t0.Add(time.Duration(i+1) * time.Hour).UnixMilli(),
			Open:      open,
			High:      open + 5,
			Low:       open - 5,
			Close:     open + 2,
			Volume:    1,
		}
	}
	return out
}

// scriptModel replays fixed actions keyed by bar open time.
type scriptModel struct {
	actions map[int64]decision.Action
}

func (m *scriptModel) Name() string              { return "script" }
func (m *scriptModel) Params() decision.Params   { return decision.Params{} }
func (m *scriptModel) Lookback() int             { return 1 }
func (m *scriptModel) Fit([]market.Candle) error { return nil }
func (m *scriptModel) Predict(cs []market.Candle) []decision.Signal {
	out := make([]decision.Signal, len(cs))
	for i, c := range cs {
		action, ok := m.actions[c.OpenTime]
		if !ok {
			action = decision.ActionPass
		}
		out[i] = decision.Signal{DT: c.DT(), Action: action}
	}
	return out
}

func sessionCfg(mode string, bars int) config.SessionConfig {
	return config.SessionConfig{
		Name:            "test",
		Mode:            mode,
		Symbol:          "BTCUSDT",
		Timeframe:       "1h",
		BuyOn:           "open",
		SellOn:          "open",
		QuoteAmountInit: 1,
		OrderKind:       "market",
		Trading: config.WindowConfig{
			Start: t0.Format(time.RFC3339),
			End:   t0.Add(time.Duration(bars-1) * time.Hour).Format(time.RFC3339),
		},
	}
}

func newTestSession(t *testing.T, mode string, candles []market.Candle, model decision.Model) (*Session, *memstore.MemStore) {
	t.Helper()
	st := memstore.New()
	session, err := NewSession(SessionDeps{
		Config: sessionCfg(mode, len(candles)),
		Model:  model,
		Invest: NewLongInvest(1),
		Data:   exchange.NewStaticData("BTCUSDT", candles, exchange.Fees{}),
		Store:  st,
	})
	require.NoError(t, err)
	return session, st
}

func TestAdmissionControlConsecutiveBuys(t *testing.T) {
	candles := makeCandles(10)
	session, _ := newTestSession(t, "vectorized-backtest", candles, &scriptModel{})
	require.NoError(t, session.start(context.Background()))

	for i := 0; i < 5; i++ {
		_, err := session.buy(context.Background(), t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, countSide(session.ordersOpen, SideBuy))

	// With one more buy than sell outstanding, only a sell passes.
	assert.False(t, session.buyAllowed())
	assert.True(t, session.sellAllowed())
}

func TestChangePointsCollapseRepeatedDecisions(t *testing.T) {
	mk := func(i int, a decision.Action) decision.Signal {
		return decision.Signal{DT: t0.Add(time.Duration(i) * time.Hour), Action: a}
	}
	points := changePoints([]decision.Signal{
		mk(0, decision.ActionPass),
		mk(1, decision.ActionBuy),
		mk(2, decision.ActionBuy),
		mk(3, decision.ActionPass),
		mk(4, decision.ActionSell),
		mk(5, decision.ActionSell),
		mk(6, decision.ActionBuy),
	})
	require.Len(t, points, 3)
	assert.Equal(t, decision.ActionBuy, points[0].Action)
	assert.Equal(t, t0.Add(time.Hour), points[0].DT)
	assert.Equal(t, decision.ActionSell, points[1].Action)
	assert.Equal(t, decision.ActionBuy, points[2].Action)
}

func TestTradeEventsBuySortsBeforeSellAtSameTimestamp(t *testing.T) {
	dt := t0.Add(time.Hour)
	events := buildTradeEvents([]decision.Signal{
		{DT: dt, Action: decision.ActionSell},
		{DT: dt, Action: decision.ActionBuy},
	})
	require.Len(t, events, 2)
	assert.Equal(t, SideBuy, events[0].side)
	assert.Equal(t, SideSell, events[1].side)
}

func TestTradeEventsDropSellsBeforeFirstBuy(t *testing.T) {
	events := buildTradeEvents([]decision.Signal{
		{DT: t0, Action: decision.ActionSell},
		{DT: t0.Add(2 * time.Hour), Action: decision.ActionBuy},
		{DT: t0.Add(4 * time.Hour), Action: decision.ActionSell},
	})
	require.Len(t, events, 2)
	assert.Equal(t, SideBuy, events[0].side)
	assert.Equal(t, t0.Add(2*time.Hour), events[0].dt)
	assert.Equal(t, SideSell, events[1].side)
}

func TestVectorizedBacktestEndToEnd(t *testing.T) {
	candles := makeCandles(10)
	model := &scriptModel{actions: map[int64]decision.Action{
		candles[1].OpenTime: decision.ActionBuy,
		candles[3].OpenTime: decision.ActionSell,
	}}
	session, st := newTestSession(t, "vectorized-backtest", candles, model)
	require.NoError(t, session.Run(context.Background()))
	assert.Equal(t, StatusFinished, session.Status())

	orders, err := st.ListOrders(context.Background(), session.UID(), 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "buy", orders[0].Side)
	assert.Equal(t, "executed", orders[0].Status)
	assert.Equal(t, 110.0, orders[0].PriceExec)
	assert.Equal(t, "sell", orders[1].Side)
	assert.Equal(t, 130.0, orders[1].PriceExec)

	// buy spends 1 quote at open[1]=110, sell releases at open[3]=130.
	wantPerf := 130.0 / 110.0
	p := session.Portfolio()
	assert.InDelta(t, wantPerf, p.Performance, 1e-12)
	assert.InDelta(t, 0, p.BaseAmount, 1e-12)

	snaps, err := st.ListPortfolio(context.Background(), session.UID(), 0)
	require.NoError(t, err)
	// One snapshot per trade event plus the forced terminal one.
	require.Len(t, snaps, 3)
	last := snaps[len(snaps)-1]
	assert.Equal(t, candles[9].OpenTime, last.DT.UnixMilli())
	assert.InDelta(t, wantPerf, last.Performance, 1e-12)
	assert.Equal(t, 1, last.NBuyExecuted)
	assert.Equal(t, 1, last.NSellExecuted)
}

// recordingModel remembers the candles it was asked to predict over.
type recordingModel struct {
	scriptModel
	predicted []market.Candle
}

func (m *recordingModel) Predict(cs []market.Candle) []decision.Signal {
	m.predicted = cs
	return m.scriptModel.Predict(cs)
}

func TestSessionRejectsInvalidDecisionDataWindow(t *testing.T) {
	cfg := sessionCfg("vectorized-backtest", 10)
	cfg.DecisionData = config.WindowConfig{Start: "not-a-timestamp", End: "also-bad"}
	_, err := NewSession(SessionDeps{
		Config: cfg,
		Model:  &scriptModel{},
		Data:   exchange.NewStaticData("BTCUSDT", makeCandles(10), exchange.Fees{}),
		Store:  memstore.New(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decision data window")
}

func TestVectorizedPredictsOverDecisionDataWindow(t *testing.T) {
	candles := makeCandles(12)
	model := &recordingModel{scriptModel: scriptModel{actions: map[int64]decision.Action{
		candles[1].OpenTime: decision.ActionBuy, // precedes the trading window
		candles[3].OpenTime: decision.ActionBuy,
		candles[5].OpenTime: decision.ActionSell,
	}}}
	cfg := sessionCfg("vectorized-backtest", 12)
	cfg.Trading.Start = t0.Add(2 * time.Hour).Format(time.RFC3339)
	cfg.DecisionData = config.WindowConfig{
		Start: t0.Format(time.RFC3339),
		End:   t0.Add(11 * time.Hour).Format(time.RFC3339),
	}
	st := memstore.New()
	session, err := NewSession(SessionDeps{
		Config: cfg,
		Model:  model,
		Invest: NewLongInvest(1),
		Data:   exchange.NewStaticData("BTCUSDT", candles, exchange.Fees{}),
		Store:  st,
	})
	require.NoError(t, err)
	require.NoError(t, session.Run(context.Background()))

	// The model saw the whole decision-data range, shifted by one bar.
	require.NotEmpty(t, model.predicted)
	assert.Equal(t, candles[1].OpenTime, model.predicted[0].OpenTime)
	assert.Equal(t, candles[11].OpenTime, model.predicted[len(model.predicted)-1].OpenTime)

	// The buy dated before the trading window never becomes an order;
	// only the in-window pair trades, at open[3]=130 and open[5]=150.
	orders, listErr := st.ListOrders(context.Background(), session.UID(), 0)
	require.NoError(t, listErr)
	require.Len(t, orders, 2)
	assert.Equal(t, "buy", orders[0].Side)
	assert.Equal(t, 130.0, orders[0].PriceExec)
	assert.Equal(t, "sell", orders[1].Side)
	assert.Equal(t, 150.0, orders[1].PriceExec)
}

func TestStepwiseBacktestEndToEnd(t *testing.T) {
	candles := makeCandles(5)
	model := &scriptModel{actions: map[int64]decision.Action{
		candles[1].OpenTime: decision.ActionBuy,
		candles[3].OpenTime: decision.ActionSell,
	}}
	session, st := newTestSession(t, "stepwise-backtest", candles, model)
	require.NoError(t, session.Run(context.Background()))
	assert.Equal(t, StatusFinished, session.Status())

	orders, err := st.ListOrders(context.Background(), session.UID(), 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	// Orders execute on the bar-open tick of their decision bar.
	assert.Equal(t, 110.0, orders[0].PriceExec)
	assert.Equal(t, 130.0, orders[1].PriceExec)

	p := session.Portfolio()
	assert.InDelta(t, 130.0/110.0, p.Performance, 1e-12)

	// Snapshots are upserted per (bot, dt); ticks of one bar share a
	// timestamp, so one snapshot per bar survives.
	snaps, err := st.ListPortfolio(context.Background(), session.UID(), 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 5)
}

func TestLiveLoopAbortsOnCancelAfterTrading(t *testing.T) {
	candles := makeCandles(6)
	model := &scriptModel{actions: map[int64]decision.Action{
		candles[0].OpenTime: decision.ActionBuy,
		candles[1].OpenTime: decision.ActionBuy,
		candles[2].OpenTime: decision.ActionBuy,
	}}
	session, st := newTestSession(t, "live-test", candles, model)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := session.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusAborted, session.Status())

	// Historical bar timestamps mean the loop never sleeps, so the
	// whole feed is consumed; admission control still caps the buys.
	orders, listErr := st.ListOrders(context.Background(), session.UID(), 0)
	require.NoError(t, listErr)
	assert.Len(t, orders, 1)
	assert.Equal(t, "buy", orders[0].Side)
	assert.Equal(t, "executed", orders[0].Status)
}

func TestLiveFatalExecutionErrorAbortsSession(t *testing.T) {
	candles := makeCandles(3)
	model := &scriptModel{actions: map[int64]decision.Action{
		candles[0].OpenTime: decision.ActionBuy,
		candles[1].OpenTime: decision.ActionBuy,
		candles[2].OpenTime: decision.ActionBuy,
	}}
	st := memstore.New()
	session, err := NewSession(SessionDeps{
		Config:             sessionCfg("live", 3),
		Model:              model,
		Invest:             NewLongInvest(1),
		Data:               exchange.NewStaticData("BTCUSDT", candles, exchange.Fees{}),
		Trader:             &fakeTrader{buyErr: errors.New("insufficient balance")},
		Store:              st,
		SellErrorTolerance: 2,
	})
	require.NoError(t, err)

	err = session.Run(context.Background())
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, execErr.Fatal)
	assert.Equal(t, StatusAborted, session.Status())
	assert.NotEmpty(t, session.statusComment)

	// The aborted state and its comment reach the persisted bot record.
	bot, ok, getErr := st.GetBot(context.Background(), session.UID())
	require.NoError(t, getErr)
	require.True(t, ok)
	assert.Equal(t, string(StatusAborted), bot.Status)
	assert.NotEmpty(t, bot.StatusComment)
}

func TestSessionStartMintsDeterministicUID(t *testing.T) {
	uid1 := mintUID("a", "BTCUSDT", "1h", "live", t0)
	uid2 := mintUID("a", "BTCUSDT", "1h", "live", t0)
	uid3 := mintUID("a", "BTCUSDT", "1h", "live", t0.Add(time.Nanosecond))
	assert.Equal(t, uid1, uid2)
	assert.NotEqual(t, uid1, uid3)
	assert.Len(t, uid1, 16)
}
