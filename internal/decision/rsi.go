package decision

import (
	"fmt"

	"rudder/internal/market"

	"github.com/markcheno/go-talib"
)

// rsiModel buys oversold bars and sells overbought ones, judged on the
// closing price RSI.
type rsiModel struct {
	params     Params
	period     int
	oversold   float64
	overbought float64
}

func newRSIModel(params Params) (Model, error) {
	m := &rsiModel{
		params:     params.Clone(),
		period:     int(params.Get("period", 14)),
		oversold:   params.Get("oversold", 30),
		overbought: params.Get("overbought", 70),
	}
	if m.period < 2 {
		return nil, fmt.Errorf("rsi period must be >= 2, got %d", m.period)
	}
	if m.oversold >= m.overbought {
		return nil, fmt.Errorf("rsi oversold (%v) must be below overbought (%v)", m.oversold, m.overbought)
	}
	return m, nil
}

func (m *rsiModel) Name() string   { return "rsi" }
func (m *rsiModel) Params() Params { return m.params.Clone() }
func (m *rsiModel) Lookback() int  { return m.period + 1 }

func (m *rsiModel) Fit([]market.Candle) error { return nil }

func (m *rsiModel) Predict(candles []market.Candle) []Signal {
	signals := make([]Signal, len(candles))
	for i, c := range candles {
		signals[i] = Signal{DT: c.DT(), Action: ActionPass}
	}
	if len(candles) <= m.period {
		return signals
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	rsi := talib.Rsi(closes, m.period)
	for i := m.period; i < len(rsi); i++ {
		switch {
		case rsi[i] < m.oversold:
			signals[i].Action = ActionBuy
		case rsi[i] > m.overbought:
			signals[i].Action = ActionSell
		}
	}
	return signals
}
