package market

import (
	"fmt"
	"strings"
	"time"
)

// Candle is a single OHLCV bar. Times are Unix milliseconds, open-time
// is the canonical bar identity.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// DT returns the bar open time as time.Time.
func (c Candle) DT() time.Time {
	return time.UnixMilli(c.OpenTime)
}

// PriceField selects which bar price a backtest hypothesis executes on.
type PriceField string

const (
	PriceOpen  PriceField = "open"
	PriceHigh  PriceField = "high"
	PriceLow   PriceField = "low"
	PriceClose PriceField = "close"
)

// ParsePriceField validates a price hypothesis name.
func ParsePriceField(input string) (PriceField, error) {
	switch PriceField(strings.ToLower(strings.TrimSpace(input))) {
	case PriceOpen:
		return PriceOpen, nil
	case PriceHigh:
		return PriceHigh, nil
	case PriceLow:
		return PriceLow, nil
	case PriceClose:
		return PriceClose, nil
	}
	return "", fmt.Errorf("unsupported price field: %s", input)
}

// Price returns the selected price of the bar.
func (c Candle) Price(field PriceField) float64 {
	switch field {
	case PriceOpen:
		return c.Open
	case PriceHigh:
		return c.High
	case PriceLow:
		return c.Low
	case PriceClose:
		return c.Close
	}
	return c.Close
}

// ShiftOne returns a series where each bar keeps its own open time but
// carries the OHLCV values of the previous bar. The first bar has no
// predecessor and is dropped. Decision models are fed this view so a
// decision at bar t only ever sees data strictly before t.
func ShiftOne(candles []Candle) []Candle {
	if len(candles) < 2 {
		return nil
	}
	out := make([]Candle, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		c := candles[i-1]
		c.OpenTime = candles[i].OpenTime
		c.CloseTime = candles[i].CloseTime
		out[i-1] = c
	}
	return out
}

// Tick is one intrabar price touch used by the stepwise simulation.
type Tick struct {
	OpenTime int64
	Quote    float64
}

// Flatten expands each bar into the ordered open→low→high touches,
// emulating a plausible intrabar path without tick data. All three
// ticks share the bar's open time.
func Flatten(candles []Candle) []Tick {
	out := make([]Tick, 0, 3*len(candles))
	for _, c := range candles {
		out = append(out,
			Tick{OpenTime: c.OpenTime, Quote: c.Open},
			Tick{OpenTime: c.OpenTime, Quote: c.Low},
			Tick{OpenTime: c.OpenTime, Quote: c.High},
		)
	}
	return out
}

// Tail returns the last n bars (or all of them when fewer exist).
func Tail(candles []Candle, n int) []Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
