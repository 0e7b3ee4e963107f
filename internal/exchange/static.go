package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rudder/internal/market"
)

// StaticData serves a fixed in-memory candle series. Backtest tuning
// trials share one so each trial does not refetch the same window, and
// tests use it as a deterministic feed.
type StaticData struct {
	symbol  string
	candles []market.Candle
	fees    Fees

	// cursor emulates the passage of time for LastOHLCV; each call
	// reveals one more bar.
	cursor int
}

var _ MarketData = (*StaticData)(nil)

func NewStaticData(symbol string, candles []market.Candle, fees Fees) *StaticData {
	sorted := make([]market.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpenTime < sorted[j].OpenTime })
	return &StaticData{symbol: strings.ToUpper(symbol), candles: sorted, fees: fees}
}

func (d *StaticData) HistoricOHLCV(_ context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	if !strings.EqualFold(symbol, d.symbol) {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	startMs, endMs := tf.AlignRange(start.UnixMilli(), end.UnixMilli())
	var out []market.Candle
	for _, c := range d.candles {
		if c.OpenTime >= startMs && c.OpenTime <= endMs {
			out = append(out, c)
		}
	}
	return out, nil
}

func (d *StaticData) LastOHLCV(_ context.Context, symbol string, _ market.Timeframe, n int, closedOnly bool) ([]market.Candle, error) {
	if !strings.EqualFold(symbol, d.symbol) {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	if d.cursor < len(d.candles) {
		d.cursor++
	}
	visible := d.candles[:d.cursor]
	if closedOnly && len(visible) > 0 {
		visible = visible[:len(visible)-1]
	}
	return market.Tail(visible, n), nil
}

func (d *StaticData) TradingFees(context.Context, string) (Fees, error) {
	return d.fees, nil
}
