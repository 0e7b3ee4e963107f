package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"rudder/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTrackerToleratesBoundedRun(t *testing.T) {
	tracker := NewErrorTracker("sell placement", 2)
	cause := errors.New("dial tcp: timeout")

	assert.NoError(t, tracker.Failure(cause))
	assert.NoError(t, tracker.Failure(cause))
	assert.Equal(t, 2, tracker.Count())

	err := tracker.Failure(cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	tracker.Success()
	assert.Equal(t, 0, tracker.Count())
	assert.NoError(t, tracker.Failure(cause))
}

func TestErrorTrackerZeroToleranceFailsImmediately(t *testing.T) {
	tracker := NewErrorTracker("buy placement", 0)
	assert.Error(t, tracker.Failure(errors.New("rejected")))
}

func testCandles(n int) []market.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{
			OpenTime:  start.Add(time.Duration(i) * time.Hour).UnixMilli(),
			CloseTime: start.Add(time.Duration(i+1) * time.Hour).UnixMilli(),
			Open:      100 + float64(i),
			High:      106 + float64(i),
			Low:       95 + float64(i),
			Close:     101 + float64(i),
		}
	}
	return out
}

func TestStaticDataHistoricWindow(t *testing.T) {
	candles := testCandles(10)
	tf, _ := market.ParseTimeframe("1h")
	data := NewStaticData("btcusdt", candles, Fees{Taker: 0.001})

	got, err := data.HistoricOHLCV(context.Background(), "BTCUSDT",
		tf, time.UnixMilli(candles[2].OpenTime), time.UnixMilli(candles[5].OpenTime))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, candles[2].OpenTime, got[0].OpenTime)
	assert.Equal(t, candles[5].OpenTime, got[3].OpenTime)

	_, err = data.HistoricOHLCV(context.Background(), "ETHUSDT",
		tf, time.UnixMilli(0), time.UnixMilli(candles[5].OpenTime))
	assert.Error(t, err)
}

func TestStaticDataLastOHLCVReplaysTime(t *testing.T) {
	candles := testCandles(3)
	tf, _ := market.ParseTimeframe("1h")
	data := NewStaticData("BTCUSDT", candles, Fees{})

	// Each poll reveals one more bar until the feed is exhausted.
	for i := 0; i < 3; i++ {
		got, err := data.LastOHLCV(context.Background(), "BTCUSDT", tf, 1, false)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, candles[i].OpenTime, got[0].OpenTime)
	}
	got, err := data.LastOHLCV(context.Background(), "BTCUSDT", tf, 1, false)
	require.NoError(t, err)
	assert.Equal(t, candles[2].OpenTime, got[0].OpenTime)
}

func TestStaticDataClosedOnlyDropsFormingBar(t *testing.T) {
	candles := testCandles(4)
	tf, _ := market.ParseTimeframe("1h")
	data := NewStaticData("BTCUSDT", candles, Fees{})

	got, err := data.LastOHLCV(context.Background(), "BTCUSDT", tf, 2, true)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = data.LastOHLCV(context.Background(), "BTCUSDT", tf, 2, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, candles[0].OpenTime, got[0].OpenTime)
}

func TestStaticDataFees(t *testing.T) {
	data := NewStaticData("BTCUSDT", nil, Fees{Maker: 0.0005, Taker: 0.001})
	fees, err := data.TradingFees(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.001, fees.Taker)
	assert.Equal(t, 0.0005, fees.Maker)
}
