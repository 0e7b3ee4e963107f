package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
  http_addr: ":8080"
exchange:
  api_key: key
  api_secret: secret
  fees_taker: 0.001
session:
  name: btc-rsi
  mode: stepwise-backtest
  symbol: BTCUSDT
  timeframe: 1h
  bt_buy_on: open
  bt_sell_on: open
  diff_thresh_buy_sell_orders: 2
  quote_amount_init: 1000
  trading:
    start: "2024-01-01T00:00:00Z"
    end: "2024-03-01T00:00:00Z"
decision:
  model: rsi
  params:
    period: 14
    oversold: 30
invest:
  quote_rate: 0.5
tuning:
  method: anneal
  iter_max: 100
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, "stepwise-backtest", cfg.Session.Mode)
	assert.Equal(t, "open", cfg.Session.BuyOn)
	assert.Equal(t, 2, cfg.Session.DiffThreshOrders)
	assert.Equal(t, 1000.0, cfg.Session.QuoteAmountInit)
	assert.Equal(t, "2024-01-01T00:00:00Z", cfg.Session.Trading.Start)
	assert.Equal(t, "rsi", cfg.Decision.Model)
	assert.Equal(t, 14.0, cfg.Decision.Params["period"])
	assert.Equal(t, 0.5, cfg.Invest.QuoteRate)
	assert.Equal(t, "anneal", cfg.Tuning.Method)
	assert.Equal(t, 100, cfg.Tuning.IterMax)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
session:
  symbol: BTCUSDT
  timeframe: 1h
decision:
  model: rsi
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "binance", cfg.Exchange.Name)
	assert.Equal(t, 30, cfg.Exchange.FetchPauseSec)
	assert.Equal(t, 1000, cfg.Exchange.FetchChunkSize)
	// A session must survive a few transient sell failures out of the
	// box rather than abort with the position still open.
	assert.Equal(t, 3, cfg.Exchange.SellErrorTol)
	assert.Equal(t, "data/rudder.db", cfg.Store.Path)
	assert.Equal(t, "rudder", cfg.Bus.Prefix)
	assert.Equal(t, "vectorized-backtest", cfg.Session.Mode)
	assert.Equal(t, "close", cfg.Session.BuyOn)
	assert.Equal(t, "close", cfg.Session.SellOn)
	assert.Equal(t, 1.0, cfg.Session.QuoteAmountInit)
	assert.Equal(t, 1000, cfg.Session.SnapshotEveryTicks)
	assert.Equal(t, "market", cfg.Session.OrderKind)
	assert.Equal(t, 120, cfg.Session.LivePollTimeoutSec)
	assert.Equal(t, 1.0, cfg.Invest.QuoteRate)
	assert.Equal(t, "grid", cfg.Tuning.Method)
	assert.Equal(t, "performance", cfg.Tuning.TargetKPI)
	assert.Equal(t, 0.95, cfg.Tuning.CoolingRate)
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	path := writeConfig(t, `
session:
  symbol: BTCUSDT
  timeframe: 1h
  mode: warp-speed
decision:
  model: rsi
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.mode")
}

func TestLoadRejectsMissingSymbol(t *testing.T) {
	path := writeConfig(t, `
session:
  timeframe: 1h
decision:
  model: rsi
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.symbol")
}

func TestLoadRejectsQuoteRateOutOfRange(t *testing.T) {
	path := writeConfig(t, `
session:
  symbol: BTCUSDT
  timeframe: 1h
decision:
  model: rsi
invest:
  quote_rate: 1.5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invest.quote_rate")
}

func TestLoadRejectsUnknownTargetKPI(t *testing.T) {
	path := writeConfig(t, `
session:
  symbol: BTCUSDT
  timeframe: 1h
decision:
  model: rsi
tuning:
  target_kpi: sharpe
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tuning.target_kpi")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	_, err = Load("")
	assert.Error(t, err)
}
