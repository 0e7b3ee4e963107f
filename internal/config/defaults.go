package config

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Exchange.Name == "" {
		c.Exchange.Name = "binance"
	}
	if c.Exchange.DataDir == "" {
		c.Exchange.DataDir = "data"
	}
	if c.Exchange.FetchPauseSec == 0 {
		c.Exchange.FetchPauseSec = 30
	}
	if c.Exchange.FetchMaxTries == 0 {
		c.Exchange.FetchMaxTries = 3
	}
	if c.Exchange.TimeoutSec == 0 {
		c.Exchange.TimeoutSec = 10
	}
	if c.Exchange.FetchChunkSize == 0 {
		c.Exchange.FetchChunkSize = 1000
	}
	if c.Exchange.SellErrorTol == 0 {
		c.Exchange.SellErrorTol = 3
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/rudder.db"
	}
	if c.Bus.Prefix == "" {
		c.Bus.Prefix = "rudder"
	}
	if c.Session.Mode == "" {
		c.Session.Mode = "vectorized-backtest"
	}
	if c.Session.BuyOn == "" {
		c.Session.BuyOn = "close"
	}
	if c.Session.SellOn == "" {
		c.Session.SellOn = "close"
	}
	if c.Session.QuoteAmountInit == 0 {
		c.Session.QuoteAmountInit = 1
	}
	if c.Session.SnapshotEveryTicks == 0 {
		c.Session.SnapshotEveryTicks = 1000
	}
	if c.Session.OrderKind == "" {
		c.Session.OrderKind = "market"
	}
	if c.Session.LivePollTimeoutSec == 0 {
		c.Session.LivePollTimeoutSec = 120
	}
	if c.Invest.QuoteRate == 0 {
		c.Invest.QuoteRate = 1
	}
	if c.Tuning.Method == "" {
		c.Tuning.Method = "grid"
	}
	if c.Tuning.TargetKPI == "" {
		c.Tuning.TargetKPI = "performance"
	}
	if c.Tuning.IterMax == 0 {
		c.Tuning.IterMax = 50
	}
	if c.Tuning.CoolingRate == 0 {
		c.Tuning.CoolingRate = 0.95
	}
	if c.Tuning.Workers == 0 {
		c.Tuning.Workers = 1
	}
}
