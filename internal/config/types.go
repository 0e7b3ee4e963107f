package config

// Config is the top-level configuration passed explicitly into every
// constructor. There is no global configuration object.
type Config struct {
	App      AppConfig      `toml:"app"`
	Exchange ExchangeConfig `toml:"exchange"`
	Store    StoreConfig    `toml:"store"`
	Bus      BusConfig      `toml:"bus"`
	Session  SessionConfig  `toml:"session"`
	Decision DecisionConfig `toml:"decision"`
	Invest   InvestConfig   `toml:"invest"`
	Tuning   TuningConfig   `toml:"tuning"`
}

type AppConfig struct {
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

type ExchangeConfig struct {
	Name           string  `toml:"name"`
	DataDir        string  `toml:"data_dir"`
	UseTestnet     bool    `toml:"use_testnet"`
	APIKey         string  `toml:"api_key"`
	APISecret      string  `toml:"api_secret"`
	FetchPauseSec  int     `toml:"fetch_pause_seconds"`
	FetchMaxTries  int     `toml:"fetch_max_tries"`
	TimeoutSec     int     `toml:"timeout_seconds"`
	FeesMaker      float64 `toml:"fees_maker"`
	FeesTaker      float64 `toml:"fees_taker"`
	SellErrorTol   int     `toml:"sell_error_tolerance"`
	FetchChunkSize int     `toml:"fetch_chunk_size"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type BusConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"channel_prefix"`
}

// WindowConfig bounds one OHLCV data window (RFC3339 timestamps).
type WindowConfig struct {
	Symbol    string `toml:"symbol"`
	Timeframe string `toml:"timeframe"`
	Start     string `toml:"start"`
	End       string `toml:"end"`
}

type SessionConfig struct {
	Name               string       `toml:"name"`
	Mode               string       `toml:"mode"`
	Symbol             string       `toml:"symbol"`
	Timeframe          string       `toml:"timeframe"`
	BuyOn              string       `toml:"bt_buy_on"`
	SellOn             string       `toml:"bt_sell_on"`
	DiffThreshOrders   int          `toml:"diff_thresh_buy_sell_orders"`
	QuoteAmountInit    float64      `toml:"quote_amount_init"`
	SnapshotEveryTicks int          `toml:"snapshot_every_ticks"`
	OrderKind          string       `toml:"order_kind"`
	Trading            WindowConfig `toml:"trading"`
	DecisionData       WindowConfig `toml:"decision_data"`
	Fit                WindowConfig `toml:"fit"`
	LivePollTimeoutSec int          `toml:"live_poll_timeout_seconds"`
}

type DecisionConfig struct {
	Model  string             `toml:"model"`
	Params map[string]float64 `toml:"params"`
}

type InvestConfig struct {
	QuoteRate float64 `toml:"quote_rate"`
}

type TuningConfig struct {
	Method      string  `toml:"method"` // grid | anneal
	TargetKPI   string  `toml:"target_kpi"`
	MinTrades   int     `toml:"min_trades"`
	IterMax     int     `toml:"iter_max"`
	CoolingRate float64 `toml:"cooling_rate"`
	NChanges    int     `toml:"nchanges"`
	Workers     int     `toml:"workers"`
	SpecPath    string  `toml:"spec_path"`
	Seed        int64   `toml:"seed"`
}
