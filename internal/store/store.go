package store

import (
	"context"
	"time"
)

// Endpoint names one persisted collection.
type Endpoint string

const (
	EndpointBots      Endpoint = "bots"
	EndpointOrders    Endpoint = "orders"
	EndpointPortfolio Endpoint = "portfolio"
)

// BotRecord is one session snapshot. Re-persisting the same UID replaces
// the previous snapshot.
type BotRecord struct {
	UID           string             `json:"uid"`
	Name          string             `json:"name"`
	Symbol        string             `json:"symbol"`
	Timeframe     string             `json:"timeframe"`
	Mode          string             `json:"mode"`
	Status        string             `json:"status"`
	StatusComment string             `json:"status_comment,omitempty"`
	Progress      float64            `json:"progress"`
	DTStart       time.Time          `json:"dt_start"`
	DTEnd         time.Time          `json:"dt_end"`
	Params        map[string]float64 `json:"params"`

	// Order UID lists, grouped by side and status.
	BuyOpen      []string `json:"buy_open"`
	BuyExecuted  []string `json:"buy_executed"`
	SellOpen     []string `json:"sell_open"`
	SellExecuted []string `json:"sell_executed"`
	Cancelled    []string `json:"cancelled"`
}

// OrderRecord is the persisted form of an order. The identity key is
// (uid, bot_uid); re-persisting after a state change upserts in place.
type OrderRecord struct {
	UID         string    `json:"uid"`
	BotUID      string    `json:"bot_uid"`
	Side        string    `json:"side"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Fees        float64   `json:"fees"`
	DTOpen      time.Time `json:"dt_open"`
	DTExecuted  time.Time `json:"dt_executed,omitempty"`
	DTCancelled time.Time `json:"dt_cancelled,omitempty"`
	PriceExec   float64   `json:"price_exec"`
	BaseAmount  float64   `json:"base_amount"`
	QuoteAmount float64   `json:"quote_amount"`
}

// PortfolioRecord is one portfolio snapshot, keyed by (bot_uid, dt).
type PortfolioRecord struct {
	BotUID          string        `json:"bot_uid"`
	DT              time.Time     `json:"dt"`
	QuotePrice      float64       `json:"quote_price"`
	BaseAmount      float64       `json:"base_amount"`
	QuoteAmount     float64       `json:"quote_amount"`
	QuoteExposed    float64       `json:"quote_exposed"`
	QuoteValue      float64       `json:"quote_value"`
	Performance     float64       `json:"performance"`
	AssetPerf       float64       `json:"asset_performance"`
	QuoteAmountInit float64       `json:"quote_amount_init"`
	QuotePriceInit  float64       `json:"quote_price_init"`
	NBuyExecuted    int           `json:"n_buy_executed"`
	NSellExecuted   int           `json:"n_sell_executed"`
	DTIntratrade    time.Duration `json:"dt_intratrade"`
	DTIntertrade    time.Duration `json:"dt_intertrade"`
}

// Store persists session state. Update upserts a single record, Put
// upserts a batch; both are idempotent on the endpoint's identity key.
type Store interface {
	Update(ctx context.Context, endpoint Endpoint, record any) error
	Put(ctx context.Context, endpoint Endpoint, records []any) error

	GetBot(ctx context.Context, uid string) (BotRecord, bool, error)
	ListBots(ctx context.Context, limit int) ([]BotRecord, error)
	ListOrders(ctx context.Context, botUID string, limit int) ([]OrderRecord, error)
	ListPortfolio(ctx context.Context, botUID string, limit int) ([]PortfolioRecord, error)

	Close() error
}
