package model

import "gorm.io/datatypes"

// BotModel mirrors store.BotRecord. One row per session, replaced on
// every snapshot.
type BotModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	UID           string         `gorm:"column:uid;uniqueIndex"`
	Name          string         `gorm:"column:name"`
	Symbol        string         `gorm:"column:symbol;index"`
	Timeframe     string         `gorm:"column:timeframe"`
	Mode          string         `gorm:"column:mode"`
	Status        string         `gorm:"column:status;index"`
	StatusComment string         `gorm:"column:status_comment"`
	Progress      float64        `gorm:"column:progress"`
	DTStart       int64          `gorm:"column:dt_start"`
	DTEnd         int64          `gorm:"column:dt_end"`
	ParamsJSON    datatypes.JSON `gorm:"column:params_json"`
	OrdersJSON    datatypes.JSON `gorm:"column:orders_json"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (BotModel) TableName() string { return "bots" }

// OrderModel mirrors store.OrderRecord, keyed by (uid, bot_uid).
type OrderModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	UID           string  `gorm:"column:uid;uniqueIndex:idx_orders_uid_bot"`
	BotUID        string  `gorm:"column:bot_uid;uniqueIndex:idx_orders_uid_bot;index"`
	Side          string  `gorm:"column:side"`
	Kind          string  `gorm:"column:kind"`
	Status        string  `gorm:"column:status;index"`
	Fees          float64 `gorm:"column:fees"`
	DTOpen        int64   `gorm:"column:dt_open;index"`
	DTExecuted    int64   `gorm:"column:dt_executed"`
	DTCancelled   int64   `gorm:"column:dt_cancelled"`
	PriceExec     float64 `gorm:"column:price_exec"`
	BaseAmount    float64 `gorm:"column:base_amount"`
	QuoteAmount   float64 `gorm:"column:quote_amount"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (OrderModel) TableName() string { return "orders" }

// PortfolioModel mirrors store.PortfolioRecord, keyed by (bot_uid, dt).
type PortfolioModel struct {
	ID              int64   `gorm:"column:id;primaryKey"`
	BotUID          string  `gorm:"column:bot_uid;uniqueIndex:idx_portfolio_bot_dt;index"`
	DT              int64   `gorm:"column:dt;uniqueIndex:idx_portfolio_bot_dt"`
	QuotePrice      float64 `gorm:"column:quote_price"`
	BaseAmount      float64 `gorm:"column:base_amount"`
	QuoteAmount     float64 `gorm:"column:quote_amount"`
	QuoteExposed    float64 `gorm:"column:quote_exposed"`
	QuoteValue      float64 `gorm:"column:quote_value"`
	Performance     float64 `gorm:"column:performance"`
	AssetPerf       float64 `gorm:"column:asset_performance"`
	QuoteAmountInit float64 `gorm:"column:quote_amount_init"`
	QuotePriceInit  float64 `gorm:"column:quote_price_init"`
	NBuyExecuted    int     `gorm:"column:n_buy_executed"`
	NSellExecuted   int     `gorm:"column:n_sell_executed"`
	DTIntratradeMs  int64   `gorm:"column:dt_intratrade_ms"`
	DTIntertradeMs  int64   `gorm:"column:dt_intertrade_ms"`
	UpdatedAtUnix   int64   `gorm:"column:updated_at"`
}

func (PortfolioModel) TableName() string { return "portfolio" }
