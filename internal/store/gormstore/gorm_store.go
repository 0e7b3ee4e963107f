package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rudder/internal/store"
	storemodel "rudder/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type botModel = storemodel.BotModel
type orderModel = storemodel.OrderModel
type portfolioModel = storemodel.PortfolioModel

// GormStore persists bot, order and portfolio records in SQLite via Gorm.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (or creates) the SQLite database at path and
// migrates the schema.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&botModel{}, &orderModel{}, &portfolioModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep a little parallelism for concurrent HTTP reads
	// while the session writes.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Update upserts a single record on the endpoint's identity key.
func (s *GormStore) Update(ctx context.Context, endpoint store.Endpoint, record any) error {
	return s.Put(ctx, endpoint, []any{record})
}

// Put upserts a batch of records. All records must match the endpoint's
// record type.
func (s *GormStore) Put(ctx context.Context, endpoint store.Endpoint, records []any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if len(records) == 0 {
		return nil
	}
	switch endpoint {
	case store.EndpointBots:
		models := make([]botModel, 0, len(records))
		for _, r := range records {
			rec, ok := r.(store.BotRecord)
			if !ok {
				return fmt.Errorf("endpoint %s: unexpected record type %T", endpoint, r)
			}
			models = append(models, newBotModel(rec))
		}
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "uid"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "symbol", "timeframe", "mode", "status", "status_comment",
					"progress", "dt_start", "dt_end", "params_json", "orders_json", "updated_at",
				}),
			}).
			Create(&models).Error
	case store.EndpointOrders:
		models := make([]orderModel, 0, len(records))
		for _, r := range records {
			rec, ok := r.(store.OrderRecord)
			if !ok {
				return fmt.Errorf("endpoint %s: unexpected record type %T", endpoint, r)
			}
			models = append(models, newOrderModel(rec))
		}
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "uid"}, {Name: "bot_uid"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"side", "kind", "status", "fees", "dt_open", "dt_executed",
					"dt_cancelled", "price_exec", "base_amount", "quote_amount", "updated_at",
				}),
			}).
			Create(&models).Error
	case store.EndpointPortfolio:
		models := make([]portfolioModel, 0, len(records))
		for _, r := range records {
			rec, ok := r.(store.PortfolioRecord)
			if !ok {
				return fmt.Errorf("endpoint %s: unexpected record type %T", endpoint, r)
			}
			models = append(models, newPortfolioModel(rec))
		}
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "bot_uid"}, {Name: "dt"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"quote_price", "base_amount", "quote_amount", "quote_exposed",
					"quote_value", "performance", "asset_performance",
					"quote_amount_init", "quote_price_init", "n_buy_executed",
					"n_sell_executed", "dt_intratrade_ms", "dt_intertrade_ms", "updated_at",
				}),
			}).
			Create(&models).Error
	default:
		return fmt.Errorf("unknown endpoint %q", endpoint)
	}
}

func (s *GormStore) GetBot(ctx context.Context, uid string) (store.BotRecord, bool, error) {
	if s == nil || s.db == nil {
		return store.BotRecord{}, false, fmt.Errorf("gorm store not initialized")
	}
	var m botModel
	if err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.BotRecord{}, false, nil
		}
		return store.BotRecord{}, false, err
	}
	return botModelToRecord(m), true, nil
}

func (s *GormStore) ListBots(ctx context.Context, limit int) ([]store.BotRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []botModel
	if err := s.db.WithContext(ctx).
		Order("dt_start DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.BotRecord, 0, len(models))
	for _, m := range models {
		out = append(out, botModelToRecord(m))
	}
	return out, nil
}

func (s *GormStore) ListOrders(ctx context.Context, botUID string, limit int) ([]store.OrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	var models []orderModel
	if err := s.db.WithContext(ctx).
		Where("bot_uid = ?", botUID).
		Order("dt_open ASC, id ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.OrderRecord, 0, len(models))
	for _, m := range models {
		out = append(out, orderModelToRecord(m))
	}
	return out, nil
}

func (s *GormStore) ListPortfolio(ctx context.Context, botUID string, limit int) ([]store.PortfolioRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 || limit > 50000 {
		limit = 10000
	}
	var models []portfolioModel
	if err := s.db.WithContext(ctx).
		Where("bot_uid = ?", botUID).
		Order("dt ASC, id ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.PortfolioRecord, 0, len(models))
	for _, m := range models {
		out = append(out, portfolioModelToRecord(m))
	}
	return out, nil
}

// --------------------------- Model Helpers ------------------------------

type botOrderLists struct {
	BuyOpen      []string `json:"buy_open"`
	BuyExecuted  []string `json:"buy_executed"`
	SellOpen     []string `json:"sell_open"`
	SellExecuted []string `json:"sell_executed"`
	Cancelled    []string `json:"cancelled"`
}

func newBotModel(rec store.BotRecord) botModel {
	paramsJSON, _ := json.Marshal(rec.Params)
	ordersJSON, _ := json.Marshal(botOrderLists{
		BuyOpen:      emptyIfNil(rec.BuyOpen),
		BuyExecuted:  emptyIfNil(rec.BuyExecuted),
		SellOpen:     emptyIfNil(rec.SellOpen),
		SellExecuted: emptyIfNil(rec.SellExecuted),
		Cancelled:    emptyIfNil(rec.Cancelled),
	})
	return botModel{
		UID:           rec.UID,
		Name:          rec.Name,
		Symbol:        strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		Timeframe:     rec.Timeframe,
		Mode:          rec.Mode,
		Status:        rec.Status,
		StatusComment: rec.StatusComment,
		Progress:      rec.Progress,
		DTStart:       timeToMillis(rec.DTStart),
		DTEnd:         timeToMillis(rec.DTEnd),
		ParamsJSON:    datatypes.JSON(paramsJSON),
		OrdersJSON:    datatypes.JSON(ordersJSON),
		UpdatedAtUnix: time.Now().UnixMilli(),
	}
}

func botModelToRecord(m botModel) store.BotRecord {
	rec := store.BotRecord{
		UID:           m.UID,
		Name:          m.Name,
		Symbol:        m.Symbol,
		Timeframe:     m.Timeframe,
		Mode:          m.Mode,
		Status:        m.Status,
		StatusComment: m.StatusComment,
		Progress:      m.Progress,
		DTStart:       millisToTime(m.DTStart),
		DTEnd:         millisToTime(m.DTEnd),
	}
	if len(m.ParamsJSON) > 0 {
		_ = json.Unmarshal(m.ParamsJSON, &rec.Params)
	}
	if len(m.OrdersJSON) > 0 {
		var lists botOrderLists
		if err := json.Unmarshal(m.OrdersJSON, &lists); err == nil {
			rec.BuyOpen = lists.BuyOpen
			rec.BuyExecuted = lists.BuyExecuted
			rec.SellOpen = lists.SellOpen
			rec.SellExecuted = lists.SellExecuted
			rec.Cancelled = lists.Cancelled
		}
	}
	return rec
}

func newOrderModel(rec store.OrderRecord) orderModel {
	return orderModel{
		UID:           rec.UID,
		BotUID:        rec.BotUID,
		Side:          rec.Side,
		Kind:          rec.Kind,
		Status:        rec.Status,
		Fees:          rec.Fees,
		DTOpen:        timeToMillis(rec.DTOpen),
		DTExecuted:    timeToMillis(rec.DTExecuted),
		DTCancelled:   timeToMillis(rec.DTCancelled),
		PriceExec:     rec.PriceExec,
		BaseAmount:    rec.BaseAmount,
		QuoteAmount:   rec.QuoteAmount,
		UpdatedAtUnix: time.Now().UnixMilli(),
	}
}

func orderModelToRecord(m orderModel) store.OrderRecord {
	return store.OrderRecord{
		UID:         m.UID,
		BotUID:      m.BotUID,
		Side:        m.Side,
		Kind:        m.Kind,
		Status:      m.Status,
		Fees:        m.Fees,
		DTOpen:      millisToTime(m.DTOpen),
		DTExecuted:  millisToTime(m.DTExecuted),
		DTCancelled: millisToTime(m.DTCancelled),
		PriceExec:   m.PriceExec,
		BaseAmount:  m.BaseAmount,
		QuoteAmount: m.QuoteAmount,
	}
}

func newPortfolioModel(rec store.PortfolioRecord) portfolioModel {
	return portfolioModel{
		BotUID:          rec.BotUID,
		DT:              timeToMillis(rec.DT),
		QuotePrice:      rec.QuotePrice,
		BaseAmount:      rec.BaseAmount,
		QuoteAmount:     rec.QuoteAmount,
		QuoteExposed:    rec.QuoteExposed,
		QuoteValue:      rec.QuoteValue,
		Performance:     rec.Performance,
		AssetPerf:       rec.AssetPerf,
		QuoteAmountInit: rec.QuoteAmountInit,
		QuotePriceInit:  rec.QuotePriceInit,
		NBuyExecuted:    rec.NBuyExecuted,
		NSellExecuted:   rec.NSellExecuted,
		DTIntratradeMs:  rec.DTIntratrade.Milliseconds(),
		DTIntertradeMs:  rec.DTIntertrade.Milliseconds(),
		UpdatedAtUnix:   time.Now().UnixMilli(),
	}
}

func portfolioModelToRecord(m portfolioModel) store.PortfolioRecord {
	return store.PortfolioRecord{
		BotUID:          m.BotUID,
		DT:              millisToTime(m.DT),
		QuotePrice:      m.QuotePrice,
		BaseAmount:      m.BaseAmount,
		QuoteAmount:     m.QuoteAmount,
		QuoteExposed:    m.QuoteExposed,
		QuoteValue:      m.QuoteValue,
		Performance:     m.Performance,
		AssetPerf:       m.AssetPerf,
		QuoteAmountInit: m.QuoteAmountInit,
		QuotePriceInit:  m.QuotePriceInit,
		NBuyExecuted:    m.NBuyExecuted,
		NSellExecuted:   m.NSellExecuted,
		DTIntratrade:    time.Duration(m.DTIntratradeMs) * time.Millisecond,
		DTIntertrade:    time.Duration(m.DTIntertradeMs) * time.Millisecond,
	}
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
