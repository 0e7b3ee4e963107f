package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rudder/internal/logger"
	"rudder/internal/market"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const maxKlinesLimit = 1000

// BinanceConfig wires the spot client.
type BinanceConfig struct {
	APIKey         string
	APISecret      string
	UseTestnet     bool
	Timeout        time.Duration
	FetchChunkSize int
	FetchPause     time.Duration
	FetchMaxTries  int
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.FetchChunkSize <= 0 || c.FetchChunkSize > maxKlinesLimit {
		c.FetchChunkSize = maxKlinesLimit
	}
	if c.FetchPause <= 0 {
		c.FetchPause = 30 * time.Second
	}
	if c.FetchMaxTries <= 0 {
		c.FetchMaxTries = 3
	}
	return c
}

// Binance serves market data and places spot orders via the go-binance SDK.
type Binance struct {
	cfg    BinanceConfig
	client *binance.Client
}

var (
	_ MarketData = (*Binance)(nil)
	_ Trader     = (*Binance)(nil)
)

func NewBinance(cfg BinanceConfig) *Binance {
	final := cfg.withDefaults()
	if final.UseTestnet {
		binance.UseTestnet = true
	}
	client := binance.NewClient(final.APIKey, final.APISecret)
	client.HTTPClient = &http.Client{Timeout: final.Timeout}
	return &Binance{cfg: final, client: client}
}

// HistoricOHLCV pages through klines in chunks until the whole range is
// covered. Each chunk is retried a bounded number of times with a pause
// between tries; exhausting the retries is fatal.
func (b *Binance) HistoricOHLCV(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	symbol = cleanSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	startMs, endMs := tf.AlignRange(start.UnixMilli(), end.UnixMilli())
	step := tf.DurationMillis()
	out := make([]market.Candle, 0, tf.ExpectedCandles(startMs, endMs))
	since := startMs
	for since <= endMs {
		chunk, err := b.fetchChunk(ctx, symbol, tf, since, endMs)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}
		for _, c := range chunk {
			if c.OpenTime >= since && c.OpenTime <= endMs {
				out = append(out, c)
			}
		}
		next := chunk[len(chunk)-1].OpenTime + step
		if next <= since {
			break
		}
		since = next
	}
	return out, nil
}

func (b *Binance) fetchChunk(ctx context.Context, symbol string, tf market.Timeframe, since, end int64) ([]market.Candle, error) {
	var lastErr error
	for try := 1; try <= b.cfg.FetchMaxTries; try++ {
		kls, err := b.client.NewKlinesService().
			Symbol(symbol).
			Interval(tf.SourceInterval).
			StartTime(since).
			EndTime(end).
			Limit(b.cfg.FetchChunkSize).
			Do(ctx)
		if err == nil {
			return klinesToCandles(kls), nil
		}
		lastErr = err
		logger.Warnf("fetch ohlcv %s@%s since=%d failed (try %d/%d): %v",
			symbol, tf.Key, since, try, b.cfg.FetchMaxTries, err)
		if try == b.cfg.FetchMaxTries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.cfg.FetchPause):
		}
	}
	return nil, fmt.Errorf("fetch ohlcv %s@%s exhausted %d tries: %w",
		symbol, tf.Key, b.cfg.FetchMaxTries, lastErr)
}

// LastOHLCV fetches the latest bars. Binance always returns the
// still-forming bar last, so one extra bar is requested and dropped
// when only closed bars are wanted.
func (b *Binance) LastOHLCV(ctx context.Context, symbol string, tf market.Timeframe, n int, closedOnly bool) ([]market.Candle, error) {
	symbol = cleanSymbol(symbol)
	if n <= 0 {
		n = 1
	}
	limit := n
	if closedOnly {
		limit = n + 1
	}
	if limit > maxKlinesLimit {
		limit = maxKlinesLimit
	}
	kls, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(tf.SourceInterval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	candles := klinesToCandles(kls)
	if closedOnly && len(candles) > 0 {
		candles = candles[:len(candles)-1]
	}
	return market.Tail(candles, n), nil
}

func (b *Binance) TradingFees(ctx context.Context, symbol string) (Fees, error) {
	symbol = cleanSymbol(symbol)
	details, err := b.client.NewTradeFeeService().Symbol(symbol).Do(ctx)
	if err != nil {
		return Fees{}, fmt.Errorf("query trade fees %s: %w", symbol, err)
	}
	for _, d := range details {
		if d == nil || !strings.EqualFold(d.Symbol, symbol) {
			continue
		}
		return Fees{
			Maker: parseFloat(d.MakerCommission),
			Taker: parseFloat(d.TakerCommission),
		}, nil
	}
	return Fees{}, fmt.Errorf("no trade fees returned for %s", symbol)
}

// MarketBuy spends quoteAmount of the quote currency at market.
func (b *Binance) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (Fill, error) {
	symbol = cleanSymbol(symbol)
	resp, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(formatAmount(quoteAmount)).
		Do(ctx)
	if err != nil {
		return Fill{}, fmt.Errorf("market buy %s: %w", symbol, err)
	}
	return responseToFill(resp), nil
}

// MarketSell sells baseAmount of the base currency at market. The
// quantity is rounded down to the symbol's lot step first; selling an
// amount above the wallet balance by a float hair would be rejected.
func (b *Binance) MarketSell(ctx context.Context, symbol string, baseAmount float64) (Fill, error) {
	symbol = cleanSymbol(symbol)
	qty, err := b.roundToLotStep(ctx, symbol, baseAmount)
	if err != nil {
		return Fill{}, err
	}
	resp, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(qty).
		Do(ctx)
	if err != nil {
		return Fill{}, fmt.Errorf("market sell %s: %w", symbol, err)
	}
	return responseToFill(resp), nil
}

func (b *Binance) roundToLotStep(ctx context.Context, symbol string, amount float64) (string, error) {
	info, err := b.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("query exchange info %s: %w", symbol, err)
	}
	for _, s := range info.Symbols {
		if !strings.EqualFold(s.Symbol, symbol) {
			continue
		}
		if f := s.LotSizeFilter(); f != nil {
			step, err := decimal.NewFromString(f.StepSize)
			if err != nil || step.IsZero() {
				break
			}
			qty := decimal.NewFromFloat(amount).Div(step).Floor().Mul(step)
			return qty.String(), nil
		}
	}
	return formatAmount(amount), nil
}

func responseToFill(resp *binance.CreateOrderResponse) Fill {
	fill := Fill{
		DT:          time.UnixMilli(resp.TransactTime),
		BaseAmount:  parseFloat(resp.ExecutedQuantity),
		QuoteAmount: parseFloat(resp.CummulativeQuoteQuantity),
	}
	if fill.BaseAmount > 0 {
		fill.Price = fill.QuoteAmount / fill.BaseAmount
	} else if len(resp.Fills) > 0 {
		fill.Price = parseFloat(resp.Fills[0].Price)
	}
	return fill
}

func klinesToCandles(kls []*binance.Kline) []market.Candle {
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	return out
}

func cleanSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
