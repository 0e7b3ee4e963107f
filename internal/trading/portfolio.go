package trading

import (
	"fmt"
	"time"

	"rudder/internal/store"
)

// Portfolio tracks the quote/base balances of one session and derives
// its KPIs. All derived fields are recomputed by Update, never stored
// independently.
type Portfolio struct {
	BotUID          string
	DT              time.Time
	QuotePrice      float64
	QuotePriceInit  float64
	QuoteAmountInit float64
	QuoteAmount     float64
	BaseAmount      float64
	QuoteExposed    float64
	QuoteValue      float64
	AssetPerf       float64
	Performance     float64
	IntratradeCum   time.Duration
	IntertradeCum   time.Duration
	NBuyOrders      int
	NSellOrders     int
	FeesTaker       float64

	lastBuyDT  time.Time
	lastSellDT time.Time
}

func NewPortfolio(botUID string, quoteAmountInit, feesTaker float64) *Portfolio {
	return &Portfolio{
		BotUID:          botUID,
		QuoteAmountInit: quoteAmountInit,
		QuoteAmount:     quoteAmountInit,
		FeesTaker:       feesTaker,
	}
}

// Reset restores initial balances and pins the initial quote price the
// asset-performance baseline is computed against.
func (p *Portfolio) Reset(dt time.Time, quotePrice float64) {
	p.QuoteAmount = p.QuoteAmountInit
	p.BaseAmount = 0
	p.QuotePriceInit = quotePrice
	p.NBuyOrders = 0
	p.NSellOrders = 0
	p.IntratradeCum = 0
	p.IntertradeCum = 0
	p.lastBuyDT = time.Time{}
	p.lastSellDT = time.Time{}
	p.Update(dt, quotePrice)
}

// UpdateOrder applies one executed order to the balances. Buys enter a
// trade (intertrade time ends), sells leave it (intratrade time ends).
func (p *Portfolio) UpdateOrder(o *Order) error {
	switch o.Side {
	case SideBuy:
		p.QuoteAmount -= o.QuoteAmount
		p.BaseAmount += o.BaseAmount
		p.NBuyOrders++
		if !p.lastSellDT.IsZero() {
			p.IntertradeCum += o.DTClosed.Sub(p.lastSellDT)
		}
		p.lastBuyDT = o.DTClosed
	case SideSell:
		p.QuoteAmount += o.QuoteAmount
		p.BaseAmount -= o.BaseAmount
		p.NSellOrders++
		if !p.lastBuyDT.IsZero() {
			p.IntratradeCum += o.DTClosed.Sub(p.lastBuyDT)
		}
		p.lastSellDT = o.DTClosed
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedSide, o.Side)
	}
	return nil
}

// Update recomputes the derived fields against the given price.
// Exposure is valued at the taker fee because leaving the position is
// a market order.
func (p *Portfolio) Update(dt time.Time, quotePrice float64) {
	p.DT = dt
	p.QuotePrice = quotePrice
	p.QuoteExposed = p.BaseAmount * quotePrice * (1 - p.FeesTaker)
	p.QuoteValue = p.QuoteAmount + p.QuoteExposed
	if p.QuoteAmountInit != 0 {
		p.Performance = p.QuoteValue / p.QuoteAmountInit
	}
	if p.QuotePriceInit != 0 {
		p.AssetPerf = quotePrice / p.QuotePriceInit
	}
}

// Snapshot captures the current state as a persistable record.
func (p *Portfolio) Snapshot() store.PortfolioRecord {
	return store.PortfolioRecord{
		BotUID:          p.BotUID,
		DT:              p.DT,
		QuotePrice:      p.QuotePrice,
		BaseAmount:      p.BaseAmount,
		QuoteAmount:     p.QuoteAmount,
		QuoteExposed:    p.QuoteExposed,
		QuoteValue:      p.QuoteValue,
		Performance:     p.Performance,
		AssetPerf:       p.AssetPerf,
		QuoteAmountInit: p.QuoteAmountInit,
		QuotePriceInit:  p.QuotePriceInit,
		NBuyExecuted:    p.NBuyOrders,
		NSellExecuted:   p.NSellOrders,
		DTIntratrade:    p.IntratradeCum,
		DTIntertrade:    p.IntertradeCum,
	}
}

// Report renders a one-line human summary.
func (p *Portfolio) Report() string {
	return fmt.Sprintf(
		"value=%.6f perf=%.4f asset_perf=%.4f trades=%d/%d intratrade=%s intertrade=%s",
		p.QuoteValue, p.Performance, p.AssetPerf,
		p.NBuyOrders, p.NSellOrders, p.IntratradeCum, p.IntertradeCum,
	)
}
