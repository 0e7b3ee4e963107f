package trading

// InvestModel sizes orders from the current portfolio state.
type InvestModel interface {
	// QuoteSize is how much quote currency the next buy should spend.
	QuoteSize(p *Portfolio) float64
	// BaseSize is how much base currency the next sell should release.
	BaseSize(p *Portfolio) float64
}

// LongInvest commits a fixed fraction of the free quote balance on
// every buy and exits the whole position on every sell.
type LongInvest struct {
	QuoteRate float64
}

var _ InvestModel = LongInvest{}

func NewLongInvest(quoteRate float64) LongInvest {
	if quoteRate <= 0 || quoteRate > 1 {
		quoteRate = 1
	}
	return LongInvest{QuoteRate: quoteRate}
}

func (m LongInvest) QuoteSize(p *Portfolio) float64 {
	return p.QuoteAmount * m.QuoteRate
}

func (m LongInvest) BaseSize(p *Portfolio) float64 {
	return p.BaseAmount
}
