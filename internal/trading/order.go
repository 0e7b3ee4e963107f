package trading

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Status of an order. Executed and cancelled are terminal.
type Status string

const (
	StatusOpen      Status = "open"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
)

// Kind names a concrete order behavior.
type Kind string

const (
	KindMarket Kind = "market"
	// KindTrailingMarket is reserved for a stop-distance variant that
	// arms above a trigger price and cancels when undercut. Not built
	// yet; the cancelled state exists for kinds like this one.
	KindTrailingMarket Kind = "trailing-market"
)

var (
	ErrUnsupportedSide = errors.New("unsupported order side")
	ErrTerminalOrder   = errors.New("order already in a terminal state")
)

// ExecError wraps a live fill failure. Fatal means the session's error
// tolerance is exhausted and the session must abort.
type ExecError struct {
	OrderUID string
	Side     Side
	Fatal    bool
	Err      error
}

func (e *ExecError) Error() string {
	severity := "transient"
	if e.Fatal {
		severity = "fatal"
	}
	return fmt.Sprintf("%s %s order %s execution failed: %v", severity, e.Side, e.OrderUID, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// OrderSpec carries everything an order constructor needs. Exactly one
// of QuoteAmount (buy) or BaseAmount (sell) is set at creation; the
// other side is derived on execution.
type OrderSpec struct {
	BotUID      string
	Symbol      string
	Timeframe   string
	Side        Side
	DTOpen      time.Time
	Fees        float64
	QuoteAmount float64
	BaseAmount  float64
	Backend     ExecutionBackend
}

// Order is a single order lifecycle state machine.
type Order struct {
	UID         string
	BotUID      string
	Symbol      string
	Timeframe   string
	Side        Side
	Kind        Kind
	Status      Status
	QuoteAmount float64
	BaseAmount  float64
	QuotePrice  float64
	DTOpen      time.Time
	DTClosed    time.Time
	Fees        float64

	backend ExecutionBackend
}

// orderKinds is the closed kind registry. One entry per concrete order
// behavior; adding a kind means adding a constructor here.
var orderKinds = map[Kind]func(OrderSpec) (*Order, error){
	KindMarket: newMarketOrder,
}

// NewOrder builds an open order of the given kind.
func NewOrder(kind Kind, spec OrderSpec) (*Order, error) {
	build, ok := orderKinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown order kind %q (supported: %v)", kind, OrderKinds())
	}
	return build(spec)
}

// OrderKinds returns the registered kinds, sorted.
func OrderKinds() []Kind {
	kinds := make([]Kind, 0, len(orderKinds))
	for k := range orderKinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func newMarketOrder(spec OrderSpec) (*Order, error) {
	if spec.Side != SideBuy && spec.Side != SideSell {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSide, spec.Side)
	}
	backend := spec.Backend
	if backend == nil {
		backend = Simulated{}
	}
	return &Order{
		UID:         uuid.NewString(),
		BotUID:      spec.BotUID,
		Symbol:      spec.Symbol,
		Timeframe:   spec.Timeframe,
		Side:        spec.Side,
		Kind:        KindMarket,
		Status:      StatusOpen,
		QuoteAmount: spec.QuoteAmount,
		BaseAmount:  spec.BaseAmount,
		DTOpen:      spec.DTOpen,
		Fees:        spec.Fees,
		backend:     backend,
	}, nil
}

// IsExecutable reports whether the order may fill at now. A market
// order is eligible as soon as its open time has arrived.
func (o *Order) IsExecutable(now time.Time) bool {
	return o.Status == StatusOpen && !now.Before(o.DTOpen)
}

// Execute fills the order against quotePrice, deriving the unset
// amount from the set one, fee adjusted. The caller checks
// IsExecutable first. Calling on a terminal order is an error.
func (o *Order) Execute(ctx context.Context, now time.Time, quotePrice float64) error {
	if o.Status != StatusOpen {
		return fmt.Errorf("%w: %s is %s", ErrTerminalOrder, o.UID, o.Status)
	}
	fill, err := o.backend.Fill(ctx, o, quotePrice)
	if err != nil {
		return err
	}
	o.Status = StatusExecuted
	o.DTClosed = now
	o.QuotePrice = fill.Price
	o.BaseAmount = fill.BaseAmount
	o.QuoteAmount = fill.QuoteAmount
	return nil
}

// Cancel moves an open order to cancelled.
func (o *Order) Cancel(now time.Time) error {
	if o.Status != StatusOpen {
		return fmt.Errorf("%w: %s is %s", ErrTerminalOrder, o.UID, o.Status)
	}
	o.Status = StatusCancelled
	o.DTClosed = now
	return nil
}
