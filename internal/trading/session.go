package trading

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"rudder/internal/bus"
	"rudder/internal/config"
	"rudder/internal/decision"
	"rudder/internal/exchange"
	"rudder/internal/logger"
	"rudder/internal/market"
	"rudder/internal/store"
)

// Mode selects how a session executes its decision stream.
type Mode string

const (
	ModeVectorized Mode = "vectorized-backtest"
	ModeStepwise   Mode = "stepwise-backtest"
	ModeLiveTest   Mode = "live-test"
	ModeLive       Mode = "live"
)

func ParseMode(input string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(input))) {
	case ModeVectorized:
		return ModeVectorized, nil
	case ModeStepwise:
		return ModeStepwise, nil
	case ModeLiveTest:
		return ModeLiveTest, nil
	case ModeLive:
		return ModeLive, nil
	}
	return "", fmt.Errorf("unsupported session mode: %s", input)
}

// SessionStatus is the lifecycle state. Finished and aborted are
// terminal.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusStarted  SessionStatus = "started"
	StatusFinished SessionStatus = "finished"
	StatusAborted  SessionStatus = "aborted"
)

// timeWindow is a parsed OHLCV range.
type timeWindow struct {
	start time.Time
	end   time.Time
}

func (w timeWindow) empty() bool { return w.start.IsZero() && w.end.IsZero() }

func parseWindow(cfg config.WindowConfig) (timeWindow, error) {
	var w timeWindow
	if strings.TrimSpace(cfg.Start) == "" && strings.TrimSpace(cfg.End) == "" {
		return w, nil
	}
	start, err := time.Parse(time.RFC3339, cfg.Start)
	if err != nil {
		return w, fmt.Errorf("invalid window start %q: %w", cfg.Start, err)
	}
	end, err := time.Parse(time.RFC3339, cfg.End)
	if err != nil {
		return w, fmt.Errorf("invalid window end %q: %w", cfg.End, err)
	}
	if end.Before(start) {
		return w, fmt.Errorf("window end %s before start %s", cfg.End, cfg.Start)
	}
	return timeWindow{start: start, end: end}, nil
}

// SessionDeps wires one session. Trader is only needed for live mode.
type SessionDeps struct {
	Config             config.SessionConfig
	Model              decision.Model
	Invest             InvestModel
	Data               exchange.MarketData
	Trader             exchange.Trader
	Store              store.Store
	Bus                bus.Publisher
	SellErrorTolerance int
}

// Session owns one run of the trading engine: the portfolio, the order
// maps and the execution strategy. Everything mutates synchronously on
// the calling goroutine; nothing is shared across sessions.
type Session struct {
	name      string
	symbol    string
	tf        market.Timeframe
	mode      Mode
	orderKind Kind

	uid           string
	status        SessionStatus
	statusComment string
	progress      float64
	dtStart       time.Time
	dtEnd         time.Time

	ordersOpen      map[string]*Order
	ordersExecuted  map[string]*Order
	ordersCancelled map[string]*Order

	portfolio *Portfolio
	model     decision.Model
	invest    InvestModel
	data      exchange.MarketData
	store     store.Store
	bus       bus.Publisher
	backend   ExecutionBackend
	fees      exchange.Fees

	buyOn           market.PriceField
	sellOn          market.PriceField
	diffThresh      int
	snapshotEvery   int
	quoteAmountInit float64
	pollTimeout     time.Duration

	tradingWin  timeWindow
	decisionWin timeWindow
	fitWin      timeWindow

	windowCache map[string][]market.Candle
}

// NewSession validates the configuration and builds a waiting session.
func NewSession(deps SessionDeps) (*Session, error) {
	cfg := deps.Config
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	tf, err := market.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	buyOn, err := market.ParsePriceField(cfg.BuyOn)
	if err != nil {
		return nil, err
	}
	sellOn, err := market.ParsePriceField(cfg.SellOn)
	if err != nil {
		return nil, err
	}
	tradingWin, err := parseWindow(cfg.Trading)
	if err != nil {
		return nil, fmt.Errorf("trading window: %w", err)
	}
	decisionWin, err := parseWindow(cfg.DecisionData)
	if err != nil {
		return nil, fmt.Errorf("decision data window: %w", err)
	}
	fitWin, err := parseWindow(cfg.Fit)
	if err != nil {
		return nil, fmt.Errorf("fit window: %w", err)
	}
	if (mode == ModeVectorized || mode == ModeStepwise) && tradingWin.empty() {
		return nil, fmt.Errorf("backtest mode %s requires a trading window", mode)
	}
	if deps.Model == nil {
		return nil, fmt.Errorf("decision model is required")
	}
	if deps.Data == nil {
		return nil, fmt.Errorf("market data source is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if mode == ModeLive && deps.Trader == nil {
		return nil, fmt.Errorf("live mode requires a trader")
	}

	var backend ExecutionBackend = Simulated{}
	if mode == ModeLive {
		tracker := exchange.NewErrorTracker("sell placement", deps.SellErrorTolerance)
		backend = NewLive(deps.Trader, tracker)
	}
	publisher := deps.Bus
	if publisher == nil {
		publisher = bus.Nop{}
	}
	invest := deps.Invest
	if invest == nil {
		invest = NewLongInvest(1)
	}
	snapshotEvery := cfg.SnapshotEveryTicks
	if snapshotEvery <= 0 {
		snapshotEvery = 1000
	}
	pollTimeout := time.Duration(cfg.LivePollTimeoutSec) * time.Second
	if pollTimeout <= 0 {
		pollTimeout = 2 * time.Minute
	}
	orderKind := Kind(cfg.OrderKind)
	if orderKind == "" {
		orderKind = KindMarket
	}
	if _, ok := orderKinds[orderKind]; !ok {
		return nil, fmt.Errorf("unknown order kind %q (supported: %v)", orderKind, OrderKinds())
	}

	return &Session{
		name:            cfg.Name,
		symbol:          strings.ToUpper(strings.TrimSpace(cfg.Symbol)),
		tf:              tf,
		mode:            mode,
		orderKind:       orderKind,
		status:          StatusWaiting,
		ordersOpen:      make(map[string]*Order),
		ordersExecuted:  make(map[string]*Order),
		ordersCancelled: make(map[string]*Order),
		model:           deps.Model,
		invest:          invest,
		data:            deps.Data,
		store:           deps.Store,
		bus:             publisher,
		backend:         backend,
		buyOn:           buyOn,
		sellOn:          sellOn,
		diffThresh:      cfg.DiffThreshOrders,
		snapshotEvery:   snapshotEvery,
		quoteAmountInit: cfg.QuoteAmountInit,
		pollTimeout:     pollTimeout,
		tradingWin:      tradingWin,
		decisionWin:     decisionWin,
		fitWin:          fitWin,
		windowCache:     make(map[string][]market.Candle),
	}, nil
}

func (s *Session) UID() string           { return s.uid }
func (s *Session) Status() SessionStatus { return s.status }
func (s *Session) Portfolio() *Portfolio { return s.portfolio }

// Run drives the whole lifecycle. Any error on the way, including
// context cancellation from a process signal, routes through abort,
// which still writes a final snapshot.
func (s *Session) Run(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		s.abort(context.WithoutCancel(ctx), err.Error())
		return err
	}
	var err error
	switch s.mode {
	case ModeVectorized:
		err = s.runVectorized(ctx)
	case ModeStepwise:
		err = s.runStepwise(ctx)
	case ModeLiveTest, ModeLive:
		err = s.runLive(ctx)
	}
	if err != nil {
		s.abort(context.WithoutCancel(ctx), err.Error())
		return err
	}
	return s.finish(ctx)
}

// start mints the uid, initializes fees and the portfolio, and fits
// the decision model.
func (s *Session) start(ctx context.Context) error {
	if s.status != StatusWaiting {
		return fmt.Errorf("session %s cannot start from status %s", s.uid, s.status)
	}
	s.dtStart = time.Now().UTC()
	s.uid = mintUID(s.name, s.symbol, s.tf.Key, string(s.mode), s.dtStart)

	fees, err := s.data.TradingFees(ctx, s.symbol)
	if err != nil {
		return fmt.Errorf("init trading fees: %w", err)
	}
	s.fees = fees
	s.portfolio = NewPortfolio(s.uid, s.quoteAmountInit, fees.Taker)

	if !s.fitWin.empty() {
		history, err := s.fetchWindow(ctx, s.fitWin)
		if err != nil {
			return fmt.Errorf("fetch fit window: %w", err)
		}
		if err := s.model.Fit(history); err != nil {
			return fmt.Errorf("fit decision model: %w", err)
		}
	}

	s.status = StatusStarted
	logger.Infof("session %s started: %s %s@%s model=%s", s.uid, s.mode, s.symbol, s.tf.Key, s.model.Name())
	s.persistBot(ctx)
	return nil
}

func (s *Session) finish(ctx context.Context) error {
	if s.status != StatusStarted {
		return fmt.Errorf("session %s cannot finish from status %s", s.uid, s.status)
	}
	s.progress = 1
	s.dtEnd = time.Now().UTC()
	s.status = StatusFinished
	s.persistBot(ctx)
	logger.InfoBlock(fmt.Sprintf("session %s finished\n%s", s.uid, s.summary()))
	return nil
}

// abort is best-effort: the final snapshot write must not mask the
// original failure.
func (s *Session) abort(ctx context.Context, comment string) {
	if s.status == StatusFinished || s.status == StatusAborted {
		return
	}
	s.status = StatusAborted
	s.statusComment = comment
	s.dtEnd = time.Now().UTC()
	if s.portfolio != nil {
		if err := s.store.Update(ctx, store.EndpointPortfolio, s.portfolio.Snapshot()); err != nil {
			logger.Warnf("session %s: final portfolio write failed: %v", s.uid, err)
		}
	}
	s.persistBot(ctx)
	logger.Errorf("session %s aborted: %s", s.uid, comment)
}

func (s *Session) summary() string {
	report := "no portfolio"
	if s.portfolio != nil {
		report = s.portfolio.Report()
	}
	return fmt.Sprintf("mode:      %s\nsymbol:    %s@%s\nduration:  %s\nportfolio: %s",
		s.mode, s.symbol, s.tf.Key, s.dtEnd.Sub(s.dtStart).Round(time.Millisecond), report)
}

func mintUID(name, symbol, timeframe, mode string, start time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d",
		name, symbol, timeframe, mode, start.UnixNano())))
	return hex.EncodeToString(sum[:])[:16]
}

// fetchWindow caches fetched OHLCV ranges so trading, decision and fit
// windows that alias each other hit the source once.
func (s *Session) fetchWindow(ctx context.Context, w timeWindow) ([]market.Candle, error) {
	key := fmt.Sprintf("%s|%s|%d|%d", s.symbol, s.tf.Key, w.start.UnixMilli(), w.end.UnixMilli())
	if cached, ok := s.windowCache[key]; ok {
		return cached, nil
	}
	candles, err := s.data.HistoricOHLCV(ctx, s.symbol, s.tf, w.start, w.end)
	if err != nil {
		return nil, err
	}
	s.windowCache[key] = candles
	return candles, nil
}

// ---------------------------- admission ----------------------------

func countSide(orders map[string]*Order, side Side) int {
	n := 0
	for _, o := range orders {
		if o.Side == side {
			n++
		}
	}
	return n
}

// sideDiff is (#buy open+executed) - (#sell open+executed).
func (s *Session) sideDiff() int {
	buys := countSide(s.ordersOpen, SideBuy) + countSide(s.ordersExecuted, SideBuy)
	sells := countSide(s.ordersOpen, SideSell) + countSide(s.ordersExecuted, SideSell)
	return buys - sells
}

func (s *Session) buyAllowed() bool {
	return s.sideDiff() <= s.diffThresh
}

func (s *Session) sellAllowed() bool {
	return s.sideDiff() == s.diffThresh+1
}

// buy creates and registers an open buy order sized by the invest
// model. A rejected admission check drops the request with a log line;
// that is expected pressure, not an error.
func (s *Session) buy(ctx context.Context, dt time.Time) (*Order, error) {
	if !s.buyAllowed() {
		logger.Debugf("session %s: buy at %s rejected (diff=%d thresh=%d)",
			s.uid, dt.Format(time.RFC3339), s.sideDiff(), s.diffThresh)
		return nil, nil
	}
	order, err := NewOrder(s.orderKind, OrderSpec{
		BotUID:      s.uid,
		Symbol:      s.symbol,
		Timeframe:   s.tf.Key,
		Side:        SideBuy,
		DTOpen:      dt,
		Fees:        s.fees.Taker,
		QuoteAmount: s.invest.QuoteSize(s.portfolio),
		Backend:     s.backend,
	})
	if err != nil {
		return nil, err
	}
	s.ordersOpen[order.UID] = order
	return order, nil
}

// sell mirrors buy for closing the position.
func (s *Session) sell(ctx context.Context, dt time.Time) (*Order, error) {
	if !s.sellAllowed() {
		logger.Debugf("session %s: sell at %s rejected (diff=%d thresh=%d)",
			s.uid, dt.Format(time.RFC3339), s.sideDiff(), s.diffThresh)
		return nil, nil
	}
	order, err := NewOrder(s.orderKind, OrderSpec{
		BotUID:     s.uid,
		Symbol:     s.symbol,
		Timeframe:  s.tf.Key,
		Side:       SideSell,
		DTOpen:     dt,
		Fees:       s.fees.Taker,
		BaseAmount: s.invest.BaseSize(s.portfolio),
		Backend:    s.backend,
	})
	if err != nil {
		return nil, err
	}
	s.ordersOpen[order.UID] = order
	return order, nil
}

// applySignal routes one decision to the matching order factory.
func (s *Session) applySignal(ctx context.Context, sig decision.Signal, dt time.Time) error {
	switch sig.Action {
	case decision.ActionBuy:
		_, err := s.buy(ctx, dt)
		return err
	case decision.ActionSell:
		_, err := s.sell(ctx, dt)
		return err
	case decision.ActionPass:
		return nil
	default:
		return fmt.Errorf("unsupported decision action %q", sig.Action)
	}
}

// updateOrders tries to execute every open order against the given
// price. The key set is snapshotted first because execution removes
// entries from the open map mid-scan. Transient live failures leave
// the order open for the next pass; fatal ones abort.
func (s *Session) updateOrders(ctx context.Context, now time.Time, quotePrice float64) error {
	uids := make([]string, 0, len(s.ordersOpen))
	for uid := range s.ordersOpen {
		uids = append(uids, uid)
	}
	for _, uid := range uids {
		order, ok := s.ordersOpen[uid]
		if !ok || !order.IsExecutable(now) {
			continue
		}
		if err := order.Execute(ctx, now, quotePrice); err != nil {
			var execErr *ExecError
			if errors.As(err, &execErr) && !execErr.Fatal {
				logger.Warnf("session %s: %v", s.uid, err)
				continue
			}
			return err
		}
		delete(s.ordersOpen, uid)
		s.ordersExecuted[uid] = order
		if err := s.portfolio.UpdateOrder(order); err != nil {
			return err
		}
		rec := orderRecord(order)
		if err := s.store.Update(ctx, store.EndpointOrders, rec); err != nil {
			return fmt.Errorf("persist order %s: %w", order.UID, err)
		}
		s.publish("orders", rec)
		logger.Debugf("session %s: executed %s %s at %.8f", s.uid, order.Side, order.UID, order.QuotePrice)
	}
	return nil
}

// -------------------------- persistence ---------------------------

func orderRecord(o *Order) store.OrderRecord {
	rec := store.OrderRecord{
		UID:         o.UID,
		BotUID:      o.BotUID,
		Side:        string(o.Side),
		Kind:        string(o.Kind),
		Status:      string(o.Status),
		Fees:        o.Fees,
		DTOpen:      o.DTOpen,
		PriceExec:   o.QuotePrice,
		BaseAmount:  o.BaseAmount,
		QuoteAmount: o.QuoteAmount,
	}
	switch o.Status {
	case StatusExecuted:
		rec.DTExecuted = o.DTClosed
	case StatusCancelled:
		rec.DTCancelled = o.DTClosed
	}
	return rec
}

func (s *Session) botRecord() store.BotRecord {
	rec := store.BotRecord{
		UID:           s.uid,
		Name:          s.name,
		Symbol:        s.symbol,
		Timeframe:     s.tf.Key,
		Mode:          string(s.mode),
		Status:        string(s.status),
		StatusComment: s.statusComment,
		Progress:      s.progress,
		DTStart:       s.dtStart,
		DTEnd:         s.dtEnd,
		Params:        map[string]float64(s.model.Params()),
	}
	for uid, o := range s.ordersOpen {
		if o.Side == SideBuy {
			rec.BuyOpen = append(rec.BuyOpen, uid)
		} else {
			rec.SellOpen = append(rec.SellOpen, uid)
		}
	}
	for uid, o := range s.ordersExecuted {
		if o.Side == SideBuy {
			rec.BuyExecuted = append(rec.BuyExecuted, uid)
		} else {
			rec.SellExecuted = append(rec.SellExecuted, uid)
		}
	}
	for uid := range s.ordersCancelled {
		rec.Cancelled = append(rec.Cancelled, uid)
	}
	return rec
}

// persistBot is best-effort; a failed snapshot never interrupts the run.
func (s *Session) persistBot(ctx context.Context) {
	rec := s.botRecord()
	if err := s.store.Update(ctx, store.EndpointBots, rec); err != nil {
		logger.Warnf("session %s: persist bot snapshot failed: %v", s.uid, err)
		return
	}
	s.publish("bots", rec)
}

func (s *Session) publish(topic string, payload any) {
	if err := s.bus.Publish(topic, payload); err != nil {
		logger.Debugf("session %s: publish %s failed: %v", s.uid, topic, err)
	}
}
