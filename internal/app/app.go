package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rudder/internal/bus"
	"rudder/internal/config"
	"rudder/internal/decision"
	"rudder/internal/exchange"
	"rudder/internal/logger"
	"rudder/internal/store"
	"rudder/internal/store/gormstore"
	"rudder/internal/trading"
	httpapi "rudder/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App wires configuration into the session engine's collaborators.
type App struct {
	cfg    *config.Config
	store  store.Store
	bus    bus.Publisher
	data   exchange.MarketData
	trader exchange.Trader
}

func NewApp(cfg *config.Config) (*App, error) {
	st, err := gormstore.NewGormStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var publisher bus.Publisher = bus.Nop{}
	if cfg.Bus.Enabled {
		publisher, err = bus.NewRedisPublisher(cfg.Bus.Addr, cfg.Bus.Password, cfg.Bus.DB, cfg.Bus.Prefix)
		if err != nil {
			return nil, fmt.Errorf("connect bus: %w", err)
		}
	}

	binanceClient := exchange.NewBinance(exchange.BinanceConfig{
		APIKey:         cfg.Exchange.APIKey,
		APISecret:      cfg.Exchange.APISecret,
		UseTestnet:     cfg.Exchange.UseTestnet,
		Timeout:        time.Duration(cfg.Exchange.TimeoutSec) * time.Second,
		FetchChunkSize: cfg.Exchange.FetchChunkSize,
		FetchPause:     time.Duration(cfg.Exchange.FetchPauseSec) * time.Second,
		FetchMaxTries:  cfg.Exchange.FetchMaxTries,
	})
	cache, err := exchange.NewCandleCache(cfg.Exchange.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open candle cache: %w", err)
	}
	var data exchange.MarketData = exchange.NewCachedData(binanceClient, cache)
	// Without API credentials the fee endpoint is unavailable; the
	// configured rates stand in (the normal case for backtests).
	if cfg.Exchange.APIKey == "" || cfg.Exchange.FeesTaker > 0 {
		data = staticFeesData{
			MarketData: data,
			fees:       exchange.Fees{Maker: cfg.Exchange.FeesMaker, Taker: cfg.Exchange.FeesTaker},
		}
	}

	var trader exchange.Trader
	if cfg.Exchange.APIKey != "" {
		trader = binanceClient
	}

	return &App{cfg: cfg, store: st, bus: publisher, data: data, trader: trader}, nil
}

// Close releases the app's long-lived resources.
func (a *App) Close() {
	if err := a.bus.Close(); err != nil {
		logger.Warnf("close bus: %v", err)
	}
	if err := a.store.Close(); err != nil {
		logger.Warnf("close store: %v", err)
	}
}

// Run executes one session. SIGINT/SIGTERM cancel the context, which
// routes the session through its abort path.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := a.buildSession(decision.Params(a.cfg.Decision.Params), a.store, a.bus)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if addr := strings.TrimSpace(a.cfg.App.HTTPAddr); addr != "" {
		server, err := httpapi.NewServer(addr, a.store)
		if err != nil {
			return err
		}
		group.Go(func() error { return server.Start(groupCtx) })
	}
	group.Go(func() error {
		defer stop()
		return session.Run(groupCtx)
	})
	return group.Wait()
}

func (a *App) buildSession(params decision.Params, st store.Store, publisher bus.Publisher) (*trading.Session, error) {
	model, err := decision.Build(a.cfg.Decision.Model, params)
	if err != nil {
		return nil, err
	}
	return trading.NewSession(trading.SessionDeps{
		Config:             a.cfg.Session,
		Model:              model,
		Invest:             trading.NewLongInvest(a.cfg.Invest.QuoteRate),
		Data:               a.data,
		Trader:             a.trader,
		Store:              st,
		Bus:                publisher,
		SellErrorTolerance: a.cfg.Exchange.SellErrorTol,
	})
}

// staticFeesData pins the fee rates instead of asking the venue.
type staticFeesData struct {
	exchange.MarketData
	fees exchange.Fees
}

func (d staticFeesData) TradingFees(context.Context, string) (exchange.Fees, error) {
	return d.fees, nil
}
