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
	"rudder/internal/decision"
	"rudder/internal/logger"
	"rudder/internal/store/memstore"
	"rudder/internal/trading"
)

// Tune searches the decision model's hyperparameter space. Every trial
// is one full session run against an in-memory store, so trials leave
// no trace in the session database.
func (a *App) Tune(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	specPath := strings.TrimSpace(a.cfg.Tuning.SpecPath)
	if specPath == "" {
		return fmt.Errorf("tuning.spec_path is required")
	}
	spec, err := trading.LoadTuningSpec(specPath)
	if err != nil {
		return err
	}
	current := decision.Params(a.cfg.Decision.Params).Clone()

	runner := func(ctx context.Context, params decision.Params) (trading.TrialResult, error) {
		session, err := a.buildSession(params, memstore.New(), bus.Nop{})
		if err != nil {
			return trading.TrialResult{}, err
		}
		if err := session.Run(ctx); err != nil {
			return trading.TrialResult{}, err
		}
		p := session.Portfolio()
		return trading.TrialResult{
			KPI:    kpiOf(p, a.cfg.Tuning.TargetKPI),
			Trades: p.NBuyOrders + p.NSellOrders,
		}, nil
	}

	var (
		best   decision.Params
		trials []trading.Trial
	)
	switch strings.ToLower(a.cfg.Tuning.Method) {
	case "grid":
		search := trading.GridSearch{
			Space:     spec.GridSpace(),
			MinTrades: a.cfg.Tuning.MinTrades,
			Workers:   a.cfg.Tuning.Workers,
		}
		best, trials, err = search.Run(ctx, current, runner)
	case "anneal":
		seed := a.cfg.Tuning.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		search := trading.Annealing{
			Space:       spec.Neighborhoods(),
			IterMax:     a.cfg.Tuning.IterMax,
			Cooling:     1,
			CoolingRate: a.cfg.Tuning.CoolingRate,
			NChanges:    a.cfg.Tuning.NChanges,
			Seed:        seed,
		}
		best, trials, err = search.Run(ctx, current, runner)
	default:
		return fmt.Errorf("unknown tuning method %q (grid|anneal)", a.cfg.Tuning.Method)
	}
	if err != nil {
		return err
	}

	logger.InfoBlock("tuning report\n" + tuningReport(best, trials))
	return nil
}

func kpiOf(p *trading.Portfolio, name string) float64 {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "performance":
		return p.Performance
	case "asset_performance":
		return p.AssetPerf
	case "quote_value":
		return p.QuoteValue
	default:
		return p.Performance
	}
}

func tuningReport(best decision.Params, trials []trading.Trial) string {
	var b strings.Builder
	fmt.Fprintf(&b, "best:   %v\ntrials: %d\n", best, len(trials))
	for i, t := range trials {
		fmt.Fprintf(&b, "  #%03d kpi=%.6f trades=%d params=%v\n", i+1, t.KPI, t.Trades, t.Params)
	}
	return strings.TrimRight(b.String(), "\n")
}
