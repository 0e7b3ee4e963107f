package trading

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"

	"rudder/internal/decision"
	"rudder/internal/logger"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// TrialResult is what one full session run yields for the tuner.
type TrialResult struct {
	KPI    float64
	Trades int
}

// TrialRunner plays one full session against a hyperparameter vector.
// Runs must be mutually independent; the tuner may call it from
// several goroutines.
type TrialRunner func(ctx context.Context, params decision.Params) (TrialResult, error)

// Trial records one tuning attempt for the report.
type Trial struct {
	Params decision.Params `json:"params"`
	KPI    float64         `json:"kpi"`
	Trades int             `json:"trades"`
}

// ParamSpec describes one tunable parameter: candidate values for grid
// search plus a neighborhood for annealing.
type ParamSpec struct {
	Values  []float64 `yaml:"values"`
	Delta   float64   `yaml:"delta"`
	Lower   float64   `yaml:"lower"`
	Upper   float64   `yaml:"upper"`
	Integer bool      `yaml:"integer"`
}

// TuningSpec is the tuning search space, loaded from a YAML file.
type TuningSpec struct {
	Params map[string]ParamSpec `yaml:"params"`
}

func LoadTuningSpec(path string) (*TuningSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tuning spec failed (%s): %w", path, err)
	}
	var spec TuningSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing tuning spec failed: %w", err)
	}
	if len(spec.Params) == 0 {
		return nil, fmt.Errorf("tuning spec defines no parameters")
	}
	return &spec, nil
}

// GridSpace returns the per-parameter candidate lists.
func (s *TuningSpec) GridSpace() map[string][]float64 {
	out := make(map[string][]float64, len(s.Params))
	for name, p := range s.Params {
		if len(p.Values) > 0 {
			out[name] = p.Values
		}
	}
	return out
}

// Neighborhoods returns the per-parameter annealing neighborhoods.
func (s *TuningSpec) Neighborhoods() map[string]decision.ValueNeighborhood {
	out := make(map[string]decision.ValueNeighborhood, len(s.Params))
	for name, p := range s.Params {
		out[name] = decision.ValueNeighborhood{
			Delta:   p.Delta,
			Lower:   p.Lower,
			Upper:   p.Upper,
			Integer: p.Integer,
		}
	}
	return out
}

// GridSearch exhaustively ranks the cartesian product of the space.
type GridSearch struct {
	Space     map[string][]float64
	MinTrades int
	Workers   int
}

// Run plays every combination and returns the best admissible one.
// Combinations below the trade minimum are discarded; when none
// survive, the unmodified current parameters are returned with a
// warning.
func (g GridSearch) Run(ctx context.Context, current decision.Params, runner TrialRunner) (decision.Params, []Trial, error) {
	combos := decision.Combinations(g.Space)
	if len(combos) == 0 {
		return current.Clone(), nil, fmt.Errorf("grid space is empty")
	}
	workers := g.Workers
	if workers <= 0 {
		workers = 1
	}
	trials := make([]Trial, len(combos))
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i, combo := range combos {
		i, combo := i, combo
		group.Go(func() error {
			res, err := runner(groupCtx, combo)
			if err != nil {
				return fmt.Errorf("grid trial %v: %w", combo, err)
			}
			mu.Lock()
			trials[i] = Trial{Params: combo, KPI: res.KPI, Trades: res.Trades}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	ranked := make([]Trial, len(trials))
	copy(ranked, trials)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].KPI > ranked[j].KPI })
	for _, t := range ranked {
		if t.Trades >= g.MinTrades {
			logger.Infof("grid search: best params %v kpi=%.6f trades=%d", t.Params, t.KPI, t.Trades)
			return t.Params.Clone(), trials, nil
		}
	}
	logger.Warnf("grid search: no combination reached %d trades, keeping current params %v",
		g.MinTrades, current)
	return current.Clone(), trials, nil
}

// Annealing searches the space by randomized neighbor hops with a
// decaying tolerance for degrading moves.
type Annealing struct {
	Space       map[string]decision.ValueNeighborhood
	IterMax     int
	Cooling     float64 // initial temperature, decays every iteration
	CoolingRate float64
	NChanges    int // parameters mutated per hop; <= 0 draws at random
	Seed        int64
}

// Run anneals from the initial parameters. Best only ever improves;
// current may move downhill while the temperature allows it.
func (a Annealing) Run(ctx context.Context, initial decision.Params, runner TrialRunner) (decision.Params, []Trial, error) {
	if len(a.Space) == 0 {
		return nil, nil, fmt.Errorf("annealing space is empty")
	}
	iterMax := a.IterMax
	if iterMax <= 0 {
		iterMax = 50
	}
	cooling := a.Cooling
	if cooling <= 0 {
		cooling = 1
	}
	rate := a.CoolingRate
	if rate <= 0 || rate >= 1 {
		rate = 0.95
	}
	rng := rand.New(rand.NewSource(a.Seed))

	first, err := runner(ctx, initial)
	if err != nil {
		return nil, nil, fmt.Errorf("annealing initial trial: %w", err)
	}
	trials := []Trial{{Params: initial.Clone(), KPI: first.KPI, Trades: first.Trades}}
	cur, curKPI := initial.Clone(), first.KPI
	best, bestKPI := initial.Clone(), first.KPI

	for iter := 0; iter < iterMax; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		cand := decision.Neighbor(rng, cur, a.Space, a.NChanges)
		res, err := runner(ctx, cand)
		if err != nil {
			return nil, nil, fmt.Errorf("annealing trial %d: %w", iter+1, err)
		}
		trials = append(trials, Trial{Params: cand.Clone(), KPI: res.KPI, Trades: res.Trades})

		// The temperature decays before it gates the hop, so even the
		// first downhill candidate faces an already-cooled schedule.
		cooling *= rate
		switch {
		case res.KPI > curKPI:
			cur, curKPI = cand, res.KPI
			if res.KPI > bestKPI {
				best, bestKPI = cand.Clone(), res.KPI
			}
		default:
			jumpCrit := 1 / (1 + math.Exp((res.KPI-curKPI)/cooling))
			if jumpCrit < rng.Float64() {
				cur, curKPI = cand, res.KPI
			}
		}
		logger.Debugf("annealing iter %d/%d: kpi=%.6f current=%.6f best=%.6f cooling=%.6f",
			iter+1, iterMax, res.KPI, curKPI, bestKPI, cooling)
	}
	logger.Infof("annealing: best params %v kpi=%.6f after %d trials", best, bestKPI, len(trials))
	return best, trials, nil
}
