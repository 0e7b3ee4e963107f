package decision

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"rudder/internal/market"
)

// Action is a trade intent emitted by a decision model.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionPass Action = "pass"
)

// Signal is one dated trade intent.
type Signal struct {
	DT     time.Time
	Action Action
}

// Params holds a model's hyperparameters by name.
type Params map[string]float64

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Get returns the named parameter or the fallback when unset.
func (p Params) Get(name string, fallback float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return fallback
}

// Names returns the parameter names, sorted.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Model turns candle history into trade signals. Implementations must
// only look at the bars they are given; the session layer controls
// what each bar is allowed to see.
type Model interface {
	// Name reports the registered model name.
	Name() string
	// Params reports the hyperparameters the model was built with.
	Params() Params
	// Lookback is the minimum number of bars Predict needs to emit a
	// non-pass signal for the last bar.
	Lookback() int
	// Fit estimates internal state from a dedicated history window.
	// Stateless models return nil without looking at the data.
	Fit(candles []market.Candle) error
	// Predict emits one signal per input bar, aligned by index.
	Predict(candles []market.Candle) []Signal
}

// Builder constructs a model instance from hyperparameters.
type Builder func(params Params) (Model, error)

// builders is the closed model registry. Adding a model means adding
// an entry here.
var builders = map[string]Builder{
	"rsi": newRSIModel,
}

// Build instantiates the named model.
func Build(name string, params Params) (Model, error) {
	builder, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown decision model %q (supported: %v)", name, ModelNames())
	}
	return builder(params)
}

// ModelNames returns the registered model names, sorted.
func ModelNames() []string {
	names := make([]string, 0, len(builders))
	for k := range builders {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ValueNeighborhood bounds the random walk of one hyperparameter
// during simulated annealing.
type ValueNeighborhood struct {
	Delta   float64 `yaml:"delta"`
	Lower   float64 `yaml:"lower"`
	Upper   float64 `yaml:"upper"`
	Integer bool    `yaml:"integer"`
}

// Random draws a uniform value from [max(v-delta, lower),
// min(v+delta, upper)], rounded when the parameter is integral.
func (n ValueNeighborhood) Random(rng *rand.Rand, current float64) float64 {
	lo := math.Max(current-n.Delta, n.Lower)
	hi := math.Min(current+n.Delta, n.Upper)
	if hi < lo {
		lo, hi = hi, lo
	}
	v := lo + rng.Float64()*(hi-lo)
	if n.Integer {
		v = math.Round(v)
	}
	return v
}

// Neighbor mutates nchanges randomly chosen parameters within their
// neighborhoods. With nchanges <= 0 the count itself is drawn at
// random from [1, len(space)].
func Neighbor(rng *rand.Rand, params Params, space map[string]ValueNeighborhood, nchanges int) Params {
	names := make([]string, 0, len(space))
	for k := range space {
		names = append(names, k)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return params.Clone()
	}
	if nchanges <= 0 {
		nchanges = int(math.Ceil(rng.Float64() * float64(len(names))))
	}
	if nchanges > len(names) {
		nchanges = len(names)
	}
	out := params.Clone()
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	for _, name := range names[:nchanges] {
		out[name] = space[name].Random(rng, out.Get(name, space[name].Lower))
	}
	return out
}

// Combinations expands a grid space into the full cartesian product of
// parameter sets, in deterministic (sorted-name, in-order values)
// order.
func Combinations(space map[string][]float64) []Params {
	names := make([]string, 0, len(space))
	for k := range space {
		names = append(names, k)
	}
	sort.Strings(names)
	combos := []Params{{}}
	for _, name := range names {
		values := space[name]
		if len(values) == 0 {
			continue
		}
		next := make([]Params, 0, len(combos)*len(values))
		for _, combo := range combos {
			for _, v := range values {
				c := combo.Clone()
				c[name] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}
