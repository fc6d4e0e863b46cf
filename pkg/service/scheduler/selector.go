package scheduler

import (
	"math/rand"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
)

// ErrNoEligibleActivity is returned when constraints filtered out every
// registered activity. Recoverable: the scheduler backs off and retries.
var ErrNoEligibleActivity = goerr.New("no eligible activity")

// weightFloor keeps every eligible activity drawable, preventing
// starvation and ill-formed distributions.
const weightFloor = 0.01

// biasRule is one tier of the homeostatic selection policy: the first
// rule whose predicate matches the state decides the weights for this
// cycle.
type biasRule struct {
	match  func(s model.State) bool
	weight func(base float64, act model.Activity) float64
}

// The policy: low energy forces rest, low mood favors engagement,
// mid energy favors balance, high energy favors exertion.
var biasRules = []biasRule{
	{
		// Exhausted: steer hard toward restorative activities and
		// suppress high-exertion ones to a small residual weight.
		match: func(s model.State) bool { return s.Energy < 30 },
		weight: func(base float64, act model.Activity) float64 {
			switch {
			case act.Category == types.CategoryRestorative:
				return 0.6
			case act.Category.HighExertion():
				return 0.05
			default:
				return base
			}
		},
	},
	{
		// Unhappy: flat bonus for mood-lifting activities
		match: func(s model.State) bool { return s.Happiness < 40 },
		weight: func(base float64, act model.Activity) float64 {
			if act.Category.MoodLifting() {
				return base + 0.3
			}
			return base
		},
	},
	{
		// Comfortable: modest bonus for a balanced, moderate mix
		match: func(s model.State) bool { return s.Energy <= 70 },
		weight: func(base float64, act model.Activity) float64 {
			if act.Category == types.CategoryModerate || act.Category == types.CategoryReflective {
				return base + 0.1
			}
			return base
		},
	},
	{
		// Energized: larger bonus for high-exertion and creative work
		match: func(s model.State) bool { return true },
		weight: func(base float64, act model.Activity) float64 {
			if act.Category.HighExertion() {
				return base + 0.22
			}
			return base
		},
	},
}

// Selector draws the next activity from a state-dependent probability
// distribution. The draw is stochastic by design; inject a seeded
// random source for reproducibility.
type Selector struct {
	rng *rand.Rand
}

type SelectorOption func(*Selector)

// WithRand injects the random source used for sampling
func WithRand(rng *rand.Rand) SelectorOption {
	return func(s *Selector) {
		s.rng = rng
	}
}

func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// Weights computes the normalized probability distribution over the
// eligible activities for the given state. All weights are positive and
// sum to 1 for any non-empty input.
func (s *Selector) Weights(state model.State, eligible []model.Activity) []float64 {
	n := len(eligible)
	if n == 0 {
		return nil
	}

	base := 1.0 / float64(n)

	var rule biasRule
	for _, r := range biasRules {
		if r.match(state) {
			rule = r
			break
		}
	}

	weights := make([]float64, n)
	sum := 0.0
	for i, act := range eligible {
		w := rule.weight(base, act)
		if w < weightFloor {
			w = weightFloor
		}
		weights[i] = w
		sum += w
	}

	for i := range weights {
		weights[i] /= sum
	}

	return weights
}

// Select draws one activity from the weighted distribution. Fails with
// ErrNoEligibleActivity on an empty eligible set.
func (s *Selector) Select(state model.State, eligible []model.Activity) (model.Activity, error) {
	if len(eligible) == 0 {
		return model.Activity{}, goerr.Wrap(ErrNoEligibleActivity, "selection requires a non-empty eligible set")
	}

	weights := s.Weights(state, eligible)

	draw := s.rng.Float64()
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if draw < cumulative {
			return eligible[i], nil
		}
	}

	// Floating point residue: fall back to the last activity
	return eligible[len(eligible)-1], nil
}
