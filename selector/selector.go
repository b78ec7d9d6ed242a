package selector

import (
	"errors"
	"fmt"
	"math/rand"

	mattar "github.com/chenf-ai/MATTAR"
	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	omwrand "github.com/sw965/omw/math/rand"
	oslices "github.com/sw965/omw/slices"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrUnknownSelector = errors.New("unknown action selector")

// ActionSelector picks one action per agent row from the controller's
// masked distribution and the availability mask.
type ActionSelector interface {
	Epsilon(tEnv int) float32
	SelectAction(dist, avail blas32.General, tEnv int, testMode bool, rng *rand.Rand) ([]int, error)
}

type NewFunc func(*mattar.Config) ActionSelector

var Registry = map[string]NewFunc{
	"epsilon_greedy": NewEpsilonGreedy,
	"multinomial":    NewMultinomial,
}

func New(key string, cfg *mattar.Config) (ActionSelector, error) {
	f, ok := Registry[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSelector, key)
	}
	return f(cfg), nil
}

func availableIndices(avail blas32.General, row int) []int {
	idxs := make([]int, 0, avail.Cols)
	offset := row * avail.Stride
	for c := 0; c < avail.Cols; c++ {
		if avail.Data[offset+c] > 0.0 {
			idxs = append(idxs, c)
		}
	}
	return idxs
}

func maskedArgmax(dist, avail blas32.General, row int) int {
	masked := make([]float32, dist.Cols)
	distRow := tensor2d.Row(dist, row)
	availRow := tensor2d.Row(avail, row)
	for c := range masked {
		if availRow.Data[c] > 0.0 {
			masked[c] = distRow.Data[c]
		} else {
			masked[c] = float32(-1e38)
		}
	}
	return oslices.MaxIndices(masked)[0]
}

// EpsilonGreedy anneals epsilon linearly from start to finish over the
// first annealTime environment steps.
type EpsilonGreedy struct {
	start      float32
	finish     float32
	annealTime int
	testGreedy bool
}

func NewEpsilonGreedy(cfg *mattar.Config) ActionSelector {
	return &EpsilonGreedy{
		start:      cfg.EpsilonStart,
		finish:     cfg.EpsilonFinish,
		annealTime: cfg.EpsilonAnnealTime,
		testGreedy: cfg.TestGreedy,
	}
}

func (s *EpsilonGreedy) Epsilon(tEnv int) float32 {
	if s.annealTime <= 0 || tEnv >= s.annealTime {
		return s.finish
	}
	frac := float32(tEnv) / float32(s.annealTime)
	return s.start - (s.start-s.finish)*frac
}

func (s *EpsilonGreedy) SelectAction(dist, avail blas32.General, tEnv int, testMode bool, rng *rand.Rand) ([]int, error) {
	eps := s.Epsilon(tEnv)
	if testMode && s.testGreedy {
		eps = 0.0
	}

	chosen := make([]int, dist.Rows)
	for r := 0; r < dist.Rows; r++ {
		idxs := availableIndices(avail, r)
		if len(idxs) == 0 {
			return nil, fmt.Errorf("action selection: row %d has no available action", r)
		}
		if rng.Float32() < eps {
			chosen[r] = idxs[rng.Intn(len(idxs))]
		} else {
			chosen[r] = maskedArgmax(dist, avail, r)
		}
	}
	return chosen, nil
}

// Multinomial samples proportionally to the masked distribution, falling
// back to the greedy action in test mode.
type Multinomial struct {
	epsilon    EpsilonGreedy
	testGreedy bool
}

func NewMultinomial(cfg *mattar.Config) ActionSelector {
	return &Multinomial{
		epsilon: EpsilonGreedy{
			start:      cfg.EpsilonStart,
			finish:     cfg.EpsilonFinish,
			annealTime: cfg.EpsilonAnnealTime,
		},
		testGreedy: cfg.TestGreedy,
	}
}

func (s *Multinomial) Epsilon(tEnv int) float32 {
	return s.epsilon.Epsilon(tEnv)
}

func (s *Multinomial) SelectAction(dist, avail blas32.General, tEnv int, testMode bool, rng *rand.Rand) ([]int, error) {
	chosen := make([]int, dist.Rows)
	for r := 0; r < dist.Rows; r++ {
		idxs := availableIndices(avail, r)
		if len(idxs) == 0 {
			return nil, fmt.Errorf("action selection: row %d has no available action", r)
		}
		if testMode && s.testGreedy {
			chosen[r] = maskedArgmax(dist, avail, r)
			continue
		}
		weights := make([]float32, len(idxs))
		distRow := tensor2d.Row(dist, r)
		for i, idx := range idxs {
			weights[i] = distRow.Data[idx]
		}
		chosen[r] = idxs[omwrand.IntByWeight(weights, rng)]
	}
	return chosen, nil
}
