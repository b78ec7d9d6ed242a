package dynamics

import (
	"errors"
	"fmt"
	"math/rand"

	mattar "github.com/chenf-ai/MATTAR"
	"github.com/chenf-ai/MATTAR/decomposer"
	"github.com/chenf-ai/MATTAR/task"
	"gonum.org/v1/gonum/blas/blas32"
)

var (
	ErrUnknownEncoder = errors.New("unknown dynamic encoder")
	ErrUnknownDecoder = errors.New("unknown dynamic decoder")
)

// Encoder is the shared half of the environment model. It maps
// (observation, state, action, task representation) to a latent code.
// The returned batch size is inferred from the row count.
type Encoder interface {
	Forward(taskName string, obs, state, actions, repre blas32.General, nAgents int) (latent blas32.General, batchSize int, err error)
	SaveJSON(path string) error
	LoadJSON(path string) error
}

// Decoder is the per-task half: latent code to predicted next
// observation, next state and reward.
type Decoder interface {
	Forward(latent blas32.General, nAgents int) (nextObs, nextState blas32.General, reward blas32.Vector, err error)
	SaveJSON(path string) error
	LoadJSON(path string) error
}

type EncoderNewFunc func(decs map[string]decomposer.Decomposer, cfgs map[string]*task.Config, main *mattar.Config, rng *rand.Rand) (Encoder, error)

type DecoderNewFunc func(taskName string, dec decomposer.Decomposer, cfg *task.Config, main *mattar.Config, rng *rand.Rand) (Decoder, error)

var EncoderRegistry = map[string]EncoderNewFunc{
	"mt_mlp": NewMLPEncoder,
}

var DecoderRegistry = map[string]DecoderNewFunc{
	"mt_mlp": NewMLPDecoder,
}

func NewEncoder(key string, decs map[string]decomposer.Decomposer, cfgs map[string]*task.Config, main *mattar.Config, rng *rand.Rand) (Encoder, error) {
	f, ok := EncoderRegistry[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoder, key)
	}
	return f(decs, cfgs, main, rng)
}

func NewDecoder(key, taskName string, dec decomposer.Decomposer, cfg *task.Config, main *mattar.Config, rng *rand.Rand) (Decoder, error) {
	f, ok := DecoderRegistry[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecoder, key)
	}
	return f(taskName, dec, cfg, main, rng)
}
