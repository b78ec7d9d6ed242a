package agent

import (
	"errors"
	"fmt"
	"math/rand"

	mattar "github.com/chenf-ai/MATTAR"
	"github.com/chenf-ai/MATTAR/task"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrUnknownAgent = errors.New("unknown agent")

// InputShape is the per-task input layout the controller precomputes:
// the total width plus the widths of the optional one-hot parts.
type InputShape struct {
	Input      int
	LastAction int
	AgentID    int
}

// Agent is the shared policy network. One set of weights serves every
// task; the task name selects the dimension-adapting heads.
type Agent interface {
	InitHidden(rows int) blas32.General
	Forward(taskName string, inputs, hidden, repre blas32.General) (outs, nextHidden blas32.General, err error)
	SaveJSON(path string) error
	LoadJSON(path string) error
}

type NewFunc func(shapes map[string]InputShape, cfgs map[string]*task.Config, main *mattar.Config, rng *rand.Rand) (Agent, error)

var Registry = map[string]NewFunc{
	"mt_gru": NewGRU,
}

func New(key string, shapes map[string]InputShape, cfgs map[string]*task.Config, main *mattar.Config, rng *rand.Rand) (Agent, error) {
	f, ok := Registry[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, key)
	}
	return f(shapes, cfgs, main, rng)
}
