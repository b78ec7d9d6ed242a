package decomposer

import (
	"errors"
	"fmt"

	"github.com/chenf-ai/MATTAR/task"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrUnknownDecomposer = errors.New("unknown environment decomposer")

// Decomposer slices a task's flat state tensor into entity-typed feature
// groups and reports the dimension metadata the networks need.
type Decomposer interface {
	NAgents() int
	NEnemies() int
	NActions() int
	NActionsNoAttack() int

	AllyStateDim() int
	EnemyStateDim() int
	TimestepStateDim() int
	StateLastAction() bool
	StateTimestepNumber() bool

	ObsDim() int
	StateDim() int

	// DecomposeState splits states [rows, StateDim] into per-ally and
	// per-enemy feature matrices, per-ally last-action one-hots (when
	// StateLastAction) and the timestep column (when StateTimestepNumber).
	DecomposeState(states blas32.General) (allies, enemies, lastActions []blas32.General, timestep blas32.Vector, err error)

	// DecomposeActionInfo splits action one-hots [rows, NActions] into the
	// no-attack head, the attack head, and the compact per-ally action
	// features (no-attack one-hot plus an attacked bit).
	DecomposeActionInfo(actions blas32.General) (noAttack, attack, compact blas32.General, err error)
}

type NewFunc func(*task.Config) (Decomposer, error)

// Registry maps environment keys to decomposer constructors. Resolution
// happens at startup; an unknown key is a wiring mistake and fails fast.
var Registry = map[string]NewFunc{
	"sc2": NewSC2,
}

func New(env string, cfg *task.Config) (Decomposer, error) {
	f, ok := Registry[env]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecomposer, env)
	}
	return f(cfg)
}
