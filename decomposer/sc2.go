package decomposer

import (
	"fmt"

	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	"github.com/chenf-ai/MATTAR/blas32/vector"
	"github.com/chenf-ai/MATTAR/task"
	"gonum.org/v1/gonum/blas/blas32"
)

// SC2 decomposes StarCraft-II micromanagement states. The flat state is
// laid out as NAgents ally blocks, then NEnemies enemy blocks, then the
// per-agent last-action one-hots when StateLastAction, then a single
// timestep scalar when StateTimestepNumber.
type SC2 struct {
	cfg *task.Config
}

func NewSC2(cfg *task.Config) (Decomposer, error) {
	if cfg.NAgents <= 0 || cfg.NEnemies <= 0 {
		return nil, fmt.Errorf("sc2 decomposer: task %q needs at least one ally and one enemy", cfg.Name)
	}
	return &SC2{cfg: cfg}, nil
}

func (d *SC2) NAgents() int  { return d.cfg.NAgents }
func (d *SC2) NEnemies() int { return d.cfg.NEnemies }

func (d *SC2) NActions() int         { return d.cfg.NActions() }
func (d *SC2) NActionsNoAttack() int { return d.cfg.NActionsNoAttack }

func (d *SC2) AllyStateDim() int  { return d.cfg.AllyStateFeats }
func (d *SC2) EnemyStateDim() int { return d.cfg.EnemyStateFeats }

func (d *SC2) StateLastAction() bool     { return d.cfg.StateLastAction }
func (d *SC2) StateTimestepNumber() bool { return d.cfg.StateTimestepNumber }

func (d *SC2) TimestepStateDim() int {
	if d.cfg.StateTimestepNumber {
		return 1
	}
	return 0
}

func (d *SC2) ObsDim() int {
	c := d.cfg
	return c.ObsMoveFeats + c.NEnemies*c.ObsEnemyFeats + (c.NAgents-1)*c.ObsAllyFeats + c.ObsOwnFeats
}

func (d *SC2) StateDim() int {
	c := d.cfg
	dim := c.NAgents*c.AllyStateFeats + c.NEnemies*c.EnemyStateFeats
	if c.StateLastAction {
		dim += c.NAgents * c.NActions()
	}
	if c.StateTimestepNumber {
		dim += 1
	}
	return dim
}

func (d *SC2) DecomposeState(states blas32.General) ([]blas32.General, []blas32.General, []blas32.General, blas32.Vector, error) {
	c := d.cfg
	if states.Cols != d.StateDim() {
		return nil, nil, nil, blas32.Vector{}, fmt.Errorf("sc2 decomposer: state width %d, task %q expects %d", states.Cols, c.Name, d.StateDim())
	}

	offset := 0
	allies := make([]blas32.General, c.NAgents)
	for i := range allies {
		allies[i] = tensor2d.SliceCols(states, offset, offset+c.AllyStateFeats)
		offset += c.AllyStateFeats
	}

	enemies := make([]blas32.General, c.NEnemies)
	for i := range enemies {
		enemies[i] = tensor2d.SliceCols(states, offset, offset+c.EnemyStateFeats)
		offset += c.EnemyStateFeats
	}

	var lastActions []blas32.General
	if c.StateLastAction {
		nActions := c.NActions()
		lastActions = make([]blas32.General, c.NAgents)
		for i := range lastActions {
			lastActions[i] = tensor2d.SliceCols(states, offset, offset+nActions)
			offset += nActions
		}
	}

	timestep := vector.NewZeros(0)
	if c.StateTimestepNumber {
		col := tensor2d.SliceCols(states, offset, offset+1)
		timestep = tensor2d.ToVector(col)
	}

	return allies, enemies, lastActions, timestep, nil
}

func (d *SC2) DecomposeActionInfo(actions blas32.General) (blas32.General, blas32.General, blas32.General, error) {
	c := d.cfg
	if actions.Cols != c.NActions() {
		return blas32.General{}, blas32.General{}, blas32.General{}, fmt.Errorf("sc2 decomposer: action width %d, task %q expects %d", actions.Cols, c.Name, c.NActions())
	}

	noAttack := tensor2d.SliceCols(actions, 0, c.NActionsNoAttack)
	attack := tensor2d.SliceCols(actions, c.NActionsNoAttack, c.NActions())

	compact := tensor2d.NewZeros(actions.Rows, c.NActionsNoAttack+1)
	for r := 0; r < actions.Rows; r++ {
		copy(compact.Data[r*compact.Stride:r*compact.Stride+c.NActionsNoAttack], noAttack.Data[r*noAttack.Stride:r*noAttack.Stride+c.NActionsNoAttack])
		var attacked float32
		for _, e := range attack.Data[r*attack.Stride : r*attack.Stride+attack.Cols] {
			attacked += e
		}
		compact.Data[r*compact.Stride+c.NActionsNoAttack] = attacked
	}
	return noAttack, attack, compact, nil
}
