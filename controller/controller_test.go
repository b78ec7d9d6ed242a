package controller_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"

	mattar "github.com/chenf-ai/MATTAR"
	"github.com/chenf-ai/MATTAR/batch"
	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	"github.com/chenf-ai/MATTAR/controller"
	"github.com/chenf-ai/MATTAR/task"
	orand "github.com/sw965/omw/math/rand"
)

// a 3-action toy task: 2 no-attack actions plus 1 attackable enemy
func newSmallTask(name string) *task.Config {
	return &task.Config{
		Name:             name,
		Env:              "sc2",
		NAgents:          2,
		NEnemies:         1,
		NActionsNoAttack: 2,
		AllyStateFeats:   3,
		EnemyStateFeats:  3,
		ObsMoveFeats:     2,
		ObsOwnFeats:      1,
		ObsAllyFeats:     2,
		ObsEnemyFeats:    2,
		ObsLastAction:    true,
		ObsAgentID:       true,
		StateLastAction:  true,
	}
}

func newController(t *testing.T, names ...string) (*controller.MultiTaskController, mattar.Config) {
	t.Helper()
	cfgs := make([]*task.Config, len(names))
	for i, name := range names {
		cfgs[i] = newSmallTask(name)
	}
	main := mattar.NewConfig()
	rng := orand.NewMt19937()
	c, err := controller.New(cfgs, &main, rng)
	if err != nil {
		t.Fatal(err)
	}
	return c, main
}

func newBatch(t *testing.T, c *controller.MultiTaskController, taskName string, batchSize, seqLen int) *batch.Batch {
	t.Helper()
	dec, err := c.Decomposer(taskName)
	if err != nil {
		t.Fatal(err)
	}
	b := batch.New(batchSize, seqLen, dec.NAgents(), dec.ObsDim(), dec.StateDim(), dec.NActions())
	for tEp := 0; tEp < seqLen; tEp++ {
		for i := range b.Obs[tEp].Data {
			b.Obs[tEp].Data[i] = 0.01 * float32(i+tEp)
		}
		for i := range b.State[tEp].Data {
			b.State[tEp].Data[i] = 0.02 * float32(i+tEp)
		}
	}
	return b
}

func TestNewUnknownEnv(t *testing.T) {
	cfg := newSmallTask("3m")
	cfg.Env = "mujoco"
	main := mattar.NewConfig()
	rng := orand.NewMt19937()
	if _, err := controller.New([]*task.Config{cfg}, &main, rng); err == nil {
		t.Errorf("want a construction error for an unknown environment")
	}
}

func TestInputShape(t *testing.T) {
	c, _ := newController(t, "3m")
	shape, err := c.InputShape("3m")
	if err != nil {
		t.Fatal(err)
	}
	dec, _ := c.Decomposer("3m")
	// obs + last-action one-hot + agent id one-hot
	want := dec.ObsDim() + dec.NActions() + 2
	if shape.Input != want {
		t.Errorf("input width %d, want %d", shape.Input, want)
	}
}

func TestForwardShape(t *testing.T) {
	c, _ := newController(t, "3m")
	b := newBatch(t, c, "3m", 2, 3)

	hs, err := c.InitHidden(2, "3m")
	if err != nil {
		t.Fatal(err)
	}
	outs, err := c.Forward(b, 0, 0, "3m", hs, true)
	if err != nil {
		t.Fatal(err)
	}
	if outs.Channels != 2 || outs.Rows != 2 || outs.Cols != 3 {
		t.Errorf("got shape (%d, %d, %d), want (2, 2, 3)", outs.Channels, outs.Rows, outs.Cols)
	}
}

func TestForwardMasksUnavailableActions(t *testing.T) {
	c, _ := newController(t, "3m")
	b := newBatch(t, c, "3m", 1, 2)
	for r := 0; r < b.AvailActions[0].Rows; r++ {
		row := tensor2d.Row(b.AvailActions[0], r)
		copy(row.Data, []float32{1, 0, 1})
	}

	hs, err := c.InitHidden(1, "3m")
	if err != nil {
		t.Fatal(err)
	}
	outs, err := c.Forward(b, 0, 0, "3m", hs, true)
	if err != nil {
		t.Fatal(err)
	}

	mat := outs.Matrix()
	for r := 0; r < mat.Rows; r++ {
		row := tensor2d.Row(mat, r)
		if row.Data[1] != 0.0 {
			t.Errorf("row %d keeps mass %v on the unavailable action", r, row.Data[1])
		}
		sum := row.Data[0] + row.Data[2]
		if math32.Abs(sum-1.0) > 1e-5 {
			t.Errorf("row %d available mass sums to %v, want 1", r, sum)
		}
	}
}

func TestForwardExplorationFloor(t *testing.T) {
	c, main := newController(t, "3m")
	b := newBatch(t, c, "3m", 1, 2)
	for r := 0; r < b.AvailActions[0].Rows; r++ {
		row := tensor2d.Row(b.AvailActions[0], r)
		copy(row.Data, []float32{1, 0, 1})
	}

	hs, err := c.InitHidden(1, "3m")
	if err != nil {
		t.Fatal(err)
	}
	// tEnv=0 so epsilon is at its starting value
	outs, err := c.Forward(b, 0, 0, "3m", hs, false)
	if err != nil {
		t.Fatal(err)
	}

	eps := main.EpsilonStart
	floor := eps / 2.0 // two available actions
	mat := outs.Matrix()
	for r := 0; r < mat.Rows; r++ {
		row := tensor2d.Row(mat, r)
		if row.Data[1] != 0.0 {
			t.Errorf("row %d keeps mass on the unavailable action", r)
		}
		for _, i := range []int{0, 2} {
			if row.Data[i] < floor-1e-6 {
				t.Errorf("row %d action %d mass %v below the exploration floor %v", r, i, row.Data[i], floor)
			}
		}
	}
}

func TestForwardHiddenErrors(t *testing.T) {
	c, _ := newController(t, "3m", "5m")
	b := newBatch(t, c, "3m", 1, 2)

	if _, err := c.Forward(b, 0, 0, "3m", nil, true); !errors.Is(err, controller.ErrHiddenNotInitialized) {
		t.Errorf("got %v, want ErrHiddenNotInitialized", err)
	}

	hs, err := c.InitHidden(1, "5m")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Forward(b, 0, 0, "3m", hs, true); !errors.Is(err, controller.ErrHiddenTaskMismatch) {
		t.Errorf("got %v, want ErrHiddenTaskMismatch", err)
	}
}

func TestForwardUnknownTask(t *testing.T) {
	c, _ := newController(t, "3m")
	b := newBatch(t, c, "3m", 1, 2)
	hs, _ := c.InitHidden(1, "3m")
	if _, err := c.Forward(b, 0, 0, "8m", hs, true); !errors.Is(err, controller.ErrUnknownTask) {
		t.Errorf("got %v, want ErrUnknownTask", err)
	}
}

func TestForwardAdvancesHidden(t *testing.T) {
	c, _ := newController(t, "3m")
	b := newBatch(t, c, "3m", 1, 3)

	hs, err := c.InitHidden(1, "3m")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Forward(b, 0, 0, "3m", hs, true); err != nil {
		t.Fatal(err)
	}
	h1 := tensor2d.Clone(hs.H)
	if _, err := c.Forward(b, 1, 1, "3m", hs, true); err != nil {
		t.Fatal(err)
	}
	if tensor2d.MaxAbsDiff(h1, hs.H) == 0.0 {
		t.Errorf("hidden state did not advance across timesteps")
	}
}

func TestSelectActionsRespectAvailability(t *testing.T) {
	c, _ := newController(t, "3m")
	b := newBatch(t, c, "3m", 2, 2)
	for r := 0; r < b.AvailActions[0].Rows; r++ {
		row := tensor2d.Row(b.AvailActions[0], r)
		copy(row.Data, []float32{1, 0, 1})
	}
	rng := orand.NewMt19937()

	for trial := 0; trial < 50; trial++ {
		hs, err := c.InitHidden(2, "3m")
		if err != nil {
			t.Fatal(err)
		}
		chosen, err := c.SelectActions(b, 0, 0, "3m", hs, false, rng)
		if err != nil {
			t.Fatal(err)
		}
		if len(chosen) != 4 {
			t.Fatalf("got %d actions, want 4", len(chosen))
		}
		for _, a := range chosen {
			if a == 1 {
				t.Fatalf("selected the unavailable action")
			}
		}
	}
}

func TestDynamicsForwardShapes(t *testing.T) {
	c, _ := newController(t, "3m")
	b := newBatch(t, c, "3m", 2, 2)
	dec, _ := c.Decomposer("3m")

	nextObs, nextState, reward, err := c.DynamicsForward(b, 0, "3m")
	if err != nil {
		t.Fatal(err)
	}
	if nextObs.Rows != 4 || nextObs.Cols != dec.ObsDim() {
		t.Errorf("next obs shape (%d, %d), want (4, %d)", nextObs.Rows, nextObs.Cols, dec.ObsDim())
	}
	if nextState.Rows != 2 || nextState.Cols != dec.StateDim() {
		t.Errorf("next state shape (%d, %d), want (2, %d)", nextState.Rows, nextState.Cols, dec.StateDim())
	}
	if reward.N != 2 {
		t.Errorf("reward length %d, want 2", reward.N)
	}
}

func TestSaveLoadModels(t *testing.T) {
	c, _ := newController(t, "3m")
	b := newBatch(t, c, "3m", 1, 2)

	dir := t.TempDir()
	if err := c.SaveModels(dir); err != nil {
		t.Fatal(err)
	}
	reprePath := filepath.Join(dir, "3m_repre.json")
	if err := c.SaveTaskRepre(reprePath, "3m"); err != nil {
		t.Fatal(err)
	}
	if err := c.SaveDecoder(dir, "3m"); err != nil {
		t.Fatal(err)
	}

	other, _ := newController(t, "3m")
	if err := other.LoadModels(dir); err != nil {
		t.Fatal(err)
	}
	if err := other.LoadTaskRepre(reprePath, "3m"); err != nil {
		t.Fatal(err)
	}
	if err := other.LoadDecoder(dir, "3m"); err != nil {
		t.Fatal(err)
	}

	hs, err := c.InitHidden(1, "3m")
	if err != nil {
		t.Fatal(err)
	}
	want, err := c.Forward(b, 0, 0, "3m", hs, true)
	if err != nil {
		t.Fatal(err)
	}

	otherHs, err := other.InitHidden(1, "3m")
	if err != nil {
		t.Fatal(err)
	}
	got, err := other.Forward(b, 0, 0, "3m", otherHs, true)
	if err != nil {
		t.Fatal(err)
	}

	if tensor2d.MaxAbsDiff(want.Matrix(), got.Matrix()) > 1e-6 {
		t.Errorf("loaded controller disagrees with the saved one")
	}
}
