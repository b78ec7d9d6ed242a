package controller

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	mattar "github.com/chenf-ai/MATTAR"
	agentpkg "github.com/chenf-ai/MATTAR/agent"
	"github.com/chenf-ai/MATTAR/batch"
	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	tensor3d "github.com/chenf-ai/MATTAR/blas32/tensor/3d"
	"github.com/chenf-ai/MATTAR/decomposer"
	"github.com/chenf-ai/MATTAR/dynamics"
	"github.com/chenf-ai/MATTAR/mlfuncs"
	selectorpkg "github.com/chenf-ai/MATTAR/selector"
	"github.com/chenf-ai/MATTAR/task"
	"github.com/chenf-ai/MATTAR/taskrepre"
	"gonum.org/v1/gonum/blas/blas32"
)

var (
	ErrUnknownTask          = errors.New("task not registered with controller")
	ErrHiddenNotInitialized = errors.New("hidden state not initialized")
	ErrHiddenTaskMismatch   = errors.New("hidden state belongs to another task")
)

const maskedLogit = float32(-1e10)

// HiddenState is the recurrent state of one episode for one task. It is
// created by InitHidden and advanced by every Forward; interleaving tasks
// against the same state is rejected.
type HiddenState struct {
	Task string
	H    blas32.General
}

// MultiTaskController runs the shared policy across tasks: it builds
// per-task inputs, applies availability masking and the exploration floor,
// and owns the task representations and the environment-model networks.
type MultiTaskController struct {
	TrainTasks []string

	main   *mattar.Config
	cfgs   map[string]*task.Config
	decs   map[string]decomposer.Decomposer
	shapes map[string]agentpkg.InputShape

	agent    agentpkg.Agent
	selector selectorpkg.ActionSelector
	repres   *taskrepre.Store

	encoder  dynamics.Encoder
	decoders map[string]dynamics.Decoder
}

func New(taskCfgs []*task.Config, main *mattar.Config, rng *rand.Rand) (*MultiTaskController, error) {
	c := &MultiTaskController{
		main:     main,
		cfgs:     make(map[string]*task.Config, len(taskCfgs)),
		decs:     make(map[string]decomposer.Decomposer, len(taskCfgs)),
		shapes:   make(map[string]agentpkg.InputShape, len(taskCfgs)),
		decoders: make(map[string]dynamics.Decoder, len(taskCfgs)),
	}

	for _, cfg := range taskCfgs {
		dec, err := decomposer.New(cfg.Env, cfg)
		if err != nil {
			return nil, err
		}
		c.TrainTasks = append(c.TrainTasks, cfg.Name)
		c.cfgs[cfg.Name] = cfg
		c.decs[cfg.Name] = dec
		c.shapes[cfg.Name] = inputShape(cfg, dec)
	}

	repres, err := taskrepre.NewStore(c.TrainTasks, main.TaskRepreDim, rng)
	if err != nil {
		return nil, err
	}
	c.repres = repres

	c.agent, err = agentpkg.New(main.Agent, c.shapes, c.cfgs, main, rng)
	if err != nil {
		return nil, err
	}

	c.selector, err = selectorpkg.New(main.ActionSelector, main)
	if err != nil {
		return nil, err
	}

	c.encoder, err = dynamics.NewEncoder(main.DynamicEncoder, c.decs, c.cfgs, main, rng)
	if err != nil {
		return nil, err
	}
	for name, dec := range c.decs {
		c.decoders[name], err = dynamics.NewDecoder(main.DynamicDecoder, name, dec, c.cfgs[name], main, rng)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

func inputShape(cfg *task.Config, dec decomposer.Decomposer) agentpkg.InputShape {
	shape := agentpkg.InputShape{Input: dec.ObsDim()}
	if cfg.ObsLastAction {
		shape.LastAction = cfg.NActions()
		shape.Input += shape.LastAction
	}
	if cfg.ObsAgentID {
		shape.AgentID = cfg.NAgents
		shape.Input += shape.AgentID
	}
	return shape
}

func (c *MultiTaskController) Decomposer(taskName string) (decomposer.Decomposer, error) {
	dec, ok := c.decs[taskName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	return dec, nil
}

func (c *MultiTaskController) InputShape(taskName string) (agentpkg.InputShape, error) {
	shape, ok := c.shapes[taskName]
	if !ok {
		return agentpkg.InputShape{}, fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	return shape, nil
}

func (c *MultiTaskController) TaskRepres() *taskrepre.Store {
	return c.repres
}

// Parameter groups for separate optimizers: the shared policy, the shared
// dynamic encoder, and each task's dynamic decoder.

func (c *MultiTaskController) Agent() agentpkg.Agent {
	return c.agent
}

func (c *MultiTaskController) DynamicEncoder() dynamics.Encoder {
	return c.encoder
}

func (c *MultiTaskController) DynamicDecoder(taskName string) (dynamics.Decoder, error) {
	d, ok := c.decoders[taskName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	return d, nil
}

// InitHidden must be called at every episode start, before the first
// Forward for that episode.
func (c *MultiTaskController) InitHidden(batchSize int, taskName string) (*HiddenState, error) {
	cfg, ok := c.cfgs[taskName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	return &HiddenState{
		Task: taskName,
		H:    c.agent.InitHidden(batchSize * cfg.NAgents),
	}, nil
}

// BuildInputs assembles the per-agent input rows for timestep t: the raw
// observation, optionally the previous action one-hot (zeros at t=0), and
// optionally a one-hot agent id.
func (c *MultiTaskController) BuildInputs(b *batch.Batch, t int, taskName string) (blas32.General, error) {
	cfg, ok := c.cfgs[taskName]
	if !ok {
		return blas32.General{}, fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}

	parts := []blas32.General{b.Obs[t]}
	if cfg.ObsLastAction {
		if t == 0 {
			parts = append(parts, tensor2d.NewZerosLike(b.ActionsOnehot[0]))
		} else {
			parts = append(parts, b.ActionsOnehot[t-1])
		}
	}
	if cfg.ObsAgentID {
		ids := tensor2d.NewZeros(b.BatchSize*cfg.NAgents, cfg.NAgents)
		for r := 0; r < ids.Rows; r++ {
			ids.Data[tensor2d.At(ids, r, r%cfg.NAgents)] = 1.0
		}
		parts = append(parts, ids)
	}
	return tensor2d.ConcatCols(parts...), nil
}

// Forward runs one policy step and returns [batch, agent, action] outputs.
// With pi_logits outputs it returns a probability simplex over available
// actions: unavailable actions get exactly zero, and outside test mode
// every available action keeps at least ε divided by the available count.
func (c *MultiTaskController) Forward(b *batch.Batch, tEp, tEnv int, taskName string, hs *HiddenState, testMode bool) (tensor3d.General, error) {
	if _, ok := c.cfgs[taskName]; !ok {
		return tensor3d.General{}, fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	if hs == nil {
		return tensor3d.General{}, fmt.Errorf("%w: task %q", ErrHiddenNotInitialized, taskName)
	}
	if hs.Task != taskName {
		return tensor3d.General{}, fmt.Errorf("%w: have %q, forwarding %q", ErrHiddenTaskMismatch, hs.Task, taskName)
	}

	inputs, err := c.BuildInputs(b, tEp, taskName)
	if err != nil {
		return tensor3d.General{}, err
	}

	repre, err := c.repres.Broadcast(taskName, inputs.Rows)
	if err != nil {
		return tensor3d.General{}, err
	}

	outs, nextHidden, err := c.agent.Forward(taskName, inputs, hs.H, repre)
	if err != nil {
		return tensor3d.General{}, err
	}
	hs.H = nextHidden

	if c.main.AgentOutputType == "pi_logits" {
		c.maskedSoftmax(outs, b.AvailActions[tEp], tEnv, testMode)
	}

	return tensor3d.FromMatrix(outs, b.BatchSize), nil
}

func (c *MultiTaskController) maskedSoftmax(outs, avail blas32.General, tEnv int, testMode bool) {
	if c.main.MaskBeforeSoftmax {
		for r := 0; r < outs.Rows; r++ {
			outRow := tensor2d.Row(outs, r)
			availRow := tensor2d.Row(avail, r)
			for i := range outRow.Data {
				if availRow.Data[i] == 0.0 {
					outRow.Data[i] = maskedLogit
				}
			}
		}
	}

	for r := 0; r < outs.Rows; r++ {
		mlfuncs.SoftmaxInPlace(tensor2d.Row(outs, r).Data)
	}

	if !testMode {
		eps := c.selector.Epsilon(tEnv)
		for r := 0; r < outs.Rows; r++ {
			outRow := tensor2d.Row(outs, r)
			availRow := tensor2d.Row(avail, r)

			floorCount := float32(outs.Cols)
			if c.main.MaskBeforeSoftmax {
				floorCount = 0.0
				for _, a := range availRow.Data {
					if a > 0.0 {
						floorCount += 1.0
					}
				}
			}
			for i := range outRow.Data {
				outRow.Data[i] = (1.0-eps)*outRow.Data[i] + eps/floorCount
			}
		}
	}

	// unavailable actions carry exactly zero mass in both modes
	if c.main.MaskBeforeSoftmax {
		for r := 0; r < outs.Rows; r++ {
			outRow := tensor2d.Row(outs, r)
			availRow := tensor2d.Row(avail, r)
			for i := range outRow.Data {
				if availRow.Data[i] == 0.0 {
					outRow.Data[i] = 0.0
				}
			}
		}
	}
}

// SelectActions runs Forward and delegates sampling to the action
// selector, one chosen action index per (batch element × agent) row.
func (c *MultiTaskController) SelectActions(b *batch.Batch, tEp, tEnv int, taskName string, hs *HiddenState, testMode bool, rng *rand.Rand) ([]int, error) {
	outs, err := c.Forward(b, tEp, tEnv, taskName, hs, testMode)
	if err != nil {
		return nil, err
	}
	return c.selector.SelectAction(outs.Matrix(), b.AvailActions[tEp], tEnv, testMode, rng)
}

// DynamicsForward runs the auxiliary environment model at timestep t. It
// never touches the policy hidden state and the task representation it
// feeds the encoder is a frozen copy.
func (c *MultiTaskController) DynamicsForward(b *batch.Batch, t int, taskName string) (nextObs, nextState blas32.General, reward blas32.Vector, err error) {
	cfg, ok := c.cfgs[taskName]
	if !ok {
		return blas32.General{}, blas32.General{}, blas32.Vector{}, fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}

	obs := b.Obs[t]
	repre, err := c.repres.Broadcast(taskName, obs.Rows)
	if err != nil {
		return blas32.General{}, blas32.General{}, blas32.Vector{}, err
	}

	latent, _, err := c.encoder.Forward(taskName, obs, b.State[t], b.ActionsOnehot[t], repre, cfg.NAgents)
	if err != nil {
		return blas32.General{}, blas32.General{}, blas32.Vector{}, err
	}
	return c.decoders[taskName].Forward(latent, cfg.NAgents)
}

// SaveModels writes the shared bundle: policy weights and dynamic encoder
// weights. Per-task decoders and task representations are excluded and
// saved through SaveDecoder and SaveTaskRepre.
func (c *MultiTaskController) SaveModels(dir string) error {
	if err := c.agent.SaveJSON(filepath.Join(dir, "agent.json")); err != nil {
		return err
	}
	return c.encoder.SaveJSON(filepath.Join(dir, "dynamic_encoder.json"))
}

func (c *MultiTaskController) LoadModels(dir string) error {
	if err := c.agent.LoadJSON(filepath.Join(dir, "agent.json")); err != nil {
		return err
	}
	return c.encoder.LoadJSON(filepath.Join(dir, "dynamic_encoder.json"))
}

func (c *MultiTaskController) SaveDecoder(dir, taskName string) error {
	d, ok := c.decoders[taskName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	return d.SaveJSON(filepath.Join(dir, taskName+"_decoder.json"))
}

func (c *MultiTaskController) LoadDecoder(dir, taskName string) error {
	d, ok := c.decoders[taskName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	return d.LoadJSON(filepath.Join(dir, taskName+"_decoder.json"))
}

func (c *MultiTaskController) SaveTaskRepre(path, taskName string) error {
	return c.repres.SaveJSON(path, taskName)
}

func (c *MultiTaskController) LoadTaskRepre(path, taskName string) error {
	return c.repres.LoadJSON(path, taskName)
}
