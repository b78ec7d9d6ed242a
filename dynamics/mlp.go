package dynamics

import (
	"fmt"
	"math/rand"

	mattar "github.com/chenf-ai/MATTAR"
	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	"github.com/chenf-ai/MATTAR/decomposer"
	"github.com/chenf-ai/MATTAR/layer"
	"github.com/chenf-ai/MATTAR/mlfuncs"
	"github.com/chenf-ai/MATTAR/task"
	omwjson "github.com/sw965/omw/json"
	"gonum.org/v1/gonum/blas/blas32"
)

// MLPEncoderParameter carries the per-task input heads together with the
// shared trunk; the whole struct is the "shared encoder" artifact and is
// saved and loaded as one bundle.
type MLPEncoderParameter struct {
	InProj map[string]layer.Linear
	Trunk  layer.Linear
}

// MLPEncoder projects each task's (obs ⧺ broadcast state ⧺ action ⧺
// task representation) row into a shared embedding, then through a shared
// trunk into the latent code.
type MLPEncoder struct {
	Param MLPEncoderParameter
}

func NewMLPEncoder(decs map[string]decomposer.Decomposer, cfgs map[string]*task.Config, main *mattar.Config, rng *rand.Rand) (Encoder, error) {
	inProj := make(map[string]layer.Linear, len(decs))
	for name, dec := range decs {
		cfg, ok := cfgs[name]
		if !ok {
			return nil, fmt.Errorf("mt_mlp encoder: decomposer for unconfigured task %q", name)
		}
		inDim := dec.ObsDim() + dec.StateDim() + cfg.NActions() + main.TaskRepreDim
		inProj[name] = layer.NewLinear(inDim, main.HiddenDim, rng)
	}
	return &MLPEncoder{
		Param: MLPEncoderParameter{
			InProj: inProj,
			Trunk:  layer.NewLinear(main.HiddenDim, main.LatentDim, rng),
		},
	}, nil
}

func (e *MLPEncoder) Forward(taskName string, obs, state, actions, repre blas32.General, nAgents int) (blas32.General, int, error) {
	in, ok := e.Param.InProj[taskName]
	if !ok {
		return blas32.General{}, 0, fmt.Errorf("mt_mlp encoder: not built for task %q", taskName)
	}
	batchSize := obs.Rows / nAgents

	// broadcast the global state to every agent row
	stateRep := tensor2d.NewZeros(obs.Rows, state.Cols)
	for b := 0; b < batchSize; b++ {
		src := tensor2d.Row(state, b)
		for a := 0; a < nAgents; a++ {
			tensor2d.SetRow(stateRep, b*nAgents+a, src)
		}
	}

	x := tensor2d.ConcatCols(obs, stateRep, actions, repre)
	h := in.Forward(x)
	mlfuncs.ReLUInPlace(h.Data)
	latent := e.Param.Trunk.Forward(h)
	return latent, batchSize, nil
}

func (e *MLPEncoder) SaveJSON(path string) error {
	return omwjson.Write[MLPEncoderParameter](&e.Param, path)
}

func (e *MLPEncoder) LoadJSON(path string) error {
	param, err := omwjson.Load[MLPEncoderParameter](path)
	if err != nil {
		return err
	}
	e.Param = param
	return nil
}

type MLPDecoderParameter struct {
	ObsHead    layer.MLP
	StateHead  layer.MLP
	RewardHead layer.MLP
}

// MLPDecoder predicts per-agent next observations from the per-agent
// latent rows, and next state and reward from the agent-mean latent.
type MLPDecoder struct {
	Param MLPDecoderParameter
}

func NewMLPDecoder(taskName string, dec decomposer.Decomposer, cfg *task.Config, main *mattar.Config, rng *rand.Rand) (Decoder, error) {
	if dec.NAgents() != cfg.NAgents {
		return nil, fmt.Errorf("mt_mlp decoder: decomposer/config mismatch for task %q", taskName)
	}
	return &MLPDecoder{
		Param: MLPDecoderParameter{
			ObsHead:    layer.NewMLP(main.LatentDim, main.HiddenDim, dec.ObsDim(), rng),
			StateHead:  layer.NewMLP(main.LatentDim, main.HiddenDim, dec.StateDim(), rng),
			RewardHead: layer.NewMLP(main.LatentDim, main.HiddenDim, 1, rng),
		},
	}, nil
}

func (d *MLPDecoder) Forward(latent blas32.General, nAgents int) (blas32.General, blas32.General, blas32.Vector, error) {
	if latent.Rows%nAgents != 0 {
		return blas32.General{}, blas32.General{}, blas32.Vector{}, fmt.Errorf("mt_mlp decoder: %d latent rows not divisible by %d agents", latent.Rows, nAgents)
	}
	batchSize := latent.Rows / nAgents

	nextObs := d.Param.ObsHead.Forward(latent)

	pooled := tensor2d.NewZeros(batchSize, latent.Cols)
	for b := 0; b < batchSize; b++ {
		dst := tensor2d.Row(pooled, b)
		for a := 0; a < nAgents; a++ {
			src := tensor2d.Row(latent, b*nAgents+a)
			for c := 0; c < latent.Cols; c++ {
				dst.Data[c] += src.Data[c]
			}
		}
		for c := range dst.Data {
			dst.Data[c] /= float32(nAgents)
		}
	}

	nextState := d.Param.StateHead.Forward(pooled)
	rewardMat := d.Param.RewardHead.Forward(pooled)
	reward := tensor2d.ToVector(rewardMat)
	return nextObs, nextState, reward, nil
}

func (d *MLPDecoder) SaveJSON(path string) error {
	return omwjson.Write[MLPDecoderParameter](&d.Param, path)
}

func (d *MLPDecoder) LoadJSON(path string) error {
	param, err := omwjson.Load[MLPDecoderParameter](path)
	if err != nil {
		return err
	}
	d.Param = param
	return nil
}
