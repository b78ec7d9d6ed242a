package agent

import (
	"fmt"
	"math/rand"

	mattar "github.com/chenf-ai/MATTAR"
	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	"github.com/chenf-ai/MATTAR/layer"
	"github.com/chenf-ai/MATTAR/mlfuncs"
	"github.com/chenf-ai/MATTAR/task"
	omwjson "github.com/sw965/omw/json"
	"gonum.org/v1/gonum/blas/blas32"
)

// GRUParameter bundles every trainable tensor of the multi-task GRU agent
// so the whole policy serializes as one artifact.
type GRUParameter struct {
	InProj  map[string]layer.Linear
	Cell    layer.GRUCell
	OutProj map[string]layer.Linear
}

// GRU is a recurrent policy shared across tasks. Each task gets an input
// projection (observation input ⧺ task representation → embed) and an
// output head sized to its action space; the GRU cell in between is the
// shared trunk.
type GRU struct {
	Param     GRUParameter
	embedDim  int
	hiddenDim int
}

func NewGRU(shapes map[string]InputShape, cfgs map[string]*task.Config, main *mattar.Config, rng *rand.Rand) (Agent, error) {
	embedDim := main.HiddenDim
	hiddenDim := main.HiddenDim

	inProj := make(map[string]layer.Linear, len(shapes))
	outProj := make(map[string]layer.Linear, len(shapes))
	for name, shape := range shapes {
		cfg, ok := cfgs[name]
		if !ok {
			return nil, fmt.Errorf("mt_gru agent: input shape for unconfigured task %q", name)
		}
		inProj[name] = layer.NewLinear(shape.Input+main.TaskRepreDim, embedDim, rng)
		outProj[name] = layer.NewLinear(hiddenDim, cfg.NActions(), rng)
	}

	return &GRU{
		Param: GRUParameter{
			InProj:  inProj,
			Cell:    layer.NewGRUCell(embedDim, hiddenDim, rng),
			OutProj: outProj,
		},
		embedDim:  embedDim,
		hiddenDim: hiddenDim,
	}, nil
}

func (g *GRU) InitHidden(rows int) blas32.General {
	return g.Param.Cell.InitHidden(rows)
}

func (g *GRU) Forward(taskName string, inputs, hidden, repre blas32.General) (blas32.General, blas32.General, error) {
	in, ok := g.Param.InProj[taskName]
	if !ok {
		return blas32.General{}, blas32.General{}, fmt.Errorf("mt_gru agent: not built for task %q", taskName)
	}
	out := g.Param.OutProj[taskName]

	x := tensor2d.ConcatCols(inputs, repre)
	e := in.Forward(x)
	mlfuncs.ReLUInPlace(e.Data)

	nextHidden := g.Param.Cell.Forward(e, hidden)
	q := out.Forward(nextHidden)
	return q, nextHidden, nil
}

func (g *GRU) SaveJSON(path string) error {
	return omwjson.Write[GRUParameter](&g.Param, path)
}

func (g *GRU) LoadJSON(path string) error {
	param, err := omwjson.Load[GRUParameter](path)
	if err != nil {
		return err
	}
	g.Param = param
	return nil
}
