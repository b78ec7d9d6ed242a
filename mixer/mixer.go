package mixer

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/chewxy/math32"

	mattar "github.com/chenf-ai/MATTAR"
	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	"github.com/chenf-ai/MATTAR/blas32/vector"
	"github.com/chenf-ai/MATTAR/decomposer"
	"github.com/chenf-ai/MATTAR/layer"
	"github.com/chenf-ai/MATTAR/mlfuncs"
	"github.com/chenf-ai/MATTAR/taskrepre"
	omwjson "github.com/sw965/omw/json"
	"github.com/sw965/omw/parallel"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrTimestepState = errors.New("timestep-number state is not supported by the attention mixer")

// Parameter bundles the mixer weights: the two entity encoders, the
// attention projections, and the task-representation-conditioned
// hypernetworks.
type Parameter struct {
	AllyEncoder  layer.Linear
	EnemyEncoder layer.Linear
	Query        layer.Linear
	Key          layer.Linear
	HyperW1      layer.Linear
	HyperB1      layer.Linear
	HyperWFinal  layer.Linear
	V            layer.MLP
}

// QMixer combines per-agent values into one team value. The global state
// is decomposed into entities, self-attention over the entity embeddings
// yields one context vector per (batch, timestep), and hypernetworks fed
// with context ⧺ task representation produce the mixing weights. Both
// mixing weights pass through an absolute value, so the output is
// monotone in every per-agent value.
type QMixer struct {
	Param Parameter

	embedDim       int
	attnEmbedDim   int
	entityEmbedDim int
	repreDim       int

	allyInDim  int
	enemyInDim int
}

// New sizes the mixer from a surrogate decomposer; at forward time any
// task whose feature widths match can be mixed.
func New(surrogate decomposer.Decomposer, main *mattar.Config, rng *rand.Rand) (*QMixer, error) {
	if surrogate.StateTimestepNumber() {
		return nil, ErrTimestepState
	}

	allyInDim := surrogate.AllyStateDim()
	if surrogate.StateLastAction() {
		allyInDim += surrogate.NActionsNoAttack() + 1
	}
	enemyInDim := surrogate.EnemyStateDim()

	mixInDim := main.EntityEmbedDim + main.TaskRepreDim

	return &QMixer{
		Param: Parameter{
			AllyEncoder:  layer.NewLinear(allyInDim, main.EntityEmbedDim, rng),
			EnemyEncoder: layer.NewLinear(enemyInDim, main.EntityEmbedDim, rng),
			Query:        layer.NewLinear(main.EntityEmbedDim, main.AttnEmbedDim, rng),
			Key:          layer.NewLinear(main.EntityEmbedDim, main.AttnEmbedDim, rng),
			HyperW1:      layer.NewLinear(mixInDim, main.MixingEmbedDim, rng),
			HyperB1:      layer.NewLinear(mixInDim, main.MixingEmbedDim, rng),
			HyperWFinal:  layer.NewLinear(mixInDim, main.MixingEmbedDim, rng),
			V:            layer.NewMLP(mixInDim, main.MixingEmbedDim, 1, rng),
		},
		embedDim:       main.MixingEmbedDim,
		attnEmbedDim:   main.AttnEmbedDim,
		entityEmbedDim: main.EntityEmbedDim,
		repreDim:       main.TaskRepreDim,
		allyInDim:      allyInDim,
		enemyInDim:     enemyInDim,
	}, nil
}

// Forward mixes agentQs [rows, nAgents] with states [rows, stateDim] into
// a team value per row, where a row is one (batch element, timestep).
// workers > 1 splits the rows across goroutines.
func (m *QMixer) Forward(agentQs, states blas32.General, repre taskrepre.Repre, dec decomposer.Decomposer, workers int) (blas32.Vector, error) {
	if dec.StateTimestepNumber() {
		return blas32.Vector{}, ErrTimestepState
	}
	if agentQs.Cols != dec.NAgents() {
		return blas32.Vector{}, fmt.Errorf("mixer: %d agent values per row, task has %d agents", agentQs.Cols, dec.NAgents())
	}
	if agentQs.Rows != states.Rows {
		return blas32.Vector{}, fmt.Errorf("mixer: %d value rows vs %d state rows", agentQs.Rows, states.Rows)
	}
	if repre.Dim() != m.repreDim {
		return blas32.Vector{}, fmt.Errorf("mixer: task representation dim %d, mixer built for %d", repre.Dim(), m.repreDim)
	}

	allies, enemies, lastActions, _, err := dec.DecomposeState(states)
	if err != nil {
		return blas32.Vector{}, err
	}
	if dec.StateLastAction() {
		for i := range allies {
			_, _, compact, err := dec.DecomposeActionInfo(lastActions[i])
			if err != nil {
				return blas32.Vector{}, err
			}
			allies[i] = tensor2d.ConcatCols(allies[i], compact)
		}
	}
	if allies[0].Cols != m.allyInDim || enemies[0].Cols != m.enemyInDim {
		return blas32.Vector{}, fmt.Errorf("mixer: entity widths (%d ally, %d enemy) do not match mixer (%d, %d)", allies[0].Cols, enemies[0].Cols, m.allyInDim, m.enemyInDim)
	}

	entities := make([]blas32.General, 0, len(allies)+len(enemies))
	for _, a := range allies {
		entities = append(entities, m.Param.AllyEncoder.Forward(a))
	}
	for _, e := range enemies {
		entities = append(entities, m.Param.EnemyEncoder.Forward(e))
	}

	rows := agentQs.Rows
	qTot := vector.NewZeros(rows)
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for _, idxs := range parallel.DistributeIndicesEvenly(rows, workers) {
		wg.Add(1)
		go func(idxs []int) {
			defer wg.Done()
			for _, r := range idxs {
				qTot.Data[r] = m.mixRow(agentQs, entities, repre, r)
			}
		}(idxs)
	}
	wg.Wait()

	return qTot, nil
}

func (m *QMixer) mixRow(agentQs blas32.General, entities []blas32.General, repre taskrepre.Repre, r int) float32 {
	nEntities := len(entities)

	embeds := tensor2d.NewZeros(nEntities, m.entityEmbedDim)
	for e, ent := range entities {
		tensor2d.SetRow(embeds, e, tensor2d.Row(ent, r))
	}

	ctx := m.attend(embeds)
	hyperIn := vector.Concat(ctx, repre.Vector())

	// the context and the representation are shared across agent slots,
	// so every agent's hypernetwork row coincides
	w1 := m.Param.HyperW1.ForwardVector(hyperIn)
	for i, e := range w1.Data {
		w1.Data[i] = math32.Abs(e)
	}
	b1 := m.Param.HyperB1.ForwardVector(hyperIn)

	var qSum float32
	for _, q := range tensor2d.Row(agentQs, r).Data {
		qSum += q
	}

	hidden := vector.NewZeros(m.embedDim)
	for e := range hidden.Data {
		hidden.Data[e] = mlfuncs.ELU(qSum*w1.Data[e] + b1.Data[e])
	}

	wFinal := m.Param.HyperWFinal.ForwardVector(hyperIn)
	for i, e := range wFinal.Data {
		wFinal.Data[i] = math32.Abs(e)
	}
	v := m.Param.V.ForwardVector(hyperIn)

	return vector.Dot(hidden, wFinal) + v.Data[0]
}

// attend computes scaled self-attention over the entity set and collapses
// the output to one shared context vector by an unweighted mean over the
// entity axis.
func (m *QMixer) attend(embeds blas32.General) blas32.Vector {
	q := m.Param.Query.Forward(embeds)
	k := m.Param.Key.Forward(embeds)

	energy := tensor2d.Dot(blas.NoTrans, blas.Trans, q, k)
	tensor2d.Scal(1.0/math32.Sqrt(float32(m.attnEmbedDim)), energy)

	// softmax over the first entity axis, per key column
	scores := tensor2d.Transpose(energy)
	for j := 0; j < scores.Rows; j++ {
		mlfuncs.SoftmaxInPlace(tensor2d.Row(scores, j).Data)
	}

	// weighted[j] = Σ_i scores[j][i]·embeds[i]; the mean over j is the context
	weighted := tensor2d.Dot(blas.NoTrans, blas.NoTrans, scores, embeds)
	ctx := tensor2d.Sum0(weighted)
	blas32.Scal(1.0/float32(weighted.Rows), ctx)
	return ctx
}

func (m *QMixer) SaveJSON(path string) error {
	return omwjson.Write[Parameter](&m.Param, path)
}

func (m *QMixer) LoadJSON(path string) error {
	param, err := omwjson.Load[Parameter](path)
	if err != nil {
		return err
	}
	m.Param = param
	return nil
}
