package batch

import (
	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	"github.com/chenf-ai/MATTAR/blas32/vector"
	"gonum.org/v1/gonum/blas/blas32"
)

// Batch holds one slice of episode data laid out per timestep. Per-agent
// tensors stack the agent axis into the rows, so Obs[t] is
// [batchSize*nAgents, obsDim] while State[t] is [batchSize, stateDim].
type Batch struct {
	BatchSize int
	SeqLen    int
	NAgents   int

	Obs           []blas32.General
	State         []blas32.General
	ActionsOnehot []blas32.General
	AvailActions  []blas32.General
	Reward        []blas32.Vector
}

func New(batchSize, seqLen, nAgents, obsDim, stateDim, nActions int) *Batch {
	b := &Batch{
		BatchSize:     batchSize,
		SeqLen:        seqLen,
		NAgents:       nAgents,
		Obs:           make([]blas32.General, seqLen),
		State:         make([]blas32.General, seqLen),
		ActionsOnehot: make([]blas32.General, seqLen),
		AvailActions:  make([]blas32.General, seqLen),
		Reward:        make([]blas32.Vector, seqLen),
	}
	rows := batchSize * nAgents
	for t := 0; t < seqLen; t++ {
		b.Obs[t] = tensor2d.NewZeros(rows, obsDim)
		b.State[t] = tensor2d.NewZeros(batchSize, stateDim)
		b.ActionsOnehot[t] = tensor2d.NewZeros(rows, nActions)
		// all actions available until the environment says otherwise
		b.AvailActions[t] = tensor2d.NewOnes(rows, nActions)
		b.Reward[t] = vector.NewZeros(batchSize)
	}
	return b
}
