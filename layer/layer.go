package layer

import (
	"math/rand"

	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	"github.com/chenf-ai/MATTAR/blas32/vector"
	"github.com/chenf-ai/MATTAR/mlfuncs"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Linear is a fully connected layer. Weight is [in, out] so a batch
// x of shape [rows, in] maps to x·W + b of shape [rows, out].
type Linear struct {
	Weight blas32.General
	Bias   blas32.Vector
}

func NewLinear(in, out int, rng *rand.Rand) Linear {
	return Linear{
		Weight: tensor2d.NewHe(in, out, rng),
		Bias:   vector.NewZeros(out),
	}
}

func (l *Linear) InDim() int {
	return l.Weight.Rows
}

func (l *Linear) OutDim() int {
	return l.Weight.Cols
}

func (l *Linear) Forward(x blas32.General) blas32.General {
	y := tensor2d.Dot(blas.NoTrans, blas.NoTrans, x, l.Weight)
	tensor2d.AddRowwise(y, l.Bias)
	return y
}

func (l *Linear) ForwardVector(x blas32.Vector) blas32.Vector {
	return vector.Affine(x, l.Weight, l.Bias)
}

// MLP is a two-layer perceptron with a ReLU hidden activation.
type MLP struct {
	Hidden Linear
	Out    Linear
}

func NewMLP(in, hidden, out int, rng *rand.Rand) MLP {
	return MLP{
		Hidden: NewLinear(in, hidden, rng),
		Out:    NewLinear(hidden, out, rng),
	}
}

func (m *MLP) Forward(x blas32.General) blas32.General {
	h := m.Hidden.Forward(x)
	mlfuncs.ReLUInPlace(h.Data)
	return m.Out.Forward(h)
}

func (m *MLP) ForwardVector(x blas32.Vector) blas32.Vector {
	h := m.Hidden.ForwardVector(x)
	mlfuncs.ReLUInPlace(h.Data)
	return m.Out.ForwardVector(h)
}

// GRUCell is a single gated recurrent unit step over a batch of rows.
type GRUCell struct {
	Wxr, Whr blas32.General
	Wxz, Whz blas32.General
	Wxn, Whn blas32.General
	Br       blas32.Vector
	Bz       blas32.Vector
	Bn       blas32.Vector
}

func NewGRUCell(in, hidden int, rng *rand.Rand) GRUCell {
	return GRUCell{
		Wxr: tensor2d.NewHe(in, hidden, rng),
		Whr: tensor2d.NewHe(hidden, hidden, rng),
		Wxz: tensor2d.NewHe(in, hidden, rng),
		Whz: tensor2d.NewHe(hidden, hidden, rng),
		Wxn: tensor2d.NewHe(in, hidden, rng),
		Whn: tensor2d.NewHe(hidden, hidden, rng),
		Br:  vector.NewZeros(hidden),
		Bz:  vector.NewZeros(hidden),
		Bn:  vector.NewZeros(hidden),
	}
}

func (c *GRUCell) HiddenDim() int {
	return c.Whr.Rows
}

func (c *GRUCell) InitHidden(rows int) blas32.General {
	return tensor2d.NewZeros(rows, c.HiddenDim())
}

// Forward advances the hidden state one step. x is [rows, in] and h is
// [rows, hidden]; both must share the row count.
func (c *GRUCell) Forward(x, h blas32.General) blas32.General {
	r := tensor2d.Dot(blas.NoTrans, blas.NoTrans, x, c.Wxr)
	tensor2d.Axpy(1.0, tensor2d.Dot(blas.NoTrans, blas.NoTrans, h, c.Whr), r)
	tensor2d.AddRowwise(r, c.Br)
	for i, e := range r.Data {
		r.Data[i] = mlfuncs.Sigmoid(e)
	}

	z := tensor2d.Dot(blas.NoTrans, blas.NoTrans, x, c.Wxz)
	tensor2d.Axpy(1.0, tensor2d.Dot(blas.NoTrans, blas.NoTrans, h, c.Whz), z)
	tensor2d.AddRowwise(z, c.Bz)
	for i, e := range z.Data {
		z.Data[i] = mlfuncs.Sigmoid(e)
	}

	n := tensor2d.Dot(blas.NoTrans, blas.NoTrans, x, c.Wxn)
	hn := tensor2d.Dot(blas.NoTrans, blas.NoTrans, h, c.Whn)
	for i := range n.Data {
		n.Data[i] += r.Data[i] * hn.Data[i]
	}
	tensor2d.AddRowwise(n, c.Bn)
	for i, e := range n.Data {
		n.Data[i] = mlfuncs.Tanh(e)
	}

	next := tensor2d.NewZerosLike(h)
	for i := range next.Data {
		next.Data[i] = (1.0-z.Data[i])*n.Data[i] + z.Data[i]*h.Data[i]
	}
	return next
}
