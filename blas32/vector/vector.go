package vector

import (
	"slices"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func NewZeros(n int) blas32.Vector {
	return blas32.Vector{
		N:    n,
		Inc:  1,
		Data: make([]float32, n),
	}
}

func NewZerosLike(vec blas32.Vector) blas32.Vector {
	return NewZeros(vec.N)
}

func New(data []float32) blas32.Vector {
	return blas32.Vector{
		N:    len(data),
		Inc:  1,
		Data: data,
	}
}

func Clone(vec blas32.Vector) blas32.Vector {
	return blas32.Vector{
		N:    vec.N,
		Inc:  vec.Inc,
		Data: slices.Clone(vec.Data),
	}
}

func Concat(vecs ...blas32.Vector) blas32.Vector {
	n := 0
	for _, vec := range vecs {
		n += vec.N
	}
	data := make([]float32, 0, n)
	for _, vec := range vecs {
		data = append(data, vec.Data...)
	}
	return New(data)
}

func Dot(a, b blas32.Vector) float32 {
	return blas32.Dot(a, b)
}

func Norm(vec blas32.Vector) float32 {
	return blas32.Nrm2(vec)
}

func Sum(vec blas32.Vector) float32 {
	var sum float32
	for _, e := range vec.Data {
		sum += e
	}
	return sum
}

func Mean(vec blas32.Vector) float32 {
	return Sum(vec) / float32(vec.N)
}

func Normalize(vec blas32.Vector) {
	norm := Norm(vec)
	if norm == 0.0 {
		return
	}
	blas32.Scal(1.0/norm, vec)
}

func MaxAbsDiff(a, b blas32.Vector) float32 {
	var max float32
	for i, e := range a.Data {
		d := math32.Abs(e - b.Data[i])
		if d > max {
			max = d
		}
	}
	return max
}

// Affine computes xᵀW + b for a single sample.
func Affine(x blas32.Vector, w blas32.General, b blas32.Vector) blas32.Vector {
	yn := len(b.Data)
	y := blas32.Vector{N: yn, Inc: 1, Data: make([]float32, yn)}
	blas32.Copy(b, y)
	blas32.Gemv(blas.Trans, 1.0, w, x, 1.0, y)
	return y
}
