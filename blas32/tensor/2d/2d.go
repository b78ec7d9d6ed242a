package tensor2d

import (
	"math"
	"math/rand"
	"slices"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func NewZeros(rows, cols int) blas32.General {
	return blas32.General{
		Rows:   rows,
		Cols:   cols,
		Stride: cols,
		Data:   make([]float32, rows*cols),
	}
}

func NewZerosLike(gen blas32.General) blas32.General {
	return NewZeros(gen.Rows, gen.Cols)
}

func NewOnes(rows, cols int) blas32.General {
	gen := NewZeros(rows, cols)
	for i := range gen.Data {
		gen.Data[i] = 1.0
	}
	return gen
}

func NewEye(n int) blas32.General {
	gen := NewZeros(n, n)
	for i := 0; i < n; i++ {
		gen.Data[At(gen, i, i)] = 1.0
	}
	return gen
}

func NewHe(rows, cols int, rng *rand.Rand) blas32.General {
	gen := NewZeros(rows, cols)
	fanIn := float64(rows)
	std := math.Sqrt(2.0 / fanIn)
	for i := range gen.Data {
		gen.Data[i] = float32(rng.NormFloat64() * std)
	}
	return gen
}

func N(gen blas32.General) int {
	return gen.Rows * gen.Cols
}

func Clone(gen blas32.General) blas32.General {
	return blas32.General{
		Rows:   gen.Rows,
		Cols:   gen.Cols,
		Stride: gen.Stride,
		Data:   slices.Clone(gen.Data),
	}
}

func At(gen blas32.General, row, col int) int {
	return row*gen.Stride + col
}

func Row(gen blas32.General, row int) blas32.Vector {
	offset := row * gen.Stride
	return blas32.Vector{
		N:    gen.Cols,
		Inc:  1,
		Data: gen.Data[offset : offset+gen.Cols],
	}
}

func SetRow(gen blas32.General, row int, src blas32.Vector) {
	offset := row * gen.Stride
	copy(gen.Data[offset:offset+gen.Cols], src.Data)
}

func ToVector(gen blas32.General) blas32.Vector {
	return blas32.Vector{
		N:    N(gen),
		Inc:  1,
		Data: gen.Data,
	}
}

func Scal(alpha float32, gen blas32.General) {
	blas32.Scal(alpha, ToVector(gen))
}

func Axpy(alpha float32, x, y blas32.General) {
	blas32.Axpy(alpha, ToVector(x), ToVector(y))
}

// AddRowwise adds vec to every row of gen.
func AddRowwise(gen blas32.General, vec blas32.Vector) {
	for r := 0; r < gen.Rows; r++ {
		offset := r * gen.Stride
		for c := 0; c < gen.Cols; c++ {
			gen.Data[offset+c] += vec.Data[c]
		}
	}
}

func Sum0(gen blas32.General) blas32.Vector {
	sums := make([]float32, gen.Cols)
	for r := 0; r < gen.Rows; r++ {
		offset := r * gen.Stride
		for c := 0; c < gen.Cols; c++ {
			sums[c] += gen.Data[offset+c]
		}
	}
	return blas32.Vector{N: gen.Cols, Inc: 1, Data: sums}
}

func Sum1(gen blas32.General) blas32.Vector {
	sums := make([]float32, gen.Rows)
	for r := 0; r < gen.Rows; r++ {
		offset := r * gen.Stride
		var sum float32
		for c := 0; c < gen.Cols; c++ {
			sum += gen.Data[offset+c]
		}
		sums[r] = sum
	}
	return blas32.Vector{N: gen.Rows, Inc: 1, Data: sums}
}

func Transpose(gen blas32.General) blas32.General {
	t := NewZeros(gen.Cols, gen.Rows)
	for i := 0; i < t.Rows; i++ {
		for j := 0; j < t.Cols; j++ {
			t.Data[At(t, i, j)] = gen.Data[At(gen, j, i)]
		}
	}
	return t
}

func Dot(tA, tB blas.Transpose, a, b blas32.General) blas32.General {
	aRows := a.Rows
	if tA == blas.Trans {
		aRows = a.Cols
	}
	bCols := b.Cols
	if tB == blas.Trans {
		bCols = b.Rows
	}
	y := blas32.General{
		Rows:   aRows,
		Cols:   bCols,
		Stride: bCols,
		Data:   make([]float32, aRows*bCols),
	}
	blas32.Gemm(tA, tB, 1.0, a, b, 0.0, y)
	return y
}

// ConcatCols joins matrices with equal row counts along the column axis.
func ConcatCols(gens ...blas32.General) blas32.General {
	rows := gens[0].Rows
	cols := 0
	for _, gen := range gens {
		cols += gen.Cols
	}
	y := NewZeros(rows, cols)
	for r := 0; r < rows; r++ {
		offset := r * y.Stride
		for _, gen := range gens {
			src := gen.Data[r*gen.Stride : r*gen.Stride+gen.Cols]
			copy(y.Data[offset:offset+gen.Cols], src)
			offset += gen.Cols
		}
	}
	return y
}

// SliceCols copies the half-open column range [from, to) into a new matrix.
func SliceCols(gen blas32.General, from, to int) blas32.General {
	cols := to - from
	y := NewZeros(gen.Rows, cols)
	for r := 0; r < gen.Rows; r++ {
		src := gen.Data[r*gen.Stride+from : r*gen.Stride+to]
		copy(y.Data[r*y.Stride:r*y.Stride+cols], src)
	}
	return y
}

func MaxAbsDiff(a, b blas32.General) float32 {
	var max float32
	for r := 0; r < a.Rows; r++ {
		aOffset := r * a.Stride
		bOffset := r * b.Stride
		for c := 0; c < a.Cols; c++ {
			diff := math32.Abs(a.Data[aOffset+c] - b.Data[bOffset+c])
			if diff > max {
				max = diff
			}
		}
	}
	return max
}

// RepeatRow tiles vec into a matrix of the given row count.
func RepeatRow(vec blas32.Vector, rows int) blas32.General {
	y := NewZeros(rows, vec.N)
	for r := 0; r < rows; r++ {
		copy(y.Data[r*y.Stride:r*y.Stride+vec.N], vec.Data)
	}
	return y
}
