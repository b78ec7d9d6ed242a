package tensor3d

import (
	"slices"

	"gonum.org/v1/gonum/blas/blas32"
)

// General is a dense row-major 3-D tensor. The controller uses it for
// per-agent outputs laid out as [batch, agent, action].
type General struct {
	Channels      int
	Rows          int
	Cols          int
	ChannelStride int
	RowStride     int
	Data          []float32
}

func NewZeros(chs, rows, cols int) General {
	rowStride := cols
	chStride := rows * rowStride
	return General{
		Channels:      chs,
		Rows:          rows,
		Cols:          cols,
		ChannelStride: chStride,
		RowStride:     rowStride,
		Data:          make([]float32, chs*chStride),
	}
}

func NewZerosLike(gen General) General {
	return NewZeros(gen.Channels, gen.Rows, gen.Cols)
}

// FromMatrix reinterprets a (chs*rows) × cols matrix as [chs, rows, cols]
// without copying.
func FromMatrix(gen blas32.General, chs int) General {
	rows := gen.Rows / chs
	return General{
		Channels:      chs,
		Rows:          rows,
		Cols:          gen.Cols,
		ChannelStride: rows * gen.Stride,
		RowStride:     gen.Stride,
		Data:          gen.Data,
	}
}

// Matrix flattens the channel and row axes back into a
// (chs*rows) × cols matrix without copying.
func (g General) Matrix() blas32.General {
	return blas32.General{
		Rows:   g.Channels * g.Rows,
		Cols:   g.Cols,
		Stride: g.RowStride,
		Data:   g.Data,
	}
}

func (g General) N() int {
	return g.Channels * g.Rows * g.Cols
}

func (g General) Clone() General {
	clone := g
	clone.Data = slices.Clone(g.Data)
	return clone
}

func (g General) At(ch, row, col int) int {
	return ch*g.ChannelStride + row*g.RowStride + col
}

func (g General) ToVector() blas32.Vector {
	return blas32.Vector{
		N:    g.N(),
		Inc:  1,
		Data: g.Data,
	}
}
