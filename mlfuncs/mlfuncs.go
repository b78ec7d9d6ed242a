package mlfuncs

import (
	"github.com/chewxy/math32"
)

func Sigmoid(x float32) float32 {
	return 1.0 / (1.0 + math32.Exp(-x))
}

func Tanh(x float32) float32 {
	return math32.Tanh(x)
}

func ReLU(x float32) float32 {
	if x > 0.0 {
		return x
	}
	return 0.0
}

func ELU(x float32) float32 {
	if x > 0.0 {
		return x
	}
	return math32.Exp(x) - 1.0
}

func ReLUInPlace(xs []float32) {
	for i, x := range xs {
		if x < 0.0 {
			xs[i] = 0.0
		}
	}
}

// SoftmaxInPlace subtracts the max before exponentiation for stability.
func SoftmaxInPlace(xs []float32) {
	maxX := xs[0]
	for _, x := range xs[1:] {
		if x > maxX {
			maxX = x
		}
	}

	var sum float32
	for i, x := range xs {
		e := math32.Exp(x - maxX)
		xs[i] = e
		sum += e
	}

	for i := range xs {
		xs[i] /= sum
	}
}
