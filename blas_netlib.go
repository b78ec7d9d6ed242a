//go:build netlib

package mattar

import (
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/netlib/blas/netlib"
)

// Building with -tags netlib routes every blas32 call through the
// system BLAS instead of the pure-Go implementation.
func init() {
	blas32.Use(netlib.Implementation{})
}
