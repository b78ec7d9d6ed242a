package taskrepre

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	tensor2d "github.com/chenf-ai/MATTAR/blas32/tensor/2d"
	omwjson "github.com/sw965/omw/json"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"
)

var ErrUnknownTask = errors.New("no representation for task")

// Repre is a frozen task representation. It is a value type without
// mutating methods; the store hands out copies, so nothing downstream can
// train or corrupt the stored vector.
type Repre []float32

func (r Repre) Dim() int {
	return len(r)
}

func (r Repre) Vector() blas32.Vector {
	return blas32.Vector{
		N:    len(r),
		Inc:  1,
		Data: slices.Clone(r),
	}
}

// Store holds one representation per training task. The vectors are
// mutually orthogonal and unit-norm whenever the task count does not
// exceed the representation dimension.
type Store struct {
	dim    int
	repres map[string]Repre
}

// NewStore draws a Gaussian matrix and orthonormalizes it with a QR
// factorization; the columns of Q give the representations. Tasks beyond
// the first dim cannot be orthogonal to the rest and get independent
// unit-normalized Gaussian vectors instead.
func NewStore(tasks []string, dim int, rng *rand.Rand) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("task representation dim must be positive, got %d", dim)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task representation store needs at least one task")
	}

	k := len(tasks)
	if k > dim {
		k = dim
	}
	data := make([]float64, dim*k)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	a := mat.NewDense(dim, k, data)

	var qr mat.QR
	qr.Factorize(a)
	var q mat.Dense
	qr.QTo(&q)

	repres := make(map[string]Repre, len(tasks))
	for i, name := range tasks {
		if _, ok := repres[name]; ok {
			return nil, fmt.Errorf("duplicate task name %q", name)
		}
		r := make(Repre, dim)
		if i < dim {
			for j := 0; j < dim; j++ {
				r[j] = float32(q.At(j, i))
			}
		} else {
			raw := make([]float64, dim)
			for j := range raw {
				raw[j] = rng.NormFloat64()
			}
			norm := mat.Norm(mat.NewVecDense(dim, raw), 2)
			for j := range raw {
				r[j] = float32(raw[j] / norm)
			}
		}
		repres[name] = r
	}

	return &Store{dim: dim, repres: repres}, nil
}

func (s *Store) Dim() int {
	return s.dim
}

func (s *Store) Get(taskName string) (Repre, error) {
	r, ok := s.repres[taskName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	return slices.Clone(r), nil
}

// Broadcast tiles the task's representation across rows, one row per
// (batch element × agent).
func (s *Store) Broadcast(taskName string, rows int) (blas32.General, error) {
	r, ok := s.repres[taskName]
	if !ok {
		return blas32.General{}, fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	return tensor2d.RepeatRow(blas32.Vector{N: len(r), Inc: 1, Data: r}, rows), nil
}

// SaveJSON persists one task's representation on its own, independent of
// the network weight bundles.
func (s *Store) SaveJSON(path, taskName string) error {
	r, ok := s.repres[taskName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskName)
	}
	return omwjson.Write[Repre](&r, path)
}

func (s *Store) LoadJSON(path, taskName string) error {
	r, err := omwjson.Load[Repre](path)
	if err != nil {
		return err
	}
	if len(r) != s.dim {
		return fmt.Errorf("representation for task %q has dim %d, store expects %d", taskName, len(r), s.dim)
	}
	s.repres[taskName] = r
	return nil
}
