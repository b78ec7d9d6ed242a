package taskrepre_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"

	"github.com/chenf-ai/MATTAR/blas32/vector"
	"github.com/chenf-ai/MATTAR/taskrepre"
	orand "github.com/sw965/omw/math/rand"
)

func TestOrthonormality(t *testing.T) {
	rng := orand.NewMt19937()
	tasks := []string{"3m", "5m_vs_6m"}
	store, err := taskrepre.NewStore(tasks, 8, rng)
	if err != nil {
		t.Fatal(err)
	}

	a, err := store.Get("3m")
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Get("5m_vs_6m")
	if err != nil {
		t.Fatal(err)
	}

	av, bv := a.Vector(), b.Vector()
	if math32.Abs(vector.Norm(av)-1.0) > 1e-5 {
		t.Errorf("norm of first representation = %v, want 1", vector.Norm(av))
	}
	if math32.Abs(vector.Norm(bv)-1.0) > 1e-5 {
		t.Errorf("norm of second representation = %v, want 1", vector.Norm(bv))
	}
	if dot := vector.Dot(av, bv); math32.Abs(dot) > 1e-5 {
		t.Errorf("representations not orthogonal, dot = %v", dot)
	}
}

func TestPairwiseOrthogonalUpToDim(t *testing.T) {
	rng := orand.NewMt19937()
	tasks := []string{"a", "b", "c", "d"}
	store, err := taskrepre.NewStore(tasks, 4, rng)
	if err != nil {
		t.Fatal(err)
	}

	for i, ti := range tasks {
		for _, tj := range tasks[i+1:] {
			a, _ := store.Get(ti)
			b, _ := store.Get(tj)
			if dot := vector.Dot(a.Vector(), b.Vector()); math32.Abs(dot) > 1e-5 {
				t.Errorf("dot(%s, %s) = %v, want 0", ti, tj, dot)
			}
		}
	}
}

func TestMoreTasksThanDims(t *testing.T) {
	rng := orand.NewMt19937()
	tasks := []string{"a", "b", "c"}
	store, err := taskrepre.NewStore(tasks, 2, rng)
	if err != nil {
		t.Fatal(err)
	}
	// beyond dim, only unit norm can be guaranteed
	for _, name := range tasks {
		r, err := store.Get(name)
		if err != nil {
			t.Fatal(err)
		}
		if math32.Abs(vector.Norm(r.Vector())-1.0) > 1e-5 {
			t.Errorf("norm of %q = %v, want 1", name, vector.Norm(r.Vector()))
		}
	}
}

func TestGetUnknownTask(t *testing.T) {
	rng := orand.NewMt19937()
	store, err := taskrepre.NewStore([]string{"3m"}, 4, rng)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("8m"); !errors.Is(err, taskrepre.ErrUnknownTask) {
		t.Errorf("got %v, want ErrUnknownTask", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	rng := orand.NewMt19937()
	store, err := taskrepre.NewStore([]string{"3m"}, 4, rng)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := store.Get("3m")
	a[0] += 100.0
	b, _ := store.Get("3m")
	if a[0] == b[0] {
		t.Errorf("mutating a returned representation leaked into the store")
	}
}

func TestBroadcast(t *testing.T) {
	rng := orand.NewMt19937()
	store, err := taskrepre.NewStore([]string{"3m"}, 4, rng)
	if err != nil {
		t.Fatal(err)
	}
	gen, err := store.Broadcast("3m", 6)
	if err != nil {
		t.Fatal(err)
	}
	if gen.Rows != 6 || gen.Cols != 4 {
		t.Fatalf("got shape (%d, %d), want (6, 4)", gen.Rows, gen.Cols)
	}
	first := gen.Data[:4]
	for r := 1; r < 6; r++ {
		for c := 0; c < 4; c++ {
			if gen.Data[r*gen.Stride+c] != first[c] {
				t.Fatalf("row %d differs from row 0", r)
			}
		}
	}
}

func TestSaveLoadJSON(t *testing.T) {
	rng := orand.NewMt19937()
	store, err := taskrepre.NewStore([]string{"3m", "8m"}, 8, rng)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "3m_repre.json")
	if err := store.SaveJSON(path, "3m"); err != nil {
		t.Fatal(err)
	}

	original, _ := store.Get("3m")

	other, err := taskrepre.NewStore([]string{"3m", "8m"}, 8, rng)
	if err != nil {
		t.Fatal(err)
	}
	if err := other.LoadJSON(path, "3m"); err != nil {
		t.Fatal(err)
	}

	loaded, _ := other.Get("3m")
	if vector.MaxAbsDiff(original.Vector(), loaded.Vector()) > 1e-6 {
		t.Errorf("loaded representation differs from the saved one")
	}
}
