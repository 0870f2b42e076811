package neural

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	tabexperrors "github.com/tabexp-labs/tabexp/pkg/errors"
)

func linearProblem(n int, seed int64) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a := rng.NormFloat64()
		b := rng.NormFloat64()
		c := rng.NormFloat64()
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		X.Set(i, 2, c)
		y.SetVec(i, 2*a-b+0.5*c)
	}
	return X, y
}

func TestMLPLossDecreases(t *testing.T) {
	X, y := linearProblem(128, 7)

	m := NewMLPRegressor()
	m.HiddenLayers = []int{16}
	m.LearningRate = 1e-2
	m.Seed = 1

	first, err := m.TrainEpoch(X, y)
	if err != nil {
		t.Fatalf("TrainEpoch failed: %v", err)
	}
	var last float64
	for epoch := 0; epoch < 150; epoch++ {
		last, err = m.TrainEpoch(X, y)
		if err != nil {
			t.Fatalf("TrainEpoch failed at epoch %d: %v", epoch, err)
		}
	}
	if math.IsNaN(last) || math.IsInf(last, 0) {
		t.Fatalf("final loss is not finite: %v", last)
	}
	if last >= first {
		t.Errorf("loss did not decrease: first=%v last=%v", first, last)
	}
}

func TestMLPSnapshotRestore(t *testing.T) {
	X, y := linearProblem(64, 11)

	m := NewMLPRegressor()
	m.HiddenLayers = []int{8}
	m.Seed = 3
	for epoch := 0; epoch < 5; epoch++ {
		if _, err := m.TrainEpoch(X, y); err != nil {
			t.Fatalf("TrainEpoch failed: %v", err)
		}
	}

	m.Snapshot()
	before, err := m.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	for epoch := 0; epoch < 10; epoch++ {
		if _, err := m.TrainEpoch(X, y); err != nil {
			t.Fatalf("TrainEpoch failed: %v", err)
		}
	}
	m.Restore()

	after, err := m.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	rows, _ := before.Dims()
	for i := 0; i < rows; i++ {
		if before.At(i, 0) != after.At(i, 0) {
			t.Fatalf("prediction %d changed after restore: %v != %v", i, before.At(i, 0), after.At(i, 0))
		}
	}
}

func TestMLPNotFitted(t *testing.T) {
	m := NewMLPRegressor()
	_, err := m.Predict(mat.NewDense(2, 3, nil))
	if err == nil {
		t.Fatal("expected error for unfitted model")
	}
	var nfe *tabexperrors.NotFittedError
	if !tabexperrors.As(err, &nfe) {
		t.Errorf("expected NotFittedError, got %v", err)
	}
}

func TestMLPDimensionMismatch(t *testing.T) {
	X, y := linearProblem(32, 5)
	m := NewMLPRegressor()
	m.HiddenLayers = []int{4}
	if _, err := m.TrainEpoch(X, y); err != nil {
		t.Fatalf("TrainEpoch failed: %v", err)
	}

	_, err := m.Predict(mat.NewDense(4, 5, nil))
	if err == nil {
		t.Fatal("expected error for mismatched feature count")
	}
	var de *tabexperrors.DimensionError
	if !tabexperrors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

func TestMLPDropoutOffAtInference(t *testing.T) {
	X, y := linearProblem(64, 13)
	m := NewMLPRegressor()
	m.HiddenLayers = []int{8}
	m.Dropout = 0.5
	if _, err := m.TrainEpoch(X, y); err != nil {
		t.Fatalf("TrainEpoch failed: %v", err)
	}

	p1, err := m.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	p2, err := m.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	rows, _ := p1.Dims()
	for i := 0; i < rows; i++ {
		if p1.At(i, 0) != p2.At(i, 0) {
			t.Fatalf("inference is not deterministic at row %d", i)
		}
	}
}
