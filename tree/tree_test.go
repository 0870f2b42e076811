package tree

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestRegressionTreeStepFunction(t *testing.T) {
	// A single split at x=0.5 perfectly separates the two target levels.
	X := mat.NewDense(8, 1, []float64{0.0, 0.1, 0.2, 0.3, 0.7, 0.8, 0.9, 1.0})
	y := mat.NewDense(8, 1, []float64{1, 1, 1, 1, 5, 5, 5, 5})

	tr := NewRegressionTree(3, 1)
	if err := tr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	pred, err := tr.Predict(X)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i := 0; i < 8; i++ {
		want := y.At(i, 0)
		if math.Abs(pred.At(i, 0)-want) > 1e-12 {
			t.Errorf("pred[%d] = %v, want %v", i, pred.At(i, 0), want)
		}
	}
}

func TestRegressionTreeConstantTarget(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	y := mat.NewDense(4, 1, []float64{2.5, 2.5, 2.5, 2.5})

	tr := NewRegressionTree(0, 1)
	if err := tr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if len(tr.Nodes) != 1 || !tr.Nodes[0].Leaf {
		t.Errorf("constant target should produce a single leaf, got %d nodes", len(tr.Nodes))
	}
	pred, err := tr.Predict(mat.NewDense(1, 2, []float64{0, 0}))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if pred.At(0, 0) != 2.5 {
		t.Errorf("pred = %v, want 2.5", pred.At(0, 0))
	}
}

func TestRegressionTreeMaxDepth(t *testing.T) {
	X := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	y := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})

	tr := NewRegressionTree(1, 1)
	if err := tr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	// Depth 1 allows exactly one split: root plus two leaves.
	if len(tr.Nodes) != 3 {
		t.Errorf("depth-1 tree has %d nodes, want 3", len(tr.Nodes))
	}
}

func TestRegressionTreeNotFitted(t *testing.T) {
	tr := NewRegressionTree(2, 1)
	if _, err := tr.Predict(mat.NewDense(1, 1, []float64{0})); err == nil {
		t.Error("Predict() on unfitted tree should return error")
	}
}

func TestRegressionTreeDimensionChecks(t *testing.T) {
	tr := NewRegressionTree(2, 1)
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	y := mat.NewDense(2, 1, []float64{1, 2})
	if err := tr.Fit(X, y); err == nil {
		t.Error("Fit() with mismatched rows should return error")
	}

	y = mat.NewDense(3, 1, []float64{1, 2, 3})
	if err := tr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if _, err := tr.Predict(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("Predict() with wrong feature count should return error")
	}
}

func TestRegressionTreeDeterministic(t *testing.T) {
	X := mat.NewDense(20, 3, nil)
	y := mat.NewDense(20, 1, nil)
	for i := 0; i < 20; i++ {
		for j := 0; j < 3; j++ {
			X.Set(i, j, float64((i*7+j*3)%13))
		}
		y.Set(i, 0, float64(i%5))
	}

	tr1 := NewRegressionTree(4, 1)
	tr1.MaxFeatures = 2
	tr1.Seed = 42
	tr2 := NewRegressionTree(4, 1)
	tr2.MaxFeatures = 2
	tr2.Seed = 42

	if err := tr1.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if err := tr2.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	p1, _ := tr1.Predict(X)
	p2, _ := tr2.Predict(X)
	for i := 0; i < 20; i++ {
		if p1.At(i, 0) != p2.At(i, 0) {
			t.Fatalf("same-seed trees disagree at row %d: %v vs %v", i, p1.At(i, 0), p2.At(i, 0))
		}
	}
}
