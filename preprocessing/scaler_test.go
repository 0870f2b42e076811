package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestStandardScalerFitTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1.0, 10.0,
		2.0, 20.0,
		3.0, 30.0,
		4.0, 40.0,
	})

	scaler := NewStandardScaler()
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}

	// Each column of the output must have mean 0 and (population) std 1.
	r, c := scaled.Dims()
	for j := 0; j < c; j++ {
		var sum, sumSq float64
		for i := 0; i < r; i++ {
			v := scaled.At(i, j)
			sum += v
			sumSq += v * v
		}
		mean := sum / float64(r)
		std := math.Sqrt(sumSq/float64(r) - mean*mean)
		if math.Abs(mean) > 1e-10 {
			t.Errorf("column %d mean = %v, want 0", j, mean)
		}
		if math.Abs(std-1.0) > 1e-10 {
			t.Errorf("column %d std = %v, want 1", j, std)
		}
	}
}

func TestStandardScalerStatisticsFromTrainOnly(t *testing.T) {
	train := mat.NewDense(3, 1, []float64{1.0, 2.0, 3.0})

	scaler := NewStandardScaler()
	if err := scaler.Fit(train); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	wantMean := scaler.Mean[0]
	wantScale := scaler.Scale[0]

	// Transforming unrelated data must not change the fitted statistics.
	other := mat.NewDense(2, 1, []float64{100.0, -100.0})
	if _, err := scaler.Transform(other); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if scaler.Mean[0] != wantMean || scaler.Scale[0] != wantScale {
		t.Errorf("scaler statistics changed after Transform: mean %v->%v, scale %v->%v",
			wantMean, scaler.Mean[0], wantScale, scaler.Scale[0])
	}

	// The transform of a known value must use train statistics exactly.
	got, err := scaler.Transform(mat.NewDense(1, 1, []float64{2.0}))
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if math.Abs(got.At(0, 0)) > 1e-12 {
		t.Errorf("Transform(mean) = %v, want 0", got.At(0, 0))
	}
}

func TestStandardScalerNotFitted(t *testing.T) {
	scaler := NewStandardScaler()
	if _, err := scaler.Transform(mat.NewDense(1, 1, []float64{1.0})); err == nil {
		t.Error("Transform() on unfitted scaler should return error")
	}
}

func TestStandardScalerDimensionMismatch(t *testing.T) {
	scaler := NewStandardScaler()
	if err := scaler.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if _, err := scaler.Transform(mat.NewDense(2, 3, nil)); err == nil {
		t.Error("Transform() with wrong feature count should return error")
	}
}

func TestStandardScalerInverseTransform(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1.0, -5.0,
		2.0, 0.0,
		3.0, 5.0,
	})

	scaler := NewStandardScaler()
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}
	restored, err := scaler.InverseTransform(scaled)
	if err != nil {
		t.Fatalf("InverseTransform() error = %v", err)
	}

	r, c := X.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.Abs(restored.At(i, j)-X.At(i, j)) > 1e-10 {
				t.Errorf("restored[%d,%d] = %v, want %v", i, j, restored.At(i, j), X.At(i, j))
			}
		}
	}
}
