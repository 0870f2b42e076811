package neural

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	tabexperrors "github.com/tabexp-labs/tabexp/pkg/errors"
)

func tinyTransformer(t *testing.T, kind EmbeddingKind, X *mat.Dense, y *mat.VecDense) *FTTransformerRegressor {
	t.Helper()
	m := NewFTTransformerRegressor(kind)
	m.TokenDim = 8
	m.Heads = 2
	m.Blocks = 1
	m.FFNHidden = 12
	m.Frequencies = 4
	m.Bins = 4
	m.Seed = 5
	if err := m.ensureInit(X, y); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return m
}

func transformerLoss(m *FTTransformerRegressor, X *mat.Dense, y *mat.VecDense) float64 {
	rows, cols := X.Dims()
	row := make([]float64, cols)
	var loss float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row[j] = X.At(i, j)
		}
		pred, _ := m.forwardSample(row)
		d := pred - y.AtVec(i)
		loss += d * d
	}
	return loss / float64(rows)
}

// TestTransformerGradients verifies the analytic backward pass against
// central finite differences for every trainable tensor, covering the
// embedding, CLS token, attention, layer norms, block MLP, and head.
func TestTransformerGradients(t *testing.T) {
	X, y := encoderData(3, 21)
	m := tinyTransformer(t, EmbeddingLinear, X, y)

	params := m.params()
	for _, p := range params {
		p.ZeroGrad()
	}
	rows, cols := X.Dims()
	row := make([]float64, cols)
	n := float64(rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row[j] = X.At(i, j)
		}
		pred, cache := m.forwardSample(row)
		m.backwardSample(row, 2*(pred-y.AtVec(i))/n, cache)
	}

	const eps = 1e-5
	for pi, p := range params {
		r, c := p.W.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := p.W.At(i, j)
				p.W.Set(i, j, orig+eps)
				up := transformerLoss(m, X, y)
				p.W.Set(i, j, orig-eps)
				down := transformerLoss(m, X, y)
				p.W.Set(i, j, orig)

				numeric := (up - down) / (2 * eps)
				analytic := p.Grad().At(i, j)
				tol := 1e-4 * (1 + math.Abs(numeric) + math.Abs(analytic))
				if math.Abs(numeric-analytic) > tol {
					t.Fatalf("param %d entry (%d,%d): analytic %v vs numeric %v", pi, i, j, analytic, numeric)
				}
			}
		}
	}
}

func TestTransformerLossDecreases(t *testing.T) {
	X, y := linearProblem(64, 17)

	m := NewFTTransformerRegressor(EmbeddingLinear)
	m.TokenDim = 8
	m.Heads = 2
	m.Blocks = 1
	m.FFNHidden = 16
	m.LearningRate = 1e-2
	m.Seed = 2

	first, err := m.TrainEpoch(X, y)
	if err != nil {
		t.Fatalf("TrainEpoch failed: %v", err)
	}
	var last float64
	for epoch := 0; epoch < 30; epoch++ {
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

func TestTransformerEmbeddingVariantsTrain(t *testing.T) {
	X, y := linearProblem(48, 23)

	for _, kind := range []EmbeddingKind{EmbeddingLinear, EmbeddingPeriodic, EmbeddingQuantile, EmbeddingTarget} {
		m := NewFTTransformerRegressor(kind)
		m.TokenDim = 8
		m.Heads = 2
		m.Blocks = 1
		m.FFNHidden = 12
		m.Frequencies = 4
		m.Bins = 4
		m.Seed = 4

		loss, err := m.TrainEpoch(X, y)
		if err != nil {
			t.Fatalf("%s: TrainEpoch failed: %v", kind, err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			t.Fatalf("%s: loss is not finite: %v", kind, loss)
		}

		preds, err := m.Predict(X)
		if err != nil {
			t.Fatalf("%s: Predict failed: %v", kind, err)
		}
		rows, _ := preds.Dims()
		for i := 0; i < rows; i++ {
			if math.IsNaN(preds.At(i, 0)) {
				t.Fatalf("%s: prediction %d is NaN", kind, i)
			}
		}
	}
}

func TestTransformerSnapshotRestore(t *testing.T) {
	X, y := linearProblem(32, 29)

	m := NewFTTransformerRegressor(EmbeddingLinear)
	m.TokenDim = 8
	m.Heads = 2
	m.Blocks = 1
	m.Seed = 6
	for epoch := 0; epoch < 3; epoch++ {
		if _, err := m.TrainEpoch(X, y); err != nil {
			t.Fatalf("TrainEpoch failed: %v", err)
		}
	}

	m.Snapshot()
	before, err := m.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	for epoch := 0; epoch < 5; epoch++ {
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

func TestTransformerHeadDivisibility(t *testing.T) {
	X, y := linearProblem(16, 31)

	m := NewFTTransformerRegressor(EmbeddingLinear)
	m.TokenDim = 10
	m.Heads = 4
	_, err := m.TrainEpoch(X, y)
	if err == nil {
		t.Fatal("expected error when token dimension is not divisible by heads")
	}
	var ve *tabexperrors.ValidationError
	if !tabexperrors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestTransformerNotFitted(t *testing.T) {
	m := NewFTTransformerRegressor(EmbeddingLinear)
	_, err := m.Predict(mat.NewDense(2, 3, nil))
	if err == nil {
		t.Fatal("expected error for unfitted model")
	}
	var nfe *tabexperrors.NotFittedError
	if !tabexperrors.As(err, &nfe) {
		t.Errorf("expected NotFittedError, got %v", err)
	}
}
