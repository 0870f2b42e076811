// Package boosting provides the gradient-boosted-tree model family.
//
// Boosting rounds map one-to-one onto the harness trainer's epochs, so the
// monitored-metric early-stopping policy can truncate the ensemble back to
// the best-observed round before the model is recorded.
package boosting

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/core/model"
	"github.com/tabexp-labs/tabexp/pkg/errors"
	"github.com/tabexp-labs/tabexp/tree"
)

// GradientBoostingRegressor fits shallow regression trees stage-wise to the
// residuals of the running prediction, shrunk by the learning rate.
type GradientBoostingRegressor struct {
	model.BaseEstimator

	// NEstimators is the boosting-round budget used by the one-shot Fit
	// path. The epoch-wise path is budgeted by the harness trainer instead.
	NEstimators int

	// LearningRate shrinks each tree's contribution. Default 0.1.
	LearningRate float64

	// MaxDepth limits each tree's depth. Default 3.
	MaxDepth int

	// MinSamplesLeaf is the minimum number of rows per leaf. Default 1.
	MinSamplesLeaf int

	// Seed drives feature subsampling inside the trees.
	Seed int64

	// InitScore is the constant base prediction (train-label mean).
	InitScore float64

	// Trees holds the fitted stages.
	Trees []*tree.RegressionTree

	// NFeatures is the feature count seen during training.
	NFeatures int

	// residuals caches the running training residuals between epoch calls.
	// Rebuilt automatically if the training set changes shape.
	residuals []float64

	// snapshotLen is the ensemble length captured by Snapshot.
	snapshotLen int
}

// NewGradientBoostingRegressor creates a booster with default parameters.
func NewGradientBoostingRegressor() *GradientBoostingRegressor {
	return &GradientBoostingRegressor{
		NEstimators:    100,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 1,
		Seed:           42,
	}
}

// Fit runs NEstimators boosting rounds in one shot.
func (gb *GradientBoostingRegressor) Fit(X, y mat.Matrix) error {
	for round := 0; round < gb.NEstimators; round++ {
		if _, err := gb.TrainEpoch(X, y); err != nil {
			return err
		}
	}
	return nil
}

// TrainEpoch adds one boosting round and returns the training MSE after it.
func (gb *GradientBoostingRegressor) TrainEpoch(X, y mat.Matrix) (float64, error) {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return 0, errors.NewModelError("GradientBoostingRegressor.TrainEpoch", "empty data", errors.ErrEmptyData)
	}
	if yRows != rows {
		return 0, errors.NewDimensionError("GradientBoostingRegressor.TrainEpoch", rows, yRows, 0)
	}
	if yCols != 1 {
		return 0, errors.NewDimensionError("GradientBoostingRegressor.TrainEpoch", 1, yCols, 1)
	}

	if len(gb.Trees) == 0 || len(gb.residuals) != rows || gb.NFeatures != cols {
		gb.initTraining(X, y, rows, cols)
	}

	resMat := mat.NewDense(rows, 1, gb.residuals)
	t := tree.NewRegressionTree(gb.MaxDepth, gb.MinSamplesLeaf)
	t.Seed = gb.Seed + int64(len(gb.Trees))
	if err := t.Fit(X, resMat); err != nil {
		return 0, errors.Wrapf(err, "boosting round %d failed", len(gb.Trees))
	}
	gb.Trees = append(gb.Trees, t)

	// Update residuals and compute the epoch training loss.
	var sse float64
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row[j] = X.At(i, j)
		}
		gb.residuals[i] -= gb.LearningRate * t.PredictRow(row)
		sse += gb.residuals[i] * gb.residuals[i]
	}
	loss := sse / float64(rows)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, errors.NewNumericalInstabilityError("boosting_round", []float64{loss}, len(gb.Trees))
	}

	gb.SetFitted()
	return loss, nil
}

func (gb *GradientBoostingRegressor) initTraining(X, y mat.Matrix, rows, cols int) {
	var sum float64
	for i := 0; i < rows; i++ {
		sum += y.At(i, 0)
	}
	gb.InitScore = sum / float64(rows)
	gb.NFeatures = cols
	gb.Trees = gb.Trees[:0]
	gb.residuals = make([]float64, rows)
	for i := 0; i < rows; i++ {
		gb.residuals[i] = y.At(i, 0) - gb.InitScore
	}
}

// Snapshot records the current ensemble length as the best-observed state.
func (gb *GradientBoostingRegressor) Snapshot() {
	gb.snapshotLen = len(gb.Trees)
}

// Restore truncates the ensemble back to the last Snapshot, discarding
// rounds trained after the monitored metric stopped improving.
func (gb *GradientBoostingRegressor) Restore() {
	if gb.snapshotLen > 0 && gb.snapshotLen <= len(gb.Trees) {
		gb.Trees = gb.Trees[:gb.snapshotLen]
	}
}

// Predict returns init score plus the shrunk sum of all stage predictions.
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !gb.IsFitted() {
		return nil, errors.NewNotFittedError("GradientBoostingRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != gb.NFeatures {
		return nil, errors.NewDimensionError("GradientBoostingRegressor.Predict", gb.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row[j] = X.At(i, j)
		}
		pred := gb.InitScore
		for _, t := range gb.Trees {
			pred += gb.LearningRate * t.PredictRow(row)
		}
		out.Set(i, 0, pred)
	}
	return out, nil
}

// GetParams returns the booster's hyperparameters.
func (gb *GradientBoostingRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     gb.NEstimators,
		"learning_rate":    gb.LearningRate,
		"max_depth":        gb.MaxDepth,
		"min_samples_leaf": gb.MinSamplesLeaf,
		"random_state":     gb.Seed,
	}
}
