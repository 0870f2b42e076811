// Package ensemble provides the bagged-tree baseline model family.
package ensemble

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/core/model"
	"github.com/tabexp-labs/tabexp/pkg/errors"
	"github.com/tabexp-labs/tabexp/pkg/log"
	"github.com/tabexp-labs/tabexp/tree"
)

// RandomForestRegressor averages bootstrap-trained regression trees.
// It trains in one shot; there is no epoch-wise schedule to early-stop.
type RandomForestRegressor struct {
	model.BaseEstimator

	// NEstimators is the number of trees. Default 100.
	NEstimators int

	// MaxDepth limits each tree's depth. 0 means no limit.
	MaxDepth int

	// MinSamplesLeaf is the minimum number of rows per leaf. Default 1.
	MinSamplesLeaf int

	// MaxFeatures is the number of features considered per split.
	// 0 selects ⌈√n_features⌉.
	MaxFeatures int

	// Seed drives bootstrap sampling and feature subsampling.
	Seed int64

	// Trees holds the fitted ensemble.
	Trees []*tree.RegressionTree

	// NFeatures is the feature count seen during Fit.
	NFeatures int
}

// NewRandomForestRegressor creates a forest with default parameters.
func NewRandomForestRegressor() *RandomForestRegressor {
	return &RandomForestRegressor{
		NEstimators:    100,
		MinSamplesLeaf: 1,
		Seed:           42,
	}
}

// Fit trains the forest on X/y.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RandomForestRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != rows {
		return errors.NewDimensionError("RandomForestRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("RandomForestRegressor.Fit", 1, yCols, 1)
	}

	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Ceil(math.Sqrt(float64(cols))))
	}

	logger := log.GetLoggerWithName("ensemble.random_forest")
	logger.Debug("training forest",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"n_estimators", rf.NEstimators)

	rng := rand.New(rand.NewSource(rf.Seed))
	rf.Trees = make([]*tree.RegressionTree, 0, rf.NEstimators)
	rf.NFeatures = cols

	bootX := mat.NewDense(rows, cols, nil)
	bootY := mat.NewDense(rows, 1, nil)
	for e := 0; e < rf.NEstimators; e++ {
		for i := 0; i < rows; i++ {
			src := rng.Intn(rows)
			for j := 0; j < cols; j++ {
				bootX.Set(i, j, X.At(src, j))
			}
			bootY.Set(i, 0, y.At(src, 0))
		}

		t := tree.NewRegressionTree(rf.MaxDepth, rf.MinSamplesLeaf)
		t.MaxFeatures = maxFeatures
		t.Seed = rng.Int63()
		if err := t.Fit(bootX, bootY); err != nil {
			return errors.Wrapf(err, "tree %d failed", e)
		}
		rf.Trees = append(rf.Trees, t)
	}

	rf.SetFitted()
	return nil
}

// Predict returns the mean prediction over all trees.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != rf.NFeatures {
		return nil, errors.NewDimensionError("RandomForestRegressor.Predict", rf.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row[j] = X.At(i, j)
		}
		var sum float64
		for _, t := range rf.Trees {
			sum += t.PredictRow(row)
		}
		out.Set(i, 0, sum/float64(len(rf.Trees)))
	}
	return out, nil
}

// GetParams returns the forest's hyperparameters.
func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     rf.NEstimators,
		"max_depth":        rf.MaxDepth,
		"min_samples_leaf": rf.MinSamplesLeaf,
		"max_features":     rf.MaxFeatures,
		"random_state":     rf.Seed,
	}
}
