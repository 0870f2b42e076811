// Package model provides the shared estimator interfaces and training state
// for all model families wrapped by the experiment harness.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Estimator is the interface for models that can be trained in one shot.
type Estimator interface {
	// Fit trains the model on the given features and labels.
	Fit(X, y mat.Matrix) error

	// IsFitted reports whether Fit has completed successfully.
	IsFitted() bool
}

// Predictor is the interface for models that can make predictions.
type Predictor interface {
	// Predict returns an n×1 matrix of predictions for the given features.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Regressor combines the capability surface the harness depends on.
// Every wrapped model family (tree ensemble, gradient boosting, neural,
// transformer) exposes exactly this.
type Regressor interface {
	Estimator
	Predictor
}

// EpochTrainer is implemented by models trained iteratively. The harness
// trainer drives one epoch at a time so it can apply the monitored-metric
// early-stopping policy and restore the best-observed state.
type EpochTrainer interface {
	Regressor

	// TrainEpoch runs a single training epoch over X/y and returns the
	// training loss for that epoch.
	TrainEpoch(X, y mat.Matrix) (float64, error)

	// Snapshot captures the current trainable state so it can be restored
	// later. Called by the trainer whenever the monitored metric improves.
	Snapshot()

	// Restore reinstates the most recent Snapshot. Called once at the end
	// of training so the returned model carries the best-observed state,
	// not the final epoch's.
	Restore()
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}
