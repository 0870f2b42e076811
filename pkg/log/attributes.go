// Package log defines standard attribute keys for experiment-run logging.
//
// Using these keys consistently enables structured analysis of training and
// tracking logs across model variants.
package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "RandomForestRegressor", "FTTransformerRegressor"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "evaluate"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "experiment.trainer", "tracking.sqlite"
	ComponentKey = "ml.component"

	// VariantKey names the experiment variant being run.
	VariantKey = "run.variant"

	// RunIDKey is the tracking-store identifier of the current run.
	RunIDKey = "run.id"
)

// Data Shape
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"
)

// Training Progress and Metrics
const (
	// EpochKey records the current epoch number during training.
	EpochKey = "training.epoch"

	// TrainLossKey records the training-set loss for the current epoch.
	TrainLossKey = "metrics.train_loss"

	// ValLossKey records the monitored validation metric for the current epoch.
	ValLossKey = "metrics.val_loss"

	// TestRMSEKey records the held-out test RMSE of a finished run.
	TestRMSEKey = "metrics.test_rmse"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Error Context
const (
	// ErrKey carries an error value.
	ErrKey = "error"

	// StacktraceKey contains stack trace information for debugging.
	// Automatically populated by the error logging path.
	StacktraceKey = "error.stacktrace"
)
