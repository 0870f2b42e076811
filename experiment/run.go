package experiment

import (
	"time"

	"go.uber.org/multierr"

	"github.com/tabexp-labs/tabexp/core/model"
	"github.com/tabexp-labs/tabexp/dataset"
	"github.com/tabexp-labs/tabexp/pkg/errors"
	"github.com/tabexp-labs/tabexp/pkg/log"
	"github.com/tabexp-labs/tabexp/tracking"
)

// Artifact names logged under every successful run.
const (
	ModelArtifact   = "model.gob"
	HistoryArtifact = "history.png"
)

// Metric names logged under every run.
const (
	MetricTrainLoss = "train_loss"
	MetricValRMSE   = "val_rmse"
	MetricTestRMSE  = "test_rmse"
)

// Result is the outcome of one executed experiment.
type Result struct {
	RunID    string
	Name     string
	TestRMSE float64
	History  *History
	Model    model.Regressor
}

// Execute runs one experiment end to end: build the configured model,
// train it with early stopping, evaluate on the test partition, and
// record everything under a sealed tracking run. The run is sealed as
// failed when any stage errors.
func Execute(cfg *Config, parts *dataset.Partitions, store tracking.Store) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.GetLoggerWithName("experiment").With(
		log.VariantKey, string(cfg.Model.Kind),
	)

	result := &Result{Name: cfg.Name}
	err := tracking.WithRun(store, cfg.Name, cfg.Tags, func(run *tracking.Run) error {
		result.RunID = run.ID()
		start := time.Now()

		m, err := Build(&cfg.Model, cfg.Seed)
		if err != nil {
			return err
		}
		if pg, ok := m.(model.ParameterGetter); ok {
			if err := run.LogParams(pg.GetParams()); err != nil {
				return err
			}
		}

		trainer := NewTrainer(cfg.Train.Epochs, cfg.Train.Patience)
		history, err := trainer.Train(m, parts.Train.X, parts.Train.Y, parts.Val.X, parts.Val.Y)
		if err != nil {
			return err
		}
		result.History = history
		for i, epoch := range history.Epochs {
			if err := run.LogMetric(MetricTrainLoss, epoch, history.TrainLoss[i]); err != nil {
				return err
			}
			if err := run.LogMetric(MetricValRMSE, epoch, history.ValRMSE[i]); err != nil {
				return err
			}
		}

		testRMSE, err := Evaluate(m, parts.Test.X, parts.Test.Y)
		if err != nil {
			return err
		}
		result.TestRMSE = testRMSE
		result.Model = m
		if err := run.LogMetric(MetricTestRMSE, 0, testRMSE); err != nil {
			return err
		}

		encoded, err := model.EncodeModel(m)
		if err != nil {
			return err
		}
		if err := run.LogArtifact(ModelArtifact, encoded); err != nil {
			return err
		}
		if len(history.Epochs) > 0 {
			png, err := renderHistory(history)
			if err != nil {
				return err
			}
			if err := run.LogArtifact(HistoryArtifact, png); err != nil {
				return err
			}
		}

		logger.Info("experiment finished",
			log.RunIDKey, run.ID(),
			log.TestRMSEKey, testRMSE,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExecuteAll runs every variant of the experiment sequentially, one tracked
// run per variant. A variant that fails is sealed as failed and does not
// stop the remaining variants; all errors are returned combined. A config
// without variants executes as a single run.
func ExecuteAll(cfg *Config, parts *dataset.Partitions, store tracking.Store) ([]*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Variants) == 0 {
		result, err := Execute(cfg, parts, store)
		if err != nil {
			return nil, err
		}
		return []*Result{result}, nil
	}

	var results []*Result
	var errs error
	for _, vc := range cfg.expand() {
		result, err := Execute(vc, parts, store)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "variant %s", vc.Name))
			continue
		}
		results = append(results, result)
	}
	return results, errs
}
