package experiment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/core/model"
	"github.com/tabexp-labs/tabexp/metrics"
	"github.com/tabexp-labs/tabexp/pkg/errors"
	"github.com/tabexp-labs/tabexp/pkg/log"
)

// History records the training curve of one experiment.
type History struct {
	// Epochs holds the 1-based epoch numbers that were run.
	Epochs []int
	// TrainLoss is the mean training loss per epoch.
	TrainLoss []float64
	// ValRMSE is the validation RMSE per epoch.
	ValRMSE []float64
	// BestEpoch is the 1-based epoch whose weights the model kept.
	// 0 for one-shot models.
	BestEpoch int
	// BestValRMSE is the validation RMSE at BestEpoch, or the single
	// post-fit validation RMSE for one-shot models.
	BestValRMSE float64
	// EarlyStopped reports whether patience ran out before the budget.
	EarlyStopped bool
}

// Trainer drives epoch-wise models with early stopping on validation
// RMSE and restores the best weights afterwards. Models that only
// support one-shot fitting are fit once and evaluated.
type Trainer struct {
	// Epochs is the hard budget for epoch-wise models.
	Epochs int
	// Patience is the number of epochs without improvement tolerated
	// before stopping. 0 disables early stopping.
	Patience int

	logger log.Logger
}

// NewTrainer creates a trainer with the given budget and patience.
func NewTrainer(epochs, patience int) *Trainer {
	return &Trainer{
		Epochs:   epochs,
		Patience: patience,
		logger:   log.GetLoggerWithName("experiment.trainer"),
	}
}

// Train fits the model on the training partition, monitoring the
// validation partition. The model is left holding the weights of its
// best validation epoch. A panic inside the model (a mat shape
// mismatch, typically) is recovered and returned as an error.
func (t *Trainer) Train(m model.Regressor, trainX *mat.Dense, trainY *mat.VecDense, valX *mat.Dense, valY *mat.VecDense) (history *History, err error) {
	defer errors.Recover(&err, "Trainer.Train")

	et, ok := m.(model.EpochTrainer)
	if !ok {
		return t.trainOneShot(m, trainX, trainY, valX, valY)
	}

	history = &History{}
	best := 0.0
	sinceBest := 0
	for epoch := 1; epoch <= t.Epochs; epoch++ {
		loss, err := et.TrainEpoch(trainX, trainY)
		if err != nil {
			return nil, err
		}
		valRMSE, err := t.validate(m, valX, valY)
		if err != nil {
			return nil, err
		}

		history.Epochs = append(history.Epochs, epoch)
		history.TrainLoss = append(history.TrainLoss, loss)
		history.ValRMSE = append(history.ValRMSE, valRMSE)

		t.logger.Debug("epoch finished",
			log.EpochKey, epoch,
			log.TrainLossKey, loss,
			log.ValLossKey, valRMSE,
		)

		if history.BestEpoch == 0 || valRMSE < best {
			best = valRMSE
			history.BestEpoch = epoch
			history.BestValRMSE = valRMSE
			sinceBest = 0
			et.Snapshot()
			continue
		}
		sinceBest++
		if t.Patience > 0 && sinceBest >= t.Patience {
			history.EarlyStopped = true
			t.logger.Info("early stopping",
				log.EpochKey, epoch,
				log.ValLossKey, best,
			)
			break
		}
	}

	if n := len(history.Epochs); n > 0 && history.BestEpoch != history.Epochs[n-1] {
		et.Restore()
	}
	return history, nil
}

func (t *Trainer) trainOneShot(m model.Regressor, trainX *mat.Dense, trainY *mat.VecDense, valX *mat.Dense, valY *mat.VecDense) (*History, error) {
	if err := m.Fit(trainX, trainY); err != nil {
		return nil, err
	}
	valRMSE, err := t.validate(m, valX, valY)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("one-shot fit finished", log.ValLossKey, valRMSE)
	return &History{BestValRMSE: valRMSE}, nil
}

func (t *Trainer) validate(m model.Regressor, valX *mat.Dense, valY *mat.VecDense) (float64, error) {
	preds, err := m.Predict(valX)
	if err != nil {
		return 0, err
	}
	return metrics.RMSEMatrix(valY, preds)
}

// Evaluate computes the test RMSE of a fitted model. A panic inside the
// model's Predict is recovered and returned as an error.
func Evaluate(m model.Regressor, testX *mat.Dense, testY *mat.VecDense) (float64, error) {
	var rmse float64
	err := errors.SafeExecute("experiment.Evaluate", func() error {
		preds, err := m.Predict(testX)
		if err != nil {
			return err
		}
		rmse, err = metrics.RMSEMatrix(testY, preds)
		return err
	})
	return rmse, err
}
