package tracking

import (
	"time"

	"go.uber.org/multierr"

	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// MetricPoint is one recorded value of a named metric curve.
type MetricPoint struct {
	Name     string
	Step     int
	Value    float64
	LoggedAt time.Time
}

// RunRecord is the persisted view of a run. Get returns it fully
// populated; List fills only the run row and its tags.
type RunRecord struct {
	ID        string
	Name      string
	Status    RunStatus
	Error     string
	Tags      map[string]string
	Params    map[string]string
	Metrics   []MetricPoint
	Artifacts []string
	StartedAt time.Time
	SealedAt  *time.Time
}

// Store persists experiment runs.
type Store interface {
	// Open creates a new run in the open state.
	Open(name string, tags map[string]string) (*Run, error)
	// Get returns a fully populated record for one run.
	Get(id string) (*RunRecord, error)
	// List returns all runs, most recent first.
	List() ([]*RunRecord, error)
	// LoadArtifact returns the named blob logged under a run.
	LoadArtifact(runID, name string) ([]byte, error)
	Close() error
}

// WithRun opens a run, passes it to fn, and seals it exactly once with
// fn's outcome. A panic inside fn seals the run as failed and is
// returned as an error rather than propagated.
func WithRun(store Store, name string, tags map[string]string, fn func(*Run) error) (err error) {
	run, err := store.Open(name, tags)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			perr := errors.NewPanicError("tracking.WithRun", r)
			err = perr
			if sealErr := run.Seal(perr); sealErr != nil && !errors.Is(sealErr, errors.ErrRunSealed) {
				err = multierr.Append(perr, sealErr)
			}
		}
	}()

	fnErr := fn(run)
	if sealErr := run.Seal(fnErr); sealErr != nil && !errors.Is(sealErr, errors.ErrRunSealed) {
		return multierr.Append(fnErr, sealErr)
	}
	return fnErr
}
