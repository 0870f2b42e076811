// Package tracking persists experiment runs: hyperparameters, metric
// curves, and binary artifacts, keyed by run ID. A run is a write-once
// record: it opens, accepts logs, and is sealed exactly once.
package tracking

import (
	"sync"

	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// RunState is the lifecycle position of a run handle.
type RunState int

const (
	// RunNotStarted is the zero value; no backing row exists yet.
	RunNotStarted RunState = iota
	// RunOpen accepts parameter, metric, and artifact writes.
	RunOpen
	// RunSealed rejects all further writes.
	RunSealed
)

func (s RunState) String() string {
	switch s {
	case RunOpen:
		return "open"
	case RunSealed:
		return "sealed"
	default:
		return "not_started"
	}
}

// RunStatus is the terminal outcome recorded when a run is sealed.
type RunStatus string

const (
	StatusOpen      RunStatus = "open"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// runWriter is the store-side write surface a Run delegates to.
type runWriter interface {
	logParams(runID string, params map[string]interface{}) error
	logMetric(runID, name string, step int, value float64) error
	logArtifact(runID, name string, data []byte) error
	seal(runID string, status RunStatus, errMsg string) error
}

// Run is a handle to an open experiment run. All methods are safe for
// concurrent use; writes fail once the run is sealed.
type Run struct {
	mu    sync.Mutex
	id    string
	name  string
	state RunState
	store runWriter
}

// ID returns the run's unique identifier.
func (r *Run) ID() string { return r.id }

// Name returns the experiment name the run was opened under.
func (r *Run) Name() string { return r.name }

// State returns the current lifecycle state.
func (r *Run) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Run) guardOpen() error {
	switch r.state {
	case RunOpen:
		return nil
	case RunSealed:
		return errors.Wrapf(errors.ErrRunSealed, "run %s", r.id)
	default:
		return errors.Wrapf(errors.ErrRunNotOpen, "run %s", r.id)
	}
}

// LogParams records hyperparameters. Values are stored in their string
// representation.
func (r *Run) LogParams(params map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guardOpen(); err != nil {
		return err
	}
	return r.store.logParams(r.id, params)
}

// LogMetric appends one point of a named metric curve at the given step.
func (r *Run) LogMetric(name string, step int, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guardOpen(); err != nil {
		return err
	}
	return r.store.logMetric(r.id, name, step, value)
}

// LogArtifact stores a named binary blob under the run.
func (r *Run) LogArtifact(name string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guardOpen(); err != nil {
		return err
	}
	return r.store.logArtifact(r.id, name, data)
}

// Seal closes the run with a terminal status: completed when runErr is
// nil, failed otherwise. Sealing twice returns ErrRunSealed.
func (r *Run) Seal(runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guardOpen(); err != nil {
		return err
	}

	status := StatusCompleted
	var msg string
	if runErr != nil {
		status = StatusFailed
		msg = runErr.Error()
	}
	if err := r.store.seal(r.id, status, msg); err != nil {
		return err
	}
	r.state = RunSealed
	return nil
}
