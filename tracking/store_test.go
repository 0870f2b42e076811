package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabexp-labs/tabexp/pkg/errors"
)

func TestWithRunSealsOnSuccess(t *testing.T) {
	store := newTestStore(t)

	var runID string
	err := WithRun(store, "exp", nil, func(r *Run) error {
		runID = r.ID()
		return r.LogMetric("val_rmse", 1, 0.4)
	})
	require.NoError(t, err)

	record, err := store.Get(runID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, record.Status)
}

func TestWithRunSealsOnError(t *testing.T) {
	store := newTestStore(t)

	boom := errors.New("boom")
	var runID string
	err := WithRun(store, "exp", nil, func(r *Run) error {
		runID = r.ID()
		return boom
	})
	assert.ErrorIs(t, err, boom)

	record, err := store.Get(runID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, record.Status)
	assert.Contains(t, record.Error, "boom")
}

func TestWithRunSealsOnPanic(t *testing.T) {
	store := newTestStore(t)

	var runID string
	err := WithRun(store, "exp", nil, func(r *Run) error {
		runID = r.ID()
		panic("unexpected state")
	})
	require.Error(t, err)
	var pe *errors.PanicError
	assert.True(t, errors.As(err, &pe))

	record, getErr := store.Get(runID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusFailed, record.Status)
}

func TestWithRunToleratesEarlySeal(t *testing.T) {
	store := newTestStore(t)

	var runID string
	err := WithRun(store, "exp", nil, func(r *Run) error {
		runID = r.ID()
		return r.Seal(nil)
	})
	require.NoError(t, err)

	record, getErr := store.Get(runID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusCompleted, record.Status)
}

// brokenSealStore hands out open runs whose seal always fails, as a
// store does when the database disappears mid-run.
type brokenSealStore struct {
	sealErr error
}

func (s *brokenSealStore) Open(name string, _ map[string]string) (*Run, error) {
	return &Run{id: "run-broken", name: name, state: RunOpen, store: s}, nil
}

func (s *brokenSealStore) Get(string) (*RunRecord, error)             { return nil, errors.New("unsupported") }
func (s *brokenSealStore) List() ([]*RunRecord, error)                { return nil, errors.New("unsupported") }
func (s *brokenSealStore) LoadArtifact(string, string) ([]byte, error) { return nil, errors.New("unsupported") }
func (s *brokenSealStore) Close() error                               { return nil }

func (s *brokenSealStore) logParams(string, map[string]interface{}) error { return nil }
func (s *brokenSealStore) logMetric(string, string, int, float64) error   { return nil }
func (s *brokenSealStore) logArtifact(string, string, []byte) error       { return nil }
func (s *brokenSealStore) seal(string, RunStatus, string) error           { return s.sealErr }

func TestWithRunSurfacesSealFailure(t *testing.T) {
	sealErr := errors.New("tabexp: database is gone")
	store := &brokenSealStore{sealErr: sealErr}

	// A failing body must not swallow a failing seal, and vice versa.
	bodyErr := errors.New("tabexp: training blew up")
	err := WithRun(store, "exp", nil, func(*Run) error { return bodyErr })
	require.Error(t, err)
	assert.True(t, errors.Is(err, bodyErr))
	assert.True(t, errors.Is(err, sealErr))

	// On a successful body the seal failure is the only error.
	err = WithRun(store, "exp", nil, func(*Run) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, sealErr))
}
