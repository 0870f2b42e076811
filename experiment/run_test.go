package experiment

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/boosting"
	"github.com/tabexp-labs/tabexp/core/model"
	"github.com/tabexp-labs/tabexp/dataset"
	"github.com/tabexp-labs/tabexp/tracking"
)

func syntheticPartitions(t *testing.T, n int, seed int64) *dataset.Partitions {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 4, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a := rng.NormFloat64()
		b := rng.NormFloat64()
		c := rng.NormFloat64()
		d := rng.NormFloat64()
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		X.Set(i, 2, c)
		X.Set(i, 3, d)
		y.SetVec(i, 3*a-2*b+c*c+0.1*d)
	}
	table := &dataset.Table{
		X:            X,
		Y:            y,
		FeatureNames: []string{"a", "b", "c", "d"},
		LabelName:    "target",
	}
	parts, err := dataset.Prepare(table, dataset.PrepareOptions{Seed: seed})
	require.NoError(t, err)
	return parts
}

func gbmExperiment() *Config {
	return &Config{
		Name: "synthetic-gbm",
		Seed: 42,
		Tags: map[string]string{"dataset": "synthetic"},
		Data: DataConfig{
			Path:         "ignored.csv",
			Label:        "target",
			TestFraction: 0.2,
			ValFraction:  0.2,
		},
		Train: TrainConfig{Epochs: 30, Patience: 8},
		Model: ModelConfig{
			Kind: ModelGradientBoosting,
			GradientBoosting: &GradientBoostingConfig{
				NEstimators:    30,
				LearningRate:   0.1,
				MaxDepth:       3,
				MinSamplesLeaf: 1,
			},
		},
	}
}

func TestExecuteEndToEnd(t *testing.T) {
	parts := syntheticPartitions(t, 400, 1)
	store, err := tracking.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	result, err := Execute(gbmExperiment(), parts, store)
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)
	assert.False(t, math.IsNaN(result.TestRMSE))
	assert.Greater(t, result.TestRMSE, 0.0)
	require.NotNil(t, result.History)
	assert.NotEmpty(t, result.History.Epochs)

	record, err := store.Get(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusCompleted, record.Status)
	assert.Equal(t, "synthetic", record.Tags["dataset"])
	assert.Contains(t, record.Params, "n_estimators")
	assert.Contains(t, record.Artifacts, ModelArtifact)
	assert.Contains(t, record.Artifacts, HistoryArtifact)

	var sawVal, sawTest bool
	for _, p := range record.Metrics {
		switch p.Name {
		case "val_rmse":
			sawVal = true
		case "test_rmse":
			sawTest = true
			assert.Equal(t, result.TestRMSE, p.Value)
		}
	}
	assert.True(t, sawVal)
	assert.True(t, sawTest)
}

func TestExecuteModelArtifactRoundTrip(t *testing.T) {
	parts := syntheticPartitions(t, 400, 2)
	store, err := tracking.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	result, err := Execute(gbmExperiment(), parts, store)
	require.NoError(t, err)

	data, err := store.LoadArtifact(result.RunID, ModelArtifact)
	require.NoError(t, err)

	restored := &boosting.GradientBoostingRegressor{}
	require.NoError(t, model.DecodeModel(restored, data))
	require.True(t, restored.IsFitted())

	want, err := result.Model.Predict(parts.Test.X)
	require.NoError(t, err)
	got, err := restored.Predict(parts.Test.X)
	require.NoError(t, err)

	rows, _ := want.Dims()
	for i := 0; i < rows; i++ {
		assert.Equal(t, want.At(i, 0), got.At(i, 0), "prediction %d differs after reload", i)
	}
}

func TestExecuteFailsFastOnInvalidConfig(t *testing.T) {
	parts := syntheticPartitions(t, 100, 3)
	store, err := tracking.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := gbmExperiment()
	cfg.Model.GradientBoosting.LearningRate = 2.0

	// Config validation fails before any run is opened.
	_, err = Execute(cfg, parts, store)
	require.Error(t, err)
	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExecuteIsDeterministic(t *testing.T) {
	parts := syntheticPartitions(t, 300, 4)

	storeA, err := tracking.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer storeA.Close()
	storeB, err := tracking.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer storeB.Close()

	a, err := Execute(gbmExperiment(), parts, storeA)
	require.NoError(t, err)
	b, err := Execute(gbmExperiment(), parts, storeB)
	require.NoError(t, err)

	assert.Equal(t, a.TestRMSE, b.TestRMSE)
	assert.Equal(t, a.History.BestEpoch, b.History.BestEpoch)
}

func TestExecuteAllRunsEveryVariant(t *testing.T) {
	parts := syntheticPartitions(t, 300, 5)
	store, err := tracking.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := gbmExperiment()
	cfg.Name = "bakeoff"
	cfg.Model = ModelConfig{}
	cfg.Variants = []Variant{
		{
			Name: "gbm",
			Model: ModelConfig{
				Kind: ModelGradientBoosting,
				GradientBoosting: &GradientBoostingConfig{
					NEstimators:    30,
					LearningRate:   0.1,
					MaxDepth:       3,
					MinSamplesLeaf: 1,
				},
			},
		},
		{
			Name: "forest",
			Tags: map[string]string{"family": "tree"},
			Model: ModelConfig{
				Kind: ModelRandomForest,
				RandomForest: &RandomForestConfig{
					NEstimators:    20,
					MaxDepth:       5,
					MinSamplesLeaf: 2,
				},
			},
		},
	}

	results, err := ExecuteAll(cfg, parts, store)
	require.NoError(t, err)
	require.Len(t, results, 2)

	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = true
		assert.Greater(t, r.TestRMSE, 0.0)
	}
	assert.True(t, names["bakeoff/gbm"])
	assert.True(t, names["bakeoff/forest"])

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		full, err := store.Get(rec.ID)
		require.NoError(t, err)
		assert.Equal(t, tracking.StatusCompleted, full.Status)
		assert.Contains(t, []string{"gbm", "forest"}, full.Tags["variant"])
		if full.Tags["variant"] == "forest" {
			assert.Equal(t, "tree", full.Tags["family"])
		} else {
			assert.Equal(t, "synthetic", full.Tags["dataset"])
		}
	}
}

func TestExecuteAllWithoutVariantsRunsOnce(t *testing.T) {
	parts := syntheticPartitions(t, 200, 6)
	store, err := tracking.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	results, err := ExecuteAll(gbmExperiment(), parts, store)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "synthetic-gbm", results[0].Name)
}
