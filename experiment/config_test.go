package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabexp-labs/tabexp/boosting"
	"github.com/tabexp-labs/tabexp/ensemble"
	"github.com/tabexp-labs/tabexp/neural"
	tabexperrors "github.com/tabexp-labs/tabexp/pkg/errors"
)

func validModelConfig() *ModelConfig {
	return &ModelConfig{
		Kind: ModelGradientBoosting,
		GradientBoosting: &GradientBoostingConfig{
			NEstimators:    50,
			LearningRate:   0.1,
			MaxDepth:       3,
			MinSamplesLeaf: 1,
		},
	}
}

func TestModelConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ModelConfig)
	}{
		{"unknown kind", func(c *ModelConfig) { c.Kind = "linear" }},
		{"missing section", func(c *ModelConfig) { c.GradientBoosting = nil }},
		{"zero estimators", func(c *ModelConfig) { c.GradientBoosting.NEstimators = 0 }},
		{"learning rate too high", func(c *ModelConfig) { c.GradientBoosting.LearningRate = 1.5 }},
		{"negative learning rate", func(c *ModelConfig) { c.GradientBoosting.LearningRate = -0.1 }},
		{"zero depth", func(c *ModelConfig) { c.GradientBoosting.MaxDepth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validModelConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var ve *tabexperrors.ValidationError
			assert.True(t, tabexperrors.As(err, &ve), "expected ValidationError, got %v", err)
		})
	}
}

func TestFTTransformerConfigValidation(t *testing.T) {
	base := func() *FTTransformerConfig {
		return &FTTransformerConfig{
			Embedding:    string(neural.EmbeddingPeriodic),
			TokenDim:     32,
			Blocks:       2,
			Heads:        4,
			Frequencies:  16,
			Sigma:        1.0,
			Bins:         8,
			LearningRate: 1e-3,
			BatchSize:    32,
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.Embedding = "fourier"
	assert.Error(t, c.Validate())

	c = base()
	c.TokenDim = 30 // not divisible by 4 heads
	assert.Error(t, c.Validate())

	c = base()
	c.Sigma = 0
	assert.Error(t, c.Validate())

	// Sigma is only required by the periodic embedding.
	c = base()
	c.Embedding = string(neural.EmbeddingLinear)
	c.Sigma = 0
	assert.NoError(t, c.Validate())

	c = base()
	c.Embedding = string(neural.EmbeddingQuantile)
	c.Bins = 1
	assert.Error(t, c.Validate())
}

func TestBuildConstructsConfiguredModel(t *testing.T) {
	cfg := &ModelConfig{
		Kind: ModelRandomForest,
		RandomForest: &RandomForestConfig{
			NEstimators:    25,
			MaxDepth:       8,
			MinSamplesLeaf: 2,
		},
	}
	m, err := Build(cfg, 99)
	require.NoError(t, err)

	rf, ok := m.(*ensemble.RandomForestRegressor)
	require.True(t, ok)
	assert.Equal(t, 25, rf.NEstimators)
	assert.Equal(t, 8, rf.MaxDepth)
	assert.Equal(t, 2, rf.MinSamplesLeaf)
	assert.Equal(t, int64(99), rf.Seed)
	assert.False(t, rf.IsFitted())
}

func TestBuildGradientBoostingIsEpochTrainer(t *testing.T) {
	m, err := Build(validModelConfig(), 7)
	require.NoError(t, err)

	gbm, ok := m.(*boosting.GradientBoostingRegressor)
	require.True(t, ok)
	assert.Equal(t, int64(7), gbm.Seed)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := validModelConfig()
	cfg.GradientBoosting.NEstimators = -1
	_, err := Build(cfg, 1)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{
		Name: "housing-gbm",
		Seed: 42,
		Data: DataConfig{
			Path:         "data/housing.csv",
			Label:        "median_value",
			TestFraction: 0.2,
			ValFraction:  0.2,
		},
		Train: TrainConfig{Epochs: 100, Patience: 10},
		Model: *validModelConfig(),
	}
	require.NoError(t, cfg.Validate())

	cfg.Name = ""
	assert.Error(t, cfg.Validate())
	cfg.Name = "housing-gbm"

	cfg.Data.TestFraction = 1.0
	assert.Error(t, cfg.Validate())
	cfg.Data.TestFraction = 0.2

	cfg.Train.Epochs = 0
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateVariants(t *testing.T) {
	cfg := &Config{
		Name: "bakeoff",
		Seed: 42,
		Data: DataConfig{
			Path:         "data/housing.csv",
			Label:        "median_value",
			TestFraction: 0.2,
			ValFraction:  0.2,
		},
		Train: TrainConfig{Epochs: 50, Patience: 5},
		Variants: []Variant{
			{Name: "a", Model: *validModelConfig()},
			{Name: "b", Model: *validModelConfig()},
		},
	}
	// Variants replace the top-level model section.
	require.NoError(t, cfg.Validate())

	cfg.Variants[1].Name = ""
	assert.Error(t, cfg.Validate())

	cfg.Variants[1].Name = "a"
	assert.Error(t, cfg.Validate())

	cfg.Variants[1].Name = "b"
	cfg.Variants[1].Model.GradientBoosting.LearningRate = 2.0
	assert.Error(t, cfg.Validate())
}

func TestConfigExpandMergesTags(t *testing.T) {
	cfg := &Config{
		Name: "bakeoff",
		Tags: map[string]string{"dataset": "housing", "owner": "ml"},
		Variants: []Variant{
			{Name: "gbm", Tags: map[string]string{"owner": "trees"}, Model: *validModelConfig()},
		},
	}
	expanded := cfg.expand()
	require.Len(t, expanded, 1)
	assert.Equal(t, "bakeoff/gbm", expanded[0].Name)
	assert.Equal(t, "housing", expanded[0].Tags["dataset"])
	assert.Equal(t, "trees", expanded[0].Tags["owner"])
	assert.Equal(t, "gbm", expanded[0].Tags["variant"])
	assert.Empty(t, expanded[0].Variants)
}
