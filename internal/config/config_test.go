package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabexp-labs/tabexp/experiment"
	"github.com/tabexp-labs/tabexp/neural"
)

const sampleYAML = `name: housing-gbm
seed: 7
tags:
  dataset: housing
data:
  path: data/housing.csv
  label: median_value
train:
  epochs: 50
model:
  kind: gradient_boosting
  gradient_boosting:
    n_estimators: 200
    learning_rate: 0.05
    max_depth: 4
    min_samples_leaf: 2
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "housing-gbm", cfg.Name)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "housing", cfg.Tags["dataset"])
	assert.Equal(t, "data/housing.csv", cfg.Data.Path)
	assert.Equal(t, experiment.ModelGradientBoosting, cfg.Model.Kind)
	require.NotNil(t, cfg.Model.GradientBoosting)
	assert.Equal(t, 200, cfg.Model.GradientBoosting.NEstimators)
	assert.Equal(t, 0.05, cfg.Model.GradientBoosting.LearningRate)

	// Defaults fill anything the file leaves out.
	assert.Equal(t, 0.2, cfg.Data.TestFraction)
	assert.Equal(t, 0.2, cfg.Data.ValFraction)
	assert.Equal(t, 50, cfg.Train.Epochs)
	assert.Equal(t, 16, cfg.Train.Patience)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TABEXP_TRAIN__EPOCHS", "25")
	t.Setenv("TABEXP_DATA__TEST_FRACTION", "0.3")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Train.Epochs)
	assert.Equal(t, 0.3, cfg.Data.TestFraction)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	bad := sampleYAML + "    # override below\n"
	cfg := writeConfig(t, bad)
	t.Setenv("TABEXP_MODEL__GRADIENT_BOOSTING__LEARNING_RATE", "1.5")
	_, err := Load(cfg)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

const variantYAML = `name: embedding-bakeoff
seed: 7
data:
  path: data/housing.csv
  label: median_value
train:
  epochs: 40
  patience: 6
variants:
  - name: linear
    model:
      kind: ft_transformer
      ft_transformer:
        embedding: linear
        token_dim: 32
        blocks: 2
        heads: 4
        learning_rate: 0.001
        batch_size: 64
  - name: periodic
    tags:
      family: fourier
    model:
      kind: ft_transformer
      ft_transformer:
        embedding: periodic
        token_dim: 32
        blocks: 2
        heads: 4
        frequencies: 16
        sigma: 1.0
        learning_rate: 0.001
        batch_size: 64
`

func TestLoadVariants(t *testing.T) {
	cfg, err := Load(writeConfig(t, variantYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Variants, 2)
	assert.Equal(t, "linear", cfg.Variants[0].Name)
	require.NotNil(t, cfg.Variants[0].Model.FTTransformer)
	assert.Equal(t, neural.EmbeddingLinear, neural.EmbeddingKind(cfg.Variants[0].Model.FTTransformer.Embedding))
	assert.Equal(t, "fourier", cfg.Variants[1].Tags["family"])
	assert.Equal(t, 16, cfg.Variants[1].Model.FTTransformer.Frequencies)
}
