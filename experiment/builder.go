package experiment

import (
	"github.com/tabexp-labs/tabexp/boosting"
	"github.com/tabexp-labs/tabexp/core/model"
	"github.com/tabexp-labs/tabexp/ensemble"
	"github.com/tabexp-labs/tabexp/neural"
)

// Build validates the model configuration and constructs an unfitted
// estimator. The experiment seed overrides each model's default.
func Build(cfg *ModelConfig, seed int64) (model.Regressor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case ModelRandomForest:
		c := cfg.RandomForest
		m := ensemble.NewRandomForestRegressor()
		m.NEstimators = c.NEstimators
		m.MaxDepth = c.MaxDepth
		m.MinSamplesLeaf = c.MinSamplesLeaf
		m.MaxFeatures = c.MaxFeatures
		m.Seed = seed
		return m, nil

	case ModelGradientBoosting:
		c := cfg.GradientBoosting
		m := boosting.NewGradientBoostingRegressor()
		m.NEstimators = c.NEstimators
		m.LearningRate = c.LearningRate
		m.MaxDepth = c.MaxDepth
		m.MinSamplesLeaf = c.MinSamplesLeaf
		m.Seed = seed
		return m, nil

	case ModelMLP:
		c := cfg.MLP
		m := neural.NewMLPRegressor()
		m.HiddenLayers = append([]int(nil), c.HiddenLayers...)
		m.Dropout = c.Dropout
		m.LearningRate = c.LearningRate
		m.WeightDecay = c.WeightDecay
		m.BatchSize = c.BatchSize
		m.Seed = seed
		return m, nil

	case ModelFTTransformer:
		c := cfg.FTTransformer
		m := neural.NewFTTransformerRegressor(neural.EmbeddingKind(c.Embedding))
		m.TokenDim = c.TokenDim
		m.Blocks = c.Blocks
		m.Heads = c.Heads
		m.FFNHidden = c.FFNHidden
		m.Frequencies = c.Frequencies
		m.Sigma = c.Sigma
		m.Bins = c.Bins
		m.LearningRate = c.LearningRate
		m.WeightDecay = c.WeightDecay
		m.BatchSize = c.BatchSize
		m.Seed = seed
		return m, nil
	}

	// Unreachable: Validate rejects unknown kinds.
	return nil, nil
}
