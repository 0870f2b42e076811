// Package experiment assembles the full experiment flow: a validated
// model configuration is built into an estimator, trained against the
// prepared dataset with early stopping, evaluated on held-out data, and
// recorded as a sealed tracking run.
package experiment

import (
	"github.com/tabexp-labs/tabexp/neural"
	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// ModelKind names a model family.
type ModelKind string

const (
	ModelRandomForest     ModelKind = "random_forest"
	ModelGradientBoosting ModelKind = "gradient_boosting"
	ModelMLP              ModelKind = "mlp"
	ModelFTTransformer    ModelKind = "ft_transformer"
)

// RandomForestConfig configures the bagged tree ensemble.
type RandomForestConfig struct {
	NEstimators    int `koanf:"n_estimators"`
	MaxDepth       int `koanf:"max_depth"`
	MinSamplesLeaf int `koanf:"min_samples_leaf"`
	MaxFeatures    int `koanf:"max_features"`
}

func (c *RandomForestConfig) Validate() error {
	if c.NEstimators <= 0 {
		return errors.NewValidationError("n_estimators", "must be positive", c.NEstimators)
	}
	if c.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must not be negative", c.MaxDepth)
	}
	if c.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", c.MinSamplesLeaf)
	}
	return nil
}

// GradientBoostingConfig configures the boosted tree ensemble.
type GradientBoostingConfig struct {
	NEstimators    int     `koanf:"n_estimators"`
	LearningRate   float64 `koanf:"learning_rate"`
	MaxDepth       int     `koanf:"max_depth"`
	MinSamplesLeaf int     `koanf:"min_samples_leaf"`
}

func (c *GradientBoostingConfig) Validate() error {
	if c.NEstimators <= 0 {
		return errors.NewValidationError("n_estimators", "must be positive", c.NEstimators)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return errors.NewValidationError("learning_rate", "must be in (0, 1]", c.LearningRate)
	}
	if c.MaxDepth <= 0 {
		return errors.NewValidationError("max_depth", "must be positive", c.MaxDepth)
	}
	if c.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", c.MinSamplesLeaf)
	}
	return nil
}

// MLPConfig configures the fully connected network.
type MLPConfig struct {
	HiddenLayers []int   `koanf:"hidden_layers"`
	Dropout      float64 `koanf:"dropout"`
	LearningRate float64 `koanf:"learning_rate"`
	WeightDecay  float64 `koanf:"weight_decay"`
	BatchSize    int     `koanf:"batch_size"`
}

func (c *MLPConfig) Validate() error {
	if len(c.HiddenLayers) == 0 {
		return errors.NewValidationError("hidden_layers", "must name at least one layer", c.HiddenLayers)
	}
	for _, w := range c.HiddenLayers {
		if w <= 0 {
			return errors.NewValidationError("hidden_layers", "layer widths must be positive", w)
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.NewValidationError("dropout", "must be in [0, 1)", c.Dropout)
	}
	if c.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", c.LearningRate)
	}
	if c.WeightDecay < 0 {
		return errors.NewValidationError("weight_decay", "must not be negative", c.WeightDecay)
	}
	if c.BatchSize <= 0 {
		return errors.NewValidationError("batch_size", "must be positive", c.BatchSize)
	}
	return nil
}

// FTTransformerConfig configures the tabular transformer.
type FTTransformerConfig struct {
	Embedding    string  `koanf:"embedding"`
	TokenDim     int     `koanf:"token_dim"`
	Blocks       int     `koanf:"blocks"`
	Heads        int     `koanf:"heads"`
	FFNHidden    int     `koanf:"ffn_hidden"`
	Frequencies  int     `koanf:"frequencies"`
	Sigma        float64 `koanf:"sigma"`
	Bins         int     `koanf:"bins"`
	LearningRate float64 `koanf:"learning_rate"`
	WeightDecay  float64 `koanf:"weight_decay"`
	BatchSize    int     `koanf:"batch_size"`
}

func (c *FTTransformerConfig) Validate() error {
	switch neural.EmbeddingKind(c.Embedding) {
	case neural.EmbeddingLinear, neural.EmbeddingPeriodic, neural.EmbeddingQuantile, neural.EmbeddingTarget:
	default:
		return errors.NewValidationError("embedding", "unknown embedding kind", c.Embedding)
	}
	if c.TokenDim <= 0 {
		return errors.NewValidationError("token_dim", "must be positive", c.TokenDim)
	}
	if c.Heads <= 0 {
		return errors.NewValidationError("heads", "must be positive", c.Heads)
	}
	if c.TokenDim%c.Heads != 0 {
		return errors.NewValidationError("token_dim", "must be divisible by heads", c.TokenDim)
	}
	if c.Blocks <= 0 {
		return errors.NewValidationError("blocks", "must be positive", c.Blocks)
	}
	if neural.EmbeddingKind(c.Embedding) == neural.EmbeddingPeriodic {
		if c.Frequencies <= 0 {
			return errors.NewValidationError("frequencies", "must be positive", c.Frequencies)
		}
		if c.Sigma <= 0 {
			return errors.NewValidationError("sigma", "must be positive", c.Sigma)
		}
	}
	switch neural.EmbeddingKind(c.Embedding) {
	case neural.EmbeddingQuantile, neural.EmbeddingTarget:
		if c.Bins < 2 {
			return errors.NewValidationError("bins", "must be at least 2", c.Bins)
		}
	}
	if c.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", c.LearningRate)
	}
	if c.BatchSize <= 0 {
		return errors.NewValidationError("batch_size", "must be positive", c.BatchSize)
	}
	return nil
}

// ModelConfig is a tagged union: Kind selects which section applies.
type ModelConfig struct {
	Kind             ModelKind               `koanf:"kind"`
	RandomForest     *RandomForestConfig     `koanf:"random_forest"`
	GradientBoosting *GradientBoostingConfig `koanf:"gradient_boosting"`
	MLP              *MLPConfig              `koanf:"mlp"`
	FTTransformer    *FTTransformerConfig    `koanf:"ft_transformer"`
}

// Validate checks that the selected section is present and valid.
func (c *ModelConfig) Validate() error {
	switch c.Kind {
	case ModelRandomForest:
		if c.RandomForest == nil {
			return errors.NewValidationError("random_forest", "section required for kind random_forest", nil)
		}
		return c.RandomForest.Validate()
	case ModelGradientBoosting:
		if c.GradientBoosting == nil {
			return errors.NewValidationError("gradient_boosting", "section required for kind gradient_boosting", nil)
		}
		return c.GradientBoosting.Validate()
	case ModelMLP:
		if c.MLP == nil {
			return errors.NewValidationError("mlp", "section required for kind mlp", nil)
		}
		return c.MLP.Validate()
	case ModelFTTransformer:
		if c.FTTransformer == nil {
			return errors.NewValidationError("ft_transformer", "section required for kind ft_transformer", nil)
		}
		return c.FTTransformer.Validate()
	default:
		return errors.NewValidationError("kind", "unknown model kind", string(c.Kind))
	}
}

// TrainConfig bounds the training loop.
type TrainConfig struct {
	// Epochs is the hard epoch budget. One-shot models ignore it.
	Epochs int `koanf:"epochs"`
	// Patience stops training after this many epochs without validation
	// improvement. 0 disables early stopping.
	Patience int `koanf:"patience"`
}

func (c *TrainConfig) Validate() error {
	if c.Epochs <= 0 {
		return errors.NewValidationError("epochs", "must be positive", c.Epochs)
	}
	if c.Patience < 0 {
		return errors.NewValidationError("patience", "must not be negative", c.Patience)
	}
	return nil
}

// DataConfig locates the dataset and sets the split layout.
type DataConfig struct {
	Path         string  `koanf:"path"`
	Label        string  `koanf:"label"`
	TestFraction float64 `koanf:"test_fraction"`
	ValFraction  float64 `koanf:"val_fraction"`
}

func (c *DataConfig) Validate() error {
	if c.Path == "" {
		return errors.NewValidationError("path", "dataset path required", c.Path)
	}
	if c.Label == "" {
		return errors.NewValidationError("label", "label column required", c.Label)
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return errors.NewValidationError("test_fraction", "must be in (0, 1)", c.TestFraction)
	}
	if c.ValFraction <= 0 || c.ValFraction >= 1 {
		return errors.NewValidationError("val_fraction", "must be in (0, 1)", c.ValFraction)
	}
	return nil
}

// Variant is one model definition inside a multi-variant experiment. Each
// variant becomes its own tracked run and shares the experiment's data,
// seed, and training settings.
type Variant struct {
	Name  string            `koanf:"name"`
	Tags  map[string]string `koanf:"tags"`
	Model ModelConfig       `koanf:"model"`
}

// Config is one complete experiment definition. Either a single top-level
// model or a list of variants must be given.
type Config struct {
	Name     string            `koanf:"name"`
	Seed     int64             `koanf:"seed"`
	Tags     map[string]string `koanf:"tags"`
	Data     DataConfig        `koanf:"data"`
	Train    TrainConfig       `koanf:"train"`
	Model    ModelConfig       `koanf:"model"`
	Variants []Variant         `koanf:"variants"`
}

// Validate checks the whole experiment definition.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.NewValidationError("name", "experiment name required", c.Name)
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Train.Validate(); err != nil {
		return err
	}
	if len(c.Variants) == 0 {
		return c.Model.Validate()
	}
	seen := make(map[string]bool, len(c.Variants))
	for i := range c.Variants {
		v := &c.Variants[i]
		if v.Name == "" {
			return errors.NewValidationError("variants", "variant name required", i)
		}
		if seen[v.Name] {
			return errors.NewValidationError("variants", "duplicate variant name", v.Name)
		}
		seen[v.Name] = true
		if err := v.Model.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// expand turns a multi-variant config into one single-model config per
// variant. Variant tags overlay the experiment tags, and every expanded
// run carries a "variant" tag.
func (c *Config) expand() []*Config {
	out := make([]*Config, 0, len(c.Variants))
	for i := range c.Variants {
		v := &c.Variants[i]
		tags := make(map[string]string, len(c.Tags)+len(v.Tags)+1)
		for k, val := range c.Tags {
			tags[k] = val
		}
		for k, val := range v.Tags {
			tags[k] = val
		}
		tags["variant"] = v.Name
		out = append(out, &Config{
			Name:  c.Name + "/" + v.Name,
			Seed:  c.Seed,
			Tags:  tags,
			Data:  c.Data,
			Train: c.Train,
			Model: v.Model,
		})
	}
	return out
}
