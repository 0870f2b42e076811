// Package config loads experiment definitions from YAML files with
// environment-variable overrides.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tabexp-labs/tabexp/experiment"
	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// EnvPrefix marks environment variables that override file settings.
// A double underscore separates nesting levels so that keys containing
// single underscores survive: TABEXP_TRAIN__EPOCHS -> train.epochs,
// TABEXP_DATA__TEST_FRACTION -> data.test_fraction.
const EnvPrefix = "TABEXP_"

// Defaults applied before the file and environment are read.
func defaults(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(map[string]interface{}{
		"seed":               int64(42),
		"data.test_fraction": 0.2,
		"data.val_fraction":  0.2,
		"train.epochs":       100,
		"train.patience":     16,
	}, "."), nil)
}

// Load reads the experiment definition at path, applies environment
// overrides, and validates the result.
func Load(path string) (*experiment.Config, error) {
	k := koanf.New(".")
	if err := defaults(k); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment overrides")
	}

	var cfg experiment.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
