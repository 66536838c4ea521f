// Package config loads the YAML run definition into typed settings: a
// kind-discriminated envelope decoded with spf13/viper, generalized from a
// flat hyperparameter list to the fields a full simulation run needs
// (scheduler knobs, hyperparameters, dashboard).
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OuterConfig mirrors the run file's envelope as viper decodes it: a kind
// discriminator plus an opaque def blob. FromYaml uses it to check Kind;
// since viper lowercases keys, the def payload decoded into the typed inner
// Config is read from the raw file instead.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// SupportedKind is the only Kind value FromYaml accepts.
const SupportedKind = "agentsim/v1"

// SimulationSettings are the scheduler knobs a run definition configures.
type SimulationSettings struct {
	Steps               int    `yaml:"steps"`
	LogDirectory        string `yaml:"logDirectory"`
	RandomSeed          *int64 `yaml:"randomSeed"`
	SnapshotInterval    int    `yaml:"snapshotInterval"`
	ValidationInterval  int    `yaml:"validationInterval"`
	ScaffoldConcurrency int    `yaml:"scaffoldConcurrency"`
	// Deadline, parsed with time.ParseDuration, bounds a run's context;
	// empty means no deadline.
	Deadline string `yaml:"deadline"`
}

// HyperParameter is a single named float, reused here for embedder-defined
// tuning knobs (e.g. a DecisionSelector's exploration rate).
type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// DashboardSettings configures the optional live status server (§12).
type DashboardSettings struct {
	Addr string `yaml:"addr"`
}

// Config is the fully typed run definition, the Def payload of OuterConfig
// decoded a second time into concrete fields.
type Config struct {
	Simulation  SimulationSettings `yaml:"simulation"`
	HyperParams []HyperParameter   `yaml:"hyperParams"`
	Dashboard   DashboardSettings  `yaml:"dashboard"`
}

// GetHyperParamOrDefault does a linear lookup over a short, rarely-read
// list, returning defaultVal when key isn't present.
func (c *Config) GetHyperParamOrDefault(key string, defaultVal float64) float64 {
	for _, kvp := range c.HyperParams {
		if kvp.Key == key {
			return kvp.Val
		}
	}
	return defaultVal
}

// WithDeadline returns a context bounded by Simulation.Deadline, if set.
func (c *Config) WithDeadline(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.Simulation.Deadline == "" {
		innerCtx, cancel := context.WithCancel(ctx)
		return innerCtx, cancel, nil
	}
	duration, err := time.ParseDuration(c.Simulation.Deadline)
	if err != nil {
		return nil, nil, fmt.Errorf("config: invalid deadline %q: %w", c.Simulation.Deadline, err)
	}
	innerCtx, cancel := context.WithTimeout(ctx, duration)
	return innerCtx, cancel, nil
}

// allowedDefKeys is the allow-list unknown top-level keys under def are
// checked against, so a mistyped key fails loudly at load time instead of
// being silently ignored.
var allowedDefKeys = map[string]bool{
	"simulation":  true,
	"hyperParams": true,
	"dashboard":   true,
}

// FromYaml loads and validates a run definition file: viper reads the file
// into an OuterConfig to check Kind, then the def payload, decoded from the
// raw file with yaml.v3 so its keys keep their case, is re-marshaled and
// unmarshaled into the typed inner Config. Unknown keys under def are a hard
// error rather than silently ignored.
func FromYaml(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	outer := &OuterConfig{}
	if err := vp.Unmarshal(outer); err != nil {
		return nil, fmt.Errorf("config: decode envelope: %w", err)
	}
	if outer.Kind != SupportedKind {
		return nil, fmt.Errorf("config: unsupported kind %q, expected %q", outer.Kind, SupportedKind)
	}

	// viper lowercases every key it reads, which would break the camelCase
	// keys under def, so the def payload is taken from the raw file.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var envelope struct {
		Def map[string]interface{} `yaml:"def"`
	}
	if err := yaml.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("config: decode def: %w", err)
	}
	for key := range envelope.Def {
		if !allowedDefKeys[key] {
			return nil, fmt.Errorf("config: unknown key %q under def", key)
		}
	}

	spec, err := yaml.Marshal(envelope.Def)
	if err != nil {
		return nil, fmt.Errorf("config: re-marshal def: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(spec, cfg); err != nil {
		return nil, fmt.Errorf("config: decode def: %w", err)
	}

	if cfg.Simulation.SnapshotInterval <= 0 {
		cfg.Simulation.SnapshotInterval = 50
	}
	if cfg.Simulation.ValidationInterval <= 0 {
		cfg.Simulation.ValidationInterval = 10
	}
	if cfg.Simulation.ScaffoldConcurrency <= 0 {
		cfg.Simulation.ScaffoldConcurrency = 1
	}

	return cfg, nil
}
