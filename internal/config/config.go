// Package config loads engine configuration from YAML with sensible
// defaults for every knob.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all tunables for the consolidation engine.
type Config struct {
	// DBPath is the SQLite database file. Relative paths are resolved
	// against the working directory.
	DBPath string `yaml:"db_path"`

	Reasoning ReasoningConfig `yaml:"reasoning"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Promote   PromoteConfig   `yaml:"promote"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ReasoningConfig configures the external reasoning service used for
// slow-path pattern extraction.
type ReasoningConfig struct {
	BaseURL string   `yaml:"base_url"` // empty disables the slow path
	APIKey  string   `yaml:"api_key"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

// ClusterConfig configures event clustering.
type ClusterConfig struct {
	// GapThreshold splits same-type events into separate clusters when
	// the gap between consecutive events reaches it.
	GapThreshold Duration `yaml:"gap_threshold"`
}

// TriggerConfig configures when consolidation runs.
type TriggerConfig struct {
	// EventThreshold is the minimum number of unconsolidated events a
	// session needs before consolidation is worthwhile.
	EventThreshold int `yaml:"event_threshold"`
}

// PromoteConfig configures semantic promotion.
type PromoteConfig struct {
	// MinConfidence is the pattern confidence floor for promotion.
	MinConfidence float64 `yaml:"min_confidence"`
}

// PipelineConfig configures pipeline execution.
type PipelineConfig struct {
	// MaxParallelClusters bounds concurrent per-cluster processing.
	MaxParallelClusters int `yaml:"max_parallel_clusters"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBPath: "mnemo.db",
		Reasoning: ReasoningConfig{
			Model:   "qwen2.5:7b",
			Timeout: Duration(30 * time.Second),
		},
		Cluster: ClusterConfig{
			GapThreshold: Duration(5 * time.Minute),
		},
		Trigger: TriggerConfig{
			EventThreshold: 10,
		},
		Promote: PromoteConfig{
			MinConfidence: 0.7,
		},
		Pipeline: PipelineConfig{
			MaxParallelClusters: 4,
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Cluster.GapThreshold <= 0 {
		return fmt.Errorf("cluster.gap_threshold must be positive, got %v", c.Cluster.GapThreshold.Std())
	}
	if c.Trigger.EventThreshold < 1 {
		return fmt.Errorf("trigger.event_threshold must be >= 1, got %d", c.Trigger.EventThreshold)
	}
	if c.Promote.MinConfidence < 0 || c.Promote.MinConfidence > 1 {
		return fmt.Errorf("promote.min_confidence must be in [0,1], got %f", c.Promote.MinConfidence)
	}
	if c.Pipeline.MaxParallelClusters < 1 {
		return fmt.Errorf("pipeline.max_parallel_clusters must be >= 1, got %d", c.Pipeline.MaxParallelClusters)
	}
	return nil
}
