// Package config loads and validates seqguard configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/seqguard/pkg/detectors/seqdbscan"
)

// Config is the complete runtime configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Drain    DrainConfig    `yaml:"drain"`
	Capture  CaptureConfig  `yaml:"capture"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// EngineConfig configures the clustering engine.
type EngineConfig struct {
	Eps        float64 `yaml:"eps"`
	MinSamples int     `yaml:"min_samples"`
	Index      string  `yaml:"index"`
}

// ScoringConfig configures intra-cluster anomaly scoring.
type ScoringConfig struct {
	K         int           `yaml:"k"`
	Threshold float64       `yaml:"threshold"`
	Interval  time.Duration `yaml:"interval"`
}

// PipelineConfig configures the worker pool.
type PipelineConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Records observed before the normalizer freezes its statistics; 0 never
	// freezes.
	NormalizerWarmup int `yaml:"normalizer_warmup"`
}

// DrainConfig selects the consumer drain trigger. Exactly one of Count and
// Interval must be set.
type DrainConfig struct {
	Count    int           `yaml:"count"`
	Interval time.Duration `yaml:"interval"`
	MaxBatch int           `yaml:"max_batch"`
}

// CaptureConfig configures packet capture.
type CaptureConfig struct {
	Interface string        `yaml:"interface"`
	File      string        `yaml:"file"`
	Snaplen   int32         `yaml:"snaplen"`
	Promisc   bool          `yaml:"promisc"`
	Timeout   time.Duration `yaml:"timeout"` // zero blocks until a packet arrives
	Filter    string        `yaml:"filter"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Eps:        0.5,
			MinSamples: 5,
			Index:      "grid",
		},
		Scoring: ScoringConfig{
			K:         5,
			Threshold: 2.0,
			Interval:  10 * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:          4,
			PollInterval:     5 * time.Millisecond,
			NormalizerWarmup: 10000,
		},
		Drain: DrainConfig{
			Interval: time.Second,
		},
		Capture: CaptureConfig{
			Snaplen: 65535,
			Promisc: true,
			Burst:   1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every recognized option.
func (c Config) Validate() error {
	var errs []error

	if !(c.Engine.Eps > 0) {
		errs = append(errs, fmt.Errorf("engine.eps must be > 0, got %v", c.Engine.Eps))
	}
	if c.Engine.MinSamples < 1 {
		errs = append(errs, fmt.Errorf("engine.min_samples must be >= 1, got %d", c.Engine.MinSamples))
	}
	if _, err := seqdbscan.ParseIndexKind(c.Engine.Index); err != nil {
		errs = append(errs, fmt.Errorf("engine.index: %w", err))
	}
	if c.Scoring.K < 1 {
		errs = append(errs, fmt.Errorf("scoring.k must be >= 1, got %d", c.Scoring.K))
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be >= 0, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.NormalizerWarmup < 0 {
		errs = append(errs, fmt.Errorf("pipeline.normalizer_warmup must be >= 0, got %d", c.Pipeline.NormalizerWarmup))
	}
	if c.Pipeline.PollInterval <= 0 {
		errs = append(errs, errors.New("pipeline.poll_interval must be positive"))
	}
	if (c.Drain.Count > 0) == (c.Drain.Interval > 0) {
		errs = append(errs, errors.New("exactly one of drain.count and drain.interval must be set"))
	}
	if c.Drain.Count < 0 || c.Drain.Interval < 0 || c.Drain.MaxBatch < 0 {
		errs = append(errs, errors.New("drain settings must not be negative"))
	}
	if c.Capture.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("capture.rate_limit must be >= 0, got %v", c.Capture.RateLimit))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// IndexKind returns the parsed engine index kind.
func (c Config) IndexKind() (seqdbscan.IndexKind, error) {
	return seqdbscan.ParseIndexKind(c.Engine.Index)
}
