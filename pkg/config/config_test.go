package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/seqguard/pkg/detectors/seqdbscan"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	kind, err := cfg.IndexKind()
	require.NoError(t, err)
	assert.Equal(t, seqdbscan.IndexGrid, kind)
}

func TestIndexKind(t *testing.T) {
	tests := []struct {
		index   string
		want    seqdbscan.IndexKind
		wantErr bool
	}{
		{"", seqdbscan.IndexGrid, false},
		{"grid", seqdbscan.IndexGrid, false},
		{"bruteforce", seqdbscan.IndexBruteForce, false},
		{"kdtree", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			cfg := Default()
			cfg.Engine.Index = tt.index

			kind, err := cfg.IndexKind()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, seqdbscan.ErrUnknownIndex)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  eps: 0.75
  min_samples: 3
  index: bruteforce
scoring:
  k: 4
  threshold: 1.5
pipeline:
  workers: 8
  poll_interval: 2ms
drain:
  count: 100
  interval: 0s
capture:
  interface: eth0
  filter: tcp or udp
  rate_limit: 5000
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.75, cfg.Engine.Eps)
	assert.Equal(t, 3, cfg.Engine.MinSamples)
	kind, err := cfg.IndexKind()
	require.NoError(t, err)
	assert.Equal(t, seqdbscan.IndexBruteForce, kind)
	assert.Equal(t, 4, cfg.Scoring.K)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 2*time.Millisecond, cfg.Pipeline.PollInterval)
	assert.Equal(t, 100, cfg.Drain.Count)
	assert.Zero(t, cfg.Drain.Interval)
	assert.Equal(t, "eth0", cfg.Capture.Interface)
	assert.Equal(t, 5000.0, cfg.Capture.RateLimit)
	assert.Equal(t, "console", cfg.Log.Format)

	// Untouched fields keep their defaults.
	assert.Equal(t, int32(65535), cfg.Capture.Snaplen)
	assert.Equal(t, 10*time.Second, cfg.Scoring.Interval)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "zero eps", mutate: func(c *Config) { c.Engine.Eps = 0 }, wantErr: "engine.eps"},
		{name: "zero min samples", mutate: func(c *Config) { c.Engine.MinSamples = 0 }, wantErr: "engine.min_samples"},
		{name: "unknown index", mutate: func(c *Config) { c.Engine.Index = "kdtree" }, wantErr: "engine.index"},
		{name: "zero k", mutate: func(c *Config) { c.Scoring.K = 0 }, wantErr: "scoring.k"},
		{name: "negative workers", mutate: func(c *Config) { c.Pipeline.Workers = -1 }, wantErr: "pipeline.workers"},
		{name: "both drain triggers", mutate: func(c *Config) { c.Drain.Count = 10 }, wantErr: "drain.count"},
		{name: "no drain trigger", mutate: func(c *Config) { c.Drain.Interval = 0 }, wantErr: "drain.count"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
		{name: "negative warmup", mutate: func(c *Config) { c.Pipeline.NormalizerWarmup = -1 }, wantErr: "pipeline.normalizer_warmup"},
		{name: "zero workers allowed", mutate: func(c *Config) { c.Pipeline.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
