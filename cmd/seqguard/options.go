package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hed1ad/seqguard/pkg/config"
)

// globalOptions holds flags shared by every subcommand. Flags override values
// from the config file only when set explicitly.
type globalOptions struct {
	configPath string

	eps        float64
	minSamples int
	index      string
	k          int
	threshold  float64

	logLevel  string
	logFormat string
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "Path to a YAML config file")
	f.Float64Var(&o.eps, "eps", 0, "Neighbourhood radius")
	f.IntVar(&o.minSamples, "min-samples", 0, "Core point threshold")
	f.StringVar(&o.index, "index", "", "Region index: grid or bruteforce")
	f.IntVarP(&o.k, "k", "k", 0, "Neighbour rank for anomaly scoring")
	f.Float64Var(&o.threshold, "threshold", 0, "Anomaly score cutoff")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&o.logFormat, "log-format", "", "Log format: json or console")
}

// load reads the config file and applies explicitly set flags on top.
func (o *globalOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("eps") {
		cfg.Engine.Eps = o.eps
	}
	if flags.Changed("min-samples") {
		cfg.Engine.MinSamples = o.minSamples
	}
	if flags.Changed("index") {
		cfg.Engine.Index = o.index
	}
	if flags.Changed("k") {
		cfg.Scoring.K = o.k
	}
	if flags.Changed("threshold") {
		cfg.Scoring.Threshold = o.threshold
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}

	return cfg, nil
}

// runOptions holds flags specific to the run subcommand.
type runOptions struct {
	iface         string
	file          string
	filter        string
	rateLimit     float64
	workers       int
	drainCount    int
	drainInterval time.Duration
	metricsAddr   string
}

func (o *runOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.iface, "interface", "i", "", "Capture from a live interface")
	f.StringVarP(&o.file, "read", "r", "", "Read packets from a pcap file")
	f.StringVarP(&o.filter, "filter", "f", "", "BPF filter expression")
	f.Float64Var(&o.rateLimit, "rate-limit", 0, "Max packets per second forwarded (0 = unlimited)")
	f.IntVarP(&o.workers, "workers", "w", 0, "Number of extraction workers")
	f.IntVar(&o.drainCount, "drain-count", 0, "Drain the sink once this many vectors wait")
	f.DurationVar(&o.drainInterval, "drain-interval", 0, "Drain the sink on this interval")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("interface") {
		cfg.Capture.Interface = o.iface
	}
	if flags.Changed("read") {
		cfg.Capture.File = o.file
	}
	if flags.Changed("filter") {
		cfg.Capture.Filter = o.filter
	}
	if flags.Changed("rate-limit") {
		cfg.Capture.RateLimit = o.rateLimit
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = o.workers
	}
	// The two drain triggers are exclusive; the flag given wins.
	if flags.Changed("drain-count") {
		cfg.Drain.Count = o.drainCount
		cfg.Drain.Interval = 0
	}
	if flags.Changed("drain-interval") {
		cfg.Drain.Interval = o.drainInterval
		cfg.Drain.Count = 0
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}

	if (cfg.Capture.Interface == "") == (cfg.Capture.File == "") {
		return fmt.Errorf("exactly one of --interface and --read is required")
	}
	// Without workers nothing would ever leave the input queue.
	if cfg.Pipeline.Workers < 1 {
		return fmt.Errorf("run needs at least one worker, got %d", cfg.Pipeline.Workers)
	}
	return nil
}
