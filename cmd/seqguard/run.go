package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	gopcap "github.com/google/gopacket/pcap"

	"github.com/hed1ad/seqguard/pkg/config"
	"github.com/hed1ad/seqguard/pkg/detectors/seqdbscan"
	"github.com/hed1ad/seqguard/pkg/features"
	"github.com/hed1ad/seqguard/pkg/io/packet"
	"github.com/hed1ad/seqguard/pkg/io/pcap"
	"github.com/hed1ad/seqguard/pkg/pipeline"
)

const settleInterval = 20 * time.Millisecond

func runCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture packets and cluster them online",
		Long: `Run captures packets from an interface or a pcap file, extracts features on
a pool of workers and clusters the vectors as they arrive. Anomaly scores are
logged periodically and a final report is printed on exit.`,
		Example: `  seqguard run -i eth0 --filter "tcp or udp"
  seqguard run -r capture.pcap --drain-count 200 --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.load(cmd)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runCapture(ctx, cmd, cfg, logger)
		},
	}

	opts.bind(cmd)
	return cmd
}

func newEngine(cfg config.Config, logger *zap.Logger) (*seqdbscan.Engine, error) {
	kind, err := cfg.IndexKind()
	if err != nil {
		return nil, err
	}
	return seqdbscan.New(
		seqdbscan.WithEps(cfg.Engine.Eps),
		seqdbscan.WithMinSamples(cfg.Engine.MinSamples),
		seqdbscan.WithIndex(kind),
		seqdbscan.WithLogger(logger.Named("engine")),
	)
}

func openSource(cfg config.CaptureConfig, logger *zap.Logger) (*pcap.Source, error) {
	opts := []pcap.Option{
		pcap.WithFilter(cfg.Filter),
		pcap.WithLogger(logger.Named("capture")),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, pcap.WithRateLimit(cfg.RateLimit, cfg.Burst))
	}

	if cfg.File != "" {
		return pcap.NewFileSource(cfg.File, opts...)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = gopcap.BlockForever
	}
	return pcap.NewLiveSource(cfg.Interface, cfg.Snaplen, cfg.Promisc, timeout, opts...)
}

func runCapture(ctx context.Context, cmd *cobra.Command, cfg config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pipeline.NewMetrics(reg)

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	source, err := openSource(cfg.Capture, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	queue := pipeline.NewInputQueue()
	sink := pipeline.NewResultSink()

	p, err := pipeline.New(queue, sink, packet.NewExtractor(),
		features.NewZScore(features.WithFreezeAfter(cfg.Pipeline.NormalizerWarmup)),
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithPollInterval(cfg.Pipeline.PollInterval),
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	consumerOpts := []pipeline.ConsumerOption{
		pipeline.WithMaxBatch(cfg.Drain.MaxBatch),
		pipeline.WithConsumerLogger(logger.Named("consumer")),
		pipeline.WithConsumerMetrics(metrics),
		pipeline.WithOnBatch(scoreReporter(cfg.Scoring, logger.Named("scoring"))),
	}
	if cfg.Drain.Count > 0 {
		consumerOpts = append(consumerOpts, pipeline.WithDrainCount(cfg.Drain.Count))
	} else {
		consumerOpts = append(consumerOpts, pipeline.WithDrainInterval(cfg.Drain.Interval))
	}
	consumer, err := pipeline.NewConsumer(sink, engine, consumerOpts...)
	if err != nil {
		return err
	}

	if err := p.Start(); err != nil {
		return err
	}
	defer p.Kill()

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.Run(consumerCtx)
	})

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-consumerCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stopConsumer()
		defer p.Kill()

		err := source.Run(gctx, queue)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		// An exhausted file still has frames in flight.
		settle(gctx, p, source.Received()-source.Dropped())
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("capture finished",
		zap.Uint64("received", source.Received()),
		zap.Uint64("dropped", source.Dropped()),
		zap.Int("points", engine.Len()),
	)
	return writeReport(cmd.OutOrStdout(), engine, cfg.Scoring.K, cfg.Scoring.Threshold)
}

// settle waits until every pushed frame was processed or dropped by a worker.
func settle(ctx context.Context, p *pipeline.Pipeline, pushed uint64) {
	if len(p.Workers()) == 0 {
		return
	}
	ticker := time.NewTicker(settleInterval)
	defer ticker.Stop()

	for {
		if handled(p) >= pushed && !p.Sink().IsHeld() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func handled(p *pipeline.Pipeline) uint64 {
	var n uint64
	for _, w := range p.Workers() {
		n += w.Processed() + w.Failed()
	}
	return n
}

// scoreReporter logs anomaly scores at most once per interval. It runs on the
// consumer goroutine, which owns the engine.
func scoreReporter(cfg config.ScoringConfig, logger *zap.Logger) func(*seqdbscan.Engine, pipeline.Batch) {
	var last time.Time
	return func(e *seqdbscan.Engine, b pipeline.Batch) {
		if cfg.Interval <= 0 || time.Since(last) < cfg.Interval {
			return
		}
		last = time.Now()

		scores, err := e.ComputeAnomalyScores(cfg.K, cfg.Threshold)
		if err != nil {
			logger.Error("scoring failed", zap.Error(err))
			return
		}

		logger.Info("cluster snapshot",
			zap.Int("points", b.Stats.Points),
			zap.Int("clusters", b.Stats.Clusters),
			zap.Int("noise", b.Stats.Noise),
			zap.Int("anomalies", len(scores)),
		)
		for _, s := range scores {
			logger.Warn("anomaly",
				zap.Uint32("point", uint32(s.Point.ID)),
				zap.Uint32("cluster", uint32(s.Cluster)),
				zap.Float64("score", s.Score),
			)
		}
	}
}
