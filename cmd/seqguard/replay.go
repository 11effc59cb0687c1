package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/seqguard/pkg/config"
	"github.com/hed1ad/seqguard/pkg/detectors"
	"github.com/hed1ad/seqguard/pkg/io/csv"
)

func replayCmd(global *globalOptions) *cobra.Command {
	var header bool

	cmd := &cobra.Command{
		Use:   "replay <file.csv>",
		Short: "Cluster preprocessed feature vectors from a CSV file",
		Long: `Replay feeds every row of a CSV file, in order, to the clustering engine and
prints the resulting clusters, noise and anomaly scores as JSON. Rows that do
not parse are skipped.`,
		Example: `  seqguard replay features_preprocessed.csv --eps 0.5 --min-samples 5
  seqguard replay vectors.csv --header=false -k 3 --threshold 1.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.load(cmd)
			if err != nil {
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

			return replay(ctx, cmd, cfg, args[0], header, logger)
		},
	}

	cmd.Flags().BoolVar(&header, "header", true, "First row is a header")
	return cmd
}

func replay(ctx context.Context, cmd *cobra.Command, cfg config.Config, path string, header bool, logger *zap.Logger) error {
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	reader, err := csv.NewReader(path, csv.WithHeader(header), csv.WithSkipInvalid(true))
	if err != nil {
		return err
	}
	defer reader.Close()

	rows, err := reader.Stream(ctx)
	if err != nil {
		return err
	}

	scores := make(chan detectors.Score, 100)
	var noise int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(scores)
		return engine.PredictStream(gctx, rows, scores)
	})
	g.Go(func() error {
		for s := range scores {
			if s.IsAnomaly {
				noise++
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("replay finished",
		zap.String("file", path),
		zap.Int("points", engine.Len()),
		zap.Int("noise_on_arrival", noise),
		zap.Int("skipped_rows", reader.Skipped()),
	)
	return writeReport(cmd.OutOrStdout(), engine, cfg.Scoring.K, cfg.Scoring.Threshold)
}
