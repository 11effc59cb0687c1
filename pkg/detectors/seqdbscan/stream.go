package seqdbscan

import (
	"context"

	"go.uber.org/zap"

	"github.com/hed1ad/seqguard/pkg/detectors"
)

var _ detectors.StreamDetector = (*Engine)(nil)

// Observe ingests sample and reports it as anomalous when it lands in noise.
// The verdict reflects the moment of ingestion only.
func (e *Engine) Observe(sample []float64) (detectors.Score, error) {
	id := PointID(e.Len())
	label, err := e.Ingest(sample)
	if err != nil {
		return detectors.Score{}, err
	}

	score := detectors.Score{
		Features: sample,
		Metadata: map[string]any{
			"point": id,
			"label": label.String(),
		},
	}
	if label.IsNoise() {
		score.Value = 1
		score.IsAnomaly = true
	}
	return score, nil
}

// PredictStream observes samples from input in order. The calling goroutine
// becomes the engine's owner until PredictStream returns. Rejected samples are
// logged and skipped.
func (e *Engine) PredictStream(ctx context.Context, input <-chan []float64, output chan<- detectors.Score) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-input:
			if !ok {
				return nil
			}

			score, err := e.Observe(sample)
			if err != nil {
				e.logger.Warn("sample rejected", zap.Error(err))
				continue
			}

			select {
			case output <- score:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
