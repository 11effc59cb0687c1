// Package detectors provides online anomaly detection algorithms.
package detectors

import "context"

// Detector is the common interface for online anomaly detectors.
type Detector interface {
	// Observe ingests a single sample and classifies it against everything
	// observed so far. Detectors may revise earlier classifications later.
	Observe(sample []float64) (Score, error)
}

// StreamDetector extends Detector with streaming capabilities.
type StreamDetector interface {
	Detector

	// PredictStream observes samples from a channel and outputs scores until
	// the input is closed or ctx is done.
	PredictStream(ctx context.Context, input <-chan []float64, output chan<- Score) error
}

// Score represents an anomaly detection result.
type Score struct {
	// Value is the anomaly score in [0, 1].
	Value float64
	// IsAnomaly indicates if the sample was flagged.
	IsAnomaly bool
	// Features contains the original input features.
	Features []float64
	// Metadata contains additional information.
	Metadata map[string]any
}
