// Package io provides input utilities for data ingestion.
package io

import "context"

// Pusher accepts raw items for processing. pipeline.InputQueue implements it.
type Pusher interface {
	Push(item any)
}

// Source is a continuous producer of raw items such as captured packets.
type Source interface {
	// Run pushes items into dst until the source is exhausted or ctx is done.
	// It must never block on dst.
	Run(ctx context.Context, dst Pusher) error

	// Close releases resources.
	Close() error
}

// VectorReader reads already normalized feature vectors.
type VectorReader interface {
	// Read returns the complete dataset.
	Read() ([][]float64, error)

	// Stream returns a channel of vectors for incremental processing.
	Stream(ctx context.Context) (<-chan []float64, error)

	// Close releases resources.
	Close() error
}
