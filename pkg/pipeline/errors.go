package pipeline

import "errors"

var (
	// ErrNilQueue is returned when no input queue is supplied.
	ErrNilQueue = errors.New("input queue is required")

	// ErrNilSink is returned when no result sink is supplied.
	ErrNilSink = errors.New("result sink is required")

	// ErrNilExtractor is returned when no feature extractor is supplied.
	ErrNilExtractor = errors.New("feature extractor is required")

	// ErrNilNormalizer is returned when no normalizer is supplied.
	ErrNilNormalizer = errors.New("normalizer is required")

	// ErrNilEngine is returned when no clustering engine is supplied.
	ErrNilEngine = errors.New("engine is required")

	// ErrInvalidWorkers is returned for a negative worker count.
	ErrInvalidWorkers = errors.New("worker count must not be negative")

	// ErrDrainTrigger is returned when the drain trigger is not exactly one
	// of a count threshold or an interval.
	ErrDrainTrigger = errors.New("exactly one of drain count or drain interval must be set")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("pipeline already started")

	// ErrKilled is returned by Start after Kill.
	ErrKilled = errors.New("pipeline killed")

	// ErrStopped is returned when a worker abandons an item because it was
	// asked to stop while waiting for the sink.
	ErrStopped = errors.New("worker stopped")

	// ErrWorkerPanic wraps a panic recovered while processing an item.
	ErrWorkerPanic = errors.New("panic while processing item")

	// ErrNormalizerOutput is returned when a normalizer does not produce
	// exactly one vector per record.
	ErrNormalizerOutput = errors.New("normalizer returned unexpected vector count")
)
