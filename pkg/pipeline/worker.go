package pipeline

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/seqguard/pkg/features"
)

// spinsBeforeSleep is how many yields a publisher makes before it starts
// sleeping between sink acquisition attempts.
const spinsBeforeSleep = 64

// Worker pulls one raw item at a time once armed by the Feeder, turns it into
// a vector and publishes it into the ResultSink.
type Worker struct {
	id         int
	queue      *InputQueue
	sink       *ResultSink
	extractor  features.Extractor
	normalizer features.Normalizer
	poll       time.Duration
	logger     *zap.Logger
	metrics    *Metrics

	armed   atomic.Bool
	stopped atomic.Bool

	processed atomic.Uint64
	failed    atomic.Uint64
}

// ID returns the worker's sink owner ID.
func (w *Worker) ID() int { return w.id }

// Arm grants permission to pull one item.
func (w *Worker) Arm() { w.armed.Store(true) }

// Armed reports whether the worker holds permission to pull an item.
func (w *Worker) Armed() bool { return w.armed.Load() }

// Stop asks the worker loop to exit. An item already being processed is
// finished first, except that a pending publish is abandoned.
func (w *Worker) Stop() { w.stopped.Store(true) }

// Processed returns how many items the worker published.
func (w *Worker) Processed() uint64 { return w.processed.Load() }

// Failed returns how many items the worker dropped.
func (w *Worker) Failed() uint64 { return w.failed.Load() }

func (w *Worker) run() {
	for !w.stopped.Load() {
		if !w.armed.Load() || w.queue.Len() == 0 {
			time.Sleep(w.poll)
			continue
		}

		item, ok := w.queue.TryPop()
		if !ok {
			// Another worker emptied the queue first; stay armed.
			continue
		}

		if err := w.process(item); err != nil {
			w.fail(err)
			continue
		}
		w.processed.Add(1)
		w.metrics.ItemsProcessed.Inc()
		w.armed.Store(false)
	}
}

// process runs extraction, normalization and publish. Panics from external
// collaborators are returned as errors.
func (w *Worker) process(item any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()

	record, err := w.extractor.Extract(item)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	vectors, err := w.normalizer.Normalize([]features.Record{record})
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("%w: got %d", ErrNormalizerOutput, len(vectors))
	}

	return w.publish(vectors[0])
}

// publish spins on the sink token, enqueues v and releases the token. The
// wait has no deadline; it only gives up when the worker is stopped.
func (w *Worker) publish(v []float64) error {
	for spins := 0; !w.sink.TryAcquire(w.id); spins++ {
		if w.stopped.Load() {
			return ErrStopped
		}
		w.metrics.PublishSpins.Inc()
		if spins < spinsBeforeSleep {
			runtime.Gosched()
		} else {
			time.Sleep(w.poll)
		}
	}

	w.sink.Enqueue(v)
	w.sink.Release()
	return nil
}

// fail disarms the worker and clears the sink token if this worker still
// holds it.
func (w *Worker) fail(err error) {
	w.armed.Store(false)
	w.failed.Add(1)
	w.metrics.ItemsFailed.Inc()

	if owner, ok := w.sink.CurrentOwner(); ok && owner == w.id {
		w.sink.Release()
		w.metrics.ForcedReleases.Inc()
	}

	w.logger.Warn("item dropped", zap.Int("worker", w.id), zap.Error(err))
}
