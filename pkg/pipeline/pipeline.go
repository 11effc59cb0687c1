package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hed1ad/seqguard/pkg/features"
)

// Pipeline owns the Feeder and Workers that turn queued raw items into
// vectors in a ResultSink.
type Pipeline struct {
	queue      *InputQueue
	sink       *ResultSink
	extractor  features.Extractor
	normalizer features.Normalizer

	numWorkers int
	poll       time.Duration
	logger     *zap.Logger
	metrics    *Metrics

	mu      sync.Mutex
	started bool
	killed  bool
	pool    *ants.Pool
	wg      sync.WaitGroup
	feeder  *Feeder
	workers []*Worker
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithWorkers sets the number of workers. Zero is allowed; such a pipeline
// never takes items off the queue.
func WithWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidWorkers, n)
		}
		p.numWorkers = n
		return nil
	}
}

// WithPollInterval sets how long idle loops sleep between checks. It bounds
// how quickly Kill is observed.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			d = time.Millisecond
		}
		p.poll = d
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = zap.NewNop()
		}
		p.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) error {
		if m != nil {
			p.metrics = m
		}
		return nil
	}
}

// New creates a pipeline. Defaults: 4 workers, 5ms poll interval.
func New(queue *InputQueue, sink *ResultSink, extractor features.Extractor, normalizer features.Normalizer, opts ...Option) (*Pipeline, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}
	if sink == nil {
		return nil, ErrNilSink
	}
	if extractor == nil {
		return nil, ErrNilExtractor
	}
	if normalizer == nil {
		return nil, ErrNilNormalizer
	}

	p := &Pipeline{
		queue:      queue,
		sink:       sink,
		extractor:  extractor,
		normalizer: normalizer,
		numWorkers: 4,
		poll:       5 * time.Millisecond,
		logger:     zap.NewNop(),
		metrics:    NewMetrics(nil),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Queue returns the input queue.
func (p *Pipeline) Queue() *InputQueue { return p.queue }

// Sink returns the result sink.
func (p *Pipeline) Sink() *ResultSink { return p.sink }

// Workers returns the workers created by Start.
func (p *Pipeline) Workers() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Start launches the feeder and worker loops.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.killed {
		return ErrKilled
	}
	if p.started {
		return ErrAlreadyStarted
	}

	pool, err := ants.NewPool(p.numWorkers+1, ants.WithPanicHandler(func(r any) {
		p.logger.Error("pipeline loop panicked", zap.Any("panic", r))
	}))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}

	p.workers = make([]*Worker, p.numWorkers)
	for i := range p.workers {
		p.workers[i] = &Worker{
			id:         i,
			queue:      p.queue,
			sink:       p.sink,
			extractor:  p.extractor,
			normalizer: p.normalizer,
			poll:       p.poll,
			logger:     p.logger,
			metrics:    p.metrics,
		}
	}
	p.feeder = &Feeder{
		workers: p.workers,
		queue:   p.queue,
		poll:    p.poll,
		metrics: p.metrics,
	}

	loops := make([]func(), 0, p.numWorkers+1)
	loops = append(loops, p.feeder.run)
	for _, w := range p.workers {
		loops = append(loops, w.run)
	}
	for _, loop := range loops {
		p.wg.Add(1)
		if err := pool.Submit(func() {
			defer p.wg.Done()
			loop()
		}); err != nil {
			p.wg.Done()
			p.stopLocked()
			pool.Release()
			p.killed = true
			return fmt.Errorf("submit loop: %w", err)
		}
	}

	p.pool = pool
	p.started = true
	p.logger.Info("pipeline started", zap.Int("workers", p.numWorkers), zap.Duration("poll", p.poll))
	return nil
}

// Kill stops the feeder and every worker, waits for their loops to return and
// leaves the sink unheld. It is idempotent and safe to call before Start.
func (p *Pipeline) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.killed {
		return
	}
	p.killed = true
	if !p.started {
		return
	}

	p.stopLocked()
	p.pool.Release()

	if owner, ok := p.sink.CurrentOwner(); ok {
		p.sink.Release()
		p.metrics.ForcedReleases.Inc()
		p.logger.Warn("sink released at shutdown", zap.Int("owner", owner))
	}

	var processed, failed uint64
	for _, w := range p.workers {
		processed += w.Processed()
		failed += w.Failed()
	}
	p.logger.Info("pipeline killed",
		zap.Uint64("processed", processed),
		zap.Uint64("failed", failed),
		zap.Int("queued", p.queue.Len()),
	)
}

// stopLocked flags every loop and waits for them. p.mu must be held.
func (p *Pipeline) stopLocked() {
	if p.feeder != nil {
		p.feeder.Stop()
	}
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
}
