package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/seqguard/pkg/detectors/seqdbscan"
)

// Batch describes one drained batch after it was ingested.
type Batch struct {
	Drained  int
	Ingested int
	Stats    seqdbscan.Stats
}

// Consumer periodically drains a ResultSink into an Engine. It is the
// engine's only caller while Run is active; hooks run on the same goroutine
// and may query the engine.
type Consumer struct {
	sink   *ResultSink
	engine *seqdbscan.Engine

	drainCount    int
	drainInterval time.Duration
	poll          time.Duration
	maxBatch      int
	onBatch       func(*seqdbscan.Engine, Batch)

	logger  *zap.Logger
	metrics *Metrics
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithDrainCount drains whenever at least n vectors are waiting.
func WithDrainCount(n int) ConsumerOption {
	return func(c *Consumer) {
		c.drainCount = n
		c.drainInterval = 0
	}
}

// WithDrainInterval drains on a fixed cadence.
func WithDrainInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.drainInterval = d
		c.drainCount = 0
	}
}

// WithConsumerPollInterval sets how often the count trigger is checked.
func WithConsumerPollInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.poll = d
	}
}

// WithMaxBatch caps how many vectors one drain takes. Zero means no cap.
func WithMaxBatch(n int) ConsumerOption {
	return func(c *Consumer) {
		c.maxBatch = n
	}
}

// WithOnBatch registers a hook called after every non-empty batch.
func WithOnBatch(fn func(*seqdbscan.Engine, Batch)) ConsumerOption {
	return func(c *Consumer) {
		c.onBatch = fn
	}
}

// WithConsumerLogger sets the logger.
func WithConsumerLogger(logger *zap.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger == nil {
			logger = zap.NewNop()
		}
		c.logger = logger
	}
}

// WithConsumerMetrics sets the metrics collectors.
func WithConsumerMetrics(m *Metrics) ConsumerOption {
	return func(c *Consumer) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewConsumer creates a consumer. Default trigger: drain every second.
func NewConsumer(sink *ResultSink, engine *seqdbscan.Engine, opts ...ConsumerOption) (*Consumer, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	if engine == nil {
		return nil, ErrNilEngine
	}

	c := &Consumer{
		sink:          sink,
		engine:        engine,
		drainInterval: time.Second,
		poll:          10 * time.Millisecond,
		logger:        zap.NewNop(),
		metrics:       NewMetrics(nil),
	}
	for _, opt := range opts {
		opt(c)
	}

	if (c.drainCount > 0) == (c.drainInterval > 0) {
		return nil, ErrDrainTrigger
	}
	if c.poll <= 0 {
		c.poll = 10 * time.Millisecond
	}
	return c, nil
}

// Run drains the sink until ctx is done, then drains once more so vectors
// published before shutdown are not lost. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	tick := c.poll
	if c.drainInterval > 0 {
		tick = c.drainInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	c.logger.Info("consumer started",
		zap.Int("drain_count", c.drainCount),
		zap.Duration("drain_interval", c.drainInterval),
	)

	for {
		select {
		case <-ctx.Done():
			c.DrainOnce()
			c.logger.Info("consumer stopped", zap.Int("points", c.engine.Len()))
			return nil
		case <-ticker.C:
			depth := c.sink.Len()
			c.metrics.SinkDepth.Set(float64(depth))
			if c.drainCount > 0 && depth < c.drainCount {
				continue
			}
			c.DrainOnce()
		}
	}
}

// DrainOnce ingests whatever is waiting in the sink and returns the number of
// vectors drained. Rejected vectors are logged and counted, never fatal.
func (c *Consumer) DrainOnce() int {
	batch := c.sink.Drain(c.maxBatch)
	if len(batch) == 0 {
		return 0
	}

	n, err := c.engine.IngestBatch(batch)
	if err != nil {
		c.logger.Warn("vectors rejected", zap.Int("rejected", len(batch)-n), zap.Error(err))
	}

	stats := c.engine.Stats()
	c.metrics.BatchesDrained.Inc()
	c.metrics.VectorsIngested.Add(float64(n))
	c.metrics.VectorsRejected.Add(float64(len(batch) - n))
	c.metrics.SinkDepth.Set(float64(c.sink.Len()))
	c.metrics.observeEngine(stats)

	c.logger.Debug("batch ingested",
		zap.Int("drained", len(batch)),
		zap.Int("ingested", n),
		zap.Int("clusters", stats.Clusters),
		zap.Int("noise", stats.Noise),
	)

	if c.onBatch != nil {
		c.onBatch(c.engine, Batch{Drained: len(batch), Ingested: n, Stats: stats})
	}
	return len(batch)
}
