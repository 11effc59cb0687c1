package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/seqguard/pkg/detectors/seqdbscan"
	"github.com/hed1ad/seqguard/pkg/features"
)

func TestNewConsumer(t *testing.T) {
	engine := newTestEngine(t)
	sink := NewResultSink()

	tests := []struct {
		name    string
		sink    *ResultSink
		engine  *seqdbscan.Engine
		opts    []ConsumerOption
		wantErr error
	}{
		{name: "defaults", sink: sink, engine: engine},
		{name: "count trigger", sink: sink, engine: engine, opts: []ConsumerOption{WithDrainCount(10)}},
		{name: "interval trigger", sink: sink, engine: engine, opts: []ConsumerOption{WithDrainInterval(time.Millisecond)}},
		{name: "no trigger", sink: sink, engine: engine, opts: []ConsumerOption{WithDrainCount(0)}, wantErr: ErrDrainTrigger},
		{name: "nil sink", engine: engine, wantErr: ErrNilSink},
		{name: "nil engine", sink: sink, wantErr: ErrNilEngine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConsumer(tt.sink, tt.engine, tt.opts...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestDrainOnce(t *testing.T) {
	engine := newTestEngine(t)
	sink := NewResultSink()
	metrics := NewMetrics(nil)

	var batches []Batch
	c, err := NewConsumer(sink, engine,
		WithConsumerMetrics(metrics),
		WithOnBatch(func(e *seqdbscan.Engine, b Batch) {
			assert.Same(t, engine, e)
			batches = append(batches, b)
		}),
	)
	require.NoError(t, err)

	assert.Zero(t, c.DrainOnce())
	assert.Empty(t, batches)

	for _, v := range [][]float64{{0, 0}, {0.1, 0}, {0.1, 0.1}, {5, 5}, {1, 2, 3}} {
		sink.Enqueue(v)
	}
	assert.Equal(t, 5, c.DrainOnce())
	assert.Zero(t, sink.Len())

	require.Len(t, batches, 1)
	assert.Equal(t, 5, batches[0].Drained)
	assert.Equal(t, 4, batches[0].Ingested)
	assert.Equal(t, 1, batches[0].Stats.Clusters)
	assert.Equal(t, 1, batches[0].Stats.Noise)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.VectorsIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VectorsRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EngineClusters))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.EnginePoints))
}

func TestDrainOnceMaxBatch(t *testing.T) {
	engine := newTestEngine(t)
	sink := NewResultSink()
	c, err := NewConsumer(sink, engine, WithMaxBatch(2))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		sink.Enqueue([]float64{float64(i), 0})
	}
	assert.Equal(t, 2, c.DrainOnce())
	assert.Equal(t, 3, sink.Len())
	assert.Equal(t, 2, engine.Len())
}

func TestConsumerRunCountTrigger(t *testing.T) {
	engine := newTestEngine(t)
	sink := NewResultSink()
	c, err := NewConsumer(sink, engine, WithDrainCount(3), WithConsumerPollInterval(time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	sink.Enqueue([]float64{0, 0})
	sink.Enqueue([]float64{1, 1})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, sink.Len(), "below threshold nothing is drained")

	sink.Enqueue([]float64{2, 2})
	require.Eventually(t, func() bool { return sink.Len() == 0 }, 5*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 3, engine.Len())
}

func TestConsumerRunFinalDrain(t *testing.T) {
	engine := newTestEngine(t)
	sink := NewResultSink()
	c, err := NewConsumer(sink, engine, WithDrainInterval(time.Hour))
	require.NoError(t, err)

	sink.Enqueue([]float64{0, 0})
	sink.Enqueue([]float64{0.1, 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, 2, engine.Len())
	assert.Len(t, engine.GetClusters(), 1)
}

func TestEndToEnd(t *testing.T) {
	engine := newTestEngine(t)

	// Items are 2-D points; the normalizer keeps the first two fields.
	extract := features.ExtractorFunc(func(item any) (features.Record, error) {
		p := item.([2]float64)
		return features.Record{PacketLength: p[0], InterArrival: p[1]}, nil
	})
	project := normalizerFunc(func(rs []features.Record) ([][]float64, error) {
		out := make([][]float64, len(rs))
		for i, r := range rs {
			out[i] = []float64{r.PacketLength, r.InterArrival}
		}
		return out, nil
	})

	p := newTestPipeline(t, extract, project, WithWorkers(3))

	var mu sync.Mutex
	var last Batch
	c, err := NewConsumer(p.Sink(), engine,
		WithDrainInterval(2*time.Millisecond),
		WithOnBatch(func(_ *seqdbscan.Engine, b Batch) {
			mu.Lock()
			last = b
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	require.NoError(t, p.Start())

	// Two dense blobs and one far point.
	var pushed int
	for i := 0; i < 20; i++ {
		p.Queue().Push([2]float64{float64(i) * 0.01, 0})
		p.Queue().Push([2]float64{10 + float64(i)*0.01, 10})
		pushed += 2
	}
	p.Queue().Push([2]float64{50, 50})
	pushed++

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.Stats.Points == pushed
	}, 5*time.Second, time.Millisecond)

	p.Kill()
	cancel()
	require.NoError(t, <-done)

	assert.False(t, p.Sink().IsHeld())
	assert.Len(t, engine.GetClusters(), 2)
	noise := engine.GetNoise()
	require.Len(t, noise, 1)
	assert.Equal(t, []float64{50, 50}, noise[0].Vector)
}

func newTestEngine(t *testing.T) *seqdbscan.Engine {
	t.Helper()
	e, err := seqdbscan.New(seqdbscan.WithEps(0.5), seqdbscan.WithMinSamples(2))
	require.NoError(t, err)
	return e
}
