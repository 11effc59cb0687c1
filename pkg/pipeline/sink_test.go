package pipeline

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSinkToken(t *testing.T) {
	s := NewResultSink()
	assert.False(t, s.IsHeld())
	_, ok := s.CurrentOwner()
	assert.False(t, ok)

	assert.False(t, s.TryAcquire(-1), "negative owners are rejected")
	assert.True(t, s.TryAcquire(3))
	assert.True(t, s.IsHeld())
	owner, ok := s.CurrentOwner()
	require.True(t, ok)
	assert.Equal(t, 3, owner)

	assert.False(t, s.TryAcquire(3), "token is not reentrant")
	assert.False(t, s.TryAcquire(4))

	// Anyone may release.
	s.Release()
	assert.False(t, s.IsHeld())
	assert.True(t, s.TryAcquire(0))
	owner, _ = s.CurrentOwner()
	assert.Equal(t, 0, owner)

	s.Release()
	s.Release()
	assert.False(t, s.IsHeld())
}

func TestResultSinkConcurrentAcquire(t *testing.T) {
	s := NewResultSink()
	const contenders = 32

	race := func() int {
		var wins atomic.Int32
		var ready, done sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < contenders; i++ {
			ready.Add(1)
			done.Add(1)
			go func(id int) {
				defer done.Done()
				ready.Done()
				<-start
				if s.TryAcquire(id) {
					wins.Add(1)
				}
			}(i)
		}
		ready.Wait()
		close(start)
		done.Wait()
		return int(wins.Load())
	}

	assert.Equal(t, 1, race())
	assert.True(t, s.IsHeld())
	assert.Equal(t, 0, race(), "held token admits nobody")

	s.Release()
	assert.Equal(t, 1, race(), "one release admits exactly one more")
}

func TestResultSinkMutualExclusion(t *testing.T) {
	s := NewResultSink()
	const producers = 8
	const perProducer = 500

	var inside atomic.Int32
	var violations atomic.Int32
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !s.TryAcquire(id) {
					runtime.Gosched()
				}
				if inside.Add(1) != 1 {
					violations.Add(1)
				}
				s.Enqueue([]float64{float64(id), float64(i)})
				inside.Add(-1)
				s.Release()
			}
		}(p)
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Equal(t, producers*perProducer, s.Len())

	// Per-producer order survives even though producers interleave.
	last := make(map[float64]float64)
	for _, v := range s.Drain(0) {
		if prev, ok := last[v[0]]; ok {
			assert.Greater(t, v[1], prev)
		}
		last[v[0]] = v[1]
	}
}

func TestResultSinkQueue(t *testing.T) {
	s := NewResultSink()

	_, ok := s.Dequeue()
	assert.False(t, ok)
	assert.Nil(t, s.Drain(0))

	for i := 0; i < 5; i++ {
		s.Enqueue([]float64{float64(i)})
	}
	assert.Equal(t, 5, s.Len())

	v, ok := s.Dequeue()
	require.True(t, ok)
	assert.Equal(t, []float64{0}, v)

	assert.Equal(t, [][]float64{{1}, {2}}, s.Drain(2))
	assert.Equal(t, [][]float64{{3}, {4}}, s.Drain(0))
	assert.Zero(t, s.Len())

	// Dequeue ignores the token.
	require.True(t, s.TryAcquire(1))
	s.Enqueue([]float64{9})
	v, ok = s.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, []float64{9}, v)
}
