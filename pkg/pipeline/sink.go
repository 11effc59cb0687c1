package pipeline

import (
	"sync"
	"sync/atomic"
)

// free is the owner value of an unheld sink.
const free int64 = -1

// ResultSink is a FIFO of normalized vectors with an advisory ownership token.
//
// The token serializes producers: a worker must win TryAcquire before
// Enqueue and Release afterwards. The sink does not check that the caller of
// Enqueue holds the token. Release is unconditional so any party can clear an
// abandoned token. Dequeue and Drain are for the consumer and ignore the
// token entirely.
type ResultSink struct {
	owner atomic.Int64

	mu sync.Mutex
	q  fifo[[]float64]
}

// NewResultSink creates an empty, unheld sink.
func NewResultSink() *ResultSink {
	s := &ResultSink{}
	s.owner.Store(free)
	return s
}

// TryAcquire records owner as the holder if the sink is free. It never blocks.
// Negative owner IDs are rejected.
func (s *ResultSink) TryAcquire(owner int) bool {
	if owner < 0 {
		return false
	}
	return s.owner.CompareAndSwap(free, int64(owner))
}

// Release frees the token regardless of who holds it.
func (s *ResultSink) Release() {
	s.owner.Store(free)
}

// IsHeld reports whether some owner holds the token.
func (s *ResultSink) IsHeld() bool {
	return s.owner.Load() != free
}

// CurrentOwner returns the holder, or false when the sink is free.
func (s *ResultSink) CurrentOwner() (int, bool) {
	o := s.owner.Load()
	if o == free {
		return 0, false
	}
	return int(o), true
}

// Enqueue appends v. Callers must hold the token.
func (s *ResultSink) Enqueue(v []float64) {
	s.mu.Lock()
	s.q.push(v)
	s.mu.Unlock()
}

// Dequeue removes the oldest vector, or returns false when empty.
func (s *ResultSink) Dequeue() ([]float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.pop()
}

// Drain removes up to limit vectors in FIFO order, or all when limit <= 0.
func (s *ResultSink) Drain(limit int) [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.drain(limit)
}

// Len returns the number of queued vectors.
func (s *ResultSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.len()
}
