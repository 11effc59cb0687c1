package pipeline

import "sync"

// fifo is an unsynchronized slice-backed queue.
type fifo[T any] struct {
	items []T
	head  int
}

func (f *fifo[T]) push(v T) {
	f.items = append(f.items, v)
}

func (f *fifo[T]) pop() (T, bool) {
	var zero T
	if f.head == len(f.items) {
		return zero, false
	}
	v := f.items[f.head]
	f.items[f.head] = zero
	f.head++
	f.compact()
	return v, true
}

// drain removes up to limit items, or all of them when limit <= 0.
func (f *fifo[T]) drain(limit int) []T {
	n := f.len()
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	copy(out, f.items[f.head:f.head+n])
	clear(f.items[f.head : f.head+n])
	f.head += n
	f.compact()
	return out
}

func (f *fifo[T]) len() int {
	return len(f.items) - f.head
}

// compact reclaims the consumed prefix once it dominates the backing array.
func (f *fifo[T]) compact() {
	if f.head == len(f.items) {
		f.items = f.items[:0]
		f.head = 0
		return
	}
	if f.head < 1024 || f.head < len(f.items)/2 {
		return
	}
	n := copy(f.items, f.items[f.head:])
	clear(f.items[n:])
	f.items = f.items[:n]
	f.head = 0
}

// InputQueue is an unbounded FIFO of raw items that is safe for any number of
// concurrent producers and consumers. Push never blocks on consumers.
type InputQueue struct {
	mu sync.Mutex
	q  fifo[any]
}

// NewInputQueue creates an empty queue.
func NewInputQueue() *InputQueue {
	return &InputQueue{}
}

// Push appends item.
func (q *InputQueue) Push(item any) {
	q.mu.Lock()
	q.q.push(item)
	q.mu.Unlock()
}

// TryPop removes the oldest item. It returns false when the queue is empty.
func (q *InputQueue) TryPop() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.pop()
}

// Len returns the number of queued items.
func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.len()
}
