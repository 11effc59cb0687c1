package pipeline

import (
	"sync/atomic"
	"time"
)

// Feeder grants work permission to idle workers in round-robin order while
// the input queue has items.
type Feeder struct {
	workers []*Worker
	queue   *InputQueue
	poll    time.Duration
	metrics *Metrics

	stopped atomic.Bool
}

// Stop asks the feeder loop to exit.
func (f *Feeder) Stop() { f.stopped.Store(true) }

func (f *Feeder) run() {
	idx := 0
	armedThisRound := false
	for !f.stopped.Load() {
		depth := f.queue.Len()
		f.metrics.QueueDepth.Set(float64(depth))

		if len(f.workers) == 0 || depth == 0 {
			time.Sleep(f.poll)
			continue
		}

		if w := f.workers[idx]; !w.Armed() {
			w.Arm()
			armedThisRound = true
		}
		idx = (idx + 1) % len(f.workers)

		// A full round with every worker busy: back off instead of spinning.
		if idx == 0 {
			if !armedThisRound {
				time.Sleep(f.poll)
			}
			armedThisRound = false
		}
	}
}
