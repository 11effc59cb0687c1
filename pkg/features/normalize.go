package features

import (
	"errors"
	"math"
	"sync"
)

// ErrEmptyBatch is returned when a normalizer is handed no records.
var ErrEmptyBatch = errors.New("empty record batch")

// Identity passes record vectors through unchanged.
type Identity struct{}

// Normalize implements Normalizer.
func (Identity) Normalize(records []Record) ([][]float64, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}
	out := make([][]float64, len(records))
	for i, r := range records {
		out[i] = r.Vector()
	}
	return out, nil
}

// ZScore standardizes each field against running statistics of every record
// it has seen, using Welford's online mean and variance. It is safe for
// concurrent use by multiple workers.
//
// Without a prior the scale moves while the statistics settle: the first
// record always maps to the zero vector, and early vectors are standardized
// against different means than later ones. Seed the statistics with
// WithPrior, or stop updating them after a warm-up with WithFreezeAfter, to
// keep every vector handed to one engine on the same scale.
type ZScore struct {
	mu    sync.Mutex
	count float64
	mean  [Dim]float64
	m2    [Dim]float64

	// Fields whose running stddev is at or below minStd map to 0.
	minStd float64
	// Statistics stop updating once count reaches freezeAfter; 0 never freezes.
	freezeAfter float64
}

// ZScoreOption configures a ZScore.
type ZScoreOption func(*ZScore)

// WithMinStd sets the stddev below which a field is treated as constant.
func WithMinStd(s float64) ZScoreOption {
	return func(z *ZScore) {
		z.minStd = s
	}
}

// WithPrior seeds the running statistics, e.g. from a fitted baseline.
func WithPrior(count int, mean, std [Dim]float64) ZScoreOption {
	return func(z *ZScore) {
		z.count = float64(count)
		z.mean = mean
		for i, s := range std {
			z.m2[i] = s * s * float64(count)
		}
	}
}

// WithFreezeAfter stops updating the statistics once n records were observed.
// Later records are standardized against the frozen mean and stddev.
func WithFreezeAfter(n int) ZScoreOption {
	return func(z *ZScore) {
		z.freezeAfter = float64(max(n, 0))
	}
}

// NewZScore creates an online standardizer.
func NewZScore(opts ...ZScoreOption) *ZScore {
	z := &ZScore{minStd: 1e-9}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Normalize folds the batch into the running statistics and standardizes it
// against the updated values.
func (z *ZScore) Normalize(records []Record) ([][]float64, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	for _, r := range records {
		if z.frozen() {
			break
		}
		z.observe(r.Vector())
	}

	var std [Dim]float64
	for i := range std {
		std[i] = math.Sqrt(z.m2[i] / z.count)
	}

	out := make([][]float64, len(records))
	for i, r := range records {
		v := r.Vector()
		for j, x := range v {
			if std[j] <= z.minStd {
				v[j] = 0
				continue
			}
			v[j] = (x - z.mean[j]) / std[j]
		}
		out[i] = v
	}
	return out, nil
}

// frozen reports whether the statistics stopped updating. z.mu must be held.
func (z *ZScore) frozen() bool {
	return z.freezeAfter > 0 && z.count >= z.freezeAfter
}

func (z *ZScore) observe(v []float64) {
	z.count++
	for i, x := range v {
		delta := x - z.mean[i]
		z.mean[i] += delta / z.count
		z.m2[i] += delta * (x - z.mean[i])
	}
}

// Count returns how many records have been observed.
func (z *ZScore) Count() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return int(z.count)
}

// Mean returns the running mean per field.
func (z *ZScore) Mean() [Dim]float64 {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.mean
}
