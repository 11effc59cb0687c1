package seqdbscan

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmptyVector is returned when a zero-length vector is ingested.
	ErrEmptyVector = errors.New("empty vector")

	// ErrNonFinite is returned when a vector holds NaN or Inf.
	ErrNonFinite = errors.New("vector contains non-finite value")

	// ErrInvalidEps is returned when eps is not strictly positive.
	ErrInvalidEps = errors.New("eps must be positive")

	// ErrInvalidMinSamples is returned when minSamples is below 1.
	ErrInvalidMinSamples = errors.New("min samples must be at least 1")

	// ErrInvalidK is returned when the scoring rank is below 1.
	ErrInvalidK = errors.New("k must be at least 1")

	// ErrUnknownIndex is returned for an unsupported IndexKind.
	ErrUnknownIndex = errors.New("unknown region index")

	// ErrPointLimit is returned once the PointID space is exhausted.
	ErrPointLimit = errors.New("point limit reached")
)

// DimensionMismatchError reports a vector whose length differs from the
// dimension fixed by the first ingested vector.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrDimensionMismatch) hold.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
