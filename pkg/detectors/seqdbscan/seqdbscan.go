// Package seqdbscan implements an online, sequential variant of DBSCAN.
//
// Points are clustered one at a time as they arrive. A new point that is core
// (at least minSamples points, itself included, within eps) joins the
// lowest-numbered cluster among its neighbours, merges every other cluster it
// touches into that one, and pulls neighbouring noise points in with it. A
// point that is not core becomes a border point of the first labelled
// neighbour or, failing that, noise. Noise is not terminal: a later core
// point can reclaim it.
//
// An Engine is not safe for concurrent use. It is meant to be owned by a
// single consumer goroutine that feeds it in order.
package seqdbscan

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"
)

// Engine holds the incremental clustering state.
type Engine struct {
	// Configuration
	eps                float64
	minSamples         int
	indexKind          IndexKind
	scoringParallelism int
	logger             *zap.Logger

	// State
	store    pointStore
	index    regionIndex
	labels   []Label
	clusters map[ClusterID]*roaring.Bitmap
	noise    *roaring.Bitmap
	nextID   ClusterID
	retired  int

	// Scratch buffers reused across Ingest calls
	neighbors []PointID
	touched   []ClusterID
}

// Option configures an Engine.
type Option func(*Engine)

// WithEps sets the neighbourhood radius.
func WithEps(eps float64) Option {
	return func(e *Engine) {
		e.eps = eps
	}
}

// WithMinSamples sets the core point threshold.
func WithMinSamples(n int) Option {
	return func(e *Engine) {
		e.minSamples = n
	}
}

// WithIndex selects the region query structure.
func WithIndex(kind IndexKind) Option {
	return func(e *Engine) {
		e.indexKind = kind
	}
}

// WithScoringParallelism bounds how many clusters are scored at once.
func WithScoringParallelism(n int) Option {
	return func(e *Engine) {
		e.scoringParallelism = n
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger == nil {
			logger = zap.NewNop()
		}
		e.logger = logger
	}
}

// New creates an Engine with the given options.
// Defaults: eps 0.5, minSamples 5, grid index.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		eps:                0.5,
		minSamples:         5,
		indexKind:          IndexGrid,
		scoringParallelism: 4,
		logger:             zap.NewNop(),
		clusters:           make(map[ClusterID]*roaring.Bitmap),
		noise:              roaring.New(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if !(e.eps > 0) || math.IsInf(e.eps, 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEps, e.eps)
	}
	if e.minSamples < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMinSamples, e.minSamples)
	}
	if e.scoringParallelism < 1 {
		e.scoringParallelism = 1
	}

	index, err := newRegionIndex(e.indexKind, &e.store, e.eps)
	if err != nil {
		return nil, err
	}
	e.index = index

	return e, nil
}

// Eps returns the neighbourhood radius.
func (e *Engine) Eps() float64 { return e.eps }

// MinSamples returns the core point threshold.
func (e *Engine) MinSamples() int { return e.minSamples }

// Len returns the number of ingested points.
func (e *Engine) Len() int { return len(e.labels) }

// Dim returns the established dimension, or 0 before the first ingest.
func (e *Engine) Dim() int { return e.store.dim }

// Ingest clusters v against every previously ingested point and returns the
// label v received. The vector is copied.
func (e *Engine) Ingest(v []float64) (Label, error) {
	if err := e.check(v); err != nil {
		return unassigned, err
	}
	if e.store.dim == 0 {
		e.store.dim = len(v)
		e.logger.Debug("dimension established", zap.Int("dim", len(v)))
	}

	id := PointID(len(e.labels))
	e.neighbors = e.index.query(v, e.neighbors[:0])
	e.labels = append(e.labels, unassigned)

	// The neighbourhood counts v itself.
	if len(e.neighbors)+1 >= e.minSamples {
		e.ingestCore(id)
	} else {
		e.ingestNonCore(id)
	}

	stored := e.store.add(v)
	e.index.insert(stored, e.store.at(stored))

	return e.labels[id], nil
}

func (e *Engine) check(v []float64) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	if e.store.dim != 0 && len(v) != e.store.dim {
		return &DimensionMismatchError{Expected: e.store.dim, Actual: len(v)}
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ErrNonFinite
		}
	}
	if uint64(len(e.labels)) >= math.MaxUint32 {
		return ErrPointLimit
	}
	return nil
}

func (e *Engine) ingestCore(id PointID) {
	e.touched = e.touched[:0]
	for _, n := range e.neighbors {
		if cid, ok := e.labels[n].Cluster(); ok && !slices.Contains(e.touched, cid) {
			e.touched = append(e.touched, cid)
		}
	}

	var target ClusterID
	if len(e.touched) > 0 {
		target = slices.Min(e.touched)
		for _, other := range e.touched {
			if other != target {
				e.merge(target, other)
			}
		}
	} else {
		target = e.nextID
		e.nextID++
		e.clusters[target] = roaring.New()
		e.logger.Debug("cluster created", zap.Uint32("cluster", uint32(target)), zap.Uint32("point", uint32(id)))
	}

	e.assign(id, target)

	for _, n := range e.neighbors {
		if e.labels[n] == Noise {
			e.noise.Remove(uint32(n))
			e.assign(n, target)
		}
	}
}

func (e *Engine) ingestNonCore(id PointID) {
	for _, n := range e.neighbors {
		if cid, ok := e.labels[n].Cluster(); ok {
			e.assign(id, cid)
			return
		}
	}
	e.labels[id] = Noise
	e.noise.Add(uint32(id))
}

func (e *Engine) assign(id PointID, cid ClusterID) {
	e.labels[id] = LabelOf(cid)
	e.clusters[cid].Add(uint32(id))
}

// merge moves every member of from into into and retires from.
func (e *Engine) merge(into, from ClusterID) {
	members := e.clusters[from]
	label := LabelOf(into)
	it := members.Iterator()
	for it.HasNext() {
		e.labels[it.Next()] = label
	}
	e.clusters[into].Or(members)
	delete(e.clusters, from)
	e.retired++

	e.logger.Debug("clusters merged",
		zap.Uint32("into", uint32(into)),
		zap.Uint32("from", uint32(from)),
		zap.Uint64("moved", members.GetCardinality()),
	)
}

// IngestBatch ingests vectors in order. Rejected vectors are skipped; the
// returned error joins every rejection. n counts the vectors ingested.
func (e *Engine) IngestBatch(vectors [][]float64) (n int, err error) {
	var errs []error
	for i, v := range vectors {
		if _, ierr := e.Ingest(v); ierr != nil {
			errs = append(errs, fmt.Errorf("vector %d: %w", i, ierr))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Label returns the current label of a point.
func (e *Engine) Label(id PointID) (Label, bool) {
	if int(id) >= len(e.labels) {
		return unassigned, false
	}
	return e.labels[id], true
}

// Point returns a copy of an ingested vector.
func (e *Engine) Point(id PointID) (Point, bool) {
	if int(id) >= len(e.labels) {
		return Point{}, false
	}
	return e.point(id), true
}

func (e *Engine) point(id PointID) Point {
	return Point{ID: id, Vector: slices.Clone(e.store.at(id))}
}

// GetClusters returns every live cluster ordered by ClusterID, with members
// ordered by PointID.
func (e *Engine) GetClusters() []Cluster {
	out := make([]Cluster, 0, len(e.clusters))
	for _, cid := range e.clusterIDs() {
		members := e.clusters[cid]
		c := Cluster{ID: cid, Members: make([]Point, 0, members.GetCardinality())}
		it := members.Iterator()
		for it.HasNext() {
			c.Members = append(c.Members, e.point(PointID(it.Next())))
		}
		out = append(out, c)
	}
	return out
}

// GetNoise returns the points currently labelled Noise. A later ingest may
// reclaim any of them.
func (e *Engine) GetNoise() []Point {
	out := make([]Point, 0, e.noise.GetCardinality())
	it := e.noise.Iterator()
	for it.HasNext() {
		out = append(out, e.point(PointID(it.Next())))
	}
	return out
}

// Stats returns counters describing the current state.
func (e *Engine) Stats() Stats {
	noise := int(e.noise.GetCardinality())
	return Stats{
		Points:          len(e.labels),
		Dimension:       e.store.dim,
		Clusters:        len(e.clusters),
		ClusteredPoints: len(e.labels) - noise,
		Noise:           noise,
		Retired:         e.retired,
	}
}

func (e *Engine) clusterIDs() []ClusterID {
	ids := make([]ClusterID, 0, len(e.clusters))
	for cid := range e.clusters {
		ids = append(ids, cid)
	}
	slices.Sort(ids)
	return ids
}
