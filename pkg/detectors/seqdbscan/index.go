package seqdbscan

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// IndexKind selects the structure used to answer region queries.
type IndexKind int

const (
	// IndexBruteForce scans every stored point.
	IndexBruteForce IndexKind = iota
	// IndexGrid buckets points into cells of side eps and only visits the
	// 3^D cells around the query.
	IndexGrid
)

func (k IndexKind) String() string {
	switch k {
	case IndexBruteForce:
		return "bruteforce"
	case IndexGrid:
		return "grid"
	default:
		return fmt.Sprintf("IndexKind(%d)", int(k))
	}
}

// ParseIndexKind maps a config string onto an IndexKind.
func ParseIndexKind(s string) (IndexKind, error) {
	switch s {
	case "", "grid":
		return IndexGrid, nil
	case "bruteforce", "brute-force", "scan":
		return IndexBruteForce, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownIndex, s)
	}
}

// pointStore keeps every ingested vector in one flat slice.
type pointStore struct {
	dim  int
	data []float64
}

func (s *pointStore) len() int {
	if s.dim == 0 {
		return 0
	}
	return len(s.data) / s.dim
}

func (s *pointStore) at(id PointID) []float64 {
	off := int(id) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

func (s *pointStore) add(v []float64) PointID {
	id := PointID(s.len())
	s.data = append(s.data, v...)
	return id
}

// regionIndex answers RegionQuery. Implementations must return exactly the
// points within eps of v, in ascending PointID order.
type regionIndex interface {
	insert(id PointID, v []float64)
	query(v []float64, dst []PointID) []PointID
}

func newRegionIndex(kind IndexKind, store *pointStore, eps float64) (regionIndex, error) {
	switch kind {
	case IndexBruteForce:
		return &scanIndex{store: store, eps: eps}, nil
	case IndexGrid:
		return newGridIndex(store, eps), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, kind)
	}
}

// euclidean returns the L2 distance between a and b.
func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

type scanIndex struct {
	store *pointStore
	eps   float64
}

func (s *scanIndex) insert(PointID, []float64) {}

func (s *scanIndex) query(v []float64, dst []PointID) []PointID {
	return scan(s.store, v, s.eps, dst)
}

func scan(store *pointStore, v []float64, eps float64, dst []PointID) []PointID {
	n := store.len()
	for i := 0; i < n; i++ {
		id := PointID(i)
		if euclidean(v, store.at(id)) <= eps {
			dst = append(dst, id)
		}
	}
	return dst
}

// gridIndex hashes points into axis-aligned cells. A point within eps of the
// query always lies in a cell whose coordinates differ by at most one on
// every axis, so the walk covers the brute-force result exactly.
type gridIndex struct {
	store *pointStore
	eps   float64
	side  float64
	cells map[string][]PointID

	coords []int64
	key    []byte
}

func newGridIndex(store *pointStore, eps float64) *gridIndex {
	return &gridIndex{
		store: store,
		eps:   eps,
		// Slightly wider than eps so rounding in v/side never pushes a
		// neighbour two cells away.
		side:  eps * (1 + 1e-9),
		cells: make(map[string][]PointID),
	}
}

func (g *gridIndex) cellOf(v []float64, coords []int64) []int64 {
	coords = coords[:0]
	for _, x := range v {
		coords = append(coords, int64(math.Floor(x/g.side)))
	}
	return coords
}

func (g *gridIndex) keyOf(coords []int64, key []byte) []byte {
	key = key[:0]
	for _, c := range coords {
		key = binary.AppendVarint(key, c)
	}
	return key
}

func (g *gridIndex) insert(id PointID, v []float64) {
	g.coords = g.cellOf(v, g.coords)
	g.key = g.keyOf(g.coords, g.key)
	k := string(g.key)
	g.cells[k] = append(g.cells[k], id)
}

func (g *gridIndex) query(v []float64, dst []PointID) []PointID {
	n := g.store.len()
	if n == 0 {
		return dst
	}
	// Walking 3^D cells only pays off while it is cheaper than a scan.
	if !walkCheaper(len(v), n) {
		return scan(g.store, v, g.eps, dst)
	}

	center := g.cellOf(v, nil)
	cell := make([]int64, len(center))
	start := len(dst)
	var key []byte

	var walk func(axis int)
	walk = func(axis int) {
		if axis == len(center) {
			key = g.keyOf(cell, key)
			for _, id := range g.cells[string(key)] {
				if euclidean(v, g.store.at(id)) <= g.eps {
					dst = append(dst, id)
				}
			}
			return
		}
		for d := int64(-1); d <= 1; d++ {
			cell[axis] = center[axis] + d
			walk(axis + 1)
		}
	}
	walk(0)

	slices.Sort(dst[start:])
	return dst
}

// walkCheaper reports whether 3^dim < n without overflowing.
func walkCheaper(dim, n int) bool {
	cells := 1
	for i := 0; i < dim; i++ {
		cells *= 3
		if cells >= n {
			return false
		}
	}
	return true
}
