package seqdbscan

import "strconv"

// PointID identifies an ingested vector by its ingestion ordinal.
type PointID uint32

// ClusterID identifies a live cluster. IDs are allocated monotonically and a
// retired ID is never handed out again.
type ClusterID uint32

// Label is the classification of a point: Noise or a ClusterID.
type Label int64

const (
	// Noise marks a point that is neither core nor border.
	Noise Label = -1

	// unassigned is only ever held by the point currently being ingested.
	unassigned Label = -2
)

// LabelOf returns the Label carried by members of cluster id.
func LabelOf(id ClusterID) Label {
	return Label(id)
}

// IsNoise reports whether l is Noise.
func (l Label) IsNoise() bool {
	return l == Noise
}

// Cluster returns the ClusterID behind l, or false for Noise.
func (l Label) Cluster() (ClusterID, bool) {
	if l < 0 {
		return 0, false
	}
	return ClusterID(l), true
}

func (l Label) String() string {
	switch {
	case l == Noise:
		return "noise"
	case l < 0:
		return "unassigned"
	default:
		return "cluster-" + strconv.FormatInt(int64(l), 10)
	}
}

// Point is a snapshot of an ingested vector.
type Point struct {
	ID     PointID
	Vector []float64
}

// Cluster is a snapshot of a live cluster and its members.
type Cluster struct {
	ID      ClusterID
	Members []Point
}

// AnomalyScore flags a cluster member whose k-distance is unusually large
// compared with the rest of its cluster.
type AnomalyScore struct {
	Point   Point
	Cluster ClusterID
	Score   float64
}

// Stats summarizes engine state.
type Stats struct {
	Points          int
	Dimension       int
	Clusters        int
	ClusteredPoints int
	Noise           int
	Retired         int
}
