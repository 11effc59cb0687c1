package seqdbscan

import (
	"slices"

	"golang.org/x/sync/errgroup"
)

// ComputeAnomalyScores finds density outliers inside clusters.
//
// For every cluster with at least two members, each member's k-distance is the
// distance to its k-th nearest fellow member (the farthest member when the
// cluster has k or fewer members). A member's score is its k-distance divided
// by the cluster mean, or 0 when that mean is 0. Members scoring above
// threshold are returned, ordered by cluster then point. Noise is never
// scored.
func (e *Engine) ComputeAnomalyScores(k int, threshold float64) ([]AnomalyScore, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}

	type job struct {
		id      ClusterID
		members []uint32
	}
	var jobs []job
	for _, cid := range e.clusterIDs() {
		if bm := e.clusters[cid]; bm.GetCardinality() >= 2 {
			jobs = append(jobs, job{id: cid, members: bm.ToArray()})
		}
	}

	results := make([][]AnomalyScore, len(jobs))
	var g errgroup.Group
	g.SetLimit(e.scoringParallelism)
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = e.scoreCluster(j.id, j.members, k, threshold)
			return nil
		})
	}
	_ = g.Wait()

	var out []AnomalyScore
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// scoreCluster only reads engine state, so clusters can be scored in parallel.
func (e *Engine) scoreCluster(cid ClusterID, members []uint32, k int, threshold float64) []AnomalyScore {
	m := len(members)
	rank := min(k, m-1)

	kdist := make([]float64, m)
	dists := make([]float64, m)
	var sum float64
	for i, a := range members {
		va := e.store.at(PointID(a))
		for j, b := range members {
			dists[j] = euclidean(va, e.store.at(PointID(b)))
		}
		slices.Sort(dists)
		kdist[i] = dists[rank]
		sum += kdist[i]
	}
	avg := sum / float64(m)

	var out []AnomalyScore
	for i, id := range members {
		var score float64
		if avg != 0 {
			score = kdist[i] / avg
		}
		if score > threshold {
			out = append(out, AnomalyScore{
				Point:   e.point(PointID(id)),
				Cluster: cid,
				Score:   score,
			})
		}
	}
	return out
}
