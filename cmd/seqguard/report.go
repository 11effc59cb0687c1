package main

import (
	"encoding/json"
	"io"

	"github.com/hed1ad/seqguard/pkg/detectors/seqdbscan"
)

type clusterSummary struct {
	ID   seqdbscan.ClusterID `json:"id"`
	Size int                 `json:"size"`
}

type anomalySummary struct {
	Point   seqdbscan.PointID   `json:"point"`
	Cluster seqdbscan.ClusterID `json:"cluster"`
	Score   float64             `json:"score"`
}

// report is the final clustering summary printed by run and replay.
type report struct {
	Points    int                 `json:"points"`
	Dimension int                 `json:"dimension"`
	Clusters  []clusterSummary    `json:"clusters"`
	Noise     []seqdbscan.PointID `json:"noise"`
	Anomalies []anomalySummary    `json:"anomalies"`
}

func buildReport(e *seqdbscan.Engine, k int, threshold float64) (report, error) {
	stats := e.Stats()
	r := report{
		Points:    stats.Points,
		Dimension: stats.Dimension,
		Clusters:  []clusterSummary{},
		Noise:     []seqdbscan.PointID{},
		Anomalies: []anomalySummary{},
	}

	for _, c := range e.GetClusters() {
		r.Clusters = append(r.Clusters, clusterSummary{ID: c.ID, Size: len(c.Members)})
	}
	for _, p := range e.GetNoise() {
		r.Noise = append(r.Noise, p.ID)
	}

	scores, err := e.ComputeAnomalyScores(k, threshold)
	if err != nil {
		return r, err
	}
	for _, s := range scores {
		r.Anomalies = append(r.Anomalies, anomalySummary{Point: s.Point.ID, Cluster: s.Cluster, Score: s.Score})
	}
	return r, nil
}

func writeReport(w io.Writer, e *seqdbscan.Engine, k int, threshold float64) error {
	r, err := buildReport(e, k, threshold)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
