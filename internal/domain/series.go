package domain

import (
	"sort"
	"time"
)

// ClassSeries is the class label of each classified time step.
type ClassSeries struct {
	Times  []time.Time `json:"times"`
	Labels []int       `json:"labels"`
}

// Len is the number of labelled time steps.
func (s ClassSeries) Len() int { return len(s.Labels) }

// Counts returns how many time steps fall into each class.
func (s ClassSeries) Counts() map[int]int {
	out := make(map[int]int)
	for _, l := range s.Labels {
		out[l]++
	}
	return out
}

// Classes returns the distinct labels in ascending order.
func (s ClassSeries) Classes() []int {
	counts := s.Counts()
	out := make([]int, 0, len(counts))
	for c := range counts {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// Centroids holds the reconstructed cluster centres in physical units.
type Centroids struct {
	Params  []string
	Heights []float64

	// Profiles maps a parameter to its [cluster][height] profile.
	Profiles map[string][][]float64

	// ExtraNames and Extra hold the extra-feature part of each centre,
	// [cluster][feature], with feature weighting undone.
	ExtraNames []string
	Extra      [][]float64
}

// K is the number of clusters.
func (c *Centroids) K() int {
	for _, p := range c.Params {
		return len(c.Profiles[p])
	}
	return len(c.Extra)
}

// ExtraColumn returns the per-cluster values of one extra feature.
func (c *Centroids) ExtraColumn(name string) ([]float64, bool) {
	for j, n := range c.ExtraNames {
		if n != name {
			continue
		}
		out := make([]float64, len(c.Extra))
		for i, row := range c.Extra {
			out[i] = row[j]
		}
		return out, true
	}
	return nil, false
}

// CaseRef identifies a case to load from a cube source.
type CaseRef struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// CaseResult is the classification output of one case.
type CaseResult struct {
	RunID       string      `json:"run_id"`
	CaseID      string      `json:"case_id"`
	Scheme      string      `json:"scheme"`
	Classes     ClassSeries `json:"classes"`
	Counts      map[int]int `json:"counts"`
	ProcessedAt time.Time   `json:"processed_at"`
}
