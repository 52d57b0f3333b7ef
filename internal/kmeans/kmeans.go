// Package kmeans clusters projected profiles with Lloyd's algorithm.
// Initialization is either greedy k-means++ with restarts or a fixed set of
// centres (the PCA basis in full-space mode).
package kmeans

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Init selects how initial centres are chosen.
type Init int

const (
	// InitKMeansPlusPlus seeds centres by greedy k-means++ sampling.
	InitKMeansPlusPlus Init = iota
	// InitExplicit starts from Config.InitialCenters.
	InitExplicit
)

// Config controls a clustering run. Zero values take the defaults below.
type Config struct {
	K              int
	Init           Init
	InitialCenters [][]float64

	// NInit is the number of k-means++ restarts; the run with the lowest
	// inertia wins. Explicit initialization always runs once.
	NInit   int
	MaxIter int

	// Tol is relative to the mean feature variance.
	Tol  float64
	Seed uint64
}

const (
	defaultNInit   = 10
	defaultMaxIter = 300
	defaultTol     = 1e-4
)

// Model is a fitted clustering.
type Model struct {
	Centers    [][]float64
	Labels     []int
	Inertia    float64
	Iterations int
}

// K is the number of clusters.
func (m *Model) K() int { return len(m.Centers) }

// Fit clusters rows. Training labels always match Predict on the same rows.
func Fit(rows [][]float64, cfg Config) (*Model, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("kmeans: %w: no samples", domain.ErrShape)
	}
	d := len(rows[0])
	for i, r := range rows {
		if len(r) != d {
			return nil, fmt.Errorf("kmeans: %w: row %d has %d features, want %d", domain.ErrShape, i, len(r), d)
		}
	}
	if cfg.Init == InitExplicit {
		cfg.K = len(cfg.InitialCenters)
		for i, c := range cfg.InitialCenters {
			if len(c) != d {
				return nil, fmt.Errorf("kmeans: %w: initial centre %d has %d features, want %d", domain.ErrShape, i, len(c), d)
			}
		}
	}
	if cfg.K < 1 {
		return nil, errors.New("kmeans: at least one cluster is required")
	}
	if cfg.K > len(rows) {
		return nil, fmt.Errorf("kmeans: %w: %d clusters for %d samples", domain.ErrShape, cfg.K, len(rows))
	}
	if cfg.NInit <= 0 {
		cfg.NInit = defaultNInit
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = defaultMaxIter
	}
	if cfg.Tol <= 0 {
		cfg.Tol = defaultTol
	}
	tol := cfg.Tol * meanVariance(rows)

	if cfg.Init == InitExplicit {
		return lloyd(rows, cloneRows(cfg.InitialCenters), cfg.MaxIter, tol), nil
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	var best *Model
	for run := 0; run < cfg.NInit; run++ {
		m := lloyd(rows, plusPlus(rows, cfg.K, rng), cfg.MaxIter, tol)
		if best == nil || m.Inertia < best.Inertia {
			best = m
		}
	}
	return best, nil
}

// Predict assigns each row to its nearest centre. Ties go to the lowest
// cluster index.
func (m *Model) Predict(rows [][]float64) ([]int, error) {
	labels := make([]int, len(rows))
	for i, r := range rows {
		if len(r) != len(m.Centers[0]) {
			return nil, fmt.Errorf("kmeans predict: %w: row %d has %d features, want %d", domain.ErrShape, i, len(r), len(m.Centers[0]))
		}
		labels[i], _ = nearest(r, m.Centers)
	}
	return labels, nil
}

func lloyd(rows, centers [][]float64, maxIter int, tol float64) *Model {
	k, d := len(centers), len(rows[0])
	labels := make([]int, len(rows))
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for iter < maxIter {
		iter++
		changed := assign(rows, centers, labels)

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, d)
		}
		for i, r := range rows {
			floats.Add(sums[labels[i]], r)
			counts[labels[i]]++
		}
		relocateEmpty(rows, centers, labels, sums, counts)

		shift := 0.0
		for c := range centers {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(centers[c], sums[c])
			centers[c] = sums[c]
		}
		if !changed || shift <= tol {
			break
		}
	}

	// final assignment so labels agree with the returned centres
	assign(rows, centers, labels)
	inertia := 0.0
	for i, r := range rows {
		inertia += sqDist(r, centers[labels[i]])
	}
	return &Model{Centers: centers, Labels: labels, Inertia: inertia, Iterations: iter}
}

func assign(rows, centers [][]float64, labels []int) bool {
	changed := false
	for i, r := range rows {
		l, _ := nearest(r, centers)
		if l != labels[i] {
			labels[i] = l
			changed = true
		}
	}
	return changed
}

// relocateEmpty moves each empty cluster onto the sample farthest from its
// current centre.
func relocateEmpty(rows, centers [][]float64, labels []int, sums [][]float64, counts []int) {
	for c := range counts {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, r := range rows {
			if counts[labels[i]] < 2 {
				continue
			}
			if dist := sqDist(r, centers[labels[i]]); dist > farDist {
				far, farDist = i, dist
			}
		}
		if far < 0 {
			continue
		}
		old := labels[far]
		floats.Sub(sums[old], rows[far])
		counts[old]--
		copy(sums[c], rows[far])
		counts[c] = 1
		labels[far] = c
	}
}

// plusPlus picks k centres with greedy k-means++: each step samples
// 2+ln(k) candidates proportionally to squared distance and keeps the one
// that lowers the total potential most.
func plusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	trials := 2 + int(math.Log(float64(k)))

	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), rows[rng.IntN(n)]...))

	closest := make([]float64, n)
	for i, r := range rows {
		closest[i] = sqDist(r, centers[0])
	}
	potential := floats.Sum(closest)

	for len(centers) < k {
		bestIdx, bestPot := -1, math.Inf(1)
		var bestClosest []float64
		for trial := 0; trial < trials; trial++ {
			idx := sampleIndex(closest, potential, rng)
			cand := make([]float64, n)
			for i, r := range rows {
				cand[i] = math.Min(closest[i], sqDist(r, rows[idx]))
			}
			if pot := floats.Sum(cand); pot < bestPot {
				bestIdx, bestPot, bestClosest = idx, pot, cand
			}
		}
		centers = append(centers, append([]float64(nil), rows[bestIdx]...))
		closest, potential = bestClosest, bestPot
	}
	return centers
}

func sampleIndex(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	return len(weights) - 1
}

func nearest(r []float64, centers [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, ctr := range centers {
		if dist := sqDist(r, ctr); dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best, bestDist
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func meanVariance(rows [][]float64) float64 {
	d := len(rows[0])
	col := make([]float64, len(rows))
	total := 0.0
	for j := 0; j < d; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		total += v
	}
	return total / float64(d)
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
