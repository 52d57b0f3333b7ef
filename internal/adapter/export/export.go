// Package export renders centroids and class series as CSV tables for
// plotting and inspection.
package export

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/pca"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// CentroidsFrame flattens centroids into long form with one row per
// cluster, parameter and height. Extra features follow with a NaN height.
// order lists clusters in display order; rank is the position in it.
func CentroidsFrame(c *domain.Centroids, order []int) dataframe.DataFrame {
	var (
		ranks, classes []int
		params         []string
		heights, vals  []float64
	)
	for rank, k := range order {
		for _, p := range c.Params {
			for h, height := range c.Heights {
				ranks = append(ranks, rank)
				classes = append(classes, k)
				params = append(params, p)
				heights = append(heights, height)
				vals = append(vals, c.Profiles[p][k][h])
			}
		}
		for j, name := range c.ExtraNames {
			ranks = append(ranks, rank)
			classes = append(classes, k)
			params = append(params, name)
			heights = append(heights, math.NaN())
			vals = append(vals, c.Extra[k][j])
		}
	}
	return dataframe.New(
		series.New(ranks, series.Int, "rank"),
		series.New(classes, series.Int, "class"),
		series.New(params, series.String, "param"),
		series.New(heights, series.Float, "height"),
		series.New(vals, series.Float, "value"),
	)
}

// ClassesFrame lists the class of each time step.
func ClassesFrame(s domain.ClassSeries) dataframe.DataFrame {
	times := make([]string, len(s.Times))
	for i, t := range s.Times {
		times[i] = t.UTC().Format(time.RFC3339)
	}
	return dataframe.New(
		series.New(times, series.String, "time"),
		series.New(s.Labels, series.Int, "class"),
	)
}

// CountsFrame lists how many time steps fall into each class, sorted by
// class.
func CountsFrame(s domain.ClassSeries) dataframe.DataFrame {
	counts := s.Counts()
	classes := s.Classes()
	n := make([]int, len(classes))
	for i, c := range classes {
		n[i] = counts[c]
	}
	return dataframe.New(
		series.New(classes, series.Int, "class"),
		series.New(n, series.Int, "count"),
	)
}

// PCAFrame lists explained variance per principal component.
func PCAFrame(stats []pca.Stat) dataframe.DataFrame {
	comp := make([]int, len(stats))
	variance := make([]float64, len(stats))
	ratio := make([]float64, len(stats))
	cum := make([]float64, len(stats))
	for i, st := range stats {
		comp[i], variance[i], ratio[i], cum[i] = st.Component, st.Variance, st.Ratio, st.Cumulative
	}
	return dataframe.New(
		series.New(comp, series.Int, "component"),
		series.New(variance, series.Float, "variance"),
		series.New(ratio, series.Float, "ratio"),
		series.New(cum, series.Float, "cumulative"),
	)
}

// WriteCSV writes df with a header row.
func WriteCSV(w io.Writer, df dataframe.DataFrame) error {
	if df.Err != nil {
		return fmt.Errorf("build table: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
