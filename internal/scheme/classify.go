package scheme

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// Classify assigns a class to every time step of data. A cube is prepared
// and scaled with the trained options; a table must already be scaled and
// carry the trained parameters and heights in order. Extra features are required exactly when the scheme was trained with them.
func (s *Scheme) Classify(ctx context.Context, data domain.Dataset, extra *domain.Features) (domain.ClassSeries, error) {
	if err := ctx.Err(); err != nil {
		return domain.ClassSeries{}, err
	}
	if s.state == Untrained || s.km == nil {
		return domain.ClassSeries{}, fmt.Errorf("classify: %w", domain.ErrNotTrained)
	}
	t, err := s.scaledTable(data, s.PrepOptions())
	if err != nil {
		return domain.ClassSeries{}, fmt.Errorf("classify: %w", err)
	}
	if err := s.checkLayout(t); err != nil {
		return domain.ClassSeries{}, fmt.Errorf("classify: %w", err)
	}
	if len(s.meta.ExtraNames) == 0 && extra != nil {
		return domain.ClassSeries{}, fmt.Errorf("classify: %w: scheme was trained without extra features", domain.ErrShape)
	}

	rows, err := featureRows(s.pca, s.cfg, t, s.weightedMatrix(t), extra, s.meta.ExtraNames)
	if err != nil {
		return domain.ClassSeries{}, fmt.Errorf("classify: %w", err)
	}
	labels, err := s.km.Predict(rows)
	if err != nil {
		return domain.ClassSeries{}, fmt.Errorf("classify: %w", err)
	}

	times := make([]time.Time, t.Len())
	for i, ts := range t.Times {
		times[i] = domain.RoundTime(ts)
	}
	return domain.ClassSeries{Times: times, Labels: labels}, nil
}

// ClusterCentroids reconstructs the cluster centres in physical units,
// per parameter and height. In reduced mode the radar part is mapped back
// through the PCA basis first.
func (s *Scheme) ClusterCentroids() (*domain.Centroids, error) {
	if s.state == Untrained || s.km == nil {
		return nil, fmt.Errorf("cluster centroids: %w", domain.ErrNotTrained)
	}
	k := s.km.K()
	nExtra := len(s.meta.ExtraNames)
	width := len(s.km.Centers[0]) - nExtra

	radar := mat.NewDense(k, width, nil)
	extra := make([][]float64, k)
	for c, ctr := range s.km.Centers {
		radar.SetRow(c, ctr[:width])
		extra[c] = make([]float64, nExtra)
		for j, v := range ctr[width:] {
			extra[c][j] = v / s.cfg.ExtraWeight
		}
	}

	full := radar
	if s.meta.Reduced {
		var err error
		if full, err = s.pca.InverseTransform(radar); err != nil {
			return nil, fmt.Errorf("cluster centroids: %w", err)
		}
	}

	nh := len(s.meta.Heights)
	if _, d := full.Dims(); d != nh*len(s.meta.Params) {
		return nil, fmt.Errorf("cluster centroids: %w: %d columns for %d params × %d heights",
			domain.ErrShape, d, len(s.meta.Params), nh)
	}

	out := &domain.Centroids{
		Params:     append([]string(nil), s.meta.Params...),
		Heights:    append([]float64(nil), s.meta.Heights...),
		Profiles:   make(map[string][][]float64, len(s.meta.Params)),
		ExtraNames: append([]string(nil), s.meta.ExtraNames...),
		Extra:      extra,
	}
	for pi, p := range s.meta.Params {
		w := s.radarWeight(p)
		profiles := make([][]float64, k)
		for c := 0; c < k; c++ {
			prof := make([]float64, nh)
			for h := 0; h < nh; h++ {
				prof[h] = full.At(c, pi*nh+h) / w
			}
			profiles[c] = prof
		}
		if err := s.scaler.UnscaleProfiles(p, profiles); err != nil {
			return nil, fmt.Errorf("cluster centroids: %w", err)
		}
		out.Profiles[p] = profiles
	}
	return out, nil
}
