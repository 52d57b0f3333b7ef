package scheme

import (
	"context"
	"fmt"
	"slices"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/kmeans"
	"github.com/couchcryptid/storm-vp-classifier/internal/pca"
	"github.com/couchcryptid/storm-vp-classifier/internal/prep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Train fits the scheme. A cube is prepared and scaled with the scheme's
// options; a table is taken as already scaled. The PCA basis is fitted only
// on the first call; later calls only need the same width. extra may be nil.
// A failed call leaves the scheme unchanged.
//
// Training records the parameters, heights and extra feature names it
// used, replacing whatever an earlier call recorded, even when a later
// table lays out different parameters over the same basis.
func (s *Scheme) Train(ctx context.Context, data domain.Dataset, extra *domain.Features) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := s.scaledTable(data, s.PrepOptions())
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	x := s.weightedMatrix(t)

	p := s.pca
	if p == nil {
		p = pca.New(s.cfg.NEigens, s.cfg.Whiten)
		if err := p.Fit(x); err != nil {
			return fmt.Errorf("train: %w", err)
		}
	}

	var extraNames []string
	if extra != nil {
		extraNames = extra.Names
	}
	rows, err := featureRows(p, s.cfg, t, x, extra, extraNames)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	kcfg := kmeans.Config{MaxIter: s.cfg.MaxIter, Seed: s.cfg.Seed}
	if s.cfg.Reduced {
		kcfg.K = s.cfg.NClusters
		kcfg.Init = kmeans.InitKMeansPlusPlus
		kcfg.NInit = s.cfg.NInit
	} else {
		kcfg.Init = kmeans.InitExplicit
		kcfg.InitialCenters = basisCenters(p, rows, len(extraNames))
	}
	km, err := kmeans.Fit(rows, kcfg)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	s.pca = p
	s.km = km
	s.meta = Metadata{
		Params:       slices.Clone(t.Params),
		HeightLimits: domain.HeightLimits{Lower: slices.Min(t.Heights), Upper: slices.Max(t.Heights)},
		Heights:      slices.Clone(t.Heights),
		ExtraNames:   slices.Clone(extraNames),
		Reduced:      s.cfg.Reduced,
		NEigens:      len(s.pca.Components),
		NClusters:    km.K(),
		TrainedAt:    domain.Now(),
	}
	s.training = domain.ClassSeries{Times: slices.Clone(t.Times), Labels: slices.Clone(km.Labels)}
	s.state = Trained
	return nil
}

// scaledTable returns the scaled classification table for either shape.
func (s *Scheme) scaledTable(data domain.Dataset, opts prep.Options) (*domain.Table, error) {
	switch d := data.(type) {
	case *domain.Cube:
		t, err := prep.Prepare(d, opts, s.params)
		if err != nil {
			return nil, err
		}
		return s.scaler.ScaleTable(t)
	case *domain.Table:
		return d, nil
	default:
		return nil, fmt.Errorf("%w: unsupported dataset %T", domain.ErrShape, data)
	}
}

// weightedMatrix flattens t and multiplies each parameter block by its
// radar weight.
func (s *Scheme) weightedMatrix(t *domain.Table) *mat.Dense {
	x := t.Matrix()
	nh := len(t.Heights)
	for pi, p := range t.Params {
		w := s.radarWeight(p)
		if w == 1 {
			continue
		}
		for i := 0; i < t.Len(); i++ {
			for j := pi * nh; j < (pi+1)*nh; j++ {
				x.Set(i, j, x.At(i, j)*w)
			}
		}
	}
	return x
}

// checkLayout rejects a table whose parameters or heights differ from the
// trained layout. Equal widths are not enough: the PCA basis and centres
// are tied to column positions.
func (s *Scheme) checkLayout(t *domain.Table) error {
	if !slices.Equal(t.Params, s.meta.Params) {
		return fmt.Errorf("%w: parameters %v, scheme was trained on %v", domain.ErrShape, t.Params, s.meta.Params)
	}
	if !slices.Equal(t.Heights, s.meta.Heights) {
		return fmt.Errorf("%w: table heights differ from the %d trained heights", domain.ErrShape, len(s.meta.Heights))
	}
	return nil
}

// featureRows projects x in reduced mode and appends weighted extra
// features aligned on the table's timestamps.
func featureRows(p *pca.PCA, cfg Config, t *domain.Table, x *mat.Dense, extra *domain.Features, names []string) ([][]float64, error) {
	if _, d := x.Dims(); d != p.Features() {
		return nil, fmt.Errorf("%w: %d columns, scheme expects %d", domain.ErrShape, d, p.Features())
	}
	m := mat.Matrix(x)
	if cfg.Reduced {
		y, err := p.Transform(x)
		if err != nil {
			return nil, err
		}
		m = y
	}

	var extraRows [][]float64
	if len(names) > 0 {
		if extra == nil {
			return nil, fmt.Errorf("%w: scheme uses extra features %v, none given", domain.ErrShape, names)
		}
		if !slices.Equal(extra.Names, names) {
			return nil, fmt.Errorf("%w: extra features %v, scheme uses %v", domain.ErrShape, extra.Names, names)
		}
		var err error
		if extraRows, err = extra.Align(t.Times); err != nil {
			return nil, err
		}
	}

	n, _ := m.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		row := mat.Row(nil, i, m)
		if extraRows != nil {
			for _, e := range extraRows[i] {
				row = append(row, e*cfg.ExtraWeight)
			}
		}
		rows[i] = row
	}
	return rows, nil
}

// basisCenters seeds full-space clustering with the PCA components. Extra
// feature columns start at their mean.
func basisCenters(p *pca.PCA, rows [][]float64, nExtra int) [][]float64 {
	means := make([]float64, nExtra)
	d := len(rows[0]) - nExtra
	col := make([]float64, len(rows))
	for j := range means {
		for i, r := range rows {
			col[i] = r[d+j]
		}
		means[j] = stat.Mean(col, nil)
	}
	centers := make([][]float64, len(p.Components))
	for i, c := range p.Components {
		centers[i] = append(slices.Clone(c), means...)
	}
	return centers
}
