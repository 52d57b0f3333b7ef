// Package pca implements the principal component projection used to reduce
// concatenated radar profiles before clustering.
package pca

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minVariance guards whitening against division by a vanishing variance.
const minVariance = 1e-12

// PCA is a fitted orthonormal basis. Fields are exported plain slices so a
// scheme can persist the basis at full precision.
type PCA struct {
	NComponents int
	Whiten      bool

	Mean                   []float64
	Components             [][]float64 // NComponents × features
	ExplainedVariance      []float64
	ExplainedVarianceRatio []float64
}

// New returns an unfitted PCA keeping n components.
func New(n int, whiten bool) *PCA {
	return &PCA{NComponents: n, Whiten: whiten}
}

// Fitted reports whether a basis is present.
func (p *PCA) Fitted() bool { return len(p.Components) > 0 }

// Features is the input dimensionality of a fitted basis.
func (p *PCA) Features() int { return len(p.Mean) }

// Fit computes the basis from the rows of x, replacing any previous one.
// Each component is oriented so its largest-magnitude loading is positive.
func (p *PCA) Fit(x mat.Matrix) error {
	n, d := x.Dims()
	if n < 2 {
		return fmt.Errorf("pca fit: %w: need at least 2 samples, got %d", domain.ErrShape, n)
	}
	if p.NComponents < 1 || p.NComponents > min(n, d) {
		return fmt.Errorf("pca fit: %w: %d components requested for %d×%d data", domain.ErrShape, p.NComponents, n, d)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return errors.New("pca fit: singular value decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}

	k := p.NComponents
	comps := make([][]float64, k)
	for i := 0; i < k; i++ {
		c := mat.Col(nil, i, &vecs)
		if c[floats.MaxIdx(absolute(c))] < 0 {
			floats.Scale(-1, c)
		}
		comps[i] = c
	}

	total := floats.Sum(vars)
	ev := append([]float64(nil), vars[:k]...)
	ratio := make([]float64, k)
	if total > 0 {
		floats.ScaleTo(ratio, 1/total, ev)
	}

	p.Mean = mean
	p.Components = comps
	p.ExplainedVariance = ev
	p.ExplainedVarianceRatio = ratio
	return nil
}

// Transform projects the rows of x onto the basis.
func (p *PCA) Transform(x mat.Matrix) (*mat.Dense, error) {
	if !p.Fitted() {
		return nil, fmt.Errorf("pca transform: %w", domain.ErrNotTrained)
	}
	n, d := x.Dims()
	if d != p.Features() {
		return nil, fmt.Errorf("pca transform: %w: %d features, basis has %d", domain.ErrShape, d, p.Features())
	}

	centred := mat.NewDense(n, d, nil)
	centred.Apply(func(_, j int, v float64) float64 { return v - p.Mean[j] }, x)

	var out mat.Dense
	out.Mul(centred, p.componentMatrix().T())
	if p.Whiten {
		out.Apply(func(_, j int, v float64) float64 { return v / p.scale(j) }, &out)
	}
	return &out, nil
}

// InverseTransform maps projected rows back to the input space.
func (p *PCA) InverseTransform(y mat.Matrix) (*mat.Dense, error) {
	if !p.Fitted() {
		return nil, fmt.Errorf("pca inverse transform: %w", domain.ErrNotTrained)
	}
	n, k := y.Dims()
	if k != len(p.Components) {
		return nil, fmt.Errorf("pca inverse transform: %w: %d components, basis has %d", domain.ErrShape, k, len(p.Components))
	}

	in := mat.DenseCopyOf(y)
	if p.Whiten {
		in.Apply(func(_, j int, v float64) float64 { return v * p.scale(j) }, in)
	}
	out := mat.NewDense(n, p.Features(), nil)
	out.Mul(in, p.componentMatrix())
	out.Apply(func(_, j int, v float64) float64 { return v + p.Mean[j] }, out)
	return out, nil
}

// Stat summarizes one component.
type Stat struct {
	Component  int
	Variance   float64
	Ratio      float64
	Cumulative float64
}

// Stats lists explained variance per component with the running total.
func (p *PCA) Stats() []Stat {
	out := make([]Stat, len(p.ExplainedVariance))
	cum := 0.0
	for i, v := range p.ExplainedVariance {
		cum += p.ExplainedVarianceRatio[i]
		out[i] = Stat{Component: i, Variance: v, Ratio: p.ExplainedVarianceRatio[i], Cumulative: cum}
	}
	return out
}

func (p *PCA) componentMatrix() *mat.Dense {
	m := mat.NewDense(len(p.Components), p.Features(), nil)
	for i, c := range p.Components {
		m.SetRow(i, c)
	}
	return m
}

func (p *PCA) scale(j int) float64 {
	return math.Sqrt(math.Max(p.ExplainedVariance[j], minVariance))
}

func absolute(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}
