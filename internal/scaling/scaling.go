// Package scaling maps radar values to and from the unitless range used for
// clustering.
package scaling

import (
	"fmt"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

// Scaler converts between physical and scaled values using the limits of a
// parameter set: scaled = (raw - lower) / upper.
type Scaler struct {
	params domain.ParameterSet
}

// New creates a Scaler backed by ps.
func New(ps domain.ParameterSet) Scaler {
	return Scaler{params: ps}
}

// Scale converts a physical value of param. NaN stays NaN.
func (s Scaler) Scale(param string, v float64) (float64, error) {
	p, err := s.params.Lookup(param)
	if err != nil {
		return 0, err
	}
	return (v - p.Lower) / p.Upper, nil
}

// Unscale converts a scaled value of param back to physical units.
func (s Scaler) Unscale(param string, v float64) (float64, error) {
	p, err := s.params.Lookup(param)
	if err != nil {
		return 0, err
	}
	return v*p.Upper + p.Lower, nil
}

// Apply scales (or, with reverse, unscales) a copy of either dataset shape.
func (s Scaler) Apply(d domain.Dataset, reverse bool) (domain.Dataset, error) {
	switch v := d.(type) {
	case *domain.Cube:
		return s.applyCube(v, reverse)
	case *domain.Table:
		return s.applyTable(v, reverse)
	default:
		return nil, fmt.Errorf("%w: unsupported dataset %T", domain.ErrShape, d)
	}
}

// ScaleTable returns a scaled copy of t.
func (s Scaler) ScaleTable(t *domain.Table) (*domain.Table, error) {
	return s.applyTable(t, false)
}

// UnscaleTable returns a copy of t in physical units.
func (s Scaler) UnscaleTable(t *domain.Table) (*domain.Table, error) {
	return s.applyTable(t, true)
}

// ScaleCube returns a scaled copy of c.
func (s Scaler) ScaleCube(c *domain.Cube) (*domain.Cube, error) {
	return s.applyCube(c, false)
}

// UnscaleCube returns a copy of c in physical units.
func (s Scaler) UnscaleCube(c *domain.Cube) (*domain.Cube, error) {
	return s.applyCube(c, true)
}

// UnscaleProfiles converts [cluster][height] profiles of param in place.
func (s Scaler) UnscaleProfiles(param string, profiles [][]float64) error {
	p, err := s.params.Lookup(param)
	if err != nil {
		return err
	}
	transformGrid(profiles, p, true)
	return nil
}

func (s Scaler) applyTable(t *domain.Table, reverse bool) (*domain.Table, error) {
	out := t.Clone()
	for _, name := range out.Params {
		p, err := s.params.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("scale table: %w", err)
		}
		block, _ := out.Block(name)
		transformGrid(block, p, reverse)
	}
	return out, nil
}

func (s Scaler) applyCube(c *domain.Cube, reverse bool) (*domain.Cube, error) {
	out := c.Clone()
	for _, name := range out.Fields() {
		p, err := s.params.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("scale cube: %w", err)
		}
		field, _ := out.Field(name)
		transformGrid(field, p, reverse)
	}
	return out, nil
}

func transformGrid(g [][]float64, p domain.Parameter, reverse bool) {
	for _, row := range g {
		for i, v := range row {
			if reverse {
				row[i] = v*p.Upper + p.Lower
			} else {
				row[i] = (v - p.Lower) / p.Upper
			}
		}
	}
}
