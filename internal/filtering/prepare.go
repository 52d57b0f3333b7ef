package filtering

import (
	"fmt"
	"math"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

// OriginalKDPField keeps the unmodified KDP field after Prepare.
const OriginalKDPField = "KDP_orig"

// Prepare runs the full pre-classification chain on a raw cube:
//  1. keep a copy of KDP as KDP_orig
//  2. clear negative KDP
//  3. derive differential phase
//  4. set KDP above the cap to zero
//  5. despeckle the working fields
//  6. correct ground clutter
func Prepare(c *domain.Cube, ps domain.ParameterSet, cfg Config) (*domain.Cube, error) {
	out := c.Clone()

	kdp, ok := out.Field(cfg.PhaseSource)
	if !ok {
		return nil, fmt.Errorf("prepare: %w: source field %s not in cube", domain.ErrShape, cfg.PhaseSource)
	}
	if err := out.SetField(OriginalKDPField, cloneGrid(kdp)); err != nil {
		return nil, err
	}

	kdp = cloneGrid(kdp)
	for _, row := range kdp {
		for t, v := range row {
			if v < 0 {
				row[t] = math.NaN()
			}
		}
	}
	if err := out.SetField(cfg.PhaseSource, kdp); err != nil {
		return nil, err
	}

	if err := derivePhase(out, cfg); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}

	for _, row := range kdp {
		for t, v := range row {
			if v > cfg.KDPMax {
				row[t] = 0
			}
		}
	}

	if err := despeckle(out, ps, cfg); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	if err := groundClutter(out, ps, cfg.Clutter); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	return out, nil
}
