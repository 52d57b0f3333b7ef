package filtering

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

// ClutterMask marks the bins of a [height][time] grid to replace with
// filtered values. A bin is a candidate when it exceeds threshold. Per time
// column, in order:
//   - if the bin at index crop exceeds, the column is clean;
//   - if the lowest bin is still a candidate, every bin below crop is clutter;
//   - the lowest bin is always clutter;
//   - bins at or above crop are always clean.
func ClutterMask(field [][]float64, threshold float64, crop int) [][]bool {
	nh := len(field)
	mask := make([][]bool, nh)
	if nh == 0 {
		return mask
	}
	nt := len(field[0])
	for h := range mask {
		mask[h] = make([]bool, nt)
	}
	crop = min(crop, nh)

	for t := 0; t < nt; t++ {
		for h := 0; h < crop; h++ {
			mask[h][t] = field[h][t] > threshold
		}
		if crop < nh && field[crop][t] > threshold {
			for h := 0; h < crop; h++ {
				mask[h][t] = false
			}
		}
		if mask[0][t] {
			for h := 1; h < crop; h++ {
				mask[h][t] = true
			}
		}
		mask[0][t] = true
	}
	return mask
}

// GroundClutter replaces near-surface clutter in the working fields with a
// median of the lowest FilterHeight bins.
func GroundClutter(c *domain.Cube, ps domain.ParameterSet, cfg Config) (*domain.Cube, error) {
	out := c.Clone()
	if err := groundClutter(out, ps, cfg.Clutter); err != nil {
		return nil, err
	}
	return out, nil
}

func groundClutter(c *domain.Cube, ps domain.ParameterSet, cfg ClutterConfig) error {
	keys := sortedKeys(cfg.Thresholds)
	if err := ensureWorkingFields(c, keys); err != nil {
		return err
	}
	nh := len(c.Heights)
	fh := min(cfg.FilterHeight, nh)
	crop := min(cfg.Crop, fh)

	for _, k := range keys {
		work := strings.ToLower(k)
		p, err := ps.Lookup(work)
		if err != nil {
			return fmt.Errorf("ground clutter %s: %w", work, err)
		}
		field, _ := c.Field(work)
		filtered := medianMasked(field[:fh], p.NaNReplacement, cfg.Window)
		mask := ClutterMask(field, cfg.Thresholds[k], crop)

		out := cloneGrid(field)
		for h := 0; h < crop; h++ {
			for t, clutter := range mask[h] {
				if clutter {
					out[h][t] = filtered[h][t]
				}
			}
		}
		if err := c.SetField(work, out); err != nil {
			return err
		}
	}
	return nil
}
