// Package prep turns a filtered profile cube into a dense classification
// table.
package prep

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

// Options select what goes into the table.
type Options struct {
	Params       []string
	HeightLimits domain.HeightLimits

	// ValueCap, when set, clears values above the cap before NaN filling.
	ValueCap *domain.ValueCap
}

// Prepare selects the parameters and height window of c, applies the value
// cap, fills missing values and rounds timestamps to the minute. The result
// contains no NaN.
func Prepare(c *domain.Cube, opts Options, ps domain.ParameterSet) (*domain.Table, error) {
	if len(opts.Params) == 0 {
		return nil, fmt.Errorf("prepare table: %w: no parameters selected", domain.ErrShape)
	}

	var rows []int
	var heights []float64
	for i, h := range c.Heights {
		if opts.HeightLimits.Contains(h) {
			rows = append(rows, i)
			heights = append(heights, h)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("prepare table: %w: no heights within [%g, %g]",
			domain.ErrShape, opts.HeightLimits.Lower, opts.HeightLimits.Upper)
	}

	times := make([]time.Time, len(c.Times))
	for i, t := range c.Times {
		times[i] = domain.RoundTime(t)
	}

	table := domain.NewTable(opts.Params, heights, times)
	for _, name := range opts.Params {
		field, ok := c.Field(name)
		if !ok {
			return nil, fmt.Errorf("prepare table: %w: field %s not in cube", domain.ErrShape, name)
		}
		p, err := ps.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("prepare table: %w", err)
		}
		capped := opts.ValueCap != nil && opts.ValueCap.Param == name

		block := domain.NewField(len(times), len(heights), 0)
		for ti := range times {
			for hi, row := range rows {
				v := field[row][ti]
				if capped && v > opts.ValueCap.Max {
					v = math.NaN()
				}
				if math.IsNaN(v) {
					v = p.NaNReplacement
				}
				block[ti][hi] = v
			}
		}
		if err := table.SetBlock(name, block); err != nil {
			return nil, err
		}
	}
	return table, nil
}
