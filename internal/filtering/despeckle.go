package filtering

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

// Despeckle median-filters the working copies of the configured fields.
// NaN cells in the input stay NaN and valid cells stay valid. The null mask
// is taken per field, from that field's own NaN cells.
func Despeckle(c *domain.Cube, ps domain.ParameterSet, cfg Config) (*domain.Cube, error) {
	out := c.Clone()
	if err := despeckle(out, ps, cfg); err != nil {
		return nil, err
	}
	return out, nil
}

func despeckle(c *domain.Cube, ps domain.ParameterSet, cfg Config) error {
	keys := sortedKeys(cfg.Despeckle)
	if err := ensureWorkingFields(c, keys); err != nil {
		return err
	}
	for _, k := range keys {
		work := strings.ToLower(k)
		p, err := ps.Lookup(work)
		if err != nil {
			return fmt.Errorf("despeckle %s: %w", work, err)
		}
		field, _ := c.Field(work)
		if err := c.SetField(work, medianMasked(field, p.NaNReplacement, cfg.Despeckle[k])); err != nil {
			return err
		}
	}
	return nil
}
