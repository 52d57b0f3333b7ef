package filtering

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

// EnsureWorkingFields creates lower-cased working copies of the given source
// fields. If any working field is missing, every one of them is recreated
// from its upper-case source, so a partially filtered cube starts over.
func EnsureWorkingFields(c *domain.Cube, keys []string) (*domain.Cube, error) {
	out := c.Clone()
	if err := ensureWorkingFields(out, keys); err != nil {
		return nil, err
	}
	return out, nil
}

func ensureWorkingFields(c *domain.Cube, keys []string) error {
	missing := false
	for _, k := range keys {
		if !c.HasField(strings.ToLower(k)) {
			missing = true
			break
		}
	}
	if !missing {
		return nil
	}
	for _, k := range keys {
		src, ok := c.Field(strings.ToUpper(k))
		if !ok {
			return fmt.Errorf("%w: source field %s not in cube", domain.ErrShape, strings.ToUpper(k))
		}
		if err := c.SetField(strings.ToLower(k), cloneGrid(src)); err != nil {
			return err
		}
	}
	return nil
}

func cloneGrid(g [][]float64) [][]float64 {
	out := make([][]float64, len(g))
	for i, row := range g {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
