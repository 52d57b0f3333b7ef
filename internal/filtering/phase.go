package filtering

import (
	"fmt"
	"math"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

// DerivePhase integrates KDP over height into differential phase:
// phidp = 2 * cumsum(kdp * dr), with dr in km. Missing, negative and
// above-cap KDP values contribute nothing. The source field is unchanged
// and an existing phase field is kept as is.
func DerivePhase(c *domain.Cube, cfg Config) (*domain.Cube, error) {
	out := c.Clone()
	if err := derivePhase(out, cfg); err != nil {
		return nil, err
	}
	return out, nil
}

func derivePhase(c *domain.Cube, cfg Config) error {
	if c.HasField(cfg.PhaseField) {
		return nil
	}
	src, ok := c.Field(cfg.PhaseSource)
	if !ok {
		return fmt.Errorf("%w: source field %s not in cube", domain.ErrShape, cfg.PhaseSource)
	}
	return c.SetField(cfg.PhaseField, integratePhase(src, c.HeightSpacingKm(), cfg.KDPMax))
}

func integratePhase(kdp [][]float64, dr []float64, kdpMax float64) [][]float64 {
	nh := len(kdp)
	if nh == 0 {
		return nil
	}
	nt := len(kdp[0])
	out := domain.NewField(nh, nt, 0)
	for t := 0; t < nt; t++ {
		acc := 0.0
		for h := 0; h < nh; h++ {
			v := kdp[h][t]
			if math.IsNaN(v) || v < 0 || v > kdpMax {
				v = 0
			}
			acc += v * dr[h]
			out[h][t] = 2 * acc
		}
	}
	return out
}
