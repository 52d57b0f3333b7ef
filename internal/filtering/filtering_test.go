package filtering

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heights(n int, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i+1) * step
	}
	return out
}

func times(n int) []time.Time {
	t0 := time.Date(2014, time.February, 21, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = t0.Add(time.Duration(i) * 15 * time.Minute)
	}
	return out
}

// rawCube builds a cube with ZH, ZDR and KDP fields. Every fifth cell is
// missing so null-mask handling is exercised.
func rawCube(t *testing.T, nh, nt int) *domain.Cube {
	t.Helper()
	c := domain.NewCube(heights(nh, 50), times(nt))
	zh := domain.NewField(nh, nt, 0)
	zdr := domain.NewField(nh, nt, 0)
	kdp := domain.NewField(nh, nt, 0)
	for h := 0; h < nh; h++ {
		for tt := 0; tt < nt; tt++ {
			zh[h][tt] = 20 - float64(h)*0.2
			zdr[h][tt] = 0.5 + 0.1*math.Sin(float64(h*tt))
			kdp[h][tt] = 0.05 + 0.01*math.Cos(float64(h+tt))
			if (h*nt+tt)%5 == 0 {
				zdr[h][tt] = math.NaN()
				kdp[h][tt] = math.NaN()
			}
		}
	}
	require.NoError(t, c.SetField("ZH", zh))
	require.NoError(t, c.SetField("ZDR", zdr))
	require.NoError(t, c.SetField("KDP", kdp))
	return c
}

func TestEnsureWorkingFields_CopiesAllWhenAnyMissing(t *testing.T) {
	c := rawCube(t, 4, 3)
	require.NoError(t, c.SetField("zdr", domain.NewField(4, 3, 42)))

	out, err := EnsureWorkingFields(c, []string{"ZDR", "KDP"})
	require.NoError(t, err)

	zdr, _ := out.Field("zdr")
	src, _ := out.Field("ZDR")
	assert.InDelta(t, src[1][1], zdr[1][1], 0, "stale working copy is rebuilt")
	assert.True(t, out.HasField("kdp"))
	assert.False(t, c.HasField("kdp"), "input cube is untouched")
}

func TestEnsureWorkingFields_MissingSource(t *testing.T) {
	c := domain.NewCube(heights(2, 50), times(2))
	_, err := EnsureWorkingFields(c, []string{"ZDR"})
	require.ErrorIs(t, err, domain.ErrShape)
}

func TestDespeckle_NullMaskPreserved(t *testing.T) {
	c := rawCube(t, 30, 6)
	out, err := Despeckle(c, domain.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)

	for _, pair := range [][2]string{{"ZDR", "zdr"}, {"KDP", "kdp"}} {
		in, _ := c.Field(pair[0])
		got, ok := out.Field(pair[1])
		require.True(t, ok)
		for h := range in {
			for tt := range in[h] {
				assert.Equal(t, math.IsNaN(in[h][tt]), math.IsNaN(got[h][tt]), "%s %d,%d", pair[1], h, tt)
			}
		}
	}
}

func TestClutterMask_EdgePolicy(t *testing.T) {
	nh, crop, thr := 8, 4, 1.0
	field := domain.NewField(nh, 5, 0)
	// column 0: nothing exceeds
	// column 1: a mid-level bin exceeds
	field[2][1] = 2
	// column 2: boundary bin exceeds, clean column
	field[2][2] = 2
	field[crop][2] = 2
	// column 3: lowest and boundary bins exceed, the boundary clears the column
	field[0][3] = 2
	field[crop][3] = 2
	// column 4: lowest bin exceeds, whole cropped column is clutter
	field[0][4] = 2

	mask := ClutterMask(field, thr, crop)
	require.Len(t, mask, nh)

	for tt := 0; tt < 5; tt++ {
		assert.True(t, mask[0][tt], "lowest bin always clutter, column %d", tt)
		assert.False(t, mask[crop][tt], "bin after crop always clean, column %d", tt)
		for h := crop; h < nh; h++ {
			assert.False(t, mask[h][tt])
		}
	}
	assert.False(t, mask[2][0])
	assert.True(t, mask[2][1])
	assert.False(t, mask[2][2])
	for h := 1; h < crop; h++ {
		assert.False(t, mask[h][3], "bin %d", h)
		assert.True(t, mask[h][4], "bin %d", h)
	}
}

func TestGroundClutter_ReplacesOnlyLowBins(t *testing.T) {
	nh, nt := 40, 4
	c := domain.NewCube(heights(nh, 50), times(nt))
	zdr := domain.NewField(nh, nt, 1)
	kdp := domain.NewField(nh, nt, 0.05)
	zdr[0][1] = 6 // clutter spike at the surface
	zdr[30][1] = 7
	require.NoError(t, c.SetField("ZDR", zdr))
	require.NoError(t, c.SetField("KDP", kdp))

	out, err := GroundClutter(c, domain.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)

	got, _ := out.Field("zdr")
	assert.InDelta(t, 1, got[0][1], 1e-12, "surface spike replaced by median")
	assert.InDelta(t, 7, got[30][1], 1e-12, "bins above crop untouched")
	src, _ := c.Field("ZDR")
	assert.InDelta(t, 6, src[0][1], 0, "source field untouched")
}

func TestDerivePhase(t *testing.T) {
	c := domain.NewCube([]float64{100, 200, 300, 400}, times(1))
	require.NoError(t, c.SetField("KDP", [][]float64{{0.1}, {math.NaN()}, {-0.2}, {0.3}}))

	out, err := DerivePhase(c, DefaultConfig())
	require.NoError(t, err)

	phidp, ok := out.Field("phidp")
	require.True(t, ok)
	// dr is 0.1 km everywhere
	assert.InDeltaSlice(t, []float64{0.02, 0.02, 0.02, 0.08},
		[]float64{phidp[0][0], phidp[1][0], phidp[2][0], phidp[3][0]}, 1e-12)

	kdp, _ := out.Field("KDP")
	assert.True(t, math.IsNaN(kdp[1][0]), "source is not cleared")
}

func TestDerivePhase_KeepsExistingField(t *testing.T) {
	c := domain.NewCube([]float64{100, 200}, times(1))
	require.NoError(t, c.SetField("KDP", [][]float64{{0.1}, {0.1}}))
	require.NoError(t, c.SetField("phidp", [][]float64{{5}, {5}}))

	out, err := DerivePhase(c, DefaultConfig())
	require.NoError(t, err)
	phidp, _ := out.Field("phidp")
	assert.InDelta(t, 5, phidp[1][0], 0)
}

func TestPrepare(t *testing.T) {
	c := rawCube(t, 40, 5)
	kdp, _ := c.Field("KDP")
	kdp[25][2] = -0.3
	kdp[26][2] = 0.9

	out, err := Prepare(c, domain.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)

	for _, f := range []string{"KDP_orig", "phidp", "zdr", "kdp"} {
		assert.True(t, out.HasField(f), f)
	}
	orig, _ := out.Field(OriginalKDPField)
	assert.InDelta(t, -0.3, orig[25][2], 0)

	capped, _ := out.Field("KDP")
	assert.True(t, math.IsNaN(capped[25][2]), "negative KDP cleared")
	assert.InDelta(t, 0, capped[26][2], 0, "KDP above cap zeroed")
}

func TestPrepare_MissingKDP(t *testing.T) {
	c := domain.NewCube(heights(3, 50), times(2))
	_, err := Prepare(c, domain.DefaultParameterSet(), DefaultConfig())
	require.ErrorIs(t, err, domain.ErrShape)
}
