package cases

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2014, time.February, 21, 12, 0, 0, 0, time.UTC)

// regimeCube returns n steps of either convective or light stratiform
// profiles on five heights, starting at start.
func regimeCube(t *testing.T, start time.Time, n int, convective bool) *domain.Cube {
	t.Helper()
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * 15 * time.Minute)
	}
	base := [3]float64{0, 0.2, 0.01}
	if convective {
		base = [3]float64{20, 1, 0.1}
	}
	c := domain.NewCube([]float64{200, 400, 600, 800, 1000}, times)
	zh := domain.NewField(5, n, 0)
	zdr := domain.NewField(5, n, 0)
	kdp := domain.NewField(5, n, 0)
	for h := range 5 {
		for i := range n {
			zh[h][i] = base[0] + 0.5*math.Sin(float64(h+3*i))
			zdr[h][i] = base[1] + 0.05*math.Cos(float64(2*h+i))
			kdp[h][i] = base[2] + 0.005*math.Sin(float64(h*i))
		}
	}
	require.NoError(t, c.SetField("ZH", zh))
	require.NoError(t, c.SetField("ZDR", zdr))
	require.NoError(t, c.SetField("KDP", kdp))
	return c
}

func tempSeries(t *testing.T, c *domain.Cube, first float64) *domain.Features {
	t.Helper()
	vals := make([]float64, len(c.Times))
	for i := range vals {
		vals[i] = first - float64(i)
	}
	f, err := domain.NewFeatureSeries(domain.TemperatureFeature, c.Times, vals)
	require.NoError(t, err)
	return f
}

func reducedScheme(t *testing.T, nClusters int) *scheme.Scheme {
	t.Helper()
	s, err := scheme.New(scheme.Config{
		BaseName:     "test",
		Params:       []string{"ZH", "ZDR", "KDP"},
		HeightLimits: domain.DefaultHeightLimits(),
		NEigens:      4,
		NClusters:    nClusters,
		Reduced:      true,
		ExtraWeight:  1,
		Seed:         1,
	}, domain.DefaultParameterSet())
	require.NoError(t, err)
	return s
}

// trainingCase combines a convective and a stratiform case of five steps
// each, with temperature falling from 5 to -4.
func trainingCase(t *testing.T, opts ...Option) *Case {
	t.Helper()
	conv := regimeCube(t, t0, 5, true)
	strat := regimeCube(t, t0.Add(75*time.Minute), 5, false)
	a := New(conv, WithTemperature(tempSeries(t, conv, 5)))
	b := New(strat, WithTemperature(tempSeries(t, strat, 0)))
	c, err := Combine([]*Case{a, b}, opts...)
	require.NoError(t, err)
	return c
}

func TestDateRangeID(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		want       string
	}{
		{"single day", t0, t0.Add(3 * time.Hour), "140221"},
		{"same month", t0, t0.AddDate(0, 0, 1), "140221-22"},
		{"month boundary", time.Date(2014, 2, 28, 0, 0, 0, 0, time.UTC), time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC), "140228-0301"},
		{"year boundary", time.Date(2014, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), "141231-150101"},
		{"open end", t0, time.Time{}, "140221"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateRangeID(tt.start, tt.end))
		})
	}
}

func TestCase_Name(t *testing.T) {
	c := New(regimeCube(t, t0, 3, true))
	assert.Equal(t, "140221", c.Name())
	assert.Equal(t, 15*time.Minute, c.MeanDelta())

	c = New(regimeCube(t, t0, 3, true), WithID("snow-event"))
	assert.Equal(t, "snow-event", c.Name())
}

func TestCombine(t *testing.T) {
	c := trainingCase(t)
	assert.Len(t, c.Data.Times, 10)
	assert.Equal(t, t0, c.Start())
	assert.Equal(t, t0.Add(135*time.Minute), c.End())
	require.NotNil(t, c.Temperature)
	col, ok := c.Temperature.Column(domain.TemperatureFeature)
	require.True(t, ok)
	assert.Equal(t, []float64{5, 4, 3, 2, 1, 0, -1, -2, -3, -4}, col)

	_, err := Combine(nil)
	require.Error(t, err)
}

func TestCombine_DropsPartialTemperature(t *testing.T) {
	conv := regimeCube(t, t0, 5, true)
	strat := regimeCube(t, t0.Add(75*time.Minute), 5, false)
	c, err := Combine([]*Case{New(conv, WithTemperature(tempSeries(t, conv, 5))), New(strat)})
	require.NoError(t, err)
	assert.Nil(t, c.Temperature)
}

func TestCase_RequiresScheme(t *testing.T) {
	c := New(regimeCube(t, t0, 3, true))
	_, err := c.Classify(context.Background(), nil)
	require.ErrorIs(t, err, errNoScheme)
	require.ErrorIs(t, c.Train(context.Background(), false), errNoScheme)
	_, err = c.ClassCounts()
	require.Error(t, err)
}

func TestCase_TrainAndClassify(t *testing.T) {
	ctx := context.Background()
	c := trainingCase(t, WithScheme(reducedScheme(t, 2)))
	require.NoError(t, c.Train(ctx, false))
	require.NotNil(t, c.Classes)
	trained := c.Classes.Labels

	got, err := c.Classify(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, trained, got.Labels)

	counts, err := c.ClassCounts()
	require.NoError(t, err)
	assert.Equal(t, map[int]int{got.Labels[0]: 5, got.Labels[5]: 5}, counts)

	require.NotNil(t, c.ClData)
	assert.Equal(t, []string{"ZH", "ZDR", "KDP"}, c.ClData.Params)
	require.NotNil(t, c.ClDataScaled)
}

func TestCase_ReassignedSchemeKeepsClassesUntilReclassified(t *testing.T) {
	ctx := context.Background()
	first := reducedScheme(t, 2)
	c := trainingCase(t, WithScheme(first))
	require.NoError(t, c.Train(ctx, false))
	before := c.Classes

	other := reducedScheme(t, 3)
	train := trainingCase(t, WithScheme(other))
	require.NoError(t, train.Train(ctx, false))

	c.Scheme = other
	assert.Same(t, before, c.Classes)

	got, err := c.Classify(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, train.Classes.Labels, got.Labels)
	assert.NotSame(t, before, c.Classes)
}

func TestCase_TrainWithTemperature(t *testing.T) {
	ctx := context.Background()
	c := trainingCase(t, WithScheme(reducedScheme(t, 2)))
	require.NoError(t, c.Train(ctx, true))
	assert.Equal(t, []string{domain.TemperatureFeature}, c.Scheme.Metadata().ExtraNames)

	got, err := c.Classify(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, c.Classes.Labels, got.Labels)

	cent, order, err := c.Centroids(domain.TemperatureFeature)
	require.NoError(t, err)
	require.Len(t, order, 2)
	col, ok := cent.ExtraColumn(domain.TemperatureFeature)
	require.True(t, ok)
	assert.Less(t, col[order[0]], col[order[1]])
	assert.Equal(t, got.Labels[5], order[0], "the colder stratiform class sorts first")

	_, _, err = c.Centroids("rain_rate")
	require.Error(t, err)
}

func TestCase_TrainWithTemperatureMissing(t *testing.T) {
	c := New(regimeCube(t, t0, 10, true), WithScheme(reducedScheme(t, 2)))
	require.ErrorIs(t, c.Train(context.Background(), true), domain.ErrShape)
}
