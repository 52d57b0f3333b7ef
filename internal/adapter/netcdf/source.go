// Package netcdf reads profile cubes from NetCDF files.
//
// A case file has a "time" variable (seconds since the Unix epoch), a
// "height" variable in metres and one [time][height] variable per radar
// field. An optional [time] "temp_mean" variable carries the surface
// temperature. Values at or beyond the NetCDF default fill magnitude are
// read as missing.
package netcdf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

const (
	timeVar        = "time"
	heightVar      = "height"
	temperatureVar = domain.TemperatureFeature

	fillMagnitude = 1e30
)

// Source loads cases from NetCDF files. Fields lists the radar variables
// to read; missing ones are an error.
type Source struct {
	Fields []string
}

// LoadCube reads the file at ref.Path.
func (s Source) LoadCube(ctx context.Context, ref domain.CaseRef) (*domain.Cube, *domain.Features, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return Read(ref.Path, s.Fields)
}

// Read opens path and builds a cube of the named fields plus the surface
// temperature series when present.
func Read(path string, fields []string) (*domain.Cube, *domain.Features, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	defer nc.Close()

	rawTimes, err := vector(nc, timeVar)
	if err != nil {
		return nil, nil, err
	}
	heights, err := vector(nc, heightVar)
	if err != nil {
		return nil, nil, err
	}
	times := epochTimes(rawTimes)

	cube := domain.NewCube(heights, times)
	for _, name := range fields {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, nil, fmt.Errorf("netcdf %s: field %s: %w", path, name, err)
		}
		v, err := vg.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("netcdf %s: field %s: %w", path, name, err)
		}
		grid, err := transpose(v)
		if err != nil {
			return nil, nil, fmt.Errorf("netcdf %s: field %s: %w", path, name, err)
		}
		if err := cube.SetField(name, grid); err != nil {
			return nil, nil, err
		}
	}

	var temp *domain.Features
	if vg, err := nc.GetVarGetter(temperatureVar); err == nil {
		v, err := vg.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("netcdf %s: %s: %w", path, temperatureVar, err)
		}
		vals, err := toFloats(v)
		if err != nil {
			return nil, nil, fmt.Errorf("netcdf %s: %s: %w", path, temperatureVar, err)
		}
		if temp, err = domain.NewFeatureSeries(temperatureVar, times, vals); err != nil {
			return nil, nil, err
		}
	}
	return cube, temp, nil
}

func vector(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("netcdf variable %s: %w", name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("netcdf variable %s: %w", name, err)
	}
	return toFloats(v)
}

func epochTimes(secs []float64) []time.Time {
	out := make([]time.Time, len(secs))
	for i, s := range secs {
		whole, frac := math.Modf(s)
		out[i] = time.Unix(int64(whole), int64(frac*1e9)).UTC()
	}
	return out
}

// toFloats converts a one-dimensional variable to float64, mapping fill
// values to NaN.
func toFloats(v any) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = clean(f)
		}
		return out, nil
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = clean(float64(f))
		}
		return out, nil
	case []int32:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported vector type %T", v)
	}
}

// transpose converts a [time][height] variable to the cube's
// [height][time] layout.
func transpose(v any) ([][]float64, error) {
	var rows [][]float64
	switch x := v.(type) {
	case [][]float64:
		rows = x
	case [][]float32:
		rows = make([][]float64, len(x))
		for i, r := range x {
			rows[i] = make([]float64, len(r))
			for j, f := range r {
				rows[i][j] = float64(f)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported grid type %T", v)
	}
	if len(rows) == 0 {
		return nil, errors.New("empty grid")
	}
	nh := len(rows[0])
	out := domain.NewField(nh, len(rows), math.NaN())
	for t, r := range rows {
		if len(r) != nh {
			return nil, fmt.Errorf("%w: ragged grid at time %d", domain.ErrShape, t)
		}
		for h, f := range r {
			out[h][t] = clean(f)
		}
	}
	return out, nil
}

func clean(f float64) float64 {
	if math.Abs(f) >= fillMagnitude {
		return math.NaN()
	}
	return f
}
