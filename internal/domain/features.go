package domain

import (
	"fmt"
	"time"
)

// TemperatureFeature names the mean surface temperature extra feature.
const TemperatureFeature = "temp_mean"

// HeightLimits bounds the height window used for classification, in metres.
// Both ends are inclusive.
type HeightLimits struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// DefaultHeightLimits matches the operational 190 m .. 10 km window.
func DefaultHeightLimits() HeightLimits {
	return HeightLimits{Lower: 190, Upper: 10e3}
}

// Contains reports whether h lies inside the limits.
func (l HeightLimits) Contains(h float64) bool {
	return h >= l.Lower && h <= l.Upper
}

// ValueCap clears values of Param above Max during preparation.
type ValueCap struct {
	Param string  `json:"param"`
	Max   float64 `json:"max"`
}

// RoundTime rounds t to the nearest minute in UTC.
func RoundTime(t time.Time) time.Time {
	return t.Round(time.Minute).UTC()
}

// Features is a time series of extra, non-radar features (for example mean
// surface temperature) appended to the projected profiles before clustering.
type Features struct {
	Names  []string
	Times  []time.Time
	Values [][]float64 // [time][feature]

	index map[time.Time]int
}

// NewFeatures builds a feature series. Times are rounded to the nearest
// minute for alignment with prepared tables.
func NewFeatures(names []string, times []time.Time, values [][]float64) (*Features, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("%w: %d feature times, %d rows", ErrShape, len(times), len(values))
	}
	f := &Features{
		Names:  append([]string(nil), names...),
		Times:  make([]time.Time, len(times)),
		Values: make([][]float64, len(values)),
		index:  make(map[time.Time]int, len(times)),
	}
	for i, t := range times {
		if len(values[i]) != len(names) {
			return nil, fmt.Errorf("%w: feature row %d has %d values, want %d", ErrShape, i, len(values[i]), len(names))
		}
		rt := RoundTime(t)
		f.Times[i] = rt
		f.Values[i] = append([]float64(nil), values[i]...)
		f.index[rt] = i
	}
	return f, nil
}

// NewFeatureSeries builds a single-feature series.
func NewFeatureSeries(name string, times []time.Time, values []float64) (*Features, error) {
	rows := make([][]float64, len(values))
	for i, v := range values {
		rows[i] = []float64{v}
	}
	return NewFeatures([]string{name}, times, rows)
}

// At returns the feature row at t (rounded to the minute).
func (f *Features) At(t time.Time) ([]float64, bool) {
	i, ok := f.index[RoundTime(t)]
	if !ok {
		return nil, false
	}
	return f.Values[i], true
}

// Column returns the values of the named feature.
func (f *Features) Column(name string) ([]float64, bool) {
	for j, n := range f.Names {
		if n != name {
			continue
		}
		out := make([]float64, len(f.Values))
		for i, row := range f.Values {
			out[i] = row[j]
		}
		return out, true
	}
	return nil, false
}

// Align returns the feature rows matching times, in order. A missing
// timestamp is a shape error.
func (f *Features) Align(times []time.Time) ([][]float64, error) {
	out := make([][]float64, len(times))
	for i, t := range times {
		row, ok := f.At(t)
		if !ok {
			return nil, fmt.Errorf("%w: no extra features at %s", ErrShape, RoundTime(t).Format(time.RFC3339))
		}
		out[i] = row
	}
	return out, nil
}

// ConcatFeatures joins feature series with identical names along time.
func ConcatFeatures(series ...*Features) (*Features, error) {
	if len(series) == 0 {
		return nil, nil
	}
	var times []time.Time
	var values [][]float64
	for i, s := range series {
		if len(s.Names) != len(series[0].Names) {
			return nil, fmt.Errorf("%w: feature series %d has different columns", ErrShape, i)
		}
		times = append(times, s.Times...)
		values = append(values, s.Values...)
	}
	return NewFeatures(series[0].Names, times, values)
}
