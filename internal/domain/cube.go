package domain

import (
	"fmt"
	"math"
	"time"
)

// Cube is a three-axis profile dataset: field × height × time. Field data is
// stored as [height][time]; missing cells are NaN. Heights are in metres and
// strictly increasing.
type Cube struct {
	Heights []float64
	Times   []time.Time

	fields map[string][][]float64
	order  []string
}

// NewCube creates an empty cube on the given grid. The slices are copied.
func NewCube(heights []float64, times []time.Time) *Cube {
	return &Cube{
		Heights: append([]float64(nil), heights...),
		Times:   append([]time.Time(nil), times...),
		fields:  make(map[string][][]float64),
	}
}

// NewField allocates a [height][time] grid filled with v.
func NewField(nh, nt int, v float64) [][]float64 {
	out := make([][]float64, nh)
	for i := range out {
		row := make([]float64, nt)
		for j := range row {
			row[j] = v
		}
		out[i] = row
	}
	return out
}

func (*Cube) dataset() {}

// Shape reports ShapeCube.
func (*Cube) Shape() Shape { return ShapeCube }

// SetField stores data under name, replacing any existing field.
// The cube keeps a reference to data.
func (c *Cube) SetField(name string, data [][]float64) error {
	if len(data) != len(c.Heights) {
		return fmt.Errorf("%w: field %s has %d heights, cube has %d", ErrShape, name, len(data), len(c.Heights))
	}
	for i, row := range data {
		if len(row) != len(c.Times) {
			return fmt.Errorf("%w: field %s height %d has %d times, cube has %d", ErrShape, name, i, len(row), len(c.Times))
		}
	}
	if _, ok := c.fields[name]; !ok {
		c.order = append(c.order, name)
	}
	c.fields[name] = data
	return nil
}

// Field returns the named field without copying.
func (c *Cube) Field(name string) ([][]float64, bool) {
	f, ok := c.fields[name]
	return f, ok
}

// HasField reports whether name is present.
func (c *Cube) HasField(name string) bool {
	_, ok := c.fields[name]
	return ok
}

// Fields lists field names in insertion order.
func (c *Cube) Fields() []string {
	return append([]string(nil), c.order...)
}

// Clone deep-copies the cube.
func (c *Cube) Clone() *Cube {
	out := NewCube(c.Heights, c.Times)
	for _, name := range c.order {
		out.fields[name] = cloneGrid(c.fields[name])
		out.order = append(out.order, name)
	}
	return out
}

// Start returns the first timestamp, or the zero time for an empty cube.
func (c *Cube) Start() time.Time {
	if len(c.Times) == 0 {
		return time.Time{}
	}
	return c.Times[0]
}

// End returns the last timestamp, or the zero time for an empty cube.
func (c *Cube) End() time.Time {
	if len(c.Times) == 0 {
		return time.Time{}
	}
	return c.Times[len(c.Times)-1]
}

// MeanDelta is the average time step.
func (c *Cube) MeanDelta() time.Duration {
	return meanDelta(c.Times)
}

// HeightSpacingKm returns the first difference of the height axis in km,
// with the first bin taking the spacing of the second.
func (c *Cube) HeightSpacingKm() []float64 {
	n := len(c.Heights)
	dr := make([]float64, n)
	if n < 2 {
		return dr
	}
	for i := 1; i < n; i++ {
		dr[i] = (c.Heights[i] - c.Heights[i-1]) / 1000
	}
	dr[0] = dr[1]
	return dr
}

// ConcatTime joins cubes along the time axis. All cubes must share the same
// heights and field names. No resampling is done.
func ConcatTime(cubes ...*Cube) (*Cube, error) {
	if len(cubes) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrShape)
	}
	first := cubes[0]
	var times []time.Time
	for i, c := range cubes {
		if !equalFloats(c.Heights, first.Heights) {
			return nil, fmt.Errorf("%w: cube %d has a different height grid", ErrShape, i)
		}
		if len(c.order) != len(first.order) {
			return nil, fmt.Errorf("%w: cube %d has %d fields, want %d", ErrShape, i, len(c.order), len(first.order))
		}
		times = append(times, c.Times...)
	}

	out := NewCube(first.Heights, times)
	for _, name := range first.order {
		grid := NewField(len(first.Heights), 0, 0)
		for i, c := range cubes {
			f, ok := c.fields[name]
			if !ok {
				return nil, fmt.Errorf("%w: cube %d lacks field %s", ErrShape, i, name)
			}
			for h := range grid {
				grid[h] = append(grid[h], f[h]...)
			}
		}
		if err := out.SetField(name, grid); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func meanDelta(times []time.Time) time.Duration {
	if len(times) < 2 {
		return 0
	}
	return times[len(times)-1].Sub(times[0]) / time.Duration(len(times)-1)
}

func cloneGrid(g [][]float64) [][]float64 {
	out := make([][]float64, len(g))
	for i, row := range g {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			return false
		}
	}
	return true
}
