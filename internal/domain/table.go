package domain

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Table is the prepared classification input: one row per time step, with
// a [time][height] block per parameter. A flattened row concatenates the
// blocks in Params order.
type Table struct {
	Params  []string
	Heights []float64
	Times   []time.Time

	blocks map[string][][]float64
}

// NewTable creates a zero-filled table.
func NewTable(params []string, heights []float64, times []time.Time) *Table {
	t := &Table{
		Params:  append([]string(nil), params...),
		Heights: append([]float64(nil), heights...),
		Times:   append([]time.Time(nil), times...),
		blocks:  make(map[string][][]float64, len(params)),
	}
	for _, p := range params {
		t.blocks[p] = NewField(len(times), len(heights), 0)
	}
	return t
}

func (*Table) dataset() {}

// Shape reports ShapeTable.
func (*Table) Shape() Shape { return ShapeTable }

// Len is the number of rows (time steps).
func (t *Table) Len() int { return len(t.Times) }

// Width is the number of columns in a flattened row.
func (t *Table) Width() int { return len(t.Params) * len(t.Heights) }

// Block returns the [time][height] values of param without copying.
func (t *Table) Block(param string) ([][]float64, bool) {
	b, ok := t.blocks[param]
	return b, ok
}

// SetBlock replaces the block of an existing parameter.
func (t *Table) SetBlock(param string, data [][]float64) error {
	if _, ok := t.blocks[param]; !ok {
		return fmt.Errorf("%w: table has no parameter %s", ErrShape, param)
	}
	if len(data) != len(t.Times) {
		return fmt.Errorf("%w: block %s has %d rows, table has %d", ErrShape, param, len(data), len(t.Times))
	}
	for _, row := range data {
		if len(row) != len(t.Heights) {
			return fmt.Errorf("%w: block %s has %d heights, table has %d", ErrShape, param, len(row), len(t.Heights))
		}
	}
	t.blocks[param] = data
	return nil
}

// Row returns the flattened row i.
func (t *Table) Row(i int) []float64 {
	row := make([]float64, 0, t.Width())
	for _, p := range t.Params {
		row = append(row, t.blocks[p][i]...)
	}
	return row
}

// Rows returns every flattened row.
func (t *Table) Rows() [][]float64 {
	rows := make([][]float64, t.Len())
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

// Matrix returns the flattened rows as a dense Len × Width matrix.
func (t *Table) Matrix() *mat.Dense {
	if t.Len() == 0 || t.Width() == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(t.Len(), t.Width(), nil)
	for i := 0; i < t.Len(); i++ {
		m.SetRow(i, t.Row(i))
	}
	return m
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Params:  append([]string(nil), t.Params...),
		Heights: append([]float64(nil), t.Heights...),
		Times:   append([]time.Time(nil), t.Times...),
		blocks:  make(map[string][][]float64, len(t.blocks)),
	}
	for p, b := range t.blocks {
		out.blocks[p] = cloneGrid(b)
	}
	return out
}

// MeanDelta is the average time step.
func (t *Table) MeanDelta() time.Duration {
	return meanDelta(t.Times)
}

// Cube transposes the table back into a cube, one field per parameter.
func (t *Table) Cube() *Cube {
	c := NewCube(t.Heights, t.Times)
	for _, p := range t.Params {
		b := t.blocks[p]
		grid := NewField(len(t.Heights), len(t.Times), 0)
		for ti := range b {
			for hi, v := range b[ti] {
				grid[hi][ti] = v
			}
		}
		// Dimensions come from the table itself, so SetField cannot fail.
		_ = c.SetField(p, grid)
	}
	return c
}
