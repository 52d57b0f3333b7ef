// Package cubefile reads and writes profile cubes as JSON documents. Missing
// cells are encoded as null.
package cubefile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

// Document is the on-disk form of a case. Field grids are [height][time].
type Document struct {
	ID          string      `json:"id,omitempty"`
	Heights     []float64   `json:"heights"`
	Times       []time.Time `json:"times"`
	Fields      []Field     `json:"fields"`
	Temperature []Value     `json:"temp_mean,omitempty"`
}

// Field is one named grid.
type Field struct {
	Name string    `json:"name"`
	Data [][]Value `json:"data"`
}

// Value is a float that encodes NaN as null.
type Value float64

func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*v = Value(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("cube value %s: %w", b, err)
	}
	*v = Value(f)
	return nil
}

// Encode converts a cube and optional temperature series to a document.
func Encode(id string, c *domain.Cube, temp *domain.Features) Document {
	doc := Document{ID: id, Heights: c.Heights, Times: c.Times}
	for _, name := range c.Fields() {
		grid, _ := c.Field(name)
		data := make([][]Value, len(grid))
		for h, row := range grid {
			data[h] = toValues(row)
		}
		doc.Fields = append(doc.Fields, Field{Name: name, Data: data})
	}
	if temp != nil {
		if col, ok := temp.Column(domain.TemperatureFeature); ok {
			doc.Temperature = toValues(col)
		}
	}
	return doc
}

// Decode builds the cube and temperature series described by doc.
func (doc Document) Decode() (*domain.Cube, *domain.Features, error) {
	c := domain.NewCube(doc.Heights, doc.Times)
	for _, f := range doc.Fields {
		grid := make([][]float64, len(f.Data))
		for h, row := range f.Data {
			grid[h] = fromValues(row)
		}
		if err := c.SetField(f.Name, grid); err != nil {
			return nil, nil, err
		}
	}
	if len(doc.Temperature) == 0 {
		return c, nil, nil
	}
	temp, err := domain.NewFeatureSeries(domain.TemperatureFeature, doc.Times, fromValues(doc.Temperature))
	if err != nil {
		return nil, nil, err
	}
	return c, temp, nil
}

// Read decodes a document from r.
func Read(r io.Reader) (*domain.Cube, *domain.Features, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("decode cube: %w", err)
	}
	return doc.Decode()
}

// Write encodes c and temp to w.
func Write(w io.Writer, id string, c *domain.Cube, temp *domain.Features) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(Encode(id, c, temp)); err != nil {
		return fmt.Errorf("encode cube: %w", err)
	}
	return nil
}

// Source loads cases from JSON cube files.
type Source struct{}

// LoadCube reads the file at ref.Path.
func (Source) LoadCube(ctx context.Context, ref domain.CaseRef) (*domain.Cube, *domain.Features, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open cube %s: %w", ref.Path, err)
	}
	defer f.Close()
	return Read(f)
}

func toValues(fs []float64) []Value {
	out := make([]Value, len(fs))
	for i, f := range fs {
		out[i] = Value(f)
	}
	return out
}

func fromValues(vs []Value) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = float64(v)
	}
	return out
}
