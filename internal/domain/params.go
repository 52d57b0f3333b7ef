package domain

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parameter holds the scaling limits and fill value of one radar field.
// Lower is subtracted before dividing by Upper (see the package doc).
type Parameter struct {
	Name           string  `yaml:"name"`
	Unit           string  `yaml:"unit"`
	Lower          float64 `yaml:"lower"`
	Upper          float64 `yaml:"upper"`
	NaNReplacement float64 `yaml:"nan_replacement"`
}

// ParameterSet is an immutable lookup table of parameters. It is built once
// at startup and passed explicitly to every stage that needs it.
type ParameterSet struct {
	params map[string]Parameter
}

// NewParameterSet builds a set from the given parameters. Later entries with
// the same name replace earlier ones.
func NewParameterSet(params ...Parameter) ParameterSet {
	m := make(map[string]Parameter, len(params))
	for _, p := range params {
		m[p.Name] = p
	}
	return ParameterSet{params: m}
}

// DefaultParameterSet returns the limits used for Finnish C-band radar data.
// The filtered working fields have tighter KDP limits than the raw field.
func DefaultParameterSet() ParameterSet {
	return NewParameterSet(
		Parameter{Name: "ZH", Unit: "dBZ", Lower: -10, Upper: 30, NaNReplacement: -10},
		Parameter{Name: "ZDR", Unit: "dB", Lower: 0, Upper: 3, NaNReplacement: 0},
		Parameter{Name: "zdr", Unit: "dB", Lower: 0, Upper: 3, NaNReplacement: 0},
		Parameter{Name: "KDP", Unit: "deg/km", Lower: 0, Upper: 0.5, NaNReplacement: 0},
		Parameter{Name: "kdp", Unit: "deg/km", Lower: 0, Upper: 0.15, NaNReplacement: 0},
		Parameter{Name: "PHIDP", Unit: "deg", Lower: 0, Upper: 360, NaNReplacement: 0},
	)
}

// Lookup finds a parameter by exact name, then by its upper-cased name.
func (s ParameterSet) Lookup(name string) (Parameter, error) {
	if p, ok := s.params[name]; ok {
		return p, nil
	}
	if p, ok := s.params[strings.ToUpper(name)]; ok {
		return p, nil
	}
	return Parameter{}, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
}

// Has reports whether name resolves to a parameter.
func (s ParameterSet) Has(name string) bool {
	_, err := s.Lookup(name)
	return err == nil
}

// Parameters returns every parameter sorted by name.
func (s ParameterSet) Parameters() []Parameter {
	out := make([]Parameter, 0, len(s.params))
	for _, p := range s.params {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// parameterEntry mirrors Parameter with optional fields so missing keys in a
// YAML table can be told apart from explicit zeros.
type parameterEntry struct {
	Name           string   `yaml:"name"`
	Unit           string   `yaml:"unit"`
	Lower          *float64 `yaml:"lower"`
	Upper          *float64 `yaml:"upper"`
	NaNReplacement *float64 `yaml:"nan_replacement"`
}

type parameterTable struct {
	Parameters []parameterEntry `yaml:"parameters"`
}

// LoadParameterSet decodes a YAML parameter table of the form
//
//	parameters:
//	  - {name: ZH, unit: dBZ, lower: -10, upper: 30, nan_replacement: -10}
//
// Every entry must define both scaling limits and the NaN replacement.
func LoadParameterSet(r io.Reader) (ParameterSet, error) {
	var table parameterTable
	if err := yaml.NewDecoder(r).Decode(&table); err != nil {
		return ParameterSet{}, fmt.Errorf("decode parameter table: %w", err)
	}
	if len(table.Parameters) == 0 {
		return ParameterSet{}, fmt.Errorf("parameter table is empty")
	}

	params := make([]Parameter, 0, len(table.Parameters))
	for i, e := range table.Parameters {
		switch {
		case e.Name == "":
			return ParameterSet{}, fmt.Errorf("parameter %d: name is required", i)
		case e.Lower == nil || e.Upper == nil:
			return ParameterSet{}, fmt.Errorf("parameter %s: lower and upper are required", e.Name)
		case e.NaNReplacement == nil:
			return ParameterSet{}, fmt.Errorf("parameter %s: nan_replacement is required", e.Name)
		case *e.Upper == 0:
			return ParameterSet{}, fmt.Errorf("parameter %s: upper must be non-zero", e.Name)
		}
		params = append(params, Parameter{
			Name:           e.Name,
			Unit:           e.Unit,
			Lower:          *e.Lower,
			Upper:          *e.Upper,
			NaNReplacement: *e.NaNReplacement,
		})
	}
	return NewParameterSet(params...), nil
}
