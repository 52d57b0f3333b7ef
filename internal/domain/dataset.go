package domain

// Shape tags the two forms a dataset can take.
type Shape int

const (
	// ShapeCube is a field × height × time profile cube.
	ShapeCube Shape = iota
	// ShapeTable is a prepared time × (parameter, height) table.
	ShapeTable
)

func (s Shape) String() string {
	switch s {
	case ShapeCube:
		return "cube"
	case ShapeTable:
		return "table"
	default:
		return "unknown"
	}
}

// Dataset is implemented only by *Cube and *Table. Functions that accept
// either form switch on the concrete type.
type Dataset interface {
	Shape() Shape
	dataset()
}
