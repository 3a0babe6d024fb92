package result

import (
	"fmt"

	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
)

// Field is one named quantity of a layout.
type Field struct {
	Name string
	Kind format.FieldKind
	// RealOnly fields are absent from the complex variant of the layout.
	RealOnly bool
}

// Column is one stored word of a row after the key word.
type Column struct {
	Field string
	Kind  format.FieldKind
	// Part is 0 for real values and the first component of complex values
	// (real or magnitude), 1 for the second component (imaginary or phase).
	Part int
}

// Layout describes the row structure of a table category.
type Layout struct {
	// Name is a human readable category name such as "Displacement".
	Name string
	// Kind separates results from geometry definitions.
	Kind format.Kind
	// Fields lists the quantities of a row after the key word.
	Fields []Field
	// Complexable layouts have a complex variant.
	Complexable bool
	// Complex is the arrangement of complex components in a row.
	Complex format.ComplexStyle
	// PackedEntity layouts encode the entity word as id × 10 + device code.
	PackedEntity bool
	// RepeatAux0 layouts repeat Fields Aux0 times per row (matrix columns).
	RepeatAux0 bool
}

// Columns expands the layout into stored words for the given value format.
//
// Parameters:
//   - vf: value format of the table
//   - aux0: header word 14, the repeat count of RepeatAux0 layouts
//
// Returns:
//   - []Column: row words after the key word, in wire order
//   - error: ErrMalformedTable if the layout has no variant for vf
func (l *Layout) Columns(vf format.ValueFormat, aux0 int32) ([]Column, error) {
	if !vf.IsValid() {
		return nil, fmt.Errorf("%w: %s has no %s variant", errs.ErrMalformedTable, l.Name, vf)
	}
	if vf.IsComplex() && !l.Complexable {
		return nil, fmt.Errorf("%w: %s has no complex variant", errs.ErrMalformedTable, l.Name)
	}

	fields := l.Fields
	if l.RepeatAux0 {
		if aux0 < 1 {
			return nil, fmt.Errorf("%w: %s needs a positive row count, got %d", errs.ErrMalformedTable, l.Name, aux0)
		}
		fields = make([]Field, 0, int(aux0)*len(l.Fields))
		for i := range int(aux0) {
			for _, f := range l.Fields {
				f.Name = fmt.Sprintf("%s[%d]", f.Name, i)
				fields = append(fields, f)
			}
		}
	}

	if !vf.IsComplex() {
		cols := make([]Column, 0, len(fields))
		for _, f := range fields {
			cols = append(cols, Column{Field: f.Name, Kind: f.Kind})
			if f.Kind == format.FieldComplex {
				cols = append(cols, Column{Field: f.Name, Kind: f.Kind, Part: 1})
			}
		}

		return cols, nil
	}

	var cols []Column
	switch l.Complex {
	case format.ComplexInterleaved:
		for _, f := range fields {
			if f.RealOnly {
				continue
			}
			cols = append(cols, Column{Field: f.Name, Kind: f.Kind})
			if f.Kind != format.FieldInt {
				cols = append(cols, Column{Field: f.Name, Kind: f.Kind, Part: 1})
			}
		}
	default:
		for _, f := range fields {
			if f.RealOnly {
				continue
			}
			cols = append(cols, Column{Field: f.Name, Kind: f.Kind})
		}
		for _, f := range fields {
			if f.RealOnly || f.Kind == format.FieldInt {
				continue
			}
			cols = append(cols, Column{Field: f.Name, Kind: f.Kind, Part: 1})
		}
	}

	return cols, nil
}

// NumWide returns the words per row including the key word.
func (l *Layout) NumWide(vf format.ValueFormat, aux0 int32) (int, error) {
	cols, err := l.Columns(vf, aux0)
	if err != nil {
		return 0, err
	}

	return len(cols) + 1, nil
}
