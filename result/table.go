package result

import (
	"fmt"
	"iter"
	"math"
	"math/cmplx"
	"slices"

	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/internal/entityset"
	"github.com/arloliu/op2/internal/hash"
)

// Meta holds the header attributes of a table that are not part of its Key.
type Meta struct {
	// Name is the raw 8-byte table name, e.g. "OUGV1   ".
	Name string
	// Title is the raw 64-byte header title.
	Title string
	// Analysis is the analysis part of the approach code.
	Analysis int32
	// Device is the device part of the approach code.
	Device int32
	// Format declares how quantities are stored.
	Format format.ValueFormat
	// StepKind declares what the step values measure.
	StepKind format.StepKind
	// Precision is the word width of the source table.
	Precision format.Precision
	// Version is the table layout version.
	Version int32
	// Aux0 and Aux1 are category specific header words.
	Aux0 int32
	Aux1 int32
}

// ApproachCode returns analysis × 10 + device.
func (m Meta) ApproachCode() int32 {
	return m.Analysis*10 + m.Device
}

// Segment records the part of a table that came from one source table, so the
// writer can reproduce merged tables exactly as they were read.
type Segment struct {
	// Name and Title are the raw name and title of the source table.
	Name  string
	Title string
	// StepStart and StepCount select the steps of the source table.
	StepStart int
	StepCount int
	// Entities is the entity order of the source table.
	Entities []int64
}

// Table is a decoded result or geometry table in canonical entity-major form.
//
// Values are stored in Data with one row of Stride() words per (entity, step)
// pair at index (entity × NumSteps() + step) × Stride(). Integer words are held
// as exact float64 values. Complex components are kept in the declared
// convention (real/imaginary or magnitude/phase) and in wire order; use the
// Columns to locate them.
//
// A Table obtained from a store is shared and must be treated as read-only.
type Table struct {
	Key     Key
	Meta    Meta
	Layout  *Layout
	Columns []Column

	Entities []int64
	Steps    []float64
	Data     []float64

	Segments []Segment
}

// NewTable creates a zero-filled table covering entities × steps, with one
// segment describing the whole table.
//
// Parameters:
//   - key: store key of the table
//   - meta: header attributes; Format, Precision and StepKind must be set
//   - layout: row layout of the category
//   - entities: entity ids in table order, without duplicates
//   - steps: step values in table order
//
// Returns:
//   - *Table: the new table
//   - error: ErrInvalidTable if the layout has no variant for meta.Format
func NewTable(key Key, meta Meta, layout *Layout, entities []int64, steps []float64) (*Table, error) {
	cols, err := layout.Columns(meta.Format, meta.Aux0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidTable, err)
	}

	t := &Table{
		Key:      key,
		Meta:     meta,
		Layout:   layout,
		Columns:  cols,
		Entities: slices.Clone(entities),
		Steps:    slices.Clone(steps),
		Data:     make([]float64, len(entities)*len(steps)*len(cols)),
	}
	t.Segments = []Segment{{
		Name:      meta.Name,
		Title:     meta.Title,
		StepStart: 0,
		StepCount: len(steps),
		Entities:  slices.Clone(entities),
	}}

	return t, nil
}

// Stride returns the number of stored words per row, excluding the key word.
func (t *Table) Stride() int {
	return len(t.Columns)
}

// NumEntities returns the number of entities.
func (t *Table) NumEntities() int {
	return len(t.Entities)
}

// NumSteps returns the number of steps.
func (t *Table) NumSteps() int {
	return len(t.Steps)
}

// Row returns the stored words of one (entity, step) pair. The slice aliases Data.
func (t *Table) Row(entity, step int) []float64 {
	off := (entity*len(t.Steps) + step) * len(t.Columns)
	return t.Data[off : off+len(t.Columns) : off+len(t.Columns)]
}

// SetRow copies values into the row of one (entity, step) pair.
func (t *Table) SetRow(entity, step int, values []float64) error {
	if entity < 0 || entity >= len(t.Entities) || step < 0 || step >= len(t.Steps) {
		return fmt.Errorf("%w: row (%d, %d) outside %d×%d", errs.ErrInvalidTable, entity, step, len(t.Entities), len(t.Steps))
	}
	if len(values) != len(t.Columns) {
		return fmt.Errorf("%w: row has %d values, layout %s needs %d", errs.ErrInvalidTable, len(values), t.Layout.Name, len(t.Columns))
	}
	copy(t.Row(entity, step), values)

	return nil
}

// EntityIndex returns the position of an entity id. The search is linear.
func (t *Table) EntityIndex(id int64) (int, bool) {
	i := slices.Index(t.Entities, id)
	return i, i >= 0
}

// ColumnIndex returns the position of a field component within a row.
func (t *Table) ColumnIndex(field string, part int) (int, bool) {
	for i, c := range t.Columns {
		if c.Field == field && c.Part == part {
			return i, true
		}
	}

	return -1, false
}

// Value returns a real field, or the first component of a complex field.
func (t *Table) Value(entity, step int, field string) (float64, error) {
	i, ok := t.ColumnIndex(field, 0)
	if !ok {
		return 0, fmt.Errorf("%w: field %q not in %s", errs.ErrInvalidTable, field, t.Layout.Name)
	}

	return t.Row(entity, step)[i], nil
}

// Pair returns both stored components of a complex field in the declared convention.
func (t *Table) Pair(entity, step int, field string) (float64, float64, error) {
	i, ok := t.ColumnIndex(field, 0)
	j, ok2 := t.ColumnIndex(field, 1)
	if !ok || !ok2 {
		return 0, 0, fmt.Errorf("%w: complex field %q not in %s", errs.ErrInvalidTable, field, t.Layout.Name)
	}
	row := t.Row(entity, step)

	return row[i], row[j], nil
}

// Complex returns a complex field in rectangular form. Magnitude/phase values are
// converted with the phase in degrees; real tables return a zero imaginary part.
func (t *Table) Complex(entity, step int, field string) (complex128, error) {
	if !t.Meta.Format.IsComplex() {
		v, err := t.Value(entity, step, field)
		return complex(v, 0), err
	}

	a, b, err := t.Pair(entity, step, field)
	if err != nil {
		return 0, err
	}
	if t.Meta.Format == format.FormatMagPhase {
		return cmplx.Rect(a, b*math.Pi/180), nil
	}

	return complex(a, b), nil
}

// AtStep returns the (entity id, row) pairs of one step in entity order.
// The rows alias Data.
//
// Example:
//
//	for id, row := range tbl.AtStep(0) {
//	    fmt.Println(id, row)
//	}
func (t *Table) AtStep(step int) iter.Seq2[int64, []float64] {
	return func(yield func(int64, []float64) bool) {
		if step < 0 || step >= len(t.Steps) {
			return
		}
		for e, id := range t.Entities {
			if !yield(id, t.Row(e, step)) {
				return
			}
		}
	}
}

// Series returns the (step value, field value) pairs of one entity.
func (t *Table) Series(entity int, field string) iter.Seq2[float64, float64] {
	return func(yield func(float64, float64) bool) {
		i, ok := t.ColumnIndex(field, 0)
		if !ok || entity < 0 || entity >= len(t.Entities) {
			return
		}
		for s, step := range t.Steps {
			if !yield(step, t.Row(entity, s)[i]) {
				return
			}
		}
	}
}

// Footprint returns the approximate in-memory size of the numeric arrays in bytes.
func (t *Table) Footprint() int64 {
	return int64(len(t.Entities)+len(t.Steps)+len(t.Data)) * 8
}

// Fingerprint hashes the entities, steps and data bit patterns. Two tables with
// equal fingerprints hold the same values with overwhelming probability.
func (t *Table) Fingerprint() uint64 {
	ids := make([]float64, len(t.Entities))
	for i, id := range t.Entities {
		ids[i] = math.Float64frombits(uint64(id)) //nolint:gosec // bit reinterpretation
	}

	return hash.Float64s(ids) ^ hash.Float64s(t.Steps)*31 ^ hash.Float64s(t.Data)*131
}

// SameValues reports whether t and o hold bit-identical entities, steps and data.
func (t *Table) SameValues(o *Table) bool {
	return slices.Equal(t.Entities, o.Entities) &&
		bitsEqual(t.Steps, o.Steps) &&
		bitsEqual(t.Data, o.Data) &&
		slices.Equal(t.Columns, o.Columns)
}

func bitsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}

	return true
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	c := *t
	c.Columns = slices.Clone(t.Columns)
	c.Entities = slices.Clone(t.Entities)
	c.Steps = slices.Clone(t.Steps)
	c.Data = slices.Clone(t.Data)
	c.Segments = make([]Segment, len(t.Segments))
	for i, s := range t.Segments {
		s.Entities = slices.Clone(s.Entities)
		c.Segments[i] = s
	}

	return &c
}

// Validate checks the structural invariants of the table.
func (t *Table) Validate() error {
	if t.Layout == nil {
		return fmt.Errorf("%w: table %s has no layout", errs.ErrInvalidTable, t.Key)
	}
	if len(t.Data) != len(t.Entities)*len(t.Steps)*len(t.Columns) {
		return fmt.Errorf("%w: %s data has %d words, want %d×%d×%d", errs.ErrInvalidTable,
			t.Key, len(t.Data), len(t.Entities), len(t.Steps), len(t.Columns))
	}

	known, err := entityset.FromIDs(t.Entities)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errs.ErrInvalidTable, t.Key, err)
	}

	next := 0
	for i, s := range t.Segments {
		if s.StepStart != next || s.StepCount < 0 {
			return fmt.Errorf("%w: %s segment %d covers steps [%d,+%d), want start %d",
				errs.ErrInvalidTable, t.Key, i, s.StepStart, s.StepCount, next)
		}
		for _, id := range s.Entities {
			if !known.Contains(id) {
				return fmt.Errorf("%w: %s segment %d references unknown entity %d", errs.ErrInvalidTable, t.Key, i, id)
			}
		}
		next += s.StepCount
	}
	if len(t.Segments) > 0 && next != len(t.Steps) {
		return fmt.Errorf("%w: %s segments cover %d of %d steps", errs.ErrInvalidTable, t.Key, next, len(t.Steps))
	}

	return nil
}

// IsGeometry reports whether the table holds geometry definitions.
func (t *Table) IsGeometry() bool {
	return t.Layout != nil && t.Layout.Kind == format.KindGeometry
}
