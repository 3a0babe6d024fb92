package table

import (
	"errors"
	"fmt"
	"math"

	"github.com/arloliu/op2/encoding"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/internal/entityset"
	"github.com/arloliu/op2/internal/pool"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/section"
)

// LayoutCodec is a Codec driven entirely by a result.Layout. Every built-in
// category uses it; custom categories with a regular row structure can too.
type LayoutCodec struct {
	layout *result.Layout
	name   string
}

var _ Codec = (*LayoutCodec)(nil)

// NewLayoutCodec creates a codec for layout that writes name when a table has
// no recorded name.
func NewLayoutCodec(layout *result.Layout, name string) *LayoutCodec {
	return &LayoutCodec{layout: layout, name: section.PadName(name)}
}

// Layout returns the row layout of the category.
func (c *LayoutCodec) Layout() *result.Layout {
	return c.layout
}

// DefaultName returns the padded default table name.
func (c *LayoutCodec) DefaultName() string {
	return c.name
}

// plan holds the per-table quantities shared by decode and encode.
type plan struct {
	cols      []result.Column
	numWide   int
	wordSize  int
	intSteps  bool
	packed    bool
	device    int32
	precision format.Precision
}

func (c *LayoutCodec) plan(w Wire, h section.Header) (plan, error) {
	precision, err := h.Precision()
	if err != nil {
		return plan{}, fmt.Errorf("%w: %w", errs.ErrMalformedTable, err)
	}
	if precision != w.Precision {
		return plan{}, fmt.Errorf("%w: table declares %s, archive is %s", errs.ErrPrecisionMismatch, precision, w.Precision)
	}

	if h.Statistic != format.StatNone && h.Format.IsComplex() {
		return plan{}, fmt.Errorf("%w: random aggregate %s must be real", errs.ErrMalformedTable, h.Statistic)
	}
	if c.layout.Kind == format.KindGeometry && (h.Statistic != format.StatNone || h.Format.IsComplex()) {
		return plan{}, fmt.Errorf("%w: geometry table %s must be real and deterministic", errs.ErrMalformedTable, c.layout.Name)
	}

	cols, err := c.layout.Columns(h.Format, h.Aux0)
	if err != nil {
		return plan{}, err
	}
	if int(h.NumWide) != len(cols)+1 {
		return plan{}, fmt.Errorf("%w: %s %s num_wide is %d, layout needs %d",
			errs.ErrMalformedTable, c.layout.Name, h.Format, h.NumWide, len(cols)+1)
	}

	return plan{
		cols:      cols,
		numWide:   len(cols) + 1,
		wordSize:  precision.WordSize(),
		intSteps:  h.StepKind.IsInteger(),
		packed:    c.layout.PackedEntity,
		device:    h.DeviceCode(),
		precision: precision,
	}, nil
}

// Decode converts a raw table into canonical entity-major form.
//
// Step-major tables carry one frame per step ([step word][entity rows...]) and
// entity-major tables one frame per entity ([entity word][step rows...]). Both
// are reshaped into the same result.Table, so the two sort orders of the same
// logical data decode to identical entities, steps and data.
//
// Parameters:
//   - w: archive byte order and precision
//   - raw: the table as read from the archive
//
// Returns:
//   - *result.Table: the decoded table with a single segment
//   - error: ErrPrecisionMismatch or ErrMalformedTable
func (c *LayoutCodec) Decode(w Wire, raw *RawTable) (*result.Table, error) {
	h := raw.Header

	p, err := c.plan(w, h)
	if err != nil {
		return nil, err
	}

	key := result.Key{
		Category:   result.Category{Code: h.TableCode, ElementType: h.ElementType, Statistic: h.Statistic},
		Subcase:    h.Subcase,
		Sort:       h.SortCode.Order(),
		FunctionID: h.FunctionID,
	}
	meta := result.Meta{
		Name:      raw.Name,
		Title:     h.Title,
		Analysis:  h.AnalysisCode(),
		Device:    h.DeviceCode(),
		Format:    h.Format,
		StepKind:  h.StepKind,
		Precision: p.precision,
		Version:   h.Version,
		Aux0:      h.Aux0,
		Aux1:      h.Aux1,
	}

	steps, entities := int(h.StepCount), int(h.EntityCount)
	if err := c.checkShape(raw, steps, entities, p); err != nil {
		return nil, err
	}

	t := &result.Table{
		Key:      key,
		Meta:     meta,
		Layout:   c.layout,
		Columns:  p.cols,
		Entities: make([]int64, entities),
		Steps:    make([]float64, steps),
		Data:     make([]float64, entities*steps*len(p.cols)),
	}

	if h.SortCode.Order() == format.SortEntityMajor {
		err = c.decodeEntityMajor(w, p, raw, t)
	} else {
		err = c.decodeStepMajor(w, p, raw, t)
	}
	if err != nil {
		return nil, err
	}

	ids, err := entityset.FromIDs(t.Entities)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrMalformedTable, err)
	}

	t.Segments = []result.Segment{{
		Name:      raw.Name,
		Title:     h.Title,
		StepStart: 0,
		StepCount: steps,
		Entities:  append([]int64(nil), ids.IDs()...),
	}}

	return t, nil
}

// checkShape matches the declared counts against the frames actually read, so
// the arrays sized from the header never exceed the raw payload.
func (c *LayoutCodec) checkShape(raw *RawTable, steps, entities int, p plan) error {
	if steps < 0 || entities < 0 {
		return fmt.Errorf("%w: %s declares negative counts (steps %d, entities %d)",
			errs.ErrMalformedTable, c.layout.Name, steps, entities)
	}

	frames, rows := steps, entities
	if raw.Header.SortCode.Order() == format.SortEntityMajor {
		frames, rows = entities, steps
		if entities == 0 && steps > 0 {
			return fmt.Errorf("%w: entity-major table declares %d steps but no entities", errs.ErrMalformedTable, steps)
		}
	} else if steps == 0 && entities > 0 {
		return fmt.Errorf("%w: step-major table declares %d entities but no steps", errs.ErrMalformedTable, entities)
	}

	if len(raw.Frames) != frames {
		return fmt.Errorf("%w: %s has %d data frames, header declares %d",
			errs.ErrMalformedTable, c.layout.Name, len(raw.Frames), frames)
	}

	// Frame lengths are bounded by bytes read; deriving the row count from
	// them avoids multiplying header words.
	for i, f := range raw.Frames {
		words := len(f) / p.wordSize
		if len(f)%p.wordSize != 0 || words < 1 || (words-1)%p.numWide != 0 || (words-1)/p.numWide != rows {
			return fmt.Errorf("%w: %s frame %d is %d bytes, header declares %d rows of %d words",
				errs.ErrMalformedTable, c.layout.Name, i, len(f), rows, p.numWide)
		}
	}

	return nil
}

func (c *LayoutCodec) decodeStepMajor(w Wire, p plan, raw *RawTable, t *result.Table) error {
	steps, entities := len(t.Steps), len(t.Entities)

	frameIDs, release := pool.GetInt64Slice(entities)
	defer release()

	stride := len(p.cols)
	for s, frame := range raw.Frames {
		cur := encoding.NewCursor(frame, w.Engine, w.Precision)

		step, err := readStep(cur, p)
		if err != nil {
			return err
		}
		t.Steps[s] = step

		for e := range entities {
			id, err := readEntity(cur, p)
			if err != nil {
				return err
			}
			frameIDs[e] = id

			off := (e*steps + s) * stride
			if err := readRow(cur, p, t.Data[off:off+stride]); err != nil {
				return err
			}
		}

		if s == 0 {
			copy(t.Entities, frameIDs)
			continue
		}
		for e := range entities {
			if frameIDs[e] != t.Entities[e] {
				return fmt.Errorf("%w: step %d lists entity %d at row %d, first step lists %d",
					errs.ErrMalformedTable, s, frameIDs[e], e, t.Entities[e])
			}
		}
	}

	return nil
}

func (c *LayoutCodec) decodeEntityMajor(w Wire, p plan, raw *RawTable, t *result.Table) error {
	steps := len(t.Steps)

	stride := len(p.cols)
	for e, frame := range raw.Frames {
		cur := encoding.NewCursor(frame, w.Engine, w.Precision)

		id, err := readEntity(cur, p)
		if err != nil {
			return err
		}
		t.Entities[e] = id

		for s := range steps {
			step, err := readStep(cur, p)
			if err != nil {
				return err
			}
			switch {
			case e == 0:
				t.Steps[s] = step
			case !sameBits(step, t.Steps[s]):
				return fmt.Errorf("%w: entity %d lists step %v at row %d, first entity lists %v",
					errs.ErrMalformedTable, id, step, s, t.Steps[s])
			}

			off := (e*steps + s) * stride
			if err := readRow(cur, p, t.Data[off:off+stride]); err != nil {
				return err
			}
		}
	}

	return nil
}

func readStep(cur *encoding.Cursor, p plan) (float64, error) {
	var (
		v   float64
		err error
	)
	if p.intSteps {
		v, err = cur.ExactInt()
	} else {
		v, err = cur.Float()
	}
	if err != nil {
		return 0, malformed(err)
	}

	return v, nil
}

func readEntity(cur *encoding.Cursor, p plan) (int64, error) {
	word, err := cur.Int()
	if err != nil {
		return 0, malformed(err)
	}
	if word > encoding.MaxExactInt || word < -encoding.MaxExactInt {
		return 0, fmt.Errorf("%w: entity word %d is not exactly representable", errs.ErrMalformedTable, word)
	}
	if !p.packed {
		return word, nil
	}

	if word < 0 {
		return 0, fmt.Errorf("%w: negative packed entity word %d", errs.ErrMalformedTable, word)
	}
	if device := int32(word % 10); device != p.device { //nolint:gosec // 0..9
		return 0, fmt.Errorf("%w: entity word %d has device code %d, header declares %d",
			errs.ErrMalformedTable, word, device, p.device)
	}

	return word / 10, nil
}

func readRow(cur *encoding.Cursor, p plan, dst []float64) error {
	for i, col := range p.cols {
		var err error
		if col.Kind == format.FieldInt {
			dst[i], err = cur.ExactInt()
		} else {
			dst[i], err = cur.Float()
		}
		if err != nil {
			return malformed(err)
		}
	}

	return nil
}

func malformed(err error) error {
	if errs.IsRecoverable(err) {
		return err
	}

	return fmt.Errorf("%w: %w", errs.ErrMalformedTable, err)
}

// Encode appends the name, header, data and trailer frames of one segment of t.
//
// Parameters:
//   - w: archive byte order and precision; must equal the table precision
//   - t: the table to encode
//   - seg: the steps and entity order to emit
//   - a: destination appender
//
// Returns:
//   - error: ErrPrecisionMismatch, or ErrInvalidTable if t violates its layout
func (c *LayoutCodec) Encode(w Wire, t *result.Table, seg result.Segment, a *encoding.Appender) error {
	h := c.header(t, seg)

	p, err := c.plan(w, h)
	if err != nil {
		if errors.Is(err, errs.ErrPrecisionMismatch) {
			return err
		}

		return fmt.Errorf("%w: %w", errs.ErrInvalidTable, err)
	}
	if seg.StepStart < 0 || seg.StepStart+seg.StepCount > len(t.Steps) {
		return fmt.Errorf("%w: segment steps [%d,+%d) outside %d steps",
			errs.ErrInvalidTable, seg.StepStart, seg.StepCount, len(t.Steps))
	}
	if t.Key.Sort == format.SortEntityMajor && len(seg.Entities) == 0 && seg.StepCount > 0 ||
		t.Key.Sort == format.SortStepMajor && seg.StepCount == 0 && len(seg.Entities) > 0 {
		return fmt.Errorf("%w: %s segment has %d steps and %d entities, one axis empty",
			errs.ErrInvalidTable, t.Key.Sort, seg.StepCount, len(seg.Entities))
	}
	if len(t.Data) != len(t.Entities)*len(t.Steps)*len(p.cols) {
		return fmt.Errorf("%w: %s data has %d words, want %d", errs.ErrInvalidTable,
			t.Key, len(t.Data), len(t.Entities)*len(t.Steps)*len(p.cols))
	}

	rows := make([]int, len(seg.Entities))
	index := make(map[int64]int, len(t.Entities))
	for i, id := range t.Entities {
		index[id] = i
	}
	for i, id := range seg.Entities {
		e, ok := index[id]
		if !ok {
			return fmt.Errorf("%w: segment references unknown entity %d", errs.ErrInvalidTable, id)
		}
		rows[i] = e
	}

	name := seg.Name
	if name == "" {
		name = c.name
	}
	a.BeginFrame()
	a.FixedString(name, section.NameSize)
	if err := a.EndFrame(); err != nil {
		return err
	}
	if err := h.AppendFrame(a); err != nil {
		return err
	}

	steps := len(t.Steps)
	stride := len(p.cols)
	row := func(e, s int) []float64 {
		off := (e*steps + s) * stride
		return t.Data[off : off+stride]
	}

	if t.Key.Sort == format.SortEntityMajor {
		for i, e := range rows {
			a.BeginFrame()
			if err := appendEntity(a, p, seg.Entities[i]); err != nil {
				return err
			}
			for s := seg.StepStart; s < seg.StepStart+seg.StepCount; s++ {
				if err := appendStep(a, p, t.Steps[s]); err != nil {
					return err
				}
				if err := appendRow(a, p, row(e, s)); err != nil {
					return err
				}
			}
			if err := a.EndFrame(); err != nil {
				return err
			}
		}
	} else {
		for s := seg.StepStart; s < seg.StepStart+seg.StepCount; s++ {
			a.BeginFrame()
			if err := appendStep(a, p, t.Steps[s]); err != nil {
				return err
			}
			for i, e := range rows {
				if err := appendEntity(a, p, seg.Entities[i]); err != nil {
					return err
				}
				if err := appendRow(a, p, row(e, s)); err != nil {
					return err
				}
			}
			if err := a.EndFrame(); err != nil {
				return err
			}
		}
	}

	return a.Frame(nil)
}

func (c *LayoutCodec) header(t *result.Table, seg result.Segment) section.Header {
	m := t.Meta
	numWide := len(t.Columns) + 1

	return section.Header{
		ApproachCode: m.ApproachCode(),
		TableCode:    t.Key.Category.Code,
		ElementType:  t.Key.Category.ElementType,
		Subcase:      t.Key.Subcase,
		SortCode:     section.NewSortCode(t.Key.Sort, m.Format.IsComplex(), t.Key.Category.Statistic != format.StatNone),
		Format:       m.Format,
		NumWide:      int32(numWide), //nolint:gosec // layout width
		WordSize:     int32(m.Precision.WordSize()),
		Version:      m.Version,
		FunctionID:   t.Key.FunctionID,
		StepCount:    int32(seg.StepCount),     //nolint:gosec // bounded by table size
		EntityCount:  int32(len(seg.Entities)), //nolint:gosec // bounded by table size
		StepKind:     m.StepKind,
		Statistic:    t.Key.Category.Statistic,
		Aux0:         m.Aux0,
		Aux1:         m.Aux1,
		Title:        seg.Title,
	}
}

func sameBits(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}

func appendStep(a *encoding.Appender, p plan, step float64) error {
	if p.intSteps {
		return a.IntFromFloat(step)
	}
	a.Float(step)

	return nil
}

func appendEntity(a *encoding.Appender, p plan, id int64) error {
	if !p.packed {
		return a.Int(id)
	}
	if id < 0 {
		return fmt.Errorf("%w: negative entity id %d", errs.ErrInvalidTable, id)
	}

	return a.Int(id*10 + int64(p.device))
}

func appendRow(a *encoding.Appender, p plan, row []float64) error {
	for i, col := range p.cols {
		if col.Kind == format.FieldInt {
			if err := a.IntFromFloat(row[i]); err != nil {
				return err
			}
			continue
		}
		a.Float(row[i])
	}

	return nil
}
