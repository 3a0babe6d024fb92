package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/arloliu/op2/encoding"
	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/geometry"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/section"
	"github.com/arloliu/op2/store"
	"github.com/arloliu/op2/table"
	"github.com/stretchr/testify/require"
)

var (
	leDouble = table.Wire{Engine: endian.GetLittleEndianEngine(), Precision: format.PrecisionDouble}
	beSingle = table.Wire{Engine: endian.GetBigEndianEngine(), Precision: format.PrecisionSingle}
)

// builder assembles archive bytes table by table.
type builder struct {
	t    *testing.T
	wire table.Wire
	a    *encoding.Appender
}

func newBuilder(t *testing.T, wire table.Wire, label string) *builder {
	t.Helper()

	b := &builder{t: t, wire: wire, a: encoding.NewAppender(wire.Engine, wire.Precision)}
	t.Cleanup(b.a.Release)

	p := section.NewPreamble(wire.Precision, label)
	require.NoError(t, b.a.Frame(p.IdentityBytes(wire.Engine)))
	require.NoError(t, b.a.Frame(p.LabelBytes()))

	return b
}

func (b *builder) table(tbl *result.Table) *builder {
	b.t.Helper()

	id := table.ID{Code: tbl.Key.Category.Code, ElementType: tbl.Key.Category.ElementType, Version: tbl.Meta.Version}
	codec, ok := table.DefaultRegistry().Lookup(id)
	require.True(b.t, ok)
	require.NoError(b.t, codec.Encode(b.wire, tbl, tbl.Segments[0], b.a))

	return b
}

func (b *builder) raw(name string, header []byte, frames ...[]byte) *builder {
	b.t.Helper()

	require.NoError(b.t, b.a.Frame([]byte(section.PadName(name))))
	require.NoError(b.t, b.a.Frame(header))
	for _, f := range frames {
		require.NoError(b.t, b.a.Frame(f))
	}
	require.NoError(b.t, b.a.Frame(nil))

	return b
}

func (b *builder) bytes(terminate bool) []byte {
	b.t.Helper()

	if terminate {
		require.NoError(b.t, b.a.Frame(nil))
	}

	return bytes.Clone(b.a.Bytes())
}

func displacement(t *testing.T, subcase int32, sort format.SortOrder, precision format.Precision, steps ...float64) *result.Table {
	t.Helper()

	key := result.Key{Category: result.Category{Code: table.CodeDisplacement}, Subcase: subcase, Sort: sort}
	meta := result.Meta{
		Name:      section.PadName("OUGV1"),
		Title:     section.PadTitle("TRANSIENT"),
		Analysis:  6,
		Device:    1,
		Format:    format.FormatReal,
		StepKind:  format.StepTime,
		Precision: precision,
		Version:   table.Version,
	}
	tbl, err := result.NewTable(key, meta, table.NodeVectorLayout, []int64{10, 20, 30}, steps)
	require.NoError(t, err)

	for e := range tbl.Entities {
		for s, step := range tbl.Steps {
			row := tbl.Row(e, s)
			row[0] = 1
			for c := 1; c < len(row); c++ {
				row[c] = float64(e*100+c) + step + 0.25
			}
		}
	}

	return tbl
}

func grids(t *testing.T) *result.Table {
	t.Helper()

	key := result.Key{Category: result.Category{Code: table.CodeGrid}}
	meta := result.Meta{Format: format.FormatReal, Precision: format.PrecisionDouble, Version: table.Version}
	tbl, err := result.NewTable(key, meta, table.GridLayout, []int64{10, 20, 30}, []float64{0})
	require.NoError(t, err)
	require.NoError(t, tbl.SetRow(0, 0, []float64{0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, tbl.SetRow(1, 0, []float64{0, 1, 0, 0, 0, 0, 0}))
	require.NoError(t, tbl.SetRow(2, 0, []float64{0, 1, 1, 0, 0, 0, 0}))

	return tbl
}

func unknownHeader(engine endian.EndianEngine) []byte {
	h := section.Header{
		ApproachCode: 11,
		TableCode:    999,
		Format:       format.FormatReal,
		NumWide:      2,
		WordSize:     8,
		Version:      1,
		StepCount:    1,
		EntityCount:  1,
	}

	return h.Bytes(engine)
}

func newStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()

	st, err := store.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })

	return st
}

func readAll(t *testing.T, data []byte, opts ...ReadOption) (*store.Store, Summary) {
	t.Helper()

	st := newStore(t)
	sum, err := Read(context.Background(), bytes.NewReader(data), st, opts...)
	require.NoError(t, err)

	return st, sum
}

func writeAll(t *testing.T, st *store.Store, opts ...WriteOption) []byte {
	t.Helper()

	var buf bytes.Buffer
	n, err := Write(context.Background(), &buf, st, opts...)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	t.Run("LittleEndianDouble", func(t *testing.T) {
		data := newBuilder(t, leDouble, "MODEL A").
			table(grids(t)).
			table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 0, 0.5)).
			table(displacement(t, 2, format.SortEntityMajor, format.PrecisionDouble, 0, 0.5, 1)).
			bytes(true)

		st, sum := readAll(t, data)
		require.Len(t, sum.Tables, 3)
		require.Empty(t, sum.Diagnostics)
		require.True(t, sum.Terminated)
		require.Equal(t, "little", sum.ByteOrder)
		require.Equal(t, "MODEL A", sum.Label)
		require.Equal(t, int64(len(data)), sum.Bytes)
		require.Equal(t, format.KindGeometry, sum.Tables[0].Kind)
		require.Equal(t, "GeomGrid", sum.Tables[0].Label)

		require.Equal(t, data, writeAll(t, st))
	})

	t.Run("BigEndianSingleWithoutTerminator", func(t *testing.T) {
		data := newBuilder(t, beSingle, "").
			table(displacement(t, 1, format.SortStepMajor, format.PrecisionSingle, 0, 0.5)).
			bytes(false)

		st, sum := readAll(t, data)
		require.False(t, sum.Terminated)
		require.Equal(t, "big", sum.ByteOrder)
		require.Equal(t, format.PrecisionSingle, sum.Precision)
		require.Equal(t, data, writeAll(t, st))
	})

	t.Run("MergedSegments", func(t *testing.T) {
		data := newBuilder(t, leDouble, "").
			table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 0, 0.5)).
			table(grids(t)).
			table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 1, 1.5)).
			bytes(true)

		st, _ := readAll(t, data)
		require.Equal(t, 1, st.Len())
		got, err := st.Get(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble).Key)
		require.NoError(t, err)
		require.Equal(t, []float64{0, 0.5, 1, 1.5}, got.Steps)
		require.Len(t, got.Segments, 2)

		require.Equal(t, data, writeAll(t, st))
	})
}

func TestReadSkipsTables(t *testing.T) {
	engine := leDouble.Engine

	malformed := section.Header{
		ApproachCode: 61,
		TableCode:    table.CodeDisplacement,
		Format:       format.FormatReal,
		NumWide:      3,
		WordSize:     8,
		Version:      table.Version,
		StepKind:     format.StepTime,
		StepCount:    1,
		EntityCount:  1,
	}
	wrongPrecision := malformed
	wrongPrecision.NumWide = 8
	wrongPrecision.WordSize = 4

	data := newBuilder(t, leDouble, "").
		table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 0)).
		raw("UNKNOWN", unknownHeader(engine), make([]byte, 16)).
		raw("BROKEN", malformed.Bytes(engine), make([]byte, 24)).
		raw("SINGLE", wrongPrecision.Bytes(engine), make([]byte, 36)).
		raw("SHORT", make([]byte, 10), make([]byte, 8), make([]byte, 8)).
		table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 0)).
		table(displacement(t, 2, format.SortStepMajor, format.PrecisionDouble, 0)).
		bytes(true)

	st, sum := readAll(t, data)
	require.Equal(t, 2, st.Len())
	require.Len(t, sum.Tables, 2)
	require.Equal(t, 5, sum.Skipped())
	require.True(t, sum.Terminated)

	reasons := make([]Reason, 0, len(sum.Diagnostics))
	for _, d := range sum.Diagnostics {
		reasons = append(reasons, d.Reason)
	}
	require.Equal(t, []Reason{ReasonUnrecognized, ReasonMalformed, ReasonPrecision, ReasonHeader, ReasonMerge}, reasons)
	require.Equal(t, "UNKNOWN", sum.Diagnostics[0].Name)
	require.ErrorIs(t, sum.Diagnostics[0].Err, errs.ErrUnrecognizedTable)
	require.ErrorIs(t, sum.Diagnostics[4].Err, errs.ErrInconsistentMerge)
	require.Greater(t, sum.Diagnostics[1].Offset, sum.Diagnostics[0].Offset)
}

func TestReadFatalErrors(t *testing.T) {
	data := newBuilder(t, leDouble, "").
		table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 0)).
		table(displacement(t, 2, format.SortStepMajor, format.PrecisionDouble, 0)).
		bytes(true)

	t.Run("Truncated", func(t *testing.T) {
		st := newStore(t)
		sum, err := Read(context.Background(), bytes.NewReader(data[:len(data)-20]), st)
		require.ErrorIs(t, err, errs.ErrTruncatedArchive)
		require.Len(t, sum.Tables, 1)
		require.Equal(t, 1, st.Len())
	})

	t.Run("FrameCorruption", func(t *testing.T) {
		corrupt := bytes.Clone(data)
		// trailing marker of the first header frame
		corrupt[52+16+4+section.HeaderSize] ^= 0xff

		st := newStore(t)
		sum, err := Read(context.Background(), bytes.NewReader(corrupt), st)
		require.ErrorIs(t, err, errs.ErrFrameCorruption)
		require.Empty(t, sum.Tables)
		require.Zero(t, st.Len())
	})

	t.Run("NotArchive", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
		require.ErrorIs(t, err, errs.ErrNotArchive)

		_, err = NewReader(bytes.NewReader([]byte{8}))
		require.ErrorIs(t, err, errs.ErrNotArchive)
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Read(ctx, bytes.NewReader(data), newStore(t))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestPreambleOverrides(t *testing.T) {
	engine := leDouble.Engine
	a := encoding.NewAppender(engine, format.PrecisionDouble)
	defer a.Release()

	ident := engine.AppendUint32(engine.AppendUint32(nil, 3), 1)
	require.NoError(t, a.Frame(ident))
	require.NoError(t, a.Frame(bytes.Repeat([]byte(" "), section.LabelSize)))
	body := newBuilder(t, leDouble, "").
		table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 0)).
		bytes(true)
	data := append(bytes.Clone(a.Bytes()), body[52:]...)

	_, err := NewReader(bytes.NewReader(data))
	require.ErrorIs(t, err, errs.ErrInvalidPreamble)

	st, sum := readAll(t, data, WithPrecision(format.PrecisionDouble), WithByteOrder(engine))
	require.Equal(t, 1, st.Len())
	require.Equal(t, format.PrecisionDouble, sum.Precision)
}

func TestNextTable(t *testing.T) {
	data := newBuilder(t, leDouble, "").
		table(grids(t)).
		raw("UNKNOWN", unknownHeader(leDouble.Engine), make([]byte, 16)).
		table(displacement(t, 1, format.SortEntityMajor, format.PrecisionDouble, 0, 1)).
		bytes(true)

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	var kinds []EntryKind
	for {
		e, err := r.NextTable(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, e.Kind)
	}
	require.Equal(t, []EntryKind{EntryGeometry, EntrySkipped, EntryResult}, kinds)
	require.True(t, r.Summary().Terminated)

	_, err = r.NextTable(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestReadWorkers(t *testing.T) {
	b := newBuilder(t, leDouble, "")
	for sub := int32(1); sub <= 12; sub++ {
		b.table(displacement(t, sub, format.SortStepMajor, format.PrecisionDouble, 0, 0.5))
		if sub%5 == 0 {
			b.raw("UNKNOWN", unknownHeader(leDouble.Engine), make([]byte, 16))
		}
	}
	b.table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 1))
	data := b.bytes(true)

	seq, seqSum := readAll(t, data)
	par, parSum := readAll(t, data, WithWorkers(4))

	require.Equal(t, seqSum, parSum)
	require.Equal(t, seq.Keys(), par.Keys())
	for _, key := range seq.Keys() {
		want, err := seq.Get(key)
		require.NoError(t, err)
		got, err := par.Get(key)
		require.NoError(t, err)
		require.True(t, want.SameValues(got))
	}
	require.Equal(t, data, writeAll(t, par))
}

func TestReadWithGeometry(t *testing.T) {
	data := newBuilder(t, leDouble, "").
		table(grids(t)).
		bytes(true)

	idx := geometry.New()
	st, _ := readAll(t, data, WithGeometry(idx))
	require.Len(t, st.Geometry(), 1)

	n, ok := idx.Node(30)
	require.True(t, ok)
	require.Equal(t, geometry.Vec{1, 1, 0}, n.Position)
}

func TestWriteOptions(t *testing.T) {
	data := newBuilder(t, leDouble, "ORIGINAL").
		table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 0, 0.5)).
		table(grids(t)).
		table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 1)).
		bytes(true)
	st, _ := readAll(t, data)

	t.Run("CanonicalOrder", func(t *testing.T) {
		out := writeAll(t, st, WithCanonicalOrder())
		back, sum := readAll(t, out)
		require.Len(t, sum.Tables, 2)
		require.Equal(t, format.KindGeometry, sum.Tables[0].Kind)

		key := st.Keys()[0]
		want, err := st.Get(key)
		require.NoError(t, err)
		got, err := back.Get(key)
		require.NoError(t, err)
		require.Len(t, got.Segments, 1)
		require.True(t, want.SameValues(got))

		require.Equal(t, out, writeAll(t, back, WithCanonicalOrder()))
	})

	t.Run("ByteOrderLabelTerminator", func(t *testing.T) {
		out := writeAll(t, st,
			WithOutputByteOrder(endian.GetBigEndianEngine()),
			WithLabel("COPY"),
			WithTerminator(false),
		)
		back, sum := readAll(t, out)
		require.Equal(t, "big", sum.ByteOrder)
		require.Equal(t, "COPY", sum.Label)
		require.False(t, sum.Terminated)
		require.Equal(t, st.Keys(), back.Keys())
	})

	t.Run("PrecisionMismatch", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Write(context.Background(), &buf, st, WithOutputPrecision(format.PrecisionSingle))
		require.ErrorIs(t, err, errs.ErrPrecisionMismatch)
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		_, err := NewWriter(io.Discard, WithLabel(string(make([]byte, 29))))
		require.Error(t, err)
		_, err = NewReader(bytes.NewReader(data), WithWorkers(0))
		require.Error(t, err)
	})

	t.Run("EmptyStore", func(t *testing.T) {
		out := writeAll(t, newStore(t))
		_, sum := readAll(t, out)
		require.Empty(t, sum.Tables)
		require.True(t, sum.Terminated)
		require.Equal(t, format.PrecisionDouble, sum.Precision)
	})
}

func TestFiles(t *testing.T) {
	data := newBuilder(t, leDouble, "").
		table(displacement(t, 1, format.SortStepMajor, format.PrecisionDouble, 0, 0.5)).
		bytes(true)
	dir := t.TempDir()
	src := filepath.Join(dir, "in.op2")
	require.NoError(t, os.WriteFile(src, data, 0o600))

	st := newStore(t)
	sum, err := ReadFile(context.Background(), src, st)
	require.NoError(t, err)
	require.Len(t, sum.Tables, 1)

	dst := filepath.Join(dir, "out.op2")
	n, err := WriteFile(context.Background(), dst, st)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, data, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	_, err = ReadFile(context.Background(), filepath.Join(dir, "missing.op2"), st)
	require.ErrorIs(t, err, os.ErrNotExist)
}
