package op2

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/arloliu/op2/archive"
	"github.com/arloliu/op2/encoding"
	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/section"
	"github.com/arloliu/op2/store"
	"github.com/arloliu/op2/table"
	"github.com/stretchr/testify/require"
)

// fill builds a table whose int columns hold small integers and whose float
// columns encode (entity, step, column).
func fill(t *testing.T, key result.Key, meta result.Meta, layout *result.Layout, entities []int64, steps []float64) *result.Table {
	t.Helper()

	tbl, err := result.NewTable(key, meta, layout, entities, steps)
	require.NoError(t, err)
	for e := range tbl.Entities {
		for s := range tbl.Steps {
			row := tbl.Row(e, s)
			for c, col := range tbl.Columns {
				if col.Kind == format.FieldInt {
					row[c] = float64(e + c + 1)
				} else {
					row[c] = float64(e)*10 + float64(s) + float64(c)*0.125
				}
			}
		}
	}

	return tbl
}

func meta(vf format.ValueFormat, steps format.StepKind, precision format.Precision) result.Meta {
	return result.Meta{
		Analysis:  1,
		Device:    1,
		Format:    vf,
		StepKind:  steps,
		Precision: precision,
		Version:   table.Version,
	}
}

func cat(code, elem int32) result.Category {
	return result.Category{Code: code, ElementType: elem}
}

// model returns one table of most built-in categories.
func model(t *testing.T, p format.Precision) []*result.Table {
	t.Helper()

	nodes := []int64{101, 102, 103, 104}
	geom := result.Meta{Format: format.FormatReal, Precision: p, Version: table.Version}
	matrix := meta(format.FormatRealImag, format.StepNone, p)
	matrix.Aux0 = 3
	psd := result.Key{Category: result.Category{Code: table.CodeDisplacement, Statistic: format.StatPSD}, Subcase: 3, FunctionID: 5}

	return []*result.Table{
		fill(t, result.Key{Category: cat(table.CodeGrid, 0)}, geom, table.GridLayout, nodes, []float64{0}),
		fill(t, result.Key{Category: cat(table.CodeRod, 0)}, geom, table.RodElementLayout, []int64{1, 2}, []float64{0}),
		fill(t, result.Key{Category: cat(table.CodeDisplacement, 0), Subcase: 1},
			meta(format.FormatReal, format.StepTime, p), table.NodeVectorLayout, nodes, []float64{0, 0.25, 0.5}),
		fill(t, result.Key{Category: cat(table.CodeDisplacement, 0), Subcase: 1, Sort: format.SortEntityMajor},
			meta(format.FormatReal, format.StepTime, p), table.NodeVectorLayout, nodes, []float64{0, 0.25, 0.5}),
		fill(t, result.Key{Category: cat(table.CodeStress, table.ElemRod), Subcase: 2},
			meta(format.FormatMagPhase, format.StepFrequency, p), table.RodLayout, []int64{1, 2}, []float64{10, 20}),
		fill(t, result.Key{Category: cat(table.CodeStress, table.ElemQuad4), Subcase: 1, Sort: format.SortEntityMajor},
			meta(format.FormatReal, format.StepNone, p), table.PlateLayout, []int64{7, 8}, []float64{0}),
		fill(t, result.Key{Category: cat(table.CodeEigenvalueSummary, 0), Subcase: 4},
			meta(format.FormatReal, format.StepMode, p), table.EigenvalueSummaryLayout, []int64{1}, []float64{1, 2, 3}),
		fill(t, result.Key{Category: cat(table.CodeMatrix, 0), Subcase: 1},
			matrix, table.MatrixLayout, []int64{1, 2, 3}, []float64{0}),
		fill(t, psd, meta(format.FormatReal, format.StepFrequency, p), table.NodeVectorLayout, nodes[:2], []float64{1, 2, 4}),
		fill(t, result.Key{Category: cat(table.CodeDesignResponse, 0), Subcase: 1},
			meta(format.FormatReal, format.StepDesignCycle, p), table.DesignResponseLayout, []int64{11, 12}, []float64{1, 2}),
	}
}

func encodeModel(t *testing.T, engine endian.EndianEngine, p format.Precision) []byte {
	t.Helper()

	st, err := NewStore()
	require.NoError(t, err)
	defer st.Close()
	for _, tbl := range model(t, p) {
		require.NoError(t, st.Merge(tbl))
	}

	var buf bytes.Buffer
	_, err = Write(context.Background(), &buf, st, archive.WithOutputByteOrder(engine))
	require.NoError(t, err)

	return buf.Bytes()
}

func read(t *testing.T, data []byte, opts ...archive.ReadOption) (*store.Store, archive.Summary) {
	t.Helper()

	st, sum, err := Read(context.Background(), bytes.NewReader(data), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })

	return st, sum
}

func write(t *testing.T, st *store.Store, opts ...archive.WriteOption) []byte {
	t.Helper()

	var buf bytes.Buffer
	_, err := Write(context.Background(), &buf, st, opts...)
	require.NoError(t, err)

	return buf.Bytes()
}

func requireSameTables(t *testing.T, want, got *store.Store) {
	t.Helper()

	require.Equal(t, want.SortedKeys(), got.SortedKeys())
	for _, key := range want.SortedKeys() {
		a, err := want.Get(key)
		require.NoError(t, err)
		b, err := got.Get(key)
		require.NoError(t, err)
		require.True(t, a.SameValues(b), "table %s differs", key)
	}
	require.Len(t, got.Geometry(), len(want.Geometry()))
}

func TestRoundTrip(t *testing.T) {
	wires := []struct {
		name      string
		engine    endian.EndianEngine
		precision format.Precision
	}{
		{"LittleEndianDouble", endian.GetLittleEndianEngine(), format.PrecisionDouble},
		{"BigEndianSingle", endian.GetBigEndianEngine(), format.PrecisionSingle},
	}

	for _, w := range wires {
		t.Run(w.name, func(t *testing.T) {
			data := encodeModel(t, w.engine, w.precision)

			st, sum := read(t, data)
			require.Empty(t, sum.Diagnostics)
			require.Len(t, sum.Tables, len(model(t, w.precision)))
			require.Equal(t, w.precision, sum.Precision)
			require.Equal(t, data, write(t, st))

			canonical := write(t, st, archive.WithCanonicalOrder())
			again, _ := read(t, canonical)
			requireSameTables(t, st, again)
			require.Equal(t, canonical, write(t, again, archive.WithCanonicalOrder()))
		})
	}
}

func TestSortCanonicalization(t *testing.T) {
	st, _ := read(t, encodeModel(t, endian.GetLittleEndianEngine(), format.PrecisionDouble))

	disp := cat(table.CodeDisplacement, 0)
	byStep, err := st.Query(disp, 1, format.SortStepMajor)
	require.NoError(t, err)
	byEntity, err := st.Query(disp, 1, format.SortEntityMajor)
	require.NoError(t, err)

	require.Equal(t, byStep.Entities, byEntity.Entities)
	require.Equal(t, byStep.Steps, byEntity.Steps)
	require.Equal(t, byStep.Columns, byEntity.Columns)
	require.Equal(t, byStep.Data, byEntity.Data)
}

func TestMergeConsistency(t *testing.T) {
	key := result.Key{Category: cat(table.CodeDisplacement, 0), Subcase: 1}
	m := meta(format.FormatReal, format.StepTime, format.PrecisionDouble)
	archiveOf := func(entities []int64, steps []float64) []byte {
		st, err := NewStore()
		require.NoError(t, err)
		defer st.Close()
		require.NoError(t, st.Merge(fill(t, key, m, table.NodeVectorLayout, entities, steps)))

		return write(t, st)
	}

	st, err := NewStore()
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	_, err = archive.Read(ctx, bytes.NewReader(archiveOf([]int64{1, 2}, []float64{0, 1})), st)
	require.NoError(t, err)
	_, err = archive.Read(ctx, bytes.NewReader(archiveOf([]int64{1, 2, 3}, []float64{2, 3})), st)
	require.NoError(t, err)

	merged, err := st.Get(key)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1, 2, 3}, merged.Steps)
	require.Equal(t, []int64{1, 2, 3}, merged.Entities)

	added, ok := merged.EntityIndex(3)
	require.True(t, ok)
	row := merged.Row(added, 0)
	require.Zero(t, row[0])
	require.True(t, math.IsNaN(row[1]))

	sum, err := archive.Read(ctx, bytes.NewReader(archiveOf([]int64{1, 2, 3}, []float64{1})), st)
	require.NoError(t, err)
	require.Len(t, sum.Diagnostics, 1)
	require.Equal(t, archive.ReasonMerge, sum.Diagnostics[0].Reason)

	after, err := st.Get(key)
	require.NoError(t, err)
	require.True(t, merged.SameValues(after))
}

// unknownTable returns the framed records of a table no codec is registered for.
func unknownTable(t *testing.T, engine endian.EndianEngine) []byte {
	t.Helper()

	a := encoding.NewAppender(engine, format.PrecisionDouble)
	defer a.Release()

	h := section.Header{
		ApproachCode: 11,
		TableCode:    777,
		Format:       format.FormatReal,
		NumWide:      3,
		WordSize:     8,
		Version:      table.Version,
		StepCount:    2,
		EntityCount:  1,
	}
	require.NoError(t, a.Frame([]byte("OUNKNOWN")))
	require.NoError(t, a.Frame(h.Bytes(engine)))
	require.NoError(t, a.Frame(make([]byte, 56)))
	require.NoError(t, a.Frame(make([]byte, 56)))
	require.NoError(t, a.Frame(nil))

	return bytes.Clone(a.Bytes())
}

func TestUnknownTableResilience(t *testing.T) {
	engine := endian.GetLittleEndianEngine()
	data := encodeModel(t, engine, format.PrecisionDouble)
	unknown := unknownTable(t, engine)

	const preamble = 52
	const terminator = 8
	var noisy []byte
	noisy = append(noisy, data[:preamble]...)
	noisy = append(noisy, unknown...)
	noisy = append(noisy, data[preamble:len(data)-terminator]...)
	noisy = append(noisy, unknown...)
	noisy = append(noisy, data[len(data)-terminator:]...)

	clean, _ := read(t, data)
	st, sum := read(t, noisy)
	require.Equal(t, 2, sum.Skipped())
	for _, d := range sum.Diagnostics {
		require.Equal(t, archive.ReasonUnrecognized, d.Reason)
		require.Equal(t, "OUNKNOWN", d.Name)
	}

	requireSameTables(t, clean, st)
	require.Equal(t, data, write(t, st))
}

func TestLowMemoryEquivalence(t *testing.T) {
	data := encodeModel(t, endian.GetLittleEndianEngine(), format.PrecisionDouble)
	mem, _ := read(t, data)

	for _, ct := range []format.CompressionType{format.CompressionNone, format.CompressionS2, format.CompressionZstd, format.CompressionLZ4} {
		t.Run(ct.String(), func(t *testing.T) {
			low, err := NewLowMemoryStore(1,
				store.WithSpillCompression(ct),
				store.WithSpillPath(filepath.Join(t.TempDir(), "spill")),
			)
			require.NoError(t, err)
			defer low.Close()

			_, err = archive.Read(context.Background(), bytes.NewReader(data), low)
			require.NoError(t, err)
			for _, key := range low.Keys() {
				require.True(t, low.IsSpilled(key))
			}

			requireSameTables(t, mem, low)
			require.Equal(t, data, write(t, low))
		})
	}
}

func TestFrameCorruption(t *testing.T) {
	data := encodeModel(t, endian.GetLittleEndianEngine(), format.PrecisionDouble)
	_, sum := read(t, data)
	second := sum.Tables[1].Offset

	corrupt := bytes.Clone(data)
	// trailing marker of the second table's name frame
	corrupt[second+encoding.MarkerSize+section.NameSize] ^= 0x40

	st, partial, err := Read(context.Background(), bytes.NewReader(corrupt))
	require.NotNil(t, st)
	defer st.Close()
	require.ErrorIs(t, err, errs.ErrFrameCorruption)
	require.Len(t, partial.Tables, 1)
	require.Len(t, st.Geometry(), 1)
	require.Zero(t, st.Len())
}

func TestPrecisionFidelity(t *testing.T) {
	third := 1.0 / 3.0
	key := result.Key{Category: cat(table.CodeTemperature, 0), Subcase: 1}

	for _, p := range []format.Precision{format.PrecisionDouble, format.PrecisionSingle} {
		t.Run(p.String(), func(t *testing.T) {
			tbl, err := result.NewTable(key, meta(format.FormatReal, format.StepTime, p), table.TemperatureLayout,
				[]int64{math.MaxInt32 / 20}, []float64{third})
			require.NoError(t, err)
			require.NoError(t, tbl.SetRow(0, 0, []float64{math.MaxInt32, third}))

			src, err := NewStore()
			require.NoError(t, err)
			defer src.Close()
			require.NoError(t, src.Merge(tbl))

			st, _ := read(t, write(t, src))
			got, err := st.Get(key)
			require.NoError(t, err)

			want := third
			if p == format.PrecisionSingle {
				want = float64(float32(third))
			}
			require.Equal(t, []int64{math.MaxInt32 / 20}, got.Entities)
			require.Equal(t, []float64{math.MaxInt32, want}, got.Row(0, 0))
			require.Equal(t, []float64{want}, got.Steps)
		})
	}

	t.Run("Mismatch", func(t *testing.T) {
		data := encodeModel(t, endian.GetLittleEndianEngine(), format.PrecisionDouble)
		_, sum := read(t, data, archive.WithPrecision(format.PrecisionSingle))
		require.Empty(t, sum.Tables)
		for _, d := range sum.Diagnostics {
			require.Equal(t, archive.ReasonPrecision, d.Reason)
		}
	})
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	require.Equal(t, len(table.Catalog()), reg.Len())
}
