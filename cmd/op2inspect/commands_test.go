package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arloliu/op2/archive"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/store"
	"github.com/arloliu/op2/table"
	"github.com/stretchr/testify/require"
)

// sampleArchive writes an archive with one grid table and one displacement
// table and returns its path.
func sampleArchive(t *testing.T, dir string) string {
	t.Helper()

	st, err := store.New()
	require.NoError(t, err)
	defer st.Close()

	geom := result.Meta{Format: format.FormatReal, Precision: format.PrecisionDouble, Version: table.Version}
	grids, err := result.NewTable(result.Key{Category: result.Category{Code: table.CodeGrid}}, geom, table.GridLayout, []int64{1, 2}, []float64{0})
	require.NoError(t, err)
	require.NoError(t, st.Merge(grids))

	meta := result.Meta{
		Analysis:  1,
		Device:    1,
		Format:    format.FormatReal,
		StepKind:  format.StepNone,
		Precision: format.PrecisionDouble,
		Version:   table.Version,
	}
	disp, err := result.NewTable(result.Key{Category: result.Category{Code: table.CodeDisplacement}, Subcase: 1}, meta, table.NodeVectorLayout, []int64{1, 2}, []float64{0})
	require.NoError(t, err)
	require.NoError(t, st.Merge(disp))

	path := filepath.Join(dir, "model.op2")
	_, err = archive.WriteFile(context.Background(), path, st)
	require.NoError(t, err)

	return path
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	cfgPath := filepath.Join(dir, "op2.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: error\n"), 0o600))

	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath, "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func TestSummaryCommand(t *testing.T) {
	dir := t.TempDir()
	path := sampleArchive(t, dir)

	out, err := run(t, dir, "summary", path)
	require.NoError(t, err)
	require.Contains(t, out, "little")
	require.Contains(t, out, "Double")
	require.Contains(t, out, "Decoded tables")

	out, err = run(t, dir, "summary", "--spill-threshold", "1B", path)
	require.NoError(t, err)
	require.Contains(t, out, "Spilled tables")

	_, err = run(t, dir, "summary", filepath.Join(dir, "missing.op2"))
	require.Error(t, err)
}

func TestTablesCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "tables", "--workers", "2", sampleArchive(t, dir))
	require.NoError(t, err)
	require.Contains(t, out, "GeomGrid")
	require.Contains(t, out, "Displacement")
	require.Contains(t, out, "Total: 2 tables")
}

func TestGeometryCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "geometry", sampleArchive(t, dir))
	require.NoError(t, err)
	require.Contains(t, out, "Coordinate systems")
}

func TestCopyCommand(t *testing.T) {
	dir := t.TempDir()
	src := sampleArchive(t, dir)

	t.Run("Identical", func(t *testing.T) {
		dst := filepath.Join(dir, "copy.op2")
		out, err := run(t, dir, "copy", src, dst)
		require.NoError(t, err)
		require.Contains(t, out, "2 tables")

		want, err := os.ReadFile(src)
		require.NoError(t, err)
		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("ReEncoded", func(t *testing.T) {
		dst := filepath.Join(dir, "big.op2")
		_, err := run(t, dir, "copy", "--byte-order", "big", "--no-terminator", src, dst)
		require.NoError(t, err)

		out, err := run(t, dir, "summary", dst)
		require.NoError(t, err)
		require.Contains(t, out, "big")
	})

	t.Run("BadByteOrder", func(t *testing.T) {
		_, err := run(t, dir, "copy", "--byte-order", "middle", src, filepath.Join(dir, "x.op2"))
		require.Error(t, err)
	})
}
