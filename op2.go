// Package op2 reads and writes finite-element result archives.
//
// An archive is a sequence of length-framed records: a preamble that declares
// byte order and precision, then tables of results (displacements, stresses,
// eigenvalues...) and model geometry. Tables are decoded into a Store, where
// tables with the same key are merged across steps and can be spilled to disk,
// and the Store can be written back to an archive that is identical byte for
// byte.
//
// # Core Features
//
//   - Byte order and precision detected from the archive preamble
//   - Step-major and entity-major tables decoded into one canonical form
//   - Unknown or malformed tables skipped by frame and reported, never fatal
//   - Merging of tables that continue a transient or frequency sweep
//   - Spill to a compressed side file (None, Zstd, S2, LZ4) with lazy reload
//   - Geometry index with coordinate system transforms
//
// # Basic Usage
//
// Reading an archive and querying a table:
//
//	st, sum, err := op2.ReadFile(ctx, "model.op2")
//	if st != nil {
//	    defer st.Close()
//	}
//	if err != nil {
//	    return err
//	}
//	disp := result.Category{Code: table.CodeDisplacement}
//	t, err := st.Query(disp, 1, format.SortStepMajor)
//	for id, row := range t.AtStep(0) {
//	    fmt.Println(id, row)
//	}
//
// Writing the store back:
//
//	_, err = op2.WriteFile(ctx, "copy.op2", st)
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the archive and
// store packages. For streaming reads, custom codecs or write ordering, use the
// archive, table and store packages directly.
package op2

import (
	"context"
	"io"

	"github.com/arloliu/op2/archive"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/store"
	"github.com/arloliu/op2/table"
)

// NewStore creates an empty in-memory result store.
func NewStore(opts ...store.Option) (*store.Store, error) {
	return store.New(opts...)
}

// NewLowMemoryStore creates a store that spills its largest tables to an S2
// compressed side file whenever the in-memory footprint exceeds threshold bytes.
//
// Parameters:
//   - threshold: in-memory budget in bytes, must be positive
//   - opts: additional store options, applied after the spill settings
//
// Returns:
//   - *store.Store: the new store; Close removes the side file
//   - error: if an option is invalid or the side file cannot be created
func NewLowMemoryStore(threshold int64, opts ...store.Option) (*store.Store, error) {
	all := append([]store.Option{
		store.WithSpillThreshold(threshold),
		store.WithSpillCompression(format.CompressionS2),
	}, opts...)

	return store.New(all...)
}

// Read reads an archive into a new in-memory store.
//
// The store is returned even when the read fails part way, holding every table
// merged before the failure; the caller must Close it whenever it is non-nil.
//
// Parameters:
//   - ctx: checked between tables
//   - r: archive stream
//   - opts: read options
//
// Returns:
//   - *store.Store: the tables read
//   - archive.Summary: decoded tables and skipped-table diagnostics
//   - error: a fatal framing, preamble or store error
func Read(ctx context.Context, r io.Reader, opts ...archive.ReadOption) (*store.Store, archive.Summary, error) {
	st, err := store.New()
	if err != nil {
		return nil, archive.Summary{}, err
	}
	sum, err := archive.Read(ctx, r, st, opts...)

	return st, sum, err
}

// ReadFile reads the archive at path into a new in-memory store. See Read.
func ReadFile(ctx context.Context, path string, opts ...archive.ReadOption) (*store.Store, archive.Summary, error) {
	st, err := store.New()
	if err != nil {
		return nil, archive.Summary{}, err
	}
	sum, err := archive.ReadFile(ctx, path, st, opts...)

	return st, sum, err
}

// Write writes the store to w and returns the number of bytes written.
func Write(ctx context.Context, w io.Writer, st *store.Store, opts ...archive.WriteOption) (int64, error) {
	return archive.Write(ctx, w, st, opts...)
}

// WriteFile writes the store to path through a temporary file that is renamed
// into place on success.
func WriteFile(ctx context.Context, path string, st *store.Store, opts ...archive.WriteOption) (int64, error) {
	return archive.WriteFile(ctx, path, st, opts...)
}

// DefaultRegistry returns a codec registry holding the built-in table catalog.
// Register custom codecs on it and pass it with archive.WithRegistry.
func DefaultRegistry() *table.Registry {
	return table.DefaultRegistry()
}
