package archive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arloliu/op2/encoding"
	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/internal/options"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/section"
	"github.com/arloliu/op2/store"
	"github.com/arloliu/op2/table"
)

const writeBufferSize = 256 * 1024

// Writer emits the contents of a store as an archive.
type Writer struct {
	w   io.Writer
	cfg writeConfig
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer, opts ...WriteOption) (*Writer, error) {
	cfg := defaultWriteConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	return &Writer{w: w, cfg: cfg}, nil
}

// WriteStore writes the preamble and every table of st.
//
// By default tables are written in the order they reached the store, one table
// per merged segment with its original name and title, so an archive read
// into an empty store is written back byte for byte. WithCanonicalOrder writes
// geometry first and then one coalesced table per key in sorted key order.
//
// Parameters:
//   - ctx: checked between tables
//   - st: source store
//
// Returns:
//   - int64: bytes written
//   - error: ErrPrecisionMismatch if a table does not match the archive
//     precision, ErrUnrecognizedTable if no codec is registered for a table,
//     ErrInvalidTable for tables that cannot be encoded, or a write error
func (w *Writer) WriteStore(ctx context.Context, st *store.Store) (int64, error) {
	info := st.Info()
	engine := w.resolveByteOrder(info)
	precision, err := w.resolvePrecision(info, st)
	if err != nil {
		return 0, err
	}

	preamble := section.NewPreamble(precision, "")
	if info.Version != 0 {
		preamble.Version = info.Version
	}
	if w.cfg.label != nil {
		preamble.Label = *w.cfg.label
	} else if info.ByteOrder != nil {
		preamble.Label = info.Label
	}

	out := encoding.NewWriter(w.w, engine)
	if err := out.WriteFramedBlock(preamble.IdentityBytes(engine)); err != nil {
		return out.Offset(), err
	}
	if err := out.WriteFramedBlock(preamble.LabelBytes()); err != nil {
		return out.Offset(), err
	}

	enc := &tableEncoder{
		ctx:  ctx,
		w:    w,
		out:  out,
		wire: table.Wire{Engine: engine, Precision: precision},
		app:  encoding.NewAppender(engine, precision),
	}
	defer enc.app.Release()

	if w.cfg.canonical {
		err = enc.canonical(st)
	} else {
		err = enc.arrivals(st)
	}
	if err != nil {
		return out.Offset(), err
	}

	if w.terminate(info) {
		if err := out.WriteFramedBlock(nil); err != nil {
			return out.Offset(), err
		}
	}

	w.cfg.logger.Debug("wrote archive",
		"byte_order", endian.Name(engine),
		"precision", precision.String(),
		"bytes", out.Offset(),
		"canonical", w.cfg.canonical,
	)

	return out.Offset(), nil
}

func (w *Writer) resolveByteOrder(info store.ArchiveInfo) endian.EndianEngine {
	switch {
	case w.cfg.byteOrder != nil:
		return w.cfg.byteOrder
	case info.ByteOrder != nil:
		return info.ByteOrder
	default:
		return endian.GetLittleEndianEngine()
	}
}

func (w *Writer) resolvePrecision(info store.ArchiveInfo, st *store.Store) (format.Precision, error) {
	if w.cfg.precision != 0 {
		return w.cfg.precision, nil
	}
	if info.Precision.IsValid() {
		return info.Precision, nil
	}
	if g := st.Geometry(); len(g) > 0 {
		return g[0].Meta.Precision, nil
	}
	for t, err := range st.Tables() {
		if err != nil {
			return 0, err
		}

		return t.Meta.Precision, nil
	}

	return format.PrecisionDouble, nil
}

func (w *Writer) terminate(info store.ArchiveInfo) bool {
	if w.cfg.terminate != nil {
		return *w.cfg.terminate
	}
	if info.ByteOrder != nil {
		return info.Terminated
	}

	return true
}

// tableEncoder writes the tables of one WriteStore call through a reused Appender.
type tableEncoder struct {
	ctx  context.Context
	w    *Writer
	out  *encoding.Writer
	wire table.Wire
	app  *encoding.Appender
}

func (e *tableEncoder) arrivals(st *store.Store) error {
	geometry := st.Geometry()
	for _, a := range st.Arrivals() {
		if a.Kind == format.KindGeometry {
			g := geometry[a.Geometry]
			if err := e.encode(g, wholeSegment(g)); err != nil {
				return err
			}

			continue
		}

		t, err := st.Get(a.Key)
		if err != nil {
			return err
		}
		if a.Segment >= len(t.Segments) {
			return fmt.Errorf("%w: %s has no segment %d", errs.ErrInvalidTable, a.Key, a.Segment)
		}
		if err := e.encode(t, t.Segments[a.Segment]); err != nil {
			return err
		}
	}

	return nil
}

func (e *tableEncoder) canonical(st *store.Store) error {
	for _, g := range st.Geometry() {
		if err := e.encode(g, wholeSegment(g)); err != nil {
			return err
		}
	}

	for _, key := range st.SortedKeys() {
		t, err := st.Get(key)
		if err != nil {
			return err
		}
		if err := e.encode(t, wholeSegment(t)); err != nil {
			return err
		}
	}

	return nil
}

// wholeSegment covers every step of t under the name and title of its first segment.
func wholeSegment(t *result.Table) result.Segment {
	seg := result.Segment{
		Name:      t.Meta.Name,
		Title:     t.Meta.Title,
		StepCount: t.NumSteps(),
		Entities:  t.Entities,
	}
	if len(t.Segments) > 0 {
		seg.Name = t.Segments[0].Name
		seg.Title = t.Segments[0].Title
	}

	return seg
}

func (e *tableEncoder) encode(t *result.Table, seg result.Segment) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}

	id := table.ID{Code: t.Key.Category.Code, ElementType: t.Key.Category.ElementType, Version: t.Meta.Version}
	codec, ok := e.w.cfg.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: no codec for %s", errs.ErrUnrecognizedTable, id)
	}

	e.app.Reset()
	if err := codec.Encode(e.wire, t, seg, e.app); err != nil {
		return fmt.Errorf("encode %s: %w", t.Key, err)
	}

	n := int64(e.app.Len())
	if err := e.out.WriteRaw(e.app.Bytes()); err != nil {
		return err
	}
	e.w.cfg.metrics.TableWritten(e.ctx, t.Key.Category.String(), n)

	return nil
}

// Write writes st to w.
func Write(ctx context.Context, w io.Writer, st *store.Store, opts ...WriteOption) (int64, error) {
	wr, err := NewWriter(w, opts...)
	if err != nil {
		return 0, err
	}

	return wr.WriteStore(ctx, st)
}

// WriteFile writes st to path. The archive is written to a temporary file in
// the same directory and renamed into place, so path is never left holding a
// partial archive.
func WriteFile(ctx context.Context, path string, st *store.Store, opts ...WriteOption) (int64, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriterSize(f, writeBufferSize)
	n, err := Write(ctx, bw, st, opts...)
	if err != nil {
		return n, err
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("flush archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return n, fmt.Errorf("sync archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		committed = true

		return n, fmt.Errorf("rename archive: %w", err)
	}
	committed = true

	return n, nil
}
