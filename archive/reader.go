package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/arloliu/op2/encoding"
	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/internal/options"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/section"
	"github.com/arloliu/op2/store"
	"github.com/arloliu/op2/table"
	"golang.org/x/sync/errgroup"
)

const readBufferSize = 256 * 1024

// EntryKind tells what NextTable produced.
type EntryKind uint8

const (
	EntryResult EntryKind = iota + 1
	EntryGeometry
	EntrySkipped
)

// Entry is one table of an archive: a decoded result or geometry table, or a
// diagnostic for a table that was skipped.
type Entry struct {
	Kind       EntryKind
	Name       string
	Offset     int64
	Table      *result.Table
	Diagnostic *Diagnostic

	bytes int64
	took  time.Duration
}

// pending is a table that has been read but not decoded.
type pending struct {
	name   string
	offset int64
	bytes  int64
	raw    *table.RawTable
	codec  table.Codec
	diag   *Diagnostic
}

// Reader dispatches the tables of an archive to their codecs. A Reader is not
// safe for concurrent use.
type Reader struct {
	src     *encoding.Reader
	session *Session
	cfg     readConfig
	done    bool
}

// NewReader reads the archive preamble from r.
//
// The byte order is detected from the leading marker unless WithByteOrder is
// given. WithPrecision replaces the declared precision and also accepts an
// identity record that cannot be parsed.
//
// Parameters:
//   - r: archive stream positioned at the start of the archive
//   - opts: read options
//
// Returns:
//   - *Reader: a reader positioned at the first table
//   - error: ErrNotArchive if the byte order cannot be detected,
//     ErrInvalidPreamble, ErrTruncatedArchive or ErrFrameCorruption
func NewReader(r io.Reader, opts ...ReadOption) (*Reader, error) {
	cfg := defaultReadConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(r, readBufferSize)
	head, err := br.Peek(encoding.MarkerSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrNotArchive, err)
	}

	engine := cfg.byteOrder
	if engine == nil {
		engine, err = endian.Detect(head, section.PreambleSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrNotArchive, err)
		}
	}

	src := encoding.NewReader(br, engine)
	if cfg.maxFrameSize > 0 {
		src.SetMaxFrameSize(cfg.maxFrameSize)
	}

	p, err := readPreamble(src, engine, cfg.precision)
	if err != nil {
		return nil, err
	}

	wire := table.Wire{Engine: engine, Precision: p.Precision}
	rd := &Reader{
		src: src,
		cfg: cfg,
		session: &Session{
			Wire:     wire,
			Preamble: p,
			Registry: cfg.registry,
			Logger:   cfg.logger,
			Metrics:  cfg.metrics,
			summary:  newSummary(wire, p),
		},
	}
	rd.session.summary.Bytes = src.Offset()

	cfg.logger.Debug("opened archive",
		"byte_order", endian.Name(engine),
		"precision", p.Precision.String(),
		"version", p.Version,
	)

	return rd, nil
}

func readPreamble(src *encoding.Reader, engine endian.EndianEngine, override format.Precision) (section.Preamble, error) {
	var p section.Preamble

	ident, err := src.ReadFramedBlock()
	if err != nil {
		return p, truncatedAtEOF(err, "identity record")
	}
	if err := p.ParseIdentity(ident, engine); err != nil {
		if override == 0 {
			return p, err
		}
		p.Version = section.CurrentVersion
	}
	if override != 0 {
		p.Precision = override
	}

	label, err := src.ReadFramedBlock()
	if err != nil {
		return p, truncatedAtEOF(err, "label record")
	}
	if err := p.ParseLabel(label); err != nil {
		return p, err
	}

	return p, nil
}

func truncatedAtEOF(err error, what string) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: archive ends before the %s", errs.ErrTruncatedArchive, what)
	}

	return err
}

// Session returns the session of the reader.
func (r *Reader) Session() *Session {
	return r.session
}

// Summary returns the summary of the tables read so far.
func (r *Reader) Summary() Summary {
	return r.session.Summary()
}

// NextTable reads and decodes the next table.
//
// Returns:
//   - Entry: the decoded table, or a diagnostic for a skipped table
//   - error: io.EOF at the end of the archive, the context error if ctx is
//     done, or a fatal framing error
func (r *Reader) NextTable(ctx context.Context) (Entry, error) {
	if r.done {
		return Entry{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	p, err := r.next()
	if err != nil {
		return Entry{}, err
	}

	e := r.decode(p)
	r.record(ctx, e)

	return e, nil
}

// next reads one table without decoding it.
func (r *Reader) next() (*pending, error) {
	offset := r.src.Offset()
	defer func() { r.session.summary.Bytes = r.src.Offset() }()

	nameFrame, err := r.src.ReadFramedBlock()
	if errors.Is(err, io.EOF) {
		r.done = true
		return nil, io.EOF
	}
	if err != nil {
		r.done = true
		return nil, err
	}
	if len(nameFrame) == 0 {
		r.done = true
		r.session.summary.Terminated = true

		return nil, io.EOF
	}

	p := &pending{name: string(nameFrame), offset: offset}

	hdrFrame, err := r.src.ReadFramedBlock()
	if err != nil {
		r.done = true
		return nil, truncatedAtEOF(err, "table header")
	}
	if len(hdrFrame) == 0 {
		p.bytes = r.src.Offset() - offset
		p.diag = r.diagnostic(p, fmt.Errorf("%w: table has no header", errs.ErrInvalidHeaderSize))

		return p, nil
	}

	h, err := section.ParseHeader(hdrFrame, r.session.Wire.Engine)
	if err == nil && len(nameFrame) != section.NameSize {
		err = fmt.Errorf("%w: name record is %d bytes", errs.ErrMalformedTable, len(nameFrame))
	}
	var codec table.Codec
	if err == nil {
		codec, err = r.session.Registry.Resolve(h)
	}
	if err != nil {
		if serr := r.skipRest(); serr != nil {
			r.done = true
			return nil, serr
		}
		p.bytes = r.src.Offset() - offset
		p.diag = r.diagnostic(p, err)

		return p, nil
	}

	raw := &table.RawTable{Name: p.name, Offset: offset, Header: h}
	for {
		frame, err := r.src.ReadFramedBlock()
		if err != nil {
			r.done = true
			return nil, truncatedAtEOF(err, "table trailer")
		}
		if len(frame) == 0 {
			break
		}
		raw.Frames = append(raw.Frames, frame)
	}

	p.raw = raw
	p.codec = codec
	p.bytes = r.src.Offset() - offset

	return p, nil
}

// skipRest consumes the frames of the current table up to its trailer.
func (r *Reader) skipRest() error {
	for {
		n, err := r.src.SkipFramedBlock()
		if err != nil {
			return truncatedAtEOF(err, "table trailer")
		}
		if n == 0 {
			return nil
		}
	}
}

func (r *Reader) diagnostic(p *pending, err error) *Diagnostic {
	return &Diagnostic{
		Name:   strings.TrimRight(p.name, " "),
		Offset: p.offset,
		Reason: reasonOf(err),
		Err:    err,
	}
}

// decode is safe to call concurrently for different tables.
func (r *Reader) decode(p *pending) Entry {
	e := Entry{Name: strings.TrimRight(p.name, " "), Offset: p.offset, bytes: p.bytes}
	if p.diag != nil {
		e.Kind = EntrySkipped
		e.Diagnostic = p.diag

		return e
	}

	start := time.Now()
	t, err := p.codec.Decode(r.session.Wire, p.raw)
	e.took = time.Since(start)
	if err != nil {
		e.Kind = EntrySkipped
		e.Diagnostic = r.diagnostic(p, err)

		return e
	}

	e.Table = t
	e.Kind = EntryResult
	if t.IsGeometry() {
		e.Kind = EntryGeometry
	}

	return e
}

func (r *Reader) record(ctx context.Context, e Entry) {
	s := r.session
	if e.Kind == EntrySkipped {
		d := e.Diagnostic
		s.summary.Diagnostics = append(s.summary.Diagnostics, *d)
		s.Metrics.TableSkipped(ctx, d.Reason.String(), e.bytes)
		s.Logger.Warn("skipped table",
			"table", d.Name,
			"offset", d.Offset,
			"reason", d.Reason.String(),
			"error", d.Err,
		)

		return
	}

	t := e.Table
	kind := format.KindResult
	if e.Kind == EntryGeometry {
		kind = format.KindGeometry
	}
	s.summary.Tables = append(s.summary.Tables, TableInfo{
		Name:     e.Name,
		Label:    table.Label(t.Key.Category.Code, t.Key.Category.ElementType),
		Key:      t.Key,
		Kind:     kind,
		Offset:   e.Offset,
		Entities: t.NumEntities(),
		Steps:    t.NumSteps(),
		Bytes:    e.bytes,
	})
	s.Metrics.TableDecoded(ctx, t.Key.Category.String(), e.bytes, e.took)
	s.Logger.Debug("decoded table",
		"table", e.Name,
		"offset", e.Offset,
		"key", t.Key.String(),
		"entities", t.NumEntities(),
		"steps", t.NumSteps(),
	)
}

// ReadInto reads every remaining table and merges it into st in archive order.
//
// Tables rejected by the store are reported as merge diagnostics. The archive
// attributes are recorded with st.SetInfo so the store can be written back
// identically.
//
// Parameters:
//   - ctx: checked between tables
//   - st: destination store
//
// Returns:
//   - Summary: the tables read and skipped, also on error
//   - error: a fatal framing error, a store error, or the context error
func (r *Reader) ReadInto(ctx context.Context, st *store.Store) (Summary, error) {
	info := store.ArchiveInfo{
		ByteOrder: r.session.Wire.Engine,
		Precision: r.session.Wire.Precision,
		Version:   r.session.Preamble.Version,
		Label:     r.session.Preamble.Label,
	}
	defer func() {
		info.Terminated = r.session.summary.Terminated
		st.SetInfo(info)
	}()

	if r.cfg.workers <= 1 {
		for {
			if err := ctx.Err(); err != nil {
				return r.Summary(), err
			}
			p, err := r.next()
			if errors.Is(err, io.EOF) {
				return r.Summary(), nil
			}
			if err != nil {
				return r.Summary(), err
			}
			if err := r.apply(ctx, st, r.decode(p)); err != nil {
				return r.Summary(), err
			}
		}
	}

	batchSize := r.cfg.workers * 4
	for !r.done {
		batch := make([]*pending, 0, batchSize)
		var readErr error
		for len(batch) < batchSize {
			if err := ctx.Err(); err != nil {
				readErr = err
				break
			}
			p, err := r.next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr = err
				}
				break
			}
			batch = append(batch, p)
		}

		entries := make([]Entry, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.workers)
		for i, p := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				entries[i] = r.decode(p)

				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return r.Summary(), err
		}

		for _, e := range entries {
			if err := r.apply(ctx, st, e); err != nil {
				return r.Summary(), err
			}
		}
		if readErr != nil {
			return r.Summary(), readErr
		}
	}

	return r.Summary(), nil
}

// apply merges a decoded entry into st and records it.
func (r *Reader) apply(ctx context.Context, st *store.Store, e Entry) error {
	if e.Kind != EntrySkipped {
		if err := st.Merge(e.Table); err != nil {
			if !errs.IsRecoverable(err) {
				return err
			}
			e.Kind = EntrySkipped
			e.Diagnostic = &Diagnostic{Name: e.Name, Offset: e.Offset, Reason: reasonOf(err), Err: err}
			e.Table = nil
		}
	}

	if e.Kind == EntryGeometry && r.cfg.geometry != nil {
		if err := r.cfg.geometry.AddTable(e.Table); err != nil {
			r.session.Logger.Warn("geometry table not indexed", "table", e.Name, "offset", e.Offset, "error", err)
		}
	}

	r.record(ctx, e)

	return nil
}

// Read reads an archive from r into st.
func Read(ctx context.Context, r io.Reader, st *store.Store, opts ...ReadOption) (Summary, error) {
	rd, err := NewReader(r, opts...)
	if err != nil {
		return Summary{}, err
	}

	return rd.ReadInto(ctx, st)
}

// ReadFile reads the archive at path into st.
func ReadFile(ctx context.Context, path string, st *store.Store, opts ...ReadOption) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	return Read(ctx, f, st, opts...)
}
