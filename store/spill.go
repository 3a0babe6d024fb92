package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/arloliu/op2/compress"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/internal/hash"
	"github.com/arloliu/op2/internal/pool"
	"github.com/arloliu/op2/result"
)

// spillRef locates one table in the side file.
type spillRef struct {
	offset     int64
	length     int
	rawSize    int
	checksum   uint64
	footprint  int64
	entities   int
	steps      int
	dataLength int
}

// sideFile is the append-only secondary storage of a store. Entries are the
// entity ids, step values and data words of a table as little-endian 64-bit
// patterns, compressed with the configured codec. The checksum covers the
// uncompressed entry.
type sideFile struct {
	f      *os.File
	path   string
	offset int64
	codec  compress.Codec
	ct     format.CompressionType
}

func openSideFile(path string, ct format.CompressionType) (*sideFile, error) {
	codec, err := compress.Lookup(ct)
	if err != nil {
		return nil, err
	}

	var f *os.File
	if path == "" {
		f, err = os.CreateTemp("", "op2-spill-*.bin")
	} else {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	}
	if err != nil {
		return nil, fmt.Errorf("open spill file: %w", err)
	}

	return &sideFile{f: f, path: f.Name(), codec: codec, ct: ct}, nil
}

// write appends the numeric arrays of t.
func (sf *sideFile) write(t *result.Table) (spillRef, compress.Stats, error) {
	buf := pool.GetSpillBuffer()
	defer pool.PutSpillBuffer(buf)

	n := len(t.Entities) + len(t.Steps) + len(t.Data)
	buf.Grow(n * 8)
	for _, id := range t.Entities {
		buf.B = binary.LittleEndian.AppendUint64(buf.B, uint64(id)) //nolint:gosec // bit reinterpretation
	}
	for _, s := range t.Steps {
		buf.B = binary.LittleEndian.AppendUint64(buf.B, math.Float64bits(s))
	}
	for _, v := range t.Data {
		buf.B = binary.LittleEndian.AppendUint64(buf.B, math.Float64bits(v))
	}

	raw := buf.Bytes()
	packed, err := sf.codec.Compress(raw)
	if err != nil {
		return spillRef{}, compress.Stats{}, fmt.Errorf("compress %s: %w", t.Key, err)
	}

	if _, err := sf.f.WriteAt(packed, sf.offset); err != nil {
		return spillRef{}, compress.Stats{}, fmt.Errorf("write spill entry %s: %w", t.Key, err)
	}

	ref := spillRef{
		offset:     sf.offset,
		length:     len(packed),
		rawSize:    len(raw),
		checksum:   hash.Checksum(raw),
		footprint:  t.Footprint(),
		entities:   len(t.Entities),
		steps:      len(t.Steps),
		dataLength: len(t.Data),
	}
	sf.offset += int64(len(packed))

	stats := compress.Stats{
		Algorithm: sf.ct,
		Raw:       int64(len(raw)),
		Packed:    int64(len(packed)),
	}

	return ref, stats, nil
}

// read restores the numeric arrays of a spilled table into shell, a table with
// every attribute except Entities, Steps and Data.
func (sf *sideFile) read(ref spillRef, shell *result.Table) (*result.Table, error) {
	buf := pool.GetSpillBuffer()
	defer pool.PutSpillBuffer(buf)
	buf.ExtendOrGrow(ref.length)
	packed := buf.Bytes()
	if _, err := sf.f.ReadAt(packed, ref.offset); err != nil {
		return nil, fmt.Errorf("read spill entry %s: %w", shell.Key, err)
	}

	var (
		raw []byte
		err error
	)
	if sized, ok := sf.codec.(compress.SizedDecompressor); ok {
		raw, err = sized.DecompressSized(packed, ref.rawSize)
	} else {
		raw, err = sf.codec.Decompress(packed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrSpillChecksum, shell.Key, err)
	}
	if len(raw) != ref.rawSize || hash.Checksum(raw) != ref.checksum {
		return nil, fmt.Errorf("%w: %s", errs.ErrSpillChecksum, shell.Key)
	}

	t := shell.Clone()
	t.Entities = make([]int64, ref.entities)
	t.Steps = make([]float64, ref.steps)
	t.Data = make([]float64, ref.dataLength)

	pos := 0
	next := func() uint64 {
		v := binary.LittleEndian.Uint64(raw[pos:])
		pos += 8

		return v
	}
	for i := range t.Entities {
		t.Entities[i] = int64(next()) //nolint:gosec // bit reinterpretation
	}
	for i := range t.Steps {
		t.Steps[i] = math.Float64frombits(next())
	}
	for i := range t.Data {
		t.Data[i] = math.Float64frombits(next())
	}

	return t, nil
}

func (sf *sideFile) close() error {
	closeErr := sf.f.Close()
	if err := os.Remove(sf.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove spill file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close spill file: %w", closeErr)
	}

	return nil
}

// shellOf returns t without its numeric arrays.
func shellOf(t *result.Table) *result.Table {
	s := *t
	s.Entities, s.Steps, s.Data = nil, nil, nil
	s.Columns = append([]result.Column(nil), t.Columns...)
	s.Segments = nil
	s.Segments = append(s.Segments, t.Segments...)

	return &s
}
