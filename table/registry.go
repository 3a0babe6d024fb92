package table

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/arloliu/op2/encoding"
	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/section"
)

// ID is the registry key of a codec: the category code and element type of a
// table header plus the table layout version. The statistic is not part of the
// ID; random aggregates share the codec of their deterministic category.
type ID struct {
	Code        int32
	ElementType int32
	Version     int32
}

func (id ID) String() string {
	return fmt.Sprintf("%d/%d v%d", id.Code, id.ElementType, id.Version)
}

// Compare orders IDs by code, element type, then version.
func (id ID) Compare(o ID) int {
	if c := cmp.Compare(id.Code, o.Code); c != 0 {
		return c
	}
	if c := cmp.Compare(id.ElementType, o.ElementType); c != 0 {
		return c
	}

	return cmp.Compare(id.Version, o.Version)
}

// IDOf returns the registry key addressed by a table header.
func IDOf(h section.Header) ID {
	return ID{Code: h.TableCode, ElementType: h.ElementType, Version: h.Version}
}

// Wire carries the archive-wide encoding parameters a codec needs. It is fixed
// for the lifetime of one read or write session.
type Wire struct {
	Engine    endian.EndianEngine
	Precision format.Precision
}

// RawTable is one table as read from the archive, before decoding.
type RawTable struct {
	// Name is the raw 8-byte table name.
	Name string
	// Offset is the archive offset of the name frame.
	Offset int64
	// Header is the parsed header record.
	Header section.Header
	// Frames are the data frame payloads, excluding the trailer.
	Frames [][]byte
}

// Size returns the payload bytes held by the data frames.
func (r *RawTable) Size() int64 {
	var n int64
	for _, f := range r.Frames {
		n += int64(len(f))
	}

	return n
}

// Codec decodes and encodes the tables of one category.
//
// Decode must be a pure function of its arguments so that tables can be decoded
// concurrently. Encode appends complete framed records (name, header, data frames
// and trailer) for one segment of a table.
type Codec interface {
	// Layout returns the row layout of the category.
	Layout() *result.Layout
	// DefaultName returns the table name used when none is recorded.
	DefaultName() string
	// Decode converts a raw table into canonical entity-major form.
	Decode(w Wire, raw *RawTable) (*result.Table, error)
	// Encode appends the framed records of one segment of t.
	Encode(w Wire, t *result.Table, seg result.Segment, a *encoding.Appender) error
}

// Registry maps (category, version) to codecs. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[ID]Codec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[ID]Codec)}
}

// Register adds a codec. Returns ErrDuplicateCodec if id is already registered.
func (r *Registry) Register(id ID, codec Codec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codecs[id]; exists {
		return fmt.Errorf("%w: %s", errs.ErrDuplicateCodec, id)
	}
	r.codecs[id] = codec

	return nil
}

// MustRegister is like Register but panics on error. It is intended for
// package-level catalog construction.
func (r *Registry) MustRegister(id ID, codec Codec) {
	if err := r.Register(id, codec); err != nil {
		panic(err)
	}
}

// Lookup returns the codec registered for id.
func (r *Registry) Lookup(id ID) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codecs[id]

	return c, ok
}

// Resolve returns the codec for a table header, or ErrUnrecognizedTable.
func (r *Registry) Resolve(h section.Header) (Codec, error) {
	id := IDOf(h)
	if c, ok := r.Lookup(id); ok {
		return c, nil
	}

	return nil, fmt.Errorf("%w: category %s", errs.ErrUnrecognizedTable, id)
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	ids := make([]ID, 0, len(r.codecs))
	for id := range r.codecs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.SortFunc(ids, ID.Compare)

	return ids
}

// Len returns the number of registered codecs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.codecs)
}

// Clone returns an independent copy of the registry, so callers can extend the
// built-in catalog without affecting other sessions.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRegistry()
	for id, codec := range r.codecs {
		c.codecs[id] = codec
	}

	return c
}
