// Package store holds decoded tables keyed by category, subcase, sort order and
// function id, merges repeated tables, and optionally moves tables to a side
// file on secondary storage.
//
// A Store is safe for concurrent use. Queries share a read lock; merges and
// spills take the write lock. Tables returned by queries are shared and must
// be treated as read-only.
//
// Spilled tables keep their attributes in memory and re-hydrate on the next
// query. Re-hydrated tables are held in a bounded LRU cache and are never
// written back, so the in-memory footprint stays under the spill threshold.
package store

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/internal/options"
	"github.com/arloliu/op2/observability"
	"github.com/arloliu/op2/result"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ArchiveInfo records the archive-wide attributes of the archive a store was
// read from, so it can be written back identically.
type ArchiveInfo struct {
	// ByteOrder is nil when the store was not read from an archive.
	ByteOrder endian.EndianEngine
	Precision format.Precision
	Version   int32
	// Label is the raw 28-byte tape label.
	Label string
	// Terminated reports whether the archive ended with the end-of-archive sentinel.
	Terminated bool
}

// Arrival is one step of the order in which tables reached the store.
type Arrival struct {
	// Kind tells whether the arrival is a result segment or a geometry table.
	Kind format.Kind
	// Key and Segment locate a result segment.
	Key     result.Key
	Segment int
	// Geometry indexes Store.Geometry for geometry arrivals.
	Geometry int
}

type entry struct {
	// table is nil while the table is spilled.
	table *result.Table
	shell *result.Table
	ref   spillRef
	// pending holds merged tables not yet coalesced into table, oldest first.
	pending  []*result.Table
	segments int
}

// tail returns the latest table merged under the entry, which decides whether
// the next merge is accepted.
func (s *Store) tail(e *entry) (*result.Table, error) {
	if n := len(e.pending); n > 0 {
		return e.pending[n-1], nil
	}

	return s.load(e)
}

func (e *entry) spilled() bool {
	return e.table == nil
}

// Stats summarizes the state of a store.
type Stats struct {
	Tables         int
	GeometryTables int
	Spilled        int
	// InMemoryBytes is the footprint of the tables held in memory, excluding
	// the re-hydration cache.
	InMemoryBytes int64
	// SpilledBytes is the footprint of the spilled tables before compression.
	SpilledBytes int64
	// SideFileBytes is the compressed size of the side file.
	SideFileBytes int64
}

// Store holds decoded result and geometry tables.
type Store struct {
	mu       sync.RWMutex
	cfg      config
	entries  map[result.Key]*entry
	keys     []result.Key
	geometry []*result.Table
	arrivals []Arrival
	info     ArchiveInfo
	inMemory int64
	side     *sideFile
	cache    *lru.Cache[result.Key, *result.Table]
	closed   bool
}

// New creates an empty store.
//
// Parameters:
//   - opts: spill threshold, side file path, compression, cache size, logger, metrics
//
// Returns:
//   - *Store: the new store
//   - error: if an option is invalid
func New(opts ...Option) (*Store, error) {
	cfg := config{
		compression: format.CompressionS2,
		cacheSize:   DefaultCacheSize,
		logger:      observability.Discard(),
		metrics:     observability.Global(),
	}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	cache, err := lru.New[result.Key, *result.Table](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create hydration cache: %w", err)
	}

	return &Store{
		cfg:     cfg,
		entries: make(map[result.Key]*entry),
		cache:   cache,
	}, nil
}

// SetInfo records the attributes of the source archive.
func (s *Store) SetInfo(info ArchiveInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info = info
}

// Info returns the attributes of the source archive.
func (s *Store) Info() ArchiveInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.info
}

// Merge inserts a table, or appends its steps to the stored table with the
// same key. The store takes ownership of t.
//
// Geometry tables are kept in arrival order and never merged.
//
// Accepted steps are queued and folded into the stored table by the next
// query or spill, so a table built from many merges is copied once.
//
// On error the stored table is left untouched.
//
// Parameters:
//   - t: a decoded table
//
// Returns:
//   - error: ErrInvalidTable if t is structurally invalid, ErrInconsistentMerge
//     if it cannot extend the stored table, ErrStoreClosed after Close, or a
//     side file error when spilling
func (s *Store) Merge(t *result.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errs.ErrStoreClosed
	}

	if t.IsGeometry() {
		s.geometry = append(s.geometry, t)
		s.arrivals = append(s.arrivals, Arrival{Kind: format.KindGeometry, Geometry: len(s.geometry) - 1})

		return nil
	}

	e, exists := s.entries[t.Key]
	if !exists {
		s.entries[t.Key] = &entry{table: t, segments: len(t.Segments)}
		s.keys = append(s.keys, t.Key)
		s.inMemory += t.Footprint()
		for i := range t.Segments {
			s.arrivals = append(s.arrivals, Arrival{Kind: format.KindResult, Key: t.Key, Segment: i})
		}

		return s.enforceThreshold()
	}

	tail, err := s.tail(e)
	if err != nil {
		return err
	}
	if err := checkMerge(tail, t); err != nil {
		return err
	}

	e.pending = append(e.pending, t)
	s.inMemory += t.Footprint()
	for range t.Segments {
		s.arrivals = append(s.arrivals, Arrival{Kind: format.KindResult, Key: t.Key, Segment: e.segments})
		e.segments++
	}

	return s.enforceThreshold()
}

// coalescePending folds the pending merges of e into one table. The caller
// holds the write lock.
func (s *Store) coalescePending(e *entry) error {
	if len(e.pending) == 0 {
		return nil
	}

	base, err := s.load(e)
	if err != nil {
		return err
	}
	merged := coalesce(base, e.pending)

	if e.spilled() {
		s.cache.Remove(base.Key)
		e.shell = nil
		e.ref = spillRef{}
	} else {
		s.inMemory -= base.Footprint()
	}
	for _, p := range e.pending {
		s.inMemory -= p.Footprint()
	}
	e.pending = nil
	e.table = merged
	s.inMemory += merged.Footprint()

	return nil
}

// load returns the table of e, re-hydrating it if needed. The caller holds a lock.
func (s *Store) load(e *entry) (*result.Table, error) {
	if !e.spilled() {
		return e.table, nil
	}
	if t, ok := s.cache.Get(e.shell.Key); ok {
		return t, nil
	}

	t, err := s.side.read(e.ref, e.shell)
	if err != nil {
		return nil, err
	}
	s.cache.Add(e.shell.Key, t)
	s.cfg.metrics.Hydrated(context.Background())
	s.cfg.logger.Debug("hydrated table", "key", t.Key.String(), "bytes", e.ref.footprint)

	return t, nil
}

// enforceThreshold spills the largest in-memory tables until the footprint is
// at most the threshold. The caller holds the write lock.
func (s *Store) enforceThreshold() error {
	if s.cfg.threshold <= 0 || s.inMemory <= s.cfg.threshold {
		return nil
	}

	return s.spillDownTo(s.cfg.threshold)
}

func (s *Store) spillDownTo(limit int64) error {
	if s.side == nil {
		side, err := openSideFile(s.cfg.path, s.cfg.compression)
		if err != nil {
			return err
		}
		s.side = side
	}

	var resident []*entry
	for _, e := range s.entries {
		if e.spilled() && len(e.pending) == 0 {
			continue
		}
		if err := s.coalescePending(e); err != nil {
			return err
		}
		resident = append(resident, e)
	}
	slices.SortFunc(resident, func(a, b *entry) int {
		return cmp.Or(
			cmp.Compare(b.table.Footprint(), a.table.Footprint()),
			a.table.Key.Compare(b.table.Key),
		)
	})

	for _, e := range resident {
		if s.inMemory <= limit {
			break
		}
		if err := s.spill(e); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) spill(e *entry) error {
	t := e.table

	ref, stats, err := s.side.write(t)
	if err != nil {
		return err
	}

	e.ref = ref
	e.shell = shellOf(t)
	e.table = nil
	s.inMemory -= ref.footprint

	s.cfg.metrics.Spilled(context.Background(), stats.Algorithm.String(), stats.Packed)
	s.cfg.logger.Debug("spilled table",
		"key", t.Key.String(),
		"bytes", stats.Raw,
		"compressed", stats.Packed,
		"ratio", stats.Ratio(),
	)

	return nil
}

// StreamToSecondaryStorage moves tables to the side file at path until the
// in-memory footprint is at most the spill threshold. Without a threshold every
// table is moved. Spilled tables re-hydrate transparently on the next query.
//
// Parameters:
//   - path: side file path; ignored if the store already has a side file, and
//     a temporary file is used when both are empty
//
// Returns:
//   - error: ErrStoreClosed after Close, or a side file error
func (s *Store) StreamToSecondaryStorage(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errs.ErrStoreClosed
	}
	if s.side == nil && path != "" {
		s.cfg.path = path
	}

	return s.spillDownTo(s.cfg.threshold)
}

// Get returns the table stored under key.
//
// Returns:
//   - *result.Table: the shared table
//   - error: ErrTableNotFound, ErrSpillChecksum if a spilled table is corrupted,
//     or ErrStoreClosed after Close
func (s *Store) Get(key result.Key) (*result.Table, error) {
	s.mu.RLock()
	e, err := s.lookup(key)
	if err == nil && len(e.pending) == 0 {
		t, err := s.load(e)
		s.mu.RUnlock()

		return t, err
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Lookup again: the store may have changed while unlocked.
	if e, err = s.lookup(key); err != nil {
		return nil, err
	}
	if err := s.coalescePending(e); err != nil {
		return nil, err
	}

	return s.load(e)
}

func (s *Store) lookup(key result.Key) (*entry, error) {
	if s.closed {
		return nil, errs.ErrStoreClosed
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrTableNotFound, key)
	}

	return e, nil
}

// Query returns the deterministic table of a category for one subcase and sort
// order. Random tables are addressed with Get, as they also carry a function id.
func (s *Store) Query(category result.Category, subcase int32, sort format.SortOrder) (*result.Table, error) {
	return s.Get(result.Key{Category: category, Subcase: subcase, Sort: sort})
}

// Has reports whether a table is stored under key.
func (s *Store) Has(key result.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[key]

	return ok
}

// Keys returns the stored keys in order of first arrival.
func (s *Store) Keys() []result.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.keys)
}

// SortedKeys returns the stored keys ordered by category, subcase, sort order
// and function id.
func (s *Store) SortedKeys() []result.Key {
	keys := s.Keys()
	slices.SortFunc(keys, result.Key.Compare)

	return keys
}

// Find returns the keys of one category in sorted order.
func (s *Store) Find(category result.Category) []result.Key {
	var out []result.Key
	for _, k := range s.SortedKeys() {
		if k.Category == category {
			out = append(out, k)
		}
	}

	return out
}

// Tables iterates the stored tables in sorted key order. Iteration stops at
// the first error, which is yielded with a nil table.
func (s *Store) Tables() iter.Seq2[*result.Table, error] {
	return func(yield func(*result.Table, error) bool) {
		for _, k := range s.SortedKeys() {
			t, err := s.Get(k)
			if !yield(t, err) || err != nil {
				return
			}
		}
	}
}

// Geometry returns the geometry tables in arrival order.
func (s *Store) Geometry() []*result.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.geometry)
}

// Arrivals returns the order in which result segments and geometry tables
// reached the store.
func (s *Store) Arrivals() []Arrival {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.arrivals)
}

// Len returns the number of result tables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// IsSpilled reports whether the table under key is held in the side file.
func (s *Store) IsSpilled(key result.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]

	return ok && e.spilled()
}

// Stats returns a summary of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Tables:         len(s.entries),
		GeometryTables: len(s.geometry),
		InMemoryBytes:  s.inMemory,
	}
	for _, e := range s.entries {
		if e.spilled() {
			st.Spilled++
			st.SpilledBytes += e.ref.footprint
		}
	}
	if s.side != nil {
		st.SideFileBytes = s.side.offset
	}

	return st
}

// SpillCompression returns the codec used for side file entries.
func (s *Store) SpillCompression() format.CompressionType {
	return s.cfg.compression
}

// Close releases the store and removes the side file. Queries fail afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.entries = nil
	s.cache.Purge()

	if s.side == nil {
		return nil
	}
	err := s.side.close()
	s.side = nil

	return err
}
