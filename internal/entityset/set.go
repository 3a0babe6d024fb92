// Package entityset tracks ordered, duplicate-free entity id sets.
//
// Decoders use a Set to reject tables that list an entity twice, and the store
// uses it to check that an incoming table covers every entity already stored
// before a merge is accepted.
package entityset

import (
	"fmt"

	"github.com/arloliu/op2/errs"
)

// Set is an insertion-ordered set of entity ids with O(1) index lookup.
type Set struct {
	index map[int64]int // id → position in order
	order []int64
}

// New creates an empty set with room for capacity ids.
func New(capacity int) *Set {
	return &Set{
		index: make(map[int64]int, capacity),
		order: make([]int64, 0, capacity),
	}
}

// FromIDs builds a set from ids, keeping their order.
// Returns ErrDuplicateEntity if an id appears twice.
func FromIDs(ids []int64) (*Set, error) {
	s := New(len(ids))
	for _, id := range ids {
		if err := s.Add(id); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Add appends id to the set. Returns ErrDuplicateEntity if id is already tracked.
func (s *Set) Add(id int64) error {
	if _, exists := s.index[id]; exists {
		return fmt.Errorf("%w: %d", errs.ErrDuplicateEntity, id)
	}

	s.index[id] = len(s.order)
	s.order = append(s.order, id)

	return nil
}

// Index returns the position of id in insertion order.
func (s *Set) Index(id int64) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Contains reports whether id is tracked.
func (s *Set) Contains(id int64) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of tracked ids.
func (s *Set) Len() int {
	return len(s.order)
}

// IDs returns the tracked ids in insertion order. The slice must not be modified.
func (s *Set) IDs() []int64 {
	return s.order
}

// MissingFrom returns the ids of s that other does not contain, in the order of s.
func (s *Set) MissingFrom(other *Set) []int64 {
	var missing []int64
	for _, id := range s.order {
		if !other.Contains(id) {
			missing = append(missing, id)
		}
	}

	return missing
}

// Equal reports whether s and other hold the same ids in the same order.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, id := range s.order {
		if other.order[i] != id {
			return false
		}
	}

	return true
}

// Reset clears the set while keeping its capacity.
func (s *Set) Reset() {
	clear(s.index)
	s.order = s.order[:0]
}
