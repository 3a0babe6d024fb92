package geometry

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/table"
)

// Vec is a point or vector in three dimensions.
type Vec [3]float64

// Node is a grid point.
type Node struct {
	ID int64
	// CP is the system the position is given in.
	CP int64
	// Position is in the CP system.
	Position Vec
	// CD is the system node-vector results are expressed in.
	CD   int64
	PS   int64
	SEID int64
}

// ElementKind identifies an element family.
type ElementKind uint8

const (
	ElementRod ElementKind = iota + 1
	ElementQuad4
	ElementTria3
)

func (k ElementKind) String() string {
	switch k {
	case ElementRod:
		return "CROD"
	case ElementQuad4:
		return "CQUAD4"
	case ElementTria3:
		return "CTRIA3"
	default:
		return fmt.Sprintf("ElementKind(%d)", uint8(k))
	}
}

// Element is an element and its connectivity.
type Element struct {
	ID    int64
	Kind  ElementKind
	PID   int64
	Nodes []int64
}

// Index holds geometry definitions. It is safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	nodes    map[int64]Node
	elements map[int64]Element
	coords   map[int64]*Coord
	byNode   map[int64][]int64
}

// New creates an empty index holding only the basic system 0.
func New() *Index {
	return &Index{
		nodes:    make(map[int64]Node),
		elements: make(map[int64]Element),
		coords:   map[int64]*Coord{0: basic()},
		byNode:   make(map[int64][]int64),
	}
}

// FromTables builds an index from decoded geometry tables.
func FromTables(tables ...*result.Table) (*Index, error) {
	idx := New()
	for _, t := range tables {
		if err := idx.AddTable(t); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

// AddTable adds the definitions of one decoded geometry table.
//
// Definitions are taken from the first step of the table. Redefining an id with
// a different definition fails; an identical redefinition is ignored.
//
// Parameters:
//   - t: a geometry table decoded by one of the built-in geometry codecs
//
// Returns:
//   - error: ErrUnknownGeometry for tables the index cannot interpret,
//     ErrInvalidTable for conflicting or inconsistent definitions
func (idx *Index) AddTable(t *result.Table) error {
	if !t.IsGeometry() {
		return fmt.Errorf("%w: %s is not a geometry table", errs.ErrUnknownGeometry, t.Key)
	}
	if t.NumSteps() == 0 {
		return nil
	}

	var add func(id int64, row []float64) error
	switch t.Key.Category.Code {
	case table.CodeGrid:
		add = func(id int64, row []float64) error {
			return idx.AddNode(Node{
				ID:       id,
				CP:       int64(row[0]),
				Position: Vec{row[1], row[2], row[3]},
				CD:       int64(row[4]),
				PS:       int64(row[5]),
				SEID:     int64(row[6]),
			})
		}
	case table.CodeCord2R, table.CodeCord2C:
		kind := Rectangular
		if t.Key.Category.Code == table.CodeCord2C {
			kind = Cylindrical
		}
		add = func(id int64, row []float64) error {
			return idx.AddCoord(Coord{
				ID:   id,
				Kind: kind,
				RID:  int64(row[0]),
				A:    Vec{row[1], row[2], row[3]},
				B:    Vec{row[4], row[5], row[6]},
				C:    Vec{row[7], row[8], row[9]},
			})
		}
	case table.CodeRod, table.CodeQuad4, table.CodeTria3:
		kind := map[int32]ElementKind{
			table.CodeRod:   ElementRod,
			table.CodeQuad4: ElementQuad4,
			table.CodeTria3: ElementTria3,
		}[t.Key.Category.Code]
		add = func(id int64, row []float64) error {
			nodes := make([]int64, len(row)-1)
			for i, v := range row[1:] {
				nodes[i] = int64(v)
			}

			return idx.AddElement(Element{ID: id, Kind: kind, PID: int64(row[0]), Nodes: nodes})
		}
	default:
		return fmt.Errorf("%w: category %s", errs.ErrUnknownGeometry, t.Key.Category)
	}

	for e, id := range t.Entities {
		if err := add(id, t.Row(e, 0)); err != nil {
			return err
		}
	}

	return nil
}

// AddNode adds a grid point.
func (idx *Index) AddNode(n Node) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.nodes[n.ID]; ok {
		if old == n {
			return nil
		}

		return fmt.Errorf("%w: node %d redefined", errs.ErrInvalidTable, n.ID)
	}
	idx.nodes[n.ID] = n

	return nil
}

// AddElement adds an element and indexes it under each of its nodes.
func (idx *Index) AddElement(e Element) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.elements[e.ID]; ok {
		if old.Kind == e.Kind && old.PID == e.PID && slices.Equal(old.Nodes, e.Nodes) {
			return nil
		}

		return fmt.Errorf("%w: element %d redefined", errs.ErrInvalidTable, e.ID)
	}

	e.Nodes = slices.Clone(e.Nodes)
	idx.elements[e.ID] = e
	for _, n := range e.Nodes {
		if !slices.Contains(idx.byNode[n], e.ID) {
			idx.byNode[n] = append(idx.byNode[n], e.ID)
		}
	}

	return nil
}

// AddCoord adds a coordinate system definition. It is resolved on first use.
func (idx *Index) AddCoord(c Coord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if c.ID == 0 {
		return fmt.Errorf("%w: system 0 is the basic system", errs.ErrInvalidTable)
	}
	if old, ok := idx.coords[c.ID]; ok {
		if old.sameDefinition(c) {
			return nil
		}

		return fmt.Errorf("%w: coordinate system %d redefined", errs.ErrInvalidTable, c.ID)
	}
	idx.coords[c.ID] = &c

	return nil
}

// Node returns a grid point.
func (idx *Index) Node(id int64) (Node, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n, ok := idx.nodes[id]

	return n, ok
}

// Element returns an element.
func (idx *Index) Element(id int64) (Element, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.elements[id]
	e.Nodes = slices.Clone(e.Nodes)

	return e, ok
}

// ElementsOfNode returns the ids of the elements connected to a node, ascending.
func (idx *Index) ElementsOfNode(id int64) []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := slices.Clone(idx.byNode[id])
	slices.Sort(ids)

	return ids
}

// NodeIDs returns all node ids, ascending.
func (idx *Index) NodeIDs() []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return slices.Sorted(maps.Keys(idx.nodes))
}

// Counts returns the number of nodes, elements and coordinate systems,
// excluding the basic system.
func (idx *Index) Counts() (nodes, elements, coords int) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.nodes), len(idx.elements), len(idx.coords) - 1
}

// Merge adds every definition of o to idx.
func (idx *Index) Merge(o *Index) error {
	o.mu.RLock()
	nodes := slices.Collect(maps.Values(o.nodes))
	elements := slices.Collect(maps.Values(o.elements))
	coords := make([]Coord, 0, len(o.coords))
	for id, c := range o.coords {
		if id != 0 {
			coords = append(coords, c.definition())
		}
	}
	o.mu.RUnlock()

	for _, c := range coords {
		if err := idx.AddCoord(c); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		if err := idx.AddNode(n); err != nil {
			return err
		}
	}
	for _, e := range elements {
		if err := idx.AddElement(e); err != nil {
			return err
		}
	}

	return nil
}
