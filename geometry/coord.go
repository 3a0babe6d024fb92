package geometry

import (
	"fmt"
	"math"

	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/table"
)

// CoordKind is the kind of a coordinate system.
type CoordKind uint8

const (
	Rectangular CoordKind = iota + 1
	// Cylindrical systems take (r, θ in degrees, z) components.
	Cylindrical
)

func (k CoordKind) String() string {
	switch k {
	case Rectangular:
		return "rectangular"
	case Cylindrical:
		return "cylindrical"
	default:
		return fmt.Sprintf("CoordKind(%d)", uint8(k))
	}
}

// Coord is a coordinate system defined by three points in its reference system.
//
// Origin and Axes are filled when the system is resolved: Origin is point A in
// the basic system and Axes are the unit x, y and z axes in the basic system.
type Coord struct {
	ID   int64
	Kind CoordKind
	RID  int64
	A    Vec
	B    Vec
	C    Vec

	Origin Vec
	Axes   [3]Vec

	resolved bool
}

func basic() *Coord {
	return &Coord{
		Kind:     Rectangular,
		Axes:     [3]Vec{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		resolved: true,
	}
}

func (c *Coord) definition() Coord {
	return Coord{ID: c.ID, Kind: c.Kind, RID: c.RID, A: c.A, B: c.B, C: c.C}
}

func (c *Coord) sameDefinition(o Coord) bool {
	return c.definition() == o.definition()
}

// local converts system components into local cartesian components.
func (c *Coord) local(p Vec) Vec {
	if c.Kind != Cylindrical {
		return p
	}
	s, co := math.Sincos(p[1] * math.Pi / 180)

	return Vec{p[0] * co, p[0] * s, p[2]}
}

func (c *Coord) rotate(v Vec) Vec {
	var out Vec
	for i := range 3 {
		out = add(out, scale(c.Axes[i], v[i]))
	}

	return out
}

// PointToBasic converts a position given in this system to the basic system.
// The system must be resolved.
func (c *Coord) PointToBasic(p Vec) Vec {
	return add(c.Origin, c.rotate(c.local(p)))
}

// VectorToBasic converts vector components given in this system at the basic
// position at to the basic system. The position only matters for cylindrical
// systems, whose radial and tangential directions vary with the angle.
func (c *Coord) VectorToBasic(v, at Vec) Vec {
	if c.Kind == Cylindrical {
		rel := sub(at, c.Origin)
		theta := math.Atan2(dot(rel, c.Axes[1]), dot(rel, c.Axes[0]))
		s, co := math.Sincos(theta)
		v = Vec{v[0]*co - v[1]*s, v[0]*s + v[1]*co, v[2]}
	}

	return c.rotate(v)
}

// Coord returns a coordinate system resolved to the basic system.
func (idx *Index) Coord(id int64) (Coord, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	c, err := idx.resolve(id, nil)
	if err != nil {
		return Coord{}, err
	}

	return *c, nil
}

// resolve must be called with the write lock held.
func (idx *Index) resolve(id int64, visiting map[int64]bool) (*Coord, error) {
	c, ok := idx.coords[id]
	if !ok {
		return nil, fmt.Errorf("%w: coordinate system %d is not defined", errs.ErrInvalidTable, id)
	}
	if c.resolved {
		return c, nil
	}
	if visiting[id] {
		return nil, fmt.Errorf("%w: coordinate system %d references itself", errs.ErrInvalidTable, id)
	}
	if visiting == nil {
		visiting = make(map[int64]bool)
	}
	visiting[id] = true

	ref, err := idx.resolve(c.RID, visiting)
	if err != nil {
		return nil, err
	}

	a, b, p := ref.PointToBasic(c.A), ref.PointToBasic(c.B), ref.PointToBasic(c.C)
	z, okZ := unit(sub(b, a))
	y, okY := unit(cross(z, sub(p, a)))
	if !okZ || !okY {
		return nil, fmt.Errorf("%w: coordinate system %d has collinear defining points", errs.ErrInvalidTable, id)
	}

	c.Origin = a
	c.Axes = [3]Vec{cross(y, z), y, z}
	c.resolved = true

	return c, nil
}

// PositionInBasic returns the position of a node in the basic system.
func (idx *Index) PositionInBasic(nodeID int64) (Vec, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pos, _, err := idx.nodeFrame(nodeID)

	return pos, err
}

// VectorToBasic converts vector components given in the output system of a node
// to the basic system.
func (idx *Index) VectorToBasic(nodeID int64, v Vec) (Vec, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pos, cd, err := idx.nodeFrame(nodeID)
	if err != nil {
		return Vec{}, err
	}

	return cd.VectorToBasic(v, pos), nil
}

// nodeFrame must be called with the write lock held.
func (idx *Index) nodeFrame(nodeID int64) (Vec, *Coord, error) {
	n, ok := idx.nodes[nodeID]
	if !ok {
		return Vec{}, nil, fmt.Errorf("%w: node %d is not defined", errs.ErrInvalidTable, nodeID)
	}
	cp, err := idx.resolve(n.CP, nil)
	if err != nil {
		return Vec{}, nil, fmt.Errorf("node %d: %w", nodeID, err)
	}
	cd, err := idx.resolve(n.CD, nil)
	if err != nil {
		return Vec{}, nil, fmt.Errorf("node %d: %w", nodeID, err)
	}

	return cp.PointToBasic(n.Position), cd, nil
}

var vectorTriples = [][3]string{{"t1", "t2", "t3"}, {"r1", "r2", "r3"}}

// TransformToBasic returns a copy of a node-vector table with translations and
// rotations converted from each node's output system to the basic system.
//
// Complex tables in real/imaginary form are rotated component by component;
// magnitude/phase tables cannot be rotated and are rejected.
//
// Parameters:
//   - t: a table using the node-vector layout
//
// Returns:
//   - *result.Table: the transformed copy
//   - error: ErrInvalidTable for other layouts, magnitude/phase tables, or
//     nodes and systems missing from the index
func (idx *Index) TransformToBasic(t *result.Table) (*result.Table, error) {
	if t.Layout != table.NodeVectorLayout {
		return nil, fmt.Errorf("%w: %s is not a node-vector table", errs.ErrInvalidTable, t.Key)
	}
	if t.Meta.Format == format.FormatMagPhase {
		return nil, fmt.Errorf("%w: %s is in magnitude/phase form", errs.ErrInvalidTable, t.Key)
	}

	parts := []int{0}
	if t.Meta.Format.IsComplex() {
		parts = append(parts, 1)
	}

	var triples [][3]int
	for _, names := range vectorTriples {
		for _, part := range parts {
			var tri [3]int
			for i, name := range names {
				c, ok := t.ColumnIndex(name, part)
				if !ok {
					return nil, fmt.Errorf("%w: %s lacks column %s", errs.ErrInvalidTable, t.Key, name)
				}
				tri[i] = c
			}
			triples = append(triples, tri)
		}
	}

	out := t.Clone()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for e, id := range out.Entities {
		pos, cd, err := idx.nodeFrame(id)
		if err != nil {
			return nil, err
		}
		if cd.ID == 0 && cd.Kind == Rectangular {
			continue
		}
		for s := range out.Steps {
			row := out.Row(e, s)
			for _, tri := range triples {
				v := cd.VectorToBasic(Vec{row[tri[0]], row[tri[1]], row[tri[2]]}, pos)
				row[tri[0]], row[tri[1]], row[tri[2]] = v[0], v[1], v[2]
			}
		}
	}

	return out, nil
}

func add(a, b Vec) Vec { return Vec{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

func sub(a, b Vec) Vec { return Vec{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func scale(a Vec, k float64) Vec { return Vec{a[0] * k, a[1] * k, a[2] * k} }

func dot(a, b Vec) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func cross(a, b Vec) Vec {
	return Vec{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func unit(a Vec) (Vec, bool) {
	n := math.Sqrt(dot(a, a))
	if n == 0 {
		return Vec{}, false
	}

	return scale(a, 1/n), true
}
