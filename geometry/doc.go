// Package geometry indexes the node, element and coordinate-system definitions
// carried by an archive and transforms node-vector results into the basic system.
//
// Coordinate systems are defined by three points A (origin), B (on the z axis)
// and C (in the x-z plane) given in a reference system. Definitions are stored
// as read and resolved to the basic system on first use, so systems may be
// added in any order and may reference systems defined later.
//
// Example:
//
//	idx, err := geometry.FromTables(store.Geometry()...)
//	if err != nil {
//	    return err
//	}
//	pos, err := idx.PositionInBasic(101)
package geometry
