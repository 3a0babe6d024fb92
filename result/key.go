package result

import (
	"cmp"
	"fmt"

	"github.com/arloliu/op2/format"
)

// Category identifies a kind of result table.
//
// Code is the table code of the header, ElementType separates element families
// sharing a code (rod, quad4 and tria3 stress all use code 5), and Statistic is
// non-zero for random-analysis aggregates.
type Category struct {
	Code        int32
	ElementType int32
	Statistic   format.Statistic
}

func (c Category) String() string {
	s := fmt.Sprintf("%d", c.Code)
	if c.ElementType != 0 {
		s += fmt.Sprintf("/%d", c.ElementType)
	}
	if c.Statistic != format.StatNone {
		s += "/" + c.Statistic.String()
	}

	return s
}

// Compare orders categories by code, element type and statistic.
func (c Category) Compare(o Category) int {
	return cmp.Or(
		cmp.Compare(c.Code, o.Code),
		cmp.Compare(c.ElementType, o.ElementType),
		cmp.Compare(c.Statistic, o.Statistic),
	)
}

// Key identifies one table in a store.
type Key struct {
	Category   Category
	Subcase    int32
	Sort       format.SortOrder
	FunctionID int32
}

func (k Key) String() string {
	s := fmt.Sprintf("%s subcase=%d sort=%s", k.Category, k.Subcase, k.Sort)
	if k.FunctionID != 0 {
		s += fmt.Sprintf(" function=%d", k.FunctionID)
	}

	return s
}

// Compare orders keys by category, subcase, sort order and function id.
func (k Key) Compare(o Key) int {
	return cmp.Or(
		k.Category.Compare(o.Category),
		cmp.Compare(k.Subcase, o.Subcase),
		cmp.Compare(k.Sort, o.Sort),
		cmp.Compare(k.FunctionID, o.FunctionID),
	)
}
