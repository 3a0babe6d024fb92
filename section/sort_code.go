package section

import "github.com/arloliu/op2/format"

// SortCode is the packed sort code word of a table header.
type SortCode int32

// NewSortCode packs a sort order and the complex/random flags.
func NewSortCode(order format.SortOrder, complexValued, random bool) SortCode {
	var s SortCode
	if order == format.SortEntityMajor {
		s |= SortEntityMajorMask
	}
	if complexValued {
		s |= SortComplexMask
	}
	if random {
		s |= SortRandomMask
	}

	return s
}

// Order returns the physical layout of the table's data frames.
func (s SortCode) Order() format.SortOrder {
	if s&SortEntityMajorMask != 0 {
		return format.SortEntityMajor
	}

	return format.SortStepMajor
}

// IsComplex reports whether the complex bit is set.
func (s SortCode) IsComplex() bool {
	return s&SortComplexMask != 0
}

// IsRandom reports whether the random-analysis bit is set.
func (s SortCode) IsRandom() bool {
	return s&SortRandomMask != 0
}

// IsValid reports whether only defined bits are set.
func (s SortCode) IsValid() bool {
	return s&SortReservedMask == 0
}
