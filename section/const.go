package section

// Record sizes in bytes.
const (
	PreambleSize = 8   // identity frame: word size + version
	LabelSize    = 28  // tape label frame
	NameSize     = 8   // table name frame
	HeaderSize   = 128 // table header frame
	HeaderWords  = 16  // int32 words in the table header
	TitleSize    = HeaderSize - HeaderWords*4
)

// Sort code bits.
const (
	SortEntityMajorMask = 0x01 // bit 0: data framed per entity (by-entity-then-step)
	SortComplexMask     = 0x02 // bit 1: complex-valued quantities
	SortRandomMask      = 0x04 // bit 2: random-analysis aggregate
	SortReservedMask    = ^(SortEntityMajorMask | SortComplexMask | SortRandomMask)
)

// Header word positions.
const (
	wordApproach = iota
	wordTableCode
	wordElementType
	wordSubcase
	wordSortCode
	wordFormatCode
	wordNumWide
	wordWordSize
	wordVersion
	wordFunctionID
	wordStepCount
	wordEntityCount
	wordStepKind
	wordStatistic
	wordAux0
	wordAux1
)

// CurrentVersion is the archive format version written by default.
const CurrentVersion = 1
