package format

import "fmt"

type (
	// Precision is the word width of an archive: every integer and float field
	// occupies one word.
	Precision uint8
	// SortOrder is the physical layout convention of a table's data frames.
	SortOrder uint8
	// ValueFormat declares how a table stores its quantities.
	ValueFormat uint8
	// StepKind declares what the step dimension of a table measures.
	StepKind uint8
	// Statistic identifies the random-analysis aggregate a table holds.
	Statistic uint8
	// FieldKind is the storage kind of one layout field.
	FieldKind uint8
	// ComplexStyle declares how the two components of complex fields are arranged in a row.
	ComplexStyle uint8
	// Kind separates result tables from geometry definition tables.
	Kind uint8
	// CompressionType selects the codec used for spilled table payloads.
	CompressionType uint8
)

const (
	PrecisionSingle Precision = 0x1 // PrecisionSingle stores 4-byte words (int32, float32).
	PrecisionDouble Precision = 0x2 // PrecisionDouble stores 8-byte words (int64, float64).
)

const (
	// SortStepMajor lays out all entities of one step contiguously (by-step-then-entity).
	SortStepMajor SortOrder = 0x0
	// SortEntityMajor lays out all steps of one entity contiguously (by-entity-then-step).
	SortEntityMajor SortOrder = 0x1
)

const (
	FormatReal     ValueFormat = 0x1 // FormatReal stores real quantities.
	FormatRealImag ValueFormat = 0x2 // FormatRealImag stores complex quantities as real/imaginary pairs.
	FormatMagPhase ValueFormat = 0x3 // FormatMagPhase stores complex quantities as magnitude/phase (degrees) pairs.
)

const (
	StepNone        StepKind = 0x0 // StepNone is a single static step.
	StepTime        StepKind = 0x1 // StepTime steps are time values.
	StepFrequency   StepKind = 0x2 // StepFrequency steps are frequencies in Hz.
	StepMode        StepKind = 0x3 // StepMode steps are mode numbers.
	StepLoadFactor  StepKind = 0x4 // StepLoadFactor steps are nonlinear load factors.
	StepDesignCycle StepKind = 0x5 // StepDesignCycle steps are optimization design cycles.
)

const (
	StatNone Statistic = 0x0 // StatNone marks a deterministic table.
	StatPSD  Statistic = 0x1 // StatPSD is an auto power spectral density.
	StatATO  Statistic = 0x2 // StatATO is an auto-correlation function.
	StatRMS  Statistic = 0x3 // StatRMS is a root mean square.
	StatCRM  Statistic = 0x4 // StatCRM is a cumulative root mean square.
	StatNO   Statistic = 0x5 // StatNO is the number of zero crossings.
)

const (
	FieldInt     FieldKind = 0x1 // FieldInt is an integer word.
	FieldFloat   FieldKind = 0x2 // FieldFloat is a real word, or two words in complex tables.
	FieldComplex FieldKind = 0x3 // FieldComplex is always a pair of words.
)

const (
	// ComplexBlock stores all first components of a row, then all second components.
	ComplexBlock ComplexStyle = 0x0
	// ComplexInterleaved stores the two components of each field next to each other.
	ComplexInterleaved ComplexStyle = 0x1
)

const (
	KindResult   Kind = 0x1 // KindResult tables hold analysis output.
	KindGeometry Kind = 0x2 // KindGeometry tables hold node, element and coordinate system definitions.
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

// WordSize returns the byte width of one word, or 0 for an unknown precision.
func (p Precision) WordSize() int {
	switch p {
	case PrecisionSingle:
		return 4
	case PrecisionDouble:
		return 8
	default:
		return 0
	}
}

// IsValid reports whether p is a known precision.
func (p Precision) IsValid() bool {
	return p == PrecisionSingle || p == PrecisionDouble
}

func (p Precision) String() string {
	switch p {
	case PrecisionSingle:
		return "Single"
	case PrecisionDouble:
		return "Double"
	default:
		return "Unknown"
	}
}

// PrecisionFromWordSize maps a declared word size to a Precision.
func PrecisionFromWordSize(size int) (Precision, error) {
	switch size {
	case 4:
		return PrecisionSingle, nil
	case 8:
		return PrecisionDouble, nil
	default:
		return 0, fmt.Errorf("unsupported word size: %d", size)
	}
}

// ParsePrecision parses "single" or "double".
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "single", "Single", "4":
		return PrecisionSingle, nil
	case "double", "Double", "8":
		return PrecisionDouble, nil
	default:
		return 0, fmt.Errorf("invalid precision: %q", s)
	}
}

func (s SortOrder) String() string {
	switch s {
	case SortStepMajor:
		return "StepMajor"
	case SortEntityMajor:
		return "EntityMajor"
	default:
		return "Unknown"
	}
}

// IsValid reports whether s is a known sort order.
func (s SortOrder) IsValid() bool {
	return s == SortStepMajor || s == SortEntityMajor
}

// IsComplex reports whether quantities are stored as pairs of words.
func (f ValueFormat) IsComplex() bool {
	return f == FormatRealImag || f == FormatMagPhase
}

// IsValid reports whether f is a known value format.
func (f ValueFormat) IsValid() bool {
	return f >= FormatReal && f <= FormatMagPhase
}

func (f ValueFormat) String() string {
	switch f {
	case FormatReal:
		return "Real"
	case FormatRealImag:
		return "RealImag"
	case FormatMagPhase:
		return "MagPhase"
	default:
		return "Unknown"
	}
}

// IsInteger reports whether step values of this kind are stored as integer words.
func (k StepKind) IsInteger() bool {
	return k == StepNone || k == StepMode || k == StepDesignCycle
}

// IsValid reports whether k is a known step kind.
func (k StepKind) IsValid() bool {
	return k <= StepDesignCycle
}

func (k StepKind) String() string {
	switch k {
	case StepNone:
		return "None"
	case StepTime:
		return "Time"
	case StepFrequency:
		return "Frequency"
	case StepMode:
		return "Mode"
	case StepLoadFactor:
		return "LoadFactor"
	case StepDesignCycle:
		return "DesignCycle"
	default:
		return "Unknown"
	}
}

// IsValid reports whether s is a known statistic.
func (s Statistic) IsValid() bool {
	return s <= StatNO
}

func (s Statistic) String() string {
	switch s {
	case StatNone:
		return "None"
	case StatPSD:
		return "PSD"
	case StatATO:
		return "ATO"
	case StatRMS:
		return "RMS"
	case StatCRM:
		return "CRM"
	case StatNO:
		return "NO"
	default:
		return "Unknown"
	}
}

func (k FieldKind) String() string {
	switch k {
	case FieldInt:
		return "Int"
	case FieldFloat:
		return "Float"
	case FieldComplex:
		return "Complex"
	default:
		return "Unknown"
	}
}

func (c ComplexStyle) String() string {
	switch c {
	case ComplexBlock:
		return "Block"
	case ComplexInterleaved:
		return "Interleaved"
	default:
		return "Unknown"
	}
}

func (k Kind) String() string {
	switch k {
	case KindResult:
		return "Result"
	case KindGeometry:
		return "Geometry"
	default:
		return "Unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompression parses a compression name as used in configuration files.
func ParseCompression(s string) (CompressionType, error) {
	switch s {
	case "none", "None", "":
		return CompressionNone, nil
	case "zstd", "Zstd":
		return CompressionZstd, nil
	case "s2", "S2":
		return CompressionS2, nil
	case "lz4", "LZ4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("invalid compression: %q", s)
	}
}
