// Package errs defines the sentinel errors returned by the op2 codec.
//
// Errors fall into two classes. Fatal errors (ErrTruncatedArchive,
// ErrFrameCorruption, ErrNotArchive) leave the archive cursor in an unknown
// position and abort the whole session. Table-scoped errors (ErrMalformedTable,
// ErrUnrecognizedTable, ErrPrecisionMismatch, ErrInconsistentMerge) are caught at
// the table boundary, reported as diagnostics and the session continues.
//
// All errors are wrapped with additional context using fmt.Errorf("%w: ...") and
// must be classified with errors.Is.
package errs

import "errors"

// Archive level (fatal) errors.
var (
	// ErrTruncatedArchive is returned when fewer bytes remain than a primitive or frame requires.
	ErrTruncatedArchive = errors.New("truncated archive")
	// ErrFrameCorruption is returned when the leading and trailing length markers of a frame differ.
	ErrFrameCorruption = errors.New("frame corruption")
	// ErrNotArchive is returned when the preamble cannot be recognized in either byte order.
	ErrNotArchive = errors.New("not a result archive")
	// ErrInvalidPreamble is returned when the preamble declares an unsupported word size or version.
	ErrInvalidPreamble = errors.New("invalid archive preamble")
)

// Table level (recoverable) errors.
var (
	// ErrMalformedTable is returned when a table's content does not match its declared layout.
	ErrMalformedTable = errors.New("malformed table")
	// ErrUnrecognizedTable is returned when no codec is registered for a table's category and version.
	ErrUnrecognizedTable = errors.New("unrecognized table")
	// ErrPrecisionMismatch is returned when a table declares a word size other than the archive's.
	ErrPrecisionMismatch = errors.New("precision mismatch")
	// ErrInvalidHeaderSize is returned when a table header record has the wrong length.
	ErrInvalidHeaderSize = errors.New("invalid table header size")
	// ErrInvalidHeaderFlags is returned when header codes are out of range or contradict each other.
	ErrInvalidHeaderFlags = errors.New("invalid table header flags")
	// ErrDuplicateEntity is returned when an entity id appears twice in one table.
	ErrDuplicateEntity = errors.New("duplicate entity id")
)

// Store errors.
var (
	// ErrInconsistentMerge is returned when a merge would corrupt an existing table.
	// The existing table is left untouched.
	ErrInconsistentMerge = errors.New("inconsistent merge")
	// ErrTableNotFound is returned by queries for keys the store does not hold.
	ErrTableNotFound = errors.New("table not found")
	// ErrSpillChecksum is returned when a re-hydrated table fails checksum verification.
	ErrSpillChecksum = errors.New("spill entry checksum mismatch")
	// ErrStoreClosed is returned when a closed store is used.
	ErrStoreClosed = errors.New("store is closed")
)

// Registry and encoder errors.
var (
	// ErrDuplicateCodec is returned when a codec is registered twice for the same category and version.
	ErrDuplicateCodec = errors.New("codec already registered")
	// ErrInvalidTable is returned by encoders when an in-memory table violates its layout.
	ErrInvalidTable = errors.New("invalid table")
	// ErrUnknownGeometry is returned when a geometry lookup references an undefined entity.
	ErrUnknownGeometry = errors.New("unknown geometry entity")
)

// IsRecoverable reports whether err is scoped to a single table, so that a read
// session may record it as a diagnostic and continue with the next table.
func IsRecoverable(err error) bool {
	// Table-scoped sentinels win: a record cursor running out inside an already
	// framed table is wrapped as malformed and never moved the archive cursor.
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrMalformedTable),
		errors.Is(err, ErrUnrecognizedTable),
		errors.Is(err, ErrPrecisionMismatch),
		errors.Is(err, ErrInconsistentMerge),
		errors.Is(err, ErrInvalidHeaderSize),
		errors.Is(err, ErrInvalidHeaderFlags):
		return true
	default:
		return false
	}
}
