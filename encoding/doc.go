// Package encoding implements the primitive codec of the result archive.
//
// An archive is a sequence of framed records. Every record is written as
//
//	int32 length | payload (length bytes) | int32 length
//
// in the archive byte order. The leading and trailing markers must agree; a
// mismatch means the cursor position can no longer be trusted and is reported as
// errs.ErrFrameCorruption. Running out of bytes inside a marker or payload is
// errs.ErrTruncatedArchive. Both are fatal for a read session.
//
// Inside a payload data is organized in words whose width is fixed by the archive
// precision: 4 bytes (int32, float32) for single precision and 8 bytes (int64,
// float64) for double precision. A few fixed-layout records (the preamble and
// table headers) always use 4-byte words regardless of precision.
//
// The package provides three pieces:
//   - Reader: reads or skips framed records from a stream and tracks the byte offset
//   - Cursor: typed word reads over one record payload
//   - Appender and Writer: build framed records in a pooled buffer and emit them
package encoding
