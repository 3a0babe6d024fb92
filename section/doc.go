// Package section defines the fixed-layout records of the result archive.
//
// An archive starts with a preamble and continues with a sequence of tables,
// each introduced by a name record and a header record:
//
//	┌──────────────────────────────────────────────────────────┐
//	│ Preamble identity frame (8 bytes)                        │
//	│  - word size (int32, 4 or 8)                             │
//	│  - format version (int32)                                │
//	├──────────────────────────────────────────────────────────┤
//	│ Tape label frame (28 bytes, ASCII, space padded)         │
//	├──────────────────────────────────────────────────────────┤
//	│ Table name frame (8 bytes), empty frame = end of archive │
//	├──────────────────────────────────────────────────────────┤
//	│ Table header frame (128 bytes)                           │
//	│  - 16 int32 words (codes, counts, flags)                 │
//	│  - 64-byte title                                         │
//	├──────────────────────────────────────────────────────────┤
//	│ Data frames (layout depends on sort code)                │
//	├──────────────────────────────────────────────────────────┤
//	│ Empty trailer frame                                      │
//	└──────────────────────────────────────────────────────────┘
//
// Fixed-layout records always use 4-byte integer words, independent of the
// archive precision. Types in this package follow the Parse/Bytes pattern: Parse
// validates the record length and field ranges, Bytes produces the exact payload.
package section
