package encoding

import (
	"fmt"
	"math"
	"strings"

	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
)

// MaxExactInt is the largest integer magnitude held exactly by a float64.
// Integer words beyond it cannot be round-tripped through the in-memory model.
const MaxExactInt = 1 << 53

// Cursor performs typed reads over one record payload.
//
// Every read advances the cursor by exactly the width of the primitive and fails
// with ErrTruncatedArchive when fewer bytes remain. Word reads use the precision
// given at construction; Int32 and FixedString have fixed widths.
type Cursor struct {
	data     []byte
	pos      int
	engine   endian.EndianEngine
	wordSize int
}

// NewCursor creates a Cursor over data.
//
// Parameters:
//   - data: the record payload
//   - engine: archive byte order
//   - precision: word width of Int and Float reads
func NewCursor(data []byte, engine endian.EndianEngine, precision format.Precision) *Cursor {
	return &Cursor{
		data:     data,
		engine:   engine,
		wordSize: precision.WordSize(),
	}
}

// Pos returns the number of bytes consumed.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

// WordSize returns the word width in bytes.
func (c *Cursor) WordSize() int {
	return c.wordSize
}

func (c *Cursor) take(n int, what string) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, fmt.Errorf("%w: %s needs %d bytes at position %d, %d remain",
			errs.ErrTruncatedArchive, what, n, c.pos, c.Remaining())
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n

	return b, nil
}

// Int32 reads a fixed 4-byte signed integer.
func (c *Cursor) Int32() (int32, error) {
	b, err := c.take(4, "int32")
	if err != nil {
		return 0, err
	}

	return int32(c.engine.Uint32(b)), nil //nolint:gosec // two's complement reinterpretation
}

// Int reads one integer word.
func (c *Cursor) Int() (int64, error) {
	b, err := c.take(c.wordSize, "int")
	if err != nil {
		return 0, err
	}

	if c.wordSize == 4 {
		return int64(int32(c.engine.Uint32(b))), nil //nolint:gosec // two's complement reinterpretation
	}

	return int64(c.engine.Uint64(b)), nil //nolint:gosec // two's complement reinterpretation
}

// ExactInt reads one integer word and returns it as a float64.
// Values outside ±2^53 fail with ErrMalformedTable.
func (c *Cursor) ExactInt() (float64, error) {
	v, err := c.Int()
	if err != nil {
		return 0, err
	}
	if v > MaxExactInt || v < -MaxExactInt {
		return 0, fmt.Errorf("%w: integer %d at position %d is not exactly representable",
			errs.ErrMalformedTable, v, c.pos-c.wordSize)
	}

	return float64(v), nil
}

// Float reads one floating point word. Single precision words are widened to
// float64 exactly.
func (c *Cursor) Float() (float64, error) {
	b, err := c.take(c.wordSize, "float")
	if err != nil {
		return 0, err
	}

	if c.wordSize == 4 {
		return float64(math.Float32frombits(c.engine.Uint32(b))), nil
	}

	return math.Float64frombits(c.engine.Uint64(b)), nil
}

// FixedString reads an n-byte character field and returns it verbatim,
// including any padding.
func (c *Cursor) FixedString(n int) (string, error) {
	b, err := c.take(n, "string")
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// TrimField removes the space and NUL padding of a fixed-length character field.
func TrimField(s string) string {
	return strings.TrimRight(s, " \x00")
}
