package encoding

import (
	"fmt"
	"io"
	"math"

	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/internal/pool"
)

// Appender builds framed records in a pooled buffer.
//
// A record is opened with BeginFrame, filled with typed appends and closed with
// EndFrame, which back-fills the leading marker and appends the trailing one.
// Integer appends that do not fit the word width fail with ErrInvalidTable.
//
// Example:
//
//	a := encoding.NewAppender(engine, format.PrecisionDouble)
//	defer a.Release()
//	a.BeginFrame()
//	a.Int32(8)
//	a.Int32(1)
//	if err := a.EndFrame(); err != nil {
//	    return err
//	}
//	_, err := w.Write(a.Bytes())
type Appender struct {
	buf        *pool.ByteBuffer
	engine     endian.EndianEngine
	wordSize   int
	frameStart int
	open       bool
}

// NewAppender creates an Appender backed by a pooled table buffer.
func NewAppender(engine endian.EndianEngine, precision format.Precision) *Appender {
	return &Appender{
		buf:        pool.GetTableBuffer(),
		engine:     engine,
		wordSize:   precision.WordSize(),
		frameStart: -1,
	}
}

// Bytes returns the assembled records. The slice is only valid until the next
// append, Reset or Release.
func (a *Appender) Bytes() []byte {
	return a.buf.Bytes()
}

// Len returns the number of assembled bytes.
func (a *Appender) Len() int {
	return a.buf.Len()
}

// Reset discards the assembled records and keeps the buffer.
func (a *Appender) Reset() {
	a.buf.Reset()
	a.open = false
	a.frameStart = -1
}

// Release returns the buffer to the pool. The Appender must not be used afterwards.
func (a *Appender) Release() {
	pool.PutTableBuffer(a.buf)
	a.buf = nil
}

// BeginFrame opens a record by reserving its leading marker.
func (a *Appender) BeginFrame() {
	a.frameStart = a.buf.Len()
	a.open = true
	a.buf.ExtendOrGrow(MarkerSize)
}

// EndFrame closes the open record.
func (a *Appender) EndFrame() error {
	if !a.open {
		return fmt.Errorf("%w: EndFrame without BeginFrame", errs.ErrInvalidTable)
	}
	a.open = false

	length := a.buf.Len() - a.frameStart - MarkerSize
	if length > math.MaxInt32 {
		return fmt.Errorf("%w: record of %d bytes exceeds the frame limit", errs.ErrInvalidTable, length)
	}

	a.engine.PutUint32(a.buf.B[a.frameStart:], uint32(length)) //nolint:gosec // bounded above
	a.buf.B = a.engine.AppendUint32(a.buf.B, uint32(length))   //nolint:gosec // bounded above

	return nil
}

// Frame appends a complete record with the given payload.
func (a *Appender) Frame(payload []byte) error {
	a.BeginFrame()
	a.buf.B = append(a.buf.B, payload...)

	return a.EndFrame()
}

// Int32 appends a fixed 4-byte signed integer.
func (a *Appender) Int32(v int32) {
	a.buf.B = a.engine.AppendUint32(a.buf.B, uint32(v)) //nolint:gosec // two's complement reinterpretation
}

// Int appends one integer word.
func (a *Appender) Int(v int64) error {
	if a.wordSize == 4 {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return fmt.Errorf("%w: integer %d does not fit a 4-byte word", errs.ErrInvalidTable, v)
		}
		a.buf.B = a.engine.AppendUint32(a.buf.B, uint32(int32(v))) //nolint:gosec // range checked

		return nil
	}

	a.buf.B = a.engine.AppendUint64(a.buf.B, uint64(v)) //nolint:gosec // two's complement reinterpretation

	return nil
}

// IntFromFloat appends an integer word held as a float64.
// The value must be integral.
func (a *Appender) IntFromFloat(v float64) error {
	if v != math.Trunc(v) || math.IsInf(v, 0) || v > MaxExactInt || v < -MaxExactInt {
		return fmt.Errorf("%w: %v is not an integer word", errs.ErrInvalidTable, v)
	}

	return a.Int(int64(v))
}

// Float appends one floating point word. In single precision the value is
// narrowed to float32.
func (a *Appender) Float(v float64) {
	if a.wordSize == 4 {
		a.buf.B = a.engine.AppendUint32(a.buf.B, math.Float32bits(float32(v)))
		return
	}

	a.buf.B = a.engine.AppendUint64(a.buf.B, math.Float64bits(v))
}

// FixedString appends s as an n-byte field, space padded. Longer strings are truncated.
func (a *Appender) FixedString(s string, n int) {
	if len(s) > n {
		s = s[:n]
	}
	a.buf.B = append(a.buf.B, s...)
	for range n - len(s) {
		a.buf.B = append(a.buf.B, ' ')
	}
}

// Writer emits framed records to an archive stream and tracks the byte offset.
type Writer struct {
	w      io.Writer
	engine endian.EndianEngine
	offset int64
}

// NewWriter creates a Writer over w using the given byte order.
func NewWriter(w io.Writer, engine endian.EndianEngine) *Writer {
	return &Writer{w: w, engine: engine}
}

// Engine returns the byte order of the archive.
func (w *Writer) Engine() endian.EndianEngine {
	return w.engine
}

// Offset returns the number of bytes written.
func (w *Writer) Offset() int64 {
	return w.offset
}

// WriteFramedBlock writes payload as one framed record, computing both markers.
func (w *Writer) WriteFramedBlock(payload []byte) error {
	if len(payload) > math.MaxInt32 {
		return fmt.Errorf("%w: record of %d bytes exceeds the frame limit", errs.ErrInvalidTable, len(payload))
	}

	var marker [MarkerSize]byte
	w.engine.PutUint32(marker[:], uint32(len(payload))) //nolint:gosec // bounded above

	if err := w.write(marker[:]); err != nil {
		return err
	}
	if err := w.write(payload); err != nil {
		return err
	}

	return w.write(marker[:])
}

// WriteRaw writes pre-assembled records, such as the output of an Appender.
func (w *Writer) WriteRaw(records []byte) error {
	return w.write(records)
}

func (w *Writer) write(b []byte) error {
	n, err := w.w.Write(b)
	w.offset += int64(n)
	if err != nil {
		return fmt.Errorf("write at offset %d: %w", w.offset, err)
	}

	return nil
}
