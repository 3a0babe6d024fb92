package encoding

import (
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
)

// MarkerSize is the width of a frame length marker in bytes.
const MarkerSize = 4

// DefaultMaxFrameSize bounds the payload of a single framed record. A larger
// leading marker is treated as corruption instead of an allocation request.
const DefaultMaxFrameSize = 1 << 30

// Reader reads framed records from an archive stream.
//
// The byte order is fixed for the lifetime of a Reader. Reader is not safe for
// concurrent use; it is owned by one read session.
type Reader struct {
	r            io.Reader
	engine       endian.EndianEngine
	offset       int64
	maxFrameSize int
	marker       [MarkerSize]byte
}

// NewReader creates a Reader over r using the given byte order.
//
// Parameters:
//   - r: the archive stream, positioned at a record boundary
//   - engine: the archive byte order
//
// Returns:
//   - *Reader: reader with offset 0
func NewReader(r io.Reader, engine endian.EndianEngine) *Reader {
	return &Reader{
		r:            r,
		engine:       engine,
		maxFrameSize: DefaultMaxFrameSize,
	}
}

// SetMaxFrameSize overrides DefaultMaxFrameSize. Non-positive values are ignored.
func (r *Reader) SetMaxFrameSize(n int) {
	if n > 0 {
		r.maxFrameSize = n
	}
}

// Engine returns the byte order of the archive.
func (r *Reader) Engine() endian.EndianEngine {
	return r.engine
}

// Offset returns the number of bytes consumed so far, which is the archive
// offset of the next record.
func (r *Reader) Offset() int64 {
	return r.offset
}

// ReadFramedBlock reads one framed record and returns its payload.
//
// Returns:
//   - []byte: the payload, newly allocated and owned by the caller (empty for an empty frame)
//   - error: io.EOF if the stream ends cleanly before the record,
//     ErrTruncatedArchive if it ends inside the record,
//     ErrFrameCorruption if the markers are invalid or disagree
func (r *Reader) ReadFramedBlock() ([]byte, error) {
	start := r.offset

	length, err := r.readLeadingMarker()
	if err != nil {
		return nil, err
	}

	payload := make([]byte, length)
	if err := r.readFull(payload, start); err != nil {
		return nil, err
	}

	if err := r.readTrailingMarker(length, start); err != nil {
		return nil, err
	}

	return payload, nil
}

// SkipFramedBlock consumes one framed record without interpreting its payload.
//
// Returns:
//   - int: the payload length
//   - error: same conditions as ReadFramedBlock
func (r *Reader) SkipFramedBlock() (int, error) {
	start := r.offset

	length, err := r.readLeadingMarker()
	if err != nil {
		return 0, err
	}

	n, err := io.CopyN(io.Discard, r.r, int64(length))
	r.offset += n
	if err != nil {
		return 0, r.truncated(err, start, "payload")
	}

	if err := r.readTrailingMarker(length, start); err != nil {
		return 0, err
	}

	return length, nil
}

func (r *Reader) readLeadingMarker() (int, error) {
	start := r.offset

	n, err := io.ReadFull(r.r, r.marker[:])
	r.offset += int64(n)
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return 0, io.EOF
		}

		return 0, r.truncated(err, start, "leading marker")
	}

	length := int32(r.engine.Uint32(r.marker[:])) //nolint:gosec // markers are signed on the wire
	if length < 0 {
		return 0, fmt.Errorf("%w: negative frame length %d at offset %d", errs.ErrFrameCorruption, length, start)
	}
	if int(length) > r.maxFrameSize {
		return 0, fmt.Errorf("%w: frame length %d at offset %d exceeds limit %d",
			errs.ErrFrameCorruption, length, start, r.maxFrameSize)
	}

	return int(length), nil
}

func (r *Reader) readTrailingMarker(length int, start int64) error {
	if err := r.readFull(r.marker[:], start); err != nil {
		return err
	}

	trailing := int32(r.engine.Uint32(r.marker[:])) //nolint:gosec // markers are signed on the wire
	if int(trailing) != length {
		return fmt.Errorf("%w: frame at offset %d has leading marker %d and trailing marker %d",
			errs.ErrFrameCorruption, start, length, trailing)
	}

	return nil
}

func (r *Reader) readFull(buf []byte, start int64) error {
	n, err := io.ReadFull(r.r, buf)
	r.offset += int64(n)
	if err != nil {
		return r.truncated(err, start, "record")
	}

	return nil
}

func (r *Reader) truncated(err error, start int64, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s of frame at offset %d ends at offset %d", errs.ErrTruncatedArchive, what, start, r.offset)
	}

	return fmt.Errorf("read frame at offset %d: %w", start, err)
}
