package section

import (
	"fmt"

	"github.com/arloliu/op2/encoding"
	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
)

// Preamble holds the two records that open an archive.
type Preamble struct {
	// Precision is the word width of every table in the archive.
	Precision format.Precision
	// Version is the archive format version.
	Version int32
	// Label is the raw 28-byte tape label, including padding.
	Label string
}

// NewPreamble creates a Preamble for the current format version.
func NewPreamble(precision format.Precision, label string) Preamble {
	return Preamble{
		Precision: precision,
		Version:   CurrentVersion,
		Label:     padField(label, LabelSize),
	}
}

// ParseIdentity parses the identity frame.
//
// Parameters:
//   - data: the identity frame payload (must be exactly 8 bytes)
//   - engine: archive byte order
//
// Returns:
//   - error: ErrInvalidPreamble for a wrong length, word size or version
func (p *Preamble) ParseIdentity(data []byte, engine endian.EndianEngine) error {
	if len(data) != PreambleSize {
		return fmt.Errorf("%w: identity record is %d bytes, want %d", errs.ErrInvalidPreamble, len(data), PreambleSize)
	}

	cur := encoding.NewCursor(data, engine, format.PrecisionSingle)
	wordSize, err := cur.Int32()
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidPreamble, err)
	}
	version, err := cur.Int32()
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidPreamble, err)
	}

	precision, err := format.PrecisionFromWordSize(int(wordSize))
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidPreamble, err)
	}
	if version < 1 {
		return fmt.Errorf("%w: version %d", errs.ErrInvalidPreamble, version)
	}

	p.Precision = precision
	p.Version = version

	return nil
}

// ParseLabel parses the tape label frame.
func (p *Preamble) ParseLabel(data []byte) error {
	if len(data) != LabelSize {
		return fmt.Errorf("%w: label record is %d bytes, want %d", errs.ErrInvalidPreamble, len(data), LabelSize)
	}
	label, err := encoding.NewCursor(data, nil, format.PrecisionSingle).FixedString(LabelSize)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidPreamble, err)
	}
	p.Label = label

	return nil
}

// IdentityBytes serializes the identity frame payload.
func (p Preamble) IdentityBytes(engine endian.EndianEngine) []byte {
	b := make([]byte, 0, PreambleSize)
	b = engine.AppendUint32(b, uint32(p.Precision.WordSize())) //nolint:gosec // 4 or 8
	b = engine.AppendUint32(b, uint32(p.Version))              //nolint:gosec // two's complement reinterpretation

	return b
}

// LabelBytes serializes the tape label frame payload.
func (p Preamble) LabelBytes() []byte {
	return []byte(padField(p.Label, LabelSize))
}

func padField(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	b := make([]byte, n)
	copy(b, s)
	for i := len(s); i < n; i++ {
		b[i] = ' '
	}

	return string(b)
}

// PadName pads or truncates a table name to the 8-byte name field.
func PadName(name string) string {
	return padField(name, NameSize)
}

// PadTitle pads or truncates a title to the 64-byte header field.
func PadTitle(title string) string {
	return padField(title, TitleSize)
}
