package compress

import (
	"errors"
	"fmt"

	"github.com/arloliu/op2/format"
)

// ErrUnknownCodec is returned by Lookup for compression types without a codec.
var ErrUnknownCodec = errors.New("unknown compression codec")

// Codec compresses and restores one side-file entry at a time. Implementations
// are stateless values safe for concurrent use.
type Codec interface {
	// Compress returns the packed form of data. Empty input yields empty output.
	Compress(data []byte) ([]byte, error)
	// Decompress restores data packed by the same codec.
	Decompress(data []byte) ([]byte, error)
}

// SizedDecompressor is implemented by codecs that can restore an entry into a
// buffer of known size. The store records the raw size of every entry and
// prefers this path.
type SizedDecompressor interface {
	DecompressSized(data []byte, size int) ([]byte, error)
}

// Stats describes one spilled entry.
type Stats struct {
	Algorithm format.CompressionType
	Raw       int64
	Packed    int64
}

// Ratio returns Packed/Raw, or 0 for an empty entry.
func (s Stats) Ratio() float64 {
	if s.Raw == 0 {
		return 0
	}

	return float64(s.Packed) / float64(s.Raw)
}

var codecs = map[format.CompressionType]Codec{
	format.CompressionNone: None{},
	format.CompressionZstd: Zstd{},
	format.CompressionS2:   S2{},
	format.CompressionLZ4:  LZ4{},
}

// Lookup returns the codec registered for ct.
func Lookup(ct format.CompressionType) (Codec, error) {
	c, ok := codecs[ct]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, ct)
	}

	return c, nil
}

// None stores entries as they are. Its results alias the input.
type None struct{}

func (None) Compress(data []byte) ([]byte, error)   { return data, nil }
func (None) Decompress(data []byte) ([]byte, error) { return data, nil }
