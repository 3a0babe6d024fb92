package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

// S2 is the default spill codec. It trades a little ratio against Zstd for
// much faster re-hydration.
type S2 struct{}

func (S2) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.EncodeBetter(nil, data), nil
}

func (S2) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Decode(nil, data)
}

// DecompressSized checks the encoded length against size before decoding.
func (S2) DecompressSized(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	n, err := s2.DecodedLen(data)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("s2: entry decodes to %d bytes, want %d", n, size)
	}

	return s2.Decode(make([]byte, size), data)
}
