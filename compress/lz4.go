package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// lz4MaxEntry bounds the buffer growth of an unsized LZ4 decode.
const lz4MaxEntry = 128 << 20

var lz4Compressors = sync.Pool{
	New: func() any { return new(lz4.Compressor) },
}

// LZ4 packs entries as raw LZ4 blocks. Blocks carry no length, so decoding
// without the recorded size has to guess.
type LZ4 struct{}

func (LZ4) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	c, _ := lz4Compressors.Get().(*lz4.Compressor)
	defer lz4Compressors.Put(c)

	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := c.CompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}

	return dst[:n], nil
}

// Decompress starts from four times the packed size and doubles until the
// block fits.
func (LZ4) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	for size := 4 * len(data); ; size *= 2 {
		size = min(size, lz4MaxEntry)
		buf := make([]byte, size)
		n, err := lz4.UncompressBlock(data, buf)
		switch {
		case err == nil:
			return buf[:n], nil
		case errors.Is(err, lz4.ErrInvalidSourceShortBuffer) && size < lz4MaxEntry:
			continue
		default:
			return nil, fmt.Errorf("lz4: %w", err)
		}
	}
}

func (LZ4) DecompressSized(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := lz4.UncompressBlock(data, buf)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("lz4: entry decodes to %d bytes, want %d", n, size)
	}

	return buf, nil
}
