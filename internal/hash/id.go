// Package hash wraps xxHash64 for spill entry checksums and stable key ids.
package hash

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Checksum computes the xxHash64 of a byte payload.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Float64s computes the xxHash64 over the IEEE-754 bit patterns of values in
// little-endian order, so NaN payloads and signed zeros are distinguished.
func Float64s(values []float64) uint64 {
	d := xxhash.New()

	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}

	return d.Sum64()
}
