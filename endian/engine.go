// Package endian selects the byte order of a result archive.
//
// An archive fixes its byte order once, in the leading length marker of the
// preamble. Readers recover it with Detect; writers choose one explicitly and
// pass the same engine to every primitive they append:
//
//	engine, err := endian.Detect(head[:4], 8)
//	...
//	buf = engine.AppendUint32(buf, 8)
//
// Engines are the stateless binary.LittleEndian and binary.BigEndian values.
package endian

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unsafe"
)

// ErrUndetectable is returned by Detect when the marker matches neither byte order.
var ErrUndetectable = errors.New("byte order cannot be detected")

// EndianEngine reads and appends fixed-size words in one byte order.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// CheckEndianness reports the host byte order.
func CheckEndianness() binary.ByteOrder {
	probe := uint16(0x0100)
	if (*[2]byte)(unsafe.Pointer(&probe))[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// GetNativeEngine returns the engine matching the host byte order.
func GetNativeEngine() EndianEngine {
	if CheckEndianness() == binary.BigEndian {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// Detect determines the byte order of an archive from a 4-byte length marker
// whose value is known in advance.
//
// Parameters:
//   - marker: the first four bytes of the archive
//   - expected: the value the marker must decode to (the preamble record length)
//
// Returns:
//   - EndianEngine: the byte order in which marker reads as expected
//   - error: ErrUndetectable if neither byte order yields expected
func Detect(marker []byte, expected uint32) (EndianEngine, error) {
	if len(marker) < 4 {
		return nil, fmt.Errorf("%w: need 4 bytes, got %d", ErrUndetectable, len(marker))
	}

	switch {
	case binary.LittleEndian.Uint32(marker) == expected:
		return binary.LittleEndian, nil
	case binary.BigEndian.Uint32(marker) == expected:
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("%w: marker % x", ErrUndetectable, marker[:4])
	}
}

// Parse maps a byte order name to an engine.
//
// Accepted names are "little", "big" and "native" (case-insensitive). The name
// "auto" and the empty string return a nil engine and no error, meaning the
// caller should detect the order from the data.
func Parse(name string) (EndianEngine, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return nil, nil
	case "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	case "native":
		return GetNativeEngine(), nil
	default:
		return nil, fmt.Errorf("invalid byte order: %q", name)
	}
}

// Name returns "little" or "big" for the engine, or "unknown".
func Name(engine EndianEngine) string {
	switch engine {
	case binary.LittleEndian:
		return "little"
	case binary.BigEndian:
		return "big"
	default:
		return "unknown"
	}
}
