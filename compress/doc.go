// Package compress holds the codecs for side-file entries of a low-memory
// result store.
//
// A spilled table is serialized as little-endian float64 and int64 words and
// packed with one of:
//   - None: entries are written as they are
//   - S2: the store default, fast in both directions
//   - LZ4: fastest decode, raw blocks without a length prefix
//   - Zstd: best ratio; pure Go unless built with the gozstd tag
//
// Result words repeat exponents and end in zero mantissa bits, so packed
// entries are usually well under half their raw size.
//
//	codec, err := compress.Lookup(format.CompressionS2)
//	if err != nil {
//	    return err
//	}
//	packed, err := codec.Compress(raw)
package compress
