package encoding

import (
	"bytes"
	"io"
	"testing"

	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/stretchr/testify/require"
)

func framed(t *testing.T, engine endian.EndianEngine, payloads ...[]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := NewWriter(&buf, engine)
	for _, p := range payloads {
		require.NoError(t, w.WriteFramedBlock(p))
	}

	return buf.Bytes()
}

func TestReadFramedBlock(t *testing.T) {
	for _, engine := range []endian.EndianEngine{endian.GetLittleEndianEngine(), endian.GetBigEndianEngine()} {
		t.Run(endian.Name(engine), func(t *testing.T) {
			data := framed(t, engine, []byte("OUGV1   "), nil, []byte{1, 2, 3})
			r := NewReader(bytes.NewReader(data), engine)

			p, err := r.ReadFramedBlock()
			require.NoError(t, err)
			require.Equal(t, "OUGV1   ", string(p))
			require.Equal(t, int64(16), r.Offset())

			p, err = r.ReadFramedBlock()
			require.NoError(t, err)
			require.Empty(t, p)
			require.Equal(t, int64(24), r.Offset())

			p, err = r.ReadFramedBlock()
			require.NoError(t, err)
			require.Equal(t, []byte{1, 2, 3}, p)

			_, err = r.ReadFramedBlock()
			require.ErrorIs(t, err, io.EOF)
			require.Equal(t, int64(len(data)), r.Offset())
		})
	}
}

func TestReadFramedBlockCorruption(t *testing.T) {
	engine := endian.GetLittleEndianEngine()

	t.Run("TrailingMarkerMismatch", func(t *testing.T) {
		data := framed(t, engine, []byte("abcd"))
		data[len(data)-1] ^= 0x01

		_, err := NewReader(bytes.NewReader(data), engine).ReadFramedBlock()
		require.ErrorIs(t, err, errs.ErrFrameCorruption)
	})

	t.Run("NegativeLength", func(t *testing.T) {
		data := []byte{0xff, 0xff, 0xff, 0xff}
		_, err := NewReader(bytes.NewReader(data), engine).ReadFramedBlock()
		require.ErrorIs(t, err, errs.ErrFrameCorruption)
	})

	t.Run("ExceedsLimit", func(t *testing.T) {
		data := framed(t, engine, make([]byte, 64))
		r := NewReader(bytes.NewReader(data), engine)
		r.SetMaxFrameSize(32)
		_, err := r.ReadFramedBlock()
		require.ErrorIs(t, err, errs.ErrFrameCorruption)
	})

	t.Run("WrongByteOrder", func(t *testing.T) {
		data := framed(t, engine, []byte("abcd"))
		_, err := NewReader(bytes.NewReader(data), endian.GetBigEndianEngine()).ReadFramedBlock()
		require.Error(t, err)
		require.False(t, errs.IsRecoverable(err))
	})
}

func TestReadFramedBlockTruncation(t *testing.T) {
	engine := endian.GetLittleEndianEngine()
	data := framed(t, engine, []byte("abcdefgh"))

	for _, cut := range []int{2, 4, 9, 13, 15} {
		r := NewReader(bytes.NewReader(data[:cut]), engine)
		_, err := r.ReadFramedBlock()
		require.ErrorIs(t, err, errs.ErrTruncatedArchive, "cut at %d", cut)
	}
}

func TestSkipFramedBlock(t *testing.T) {
	engine := endian.GetBigEndianEngine()
	data := framed(t, engine, make([]byte, 100), []byte("next"))
	r := NewReader(bytes.NewReader(data), engine)

	n, err := r.SkipFramedBlock()
	require.NoError(t, err)
	require.Equal(t, 100, n)
	require.Equal(t, int64(108), r.Offset())

	p, err := r.ReadFramedBlock()
	require.NoError(t, err)
	require.Equal(t, "next", string(p))

	t.Run("Truncated", func(t *testing.T) {
		r := NewReader(bytes.NewReader(data[:50]), engine)
		_, err := r.SkipFramedBlock()
		require.ErrorIs(t, err, errs.ErrTruncatedArchive)
	})

	t.Run("Corrupted", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[105] ^= 0x10
		r := NewReader(bytes.NewReader(bad), engine)
		_, err := r.SkipFramedBlock()
		require.ErrorIs(t, err, errs.ErrFrameCorruption)
	})
}

func TestCursor(t *testing.T) {
	t.Run("Double", func(t *testing.T) {
		engine := endian.GetLittleEndianEngine()
		a := NewAppender(engine, format.PrecisionDouble)
		defer a.Release()
		require.NoError(t, a.Int(-42))
		a.Float(3.141592653589793)
		a.Int32(7)
		a.FixedString("OES1", 8)

		c := NewCursor(a.Bytes(), engine, format.PrecisionDouble)
		i, err := c.Int()
		require.NoError(t, err)
		require.Equal(t, int64(-42), i)

		f, err := c.Float()
		require.NoError(t, err)
		require.Equal(t, 3.141592653589793, f)

		i32, err := c.Int32()
		require.NoError(t, err)
		require.Equal(t, int32(7), i32)

		s, err := c.FixedString(8)
		require.NoError(t, err)
		require.Equal(t, "OES1    ", s)
		require.Equal(t, "OES1", TrimField(s))
		require.Zero(t, c.Remaining())

		_, err = c.Float()
		require.ErrorIs(t, err, errs.ErrTruncatedArchive)
	})

	t.Run("SingleNarrowsFloats", func(t *testing.T) {
		engine := endian.GetBigEndianEngine()
		a := NewAppender(engine, format.PrecisionSingle)
		defer a.Release()
		a.Float(0.1)
		require.NoError(t, a.Int(-5))
		require.Equal(t, 8, a.Len())

		c := NewCursor(a.Bytes(), engine, format.PrecisionSingle)
		f, err := c.Float()
		require.NoError(t, err)
		require.Equal(t, float64(float32(0.1)), f)
		require.NotEqual(t, 0.1, f)

		i, err := c.Int()
		require.NoError(t, err)
		require.Equal(t, int64(-5), i)
	})

	t.Run("ExactInt", func(t *testing.T) {
		engine := endian.GetLittleEndianEngine()
		a := NewAppender(engine, format.PrecisionDouble)
		defer a.Release()
		require.NoError(t, a.Int(MaxExactInt))
		require.NoError(t, a.Int(MaxExactInt+1))

		c := NewCursor(a.Bytes(), engine, format.PrecisionDouble)
		v, err := c.ExactInt()
		require.NoError(t, err)
		require.Equal(t, float64(MaxExactInt), v)

		_, err = c.ExactInt()
		require.ErrorIs(t, err, errs.ErrMalformedTable)
	})
}

func TestAppender(t *testing.T) {
	engine := endian.GetLittleEndianEngine()

	t.Run("FramesMatchWriter", func(t *testing.T) {
		a := NewAppender(engine, format.PrecisionSingle)
		defer a.Release()
		a.BeginFrame()
		a.Int32(8)
		a.Int32(1)
		require.NoError(t, a.EndFrame())
		require.NoError(t, a.Frame(nil))

		want := framed(t, engine, []byte{8, 0, 0, 0, 1, 0, 0, 0}, nil)
		require.Equal(t, want, a.Bytes())
	})

	t.Run("EndWithoutBegin", func(t *testing.T) {
		a := NewAppender(engine, format.PrecisionSingle)
		defer a.Release()
		require.ErrorIs(t, a.EndFrame(), errs.ErrInvalidTable)
	})

	t.Run("IntOverflowSingle", func(t *testing.T) {
		a := NewAppender(engine, format.PrecisionSingle)
		defer a.Release()
		require.ErrorIs(t, a.Int(1<<40), errs.ErrInvalidTable)
	})

	t.Run("IntFromFloat", func(t *testing.T) {
		a := NewAppender(engine, format.PrecisionDouble)
		defer a.Release()
		require.NoError(t, a.IntFromFloat(12))
		require.ErrorIs(t, a.IntFromFloat(1.5), errs.ErrInvalidTable)
	})

	t.Run("FixedStringTruncates", func(t *testing.T) {
		a := NewAppender(engine, format.PrecisionDouble)
		defer a.Release()
		a.FixedString("TOOLONGNAME", 4)
		require.Equal(t, "TOOL", string(a.Bytes()))
	})

	t.Run("Reset", func(t *testing.T) {
		a := NewAppender(engine, format.PrecisionDouble)
		defer a.Release()
		require.NoError(t, a.Frame([]byte("x")))
		a.Reset()
		require.Zero(t, a.Len())
	})
}

func TestWriterOffset(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, endian.GetLittleEndianEngine())
	require.NoError(t, w.WriteFramedBlock([]byte("abc")))
	require.NoError(t, w.WriteRaw([]byte{1, 2}))
	require.Equal(t, int64(13), w.Offset())
	require.Equal(t, 13, buf.Len())
}
