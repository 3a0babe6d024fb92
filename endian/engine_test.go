package endian

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestCheckEndianness(t *testing.T) {
	require := require.New(t)

	result := CheckEndianness()

	var testValue uint16 = 0x0102
	testBytes := (*[2]byte)(unsafe.Pointer(&testValue))

	switch testBytes[0] {
	case 0x01:
		require.Equal(binary.BigEndian, result)
	case 0x02:
		require.Equal(binary.LittleEndian, result)
	default:
		require.Failf("Unexpected byte value", "got: %v", testBytes[0])
	}
}

func TestGetNativeEngine(t *testing.T) {
	native := GetNativeEngine()
	require.Equal(t, CheckEndianness(), native.(binary.ByteOrder))
}

func TestDetect(t *testing.T) {
	t.Run("LittleEndian", func(t *testing.T) {
		engine, err := Detect([]byte{8, 0, 0, 0}, 8)
		require.NoError(t, err)
		require.Equal(t, GetLittleEndianEngine(), engine)
	})

	t.Run("BigEndian", func(t *testing.T) {
		engine, err := Detect([]byte{0, 0, 0, 8}, 8)
		require.NoError(t, err)
		require.Equal(t, GetBigEndianEngine(), engine)
	})

	t.Run("ExtraBytesIgnored", func(t *testing.T) {
		engine, err := Detect([]byte{0, 0, 0, 8, 1, 2, 3}, 8)
		require.NoError(t, err)
		require.Equal(t, GetBigEndianEngine(), engine)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := Detect([]byte{1, 2, 3, 4}, 8)
		require.ErrorIs(t, err, ErrUndetectable)
	})

	t.Run("TooShort", func(t *testing.T) {
		_, err := Detect([]byte{8, 0}, 8)
		require.ErrorIs(t, err, ErrUndetectable)
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    EndianEngine
		wantErr bool
	}{
		{"Auto", "auto", nil, false},
		{"Empty", "", nil, false},
		{"Little", "little", binary.LittleEndian, false},
		{"BigUpper", "BIG", binary.BigEndian, false},
		{"Invalid", "middle", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestName(t *testing.T) {
	require.Equal(t, "little", Name(GetLittleEndianEngine()))
	require.Equal(t, "big", Name(GetBigEndianEngine()))
	require.Equal(t, "unknown", Name(nil))
}

func TestEngineAppend(t *testing.T) {
	engine := GetBigEndianEngine()
	buf := engine.AppendUint32(nil, 0x01020304)
	require.Equal(t, []byte{1, 2, 3, 4}, buf)
	require.Equal(t, uint32(0x01020304), engine.Uint32(buf))
}
