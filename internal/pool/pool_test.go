package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer(t *testing.T) {
	t.Run("ResetKeepsCapacity", func(t *testing.T) {
		bb := NewByteBuffer(32)
		_, _ = bb.Write([]byte("record"))
		bb.Reset()
		require.Zero(t, bb.Len())
		require.Equal(t, 32, bb.Cap())
	})

	t.Run("GrowNoopWhenRoom", func(t *testing.T) {
		bb := NewByteBuffer(64)
		bb.Grow(32)
		require.Equal(t, 64, bb.Cap())
	})

	t.Run("GrowHonorsLargeRequest", func(t *testing.T) {
		bb := NewByteBuffer(8)
		bb.Grow(3 * minGrowth)
		require.GreaterOrEqual(t, bb.Cap(), 3*minGrowth)
	})

	t.Run("ExtendOrGrowPreservesContent", func(t *testing.T) {
		bb := NewByteBuffer(4)
		_, _ = bb.Write([]byte{1, 2, 3})
		bb.ExtendOrGrow(10)
		require.Equal(t, 13, bb.Len())
		require.Equal(t, []byte{1, 2, 3}, bb.Bytes()[:3])
	})
}

func TestBufferPool(t *testing.T) {
	t.Run("PutResets", func(t *testing.T) {
		p := NewBufferPool(32, 0)
		bb := p.Get()
		_, _ = bb.Write([]byte("abc"))
		p.Put(bb)
		require.Zero(t, p.Get().Len())
	})

	t.Run("DropsOversized", func(t *testing.T) {
		p := NewBufferPool(32, 64)
		bb := NewByteBuffer(1024)
		_, _ = bb.Write([]byte("x"))
		p.Put(bb)
		require.Equal(t, 1, bb.Len())
	})

	t.Run("NilPut", func(t *testing.T) {
		require.NotPanics(t, func() { NewBufferPool(32, 64).Put(nil) })
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tb := GetTableBuffer()
				_, _ = tb.Write([]byte{byte(i)})
				PutTableBuffer(tb)
				sb := GetSpillBuffer()
				sb.ExtendOrGrow(i)
				PutSpillBuffer(sb)
			}(i)
		}
		wg.Wait()
	})
}

func TestGetInt64Slice(t *testing.T) {
	ids, release := GetInt64Slice(100)
	require.Len(t, ids, 100)
	release()

	ids, release = GetInt64Slice(10)
	require.Len(t, ids, 10)
	release()
}
