package pool

import "sync"

// Buffer sizing. A buffer that grew past its class limit is not recycled.
const (
	TableBufferSize  = 64 << 10 // one encoded table
	TableBufferLimit = 16 << 20
	SpillBufferSize  = 256 << 10 // one side-file entry
	SpillBufferLimit = 64 << 20

	minGrowth = 4 << 10
)

// ByteBuffer is an append-only byte slice recycled through a BufferPool.
type ByteBuffer struct {
	B []byte
}

// NewByteBuffer returns an empty buffer with the given capacity.
func NewByteBuffer(size int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, size)}
}

func (bb *ByteBuffer) Bytes() []byte { return bb.B }
func (bb *ByteBuffer) Len() int      { return len(bb.B) }
func (bb *ByteBuffer) Cap() int      { return cap(bb.B) }

// Reset empties the buffer and keeps its storage.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Grow makes room for n more bytes. Growth is at least a quarter of the
// current capacity so repeated small appends stay amortized.
func (bb *ByteBuffer) Grow(n int) {
	if cap(bb.B)-len(bb.B) >= n {
		return
	}

	step := max(cap(bb.B)/4, minGrowth, n)
	grown := make([]byte, len(bb.B), len(bb.B)+step)
	copy(grown, bb.B)
	bb.B = grown
}

// ExtendOrGrow lengthens the buffer by n bytes. The new bytes are not zeroed.
func (bb *ByteBuffer) ExtendOrGrow(n int) {
	bb.Grow(n)
	bb.B = bb.B[:len(bb.B)+n]
}

// Write appends data. It never fails.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.B = append(bb.B, data...)
	return len(data), nil
}

// BufferPool recycles ByteBuffers of one size class.
type BufferPool struct {
	pool  sync.Pool
	limit int
}

// NewBufferPool creates a pool handing out buffers of capacity size. Buffers
// larger than limit are dropped on Put; a zero limit keeps every buffer.
func NewBufferPool(size, limit int) *BufferPool {
	return &BufferPool{
		pool:  sync.Pool{New: func() any { return NewByteBuffer(size) }},
		limit: limit,
	}
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *ByteBuffer {
	bb, _ := p.pool.Get().(*ByteBuffer)
	return bb
}

// Put recycles bb. A nil buffer is ignored.
func (p *BufferPool) Put(bb *ByteBuffer) {
	if bb == nil || (p.limit > 0 && bb.Cap() > p.limit) {
		return
	}
	bb.Reset()
	p.pool.Put(bb)
}

var (
	tables = NewBufferPool(TableBufferSize, TableBufferLimit)
	spills = NewBufferPool(SpillBufferSize, SpillBufferLimit)
)

// GetTableBuffer returns a buffer for assembling one encoded table.
func GetTableBuffer() *ByteBuffer { return tables.Get() }

// PutTableBuffer recycles a buffer obtained from GetTableBuffer.
func PutTableBuffer(bb *ByteBuffer) { tables.Put(bb) }

// GetSpillBuffer returns a buffer for serializing or loading one side-file entry.
func GetSpillBuffer() *ByteBuffer { return spills.Get() }

// PutSpillBuffer recycles a buffer obtained from GetSpillBuffer.
func PutSpillBuffer(bb *ByteBuffer) { spills.Put(bb) }
