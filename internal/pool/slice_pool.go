package pool

import "sync"

var int64Slices = sync.Pool{
	New: func() any { return new([]int64) },
}

// GetInt64Slice returns a scratch slice of length n with unspecified contents,
// plus the function that gives it back.
//
//	ids, release := pool.GetInt64Slice(entityCount)
//	defer release()
func GetInt64Slice(n int) ([]int64, func()) {
	ptr, _ := int64Slices.Get().(*[]int64)
	if cap(*ptr) < n {
		*ptr = make([]int64, n)
	}
	*ptr = (*ptr)[:n]

	return *ptr, func() { int64Slices.Put(ptr) }
}
