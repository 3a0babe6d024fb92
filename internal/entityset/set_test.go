package entityset

import (
	"testing"

	"github.com/arloliu/op2/errs"
	"github.com/stretchr/testify/require"
)

func TestFromIDs(t *testing.T) {
	t.Run("KeepsOrder", func(t *testing.T) {
		s, err := FromIDs([]int64{30, 10, 20})
		require.NoError(t, err)
		require.Equal(t, []int64{30, 10, 20}, s.IDs())

		i, ok := s.Index(10)
		require.True(t, ok)
		require.Equal(t, 1, i)
	})

	t.Run("RejectsDuplicate", func(t *testing.T) {
		_, err := FromIDs([]int64{1, 2, 1})
		require.ErrorIs(t, err, errs.ErrDuplicateEntity)
	})
}

func TestMissingFrom(t *testing.T) {
	existing, err := FromIDs([]int64{1, 2, 3})
	require.NoError(t, err)

	superset, err := FromIDs([]int64{3, 2, 1, 4})
	require.NoError(t, err)
	require.Empty(t, existing.MissingFrom(superset))
	require.Equal(t, []int64{4}, superset.MissingFrom(existing))

	disjoint, err := FromIDs([]int64{7, 8})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, existing.MissingFrom(disjoint))
}

func TestEqualAndReset(t *testing.T) {
	a, _ := FromIDs([]int64{1, 2})
	b, _ := FromIDs([]int64{1, 2})
	c, _ := FromIDs([]int64{2, 1})

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))

	a.Reset()
	require.Equal(t, 0, a.Len())
	require.False(t, a.Contains(1))
	require.NoError(t, a.Add(1))
}
