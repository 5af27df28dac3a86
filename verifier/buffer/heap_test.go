package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intLess(a, b int) bool { return a < b }

func TestHeapBuffer_BoundedReplace(t *testing.T) {
	b := NewHeapBuffer[int](3, intLess, nil)
	b.Add(5)
	b.Add(1)
	b.Add(3)
	require.Equal(t, 3, b.Len())

	b.Add(10) // at capacity: pop the current minimum, then push
	require.Equal(t, 3, b.Len())
	first, _ := b.GetFirst()
	require.Equal(t, 3, first) // 1 was the minimum and got dropped
}

func TestHeapBuffer_CheckMarker(t *testing.T) {
	b := NewHeapBuffer[int](10, intLess, nil)
	b.Add(5)
	b.Add(1)
	b.Add(3)

	require.True(t, b.CheckMarker(func(v int) bool { return v == 3 }))
	require.Equal(t, 2, b.Len()) // 1 was discarded
	first, _ := b.GetFirst()
	require.Equal(t, 3, first)

	require.False(t, b.CheckMarker(func(v int) bool { return v == 999 }))
}

func TestHeapBuffer_GetList(t *testing.T) {
	b := NewHeapBuffer[int](10, intLess, nil)
	for _, v := range []int{5, 1, 3, 8, 2} {
		b.Add(v)
	}
	list := b.GetList(func(v int) bool { return v <= 3 })
	require.Equal(t, []int{1, 2, 3}, list)
	require.Equal(t, 2, b.Len())
}

func TestHeapBuffer_Possible(t *testing.T) {
	b := NewHeapBuffer[int](10, intLess, func(v int) bool { return v%2 == 0 })
	b.Add(1)
	b.Add(2)
	b.Add(4)
	require.Equal(t, 2, b.Possible())

	allCandidates := NewHeapBuffer[int](10, intLess, nil)
	allCandidates.Add(1)
	allCandidates.Add(2)
	require.Equal(t, 2, allCandidates.Possible())
}
