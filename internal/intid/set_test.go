package intid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOf_Representation(t *testing.T) {
	assert.IsType(t, emptySet{}, SetOf())
	assert.IsType(t, set1{}, SetOf(7))
	assert.IsType(t, set1{}, SetOf(7, 7, 7))
	assert.IsType(t, set2{}, SetOf(9, 3))
	assert.IsType(t, arraySet{}, SetOf(1, 2, 3))
}

func TestSetOf_DuplicatesRemovedBeforeThreshold(t *testing.T) {
	// 1030 inputs but only 1000 unique values: must stay an array.
	ids := make([]int32, 0, 1030)
	for i := int32(0); i < 1000; i++ {
		ids = append(ids, i)
	}
	for i := int32(0); i < 30; i++ {
		ids = append(ids, i)
	}

	s := SetOf(ids...)
	assert.Equal(t, 1000, s.Len())
	assert.IsType(t, arraySet{}, s)
}

func seq(from, n int32) []int32 {
	out := make([]int32, 0, n)
	for i := int32(0); i < n; i++ {
		out = append(out, from+i)
	}
	return out
}

func TestSetOf_ThresholdCrossingPreservesBehavior(t *testing.T) {
	// Include negative ids to exercise the sign-bit mapping.
	small := SetOf(seq(-500, 1023)...)
	large := SetOf(seq(-500, 1025)...)

	assert.IsType(t, arraySet{}, small)
	assert.IsType(t, bitmapSet{}, large)
	assert.Equal(t, 1023, small.Len())
	assert.Equal(t, 1025, large.Len())

	for _, id := range seq(-500, 1023) {
		assert.True(t, small.Contains(id))
		assert.True(t, large.Contains(id))
	}
	assert.False(t, small.Contains(523))
	assert.True(t, large.Contains(523))
	assert.False(t, large.Contains(-501))

	// Iteration order is ascending for both representations.
	var prev int32 = -1 << 31
	first := true
	large.ForEach(func(id int32) {
		if !first {
			assert.Less(t, prev, id)
		}
		prev = id
		first = false
	})
	assert.Equal(t, seq(-500, 1025), large.ToArray())
	assert.Equal(t, seq(-500, 1023), small.ToArray())
}

func TestSet_EqualAcrossRepresentations(t *testing.T) {
	ids := seq(1, 1025)
	bitmap := SetOf(ids...)
	require.IsType(t, bitmapSet{}, bitmap)

	// Same content built through With from an array set.
	array := SetOf(ids[:1000]...)
	grown := array.With(ids[1000:]...)
	assert.True(t, bitmap.Equal(grown))
	assert.True(t, grown.Equal(bitmap))

	assert.False(t, bitmap.Equal(array))
	assert.True(t, SetOf(3, 1).Equal(SetOf(1, 3, 3)))
	assert.True(t, EmptySet().Equal(SetOf()))
}

func TestSet_WithDoesNotMutate(t *testing.T) {
	input := []int32{5, 1, 3}
	s := SetOf(input...)
	u := s.With(2, 5)

	assert.Equal(t, []int32{5, 1, 3}, input)
	assert.Equal(t, []int32{1, 3, 5}, s.ToArray())
	assert.Equal(t, []int32{1, 2, 3, 5}, u.ToArray())

	big := SetOf(seq(0, 2000)...)
	bigger := big.With(-1)
	assert.False(t, big.Contains(-1))
	assert.True(t, bigger.Contains(-1))
	assert.Equal(t, 2001, bigger.Len())
}

func TestSet_ToArrayIsACopy(t *testing.T) {
	s := SetOf(1, 2, 3)
	arr := s.ToArray()
	arr[0] = 99
	assert.True(t, s.Contains(1))
	assert.False(t, s.Contains(99))
}

func TestUnionAndMap(t *testing.T) {
	u := Union(SetOf(1, 2), SetOf(2, 3), EmptySet())
	assert.Equal(t, []int32{1, 2, 3}, u.ToArray())

	labels := MapSet(u, func(id int32) string { return string(rune('a' + id - 1)) })
	assert.Equal(t, []string{"a", "b", "c"}, labels)
}
