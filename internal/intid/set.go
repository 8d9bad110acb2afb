package intid

import (
	"slices"

	"github.com/RoaringBitmap/roaring"
)

// Set is an immutable set of identifiers iterated in ascending order.
type Set interface {
	Len() int
	IsEmpty() bool
	Contains(id int32) bool
	ForEach(fn func(id int32))
	ToArray() []int32
	// With returns the union of this set and ids.
	With(ids ...int32) Set
	Equal(other Set) bool
}

var emptySetValue = emptySet{}

// EmptySet returns the shared empty set.
func EmptySet() Set { return emptySetValue }

// SetOf returns a set of the unique values in ids. Duplicates are removed
// before the representation is chosen.
func SetOf(ids ...int32) Set {
	if len(ids) == 0 {
		return emptySetValue
	}
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)
	return fromSorted(unique)
}

// SetOfList returns the unique values of l as a set.
func SetOfList(l List) Set {
	return SetOf(l.ToArray()...)
}

// Union returns a set holding every element of the given sets.
func Union(sets ...Set) Set {
	var all []int32
	for _, s := range sets {
		all = append(all, s.ToArray()...)
	}
	return SetOf(all...)
}

// MapSet applies fn to every element of s in ascending order.
func MapSet[T any](s Set, fn func(int32) T) []T {
	out := make([]T, 0, s.Len())
	s.ForEach(func(id int32) { out = append(out, fn(id)) })
	return out
}

// fromSorted picks a representation for sorted, duplicate-free ids. The
// slice is retained.
func fromSorted(ids []int32) Set {
	switch n := len(ids); {
	case n == 0:
		return emptySetValue
	case n == 1:
		return set1{ids[0]}
	case n == 2:
		return set2{ids[0], ids[1]}
	case n <= ArrayThreshold:
		return arraySet(ids)
	default:
		bm := roaring.New()
		for _, id := range ids {
			bm.Add(toKey(id))
		}
		bm.RunOptimize()
		return bitmapSet{bm}
	}
}

func equalSets(a, b Set) bool {
	if a.Len() != b.Len() {
		return false
	}
	return slices.Equal(a.ToArray(), b.ToArray())
}

type emptySet struct{}

func (emptySet) Len() int { return 0 }
func (emptySet) IsEmpty() bool { return true }
func (emptySet) Contains(int32) bool { return false }
func (emptySet) ForEach(func(int32)) {}
func (emptySet) ToArray() []int32 { return []int32{} }
func (emptySet) With(ids ...int32) Set { return SetOf(ids...) }
func (emptySet) Equal(other Set) bool { return other.Len() == 0 }

type set1 struct{ a int32 }

func (s set1) Len() int { return 1 }
func (s set1) IsEmpty() bool { return false }
func (s set1) Contains(id int32) bool { return s.a == id }
func (s set1) ForEach(fn func(int32)) { fn(s.a) }
func (s set1) ToArray() []int32 { return []int32{s.a} }
func (s set1) With(ids ...int32) Set { return SetOf(append([]int32{s.a}, ids...)...) }
func (s set1) Equal(other Set) bool { return equalSets(s, other) }

// set2 holds a < b.
type set2 struct{ a, b int32 }

func (s set2) Len() int { return 2 }
func (s set2) IsEmpty() bool { return false }
func (s set2) Contains(id int32) bool { return s.a == id || s.b == id }
func (s set2) ToArray() []int32 { return []int32{s.a, s.b} }
func (s set2) With(ids ...int32) Set { return SetOf(append([]int32{s.a, s.b}, ids...)...) }
func (s set2) Equal(other Set) bool { return equalSets(s, other) }

func (s set2) ForEach(fn func(int32)) {
	fn(s.a)
	fn(s.b)
}

// arraySet is sorted and duplicate-free.
type arraySet []int32

func (s arraySet) Len() int { return len(s) }
func (s arraySet) IsEmpty() bool { return len(s) == 0 }
func (s arraySet) ToArray() []int32 { return slices.Clone(s) }
func (s arraySet) Equal(other Set) bool { return equalSets(s, other) }

func (s arraySet) Contains(id int32) bool {
	_, found := slices.BinarySearch(s, id)
	return found
}

func (s arraySet) ForEach(fn func(int32)) {
	for _, id := range s {
		fn(id)
	}
}

func (s arraySet) With(ids ...int32) Set {
	out := make([]int32, 0, len(s)+len(ids))
	out = append(out, s...)
	out = append(out, ids...)
	return SetOf(out...)
}

// bitmapSet stores ids with the sign bit flipped so the bitmap's unsigned
// order matches signed int32 order.
type bitmapSet struct {
	bm *roaring.Bitmap
}

func (s bitmapSet) Len() int { return int(s.bm.GetCardinality()) }
func (s bitmapSet) IsEmpty() bool { return s.bm.IsEmpty() }
func (s bitmapSet) Contains(id int32) bool { return s.bm.Contains(toKey(id)) }
func (s bitmapSet) Equal(other Set) bool { return equalSets(s, other) }

func (s bitmapSet) ForEach(fn func(int32)) {
	it := s.bm.Iterator()
	for it.HasNext() {
		fn(fromKey(it.Next()))
	}
}

func (s bitmapSet) ToArray() []int32 {
	keys := s.bm.ToArray()
	out := make([]int32, len(keys))
	for i, k := range keys {
		out[i] = fromKey(k)
	}
	return out
}

func (s bitmapSet) With(ids ...int32) Set {
	if len(ids) == 0 {
		return s
	}
	bm := s.bm.Clone()
	for _, id := range ids {
		bm.Add(toKey(id))
	}
	return bitmapSet{bm}
}

func toKey(id int32) uint32 {
	return uint32(id) ^ 0x80000000
}

func fromKey(k uint32) int32 {
	return int32(k ^ 0x80000000)
}
