package intid

import "slices"

// List is an immutable ordered sequence of identifiers. Duplicates are
// allowed.
type List interface {
	Len() int
	IsEmpty() bool
	Get(i int) int32
	Contains(id int32) bool
	ForEach(fn func(id int32))
	ToArray() []int32
	// With returns a new list with ids appended.
	With(ids ...int32) List
}

var emptyListValue = emptyList{}

// EmptyList returns the shared empty list.
func EmptyList() List { return emptyListValue }

// ListOf returns a list holding ids in order. The argument slice is copied.
func ListOf(ids ...int32) List {
	switch len(ids) {
	case 0:
		return emptyListValue
	case 1:
		return list1{ids[0]}
	case 2:
		return list2{ids[0], ids[1]}
	default:
		return arrayList(slices.Clone(ids))
	}
}

// MapList applies fn to every element of l, in order.
func MapList[T any](l List, fn func(int32) T) []T {
	out := make([]T, 0, l.Len())
	l.ForEach(func(id int32) { out = append(out, fn(id)) })
	return out
}

type emptyList struct{}

func (emptyList) Len() int { return 0 }
func (emptyList) IsEmpty() bool { return true }
func (emptyList) Get(i int) int32 { panic(indexOutOfRange(i, 0)) }
func (emptyList) Contains(int32) bool { return false }
func (emptyList) ForEach(func(int32)) {}
func (emptyList) ToArray() []int32 { return []int32{} }
func (emptyList) With(ids ...int32) List { return ListOf(ids...) }

type list1 struct{ a int32 }

func (l list1) Len() int { return 1 }
func (l list1) IsEmpty() bool { return false }
func (l list1) Contains(id int32) bool { return l.a == id }
func (l list1) ForEach(fn func(int32)) { fn(l.a) }
func (l list1) ToArray() []int32 { return []int32{l.a} }

func (l list1) Get(i int) int32 {
	if i != 0 {
		panic(indexOutOfRange(i, 1))
	}
	return l.a
}

func (l list1) With(ids ...int32) List {
	return ListOf(append([]int32{l.a}, ids...)...)
}

type list2 struct{ a, b int32 }

func (l list2) Len() int { return 2 }
func (l list2) IsEmpty() bool { return false }
func (l list2) Contains(id int32) bool { return l.a == id || l.b == id }
func (l list2) ToArray() []int32 { return []int32{l.a, l.b} }

func (l list2) ForEach(fn func(int32)) {
	fn(l.a)
	fn(l.b)
}

func (l list2) Get(i int) int32 {
	switch i {
	case 0:
		return l.a
	case 1:
		return l.b
	}
	panic(indexOutOfRange(i, 2))
}

func (l list2) With(ids ...int32) List {
	return ListOf(append([]int32{l.a, l.b}, ids...)...)
}

type arrayList []int32

func (l arrayList) Len() int { return len(l) }
func (l arrayList) IsEmpty() bool { return len(l) == 0 }
func (l arrayList) Get(i int) int32 { return l[i] }
func (l arrayList) Contains(id int32) bool { return slices.Contains(l, id) }
func (l arrayList) ToArray() []int32 { return slices.Clone(l) }

func (l arrayList) ForEach(fn func(int32)) {
	for _, id := range l {
		fn(id)
	}
}

func (l arrayList) With(ids ...int32) List {
	out := make([]int32, 0, len(l)+len(ids))
	out = append(out, l...)
	out = append(out, ids...)
	return arrayList(out)
}
