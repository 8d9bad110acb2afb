package calc

// Latest is the outcome of a latest-version query: absent, a single value,
// or a value plus the contradicting values that tied with it.
type Latest[T any] struct {
	value          T
	present        bool
	contradictions []T
}

// Absent returns a Latest with no value.
func Absent[T any]() Latest[T] {
	return Latest[T]{}
}

// Of returns a present Latest. Any contradictions are versions that tied
// with v and could not be ordered.
func Of[T any](v T, contradictions ...T) Latest[T] {
	return Latest[T]{value: v, present: true, contradictions: contradictions}
}

// IsPresent reports whether a value is visible.
func (l Latest[T]) IsPresent() bool { return l.present }

// IsAbsent reports whether no value is visible.
func (l Latest[T]) IsAbsent() bool { return !l.present }

// Get returns the value and whether it is present.
func (l Latest[T]) Get() (T, bool) { return l.value, l.present }

// Value returns the value, or the zero value when absent.
func (l Latest[T]) Value() T { return l.value }

// IsContradicted reports whether other values tied with the latest.
func (l Latest[T]) IsContradicted() bool { return len(l.contradictions) > 0 }

// Contradictions returns the values that tied with the latest.
func (l Latest[T]) Contradictions() []T { return l.contradictions }

// All returns the value followed by its contradictions, or nil when absent.
func (l Latest[T]) All() []T {
	if !l.present {
		return nil
	}
	out := make([]T, 0, 1+len(l.contradictions))
	out = append(out, l.value)
	return append(out, l.contradictions...)
}

// Map converts a Latest[T] into a Latest[U], contradictions included.
func Map[T, U any](l Latest[T], fn func(T) U) Latest[U] {
	if !l.present {
		return Absent[U]()
	}
	var cs []U
	for _, c := range l.contradictions {
		cs = append(cs, fn(c))
	}
	return Of(fn(l.value), cs...)
}
