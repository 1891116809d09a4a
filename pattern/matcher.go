package pattern

import (
	"cmp"
	"slices"
)

type entry[T any] struct {
	key    string
	pairs  map[string]string
	seq    uint64
	values []T
}

// Matcher maps patterns to registered values.
// Values registered with the same canonical pattern share one entry and keep their registration order.
//
// A Matcher is not concurrency safe, the owner is expected to serialize access.
type Matcher[T any] struct {
	equal func(a, b T) bool
	index map[string]*entry[T]
	seq   uint64
}

// NewMatcher creates a [Matcher] that uses equal to identify values for [Matcher.RemoveValue].
func NewMatcher[T any](equal func(a, b T) bool) *Matcher[T] {
	if equal == nil {
		panic("nil equality function")
	}
	return &Matcher[T]{
		equal: equal,
		index: map[string]*entry[T]{},
	}
}

// NewComparableMatcher creates a [Matcher] that compares values with ==.
func NewComparableMatcher[T comparable]() *Matcher[T] {
	return NewMatcher(func(a, b T) bool {
		return a == b
	})
}

// Add appends val to the entry for the canonical form of p.
// No uniqueness check is done.
func (m *Matcher[T]) Add(p Pattern, val T) {
	key, pairs := canonical(p)
	e, ok := m.index[key]
	if !ok {
		m.seq++
		e = &entry[T]{key: key, pairs: pairs, seq: m.seq}
		m.index[key] = e
	}
	e.values = append(e.values, val)
}

// Find returns the values of every entry whose pattern is covered by p, most specific entry first.
// Entries with the same number of keys are returned in the order they were created.
// An empty p matches every entry.
// The returned slice is never nil.
func (m *Matcher[T]) Find(p Pattern) []T {
	found := make([]T, 0)
	for _, e := range m.matching(p) {
		found = append(found, e.values...)
	}
	return found
}

// First returns the first value that [Matcher.Find] would return.
func (m *Matcher[T]) First(p Pattern) (T, bool) {
	entries := m.matching(p)
	if len(entries) == 0 {
		var zero T
		return zero, false
	}
	return entries[0].values[0], true
}

// Exists reports whether an entry exists for exactly the canonical form of p.
func (m *Matcher[T]) Exists(p Pattern) bool {
	key, _ := canonical(p)
	e, ok := m.index[key]
	return ok && len(e.values) > 0
}

// Remove deletes the whole entry for the canonical form of p.
func (m *Matcher[T]) Remove(p Pattern) bool {
	key, _ := canonical(p)
	if _, ok := m.index[key]; !ok {
		return false
	}
	delete(m.index, key)
	return true
}

// RemoveValue removes the first occurrence of val from the entry for the canonical form of p.
// The entry is deleted if it's left empty.
func (m *Matcher[T]) RemoveValue(p Pattern, val T) bool {
	key, _ := canonical(p)
	e, ok := m.index[key]
	if !ok {
		return false
	}
	for i, v := range e.values {
		if !m.equal(v, val) {
			continue
		}
		e.values = slices.Delete(e.values, i, i+1)
		if len(e.values) == 0 {
			delete(m.index, key)
		}
		return true
	}
	return false
}

// Len returns the number of distinct patterns with registered values.
func (m *Matcher[T]) Len() int {
	return len(m.index)
}

// Clear removes every entry.
func (m *Matcher[T]) Clear() {
	m.index = map[string]*entry[T]{}
}

// Patterns returns the registered patterns in [Matcher.Find] order.
// Values are returned in their canonical string form.
func (m *Matcher[T]) Patterns() []Pattern {
	entries := m.matching(nil)
	patterns := make([]Pattern, len(entries))
	for i, e := range entries {
		p := make(Pattern, len(e.pairs))
		for k, v := range e.pairs {
			p[k] = v
		}
		patterns[i] = p
	}
	return patterns
}

func (m *Matcher[T]) matching(p Pattern) []*entry[T] {
	_, pairs := canonical(p)
	var matched []*entry[T]
	for _, e := range m.index {
		if len(pairs) == 0 || isSubset(e.pairs, pairs) {
			matched = append(matched, e)
		}
	}
	slices.SortFunc(matched, func(a, b *entry[T]) int {
		if c := cmp.Compare(len(b.pairs), len(a.pairs)); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return matched
}
