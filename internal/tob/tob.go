// Package tob implements the time-ordered multiset that backs channel
// pending queues, service request queues, and per-node state history.
//
// Grounded on original_source/src/utils/time_ordered_data.rs: this keeps
// the same entry shape (time, value) and replace-at-exact-time insert
// semantics, but resolves the insertion point with a binary search instead
// of the original's reverse linear scan, since spec.md calls for O(log n)
// insertion.
package tob

import "sort"

// Entry pairs a simulated time with its payload.
type Entry[T any] struct {
	Time  float64
	Value T
}

// Buffer is an append-ordered, time-sorted multiset. Ties at the same
// quantized time preserve insertion order.
type Buffer[T any] struct {
	quantum float64
	data    []Entry[T]
}

// New constructs an empty buffer. quantum is the half-width tolerance used
// to decide whether two times are "the same" for replace/pop_at purposes;
// a non-positive quantum requires exact equality.
func New[T any](quantum float64) *Buffer[T] {
	if quantum < 0 {
		quantum = 0
	}
	return &Buffer[T]{quantum: quantum}
}

func (b *Buffer[T]) sameTime(a, t float64) bool {
	if b.quantum <= 0 {
		return a == t
	}
	diff := a - t
	if diff < 0 {
		diff = -diff
	}
	return diff < b.quantum/2
}

// insertionRange returns [lo, hi): the half-open run of existing entries
// considered equal-time to t under the buffer's quantum.
func (b *Buffer[T]) insertionRange(t float64) (lo, hi int) {
	half := b.quantum / 2
	lo = sort.Search(len(b.data), func(i int) bool {
		return b.data[i].Time > t-half || b.sameTime(b.data[i].Time, t)
	})
	hi = lo
	for hi < len(b.data) && b.sameTime(b.data[hi].Time, t) {
		hi++
	}
	return lo, hi
}

// Insert places (t, value). When replace is true and an entry already
// exists at exactly t (within half quantum), the first such entry is
// overwritten in place; otherwise the entry is appended after any existing
// entries at that time, preserving non-decreasing time order.
func (b *Buffer[T]) Insert(t float64, value T, replace bool) {
	lo, hi := b.insertionRange(t)
	if replace && lo < hi {
		b.data[lo] = Entry[T]{Time: t, Value: value}
		return
	}
	entry := Entry[T]{Time: t, Value: value}
	b.data = append(b.data, Entry[T]{})
	copy(b.data[hi+1:], b.data[hi:])
	b.data[hi] = entry
}

// PeekMin returns the smallest-time entry without removing it.
func (b *Buffer[T]) PeekMin() (Entry[T], bool) {
	if len(b.data) == 0 {
		var zero Entry[T]
		return zero, false
	}
	return b.data[0], true
}

// MinTime reports the smallest time present, if any.
func (b *Buffer[T]) MinTime() (float64, bool) {
	e, ok := b.PeekMin()
	return e.Time, ok
}

// MaxTime reports the largest time present, if any.
func (b *Buffer[T]) MaxTime() (float64, bool) {
	if len(b.data) == 0 {
		return 0, false
	}
	return b.data[len(b.data)-1].Time, true
}

// PopAt removes and returns, in insertion order, every entry within half a
// quantum of t. A missing time returns an empty, non-nil-error slice.
func (b *Buffer[T]) PopAt(t float64) []Entry[T] {
	lo, hi := b.insertionRange(t)
	if lo == hi {
		return nil
	}
	out := make([]Entry[T], hi-lo)
	copy(out, b.data[lo:hi])
	b.data = append(b.data[:lo], b.data[hi:]...)
	return out
}

// IterFrom returns a non-consuming, ascending slice of entries starting at
// the first entry with time >= t (within quantum tolerance on the low
// side, matching the original's reverse-scan insertion-point semantics).
func (b *Buffer[T]) IterFrom(t float64) []Entry[T] {
	lo, _ := b.insertionRange(t)
	out := make([]Entry[T], len(b.data)-lo)
	copy(out, b.data[lo:])
	return out
}

// Before returns the latest entry with time <= t: the exact tie-window
// entry at t if one exists, otherwise the entry immediately preceding
// the insertion point for t.
func (b *Buffer[T]) Before(t float64) (Entry[T], bool) {
	lo, hi := b.insertionRange(t)
	if hi > lo {
		return b.data[lo], true
	}
	if lo == 0 {
		var zero Entry[T]
		return zero, false
	}
	return b.data[lo-1], true
}

// Len reports the number of entries currently buffered.
func (b *Buffer[T]) Len() int { return len(b.data) }

// All returns every entry in ascending time/insertion order without
// mutating the buffer. Callers must not retain the returned slice across
// further mutations.
func (b *Buffer[T]) All() []Entry[T] { return b.data }

// Remove deletes and returns the first entry at exactly t, if present.
func (b *Buffer[T]) Remove(t float64) (Entry[T], bool) {
	lo, hi := b.insertionRange(t)
	if lo == hi {
		var zero Entry[T]
		return zero, false
	}
	entry := b.data[lo]
	b.data = append(b.data[:lo], b.data[lo+1:]...)
	return entry, true
}
