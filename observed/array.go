package observed

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/delaneyj/statesync/registry"
)

// Array wraps a slice through a pointer, so appends and splices stay visible
// to every holder of the pointer.
//
// In-place methods (Fill, Sort, Reverse, CopyWithin) notify owners with the
// mutated slice and return the wrapper for chaining. Methods that add or
// remove elements notify once with the slice and return their usual result.
type Array[T any] struct {
	handler
	raw *[]T
}

func WrapArray[T any](raw *[]T, owner registry.Subscriber) (*Array[T], error) {
	if raw == nil {
		return nil, ErrNilObject
	}
	return wrapOnce(raw, owner, func(key identityKey) *Array[T] {
		return &Array[T]{handler: newHandler("array", key), raw: raw}
	})
}

func (a *Array[T]) Raw() any { return a.raw }

func (a *Array[T]) Len() int { return len(*a.raw) }

// At returns element i. Negative i counts from the end.
func (a *Array[T]) At(i int) (T, bool) {
	var zero T
	s := *a.raw
	if i < 0 {
		i += len(s)
	}
	if i < 0 || i >= len(s) {
		return zero, false
	}
	a.notifyRead(strconv.Itoa(i))
	return s[i], true
}

// Values returns a copy of the elements.
func (a *Array[T]) Values() []T {
	return slices.Clone(*a.raw)
}

// SetAt replaces element i. It reports false when i is out of range.
func (a *Array[T]) SetAt(i int, v T) bool {
	s := *a.raw
	if i < 0 || i >= len(s) {
		return false
	}
	if ShallowEqual(s[i], v) {
		return true
	}
	s[i] = v
	a.notifyChanged("set", strconv.Itoa(i), v)
	return true
}

func (a *Array[T]) Push(items ...T) int {
	if len(items) > 0 {
		*a.raw = append(*a.raw, items...)
		a.notifyContainer("push")
	}
	return len(*a.raw)
}

func (a *Array[T]) Pop() (T, bool) {
	var zero T
	s := *a.raw
	if len(s) == 0 {
		return zero, false
	}
	v := s[len(s)-1]
	*a.raw = slices.Delete(s, len(s)-1, len(s))
	a.notifyContainer("pop")
	return v, true
}

func (a *Array[T]) Shift() (T, bool) {
	var zero T
	s := *a.raw
	if len(s) == 0 {
		return zero, false
	}
	v := s[0]
	*a.raw = slices.Delete(s, 0, 1)
	a.notifyContainer("shift")
	return v, true
}

func (a *Array[T]) Unshift(items ...T) int {
	if len(items) > 0 {
		*a.raw = slices.Insert(*a.raw, 0, items...)
		a.notifyContainer("unshift")
	}
	return len(*a.raw)
}

// Splice removes deleteCount elements at start, inserts items in their place
// and returns the removed elements. Negative start counts from the end.
func (a *Array[T]) Splice(start, deleteCount int, items ...T) []T {
	s := *a.raw
	from := relativeIndex(start, len(s))
	deleteCount = min(max(deleteCount, 0), len(s)-from)
	removed := slices.Clone(s[from : from+deleteCount])
	if deleteCount == 0 && len(items) == 0 {
		return removed
	}
	*a.raw = slices.Replace(s, from, from+deleteCount, items...)
	a.notifyContainer("splice")
	return removed
}

func (a *Array[T]) Fill(v T) *Array[T] {
	return a.FillRange(v, 0, len(*a.raw))
}

// FillRange sets elements in [start, end) to v. Negative bounds count from
// the end.
func (a *Array[T]) FillRange(v T, start, end int) *Array[T] {
	s := *a.raw
	from, to := relativeIndex(start, len(s)), relativeIndex(end, len(s))
	for i := from; i < to; i++ {
		s[i] = v
	}
	a.notifyContainer("fill")
	return a
}

// Sort sorts stably with cmp. A nil cmp orders elements by their fmt.Sprint
// text.
func (a *Array[T]) Sort(cmp func(x, y T) int) *Array[T] {
	if cmp == nil {
		cmp = func(x, y T) int {
			return strings.Compare(fmt.Sprint(x), fmt.Sprint(y))
		}
	}
	slices.SortStableFunc(*a.raw, cmp)
	a.notifyContainer("sort")
	return a
}

func (a *Array[T]) Reverse() *Array[T] {
	slices.Reverse(*a.raw)
	a.notifyContainer("reverse")
	return a
}

// CopyWithin copies [start, end) over the elements beginning at target.
func (a *Array[T]) CopyWithin(target, start, end int) *Array[T] {
	s := *a.raw
	to := relativeIndex(target, len(s))
	from, final := relativeIndex(start, len(s)), relativeIndex(end, len(s))
	if count := min(final-from, len(s)-to); count > 0 {
		copy(s[to:to+count], s[from:from+count])
	}
	a.notifyContainer("copyWithin")
	return a
}

func (a *Array[T]) notifyContainer(op string) {
	a.notifyChanged(op, "", *a.raw)
}

func relativeIndex(i, n int) int {
	if i < 0 {
		return max(n+i, 0)
	}
	return min(i, n)
}

func (a *Array[T]) MarshalJSON() ([]byte, error) {
	if a.raw == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*a.raw)
}

// UnmarshalJSON replaces the elements in place and notifies owners. A zero
// Array gets a fresh backing slice.
func (a *Array[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if a.raw == nil {
		a.raw = &items
		a.handler = newHandler("array", keyOf(a.raw))
		identities.store(a.key, a)
		return nil
	}
	*a.raw = items
	a.notifyContainer("unmarshal")
	return nil
}
