// Package tags answers consistency questions about attribute values across a
// slice collection: which values occur, how often, and whether they agree.
//
// All functions are pure. Slices that do not expose an attribute are left out
// of the aggregation rather than treated as errors.
package tags

import (
	"cmp"
	"slices"

	"dicomvolume/internal/models"
)

// Getter extracts one attribute value from a slice, reporting whether it is present.
type Getter[T comparable] func(s *models.Slice) (T, bool)

// Scalar reads a single numeric attribute.
func Scalar(name string) Getter[float64] {
	return func(s *models.Slice) (float64, bool) {
		return s.Scalar(name)
	}
}

// Component reads element idx of a vector-valued attribute,
// e.g. Component(models.TagImagePositionPatient, 2) for the principal position.
func Component(name string, idx int) Getter[float64] {
	return func(s *models.Slice) (float64, bool) {
		v, ok := s.Vector(name)
		if !ok || idx < 0 || idx >= len(v) {
			return 0, false
		}
		return v[idx], true
	}
}

// Text reads an attribute as text.
func Text(name string) Getter[string] {
	return func(s *models.Slice) (string, bool) {
		return s.Text(name)
	}
}

// PairOf reads the first two elements of a vector attribute as a tuple.
func PairOf(name string) Getter[[2]float64] {
	return func(s *models.Slice) ([2]float64, bool) {
		v, ok := s.Vector(name)
		if !ok || len(v) < 2 {
			return [2]float64{}, false
		}
		return [2]float64{v[0], v[1]}, true
	}
}

// ArrayShape reads the pixel array shape.
func ArrayShape() Getter[[2]int] {
	return func(s *models.Slice) ([2]int, bool) {
		if s.Pixels == nil {
			return [2]int{}, false
		}
		return s.Shape(), true
	}
}

// Values returns the attribute value of every slice that has it, in slice order.
func Values[T comparable](sl []*models.Slice, get Getter[T]) []T {
	out := make([]T, 0, len(sl))
	for _, s := range sl {
		if v, ok := get(s); ok {
			out = append(out, v)
		}
	}
	return out
}

// Unique returns the distinct values in first-seen order.
func Unique[T comparable](sl []*models.Slice, get Getter[T]) []T {
	return distinct(Values(sl, get))
}

// SortedUnique returns the distinct values in ascending order.
func SortedUnique[T cmp.Ordered](sl []*models.Slice, get Getter[T]) []T {
	u := Unique(sl, get)
	slices.Sort(u)
	return u
}

// Counts returns how many times each value occurs.
func Counts[T comparable](sl []*models.Slice, get Getter[T]) map[T]int {
	return countOf(Values(sl, get))
}

// IsConsistent reports whether at most one distinct value occurs.
func IsConsistent[T comparable](sl []*models.Slice, get Getter[T]) bool {
	return len(Unique(sl, get)) <= 1
}

// IsUnique reports whether every slice exposing the attribute has a different value.
func IsUnique[T comparable](sl []*models.Slice, get Getter[T]) bool {
	vals := Values(sl, get)
	return len(distinct(vals)) == len(vals)
}

// ModeOf returns the most common attribute value across the slices.
func ModeOf[T cmp.Ordered](sl []*models.Slice, get Getter[T]) (T, bool) {
	return Mode(Values(sl, get))
}

// Mode returns the most frequent value. Ties go to the smallest value so the
// result does not depend on input order. ok is false for empty input.
func Mode[T cmp.Ordered](values []T) (mode T, ok bool) {
	best := 0
	for v, n := range countOf(values) {
		if n > best || (n == best && cmp.Less(v, mode)) {
			mode, best = v, n
		}
	}
	return mode, best > 0
}

// ModeFunc returns the most frequent value of a non-ordered type. Ties go to
// the value seen first.
func ModeFunc[T comparable](values []T) (mode T, ok bool) {
	counts := countOf(values)
	best := 0
	for _, v := range distinct(values) {
		if counts[v] > best {
			mode, best = v, counts[v]
		}
	}
	return mode, best > 0
}

func distinct[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func countOf[T comparable](values []T) map[T]int {
	counts := make(map[T]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	return counts
}
