// Package rank picks the top entries of a list by a numeric key.
package rank

import (
	"cmp"
	"slices"
)

type Order int

const (
	Descending Order = iota
	Ascending
)

// Top returns at most n items sorted by key in the given order. Items with
// equal keys keep their input order. The input slice is not modified.
func Top[T any](items []T, key func(T) float64, n int, order Order) []T {
	if n <= 0 || len(items) == 0 {
		return []T{}
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		if order == Ascending {
			return cmp.Compare(key(a), key(b))
		}
		return cmp.Compare(key(b), key(a))
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Sort orders all items by key without truncating.
func Sort[T any](items []T, key func(T) float64, order Order) []T {
	return Top(items, key, len(items), order)
}
