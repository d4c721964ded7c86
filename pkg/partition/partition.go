// Package partition splits a labeled dataset into non-IID client shards.
package partition

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidClientID = errors.New("client id must be within [1, total clients]")
	ErrInvalidTotal    = errors.New("total clients must be positive")
)

// NonIID sorts items by label, keeping the original order among equal labels,
// and returns the contiguous slice owned by clientID. Client ids are 1-indexed
// and every shard holds len(items)/totalClients items; the remainder is left
// out. The input is not modified.
func NonIID[T any](items []T, label func(T) int, clientID, totalClients int) ([]T, error) {
	if totalClients <= 0 {
		return nil, ErrInvalidTotal
	}
	if clientID < 1 || clientID > totalClients {
		return nil, fmt.Errorf("%w: got %d of %d", ErrInvalidClientID, clientID, totalClients)
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return label(a) - label(b)
	})

	size := len(sorted) / totalClients
	start := (clientID - 1) * size

	return sorted[start : start+size : start+size], nil
}

// Labels returns the distinct labels of items in ascending order.
func Labels[T any](items []T, label func(T) int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, it := range items {
		l := label(it)
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	slices.Sort(out)

	return out
}
