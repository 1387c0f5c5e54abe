// Package ordering keeps the curated display order of the homepage slots.
package ordering

import "github.com/bilgisen/altavoz/internal/models"

// Reconcile merges a persisted id order with the live post set. Posts named
// by persistedIDs come first in that order; ids with no live post are
// skipped; the remaining live posts follow in their own order. Every live
// post appears exactly once.
func Reconcile(persistedIDs []string, live []models.Post) []models.Post {
	if len(persistedIDs) == 0 {
		return append([]models.Post(nil), live...)
	}

	byID := make(map[string]models.Post, len(live))
	for _, p := range live {
		if _, ok := byID[p.ID]; !ok {
			byID[p.ID] = p
		}
	}

	result := make([]models.Post, 0, len(live))
	consumed := make(map[string]bool, len(live))

	for _, id := range persistedIDs {
		p, ok := byID[id]
		if !ok || consumed[id] {
			continue
		}
		result = append(result, p)
		consumed[id] = true
	}

	for _, p := range live {
		if consumed[p.ID] {
			continue
		}
		result = append(result, p)
		consumed[p.ID] = true
	}
	return result
}

// Move relocates the element at src to dst, shifting the elements in
// between. It returns a new slice and leaves items untouched. Both indexes
// must be in range.
func Move[T any](items []T, src, dst int) []T {
	out := make([]T, 0, len(items))
	out = append(out, items[:src]...)
	out = append(out, items[src+1:]...)

	moved := items[src]
	out = append(out, moved)
	copy(out[dst+1:], out[dst:len(out)-1])
	out[dst] = moved
	return out
}

// dedupe keeps the first occurrence of every id and drops empty ones.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
