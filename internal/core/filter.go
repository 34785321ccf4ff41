package core

import "strings"

// Criteria narrows the displayed transactions. Empty fields match everything.
type Criteria struct {
	Search   string `json:"search"`
	Category string `json:"category"`
}

// IsZero reports whether c places no constraint at all.
func (c Criteria) IsZero() bool {
	return c.Search == "" && c.Category == ""
}

// Matches reports whether t satisfies both predicates of c: a
// case-insensitive substring match on the description and an exact match on
// the category.
func (c Criteria) Matches(t Transaction) bool {
	if c.Search != "" && !strings.Contains(strings.ToLower(t.Description), strings.ToLower(c.Search)) {
		return false
	}
	if c.Category != "" && t.Category != c.Category {
		return false
	}
	return true
}

// Filter returns the transactions matching c in their original order. The
// result is always a fresh slice; txs is never modified.
func Filter(txs []Transaction, c Criteria) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if c.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// Categories returns the distinct categories of txs in first-seen order.
func Categories(txs []Transaction) []string {
	seen := make(map[string]struct{}, len(txs))
	out := make([]string, 0)
	for _, t := range txs {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, t.Category)
	}
	return out
}
