// Package mapping resolves source spreadsheet headers to canonical fields
// using fuzzy name similarity constrained by the schema rule tables.
package mapping

import (
	"sort"
	"strings"

	"github.com/stockflow/importer/internal/schema"
)

// levenshtein returns the edit distance between two strings, operating on
// bytes since headers are normalized ASCII by the time they get here.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// similarity maps edit distance into [0,1], where 1 is identical.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// tokenSort rebuilds a string from its sorted tokens so word order stops
// mattering: "price unit" and "unit price" compare equal.
func tokenSort(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// expandAbbreviations rewrites each token through the abbreviation table.
// Input is assumed already normalized.
func expandAbbreviations(s string, abbrev map[string]string) string {
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if full, ok := abbrev[tok]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

// scorePattern compares a normalized, abbreviation-expanded header
// against one expanded field pattern. Exact equality short-circuits at
// 1.0; otherwise the best of plain edit similarity, order-insensitive
// similarity, and a length-weighted containment score wins. Containment
// is deliberately weak so "total" buried inside "total quantity" cannot
// fake a close match on its own.
func scorePattern(header, pattern string) float64 {
	if header == pattern {
		return 1
	}
	score := similarity(header, pattern)
	if s := similarity(tokenSort(header), tokenSort(pattern)); s > score {
		score = s
	}
	shorter, longer := header, pattern
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		if s := 0.9 * float64(len(shorter)) / float64(len(longer)); s > score {
			score = s
		}
	}
	return score
}

// normalizeForScoring prepares a raw header or pattern for comparison.
func normalizeForScoring(s string, abbrev map[string]string) string {
	return expandAbbreviations(schema.NormalizeHeader(s), abbrev)
}
