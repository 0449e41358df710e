package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/stockflow/importer/internal/schema"
	"github.com/stockflow/importer/internal/tabular"
)

// QuantityKind classifies a detected quantity relationship.
type QuantityKind string

const (
	// QuantityMultiplier means column B equals column A times a single
	// integer factor across the file, the signature of a pack-size
	// conversion between "packs" and "units" columns.
	QuantityMultiplier QuantityKind = "multiplier"
	// QuantityPackCalculation is a multiplier whose headers identify the
	// pack side and the unit side.
	QuantityPackCalculation QuantityKind = "pack_calculation"
	// QuantityUnitCalculation is the inverse direction.
	QuantityUnitCalculation QuantityKind = "unit_calculation"
)

// QuantityRelationship reports a factor linking two quantity columns.
type QuantityRelationship struct {
	Kind       QuantityKind `json:"kind"`
	Primary    string       `json:"primary"`
	Related    []string     `json:"related"`
	PackSize   int          `json:"packSize,omitempty"`
	Formula    string       `json:"formula"`
	Confidence float64      `json:"confidence"`
}

// DuplicateColumns flags two quantity-like columns carrying the same
// values, usually an export that includes the same measure twice under
// different headers.
type DuplicateColumns struct {
	HeaderA    string  `json:"headerA"`
	HeaderB    string  `json:"headerB"`
	MatchRatio float64 `json:"matchRatio"`
}

const (
	// maxPackSize bounds the integer factor search. Real pack sizes in
	// this domain top out well below 100.
	maxPackSize = 100
	// duplicateThreshold is the identical-value ratio above which two
	// columns are flagged as duplicates.
	duplicateThreshold = 0.95
)

var quantityMarkers = []string{
	"quantity", "qty", "pack", "packs", "units", "unit",
	"multiplier", "stock", "count", "cases", "on hand",
}

// quantityHeaders filters numeric columns down to quantity-flavored ones.
func quantityHeaders(cols []column) []column {
	var out []column
	for _, c := range cols {
		n := schema.NormalizeHeader(c.header)
		for _, marker := range quantityMarkers {
			if strings.Contains(n, marker) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// DetectQuantityRelationships looks for a single integer factor linking
// each pair of quantity columns. A factor is reported only when exactly
// one candidate integer reconciles every shared row; zero candidates or
// several mean the data is ambiguous and silence is the honest answer.
func DetectQuantityRelationships(headers []string, rows []tabular.Row) []QuantityRelationship {
	cols := quantityHeaders(numericColumns(headers, rows))
	var out []QuantityRelationship
	for i := 0; i < len(cols); i++ {
		for j := 0; j < len(cols); j++ {
			if i == j {
				continue
			}
			a, b := cols[i], cols[j]
			factor, shared := consistentFactor(a, b)
			if factor < 2 || shared == 0 {
				continue
			}
			kind := classifyQuantityPair(a.header, b.header)
			out = append(out, QuantityRelationship{
				Kind:       kind,
				Primary:    b.header,
				Related:    []string{a.header},
				PackSize:   factor,
				Formula:    fmt.Sprintf("%s = %s × %d", b.header, a.header, factor),
				Confidence: 1,
			})
		}
	}
	return out
}

// consistentFactor returns the single integer k ≤ maxPackSize with
// b ≈ a×k on every shared nonzero row, or 0 when no unique k exists.
func consistentFactor(a, b column) (factor, shared int) {
	candidates := make(map[int]bool)
	first := true
	for i := range a.values {
		if !a.present[i] || !b.present[i] {
			continue
		}
		av, bv := a.values[i], b.values[i]
		if av == 0 || bv == 0 {
			continue
		}
		shared++

		rowCandidates := make(map[int]bool)
		for k := 2; k <= maxPackSize; k++ {
			if withinTolerance(av*float64(k), bv) {
				rowCandidates[k] = true
			}
		}
		if first {
			candidates = rowCandidates
			first = false
			continue
		}
		for k := range candidates {
			if !rowCandidates[k] {
				delete(candidates, k)
			}
		}
		if len(candidates) == 0 {
			return 0, shared
		}
	}
	if len(candidates) != 1 {
		return 0, shared
	}
	for k := range candidates {
		return k, shared
	}
	return 0, shared
}

// classifyQuantityPair names the direction when the headers make it
// recognizable, otherwise stays with the generic multiplier kind.
func classifyQuantityPair(smaller, larger string) QuantityKind {
	s := schema.NormalizeHeader(smaller)
	l := schema.NormalizeHeader(larger)
	sIsPacks := strings.Contains(s, "pack") || strings.Contains(s, "case")
	lIsUnits := strings.Contains(l, "unit") || strings.Contains(l, "total")
	if sIsPacks && lIsUnits {
		return QuantityUnitCalculation
	}
	if strings.Contains(l, "pack") || strings.Contains(l, "case") {
		return QuantityPackCalculation
	}
	return QuantityMultiplier
}

// DetectDuplicateColumns flags quantity-like column pairs whose values
// agree on more than duplicateThreshold of their shared rows.
func DetectDuplicateColumns(headers []string, rows []tabular.Row) []DuplicateColumns {
	cols := quantityHeaders(numericColumns(headers, rows))
	var out []DuplicateColumns
	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			a, b := cols[i], cols[j]
			shared, same := 0, 0
			for r := range a.values {
				if !a.present[r] || !b.present[r] {
					continue
				}
				shared++
				if math.Abs(a.values[r]-b.values[r]) <= absTolerance {
					same++
				}
			}
			if shared == 0 {
				continue
			}
			ratio := float64(same) / float64(shared)
			if ratio > duplicateThreshold {
				out = append(out, DuplicateColumns{HeaderA: a.header, HeaderB: b.header, MatchRatio: ratio})
			}
		}
	}
	return out
}
