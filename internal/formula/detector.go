// Package formula searches mapped numeric columns for algebraic
// relationships: products and sums across column triples, pack-size
// multipliers between quantity columns, and near-identical column pairs.
// Everything here is pure and side-effect free; the detector runs during
// preview so a human can confirm or discard what it finds.
package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stockflow/importer/internal/schema"
	"github.com/stockflow/importer/internal/tabular"
)

// RelationshipKind discriminates the algebraic form of a finding.
type RelationshipKind string

const (
	KindMultiplicative RelationshipKind = "multiplicative"
	KindAdditive       RelationshipKind = "additive"
)

// Relationship is one detected column triple. Confidence is the fraction
// of eligible rows that satisfied the formula within tolerance.
type Relationship struct {
	Kind        RelationshipKind `json:"kind"`
	OperandA    string           `json:"operandA"`
	OperandB    string           `json:"operandB"`
	Result      string           `json:"result"`
	Formula     string           `json:"formula"`
	Label       string           `json:"label,omitempty"`
	Confidence  float64          `json:"confidence"`
	MatchedRows int              `json:"matchedRows"`
	TotalRows   int              `json:"totalRows"`
}

const (
	// relativeTolerance allows 1% drift of the result magnitude, enough
	// to absorb the rounding spreadsheets apply to currency cells.
	relativeTolerance = 0.01
	// minConfidence is the fraction of rows that must satisfy a formula
	// before it is reported.
	minConfidence = 0.85
	// minNumericRatio is the fraction of non-empty values that must
	// parse as numbers for a column to join the search space.
	minNumericRatio = 0.8
	absTolerance    = 1e-9
)

// column holds the per-row numeric values of one header, aligned with
// the source rows. present[i] is false where the cell was empty or
// non-numeric.
type column struct {
	header  string
	values  []float64
	present []bool
}

// DetectRelationships scans every ordered triple of numeric columns for
// multiplicative and additive relationships. Operand order within a pair
// is collapsed since both operations commute; results are emitted in
// header order so output is deterministic.
func DetectRelationships(headers []string, rows []tabular.Row) []Relationship {
	cols := numericColumns(headers, rows)
	if len(cols) < 3 {
		return nil
	}

	var found []Relationship
	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			for k := 0; k < len(cols); k++ {
				if k == i || k == j {
					continue
				}
				a, b, c := cols[i], cols[j], cols[k]
				if rel, ok := checkTriple(a, b, c, KindMultiplicative); ok {
					found = append(found, rel)
				}
				if rel, ok := checkTriple(a, b, c, KindAdditive); ok {
					found = append(found, rel)
				}
			}
		}
	}
	return found
}

func checkTriple(a, b, c column, kind RelationshipKind) (Relationship, bool) {
	matched, total := 0, 0
	for i := range a.values {
		if !a.present[i] || !b.present[i] || !c.present[i] {
			continue
		}
		av, bv, cv := a.values[i], b.values[i], c.values[i]
		if av == 0 && bv == 0 && cv == 0 {
			continue
		}
		total++

		var expect float64
		if kind == KindMultiplicative {
			expect = av * bv
		} else {
			expect = av + bv
		}
		if withinTolerance(expect, cv) {
			matched++
		}
	}
	if total == 0 {
		return Relationship{}, false
	}
	confidence := float64(matched) / float64(total)
	if confidence < minConfidence {
		return Relationship{}, false
	}

	op := "×"
	if kind == KindAdditive {
		op = "+"
	}
	rel := Relationship{
		Kind:        kind,
		OperandA:    a.header,
		OperandB:    b.header,
		Result:      c.header,
		Formula:     fmt.Sprintf("%s %s %s = %s", a.header, op, b.header, c.header),
		Confidence:  confidence,
		MatchedRows: matched,
		TotalRows:   total,
	}
	rel.Label = archetypeLabel(rel)
	return rel, true
}

func withinTolerance(expect, got float64) bool {
	tol := math.Abs(got) * relativeTolerance
	if tol < absTolerance {
		tol = absTolerance
	}
	return math.Abs(expect-got) <= tol
}

// ----------------------------------------------------------------------
// Archetype labeling
// ----------------------------------------------------------------------

// archetype names a well-known formula shape. Matching is purely for the
// human-readable label; detection never depends on it.
type archetype struct {
	label           string
	kind            RelationshipKind
	resultKeywords  []string
	operandKeywords [][]string // one keyword list per operand, order-free
}

var archetypes = []archetype{
	{
		label:           "Extended Price = Quantity × Unit Price",
		kind:            KindMultiplicative,
		resultKeywords:  []string{"extended", "ext", "total", "line", "amount"},
		operandKeywords: [][]string{{"quantity", "qty", "units", "packs"}, {"price", "cost"}},
	},
	{
		label:           "Total Units = Packs × Pack Size",
		kind:            KindMultiplicative,
		resultKeywords:  []string{"total", "units"},
		operandKeywords: [][]string{{"pack", "packs", "cases", "quantity", "qty"}, {"size", "multiplier", "per"}},
	},
	{
		label:           "Total = Subtotal + Tax",
		kind:            KindAdditive,
		resultKeywords:  []string{"total", "amount"},
		operandKeywords: [][]string{{"subtotal", "sub"}, {"tax", "vat", "fee"}},
	},
}

func archetypeLabel(rel Relationship) string {
	result := schema.NormalizeHeader(rel.Result)
	opA := schema.NormalizeHeader(rel.OperandA)
	opB := schema.NormalizeHeader(rel.OperandB)

	for _, arch := range archetypes {
		if arch.kind != rel.Kind {
			continue
		}
		if !containsAnyKeyword(result, arch.resultKeywords) {
			continue
		}
		straight := containsAnyKeyword(opA, arch.operandKeywords[0]) && containsAnyKeyword(opB, arch.operandKeywords[1])
		swapped := containsAnyKeyword(opB, arch.operandKeywords[0]) && containsAnyKeyword(opA, arch.operandKeywords[1])
		if straight || swapped {
			return arch.label
		}
	}
	return ""
}

func containsAnyKeyword(normalized string, keywords []string) bool {
	for _, kw := range keywords {
		for _, token := range strings.Fields(normalized) {
			if token == kw {
				return true
			}
		}
	}
	return false
}

// ----------------------------------------------------------------------
// Numeric column extraction
// ----------------------------------------------------------------------

// numericColumns keeps the headers where at least minNumericRatio of the
// non-empty values parse as numbers, currency symbols and thousands
// separators included.
func numericColumns(headers []string, rows []tabular.Row) []column {
	var cols []column
	for _, header := range headers {
		values := make([]float64, len(rows))
		present := make([]bool, len(rows))
		nonEmpty, numeric := 0, 0
		for i, row := range rows {
			cell := row.Get(header)
			if cell.IsEmpty() {
				continue
			}
			nonEmpty++
			if v, ok := ParseNumeric(cell); ok {
				values[i], present[i] = v, true
				numeric++
			}
		}
		if nonEmpty == 0 || float64(numeric)/float64(nonEmpty) < minNumericRatio {
			continue
		}
		cols = append(cols, column{header: header, values: values, present: present})
	}
	return cols
}

var moneyStripper = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")

// ParseNumeric reads a cell as a number, accepting currency symbols,
// thousands separators, and accounting-style parenthesized negatives in
// text cells. Decimal parsing keeps currency strings exact before the
// final float conversion.
func ParseNumeric(cell tabular.Cell) (float64, bool) {
	switch cell.Kind {
	case tabular.CellNumber:
		return cell.Number, true
	case tabular.CellText:
		s := strings.TrimSpace(cell.Text)
		negative := false
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			negative = true
			s = s[1 : len(s)-1]
		}
		s = moneyStripper.Replace(s)
		if s == "" {
			return 0, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, false
		}
		if negative {
			d = d.Neg()
		}
		return d.InexactFloat64(), true
	default:
		return 0, false
	}
}
