package formula

import (
	"strings"
	"testing"

	"github.com/stockflow/importer/internal/tabular"
)

func rowsOf(headers []string, values ...[]string) []tabular.Row {
	rows := make([]tabular.Row, len(values))
	for i, record := range values {
		row := make(tabular.Row, len(headers))
		for j, h := range headers {
			if j < len(record) {
				row[h] = tabular.ParseCell(record[j])
			} else {
				row[h] = tabular.EmptyCell()
			}
		}
		rows[i] = row
	}
	return rows
}

// ----------------------------------------------------------------------
// Numeric parsing
// ----------------------------------------------------------------------

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      float64
		wantValid bool
	}{
		{"plain integer", "42", 42, true},
		{"decimal", "19.99", 19.99, true},
		{"currency", "$1,500.00", 1500, true},
		{"euro", "€25.50", 25.5, true},
		{"accounting negative", "(100.00)", -100, true},
		{"text", "Widget", 0, false},
		{"empty after strip", "$", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumeric(tabular.ParseCell(tt.input))
			if ok != tt.wantValid {
				t.Fatalf("ParseNumeric(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if ok && got != tt.want {
				t.Errorf("ParseNumeric(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------
// Triple detection
// ----------------------------------------------------------------------

func TestDetectMultiplicative(t *testing.T) {
	headers := []string{"Qty", "Unit Price", "Ext Price"}
	rows := rowsOf(headers,
		[]string{"5", "2.50", "12.50"},
		[]string{"12", "1.00", "12.00"},
		[]string{"3", "4.25", "12.75"},
	)

	found := DetectRelationships(headers, rows)
	if len(found) != 1 {
		t.Fatalf("got %d relationships, want 1: %+v", len(found), found)
	}
	rel := found[0]
	if rel.Kind != KindMultiplicative {
		t.Errorf("kind = %v, want multiplicative", rel.Kind)
	}
	if rel.Result != "Ext Price" {
		t.Errorf("result = %q, want Ext Price", rel.Result)
	}
	if rel.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", rel.Confidence)
	}
	if !strings.Contains(rel.Label, "Extended Price") {
		t.Errorf("label = %q, want mention of Extended Price", rel.Label)
	}
}

func TestDetectAdditive(t *testing.T) {
	headers := []string{"Subtotal", "Tax", "Total"}
	rows := rowsOf(headers,
		[]string{"100.00", "8.25", "108.25"},
		[]string{"40.00", "3.30", "43.30"},
		[]string{"10.00", "0.83", "10.83"},
	)

	found := DetectRelationships(headers, rows)
	var additive *Relationship
	for i := range found {
		if found[i].Kind == KindAdditive {
			additive = &found[i]
			break
		}
	}
	if additive == nil {
		t.Fatalf("no additive relationship found in %+v", found)
	}
	if additive.Result != "Total" {
		t.Errorf("result = %q, want Total", additive.Result)
	}
	if additive.Label != "Total = Subtotal + Tax" {
		t.Errorf("label = %q, want archetype label", additive.Label)
	}
}

func TestDetectToleratesRounding(t *testing.T) {
	// 3 × 0.333 = 0.999, reported as 1.00 after currency rounding.
	headers := []string{"Qty", "Unit Price", "Ext Price"}
	rows := rowsOf(headers,
		[]string{"3", "0.333", "1.00"},
		[]string{"6", "0.333", "2.00"},
	)

	found := DetectRelationships(headers, rows)
	if len(found) == 0 {
		t.Error("rounded results within 1% should still match")
	}
}

func TestDetectBelowConfidenceThreshold(t *testing.T) {
	// Only half the rows satisfy the product.
	headers := []string{"A", "B", "C"}
	rows := rowsOf(headers,
		[]string{"2", "3", "6"},
		[]string{"2", "3", "100"},
	)

	if found := DetectRelationships(headers, rows); len(found) != 0 {
		t.Errorf("got %+v, want nothing below 0.85 confidence", found)
	}
}

func TestDetectIgnoresTextColumns(t *testing.T) {
	headers := []string{"Name", "Qty", "Price"}
	rows := rowsOf(headers,
		[]string{"Widget A", "5", "2.50"},
		[]string{"Widget B", "2", "1.00"},
	)

	if found := DetectRelationships(headers, rows); len(found) != 0 {
		t.Errorf("got %+v, want nothing with only two numeric columns", found)
	}
}

func TestDetectSkipsAllZeroRows(t *testing.T) {
	headers := []string{"A", "B", "C"}
	rows := rowsOf(headers,
		[]string{"0", "0", "0"},
		[]string{"0", "0", "0"},
	)

	if found := DetectRelationships(headers, rows); len(found) != 0 {
		t.Errorf("got %+v, want nothing from all-zero rows", found)
	}
}
