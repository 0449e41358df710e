package formula

import (
	"fmt"
	"strconv"
	"testing"
)

func TestDetectQuantityMultiplier(t *testing.T) {
	headers := []string{"Quantity (Packs)", "Total Units"}
	rows := rowsOf(headers,
		[]string{"2", "24"},
		[]string{"5", "60"},
		[]string{"1", "12"},
	)

	found := DetectQuantityRelationships(headers, rows)
	if len(found) != 1 {
		t.Fatalf("got %d relationships, want 1: %+v", len(found), found)
	}
	rel := found[0]
	if rel.PackSize != 12 {
		t.Errorf("pack size = %d, want 12", rel.PackSize)
	}
	if rel.Kind != QuantityUnitCalculation {
		t.Errorf("kind = %v, want unit_calculation", rel.Kind)
	}
	if rel.Primary != "Total Units" || rel.Related[0] != "Quantity (Packs)" {
		t.Errorf("direction = %q from %q, want Total Units from Quantity (Packs)", rel.Primary, rel.Related)
	}
}

func TestDetectQuantityConflictingFactors(t *testing.T) {
	// Rows that imply different factors leave no consistent answer, so
	// nothing is reported.
	headers := []string{"Qty Packs", "Qty Units"}
	rows := rowsOf(headers,
		[]string{"2", "24"},
		[]string{"2", "12"},
	)

	if found := DetectQuantityRelationships(headers, rows); len(found) != 0 {
		t.Errorf("conflicting factors reported %+v, want nothing", found)
	}
}

func TestDetectQuantityIgnoresNonQuantityHeaders(t *testing.T) {
	headers := []string{"Unit Price", "Total Price"}
	rows := rowsOf(headers,
		[]string{"2.00", "24.00"},
		[]string{"3.00", "36.00"},
	)

	if found := DetectQuantityRelationships(headers, rows); len(found) != 0 {
		t.Errorf("price columns reported %+v, want nothing", found)
	}
}

func TestDetectDuplicateColumns(t *testing.T) {
	headers := []string{"Packs Available", "Available Qty"}
	values := make([][]string, 100)
	for i := range values {
		v := strconv.Itoa(i + 1)
		if i < 4 {
			// Four rows disagree; 96 match.
			values[i] = []string{v, fmt.Sprintf("%d", i+500)}
		} else {
			values[i] = []string{v, v}
		}
	}
	rows := rowsOf(headers, values...)

	found := DetectDuplicateColumns(headers, rows)
	if len(found) != 1 {
		t.Fatalf("got %d duplicate pairs, want 1: %+v", len(found), found)
	}
	dup := found[0]
	if dup.HeaderA != "Packs Available" || dup.HeaderB != "Available Qty" {
		t.Errorf("pair = %q/%q, want both source headers named", dup.HeaderA, dup.HeaderB)
	}
	if dup.MatchRatio != 0.96 {
		t.Errorf("match ratio = %v, want 0.96", dup.MatchRatio)
	}
}

func TestDetectDuplicateColumnsBelowThreshold(t *testing.T) {
	headers := []string{"Packs Available", "Available Qty"}
	values := make([][]string, 100)
	for i := range values {
		v := strconv.Itoa(i + 1)
		if i < 10 {
			values[i] = []string{v, fmt.Sprintf("%d", i+500)}
		} else {
			values[i] = []string{v, v}
		}
	}
	rows := rowsOf(headers, values...)

	if found := DetectDuplicateColumns(headers, rows); len(found) != 0 {
		t.Errorf("90%% agreement reported %+v, want nothing above the 95%% bar", found)
	}
}
