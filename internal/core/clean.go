package core

import (
	"math"
	"strings"
	"time"

	"github.com/stockflow/importer/internal/formula"
	"github.com/stockflow/importer/internal/tabular"
)

// FieldMapping is one confirmed header assignment, as committed by the
// caller after preview. Custom fields carry no canonical target; their
// values pass through into product metadata untouched.
type FieldMapping struct {
	Source        string `json:"sourceHeader"`
	Target        string `json:"targetField,omitempty"`
	IsCustomField bool   `json:"isCustomField,omitempty"`
}

// CanonicalRow is a source row re-keyed by canonical field name.
type CanonicalRow map[string]tabular.Cell

// BuildCanonicalRow applies confirmed mappings to a source row. Unmapped
// headers are dropped; custom-field headers land in the returned
// metadata map keyed by their source header.
func BuildCanonicalRow(row tabular.Row, mappings []FieldMapping) (CanonicalRow, map[string]any) {
	out := make(CanonicalRow, len(mappings))
	var metadata map[string]any
	for _, m := range mappings {
		cell := row.Get(m.Source)
		if m.IsCustomField {
			if !cell.IsEmpty() {
				if metadata == nil {
					metadata = make(map[string]any)
				}
				metadata[m.Source] = cell.String()
			}
			continue
		}
		if m.Target == "" {
			continue
		}
		out[m.Target] = cell
	}
	return out, metadata
}

// Text returns the cleaned string value of a field.
func (r CanonicalRow) Text(field string) string {
	return CleanCell(r[field].String())
}

// Number returns the numeric value of a field, tolerating currency
// symbols and separators.
func (r CanonicalRow) Number(field string) (float64, bool) {
	cell, ok := r[field]
	if !ok || cell.IsEmpty() {
		return 0, false
	}
	return formula.ParseNumeric(cell)
}

// Int truncates the field's numeric value to an integer.
func (r CanonicalRow) Int(field string) (int, bool) {
	v, ok := r.Number(field)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// Date parses the field through the supported date layouts.
func (r CanonicalRow) Date(field string) (time.Time, bool) {
	cell, ok := r[field]
	if !ok || cell.IsEmpty() {
		return time.Time{}, false
	}
	return ParseDate(cell.String())
}

func (r CanonicalRow) Has(field string) bool {
	cell, ok := r[field]
	return ok && !cell.IsEmpty()
}

// CleanCell strips artifacts Excel leaves in exported text: the ="..."
// formula wrapper that protects leading zeros, surrounding quotes, and
// stray whitespace.
func CleanCell(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, `="`) && strings.HasSuffix(value, `"`) && len(value) >= 3 {
		value = value[2 : len(value)-1]
	}
	if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) >= 2 {
		value = value[1 : len(value)-1]
	}
	return strings.TrimSpace(value)
}

// twoDigitYearPivot decides the century for 2-digit years: values at or
// below the pivot are 20xx, above it 19xx. "24" is 2024, "98" is 1998.
const twoDigitYearPivot = 30

var twoDigitLayouts = []string{
	"1/2/06",
	"01/02/06",
	"1-2-06",
	"01-02-06",
}

var fourDigitLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"1-2-2006",
	"01-02-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseDate tries the 4-digit layouts first so "01/02/2006" is never
// misread by a 2-digit pattern, then falls back to 2-digit years with
// the century pivot applied.
func ParseDate(value string) (time.Time, bool) {
	value = CleanCell(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range fourDigitLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	for _, layout := range twoDigitLayouts {
		ts, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		year := ts.Year() % 100
		if year <= twoDigitYearPivot {
			year += 2000
		} else {
			year += 1900
		}
		return time.Date(year, ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location()), true
	}
	return time.Time{}, false
}

// NormalizeItemType folds free-form category text into the lifecycle
// enum. Anything unrecognized becomes evergreen, the catch-all for
// regular stocked items.
func NormalizeItemType(value string) ItemType {
	switch strings.ToLower(CleanCell(value)) {
	case "seasonal", "season":
		return ItemSeasonal
	case "event", "one-time", "one time", "onetime":
		return ItemEvent
	case "completed", "complete", "discontinued", "inactive":
		return ItemCompleted
	default:
		return ItemEvergreen
	}
}

// PacksFromUnits converts a unit quantity into whole packs, rounding up
// so a partial pack still reserves a full one. packSize must be > 0,
// which validation guarantees before any caller gets here.
func PacksFromUnits(units, packSize int) int {
	if packSize <= 0 {
		return units
	}
	return int(math.Ceil(float64(units) / float64(packSize)))
}
