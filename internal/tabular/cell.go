// Package tabular decodes warehouse exports (CSV, TSV, XLSX) into an
// ordered header list plus rows of typed cells, and classifies the
// decoded table as an inventory export, an order export, or both.
package tabular

import (
	"strconv"
	"strings"
)

// CellKind discriminates the three value shapes a parsed cell can hold.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
)

// Cell is a single parsed value. The kind is decided once during parsing
// so downstream stages never re-interpret raw strings.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
}

func EmptyCell() Cell {
	return Cell{Kind: CellEmpty}
}

func TextCell(s string) Cell {
	return Cell{Kind: CellText, Text: s}
}

func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Number: f}
}

// ParseCell converts a raw string from a source file into a typed cell.
// Whitespace-only values collapse to empty. Values that parse as a plain
// number become numeric; everything else stays text, including currency
// and percent strings, which keep their original form for later cleaning.
func ParseCell(raw string) Cell {
	s := strings.TrimSpace(raw)
	if s == "" {
		return EmptyCell()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberCell(f)
	}
	return TextCell(s)
}

func (c Cell) IsEmpty() bool {
	return c.Kind == CellEmpty
}

// String returns the cell's value as text. Numbers render without a
// forced exponent so "1500" round-trips as "1500", not "1.5e+03".
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	default:
		return ""
	}
}

// AsNumber reports the numeric value of the cell. Text cells are retried
// through the numeric parser so "42" typed into a text column still
// counts; genuinely non-numeric text reports false.
func (c Cell) AsNumber() (float64, bool) {
	switch c.Kind {
	case CellNumber:
		return c.Number, true
	case CellText:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.Text), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
