package tabular

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// ----------------------------------------------------------------------
// Cell parsing
// ----------------------------------------------------------------------

func TestParseCell(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind CellKind
	}{
		{"empty string", "", CellEmpty},
		{"whitespace only", "   \t ", CellEmpty},
		{"integer", "42", CellNumber},
		{"decimal", "19.99", CellNumber},
		{"negative", "-3.5", CellNumber},
		{"scientific", "1e3", CellNumber},
		{"plain text", "Widget A", CellText},
		{"currency stays text", "$1,500.00", CellText},
		{"alphanumeric code", "WID-001", CellText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCell(tt.input)
			if got.Kind != tt.wantKind {
				t.Errorf("ParseCell(%q) kind = %v, want %v", tt.input, got.Kind, tt.wantKind)
			}
		})
	}
}

func TestCellString(t *testing.T) {
	if got := NumberCell(1500).String(); got != "1500" {
		t.Errorf("NumberCell(1500).String() = %q, want %q", got, "1500")
	}
	if got := NumberCell(0.5).String(); got != "0.5" {
		t.Errorf("NumberCell(0.5).String() = %q, want %q", got, "0.5")
	}
	if got := EmptyCell().String(); got != "" {
		t.Errorf("EmptyCell().String() = %q, want empty", got)
	}
}

func TestCellAsNumber(t *testing.T) {
	if v, ok := TextCell("42").AsNumber(); !ok || v != 42 {
		t.Errorf("TextCell(42).AsNumber() = %v, %v; want 42, true", v, ok)
	}
	if _, ok := TextCell("Widget").AsNumber(); ok {
		t.Error("TextCell(Widget).AsNumber() reported ok for non-numeric text")
	}
	if _, ok := EmptyCell().AsNumber(); ok {
		t.Error("EmptyCell().AsNumber() reported ok")
	}
}

// ----------------------------------------------------------------------
// Format sniffing
// ----------------------------------------------------------------------

func TestSniffFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want FileFormat
	}{
		{"zip container", []byte{0x50, 0x4B, 0x03, 0x04, 0x00}, FormatXLSX},
		{"ole container", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1}, FormatLegacyExcel},
		{"plain csv", []byte("a,b,c\n1,2,3\n"), FormatDelimited},
		{"empty", nil, FormatDelimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffFormat(tt.data); got != tt.want {
				t.Errorf("SniffFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------
// Delimited parsing
// ----------------------------------------------------------------------

func TestParseCSV(t *testing.T) {
	data := []byte("Product ID,Name,Pack Size\nWID-001,Widget A,12\nWID-002,Widget B,\n")

	table, err := Parse(data, "inventory.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	wantHeaders := []string{"Product ID", "Name", "Pack Size"}
	if len(table.Headers) != len(wantHeaders) {
		t.Fatalf("Headers = %v, want %v", table.Headers, wantHeaders)
	}
	for i, h := range wantHeaders {
		if table.Headers[i] != h {
			t.Errorf("Headers[%d] = %q, want %q", i, table.Headers[i], h)
		}
	}
	if len(table.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(table.Rows))
	}
	if c := table.Rows[0].Get("Pack Size"); c.Kind != CellNumber || c.Number != 12 {
		t.Errorf("Pack Size cell = %+v, want number 12", c)
	}
	if c := table.Rows[1].Get("Pack Size"); !c.IsEmpty() {
		t.Errorf("missing Pack Size cell = %+v, want empty", c)
	}
}

func TestParseTSV(t *testing.T) {
	data := []byte("Order ID\tQuantity\nORD-1\t5\n")

	table, err := Parse(data, "orders.tsv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(table.Headers) != 2 || table.Headers[0] != "Order ID" {
		t.Fatalf("Headers = %v, want [Order ID Quantity]", table.Headers)
	}
	if c := table.Rows[0].Get("Quantity"); c.Number != 5 {
		t.Errorf("Quantity = %+v, want 5", c)
	}
}

func TestParseSkipsPreamble(t *testing.T) {
	data := []byte("\n\n,,\nProduct ID,Name\nWID-001,Widget A\n")

	table, err := Parse(data, "report.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Headers[0] != "Product ID" {
		t.Errorf("header = %q, want preamble skipped", table.Headers[0])
	}
	if len(table.Rows) != 1 {
		t.Errorf("got %d rows, want 1", len(table.Rows))
	}
}

func TestParseRaggedRows(t *testing.T) {
	data := []byte("A,B,C\n1,2,3,4\n5\n")

	table, err := Parse(data, "ragged.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c := table.Rows[0].Get("C"); c.Number != 3 {
		t.Errorf("overflow row C = %+v, want 3", c)
	}
	if c := table.Rows[1].Get("B"); !c.IsEmpty() {
		t.Errorf("short row B = %+v, want empty", c)
	}
}

func TestParseDuplicateHeaders(t *testing.T) {
	data := []byte("Qty,Qty\n1,2\n")

	table, err := Parse(data, "dup.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Headers[0] != "Qty" || table.Headers[1] != "Qty (2)" {
		t.Errorf("Headers = %v, want second header disambiguated", table.Headers)
	}
	if c := table.Rows[0].Get("Qty (2)"); c.Number != 2 {
		t.Errorf("Qty (2) = %+v, want 2", c)
	}
}

func TestParseWindows1252(t *testing.T) {
	// 0xE9 is é in Windows-1252 and invalid as a standalone UTF-8 byte.
	data := []byte("Name\nCaf\xe9 Blend\n")

	table, err := Parse(data, "products.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := table.Rows[0].Get("Name").Text; got != "Café Blend" {
		t.Errorf("Name = %q, want %q", got, "Café Blend")
	}
}

// ----------------------------------------------------------------------
// Error and mismatch handling
// ----------------------------------------------------------------------

func TestParseEmptyFile(t *testing.T) {
	if _, err := Parse([]byte("   \n  "), "empty.csv"); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Parse(empty) error = %v, want ErrEmptyFile", err)
	}
}

func TestParseLegacyExcelRejected(t *testing.T) {
	data := append([]byte{0xD0, 0xCF, 0x11, 0xE0}, make([]byte, 64)...)
	if _, err := Parse(data, "old.xls"); !errors.Is(err, ErrLegacyExcel) {
		t.Errorf("Parse(ole) error = %v, want ErrLegacyExcel", err)
	}
	// The container decides, not the name.
	if _, err := Parse(data, "old.csv"); !errors.Is(err, ErrLegacyExcel) {
		t.Errorf("Parse(ole named csv) error = %v, want ErrLegacyExcel", err)
	}
}

func TestParseExtensionMismatchWarns(t *testing.T) {
	xlsx := buildWorkbook(t, [][]any{
		{"Product ID", "Name"},
		{"WID-001", "Widget A"},
	})

	table, err := Parse(xlsx, "export.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Format != FormatXLSX {
		t.Errorf("Format = %v, want FormatXLSX", table.Format)
	}
	if len(table.Warnings) == 0 || !strings.Contains(table.Warnings[0], "XLSX") {
		t.Errorf("Warnings = %v, want extension mismatch warning", table.Warnings)
	}
}

// ----------------------------------------------------------------------
// Workbook parsing
// ----------------------------------------------------------------------

func TestParseXLSX(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Product ID", "Name", "Pack Size"},
		{"WID-001", "Widget A", 12},
		{"WID-002", "Widget B", 6},
	})

	table, err := Parse(data, "inventory.xlsx")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Format != FormatXLSX {
		t.Errorf("Format = %v, want FormatXLSX", table.Format)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(table.Rows))
	}
	if c := table.Rows[0].Get("Pack Size"); c.Number != 12 {
		t.Errorf("Pack Size = %+v, want 12", c)
	}
}

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}
