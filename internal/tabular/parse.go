package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// FileFormat is the actual on-disk format of an upload, determined from
// content rather than from the declared file name.
type FileFormat int

const (
	FormatDelimited FileFormat = iota
	FormatXLSX
	FormatLegacyExcel
)

func (f FileFormat) String() string {
	switch f {
	case FormatXLSX:
		return "xlsx"
	case FormatLegacyExcel:
		return "xls"
	default:
		return "delimited"
	}
}

var (
	ErrEmptyFile   = errors.New("file is empty")
	ErrNoHeader    = errors.New("no header row found")
	ErrLegacyExcel = errors.New("legacy .xls files are not supported, re-save as .xlsx or .csv")
)

// Magic byte prefixes for container sniffing. XLSX files are ZIP
// archives; legacy Excel files use the OLE compound document container.
var (
	zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// SniffFormat inspects the leading bytes of an upload. The declared
// extension is never trusted on its own: exports from procurement portals
// routinely arrive as XLSX content named ".csv" and vice versa.
func SniffFormat(data []byte) FileFormat {
	if bytes.HasPrefix(data, zipMagic) {
		return FormatXLSX
	}
	if bytes.HasPrefix(data, oleMagic) {
		return FormatLegacyExcel
	}
	return FormatDelimited
}

// Row maps a header to the parsed cell beneath it. Cells under headers
// with no value in the source row are present as empty cells, so lookups
// never need an existence check.
type Row map[string]Cell

func (r Row) Get(header string) Cell {
	if c, ok := r[header]; ok {
		return c
	}
	return EmptyCell()
}

// Table is a fully decoded upload. Headers preserve source order, and
// Rows preserve source row order. Warnings carry non-fatal integrity
// findings such as an extension that disagrees with the file content.
type Table struct {
	Headers  []string
	Rows     []Row
	Format   FileFormat
	Warnings []string
}

// Parse decodes an upload into a Table. The filename supplies the
// declared extension; the content decides the real parse path. An OLE
// container is always fatal regardless of the declared name.
func Parse(data []byte, filename string) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	ext := strings.ToLower(strings.TrimPrefix(extOf(filename), "."))
	format := SniffFormat(data)

	switch format {
	case FormatLegacyExcel:
		return nil, ErrLegacyExcel
	case FormatXLSX:
		t, err := parseXLSX(data)
		if err != nil {
			return nil, err
		}
		if ext != "xlsx" && ext != "" {
			t.Warnings = append(t.Warnings, fmt.Sprintf("file named .%s contains XLSX data; parsed as XLSX", ext))
		}
		return t, nil
	default:
		comma := ','
		if ext == "tsv" || (ext == "txt" && bytes.ContainsRune(firstLine(data), '\t')) {
			comma = '\t'
		}
		t, err := parseDelimited(data, comma)
		if err != nil {
			return nil, err
		}
		if ext == "xlsx" || ext == "xls" {
			t.Warnings = append(t.Warnings, fmt.Sprintf("file named .%s contains plain text; parsed as delimited", ext))
		}
		return t, nil
	}
}

func extOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i:]
	}
	return ""
}

func firstLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i]
	}
	return data
}

func parseDelimited(data []byte, comma rune) (*Table, error) {
	text := decodeText(data)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read delimited file: %w", err)
		}
		records = append(records, record)
	}
	return buildTable(records, FormatDelimited)
}

func parseXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return buildTable(records, FormatXLSX)
}

// decodeText normalizes the byte stream to UTF-8. Invalid UTF-8 is taken
// to be Windows-1252, the encoding older ERP exports actually use; if
// even that fails the undecodable bytes are dropped rather than passed
// through as replacement runes.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err == nil && utf8.Valid(decoded) {
		return string(decoded)
	}
	return strings.ToValidUTF8(string(data), "")
}

// buildTable locates the header row, then zips every later non-empty
// record against it. Records wider than the header lose their overflow
// cells; narrower records pad with empty cells.
func buildTable(records [][]string, format FileFormat) (*Table, error) {
	headerIdx := -1
	for i, record := range records {
		if !recordEmpty(record) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrNoHeader
	}

	headers := make([]string, 0, len(records[headerIdx]))
	seen := make(map[string]int, len(records[headerIdx]))
	for _, h := range records[headerIdx] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", len(headers)+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s (%d)", h, n+1)
		} else {
			seen[h] = 1
		}
		headers = append(headers, h)
	}

	t := &Table{Headers: headers, Format: format}
	for _, record := range records[headerIdx+1:] {
		if recordEmpty(record) {
			continue
		}
		row := make(Row, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = ParseCell(record[i])
			} else {
				row[h] = EmptyCell()
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func recordEmpty(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
