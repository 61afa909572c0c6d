package core

// ingest.go turns an uploaded file into a SourceTable.
//
// Two formats are accepted, chosen by file extension:
//   - Delimited text (.csv): first non-empty record is the header row
//   - Workbook (.xlsx, .xls): first sheet only, first row is the header row
//
// Cells are cleaned the same way for both formats (trimmed, Excel text-guard
// prefixes removed) and every row is keyed by header name.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// SourceTable is the parsed, immutable content of an uploaded file.
type SourceTable struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

// Len returns the number of data rows.
func (t *SourceTable) Len() int { return len(t.Rows) }

// Sample returns up to n rows for display.
func (t *SourceTable) Sample(n int) []map[string]string {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// FileFormat is the detected kind of upload.
type FileFormat string

const (
	FormatCSV      FileFormat = "csv"
	FormatWorkbook FileFormat = "workbook"
)

// DetectFormat returns the format implied by fileName's extension.
func DetectFormat(fileName string) (FileFormat, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xls":
		return FormatWorkbook, nil
	default:
		return "", fmt.Errorf("%w: %q (expected .csv, .xlsx or .xls)", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// Ingest parses data into a SourceTable. It has no side effects.
// Any failure is returned as a *ParseError.
func Ingest(data []byte, fileName string) (table *SourceTable, err error) {
	format, err := DetectFormat(fileName)
	if err != nil {
		return nil, &ParseError{FileName: fileName, Err: err}
	}

	var records [][]string
	switch format {
	case FormatCSV:
		records, err = readCSV(data)
	case FormatWorkbook:
		records, err = readWorkbook(data)
	}
	if err != nil {
		return nil, &ParseError{FileName: fileName, Err: err}
	}

	table, err = buildTable(records)
	if err != nil {
		return nil, &ParseError{FileName: fileName, Err: err}
	}
	return table, nil
}

// readCSV decodes delimited text. The first record is the header row even
// when its cells are blank; fully empty data lines are dropped.
func readCSV(data []byte) ([][]string, error) {
	data = stripBOM(sanitizeUTF8(data))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}

	if len(all) == 0 {
		return nil, nil
	}

	records := make([][]string, 1, len(all))
	records[0] = all[0]
	for _, rec := range all[1:] {
		if isEmptyRow(rec) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// readWorkbook decodes the first sheet of a workbook. Trailing empty rows are
// dropped; interior empty rows are kept so row numbers match the sheet.
func readWorkbook(data []byte) (records [][]string, err error) {
	// The decoder can panic on corrupt archives.
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("corrupt workbook: %v", r)
		}
	}()

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	end := len(rows)
	for end > 1 && isEmptyRow(rows[end-1]) {
		end--
	}
	return rows[:end], nil
}

// buildTable aligns records to the header row. Blank header cells are
// dropped together with their column; repeated names get the first free
// " (n)" suffix.
func buildTable(records [][]string) (*SourceTable, error) {
	if len(records) == 0 {
		return nil, ErrNoHeaders
	}

	type column struct {
		pos  int
		name string
	}

	var columns []column
	used := make(map[string]bool)
	for pos, raw := range records[0] {
		base := cleanCell(raw)
		if base == "" {
			continue
		}
		name := base
		for n := 2; used[name]; n++ {
			name = base + " (" + strconv.Itoa(n) + ")"
		}
		used[name] = true
		columns = append(columns, column{pos: pos, name: name})
	}
	if len(columns) == 0 {
		return nil, ErrNoHeaders
	}

	dataRows := records[1:]
	if len(dataRows) == 0 {
		return nil, ErrNoRows
	}

	table := &SourceTable{
		Headers: make([]string, len(columns)),
		Rows:    make([]map[string]string, 0, len(dataRows)),
	}
	for i, c := range columns {
		table.Headers[i] = c.name
	}

	for _, rec := range dataRows {
		row := make(map[string]string, len(columns))
		for _, c := range columns {
			if c.pos < len(rec) {
				row[c.name] = cleanCell(rec[c.pos])
			} else {
				row[c.name] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// cleanCell trims whitespace and removes the Excel text guard (="0123").
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	return s
}

// stripBOM removes a leading UTF-8 byte order mark (0xEF 0xBB 0xBF).
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
