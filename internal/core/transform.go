package core

import (
	"fmt"
	"strings"
)

// headerRowOffset converts a zero-based data row position into the row
// number a user sees in a spreadsheet with one header row.
const headerRowOffset = 2

// ValidationError reports a required field missing from one source row.
type ValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// TransformResult holds the output of Transform.
type TransformResult struct {
	Records []NormalizedRecord `json:"records"`
	Errors  []ValidationError  `json:"errors"`
}

// RejectedRows returns the number of distinct rows with validation errors.
func (r *TransformResult) RejectedRows() int {
	return distinctRows(r.Errors)
}

func distinctRows(errs []ValidationError) int {
	rows := make(map[int]struct{}, len(errs))
	for _, e := range errs {
		rows[e.Row] = struct{}{}
	}
	return len(rows)
}

// Transform converts every row of table into a NormalizedRecord according to
// mapping. Rows missing a required field produce one ValidationError per
// missing field and no record. Transform has no side effects and returns
// identical output for identical input.
//
// An incomplete mapping is rejected with *MappingIncompleteError before any
// row is examined.
func Transform(table *SourceTable, mapping ColumnMapping) (*TransformResult, error) {
	if !mapping.IsComplete() {
		return nil, &MappingIncompleteError{Missing: mapping.missingRequired()}
	}

	result := &TransformResult{
		Records: make([]NormalizedRecord, 0, len(table.Rows)),
		Errors:  []ValidationError{},
	}

	for i, row := range table.Rows {
		rowNum := i + headerRowOffset
		values := transformRow(table.Headers, row, mapping)

		var missing []ValidationError
		for _, key := range RequiredFields() {
			if values[key] == "" {
				label := fieldLabel(key)
				missing = append(missing, ValidationError{
					Row:     rowNum,
					Field:   label,
					Message: label + " is required",
				})
			}
		}
		if len(missing) > 0 {
			result.Errors = append(result.Errors, missing...)
			continue
		}

		rec, err := NewRecord(rowNum, values)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Row:     rowNum,
				Message: err.Error(),
			})
			continue
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

// transformRow applies the mapping to one row. Columns are visited in header
// order so a later column overrides an earlier one writing the same key
// (for example a mapped Middle Name after a Full Name split).
func transformRow(headers []string, row map[string]string, mapping ColumnMapping) map[FieldKey]string {
	values := make(map[FieldKey]string)

	for _, col := range headers {
		key, ok := mapping.Target(col)
		if !ok {
			continue
		}
		raw := strings.TrimSpace(row[col])
		if raw == "" {
			continue
		}

		if key == KeyFullName {
			first, middle, last := SplitFullName(raw)
			setValue(values, KeyFirstName, first)
			setValue(values, KeyLastName, last)
			setValue(values, KeyMiddleName, middle)
			continue
		}

		if spec, ok := LookupField(key); ok && spec.Coded() {
			raw = strings.ToUpper(raw)
		}
		values[key] = raw
	}

	return values
}

func setValue(values map[FieldKey]string, key FieldKey, val string) {
	if val == "" {
		delete(values, key)
		return
	}
	values[key] = val
}

// SplitFullName splits a name on runs of whitespace. The first token is the
// first name, the last token the last name, and anything between becomes the
// middle name.
//
//	"John"             -> "John", "", ""
//	"John Doe"         -> "John", "", "Doe"
//	"John Michael Doe" -> "John", "Michael", "Doe"
func SplitFullName(s string) (first, middle, last string) {
	tokens := strings.Fields(s)
	switch len(tokens) {
	case 0:
		return "", "", ""
	case 1:
		return tokens[0], "", ""
	case 2:
		return tokens[0], "", tokens[1]
	default:
		return tokens[0], strings.Join(tokens[1:len(tokens)-1], " "), tokens[len(tokens)-1]
	}
}
