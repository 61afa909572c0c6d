package core

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// TemplateFormat selects the template file type.
type TemplateFormat string

const (
	TemplateCSV  TemplateFormat = "csv"
	TemplateXLSX TemplateFormat = "xlsx"
)

// templateFields lists fields that appear in the import template. Full Name
// is left out so the template shows the individual name columns.
func templateFields() []FieldSpec {
	var out []FieldSpec
	for _, spec := range fieldCatalog {
		if spec.Synthetic() {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// templateRows returns the header row followed by two example rows.
func templateRows() [][]string {
	fields := templateFields()
	rows := make([][]string, 3)
	for i := range rows {
		rows[i] = make([]string, len(fields))
	}
	for j, spec := range fields {
		rows[0][j] = spec.Label
		for i := 0; i < 2 && i < len(spec.Example); i++ {
			rows[i+1][j] = spec.Example[i]
		}
	}
	return rows
}

// Template renders an import template. The headers use field labels, so a
// file built from it maps completely through SuggestMapping.
func Template(format TemplateFormat) ([]byte, error) {
	switch format {
	case TemplateCSV, "":
		return csvTemplate()
	case TemplateXLSX:
		return xlsxTemplate()
	default:
		return nil, fmt.Errorf("%w: template format %q", ErrUnsupportedFormat, format)
	}
}

// TemplateFileName returns the download name for format.
func TemplateFileName(format TemplateFormat) string {
	if format == TemplateXLSX {
		return "member_import_template.xlsx"
	}
	return "member_import_template.csv"
}

func csvTemplate() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(templateRows()); err != nil {
		return nil, fmt.Errorf("write csv template: %w", err)
	}
	return buf.Bytes(), nil
}

func xlsxTemplate() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Members"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	for i, row := range templateRows() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write template row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx template: %w", err)
	}
	return buf.Bytes(), nil
}
