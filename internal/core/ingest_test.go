package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	// A second sheet must be ignored.
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Other", "A1", "Ignored"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestIngest_CSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBFName, Email ,Phone\n" +
		"Jane Doe,jane@x.com,=\"0123\"\n" +
		",,\n" +
		"  John Smith  ,john@x.com\n")

	table, err := Ingest(data, "members.CSV")
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Email", "Phone"}, table.Headers)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, map[string]string{"Name": "Jane Doe", "Email": "jane@x.com", "Phone": "0123"}, table.Rows[0])
	assert.Equal(t, map[string]string{"Name": "John Smith", "Email": "john@x.com", "Phone": ""}, table.Rows[1])
}

func TestIngest_CSVHeaders(t *testing.T) {
	data := []byte("Name,,Name,Notes\nA,x,B,C\n")

	table, err := Ingest(data, "dup.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Name (2)", "Notes"}, table.Headers)
	assert.Equal(t, map[string]string{"Name": "A", "Name (2)": "B", "Notes": "C"}, table.Rows[0])

	table, err = Ingest([]byte("Name,Name,Name (2)\nJane Doe,a,b\n"), "dup.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Name (2)", "Name (2) (2)"}, table.Headers)
	assert.Equal(t, map[string]string{"Name": "Jane Doe", "Name (2)": "a", "Name (2) (2)": "b"}, table.Rows[0])
}

func TestIngest_BlankHeaderRowIsNotSkipped(t *testing.T) {
	_, err := Ingest([]byte(" , \nJane,Doe\nJohn,Smith\n"), "blank.csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoHeaders)
}

func TestIngest_Workbook(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{" First Name ", "", "Last Name", "Children"},
		{"Jane", "skip", "Doe", 2},
		{"John"},
		{},
		{"Ann", nil, "Lee"},
		{},
		{},
	})

	table, err := Ingest(data, "members.xlsx")
	require.NoError(t, err)

	assert.Equal(t, []string{"First Name", "Last Name", "Children"}, table.Headers)
	// Interior empty row kept, trailing empty rows dropped.
	require.Equal(t, 4, table.Len())
	assert.Equal(t, map[string]string{"First Name": "Jane", "Last Name": "Doe", "Children": "2"}, table.Rows[0])
	assert.Equal(t, map[string]string{"First Name": "John", "Last Name": "", "Children": ""}, table.Rows[1])
	assert.Equal(t, map[string]string{"First Name": "", "Last Name": "", "Children": ""}, table.Rows[2])
	assert.Equal(t, "Ann", table.Rows[3]["First Name"])
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		fileName string
		wantErr  error
	}{
		{
			name:     "unsupported extension",
			data:     []byte("a,b\n1,2\n"),
			fileName: "members.txt",
			wantErr:  ErrUnsupportedFormat,
		},
		{
			name:     "empty csv",
			data:     []byte(""),
			fileName: "empty.csv",
			wantErr:  ErrNoHeaders,
		},
		{
			name:     "blank header row",
			data:     []byte(" , \nx,y\n"),
			fileName: "blank.csv",
			wantErr:  ErrNoHeaders,
		},
		{
			name:     "header only",
			data:     []byte("Name,Email\n\n"),
			fileName: "header.csv",
			wantErr:  ErrNoRows,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Ingest(tt.data, tt.fileName)
			require.Error(t, err)
			assert.True(t, IsParseError(err))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIngest_CorruptWorkbook(t *testing.T) {
	_, err := Ingest([]byte("definitely not a zip archive"), "broken.xlsx")
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "broken.xlsx", pe.FileName)
}

func TestIngest_InvalidUTF8(t *testing.T) {
	table, err := Ingest([]byte("Name\nJos\xe9\n"), "latin1.csv")
	require.NoError(t, err)
	assert.Equal(t, "Jos\uFFFD", table.Rows[0]["Name"])
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		fileName string
		want     FileFormat
		wantErr  bool
	}{
		{"a.csv", FormatCSV, false},
		{"A.XLSX", FormatWorkbook, false},
		{"legacy.xls", FormatWorkbook, false},
		{"noext", "", true},
		{"a.json", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			got, err := DetectFormat(tt.fileName)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanCell(t *testing.T) {
	tests := map[string]string{
		"  plain  ":  "plain",
		`="0123"`:    "0123",
		`=" 42 "`:    "42",
		`=""`:        "",
		`="unclosed`: `="unclosed`,
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanCell(in), "cleanCell(%q)", in)
	}
}
