package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_CSVRoundTrip(t *testing.T) {
	data, err := Template(TemplateCSV)
	require.NoError(t, err)

	table, err := Ingest(data, TemplateFileName(TemplateCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.NotContains(t, table.Headers, "Full Name")

	result, err := Transform(table, SuggestMapping(table.Headers))
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Empty(t, result.Errors)
}

func TestTemplate_XLSXRoundTrip(t *testing.T) {
	data, err := Template(TemplateXLSX)
	require.NoError(t, err)

	table, err := Ingest(data, TemplateFileName(TemplateXLSX))
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "John", table.Rows[0]["First Name"])
	assert.Equal(t, "FEMALE", table.Rows[1]["Gender"])
}

func TestTemplate_UnknownFormat(t *testing.T) {
	_, err := Template("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
