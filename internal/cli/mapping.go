package cli

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/memberimport/internal/core"
)

// mappingFile is the on-disk form of a column mapping:
//
//	columns:
//	  Name: fullName
//	  E-mail: email
type mappingFile struct {
	Columns map[string]string `yaml:"columns"`
}

// loadMappingFile reads column -> field key assignments from a YAML file.
func loadMappingFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}

	var mf mappingFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse mapping file %s: %w", path, err)
	}
	if len(mf.Columns) == 0 {
		return nil, fmt.Errorf("mapping file %s has no columns", path)
	}
	return mf.Columns, nil
}

// writeMappingFile renders a mapping in the format loadMappingFile reads.
// Unmapped columns are written with an empty key so they can be filled in.
func writeMappingFile(m core.ColumnMapping) ([]byte, error) {
	mf := mappingFile{Columns: make(map[string]string, len(m.Columns()))}
	for _, col := range m.Columns() {
		key, _ := m.Target(col)
		mf.Columns[col] = string(key)
	}
	return yaml.Marshal(mf)
}

// resolveMapping returns the assignments from path, or the suggested
// mapping for headers when path is empty.
func resolveMapping(path string, headers []string) (map[string]string, error) {
	if strings.TrimSpace(path) != "" {
		return loadMappingFile(path)
	}
	out := make(map[string]string)
	for col, key := range core.SuggestMapping(headers).Assignments() {
		out[col] = string(key)
	}
	return out, nil
}

// readSource reads an import file and parses it.
func readSource(path string) ([]byte, *core.SourceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	table, err := core.Ingest(data, path)
	if err != nil {
		return nil, nil, err
	}
	return data, table, nil
}
