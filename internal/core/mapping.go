package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ColumnMapping is the correspondence between source columns and target
// fields. It is a value: WithMapping returns an updated copy and never
// modifies the receiver.
//
// At most one column maps to any given field key.
type ColumnMapping struct {
	columns []string
	targets map[string]FieldKey
}

// NewColumnMapping returns a mapping over headers with every column unset.
func NewColumnMapping(headers []string) ColumnMapping {
	cols := make([]string, len(headers))
	copy(cols, headers)
	return ColumnMapping{
		columns: cols,
		targets: make(map[string]FieldKey),
	}
}

// WithMapping assigns key to column and returns the new mapping. An empty key
// clears the column. If another column already holds key, that column is
// cleared first. Columns outside the header set are ignored.
func (m ColumnMapping) WithMapping(column string, key FieldKey) ColumnMapping {
	if !m.hasColumn(column) {
		return m
	}

	next := ColumnMapping{
		columns: m.columns,
		targets: make(map[string]FieldKey, len(m.targets)+1),
	}
	for col, k := range m.targets {
		if key != "" && k == key && col != column {
			continue
		}
		next.targets[col] = k
	}

	if key == "" {
		delete(next.targets, column)
	} else {
		next.targets[column] = key
	}
	return next
}

// Target returns the field assigned to column, if any.
func (m ColumnMapping) Target(column string) (FieldKey, bool) {
	k, ok := m.targets[column]
	return k, ok
}

// ColumnFor returns the column currently assigned to key, if any.
func (m ColumnMapping) ColumnFor(key FieldKey) (string, bool) {
	for _, col := range m.columns {
		if m.targets[col] == key {
			return col, true
		}
	}
	return "", false
}

// Columns returns the source columns in header order.
func (m ColumnMapping) Columns() []string {
	out := make([]string, len(m.columns))
	copy(out, m.columns)
	return out
}

// IsComplete reports whether the mapping can be transformed: the full-name
// field is mapped, or every required field is mapped individually.
func (m ColumnMapping) IsComplete() bool {
	if m.isMapped(KeyFullName) {
		return true
	}
	for _, key := range RequiredFields() {
		if !m.isMapped(key) {
			return false
		}
	}
	return true
}

// MappedCount returns the number of columns with a target.
func (m ColumnMapping) MappedCount() int {
	return len(m.targets)
}

// missingRequired lists labels of required fields with no column.
func (m ColumnMapping) missingRequired() []string {
	var missing []string
	for _, key := range RequiredFields() {
		if !m.isMapped(key) {
			missing = append(missing, fieldLabel(key))
		}
	}
	return missing
}

func (m ColumnMapping) isMapped(key FieldKey) bool {
	for _, k := range m.targets {
		if k == key {
			return true
		}
	}
	return false
}

func (m ColumnMapping) hasColumn(column string) bool {
	for _, c := range m.columns {
		if c == column {
			return true
		}
	}
	return false
}

// Assignments returns column -> field key for mapped columns only.
func (m ColumnMapping) Assignments() map[string]FieldKey {
	out := make(map[string]FieldKey, len(m.targets))
	for col, k := range m.targets {
		out[col] = k
	}
	return out
}

// MarshalJSON encodes the mapping as {"column": "fieldKey" | null} in header order.
func (m ColumnMapping) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, col := range m.columns {
		if i > 0 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(col)
		b.Write(name)
		b.WriteByte(':')
		if k, ok := m.targets[col]; ok {
			val, _ := json.Marshal(string(k))
			b.Write(val)
		} else {
			b.WriteString("null")
		}
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// MappingFromAssignments builds a mapping over headers from a column -> field
// key table, as received from a client or a saved preset. Unknown columns and
// unknown field keys are rejected; an empty key leaves the column unset.
// Assignments are applied in header order, so if two columns name the same
// field the later column wins.
func MappingFromAssignments(headers []string, assignments map[string]string) (ColumnMapping, error) {
	m := NewColumnMapping(headers)

	var unknown []string
	for col := range assignments {
		if !m.hasColumn(col) {
			unknown = append(unknown, col)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ColumnMapping{}, fmt.Errorf("unknown column(s) in mapping: %s", strings.Join(unknown, ", "))
	}

	for _, col := range headers {
		raw, ok := assignments[col]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		key, ok := ParseFieldKey(raw)
		if !ok {
			return ColumnMapping{}, fmt.Errorf("unknown field %q for column %q", raw, col)
		}
		m = m.WithMapping(col, key)
	}
	return m, nil
}
