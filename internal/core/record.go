package core

import (
	"encoding/json"
	"fmt"
	"sort"
)

// NormalizedRecord is a validated member record ready for submission.
// Values are keyed by catalog field and are never empty. Construct with
// NewRecord; the zero value is not valid.
type NormalizedRecord struct {
	row    int
	fields map[FieldKey]string
}

// NewRecord validates values against the catalog and returns a record for the
// given display row. Keys must be known non-synthetic fields, values must be
// non-empty, and every required field must be present.
func NewRecord(row int, values map[FieldKey]string) (NormalizedRecord, error) {
	fields := make(map[FieldKey]string, len(values))
	for key, val := range values {
		spec, ok := LookupField(key)
		if !ok {
			return NormalizedRecord{}, fmt.Errorf("unknown field %q", key)
		}
		if spec.Synthetic() {
			return NormalizedRecord{}, fmt.Errorf("field %q cannot be stored directly", key)
		}
		if val == "" {
			return NormalizedRecord{}, fmt.Errorf("field %q has an empty value", key)
		}
		fields[key] = val
	}
	for _, key := range RequiredFields() {
		if _, ok := fields[key]; !ok {
			return NormalizedRecord{}, fmt.Errorf("missing required field %q", key)
		}
	}
	return NormalizedRecord{row: row, fields: fields}, nil
}

// Row returns the display row number of the source row.
func (r NormalizedRecord) Row() int { return r.row }

// Get returns the value for key, or "" if unset.
func (r NormalizedRecord) Get(key FieldKey) string { return r.fields[key] }

// Len returns the number of populated fields.
func (r NormalizedRecord) Len() int { return len(r.fields) }

// Fields returns a copy of the record's values.
func (r NormalizedRecord) Fields() map[FieldKey]string {
	out := make(map[FieldKey]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Keys returns the populated field keys in catalog order.
func (r NormalizedRecord) Keys() []FieldKey {
	keys := make([]FieldKey, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return catalogPosition(keys[i]) < catalogPosition(keys[j])
	})
	return keys
}

// Identity returns the display fields for this record.
func (r NormalizedRecord) Identity() Identity {
	return Identity{
		FirstName: r.fields[KeyFirstName],
		LastName:  r.fields[KeyLastName],
		Email:     r.fields[KeyEmail],
	}
}

// MarshalJSON encodes the field values as a flat object.
func (r NormalizedRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[string(k)] = v
	}
	return json.Marshal(out)
}

func catalogPosition(key FieldKey) int {
	for i, spec := range fieldCatalog {
		if spec.Key == key {
			return i
		}
	}
	return len(fieldCatalog)
}
