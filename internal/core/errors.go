package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel causes wrapped by ParseError.
var (
	ErrNoHeaders         = errors.New("no header row found")
	ErrNoRows            = errors.New("no data rows after header")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// ErrImportNotFound is returned when a run id is unknown or has expired.
var ErrImportNotFound = errors.New("import not found")

// ErrHistoryUnavailable is returned when no history store is configured.
var ErrHistoryUnavailable = errors.New("import history is not configured")

// ParseError reports a file that could not be turned into a SourceTable.
// Ingestion halts; nothing is mapped or submitted.
type ParseError struct {
	FileName string
	Err      error
}

func (e *ParseError) Error() string {
	if e.FileName == "" {
		return fmt.Sprintf("parse file: %v", e.Err)
	}
	return fmt.Sprintf("parse file %q: %v", e.FileName, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MappingIncompleteError is returned when a mapping does not cover the
// required fields. The caller stays in the mapping stage to fix it.
type MappingIncompleteError struct {
	Missing []string // Labels of the unmapped required fields
}

func (e *MappingIncompleteError) Error() string {
	return fmt.Sprintf("mapping incomplete: map %q or all of %s",
		fieldLabel(KeyFullName), strings.Join(e.Missing, ", "))
}

// SubmissionError wraps a rejection from the remote create operation for a
// single record.
type SubmissionError struct {
	Row int
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("row %d: submit: %v", e.Row, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsMappingIncomplete reports whether err is (or wraps) a MappingIncompleteError.
func IsMappingIncomplete(err error) bool {
	var me *MappingIncompleteError
	return errors.As(err, &me)
}
